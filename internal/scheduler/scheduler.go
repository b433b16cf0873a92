// Package scheduler runs the periodic jobs: refreshing subscribed feeds and
// sending each user a digest of the events due today.
package scheduler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"plancal/internal/caldate"
	"plancal/internal/calendar"
	appLog "plancal/internal/log"
	"plancal/internal/model"
)

// PlanLister is the read side of the plan store the digest needs.
type PlanLister interface {
	ListUsers(ctx context.Context) ([]string, error)
	ListByUser(ctx context.Context, userID string) ([]model.Plan, error)
}

// FeedSource is the subscribed-feed cache.
type FeedSource interface {
	Refresh(ctx context.Context, today string) error
	EventsFor(userID string) []model.Event
}

// Notifier delivers a user's events for today.
type Notifier interface {
	Notify(ctx context.Context, userID, today string, events []model.Event) error
}

// LogNotifier writes the digest to the application log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, userID, today string, events []model.Event) error {
	titles := make([]string, 0, len(events))
	for _, ev := range events {
		titles = append(titles, ev.Title)
	}
	appLog.Info("daily digest", "user_id", userID, "date", today, "count", len(events), "titles", titles)
	return nil
}

// Scheduler wraps a cron runner with the feed refresh and digest jobs.
type Scheduler struct {
	cron     *cron.Cron
	loc      *time.Location
	plans    PlanLister
	feeds    FeedSource
	notifier Notifier
	opts     calendar.Options

	// now is replaced in tests.
	now func() time.Time

	// running guards against a manual run overlapping a scheduled one.
	running sync.Mutex
}

// New builds a scheduler evaluating cron specs and "today" in loc. feeds may
// be nil when no feeds are configured; a nil notifier logs.
func New(loc *time.Location, plans PlanLister, feeds FeedSource, notifier Notifier, opts calendar.Options) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	logger := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		loc:      loc,
		plans:    plans,
		feeds:    feeds,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
}

// ValidateSpec checks a standard five-field cron expression.
func ValidateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

// ScheduleRefresh registers the feed refresh job.
func (s *Scheduler) ScheduleRefresh(spec string) (cron.EntryID, error) {
	return s.schedule(spec, "refresh", s.RunRefresh)
}

// ScheduleDigest registers the daily digest job.
func (s *Scheduler) ScheduleDigest(spec string) (cron.EntryID, error) {
	return s.schedule(spec, "digest", s.RunDigest)
}

func (s *Scheduler) schedule(spec, name string, job func(context.Context) error) (cron.EntryID, error) {
	if err := ValidateSpec(spec); err != nil {
		return 0, err
	}
	id, err := s.cron.AddFunc(spec, func() {
		if err := job(context.Background()); err != nil {
			appLog.Error("scheduled job failed", err, "job", name)
		}
	})
	if err != nil {
		return 0, err
	}
	appLog.Info("job scheduled", "job", name, "spec", spec)
	return id, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Today is the current date in the scheduler's location.
func (s *Scheduler) Today() string {
	return caldate.Today(s.now().In(s.loc))
}

// RunRefresh re-fetches every subscribed feed.
func (s *Scheduler) RunRefresh(ctx context.Context) error {
	if s.feeds == nil {
		return nil
	}
	s.running.Lock()
	defer s.running.Unlock()
	return s.feeds.Refresh(ctx, s.Today())
}

// RunDigest projects every user's agenda and notifies the events dated
// today. Users with nothing due are skipped. A failing user does not stop
// the others; the last error is returned.
func (s *Scheduler) RunDigest(ctx context.Context) error {
	s.running.Lock()
	defer s.running.Unlock()

	today := s.Today()
	users, err := s.plans.ListUsers(ctx)
	if err != nil {
		return err
	}

	var lastErr error
	for _, userID := range users {
		due, err := s.dueToday(ctx, userID, today)
		if err != nil {
			appLog.Error("digest projection failed", err, "user_id", userID)
			lastErr = err
			continue
		}
		if len(due) == 0 {
			continue
		}
		if err := s.notifier.Notify(ctx, userID, today, due); err != nil {
			appLog.Error("digest notify failed", err, "user_id", userID)
			lastErr = err
		}
	}
	return lastErr
}

func (s *Scheduler) dueToday(ctx context.Context, userID, today string) ([]model.Event, error) {
	plans, err := s.plans.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	// The display cap would cut today's list short; only the date matters here.
	opts := s.opts
	opts.MaxEvents = math.MaxInt
	proj, err := calendar.Build(plans, today, opts)
	if err != nil {
		return nil, err
	}
	events := proj.Events
	if s.feeds != nil {
		events, err = calendar.MergeExternal(events, s.feeds.EventsFor(userID), today, opts.MaxEvents)
		if err != nil {
			return nil, err
		}
	}

	due := make([]model.Event, 0)
	for _, ev := range events {
		if ev.Date == today {
			due = append(due, ev)
		}
	}
	return due, nil
}

// cronLogger routes cron's own messages to the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
