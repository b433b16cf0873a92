package ics

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	appLog "plancal/internal/log"
	"plancal/internal/model"
)

// Feeds keeps the latest expanded events of every subscribed source. A source
// that fails to refresh keeps its previous events.
type Feeds struct {
	fetcher     *Fetcher
	sources     []Source
	loc         *time.Location
	horizonDays int

	mu       sync.RWMutex
	bySource map[string][]model.Event
	lastRun  time.Time
}

func NewFeeds(fetcher *Fetcher, sources []Source, loc *time.Location, horizonDays int) *Feeds {
	if loc == nil {
		loc = time.Local
	}
	return &Feeds{
		fetcher:     fetcher,
		sources:     sources,
		loc:         loc,
		horizonDays: horizonDays,
		bySource:    make(map[string][]model.Event),
	}
}

// Sources returns the configured sources.
func (f *Feeds) Sources() []Source {
	return append([]Source(nil), f.sources...)
}

// Refresh fetches, parses and expands every source for the window starting
// at today. The returned error joins the per-source failures.
func (f *Feeds) Refresh(ctx context.Context, today string) error {
	if len(f.sources) == 0 {
		return nil
	}
	w, err := HorizonWindow(today, f.horizonDays, f.loc)
	if err != nil {
		return err
	}

	results, errs := f.fetcher.FetchAll(ctx, f.sources)
	fresh := make(map[string][]model.Event, len(results))
	for _, res := range results {
		parsed, err := Parse(res.Source, res.Body, f.loc)
		if err != nil {
			appLog.Error("feed parse failed", err, "feed", res.Source.ID)
			errs = append(errs, err)
			continue
		}
		events, err := Expand(parsed, w)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fresh[res.Source.ID] = events
	}

	f.mu.Lock()
	for id, events := range fresh {
		f.bySource[id] = events
	}
	f.lastRun = time.Now()
	f.mu.Unlock()

	appLog.Info("feeds refreshed", "sources", len(f.sources), "ok", len(fresh), "failed", len(errs))
	return errors.Join(errs...)
}

// EventsFor returns the events of every source visible to userID, in date
// order.
func (f *Feeds) EventsFor(userID string) []model.Event {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]model.Event, 0)
	for _, src := range f.sources {
		if src.User != "" && src.User != userID {
			continue
		}
		out = append(out, f.bySource[src.ID]...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// LastRefresh reports when Refresh last completed; zero before the first run.
func (f *Feeds) LastRefresh() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastRun
}
