package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"plancal/internal/caldate"
	"plancal/internal/calendar"
	appLog "plancal/internal/log"
	"plancal/internal/model"
)

var (
	agendaUser string
	agendaMax  int
	agendaJSON bool
)

var agendaCmd = &cobra.Command{
	Use:   "agenda",
	Short: "Print a user's upcoming events",
	RunE:  runAgenda,
}

func init() {
	agendaCmd.Flags().StringVar(&agendaUser, "user", "", "User id (default: default_user from config)")
	agendaCmd.Flags().IntVar(&agendaMax, "max", 0, "Maximum number of events (default: max_events from config)")
	agendaCmd.Flags().BoolVar(&agendaJSON, "json", false, "Print events as JSON")
}

func runAgenda(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	events, today, err := projectFor(ctx, agendaUser, agendaMax)
	if err != nil {
		return err
	}
	if agendaJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}
	return printAgenda(cmd.OutOrStdout(), events, today)
}

// projectFor loads the user's plans and feeds and builds their agenda.
func projectFor(ctx context.Context, userID string, maxEvents int) ([]model.Event, string, error) {
	if userID == "" {
		userID = cfg.DefaultUser
	}
	loc := location()
	today := caldate.Today(time.Now().In(loc))

	plans, closeDB, err := openStore()
	if err != nil {
		return nil, "", err
	}
	defer closeDB()

	list, err := plans.ListByUser(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	opts := cfg.CalendarOptions()
	if maxEvents > 0 {
		opts.MaxEvents = maxEvents
	}
	proj, err := calendar.Build(list, today, opts)
	if err != nil {
		return nil, "", err
	}
	for _, mpe := range proj.Skipped {
		fmt.Fprintf(os.Stderr, "skipped plan %s: %s %s\n", mpe.PlanID, mpe.Field, mpe.Reason)
	}

	feeds := newFeeds(loc)
	if len(feeds.Sources()) == 0 {
		return proj.Events, today, nil
	}
	if err := feeds.Refresh(ctx, today); err != nil {
		appLog.Warn("some feeds failed to refresh", "reason", err.Error())
	}
	events, err := calendar.MergeExternal(proj.Events, feeds.EventsFor(userID), today, opts.MaxEvents)
	return events, today, err
}

func printAgenda(w io.Writer, events []model.Event, today string) error {
	sections, err := calendar.Sections(events, today)
	if err != nil {
		return err
	}
	if len(sections) == 0 {
		_, err := fmt.Fprintln(w, "Nothing planned.")
		return err
	}
	for _, sec := range sections {
		fmt.Fprintf(w, "%s (%s)\n", sec.Label, sec.Date)
		for _, ev := range sec.Events {
			fmt.Fprintf(w, "  %s %s\n", marker(ev), line(ev))
		}
	}
	return nil
}

func marker(ev model.Event) string {
	switch {
	case ev.Type == model.EventChecklist && ev.Done:
		return "[x]"
	case ev.Type == model.EventChecklist:
		return "[ ]"
	case ev.Type == model.EventExternal:
		return " ~ "
	}
	return " - "
}

func line(ev model.Event) string {
	s := ev.Title
	if ev.Amount != nil {
		s += " (" + strconv.FormatFloat(*ev.Amount, 'f', 2, 64) + ")"
	}
	if ev.Type == model.EventChecklist && ev.StepIndex != nil {
		s += fmt.Sprintf(": %s [%d/%d]", ev.Description, ev.CompletedSteps, ev.TotalSteps)
	}
	return s
}
