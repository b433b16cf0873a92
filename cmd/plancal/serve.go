package main

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"plancal/internal/config"
	appLog "plancal/internal/log"
	"plancal/internal/scheduler"
	"plancal/internal/web"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the scheduled jobs",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (overrides config if set)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	loc := location()

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", loc.String(),
		"database", cfg.Database,
		"max_events", cfg.MaxEvents,
		"refresh", cfg.RefreshCron,
		"digest", cfg.DigestCron,
		"feed_count", len(cfg.Feeds),
	)

	plans, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := signalContext()
	defer cancel()

	// Log level follows edits to the config file; everything else needs a restart.
	if err := config.Watch(ctx, configPath, func(c *config.Config) {
		if !debug {
			appLog.SetLevel(appLog.ParseLevel(c.LogLevel))
		}
	}); err != nil {
		appLog.Warn("config watcher disabled", "reason", err.Error())
	}

	feeds := newFeeds(loc)
	sched := scheduler.New(loc, plans, feeds, scheduler.LogNotifier{}, cfg.CalendarOptions())
	if _, err := sched.ScheduleRefresh(cfg.RefreshCron); err != nil {
		return err
	}
	if _, err := sched.ScheduleDigest(cfg.DigestCron); err != nil {
		return err
	}

	// Prime the feed cache so the first page load already shows them.
	go func() {
		if err := sched.RunRefresh(ctx); err != nil {
			appLog.Error("initial feed refresh failed", err)
		}
	}()
	sched.Start()
	defer sched.Stop()

	srv := web.NewServer(cfg, plans, feeds)
	if err := web.StartServer(ctx, srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("plancal exiting")
	return nil
}
