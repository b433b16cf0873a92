package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"plancal/internal/config"
	"plancal/internal/ics"
	appLog "plancal/internal/log"
	"plancal/internal/store"
)

var (
	configPath string
	debug      bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "plancal",
	Short: "plancal - recurring plans projected onto a calendar",
	Long: `plancal stores reminders, checklists and check-in sessions and projects
them onto a date-ordered agenda, served over HTTP, as an iCalendar feed
and as a PNG snapshot.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", configPath, err)
		}
		cfg = loaded

		level := appLog.ParseLevel(cfg.LogLevel)
		if debug {
			level = appLog.LevelDebug
		}
		return appLog.Init(level, cfg.LogFormat)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		appLog.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(agendaCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// openStore opens the configured database.
func openStore() (*store.PlanStore, func(), error) {
	db, err := store.OpenDB(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return store.NewPlanStore(db), func() { _ = sqlDB.Close() }, nil
}

// newFeeds builds the subscribed-feed cache from the config. Feeds without a
// URL are ignored; a missing id falls back to the name, then the URL.
func newFeeds(loc *time.Location) *ics.Feeds {
	sources := make([]ics.Source, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		if f.URL == "" {
			continue
		}
		id := f.ID
		if id == "" {
			id = f.Name
		}
		if id == "" {
			id = f.URL
		}
		sources = append(sources, ics.Source{ID: id, Name: f.Name, URL: f.URL, User: f.User})
	}
	return ics.NewFeeds(ics.NewFetcher(cfg.CacheDir, nil), sources, loc, cfg.FeedHorizonDays)
}

func location() *time.Location {
	loc, err := cfg.Location()
	if err != nil {
		appLog.Warn("unknown timezone, using local", "timezone", cfg.Timezone)
	}
	return loc
}
