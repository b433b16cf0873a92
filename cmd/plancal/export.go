package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"plancal/internal/ics"
	appLog "plancal/internal/log"
)

var (
	exportUser string
	exportOut  string
	exportMax  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a user's agenda as an iCalendar file",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportUser, "user", "", "User id (default: default_user from config)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (default: stdout)")
	exportCmd.Flags().IntVar(&exportMax, "max", 200, "Maximum number of events")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	userID := exportUser
	if userID == "" {
		userID = cfg.DefaultUser
	}
	events, _, err := projectFor(ctx, userID, exportMax)
	if err != nil {
		return err
	}
	body, err := ics.Encode(events, "Plans ("+userID+")")
	if err != nil {
		return err
	}

	if exportOut == "" {
		_, err := cmd.OutOrStdout().Write(body)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(exportOut), 0o755); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := os.WriteFile(exportOut, body, 0o644); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	appLog.Info("calendar exported", "user_id", userID, "events", len(events), "path", exportOut)
	return nil
}
