package main

import (
	"encoding/base64"
	"time"

	"github.com/spf13/cobra"

	"plancal/internal/capture"
	"plancal/internal/web"
)

var (
	snapshotURL     string
	snapshotOut     string
	snapshotUser    string
	snapshotWidth   int
	snapshotHeight  int
	snapshotTimeout time.Duration
	snapshotChrome  string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture the agenda page of a running server as a PNG",
	RunE:  runSnapshot,
}

func init() {
	f := snapshotCmd.Flags()
	f.StringVar(&snapshotURL, "url", "", "Agenda page URL (default: http://<listen>/agenda)")
	f.StringVar(&snapshotOut, "out", "./var/agenda.png", "Output PNG path")
	f.StringVar(&snapshotUser, "user", "", "User id sent with the request")
	f.IntVar(&snapshotWidth, "width", capture.DefaultWidth, "Viewport width in pixels")
	f.IntVar(&snapshotHeight, "height", capture.DefaultHeight, "Viewport height in pixels")
	f.DurationVar(&snapshotTimeout, "timeout", capture.DefaultTimeout, "Capture timeout")
	f.StringVar(&snapshotChrome, "chrome", "", "Chromium executable (default: autodetect)")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	url := snapshotURL
	if url == "" {
		url = "http://" + cfg.Listen + "/agenda"
	}

	headers := map[string]string{}
	if snapshotUser != "" {
		headers[web.UserHeader] = snapshotUser
	}
	if ba := cfg.BasicAuth; ba != nil && ba.Username != "" && ba.Password != "" {
		headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(ba.Username+":"+ba.Password))
	}

	return capture.AgendaPNG(ctx, capture.Options{
		URL:        url,
		OutputPath: snapshotOut,
		Width:      snapshotWidth,
		Height:     snapshotHeight,
		Timeout:    snapshotTimeout,
		Headers:    headers,
		ExecPath:   snapshotChrome,
	})
}
