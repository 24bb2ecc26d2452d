// Package main provides a broadcast noise watchdog that meters studio audio,
// sounds an audible alarm when the level exceeds the configured threshold,
// and feeds live loudness samples to a web interface.
//
// Usage:
//
//	noisewatch [-config path/to/config.json]
//
// If -config is not specified, noisewatch looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-noisewatch/internal/clip"
	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisewatch/internal/hub"
	"github.com/oszuidwest/zwfm-noisewatch/internal/notify"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// Build information, set via -ldflags at release time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()

	logPath := snap.LogPath
	if logPath == "" {
		logPath = eventlog.DefaultLogPath(snap.WebPort)
	}
	eventLogger, err := eventlog.NewLogger(logPath)
	if err != nil {
		slog.Warn("event log unavailable", "path", logPath, "error", err)
		eventLogger = nil
	}

	feed := hub.New()

	clips, err := clip.NewManager(cfg, eventLogger)
	if err != nil {
		slog.Error("failed to initialize clip storage", "error", err)
		os.Exit(1)
	}

	notifier := notify.NewAlarmNotifier(cfg)

	srv := NewServer(cfg, feed, eventLogger, clips, notifier)

	slog.Info("starting monitor")
	if err := srv.StartMonitor(); err != nil {
		slog.Warn("monitor not started", "error", err)
	}

	httpServer, err := srv.Start()
	if err != nil {
		slog.Error("failed to start web server", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// Stop version checker goroutine
	srv.version.Stop()

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.StopMonitor(); err != nil {
		slog.Error("error stopping monitor", "error", err)
	}

	// Let an in-flight alert sequence finish before releasing the device.
	srv.beeper.Wait()

	clips.Close()
	feed.Close()

	if eventLogger != nil {
		if err := eventLogger.Close(); err != nil {
			slog.Error("error closing event log", "error", err)
		}
	}

	slog.Info("shutdown complete")
}
