package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"placewatch/internal/config"
	"placewatch/internal/geo"
	"placewatch/internal/retry"
	"placewatch/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:           "placewatch",
		Short:         "Incremental review crawler for tracked places",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(crawlCMD(), enrichCMD(), botCMD(), migrateCMD())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("placewatch", "error", err)
		cancel()
		os.Exit(1)
	}
}

// env holds what every subcommand needs.
type env struct {
	cfg   *config.Config
	log   *slog.Logger
	store *storage.DB
}

func setup() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// The configured logger also serves the fatal error logged by main.
	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	if cfg.DatabaseDriver == "sqlite" {
		if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create data directory %s: %w", dir, err)
			}
		}
	}

	store, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &env{cfg: cfg, log: log, store: store}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.log.Error("close database", "error", err)
	}
}

func (e *env) retryPolicy() retry.Policy {
	return retry.Policy{Attempts: e.cfg.Retry.Attempts, Backoff: e.cfg.Retry.Backoff}
}

// zones loads the zone boxes, or returns nil when none are configured.
func (e *env) zones() (geo.Lookup, error) {
	if e.cfg.ZonesFile == "" {
		return nil, nil
	}
	boxes, err := geo.LoadBoxes(e.cfg.ZonesFile)
	if err != nil {
		return nil, err
	}
	e.log.Info("zones loaded", "path", e.cfg.ZonesFile, "boxes", len(boxes))
	return boxes, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
