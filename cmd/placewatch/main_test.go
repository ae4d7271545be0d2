package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"placewatch/internal/config"
)

func TestSetupInstallsConfiguredLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	t.Setenv(config.FileEnv, "")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "data", "placewatch.db"))
	t.Setenv("LOG_LEVEL", "error")

	e, err := setup()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer e.close()

	ctx := context.Background()
	if slog.Default().Enabled(ctx, slog.LevelWarn) {
		t.Error("default logger should drop warnings at LOG_LEVEL=error")
	}
	if !slog.Default().Enabled(ctx, slog.LevelError) {
		t.Error("default logger should keep errors")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log := newLogger(tt.level)
			if !log.Enabled(ctx, tt.want) {
				t.Errorf("level %s disabled", tt.want)
			}
			if tt.want > slog.LevelDebug && log.Enabled(ctx, tt.want-1) {
				t.Errorf("level below %s enabled", tt.want)
			}
		})
	}
}
