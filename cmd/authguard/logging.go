package main

import (
	"io"
	"log/slog"

	"github.com/samber/oops"
)

// setupLogger returns the logger for env: text at debug for local, JSON at
// debug for dev, JSON at info for prod.
func setupLogger(env string, w io.Writer) (*slog.Logger, error) {
	var handler slog.Handler

	switch env {
	case envLocal:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	case envDev:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	case envProd:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	default:
		return nil, oops.Code("CONFIG_INVALID").With("env", env).Errorf("invalid env %q", env)
	}

	return slog.New(handler).With("app", "authguard"), nil
}
