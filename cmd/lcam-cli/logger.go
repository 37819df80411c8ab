package main

import (
	"log/slog"
	"os"

	"github.com/kstaniek/go-lcam-driver/internal/logging"
)

func setupLogger(format, level string) *slog.Logger {
	l := logging.New(format, logging.ParseLevel(level), os.Stderr).With("app", "lcam-cli")
	logging.Set(l)
	return l
}
