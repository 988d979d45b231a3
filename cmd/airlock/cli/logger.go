// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger builds the structured logger for command handlers.
// On a terminal, text output for humans; piped or redirected (CI,
// cron, scripts), JSON for machine ingestion.
//
// Handlers scope it with command context:
//
//	logger := cli.NewCommandLogger().With(
//	    "command", "sync",
//	    "environment", environment,
//	)
func NewCommandLogger() *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
