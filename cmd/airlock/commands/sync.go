// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/airlock-foundation/airlock/cmd/airlock/cli"
	"github.com/airlock-foundation/airlock/gate"
	"github.com/airlock-foundation/airlock/history"
	"github.com/airlock-foundation/airlock/lib/config"
	"github.com/airlock-foundation/airlock/remote"
	"github.com/airlock-foundation/airlock/scan"
)

func newSyncCommand() *cli.Command {
	var configPath string
	var dryRun, auto bool

	return &cli.Command{
		Name:    "sync",
		Summary: "run the gated sync pipeline",
		Description: `Sync extracts the capture layer from the execution host, validates
it, renders a preview, and promotes new files into the trusted tree.
Exit codes: 0 success (including dry-run and nothing-to-sync), 2
validation blocked, 3 extraction or connectivity failure.`,
		Usage: "airlock sync [--dry-run | --auto] [--config <path>]",
		Examples: []cli.Example{
			{Description: "preview pending changes without writing", Command: "airlock sync --dry-run"},
			{Description: "promote unattended after validation", Command: "airlock sync --auto"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("sync", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "profile path (default $AIRLOCK_CONFIG)")
			flags.BoolVar(&dryRun, "dry-run", false, "preview only; no confirmation, no writes")
			flags.BoolVar(&auto, "auto", false, "promote without confirmation after a passing verdict")
			return flags
		},
		Run: func([]string) error {
			if dryRun && auto {
				return fmt.Errorf("--dry-run and --auto are mutually exclusive")
			}
			cfg, err := loadProfile(configPath)
			if err != nil {
				return err
			}
			return runSync(cfg, gate.RunOptions{DryRun: dryRun, Auto: auto})
		},
	}
}

func runSync(cfg *config.Config, options gate.RunOptions) error {
	if cfg.Mode != config.ModeGated {
		return fmt.Errorf("sync requires gated mode; environment %q is %q (timed mode promotes via airlock-mirror, unsafe mode has no gate)",
			cfg.Environment, cfg.Mode)
	}

	logger := cli.NewCommandLogger().With(
		"command", "sync",
		"environment", cfg.Environment,
	)

	pipeline, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	outcome, runErr := pipeline.Run(ctx, options)
	recordRun(cfg, logger, started, outcome, runErr)

	return mapPipelineError(runErr)
}

// buildPipeline wires the gated pipeline from a profile.
func buildPipeline(cfg *config.Config, logger *slog.Logger) (*gate.Pipeline, error) {
	policy := gate.DefaultPolicy()
	if cfg.Validation.PolicyFile != "" {
		loaded, err := gate.LoadPolicy(cfg.Validation.PolicyFile)
		if err != nil {
			return nil, err
		}
		policy = loaded
	}

	endpoint := endpointFor(cfg)
	// Staging lives under a local directory of its own, never under the
	// overlay work directory: that path belongs to fuse-overlayfs on the
	// execution host and is emptied on reset.
	stagingDir := cfg.Paths.StagingDir
	if stagingDir == "" {
		stagingDir = os.TempDir()
	}

	return &gate.Pipeline{
		Environment: cfg.Environment,
		BindingPath: cfg.Paths.BindingFile,
		Extractor: &gate.Extractor{
			Runner:     &remote.SSHRunner{Endpoint: endpoint},
			Copier:     &remote.RsyncCopier{Endpoint: endpoint},
			Host:       cfg.Host.Address,
			CaptureDir: cfg.Paths.Capture,
			WorkDir:    stagingDir,
			Logger:     logger,
		},
		Validator: &gate.Validator{
			Policy:  policy,
			Scanner: &scan.Gitleaks{Binary: cfg.Validation.Scanner},
			Logger:  logger,
		},
		Promoter: &gate.Promoter{Logger: logger},
		Output:   os.Stdout,
		Confirm:  promptLine,
		Logger:   logger,
	}, nil
}

// recordRun appends the run to the history ledger, best effort: a
// ledger failure is logged, never surfaced as the sync result.
func recordRun(cfg *config.Config, logger *slog.Logger, started time.Time, outcome *gate.Outcome, runErr error) {
	if cfg.Paths.HistoryDB == "" {
		return
	}

	run := history.Run{
		Environment: cfg.Environment,
		StartedAt:   started,
		Outcome:     classifyOutcome(outcome, runErr),
	}
	if runErr != nil {
		run.Detail = runErr.Error()
	}
	if outcome != nil {
		if outcome.Listing != nil {
			run.Files = len(outcome.Listing.Entries)
		}
		if outcome.Verdict != nil {
			run.Blocking = len(outcome.Verdict.Blocking())
			run.Advisories = len(outcome.Verdict.Advisories())
		}
		if outcome.Result != nil {
			run.Promoted = len(outcome.Result.Promoted)
			run.Skipped = len(outcome.Result.Skipped)
		}
	}

	ledger, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		logger.Warn("opening history ledger", "error", err)
		return
	}
	defer ledger.Close()
	if _, err := ledger.Record(run); err != nil {
		logger.Warn("recording run in history ledger", "error", err)
	}
}

func classifyOutcome(outcome *gate.Outcome, runErr error) history.Outcome {
	switch {
	case errors.Is(runErr, gate.ErrConfirmationDeclined):
		return history.OutcomeDeclined
	case isValidationBlocked(runErr):
		return history.OutcomeBlocked
	case runErr != nil:
		return history.OutcomeFailed
	case outcome != nil && outcome.NothingToSync:
		return history.OutcomeNothingToSync
	case outcome != nil && outcome.DryRun:
		return history.OutcomeDryRun
	default:
		return history.OutcomePromoted
	}
}

func isValidationBlocked(err error) bool {
	var blocked *gate.ValidationBlocked
	return errors.As(err, &blocked)
}

// mapPipelineError translates the pipeline's error taxonomy to exit
// codes. A declined confirmation is a clean no-op exit.
func mapPipelineError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gate.ErrConfirmationDeclined) {
		return nil
	}
	if isValidationBlocked(err) {
		return &cli.ExitError{Code: cli.ExitValidationBlocked, Err: err}
	}
	var extraction *gate.ExtractionError
	if errors.As(err, &extraction) {
		return &cli.ExitError{Code: cli.ExitExtraction, Err: err}
	}
	return err
}
