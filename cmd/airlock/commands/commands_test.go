// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/airlock-foundation/airlock/cmd/airlock/cli"
	"github.com/airlock-foundation/airlock/gate"
	"github.com/airlock-foundation/airlock/history"
	"github.com/airlock-foundation/airlock/lib/config"
)

func gatedProfile() *config.Config {
	cfg := config.Default()
	cfg.Environment = "dev"
	cfg.Paths.Source = "/host/project"
	cfg.Paths.Capture = "/env/capture"
	cfg.Paths.MountPoint = "/env/merged"
	return cfg
}

func TestBuildPipelineStagingNeverUsesOverlayWork(t *testing.T) {
	cfg := gatedProfile()
	cfg.Paths.Work = "/env/overlay-work"

	pipeline, err := buildPipeline(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("buildPipeline: %v", err)
	}
	if pipeline.Extractor.WorkDir == cfg.Paths.Work {
		t.Fatalf("staging parent %q reuses the overlay work directory, which reset empties", cfg.Paths.Work)
	}
	if pipeline.Extractor.WorkDir != os.TempDir() {
		t.Errorf("staging parent = %q, want the temp directory when staging_dir is unset", pipeline.Extractor.WorkDir)
	}
}

func TestBuildPipelineHonorsStagingDir(t *testing.T) {
	cfg := gatedProfile()
	cfg.Paths.Work = "/env/overlay-work"
	cfg.Paths.StagingDir = "/var/lib/airlock/staging"

	pipeline, err := buildPipeline(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("buildPipeline: %v", err)
	}
	if pipeline.Extractor.WorkDir != cfg.Paths.StagingDir {
		t.Errorf("staging parent = %q, want %q", pipeline.Extractor.WorkDir, cfg.Paths.StagingDir)
	}
}

func TestRunSyncRefusesTimedMode(t *testing.T) {
	cfg := gatedProfile()
	cfg.Mode = config.ModeTimed

	err := runSync(cfg, gate.RunOptions{})
	if err == nil {
		t.Fatal("sync ran in timed mode")
	}
	if !strings.Contains(err.Error(), "airlock-mirror") {
		t.Errorf("error %q does not point at the mirror service", err)
	}
}

func TestRunSyncRefusesUnsafeMode(t *testing.T) {
	cfg := gatedProfile()
	cfg.Mode = config.ModeUnsafe
	cfg.Paths.Capture = ""
	cfg.Paths.MountPoint = ""

	if err := runSync(cfg, gate.RunOptions{}); err == nil {
		t.Fatal("sync ran in unsafe mode")
	}
}

func TestRunResetRequiresForce(t *testing.T) {
	cfg := gatedProfile()
	err := runReset(cfg, false)
	if err == nil {
		t.Fatal("reset proceeded without --force")
	}
	if !strings.Contains(err.Error(), "--force") {
		t.Errorf("error %q does not mention --force", err)
	}
}

func TestRunResetRefusesUnsafeMode(t *testing.T) {
	cfg := gatedProfile()
	cfg.Mode = config.ModeUnsafe
	if err := runReset(cfg, true); err == nil {
		t.Fatal("reset proceeded in unsafe mode")
	}
}

func TestMapPipelineError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantNil  bool
	}{
		{"success", nil, 0, true},
		{"declined is a clean exit", gate.ErrConfirmationDeclined, 0, true},
		{"validation blocked", &gate.ValidationBlocked{}, cli.ExitValidationBlocked, false},
		{"extraction", &gate.ExtractionError{Host: "h", Err: errors.New("down")}, cli.ExitExtraction, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			mapped := mapPipelineError(test.err)
			if test.wantNil {
				if mapped != nil {
					t.Fatalf("mapped = %v, want nil", mapped)
				}
				return
			}
			var exitErr *cli.ExitError
			if !errors.As(mapped, &exitErr) {
				t.Fatalf("mapped = %v, want *cli.ExitError", mapped)
			}
			if exitErr.ExitCode() != test.wantCode {
				t.Errorf("code = %d, want %d", exitErr.ExitCode(), test.wantCode)
			}
		})
	}
}

func TestMapPipelineErrorPassesThroughUnknown(t *testing.T) {
	unknown := errors.New("disk on fire")
	if mapped := mapPipelineError(unknown); !errors.Is(mapped, unknown) {
		t.Errorf("mapped = %v, want the original error", mapped)
	}
}

func TestClassifyOutcome(t *testing.T) {
	tests := []struct {
		name    string
		outcome *gate.Outcome
		err     error
		want    history.Outcome
	}{
		{"nothing to sync", &gate.Outcome{NothingToSync: true}, nil, history.OutcomeNothingToSync},
		{"dry run", &gate.Outcome{DryRun: true}, nil, history.OutcomeDryRun},
		{"promoted", &gate.Outcome{Result: &gate.PromoteResult{}}, nil, history.OutcomePromoted},
		{"declined", &gate.Outcome{}, gate.ErrConfirmationDeclined, history.OutcomeDeclined},
		{"blocked", &gate.Outcome{}, &gate.ValidationBlocked{}, history.OutcomeBlocked},
		{"failed", nil, errors.New("boom"), history.OutcomeFailed},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := classifyOutcome(test.outcome, test.err); got != test.want {
				t.Errorf("classifyOutcome = %s, want %s", got, test.want)
			}
		})
	}
}
