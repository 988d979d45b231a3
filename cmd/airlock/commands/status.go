// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/airlock-foundation/airlock/binding"
	"github.com/airlock-foundation/airlock/cmd/airlock/cli"
	"github.com/airlock-foundation/airlock/history"
	"github.com/airlock-foundation/airlock/lib/config"
	"github.com/airlock-foundation/airlock/remote"
)

func newStatusCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "status",
		Summary: "report environment state, read-only",
		Description: `Status reports whether the merged view is mounted, the capture
layer's size and file count, the auditor's state, and the last
recorded sync run. It never mutates anything.`,
		Usage: "airlock status [--config <path>]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "profile path (default $AIRLOCK_CONFIG)")
			return flags
		},
		Run: func([]string) error {
			cfg, err := loadProfile(configPath)
			if err != nil {
				return err
			}
			return runStatus(cfg)
		},
	}
}

func runStatus(cfg *config.Config) error {
	fmt.Printf("Environment:  %s\n", cfg.Environment)
	fmt.Printf("Mode:         %s\n", cfg.Mode)

	// Local state first: the binding and the run ledger are readable
	// even when the execution host is down.
	if cfg.Paths.BindingFile != "" {
		if bound, err := binding.ReadFor(cfg.Paths.BindingFile, cfg.Environment); err == nil {
			fmt.Printf("Destination:  %s (bound %s)\n",
				bound.DestinationPath, bound.EstablishedAt.Format(time.RFC3339))
		} else if errors.Is(err, os.ErrNotExist) {
			fmt.Println("Destination:  not bound (run mount establish)")
		} else {
			fmt.Printf("Destination:  unreadable binding: %v\n", err)
		}
	}

	if cfg.Paths.HistoryDB != "" {
		printLastRun(cfg)
	}

	if cfg.Mode == config.ModeUnsafe {
		fmt.Println("Containment:  NONE (unsafe mode: source tree mounted read-write)")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runner := &remote.SSHRunner{Endpoint: endpointFor(cfg)}
	if err := printRemoteState(ctx, runner, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "execution host unreachable: %v\n", err)
		return &cli.ExitError{Code: cli.ExitExtraction, Err: err, Quiet: true}
	}
	return nil
}

func printRemoteState(ctx context.Context, runner remote.Runner, cfg *config.Config) error {
	mountedOutput, err := runner.Run(ctx,
		fmt.Sprintf("mountpoint -q %s && echo mounted || echo unmounted", remote.ShellQuote(cfg.Paths.MountPoint)))
	if err != nil {
		return err
	}
	fmt.Printf("Merged view:  %s at %s\n", trimOutput(mountedOutput), cfg.Paths.MountPoint)

	fileCount, err := remote.CountFiles(ctx, runner, cfg.Paths.Capture)
	if err != nil {
		return err
	}
	captureBytes, err := remote.DiskUsage(ctx, runner, cfg.Paths.Capture)
	if err != nil {
		return err
	}
	fmt.Printf("Capture:      %d file(s), %s\n", fileCount, humanize.IBytes(uint64(captureBytes)))

	auditorRunning, err := remote.ProcessRunning(ctx, runner, "airlock-auditor")
	if err != nil {
		return err
	}
	if auditorRunning {
		fmt.Println("Auditor:      running")
	} else {
		fmt.Println("Auditor:      stopped")
	}
	return nil
}

func printLastRun(cfg *config.Config) {
	ledger, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		fmt.Printf("Last sync:    ledger unreadable: %v\n", err)
		return
	}
	defer ledger.Close()

	last, err := ledger.Last(cfg.Environment)
	if err != nil {
		fmt.Printf("Last sync:    ledger unreadable: %v\n", err)
		return
	}
	if last == nil {
		fmt.Println("Last sync:    never")
		return
	}
	fmt.Printf("Last sync:    %s at %s (%d promoted, %d skipped)\n",
		last.Outcome, last.StartedAt.Format(time.RFC3339), last.Promoted, last.Skipped)
}

func trimOutput(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
