// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Command airlock-auditor is the write auditor: a long-lived watcher
// on the execution host that appends one audit record for every write
// observed in the capture layer.
//
// Auditing is observational only. The watcher is restarted in-process
// when it dies, and log-write failures never block the agent's I/O;
// promotion logic reads nothing from here.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/airlock-foundation/airlock/audit"
	"github.com/airlock-foundation/airlock/cmd/airlock/cli"
	"github.com/airlock-foundation/airlock/lib/config"
	"github.com/airlock-foundation/airlock/lib/version"
)

// restartDelay paces the supervision loop when the watcher cannot be
// created or dies unexpectedly.
const restartDelay = 5 * time.Second

func main() {
	var configPath string
	var showVersion bool
	flags := pflag.NewFlagSet("airlock-auditor", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "profile path (default $AIRLOCK_CONFIG)")
	flags.BoolVar(&showVersion, "version", false, "print the version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "airlock-auditor: %v\n", err)
		os.Exit(1)
	}
	if showVersion {
		fmt.Println(version.Full())
		return
	}

	if err := run(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "airlock-auditor: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if cfg.Mode == config.ModeUnsafe {
		return fmt.Errorf("environment %q runs in unsafe mode: there is no capture layer to audit", cfg.Environment)
	}

	logger := cli.NewCommandLogger().With(
		"component", "auditor",
		"environment", cfg.Environment,
	)

	log, err := audit.OpenLog(cfg.Paths.AuditLog, audit.DefaultMaxLogSize, logger)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("auditor starting", "capture", cfg.Paths.Capture, "log", cfg.Paths.AuditLog)

	// Supervision loop: a dead watcher is recreated, never silently
	// left down. The capture layer may not exist yet at boot, so
	// creation failures retry too.
	for {
		watcher, err := audit.NewWatcher(cfg.Paths.Capture, log, logger)
		if err != nil {
			logger.Warn("creating watcher, will retry", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(restartDelay):
				continue
			}
		}

		done := make(chan struct{})
		go func() {
			watcher.Run()
			close(done)
		}()

		select {
		case <-ctx.Done():
			watcher.Stop()
			<-done
			logger.Info("auditor stopping")
			return nil
		case <-done:
			logger.Warn("watcher exited, restarting")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(restartDelay):
			}
		}
	}
}
