// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Command airlock-mirror is the timed auto-promotion service. It runs
// on the execution host and reflects the capture layer onto the
// trusted tree mount on a fixed interval, with no validation and no
// preview.
//
// It refuses to start unless the profile's mode is "timed": the gated
// pipeline and this service must never both target one trusted tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/airlock-foundation/airlock/cmd/airlock/cli"
	"github.com/airlock-foundation/airlock/lib/clock"
	"github.com/airlock-foundation/airlock/lib/config"
	"github.com/airlock-foundation/airlock/lib/version"
	"github.com/airlock-foundation/airlock/mirror"
)

func main() {
	var configPath string
	var showVersion bool
	flags := pflag.NewFlagSet("airlock-mirror", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "profile path (default $AIRLOCK_CONFIG)")
	flags.BoolVar(&showVersion, "version", false, "print the version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "airlock-mirror: %v\n", err)
		os.Exit(1)
	}
	if showVersion {
		fmt.Println(version.Full())
		return
	}

	if err := run(configPath); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "airlock-mirror: %v\n", err)
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

	if cfg.Mode != config.ModeTimed {
		return fmt.Errorf("environment %q is in %q mode; airlock-mirror only runs in timed mode",
			cfg.Environment, cfg.Mode)
	}

	logger := cli.NewCommandLogger().With(
		"component", "mirror",
		"environment", cfg.Environment,
	)

	service := &mirror.Service{
		CaptureDir:   cfg.Paths.Capture,
		TrustedTree:  cfg.Paths.Source,
		Interval:     cfg.Mirror.Interval,
		InitialDelay: cfg.Mirror.InitialDelay,
		Mirrorer:     &mirror.RsyncMirror{},
		Clock:        clock.Real(),
		Logger:       logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return service.Run(ctx)
}
