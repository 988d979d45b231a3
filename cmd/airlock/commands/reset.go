// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/airlock-foundation/airlock/cmd/airlock/cli"
	"github.com/airlock-foundation/airlock/lib/config"
	"github.com/airlock-foundation/airlock/remote"
)

func newResetCommand() *cli.Command {
	var configPath string
	var force bool

	return &cli.Command{
		Name:    "reset",
		Summary: "discard all unpromoted work (destructive)",
		Description: `Reset clears the capture layer on the execution host and
re-establishes an empty merged view. Every unpromoted agent write is
lost permanently. It requires --force and then asks you to type the
environment name; this is deliberate friction for an irreversible
operation.`,
		Usage: "airlock reset --force [--config <path>]",
		Examples: []cli.Example{
			{Command: "airlock reset --force"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("reset", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "profile path (default $AIRLOCK_CONFIG)")
			flags.BoolVar(&force, "force", false, "acknowledge that all unpromoted work will be destroyed")
			return flags
		},
		Run: func([]string) error {
			cfg, err := loadProfile(configPath)
			if err != nil {
				return err
			}
			return runReset(cfg, force)
		},
	}
}

func runReset(cfg *config.Config, force bool) error {
	if cfg.Mode == config.ModeUnsafe {
		return fmt.Errorf("environment %q runs in unsafe mode: there is no capture layer to reset", cfg.Environment)
	}
	if !force {
		return fmt.Errorf("reset destroys all unpromoted work in %q; rerun with --force if you mean it", cfg.Environment)
	}

	// Second confirmation: typing the environment name rules out a
	// --force reflex aimed at the wrong profile.
	reply, err := promptLine(fmt.Sprintf(
		"This permanently deletes all unpromoted work in %q.\nType the environment name to confirm: ",
		cfg.Environment))
	if err != nil {
		return fmt.Errorf("reading confirmation: %w", err)
	}
	if reply != cfg.Environment {
		fmt.Fprintln(os.Stderr, "Reset aborted: no changes made.")
		return nil
	}

	logger := cli.NewCommandLogger().With("command", "reset", "environment", cfg.Environment)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	runner := &remote.SSHRunner{Endpoint: endpointFor(cfg)}
	command := fmt.Sprintf("AIRLOCK_CONFIG=%s airlock mount reset --force",
		remote.ShellQuote(cfg.Host.RemoteConfig))
	output, err := runner.Run(ctx, command)
	if err != nil {
		return &cli.ExitError{Code: cli.ExitExtraction,
			Err: fmt.Errorf("resetting on execution host: %w", err)}
	}

	logger.Info("capture layer reset", "host", cfg.Host.Address)
	fmt.Print(output)
	return nil
}
