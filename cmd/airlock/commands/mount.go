// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/airlock-foundation/airlock/binding"
	"github.com/airlock-foundation/airlock/cmd/airlock/cli"
	"github.com/airlock-foundation/airlock/lib/config"
	"github.com/airlock-foundation/airlock/overlay"
)

// newMountCommand builds the host-side mount subtree. These commands
// run on the execution host, where the overlay filesystem lives; the
// trusted-side commands reach them over ssh.
func newMountCommand() *cli.Command {
	return &cli.Command{
		Name:    "mount",
		Summary: "manage the merged view (runs on the execution host)",
		Subcommands: []*cli.Command{
			newMountEstablishCommand(),
			newMountTeardownCommand(),
			newMountResetCommand(),
			newMountStatusCommand(),
		},
	}
}

func layoutFor(cfg *config.Config) overlay.Layout {
	return overlay.Layout{
		Source:     cfg.Paths.Source,
		Capture:    cfg.Paths.Capture,
		Work:       cfg.Paths.Work,
		MountPoint: cfg.Paths.MountPoint,
	}
}

func newMountEstablishCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "establish",
		Summary: "create the copy-on-write merged view",
		Description: `Establish mounts the merged view: the source tree read-only below, the
capture layer writable above. In unsafe mode it bind-mounts the source
read-write instead, with no containment; that mode must be spelled out
in the profile and is never a fallback.

On success the source-to-destination binding is recorded for the
promote step.`,
		Usage: "airlock mount establish [--config <path>]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("establish", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "profile path (default $AIRLOCK_CONFIG)")
			return flags
		},
		Run: func([]string) error {
			cfg, err := loadProfile(configPath)
			if err != nil {
				return err
			}

			if cfg.Mode == config.ModeUnsafe {
				if err := overlay.EstablishUnsafe(cfg.Paths.Source, cfg.Paths.MountPoint); err != nil {
					return err
				}
				fmt.Printf("UNSAFE: %s mounted read-write at %s with no containment\n",
					cfg.Paths.Source, cfg.Paths.MountPoint)
				return nil
			}

			manager, err := overlay.NewManager()
			if err != nil {
				return err
			}
			if err := manager.Establish(layoutFor(cfg)); err != nil {
				return err
			}
			fmt.Printf("Merged view established at %s\n", cfg.Paths.MountPoint)

			return recordBinding(cfg)
		},
	}
}

// recordBinding persists the environment's promotion destination at
// establish time, so promote never has to guess it later.
func recordBinding(cfg *config.Config) error {
	if cfg.Paths.BindingFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.BindingFile), 0o700); err != nil {
		return fmt.Errorf("creating binding directory: %w", err)
	}
	return binding.Write(cfg.Paths.BindingFile, binding.Binding{
		Environment:     cfg.Environment,
		SourcePath:      cfg.Paths.Source,
		DestinationPath: cfg.Paths.Source,
		EstablishedAt:   time.Now().UTC(),
	})
}

func newMountTeardownCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "teardown",
		Summary: "unmount the merged view, keeping the capture layer",
		Description: `Teardown unmounts the merged view. The capture layer is left intact:
unpromoted work survives a stop and restart of the execution host.`,
		Usage: "airlock mount teardown [--config <path>]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("teardown", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "profile path (default $AIRLOCK_CONFIG)")
			return flags
		},
		Run: func([]string) error {
			cfg, err := loadProfile(configPath)
			if err != nil {
				return err
			}
			manager, err := overlay.NewManager()
			if err != nil {
				return err
			}
			if err := manager.Teardown(cfg.Paths.MountPoint); err != nil {
				return err
			}
			fmt.Printf("Merged view at %s unmounted; capture layer preserved\n", cfg.Paths.MountPoint)
			return nil
		},
	}
}

func newMountResetCommand() *cli.Command {
	var configPath string
	var force bool

	return &cli.Command{
		Name:    "reset",
		Summary: "destroy the capture layer and re-establish an empty view",
		Description: `Reset unmounts, deletes everything in the capture and work
directories, and re-establishes an empty merged view. All unpromoted
work is lost permanently. Requires --force; the interactive
double-confirmation lives in the trusted-side 'airlock reset' command
that invokes this one.`,
		Usage: "airlock mount reset --force [--config <path>]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("reset", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "profile path (default $AIRLOCK_CONFIG)")
			flags.BoolVar(&force, "force", false, "confirm destruction of all unpromoted work")
			return flags
		},
		Run: func([]string) error {
			if !force {
				return fmt.Errorf("mount reset destroys all unpromoted work; pass --force to proceed")
			}
			cfg, err := loadProfile(configPath)
			if err != nil {
				return err
			}
			manager, err := overlay.NewManager()
			if err != nil {
				return err
			}
			if err := manager.Reset(layoutFor(cfg)); err != nil {
				return err
			}
			fmt.Printf("Capture layer cleared; empty merged view re-established at %s\n", cfg.Paths.MountPoint)
			return nil
		},
	}
}

func newMountStatusCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "status",
		Summary: "report mount and capture-layer state locally",
		Usage:   "airlock mount status [--config <path>]",
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
			manager, err := overlay.NewManager()
			if err != nil {
				return err
			}

			mounted, err := manager.Mounted(cfg.Paths.MountPoint)
			if err != nil {
				return err
			}
			if mounted {
				fmt.Printf("Merged view:  mounted at %s\n", cfg.Paths.MountPoint)
			} else {
				fmt.Printf("Merged view:  not mounted at %s\n", cfg.Paths.MountPoint)
			}

			fileCount, totalBytes, err := overlay.CaptureStats(cfg.Paths.Capture)
			if err != nil {
				return err
			}
			fmt.Printf("Capture:      %d file(s), %s\n", fileCount, humanize.IBytes(uint64(totalBytes)))
			return nil
		},
	}
}
