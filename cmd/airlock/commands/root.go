// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the airlock command tree.
//
// The sync, status, and reset commands run on the trusted side and
// reach the execution host over ssh. The mount subcommands run on the
// execution host itself, where the overlay lives.
package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/airlock-foundation/airlock/cmd/airlock/cli"
	"github.com/airlock-foundation/airlock/lib/config"
	"github.com/airlock-foundation/airlock/remote"
)

// Root builds the full airlock command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "airlock",
		Summary: "gated promotion for contained agent environments",
		Description: `Airlock runs autonomous agents against a copy-on-write view of a
host tree. Nothing reaches the host except through the gated sync
pipeline: extract, validate, preview, promote.`,
		Subcommands: []*cli.Command{
			newSyncCommand(),
			newStatusCommand(),
			newResetCommand(),
			newMountCommand(),
			newVersionCommand(),
		},
	}
}

// loadProfile resolves the environment profile: an explicit --config
// path wins, otherwise AIRLOCK_CONFIG names the file.
func loadProfile(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// endpointFor builds the ssh endpoint from a profile.
func endpointFor(cfg *config.Config) remote.Endpoint {
	return remote.Endpoint{
		Address:        cfg.Host.Address,
		Port:           cfg.Host.Port,
		User:           cfg.Host.User,
		IdentityFile:   cfg.Host.IdentityFile,
		KnownHostsFile: cfg.Host.KnownHostsFile,
	}
}

// promptLine writes prompt to stderr and reads one trimmed line from
// stdin. EOF yields an empty reply, which every caller treats as a
// decline.
func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
