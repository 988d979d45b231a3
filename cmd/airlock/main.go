// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Command airlock is the operator CLI for contained agent
// environments: gated sync, status, reset, and host-side mount
// management.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/airlock-foundation/airlock/cmd/airlock/cli"
	"github.com/airlock-foundation/airlock/cmd/airlock/commands"
)

func main() {
	err := commands.Root().Execute(os.Args[1:])
	if err == nil {
		return
	}

	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		if !exitErr.Quiet {
			fmt.Fprintf(os.Stderr, "airlock: %v\n", err)
		}
		os.Exit(exitErr.ExitCode())
	}

	fmt.Fprintf(os.Stderr, "airlock: %v\n", err)
	os.Exit(cli.ExitFailure)
}
