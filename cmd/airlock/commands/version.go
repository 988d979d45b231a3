// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/airlock-foundation/airlock/cmd/airlock/cli"
	"github.com/airlock-foundation/airlock/lib/version"
)

func newVersionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "print the airlock version",
		Run: func([]string) error {
			fmt.Println(version.Full())
			return nil
		},
	}
}
