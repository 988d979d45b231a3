// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// Exit codes for the sync surface. Scripts branch on these, so they
// are stable: 0 covers success including no-op and dry-run, 2 means
// the operator must remediate flagged files, 3 means the execution
// host was unreachable and a plain retry may work.
const (
	ExitSuccess           = 0
	ExitFailure           = 1
	ExitValidationBlocked = 2
	ExitExtraction        = 3
)

// ExitError carries a specific exit code out of a command handler.
// The binary's main checks for the ExitCode interface and exits with
// the code after printing the message (unless Quiet is set, for
// handlers that already wrote their own output).
type ExitError struct {
	Code  int
	Err   error
	Quiet bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the process exit code for this error.
func (e *ExitError) ExitCode() int { return e.Code }
