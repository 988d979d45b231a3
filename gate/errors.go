// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"errors"
	"fmt"
	"strings"
)

// ExtractionError reports a failure to pull the capture layer off the
// execution host. Transient by nature: the caller may re-run the whole
// pipeline, and no partial staging snapshot survives it.
type ExtractionError struct {
	Host string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting capture layer from %s: %v", e.Host, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ValidationBlocked reports that one or more blocking findings stopped
// promotion. Every blocking finding is carried, not just the first, so
// one remediation pass can fix everything.
type ValidationBlocked struct {
	Findings []Finding
}

func (e *ValidationBlocked) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "validation blocked promotion (%d finding", len(e.Findings))
	if len(e.Findings) != 1 {
		b.WriteString("s")
	}
	b.WriteString(")")
	for _, finding := range e.Findings {
		fmt.Fprintf(&b, "\n  %s: %s", finding.File, finding.Detail)
	}
	return b.String()
}

// DestinationUnknownError reports that the trusted tree's location
// could not be determined for an environment. Promotion writes nothing
// in this state; the mount binding must be re-established first.
type DestinationUnknownError struct {
	Environment string
	Err         error
}

func (e *DestinationUnknownError) Error() string {
	return fmt.Sprintf("no destination binding for environment %q: %v", e.Environment, e.Err)
}

func (e *DestinationUnknownError) Unwrap() error { return e.Err }

// ErrConfirmationDeclined is the explicit no-op abort: the operator
// answered anything other than the affirmative token. It travels as an
// error to stop the pipeline, but callers report it as a clean exit,
// not a failure.
var ErrConfirmationDeclined = errors.New("promotion declined by operator")
