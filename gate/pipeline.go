// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/airlock-foundation/airlock/binding"
)

// ConfirmFunc asks the operator for a reply to prompt. It blocks
// indefinitely; declining is answering anything other than
// [AffirmativeToken], never a timeout.
type ConfirmFunc func(prompt string) (string, error)

// RunOptions selects the promotion mode for one pipeline invocation.
type RunOptions struct {
	// DryRun previews only: no confirmation, no trusted tree writes.
	DryRun bool

	// Auto promotes without confirmation after a passing verdict.
	// Intended for unattended callers; the full validation pipeline
	// still gates it.
	Auto bool
}

// Outcome summarizes one pipeline invocation for the caller and the
// run ledger.
type Outcome struct {
	// NothingToSync means the capture layer was empty; no other field
	// is set.
	NothingToSync bool

	// DryRun echoes the requested mode.
	DryRun bool

	Verdict *Verdict
	Listing *Listing

	// Result is set only when promotion ran.
	Result *PromoteResult
}

// Pipeline drives the gated sync protocol: extract, validate, preview,
// promote, strictly in that order, with the staging snapshot removed
// on every exit path and zero trusted tree writes before a passing
// verdict.
type Pipeline struct {
	// Environment names the environment being synced.
	Environment string

	// BindingPath locates the persisted source-to-destination binding.
	BindingPath string

	Extractor *Extractor
	Validator *Validator
	Promoter  *Promoter

	// Output receives the preview listing and findings.
	Output io.Writer

	// Confirm gathers interactive approval. Ignored in dry-run and
	// auto modes.
	Confirm ConfirmFunc

	Logger *slog.Logger
}

// Run executes one pipeline invocation. Error values follow the
// taxonomy: *ExtractionError, *ValidationBlocked,
// *DestinationUnknownError, and ErrConfirmationDeclined are all
// terminal to this invocation and never retried internally.
func (p *Pipeline) Run(ctx context.Context, options RunOptions) (*Outcome, error) {
	snapshot, err := p.Extractor.Extract(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		fmt.Fprintln(p.Output, "Nothing to sync: capture layer is empty.")
		return &Outcome{NothingToSync: true, DryRun: options.DryRun}, nil
	}
	defer func() {
		if err := snapshot.Remove(); err != nil {
			p.Logger.Warn("removing staging snapshot", "dir", snapshot.Dir, "error", err)
		}
	}()

	outcome := &Outcome{DryRun: options.DryRun}

	outcome.Verdict, err = p.Validator.Validate(ctx, snapshot.Dir)
	if err != nil {
		return nil, err
	}
	if !outcome.Verdict.Pass() {
		RenderFindings(p.Output, outcome.Verdict)
		return outcome, &ValidationBlocked{Findings: outcome.Verdict.Blocking()}
	}

	// Resolve the trusted tree before previewing so the listing can
	// classify collisions. A dry run tolerates a missing binding; a
	// real promotion must not guess.
	trustedTree, err := p.resolveDestination()
	if err != nil {
		if !options.DryRun {
			return outcome, err
		}
		p.Logger.Warn("no destination binding; dry-run preview without collision detection", "error", err)
		trustedTree = ""
	}

	outcome.Listing, err = BuildListing(snapshot.Dir, trustedTree)
	if err != nil {
		return outcome, err
	}
	RenderListing(p.Output, outcome.Listing)
	RenderFindings(p.Output, outcome.Verdict)

	if options.DryRun {
		fmt.Fprintln(p.Output, "Dry run: no changes promoted.")
		return outcome, nil
	}

	if !options.Auto {
		prompt := fmt.Sprintf("Promote %d file(s) to %s? Type %q to continue: ",
			outcome.Listing.NewCount(), trustedTree, AffirmativeToken)
		reply, err := p.Confirm(prompt)
		if err != nil {
			return outcome, fmt.Errorf("reading confirmation: %w", err)
		}
		if strings.TrimSpace(reply) != AffirmativeToken {
			fmt.Fprintln(p.Output, "Promotion declined: no changes made.")
			return outcome, ErrConfirmationDeclined
		}
	}

	outcome.Result, err = p.Promoter.Promote(snapshot.Dir, trustedTree)
	if err != nil {
		return outcome, err
	}
	fmt.Fprintf(p.Output, "Promoted %d file(s), skipped %d existing.\n",
		len(outcome.Result.Promoted), len(outcome.Result.Skipped))
	return outcome, nil
}

// resolveDestination reads the persisted binding. Any failure maps to
// *DestinationUnknownError: promotion never falls back to a guessed
// path.
func (p *Pipeline) resolveDestination() (string, error) {
	bound, err := binding.ReadFor(p.BindingPath, p.Environment)
	if err != nil {
		return "", &DestinationUnknownError{Environment: p.Environment, Err: err}
	}
	return bound.DestinationPath, nil
}
