// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package scan defines the secret-scanning oracle used by the
// validation pipeline, with a gitleaks-backed production
// implementation.
//
// The scanner is an opaque oracle: the pipeline hands it a directory
// and receives findings. Scanner absence is a first-class condition
// ([ErrScannerUnavailable]) that the pipeline reports as a distinct
// advisory: a missing scanner must never be mistaken for a clean
// scan.
package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Finding is one secret match reported by a scanner. The matched
// secret itself is deliberately not carried: findings travel into
// logs and terminal output.
type Finding struct {
	// File is the matched file, relative to the scanned directory.
	File string

	// RuleID names the scanner rule that matched (e.g.
	// "aws-access-token").
	RuleID string

	// Description is the rule's human-readable description.
	Description string

	// StartLine is the first matched line, 1-based. Zero when the
	// scanner does not report line numbers.
	StartLine int
}

// ErrScannerUnavailable reports that the scanning engine could not be
// invoked at all. Distinct from a clean scan: the caller degrades to
// an advisory warning instead of treating the directory as verified.
var ErrScannerUnavailable = errors.New("secret scanner unavailable")

// Scanner is the secret-scanning oracle. Implementations scan the
// directory tree and return every match. An empty slice with a nil
// error means the scan ran and found nothing.
type Scanner interface {
	Scan(ctx context.Context, directory string) ([]Finding, error)
}

// Gitleaks runs the gitleaks binary in directory-scan mode.
type Gitleaks struct {
	// Binary is the gitleaks executable name or path. Empty means
	// "gitleaks" resolved via PATH.
	Binary string
}

// Scan runs `gitleaks detect --no-git` over directory and parses the
// JSON report. Returns ErrScannerUnavailable (wrapped) when the
// binary cannot be found.
func (g *Gitleaks) Scan(ctx context.Context, directory string) ([]Finding, error) {
	binary := g.Binary
	if binary == "" {
		binary = "gitleaks"
	}

	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScannerUnavailable, err)
	}

	reportPath := filepath.Join(os.TempDir(), fmt.Sprintf("airlock-gitleaks-%d.json", os.Getpid()))
	defer os.Remove(reportPath)

	command := exec.CommandContext(ctx, resolved,
		"detect",
		"--no-git",
		"--source", directory,
		"--report-format", "json",
		"--report-path", reportPath,
		"--no-banner",
		"--exit-code", "99",
	)
	output, err := command.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		// Exit 99 is the leak sentinel requested above; anything else
		// is a real invocation failure.
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 99 {
			return nil, fmt.Errorf("scan: gitleaks failed: %w\noutput: %s", err, string(output))
		}
	}

	report, err := os.ReadFile(reportPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Old gitleaks versions write no report on a clean scan.
			return nil, nil
		}
		return nil, fmt.Errorf("scan: reading gitleaks report: %w", err)
	}

	findings, err := parseGitleaksReport(report, directory)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return findings, nil
}

// gitleaksFinding is the subset of gitleaks' JSON report entries we
// consume.
type gitleaksFinding struct {
	File        string `json:"File"`
	RuleID      string `json:"RuleID"`
	Description string `json:"Description"`
	StartLine   int    `json:"StartLine"`
}

// parseGitleaksReport converts a gitleaks JSON report into findings
// with paths relative to the scanned directory.
func parseGitleaksReport(report []byte, directory string) ([]Finding, error) {
	var raw []gitleaksFinding
	if err := json.Unmarshal(report, &raw); err != nil {
		return nil, fmt.Errorf("parsing gitleaks report: %w", err)
	}

	findings := make([]Finding, 0, len(raw))
	for _, entry := range raw {
		file := entry.File
		if filepath.IsAbs(file) {
			if relative, err := filepath.Rel(directory, file); err == nil {
				file = relative
			}
		}
		findings = append(findings, Finding{
			File:        filepath.ToSlash(file),
			RuleID:      entry.RuleID,
			Description: entry.Description,
			StartLine:   entry.StartLine,
		})
	}
	return findings, nil
}
