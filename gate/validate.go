// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/airlock-foundation/airlock/scan"
)

// Finding is one validation result against a staged file.
type Finding struct {
	Kind     FindingKind
	Severity Severity

	// File is the path relative to the staging root. Empty for
	// findings about the pipeline itself (scanner-unavailable).
	File string

	// Detail names the specific rule and evidence, so output is never
	// a generic "validation failed".
	Detail string
}

// Verdict aggregates every finding from one validation run.
type Verdict struct {
	Findings []Finding
}

// Pass reports whether promotion may proceed: zero blocking findings.
func (v *Verdict) Pass() bool {
	return len(v.Blocking()) == 0
}

// Blocking returns the promotion-stopping findings.
func (v *Verdict) Blocking() []Finding {
	return v.withSeverity(SeverityBlocking)
}

// Advisories returns the review-only findings.
func (v *Verdict) Advisories() []Finding {
	return v.withSeverity(SeverityAdvisory)
}

func (v *Verdict) withSeverity(severity Severity) []Finding {
	var matched []Finding
	for _, finding := range v.Findings {
		if finding.Severity == severity {
			matched = append(matched, finding)
		}
	}
	return matched
}

// Validator runs the ordered checks over a staging snapshot. Checks
// aggregate rather than short-circuit so a single run reports every
// problem.
type Validator struct {
	Policy  Policy
	Scanner scan.Scanner
	Logger  *slog.Logger
}

// stagedFile is one regular file discovered in the snapshot.
type stagedFile struct {
	relative string
	absolute string
	size     int64
}

// Validate inspects every file in the staging directory and returns
// the aggregated verdict. Only scanner invocation failures other than
// unavailability are returned as errors; rule matches are findings.
func (v *Validator) Validate(ctx context.Context, stagingDir string) (*Verdict, error) {
	files, err := enumerateFiles(stagingDir)
	if err != nil {
		return nil, fmt.Errorf("enumerating staging snapshot: %w", err)
	}

	verdict := &Verdict{}
	v.checkBlockedExtensions(verdict, files)
	if err := v.checkSecrets(ctx, verdict, stagingDir); err != nil {
		return nil, err
	}
	v.checkOversized(verdict, files)
	v.checkBinaryContent(verdict, files)
	v.checkAllowlist(verdict, files)

	sort.SliceStable(verdict.Findings, func(i, j int) bool {
		if verdict.Findings[i].File != verdict.Findings[j].File {
			return verdict.Findings[i].File < verdict.Findings[j].File
		}
		return verdict.Findings[i].Kind < verdict.Findings[j].Kind
	})

	v.Logger.Info("validation complete",
		"files", len(files),
		"blocking", len(verdict.Blocking()),
		"advisory", len(verdict.Advisories()))
	return verdict, nil
}

func enumerateFiles(root string) ([]stagedFile, error) {
	var files []stagedFile
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, stagedFile{
			relative: filepath.ToSlash(relative),
			absolute: path,
			size:     info.Size(),
		})
		return nil
	})
	return files, err
}

func (v *Validator) checkBlockedExtensions(verdict *Verdict, files []stagedFile) {
	for _, file := range files {
		if extension, blocked := v.Policy.blocksExtension(file.relative); blocked {
			verdict.Findings = append(verdict.Findings, Finding{
				Kind:     KindBlockedExtension,
				Severity: v.Policy.severityOf(KindBlockedExtension),
				File:     file.relative,
				Detail:   fmt.Sprintf("credential-shaped extension %q is blocked", extension),
			})
		}
	}
}

func (v *Validator) checkSecrets(ctx context.Context, verdict *Verdict, stagingDir string) error {
	findings, err := v.Scanner.Scan(ctx, stagingDir)
	if err != nil {
		if errors.Is(err, scan.ErrScannerUnavailable) {
			// A missing scanner is not a clean scan. Surface the gap as
			// its own advisory so the operator sees the difference.
			v.Logger.Warn("secret scanner unavailable, content scan skipped", "error", err)
			verdict.Findings = append(verdict.Findings, Finding{
				Kind:     KindScannerUnavailable,
				Severity: v.Policy.severityOf(KindScannerUnavailable),
				Detail:   "secret scanner unavailable; staged content was NOT scanned",
			})
			return nil
		}
		return fmt.Errorf("secret scan: %w", err)
	}
	for _, finding := range findings {
		verdict.Findings = append(verdict.Findings, Finding{
			Kind:     KindSecretMatch,
			Severity: v.Policy.severityOf(KindSecretMatch),
			File:     finding.File,
			Detail:   fmt.Sprintf("secret match %s (%s) at line %d", finding.RuleID, finding.Description, finding.StartLine),
		})
	}
	return nil
}

func (v *Validator) checkOversized(verdict *Verdict, files []stagedFile) {
	threshold := v.Policy.oversizeThreshold()
	for _, file := range files {
		if file.size > threshold {
			verdict.Findings = append(verdict.Findings, Finding{
				Kind:     KindOversizedFile,
				Severity: v.Policy.severityOf(KindOversizedFile),
				File:     file.relative,
				Detail: fmt.Sprintf("file is %s, over the %s threshold",
					humanize.IBytes(uint64(file.size)), humanize.IBytes(uint64(threshold))),
			})
		}
	}
}

func (v *Validator) checkBinaryContent(verdict *Verdict, files []stagedFile) {
	for _, file := range files {
		format, err := executableFormat(file.absolute)
		if err != nil {
			v.Logger.Warn("binary heuristic could not read file", "file", file.relative, "error", err)
			continue
		}
		if format != "" {
			verdict.Findings = append(verdict.Findings, Finding{
				Kind:     KindBinaryContent,
				Severity: v.Policy.severityOf(KindBinaryContent),
				File:     file.relative,
				Detail:   fmt.Sprintf("content signature indicates a %s binary", format),
			})
		}
	}
}

func (v *Validator) checkAllowlist(verdict *Verdict, files []stagedFile) {
	for _, file := range files {
		name := filepath.Base(file.relative)
		if v.Policy.allowsExtension(name) {
			continue
		}
		verdict.Findings = append(verdict.Findings, Finding{
			Kind:     KindUnexpectedExtension,
			Severity: v.Policy.severityOf(KindUnexpectedExtension),
			File:     file.relative,
			Detail:   fmt.Sprintf("extension %q is outside the expected source set", filepath.Ext(name)),
		})
	}
}

// Magic numbers for native executable and shared-object formats.
var (
	elfMagic       = []byte{0x7f, 'E', 'L', 'F'}
	machO32Magic   = []byte{0xfe, 0xed, 0xfa, 0xce}
	machO64Magic   = []byte{0xfe, 0xed, 0xfa, 0xcf}
	machO32Swapped = []byte{0xce, 0xfa, 0xed, 0xfe}
	machO64Swapped = []byte{0xcf, 0xfa, 0xed, 0xfe}
	machOFatMagic  = []byte{0xca, 0xfe, 0xba, 0xbe}
	peMagic        = []byte{'M', 'Z'}
)

// executableFormat sniffs the first bytes of a file and names the
// native binary format, or returns "" for anything else.
func executableFormat(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	header := make([]byte, 4)
	read, err := io.ReadFull(file, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		if err == io.EOF {
			return "", nil
		}
		return "", err
	}
	header = header[:read]

	switch {
	case bytes.HasPrefix(header, elfMagic):
		return "ELF", nil
	case bytes.HasPrefix(header, machO32Magic), bytes.HasPrefix(header, machO64Magic),
		bytes.HasPrefix(header, machO32Swapped), bytes.HasPrefix(header, machO64Swapped),
		bytes.HasPrefix(header, machOFatMagic):
		return "Mach-O", nil
	case bytes.HasPrefix(header, peMagic):
		return "PE", nil
	}
	return "", nil
}
