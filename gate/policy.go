// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"
)

// Severity classifies a finding as promotion-stopping or
// review-worthy.
type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityAdvisory Severity = "advisory"
)

// FindingKind names the check that produced a finding.
type FindingKind string

const (
	KindBlockedExtension    FindingKind = "blocked-extension"
	KindSecretMatch         FindingKind = "secret-match"
	KindOversizedFile       FindingKind = "oversized-file"
	KindBinaryContent       FindingKind = "binary-content"
	KindUnexpectedExtension FindingKind = "unexpected-extension"
	KindScannerUnavailable  FindingKind = "scanner-unavailable"
)

// DefaultOversizeThreshold is the advisory size limit for a single
// staged file.
const DefaultOversizeThreshold int64 = 10 << 20

// Policy configures the validation pipeline. Authored as a JSONC file
// so operators can annotate their choices.
type Policy struct {
	// BlockedExtensions are credential-shaped suffixes that always
	// block. Matching is case-insensitive against the full suffix, so
	// ".pem" matches "server.PEM".
	BlockedExtensions []string `json:"blocked_extensions"`

	// AllowedExtensions is the expected source-file set for the
	// allowlist advisory. Files with no extension are exempt.
	AllowedExtensions []string `json:"allowed_extensions"`

	// OversizeThreshold is the advisory byte limit per file; zero means
	// DefaultOversizeThreshold.
	OversizeThreshold int64 `json:"oversize_threshold"`

	// SeverityOverrides lets operators promote the advisory kinds
	// (oversized-file, binary-content, unexpected-extension) to
	// blocking. The credential kinds cannot be downgraded.
	SeverityOverrides map[FindingKind]Severity `json:"severity_overrides"`
}

// DefaultPolicy is the built-in policy used when no policy file is
// configured.
func DefaultPolicy() Policy {
	return Policy{
		BlockedExtensions: []string{
			".pem", ".key", ".p12", ".pfx", ".jks", ".keystore",
			".secret", ".secrets", ".credentials", ".env",
		},
		AllowedExtensions: []string{
			".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".java",
			".c", ".h", ".cc", ".cpp", ".hpp", ".rs", ".rb", ".sh",
			".md", ".txt", ".rst",
			".json", ".jsonc", ".yaml", ".yml", ".toml", ".ini",
			".html", ".css", ".sql", ".proto", ".tmpl",
		},
		OversizeThreshold: DefaultOversizeThreshold,
	}
}

// LoadPolicy reads a JSONC policy file. Fields left unset in the file
// keep their defaults.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("reading policy file: %w", err)
	}

	policy := DefaultPolicy()
	decoder := json.NewDecoder(strings.NewReader(string(jsonc.ToJSON(data))))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&policy); err != nil {
		return Policy{}, fmt.Errorf("parsing policy file %s: %w", path, err)
	}
	if err := policy.validate(); err != nil {
		return Policy{}, fmt.Errorf("policy file %s: %w", path, err)
	}
	return policy, nil
}

func (p Policy) validate() error {
	for kind, severity := range p.SeverityOverrides {
		switch kind {
		case KindOversizedFile, KindBinaryContent, KindUnexpectedExtension:
		case KindBlockedExtension, KindSecretMatch, KindScannerUnavailable:
			return fmt.Errorf("severity of %q is fixed and cannot be overridden", kind)
		default:
			return fmt.Errorf("unknown finding kind %q in severity_overrides", kind)
		}
		if severity != SeverityBlocking && severity != SeverityAdvisory {
			return fmt.Errorf("invalid severity %q for %q", severity, kind)
		}
	}
	if p.OversizeThreshold < 0 {
		return fmt.Errorf("oversize_threshold must not be negative")
	}
	return nil
}

// severityOf returns the effective severity for a finding kind after
// applying overrides. The credential kinds are always blocking and the
// scanner-unavailable notice is always advisory.
func (p Policy) severityOf(kind FindingKind) Severity {
	switch kind {
	case KindBlockedExtension, KindSecretMatch:
		return SeverityBlocking
	case KindScannerUnavailable:
		return SeverityAdvisory
	}
	if override, ok := p.SeverityOverrides[kind]; ok {
		return override
	}
	return SeverityAdvisory
}

// oversizeThreshold returns the effective per-file size limit.
func (p Policy) oversizeThreshold() int64 {
	if p.OversizeThreshold > 0 {
		return p.OversizeThreshold
	}
	return DefaultOversizeThreshold
}

// blocksExtension reports whether name ends in a blocked suffix.
func (p Policy) blocksExtension(name string) (string, bool) {
	lowered := strings.ToLower(name)
	for _, extension := range p.BlockedExtensions {
		if strings.HasSuffix(lowered, strings.ToLower(extension)) {
			return extension, true
		}
	}
	return "", false
}

// allowsExtension reports whether a file's extension is in the
// expected set. Extensionless files (Makefile, Dockerfile, shell
// profiles) are always allowed.
func (p Policy) allowsExtension(name string) bool {
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 {
		return true
	}
	extension := strings.ToLower(name[dot:])
	return slices.Contains(p.AllowedExtensions, extension)
}
