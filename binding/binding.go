// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package binding persists the mapping from an environment's source
// tree to its promotion destination (the trusted tree).
//
// The binding is recorded once, at mount-establish time, and read back
// by the promote step. Promotion never guesses its destination: when
// no binding exists, promotion fails with a destination-unknown error
// and writes nothing. This replaces the fragile alternative of parsing
// the destination out of mount configuration at promotion time.
//
// The binding file is written atomically (temporary file, fsync,
// rename) so readers never observe a partial record.
package binding

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Binding maps an environment's source tree to the trusted tree that
// promotions write into. For the common case the two are the same host
// directory: the source is mounted read-only into the merged view, and
// validated changes are promoted back to it.
type Binding struct {
	// Environment is the environment name the binding belongs to.
	// Read back and checked so a stale binding from a different
	// environment is never used.
	Environment string `json:"environment"`

	// SourcePath is the host directory the overlay's lower layer was
	// bound from.
	SourcePath string `json:"source_path"`

	// DestinationPath is the trusted tree promotions write into.
	DestinationPath string `json:"destination_path"`

	// EstablishedAt is when the mount was established and the binding
	// recorded.
	EstablishedAt time.Time `json:"established_at"`
}

// Write atomically records a binding. The file is written to a
// temporary path in the same directory, fsynced, and renamed into
// place with mode 0600. The parent directory must exist.
func Write(path string, b Binding) error {
	if b.Environment == "" {
		return fmt.Errorf("binding: environment is required")
	}
	if b.SourcePath == "" || b.DestinationPath == "" {
		return fmt.Errorf("binding: source and destination paths are required")
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("binding: marshaling: %w", err)
	}
	data = append(data, '\n')

	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("binding: creating temporary file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("binding: writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("binding: syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("binding: closing temporary file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("binding: renaming into place: %w", err)
	}

	// Sync the parent directory so the rename survives power loss.
	if parent, err := os.Open(filepath.Dir(path)); err == nil {
		parent.Sync()
		parent.Close()
	}

	return nil
}

// Read loads a binding file. When the file does not exist, the error
// wraps os.ErrNotExist (testable with errors.Is), which callers map to
// their destination-unknown error.
func Read(path string) (Binding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Binding{}, err
	}

	var b Binding
	if err := json.Unmarshal(data, &b); err != nil {
		return Binding{}, fmt.Errorf("binding: parsing %s: %w", path, err)
	}
	if b.DestinationPath == "" {
		return Binding{}, fmt.Errorf("binding: %s has no destination path", path)
	}
	return b, nil
}

// ReadFor loads a binding and verifies it belongs to the named
// environment. A mismatch is an error: promoting with another
// environment's binding would write into the wrong trusted tree.
func ReadFor(path, environment string) (Binding, error) {
	b, err := Read(path)
	if err != nil {
		return Binding{}, err
	}
	if b.Environment != environment {
		return Binding{}, fmt.Errorf("binding: %s belongs to environment %q, not %q",
			path, b.Environment, environment)
	}
	return b, nil
}

// Clear removes a binding file. Idempotent: returns nil when the file
// does not exist.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("binding: removing %s: %w", path, err)
	}
	return nil
}
