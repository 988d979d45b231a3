// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// AffirmativeToken is the exact interactive reply that authorizes
// promotion. Anything else declines.
const AffirmativeToken = "yes"

// PromoteResult records what one promotion wrote and what it skipped.
type PromoteResult struct {
	// Promoted lists the relative paths written into the trusted tree.
	Promoted []string

	// Skipped lists the relative paths left alone because the trusted
	// tree already had a file there.
	Skipped []string
}

// Promoter merges a staging snapshot into the trusted tree under the
// only-new-files policy: a path collision is a skip, never an
// overwrite and never an error. The gate exists to bring new agent
// work to the host, not to replace host-authored content.
type Promoter struct {
	Logger *slog.Logger
}

// Promote copies every staged file whose destination path is free into
// trustedTree, preserving the relative layout. Directories are created
// as needed. The staging snapshot is not modified.
func (p *Promoter) Promote(stagingDir, trustedTree string) (*PromoteResult, error) {
	if trustedTree == "" {
		return nil, fmt.Errorf("promote: empty trusted tree path")
	}
	if _, err := os.Stat(trustedTree); err != nil {
		return nil, fmt.Errorf("promote: trusted tree %s: %w", trustedTree, err)
	}

	files, err := enumerateFiles(stagingDir)
	if err != nil {
		return nil, fmt.Errorf("promote: enumerating staging snapshot: %w", err)
	}

	result := &PromoteResult{}
	for _, file := range files {
		destination := filepath.Join(trustedTree, filepath.FromSlash(file.relative))
		if _, err := os.Lstat(destination); err == nil {
			result.Skipped = append(result.Skipped, file.relative)
			continue
		} else if !os.IsNotExist(err) {
			return result, fmt.Errorf("promote: checking %s: %w", destination, err)
		}

		if err := copyFile(file.absolute, destination); err != nil {
			return result, fmt.Errorf("promote: writing %s: %w", file.relative, err)
		}
		result.Promoted = append(result.Promoted, file.relative)
	}

	p.Logger.Info("promotion complete",
		"promoted", len(result.Promoted),
		"skipped", len(result.Skipped),
		"destination", trustedTree)
	return result, nil
}

// copyFile writes source's content to destination via a temporary file
// in the destination directory, fsyncs, and renames, so a crash never
// leaves a half-written file in the trusted tree.
func copyFile(source, destination string) error {
	info, err := os.Stat(source)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return err
	}

	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(destination), ".airlock-promote-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(info.Mode().Perm() & fs.ModePerm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, destination)
}
