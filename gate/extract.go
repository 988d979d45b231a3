// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/airlock-foundation/airlock/remote"
)

// StagingSnapshot is a host-local copy of the capture layer, owned by
// exactly one pipeline invocation and removed on every exit path.
type StagingSnapshot struct {
	// Dir is the snapshot root, a uniquely named directory created
	// fresh for this run.
	Dir string

	// FileCount is the number of regular files in the snapshot.
	FileCount int

	// TotalBytes is the summed size of those files.
	TotalBytes int64
}

// Remove deletes the snapshot directory. Idempotent.
func (s *StagingSnapshot) Remove() error {
	if s == nil || s.Dir == "" {
		return nil
	}
	return os.RemoveAll(s.Dir)
}

// Extractor pulls the capture layer's current contents off the
// execution host into a staging snapshot.
type Extractor struct {
	// Runner counts remote files for the nothing-to-sync check.
	Runner remote.Runner

	// Copier mirrors the capture layer locally, deletions included.
	Copier remote.Copier

	// Host names the execution host for error reporting.
	Host string

	// CaptureDir is the capture layer path on the execution host.
	CaptureDir string

	// WorkDir is the local parent under which staging directories are
	// created.
	WorkDir string

	Logger *slog.Logger
}

// Extract copies the capture layer to a fresh staging directory. A nil
// snapshot with a nil error means the capture layer is empty and there
// is nothing to sync. Connectivity failures return *ExtractionError
// and leave no staging directory behind.
func (e *Extractor) Extract(ctx context.Context) (*StagingSnapshot, error) {
	count, err := remote.CountFiles(ctx, e.Runner, e.CaptureDir)
	if err != nil {
		return nil, &ExtractionError{Host: e.Host, Err: err}
	}
	if count == 0 {
		e.Logger.Info("capture layer is empty, nothing to sync")
		return nil, nil
	}

	if err := os.MkdirAll(e.WorkDir, 0o700); err != nil {
		return nil, &ExtractionError{Host: e.Host, Err: fmt.Errorf("creating work directory: %w", err)}
	}
	stagingDir, err := os.MkdirTemp(e.WorkDir, "staging-")
	if err != nil {
		return nil, &ExtractionError{Host: e.Host, Err: fmt.Errorf("creating staging directory: %w", err)}
	}

	if err := e.Copier.MirrorToLocal(ctx, e.CaptureDir, stagingDir); err != nil {
		os.RemoveAll(stagingDir)
		return nil, &ExtractionError{Host: e.Host, Err: err}
	}

	snapshot := &StagingSnapshot{Dir: stagingDir}
	if err := snapshot.measure(); err != nil {
		snapshot.Remove()
		return nil, &ExtractionError{Host: e.Host, Err: err}
	}

	e.Logger.Info("extracted capture layer",
		"files", snapshot.FileCount,
		"bytes", snapshot.TotalBytes,
		"staging", stagingDir)
	return snapshot, nil
}

// measure walks the snapshot filling in FileCount and TotalBytes.
func (s *StagingSnapshot) measure() error {
	return filepath.WalkDir(s.Dir, func(path string, entry fs.DirEntry, err error) error {
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
		s.FileCount++
		s.TotalBytes += info.Size()
		return nil
	})
}
