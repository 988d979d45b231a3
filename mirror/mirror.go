// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package mirror is the timed auto-promotion service: a knowingly
// weaker alternative to the gated pipeline that reflects the capture
// layer onto the trusted tree on a fixed interval with no validation
// and no preview.
//
// It runs inside the execution host, where both the capture layer and
// the trusted tree mount are local paths. Mode configuration makes it
// mutually exclusive with the gated pipeline: the two must never race
// on one trusted tree.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/airlock-foundation/airlock/lib/clock"
)

// DefaultInterval is the tick period between mirror passes.
const DefaultInterval = 30 * time.Second

// DefaultInitialDelay lets the environment settle after startup before
// the first pass.
const DefaultInitialDelay = 60 * time.Second

// Mirrorer performs one unconditional mirrored copy, deletions
// included, from sourceDir onto destinationDir.
type Mirrorer interface {
	Mirror(ctx context.Context, sourceDir, destinationDir string) error
}

// RsyncMirror shells out to rsync --archive --delete between two local
// directories.
type RsyncMirror struct {
	// Binary is the rsync executable; empty means "rsync" via PATH.
	Binary string
}

// Mirror makes destinationDir an exact copy of sourceDir.
func (m *RsyncMirror) Mirror(ctx context.Context, sourceDir, destinationDir string) error {
	binary := m.Binary
	if binary == "" {
		binary = "rsync"
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return fmt.Errorf("mirror: rsync not found: %w", err)
	}

	command := exec.CommandContext(ctx, resolved,
		"--archive",
		"--delete",
		sourceDir+"/",
		destinationDir+"/",
	)
	output, err := command.CombinedOutput()
	if err != nil {
		return fmt.Errorf("mirror: rsync %s -> %s: %w\noutput: %s",
			sourceDir, destinationDir, err, string(output))
	}
	return nil
}

// Service runs mirror passes on a fixed schedule until its context is
// cancelled.
type Service struct {
	// CaptureDir is the capture layer path.
	CaptureDir string

	// TrustedTree is the host tree mount the capture layer is mirrored
	// onto.
	TrustedTree string

	// Interval between passes; zero means DefaultInterval.
	Interval time.Duration

	// InitialDelay before the first pass; zero means
	// DefaultInitialDelay.
	InitialDelay time.Duration

	Mirrorer Mirrorer
	Clock    clock.Clock
	Logger   *slog.Logger

	// passes counts completed mirror attempts, for tests and status.
	passes int
}

// Run blocks, mirroring on every tick, until ctx is cancelled. A
// failed pass is logged and the schedule continues: transient rsync
// failures must not kill the service. Returns ctx.Err() on
// cancellation.
func (s *Service) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	initialDelay := s.InitialDelay
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}

	s.Logger.Info("auto-promotion service starting",
		"interval", interval,
		"initial_delay", initialDelay,
		"capture", s.CaptureDir,
		"trusted", s.TrustedTree)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.Clock.After(initialDelay):
	}
	s.pass(ctx)

	ticker := s.Clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("auto-promotion service stopping", "passes", s.passes)
			return ctx.Err()
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *Service) pass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.passes++
	if err := s.Mirrorer.Mirror(ctx, s.CaptureDir, s.TrustedTree); err != nil {
		s.Logger.Error("mirror pass failed", "pass", s.passes, "error", err)
		return
	}
	s.Logger.Debug("mirror pass complete", "pass", s.passes)
}
