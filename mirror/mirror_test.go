// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/airlock-foundation/airlock/lib/clock"
	"github.com/airlock-foundation/airlock/lib/testutil"
)

// recordingMirrorer delivers each pass on a channel so the test can
// observe scheduling deterministically.
type recordingMirrorer struct {
	calls chan string
	fail  chan error
}

func newRecordingMirrorer() *recordingMirrorer {
	return &recordingMirrorer{
		calls: make(chan string),
		fail:  make(chan error, 1),
	}
}

func (m *recordingMirrorer) Mirror(_ context.Context, sourceDir, _ string) error {
	m.calls <- sourceDir
	select {
	case err := <-m.fail:
		return err
	default:
		return nil
	}
}

func startService(t *testing.T, fakeClock *clock.FakeClock, mirrorer Mirrorer) (*Service, context.CancelFunc, chan error) {
	t.Helper()
	service := &Service{
		CaptureDir:   "/env/capture",
		TrustedTree:  "/host/project",
		Interval:     30 * time.Second,
		InitialDelay: 60 * time.Second,
		Mirrorer:     mirrorer,
		Clock:        fakeClock,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()
	return service, cancel, done
}

func TestServiceWaitsForInitialDelay(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	mirrorer := newRecordingMirrorer()
	_, cancel, _ := startService(t, fakeClock, mirrorer)
	defer cancel()

	fakeClock.WaitForTimers(1)

	// Short of the initial delay: no pass yet.
	fakeClock.Advance(59 * time.Second)
	select {
	case <-mirrorer.calls:
		t.Fatal("mirror pass ran before the initial delay elapsed")
	default:
	}

	fakeClock.Advance(1 * time.Second)
	source := testutil.RequireReceive(t, mirrorer.calls, time.Second, "first pass after initial delay")
	if source != "/env/capture" {
		t.Errorf("mirrored from %q, want the capture layer", source)
	}
}

func TestServiceTicksOnInterval(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	mirrorer := newRecordingMirrorer()
	_, cancel, _ := startService(t, fakeClock, mirrorer)
	defer cancel()

	fakeClock.WaitForTimers(1)
	fakeClock.Advance(60 * time.Second)
	testutil.RequireReceive(t, mirrorer.calls, time.Second, "initial pass")

	// The ticker registers after the first pass completes.
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(30 * time.Second)
	testutil.RequireReceive(t, mirrorer.calls, time.Second, "second pass on first tick")

	fakeClock.Advance(30 * time.Second)
	testutil.RequireReceive(t, mirrorer.calls, time.Second, "third pass on second tick")
}

func TestServiceSurvivesFailedPass(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	mirrorer := newRecordingMirrorer()
	_, cancel, _ := startService(t, fakeClock, mirrorer)
	defer cancel()

	fakeClock.WaitForTimers(1)
	mirrorer.fail <- errors.New("rsync: broken pipe")
	fakeClock.Advance(60 * time.Second)
	testutil.RequireReceive(t, mirrorer.calls, time.Second, "failing pass still attempted")

	// The schedule continues after a failure.
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(30 * time.Second)
	testutil.RequireReceive(t, mirrorer.calls, time.Second, "pass after a failure")
}

func TestServiceStopsOnCancel(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	mirrorer := newRecordingMirrorer()
	_, cancel, done := startService(t, fakeClock, mirrorer)

	fakeClock.WaitForTimers(1)
	cancel()

	err := testutil.RequireReceive(t, done, time.Second, "Run returns on cancellation")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}
