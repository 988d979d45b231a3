// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/airlock-foundation/airlock/lib/testutil"
)

func TestValidateLayerPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"clean", "/var/lib/airlock/capture", ""},
		{"empty", "", "is empty"},
		{"comma_injection", "/tmp,upperdir=/etc", "contains comma"},
		{"null_byte", "/tmp/bad\x00path", "invalid characters"},
		{"newline", "/tmp/bad\npath", "invalid characters"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := validateLayerPath(test.path, "capture")
			if test.wantErr == "" {
				if err != nil {
					t.Errorf("validateLayerPath(%q) = %v, want nil", test.path, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("validateLayerPath(%q) = %v, want error containing %q", test.path, err, test.wantErr)
			}
		})
	}
}

func TestEstablishRejectsBadLayout(t *testing.T) {
	manager := newManager("/usr/bin/fuse-overlayfs", "/usr/bin/fusermount")

	err := manager.Establish(Layout{
		Source:     "/srv/demo,upperdir=/etc",
		Capture:    t.TempDir(),
		Work:       t.TempDir(),
		MountPoint: t.TempDir(),
	})

	var mountErr *MountError
	if !errors.As(err, &mountErr) {
		t.Fatalf("Establish with comma in source = %v, want *MountError", err)
	}
	if !strings.Contains(err.Error(), "comma") {
		t.Errorf("error %q does not name the comma injection", err)
	}
}

func TestEstablishRejectsMissingSource(t *testing.T) {
	manager := newManager("/usr/bin/fuse-overlayfs", "/usr/bin/fusermount")

	err := manager.Establish(Layout{
		Source:     filepath.Join(t.TempDir(), "does-not-exist"),
		Capture:    t.TempDir(),
		Work:       t.TempDir(),
		MountPoint: t.TempDir(),
	})

	var mountErr *MountError
	if !errors.As(err, &mountErr) {
		t.Fatalf("Establish with missing source = %v, want *MountError", err)
	}
	if mountErr.Op != "checking source" {
		t.Errorf("Op = %q, want %q", mountErr.Op, "checking source")
	}
}

func TestEstablishUnsafeRejectsMissingSource(t *testing.T) {
	// Package-level: the unsafe bind mount needs no overlay binaries,
	// so it never goes through NewManager.
	err := EstablishUnsafe(filepath.Join(t.TempDir(), "does-not-exist"), t.TempDir())

	var mountErr *MountError
	if !errors.As(err, &mountErr) {
		t.Fatalf("EstablishUnsafe with missing source = %v, want *MountError", err)
	}
	if mountErr.Op != "checking source" {
		t.Errorf("Op = %q, want %q", mountErr.Op, "checking source")
	}
}

func TestMountedFalseForPlainDirectory(t *testing.T) {
	manager := newManager("/usr/bin/fuse-overlayfs", "/usr/bin/fusermount")

	mounted, err := manager.Mounted(t.TempDir())
	if err != nil {
		t.Fatalf("Mounted: %v", err)
	}
	if mounted {
		t.Error("plain temp directory reported as FUSE mount")
	}
}

func TestMountedFalseForMissingPath(t *testing.T) {
	manager := newManager("/usr/bin/fuse-overlayfs", "/usr/bin/fusermount")

	mounted, err := manager.Mounted(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("Mounted on missing path: %v", err)
	}
	if mounted {
		t.Error("missing path reported as mounted")
	}
}

func TestEmptyDirectory(t *testing.T) {
	directory := t.TempDir()
	testutil.WriteTree(t, directory, map[string]string{
		"a.txt":            "a",
		"nested/deep/b.go": "b",
	})

	if err := emptyDirectory(directory); err != nil {
		t.Fatalf("emptyDirectory: %v", err)
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("directory has %d entries after emptyDirectory, want 0", len(entries))
	}

	// The directory itself survives.
	if _, err := os.Stat(directory); err != nil {
		t.Errorf("directory removed by emptyDirectory: %v", err)
	}
}

func TestEmptyDirectoryMissingIsNoop(t *testing.T) {
	if err := emptyDirectory(filepath.Join(t.TempDir(), "absent")); err != nil {
		t.Errorf("emptyDirectory on missing path = %v, want nil", err)
	}
}

func TestCaptureStats(t *testing.T) {
	capture := t.TempDir()
	testutil.WriteTree(t, capture, map[string]string{
		"a.txt":        "12345",
		"sub/b.txt":    "1234567890",
		"sub/deeper/c": "",
	})

	fileCount, totalBytes, err := CaptureStats(capture)
	if err != nil {
		t.Fatalf("CaptureStats: %v", err)
	}
	if fileCount != 3 {
		t.Errorf("fileCount = %d, want 3", fileCount)
	}
	if totalBytes != 15 {
		t.Errorf("totalBytes = %d, want 15", totalBytes)
	}
}

func TestCaptureStatsMissingDirectory(t *testing.T) {
	fileCount, totalBytes, err := CaptureStats(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("CaptureStats on missing directory: %v", err)
	}
	if fileCount != 0 || totalBytes != 0 {
		t.Errorf("stats = (%d, %d), want (0, 0)", fileCount, totalBytes)
	}
}
