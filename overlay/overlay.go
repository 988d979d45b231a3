// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// Layout names the four directories of one environment's containment:
// the read-only source (lower), the capture layer (upper), the overlay
// work directory, and the mount point where the merged view appears.
type Layout struct {
	// Source is the host tree the agent may observe but never mutate.
	Source string

	// Capture is the upper directory. Every write through the merged
	// view lands here, including whiteout entries for deletions, so
	// the capture layer is always the complete delta against Source.
	Capture string

	// Work is the overlayfs work directory. Internal to the mount;
	// emptied together with Capture on reset.
	Work string

	// MountPoint is where the merged view is mounted.
	MountPoint string
}

// MountError reports that containment could not be established: the
// union-mount facility is missing, a layer directory is unusable, or
// the mount itself failed. Fatal to environment setup and never
// retried automatically.
type MountError struct {
	Op  string
	Err error
}

func (e *MountError) Error() string { return fmt.Sprintf("mount: %s: %v", e.Op, e.Err) }

func (e *MountError) Unwrap() error { return e.Err }

// Manager establishes and tears down copy-on-write merged views using
// fuse-overlayfs.
//
// Security invariant: the source is only ever the lower layer of an
// overlay, which fuse-overlayfs never writes to. The one exception is
// the package-level [EstablishUnsafe], which is a deliberately
// distinct, differently named operation for the containment-free mode
// and never a fallback taken on the manager's own initiative.
type Manager struct {
	fuseBin       string
	fusermountBin string
}

// NewManager locates fuse-overlayfs and fusermount. Returns a
// MountError when either is missing: the caller must fail loudly (or
// explicitly reconfigure for unsafe mode) rather than degrade into an
// uncontained mount by accident.
func NewManager() (*Manager, error) {
	fuseBin, err := exec.LookPath("fuse-overlayfs")
	if err != nil {
		return nil, &MountError{
			Op: "locating fuse-overlayfs",
			Err: fmt.Errorf("%w\n\nInstall with: sudo apt install fuse-overlayfs\n\n"+
				"Overlay mounts provide the copy-on-write containment that keeps\n"+
				"agent writes off the source tree. Without fuse-overlayfs the only\n"+
				"options are installing it or explicitly configuring unsafe mode.", err),
		}
	}

	fusermountBin, err := exec.LookPath("fusermount")
	if err != nil {
		fusermountBin, err = exec.LookPath("fusermount3")
		if err != nil {
			return nil, &MountError{
				Op:  "locating fusermount",
				Err: fmt.Errorf("%w\n\nInstall with: sudo apt install fuse3", err),
			}
		}
	}

	return &Manager{fuseBin: fuseBin, fusermountBin: fusermountBin}, nil
}

// newManager constructs a Manager with explicit binary paths. Tests
// use this to avoid PATH lookups.
func newManager(fuseBin, fusermountBin string) *Manager {
	return &Manager{fuseBin: fuseBin, fusermountBin: fusermountBin}
}

// validateLayerPath checks that a path is safe for use in
// fuse-overlayfs options. Options are comma-separated, so a path
// containing a comma could inject additional options (for example
// "lowerdir=/tmp,upperdir=/etc" would redirect the upper layer).
func validateLayerPath(path, fieldName string) error {
	if path == "" {
		return fmt.Errorf("%s path is empty", fieldName)
	}
	if strings.Contains(path, ",") {
		return fmt.Errorf("%s path %q contains comma which would corrupt fuse-overlayfs options: "+
			"commas are option separators and cannot be escaped", fieldName, path)
	}
	if strings.ContainsAny(path, "\x00\n\r") {
		return fmt.Errorf("%s path %q contains invalid characters (null or newline)", fieldName, path)
	}
	return nil
}

// validateLayout checks every layout path.
func validateLayout(layout Layout) error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"source", layout.Source},
		{"capture", layout.Capture},
		{"work", layout.Work},
		{"mount point", layout.MountPoint},
	} {
		if err := validateLayerPath(field.value, field.name); err != nil {
			return err
		}
	}
	return nil
}

// Establish creates the capture and work directories if absent and
// mounts the merged view at layout.MountPoint. The source tree is the
// read-only lower layer; all writes through the merged view land in
// the capture layer.
//
// Returns a MountError if the source does not exist, the directories
// cannot be created, or the mount fails.
func (m *Manager) Establish(layout Layout) error {
	if err := validateLayout(layout); err != nil {
		return &MountError{Op: "validating layout", Err: err}
	}

	if _, err := os.Stat(layout.Source); err != nil {
		return &MountError{Op: "checking source", Err: err}
	}

	// 0700 on capture and work: other local users have no business
	// reading unpromoted agent output.
	for _, directory := range []string{layout.Capture, layout.Work} {
		if err := os.MkdirAll(directory, 0o700); err != nil {
			return &MountError{Op: "creating layer directory", Err: err}
		}
	}
	if err := os.MkdirAll(layout.MountPoint, 0o755); err != nil {
		return &MountError{Op: "creating mount point", Err: err}
	}

	args := []string{
		"-o", fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s",
			layout.Source, layout.Capture, layout.Work),
		layout.MountPoint,
	}

	command := exec.Command(m.fuseBin, args...)
	output, err := command.CombinedOutput()
	if err != nil {
		return &MountError{
			Op:  "mounting overlay",
			Err: fmt.Errorf("fuse-overlayfs failed: %w\noutput: %s", err, string(output)),
		}
	}

	// Wait for the FUSE mount to register before returning, so callers
	// never race a half-established merged view.
	if err := waitForMount(layout.MountPoint); err != nil {
		unmount := exec.Command(m.fusermountBin, "-u", layout.MountPoint)
		unmount.Run() // best effort
		return &MountError{Op: "waiting for mount", Err: err}
	}

	return nil
}

// EstablishUnsafe bind-mounts the source read-write at the mount
// point: no capture layer, no containment, agent writes go straight to
// the source tree. This exists only for the explicitly configured
// unsafe mode and must never be invoked as a fallback when Establish
// fails. It is a package-level function, not a Manager method: it
// needs no overlay binaries, and a Manager is only ever constructed
// with them resolved.
func EstablishUnsafe(source, mountPoint string) error {
	if _, err := os.Stat(source); err != nil {
		return &MountError{Op: "checking source", Err: err}
	}
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return &MountError{Op: "creating mount point", Err: err}
	}

	command := exec.Command("mount", "--bind", source, mountPoint)
	output, err := command.CombinedOutput()
	if err != nil {
		return &MountError{
			Op:  "bind-mounting source",
			Err: fmt.Errorf("mount --bind failed: %w\noutput: %s", err, string(output)),
		}
	}
	return nil
}

// Teardown unmounts the merged view. The capture layer is left
// intact: unpromoted work survives a stop/restart of the execution
// host. Idempotent when the mount point is not mounted.
func (m *Manager) Teardown(mountPoint string) error {
	mounted, err := m.Mounted(mountPoint)
	if err != nil {
		return &MountError{Op: "checking mount", Err: err}
	}
	if !mounted {
		return nil
	}

	command := exec.Command(m.fusermountBin, "-u", mountPoint)
	if output, err := command.CombinedOutput(); err != nil {
		// Lazy unmount when a process still holds the mount.
		lazy := exec.Command(m.fusermountBin, "-u", "-z", mountPoint)
		if lazyOutput, lazyErr := lazy.CombinedOutput(); lazyErr != nil {
			return &MountError{
				Op: "unmounting",
				Err: fmt.Errorf("fusermount failed: %w\noutput: %s\nlazy output: %s",
					err, string(output), string(lazyOutput)),
			}
		}
	}
	return nil
}

// Reset discards the capture layer: unmounts if necessary, deletes all
// contents of the capture and work directories, and re-establishes an
// empty merged view. Destructive and irreversible: every unpromoted
// agent write is lost. Callers must double-confirm before invoking.
func (m *Manager) Reset(layout Layout) error {
	if err := m.Teardown(layout.MountPoint); err != nil {
		return err
	}

	for _, directory := range []string{layout.Capture, layout.Work} {
		if err := emptyDirectory(directory); err != nil {
			return &MountError{Op: "clearing layer directory", Err: err}
		}
	}

	return m.Establish(layout)
}

// Mounted reports whether a FUSE filesystem is mounted at path. A
// missing path is reported as not mounted.
func (m *Manager) Mounted(path string) (bool, error) {
	return isFuseMount(path)
}

// fuseSuperMagic is FUSE_SUPER_MAGIC from statfs(2).
const fuseSuperMagic = 0x65735546

// isFuseMount checks the filesystem type at path via statfs.
func isFuseMount(path string) (bool, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("statfs %s: %w", path, err)
	}
	return stat.Type == fuseSuperMagic, nil
}

// waitForMount polls until a FUSE mount is registered at path.
func waitForMount(path string) error {
	const maxAttempts = 50 // 50 * 20ms = 1 second max wait
	const sleepInterval = 20 * time.Millisecond

	for i := 0; i < maxAttempts; i++ {
		mounted, err := isFuseMount(path)
		if err == nil && mounted {
			return nil
		}
		time.Sleep(sleepInterval)
	}
	return fmt.Errorf("timeout waiting for FUSE mount at %s (waited %v)", path, maxAttempts*sleepInterval)
}

// emptyDirectory removes every entry of directory without removing
// the directory itself. A missing directory is not an error.
func emptyDirectory(directory string) error {
	entries, err := os.ReadDir(directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(directory, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// CaptureStats walks the capture layer and returns the number of
// regular files and their total size in bytes. Used by status
// reporting; a missing capture directory reports zero of each.
func CaptureStats(capture string) (fileCount int, totalBytes int64, err error) {
	err = filepath.WalkDir(capture, func(path string, entry os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) && path == capture {
				return nil
			}
			return walkErr
		}
		if entry.IsDir() {
			return nil
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			// Entry disappeared mid-walk (the agent is live); skip it.
			return nil
		}
		if info.Mode().IsRegular() {
			fileCount++
			totalBytes += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("walking capture layer %s: %w", capture, err)
	}
	return fileCount, totalBytes, nil
}
