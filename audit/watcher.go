// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// watchMask selects the events the auditor records: file creation,
// completed writes, deletions, and moves in either direction.
const watchMask = unix.IN_CREATE | unix.IN_CLOSE_WRITE | unix.IN_DELETE |
	unix.IN_MOVED_TO | unix.IN_MOVED_FROM

// Watcher observes a capture layer with inotify and appends one audit
// record per filesystem event. It watches the root and every
// subdirectory, adding watches for directories as they appear.
//
// The watcher is strictly a side effect: it never touches the files
// it observes, and audit log write failures are logged and dropped
// rather than propagated. The agent's I/O must never depend on it.
type Watcher struct {
	root   string
	log    *Log
	logger *slog.Logger

	fd int

	// watchedDirs maps inotify watch descriptors to the directory
	// paths they cover, so event names can be resolved to paths
	// relative to root.
	mu          sync.Mutex
	watchedDirs map[int]string

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewWatcher initializes inotify over root and all its existing
// subdirectories. Call Run to start observing and Stop to shut down.
func NewWatcher(root string, log *Log, logger *slog.Logger) (*Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("audit: inotify_init1: %w", err)
	}

	w := &Watcher{
		root:        root,
		log:         log,
		logger:      logger,
		fd:          fd,
		watchedDirs: make(map[int]string),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	if err := w.watchRecursively(root); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return w, nil
}

// watchRecursively adds watches for directory and every directory
// below it. Directories that vanish between enumeration and watch
// setup are skipped; their deletion event will arrive via the parent's
// watch anyway.
func (w *Watcher) watchRecursively(directory string) error {
	if err := w.addWatch(directory); err != nil {
		return err
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("audit: reading %s: %w", directory, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := w.watchRecursively(filepath.Join(directory, entry.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// addWatch registers one directory with inotify.
func (w *Watcher) addWatch(directory string) error {
	wd, err := unix.InotifyAddWatch(w.fd, directory, watchMask)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("audit: inotify_add_watch on %s: %w", directory, err)
	}
	w.mu.Lock()
	w.watchedDirs[wd] = directory
	w.mu.Unlock()
	return nil
}

// Run reads inotify events until Stop is called, appending one audit
// record per event. Blocks; callers run it in a goroutine. The
// inotify descriptor is closed when Run returns.
func (w *Watcher) Run() {
	defer close(w.done)
	defer unix.Close(w.fd)

	buffer := make([]byte, 64*1024)
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		// poll(2) with a 100ms timeout keeps the loop responsive to
		// Stop without spinning.
		pollDescriptors := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
		count, err := unix.Poll(pollDescriptors, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			w.logger.Error("audit watcher poll failed", "error", err)
			return
		}
		if count == 0 {
			continue
		}

		bytesRead, err := unix.Read(w.fd, buffer)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			w.logger.Error("audit watcher read failed", "error", err)
			return
		}

		for _, event := range decodeEvents(buffer[:bytesRead]) {
			w.handleEvent(event)
		}
	}
}

// Stop signals Run to exit and waits for it to finish. Safe to call
// multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

// handleEvent resolves an event to a root-relative path, records it,
// and extends the watch set when a new directory appears.
func (w *Watcher) handleEvent(event inotifyEvent) {
	w.mu.Lock()
	directory, known := w.watchedDirs[event.wd]
	if event.mask&unix.IN_IGNORED != 0 {
		delete(w.watchedDirs, event.wd)
	}
	w.mu.Unlock()

	if !known || event.name == "" {
		return
	}

	fullPath := filepath.Join(directory, event.name)
	relativePath, err := filepath.Rel(w.root, fullPath)
	if err != nil {
		relativePath = fullPath
	}

	// A directory created (or moved) into the tree needs its own
	// watch, and may already contain files written before the watch
	// lands; those are covered by the recursive add.
	if event.mask&unix.IN_ISDIR != 0 && event.mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0 {
		if err := w.watchRecursively(fullPath); err != nil {
			w.logger.Warn("audit watcher could not extend watch", "path", fullPath, "error", err)
		}
	}

	kind, ok := classifyEvent(event.mask)
	if !ok {
		return
	}

	record := Record{Time: time.Now().UTC(), Path: filepath.ToSlash(relativePath), Event: kind}
	if err := w.log.Append(record); err != nil {
		// Best effort: drop the record, keep watching.
		w.logger.Warn("audit record dropped", "path", record.Path, "error", err)
	}
}

// classifyEvent maps an inotify mask to an audit event kind.
func classifyEvent(mask uint32) (EventKind, bool) {
	switch {
	case mask&unix.IN_CLOSE_WRITE != 0:
		return EventWrite, true
	case mask&unix.IN_CREATE != 0:
		return EventCreate, true
	case mask&unix.IN_DELETE != 0:
		return EventRemove, true
	case mask&(unix.IN_MOVED_TO|unix.IN_MOVED_FROM) != 0:
		return EventRename, true
	default:
		return "", false
	}
}

// inotifyEvent is one decoded inotify_event record.
type inotifyEvent struct {
	wd   int
	mask uint32
	name string
}

// decodeEvents walks a buffer of raw inotify events. Event layout,
// from inotify(7):
//
//	struct inotify_event {
//	    int32_t  wd;     // offset 0
//	    uint32_t mask;   // offset 4
//	    uint32_t cookie; // offset 8
//	    uint32_t len;    // offset 12
//	    char     name[]; // offset 16, null-padded to alignment
//	};
func decodeEvents(buffer []byte) []inotifyEvent {
	var events []inotifyEvent
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buffer) {
		wd := int(int32(binary.NativeEndian.Uint32(buffer[offset : offset+4])))
		mask := binary.NativeEndian.Uint32(buffer[offset+4 : offset+8])
		nameLength := int(binary.NativeEndian.Uint32(buffer[offset+12 : offset+16]))

		eventSize := unix.SizeofInotifyEvent + nameLength
		if offset+eventSize > len(buffer) {
			break
		}

		name := ""
		if nameLength > 0 {
			name = nullTerminatedString(buffer[offset+unix.SizeofInotifyEvent : offset+eventSize])
		}

		events = append(events, inotifyEvent{wd: wd, mask: mask, name: name})
		offset += eventSize
	}
	return events
}

// nullTerminatedString extracts a string from a null-padded byte
// slice, stopping at the first null byte.
func nullTerminatedString(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}
