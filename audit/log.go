// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// EventKind classifies a capture-layer filesystem event.
type EventKind string

const (
	// EventCreate: a file or directory appeared.
	EventCreate EventKind = "create"
	// EventWrite: a file opened for writing was closed.
	EventWrite EventKind = "write"
	// EventRemove: a file or directory was deleted.
	EventRemove EventKind = "remove"
	// EventRename: a file was moved in or out of the watched tree.
	EventRename EventKind = "rename"
)

// Record is one audit log entry: a single observed write in the
// capture layer. Records are purely observational: nothing in the
// validation or promotion logic reads them back.
type Record struct {
	// Time is when the event was observed.
	Time time.Time `json:"time"`

	// Path is the affected path, relative to the capture layer root.
	Path string `json:"path"`

	// Event is the kind of filesystem event.
	Event EventKind `json:"event"`
}

// Log is an append-only, line-oriented audit log. Each Append writes
// one JSON record and a newline. When the log grows past its size
// limit it is rotated: the current contents are compressed with zstd
// into a timestamped sibling file and the live log starts over empty.
//
// Log is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	size    int64
	maxSize int64
	logger  *slog.Logger
}

// DefaultMaxLogSize is the rotation threshold for the live log file.
const DefaultMaxLogSize = 16 << 20 // 16 MiB

// OpenLog opens (creating if necessary) the audit log at path. A
// maxSize of zero uses DefaultMaxLogSize.
func OpenLog(path string, maxSize int64, logger *slog.Logger) (*Log, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: opening log %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("audit: stating log %s: %w", path, err)
	}

	return &Log{
		path:    path,
		file:    file,
		size:    info.Size(),
		maxSize: maxSize,
		logger:  logger,
	}, nil
}

// Append writes one record. Errors are returned for observability but
// the watcher treats them as best-effort: an unwritable audit log must
// never block or crash the agent's own I/O.
func (l *Log) Append(record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("audit: marshaling record: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	written, err := l.file.Write(data)
	l.size += int64(written)
	if err != nil {
		return fmt.Errorf("audit: appending to %s: %w", l.path, err)
	}

	if l.size >= l.maxSize {
		if err := l.rotateLocked(); err != nil {
			// Rotation failure is logged and the live log keeps
			// growing; losing rotation is better than losing records.
			l.logger.Warn("audit log rotation failed", "path", l.path, "error", err)
		}
	}
	return nil
}

// Close closes the live log file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// rotateLocked compresses the live log into a timestamped .jsonl.zst
// sibling and truncates the live log. Must be called with l.mu held.
func (l *Log) rotateLocked() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing live log: %w", err)
	}

	rotatedPath := fmt.Sprintf("%s.%s.zst", l.path, time.Now().UTC().Format("20060102T150405"))
	if err := compressFile(l.path, rotatedPath); err != nil {
		// Reopen in append mode so logging continues even though
		// rotation failed.
		file, openErr := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if openErr != nil {
			return fmt.Errorf("compressing: %w (and reopening failed: %v)", err, openErr)
		}
		l.file = file
		return fmt.Errorf("compressing: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("reopening truncated log: %w", err)
	}
	l.file = file
	l.size = 0
	return nil
}

// compressFile zstd-compresses source into destination.
func compressFile(source, destination string) error {
	input, err := os.Open(source)
	if err != nil {
		return err
	}
	defer input.Close()

	output, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	encoder, err := zstd.NewWriter(output)
	if err != nil {
		output.Close()
		os.Remove(destination)
		return err
	}

	if _, err := io.Copy(encoder, input); err != nil {
		encoder.Close()
		output.Close()
		os.Remove(destination)
		return err
	}
	if err := encoder.Close(); err != nil {
		output.Close()
		os.Remove(destination)
		return err
	}
	return output.Close()
}
