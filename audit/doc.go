// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit records every write observed in a capture layer.
//
// A [Watcher] holds recursive inotify watches over the capture layer
// and appends one [Record] per event to an append-only JSONL [Log].
// The log is rotated and zstd-compressed when it grows past a size
// threshold.
//
// Auditing is observational only. The validation and promotion logic
// never reads the log; it exists for operators and external tooling.
// Failures to write the log are logged and dropped; the watcher must
// never block or break the agent's I/O. The airlock-auditor daemon
// supervises the watcher and restarts it if it dies.
package audit
