// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAppendWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := OpenLog(path, 0, discardLogger())
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	defer log.Close()

	records := []Record{
		{Time: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), Path: "src/main.go", Event: EventWrite},
		{Time: time.Date(2026, 3, 1, 9, 0, 1, 0, time.UTC), Path: "src/old.go", Event: EventRemove},
	}
	for _, record := range records {
		if err := log.Append(record); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening log: %v", err)
	}
	defer file.Close()

	var parsed []Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record Record
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("unmarshaling line %q: %v", scanner.Text(), err)
		}
		parsed = append(parsed, record)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scanning log: %v", err)
	}

	if len(parsed) != len(records) {
		t.Fatalf("got %d records, want %d", len(parsed), len(records))
	}
	for i := range records {
		if parsed[i] != records[i] {
			t.Errorf("record %d = %+v, want %+v", i, parsed[i], records[i])
		}
	}
}

func TestAppendReopensExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	log, err := OpenLog(path, 0, discardLogger())
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	if err := log.Append(Record{Time: time.Now().UTC(), Path: "a", Event: EventCreate}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	log.Close()

	log, err = OpenLog(path, 0, discardLogger())
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	if err := log.Append(Record{Time: time.Now().UTC(), Path: "b", Event: EventCreate}); err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	log.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	lines := strings.Count(string(data), "\n")
	if lines != 2 {
		t.Errorf("log has %d lines after reopen, want 2 (append-only)", lines)
	}
}

func TestRotationCompressesAndTruncates(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "audit.jsonl")

	// Tiny threshold: the first append crosses it and triggers
	// rotation.
	log, err := OpenLog(path, 32, discardLogger())
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	defer log.Close()

	record := Record{Time: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), Path: "big/file.bin", Event: EventWrite}
	if err := log.Append(record); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Live log is empty again.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stating live log: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("live log size = %d after rotation, want 0", info.Size())
	}

	// Exactly one rotated .zst sibling, decompressing to the record.
	matches, err := filepath.Glob(path + ".*.zst")
	if err != nil {
		t.Fatalf("globbing rotated logs: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("found %d rotated logs, want 1", len(matches))
	}

	compressed, err := os.Open(matches[0])
	if err != nil {
		t.Fatalf("opening rotated log: %v", err)
	}
	defer compressed.Close()

	decoder, err := zstd.NewReader(compressed)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer decoder.Close()

	data, err := io.ReadAll(decoder)
	if err != nil {
		t.Fatalf("decompressing: %v", err)
	}

	var recovered Record
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &recovered); err != nil {
		t.Fatalf("unmarshaling rotated record: %v", err)
	}
	if recovered != record {
		t.Errorf("rotated record = %+v, want %+v", recovered, record)
	}
}
