// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// scriptedRunner returns canned output keyed by a substring of the
// command, recording every command it sees.
type scriptedRunner struct {
	responses map[string]string
	err       error
	commands  []string
}

func (r *scriptedRunner) Run(_ context.Context, command string) (string, error) {
	r.commands = append(r.commands, command)
	if r.err != nil {
		return "", r.err
	}
	for fragment, output := range r.responses {
		if strings.Contains(command, fragment) {
			return output, nil
		}
	}
	return "", errors.New("no scripted response for " + command)
}

func TestCountFiles(t *testing.T) {
	runner := &scriptedRunner{responses: map[string]string{"wc -l": "  42\n"}}
	count, err := CountFiles(context.Background(), runner, "/env/capture")
	if err != nil {
		t.Fatalf("CountFiles: %v", err)
	}
	if count != 42 {
		t.Errorf("count = %d, want 42", count)
	}
	if len(runner.commands) != 1 || !strings.Contains(runner.commands[0], "'/env/capture'") {
		t.Errorf("commands = %q, want quoted directory in find", runner.commands)
	}
}

func TestCountFilesQuotesHostilePaths(t *testing.T) {
	runner := &scriptedRunner{responses: map[string]string{"wc -l": "0"}}
	if _, err := CountFiles(context.Background(), runner, "/env/it's; rm -rf /"); err != nil {
		t.Fatalf("CountFiles: %v", err)
	}
	command := runner.commands[0]
	if !strings.Contains(command, `'/env/it'\''s; rm -rf /'`) {
		t.Errorf("command %q does not single-quote the path", command)
	}
}

func TestCountFilesBadOutput(t *testing.T) {
	runner := &scriptedRunner{responses: map[string]string{"wc -l": "not a number"}}
	if _, err := CountFiles(context.Background(), runner, "/env"); err == nil {
		t.Error("non-numeric wc output accepted")
	}
}

func TestCountFilesPropagatesRunnerError(t *testing.T) {
	hostDown := errors.New("connection refused")
	runner := &scriptedRunner{err: hostDown}
	if _, err := CountFiles(context.Background(), runner, "/env"); !errors.Is(err, hostDown) {
		t.Errorf("err = %v, want wrapped runner error", err)
	}
}

func TestDiskUsage(t *testing.T) {
	runner := &scriptedRunner{responses: map[string]string{"du -sb": "1048576\n"}}
	size, err := DiskUsage(context.Background(), runner, "/env/capture")
	if err != nil {
		t.Fatalf("DiskUsage: %v", err)
	}
	if size != 1048576 {
		t.Errorf("size = %d, want 1048576", size)
	}
}

func TestProcessRunning(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   bool
	}{
		{"auditor running", "2\n", true},
		{"no match", "0\n", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			runner := &scriptedRunner{responses: map[string]string{"pgrep": test.output}}
			running, err := ProcessRunning(context.Background(), runner, "airlock-auditor")
			if err != nil {
				t.Fatalf("ProcessRunning: %v", err)
			}
			if running != test.want {
				t.Errorf("running = %v, want %v", running, test.want)
			}
		})
	}
}

func TestMirrorArgs(t *testing.T) {
	copier := &RsyncCopier{Endpoint: Endpoint{
		Address:        "exec-host.internal",
		Port:           2222,
		User:           "airlock",
		IdentityFile:   "/keys/airlock_ed25519",
		KnownHostsFile: "/keys/known_hosts",
	}}

	got := copier.mirrorArgs("/env/capture/", "/work/staging/run-1")
	want := []string{
		"--archive",
		"--delete",
		"-e", "ssh -o BatchMode=yes -p 2222 -i /keys/airlock_ed25519 -o UserKnownHostsFile=/keys/known_hosts",
		"airlock@exec-host.internal:/env/capture/",
		"/work/staging/run-1/",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mirrorArgs:\n got %q\nwant %q", got, want)
	}
}

func TestMirrorArgsDefaultPort(t *testing.T) {
	copier := &RsyncCopier{Endpoint: Endpoint{Address: "host", User: "airlock"}}
	args := copier.mirrorArgs("/env/capture", "/staging")
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "-p ") {
		t.Errorf("args %q include a port flag for the default port", joined)
	}
	if !strings.Contains(joined, "--delete") {
		t.Errorf("args %q missing --delete; deletions would not mirror", joined)
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/plain/path", "'/plain/path'"},
		{"/with space", "'/with space'"},
		{"/don't", `'/don'\''t'`},
	}
	for _, test := range tests {
		if got := ShellQuote(test.input); got != test.want {
			t.Errorf("ShellQuote(%q) = %s, want %s", test.input, got, test.want)
		}
	}
}
