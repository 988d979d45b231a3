// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Endpoint describes the execution host's ssh endpoint.
type Endpoint struct {
	// Address is the host name or IP.
	Address string

	// Port is the ssh port; zero means 22.
	Port int

	// User is the ssh user.
	User string

	// IdentityFile is the private key path.
	IdentityFile string

	// KnownHostsFile verifies the host key. Empty means
	// ~/.ssh/known_hosts. Host key verification is never skipped: the
	// channel carries unreviewed agent output and must not be
	// interceptable.
	KnownHostsFile string
}

// Runner executes shell commands on the execution host.
type Runner interface {
	// Run executes command and returns its standard output. A non-zero
	// exit or connection failure is an error carrying stderr context.
	Run(ctx context.Context, command string) (string, error)
}

// Copier mirrors directory trees between the execution host and the
// local machine, propagating deletions.
type Copier interface {
	// MirrorToLocal makes localDir an exact copy of remoteDir on the
	// execution host: files deleted remotely since a previous copy are
	// deleted locally too.
	MirrorToLocal(ctx context.Context, remoteDir, localDir string) error
}

// SSHRunner is the production Runner, dialing the execution host with
// key authentication and known-hosts verification.
type SSHRunner struct {
	Endpoint Endpoint
}

// Run dials the endpoint, executes command in one session, and
// returns its stdout.
func (r *SSHRunner) Run(ctx context.Context, command string) (string, error) {
	client, err := dial(ctx, r.Endpoint)
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("remote: opening session: %w", err)
	}
	defer session.Close()

	var stdout, stderr strings.Builder
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Run(command); err != nil {
		return "", fmt.Errorf("remote: running %q: %w\nstderr: %s", command, err, stderr.String())
	}
	return stdout.String(), nil
}

// dial opens an ssh connection to the endpoint, honoring ctx for the
// TCP dial and handshake setup.
func dial(ctx context.Context, endpoint Endpoint) (*ssh.Client, error) {
	if endpoint.Address == "" {
		return nil, fmt.Errorf("remote: endpoint address is empty")
	}

	port := endpoint.Port
	if port == 0 {
		port = 22
	}

	keyData, err := os.ReadFile(endpoint.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("remote: reading identity file: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("remote: parsing identity file %s: %w", endpoint.IdentityFile, err)
	}

	knownHostsPath := endpoint.KnownHostsFile
	if knownHostsPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("remote: resolving home for known_hosts: %w", err)
		}
		knownHostsPath = filepath.Join(home, ".ssh", "known_hosts")
	}
	hostKeyCallback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("remote: loading known_hosts %s: %w", knownHostsPath, err)
	}

	config := &ssh.ClientConfig{
		User:            endpoint.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
	}

	address := net.JoinHostPort(endpoint.Address, strconv.Itoa(port))
	dialer := net.Dialer{}
	connection, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("remote: dialing %s: %w", address, err)
	}

	sshConnection, channels, requests, err := ssh.NewClientConn(connection, address, config)
	if err != nil {
		connection.Close()
		return nil, fmt.Errorf("remote: ssh handshake with %s: %w", address, err)
	}
	return ssh.NewClient(sshConnection, channels, requests), nil
}

// CountFiles returns the number of regular files under directory on
// the execution host. Used by the extractor's nothing-to-sync check
// and by status reporting.
func CountFiles(ctx context.Context, runner Runner, directory string) (int, error) {
	command := fmt.Sprintf("find %s -type f | wc -l", ShellQuote(directory))
	output, err := runner.Run(ctx, command)
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(output))
	if err != nil {
		return 0, fmt.Errorf("remote: unexpected file count output %q: %w", output, err)
	}
	return count, nil
}

// DiskUsage returns the total size in bytes of directory on the
// execution host.
func DiskUsage(ctx context.Context, runner Runner, directory string) (int64, error) {
	command := fmt.Sprintf("du -sb %s | cut -f1", ShellQuote(directory))
	output, err := runner.Run(ctx, command)
	if err != nil {
		return 0, err
	}
	size, err := strconv.ParseInt(strings.TrimSpace(output), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("remote: unexpected du output %q: %w", output, err)
	}
	return size, nil
}

// ProcessRunning reports whether a process whose command line matches
// pattern is running on the execution host. Used to report the
// auditor's state in status output.
func ProcessRunning(ctx context.Context, runner Runner, pattern string) (bool, error) {
	// pgrep exits 1 for "no match", which the runner surfaces as an
	// error; distinguish it by output instead.
	command := fmt.Sprintf("pgrep -f %s | wc -l", ShellQuote(pattern))
	output, err := runner.Run(ctx, command)
	if err != nil {
		return false, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(output))
	if err != nil {
		return false, fmt.Errorf("remote: unexpected pgrep output %q: %w", output, err)
	}
	return count > 0, nil
}

// ShellQuote single-quotes a string for safe interpolation into a
// remote shell command.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
