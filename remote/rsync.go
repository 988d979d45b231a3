// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// RsyncCopier implements Copier by shelling out to rsync over ssh.
// rsync's --delete gives the deletion-mirroring guarantee the staging
// snapshot depends on: a file removed from the capture layer since the
// last extraction never survives into the next snapshot.
type RsyncCopier struct {
	Endpoint Endpoint

	// Binary is the rsync executable; empty means "rsync" via PATH.
	Binary string
}

// MirrorToLocal runs rsync -a --delete from the endpoint's remoteDir
// into localDir.
func (c *RsyncCopier) MirrorToLocal(ctx context.Context, remoteDir, localDir string) error {
	binary := c.Binary
	if binary == "" {
		binary = "rsync"
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return fmt.Errorf("remote: rsync not found: %w", err)
	}

	args := c.mirrorArgs(remoteDir, localDir)
	command := exec.CommandContext(ctx, resolved, args...)
	output, err := command.CombinedOutput()
	if err != nil {
		return fmt.Errorf("remote: rsync from %s:%s failed: %w\noutput: %s",
			c.Endpoint.Address, remoteDir, err, string(output))
	}
	return nil
}

// mirrorArgs builds the rsync argument list. Split out for tests.
func (c *RsyncCopier) mirrorArgs(remoteDir, localDir string) []string {
	sshCommand := []string{"ssh", "-o", "BatchMode=yes"}
	if c.Endpoint.Port != 0 && c.Endpoint.Port != 22 {
		sshCommand = append(sshCommand, "-p", strconv.Itoa(c.Endpoint.Port))
	}
	if c.Endpoint.IdentityFile != "" {
		sshCommand = append(sshCommand, "-i", c.Endpoint.IdentityFile)
	}
	if c.Endpoint.KnownHostsFile != "" {
		sshCommand = append(sshCommand, "-o", "UserKnownHostsFile="+c.Endpoint.KnownHostsFile)
	}

	// Trailing slashes: copy remoteDir's contents, not remoteDir
	// itself, into localDir.
	source := fmt.Sprintf("%s@%s:%s/", c.Endpoint.User, c.Endpoint.Address,
		strings.TrimSuffix(remoteDir, "/"))

	return []string{
		"--archive",
		"--delete",
		"-e", strings.Join(sshCommand, " "),
		source,
		strings.TrimSuffix(localDir, "/") + "/",
	}
}
