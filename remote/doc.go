// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package remote is the shell and copy channel to the execution host.
//
// Two narrow interfaces keep the pipeline testable with fakes and the
// transport swappable: [Runner] executes commands (file counts, disk
// usage, process checks) over ssh with key auth and mandatory
// known-hosts verification; [Copier] mirrors the capture layer to a
// local directory, deletions included, via rsync --delete.
//
// Connectivity failures are plain errors here; the gate package wraps
// them into its extraction error taxonomy.
package remote
