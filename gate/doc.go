// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package gate implements the gated sync protocol: the only path by
// which agent writes reach the trusted host tree.
//
// A [Pipeline] runs four stages strictly in order. Extract mirrors the
// capture layer off the execution host into a uniquely named staging
// snapshot, deletions included. Validate aggregates every finding from
// the ordered checks (blocked extensions, secret scan, oversize,
// binary heuristic, extension allowlist) instead of stopping at the
// first. Preview renders a deterministic listing with per-file content
// digests and collision states. Promote merges under the
// only-new-files policy, skipping any path the trusted tree already
// owns.
//
// The staging snapshot is removed on every exit path, and no trusted
// tree write happens before a passing verdict.
package gate
