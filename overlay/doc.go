// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package overlay is the layered mount manager: it establishes the
// copy-on-write merged view that contained agents operate against.
//
// The merged view is a fuse-overlayfs union of a read-only source
// tree (lower) and a capture layer (upper). Reads fall through to the
// source when a path is absent from the capture layer; writes always
// land in the capture layer. Deletions are recorded as overlayfs
// whiteouts in the capture layer, so a file removed through the merged
// view does not reappear from the source. The source tree is never
// written: that is the containment invariant everything above this
// package relies on.
//
// Three lifecycle operations:
//
//   - [Manager.Establish] mounts the merged view, creating the capture
//     and work directories as needed.
//   - [Manager.Teardown] unmounts, preserving the capture layer across
//     execution-host restarts.
//   - [Manager.Reset] destroys the capture layer's contents and
//     re-establishes an empty view. Destructive; callers double-confirm.
//
// When fuse-overlayfs is unavailable the constructor fails with
// [MountError]. The containment-free alternative is the package-level
// [EstablishUnsafe], reachable only through the explicitly
// configured unsafe mode; missing containment is a loud
// reconfiguration decision, never a silent degradation.
package overlay
