// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package version exposes the build version of the airlock binaries.
package version

import "runtime/debug"

// Version is the release version, overridden at build time via
// -ldflags "-X github.com/airlock-foundation/airlock/lib/version.Version=v1.2.3".
var Version = "dev"

// Full returns the version string, falling back to the module version
// recorded in build info when no explicit version was linked in.
func Full() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}
