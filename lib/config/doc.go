// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML profile loading for airlock
// environments.
//
// A profile is loaded from a single file specified by either the
// AIRLOCK_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search: deterministic, auditable configuration
// with no hidden overrides.
//
// The promotion [Mode] is a single enum (gated, timed, unsafe), which
// is how the mutual exclusion between the gated pipeline and the
// timed mirror service is enforced; they cannot both be configured
// for the same environment because there is only one mode field.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values.
package config
