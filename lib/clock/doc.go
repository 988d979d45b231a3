// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so that
// timer-driven code (the mirror service's promotion interval, the
// auditor's rotation checks) can be tested deterministically.
//
// Production code uses [Real]; tests use [Fake] and drive time with
// [FakeClock.Advance].
package clock
