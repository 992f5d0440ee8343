// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the wall clock so latency measurements can
// be made deterministic in tests. Production code uses [Real]; tests
// use [Fake], whose time moves only when [FakeClock.Advance] is
// called.
package clock
