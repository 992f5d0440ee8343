// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package collectortest provides an in-process collector speaking the
// wire protocol, for tests and for the loom-collector-mock binary.
//
// A [Server] listens on a TCP address, runs the handshake with a
// configurable [Config], answers instrument requests through an
// [Instrumenter], allocates class and behavior ids the way a real
// collector does, and records every request it receives so tests can
// assert on network traffic.
package collectortest
