// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package collector is the client side of the instrumentation
// collector protocol. One [Client] owns one TCP stream for the life of
// the process: it performs the handshake that yields the [Session]
// configuration, then exchanges strictly sequential request/response
// pairs (instrument a class, report a cache hit, register a class,
// sync id counters, flush).
//
// The byte encoding lives in lib/collector/wire. Every exchange holds
// the client's mutex from the first byte written to the last byte
// read, so a Client is safe for concurrent use although the protocol
// has no request ids.
//
// There is no reconnection. The first I/O or protocol failure breaks
// the client and every later call returns the same error; callers
// treat it as fatal.
package collector
