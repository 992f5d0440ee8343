// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import "sync/atomic"

// Session is the per-process configuration the collector hands out
// during the handshake. Its fields are fixed once Handshake returns;
// only the two lifecycle flags change afterwards, each exactly once.
type Session struct {
	// HostID is this process's id, placed in the low bits of every
	// object id.
	HostID int64

	// HostBits is the width of the host id field. Zero disables host
	// prefixing and forces HostID to 0.
	HostBits int

	// CaptureExceptions enables exception event delivery.
	CaptureExceptions bool

	// CachePath is the class cache root the collector asks for. Empty
	// means the collector has no opinion.
	CachePath string

	// WorkingSet is the collector's scope expression. Empty means none.
	WorkingSet string

	// StructureDatabaseID names the collector's structure database.
	// Caches for different databases must not be shared.
	StructureDatabaseID string

	// SkipCoreClasses makes the coordinator pass core platform classes
	// through without consulting scope or cache.
	SkipCoreClasses bool

	started        atomic.Bool
	captureStarted atomic.Bool
}

// MarkStarted records that the host runtime is ready for traced-method
// registration. It returns true only for the call that flipped the
// flag.
func (s *Session) MarkStarted() bool {
	return s.started.CompareAndSwap(false, true)
}

// Started reports whether MarkStarted has been called.
func (s *Session) Started() bool {
	return s.started.Load()
}

// MarkCaptureStarted records that event capture has begun. It returns
// true only for the call that flipped the flag.
func (s *Session) MarkCaptureStarted() bool {
	return s.captureStarted.CompareAndSwap(false, true)
}

// CaptureStarted reports whether MarkCaptureStarted has been called.
func (s *Session) CaptureStarted() bool {
	return s.captureStarted.Load()
}
