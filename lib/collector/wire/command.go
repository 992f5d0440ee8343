// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// Signature opens every connection, client to collector.
const Signature int32 = 0x03A71BE0

// MaxBlobLength bounds every length-prefixed blob (64 MiB).
const MaxBlobLength = 64 * 1024 * 1024

// Command is a one-byte protocol command.
type Command byte

// Client to collector. Values are protocol constants.
const (
	InstrumentClass Command = 50
	SyncCacheIDs    Command = 51
	UseCachedClass  Command = 52
	RegisterClass   Command = 53
	Flush           Command = 99
)

// Collector to client, during the handshake only. ConfigDone shares
// its value with Flush; the direction disambiguates.
const (
	SetCaptureExceptions Command = 83
	SetHostBits          Command = 84
	SetCachePath         Command = 85
	SetWorkingSet        Command = 86
	SetStructureDatabase Command = 87
	SetSkipCoreClasses   Command = 88
	ConfigDone           Command = 99
)

// InstrumentErrorLength is the instrument-response length value that
// announces a UTF error message instead of bytecode.
const InstrumentErrorLength int32 = -1

// String names client commands. Handshake commands render by number
// since their values overlap.
func (c Command) String() string {
	switch c {
	case InstrumentClass:
		return "instrument_class"
	case SyncCacheIDs:
		return "sync_cache_ids"
	case UseCachedClass:
		return "use_cached_class"
	case RegisterClass:
		return "register_class"
	case Flush:
		return "flush"
	default:
		return fmt.Sprintf("command(%d)", byte(c))
	}
}

// ProtocolError reports bytes on the stream that violate the protocol.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "collector protocol violation: " + e.Reason
}

func protocolErrorf(format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}
