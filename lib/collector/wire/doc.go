// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the byte-level encoding of the collector
// protocol, shared by the client in lib/collector and the stub server
// in lib/collector/collectortest.
//
// The protocol is a single full-duplex stream of unframed values:
//
//   - integers are big-endian two's complement (int8, int32)
//   - strings are a uint16 byte count followed by modified UTF-8
//     (NUL as 0xC0 0x80, supplementary characters as surrogate pairs)
//   - byte blobs are an int32 byte count followed by the bytes
//
// Commands are single bytes ([Command]). The stream opens with the
// 32-bit [Signature]. Every read is bounded: blob lengths above
// [MaxBlobLength] and negative lengths are rejected as a
// [*ProtocolError] before any allocation.
package wire
