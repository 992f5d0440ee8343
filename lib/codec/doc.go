// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Loom's standard CBOR encoding configuration.
//
// Loom uses two byte formats with a clear boundary:
//
//   - The collector wire protocol (lib/collector/wire): fixed
//     big-endian frames that the remote instrumentation server
//     defines. Not CBOR.
//   - CBOR for everything Loom owns: class cache metadata records and
//     the persisted last-assigned id counters.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding, no indefinite-length
// items. Same logical data always produces identical bytes, so a
// metadata file's content can be compared across runs.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Types that are only ever stored as CBOR carry `cbor` struct tags.
package codec
