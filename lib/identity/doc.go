// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity assigns object identifiers that are unique across
// every host reporting to one collector.
//
// An id is a per-process counter shifted left by the session's host
// bit width, with the host id in the low bits:
//
//	id = (counter << hostBits) | hostID
//
// The counter starts at 1, so 0 never appears as an id and remains
// free to mean "no id assigned yet" in the host's object tag slot.
// When the counter can no longer be shifted without reaching the sign
// bit, allocation fails with [ErrExhausted]; callers treat that as
// fatal since continuing would hand out duplicate or negative ids.
package identity
