// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueClassName returns "pkg/ClassN" with N increasing across the
// test binary, so tests sharing a cache or collector never collide.
//
//	name := testutil.UniqueClassName("com/acme") // "com/acme/Class1"
func UniqueClassName(pkg string) string {
	return fmt.Sprintf("%s/Class%d", pkg, uniqueCounter.Add(1))
}

// ClassBytes returns a deterministic payload for name and revision:
// the class file magic, the revision, then the name. Different
// revisions of one name have different digests.
func ClassBytes(name string, revision uint32) []byte {
	payload := make([]byte, 8, 8+len(name))
	binary.BigEndian.PutUint32(payload[0:4], 0xCAFEBABE)
	binary.BigEndian.PutUint32(payload[4:8], revision)
	return append(payload, name...)
}
