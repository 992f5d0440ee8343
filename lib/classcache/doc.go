// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package classcache is the on-disk, content-addressed store of class
// instrumentation decisions. A decision is keyed by class name and the
// MD5 digest of the class bytecode the host presented; a lookup hits
// only when both match, so a class whose bytecode changed between runs
// is sent back to the collector.
//
// Layout under the cache root:
//
//	classes/<escaped name>/info.cbor   metadata record (CBOR)
//	classes/<escaped name>/class.bin   instrumented bytecode, possibly compressed
//	tmp/                               staging area for atomic renames
//	ids.cbor                           last ids the collector allocated
//	.lock                              advisory lock shared by every process
//
// Each segment of the slash-separated class name is escaped to a
// portable file name (see [EscapeName]), so the directory tree mirrors
// the package hierarchy.
//
// Writes go through tmp/ and a rename, metadata first and bytecode
// second. Any stale bytecode file is removed before the new metadata
// lands, so a crash between the two renames leaves metadata without
// bytecode, which reads back as a miss. The metadata records a BLAKE3
// hash of the uncompressed bytecode; a bytecode file that fails that
// check is reported as [ErrCorrupt].
//
// A [Cache] is safe for concurrent use. Operations within one process
// are serialized by a mutex; operations across processes sharing a
// root are serialized by flock(2) on the .lock file, shared for reads
// and exclusive for writes.
package classcache
