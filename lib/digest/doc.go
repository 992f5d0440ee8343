// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest provides the 128-bit content digest that keys the
// instrumentation cache.
//
// A class is identified for caching purposes by its name plus the MD5
// digest of the bytecode the host presented. Two loads of the same
// class with byte-identical definitions produce the same [Digest], so
// the cached instrumentation can be reused without asking the
// collector again. MD5 is used because the collector and existing
// on-disk caches already agree on it; collision resistance is not a
// requirement here, the digest only detects changed class files.
//
// The API surface is small:
//
//   - [Of] -- digests a bytecode buffer
//   - [Digest.String] -- canonical lowercase hex form used in logs and
//     the cache inspector
//   - [Parse] -- parses the hex form back, validating length and
//     encoding
//
// This package has no dependencies on other Loom packages.
package digest
