// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package classcache

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// ContentHash is the BLAKE3 hash of a class's uncompressed
// instrumented bytecode, recorded in metadata to detect torn or
// damaged bytecode files.
type ContentHash [32]byte

// String returns the lowercase hex encoding of the hash.
func (h ContentHash) String() string {
	return hex.EncodeToString(h[:])
}

type domainKey [32]byte

// Domain keys are ASCII names zero-padded to 32 bytes. Changing them
// invalidates every existing cache.
var (
	bytecodeDomainKey = domainKey{
		'l', 'o', 'o', 'm', '.', 'c', 'l', 'a', 's', 's', 'c', 'a', 'c', 'h', 'e', '.',
		'b', 'y', 't', 'e', 'c', 'o', 'd', 'e', 0, 0, 0, 0, 0, 0, 0, 0,
	}

	namespaceDomainKey = domainKey{
		'l', 'o', 'o', 'm', '.', 'c', 'l', 'a', 's', 's', 'c', 'a', 'c', 'h', 'e', '.',
		'n', 'a', 'm', 'e', 's', 'p', 'a', 'c', 'e', 0, 0, 0, 0, 0, 0, 0,
	}
)

func hashBytecode(data []byte) ContentHash {
	return keyedHash(bytecodeDomainKey, data)
}

// Namespace returns a short directory name derived from the working
// set expression and the structure database id. Caches rooted under
// different namespaces never share decisions, which matters when the
// collector would instrument the same bytecode differently for a
// different scope.
func Namespace(workingSet, structureDatabaseID string) string {
	data := make([]byte, 0, len(workingSet)+1+len(structureDatabaseID))
	data = append(data, workingSet...)
	data = append(data, 0)
	data = append(data, structureDatabaseID...)
	sum := keyedHash(namespaceDomainKey, data)
	return hex.EncodeToString(sum[:8])
}

func keyedHash(key domainKey, data []byte) [32]byte {
	// NewKeyed only fails on a wrong key length, which domainKey rules out.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("classcache: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var sum [32]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}
