// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// Size is the length of a digest in bytes.
const Size = md5.Size

// Digest is the MD5 digest of a class definition.
type Digest [Size]byte

// Of returns the digest of data. A nil or empty buffer has a
// well-defined digest (the MD5 of the empty string).
func Of(data []byte) Digest {
	return Digest(md5.Sum(data))
}

// String returns the lowercase hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero value. No real input hashes to
// all zeros in practice, so the zero value marks "no digest recorded".
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Parse parses a 32-character hex string into a Digest.
func Parse(hexString string) (Digest, error) {
	var d Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return d, fmt.Errorf("parsing class digest: %w", err)
	}
	if len(decoded) != Size {
		return d, fmt.Errorf("class digest is %d bytes, want %d", len(decoded), Size)
	}
	copy(d[:], decoded)
	return d, nil
}
