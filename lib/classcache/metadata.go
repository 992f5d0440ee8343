// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package classcache

import (
	"github.com/loomtrace/loom/lib/codec"
	"github.com/loomtrace/loom/lib/digest"
	"github.com/loomtrace/loom/lib/schema"
)

// metadataVersion is bumped on any incompatible change to the record.
// Records with another version read back as misses.
const metadataVersion = 1

// metadataRecord is the CBOR content of info.cbor.
type metadataRecord struct {
	Version       int                   `cbor:"version"`
	Name          string                `cbor:"name"`
	Digest        digest.Digest         `cbor:"digest"`
	Instrumented  bool                  `cbor:"instrumented"`
	ClassID       int32                 `cbor:"class_id,omitempty"`
	TracedMethods []schema.TracedMethod `cbor:"traced_methods,omitempty"`
	Compression   CompressionTag        `cbor:"compression,omitempty"`
	Size          int64                 `cbor:"size,omitempty"`
	StoredSize    int64                 `cbor:"stored_size,omitempty"`
	ContentHash   ContentHash           `cbor:"content_hash"`
}

func marshalMetadata(record *metadataRecord) ([]byte, error) {
	return codec.Marshal(record)
}

func unmarshalMetadata(data []byte) (*metadataRecord, error) {
	var record metadataRecord
	if err := codec.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Entry summarizes one stored record for listing.
type Entry struct {
	Name         string
	Digest       digest.Digest
	Instrumented bool
	ClassID      int32
	MethodCount  int
	Compression  CompressionTag
	Size         int64
	StoredSize   int64
	ContentHash  ContentHash
}

func (record *metadataRecord) entry() Entry {
	return Entry{
		Name:         record.Name,
		Digest:       record.Digest,
		Instrumented: record.Instrumented,
		ClassID:      record.ClassID,
		MethodCount:  len(record.TracedMethods),
		Compression:  record.Compression,
		Size:         record.Size,
		StoredSize:   record.StoredSize,
		ContentHash:  record.ContentHash,
	}
}
