// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package classcache

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/loomtrace/loom/lib/collector/wire"
)

// maxBytecodeSize is the largest class definition the collector can
// send, and so the largest size a stored record may claim.
const maxBytecodeSize = wire.MaxBlobLength

// CompressionTag identifies how a class.bin file is encoded. Tags are
// stored in metadata records; changing the values breaks existing
// caches.
type CompressionTag uint8

const (
	// CompressionNone stores bytecode as-is.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 stores an LZ4 block.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd stores a zstd frame.
	CompressionZstd CompressionTag = 2

	// CompressionAuto is a policy, never a stored tag: probe each class
	// with zstd and pick zstd, LZ4, or none by the achieved ratio.
	CompressionAuto CompressionTag = 0xff
)

// String returns the configuration name of the tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionAuto:
		return "auto"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseCompression parses a configuration name. The empty string
// selects CompressionNone.
func ParseCompression(name string) (CompressionTag, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	case "auto":
		return CompressionAuto, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4, zstd, or auto)", name)
	}
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("classcache: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("classcache: zstd decoder initialization failed: " + err.Error())
	}
}

// errIncompressible is returned when the encoded form is not smaller
// than the input. Callers fall back to CompressionNone.
var errIncompressible = errors.New("data is incompressible")

// selectCompression probes data with zstd. A ratio of at least 1.5
// selects zstd, at least 1.1 selects LZ4, anything less is stored raw.
func selectCompression(data []byte) CompressionTag {
	if len(data) == 0 {
		return CompressionNone
	}
	compressed := zstdEncoder.EncodeAll(data, nil)
	ratio := float64(len(data)) / float64(len(compressed))
	switch {
	case ratio >= 1.5:
		return CompressionZstd
	case ratio >= 1.1:
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// compress encodes data under policy and returns the bytes and the tag
// actually used. Incompressible data is returned unchanged with
// CompressionNone.
func compress(data []byte, policy CompressionTag) ([]byte, CompressionTag, error) {
	tag := policy
	if policy == CompressionAuto {
		tag = selectCompression(data)
	}

	var (
		encoded []byte
		err     error
	)
	switch tag {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		encoded, err = compressLZ4(data)
	case CompressionZstd:
		encoded, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("unsupported compression tag %d", tag)
	}
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return encoded, tag, nil
}

// decompress reverses compress. The output length must equal size,
// which must lie in [0, maxBytecodeSize].
func decompress(encoded []byte, tag CompressionTag, size int) ([]byte, error) {
	if size < 0 || size > maxBytecodeSize {
		return nil, fmt.Errorf("recorded size %d outside [0, %d]", size, maxBytecodeSize)
	}
	switch tag {
	case CompressionNone:
		if len(encoded) != size {
			return nil, fmt.Errorf("uncompressed bytecode: size %d does not match expected %d", len(encoded), size)
		}
		return encoded, nil
	case CompressionLZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(encoded, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return destination, nil
	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(encoded, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock reports 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}
