// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"unicode/utf16"
	"unicode/utf8"
)

// MaxUTFLength is the largest encoded string the 16-bit prefix allows.
const MaxUTFLength = 0xFFFF

// EncodeModifiedUTF8 encodes s the way Java's DataOutput.writeUTF
// does. Invalid UTF-8 in s is encoded as U+FFFD.
func EncodeModifiedUTF8(s string) []byte {
	encoded := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r == 0:
			encoded = append(encoded, 0xC0, 0x80)
		case r < 0x80:
			encoded = append(encoded, byte(r))
		case r < 0x800:
			encoded = append(encoded, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			encoded = appendThreeByte(encoded, uint16(r))
		default:
			high, low := utf16.EncodeRune(r)
			encoded = appendThreeByte(encoded, uint16(high))
			encoded = appendThreeByte(encoded, uint16(low))
		}
	}
	return encoded
}

func appendThreeByte(encoded []byte, unit uint16) []byte {
	return append(encoded,
		0xE0|byte(unit>>12),
		0x80|byte((unit>>6)&0x3F),
		0x80|byte(unit&0x3F))
}

// DecodeModifiedUTF8 reverses EncodeModifiedUTF8. Unpaired surrogates
// decode to U+FFFD, matching utf16.Decode. Truncated or malformed
// sequences are a *ProtocolError.
func DecodeModifiedUTF8(encoded []byte) (string, error) {
	units := make([]uint16, 0, len(encoded))
	for i := 0; i < len(encoded); {
		c := encoded[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(encoded) || encoded[i+1]&0xC0 != 0x80 {
				return "", protocolErrorf("malformed two-byte sequence at offset %d", i)
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(encoded[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(encoded) || encoded[i+1]&0xC0 != 0x80 || encoded[i+2]&0xC0 != 0x80 {
				return "", protocolErrorf("malformed three-byte sequence at offset %d", i)
			}
			units = append(units,
				uint16(c&0x0F)<<12|uint16(encoded[i+1]&0x3F)<<6|uint16(encoded[i+2]&0x3F))
			i += 3
		default:
			return "", protocolErrorf("invalid modified UTF-8 lead byte 0x%02x at offset %d", c, i)
		}
	}

	runes := utf16.Decode(units)
	buffer := make([]byte, 0, len(runes))
	for _, r := range runes {
		buffer = utf8.AppendRune(buffer, r)
	}
	return string(buffer), nil
}
