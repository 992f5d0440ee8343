// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package classcache

import (
	"fmt"
	"strings"
)

// EscapeName maps a slash-separated class name to a relative path.
// Within each segment, ASCII letters, digits, '_' and '-' are kept and
// every other byte becomes %XX (uppercase hex). An empty segment
// becomes "%", which no escaped non-empty segment can produce. The
// mapping is injective, and no escaped segment is "." or ".." or
// collides with the record file names.
func EscapeName(className string) string {
	segments := strings.Split(className, "/")
	for i, segment := range segments {
		segments[i] = escapeSegment(segment)
	}
	return strings.Join(segments, "/")
}

func escapeSegment(segment string) string {
	if segment == "" {
		return "%"
	}
	var builder strings.Builder
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		if isPortable(c) {
			builder.WriteByte(c)
			continue
		}
		fmt.Fprintf(&builder, "%%%02X", c)
	}
	return builder.String()
}

func isPortable(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '_' || c == '-'
}
