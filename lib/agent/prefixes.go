// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import "strings"

// agentPrefixes are the runtime's own classes and profilers that must
// never be instrumented.
var agentPrefixes = []string{
	"loom/agent/",
	"loom/runtime/",
	"java/loom/",
	"com/yourkit/",
}

// corePrefixes are skipped when the session asks to skip core classes.
var corePrefixes = []string{
	"java/",
	"javax/",
	"sun/",
	"com/sun/",
	"jdk/",
}

// bootstrapPrefixes are loaded before any application code. The first
// class outside them starts event capture.
var bootstrapPrefixes = []string{
	"java/",
	"javax/",
	"sun/",
	"jdk/",
	"loom/",
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
