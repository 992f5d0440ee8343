// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for Loom binaries.
//
// Three variables are injected at build time with -ldflags -X:
//
//	go build -ldflags "-X github.com/loomtrace/loom/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// [GitCommit] and [BuildTime] default to "unknown" and [Version] to a
// development version when not injected, which is the case for test
// runs.
package version
