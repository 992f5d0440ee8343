// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Loom packages.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so tests that wait on goroutines never hang the suite.
//
// [UniqueClassName] and [ClassBytes] produce distinct class names and
// deterministic class-file-shaped payloads for cache and coordinator
// tests. The payloads start with the class file magic number but are
// not loadable classes; nothing in Loom parses them.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Loom-internal dependencies.
package testutil
