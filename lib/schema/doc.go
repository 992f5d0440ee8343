// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the value types that flow between Loom's
// components: [ClassRecord] (one class's instrumentation decision),
// [TracedMethod] (per-method tracing metadata issued by the
// collector), and [LastIDs] (the collector's id counters, persisted so
// a restarted process does not reuse ids).
//
// The types carry `cbor` tags because the class cache persists them.
// This package depends only on lib/digest.
package schema
