// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers shared by Loom binaries
// and by the embedded runtime:
//
//   - [Fatal] reports an unrecoverable error on stderr and exits. The
//     class-load coordinator routes protocol, cache, and id-space
//     failures here, since the host cannot continue with a broken
//     instrumentation session.
//   - [NewLogger] builds the standard JSON slog logger at a level
//     derived from the configured verbosity.
package process
