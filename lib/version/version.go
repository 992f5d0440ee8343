// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"os"
	"runtime"
)

// Set with -ldflags at build time.
var (
	GitCommit = "unknown"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// Info returns the string printed by --version.
func Info() string {
	return fmt.Sprintf("%s (%s, %s)", Version, GitCommit, BuildTime)
}

// Full returns Info plus the Go toolchain and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Print writes "<program> <Info>" to stdout for --version.
func Print(program string) {
	fmt.Fprintf(os.Stdout, "%s %s\n", program, Info())
}

// ClientName returns the name a binary announces to the collector when
// the configuration does not set one: "loom-<program>/<version>@<host>".
func ClientName(program, hostname string) string {
	return fmt.Sprintf("loom-%s/%s@%s", program, Version, hostname)
}
