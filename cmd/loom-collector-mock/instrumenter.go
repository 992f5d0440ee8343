// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/loomtrace/loom/lib/collector"
	"github.com/loomtrace/loom/lib/collector/collectortest"
)

func instrumenterFor(mode string, methods int) (collectortest.Instrumenter, error) {
	if methods < 0 || methods > collector.MaxTracedMethods {
		return nil, fmt.Errorf("--methods must be between 0 and %d, got %d", collector.MaxTracedMethods, methods)
	}
	switch mode {
	case "always":
		return collectortest.AlwaysInstrument(methods), nil
	case "never":
		return collectortest.NeverInstrument, nil
	default:
		return nil, fmt.Errorf("unknown --mode %q (want always or never)", mode)
	}
}
