// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"errors"
	"fmt"
)

// ErrHostIDOverflow is returned by the handshake when the assigned
// host id does not fit in the announced host bit width.
var ErrHostIDOverflow = errors.New("host id does not fit in host bits")

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("collector client closed")

// ServerError carries an error message the collector reported in place
// of instrumented bytecode.
type ServerError struct {
	Class   string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("collector failed to instrument %s: %s", e.Class, e.Message)
}
