// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"

	"github.com/loomtrace/loom/lib/digest"
)

// TracedMethod is the collector's tracing metadata for one method of
// an instrumented class.
type TracedMethod struct {
	BehaviorID          int32 `cbor:"behavior_id"`
	InstrumentationMode int8  `cbor:"instrumentation_mode"`
	CallMode            int8  `cbor:"call_mode"`
}

// ClassRecord is the instrumentation decision for one (name, digest)
// pair. A record with Instrumented false is the explicit "leave this
// class alone" answer; its Bytecode and TracedMethods are empty and
// its ClassID is meaningless.
type ClassRecord struct {
	Name          string
	Digest        digest.Digest
	Instrumented  bool
	ClassID       int32
	Bytecode      []byte
	TracedMethods []TracedMethod
}

// Validate checks the structural invariants the cache relies on.
func (r *ClassRecord) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("class record has empty name")
	}
	if r.Digest.IsZero() {
		return fmt.Errorf("class record %q has zero digest", r.Name)
	}
	if r.Instrumented {
		if len(r.Bytecode) == 0 {
			return fmt.Errorf("instrumented class record %q has no bytecode", r.Name)
		}
		return nil
	}
	if len(r.Bytecode) != 0 || len(r.TracedMethods) != 0 {
		return fmt.Errorf("class record %q is not instrumented but carries bytecode or methods", r.Name)
	}
	return nil
}

// LastIDs holds the last class, behavior, and field ids the collector
// has allocated. The collector reports fresh values after every
// instrumentation; the client persists them and pushes them back on
// reconnect so ids stay unique across restarts.
type LastIDs struct {
	ClassID    int32 `cbor:"class_id"`
	BehaviorID int32 `cbor:"behavior_id"`
	FieldID    int32 `cbor:"field_id"`
}

// Max returns the component-wise maximum of ids and other.
func (ids LastIDs) Max(other LastIDs) LastIDs {
	return LastIDs{
		ClassID:    max(ids.ClassID, other.ClassID),
		BehaviorID: max(ids.BehaviorID, other.BehaviorID),
		FieldID:    max(ids.FieldID, other.FieldID),
	}
}
