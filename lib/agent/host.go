// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"github.com/loomtrace/loom/lib/collector"
	"github.com/loomtrace/loom/lib/digest"
	"github.com/loomtrace/loom/lib/schema"
)

// Host is the managed runtime the coordinator calls back into.
type Host interface {
	// StartCapture begins event capture. Called once, on the first
	// load of a class outside the bootstrap namespaces.
	StartCapture()

	// RegisterTracedMethod tells the runtime how one method is traced.
	RegisterTracedMethod(method schema.TracedMethod)

	// DeliverException forwards an exception event that passed the
	// filters.
	DeliverException(event ExceptionEvent)
}

// ExceptionEvent describes a thrown exception.
type ExceptionEvent struct {
	// ThrowingClass is the slash-separated name of the class whose
	// method threw.
	ThrowingClass string

	// ThrowingMethod is the method name, without signature.
	ThrowingMethod string

	// MethodSignature is the throwing method's descriptor, for example
	// "(Ljava/lang/String;)Ljava/lang/Class;".
	MethodSignature string

	// BytecodeIndex is the throw location within the method.
	BytecodeIndex int32

	// ExceptionID is the object id of the exception instance.
	ExceptionID int64
}

// MethodKey returns "ThrowingClass.ThrowingMethod(descriptor)ret", the
// form used in the ignored-methods list. Overloads have distinct keys.
func (e ExceptionEvent) MethodKey() string {
	return e.ThrowingClass + "." + e.ThrowingMethod + e.MethodSignature
}

// CollectorClient is the part of the collector client the coordinator
// uses. *collector.Client implements it.
type CollectorClient interface {
	Instrument(name string, bytecode []byte) (*collector.InstrumentResult, error)
	UseCachedClass(classID int32) error
	RegisterClass(name string, bytecode []byte) error
	Flush() error
	Close() error
}

// ClassCache is the part of the class cache the coordinator uses.
// *classcache.Cache implements it.
type ClassCache interface {
	Lookup(name string, sum digest.Digest) (*schema.ClassRecord, bool, error)
	Store(record *schema.ClassRecord) error
	SaveLastIDs(ids schema.LastIDs) error
	Close() error
}

// Outcome classifies a class load.
type Outcome uint8

const (
	// OutcomeSkipped: agent or core namespace, empty name, or a load
	// after shutdown. Never matched, cached, or sent.
	OutcomeSkipped Outcome = iota

	// OutcomeOutOfScope: rejected by the scope matcher.
	OutcomeOutOfScope

	// OutcomeCacheHit: answered from the local cache.
	OutcomeCacheHit

	// OutcomeInstrumented: instrumented by the collector.
	OutcomeInstrumented

	// OutcomeNotInstrumented: the collector chose not to instrument.
	OutcomeNotInstrumented
)

// String returns the metric label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeOutOfScope:
		return "out_of_scope"
	case OutcomeCacheHit:
		return "cache_hit"
	case OutcomeInstrumented:
		return "instrumented"
	case OutcomeNotInstrumented:
		return "not_instrumented"
	default:
		return "unknown"
	}
}

// LoadResult is the coordinator's answer for one class load.
type LoadResult struct {
	Outcome Outcome

	// Bytecode is the replacement definition, or nil to keep the
	// original.
	Bytecode []byte

	// ClassID is the collector's id for an instrumented class.
	ClassID int32

	// TracedMethods is how many methods were registered or buffered.
	TracedMethods int
}
