// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package scope

import "strings"

// Set is an ordered sequence of operations. The zero value (and the
// parsed form of "[]") rejects every class. A Set is immutable after
// construction and safe for concurrent use.
type Set struct {
	operations []Operation
}

// NewSet builds a set from operations in the order they were added.
func NewSet(operations ...Operation) *Set {
	copied := make([]Operation, len(operations))
	copy(copied, operations)
	return &Set{operations: copied}
}

// Accept reports whether className is in the set. Operations are
// consulted newest first; the first match decides. With no match the
// answer is the negation of the oldest operation's sign.
func (s *Set) Accept(className string) bool {
	if s == nil || len(s.operations) == 0 {
		return false
	}
	for i := len(s.operations) - 1; i >= 0; i-- {
		if s.operations[i].Rule.Matches(className) {
			return s.operations[i].Include
		}
	}
	return !s.operations[0].Include
}

// Operations returns a copy of the operations in insertion order.
func (s *Set) Operations() []Operation {
	if s == nil {
		return nil
	}
	copied := make([]Operation, len(s.operations))
	copy(copied, s.operations)
	return copied
}

// Len returns the number of operations.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.operations)
}

// String renders the canonical expression. Parsing the result yields
// an equivalent set.
func (s *Set) String() string {
	var builder strings.Builder
	builder.WriteByte('[')
	if s != nil {
		for i, op := range s.operations {
			if i > 0 {
				builder.WriteByte(' ')
			}
			builder.WriteString(op.String())
		}
	}
	builder.WriteByte(']')
	return builder.String()
}

// Matcher evaluates the primary scope and the special-case override.
type Matcher struct {
	primary      *Set
	specialCases *Set
}

// NewMatcher returns a matcher over primary and specialCases. A nil
// primary set admits every class (no scope configured). A nil
// specialCases set never overrides.
func NewMatcher(primary, specialCases *Set) *Matcher {
	return &Matcher{primary: primary, specialCases: specialCases}
}

// Accept reports whether className should be instrumented. A class the
// primary set rejects is still accepted when the special-case set
// accepts it.
func (m *Matcher) Accept(className string) bool {
	if m.primary == nil {
		return true
	}
	if m.primary.Accept(className) {
		return true
	}
	return m.specialCases != nil && m.specialCases.Accept(className)
}

// Primary returns the primary set, or nil.
func (m *Matcher) Primary() *Set { return m.primary }

// SpecialCases returns the special-case set, or nil.
func (m *Matcher) SpecialCases() *Set { return m.specialCases }
