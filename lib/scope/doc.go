// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package scope decides which classes participate in tracing.
//
// A scope (also called a working set) is written as a bracketed list of
// include and exclude rules:
//
//	[-java/io/** +java/io/yes/* -tod/agent]
//
// Each rule is a sign followed by a pattern over slash-separated class
// names (dots are accepted and normalized to slashes):
//
//   - "pkg/Class" matches exactly one class ([ExactClass])
//   - "pkg/*" matches the classes directly in pkg ([SinglePackage])
//   - "pkg/**" matches the classes in pkg and every sub-package
//     ([RecursivePackage])
//
// Evaluation walks the rules from the most recently added to the
// oldest and returns the sign of the first rule that matches. When no
// rule matches, the result is the opposite of the first rule's sign: a
// scope that starts with an include is an allow-list, one that starts
// with an exclude is a deny-list. The empty scope "[]" rejects
// everything.
//
// [Matcher] combines a primary [Set] with an optional special-case set
// whose acceptance overrides a rejection by the primary set. The
// matcher is evaluated on every class load, so [Set.Accept] allocates
// nothing and takes no locks.
package scope
