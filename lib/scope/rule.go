// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package scope

import (
	"fmt"
	"strings"
)

// RuleKind selects how a [Rule]'s reference name is compared against
// a class name.
type RuleKind uint8

const (
	// ExactClass matches a single fully qualified class name.
	ExactClass RuleKind = iota

	// SinglePackage matches every class whose package is exactly the
	// reference. Sub-packages do not match.
	SinglePackage

	// RecursivePackage matches every class whose package is the
	// reference or lies beneath it. The empty reference matches every
	// class.
	RecursivePackage
)

// String returns the pattern suffix for the kind.
func (kind RuleKind) String() string {
	switch kind {
	case ExactClass:
		return "class"
	case SinglePackage:
		return "package"
	case RecursivePackage:
		return "recursive-package"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(kind))
	}
}

// Rule is one class pattern. Reference is slash-separated with no
// trailing slash.
type Rule struct {
	Kind      RuleKind
	Reference string
}

// Matches reports whether className falls under the rule.
func (r Rule) Matches(className string) bool {
	switch r.Kind {
	case ExactClass:
		return className == r.Reference
	case SinglePackage:
		return packageOf(className) == r.Reference
	case RecursivePackage:
		if r.Reference == "" {
			return true
		}
		pkg := packageOf(className)
		if !strings.HasPrefix(pkg, r.Reference) {
			return false
		}
		return len(pkg) == len(r.Reference) || pkg[len(r.Reference)] == '/'
	default:
		return false
	}
}

// Pattern renders the rule in expression syntax, without a sign.
func (r Rule) Pattern() string {
	switch r.Kind {
	case SinglePackage:
		if r.Reference == "" {
			return "*"
		}
		return r.Reference + "/*"
	case RecursivePackage:
		if r.Reference == "" {
			return "**"
		}
		return r.Reference + "/**"
	default:
		return r.Reference
	}
}

// Operation is a signed rule: Include selects whether a match admits
// or rejects the class.
type Operation struct {
	Include bool
	Rule    Rule
}

// String renders the operation in expression syntax.
func (op Operation) String() string {
	if op.Include {
		return "+" + op.Rule.Pattern()
	}
	return "-" + op.Rule.Pattern()
}

// packageOf returns everything before the last slash, or "" for a
// class in the default package.
func packageOf(className string) string {
	index := strings.LastIndexByte(className, '/')
	if index < 0 {
		return ""
	}
	return className[:index]
}
