// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package scope

import (
	"errors"
	"testing"
)

func TestParseAndAccept(t *testing.T) {
	set, err := Parse("[-java/io/** +java/io/yes/* -tod/agent]")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tests := []struct {
		className string
		want      bool
	}{
		{"java/io/yes/Tata", true},
		{"java/io/Tata", false},
		{"java/io/blip/Titi", false},
		{"java/io/yes/no/Tata", false},
		{"tod/agent", false},
		// No rule matches: the oldest operation is an exclusion, so
		// unmatched classes are admitted.
		{"com/acme/Widget", true},
		{"tod/agent/Inner", true},
	}
	for _, test := range tests {
		t.Run(test.className, func(t *testing.T) {
			if got := set.Accept(test.className); got != test.want {
				t.Errorf("Accept(%q) = %v, want %v", test.className, got, test.want)
			}
		})
	}
}

func TestEmptySetRejectsEverything(t *testing.T) {
	set, err := Parse("[]")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	for _, name := range []string{"Foo", "java/lang/Object", "a/b/c/D"} {
		if set.Accept(name) {
			t.Errorf("Accept(%q) = true on empty set", name)
		}
	}

	var nilSet *Set
	if nilSet.Accept("Foo") {
		t.Error("nil set accepted a class")
	}
}

func TestAllowListFallback(t *testing.T) {
	set := MustParse("[+com/acme/**]")
	if !set.Accept("com/acme/core/Engine") {
		t.Error("included class rejected")
	}
	if set.Accept("org/other/Thing") {
		t.Error("unmatched class accepted by an allow-list")
	}
}

func TestDenyListFallback(t *testing.T) {
	set := MustParse("[-com/acme/gen/*]")
	if set.Accept("com/acme/gen/Stub") {
		t.Error("excluded class accepted")
	}
	if !set.Accept("com/acme/gen/deeper/Stub") {
		t.Error("single-package exclusion leaked into a sub-package")
	}
	if !set.Accept("org/other/Thing") {
		t.Error("unmatched class rejected by a deny-list")
	}
}

func TestNewestOperationWins(t *testing.T) {
	set := MustParse("[+com/acme/** -com/acme/Secret +com/acme/Secret]")
	if !set.Accept("com/acme/Secret") {
		t.Error("later inclusion did not override earlier exclusion")
	}
	set = MustParse("[+com/acme/** +com/acme/Secret -com/acme/Secret]")
	if set.Accept("com/acme/Secret") {
		t.Error("later exclusion did not override earlier inclusion")
	}
}

func TestDotsNormalized(t *testing.T) {
	dotted := MustParse("[+com.acme.** -com.acme.gen.*]")
	slashed := MustParse("[+com/acme/** -com/acme/gen/*]")
	if dotted.String() != slashed.String() {
		t.Errorf("dotted = %s, slashed = %s", dotted, slashed)
	}
}

func TestRootPatterns(t *testing.T) {
	all := MustParse("[+**]")
	for _, name := range []string{"Foo", "a/B", "a/b/c/D"} {
		if !all.Accept(name) {
			t.Errorf("[+**] rejected %q", name)
		}
	}

	defaultPackage := MustParse("[+*]")
	if !defaultPackage.Accept("Foo") {
		t.Error("[+*] rejected a default-package class")
	}
	if defaultPackage.Accept("a/Foo") {
		t.Error("[+*] accepted a packaged class")
	}
}

func TestRecursiveMatchesPackageItself(t *testing.T) {
	set := MustParse("[+com/acme/**]")
	if !set.Accept("com/acme/Widget") {
		t.Error("recursive rule did not match a class directly in its package")
	}
	if set.Accept("com/acmex/Widget") {
		t.Error("recursive rule matched a sibling package sharing a prefix")
	}
}

func TestTrailingSlashStripped(t *testing.T) {
	set := MustParse("[+com/acme/]")
	ops := set.Operations()
	if len(ops) != 1 || ops[0].Rule.Reference != "com/acme" || ops[0].Rule.Kind != ExactClass {
		t.Fatalf("operations = %+v", ops)
	}
}

func TestStringRoundtrip(t *testing.T) {
	expressions := []string{
		"[]",
		"[+**]",
		"[-*]",
		"[-java/io/** +java/io/yes/* -tod/agent]",
		"[+com/acme/Outer$Inner]",
	}
	for _, expression := range expressions {
		t.Run(expression, func(t *testing.T) {
			set := MustParse(expression)
			if got := set.String(); got != expression {
				t.Fatalf("String() = %q, want %q", got, expression)
			}
			reparsed := MustParse(set.String())
			if reparsed.String() != expression {
				t.Errorf("reparsed = %q", reparsed.String())
			}
		})
	}
}

func TestWhitespaceTolerated(t *testing.T) {
	set, err := Parse("  [  +com/acme/**\t-com/acme/gen/*  ]  ")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if set.Len() != 2 {
		t.Errorf("Len() = %d, want 2", set.Len())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name       string
		expression string
	}{
		{"missing open bracket", "+com/acme/**]"},
		{"missing close bracket", "[+com/acme/**"},
		{"empty input", ""},
		{"three stars", "[+com/acme/***]"},
		{"name after star", "[+com/*acme]"},
		{"unknown token", "[*com/acme]"},
		{"invalid character", "[+com/acme!]"},
		{"empty exact name", "[+ -foo]"},
		{"sign at end", "[+]"},
		{"text after close", "[+foo] extra"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(test.expression)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", test.expression)
			}
			var parseError *ParseError
			if !errors.As(err, &parseError) {
				t.Fatalf("error %v is %T, want *ParseError", err, err)
			}
			if parseError.Reason == "" {
				t.Error("ParseError has empty reason")
			}
		})
	}
}

func TestMustParsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse did not panic on a malformed expression")
		}
	}()
	MustParse("[+a/***]")
}

func TestMatcher(t *testing.T) {
	primary := MustParse("[+com/acme/**]")
	special := MustParse("[+java/util/ArrayList +java/util/HashMap]")
	matcher := NewMatcher(primary, special)

	tests := []struct {
		className string
		want      bool
	}{
		{"com/acme/Widget", true},
		{"java/util/ArrayList", true},
		{"java/util/HashMap", true},
		{"java/util/LinkedList", false},
	}
	for _, test := range tests {
		if got := matcher.Accept(test.className); got != test.want {
			t.Errorf("Accept(%q) = %v, want %v", test.className, got, test.want)
		}
	}

	if !NewMatcher(nil, nil).Accept("anything/At/All") {
		t.Error("matcher without a primary set rejected a class")
	}
	if NewMatcher(primary, nil).Accept("java/util/ArrayList") {
		t.Error("matcher without special cases accepted an out-of-scope class")
	}
}

func TestAcceptDeterministic(t *testing.T) {
	set := MustParse("[-java/io/** +java/io/yes/* -tod/agent]")
	first := set.Accept("java/io/yes/Tata")
	for range 100 {
		if set.Accept("java/io/yes/Tata") != first {
			t.Fatal("Accept returned different answers for the same class")
		}
	}
}
