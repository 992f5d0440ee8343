// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package classcache

import "testing"

func TestEscapeName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Foo", "Foo"},
		{"com/acme/Widget", "com/acme/Widget"},
		{"com/acme/Outer$Inner", "com/acme/Outer%24Inner"},
		{"a/b-c/d_e", "a/b-c/d_e"},
		{"a//B", "a/%/B"},
		{"/Leading", "%/Leading"},
		{"..", "%2E%2E"},
		{"info.cbor", "info%2Ecbor"},
		{"café/X", "caf%C3%A9/X"},
		{"100%", "100%25"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := EscapeName(test.name); got != test.want {
				t.Errorf("EscapeName(%q) = %q, want %q", test.name, got, test.want)
			}
		})
	}
}

func TestEscapeNameInjective(t *testing.T) {
	names := []string{"a/b", "a%2Fb", "a$b", "a%24b", "a//b", "a/%/b", "", "%"}
	seen := map[string]string{}
	for _, name := range names {
		escaped := EscapeName(name)
		if previous, ok := seen[escaped]; ok {
			t.Errorf("EscapeName(%q) and EscapeName(%q) both = %q", previous, name, escaped)
		}
		seen[escaped] = name
	}
}

func TestNamespace(t *testing.T) {
	a := Namespace("[+com/acme/**]", "db1")
	if a != Namespace("[+com/acme/**]", "db1") {
		t.Error("Namespace is not stable")
	}
	if len(a) != 16 {
		t.Errorf("Namespace length = %d, want 16", len(a))
	}
	distinct := []string{
		Namespace("[+com/acme/**]", "db2"),
		Namespace("[+com/other/**]", "db1"),
		Namespace("[+com/acme/**]db1", ""),
	}
	for _, other := range distinct {
		if other == a {
			t.Errorf("Namespace collision: %s", other)
		}
	}
}
