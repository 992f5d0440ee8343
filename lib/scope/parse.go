// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package scope

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseError reports a malformed scope expression. Offset is the byte
// offset into the normalized expression where parsing stopped.
type ParseError struct {
	Expression string
	Offset     int
	Reason     string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing scope %q: %s at offset %d", e.Expression, e.Reason, e.Offset)
}

// Parse compiles a scope expression such as "[+com/acme/** -com/acme/gen/*]".
// Dots are normalized to slashes first, so "com.acme.**" is equivalent
// to "com/acme/**". Surrounding whitespace is ignored.
func Parse(expression string) (*Set, error) {
	normalized := strings.TrimSpace(strings.ReplaceAll(expression, ".", "/"))
	p := &parser{input: normalized}
	operations, err := p.parse()
	if err != nil {
		return nil, err
	}
	return &Set{operations: operations}, nil
}

// MustParse is like Parse but panics on error. For expressions fixed
// at compile time.
func MustParse(expression string) *Set {
	set, err := Parse(expression)
	if err != nil {
		panic(err)
	}
	return set
}

type parser struct {
	input    string
	position int
}

func (p *parser) fail(format string, args ...any) error {
	return &ParseError{
		Expression: p.input,
		Offset:     p.position,
		Reason:     fmt.Sprintf(format, args...),
	}
}

func (p *parser) parse() ([]Operation, error) {
	if !strings.HasPrefix(p.input, "[") {
		return nil, p.fail("expression must start with '['")
	}
	p.position = 1

	var operations []Operation
	for {
		if p.position >= len(p.input) {
			return nil, p.fail("unterminated expression, missing ']'")
		}
		c := p.input[p.position]
		switch {
		case c == ']':
			p.position++
			if rest := strings.TrimSpace(p.input[p.position:]); rest != "" {
				return nil, p.fail("unexpected %q after ']'", rest)
			}
			return operations, nil
		case isSpace(c):
			p.position++
		case c == '+' || c == '-':
			p.position++
			rule, err := p.parseRule()
			if err != nil {
				return nil, err
			}
			operations = append(operations, Operation{Include: c == '+', Rule: rule})
		default:
			r, _ := utf8.DecodeRuneInString(p.input[p.position:])
			return nil, p.fail("invalid token %q", r)
		}
	}
}

// parseRule reads one pattern after its sign. It stops before the
// terminating space or ']' without consuming it.
func (p *parser) parseRule() (Rule, error) {
	start := p.position
	nameEnd := -1
	stars := 0

	for p.position < len(p.input) {
		r, width := utf8.DecodeRuneInString(p.input[p.position:])
		if r == ']' || (r < utf8.RuneSelf && isSpace(byte(r))) {
			break
		}
		switch {
		case r == '*':
			if nameEnd < 0 {
				nameEnd = p.position
			}
			stars++
			if stars > 2 {
				return Rule{}, p.fail("too many '*' in pattern")
			}
		case isNameRune(r):
			if stars > 0 {
				return Rule{}, p.fail("name characters after '*'")
			}
		default:
			return Rule{}, p.fail("invalid character %q in pattern", r)
		}
		p.position += width
	}
	if nameEnd < 0 {
		nameEnd = p.position
	}

	reference := strings.TrimSuffix(p.input[start:nameEnd], "/")

	switch stars {
	case 0:
		if reference == "" {
			return Rule{}, p.fail("empty class name")
		}
		return Rule{Kind: ExactClass, Reference: reference}, nil
	case 1:
		return Rule{Kind: SinglePackage, Reference: reference}, nil
	default:
		return Rule{Kind: RecursivePackage, Reference: reference}, nil
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isNameRune(r rune) bool {
	return r == '_' || r == '$' || r == '/' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
