// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package grammar defines the lexical and syntactic grammar shared by
// Portage dependency strings (DEPEND, RDEPEND, ...) and REQUIRED_USE: both
// are a parenthesized tree of all-of / any-of / exactly-one-of / at-most-one-
// of groups and USE-conditional blocks, bottoming out in an opaque "word"
// whose interpretation (a package atom, or a USE flag test) is supplied by
// the caller.
package grammar

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var lex = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "whitespace", Pattern: `\s+`},
	{Name: "Paren", Pattern: `[()]`},
	{Name: "GroupOp", Pattern: `\|\||\^\^|\?\?`},
	{Name: "Condition", Pattern: `!?[A-Za-z0-9][A-Za-z0-9+_@-]*\?`},
	{Name: "Word", Pattern: `[^\s()]+`},
})

var parser = participle.MustBuild[AllOf](participle.Lexer(lex))

// Parse parses s as a top-level all-of list (the implicit outer grouping of
// a dependency string or REQUIRED_USE string).
func Parse(s string) (*AllOf, error) {
	return parser.ParseString("", s)
}

// Node is one grammar production; exactly one field is non-nil.
type Node struct {
	AllOf          *AllOf          `parser:"'(' @@ ')'"`
	AnyOf          *AnyOf          `parser:"| '||' '(' @@ ')'"`
	ExactlyOneOf   *ExactlyOneOf   `parser:"| '^^' '(' @@ ')'"`
	AtMostOneOf    *AtMostOneOf    `parser:"| '??' '(' @@ ')'"`
	UseConditional *UseConditional `parser:"| @@"`
	Leaf           *Leaf           `parser:"| @@"`
}

type AllOf struct {
	Children []*Node `parser:"@@*"`
}

type AnyOf struct {
	Children []*Node `parser:"@@*"`
}

type ExactlyOneOf struct {
	Children []*Node `parser:"@@*"`
}

type AtMostOneOf struct {
	Children []*Node `parser:"@@*"`
}

type UseConditional struct {
	Condition string `parser:"@Condition"`
	Child     *AllOf `parser:"'(' @@ ')'"`
}

// Leaf is an uninterpreted token: a package atom in a dependency string, or
// a (possibly "!"-negated) flag name in a REQUIRED_USE string.
type Leaf struct {
	Raw string `parser:"@Word"`
}
