// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package dependency

import (
	"fmt"

	"cros.local/depgraph/internal/dependency/internal/grammar"
)

// ParseAtomTree parses a DEPEND-style dependency string into a tree of
// *Atom leaves.
func ParseAtomTree(s string) (*Node[*Atom], error) {
	return parseTree(s, func(raw string) (*Atom, error) { return Parse(raw) })
}

func parseTree[L any](s string, leaf func(raw string) (L, error)) (*Node[L], error) {
	g, err := grammar.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("dependency: parsing %q: %w", s, err)
	}
	return compileAllOf(g, leaf)
}

func compileAllOf[L any](g *grammar.AllOf, leaf func(string) (L, error)) (*Node[L], error) {
	children, err := compileNodes(g.Children, leaf)
	if err != nil {
		return nil, err
	}
	return AllOf(children...), nil
}

func compileNodes[L any](nodes []*grammar.Node, leaf func(string) (L, error)) ([]*Node[L], error) {
	out := make([]*Node[L], len(nodes))
	for i, n := range nodes {
		c, err := compileNode(n, leaf)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func compileNode[L any](n *grammar.Node, leaf func(string) (L, error)) (*Node[L], error) {
	switch {
	case n.AllOf != nil:
		return compileAllOf(n.AllOf, leaf)
	case n.AnyOf != nil:
		children, err := compileNodes(n.AnyOf.Children, leaf)
		if err != nil {
			return nil, err
		}
		return AnyOf(children...), nil
	case n.ExactlyOneOf != nil:
		children, err := compileNodes(n.ExactlyOneOf.Children, leaf)
		if err != nil {
			return nil, err
		}
		return ExactlyOneOf(children...), nil
	case n.AtMostOneOf != nil:
		children, err := compileNodes(n.AtMostOneOf.Children, leaf)
		if err != nil {
			return nil, err
		}
		return AtMostOneOf(children...), nil
	case n.UseConditional != nil:
		child, err := compileAllOf(n.UseConditional.Child, leaf)
		if err != nil {
			return nil, err
		}
		cond := n.UseConditional.Condition
		expect := true
		name := cond
		if name[0] == '!' {
			expect = false
			name = name[1:]
		}
		name = name[:len(name)-1] // trailing "?"
		return UseConditional(name, expect, child), nil
	case n.Leaf != nil:
		l, err := leaf(n.Leaf.Raw)
		if err != nil {
			return nil, err
		}
		return Leaf(l), nil
	default:
		return nil, fmt.Errorf("dependency: empty grammar node")
	}
}
