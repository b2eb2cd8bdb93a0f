// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package dependency implements the conditional dependency tree: a
// parenthesized tree of all-of / any-of / exactly-one-of / at-most-one-of
// groups and USE-conditional blocks, generic over an opaque leaf type, with
// three-valued evaluation where "not applicable" is distinct from "false".
//
// The same tree shape backs both ebuild dependency strings (DEPEND, ...),
// whose leaves are package atoms (see atom.go), and REQUIRED_USE strings,
// whose leaves are USE flag tests (see required.go).
package dependency

import (
	"fmt"
	"strings"
	"sync"
)

type kind int

const (
	kindLeaf kind = iota
	kindAllOf
	kindAnyOf
	kindExactlyOneOf
	kindAtMostOneOf
	kindUseConditional
	kindConstant
)

// Node is one node of a conditional dependency tree over leaf type L.
// Exactly one family of fields is meaningful, selected by kind; callers
// never construct a Node directly, using the constructors below instead.
type Node[L any] struct {
	kind kind

	leaf L

	children []*Node[L]

	flag   string
	expect bool
	child  *Node[L]

	value  bool
	reason string
}

// Leaf wraps a single leaf value.
func Leaf[L any](l L) *Node[L] {
	return &Node[L]{kind: kindLeaf, leaf: l}
}

// LeafValue returns the wrapped value and whether n is a Leaf node.
func (n *Node[L]) LeafValue() (L, bool) {
	if n.kind == kindLeaf {
		return n.leaf, true
	}
	var zero L
	return zero, false
}

// AllOf returns a conjunction; an empty AllOf is constant true.
func AllOf[L any](children ...*Node[L]) *Node[L] {
	return &Node[L]{kind: kindAllOf, children: children}
}

// AnyOf returns a disjunction; an empty AnyOf is constant false.
func AnyOf[L any](children ...*Node[L]) *Node[L] {
	return &Node[L]{kind: kindAnyOf, children: children}
}

// ExactlyOneOf is the REQUIRED_USE "^^ ( ... )" group.
func ExactlyOneOf[L any](children ...*Node[L]) *Node[L] {
	return &Node[L]{kind: kindExactlyOneOf, children: children}
}

// AtMostOneOf is the REQUIRED_USE "?? ( ... )" group.
func AtMostOneOf[L any](children ...*Node[L]) *Node[L] {
	return &Node[L]{kind: kindAtMostOneOf, children: children}
}

// UseConditional gates child on USE flag name having value expect.
func UseConditional[L any](name string, expect bool, child *Node[L]) *Node[L] {
	return &Node[L]{kind: kindUseConditional, flag: name, expect: expect, child: child}
}

// NewConstant canonicalizes a fixed boolean result, carrying a human-readable
// reason (e.g. why a subtree was rewritten away).
func NewConstant[L any](value bool, reason string) *Node[L] {
	return &Node[L]{kind: kindConstant, value: value, reason: reason}
}

// CheckConstant recognizes Constant nodes and empty AllOf/AnyOf groups,
// which are semantically constant even though not spelled as Constant.
func (n *Node[L]) CheckConstant() (value bool, reason string, ok bool) {
	switch n.kind {
	case kindConstant:
		return n.value, n.reason, true
	case kindAllOf:
		if len(n.children) == 0 {
			return true, "empty all-of", true
		}
	case kindAnyOf:
		if len(n.children) == 0 {
			return false, "empty any-of", true
		}
	}
	return false, "", false
}

// Children returns the child list of a composite group node (AllOf, AnyOf,
// ExactlyOneOf, AtMostOneOf), or nil otherwise.
func (n *Node[L]) Children() []*Node[L] {
	switch n.kind {
	case kindAllOf, kindAnyOf, kindExactlyOneOf, kindAtMostOneOf:
		return n.children
	default:
		return nil
	}
}

// Kind distinguishes the composite families of a node for callers (such as
// the dependency analyzer's custom flattening) that need to tell an AllOf
// group from an AnyOf group, which Children alone does not expose.
type Kind int

const (
	KindLeaf Kind = iota
	KindAllOf
	KindAnyOf
	KindExactlyOneOf
	KindAtMostOneOf
	KindUseConditional
	KindConstant
)

// Kind reports which family n belongs to.
func (n *Node[L]) Kind() Kind { return Kind(n.kind) }

// UseConditionalParts returns the flag name, expected value, and guarded
// child of a UseConditional node; ok is false for any other kind.
func (n *Node[L]) UseConditionalParts() (flag string, expect bool, child *Node[L], ok bool) {
	if n.kind != kindUseConditional {
		return "", false, nil, false
	}
	return n.flag, n.expect, n.child, true
}

// Tri is a three-valued logic result: true, false, or "not applicable".
type Tri struct {
	none  bool
	value bool
}

var (
	// TriTrue is the definite-true result.
	TriTrue = Tri{value: true}
	// TriFalse is the definite-false result.
	TriFalse = Tri{value: false}
	// TriNone is "not applicable" — must never be collapsed into TriFalse.
	TriNone = Tri{none: true}
)

// TriOf lifts a plain bool into the two definite Tri values.
func TriOf(b bool) Tri {
	if b {
		return TriTrue
	}
	return TriFalse
}

// IsNone reports whether the result is "not applicable".
func (t Tri) IsNone() bool { return t.none }

// Bool returns the boolean value; only meaningful when !IsNone().
func (t Tri) Bool() bool { return t.value }

func (t Tri) String() string {
	if t.none {
		return "none"
	}
	return fmt.Sprintf("%v", t.value)
}

// LeafEval evaluates a single leaf to a two-valued result given the USE map
// in effect. For dependency trees over package atoms this is typically a
// constant-true function (atoms are resolved downstream, not evaluated here
// as booleans); for REQUIRED_USE trees over flag leaves it reads use.
type LeafEval[L any] func(leaf L, use map[string]bool) bool

// Eval evaluates n three-valuedly against use. AllOf and AnyOf always
// produce a definite result (never None): an all-of is true iff no child is definitely
// false; an any-of is true iff some child is definitely true. Only
// UseConditional can introduce None: it returns None when its flag does not
// have the expected value and otherwise forwards its child's result; the
// group nodes count a None child as neither true nor false.
func Eval[L any](n *Node[L], use map[string]bool, leafEval LeafEval[L]) Tri {
	switch n.kind {
	case kindLeaf:
		return TriOf(leafEval(n.leaf, use))
	case kindConstant:
		return TriOf(n.value)
	case kindAllOf:
		for _, c := range n.children {
			if r := Eval(c, use, leafEval); !r.IsNone() && !r.Bool() {
				return TriFalse
			}
		}
		return TriTrue
	case kindAnyOf:
		for _, c := range n.children {
			if r := Eval(c, use, leafEval); !r.IsNone() && r.Bool() {
				return TriTrue
			}
		}
		return TriFalse
	case kindExactlyOneOf:
		count := 0
		for _, c := range n.children {
			if r := Eval(c, use, leafEval); !r.IsNone() && r.Bool() {
				count++
			}
		}
		return TriOf(count == 1)
	case kindAtMostOneOf:
		count := 0
		for _, c := range n.children {
			if r := Eval(c, use, leafEval); !r.IsNone() && r.Bool() {
				count++
			}
		}
		return TriOf(count <= 1)
	case kindUseConditional:
		if use[n.flag] != n.expect {
			return TriNone
		}
		return Eval(n.child, use, leafEval)
	default:
		panic(fmt.Sprintf("dependency: unknown node kind %d", n.kind))
	}
}

// MapTree rewrites n bottom-up: children are rewritten first, then f is
// applied to the resulting node. f must preserve three-valued semantics
// under every USE context.
func MapTree[L any](n *Node[L], f func(*Node[L]) *Node[L]) *Node[L] {
	return mustNode(TryMapTree(n, func(m *Node[L]) (*Node[L], error) { return f(m), nil }))
}

// TryMapTree is MapTree with a rewrite function that can fail; the first
// error aborts the walk.
func TryMapTree[L any](n *Node[L], f func(*Node[L]) (*Node[L], error)) (*Node[L], error) {
	rewritten := n
	switch n.kind {
	case kindAllOf, kindAnyOf, kindExactlyOneOf, kindAtMostOneOf:
		children := make([]*Node[L], len(n.children))
		for i, c := range n.children {
			rc, err := TryMapTree(c, f)
			if err != nil {
				return nil, err
			}
			children[i] = rc
		}
		rewritten = &Node[L]{kind: n.kind, children: children}
	case kindUseConditional:
		rc, err := TryMapTree(n.child, f)
		if err != nil {
			return nil, err
		}
		rewritten = &Node[L]{kind: kindUseConditional, flag: n.flag, expect: n.expect, child: rc}
	}
	return f(rewritten)
}

// MapTreeParallel is MapTree, but children of composite groups are rewritten
// concurrently. Semantically identical to MapTree for any f with no side
// effects observable across siblings.
func MapTreeParallel[L any](n *Node[L], f func(*Node[L]) *Node[L]) *Node[L] {
	rewritten := n
	switch n.kind {
	case kindAllOf, kindAnyOf, kindExactlyOneOf, kindAtMostOneOf:
		children := make([]*Node[L], len(n.children))
		var wg sync.WaitGroup
		for i, c := range n.children {
			i, c := i, c
			wg.Add(1)
			go func() {
				defer wg.Done()
				children[i] = MapTreeParallel(c, f)
			}()
		}
		wg.Wait()
		rewritten = &Node[L]{kind: n.kind, children: children}
	case kindUseConditional:
		rewritten = &Node[L]{kind: kindUseConditional, flag: n.flag, expect: n.expect, child: MapTreeParallel(n.child, f)}
	}
	return f(rewritten)
}

// FlatMapLeaves replaces every leaf with the all-of of the nodes f returns
// for it, preserving the surrounding tree structure, so USE-conditional
// structure above a leaf is left undisturbed.
func FlatMapLeaves[L any](n *Node[L], f func(L) []*Node[L]) *Node[L] {
	switch n.kind {
	case kindLeaf:
		return AllOf(f(n.leaf)...)
	case kindAllOf, kindAnyOf, kindExactlyOneOf, kindAtMostOneOf:
		children := make([]*Node[L], len(n.children))
		for i, c := range n.children {
			children[i] = FlatMapLeaves(c, f)
		}
		return &Node[L]{kind: n.kind, children: children}
	case kindUseConditional:
		return &Node[L]{kind: kindUseConditional, flag: n.flag, expect: n.expect, child: FlatMapLeaves(n.child, f)}
	default:
		return n
	}
}

// Walk calls visit for every node in n, pre-order.
func Walk[L any](n *Node[L], visit func(*Node[L])) {
	visit(n)
	for _, c := range n.Children() {
		Walk(c, visit)
	}
	if n.kind == kindUseConditional {
		Walk(n.child, visit)
	}
}

// String renders n losslessly, using leafString to format leaves. A
// top-level all-of is the implicit grouping of the whole expression and is
// rendered without parentheses, so re-parsing the output yields the same tree.
func (n *Node[L]) String(leafString func(L) string) string {
	var b strings.Builder
	if n.kind == kindAllOf {
		for i, c := range n.children {
			if i > 0 {
				b.WriteByte(' ')
			}
			c.write(&b, leafString)
		}
		return b.String()
	}
	n.write(&b, leafString)
	return b.String()
}

func (n *Node[L]) write(b *strings.Builder, leafString func(L) string) {
	switch n.kind {
	case kindLeaf:
		b.WriteString(leafString(n.leaf))
	case kindConstant:
		fmt.Fprintf(b, "(* %v: %s *)", n.value, n.reason)
	case kindAllOf:
		writeGroup(b, "", n.children, leafString)
	case kindAnyOf:
		writeGroup(b, "|| ", n.children, leafString)
	case kindExactlyOneOf:
		writeGroup(b, "^^ ", n.children, leafString)
	case kindAtMostOneOf:
		writeGroup(b, "?? ", n.children, leafString)
	case kindUseConditional:
		if !n.expect {
			b.WriteByte('!')
		}
		b.WriteString(n.flag)
		b.WriteString("? ")
		writeGroup(b, "", n.child.children, leafString)
	}
}

func writeGroup[L any](b *strings.Builder, prefix string, children []*Node[L], leafString func(L) string) {
	b.WriteString(prefix)
	b.WriteByte('(')
	for _, c := range children {
		b.WriteByte(' ')
		c.write(b, leafString)
	}
	b.WriteString(" )")
}

func mustNode[L any](n *Node[L], err error) *Node[L] {
	if err != nil {
		panic(err)
	}
	return n
}
