// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package dependency

import (
	"fmt"
	"strings"

	"cros.local/depgraph/internal/naming"
	"cros.local/depgraph/internal/version"
)

// Op is a package atom version-dependency operator.
type Op string

const (
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpEqual        Op = "="
	OpGreaterEqual Op = ">="
	OpGreater      Op = ">"
	OpApprox       Op = "~"
)

// Block is a package atom's blocker strength.
type Block int

const (
	BlockNone Block = iota
	BlockWeak
	BlockStrong
)

// SlotDep is the ":slotspec" portion of an atom.
type SlotDep struct {
	AnySlot bool // ":*"
	Main    string
	Sub     string // empty when not specified
	Rebuild bool   // trailing "=": rebuild this package when the match's slot changes
}

func (s *SlotDep) String() string {
	var b strings.Builder
	switch {
	case s.AnySlot:
		b.WriteByte('*')
	case s.Main != "":
		b.WriteString(s.Main)
		if s.Sub != "" {
			b.WriteByte('/')
			b.WriteString(s.Sub)
		}
	}
	if s.Rebuild {
		b.WriteByte('=')
	}
	return b.String()
}

// UseConstraint is one "[...]" token of an atom's USE-dependency list,
// preserved verbatim for lossless round-tripping. Matches does not
// interpret these; it treats every constraint as satisfied.
type UseConstraint struct {
	Raw string
}

// Atom is a parsed package dependency atom.
type Atom struct {
	Block       Block
	Op          Op // empty when no version dependency
	PackageName string
	Version     *version.Version // nil when Op is empty
	Wildcard    bool             // trailing "*" after Version, valid only with Op == OpEqual
	Slot        *SlotDep         // nil when no slot spec
	Use         []UseConstraint
}

// Parse parses an atom string per PMS §8.2 (with USE-dependency syntax
// accepted but not semantically interpreted; see Matches).
func Parse(s string) (*Atom, error) {
	orig := s
	a := &Atom{}

	if i := strings.IndexByte(s, '['); i >= 0 {
		if !strings.HasSuffix(s, "]") {
			return nil, fmt.Errorf("dependency: atom %q: unterminated USE-dependency list", orig)
		}
		for _, tok := range strings.Split(s[i+1:len(s)-1], ",") {
			if tok == "" {
				continue
			}
			a.Use = append(a.Use, UseConstraint{Raw: tok})
		}
		s = s[:i]
	}

	if i := strings.IndexByte(s, ':'); i >= 0 {
		slot, err := parseSlotDep(s[i+1:])
		if err != nil {
			return nil, fmt.Errorf("dependency: atom %q: %w", orig, err)
		}
		a.Slot = slot
		s = s[:i]
	}

	switch {
	case strings.HasPrefix(s, "!!"):
		a.Block = BlockStrong
		s = s[2:]
	case strings.HasPrefix(s, "!"):
		a.Block = BlockWeak
		s = s[1:]
	}

	for _, op := range []Op{OpLessEqual, OpGreaterEqual, OpLess, OpGreater, OpApprox, OpEqual} {
		if strings.HasPrefix(s, string(op)) {
			a.Op = op
			s = s[len(op):]
			break
		}
	}

	if a.Op == OpEqual && strings.HasSuffix(s, "*") {
		a.Wildcard = true
		s = s[:len(s)-1]
	} else if a.Op == "" && strings.HasSuffix(s, "*") {
		return nil, fmt.Errorf("dependency: atom %q: wildcard requires \"=\" operator", orig)
	}

	if a.Op != "" {
		prefix, ver, err := version.ExtractSuffix(s)
		if err != nil {
			return nil, fmt.Errorf("dependency: atom %q: missing version after operator %q: %w", orig, a.Op, err)
		}
		prefix = strings.TrimSuffix(prefix, "-")
		a.PackageName = prefix
		a.Version = ver
	} else {
		a.PackageName = s
	}

	if err := naming.CheckCategoryAndPackage(a.PackageName); err != nil {
		return nil, fmt.Errorf("dependency: atom %q: %w", orig, err)
	}

	return a, nil
}

func parseSlotDep(s string) (*SlotDep, error) {
	slot := &SlotDep{}
	if strings.HasSuffix(s, "=") {
		slot.Rebuild = true
		s = s[:len(s)-1]
	}
	switch {
	case s == "":
		// bare ":=" : any slot, rebuild on change.
	case s == "*":
		slot.AnySlot = true
	default:
		parts := strings.SplitN(s, "/", 2)
		slot.Main = parts[0]
		if len(parts) == 2 {
			slot.Sub = parts[1]
		}
	}
	return slot, nil
}

// String renders a losslessly.
func (a *Atom) String() string {
	var b strings.Builder
	switch a.Block {
	case BlockWeak:
		b.WriteByte('!')
	case BlockStrong:
		b.WriteString("!!")
	}
	b.WriteString(string(a.Op))
	if a.Op != "" {
		b.WriteString(a.PackageName)
		b.WriteByte('-')
		b.WriteString(a.Version.String())
		if a.Wildcard {
			b.WriteByte('*')
		}
	} else {
		b.WriteString(a.PackageName)
	}
	if a.Slot != nil {
		b.WriteByte(':')
		b.WriteString(a.Slot.String())
	}
	if len(a.Use) > 0 {
		b.WriteByte('[')
		for i, u := range a.Use {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(u.Raw)
		}
		b.WriteByte(']')
	}
	return b.String()
}

// PackageRef is a package reference matched against an atom.
type PackageRef struct {
	PackageName string
	Version     *version.Version
	Slot        SlotDep
	Use         map[string]bool // nil for the "thin" variant
}

// Matches reports whether ref satisfies a, including blocker inversion: a
// blocker atom matches exactly when the corresponding non-blocker atom would
// not. USE constraints are accepted syntactically but always considered
// satisfied (see the DESIGN.md open question).
func (a *Atom) Matches(ref *PackageRef) bool {
	base := a.matchesIgnoringBlock(ref)
	if a.Block == BlockNone {
		return base
	}
	return !base
}

func (a *Atom) matchesIgnoringBlock(ref *PackageRef) bool {
	if a.PackageName != ref.PackageName {
		return false
	}
	if a.Op != "" {
		if ref.Version == nil {
			return false
		}
		if !a.matchesVersion(ref.Version) {
			return false
		}
	}
	if a.Slot != nil && !a.Slot.AnySlot {
		if a.Slot.Main != "" && a.Slot.Main != ref.Slot.Main {
			return false
		}
		if a.Slot.Sub != "" && a.Slot.Sub != ref.Slot.Sub {
			return false
		}
	}
	return true
}

// EvalAtomAlwaysTrue is the LeafEval used when flattening a dependency tree
// of atoms: atom leaves aren't boolean conditions, so three-valued
// evaluation only prunes USE-conditional structure and every reachable atom
// leaf evaluates true (resolution, not boolean truth, decides its fate).
func EvalAtomAlwaysTrue(*Atom, map[string]bool) bool { return true }

func (a *Atom) matchesVersion(v *version.Version) bool {
	switch a.Op {
	case OpLess:
		return v.Compare(a.Version) < 0
	case OpLessEqual:
		return v.Compare(a.Version) <= 0
	case OpGreater:
		return v.Compare(a.Version) > 0
	case OpGreaterEqual:
		return v.Compare(a.Version) >= 0
	case OpApprox:
		return v.WithoutRevision().Compare(a.Version.WithoutRevision()) == 0
	case OpEqual:
		if a.Wildcard {
			return v.HasPrefix(a.Version)
		}
		return v.Compare(a.Version) == 0
	default:
		return true
	}
}
