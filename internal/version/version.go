// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package version implements the PMS §3.3 total order over Portage package
// version strings.
package version

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Suffix is one (label, number) pair of a version's suffix chain, e.g. the
// "_alpha2" in "1.0_alpha2".
type Suffix struct {
	Label  SuffixLabel
	Number string
}

func (s *Suffix) clone() *Suffix {
	c := *s
	return &c
}

func (s *Suffix) compare(o *Suffix) int {
	if cmp := s.Label.compare(o.Label); cmp != 0 {
		return cmp
	}
	return compareNumericString(s.Number, o.Number)
}

// SuffixLabel is one of the five PMS-defined release suffixes, ordered
// alpha < beta < pre < rc < p.
type SuffixLabel string

const (
	SuffixAlpha SuffixLabel = "_alpha"
	SuffixBeta  SuffixLabel = "_beta"
	SuffixPre   SuffixLabel = "_pre"
	SuffixRC    SuffixLabel = "_rc"
	SuffixP     SuffixLabel = "_p"
)

var suffixRank = map[SuffixLabel]int{
	SuffixAlpha: 1,
	SuffixBeta:  2,
	SuffixPre:   3,
	SuffixRC:    4,
	SuffixP:     5,
}

func (l SuffixLabel) compare(o SuffixLabel) int {
	lr, ok := suffixRank[l]
	if !ok {
		panic(fmt.Sprintf("version: unknown suffix label %q", string(l)))
	}
	or, ok := suffixRank[o]
	if !ok {
		panic(fmt.Sprintf("version: unknown suffix label %q", string(o)))
	}
	switch {
	case lr < or:
		return -1
	case lr > or:
		return 1
	default:
		return 0
	}
}

// Version is a parsed Portage package version: a nonempty numeric "main"
// sequence, an optional single trailing letter, an ordered chain of release
// suffixes, and an optional revision.
type Version struct {
	Main     []string
	Letter   string
	Suffixes []*Suffix
	Revision string
}

// Clone returns a deep copy of v.
func (v *Version) Clone() *Version {
	c := *v
	c.Main = append([]string(nil), v.Main...)
	c.Suffixes = make([]*Suffix, len(v.Suffixes))
	for i, s := range v.Suffixes {
		c.Suffixes[i] = s.clone()
	}
	return &c
}

// ImplicitRevision returns Revision, substituting "0" when it is empty, so
// that "1.0" and "1.0-r0" compare as having the same revision string.
func (v *Version) ImplicitRevision() string {
	if v.Revision == "" {
		return "0"
	}
	return v.Revision
}

// WithoutRevision returns a copy of v with its revision cleared. This backs
// the "~" (rough-equal) atom operator.
func (v *Version) WithoutRevision() *Version {
	c := v.Clone()
	c.Revision = ""
	return c
}

// Major returns the first main component, or "0" for a version with no main
// component (which Parse never produces, but a zero Version may have).
func (v *Version) Major() string {
	if len(v.Main) == 0 {
		return "0"
	}
	return v.Main[0]
}

// String renders v losslessly: Parse(v.String()) reconstructs v.
func (v *Version) String() string {
	var b strings.Builder
	for i, n := range v.Main {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(n)
	}
	b.WriteString(v.Letter)
	for _, s := range v.Suffixes {
		b.WriteString(string(s.Label))
		b.WriteString(s.Number)
	}
	if v.Revision != "" {
		b.WriteString("-r")
		b.WriteString(v.Revision)
	}
	return b.String()
}

// Compare implements the PMS §3.3 total order: <0 if v<o, 0 if equal, >0 if
// v>o.
func (v *Version) Compare(o *Version) int {
	if cmp := compareMainComponent(v.Main[0], o.Main[0], true); cmp != 0 {
		return cmp
	}
	for i := 1; i < len(v.Main) && i < len(o.Main); i++ {
		if cmp := compareMainComponent(v.Main[i], o.Main[i], false); cmp != 0 {
			return cmp
		}
	}
	if len(v.Main) != len(o.Main) {
		if len(v.Main) < len(o.Main) {
			return -1
		}
		return 1
	}

	if cmp := strings.Compare(v.Letter, o.Letter); cmp != 0 {
		return cmp
	}

	n := len(v.Suffixes)
	if len(o.Suffixes) < n {
		n = len(o.Suffixes)
	}
	for i := 0; i < n; i++ {
		if cmp := v.Suffixes[i].compare(o.Suffixes[i]); cmp != 0 {
			return cmp
		}
	}
	if len(v.Suffixes) != len(o.Suffixes) {
		longer, extra := v.Suffixes, true
		if len(o.Suffixes) > len(v.Suffixes) {
			longer, extra = o.Suffixes, false
		}
		// The first extra suffix decides: "_p" makes the longer side
		// greater; any other extra suffix makes it lesser.
		greater := longer[n].Label == SuffixP
		if !extra {
			greater = !greater
		}
		if greater {
			return 1
		}
		return -1
	}

	return compareNumericString(v.Revision, o.Revision)
}

// HasPrefix reports whether prefix is a PMS prefix of v: v truncated to the
// components prefix specifies equals prefix. Used for the "=*" wildcard atom
// operator.
func (v *Version) HasPrefix(prefix *Version) bool {
	c := v.Clone()

	if prefix.Revision == "" {
		c.Revision = ""

		if len(c.Suffixes) > len(prefix.Suffixes) {
			c.Suffixes = c.Suffixes[:len(prefix.Suffixes)]
		}
		if len(prefix.Suffixes) == 0 {
			if prefix.Letter == "" {
				c.Letter = ""

				if len(c.Main) > len(prefix.Main) {
					c.Main = c.Main[:len(prefix.Main)]
				}
			}
		}
	}

	return c.Compare(prefix) == 0
}

func compareMainComponent(a, b string, first bool) int {
	if first {
		return compareNumericString(a, b)
	}
	if strings.HasPrefix(a, "0") || strings.HasPrefix(b, "0") {
		return strings.Compare(strings.TrimRight(a, "0"), strings.TrimRight(b, "0"))
	}
	return compareNumericString(a, b)
}

// compareNumericString compares two digit strings as integers, tolerating
// leading zeros (which string comparison alone would get wrong).
func compareNumericString(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

var (
	mainPattern     = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)*)$`)
	letterPattern   = regexp.MustCompile(`([a-z])$`)
	suffixPattern   = regexp.MustCompile(`(_(?:alpha|beta|pre|rc|p))([0-9]*)$`)
	revisionPattern = regexp.MustCompile(`-r([0-9]+)$`)
)

// ExtractSuffix trims a trailing Portage version off s, returning the
// untouched prefix and the parsed Version. It is exported so that atom and
// ebuild-filename parsers, which see a version glued to a package name, can
// peel the version off without knowing where the name ends.
//
// Examples:
//
//	"net-misc/curl-7.78.0-r1" -> ("net-misc/curl-", Version{7.78.0-r1})
//	"curl-7.78.0-r1"          -> ("curl-", Version{7.78.0-r1})
func ExtractSuffix(s string) (prefix string, ver *Version, err error) {
	revision := ""
	if m := revisionPattern.FindStringSubmatch(s); m != nil {
		revision = m[1]
		s = s[:len(s)-len(m[0])]
	}

	var suffixes []*Suffix
	for {
		m := suffixPattern.FindStringSubmatch(s)
		if m == nil {
			break
		}
		suffixes = append([]*Suffix{{Label: SuffixLabel(m[1]), Number: m[2]}}, suffixes...)
		s = s[:len(s)-len(m[0])]
	}

	var letter string
	if m := letterPattern.FindStringSubmatch(s); m != nil {
		letter = m[1]
		s = s[:len(s)-len(m[0])]
	}

	m := mainPattern.FindStringSubmatch(s)
	if m == nil {
		return "", nil, errors.New("version: no numeric main component found")
	}
	main := strings.Split(m[1], ".")
	s = s[:len(s)-len(m[0])]

	return s, &Version{Main: main, Letter: letter, Suffixes: suffixes, Revision: revision}, nil
}

// Parse parses s as a standalone Portage version string, failing if any part
// of s is left unconsumed.
func Parse(s string) (*Version, error) {
	rest, ver, err := ExtractSuffix(s)
	if err != nil {
		return nil, fmt.Errorf("version: parsing %q: %w", s, err)
	}
	if rest != "" {
		return nil, fmt.Errorf("version: parsing %q: unexpected leading text %q", s, rest)
	}
	return ver, nil
}
