// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package config composes make.conf-style key/value layers and profile
// directories into a single queryable configuration bundle: USE
// masks/forces, package masks, and keyword acceptance.
package config

import (
	"strings"

	"cros.local/depgraph/internal/dependency"
	"cros.local/depgraph/internal/makevars"
	"cros.local/depgraph/internal/version"
)

// MaskKind distinguishes package.mask from package.unmask entries.
type MaskKind int

const (
	Mask MaskKind = iota
	Unmask
)

// PackageMaskEntry is one line of a package.mask-style file.
type PackageMaskEntry struct {
	Kind MaskKind
	Atom *dependency.Atom
}

// UseUpdateKind distinguishes package.use / package.use.mask /
// package.use.force entries.
type UseUpdateKind int

const (
	Set UseUpdateKind = iota
	UseMask
	UseForce
)

// UseFilter scopes a UseUpdate or KeywordOverride to matching packages.
type UseFilter struct {
	Atom       *dependency.Atom // nil matches every package
	StableOnly bool
}

func (f UseFilter) matches(ref *dependency.PackageRef, stable bool) bool {
	if f.StableOnly && !stable {
		return false
	}
	if f.Atom == nil {
		return true
	}
	return f.Atom.Matches(ref)
}

// UseUpdate is one package.use-style record.
type UseUpdate struct {
	Kind   UseUpdateKind
	Filter UseFilter
	Tokens string // whitespace-separated USE tokens, e.g. "foo -bar"
}

// KeywordOverride is a package.accept_keywords-style entry: a per-atom
// addition to the globally accepted keywords.
type KeywordOverride struct {
	Filter   UseFilter
	Keywords string
}

// ProvidedPackage records one package.provided entry.
type ProvidedPackage struct {
	PackageName string
	Version     *version.Version
}

// Node is one unit of configuration a Source contributes.
type Node struct {
	Vars             makevars.Vars
	PackageMasks     []PackageMaskEntry
	Uses             []UseUpdate
	KeywordOverrides []KeywordOverride
	Provided         []ProvidedPackage
}

// Source produces zero or more Nodes, computing any exported vars against
// the environment accumulated from earlier sources.
type Source interface {
	Evaluate(env makevars.Vars) ([]Node, error)
}

// Bundle is the composed result of replaying an ordered source list.
type Bundle struct {
	Vars             makevars.Vars
	masks            []PackageMaskEntry
	uses             []UseUpdate
	keywordOverrides []KeywordOverride
	provided         []ProvidedPackage
}

// Compose replays sources in order: later sources override earlier ones for
// duplicate variable keys. A source that
// wants incremental accumulation (e.g. make.defaults' conventional
// USE="${USE} foo" idiom) achieves it by reading the accumulated env
// passed into its own Evaluate call and folding it into the value it
// returns; Compose itself does not special-case any variable name.
// Mask/use/keyword records accumulate in source order so that later
// entries can countermand earlier ones.
func Compose(sources []Source) (*Bundle, error) {
	b := &Bundle{Vars: makevars.Vars{}}
	for _, src := range sources {
		nodes, err := src.Evaluate(b.Vars)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			for k, v := range n.Vars {
				b.Vars[k] = v
			}
			b.masks = append(b.masks, n.PackageMasks...)
			b.uses = append(b.uses, n.Uses...)
			b.keywordOverrides = append(b.keywordOverrides, n.KeywordOverrides...)
			b.provided = append(b.provided, n.Provided...)
		}
	}
	return b, nil
}

// IsMasked reports whether ref is masked: a matching Mask not subsequently
// matched by an Unmask.
func (b *Bundle) IsMasked(ref *dependency.PackageRef) bool {
	masked := false
	for _, m := range b.masks {
		if m.Atom.Matches(ref) {
			masked = m.Kind == Mask
		}
	}
	return masked
}

// ParseIUSE parses an IUSE variable into its declared-flag default map:
// leading "+" means default-on, leading "-" or bare means default-off.
func ParseIUSE(iuse string) map[string]bool {
	m := map[string]bool{}
	for _, tok := range strings.Fields(iuse) {
		switch {
		case strings.HasPrefix(tok, "+"):
			m[tok[1:]] = true
		case strings.HasPrefix(tok, "-"):
			m[tok[1:]] = false
		default:
			m[tok] = false
		}
	}
	return m
}

// ComputeUse computes the USE map for a package: iuse is the declared-flag
// default map (ParseIUSE's output), updated by matching package.use,
// package.use.mask, and package.use.force entries in order; the result
// contains exactly the flags iuse declares.
func (b *Bundle) ComputeUse(ref *dependency.PackageRef, stable bool, iuse map[string]bool) map[string]bool {
	use := make(map[string]bool, len(iuse))
	for k, v := range iuse {
		use[k] = v
	}
	for _, u := range b.uses {
		if !u.Filter.matches(ref, stable) {
			continue
		}
		tokens := strings.Fields(u.Tokens)
		switch u.Kind {
		case Set:
			for _, t := range tokens {
				if strings.HasPrefix(t, "-") {
					use[strings.TrimPrefix(t, "-")] = false
				} else {
					use[t] = true
				}
			}
		case UseMask:
			for _, t := range tokens {
				use[strings.TrimPrefix(t, "-")] = false
			}
		case UseForce:
			for _, t := range tokens {
				use[strings.TrimPrefix(t, "-")] = true
			}
		}
	}
	for k := range use {
		if _, declared := iuse[k]; !declared {
			delete(use, k)
		}
	}
	return use
}

// Acceptance is the result of keyword-acceptance evaluation.
type Acceptance struct {
	Accepted bool
	Stable   bool
	Reason   string
}

// IsAccepted decides keyword acceptance for an ebuild's KEYWORDS string
// against arch, consulting the bundle's ACCEPT_KEYWORDS and any matching
// package.accept_keywords override. Stability is
// exactly what this function determines, so overrides are matched without
// regard to a StableOnly filter (profile-level package.accept_keywords has
// no stable-only variant; that refinement exists only for package.use).
func (b *Bundle) IsAccepted(ref *dependency.PackageRef, keywords, arch string) Acceptance {
	accept := b.Vars["ACCEPT_KEYWORDS"]
	for _, o := range b.keywordOverrides {
		if o.Filter.Atom == nil || o.Filter.Atom.Matches(ref) {
			accept = makevars.ApplyIncremental(accept, o.Keywords)
		}
	}
	acceptSet := map[string]bool{}
	for _, t := range strings.Fields(accept) {
		acceptSet[t] = true
	}

	var sawStable, sawUnstable, sawDeny bool
	for _, kw := range strings.Fields(keywords) {
		switch {
		case kw == "*":
			sawStable = true
		case kw == "~*":
			sawUnstable = true
		case kw == "-"+arch, kw == "-*":
			sawDeny = true
		case kw == "~"+arch:
			sawUnstable = true
		case kw == arch:
			sawStable = true
		}
	}

	if sawDeny {
		return Acceptance{Accepted: false, Reason: "keyword -" + arch + " denies this arch"}
	}
	if sawStable && (acceptSet[arch] || acceptSet["*"]) {
		return Acceptance{Accepted: true, Stable: true}
	}
	if sawUnstable && (acceptSet["~"+arch] || acceptSet["*"]) {
		return Acceptance{Accepted: true, Stable: false}
	}
	return Acceptance{Accepted: false, Reason: "KEYWORDS " + keywords + " not accepted by ACCEPT_KEYWORDS " + accept}
}

// ProvidedVersion reports whether (packageName, v) is configuration-provided.
func (b *Bundle) ProvidedVersion(packageName string, v *version.Version) bool {
	for _, p := range b.provided {
		if p.PackageName == packageName && p.Version.Compare(v) == 0 {
			return true
		}
	}
	return false
}

// Provided returns every configuration-provided package.
func (b *Bundle) Provided() []ProvidedPackage {
	out := make([]ProvidedPackage, len(b.provided))
	copy(out, b.provided)
	return out
}
