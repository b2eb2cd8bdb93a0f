// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package makevars holds a flat string-keyed variable bundle (the kind
// make.conf and profile make.defaults files produce) and knows how to
// compose such bundles in override order and re-emit them as
// shell-sourceable assignments.
package makevars

import (
	"sort"
	"strings"

	"github.com/alessio/shellescape"
)

// Vars is an immutable-by-convention snapshot of NAME=value pairs.
type Vars map[string]string

// Clone returns a shallow copy.
func (v Vars) Clone() Vars {
	c := make(Vars, len(v))
	for k, val := range v {
		c[k] = val
	}
	return c
}

// Merge returns a new Vars with every key of over applied on top of v;
// later (over) wins, matching config-source replay order.
func (v Vars) Merge(over Vars) Vars {
	c := v.Clone()
	for k, val := range over {
		c[k] = val
	}
	return c
}

// incrementalNames lists variables whose conventional semantics are
// space-separated token sets rather than opaque strings: portage profiles
// extend them with "VAR="${VAR} extra"" rather than replacing them.
var incrementalNames = map[string]bool{
	"USE":             true,
	"ACCEPT_KEYWORDS": true,
	"FEATURES":        true,
	"CONFIG_PROTECT":  true,
	"IUSE_IMPLICIT":   true,
}

// IsIncremental reports whether name is conventionally treated as an
// incremental (token-accumulating) variable.
func IsIncremental(name string) bool { return incrementalNames[name] }

// ApplyIncremental computes the new value of an incremental variable given
// its prior accumulated value and a whitespace-separated token update: a
// bare token adds itself to the set, a "-token" removes it, and "-*" clears
// the accumulated set before continuing to apply the remaining tokens.
func ApplyIncremental(prior string, update string) string {
	tokens := make([]string, 0)
	seen := map[string]bool{}
	add := func(tok string) {
		if !seen[tok] {
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}
	remove := func(tok string) {
		if seen[tok] {
			delete(seen, tok)
			for i, t := range tokens {
				if t == tok {
					tokens = append(tokens[:i], tokens[i+1:]...)
					break
				}
			}
		}
	}
	for _, tok := range strings.Fields(prior) {
		add(tok)
	}
	for _, tok := range strings.Fields(update) {
		switch {
		case tok == "-*":
			tokens = nil
			seen = map[string]bool{}
		case strings.HasPrefix(tok, "-"):
			remove(tok[1:])
		default:
			add(tok)
		}
	}
	return strings.Join(tokens, " ")
}

// Dump renders v as a sequence of shell-sourceable "NAME=VALUE" assignments
// in sorted key order, one per line, each value shell-quoted.
func Dump(v Vars) string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(shellescape.Quote(v[name]))
		b.WriteByte('\n')
	}
	return b.String()
}
