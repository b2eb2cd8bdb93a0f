// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package dependency

import "fmt"

// Flag is a REQUIRED_USE leaf: a (possibly negated) USE flag test.
type Flag struct {
	Name    string
	Negated bool
}

func (f Flag) String() string {
	if f.Negated {
		return "!" + f.Name
	}
	return f.Name
}

// ParseRequiredUse parses a REQUIRED_USE string into a tree of Flag leaves,
// reusing the same grammar as dependency strings (all-of / any-of /
// exactly-one-of / at-most-one-of / use-conditional), but with flag-name
// leaves instead of package atoms.
func ParseRequiredUse(s string) (*Node[Flag], error) {
	return parseTree(s, func(raw string) (Flag, error) {
		if raw == "" {
			return Flag{}, fmt.Errorf("dependency: empty REQUIRED_USE token")
		}
		if raw[0] == '!' {
			return Flag{Name: raw[1:], Negated: true}, nil
		}
		return Flag{Name: raw}, nil
	})
}

// EvalFlag is the LeafEval for Flag trees: a negated leaf tests the flag is
// unset, matching REQUIRED_USE "!flag" syntax.
func EvalFlag(f Flag, use map[string]bool) bool {
	v := use[f.Name]
	if f.Negated {
		return !v
	}
	return v
}
