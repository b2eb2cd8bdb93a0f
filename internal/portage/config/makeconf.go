// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"

	"cros.local/depgraph/internal/makevars"
)

// MakeConfSource is a config.Source backed by a make.conf-grammar file:
// `NAME=RVAL` assignments where RVAL is a concatenation of quoted strings,
// `${VAR}`/`$VAR` expansions, and unquoted runs, plus `source PATH`
// statements. Directory fragments referenced by a
// `source` statement pointing at a directory are loaded in sorted order.
type MakeConfSource struct {
	Path string
}

func (s MakeConfSource) Evaluate(env makevars.Vars) ([]Node, error) {
	own, err := evalMakeConfFile(s.Path, env)
	if err != nil {
		return nil, err
	}
	if own == nil {
		return nil, nil
	}
	return []Node{{Vars: own}}, nil
}

// ParseMakeDefaults parses a profile's make.defaults fragment, which shares
// make.conf's assignment grammar. A missing file returns an empty,
// non-nil Vars. This is exported for internal/portage/profile, which
// otherwise has no access to this package's unexported parser.
func ParseMakeDefaults(path string, env makevars.Vars) (makevars.Vars, error) {
	own, err := evalMakeConfFile(path, env)
	if err != nil {
		return nil, err
	}
	if own == nil {
		return makevars.Vars{}, nil
	}
	return own, nil
}

// evalMakeConfFile parses path's assignments, resolving variable references
// against env overlaid with values assigned earlier in the same file, and
// returns only the vars this file itself assigned (the composition-layer
// override semantics live in Compose, not here). A missing file is not an
// error: it returns (nil, nil).
func evalMakeConfFile(path string, env makevars.Vars) (makevars.Vars, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	f, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(string(data)), path)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	working := env.Clone()
	own := makevars.Vars{}

	var walk func(stmts []*syntax.Stmt) error
	walk = func(stmts []*syntax.Stmt) error {
		for _, stmt := range stmts {
			call, ok := stmt.Cmd.(*syntax.CallExpr)
			if !ok {
				continue
			}
			cfg := &expand.Config{Env: expand.FuncEnviron(func(name string) string { return working[name] })}
			for _, assign := range call.Assigns {
				if assign.Value == nil {
					continue
				}
				val, err := expand.Literal(cfg, assign.Value)
				if err != nil {
					return fmt.Errorf("config: %s: expanding %s: %w", path, assign.Name.Value, err)
				}
				working[assign.Name.Value] = val
				own[assign.Name.Value] = val
			}
			if len(call.Args) == 0 {
				continue
			}
			word, err := expand.Literal(cfg, call.Args[0])
			if err != nil || (word != "source" && word != ".") {
				continue
			}
			for _, arg := range call.Args[1:] {
				target, err := expand.Literal(cfg, arg)
				if err != nil {
					return fmt.Errorf("config: %s: expanding source argument: %w", path, err)
				}
				if !filepath.IsAbs(target) {
					target = filepath.Join(filepath.Dir(path), target)
				}
				sourced, err := evalSourceTarget(target, working)
				if err != nil {
					return err
				}
				for k, v := range sourced {
					working[k] = v
					own[k] = v
				}
			}
		}
		return nil
	}
	if err := walk(f.Stmts); err != nil {
		return nil, err
	}
	return own, nil
}

// evalSourceTarget handles a `source PATH` statement where PATH may name a
// single file or a directory of fragments loaded in sorted order.
func evalSourceTarget(target string, working makevars.Vars) (makevars.Vars, error) {
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: stat %s: %w", target, err)
	}
	if !info.IsDir() {
		return evalMakeConfFile(target, working)
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, fmt.Errorf("config: reading directory %s: %w", target, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	acc := working.Clone()
	own := makevars.Vars{}
	for _, name := range names {
		frag, err := evalMakeConfFile(filepath.Join(target, name), acc)
		if err != nil {
			return nil, err
		}
		for k, v := range frag {
			acc[k] = v
			own[k] = v
		}
	}
	return own, nil
}
