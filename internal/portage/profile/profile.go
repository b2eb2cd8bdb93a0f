// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package profile loads Portage profile directory trees (parent chains,
// make.defaults, package.mask/use/accept_keywords/provided) and exposes
// each profile in the chain as a config.Source for composition.
package profile

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cros.local/depgraph/internal/dependency"
	"cros.local/depgraph/internal/makevars"
	"cros.local/depgraph/internal/portage/config"
	"cros.local/depgraph/internal/version"
)

// Resolver resolves a profile "parent" line (relative to base, the
// referencing profile's own directory) to its target Profile.
type Resolver interface {
	ResolveProfile(path, base string) (*Profile, error)
}

// Profile is one directory in a profile parent chain.
type Profile struct {
	Name    string
	Path    string
	Parents []*Profile
}

// Load reads path's "parent" file (if any) and resolves each entry via
// resolver, recursively building the ancestry.
func Load(path, name string, resolver Resolver) (*Profile, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("profile: %s: not found", name)
		}
		return nil, fmt.Errorf("profile: %s: %w", name, err)
	}

	parentPaths, err := readLines(filepath.Join(path, "parent"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("profile: %s: reading parents: %w", name, err)
	}

	var parents []*Profile
	for _, parentPath := range parentPaths {
		parent, err := resolver.ResolveProfile(parentPath, path)
		if err != nil {
			return nil, fmt.Errorf("profile: %s: %w", name, err)
		}
		parents = append(parents, parent)
	}

	return &Profile{Name: name, Path: path, Parents: parents}, nil
}

// Sources returns p's full ancestry (each parent profile before p itself,
// depth-first, each directory appearing at most once even under diamond
// inheritance) as an ordered list of config.Source values ready for
// config.Compose.
func (p *Profile) Sources() []config.Source {
	var chain []*Profile
	seen := map[string]bool{}
	p.collect(&chain, seen)

	srcs := make([]config.Source, len(chain))
	for i, pr := range chain {
		srcs[i] = profileSource{pr}
	}
	return srcs
}

func (p *Profile) collect(out *[]*Profile, seen map[string]bool) {
	if seen[p.Path] {
		return
	}
	seen[p.Path] = true
	for _, parent := range p.Parents {
		parent.collect(out, seen)
	}
	*out = append(*out, p)
}

// profileSource adapts one profile directory's own configuration fragments
// (not its parents', which appear as separate entries in Sources) to
// config.Source.
type profileSource struct {
	p *Profile
}

const makeDefaults = "make.defaults"

func (s profileSource) Evaluate(env makevars.Vars) ([]config.Node, error) {
	var node config.Node

	vars, err := config.ParseMakeDefaults(filepath.Join(s.p.Path, makeDefaults), env)
	if err != nil {
		return nil, fmt.Errorf("profile: %s: %w", s.p.Name, err)
	}
	node.Vars = vars

	masks, err := readPackageMasks(filepath.Join(s.p.Path, "package.mask"))
	if err != nil {
		return nil, fmt.Errorf("profile: %s: %w", s.p.Name, err)
	}
	node.PackageMasks = masks

	for _, spec := range []struct {
		file       string
		kind       config.UseUpdateKind
		stableOnly bool
	}{
		{"package.use", config.Set, false},
		{"package.use.force", config.UseForce, false},
		{"package.use.stable.force", config.UseForce, true},
		{"package.use.mask", config.UseMask, false},
		{"package.use.stable.mask", config.UseMask, true},
	} {
		updates, err := readPackageUse(filepath.Join(s.p.Path, spec.file), spec.kind, spec.stableOnly)
		if err != nil {
			return nil, fmt.Errorf("profile: %s: %w", s.p.Name, err)
		}
		node.Uses = append(node.Uses, updates...)
	}

	kwOverrides, err := readPackageAcceptKeywords(filepath.Join(s.p.Path, "package.accept_keywords"))
	if err != nil {
		return nil, fmt.Errorf("profile: %s: %w", s.p.Name, err)
	}
	node.KeywordOverrides = kwOverrides

	provided, err := readPackageProvided(filepath.Join(s.p.Path, "package.provided"))
	if err != nil {
		return nil, fmt.Errorf("profile: %s: %w", s.p.Name, err)
	}
	node.Provided = provided

	return []config.Node{node}, nil
}

func readPackageMasks(path string) ([]config.PackageMaskEntry, error) {
	lines, err := readLines(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []config.PackageMaskEntry
	for _, line := range lines {
		kind := config.Mask
		if strings.HasPrefix(line, "-") {
			kind = config.Unmask
			line = line[1:]
		}
		atom, err := dependency.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, config.PackageMaskEntry{Kind: kind, Atom: atom})
	}
	return out, nil
}

func readPackageUse(path string, kind config.UseUpdateKind, stableOnly bool) ([]config.UseUpdate, error) {
	lines, err := readLines(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []config.UseUpdate
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		atom, err := dependency.Parse(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, config.UseUpdate{
			Kind:   kind,
			Filter: config.UseFilter{Atom: atom, StableOnly: stableOnly},
			Tokens: strings.Join(fields[1:], " "),
		})
	}
	return out, nil
}

func readPackageAcceptKeywords(path string) ([]config.KeywordOverride, error) {
	lines, err := readLines(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []config.KeywordOverride
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		atom, err := dependency.Parse(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, config.KeywordOverride{
			Filter:   config.UseFilter{Atom: atom},
			Keywords: strings.Join(fields[1:], " "),
		})
	}
	return out, nil
}

func readPackageProvided(path string) ([]config.ProvidedPackage, error) {
	lines, err := readLines(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []config.ProvidedPackage
	for _, line := range lines {
		prefix, ver, err := version.ExtractSuffix(line)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid provided package spec %q: %w", path, line, err)
		}
		if !strings.HasSuffix(prefix, "-") {
			return nil, fmt.Errorf("%s: invalid provided package spec %q", path, line)
		}
		out = append(out, config.ProvidedPackage{
			PackageName: strings.TrimSuffix(prefix, "-"),
			Version:     ver,
		})
	}
	return out, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
