// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package repository discovers Portage overlays (repositories) via their
// metadata/layout.conf, resolves master (parent) ordering, and enumerates
// ebuilds and eclass search paths across a repository set.
package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Repository is one discovered overlay.
type Repository struct {
	Name    string
	BaseDir string
	Masters []string // parent repository names, in layout.conf order

	// EclassDirs is this repository's own eclass/ directory followed by
	// each master's eclass/ directory, in master order.
	EclassDirs []string
}

var layoutLinePattern = `^\s*([^#\s][^\s=]*)\s*=\s*(.*?)\s*$`

// ParseLayoutConf parses a metadata/layout.conf file's contents, returning
// the repo-name and whitespace-separated masters list.
func ParseLayoutConf(data string) (name string, masters []string, err error) {
	for _, line := range strings.Split(data, "\n") {
		line = stripComment(line)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return "", nil, fmt.Errorf("repository: malformed layout.conf line %q", line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "repo-name":
			name = value
		case "masters":
			if value != "" {
				masters = strings.Fields(value)
			}
		}
	}
	if name == "" {
		return "", nil, fmt.Errorf("repository: layout.conf missing repo-name")
	}
	return name, masters, nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

// Set is an ordered collection of repositories, indexed by name.
type Set struct {
	repos  []*Repository
	byName map[string]*Repository
}

// NewSet returns an empty repository set.
func NewSet() *Set {
	return &Set{byName: map[string]*Repository{}}
}

// Add reads baseDir/metadata/layout.conf and registers the repository. Its
// masters must already be present in s (overlays are added in dependency
// order: masters before the repositories that reference them).
func (s *Set) Add(baseDir string) (*Repository, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, "metadata", "layout.conf"))
	if err != nil {
		return nil, fmt.Errorf("repository: reading layout.conf under %s: %w", baseDir, err)
	}
	name, masters, err := ParseLayoutConf(string(data))
	if err != nil {
		return nil, fmt.Errorf("repository: %s: %w", baseDir, err)
	}
	if _, dup := s.byName[name]; dup {
		return nil, fmt.Errorf("repository: duplicate repository name %q", name)
	}

	eclassDirs := []string{filepath.Join(baseDir, "eclass")}
	for _, m := range masters {
		master, ok := s.byName[m]
		if !ok {
			return nil, fmt.Errorf("repository: %s: unknown master %q", name, m)
		}
		eclassDirs = append(eclassDirs, filepath.Join(master.BaseDir, "eclass"))
	}

	repo := &Repository{Name: name, BaseDir: baseDir, Masters: masters, EclassDirs: eclassDirs}
	s.repos = append(s.repos, repo)
	s.byName[name] = repo
	return repo, nil
}

// Repositories returns the registered repositories in discovery order.
func (s *Set) Repositories() []*Repository {
	out := make([]*Repository, len(s.repos))
	copy(out, s.repos)
	return out
}

// ByName looks up a repository by its declared repo-name.
func (s *Set) ByName(name string) (*Repository, bool) {
	r, ok := s.byName[name]
	return r, ok
}

// FindAllEbuilds enumerates every */*/*.ebuild path under every
// registered repository's base directory.
func (s *Set) FindAllEbuilds() ([]string, error) {
	var out []string
	for _, repo := range s.repos {
		matches, err := filepath.Glob(filepath.Join(repo.BaseDir, "*", "*", "*.ebuild"))
		if err != nil {
			return nil, fmt.Errorf("repository: enumerating ebuilds under %s: %w", repo.BaseDir, err)
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out, nil
}

// FindEbuilds enumerates *.ebuild files under packageName's (a
// "category/short_name" string) subdirectory in every repository that has
// one; a repository lacking the subdirectory contributes nothing (not an
// error).
func (s *Set) FindEbuilds(packageName string) ([]string, error) {
	var out []string
	for _, repo := range s.repos {
		dir := filepath.Join(repo.BaseDir, packageName)
		if _, err := os.Stat(dir); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("repository: stat %s: %w", dir, err)
		}
		matches, err := filepath.Glob(filepath.Join(dir, "*.ebuild"))
		if err != nil {
			return nil, fmt.Errorf("repository: enumerating ebuilds under %s: %w", dir, err)
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out, nil
}

// GetRepoByPath finds the repository whose base directory is the longest
// prefix of an absolute path, returning the repository and the path
// relative to its base directory.
func (s *Set) GetRepoByPath(path string) (*Repository, string, error) {
	if !filepath.IsAbs(path) {
		return nil, "", fmt.Errorf("repository: path %q is not absolute", path)
	}
	var best *Repository
	for _, repo := range s.repos {
		base := repo.BaseDir
		if path != base && !strings.HasPrefix(path, base+string(filepath.Separator)) {
			continue
		}
		if best == nil || len(repo.BaseDir) > len(best.BaseDir) {
			best = repo
		}
	}
	if best == nil {
		return nil, "", fmt.Errorf("repository: no repository contains path %q", path)
	}
	rel, err := filepath.Rel(best.BaseDir, path)
	if err != nil {
		return nil, "", fmt.Errorf("repository: %w", err)
	}
	return best, rel, nil
}
