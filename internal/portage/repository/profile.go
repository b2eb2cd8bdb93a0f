// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package repository

import (
	"fmt"
	"path/filepath"
	"strings"

	"cros.local/depgraph/internal/portage/profile"
)

var _ profile.Resolver = (*Set)(nil)

// ProfileByPath locates the repository whose profiles/ directory is the
// longest prefix of an absolute path and loads the profile found there,
// naming it "repoName:relativePath" for cross-repo "parent" references.
func (s *Set) ProfileByPath(path string) (*profile.Profile, error) {
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("repository: profile path %q is not absolute", path)
	}
	var best *Repository
	var rel string
	for _, repo := range s.repos {
		profilesDir := filepath.Join(repo.BaseDir, "profiles")
		if path != profilesDir && !strings.HasPrefix(path, profilesDir+string(filepath.Separator)) {
			continue
		}
		if best == nil || len(repo.BaseDir) > len(best.BaseDir) {
			best = repo
			r, err := filepath.Rel(profilesDir, path)
			if err != nil {
				return nil, err
			}
			rel = r
		}
	}
	if best == nil {
		return nil, fmt.Errorf("repository: no repository's profiles/ directory contains %q", path)
	}
	return profile.Load(path, best.Name+":"+rel, s)
}

// Profile loads the named profile ("repoName:relativePath").
func (s *Set) Profile(name string) (*profile.Profile, error) {
	repoName, rel, ok := strings.Cut(name, ":")
	if !ok {
		return nil, fmt.Errorf("repository: invalid profile name %q (want repo-name:path)", name)
	}
	repo, ok := s.ByName(repoName)
	if !ok {
		return nil, fmt.Errorf("repository: profile %q: unknown repository %q", name, repoName)
	}
	return profile.Load(filepath.Join(repo.BaseDir, "profiles", rel), name, s)
}

// ResolveProfile implements profile.Resolver: a "parent" entry containing a
// colon names a cross-repo profile directly; otherwise it is a path
// relative to the referencing profile's own directory.
func (s *Set) ResolveProfile(path, base string) (*profile.Profile, error) {
	if strings.Contains(path, ":") {
		return s.Profile(path)
	}
	return s.ProfileByPath(filepath.Clean(filepath.Join(base, path)))
}
