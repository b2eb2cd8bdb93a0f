// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package resolver selects the best-matching package for a dependency atom
// across a repository set, configuration bundle, and package loader.
package resolver

import (
	"fmt"
	"sync"

	"cros.local/depgraph/internal/dependency"
	"cros.local/depgraph/internal/portage/config"
	"cros.local/depgraph/internal/portage/ebuild"
	"cros.local/depgraph/internal/portage/packages"
	"cros.local/depgraph/internal/portage/repository"
)

// Resolver answers atom/package queries over a fixed repository set and
// configuration bundle, caching per-package-name ebuild loads so repeated
// lookups (common during dependency analysis) evaluate each ebuild once.
type Resolver struct {
	repos  *repository.Set
	ev     *ebuild.Evaluator
	dirs   ebuild.EclassDirsProvider
	bundle *config.Bundle
	arch   string
	relax  packages.LiveRelaxation

	mu    sync.Mutex
	cells map[string]*loadCell
}

type loadCell struct {
	once   sync.Once
	result []packages.MaybePackageDetails
	err    error
}

// New constructs a Resolver.
func New(repos *repository.Set, ev *ebuild.Evaluator, dirs ebuild.EclassDirsProvider, bundle *config.Bundle, arch string, relax packages.LiveRelaxation) *Resolver {
	return &Resolver{
		repos:  repos,
		ev:     ev,
		dirs:   dirs,
		bundle: bundle,
		arch:   arch,
		relax:  relax,
		cells:  map[string]*loadCell{},
	}
}

func (r *Resolver) getCell(packageName string) *loadCell {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cells[packageName]
	if !ok {
		c = &loadCell{}
		r.cells[packageName] = c
	}
	return c
}

// loadPackage loads every ebuild registered for packageName, at most once
// per distinct name even under concurrent callers.
func (r *Resolver) loadPackage(packageName string) ([]packages.MaybePackageDetails, error) {
	c := r.getCell(packageName)
	c.once.Do(func() {
		paths, err := r.repos.FindEbuilds(packageName)
		if err != nil {
			c.err = err
			return
		}
		result := make([]packages.MaybePackageDetails, 0, len(paths))
		for _, path := range paths {
			maybe, err := packages.Load(r.ev, r.dirs, path, r.bundle, r.arch, r.relax)
			if err != nil {
				c.err = fmt.Errorf("resolver: loading %s: %w", path, err)
				return
			}
			result = append(result, maybe)
		}
		c.result = result
	})
	return c.result, c.err
}

// FindBestPackage enumerates ebuilds matching atom.PackageName across all
// repositories, drops masked and errored entries, and returns the greatest
// version satisfying atom (nil, nil if none match).
func (r *Resolver) FindBestPackage(atom *dependency.Atom) (*packages.PackageDetails, error) {
	maybes, err := r.loadPackage(atom.PackageName)
	if err != nil {
		return nil, err
	}
	var best *packages.PackageDetails
	for _, m := range maybes {
		if m.Err != nil || m.OK == nil {
			continue
		}
		d := m.OK
		if d.Readiness != packages.Ready {
			continue
		}
		if !atom.Matches(d.Ref()) {
			continue
		}
		if best == nil || d.Version.Compare(best.Version) > 0 {
			best = d
		}
	}
	return best, nil
}

// FindProvidedPackages returns every configuration-provided virtual
// matching atom.
func (r *Resolver) FindProvidedPackages(atom *dependency.Atom) []config.ProvidedPackage {
	var out []config.ProvidedPackage
	for _, p := range r.bundle.Provided() {
		ref := &dependency.PackageRef{PackageName: p.PackageName, Version: p.Version}
		if atom.Matches(ref) {
			out = append(out, p)
		}
	}
	return out
}

// FindAllPackages loads every ebuild in every registered repository, for
// bulk analysis.
func (r *Resolver) FindAllPackages() ([]packages.MaybePackageDetails, error) {
	paths, err := r.repos.FindAllEbuilds()
	if err != nil {
		return nil, err
	}
	out := make([]packages.MaybePackageDetails, 0, len(paths))
	for _, path := range paths {
		maybe, err := packages.Load(r.ev, r.dirs, path, r.bundle, r.arch, r.relax)
		if err != nil {
			return nil, fmt.Errorf("resolver: loading %s: %w", path, err)
		}
		out = append(out, maybe)
	}
	return out, nil
}
