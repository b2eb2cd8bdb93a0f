// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cros.local/depgraph/internal/makevars"
	"cros.local/depgraph/internal/portage/config"
	"cros.local/depgraph/internal/portage/profile"
)

// Overlays extracts the overlay directory list from a config environment's
// PORTDIR/PORTDIR_OVERLAY variables: the primary repository directory
// followed by a whitespace-separated overlay list.
func Overlays(vars makevars.Vars) []string {
	var out []string
	if primary := vars["PORTDIR"]; primary != "" {
		out = append(out, primary)
	}
	out = append(out, strings.Fields(vars["PORTDIR_OVERLAY"])...)
	return out
}

// Defaults is the result of loading a configuration root's default overlay
// set, profile, and composed configuration bundle in one step.
type Defaults struct {
	Set     *Set
	Profile *profile.Profile
	Bundle  *config.Bundle

	// Sources is the ordered source list Bundle was composed from: the
	// resolved profile's ancestry chain followed by the ROOT's own
	// config.SiteSource. Callers that need to layer additional overrides
	// (board-specific hacks, for instance) append to this list and call
	// config.Compose again rather than reaching into Bundle.
	Sources []config.Source
}

// LoadDefaults loads rootDir's overlay set, resolves its default profile via
// etc/portage/make.profile, and composes the full configuration bundle.
func LoadDefaults(rootDir string) (*Defaults, error) {
	bootBundle, err := config.Compose([]config.Source{config.SiteSource{RootDir: rootDir}})
	if err != nil {
		return nil, fmt.Errorf("repository: reading boot vars under %s: %w", rootDir, err)
	}

	overlays := Overlays(bootBundle.Vars)
	if len(overlays) == 0 {
		return nil, fmt.Errorf("repository: %s: no overlays found (PORTDIR/PORTDIR_OVERLAY empty)", rootDir)
	}

	set := NewSet()
	for _, dir := range overlays {
		if _, err := set.Add(dir); err != nil {
			return nil, err
		}
	}

	profilePath, err := os.Readlink(filepath.Join(rootDir, "etc/portage/make.profile"))
	if err != nil {
		return nil, fmt.Errorf("repository: %s: reading make.profile symlink: %w", rootDir, err)
	}
	if !filepath.IsAbs(profilePath) {
		profilePath = filepath.Clean(filepath.Join(rootDir, "etc/portage", profilePath))
	}

	prof, err := set.ProfileByPath(profilePath)
	if err != nil {
		return nil, fmt.Errorf("repository: %s: %w", rootDir, err)
	}

	sources := append(prof.Sources(), config.SiteSource{RootDir: rootDir})
	bundle, err := config.Compose(sources)
	if err != nil {
		return nil, fmt.Errorf("repository: %s: composing configuration: %w", rootDir, err)
	}

	return &Defaults{Set: set, Profile: prof, Bundle: bundle, Sources: sources}, nil
}
