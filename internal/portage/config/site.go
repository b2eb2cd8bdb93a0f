// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package config

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cros.local/depgraph/internal/dependency"
	"cros.local/depgraph/internal/makevars"
)

// SiteSource is the config.Source for a ROOT's own site-level overrides,
// layered above the profile chain: etc/make.conf and etc/portage/make.conf
// (the latter overriding the former), plus etc/portage/package.use
// (a plain "atom token..." list, always Set kind, never stable-only).
//
// Unlike a profile directory, a site ROOT has no package.mask,
// package.use.force, or package.provided convention of its own in this
// implementation; a real ChromiumOS ROOT's /etc/portage/profile/* site
// overrides are not modeled here.
type SiteSource struct {
	RootDir string
}

func (s SiteSource) Evaluate(env makevars.Vars) ([]Node, error) {
	var node Node
	working := env.Clone()

	for _, rel := range []string{"etc/make.conf", "etc/portage/make.conf"} {
		vars, err := evalMakeConfFile(filepath.Join(s.RootDir, rel), working)
		if err != nil {
			return nil, err
		}
		for k, v := range vars {
			working[k] = v
		}
	}
	node.Vars = working

	uses, err := readSitePackageUse(filepath.Join(s.RootDir, "etc/portage/package.use"))
	if err != nil {
		return nil, err
	}
	node.Uses = uses

	return []Node{node}, nil
}

func readSiteLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
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
	return lines, sc.Err()
}

func readSitePackageUse(path string) ([]UseUpdate, error) {
	lines, err := readSiteLines(path)
	if err != nil {
		return nil, err
	}
	var out []UseUpdate
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		atom, err := dependency.Parse(fields[0])
		if err != nil {
			return nil, err
		}
		out = append(out, UseUpdate{
			Kind:   Set,
			Filter: UseFilter{Atom: atom},
			Tokens: strings.Join(fields[1:], " "),
		})
	}
	return out, nil
}
