// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"cros.local/depgraph/internal/dependency"
	"cros.local/depgraph/internal/makevars"
	"cros.local/depgraph/internal/portage/config"
	"cros.local/depgraph/internal/portage/ebuild"
	"cros.local/depgraph/internal/portage/packages"
	"cros.local/depgraph/internal/portage/repository"
	"cros.local/depgraph/internal/portage/resolver"
)

// targetData is one configuration ROOT's fully loaded state: its overlay
// set, composed configuration, and a resolver ready to answer atom queries
// against it.
type targetData struct {
	board    string
	profile  string
	rootDir  string
	defaults *repository.Defaults
	resolver *resolver.Resolver
}

// buildOverrideSource reproduces the hand-curated board-override hacks
// layered on top of every board's profile + site configuration: the
// cros-workon 9999 ebuilds
// that are never buildable from a plain checkout (lacros, llvm, scudo, and
// every cross-* toolchain's 9999 compiler-rt/libcxx/llvm-libunwind), plus
// the -runhooks USE override that keeps chrome's repository-rule hooks from
// running a second time inside the ebuild action.
func buildOverrideSource() config.Source {
	var masks []config.PackageMaskEntry
	for _, spec := range []string{
		"=chromeos-base/chromeos-lacros-9999",
		"=sys-libs/scudo-9999",
		"=sys-devel/llvm-9999",
	} {
		masks = append(masks, mustMask(spec))
	}
	for _, category := range []string{
		"sys-libs",
		"cross-aarch64-cros-linux-gnu",
		"cross-x86_64-cros-linux-gnux32",
		"cross-i686-cros-linux-gnu",
		"cross-x86_64-cros-linux-gnu",
		"cross-armv7m-cros-eabi",
		"cross-armv7a-cros-linux-gnueabihf",
	} {
		for _, pkg := range []string{"libcxx", "compiler-rt", "llvm-libunwind"} {
			masks = append(masks, mustMask(fmt.Sprintf("=%s/%s-9999", category, pkg)))
		}
	}

	uses := []config.UseUpdate{
		mustUse("chromeos-base/chrome-icu", "-runhooks"),
		mustUse("chromeos-base/chromeos-chrome", "-runhooks"),
	}

	return staticSource{Node: config.Node{PackageMasks: masks, Uses: uses}}
}

// staticSource is a config.Source that always contributes the same node,
// regardless of accumulated environment.
type staticSource struct {
	Node config.Node
}

func (s staticSource) Evaluate(makevars.Vars) ([]config.Node, error) {
	return []config.Node{s.Node}, nil
}

func mustMask(atomStr string) config.PackageMaskEntry {
	atom, err := dependency.Parse(atomStr)
	if err != nil {
		panic(err)
	}
	return config.PackageMaskEntry{Kind: config.Mask, Atom: atom}
}

func mustUse(atomStr, tokens string) config.UseUpdate {
	atom, err := dependency.Parse(atomStr)
	if err != nil {
		panic(err)
	}
	return config.UseUpdate{Kind: config.Set, Filter: config.UseFilter{Atom: atom}, Tokens: tokens}
}

// loadTarget loads rootDir's overlays, profile, and configuration, layers
// the board-override hacks on top, and builds a resolver backed by ev.
func loadTarget(rootDir, board, profileName string, ev *ebuild.Evaluator, insideChroot bool) (*targetData, error) {
	defaults, err := repository.LoadDefaults(rootDir)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", rootDir, err)
	}

	bundle, err := config.Compose(append(append([]config.Source{}, defaults.Sources...), buildOverrideSource()))
	if err != nil {
		return nil, fmt.Errorf("loading %s: composing overrides: %w", rootDir, err)
	}
	defaults.Bundle = bundle

	arch := bundle.Vars["ARCH"]
	if arch == "" {
		arch = "amd64"
	}

	dirs := func(ebuildPath string) (string, []string, error) {
		repo, _, err := defaults.Set.GetRepoByPath(ebuildPath)
		if err != nil {
			return "", nil, err
		}
		return repo.Name, repo.EclassDirs, nil
	}

	relax := packages.LiveRelaxation{Enabled: !insideChroot}
	r := resolver.New(defaults.Set, ev, dirs, bundle, arch, relax)

	return &targetData{board: board, profile: profileName, rootDir: rootDir, defaults: defaults, resolver: r}, nil
}

// insideChroot reports whether the process appears to be running inside the
// ChromiumOS SDK chroot, the production environment the live-9999
// relaxation is defined relative to.
func insideChroot() bool {
	_, err := os.Stat("/etc/cros_chroot_version")
	return err == nil
}

// setupToolsDir creates a scratch PATH directory for ebuild evaluation; the
// evaluator's prelude only shells out to a handful of helper binaries
// (ver_test-style version comparisons invoked by eclasses), so a directory
// containing just this binary under those names is enough.
func setupToolsDir() (string, func(), error) {
	dir, err := os.MkdirTemp("", "depgraph-tools-*")
	if err != nil {
		return "", nil, err
	}
	self, err := os.Executable()
	if err != nil {
		os.RemoveAll(dir)
		return "", nil, err
	}
	for _, name := range []string{"ver_test", "ver_rs"} {
		if err := os.Symlink(self, filepath.Join(dir, name)); err != nil {
			os.RemoveAll(dir)
			return "", nil, err
		}
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}
