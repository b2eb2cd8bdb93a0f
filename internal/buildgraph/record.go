// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package buildgraph turns a set of resolved packages and their analyzed
// dependencies into two persisted JSON outputs: a per-package rule record
// keyed by package name, and a deduplicated list of tagged remote-source
// repository records.
package buildgraph

import (
	"sort"

	"cros.local/depgraph/internal/analyzer"
	"cros.local/depgraph/internal/portage/packages"
)

// DistFileEntry names one remote distfile a package's SRC_URI references.
type DistFileEntry struct {
	Name      string   `json:"name"`
	Filename  string   `json:"filename"`
	Integrity string   `json:"integrity,omitempty"`
	Urls      []string `json:"urls"`
}

// PackageRecord is one package's emitted rule record. Dependency label
// lists are sorted and deduplicated; each label is built by Label from the
// resolved dependency's category, name and version, not from the raw atom
// text, so it names the selected version but carries no slot or sub-slot.
type PackageRecord struct {
	EbuildFilename string          `json:"ebuildFilename"`
	Version        string          `json:"version"`
	LocalSources   []string        `json:"localSources"`
	DistFiles      []DistFileEntry `json:"distFiles"`

	BuildDeps        []string `json:"buildDeps"`
	RunDeps          []string `json:"runDeps"`
	PostDeps         []string `json:"postDeps,omitempty"`
	BuildHostDeps    []string `json:"buildHostDeps"`
	InstallHostDeps  []string `json:"installHostDeps"`

	SDKTag string `json:"sdkTag"`
}

// Label is the Bazel-style target reference a dependency list entry is
// recorded as: "//<category>/<short_name>:<version>".
func Label(d *packages.PackageDetails) string {
	return "//" + d.Category + "/" + d.ShortName + ":" + d.Version.String()
}

func labels(deps []*packages.PackageDetails) []string {
	set := make(map[string]bool, len(deps))
	for _, d := range deps {
		set[Label(d)] = true
	}
	out := make([]string, 0, len(set))
	for label := range set {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// NewPackageRecord builds one package's rule record from its resolved
// details, its analyzed direct dependencies, and its SDK tag (the build
// label of the SDK image the package builds against).
func NewPackageRecord(details *packages.PackageDetails, deps *analyzer.DirectDependencies, distFiles []DistFileEntry, sdkTag string) *PackageRecord {
	return &PackageRecord{
		EbuildFilename:  details.EbuildPath,
		Version:         details.Version.String(),
		LocalSources:    []string{},
		DistFiles:       distFiles,
		BuildDeps:       labels(deps.BuildTarget),
		RunDeps:         labels(deps.RunTarget),
		PostDeps:        labels(deps.PostTarget),
		BuildHostDeps:   labels(deps.BuildHost),
		InstallHostDeps: labels(deps.InstallHost),
		SDKTag:          sdkTag,
	}
}
