// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package buildgraph

import (
	"encoding/json"
	"os"
)

// PackageRecords is the full per-package rule-record output, keyed by
// package name ("category/short_name").
type PackageRecords map[string]*PackageRecord

// Load reads a previously-saved PackageRecords file.
func Load(path string) (PackageRecords, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records PackageRecords
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

// Save writes records as indented JSON, the per-package rule-record half of
// the persisted build graph.
func Save(path string, records PackageRecords) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// SaveDeps writes repos as the tagged-envelope JSON array, the global deps
// half of the persisted build graph.
func SaveDeps(path string, repos RepositoryList) error {
	data, err := repos.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
