// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package durabletree

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// ManifestEntry records one raw/ entry's original metadata: the mode and
// user xattrs Bazel strips from tree artifacts when round-tripping them
// through the remote cache.
type ManifestEntry struct {
	Path   string            `json:"path"` // slash-separated, relative to raw/
	IsDir  bool              `json:"is_dir,omitempty"`
	Mode   uint32            `json:"mode"`
	Xattrs map[string]string `json:"xattrs,omitempty"` // name -> base64(value)
}

// Manifest is the JSON document persisted as manifest.json.
type Manifest struct {
	Entries []ManifestEntry `json:"entries"`
}

func loadManifest(rootDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(rootDir, manifestFileName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func saveManifest(rootDir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(rootDir, manifestFileName), data, 0644)
}

// listUserXattrNames lists the names of the "user." namespace xattrs on
// path, each including the "user." prefix.
func listUserXattrNames(path string) ([]string, error) {
	size, err := unix.Listxattr(path, nil)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	n, err := unix.Listxattr(path, buf)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, raw := range strings.Split(string(buf[:n]), "\x00") {
		if strings.HasPrefix(raw, "user.") {
			names = append(names, raw)
		}
	}
	return names, nil
}

// readUserXattrs reads every "user." xattr on path into a base64-encoded
// map suitable for JSON serialization.
func readUserXattrs(path string) (map[string]string, error) {
	names, err := listUserXattrNames(path)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(names))
	for _, name := range names {
		size, err := unix.Getxattr(path, name, nil)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size)
		if size > 0 {
			if _, err := unix.Getxattr(path, name, buf); err != nil {
				return nil, err
			}
		}
		out[name] = base64.StdEncoding.EncodeToString(buf)
	}
	return out, nil
}

func hasXattr(path, name string) (bool, error) {
	_, err := unix.Getxattr(path, name, nil)
	if err == nil {
		return true, nil
	}
	if err == unix.ENODATA {
		return false, nil
	}
	return false, err
}

func setXattr(path, name string, value []byte) error {
	return unix.Setxattr(path, name, value, 0)
}
