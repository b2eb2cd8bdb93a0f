// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package durabletree

import (
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"cros.local/depgraph/internal/tarutil"
)

// DurableTree is an expanded durable tree: a set of overlayfs-mountable
// layer directories reproducing the tree that was passed to Convert.
type DurableTree struct {
	extra     *extraDir
	layerDirs []string
}

// TryExists reports whether rootDir is a directory containing a durable
// tree marker.
func TryExists(rootDir string) (bool, error) {
	info, err := os.Stat(rootDir)
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, nil
	}
	if _, err := os.Lstat(filepath.Join(rootDir, markerFileName)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Expand mounts and restores a durable tree for overlayfs use. It requires
// privilege to mount tmpfs. It is safe to call this
// concurrently, from multiple processes, against the same tree.
func Expand(rootDir string) (*DurableTree, error) {
	if _, err := os.Lstat(filepath.Join(rootDir, markerFileName)); err != nil {
		return nil, fmt.Errorf("durabletree: %s: not a durable tree: %w", rootDir, err)
	}

	info, err := os.Stat(rootDir)
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm() == hotMode {
		return nil, fmt.Errorf("durabletree: %s: still hot (mode %o); cool it down before expanding", rootDir, hotMode)
	}

	if err := restoreOnce(rootDir); err != nil {
		return nil, fmt.Errorf("durabletree: restoring %s: %w", rootDir, err)
	}

	extra, err := newExtraDir(rootDir)
	if err != nil {
		return nil, err
	}

	rawDir := filepath.Join(rootDir, rawDirName)
	var layerDirs []string
	hasExtra, err := dirHasChild(extra.path)
	if err != nil {
		extra.Close()
		return nil, err
	}
	if hasExtra {
		// The extra tarball can't carry xattrs (no PAX support), so any
		// directory recorded in both sets must come from raw/; raw
		// therefore always overlays on top when it's present alongside
		// extra.
		layerDirs = append(layerDirs, extra.path, rawDir)
	} else {
		hasRaw, err := dirHasChild(rawDir)
		if err != nil {
			extra.Close()
			return nil, err
		}
		if hasRaw {
			layerDirs = append(layerDirs, rawDir)
		}
	}

	return &DurableTree{extra: extra, layerDirs: layerDirs}, nil
}

// Layers returns the overlayfs-mountable directories in mount order (a
// former entry is overridden by a latter one). May be empty for an empty
// tree.
func (t *DurableTree) Layers() []string {
	out := make([]string, len(t.layerDirs))
	copy(out, t.layerDirs)
	return out
}

// Close unmounts and removes the tmpfs-backed extra directory.
func (t *DurableTree) Close() error {
	return t.extra.Close()
}

// CoolDownForTesting simulates the permission change Bazel applies to a
// tree artifact once its producing action finishes: every entry is reset
// to 0755, has its user xattrs cleared, then set to 0555. Use this only in
// tests that need to Expand a tree Convert just produced.
func CoolDownForTesting(rootDir string) error {
	return filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := os.Chmod(path, 0755); err != nil {
			return err
		}
		names, err := listUserXattrNames(path)
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := unix.Removexattr(path, name); err != nil {
				return err
			}
		}
		return os.Chmod(path, 0555)
	})
}

func dirHasChild(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	if err == nil {
		return true, nil
	}
	return false, nil
}

// restoreOnce replays rootDir's manifest against raw/ at most once,
// guarded by an flock on rootDir plus a durable "already restored" xattr
// so concurrent expansions (even from different processes) don't race
// each other.
func restoreOnce(rootDir string) error {
	f, err := os.Open(rootDir)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("locking %s: %w", rootDir, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	restored, err := hasXattr(rootDir, restoredXattrName)
	if err != nil {
		return err
	}
	if restored {
		return nil
	}

	manifest, err := loadManifest(rootDir)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	rawDir := filepath.Join(rootDir, rawDirName)
	for _, e := range manifest.Entries {
		full := filepath.Join(rawDir, filepath.FromSlash(e.Path))
		if e.IsDir {
			if _, err := os.Lstat(full); os.IsNotExist(err) {
				// Bazel forgets empty directories when it uploads a tree
				// artifact to the remote cache; recreate them.
				if err := os.MkdirAll(full, 0755); err != nil {
					return err
				}
			}
		}
		if err := os.Chmod(full, fs.FileMode(e.Mode)); err != nil {
			return fmt.Errorf("restoring mode of %s: %w", full, err)
		}
		for name, encoded := range e.Xattrs {
			value, err := decodeXattrValue(encoded)
			if err != nil {
				return err
			}
			if err := setXattr(full, name, value); err != nil {
				return fmt.Errorf("restoring xattr %s of %s: %w", name, full, err)
			}
		}
	}

	return setXattr(rootDir, restoredXattrName, []byte("1"))
}

// extraDir is a tmpfs-mounted scratch directory holding extra.tar.zst's
// contents, unmounted and removed on Close.
type extraDir struct {
	path    string
	mounted bool
}

func newExtraDir(rootDir string) (*extraDir, error) {
	dir, err := os.MkdirTemp("", "durabletree-extra-*")
	if err != nil {
		return nil, err
	}
	if err := unix.Mount("tmpfs", dir, "tmpfs", 0, "mode=0755"); err != nil {
		os.Remove(dir)
		return nil, fmt.Errorf("mounting tmpfs on %s: %w", dir, err)
	}
	ed := &extraDir{path: dir, mounted: true}

	tarPath := filepath.Join(rootDir, extraTarName)
	tarFile, err := os.Open(tarPath)
	if err != nil {
		ed.Close()
		return nil, err
	}
	defer tarFile.Close()

	if err := tarutil.ExtractZstd(tarFile, dir); err != nil {
		ed.Close()
		return nil, fmt.Errorf("extracting %s: %w", extraTarName, err)
	}
	return ed, nil
}

func (e *extraDir) Close() error {
	if !e.mounted {
		return nil
	}
	e.mounted = false
	if err := unix.Unmount(e.path, 0); err != nil {
		return err
	}
	return os.Remove(e.path)
}

func decodeXattrValue(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}
