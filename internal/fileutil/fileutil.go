// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package fileutil provides the filesystem primitives the durable tree
// format needs beyond the standard library: permission-preserving moves
// and chmod-then-remove deletion of read-only trees.
package fileutil

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Copy copies a single regular file, preserving it via the system cp so
// sparse files and ACLs survive the same way they would under a shell
// build script.
func Copy(src, dst string) error {
	cmd := exec.Command("/usr/bin/cp", "--", src, dst)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// MoveDirContents moves every entry of from into to, granting u+w to
// directories that lack it (a rename of a read-only directory entry still
// requires write permission on the entry itself) and restoring the
// original mode afterward.
func MoveDirContents(from, to string) error {
	entries, err := os.ReadDir(from)
	if err != nil {
		return err
	}

	for _, e := range entries {
		src := filepath.Join(from, e.Name())
		dest := filepath.Join(to, e.Name())

		var mode fs.FileMode
		if e.IsDir() {
			fi, err := e.Info()
			if err != nil {
				return err
			}
			mode = fi.Mode()
			if mode.Perm()&unix.S_IWUSR == 0 {
				if err := os.Chmod(src, mode.Perm()|unix.S_IWUSR); err != nil {
					return err
				}
			}
		}

		if err := os.Rename(src, dest); err != nil {
			return err
		}

		if e.IsDir() {
			if err := os.Chmod(dest, mode.Perm()); err != nil {
				return err
			}
		}
	}

	return nil
}

// RemoveWithChmod removes path after granting its parent directory u+rwx,
// restoring the parent's original mode afterward. Use this to unlink a
// single entry inside a directory the durable tree machinery has made
// read-only (mode 0555).
func RemoveWithChmod(path string) error {
	parent := filepath.Dir(path)
	stat, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if err := os.Chmod(parent, 0700); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return err
	}
	return os.Chmod(parent, stat.Mode())
}

// RemoveAllWithChmod removes the whole tree rooted at path, granting u+rwx
// to every directory along the way (and to path's parent) so that
// read-only cooled-down trees can still be torn down.
func RemoveAllWithChmod(path string) error {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}

	if err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode().Perm()&0700 == 0700 {
			return nil
		}
		return os.Chmod(p, 0700)
	}); err != nil {
		return err
	}

	parent := filepath.Dir(path)
	stat, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if err := os.Chmod(parent, 0700); err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return err
	}
	return os.Chmod(parent, stat.Mode())
}
