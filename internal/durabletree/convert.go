// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package durabletree

import (
	"archive/tar"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"cros.local/depgraph/internal/fileutil"
)

// converter accumulates state while walking a plain directory tree into its
// durable-tree form: regular files and directories get moved into raw/ with
// their metadata recorded in the manifest; symlinks, devices and FIFOs
// get archived into extra.tar.zst instead, since Bazel tree artifacts
// cannot contain them. A socket reaches archiveSpecial too and fails there.
type converter struct {
	rootDir string
	rawDir  string
	tw      *tar.Writer
	manifest Manifest
	tarDirsWritten map[string]bool
}

// Convert turns the plain directory at rootDir into a durable tree in
// place. It is an error to convert a directory that is
// already a durable tree. The resulting tree is left "hot" (mode 0700);
// the caller must transition it to mode 0555 before any process expands
// it.
func Convert(rootDir string) error {
	markerPath := filepath.Join(rootDir, markerFileName)
	if _, err := os.Lstat(markerPath); err == nil {
		return fmt.Errorf("durabletree: %s: already a durable tree", rootDir)
	} else if !os.IsNotExist(err) {
		return err
	}

	rawDir := filepath.Join(rootDir, rawDirName)
	if err := os.Mkdir(rawDir, 0755); err != nil {
		return fmt.Errorf("durabletree: creating raw dir: %w", err)
	}

	tarPath := filepath.Join(rootDir, extraTarName)
	tarFile, err := os.Create(tarPath)
	if err != nil {
		return fmt.Errorf("durabletree: creating %s: %w", extraTarName, err)
	}
	zw, err := zstd.NewWriter(tarFile)
	if err != nil {
		tarFile.Close()
		return err
	}
	tw := tar.NewWriter(zw)

	c := &converter{
		rootDir:        rootDir,
		rawDir:         rawDir,
		tw:             tw,
		tarDirsWritten: map[string]bool{},
	}

	topEntries, err := os.ReadDir(rootDir)
	if err != nil {
		return err
	}
	for _, e := range topEntries {
		if isReservedName(e.Name()) {
			continue
		}
		if err := c.walk(e.Name()); err != nil {
			tw.Close()
			zw.Close()
			tarFile.Close()
			return err
		}
	}

	if err := tw.Close(); err != nil {
		zw.Close()
		tarFile.Close()
		return fmt.Errorf("durabletree: closing tar writer: %w", err)
	}
	if err := zw.Close(); err != nil {
		tarFile.Close()
		return fmt.Errorf("durabletree: closing zstd writer: %w", err)
	}
	if err := tarFile.Close(); err != nil {
		return err
	}

	if err := saveManifest(rootDir, &c.manifest); err != nil {
		return fmt.Errorf("durabletree: writing manifest: %w", err)
	}

	// The original entries have had their content relocated into raw/ or
	// extra.tar.zst; only now-empty directory shells (and any special
	// files the tar step already archived-and-removed) remain.
	for _, e := range topEntries {
		if isReservedName(e.Name()) {
			continue
		}
		if err := fileutil.RemoveAllWithChmod(filepath.Join(rootDir, e.Name())); err != nil {
			return fmt.Errorf("durabletree: cleaning up %s: %w", e.Name(), err)
		}
	}

	if err := os.WriteFile(markerPath, nil, 0644); err != nil {
		return err
	}
	return os.Chmod(rootDir, hotMode)
}

// walk processes rootDir/relPath (and, for directories, recurses).
func (c *converter) walk(relPath string) error {
	full := filepath.Join(c.rootDir, relPath)
	info, err := os.Lstat(full)
	if err != nil {
		return err
	}

	switch {
	case info.Mode()&(fs.ModeSymlink|fs.ModeDevice|fs.ModeNamedPipe|fs.ModeSocket|fs.ModeCharDevice) != 0:
		return c.archiveSpecial(relPath, info)
	case info.IsDir():
		return c.moveDir(relPath, info)
	default:
		return c.moveRegular(relPath, info)
	}
}

func (c *converter) moveDir(relPath string, info fs.FileInfo) error {
	full := filepath.Join(c.rootDir, relPath)
	rawPath := filepath.Join(c.rawDir, relPath)
	if err := os.Mkdir(rawPath, 0755); err != nil {
		return err
	}
	xattrs, err := readUserXattrs(full)
	if err != nil {
		return err
	}
	c.manifest.Entries = append(c.manifest.Entries, ManifestEntry{
		Path: filepath.ToSlash(relPath), IsDir: true, Mode: uint32(info.Mode().Perm()), Xattrs: xattrs,
	})

	children, err := os.ReadDir(full)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := c.walk(filepath.Join(relPath, child.Name())); err != nil {
			return err
		}
	}
	return os.Chmod(rawPath, 0755)
}

func (c *converter) moveRegular(relPath string, info fs.FileInfo) error {
	full := filepath.Join(c.rootDir, relPath)
	rawPath := filepath.Join(c.rawDir, relPath)
	xattrs, err := readUserXattrs(full)
	if err != nil {
		return err
	}
	c.manifest.Entries = append(c.manifest.Entries, ManifestEntry{
		Path: filepath.ToSlash(relPath), Mode: uint32(info.Mode().Perm()), Xattrs: xattrs,
	})
	if err := os.Rename(full, rawPath); err != nil {
		return err
	}
	return os.Chmod(rawPath, 0755)
}

// archiveSpecial streams a symlink/device/FIFO into extra.tar.zst (for a
// socket, tar.FileInfoHeader returns an error, which is returned as is),
// writing any not-yet-seen ancestor directory headers first so the
// archive's paths can be extracted standalone, then removes the original
// (the parent directory itself is still relocated into raw/ by moveDir).
func (c *converter) archiveSpecial(relPath string, info fs.FileInfo) error {
	slashPath := filepath.ToSlash(relPath)

	var parents []string
	for parent := filepath.Dir(relPath); parent != "."; parent = filepath.Dir(parent) {
		if c.tarDirsWritten[parent] {
			break
		}
		parents = append(parents, parent)
	}
	for i := len(parents) - 1; i >= 0; i-- {
		pInfo, err := os.Lstat(filepath.Join(c.rootDir, parents[i]))
		if err != nil {
			return err
		}
		if err := c.tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeDir,
			Name:     filepath.ToSlash(parents[i]),
			Mode:     int64(pInfo.Mode().Perm()),
		}); err != nil {
			return err
		}
		c.tarDirsWritten[parents[i]] = true
	}

	full := filepath.Join(c.rootDir, relPath)
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = slashPath
	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(full)
		if err != nil {
			return err
		}
		header.Linkname = target
	}
	if err := c.tw.WriteHeader(header); err != nil {
		return err
	}

	return fileutil.RemoveWithChmod(full)
}
