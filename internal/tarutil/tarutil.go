// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package tarutil extracts tar and zstd-compressed tar archives, shared by
// the durable tree format and the binary package reader.
package tarutil

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sys/unix"
)

// Extract extracts a plain tar stream into dest, which must already exist.
// It handles directories, regular files, symlinks, character and block
// devices and FIFOs; any other entry type is an error.
func Extract(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("tarutil: decoding tar: %w", err)
		}

		path := filepath.Join(dest, header.Name)
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, fs.FileMode(header.Mode).Perm()); err != nil {
				return fmt.Errorf("tarutil: mkdir %s: %w", path, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(header.Mode).Perm())
			if err != nil {
				return fmt.Errorf("tarutil: creating %s: %w", path, err)
			}
			_, err = io.Copy(out, tr)
			closeErr := out.Close()
			if err != nil {
				return fmt.Errorf("tarutil: writing %s: %w", path, err)
			}
			if closeErr != nil {
				return closeErr
			}
		case tar.TypeSymlink:
			if err := os.Symlink(header.Linkname, path); err != nil {
				return fmt.Errorf("tarutil: symlink %s -> %s: %w", path, header.Linkname, err)
			}
		case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
			mode := uint32(header.Mode) & 07777
			switch header.Typeflag {
			case tar.TypeChar:
				mode |= unix.S_IFCHR
			case tar.TypeBlock:
				mode |= unix.S_IFBLK
			default:
				mode |= unix.S_IFIFO
			}
			dev := unix.Mkdev(uint32(header.Devmajor), uint32(header.Devminor))
			if err := unix.Mknod(path, mode, int(dev)); err != nil {
				return fmt.Errorf("tarutil: mknod %s: %w", path, err)
			}
		default:
			return fmt.Errorf("tarutil: %s: unsupported tar entry type %#x", header.Name, header.Typeflag)
		}
	}
}

// ExtractZstd extracts a zstd-compressed tar stream into dest.
func ExtractZstd(r io.Reader, dest string) error {
	decoder, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return err
	}
	defer decoder.Close()
	return Extract(decoder, dest)
}

// ExtractSelected extracts only the tar entries whose name is in names,
// stopping early once all of them have been seen. Missing names are
// silently skipped, matching Extract's tolerance for archives that don't
// contain every path a caller asks about.
func ExtractSelected(r io.Reader, dest string, names map[string]bool) error {
	remaining := len(names)
	tr := tar.NewReader(r)
	for remaining > 0 {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("tarutil: decoding tar: %w", err)
		}
		if !names[header.Name] {
			continue
		}
		remaining--

		path := filepath.Join(dest, header.Name)
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, fs.FileMode(header.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(header.Mode).Perm())
			if err != nil {
				return fmt.Errorf("tarutil: creating %s: %w", path, err)
			}
			_, err = io.Copy(out, tr)
			closeErr := out.Close()
			if err != nil {
				return fmt.Errorf("tarutil: writing %s: %w", path, err)
			}
			if closeErr != nil {
				return closeErr
			}
		case tar.TypeSymlink:
			if err := os.Symlink(header.Linkname, path); err != nil {
				return fmt.Errorf("tarutil: symlink %s -> %s: %w", path, header.Linkname, err)
			}
		default:
			return fmt.Errorf("tarutil: %s: unsupported tar entry type %#x", header.Name, header.Typeflag)
		}
	}
	return nil
}
