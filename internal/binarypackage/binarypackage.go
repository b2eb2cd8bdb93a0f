// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package binarypackage reads Portage's .tbz2 binary package format:
// a zstd-compressed tarball of installed files followed by an XPAK blob of
// build-time metadata (CATEGORY, PF, USE, and friends).
package binarypackage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/klauspost/compress/zstd"

	"cros.local/depgraph/internal/tarutil"
)

// Headers is the flat name-to-value map recovered from a package's XPAK
// index; values are raw bytes (most are short text, but none of them are
// guaranteed to be valid UTF-8).
type Headers map[string][]byte

// File is an open .tbz2 binary package.
type File struct {
	xpakStart int64
	size      int64
	f         *os.File
}

// trailerMagic names a fixed byte string a well-formed .tbz2 carries at a
// fixed distance from the end of the file, before the XPAK blob's own start
// offset is known.
type trailerMagic struct {
	fromEnd int64
	want    string
}

// trailerMagics is checked in order by Open: both anchor off bp.size alone,
// so neither needs the xpak_offset field decoded first.
var trailerMagics = []trailerMagic{
	{4, "STOP"},
	{16, "XPAKSTOP"},
}

// Open parses path's trailing magic strings and XPAK offsets without
// reading the tarball or XPAK index yet.
func Open(path string) (bp *File, err error) {
	bp = &File{}
	bp.f, err = os.Open(path)
	if err != nil {
		return nil, err
	}

	ok := false
	defer func() {
		if !ok {
			bp.Close()
		}
	}()

	fi, err := bp.f.Stat()
	if err != nil {
		return nil, err
	}
	bp.size = fi.Size()

	if bp.size < 24 {
		return nil, errors.New("binarypackage: corrupted .tbz2: file too small")
	}
	for _, m := range trailerMagics {
		if err := bp.expectMagic(bp.size-m.fromEnd, m.want); err != nil {
			return nil, fmt.Errorf("binarypackage: corrupted .tbz2: %w", err)
		}
	}

	xpakOffset, err := bp.readUint32(bp.size - 8)
	if err != nil {
		return nil, fmt.Errorf("binarypackage: corrupted .tbz2: %w", err)
	}
	bp.xpakStart = bp.size - 8 - int64(xpakOffset)
	if bp.xpakStart < 0 {
		return nil, errors.New("binarypackage: corrupted .tbz2: invalid xpak offset")
	}
	if err := bp.expectMagic(bp.xpakStart, "XPAKPACK"); err != nil {
		return nil, fmt.Errorf("binarypackage: corrupted .tbz2: %w", err)
	}

	ok = true
	return bp, nil
}

// Close closes the underlying file.
func (bp *File) Close() error {
	return bp.f.Close()
}

// TarballReader returns an independent reader positioned at the start of
// the package's zstd-compressed tarball, capped so it cannot read into the
// XPAK blob; closing it does not affect bp.
func (bp *File) TarballReader() (io.ReadCloser, error) {
	newFd, err := syscall.Dup(int(bp.f.Fd()))
	if err != nil {
		return nil, err
	}
	f := os.NewFile(uintptr(newFd), bp.f.Name())
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return readCloser{Reader: io.LimitReader(f, bp.xpakStart), Closer: f}, nil
}

// ExtractAll extracts every file in the tarball into destDir.
func (bp *File) ExtractAll(destDir string) error {
	tarball, err := bp.TarballReader()
	if err != nil {
		return err
	}
	defer tarball.Close()
	return tarutil.ExtractZstd(tarball, destDir)
}

// ExtractMembers extracts only the named tarball members into destDir,
// without reading or writing the rest of the package's installed files.
func (bp *File) ExtractMembers(names []string, destDir string) error {
	tarball, err := bp.TarballReader()
	if err != nil {
		return err
	}
	defer tarball.Close()

	decoder, err := zstd.NewReader(tarball, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return err
	}
	defer decoder.Close()

	want := make(map[string]bool, len(names))
	for _, name := range names {
		want[name] = true
	}
	return tarutil.ExtractSelected(decoder, destDir, want)
}

// Headers parses the XPAK index and returns every header it contains.
func (bp *File) Headers() (Headers, error) {
	indexLen, err := bp.readUint32(bp.xpakStart + 8)
	if err != nil {
		return nil, err
	}
	dataLen, err := bp.readUint32(bp.xpakStart + 12)
	if err != nil {
		return nil, err
	}
	indexStart := bp.xpakStart + 16
	dataStart := indexStart + int64(indexLen)
	if dataStart+int64(dataLen) != bp.size-16 {
		return nil, errors.New("binarypackage: corrupted .tbz2: xpak data length inconsistency")
	}

	headers := make(Headers)
	for pos := indexStart; pos < dataStart; {
		nameLen, err := bp.readUint32(pos)
		if err != nil {
			return nil, err
		}
		pos += 4
		nameBuf := make([]byte, int(nameLen))
		if _, err := io.ReadFull(bp.f, nameBuf); err != nil {
			return nil, err
		}
		pos += int64(nameLen)

		dataOffset, err := bp.readUint32(pos)
		if err != nil {
			return nil, err
		}
		pos += 4
		entryLen, err := bp.readUint32(pos)
		if err != nil {
			return nil, err
		}
		pos += 4

		if _, err := bp.f.Seek(dataStart+int64(dataOffset), io.SeekStart); err != nil {
			return nil, err
		}
		data := make([]byte, int(entryLen))
		if _, err := io.ReadFull(bp.f, data); err != nil {
			return nil, err
		}

		headers[string(nameBuf)] = data
	}
	return headers, nil
}

// ExtractHeaders reads only the requested XPAK header names (e.g.
// "CATEGORY", "USE", "environment.bz2") and writes each as its own file
// under destDir, skipping any name the package doesn't carry. It parses the
// full Headers map first and writes out only the requested entries.
func (bp *File) ExtractHeaders(names []string, destDir string) error {
	want := make(map[string]bool, len(names))
	for _, name := range names {
		want[name] = true
	}

	headers, err := bp.Headers()
	if err != nil {
		return err
	}
	for name, data := range headers {
		if !want[name] {
			continue
		}
		if err := os.WriteFile(filepath.Join(destDir, name), data, 0644); err != nil {
			return fmt.Errorf("binarypackage: writing header %s: %w", name, err)
		}
	}
	return nil
}

func (bp *File) readUint32(offset int64) (uint32, error) {
	if _, err := bp.f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(bp.f, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

func (bp *File) expectMagic(offset int64, want string) error {
	if _, err := bp.f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	buf := make([]byte, len(want))
	if _, err := io.ReadFull(bp.f, buf); err != nil {
		return err
	}
	if got := string(buf); got != want {
		return fmt.Errorf("bad magic: got %q, want %q", got, want)
	}
	return nil
}

// ReadHeaders is a convenience wrapper that opens path, reads its XPAK
// headers, and closes it again.
func ReadHeaders(path string) (Headers, error) {
	bp, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer bp.Close()
	return bp.Headers()
}

type readCloser struct {
	io.Reader
	io.Closer
}
