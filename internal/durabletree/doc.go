// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package durabletree implements the durable tree format: a
// directory layout that survives Bazel's tree-artifact round-trip through
// the remote cache (which drops permissions, user xattrs, and non-regular
// files) by partitioning a directory into a permission/xattr manifest plus
// a raw/ copy of its regular files and directories, with everything else
// (symlinks, device nodes, FIFOs) archived separately in a
// zstd-compressed tarball; Convert returns an error for a socket. Expanding a durable tree produces a list of
// directories meant to be layered with overlayfs to reproduce the
// original tree.
package durabletree
