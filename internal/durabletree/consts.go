// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package durabletree

const (
	markerFileName   = "DURABLE_TREE"
	rawDirName       = "raw"
	manifestFileName = "manifest.json"
	extraTarName     = "extra.tar.zst"

	// restoredXattrName marks a durable tree's root once expand has
	// replayed its manifest, so a second concurrent expand is a no-op.
	restoredXattrName = "user.cros_durabletree.restored"

	// hotMode is the permission convert() leaves on the tree's root;
	// expand() refuses to run against a tree still at this mode.
	hotMode = 0o700
)

func isReservedName(name string) bool {
	switch name {
	case markerFileName, rawDirName, manifestFileName, extraTarName:
		return true
	default:
		return false
	}
}
