// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package container enters a mount/PID/IPC/(optionally)network/user
// namespace sandbox built from a list of overlay layers and bind mounts,
// then execs a command inside it.
package container

// ContainerLayer is one overlayfs layer contributed to the container's
// merged root. Path is either a plain directory, or the root of a durable
// tree that Enter expands before mounting; layers are listed
// lowest-precedence first, matching the order durabletree.Layers returns
// for a single tree and the order Settings.Layers are concatenated across
// multiple trees.
type ContainerLayer struct {
	Path    string
	Durable bool
}

// BindMount binds Source from the host onto Target inside the container,
// optionally remounted read-only (bind mounts otherwise inherit the
// source's writability, and MS_RDONLY is ignored on the initial bind).
type BindMount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Settings configures one Enter call.
type Settings struct {
	Layers     []ContainerLayer
	BindMounts []BindMount
	Env        map[string]string
	Chdir      string
	Args       []string

	// AllowNetworkAccess skips entering a network namespace, leaving the
	// container on the host's network.
	AllowNetworkAccess bool
	// KeepHostMount leaves the old root bind-mounted at /host instead of
	// lazily unmounting it once the container command starts.
	KeepHostMount bool
}
