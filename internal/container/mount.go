// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package container

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

var sentinelMountpoints = []string{"dev", "proc", "sys", "tmp", "host", "mnt/host/source"}

// continueNamespace runs in the re-exec'd child, which clone(2) already
// placed in its own mount/PID/IPC/(optionally)network/(optionally)user
// namespace: it brings up loopback (unless network access was requested),
// spawns the sentinel, builds the merged root, pivots into it, and execs
// the user command in place of itself.
func continueNamespace(settings Settings) error {
	if !settings.AllowNetworkAccess {
		if err := enableLoopback(); err != nil {
			return err
		}
	}

	sentinel, err := spawnSentinel()
	if err != nil {
		return err
	}
	defer func() { _ = sentinel }() // intentionally leaked; see spawnSentinel

	layerDirs, trees, err := resolveLayers(settings.Layers)
	if err != nil {
		return err
	}
	defer func() {
		for _, t := range trees {
			t.Close()
		}
	}()

	stageDir, err := os.MkdirTemp("/tmp", "depgraph-container.*")
	if err != nil {
		return err
	}
	if err := unix.Mount("tmpfs", stageDir, "tmpfs", 0, ""); err != nil {
		return fmt.Errorf("mounting tmpfs stage dir: %w", err)
	}

	rootDir := filepath.Join(stageDir, "root")
	upperDir := filepath.Join(stageDir, "upper")
	workDir := filepath.Join(stageDir, "work")
	for _, dir := range []string{rootDir, upperDir, workDir} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return err
		}
	}
	for _, name := range sentinelMountpoints {
		if err := os.MkdirAll(filepath.Join(rootDir, name), 0o755); err != nil {
			return err
		}
	}
	for _, bind := range settings.BindMounts {
		if err := os.MkdirAll(filepath.Join(rootDir, bind.Target), 0o755); err != nil {
			return err
		}
	}

	if len(layerDirs) > 0 {
		// Overlayfs lowerdir stacks list its highest-precedence entry
		// first; our layer list is lowest-precedence first, so reverse it.
		reversed := make([]string, len(layerDirs))
		for i, dir := range layerDirs {
			reversed[len(layerDirs)-1-i] = dir
		}
		options := fmt.Sprintf("upperdir=%s,workdir=%s,lowerdir=%s", upperDir, workDir, strings.Join(reversed, ":"))
		if err := unix.Mount("none", rootDir, "overlay", 0, options); err != nil {
			return fmt.Errorf("mounting overlayfs: %w", err)
		}
	}

	if err := unix.Mount("/dev", filepath.Join(rootDir, "dev"), "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind-mounting /dev: %w", err)
	}
	if err := unix.Mount("proc", filepath.Join(rootDir, "proc"), "proc", 0, ""); err != nil {
		return fmt.Errorf("mounting /proc: %w", err)
	}
	if err := unix.Mount("/sys", filepath.Join(rootDir, "sys"), "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind-mounting /sys: %w", err)
	}

	for _, bind := range settings.BindMounts {
		target := filepath.Join(rootDir, bind.Target)
		if err := unix.Mount(bind.Source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return fmt.Errorf("bind-mounting %s to %s: %w", bind.Source, bind.Target, err)
		}
		if bind.ReadOnly {
			// MS_RDONLY is ignored on the initial bind; it only takes
			// effect on a remount.
			if err := unix.Mount("", target, "", unix.MS_REMOUNT|unix.MS_BIND|unix.MS_RDONLY, ""); err != nil {
				return fmt.Errorf("remounting %s read-only: %w", bind.Target, err)
			}
		}
	}

	if err := unix.PivotRoot(rootDir, filepath.Join(rootDir, "host")); err != nil {
		return fmt.Errorf("pivot_root: %w", err)
	}

	if err := os.Chdir("/"); err != nil {
		return err
	}

	if !settings.KeepHostMount {
		if err := unix.Unmount("/host", unix.MNT_DETACH); err != nil {
			return fmt.Errorf("unmounting /host: %w", err)
		}
	}

	if settings.Chdir != "" {
		if err := os.Chdir(settings.Chdir); err != nil {
			return fmt.Errorf("chdir %s: %w", settings.Chdir, err)
		}
	}

	exe, err := exec.LookPath(settings.Args[0])
	if err != nil {
		return err
	}

	env := os.Environ()
	for k, v := range settings.Env {
		env = append(env, k+"="+v)
	}
	return unix.Exec(exe, settings.Args, env)
}

// spawnSentinel starts a trivial child with a piped stdin that remains in
// the container's non-PID namespaces after the real command exits. Closing
// the container's last process closes the sentinel's stdin, which ends
// "cat" and releases the namespaces; this avoids the calling process being
// blocked on what can be an expensive namespace teardown (particularly
// network) by keeping that cost off its own exit path.
func spawnSentinel() (*exec.Cmd, error) {
	cmd := exec.Command("/bin/cat")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	// Deliberately never closed: the kernel closes it for us when this
	// process (and anything it forked before pivoting) exits.
	_ = stdin
	return cmd, nil
}
