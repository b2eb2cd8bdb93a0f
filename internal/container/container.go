// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package container

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	seccomp "github.com/elastic/go-seccomp-bpf"

	"cros.local/depgraph/internal/durabletree"
)

// continueEnvVar carries the path to a serialized Settings to the re-exec'd
// child; its presence is how the child tells Enter (via ContinueIfRequested)
// that it is the continuation, not a fresh caller.
const continueEnvVar = "CROS_DEPGRAPH_CONTAINER_SETTINGS"

// Handle is a container entered by Enter. Wait blocks for the contained
// command to exit.
type Handle struct {
	cmd *exec.Cmd
}

// Wait blocks until the container's command exits and returns its error,
// matching (*exec.Cmd).Wait's conventions (an *exec.ExitError for a
// non-zero exit status).
func (h *Handle) Wait() error {
	return h.cmd.Wait()
}

// Enter starts the calling binary's own executable in a fresh mount/PID/
// IPC/(optionally)network/(optionally)user namespace sandbox built from
// settings, and runs settings.Args inside it. The calling binary's
// main function must call ContinueIfRequested before doing anything else;
// Enter works by re-executing os.Args[0] with an internal marker that
// ContinueIfRequested recognizes, since Go cannot safely unshare namespaces
// for a single already-running, already-multithreaded process.
func Enter(ctx context.Context, settings Settings) (*Handle, error) {
	if os.Getenv(continueEnvVar) != "" {
		return nil, fmt.Errorf("container: Enter called from within a container continuation")
	}

	settingsPath, err := writeSettingsFile(settings)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), continueEnvVar+"="+settingsPath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	var cloneFlags uintptr = syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWIPC
	if !settings.AllowNetworkAccess {
		cloneFlags |= syscall.CLONE_NEWNET
	}

	attr := &syscall.SysProcAttr{Cloneflags: cloneFlags}
	if os.Getuid() != 0 {
		cloneFlags |= syscall.CLONE_NEWUSER
		attr.Cloneflags = cloneFlags
		attr.UidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getuid(), Size: 1}}
		attr.GidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getgid(), Size: 1}}
	}
	cmd.SysProcAttr = attr

	if err := cmd.Start(); err != nil {
		os.Remove(settingsPath)
		return nil, fmt.Errorf("container: starting sandboxed process: %w", err)
	}
	return &Handle{cmd: cmd}, nil
}

// ContinueIfRequested must be the first call in main() of any binary that
// calls Enter. If the current process is the namespace continuation Enter
// started, it finishes the container setup, execs settings.Args in place
// of the current process, and never returns; otherwise it returns
// immediately so the caller's normal main proceeds.
func ContinueIfRequested() {
	settingsPath := os.Getenv(continueEnvVar)
	if settingsPath == "" {
		return
	}

	settings, err := readSettingsFile(settingsPath)
	if err != nil {
		fatal(fmt.Errorf("container: loading settings: %w", err))
	}
	os.Remove(settingsPath)

	if err := seccomp.SetNoNewPrivs(); err != nil {
		fatal(fmt.Errorf("container: prctl(PR_SET_NO_NEW_PRIVS): %w", err))
	}

	if err := continueNamespace(settings); err != nil {
		fatal(err)
	}
	// continueNamespace execs the user command on success and never
	// returns; reaching here is a bug.
	fatal(fmt.Errorf("container: continueNamespace returned without exec"))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "container:", err)
	os.Exit(1)
}

func writeSettingsFile(settings Settings) (string, error) {
	data, err := json.Marshal(&settings)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "container-settings-*.json")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func readSettingsFile(path string) (Settings, error) {
	var settings Settings
	data, err := os.ReadFile(path)
	if err != nil {
		return settings, err
	}
	err = json.Unmarshal(data, &settings)
	return settings, err
}

// resolveLayers expands any durable-tree layers into their overlayfs
// directories, returning the flattened, in-order list of plain directories
// to mount, lowest-precedence first, plus the durabletree handles to close
// once the container has pivoted into its own mount namespace (their
// tmpfs-mounted extra directories are only reachable from inside this mount
// namespace until pivot_root, after which they are no longer needed).
func resolveLayers(layers []ContainerLayer) (dirs []string, trees []*durabletree.DurableTree, err error) {
	for _, layer := range layers {
		if !layer.Durable {
			dirs = append(dirs, layer.Path)
			continue
		}
		tree, err := durabletree.Expand(layer.Path)
		if err != nil {
			for _, t := range trees {
				t.Close()
			}
			return nil, nil, fmt.Errorf("container: expanding durable tree %s: %w", layer.Path, err)
		}
		trees = append(trees, tree)
		dirs = append(dirs, tree.Layers()...)
	}
	return dirs, trees, nil
}
