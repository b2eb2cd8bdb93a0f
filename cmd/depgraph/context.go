// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"cros.local/depgraph/internal/portage/ebuild"
)

// cmdContext is the host/target pair every subcommand resolves packages
// against: host for BDEPEND/InstallHost analysis, target for the board's
// own RunTarget/BuildTarget packages. When no --board is given the two
// coincide (host-only resolution, crossCompile always false).
type cmdContext struct {
	host         *targetData
	target       *targetData
	crossCompile bool
	cleanup      func()
}

func newCmdContext(c *cli.Context) (*cmdContext, error) {
	toolsDir, cleanup, err := setupToolsDir()
	if err != nil {
		return nil, fmt.Errorf("setting up tools dir: %w", err)
	}

	ev := ebuild.NewEvaluator("/bin/bash", toolsDir)
	chroot := insideChroot()

	hostRoot := c.String("host-root")
	host, err := loadTarget(hostRoot, "", "", ev, chroot)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("loading host root %s: %w", hostRoot, err)
	}

	board := c.String("board")
	if board == "" {
		return &cmdContext{host: host, target: host, crossCompile: false, cleanup: cleanup}, nil
	}

	sysroot := c.String("sysroot")
	if sysroot == "" {
		sysroot = "/build/" + board
	}
	target, err := loadTarget(sysroot, board, "", ev, chroot)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("loading board root %s: %w", sysroot, err)
	}

	return &cmdContext{host: host, target: target, crossCompile: true, cleanup: cleanup}, nil
}

func (ctx *cmdContext) Close() {
	if ctx.cleanup != nil {
		ctx.cleanup()
	}
}
