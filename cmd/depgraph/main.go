// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command depgraph translates a Portage-style ebuild repository into a
// hermetic build graph: resolved packages, their dependency edges, and
// the distfiles they fetch from. It is a thin shim over internal/portage/*
// and internal/buildgraph: this binary itself contains no
// dependency-resolution logic, only flag parsing and I/O wiring, using a
// package-level *cli.App with one Action per subcommand.
package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"cros.local/depgraph/internal/cliutil"
	"cros.local/depgraph/internal/container"
)

var (
	flagBoard = &cli.StringFlag{
		Name:     "board",
		Usage:    "target board name whose sysroot ROOT to resolve packages against",
		Required: false,
	}
	flagSysroot = &cli.StringFlag{
		Name:  "sysroot",
		Usage: "board sysroot ROOT directory (default: /build/<board>)",
	}
	flagHostRoot = &cli.StringFlag{
		Name:  "host-root",
		Usage: "host ROOT directory used to resolve BDEPEND/build-time packages",
		Value: "/",
	}
	flagOutput = &cli.StringFlag{
		Name:     "output",
		Aliases:  []string{"o"},
		Usage:    "path to write the package-records JSON file",
		Required: true,
	}
	flagDepsOutput = &cli.StringFlag{
		Name:  "deps-output",
		Usage: "path to write the repositories (distfile sources) JSON file",
	}
	flagPackage = &cli.StringFlag{
		Name:     "package",
		Usage:    "package atom to resolve, e.g. sys-apps/attr or =sys-apps/attr-2.5.1",
		Required: true,
	}
)

var app = &cli.App{
	Name:  "depgraph",
	Usage: "translate a ChromiumOS Portage overlay into a hermetic build graph",
	Commands: []*cli.Command{
		{
			Name:  "generate-repo",
			Usage: "resolve every package reachable from a ROOT and emit its build-graph records",
			Flags: []cli.Flag{flagBoard, flagSysroot, flagHostRoot, flagOutput, flagDepsOutput},
			Action: func(c *cli.Context) error {
				return cmdGenerateRepo(c)
			},
		},
		{
			Name:  "dump-package",
			Usage: "resolve a single atom and print its evaluated package details as JSON",
			Flags: []cli.Flag{flagBoard, flagSysroot, flagHostRoot, flagPackage},
			Action: func(c *cli.Context) error {
				return cmdDumpPackage(c)
			},
		},
		{
			Name:  "digest-repo",
			Usage: "print a stable content digest of every resolved package, for no-op detection",
			Flags: []cli.Flag{flagBoard, flagSysroot, flagHostRoot},
			Action: func(c *cli.Context) error {
				return cmdDigestRepo(c)
			},
		},
		{
			Name:      "enter-container",
			Usage:     "enter a namespace sandbox built from overlay layers and bind mounts, then exec a command",
			ArgsUsage: "-- command [args...]",
			Flags:     []cli.Flag{flagLayer, flagBind, flagEnv, flagChdir, flagAllowNetwork},
			Action: func(c *cli.Context) error {
				return cmdEnterContainer(c)
			},
		},
	},
}

func main() {
	// Enter re-execs this same binary to perform its namespace setup in a
	// freshly cloned process; ContinueIfRequested recognizes that re-exec
	// and must run before any other startup work.
	container.ContinueIfRequested()
	cliutil.Exit(app.Run(os.Args))
}
