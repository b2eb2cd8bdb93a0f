// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"fmt"
	"log"

	"github.com/urfave/cli/v2"

	"cros.local/depgraph/internal/analyzer"
	"cros.local/depgraph/internal/buildgraph"
	"cros.local/depgraph/internal/portage/packages"
)

// cmdGenerateRepo is the "generate-repo" subcommand: resolve every package
// reachable from the target ROOT, analyze each one's direct dependencies
// against the host/target resolver pair, and persist the two JSON outputs
// of the build graph.
func cmdGenerateRepo(c *cli.Context) error {
	ctx, err := newCmdContext(c)
	if err != nil {
		return err
	}
	defer ctx.Close()

	maybes, err := ctx.target.resolver.FindAllPackages()
	if err != nil {
		return fmt.Errorf("generate-repo: %w", err)
	}

	records := buildgraph.PackageRecords{}
	var allDists []buildgraph.DistFileEntry

	for _, maybe := range maybes {
		if maybe.Err != nil {
			log.Printf("generate-repo: skipping %s: %s", maybe.Err.PackageName, maybe.Err.Message)
			continue
		}
		details := maybe.OK
		if details.Readiness != packages.Ready {
			continue
		}

		deps, _, warnings, err := analyzer.AnalyzeDirectDependencies(details, ctx.crossCompile, ctx.host.resolver, ctx.target.resolver)
		if err != nil {
			return fmt.Errorf("generate-repo: analyzing %s: %w", details.PackageName, err)
		}
		for _, w := range warnings {
			log.Printf("generate-repo: %s: %s", details.PackageName, w)
		}

		distFiles := buildgraph.ParseSrcURI(details.Vars["SRC_URI"])
		allDists = append(allDists, distFiles...)

		records[details.PackageName] = buildgraph.NewPackageRecord(details, deps, distFiles, ctx.target.board)
	}

	if err := buildgraph.Save(c.String("output"), records); err != nil {
		return fmt.Errorf("generate-repo: writing %s: %w", c.String("output"), err)
	}

	if out := c.String("deps-output"); out != "" {
		repos := buildgraph.BuildDistRepositories(allDists)
		if err := buildgraph.SaveDeps(out, repos); err != nil {
			return fmt.Errorf("generate-repo: writing %s: %w", out, err)
		}
	}

	return nil
}
