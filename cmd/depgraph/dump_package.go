// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"cros.local/depgraph/internal/dependency"
)

// dumpedPackage is the JSON shape "dump-package" prints: the resolved
// package's identity, its evaluated variables, and its computed USE map.
type dumpedPackage struct {
	PackageName string            `json:"packageName"`
	Version     string            `json:"version"`
	EbuildPath  string            `json:"ebuildPath"`
	Slot        string            `json:"slot"`
	Stable      bool              `json:"stable"`
	Use         map[string]bool   `json:"use"`
	Vars        map[string]string `json:"vars"`
}

// cmdDumpPackage is the "dump-package" subcommand: resolve one atom
// against the target ROOT and print its fully evaluated details as JSON,
// for interactive inspection of what generate-repo would have seen.
func cmdDumpPackage(c *cli.Context) error {
	ctx, err := newCmdContext(c)
	if err != nil {
		return err
	}
	defer ctx.Close()

	atom, err := dependency.Parse(c.String("package"))
	if err != nil {
		return fmt.Errorf("dump-package: parsing %q: %w", c.String("package"), err)
	}

	details, err := ctx.target.resolver.FindBestPackage(atom)
	if err != nil {
		return fmt.Errorf("dump-package: %w", err)
	}
	if details == nil {
		return fmt.Errorf("dump-package: no package satisfies %q", c.String("package"))
	}

	out := dumpedPackage{
		PackageName: details.PackageName,
		Version:     details.Version.String(),
		EbuildPath:  details.EbuildPath,
		Slot:        details.Slot.Main + "/" + details.Slot.Sub,
		Stable:      details.Stable,
		Use:         details.Use,
		Vars:        details.Vars,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
