// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"cros.local/depgraph/internal/portage/packages"
)

// cmdDigestRepo is the "digest-repo" subcommand: print a single stable
// hash summarizing every resolved package's name, version, and evaluated
// variables, so a caller can detect "nothing changed" without re-running
// generate-repo's full analysis.
func cmdDigestRepo(c *cli.Context) error {
	ctx, err := newCmdContext(c)
	if err != nil {
		return err
	}
	defer ctx.Close()

	maybes, err := ctx.target.resolver.FindAllPackages()
	if err != nil {
		return fmt.Errorf("digest-repo: %w", err)
	}

	type entry struct {
		name, digest string
	}
	var entries []entry
	for _, maybe := range maybes {
		if maybe.Err != nil {
			entries = append(entries, entry{name: maybe.Err.PackageName, digest: "ERROR:" + maybe.Err.Message})
			continue
		}
		d := maybe.OK
		if d.Readiness != packages.Ready {
			continue
		}
		entries = append(entries, entry{name: d.PackageName + "-" + d.Version.String(), digest: hashVars(d.Vars)})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	h := sha256.New()
	for _, e := range entries {
		fmt.Fprintf(h, "%s\t%s\n", e.name, e.digest)
	}

	fmt.Println(hex.EncodeToString(h.Sum(nil)))
	return nil
}

func hashVars(vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(vars[k])
		b.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
