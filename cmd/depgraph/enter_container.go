// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"cros.local/depgraph/internal/container"
)

var (
	flagLayer = &cli.StringSliceFlag{
		Name:  "layer",
		Usage: "overlay layer directory, lowest-precedence first; suffix :durable if it is a durable-tree root",
	}
	flagBind = &cli.StringSliceFlag{
		Name:  "bind",
		Usage: "bind mount SRC:DST, optionally suffixed :ro",
	}
	flagEnv = &cli.StringSliceFlag{
		Name:  "env",
		Usage: "container environment variable NAME=value",
	}
	flagChdir = &cli.StringFlag{
		Name:  "chdir",
		Usage: "working directory inside the container",
	}
	flagAllowNetwork = &cli.BoolFlag{
		Name:  "allow-network",
		Usage: "leave the container on the host's network namespace",
	}
)

// cmdEnterContainer builds a container.Settings from the CLI flags and runs
// the trailing "-- args..." command inside a fresh namespace sandbox built
// on the given layers, the substrate build-driving callers
// mount a resolved package's durable-tree layers onto.
func cmdEnterContainer(c *cli.Context) error {
	args := c.Args().Slice()
	if len(args) == 0 {
		return fmt.Errorf("enter-container: no command given (pass it after --)")
	}

	var layers []container.ContainerLayer
	for _, raw := range c.StringSlice("layer") {
		path, suffix, _ := strings.Cut(raw, ":")
		layers = append(layers, container.ContainerLayer{Path: path, Durable: suffix == "durable"})
	}

	var binds []container.BindMount
	for _, raw := range c.StringSlice("bind") {
		parts := strings.Split(raw, ":")
		if len(parts) < 2 {
			return fmt.Errorf("enter-container: invalid --bind %q (want SRC:DST[:ro])", raw)
		}
		bind := container.BindMount{Source: parts[0], Target: parts[1]}
		if len(parts) > 2 && parts[2] == "ro" {
			bind.ReadOnly = true
		}
		binds = append(binds, bind)
	}

	env := map[string]string{}
	for _, raw := range c.StringSlice("env") {
		name, value, ok := strings.Cut(raw, "=")
		if !ok {
			return fmt.Errorf("enter-container: invalid --env %q (want NAME=value)", raw)
		}
		env[name] = value
	}

	settings := container.Settings{
		Layers:             layers,
		BindMounts:         binds,
		Env:                env,
		Chdir:              c.String("chdir"),
		Args:               args,
		AllowNetworkAccess: c.Bool("allow-network"),
	}

	handle, err := container.Enter(context.Background(), settings)
	if err != nil {
		return fmt.Errorf("enter-container: %w", err)
	}
	return handle.Wait()
}
