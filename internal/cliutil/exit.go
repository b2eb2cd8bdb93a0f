// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package cliutil provides small conventions shared by cmd/* binaries:
// a distinguished error type that requests a specific process exit code.
package cliutil

import (
	"errors"
	"fmt"
	"log"
	"os"
)

// ExitCode is an error value that instructs the program to exit with a
// specific exit code instead of the default failure code.
type ExitCode int

func (e ExitCode) Error() string {
	return fmt.Sprintf("exit code %d", int(e))
}

// Exit terminates the process by calling os.Exit. If err wraps an ExitCode,
// it exits with that code; otherwise a nil err exits 0 and a non-nil err is
// logged and exits 1.
//
// The function never returns. Deferred calls in main are not run.
func Exit(err error) {
	var code ExitCode
	if errors.As(err, &code) {
		os.Exit(int(code))
	}
	if err != nil {
		log.Printf("FATAL: %v", err)
		os.Exit(1)
	}
	os.Exit(0)
}
