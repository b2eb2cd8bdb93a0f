// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package naming validates Portage category and package name syntax.
package naming

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"cros.local/depgraph/internal/version"
)

var categoryPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9+_.-]*$`)

// CheckCategory validates a bare category name, e.g. "net-misc".
func CheckCategory(s string) error {
	if !categoryPattern.MatchString(s) {
		return fmt.Errorf("naming: invalid category name %q", s)
	}
	return nil
}

var packageNamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9+_-]*$`)

// CheckPackage validates a bare short package name, e.g. "curl". Rejects
// names ending in what looks like a version suffix, since PMS requires
// short names to be unambiguous when glued to a version.
func CheckPackage(s string) error {
	if _, _, err := version.ExtractSuffix(s); err == nil {
		return errors.New("naming: invalid package name: ends with a version-like suffix")
	}
	if !packageNamePattern.MatchString(s) {
		return fmt.Errorf("naming: invalid package name %q", s)
	}
	return nil
}

// CheckCategoryAndPackage validates a "category/name" pair.
func CheckCategoryAndPackage(s string) error {
	parts := strings.SplitN(s, "/", -1)
	if len(parts) != 2 {
		return fmt.Errorf("naming: invalid category/package name %q", s)
	}
	if err := CheckCategory(parts[0]); err != nil {
		return err
	}
	return CheckPackage(parts[1])
}
