// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package packages turns an evaluated ebuild's typed variables into a
// PackageDetails: SLOT/IUSE/REQUIRED_USE parsing, keyword acceptance (with
// the live-9999 relaxation), USE computation, and readiness.
package packages

import (
	"fmt"
	"strconv"
	"strings"

	"cros.local/depgraph/internal/dependency"
	"cros.local/depgraph/internal/portage/config"
	"cros.local/depgraph/internal/portage/ebuild"
)

// ParseSlot parses a SLOT variable value ("main" or "main/sub"); a missing
// sub-slot defaults to the main slot's value, matching Portage's convention
// that an unspecified sub-slot is the main slot.
func ParseSlot(s string) dependency.SlotDep {
	main, sub, ok := strings.Cut(s, "/")
	if !ok {
		sub = main
	}
	return dependency.SlotDep{Main: main, Sub: sub}
}

// Readiness is whether a package is usable as resolved.
type Readiness int

const (
	Ready Readiness = iota
	Masked
)

// PackageDetails is a fully loaded, non-error package.
type PackageDetails struct {
	ebuild.BasicData
	Vars map[string]string

	Slot      dependency.SlotDep
	Stable    bool
	Use       map[string]bool
	Inherited map[string]bool

	Readiness  Readiness
	MaskReason string
}

// Ref returns the full package reference (name, version, slot, USE) used
// for atom matching once USE has been computed.
func (d *PackageDetails) Ref() *dependency.PackageRef {
	return &dependency.PackageRef{
		PackageName: d.PackageName,
		Version:     d.Version,
		Slot:        d.Slot,
		Use:         d.Use,
	}
}

// EAPI reports the ebuild's declared EAPI, defaulting to "0" when absent
// (pre-EAPI ebuilds never declared it explicitly).
func (d *PackageDetails) EAPI() string {
	if v := d.Vars["EAPI"]; v != "" {
		return v
	}
	return "0"
}

// SupportsBDEPEND reports whether this package's EAPI recognizes BDEPEND as
// a dependency class distinct from DEPEND (EAPI >= 7).
func (d *PackageDetails) SupportsBDEPEND() bool {
	return eapiAtLeast(d.EAPI(), 7)
}

// SupportsIDEPEND reports whether this package's EAPI recognizes IDEPEND
// (EAPI >= 8).
func (d *PackageDetails) SupportsIDEPEND() bool {
	return eapiAtLeast(d.EAPI(), 8)
}

// HDEPEND returns the historical BDEPEND-synonym variable some pre-EAPI-7
// ebuilds used, or "" if the ebuild uses BDEPEND/DEPEND normally.
func (d *PackageDetails) HDEPEND() string {
	if d.SupportsBDEPEND() {
		return ""
	}
	return d.Vars["HDEPEND"]
}

func eapiAtLeast(eapi string, min int) bool {
	n, err := strconv.Atoi(eapi)
	if err != nil {
		return false
	}
	return n >= min
}

// MaybePackageDetails is the Ok(PackageDetails) | Err(EvalError) union
// returned by Load.
type MaybePackageDetails struct {
	OK  *PackageDetails
	Err *ebuild.EvalError
}

// LiveRelaxation controls the "9999 ebuild accepted outside the production
// chroot" exception.
type LiveRelaxation struct {
	// Enabled should be true only when running outside the production
	// chroot the package set was built for.
	Enabled bool
}

// Load evaluates ebuildPath and turns the result into a MaybePackageDetails,
// applying the configuration bundle's masking, USE, and keyword-acceptance
// decisions. A non-nil error is a fatal structural failure; a
// per-ebuild evaluation failure is returned as MaybePackageDetails.Err.
func Load(ev *ebuild.Evaluator, dirs ebuild.EclassDirsProvider, ebuildPath string, bundle *config.Bundle, arch string, relax LiveRelaxation) (MaybePackageDetails, error) {
	maybeMeta, err := ev.Evaluate(ebuildPath, dirs)
	if err != nil {
		return MaybePackageDetails{}, err
	}
	if maybeMeta.Err != nil {
		return MaybePackageDetails{Err: maybeMeta.Err}, nil
	}
	meta := maybeMeta.OK

	slot := ParseSlot(meta.Vars["SLOT"])
	thinRef := &dependency.PackageRef{
		PackageName: meta.PackageName,
		Version:     meta.Version,
		Slot:        slot,
	}

	acceptance := bundle.IsAccepted(thinRef, meta.Vars["KEYWORDS"], arch)
	acceptance = applyLiveRelaxation(acceptance, meta, relax)

	iuse := config.ParseIUSE(meta.Vars["IUSE"])
	use := bundle.ComputeUse(thinRef, acceptance.Stable, iuse)

	requiredUse, err := dependency.ParseRequiredUse(meta.Vars["REQUIRED_USE"])
	if err != nil {
		return MaybePackageDetails{Err: &ebuild.EvalError{
			BasicData: meta.BasicData,
			Message:   fmt.Sprintf("parsing REQUIRED_USE: %v", err),
		}}, nil
	}
	requiredResult := dependency.Eval(requiredUse, use, dependency.EvalFlag)

	inherited := map[string]bool{}
	for _, e := range strings.Fields(meta.Vars["INHERITED"]) {
		inherited[e] = true
	}

	fullRef := &dependency.PackageRef{PackageName: meta.PackageName, Version: meta.Version, Slot: slot, Use: use}

	readiness, reason := Ready, ""
	switch {
	case !acceptance.Accepted:
		readiness, reason = Masked, acceptance.Reason
	case bundle.IsMasked(fullRef):
		readiness, reason = Masked, "masked by configuration"
	case requiredResult == dependency.TriFalse:
		readiness, reason = Masked, "REQUIRED_USE not satisfied: " + meta.Vars["REQUIRED_USE"]
	}

	return MaybePackageDetails{OK: &PackageDetails{
		BasicData:  meta.BasicData,
		Vars:       meta.Vars,
		Slot:       slot,
		Stable:     acceptance.Stable,
		Use:        use,
		Inherited:  inherited,
		Readiness:  readiness,
		MaskReason: reason,
	}}, nil
}

func applyLiveRelaxation(acceptance config.Acceptance, meta *ebuild.Metadata, relax LiveRelaxation) config.Acceptance {
	if acceptance.Accepted || !relax.Enabled {
		return acceptance
	}
	if meta.Version.WithoutRevision().String() != "9999" {
		return acceptance
	}
	if !strings.Contains(" "+meta.Vars["INHERITED"]+" ", " cros-workon ") {
		return acceptance
	}
	if meta.Vars["CROS_WORKON_MANUAL_UPREV"] == "1" {
		return acceptance
	}
	return config.Acceptance{Accepted: true, Stable: false}
}
