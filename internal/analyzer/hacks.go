// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package analyzer

import "cros.local/depgraph/internal/portage/packages"

// DependAsBDependAllowList is the hand-curated set of packages that a
// build-host resolution is allowed to satisfy out of DEPEND when an
// ebuild's EAPI doesn't recognize BDEPEND as its own class. We don't want
// to open the flood gates and pull in every DEPEND as a BDEPEND candidate
// because only a handful of these are actually host tools; ideally every
// ebuild upgrades to an EAPI that declares BDEPEND and this list goes away.
var DependAsBDependAllowList = map[string]bool{
	"app-misc/jq":                  true,
	"app-portage/elt-patches":      true,
	"dev-build/meson":              true,
	"dev-lang/perl":                true,
	"dev-perl/XML-Parser":          true,
	"dev-python/m2crypto":          true,
	"dev-python/setuptools":        true,
	"dev-util/cmake":               true,
	"dev-util/meson-format-array":  true,
	"dev-util/ninja":               true,
	"dev-vcs/git":                  true, // TODO: make cros-workon stop calling git.
	"sys-apps/texinfo":             true,
	"sys-devel/autoconf":           true,
	"sys-devel/autoconf-archive":   true,
	"sys-devel/automake":           true,
	"sys-devel/bison":              true,
	"sys-devel/flex":               true,
	"sys-devel/gnuconfig":          true,
	"dev-build/libtool":            true,
	"sys-devel/m4":                 true,
	"sys-devel/make":               true,
	"virtual/yacc":                 true,
}

// extraDepRule is one entry of the closed "extra dependencies" hack table:
// a build failure observed for one specific package-version under one
// dependency kind, worked around by injecting an extra atom string. The
// table is keyed on exact (name-version, kind) pairs, not atoms, since the
// whole point is to patch one broken ebuild without affecting its
// neighbors.
type extraDepRule struct {
	cpv        string // "category/name-version", revision-less
	kind       Kind
	crossOnly  bool
	extra      string
}

// extraDepRules is reproduced verbatim from the upstream hack table: every
// entry here exists because some specific ebuild fails to build without an
// undeclared host tool, and the fix belongs in the ebuild, not here.
var extraDepRules = []extraDepRule{
	// poppler seems to support building without Boost, but the build fails
	// without it.
	{"app-text/poppler-24.06.1", BuildTarget, false, "dev-libs/boost"},
	// m2crypto fails to build for missing Python.h.
	{"dev-python/m2crypto-0.38.0", BuildTarget, false, "dev-lang/python:3.8"},
	// xau.pc contains "Requires: xproto", so it should be listed as RDEPEND.
	{"x11-libs/libXau-1.0.11", RunTarget, false, "x11-base/xorg-proto"},

	// The nls use flag claims that gettext is optional, but in reality the
	// ./configure script calls aclocal and expects the gettext macros.
	{"media-libs/libexif-0.6.22_p20201105", BuildHost, false, "sys-devel/gettext"},

	{"sys-fs/fuse-2.9.8", BuildHost, false, "sys-devel/automake sys-devel/gettext"},

	// checking host system type... Invalid configuration `aarch64-cros-linux-gnu'
	{"dev-libs/libdaemon-0.14", BuildHost, false, "sys-devel/gnuconfig"},
	{"net-misc/iperf-3.7", BuildHost, false, "sys-devel/gnuconfig"},

	{"app-arch/cabextract-1.9.1", BuildHost, false, "sys-devel/gettext"},

	// Cross-compiling dev-libs/nss requires dev-libs/nss on the build host;
	// it can't be a BDEPEND of the ebuild itself, that would be circular
	// when building for the host. See https://bugs.gentoo.org/759127.
	{"dev-libs/nss-3.99", BuildHost, true, "dev-libs/nss"},
	// dev-libs/nss runs shlibsign at install time; cross-compiling needs
	// the build host's copy.
	{"dev-libs/nss-3.99", InstallHost, true, "dev-libs/nss"},

	{"net-libs/rpcsvc-proto-1.3.1", BuildHost, true, "net-libs/rpcsvc-proto"},
	{"sys-libs/libnih-1.0.3", BuildHost, true, "sys-libs/libnih"},
	{"sys-devel/bc-1.07.1", BuildHost, true, "sys-devel/bc"},
	{"sys-apps/groff-1.22.4", BuildHost, true, "sys-apps/groff"},

	{"sys-kernel/chromeos-kernel-5_15-5.15.164", BuildHost, false, "sys-devel/bc dev-lang/perl app-arch/lz4 sys-apps/dtc dev-embedded/u-boot-tools"},
	{"app-crypt/mit-krb5-1.21.2", BuildHost, false, "sys-fs/e2fsprogs"},
	{"media-libs/libmtp-1.1.20", BuildHost, false, "sys-devel/gettext"},
	{"dev-libs/libgudev-233", BuildHost, false, "dev-util/glib-utils"},
	{"app-accessibility/brltty-6.5", BuildHost, false, "dev-lang/tcl"},
	{"x11-misc/xkeyboard-config-2.27", BuildHost, false, "dev-lang/perl"},
	{"sys-process/lsof-4.94.0", BuildHost, false, "dev-lang/perl sys-apps/which"},
	{"sys-fs/ecryptfs-utils-108", BuildHost, false, "dev-util/intltool dev-libs/glib"},
	{"net-nds/openldap-2.5.14", BuildHost, false, "sys-apps/groff"},
	{"chromeos-base/autotest-0.0.2", InstallHost, false, "dev-python/six"},

	// EAPI 6 ebuild that only needs git for the VCS_ID, not a real BDEPEND;
	// cros-workon should stop shelling out to git when there's no .git dir.
	{"net-libs/libmbim-1.31.5", BuildHost, false, "dev-vcs/git"},
	{"media-libs/minigbm-0.0.1", BuildHost, false, "dev-vcs/git"},
	{"media-libs/cros-camera-hal-usb-0.0.1", BuildHost, false, "dev-vcs/git"},
	{"sys-apps/proot-5.4.0", BuildHost, false, "dev-vcs/git"},
	{"app-misc/jq-1.7_pre20201109", BuildHost, false, "dev-vcs/git"},

	{"sys-libs/binutils-libs-2.41", BuildHost, false, "sys-apps/texinfo"},
	{"sys-libs/libsepol-3.0", BuildHost, false, "sys-devel/flex"},
	{"sys-fs/lvm2-2.03.21", BuildHost, false, "sys-apps/which sys-devel/binutils"},
	{"x11-misc/compose-tables-1.8.9", BuildTarget, false, "x11-misc/util-macros"},
	{"dev-python/cryptography-3.3.2", BuildHost, false, "dev-python/cffi"},
	{"dev-libs/opensc-0.23.0", BuildHost, false, "dev-libs/libxslt app-text/docbook-xsl-stylesheets"},
	{"sys-apps/busybox-1.36.1", BuildHost, false, "dev-lang/perl"},
	{"dev-util/hdctools-0.0.1", BuildHost, false, "dev-python/pytest"},
	{"media-gfx/perceptualdiff-1.1.1", BuildHost, false, "dev-util/cmake"},
	{"media-libs/opencv-4.7.0", BuildHost, false, "dev-libs/protobuf"},
	{"dev-libs/xmlrpc-c-1.51.06", BuildHost, false, "net-misc/curl"},
	{"sys-power/iasl-20180810", BuildHost, false, "sys-devel/bison sys-devel/flex"},
	{"media-gfx/zbar-0.23.1", BuildHost, false, "sys-devel/gettext virtual/libiconv"},
	{"chromeos-base/autotest-all-0.0.1", InstallHost, false, "dev-python/chardet"},
}

// extraDepByName applies regardless of version: keyed on bare package name.
type extraDepByName struct {
	name  string
	kind  Kind
	extra string
}

var extraDepByNameRules = []extraDepByName{
	// chrome uses a bundled ninja linked against libstdc++; we also need
	// lsof for chromeos-chrome's goma integration.
	{"chromeos-base/chrome-icu", BuildHost, " sys-devel/gcc"},
	{"chromeos-base/chromeos-chrome", BuildHost, " sys-devel/gcc sys-process/lsof"},
	// b/296430298: autotest's packager.py imports six transitively.
	{"chromeos-base/chromeos-chrome", InstallHost, " dev-python/six"},
}

// extraDependencies reproduces the closed hack table verbatim: any
// implementation that interoperates with the existing ebuild tree must
// apply the same per-package workarounds.
func extraDependencies(details *packages.PackageDetails, kind Kind, crossCompile bool) string {
	cpv := details.PackageName + "-" + details.Version.WithoutRevision().String()

	var extra string
	for _, r := range extraDepRules {
		if r.cpv == cpv && r.kind == kind && (!r.crossOnly || crossCompile) {
			extra = r.extra
			break
		}
	}

	for _, r := range extraDepByNameRules {
		if r.name == details.PackageName && r.kind == kind {
			extra += r.extra
		}
	}

	// The eclass sets IDEPEND for EAPI 8+ only; packages still on EAPI 7
	// need it injected manually.
	if details.Inherited["fcaps"] && kind == InstallHost {
		extra += " sys-libs/libcap"
	}

	return extra
}

// isRustSourcePackage reports whether details is a cros-rust package whose
// RDEPEND should be backfilled from DEPEND because the ebuild only lists
// its dependencies once. cros-workon packages and anything with a real
// src_compile are excluded: they build from source and declare their own
// runtime deps correctly.
func isRustSourcePackage(details *packages.PackageDetails) bool {
	if !details.Inherited["cros-rust"] || details.Inherited["cros-workon"] {
		return false
	}
	return details.Vars["__alchemist_out_has_src_compile"] != "1"
}
