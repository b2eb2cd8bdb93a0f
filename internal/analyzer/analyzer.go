// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package analyzer turns an ebuild's DEPEND/RDEPEND/PDEPEND/BDEPEND/IDEPEND
// strings into resolved package lists: it parses each dependency
// expression into a conditional tree, prunes it against the package's USE
// map, resolves every surviving atom through a host or target resolver, and
// flattens AnyOf/AllOf structure down to a flat dependency list. A handful
// of per-package build failures are worked around by a closed hack table
// (hacks.go) that must be reproduced verbatim to interoperate with the
// existing ebuild tree.
package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"cros.local/depgraph/internal/dependency"
	"cros.local/depgraph/internal/portage/packages"
	"cros.local/depgraph/internal/portage/resolver"
)

// Kind distinguishes the five Portage dependency classes plus the synthetic
// test-time class that is derived from DEPEND rather than its own variable.
type Kind int

const (
	BuildTarget Kind = iota
	TestTarget
	RunTarget
	PostTarget
	BuildHost
	InstallHost
)

func (k Kind) String() string {
	switch k {
	case BuildTarget:
		return "build_target"
	case TestTarget:
		return "test_target"
	case RunTarget:
		return "run_target"
	case PostTarget:
		return "post_target"
	case BuildHost:
		return "build_host"
	case InstallHost:
		return "install_host"
	default:
		return "unknown"
	}
}

// DirectDependencies is a package's direct dependencies, flattened to
// concrete packages.
type DirectDependencies struct {
	BuildTarget  []*packages.PackageDetails
	TestTarget   []*packages.PackageDetails
	RunTarget    []*packages.PackageDetails
	PostTarget   []*packages.PackageDetails
	BuildHost    []*packages.PackageDetails
	InstallHost  []*packages.PackageDetails
}

// Get returns the list for kind, or nil for an unknown kind.
func (d *DirectDependencies) Get(kind Kind) []*packages.PackageDetails {
	switch kind {
	case BuildTarget:
		return d.BuildTarget
	case TestTarget:
		return d.TestTarget
	case RunTarget:
		return d.RunTarget
	case PostTarget:
		return d.PostTarget
	case BuildHost:
		return d.BuildHost
	case InstallHost:
		return d.InstallHost
	default:
		return nil
	}
}

// DependencyExpressions holds the rewritten *DEPEND strings (sub-slot
// rebuild operators expanded to the resolved best match) that get persisted
// into binary-package metadata.
type DependencyExpressions struct {
	BuildTarget string
	RunTarget   string
	PostTarget  string
	BuildHost   string
	InstallHost string
}

// varName returns the ebuild variable holding kind's raw dependency string,
// or "" when kind has no variable of its own (TestTarget reuses BuildTarget
// under a different USE overlay; InstallHost is empty pre-EAPI-8).
func varName(details *packages.PackageDetails, kind Kind) string {
	switch kind {
	case BuildTarget:
		return "DEPEND"
	case RunTarget:
		return "RDEPEND"
	case PostTarget:
		return "PDEPEND"
	case BuildHost:
		return "BDEPEND"
	case InstallHost:
		if details.SupportsIDEPEND() {
			return "IDEPEND"
		}
		return ""
	default:
		return ""
	}
}

// resolveEnv threads resolution context through the tree flattening below.
type resolveEnv struct {
	resolver  *resolver.Resolver
	use       map[string]bool
	allowList map[string]bool // nil: no filtering
}

// resolveAtom resolves one leaf atom, returning exactly one of a resolved
// package, an unresolved-atom string, or neither (a blocker, a
// configuration-provided virtual, or an allow-list miss all drop silently).
func (e *resolveEnv) resolveAtom(atom *dependency.Atom) (*packages.PackageDetails, string, error) {
	if atom.Block != dependency.BlockNone {
		return nil, "", nil
	}
	if len(e.resolver.FindProvidedPackages(atom)) > 0 {
		return nil, "", nil
	}
	best, err := e.resolver.FindBestPackage(atom)
	if err != nil {
		return nil, "", fmt.Errorf("resolving %s: %w", atom, err)
	}
	if best == nil {
		return nil, atom.String(), nil
	}
	if e.allowList != nil && !e.allowList[best.PackageName] {
		return nil, "", nil
	}
	return best, "", nil
}

// flattenNode prunes USE-conditional subtrees that
// don't apply, picks AnyOf's first non-empty alternative, and
// AllOf (and the rarer ExactlyOneOf/AtMostOneOf, which dependency trees for
// *DEPEND variables never actually produce) concatenate.
func flattenNode(n *dependency.Node[*dependency.Atom], env *resolveEnv) ([]*packages.PackageDetails, []string, error) {
	if flag, expect, child, ok := n.UseConditionalParts(); ok {
		if env.use[flag] != expect {
			return nil, nil, nil
		}
		return flattenNode(child, env)
	}
	if atom, ok := n.LeafValue(); ok {
		details, unresolved, err := env.resolveAtom(atom)
		if err != nil {
			return nil, nil, err
		}
		if unresolved != "" {
			return nil, []string{unresolved}, nil
		}
		if details == nil {
			return nil, nil, nil
		}
		return []*packages.PackageDetails{details}, nil, nil
	}

	if n.Kind() == dependency.KindAnyOf {
		var firstUnresolved []string
		for _, c := range n.Children() {
			res, unres, err := flattenNode(c, env)
			if err != nil {
				return nil, nil, err
			}
			if len(res) > 0 {
				return res, nil, nil
			}
			if firstUnresolved == nil {
				firstUnresolved = unres
			}
		}
		return nil, firstUnresolved, nil
	}

	var results []*packages.PackageDetails
	var unresolved []string
	for _, c := range n.Children() {
		res, unres, err := flattenNode(c, env)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, res...)
		unresolved = append(unresolved, unres...)
	}
	return results, unresolved, nil
}

func flattenDependencies(expr string, use map[string]bool, r *resolver.Resolver, allowList map[string]bool) ([]*packages.PackageDetails, []string, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil, nil
	}
	tree, err := dependency.ParseAtomTree(expr)
	if err != nil {
		return nil, nil, err
	}
	return flattenNode(tree, &resolveEnv{resolver: r, use: use, allowList: allowList})
}

// rewriteSubslotDeps resolves once more every atom
// carrying a ":slot=" or ":slot/sub=" operator and
// has its sub-slot replaced by the resolved package's actual sub-slot, so
// the persisted expression pins the artifact that was actually selected.
func rewriteSubslotDeps(expr string, r *resolver.Resolver) (string, error) {
	if strings.TrimSpace(expr) == "" {
		return "", nil
	}
	tree, err := dependency.ParseAtomTree(expr)
	if err != nil {
		return "", err
	}
	rewritten, err := dependency.TryMapTree(tree, func(n *dependency.Node[*dependency.Atom]) (*dependency.Node[*dependency.Atom], error) {
		atom, ok := n.LeafValue()
		if !ok || atom.Slot == nil || !atom.Slot.Rebuild {
			return n, nil
		}
		best, err := r.FindBestPackage(atom)
		if err != nil {
			return nil, fmt.Errorf("rewriting sub-slot of %s: %w", atom, err)
		}
		if best == nil {
			return n, nil
		}
		rewrittenAtom := *atom
		slot := *atom.Slot
		slot.Main = best.Slot.Main
		slot.Sub = best.Slot.Sub
		rewrittenAtom.Slot = &slot
		return dependency.Leaf(&rewrittenAtom), nil
	})
	if err != nil {
		return "", err
	}
	return rewritten.String(func(a *dependency.Atom) string { return a.String() }), nil
}

// extractor bundles the accumulators extractDependencies needs across the
// several kinds analyzed for one package.
type extractor struct {
	crossCompile bool
	issues       []string
}

func (x *extractor) extractDependencies(details *packages.PackageDetails, use map[string]bool, kind Kind, r *resolver.Resolver, allowList map[string]bool) ([]*packages.PackageDetails, string, error) {
	raw := ""
	if name := varName(details, kind); name != "" {
		raw = details.Vars[name]
	}
	extra := extraDependencies(details, kind, x.crossCompile)
	joined := strings.TrimSpace(raw + " " + extra)

	depList, unresolved, err := flattenDependencies(joined, use, r, allowList)
	if err != nil {
		return nil, "", err
	}
	for _, atom := range unresolved {
		x.issues = append(x.issues, fmt.Sprintf("%s: unresolved dependency atom %q", kind, atom))
	}

	expr, err := rewriteSubslotDeps(joined, r)
	if err != nil {
		return nil, "", err
	}
	return depList, expr, nil
}

func dedupSortedByNameVersion(deps []*packages.PackageDetails) []*packages.PackageDetails {
	sorted := make([]*packages.PackageDetails, len(deps))
	copy(sorted, deps)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].PackageName != sorted[j].PackageName {
			return sorted[i].PackageName < sorted[j].PackageName
		}
		return sorted[i].Version.Compare(sorted[j].Version) < 0
	})
	out := sorted[:0:0]
	for i, d := range sorted {
		if i > 0 && d.PackageName == sorted[i-1].PackageName && d.Version.Compare(sorted[i-1].Version) == 0 {
			continue
		}
		out = append(out, d)
	}
	return out
}

// AnalyzeDirectDependencies computes details' direct dependencies and their
// persisted expressions. hostResolver resolves BDEPEND/IDEPEND
// against the build host's package set; targetResolver resolves
// DEPEND/RDEPEND/PDEPEND against the target board's package set. Unresolved
// atoms are reported in the returned issue list rather than failing the
// call; a non-nil error indicates a structural failure (a malformed
// dependency expression, or a resolver I/O error).
func AnalyzeDirectDependencies(details *packages.PackageDetails, crossCompile bool, hostResolver, targetResolver *resolver.Resolver) (*DirectDependencies, *DependencyExpressions, []string, error) {
	x := &extractor{crossCompile: crossCompile}
	label := fmt.Sprintf("%s-%s", details.PackageName, details.Version)

	buildTargetDeps, buildTargetExpr, err := x.extractDependencies(details, details.Use, BuildTarget, targetResolver, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolving build-time dependencies for %s: %w", label, err)
	}

	var testTargetDeps []*packages.PackageDetails
	if _, declaresTest := details.Use["test"]; declaresTest {
		testUse := make(map[string]bool, len(details.Use))
		for k, v := range details.Use {
			testUse[k] = v
		}
		testUse["test"] = true
		// Test-only deps often fail to resolve (a package pulling in
		// something unavailable, or requiring a flag combination nothing
		// provides); fall back to build_target rather than failing.
		deps, _, testErr := x.extractDependencies(details, testUse, BuildTarget, targetResolver, nil)
		if testErr != nil {
			testTargetDeps = buildTargetDeps
		} else {
			testTargetDeps = deps
		}
	} else {
		testTargetDeps = buildTargetDeps
	}

	runTargetDeps, runTargetExpr, err := x.extractDependencies(details, details.Use, RunTarget, targetResolver, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolving runtime dependencies for %s: %w", label, err)
	}

	// BDEPEND is queried regardless of EAPI so the hack-table overrides can
	// specify a build-host dependency even when the EAPI doesn't support it.
	buildHostDeps, buildHostExpr, err := x.extractDependencies(details, details.Use, BuildHost, hostResolver, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolving build-time host dependencies for %s: %w", label, err)
	}
	if !details.SupportsBDEPEND() {
		// The allow-list filter has to apply during resolution, not after,
		// because some DEPEND atoms can't be satisfied by the host resolver
		// at all (e.g. libchrome[cros_debug=]).
		extraHostDeps, _, err := x.extractDependencies(details, details.Use, BuildTarget, hostResolver, DependAsBDependAllowList)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("resolving build-time dependencies as host dependencies for %s: %w", label, err)
		}
		for _, d := range extraHostDeps {
			dup := false
			for _, existing := range buildHostDeps {
				if existing.EbuildPath == d.EbuildPath {
					dup = true
					break
				}
			}
			if !dup {
				buildHostDeps = append(buildHostDeps, d)
			}
		}
	}

	installHostDeps, installHostExpr, err := x.extractDependencies(details, details.Use, InstallHost, hostResolver, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolving install-time host dependencies for %s: %w", label, err)
	}

	// Some Rust source packages only declare DEPEND; backfill RDEPEND so
	// they get pulled in as transitive runtime deps too.
	if isRustSourcePackage(details) {
		runTargetDeps = dedupSortedByNameVersion(append(append([]*packages.PackageDetails{}, runTargetDeps...), buildTargetDeps...))
	}

	postTargetDeps, postTargetExpr, err := x.extractDependencies(details, details.Use, PostTarget, targetResolver, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolving post-time dependencies for %s: %w", label, err)
	}

	return &DirectDependencies{
			BuildTarget: buildTargetDeps,
			TestTarget:  testTargetDeps,
			RunTarget:   runTargetDeps,
			PostTarget:  postTargetDeps,
			BuildHost:   buildHostDeps,
			InstallHost: installHostDeps,
		}, &DependencyExpressions{
			BuildTarget: buildTargetExpr,
			RunTarget:   runTargetExpr,
			PostTarget:  postTargetExpr,
			BuildHost:   buildHostExpr,
			InstallHost: installHostExpr,
		}, x.issues, nil
}
