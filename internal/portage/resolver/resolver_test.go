package resolver_test

import (
	"os"
	"path/filepath"
	"testing"

	"cros.local/depgraph/internal/dependency"
	"cros.local/depgraph/internal/makevars"
	"cros.local/depgraph/internal/portage/config"
	"cros.local/depgraph/internal/portage/ebuild"
	"cros.local/depgraph/internal/portage/packages"
	"cros.local/depgraph/internal/portage/repository"
	"cros.local/depgraph/internal/portage/resolver"
	"cros.local/depgraph/internal/version"
)

type staticSource struct {
	vars  makevars.Vars
	nodes []config.Node
}

func (s staticSource) Evaluate(env makevars.Vars) ([]config.Node, error) {
	nodes := append([]config.Node{}, s.nodes...)
	if s.vars != nil {
		nodes = append([]config.Node{{Vars: s.vars}}, nodes...)
	}
	return nodes, nil
}

func writeEbuild(t *testing.T, repoDir, category, name, ver, body string) {
	t.Helper()
	dir := filepath.Join(repoDir, category, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name+"-"+ver+".ebuild")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestResolver(t *testing.T, repoDir string, bundle *config.Bundle) *resolver.Resolver {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(repoDir, "metadata"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repoDir, "metadata", "layout.conf"), []byte("repo-name = test\n"), 0644); err != nil {
		t.Fatal(err)
	}

	set := repository.NewSet()
	if _, err := set.Add(repoDir); err != nil {
		t.Fatalf("repository.Add: %v", err)
	}

	ev := ebuild.NewEvaluator("/bin/bash", "/usr/bin")
	dirs := func(ebuildPath string) (string, []string, error) {
		repo, _, err := set.GetRepoByPath(ebuildPath)
		if err != nil {
			return "", nil, err
		}
		return repo.Name, repo.EclassDirs, nil
	}

	return resolver.New(set, ev, dirs, bundle, "amd64", packages.LiveRelaxation{})
}

func mustAtom(t *testing.T, s string) *dependency.Atom {
	t.Helper()
	a, err := dependency.Parse(s)
	if err != nil {
		t.Fatalf("dependency.Parse(%q): %v", s, err)
	}
	return a
}

func TestFindBestPackage_PicksHighestAcceptedVersion(t *testing.T) {
	repoDir := t.TempDir()
	writeEbuild(t, repoDir, "dev-libs", "foo", "1.0", "EAPI=7\nSLOT=\"0\"\nKEYWORDS=\"amd64\"\nIUSE=\"\"\n")
	writeEbuild(t, repoDir, "dev-libs", "foo", "2.0", "EAPI=7\nSLOT=\"0\"\nKEYWORDS=\"amd64\"\nIUSE=\"\"\n")

	bundle, err := config.Compose([]config.Source{
		staticSource{vars: makevars.Vars{"ACCEPT_KEYWORDS": "amd64"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	r := newTestResolver(t, repoDir, bundle)
	best, err := r.FindBestPackage(mustAtom(t, "dev-libs/foo"))
	if err != nil {
		t.Fatalf("FindBestPackage: %v", err)
	}
	if best == nil {
		t.Fatal("FindBestPackage = nil, want foo-2.0")
	}
	if best.Version.String() != "2.0" {
		t.Errorf("best.Version = %q, want 2.0", best.Version.String())
	}
	if best.Readiness != packages.Ready {
		t.Errorf("best.Readiness = %v, want Ready", best.Readiness)
	}
}

func TestFindBestPackage_SkipsMaskedVersions(t *testing.T) {
	repoDir := t.TempDir()
	writeEbuild(t, repoDir, "dev-libs", "bar", "1.0", "EAPI=7\nSLOT=\"0\"\nKEYWORDS=\"amd64\"\nIUSE=\"\"\n")
	writeEbuild(t, repoDir, "dev-libs", "bar", "2.0", "EAPI=7\nSLOT=\"0\"\nKEYWORDS=\"amd64\"\nIUSE=\"\"\n")

	bundle, err := config.Compose([]config.Source{
		staticSource{vars: makevars.Vars{"ACCEPT_KEYWORDS": "amd64"}},
		staticSource{nodes: []config.Node{{
			PackageMasks: []config.PackageMaskEntry{{Kind: config.Mask, Atom: mustAtom(t, "=dev-libs/bar-2.0")}},
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	r := newTestResolver(t, repoDir, bundle)
	best, err := r.FindBestPackage(mustAtom(t, "dev-libs/bar"))
	if err != nil {
		t.Fatalf("FindBestPackage: %v", err)
	}
	if best == nil {
		t.Fatal("FindBestPackage = nil, want bar-1.0 (bar-2.0 masked)")
	}
	if best.Version.String() != "1.0" {
		t.Errorf("best.Version = %q, want 1.0 (2.0 is masked)", best.Version.String())
	}
}

func TestFindBestPackage_NoMatch(t *testing.T) {
	repoDir := t.TempDir()
	bundle, err := config.Compose(nil)
	if err != nil {
		t.Fatal(err)
	}
	r := newTestResolver(t, repoDir, bundle)
	best, err := r.FindBestPackage(mustAtom(t, "dev-libs/missing"))
	if err != nil {
		t.Fatalf("FindBestPackage: %v", err)
	}
	if best != nil {
		t.Errorf("FindBestPackage(missing) = %v, want nil", best)
	}
}

func TestFindAllPackages(t *testing.T) {
	repoDir := t.TempDir()
	writeEbuild(t, repoDir, "dev-libs", "foo", "1.0", "EAPI=7\nSLOT=\"0\"\nKEYWORDS=\"amd64\"\nIUSE=\"\"\n")
	writeEbuild(t, repoDir, "dev-libs", "bar", "1.0", "EAPI=7\nSLOT=\"0\"\nKEYWORDS=\"amd64\"\nIUSE=\"\"\n")

	bundle, err := config.Compose([]config.Source{
		staticSource{vars: makevars.Vars{"ACCEPT_KEYWORDS": "amd64"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	r := newTestResolver(t, repoDir, bundle)
	all, err := r.FindAllPackages()
	if err != nil {
		t.Fatalf("FindAllPackages: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("FindAllPackages = %d entries, want 2", len(all))
	}
	for _, m := range all {
		if m.Err != nil {
			t.Errorf("unexpected per-package error: %v", m.Err)
			continue
		}
		if m.OK.Readiness != packages.Ready {
			t.Errorf("%s: Readiness = %v, want Ready", m.OK.PackageName, m.OK.Readiness)
		}
	}
}

func TestFindProvidedPackages(t *testing.T) {
	repoDir := t.TempDir()
	v, err := version.Parse("1.0")
	if err != nil {
		t.Fatal(err)
	}
	bundle, err := config.Compose([]config.Source{
		staticSource{nodes: []config.Node{{
			Provided: []config.ProvidedPackage{{PackageName: "dev-libs/virtual-foo", Version: v}},
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	r := newTestResolver(t, repoDir, bundle)
	provided := r.FindProvidedPackages(mustAtom(t, "dev-libs/virtual-foo"))
	if len(provided) != 1 {
		t.Fatalf("FindProvidedPackages = %v, want 1 entry", provided)
	}
}
