package config_test

import (
	"testing"

	"cros.local/depgraph/internal/dependency"
	"cros.local/depgraph/internal/makevars"
	"cros.local/depgraph/internal/portage/config"
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

func mustAtom(t *testing.T, s string) *dependency.Atom {
	t.Helper()
	a, err := dependency.Parse(s)
	if err != nil {
		t.Fatalf("dependency.Parse(%q): %v", s, err)
	}
	return a
}

func mustVersion(t *testing.T, s string) *version.Version {
	t.Helper()
	v, err := version.Parse(s)
	if err != nil {
		t.Fatalf("version.Parse(%q): %v", s, err)
	}
	return v
}

func TestCompose_LaterOverridesEarlier(t *testing.T) {
	bundle, err := config.Compose([]config.Source{
		staticSource{vars: makevars.Vars{"A": "1", "B": "1"}},
		staticSource{vars: makevars.Vars{"B": "2"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if bundle.Vars["A"] != "1" || bundle.Vars["B"] != "2" {
		t.Errorf("Vars = %v, want A=1 B=2", bundle.Vars)
	}
}

func TestIsMasked(t *testing.T) {
	foo := mustAtom(t, "cat/foo")
	bundle, err := config.Compose([]config.Source{
		staticSource{nodes: []config.Node{{
			PackageMasks: []config.PackageMaskEntry{{Kind: config.Mask, Atom: foo}},
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	ref := &dependency.PackageRef{PackageName: "cat/foo", Version: mustVersion(t, "1")}
	if !bundle.IsMasked(ref) {
		t.Errorf("IsMasked = false, want true")
	}

	other := &dependency.PackageRef{PackageName: "cat/bar", Version: mustVersion(t, "1")}
	if bundle.IsMasked(other) {
		t.Errorf("IsMasked(unrelated) = true, want false")
	}
}

func TestIsMasked_LaterUnmaskCountermandsMask(t *testing.T) {
	foo := mustAtom(t, "cat/foo")
	bundle, err := config.Compose([]config.Source{
		staticSource{nodes: []config.Node{{
			PackageMasks: []config.PackageMaskEntry{{Kind: config.Mask, Atom: foo}},
		}}},
		staticSource{nodes: []config.Node{{
			PackageMasks: []config.PackageMaskEntry{{Kind: config.Unmask, Atom: foo}},
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	ref := &dependency.PackageRef{PackageName: "cat/foo", Version: mustVersion(t, "1")}
	if bundle.IsMasked(ref) {
		t.Errorf("IsMasked after unmask = true, want false")
	}
}

func TestParseIUSE(t *testing.T) {
	got := config.ParseIUSE("+foo -bar baz")
	want := map[string]bool{"foo": true, "bar": false, "baz": false}
	if len(got) != len(want) {
		t.Fatalf("ParseIUSE = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("ParseIUSE()[%q] = %v, want %v", k, got[k], v)
		}
	}
}

func TestComputeUse(t *testing.T) {
	bundle, err := config.Compose([]config.Source{
		staticSource{nodes: []config.Node{{
			Uses: []config.UseUpdate{
				{Kind: config.Set, Filter: config.UseFilter{}, Tokens: "foo -bar"},
			},
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	ref := &dependency.PackageRef{PackageName: "cat/foo", Version: mustVersion(t, "1")}
	iuse := config.ParseIUSE("+bar -foo baz")
	use := bundle.ComputeUse(ref, true, iuse)

	want := map[string]bool{"foo": true, "bar": false, "baz": false}
	if len(use) != len(want) {
		t.Fatalf("ComputeUse = %v, want %v", use, want)
	}
	for k, v := range want {
		if use[k] != v {
			t.Errorf("ComputeUse()[%q] = %v, want %v", k, use[k], v)
		}
	}
}

func TestComputeUse_DropsUndeclaredFlags(t *testing.T) {
	bundle, err := config.Compose([]config.Source{
		staticSource{nodes: []config.Node{{
			Uses: []config.UseUpdate{
				{Kind: config.Set, Tokens: "notdeclared"},
			},
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	ref := &dependency.PackageRef{PackageName: "cat/foo", Version: mustVersion(t, "1")}
	use := bundle.ComputeUse(ref, true, config.ParseIUSE("foo"))
	if _, ok := use["notdeclared"]; ok {
		t.Errorf("ComputeUse kept undeclared flag: %v", use)
	}
}

func TestIsAccepted(t *testing.T) {
	bundle, err := config.Compose([]config.Source{
		staticSource{vars: makevars.Vars{"ACCEPT_KEYWORDS": "amd64"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	ref := &dependency.PackageRef{PackageName: "cat/foo", Version: mustVersion(t, "1")}

	cases := []struct {
		keywords     string
		wantAccepted bool
		wantStable   bool
	}{
		{"amd64", true, true},
		{"~amd64", false, false},
		{"-amd64", false, false},
		{"arm64", false, false},
	}
	for _, c := range cases {
		got := bundle.IsAccepted(ref, c.keywords, "amd64")
		if got.Accepted != c.wantAccepted || (got.Accepted && got.Stable != c.wantStable) {
			t.Errorf("IsAccepted(keywords=%q) = %+v, want accepted=%v stable=%v", c.keywords, got, c.wantAccepted, c.wantStable)
		}
	}
}

func TestIsAccepted_UnstableAccepted(t *testing.T) {
	bundle, err := config.Compose([]config.Source{
		staticSource{vars: makevars.Vars{"ACCEPT_KEYWORDS": "~amd64"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	ref := &dependency.PackageRef{PackageName: "cat/foo", Version: mustVersion(t, "1")}
	got := bundle.IsAccepted(ref, "~amd64", "amd64")
	if !got.Accepted || got.Stable {
		t.Errorf("IsAccepted(~amd64) = %+v, want accepted, unstable", got)
	}
}

func TestProvidedVersion(t *testing.T) {
	v := mustVersion(t, "1.2.3")
	bundle, err := config.Compose([]config.Source{
		staticSource{nodes: []config.Node{{
			Provided: []config.ProvidedPackage{{PackageName: "cat/foo", Version: v}},
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !bundle.ProvidedVersion("cat/foo", v) {
		t.Errorf("ProvidedVersion = false, want true")
	}
	if bundle.ProvidedVersion("cat/bar", v) {
		t.Errorf("ProvidedVersion(other name) = true, want false")
	}
}
