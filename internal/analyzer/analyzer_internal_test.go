package analyzer

import (
	"testing"

	"cros.local/depgraph/internal/portage/ebuild"
	"cros.local/depgraph/internal/portage/packages"
	"cros.local/depgraph/internal/version"
)

func mustVersion(t *testing.T, s string) *version.Version {
	t.Helper()
	v, err := version.Parse(s)
	if err != nil {
		t.Fatalf("version.Parse(%q): %v", s, err)
	}
	return v
}

func detail(t *testing.T, name string, v string) *packages.PackageDetails {
	t.Helper()
	category, short, _ := cutOnce(name)
	return &packages.PackageDetails{
		BasicData: ebuild.BasicData{
			Category:    category,
			ShortName:   short,
			PackageName: name,
			Version:     mustVersion(t, v),
		},
	}
}

func cutOnce(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func TestDedupSortedByNameVersion(t *testing.T) {
	a1 := detail(t, "cat/a", "1")
	a1dup := detail(t, "cat/a", "1")
	a2 := detail(t, "cat/a", "2")
	b1 := detail(t, "cat/b", "1")

	got := dedupSortedByNameVersion([]*packages.PackageDetails{a2, b1, a1, a1dup})
	if len(got) != 3 {
		t.Fatalf("dedupSortedByNameVersion returned %d entries, want 3: %+v", len(got), got)
	}
	if got[0].PackageName != "cat/a" || got[0].Version.Compare(mustVersion(t, "1")) != 0 {
		t.Errorf("got[0] = %s-%s, want cat/a-1", got[0].PackageName, got[0].Version)
	}
	if got[1].PackageName != "cat/a" || got[1].Version.Compare(mustVersion(t, "2")) != 0 {
		t.Errorf("got[1] = %s-%s, want cat/a-2", got[1].PackageName, got[1].Version)
	}
	if got[2].PackageName != "cat/b" {
		t.Errorf("got[2] = %s, want cat/b", got[2].PackageName)
	}
}

func TestVarName(t *testing.T) {
	eapi8 := &packages.PackageDetails{Vars: map[string]string{"EAPI": "8"}}
	eapi5 := &packages.PackageDetails{Vars: map[string]string{"EAPI": "5"}}

	cases := []struct {
		kind Kind
		d    *packages.PackageDetails
		want string
	}{
		{BuildTarget, eapi8, "DEPEND"},
		{RunTarget, eapi8, "RDEPEND"},
		{PostTarget, eapi8, "PDEPEND"},
		{BuildHost, eapi8, "BDEPEND"},
		{InstallHost, eapi8, "IDEPEND"},
		{InstallHost, eapi5, ""},
		{TestTarget, eapi8, ""},
	}
	for _, c := range cases {
		if got := varName(c.d, c.kind); got != c.want {
			t.Errorf("varName(kind=%v) = %q, want %q", c.kind, got, c.want)
		}
	}
}

func TestKindString(t *testing.T) {
	for k, want := range map[Kind]string{
		BuildTarget: "build_target",
		TestTarget:  "test_target",
		RunTarget:   "run_target",
		PostTarget:  "post_target",
		BuildHost:   "build_host",
		InstallHost: "install_host",
	} {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
