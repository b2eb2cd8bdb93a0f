package packages_test

import (
	"testing"

	"cros.local/depgraph/internal/dependency"
	"cros.local/depgraph/internal/portage/packages"
)

func TestParseSlot(t *testing.T) {
	cases := []struct {
		in   string
		want dependency.SlotDep
	}{
		{"0", dependency.SlotDep{Main: "0", Sub: "0"}},
		{"3/3.1", dependency.SlotDep{Main: "3", Sub: "3.1"}},
	}
	for _, c := range cases {
		if got := packages.ParseSlot(c.in); got != c.want {
			t.Errorf("ParseSlot(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestEAPI(t *testing.T) {
	d := &packages.PackageDetails{Vars: map[string]string{"EAPI": "7"}}
	if got := d.EAPI(); got != "7" {
		t.Errorf("EAPI() = %q, want 7", got)
	}

	bare := &packages.PackageDetails{Vars: map[string]string{}}
	if got := bare.EAPI(); got != "0" {
		t.Errorf("EAPI() with no EAPI var = %q, want 0 (pre-EAPI default)", got)
	}
}

func TestSupportsBDEPENDAndIDEPEND(t *testing.T) {
	cases := []struct {
		eapi         string
		wantBDEPEND  bool
		wantIDEPEND  bool
	}{
		{"5", false, false},
		{"7", true, false},
		{"8", true, true},
	}
	for _, c := range cases {
		d := &packages.PackageDetails{Vars: map[string]string{"EAPI": c.eapi}}
		if got := d.SupportsBDEPEND(); got != c.wantBDEPEND {
			t.Errorf("EAPI %s: SupportsBDEPEND() = %v, want %v", c.eapi, got, c.wantBDEPEND)
		}
		if got := d.SupportsIDEPEND(); got != c.wantIDEPEND {
			t.Errorf("EAPI %s: SupportsIDEPEND() = %v, want %v", c.eapi, got, c.wantIDEPEND)
		}
	}
}

func TestHDEPEND(t *testing.T) {
	old := &packages.PackageDetails{Vars: map[string]string{"EAPI": "5", "HDEPEND": "dev-lang/go"}}
	if got := old.HDEPEND(); got != "dev-lang/go" {
		t.Errorf("HDEPEND() = %q, want dev-lang/go", got)
	}

	modern := &packages.PackageDetails{Vars: map[string]string{"EAPI": "7", "HDEPEND": "dev-lang/go"}}
	if got := modern.HDEPEND(); got != "" {
		t.Errorf("HDEPEND() with EAPI 7 = %q, want empty (BDEPEND supersedes it)", got)
	}
}
