package version_test

import (
	"testing"

	"cros.local/depgraph/internal/version"
)

func mustParse(t *testing.T, s string) *version.Version {
	t.Helper()
	v, err := version.Parse(s)
	if err != nil {
		t.Fatalf("version.Parse(%q): %v", s, err)
	}
	return v
}

func TestCompare(t *testing.T) {
	for _, tc := range []struct {
		a, b string
		want int
	}{
		{"0", "0", 0},
		{"0", "1", -1},
		{"1.0", "1.0", 0},
		{"1.0", "1.1", -1},
		{"1.99", "1.100", -1},
		{"1.099", "1.0100", 1},
		{"1.0", "1.0.0", -1},
		{"1.1", "1.0.0", 1},
		{"1.0", "1.000", 0},
		{"1.0280", "1.02800", 0},
		{"1.0a", "1.0a", 0},
		{"1.0a", "1.0z", -1},
		{"1.0_alpha", "1.0_alpha", 0},
		{"1.0_alpha", "1.0_alpha0", 0},
		{"1.0_alpha1", "1.0_alpha1", 0},
		{"1.0_alpha9", "1.0_alpha10", -1},
		{"1.0_alpha", "1.0_beta", -1},
		{"1.0_beta", "1.0_pre", -1},
		{"1.0_pre", "1.0_rc", -1},
		{"1.0_rc", "1.0_p", -1},
		{"1.0", "1.0_alpha1", 1},
		{"1.0", "1.0_p1", -1},
		{"1.0", "1.0-r0", 0},
		{"1.0-r0", "1.0-r0", 0},
		{"1.0-r9", "1.0-r10", -1},
		{"1.01", "1.1", -1},
	} {
		a, b := mustParse(t, tc.a), mustParse(t, tc.b)
		if got := a.Compare(b); got != tc.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
		if got := b.Compare(a); got != -tc.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tc.b, tc.a, got, -tc.want)
		}
	}
}

func TestCompare_EquivalentVersions(t *testing.T) {
	vers := []*version.Version{
		mustParse(t, "1.0.2"),
		mustParse(t, "1.0.2-r0"),
		mustParse(t, "1.000.2"),
	}
	for _, a := range vers {
		for _, b := range vers {
			if cmp := a.Compare(b); cmp != 0 {
				t.Errorf("Compare(%s, %s) = %d, want 0", a, b, cmp)
			}
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{
		"1", "1.0", "1.2.3", "1.2.3a", "1.2.3_alpha4", "1.2.3_alpha4-r5",
		"9999", "1.0_alpha1_beta2_pre3_rc4_p5", "1.0_p1_p2_p3_p",
	} {
		v := mustParse(t, s)
		if got := v.String(); got != s {
			t.Errorf("Parse(%q).String() = %q, want %q", s, got, s)
		}
	}
}

func TestHasPrefix(t *testing.T) {
	for _, tc := range []struct {
		v, prefix string
		want      bool
	}{
		{"1.2.3", "1.2", true},
		{"1.2.3", "1.2.3", true},
		{"1.2.30", "1.2.3", false},
		{"1.2.3-r1", "1.2.3", true},
		{"1.2.3-r1", "1.2.3-r1", true},
		{"1.2.3-r1", "1.2.3-r2", false},
		{"1.2.3_p1", "1.2.3", true},
	} {
		v, p := mustParse(t, tc.v), mustParse(t, tc.prefix)
		if got := v.HasPrefix(p); got != tc.want {
			t.Errorf("%q.HasPrefix(%q) = %v, want %v", tc.v, tc.prefix, got, tc.want)
		}
	}
}

func TestExtractSuffix(t *testing.T) {
	prefix, ver, err := version.ExtractSuffix("net-misc/curl-7.78.0-r1")
	if err != nil {
		t.Fatal(err)
	}
	if prefix != "net-misc/curl-" {
		t.Errorf("prefix = %q, want %q", prefix, "net-misc/curl-")
	}
	if got, want := ver.String(), "7.78.0-r1"; got != want {
		t.Errorf("version = %q, want %q", got, want)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "abc", "1.2..3", "-r1"} {
		if _, err := version.Parse(s); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", s)
		}
	}
}
