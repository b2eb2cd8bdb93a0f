package makevars_test

import (
	"testing"

	"cros.local/depgraph/internal/makevars"
)

func TestMerge(t *testing.T) {
	base := makevars.Vars{"A": "1", "B": "2"}
	over := makevars.Vars{"B": "3", "C": "4"}
	got := base.Merge(over)

	want := makevars.Vars{"A": "1", "B": "3", "C": "4"}
	if len(got) != len(want) {
		t.Fatalf("Merge = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Merge()[%q] = %q, want %q", k, got[k], v)
		}
	}

	// base must be untouched.
	if base["B"] != "2" {
		t.Errorf("Merge mutated receiver: base[B] = %q, want 2", base["B"])
	}
}

func TestIsIncremental(t *testing.T) {
	for _, name := range []string{"USE", "ACCEPT_KEYWORDS", "FEATURES"} {
		if !makevars.IsIncremental(name) {
			t.Errorf("IsIncremental(%q) = false, want true", name)
		}
	}
	if makevars.IsIncremental("CFLAGS") {
		t.Errorf("IsIncremental(CFLAGS) = true, want false")
	}
}

func TestApplyIncremental(t *testing.T) {
	cases := []struct {
		prior, update, want string
	}{
		{"", "a b", "a b"},
		{"a b", "c", "a b c"},
		{"a b c", "-b", "a c"},
		{"a b c", "-*", ""},
		{"a b c", "-* d", "d"},
		{"a b", "a", "a b"}, // re-adding an existing token is a no-op
	}
	for _, c := range cases {
		got := makevars.ApplyIncremental(c.prior, c.update)
		if got != c.want {
			t.Errorf("ApplyIncremental(%q, %q) = %q, want %q", c.prior, c.update, got, c.want)
		}
	}
}

func TestDump(t *testing.T) {
	v := makevars.Vars{"B": "2", "A": "has space"}
	got := makevars.Dump(v)
	want := "A='has space'\nB=2\n"
	if got != want {
		t.Errorf("Dump() = %q, want %q", got, want)
	}
}
