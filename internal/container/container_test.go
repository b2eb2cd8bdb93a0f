package container

import (
	"os"
	"testing"
)

func TestResolveLayers_PlainDirsOnly(t *testing.T) {
	layers := []ContainerLayer{
		{Path: "/a"},
		{Path: "/b"},
	}
	dirs, trees, err := resolveLayers(layers)
	if err != nil {
		t.Fatalf("resolveLayers: %v", err)
	}
	if len(trees) != 0 {
		t.Errorf("trees = %v, want none opened for plain layers", trees)
	}
	want := []string{"/a", "/b"}
	if len(dirs) != len(want) {
		t.Fatalf("dirs = %v, want %v", dirs, want)
	}
	for i := range want {
		if dirs[i] != want[i] {
			t.Errorf("dirs[%d] = %q, want %q", i, dirs[i], want[i])
		}
	}
}

func TestResolveLayers_DurableExpandFailure(t *testing.T) {
	dir := t.TempDir()
	layers := []ContainerLayer{{Path: dir, Durable: true}}
	if _, _, err := resolveLayers(layers); err == nil {
		t.Errorf("resolveLayers with a non-durable-tree path marked Durable = nil error, want error")
	}
}

func TestSettingsFileRoundTrip(t *testing.T) {
	settings := Settings{
		Layers:     []ContainerLayer{{Path: "/a"}},
		BindMounts: []BindMount{{Source: "/src", Target: "/dst", ReadOnly: true}},
		Env:        map[string]string{"FOO": "bar"},
		Chdir:      "/work",
		Args:       []string{"/bin/true"},
	}

	path, err := writeSettingsFile(settings)
	if err != nil {
		t.Fatalf("writeSettingsFile: %v", err)
	}
	defer os.Remove(path)

	got, err := readSettingsFile(path)
	if err != nil {
		t.Fatalf("readSettingsFile: %v", err)
	}
	if got.Chdir != settings.Chdir || got.Env["FOO"] != "bar" || len(got.Args) != 1 || got.Args[0] != "/bin/true" {
		t.Errorf("round-tripped settings = %+v, want %+v", got, settings)
	}
	if len(got.BindMounts) != 1 || got.BindMounts[0].ReadOnly != true {
		t.Errorf("round-tripped BindMounts = %+v", got.BindMounts)
	}
}
