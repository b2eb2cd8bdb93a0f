package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"cros.local/depgraph/internal/portage/config"
)

func TestSiteSource_MakeConfLayeringAndPackageUse(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "etc", "portage"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "etc", "make.conf"), []byte("ARCH=\"amd64\"\nUSE=\"a\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "etc", "portage", "make.conf"), []byte("USE=\"${USE} b\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "etc", "portage", "package.use"), []byte("dev-libs/foo ssl\n"), 0644); err != nil {
		t.Fatal(err)
	}

	src := config.SiteSource{RootDir: root}
	nodes, err := src.Evaluate(nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("Evaluate = %d nodes, want 1", len(nodes))
	}
	node := nodes[0]

	if node.Vars["ARCH"] != "amd64" {
		t.Errorf("ARCH = %q, want amd64", node.Vars["ARCH"])
	}
	if node.Vars["USE"] != "a b" {
		t.Errorf("USE = %q, want %q (etc/portage/make.conf overrides and extends etc/make.conf)", node.Vars["USE"], "a b")
	}

	if len(node.Uses) != 1 || node.Uses[0].Tokens != "ssl" {
		t.Fatalf("Uses = %v, want one ssl update", node.Uses)
	}
	if node.Uses[0].Kind != config.Set {
		t.Errorf("Uses[0].Kind = %v, want Set", node.Uses[0].Kind)
	}
}

func TestSiteSource_MissingFilesAreNotErrors(t *testing.T) {
	root := t.TempDir()
	src := config.SiteSource{RootDir: root}
	nodes, err := src.Evaluate(nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("Evaluate = %d nodes, want 1", len(nodes))
	}
	if len(nodes[0].Uses) != 0 {
		t.Errorf("Uses = %v, want none", nodes[0].Uses)
	}
}
