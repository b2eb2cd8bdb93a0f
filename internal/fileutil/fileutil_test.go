package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"cros.local/depgraph/internal/fileutil"
)

func TestCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	if err := os.WriteFile(src, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := fileutil.Copy(src, dst); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("dst content = %q, want %q", got, "hello")
	}
}

func TestMoveDirContents(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "from")
	to := filepath.Join(dir, "to")
	if err := os.MkdirAll(filepath.Join(from, "subdir"), 0555); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(to, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(from, "file.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := fileutil.MoveDirContents(from, to); err != nil {
		t.Fatalf("MoveDirContents: %v", err)
	}

	if _, err := os.Stat(filepath.Join(to, "file.txt")); err != nil {
		t.Errorf("file.txt not moved: %v", err)
	}
	info, err := os.Stat(filepath.Join(to, "subdir"))
	if err != nil {
		t.Fatalf("subdir not moved: %v", err)
	}
	if info.Mode().Perm() != 0555 {
		t.Errorf("subdir mode = %v, want restored to 0555", info.Mode().Perm())
	}
}

func TestRemoveWithChmod(t *testing.T) {
	dir := t.TempDir()
	parent := filepath.Join(dir, "parent")
	if err := os.Mkdir(parent, 0500); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(parent, "file.txt")
	if err := os.Chmod(parent, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(target, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(parent, 0500); err != nil {
		t.Fatal(err)
	}

	if err := fileutil.RemoveWithChmod(target); err != nil {
		t.Fatalf("RemoveWithChmod: %v", err)
	}

	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Errorf("target still exists: %v", err)
	}
	info, err := os.Stat(parent)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0500 {
		t.Errorf("parent mode = %v, want restored to 0500", info.Mode().Perm())
	}
}

func TestRemoveAllWithChmod(t *testing.T) {
	dir := t.TempDir()
	tree := filepath.Join(dir, "tree")
	if err := os.MkdirAll(filepath.Join(tree, "a", "b"), 0555); err != nil {
		t.Fatal(err)
	}

	if err := fileutil.RemoveAllWithChmod(tree); err != nil {
		t.Fatalf("RemoveAllWithChmod: %v", err)
	}
	if _, err := os.Stat(tree); !os.IsNotExist(err) {
		t.Errorf("tree still exists: %v", err)
	}
}

func TestRemoveAllWithChmod_MissingIsNoop(t *testing.T) {
	dir := t.TempDir()
	if err := fileutil.RemoveAllWithChmod(filepath.Join(dir, "missing")); err != nil {
		t.Errorf("RemoveAllWithChmod(missing) = %v, want nil", err)
	}
}
