package binarypackage_test

import (
	"archive/tar"
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"cros.local/depgraph/internal/binarypackage"
)

// buildTbz2 assembles a minimal but structurally valid .tbz2: a
// zstd-compressed tarball containing tarFiles, followed by an XPAK blob
// encoding headers, per the format binarypackage.Open/Headers decode.
func buildTbz2(t *testing.T, tarFiles map[string]string, headers map[string]string) string {
	t.Helper()

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	for name, content := range tarFiles {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(content))}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	var compressed bytes.Buffer
	zw, err := zstd.NewWriter(&compressed)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := zw.Write(tarBuf.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	be32 := func(v uint32) []byte {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, v)
		return b
	}

	var index, data bytes.Buffer
	var dataOffset uint32
	for name, value := range headers {
		index.Write(be32(uint32(len(name))))
		index.WriteString(name)
		index.Write(be32(dataOffset))
		index.Write(be32(uint32(len(value))))
		data.WriteString(value)
		dataOffset += uint32(len(value))
	}

	var out bytes.Buffer
	out.Write(compressed.Bytes())
	xpakStart := out.Len()
	out.WriteString("XPAKPACK")
	out.Write(be32(uint32(index.Len())))
	out.Write(be32(uint32(data.Len())))
	out.Write(index.Bytes())
	out.Write(data.Bytes())
	out.WriteString("XPAKSTOP")
	// size = out.Len() + 4 (the xpakOffset field itself) + 4 (STOP), so
	// size-8-xpakStart, the value Open() expects, equals out.Len()-xpakStart.
	xpakOffset := uint32(out.Len() - xpakStart)
	out.Write(be32(xpakOffset))
	out.WriteString("STOP")

	path := filepath.Join(t.TempDir(), "pkg.tbz2")
	if err := os.WriteFile(path, out.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenAndHeaders(t *testing.T) {
	path := buildTbz2(t, map[string]string{"usr/bin/foo": "binary-content"}, map[string]string{
		"CATEGORY": "net-misc",
		"PF":       "curl-8.0.0",
	})

	bp, err := binarypackage.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer bp.Close()

	headers, err := bp.Headers()
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	if string(headers["CATEGORY"]) != "net-misc" {
		t.Errorf("CATEGORY = %q, want net-misc", headers["CATEGORY"])
	}
	if string(headers["PF"]) != "curl-8.0.0" {
		t.Errorf("PF = %q, want curl-8.0.0", headers["PF"])
	}
}

func TestReadHeaders(t *testing.T) {
	path := buildTbz2(t, map[string]string{"a": "b"}, map[string]string{"USE": "foo bar"})

	headers, err := binarypackage.ReadHeaders(path)
	if err != nil {
		t.Fatalf("ReadHeaders: %v", err)
	}
	if string(headers["USE"]) != "foo bar" {
		t.Errorf("USE = %q, want \"foo bar\"", headers["USE"])
	}
}

func TestExtractAll(t *testing.T) {
	path := buildTbz2(t, map[string]string{"usr/bin/foo": "hello"}, map[string]string{"CATEGORY": "net-misc"})

	bp, err := binarypackage.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer bp.Close()

	dest := t.TempDir()
	if err := bp.ExtractAll(dest); err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "usr/bin/foo"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("extracted content = %q, want hello", got)
	}
}

func TestExtractHeaders(t *testing.T) {
	path := buildTbz2(t, map[string]string{"a": "b"}, map[string]string{
		"CATEGORY": "net-misc",
		"PF":       "curl-8.0.0",
	})

	bp, err := binarypackage.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer bp.Close()

	dest := t.TempDir()
	if err := bp.ExtractHeaders([]string{"CATEGORY"}, dest); err != nil {
		t.Fatalf("ExtractHeaders: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "CATEGORY"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "net-misc" {
		t.Errorf("CATEGORY file content = %q, want net-misc", got)
	}
	if _, err := os.Stat(filepath.Join(dest, "PF")); !os.IsNotExist(err) {
		t.Errorf("PF should not have been extracted")
	}
}

func TestOpen_RejectsCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tbz2")
	if err := os.WriteFile(path, []byte("too short"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := binarypackage.Open(path); err == nil {
		t.Errorf("Open(corrupted) = nil error, want error")
	}
}
