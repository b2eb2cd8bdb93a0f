package ebuild_test

import (
	"fmt"
	"testing"

	"cros.local/depgraph/internal/portage/ebuild"
)

func TestDeriveBasicData(t *testing.T) {
	data, err := ebuild.DeriveBasicData("stable", "/repo/net-misc/curl/curl-8.0.0-r1.ebuild")
	if err != nil {
		t.Fatalf("DeriveBasicData: %v", err)
	}
	if data.Category != "net-misc" {
		t.Errorf("Category = %q, want net-misc", data.Category)
	}
	if data.ShortName != "curl" {
		t.Errorf("ShortName = %q, want curl", data.ShortName)
	}
	if data.PackageName != "net-misc/curl" {
		t.Errorf("PackageName = %q, want net-misc/curl", data.PackageName)
	}
	if data.Version.String() != "8.0.0-r1" {
		t.Errorf("Version = %q, want 8.0.0-r1", data.Version.String())
	}
	if data.RepoName != "stable" {
		t.Errorf("RepoName = %q, want stable", data.RepoName)
	}
}

func TestDeriveBasicData_RejectsNonEbuildExtension(t *testing.T) {
	if _, err := ebuild.DeriveBasicData("stable", "/repo/net-misc/curl/curl-8.0.0.tar.gz"); err == nil {
		t.Errorf("DeriveBasicData(.tar.gz) = nil error, want error")
	}
}

func TestDeriveBasicData_RejectsMismatchedDirName(t *testing.T) {
	if _, err := ebuild.DeriveBasicData("stable", "/repo/net-misc/curl/wget-8.0.0.ebuild"); err == nil {
		t.Errorf("DeriveBasicData(mismatched stem) = nil error, want error")
	}
}

func TestDeriveBasicData_RejectsBadVersion(t *testing.T) {
	if _, err := ebuild.DeriveBasicData("stable", "/repo/net-misc/curl/curl-notaversion.ebuild"); err == nil {
		t.Errorf("DeriveBasicData(invalid version) = nil error, want error")
	}
}

func TestEvaluate_PropagatesDirsProviderError(t *testing.T) {
	ev := ebuild.NewEvaluator("/bin/bash", "/nonexistent-tools-dir")
	wantErr := fmt.Errorf("boom")
	_, err := ev.Evaluate("/repo/net-misc/curl/curl-8.0.0.ebuild", func(string) (string, []string, error) {
		return "", nil, wantErr
	})
	if err == nil {
		t.Fatalf("Evaluate = nil error, want propagated dirs-provider error")
	}
}

func TestEvaluate_CachesPerPath(t *testing.T) {
	ev := ebuild.NewEvaluator("/bin/bash", "/nonexistent-tools-dir")
	calls := 0
	provider := func(string) (string, []string, error) {
		calls++
		return "", nil, fmt.Errorf("boom %d", calls)
	}

	path := "/repo/net-misc/curl/curl-8.0.0.ebuild"
	if _, err1 := ev.Evaluate(path, provider); err1 == nil {
		t.Fatalf("first Evaluate = nil error, want error")
	}
	if _, err2 := ev.Evaluate(path, provider); err2 == nil {
		t.Fatalf("second Evaluate = nil error, want error")
	}
	if calls != 1 {
		t.Errorf("dirs provider called %d times, want 1 (second call should hit the cache)", calls)
	}
}
