package buildgraph_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"cros.local/depgraph/internal/analyzer"
	"cros.local/depgraph/internal/buildgraph"
	"cros.local/depgraph/internal/portage/ebuild"
	"cros.local/depgraph/internal/portage/packages"
	"cros.local/depgraph/internal/version"
)

func TestParseSrcURI(t *testing.T) {
	got := buildgraph.ParseSrcURI("https://example.com/a-1.0.tar.gz https://example.com/raw -> b.bin")
	want := []buildgraph.DistFileEntry{
		{Name: "dist_a-1.0.tar.gz", Filename: "a-1.0.tar.gz", Urls: []string{"https://example.com/a-1.0.tar.gz"}},
		{Name: "dist_b.bin", Filename: "b.bin", Urls: []string{"https://example.com/raw"}},
	}
	if len(got) != len(want) {
		t.Fatalf("ParseSrcURI = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i].Filename != want[i].Filename || got[i].Urls[0] != want[i].Urls[0] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseSrcURI_SkipsUseConditionalMarkers(t *testing.T) {
	got := buildgraph.ParseSrcURI("foo? ( https://example.com/a.tar.gz )")
	if len(got) != 1 || got[0].Filename != "a.tar.gz" {
		t.Errorf("ParseSrcURI with USE-conditional = %+v, want single a.tar.gz entry", got)
	}
}

func TestBuildDistRepositories(t *testing.T) {
	dists := []buildgraph.DistFileEntry{
		{Name: "dist_a", Filename: "a.tar.gz", Urls: []string{"https://example.com/a.tar.gz"}},
		{Name: "dist_b", Filename: "b.tar.gz", Urls: []string{"gs://bucket/b.tar.gz"}},
		{Name: "dist_c", Filename: "c.tar.gz", Urls: []string{"cipd://chromiumos/c"}},
	}
	repos := buildgraph.BuildDistRepositories(dists)
	if len(repos) != 3 {
		t.Fatalf("BuildDistRepositories returned %d repos, want 3", len(repos))
	}

	data, err := repos.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	var envelopes []map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelopes); err != nil {
		t.Fatal(err)
	}

	wantTags := map[string]bool{"HttpFile": false, "GsFile": false, "CipdFile": false}
	for _, env := range envelopes {
		for tag := range env {
			if _, ok := wantTags[tag]; !ok {
				t.Errorf("unexpected tag %q in envelope", tag)
			}
			wantTags[tag] = true
		}
	}
	for tag, seen := range wantTags {
		if !seen {
			t.Errorf("expected tag %q not present in output", tag)
		}
	}
}

func TestBuildDistRepositories_DedupesByFilename(t *testing.T) {
	dists := []buildgraph.DistFileEntry{
		{Name: "dist_a", Filename: "a.tar.gz", Urls: []string{"https://mirror1.example.com/a.tar.gz"}},
		{Name: "dist_a", Filename: "a.tar.gz", Urls: []string{"https://mirror2.example.com/a.tar.gz"}},
	}
	repos := buildgraph.BuildDistRepositories(dists)
	if len(repos) != 1 {
		t.Fatalf("BuildDistRepositories = %d entries, want 1 (deduped by filename)", len(repos))
	}
}

func TestLabel(t *testing.T) {
	v, err := version.Parse("1.2.3")
	if err != nil {
		t.Fatal(err)
	}
	d := &packages.PackageDetails{BasicData: ebuild.BasicData{Category: "net-misc", ShortName: "curl", Version: v}}
	if got, want := buildgraph.Label(d), "//net-misc/curl:1.2.3"; got != want {
		t.Errorf("Label = %q, want %q", got, want)
	}
}

func TestNewPackageRecord(t *testing.T) {
	v, err := version.Parse("1")
	if err != nil {
		t.Fatal(err)
	}
	details := &packages.PackageDetails{
		BasicData: ebuild.BasicData{
			EbuildPath: "/repo/net-misc/curl/curl-1.ebuild",
			Category:   "net-misc",
			ShortName:  "curl",
			Version:    v,
		},
	}
	deps := &analyzer.DirectDependencies{}
	record := buildgraph.NewPackageRecord(details, deps, nil, "sdk-tag")

	if record.EbuildFilename != details.EbuildPath {
		t.Errorf("EbuildFilename = %q, want %q", record.EbuildFilename, details.EbuildPath)
	}
	if record.Version != "1" {
		t.Errorf("Version = %q, want 1", record.Version)
	}
	if record.SDKTag != "sdk-tag" {
		t.Errorf("SDKTag = %q, want sdk-tag", record.SDKTag)
	}
	if record.BuildDeps == nil || len(record.BuildDeps) != 0 {
		t.Errorf("BuildDeps = %v, want empty non-nil slice", record.BuildDeps)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	v, err := version.Parse("1")
	if err != nil {
		t.Fatal(err)
	}
	details := &packages.PackageDetails{
		BasicData: ebuild.BasicData{
			EbuildPath: "/repo/net-misc/curl/curl-1.ebuild",
			Category:   "net-misc",
			ShortName:  "curl",
			Version:    v,
			PackageName: "net-misc/curl",
		},
	}
	records := buildgraph.PackageRecords{
		"net-misc/curl": buildgraph.NewPackageRecord(details, &analyzer.DirectDependencies{}, nil, "sdk"),
	}

	path := filepath.Join(t.TempDir(), "depgraph.json")
	if err := buildgraph.Save(path, records); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := buildgraph.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got["net-misc/curl"] == nil || got["net-misc/curl"].Version != "1" {
		t.Errorf("Load round-trip = %+v, want version 1 for net-misc/curl", got)
	}
}

func TestSaveDeps(t *testing.T) {
	repos := buildgraph.BuildDistRepositories([]buildgraph.DistFileEntry{
		{Name: "dist_a", Filename: "a.tar.gz", Urls: []string{"https://example.com/a.tar.gz"}},
	})
	path := filepath.Join(t.TempDir(), "deps.json")
	if err := buildgraph.SaveDeps(path, repos); err != nil {
		t.Fatalf("SaveDeps: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var envelopes []map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelopes); err != nil {
		t.Fatalf("SaveDeps output not valid JSON: %v", err)
	}
	if len(envelopes) != 1 {
		t.Errorf("SaveDeps wrote %d entries, want 1", len(envelopes))
	}
}
