// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package buildgraph

import (
	"encoding/json"
	"sort"
	"strings"
)

// Repository is one global, deduplicated remote-source record: a distfile
// fetch, a checked-out repo, or a Chrome
// browser checkout. Each concrete type below is the complete set of
// parameters its corresponding repository rule takes.
type Repository interface {
	repositoryTag() string
}

// HttpFile is a plain HTTPS(-or-other)-fetched distfile.
type HttpFile struct {
	Name                string   `json:"name"`
	DownloadedFilePath  string   `json:"downloaded_file_path"`
	Integrity           string   `json:"integrity"`
	Urls                []string `json:"urls"`
}

func (HttpFile) repositoryTag() string { return "HttpFile" }

// GsFile is a distfile fetched from Google Cloud Storage (a gs:// URL).
type GsFile struct {
	Name               string `json:"name"`
	DownloadedFilePath string `json:"downloaded_file_path"`
	Url                string `json:"url"`
}

func (GsFile) repositoryTag() string { return "GsFile" }

// CipdFile is a distfile fetched from CIPD (a cipd:// URL).
type CipdFile struct {
	Name               string `json:"name"`
	DownloadedFilePath string `json:"downloaded_file_path"`
	Url                string `json:"url"`
}

func (CipdFile) repositoryTag() string { return "CipdFile" }

// RepoRepository is a checked-out `repo` project pinned to a tree hash.
type RepoRepository struct {
	Name    string `json:"name"`
	Project string `json:"project"`
	Tree    string `json:"tree"`
}

func (RepoRepository) repositoryTag() string { return "RepoRepository" }

// ChromeRepository is a Chrome browser checkout pinned to a version tag.
type ChromeRepository struct {
	Name    string `json:"name"`
	Tag     string `json:"tag"`
	Gclient string `json:"gclient"`
}

func (ChromeRepository) repositoryTag() string { return "ChromeRepository" }

// marshalRepository serializes a Repository the way an externally-tagged
// enum does: {"<Variant>": {...fields}}. encoding/json has no native
// support for externally-tagged unions, so the envelope is built by hand
// around the already-serialized payload.
func marshalRepository(r Repository) ([]byte, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	envelope := map[string]json.RawMessage{r.repositoryTag(): payload}
	return json.Marshal(envelope)
}

// RepositoryList is a []Repository that serializes each element as its
// tagged envelope, one key naming the repository rule and its value the
// rule's parameters.
type RepositoryList []Repository

func (l RepositoryList) MarshalJSON() ([]byte, error) {
	envelopes := make([]json.RawMessage, len(l))
	for i, r := range l {
		data, err := marshalRepository(r)
		if err != nil {
			return nil, err
		}
		envelopes[i] = data
	}
	return json.Marshal(envelopes)
}

func distURLKind(url string) string {
	switch {
	case strings.HasPrefix(url, "cipd://"):
		return "cipd"
	case strings.HasPrefix(url, "gs://"):
		return "gs"
	default:
		return "http"
	}
}

// BuildDistRepositories converts a flat, filename-deduplicated distfile
// list into the matching Repository variant, choosing by URL scheme:
// cipd:// wins over gs:// wins over everything else falling back to
// HttpFile.
func BuildDistRepositories(dists []DistFileEntry) RepositoryList {
	byFilename := map[string]DistFileEntry{}
	for _, d := range dists {
		byFilename[d.Filename] = d
	}

	var filenames []string
	for f := range byFilename {
		filenames = append(filenames, f)
	}
	sort.Strings(filenames)

	var out RepositoryList
	for _, filename := range filenames {
		d := byFilename[filename]
		if len(d.Urls) == 0 {
			continue
		}
		url := d.Urls[0]
		switch distURLKind(url) {
		case "cipd":
			out = append(out, CipdFile{Name: d.Name, DownloadedFilePath: d.Filename, Url: url})
		case "gs":
			out = append(out, GsFile{Name: d.Name, DownloadedFilePath: d.Filename, Url: url})
		default:
			out = append(out, HttpFile{Name: d.Name, DownloadedFilePath: d.Filename, Integrity: d.Integrity, Urls: d.Urls})
		}
	}
	return out
}
