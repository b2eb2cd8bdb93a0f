// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ebuild drives a controlled shell to evaluate an ebuild's
// shell-language metadata into typed variables, caching results per ebuild
// path so concurrent callers evaluate each path at most once.
package ebuild

import (
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"cros.local/depgraph/internal/shellvalue"
	"cros.local/depgraph/internal/version"
)

//go:embed prelude.sh
var preludeScript []byte

// BasicData is purely derived from an ebuild's path.
type BasicData struct {
	RepoName    string
	EbuildPath  string
	Category    string
	ShortName   string
	PackageName string // "category/short_name"
	Version     *version.Version
}

// DeriveBasicData validates and extracts path info: file extension must be
// .ebuild; file stem is
// short_name-version; parent directory basename must equal short_name;
// grandparent basename is the category.
func DeriveBasicData(repoName, ebuildPath string) (*BasicData, error) {
	if filepath.Ext(ebuildPath) != ".ebuild" {
		return nil, fmt.Errorf("ebuild: %s: does not end in .ebuild", ebuildPath)
	}
	stem := strings.TrimSuffix(filepath.Base(ebuildPath), ".ebuild")

	dir := filepath.Dir(ebuildPath)
	shortName := filepath.Base(dir)
	category := filepath.Base(filepath.Dir(dir))

	prefix := shortName + "-"
	if !strings.HasPrefix(stem, prefix) {
		return nil, fmt.Errorf("ebuild: %s: file stem %q does not start with directory name %q", ebuildPath, stem, prefix)
	}
	ver, err := version.Parse(stem[len(prefix):])
	if err != nil {
		return nil, fmt.Errorf("ebuild: %s: %w", ebuildPath, err)
	}

	return &BasicData{
		RepoName:    repoName,
		EbuildPath:  ebuildPath,
		Category:    category,
		ShortName:   shortName,
		PackageName: category + "/" + shortName,
		Version:     ver,
	}, nil
}

// Metadata is an ebuild's successfully evaluated variables.
// Every ebuild variable consumed downstream (EAPI, SLOT,
// KEYWORDS, IUSE, DEPEND and friends, ...) is a plain scalar, so Vars
// flattens the captured shell values to strings rather than carrying
// shellvalue's full array-aware Value type.
type Metadata struct {
	BasicData
	Vars map[string]string
}

// EvalError is a captured per-ebuild evaluation failure: the shell exited
// nonzero, or produced unexpected stdout/stderr.
type EvalError struct {
	BasicData
	Message string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("ebuild: evaluating %s: %s", e.EbuildPath, e.Message)
}

// MaybeMetadata is the Ok(Metadata) | Err(EvalError) union threaded through
// the pipeline.
type MaybeMetadata struct {
	OK  *Metadata
	Err *EvalError
}

// cell is a lazily-initialized, exactly-once-evaluated cache entry.
type cell struct {
	once   sync.Once
	result MaybeMetadata
	err    error
}

// Evaluator evaluates ebuilds via a controlled shell, caching by path.
// Safe for concurrent use; a given path is evaluated at most once.
type Evaluator struct {
	shellPath string
	toolsDir  string

	mu    sync.Mutex
	cells map[string]*cell
}

// NewEvaluator constructs an Evaluator. toolsDir is placed on PATH for the
// duration of ebuild evaluation. shellPath
// selects the interpreter (typically "/bin/bash").
func NewEvaluator(shellPath, toolsDir string) *Evaluator {
	return &Evaluator{shellPath: shellPath, toolsDir: toolsDir, cells: map[string]*cell{}}
}

func (e *Evaluator) getCell(path string) *cell {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.cells[path]
	if !ok {
		c = &cell{}
		e.cells[path] = c
	}
	return c
}

// EclassDirsProvider supplies a repository's eclass search path for a given
// ebuild path; callers typically pass repository.Repository.EclassDirs via
// a small closure, keeping this package independent of the repository
// package.
type EclassDirsProvider func(ebuildPath string) (repoName string, eclassDirs []string, err error)

// Evaluate returns the cached MaybeMetadata for ebuildPath, evaluating it
// at most once. A non-nil error is a fatal structural failure;
// a per-ebuild shell failure is captured in the returned MaybeMetadata.Err
// instead.
func (e *Evaluator) Evaluate(ebuildPath string, dirs EclassDirsProvider) (MaybeMetadata, error) {
	c := e.getCell(ebuildPath)
	c.once.Do(func() {
		c.result, c.err = e.evaluateUncached(ebuildPath, dirs)
	})
	return c.result, c.err
}

func (e *Evaluator) evaluateUncached(ebuildPath string, dirs EclassDirsProvider) (MaybeMetadata, error) {
	repoName, eclassDirs, err := dirs(ebuildPath)
	if err != nil {
		return MaybeMetadata{}, fmt.Errorf("ebuild: %w", err)
	}

	basic, err := DeriveBasicData(repoName, ebuildPath)
	if err != nil {
		return MaybeMetadata{}, err
	}

	captureFile, err := os.CreateTemp("", "ebuild-capture-*")
	if err != nil {
		return MaybeMetadata{}, fmt.Errorf("ebuild: creating capture file: %w", err)
	}
	capturePath := captureFile.Name()
	captureFile.Close()
	defer os.Remove(capturePath)

	pv := basic.Version.String()
	pr := "r0"
	if i := strings.LastIndex(pv, "-r"); i >= 0 {
		pr = pv[i+1:]
	}

	cmd := exec.Command(e.shellPath)
	cmd.Stdin = strings.NewReader(string(preludeScript))
	cmd.Env = []string{
		"P=" + basic.ShortName + "-" + basic.Version.WithoutRevision().String(),
		"PF=" + basic.ShortName + "-" + pv,
		"PN=" + basic.ShortName,
		"CATEGORY=" + basic.Category,
		"PV=" + basic.Version.WithoutRevision().String(),
		"PR=" + pr,
		"PVR=" + pv,
		"EBUILD_PATH=" + ebuildPath,
		"CAPTURE_FILE=" + capturePath,
		"ECLASS_DIRS=" + strings.Join(eclassDirs, "\n"),
		"PATH=" + e.toolsDir,
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil || stdout.Len() > 0 || stderr.Len() > 0 {
		snippet := stdout.String() + stderr.String()
		if len(snippet) > 2048 {
			snippet = snippet[:2048] + "...(truncated)"
		}
		msg := "shell produced unexpected output"
		if runErr != nil {
			msg = fmt.Sprintf("shell exited with error: %v", runErr)
		}
		return MaybeMetadata{Err: &EvalError{BasicData: *basic, Message: msg + ": " + snippet}}, nil
	}

	data, err := os.ReadFile(capturePath)
	if err != nil {
		return MaybeMetadata{}, fmt.Errorf("ebuild: reading capture file for %s: %w", ebuildPath, err)
	}
	parsed, err := shellvalue.Parse(string(data))
	if err != nil {
		return MaybeMetadata{Err: &EvalError{BasicData: *basic, Message: "parsing captured variables: " + err.Error()}}, nil
	}
	vars := make(map[string]string, len(parsed))
	for k, v := range parsed {
		vars[k] = v.String()
	}

	return MaybeMetadata{OK: &Metadata{BasicData: *basic, Vars: vars}}, nil
}
