// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/fileset"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/ghapi"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/sandbox"
)

// RepoFiles is the slice of the code-hosting API the file preparation
// helpers need.
type RepoFiles interface {
	BranchTree(ctx context.Context, sha string) ([]string, error)
	ChangedFiles(ctx context.Context, number int) ([]ghapi.ChangedFile, error)
	FileContent(ctx context.Context, path, ref string) (string, error)
}

// PrepareCodeFiles collects the Python source files on the PR's head
// branch, excluding test files. When the branch-wide tree listing
// fails it degrades to the PR's changed files. Per-file fetch failures
// skip that file; the call itself never fails.
func PrepareCodeFiles(ctx context.Context, repo RepoFiles, pr *ghapi.PullRequest, log *slog.Logger) fileset.FileSet {
	files := make(fileset.FileSet)

	paths, err := repo.BranchTree(ctx, pr.HeadSHA)
	if err != nil {
		log.Warn("branch tree unavailable, using changed files only",
			"pr", pr.Number, "error", err)
		return PrepareChangedFiles(ctx, repo, pr, log)
	}

	for _, p := range paths {
		if !strings.HasSuffix(p, ".py") || strings.Contains(strings.ToLower(p), "test") {
			continue
		}
		content, err := repo.FileContent(ctx, p, pr.HeadSHA)
		if err != nil {
			log.Warn("could not fetch branch file", "path", p, "error", err)
			continue
		}
		files[p] = content
	}
	return files
}

// PrepareChangedFiles fetches the content of the PR's added and
// modified files at its head commit. Removed files are skipped, as are
// files that fail to fetch.
func PrepareChangedFiles(ctx context.Context, repo RepoFiles, pr *ghapi.PullRequest, log *slog.Logger) fileset.FileSet {
	files := make(fileset.FileSet)

	changed, err := repo.ChangedFiles(ctx, pr.Number)
	if err != nil {
		log.Warn("changed-file listing unavailable", "pr", pr.Number, "error", err)
		return files
	}

	for _, f := range changed {
		if f.Status != "added" && f.Status != "modified" {
			continue
		}
		content, err := repo.FileContent(ctx, f.Path, pr.HeadSHA)
		if err != nil {
			log.Warn("could not fetch changed file", "path", f.Path, "error", err)
			continue
		}
		files[f.Path] = content
	}
	return files
}

var testFuncRe = regexp.MustCompile(`def\s+(test_\w+)`)

// deriveGeneratedTests extracts display descriptors from the generated
// test files: one entry per test_* function, or one per file when a
// test file defines no recognizable functions.
func deriveGeneratedTests(testFiles fileset.FileSet) []sandbox.GeneratedTest {
	var tests []sandbox.GeneratedTest
	for _, p := range testFiles.Paths() {
		if !strings.Contains(strings.ToLower(p), "test") || !strings.HasSuffix(p, ".py") {
			continue
		}

		matches := testFuncRe.FindAllStringSubmatch(testFiles[p], -1)
		for _, m := range matches {
			tests = append(tests, sandbox.GeneratedTest{
				Test:   titleCase(strings.ReplaceAll(m[1], "_", " ")),
				Reason: "Generated by review bot based on code analysis",
			})
		}
		if len(matches) == 0 {
			name := strings.TrimSuffix(path.Base(p), ".py")
			tests = append(tests, sandbox.GeneratedTest{
				Test:   titleCase(strings.ReplaceAll(name, "_", " ")),
				Reason: "Generated by review bot",
			})
		}
	}
	return tests
}

// titleCase upper-cases the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
