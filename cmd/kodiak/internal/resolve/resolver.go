// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve reconstructs source-to-test dependency relationships
// without a build system: it extracts the modules a set of generated
// test files import, then maps those module names to concrete source
// files on the pull request's branch.
package resolve

import (
	"context"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/fileset"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/ghapi"
)

// RepoSource is the slice of the code-hosting API the resolver needs.
type RepoSource interface {
	BranchTree(ctx context.Context, sha string) ([]string, error)
	ChangedFiles(ctx context.Context, number int) ([]ghapi.ChangedFile, error)
	FileContent(ctx context.Context, path, ref string) (string, error)
}

// Resolver maps imported module names to source files.
type Resolver struct {
	repo RepoSource
	log  *slog.Logger
}

// NewResolver creates a Resolver backed by the given repository source.
func NewResolver(repo RepoSource, log *slog.Logger) *Resolver {
	return &Resolver{repo: repo, log: log}
}

// ResolveSourceFiles fetches the source files on the PR's head branch
// that match the imported module names. Matching policy:
//
//   - a file matches a module if its filename without extension equals
//     the module name, or its directory path contains a segment equal
//     to the module name
//   - test files, non-Python files, and files already in alreadyFetched
//     are never candidates
//   - the first matching file per module wins; no further fetches for
//     that module
//
// The method is best-effort: if the branch-wide tree listing fails it
// falls back to the PR's changed-file list, and individual fetch
// failures only skip that candidate. It never returns an error.
func (r *Resolver) ResolveSourceFiles(ctx context.Context, pr *ghapi.PullRequest, modules map[string]struct{}, alreadyFetched fileset.FileSet) fileset.FileSet {
	sources := make(fileset.FileSet)

	wanted := filterStdlib(modules)
	if len(wanted) == 0 {
		return sources
	}

	paths, err := r.repo.BranchTree(ctx, pr.HeadSHA)
	if err != nil {
		r.log.Warn("branch tree unavailable, falling back to changed files",
			"pr", pr.Number, "error", err)
		paths = r.changedFilePaths(ctx, pr.Number)
	}

	matched := make(map[string]bool, len(wanted))
	for _, p := range paths {
		if len(matched) == len(wanted) {
			break
		}
		if !isSourceCandidate(p, alreadyFetched, sources) {
			continue
		}

		for _, module := range wanted {
			if matched[module] || !moduleMatches(p, module) {
				continue
			}
			content, err := r.repo.FileContent(ctx, p, pr.HeadSHA)
			if err != nil {
				r.log.Warn("could not fetch source candidate", "path", p, "error", err)
				break
			}
			sources[p] = content
			matched[module] = true
			r.log.Debug("resolved import", "module", module, "path", p)
			break
		}
	}
	return sources
}

// changedFilePaths is the degraded listing used when the tree API
// fails. Errors here too are swallowed: the resolver returns whatever
// subset succeeded.
func (r *Resolver) changedFilePaths(ctx context.Context, number int) []string {
	changed, err := r.repo.ChangedFiles(ctx, number)
	if err != nil {
		r.log.Warn("changed-file listing unavailable", "pr", number, "error", err)
		return nil
	}
	paths := make([]string, 0, len(changed))
	for _, f := range changed {
		paths = append(paths, f.Path)
	}
	return paths
}

// filterStdlib drops runtime built-ins and returns a sorted slice for
// deterministic matching order.
func filterStdlib(modules map[string]struct{}) []string {
	wanted := make([]string, 0, len(modules))
	for m := range modules {
		if _, ok := stdlibModules[m]; ok {
			continue
		}
		wanted = append(wanted, m)
	}
	sort.Strings(wanted)
	return wanted
}

func isSourceCandidate(p string, already, sources fileset.FileSet) bool {
	if _, ok := already[p]; ok {
		return false
	}
	if _, ok := sources[p]; ok {
		return false
	}
	if strings.Contains(strings.ToLower(p), "test") {
		return false
	}
	if strings.HasSuffix(p, "_test.py") || strings.HasSuffix(p, "tests.py") {
		return false
	}
	return strings.HasSuffix(p, ".py")
}

func moduleMatches(p, module string) bool {
	base := path.Base(p)
	if strings.TrimSuffix(base, path.Ext(base)) == module {
		return true
	}
	for _, segment := range strings.Split(path.Dir(p), "/") {
		if segment == module {
			return true
		}
	}
	return false
}
