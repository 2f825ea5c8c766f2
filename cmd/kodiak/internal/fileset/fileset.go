// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fileset defines the path-to-content mapping that moves between
// the pipeline stages: files harvested from a pull request branch, test
// files from a companion PR, and the merged set materialized into a
// sandbox.
package fileset

import "sort"

// FileSet maps repository-relative file paths to full text content.
// Keys are unique; insertion order is irrelevant.
type FileSet map[string]string

// Merge combines sets left to right into a new FileSet. Later sets win
// on path collision, so callers pass test files last.
func Merge(sets ...FileSet) FileSet {
	merged := make(FileSet)
	for _, s := range sets {
		for path, content := range s {
			merged[path] = content
		}
	}
	return merged
}

// Paths returns the sorted list of paths in the set.
func (f FileSet) Paths() []string {
	paths := make([]string, 0, len(f))
	for p := range f {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
