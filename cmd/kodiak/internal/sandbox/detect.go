// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	"strings"

	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/fileset"
)

// Test invocations per detected ecosystem.
const (
	commandPytest   = "python -m pytest"
	commandUnittest = "python -m unittest discover"
	commandNPM      = "npm test"
	commandMaven    = "mvn test"
)

// DetectTestCommand inspects the merged file set and picks a test
// invocation. Only files whose path mentions "test" or "spec" count as
// test files; Python wins over other ecosystems, and pytest is the
// default when nothing identifies the framework.
func DetectTestCommand(files fileset.FileSet) string {
	var testPaths []string
	for p := range files {
		lower := strings.ToLower(p)
		if strings.Contains(lower, "test") || strings.Contains(lower, "spec") {
			testPaths = append(testPaths, p)
		}
	}

	hasPython := false
	hasJS := false
	hasJava := false
	for _, p := range testPaths {
		switch {
		case strings.HasSuffix(p, ".py"):
			hasPython = true
		case strings.HasSuffix(p, ".js"), strings.HasSuffix(p, ".ts"):
			hasJS = true
		case strings.HasSuffix(p, ".java"):
			hasJava = true
		}
	}

	switch {
	case hasPython:
		for _, p := range testPaths {
			if strings.Contains(files[p], "pytest") {
				return commandPytest
			}
		}
		for _, p := range testPaths {
			if strings.Contains(files[p], "unittest") {
				return commandUnittest
			}
		}
		return commandPytest
	case hasJS:
		return commandNPM
	case hasJava:
		return commandMaven
	default:
		return commandPytest
	}
}
