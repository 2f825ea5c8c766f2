// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package score

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/bot"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/fileset"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/ghapi"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/sandbox"
)

func TestClassifyCode(t *testing.T) {
	cases := []struct {
		name  string
		files fileset.FileSet
		want  string
	}{
		{
			name:  "auth from file name",
			files: fileset.FileSet{"app/login.py": "def handle(): pass"},
			want:  "authentication",
		},
		{
			name:  "auth from content",
			files: fileset.FileSet{"app/core.py": "def refresh(token): ..."},
			want:  "authentication",
		},
		{
			name:  "database",
			files: fileset.FileSet{"app/models.py": "class User: pass"},
			want:  "database",
		},
		{
			name:  "api",
			files: fileset.FileSet{"app/routes.py": "def index(): pass"},
			want:  "api",
		},
		{
			name:  "payment",
			files: fileset.FileSet{"app/stripe_hooks.py": "def charge(): pass"},
			want:  "payment",
		},
		{
			name:  "auth outranks database",
			files: fileset.FileSet{"app/session.py": "import sqlalchemy"},
			want:  "authentication",
		},
		{
			name:  "general",
			files: fileset.FileSet{"app/utils.py": "def slugify(s): return s"},
			want:  "general",
		},
		{
			name:  "empty set",
			files: fileset.FileSet{},
			want:  "general",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyCode(tc.files))
		})
	}
}

func TestClassifyCode_SamplesFirstThreeFilesOnly(t *testing.T) {
	// Only the first three contents in path order are sampled; the
	// payment keyword in the fourth must not influence the label.
	files := fileset.FileSet{
		"a.py": "print(1)",
		"b.py": "print(2)",
		"c.py": "print(3)",
		"d.py": "import stripe",
	}
	assert.Equal(t, "general", ClassifyCode(files))
}

func TestTestCounts(t *testing.T) {
	cases := []struct {
		name       string
		output     string
		wantPassed int
		wantFailed int
	}{
		{"pytest summary", "===== 12 passed, 2 failed in 3.41s =====", 12, 2},
		{"only passed", "5 passed in 0.2s", 5, 0},
		{"only failed", "3 failed", 0, 3},
		{"no counts", "collected 0 items", 0, 0},
		{"empty", "", 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			passed, failed := TestCounts(tc.output)
			assert.Equal(t, tc.wantPassed, passed)
			assert.Equal(t, tc.wantFailed, failed)
		})
	}
}

func TestBuildPrompt_WithExecution(t *testing.T) {
	pr := &ghapi.PullRequest{
		Number: 7,
		Title:  "Add token refresh",
		Body:   strings.Repeat("x", 600),
	}
	findings := []bot.ReviewFinding{{Name: "Review 1", Type: bot.FindingDanger, Description: "token reuse"}}
	exec := &sandbox.ExecutionResult{Status: sandbox.StatusFailed, Output: "3 passed, 1 failed"}
	files := fileset.FileSet{"app/session.py": "def refresh(): pass"}

	prompt := buildPrompt(pr, findings, exec, files)

	assert.Contains(t, prompt, "Add token refresh")
	assert.Contains(t, prompt, "Code Type: authentication")
	assert.Contains(t, prompt, "Status: failed")
	assert.Contains(t, prompt, "Total Tests: 4")
	assert.Contains(t, prompt, "Passed: 3")
	assert.Contains(t, prompt, "Failed: 1")
	assert.Contains(t, prompt, `"Review 1"`)
	assert.Contains(t, prompt, "app/session.py")
	// Description is truncated to its budget.
	assert.NotContains(t, prompt, strings.Repeat("x", 501))
	assert.Contains(t, prompt, strings.Repeat("x", 500))
}

func TestBuildPrompt_TruncatesBodyOnRuneBoundary(t *testing.T) {
	pr := &ghapi.PullRequest{
		Number: 7,
		Title:  "Traducción",
		Body:   strings.Repeat("é", 600),
	}

	prompt := buildPrompt(pr, nil, nil, nil)
	assert.True(t, utf8.ValidString(prompt))
	assert.Contains(t, prompt, strings.Repeat("é", maxBodyChars))
	assert.NotContains(t, prompt, strings.Repeat("é", maxBodyChars+1))
}

func TestBuildPrompt_NoExecution(t *testing.T) {
	pr := &ghapi.PullRequest{Number: 7, Title: "Docs only"}

	prompt := buildPrompt(pr, nil, nil, nil)
	assert.Contains(t, prompt, "Status: no_tests")
	assert.Contains(t, prompt, "Output: N/A")
	assert.Contains(t, prompt, "Total Tests: 0")
}
