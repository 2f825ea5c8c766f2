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
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/bot"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/fileset"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/ghapi"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/sandbox"
)

// Truncation limits keep the prompt inside a sane token budget.
const (
	maxBodyChars   = 500
	maxOutputChars = 1000
	maxFileNames   = 10
)

// codeTypeRules classify a PR's subject matter. First match wins, so
// the order encodes precedence: authentication outranks everything.
var codeTypeRules = []struct {
	category string
	keywords []string
}{
	{"authentication", []string{"auth", "login", "token", "password", "session"}},
	{"database", []string{"db", "database", "sql", "query", "model"}},
	{"api", []string{"api", "endpoint", "route", "handler"}},
	{"payment", []string{"payment", "stripe", "paypal", "billing"}},
}

// ClassifyCode labels the subject-matter category of a file set by
// scanning file names plus a sample of up to three file contents. It
// only emits a label; risk weighting is left to the model.
func ClassifyCode(files fileset.FileSet) string {
	paths := files.Paths()
	var sb strings.Builder
	for _, p := range paths {
		sb.WriteString(p)
		sb.WriteByte(' ')
	}
	for i, p := range paths {
		if i == 3 {
			break
		}
		sb.WriteString(files[p])
		sb.WriteByte(' ')
	}
	combined := strings.ToLower(sb.String())

	for _, rule := range codeTypeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(combined, kw) {
				return rule.category
			}
		}
	}
	return "general"
}

var (
	passedRe = regexp.MustCompile(`(\d+)\s+passed`)
	failedRe = regexp.MustCompile(`(\d+)\s+failed`)
)

// TestCounts extracts pass/fail counts from raw test-runner output.
// A missing token yields zero, not an error.
func TestCounts(output string) (passed, failed int) {
	if m := passedRe.FindStringSubmatch(output); m != nil {
		passed, _ = strconv.Atoi(m[1])
	}
	if m := failedRe.FindStringSubmatch(output); m != nil {
		failed, _ = strconv.Atoi(m[1])
	}
	return passed, failed
}

// buildPrompt assembles the user message for the scoring call. The
// findings are rendered as indented JSON so the model can echo their
// names back in reviewUpdates.
func buildPrompt(pr *ghapi.PullRequest, findings []bot.ReviewFinding, exec *sandbox.ExecutionResult, codeFiles fileset.FileSet) string {
	codeType := ClassifyCode(codeFiles)

	status := string(sandbox.StatusNoTests)
	output := ""
	passed, failed := 0, 0
	if exec != nil {
		status = string(exec.Status)
		output = exec.Output
		passed, failed = TestCounts(output)
	}

	findingsJSON, err := json.MarshalIndent(findings, "", "  ")
	if err != nil {
		findingsJSON = []byte("[]")
	}

	names := codeFiles.Paths()
	if len(names) > maxFileNames {
		names = names[:maxFileNames]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `Analyze this pull request and provide a risk assessment.

PR Information:
- Title: %s
- Description: %s
- Code Type: %s

Review Bot Findings (%d):
%s

Test Results:
- Status: %s
- Total Tests: %d
- Passed: %d
- Failed: %d
- Output: %s

Code Files (%d):
%s
`,
		pr.Title, truncate(pr.Body, maxBodyChars), codeType,
		len(findings), findingsJSON,
		status, passed+failed, passed, failed, truncateOrNA(exec, output),
		len(codeFiles), strings.Join(names, ", "))

	sb.WriteString(`
Provide a JSON response with the following structure:
{
    "risk": <number 0-100>,
    "confidence": <number 0-100>,
    "reasoning": "<explanation>",
    "reviewUpdates": {
        "<finding_name>": {
            "risk": <number 0-100>,
            "type": "<danger|warning|success|info>",
            "description": "<updated description>"
        }
    }
}

IMPORTANT: The reviewUpdates keys must match the finding names listed above. Update each finding with an appropriate risk score and description based on your analysis.

Risk Assessment Guidelines:
- Critical (80-100): Authentication, database operations, payment processing, security-sensitive code
- High (60-79): API endpoints, data validation, file operations
- Medium (40-59): Business logic, utilities, helpers
- Low (0-39): UI changes, documentation, configuration

Confidence Guidelines:
- High (80-100): Many tests passed, comprehensive coverage
- Medium (50-79): Some tests passed, moderate coverage
- Low (0-49): Few/no tests passed, limited coverage

Weigh each finding by:
1. Code type (auth/DB = critical)
2. Test coverage (more passed = higher confidence)
3. Finding severity (danger = high risk, warning = medium, success = low)
`)
	return sb.String()
}

// truncate cuts s to at most limit characters on a rune boundary.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func truncateOrNA(exec *sandbox.ExecutionResult, output string) string {
	if exec == nil {
		return "N/A"
	}
	return truncate(output, maxOutputChars)
}
