// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline drives a pull request through the full risk
// workflow: bot review harvest, test generation, sandbox execution,
// and LLM risk scoring, then aggregates per-PR results into a batch
// report.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/bot"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/sandbox"
)

// Stage names the pipeline phases, in order. They appear in logs so a
// stalled run can be placed.
type Stage string

const (
	StageFetched         Stage = "fetched"
	StageBotChecked      Stage = "bot_checked"
	StageTestsTriggered  Stage = "tests_triggered"
	StageTestPRLocated   Stage = "test_pr_located"
	StageSandboxExecuted Stage = "sandbox_executed"
	StageScored          Stage = "scored"
	StageDone            Stage = "done"
)

// PipelineResult is the per-PR report entry. Risk stays zero unless
// the scoring stage completed; stage failures land in the *Error
// fields instead of aborting the entry.
type PipelineResult struct {
	ID             int                      `json:"id"`
	Title          string                   `json:"title"`
	Link           string                   `json:"link"`
	Risk           int                      `json:"risk"`
	Reviews        []bot.ReviewFinding      `json:"reviews"`
	GeneratedTests []sandbox.GeneratedTest  `json:"generatedTests"`
	TestResults    *sandbox.ExecutionResult `json:"testResults"`
	TestError      string                   `json:"testError,omitempty"`
	GPTError       string                   `json:"gptError,omitempty"`
	Error          string                   `json:"error,omitempty"`
}

// BatchResult is the whole-run report written to the output directory.
type BatchResult struct {
	Repository   string            `json:"repository"`
	ProcessedAt  time.Time         `json:"processedAt"`
	RunID        uuid.UUID         `json:"runId"`
	PullRequests []*PipelineResult `json:"pullRequests"`
}
