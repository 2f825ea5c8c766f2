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
	"errors"
	"log/slog"
	"time"

	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/bot"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/fileset"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/ghapi"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/resolve"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/sandbox"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/score"
)

// defaultGenerationWait is the grace period between triggering test
// generation and looking for the companion PR.
const defaultGenerationWait = 10 * time.Second

// GitHub is the code-hosting surface the orchestrator needs.
type GitHub interface {
	RepoFiles
	GetPR(ctx context.Context, number int) (*ghapi.PullRequest, error)
}

// ReviewTracker is the bot-tracking surface of the pipeline.
type ReviewTracker interface {
	HasBotReview(ctx context.Context, number int) (bool, error)
	CollectFindings(ctx context.Context, number int) ([]bot.ReviewFinding, error)
	TriggerTestGeneration(ctx context.Context, number int) error
	FindCompanionPR(ctx context.Context, originalNumber int) (*ghapi.PullRequest, error)
}

// Executor runs generated tests in an isolated environment.
type Executor interface {
	Provision(ctx context.Context) error
	Materialize(ctx context.Context, files fileset.FileSet) error
	InstallDependencies(ctx context.Context, packages []string) error
	Execute(ctx context.Context, command string) (*sandbox.ExecutionResult, error)
	Dispose(ctx context.Context)
}

// ExecutorFactory builds a fresh Executor per PR. Sandboxes are
// single-use, so the orchestrator cannot hold one directly.
type ExecutorFactory func() Executor

// SourceResolver maps test-file imports back to source files.
type SourceResolver interface {
	ResolveSourceFiles(ctx context.Context, pr *ghapi.PullRequest, modules map[string]struct{}, alreadyFetched fileset.FileSet) fileset.FileSet
}

// Analyzer scores a PR's risk. Implementations must not fail; a
// degraded analysis is still an analysis.
type Analyzer interface {
	Analyze(ctx context.Context, pr *ghapi.PullRequest, findings []bot.ReviewFinding, exec *sandbox.ExecutionResult, codeFiles fileset.FileSet) *score.Analysis
}

// Options control which pipeline stages run.
type Options struct {
	SkipTests      bool
	SkipGPT        bool
	GenerationWait time.Duration
}

// Orchestrator runs one PR through the pipeline stages.
type Orchestrator struct {
	github      GitHub
	tracker     ReviewTracker
	newExecutor ExecutorFactory
	resolver    SourceResolver
	analyzer    Analyzer
	opts        Options
	log         *slog.Logger
}

// NewOrchestrator wires the pipeline collaborators together. Executor
// and analyzer may be nil when the corresponding stage is skipped.
func NewOrchestrator(github GitHub, tracker ReviewTracker, newExecutor ExecutorFactory, resolver SourceResolver, analyzer Analyzer, opts Options, log *slog.Logger) *Orchestrator {
	if opts.GenerationWait <= 0 {
		opts.GenerationWait = defaultGenerationWait
	}
	return &Orchestrator{
		github:      github,
		tracker:     tracker,
		newExecutor: newExecutor,
		resolver:    resolver,
		analyzer:    analyzer,
		opts:        opts,
		log:         log,
	}
}

// ProcessPR runs the full workflow for one PR. Stage failures after
// the bot check are recorded on the result rather than returned: an
// error return means no usable entry could be produced at all.
func (o *Orchestrator) ProcessPR(ctx context.Context, listed *ghapi.PullRequest) (*PipelineResult, error) {
	pr, err := o.github.GetPR(ctx, listed.Number)
	if err != nil {
		return nil, err
	}

	result := &PipelineResult{
		ID:             pr.Number,
		Title:          pr.Title,
		Link:           pr.HTMLURL,
		Reviews:        []bot.ReviewFinding{},
		GeneratedTests: []sandbox.GeneratedTest{},
	}
	o.log.Info("pipeline stage", "pr", pr.Number, "stage", StageFetched)

	hasReview, err := o.tracker.HasBotReview(ctx, pr.Number)
	if err != nil {
		return nil, err
	}
	if hasReview {
		findings, err := o.tracker.CollectFindings(ctx, pr.Number)
		if err != nil {
			return nil, err
		}
		if findings != nil {
			result.Reviews = findings
		}
	}
	o.log.Info("pipeline stage", "pr", pr.Number, "stage", StageBotChecked,
		"findings", len(result.Reviews))

	if !o.opts.SkipTests {
		o.runTestStage(ctx, pr, result)
	}
	if !o.opts.SkipGPT {
		o.runScoreStage(ctx, pr, result)
	}

	o.log.Info("pipeline stage", "pr", pr.Number, "stage", StageDone,
		"risk", result.Risk)
	return result, nil
}

// runTestStage triggers test generation, waits out the grace period,
// locates the companion PR, and executes its tests. Failures land in
// TestError; a missing companion PR is expected and only logged.
func (o *Orchestrator) runTestStage(ctx context.Context, pr *ghapi.PullRequest, result *PipelineResult) {
	if err := o.tracker.TriggerTestGeneration(ctx, pr.Number); err != nil {
		result.TestError = err.Error()
		return
	}
	o.log.Info("pipeline stage", "pr", pr.Number, "stage", StageTestsTriggered)

	timer := time.NewTimer(o.opts.GenerationWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		result.TestError = ctx.Err().Error()
		return
	case <-timer.C:
	}

	companion, err := o.tracker.FindCompanionPR(ctx, pr.Number)
	if errors.Is(err, bot.ErrNoCompanionPR) {
		o.log.Warn("companion test pr not found yet, may need more time", "pr", pr.Number)
		return
	}
	if err != nil {
		result.TestError = err.Error()
		return
	}
	o.log.Info("pipeline stage", "pr", pr.Number, "stage", StageTestPRLocated,
		"companion", companion.Number)

	exec := o.executeTests(ctx, pr, companion)
	result.TestResults = exec
	if exec.GeneratedTests != nil {
		result.GeneratedTests = exec.GeneratedTests
	}
	o.log.Info("pipeline stage", "pr", pr.Number, "stage", StageSandboxExecuted,
		"status", exec.Status)
}

// executeTests assembles the file set and drives the sandbox protocol.
// It always returns a result; failures set status error with the cause
// recorded on the result itself.
func (o *Orchestrator) executeTests(ctx context.Context, pr, companion *ghapi.PullRequest) *sandbox.ExecutionResult {
	failed := func(err error) *sandbox.ExecutionResult {
		return &sandbox.ExecutionResult{
			Status:         sandbox.StatusError,
			GeneratedTests: []sandbox.GeneratedTest{},
			Error:          err.Error(),
		}
	}

	codeFiles := PrepareCodeFiles(ctx, o.github, pr, o.log)
	testFiles := PrepareChangedFiles(ctx, o.github, companion, o.log)
	if len(testFiles) == 0 {
		return &sandbox.ExecutionResult{
			Status:         sandbox.StatusNoTests,
			GeneratedTests: []sandbox.GeneratedTest{},
		}
	}

	modules := resolve.ExtractImportedModules(ctx, testFiles)
	if len(modules) > 0 {
		sources := o.resolver.ResolveSourceFiles(ctx, pr, modules, codeFiles)
		codeFiles = fileset.Merge(codeFiles, sources)
	}

	executor := o.newExecutor()
	if err := executor.Provision(ctx); err != nil {
		return failed(err)
	}
	defer executor.Dispose(ctx)

	merged := fileset.Merge(codeFiles, testFiles)
	if err := executor.Materialize(ctx, merged); err != nil {
		return failed(err)
	}
	if err := executor.InstallDependencies(ctx, nil); err != nil {
		return failed(err)
	}

	exec, err := executor.Execute(ctx, sandbox.DetectTestCommand(merged))
	if err != nil {
		return failed(err)
	}
	exec.GeneratedTests = deriveGeneratedTests(testFiles)
	return exec
}

// runScoreStage invokes the risk scorer and folds its verdict into the
// result. The scorer itself degrades rather than fails, so GPTError
// only records a cancelled context.
func (o *Orchestrator) runScoreStage(ctx context.Context, pr *ghapi.PullRequest, result *PipelineResult) {
	if err := ctx.Err(); err != nil {
		result.GPTError = err.Error()
		return
	}

	codeFiles := PrepareCodeFiles(ctx, o.github, pr, o.log)
	analysis := o.analyzer.Analyze(ctx, pr, result.Reviews, result.TestResults, codeFiles)
	result.Risk = analysis.Risk
	score.ApplyUpdates(result.Reviews, analysis.ReviewUpdates)
	o.log.Info("pipeline stage", "pr", pr.Number, "stage", StageScored,
		"risk", analysis.Risk, "confidence", analysis.Confidence)
}
