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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/bot"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/ghapi"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/sandbox"
)

// checkpointEvery sets how many completed PRs trigger an intermediate
// results write.
const checkpointEvery = 5

// PRLister lists pull requests by state.
type PRLister interface {
	ListPRs(ctx context.Context, state string) ([]*ghapi.PullRequest, error)
}

// Processor runs one PR through the pipeline.
type Processor interface {
	ProcessPR(ctx context.Context, listed *ghapi.PullRequest) (*PipelineResult, error)
}

// BatchOptions control the scope of one batch run.
type BatchOptions struct {
	Repository  string // owner/repo, for the report header
	State       string // open, closed, or all
	MaxPRs      int    // 0 means unlimited
	Concurrency int    // <=1 means sequential
	OutputDir   string
}

// Batch processes every listed PR and writes the aggregate report.
type Batch struct {
	lister    PRLister
	processor Processor
	opts      BatchOptions
	log       *slog.Logger
}

// NewBatch creates a batch driver.
func NewBatch(lister PRLister, processor Processor, opts BatchOptions, log *slog.Logger) *Batch {
	return &Batch{lister: lister, processor: processor, opts: opts, log: log}
}

// Run lists the PRs in scope and processes each one. A PR that fails
// or panics becomes an error entry; only listing failures and an
// unwritable output directory abort the run. Results keep listing
// order regardless of concurrency, and intermediate checkpoints are
// written every few completions to the same per-run file as the final
// report.
func (b *Batch) Run(ctx context.Context) (*BatchResult, error) {
	prs, err := b.listPRs(ctx)
	if err != nil {
		return nil, err
	}
	if b.opts.MaxPRs > 0 && len(prs) > b.opts.MaxPRs {
		prs = prs[:b.opts.MaxPRs]
	}
	b.log.Info("batch started", "repository", b.opts.Repository,
		"state", b.opts.State, "prs", len(prs))

	if err := os.MkdirAll(b.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	result := &BatchResult{
		Repository:   b.opts.Repository,
		ProcessedAt:  time.Now().UTC(),
		RunID:        uuid.New(),
		PullRequests: make([]*PipelineResult, len(prs)),
	}
	outPath := filepath.Join(b.opts.OutputDir,
		fmt.Sprintf("results_%s.json", result.ProcessedAt.Format("20060102_150405")))

	var (
		mu        sync.Mutex
		completed int
	)
	g, gctx := errgroup.WithContext(ctx)
	concurrency := b.opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	g.SetLimit(concurrency)

	for i, pr := range prs {
		i, pr := i, pr
		g.Go(func() error {
			entry := b.processOne(gctx, pr)

			mu.Lock()
			result.PullRequests[i] = entry
			completed++
			checkpoint := completed%checkpointEvery == 0 && completed < len(prs)
			if checkpoint {
				b.writeResults(outPath, result)
				b.log.Info("checkpoint saved", "completed", completed, "total", len(prs))
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; entries carry failures

	b.writeResults(outPath, result)

	successful := 0
	for _, pr := range result.PullRequests {
		if pr.Error == "" {
			successful++
		}
	}
	b.log.Info("batch complete", "processed", len(result.PullRequests),
		"successful", successful, "failed", len(result.PullRequests)-successful,
		"results", outPath)
	return result, nil
}

// processOne isolates a single PR: a returned error or a panic in the
// pipeline becomes an error entry instead of sinking the batch.
func (b *Batch) processOne(ctx context.Context, pr *ghapi.PullRequest) (entry *PipelineResult) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("pipeline panicked", "pr", pr.Number, "panic", r)
			entry = errorEntry(pr, fmt.Errorf("panic: %v", r))
		}
	}()

	b.log.Info("processing pr", "pr", pr.Number, "title", pr.Title)
	result, err := b.processor.ProcessPR(ctx, pr)
	if err != nil {
		b.log.Error("pr processing failed", "pr", pr.Number, "error", err)
		return errorEntry(pr, err)
	}
	return result
}

func (b *Batch) listPRs(ctx context.Context) ([]*ghapi.PullRequest, error) {
	if b.opts.State != "all" {
		return b.lister.ListPRs(ctx, b.opts.State)
	}
	open, err := b.lister.ListPRs(ctx, "open")
	if err != nil {
		return nil, err
	}
	closed, err := b.lister.ListPRs(ctx, "closed")
	if err != nil {
		return nil, err
	}
	return append(open, closed...), nil
}

// writeResults persists the report. Checkpoint write failures are
// logged and tolerated; losing an intermediate snapshot must not stop
// the batch.
func (b *Batch) writeResults(path string, result *BatchResult) {
	snapshot := *result
	snapshot.PullRequests = make([]*PipelineResult, 0, len(result.PullRequests))
	for _, pr := range result.PullRequests {
		if pr != nil {
			snapshot.PullRequests = append(snapshot.PullRequests, pr)
		}
	}

	data, err := json.MarshalIndent(&snapshot, "", "  ")
	if err != nil {
		b.log.Error("could not encode results", "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		b.log.Error("could not write results", "path", path, "error", err)
	}
}

func errorEntry(pr *ghapi.PullRequest, err error) *PipelineResult {
	return &PipelineResult{
		ID:             pr.Number,
		Title:          pr.Title,
		Link:           pr.HTMLURL,
		Risk:           0,
		Reviews:        []bot.ReviewFinding{},
		GeneratedTests: []sandbox.GeneratedTest{},
		Error:          err.Error(),
	}
}
