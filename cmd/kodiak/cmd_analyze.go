// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/bot"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/config"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/ghapi"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/pipeline"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/resolve"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/sandbox"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/score"
	"github.com/AleutianAI/kodiak/pkg/logging"
)

// runAnalyze wires the pipeline from configuration and drives one
// batch. All setup failures return before any PR is touched.
func runAnalyze(cmd *cobra.Command, args []string) error {
	owner, repo, err := parseRepoName(args[0])
	if err != nil {
		return err
	}
	if prState != "open" && prState != "closed" && prState != "all" {
		return fmt.Errorf("invalid --state %q: must be open, closed, or all", prState)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(skipTests, skipGPT); err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		LogDir:  filepath.Join(outputDir, "logs"),
		Service: "kodiak",
	})
	if err != nil {
		return err
	}
	defer logger.Close()
	logger.Info("starting analysis", "repository", owner+"/"+repo, "state", prState)

	gh := ghapi.NewClient(cfg.GitHubToken, owner, repo, logger.Logger)
	tracker := bot.NewTracker(gh, cfg.BotMarker, nil, logger.Logger)
	resolver := resolve.NewResolver(gh, logger.Logger)

	var factory pipeline.ExecutorFactory
	if !skipTests {
		sandboxes := sandbox.NewClient(cfg.SandboxURL, cfg.SandboxKey, logger.Logger)
		factory = func() pipeline.Executor {
			return sandbox.NewRunner(sandboxes, logger.Logger)
		}
	}

	var analyzer pipeline.Analyzer
	if !skipGPT {
		analyzer = score.NewScorer(openai.NewClient(cfg.OpenAIKey), cfg.OpenAIModel, logger.Logger)
	}

	wait := cfg.GenerationWait
	if waitPeriod > 0 {
		wait = waitPeriod
	}

	orchestrator := pipeline.NewOrchestrator(gh, tracker, factory, resolver, analyzer,
		pipeline.Options{
			SkipTests:      skipTests,
			SkipGPT:        skipGPT,
			GenerationWait: wait,
		}, logger.Logger)

	batch := pipeline.NewBatch(gh, orchestrator, pipeline.BatchOptions{
		Repository:  owner + "/" + repo,
		State:       prState,
		MaxPRs:      maxPRs,
		Concurrency: concurrency,
		OutputDir:   outputDir,
	}, logger.Logger)

	result, err := batch.Run(cmd.Context())
	if err != nil {
		return err
	}

	printSummary(os.Stdout, result)
	return nil
}

// parseRepoName splits an "owner/repo" identifier.
func parseRepoName(name string) (owner, repo string, err error) {
	parts := strings.Split(name, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format %q: expected owner/repo", name)
	}
	return parts[0], parts[1], nil
}
