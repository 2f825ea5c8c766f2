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
	"time"

	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath  string
	outputDir   string
	prState     string
	maxPRs      int
	skipTests   bool
	skipGPT     bool
	concurrency int
	waitPeriod  time.Duration

	rootCmd = &cobra.Command{
		Use:   "kodiak",
		Short: "A cli to assess pull request risk from bot reviews and generated tests",
		Long: `Kodiak correlates automated review findings, bot-generated unit
tests, sandboxed test execution, and LLM scoring into a per-PR
risk report for a repository.`,
		SilenceUsage: true,
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze [owner/repo]",
		Short: "Analyze a repository's pull requests and write a risk report",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze, // Defined in cmd_analyze.go
	}
)

func init() {
	analyzeCmd.Flags().StringVar(&configPath, "config", "config.yaml", "Path to the optional YAML config file")
	analyzeCmd.Flags().StringVar(&outputDir, "output-dir", "output", "Directory for results and logs")
	analyzeCmd.Flags().StringVar(&prState, "state", "open", "PR state to process: open, closed, or all")
	analyzeCmd.Flags().IntVar(&maxPRs, "max-prs", 0, "Maximum number of PRs to process (0 = no limit)")
	analyzeCmd.Flags().BoolVar(&skipTests, "skip-tests", false, "Skip test generation and sandbox execution")
	analyzeCmd.Flags().BoolVar(&skipGPT, "skip-gpt", false, "Skip LLM risk scoring")
	analyzeCmd.Flags().IntVar(&concurrency, "concurrency", 1, "Number of PRs processed in parallel")
	analyzeCmd.Flags().DurationVar(&waitPeriod, "wait", 0, "Grace period after triggering test generation (0 = config default)")

	rootCmd.AddCommand(analyzeCmd)
}
