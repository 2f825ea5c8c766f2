// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package score turns a PR's findings, test results, and code sample
// into a numeric risk assessment via an LLM chat completion.
package score

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/bot"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/fileset"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/ghapi"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/sandbox"
)

const systemPrompt = "You are a security and code quality analyst. " +
	"Analyze pull requests and provide risk assessments based on code type, " +
	"test coverage, and automated review findings."

// scoringTemperature keeps the model mostly deterministic while still
// allowing some judgment variance.
const scoringTemperature = 0.3

// FindingUpdate is the model's per-finding revision.
type FindingUpdate struct {
	Risk        int    `json:"risk"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Analysis is the structured outcome of one scoring call.
type Analysis struct {
	Risk          int                      `json:"risk"`
	Confidence    int                      `json:"confidence"`
	Reasoning     string                   `json:"reasoning"`
	ReviewUpdates map[string]FindingUpdate `json:"reviewUpdates,omitempty"`
}

// completionAPI is the slice of the OpenAI client the Scorer uses.
// *openai.Client satisfies it.
type completionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Scorer assesses pull request risk with a chat model.
type Scorer struct {
	client completionAPI
	model  string
	log    *slog.Logger
}

// NewScorer creates a Scorer using the given OpenAI client and model.
func NewScorer(client *openai.Client, model string, log *slog.Logger) *Scorer {
	return &Scorer{client: client, model: model, log: log}
}

// Analyze scores the pull request. It never fails: any error on the
// scoring path (transport, empty response, malformed JSON) collapses
// to a neutral default so the pipeline stage always completes.
func (s *Scorer) Analyze(ctx context.Context, pr *ghapi.PullRequest, findings []bot.ReviewFinding, exec *sandbox.ExecutionResult, codeFiles fileset.FileSet) *Analysis {
	prompt := buildPrompt(pr, findings, exec, codeFiles)

	analysis, err := s.complete(ctx, prompt)
	if err != nil {
		s.log.Warn("risk scoring failed, using default analysis",
			"pr", pr.Number, "error", err)
		return defaultAnalysis(err)
	}
	s.log.Info("pr scored", "pr", pr.Number,
		"risk", analysis.Risk, "confidence", analysis.Confidence)
	return analysis
}

func (s *Scorer) complete(ctx context.Context, prompt string) (*Analysis, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: scoringTemperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &analysis); err != nil {
		return nil, fmt.Errorf("parse analysis: %w", err)
	}
	return &analysis, nil
}

// defaultAnalysis is the neutral fallback: mid-scale risk, zero
// confidence, the error preserved in the reasoning for the report.
func defaultAnalysis(err error) *Analysis {
	return &Analysis{
		Risk:       50,
		Confidence: 0,
		Reasoning:  fmt.Sprintf("Error in risk analysis: %v", err),
	}
}

// ApplyUpdates folds the model's per-finding revisions back into the
// findings. Matching is by exact name; unmatched findings and unknown
// update keys are left untouched.
func ApplyUpdates(findings []bot.ReviewFinding, updates map[string]FindingUpdate) {
	if len(updates) == 0 {
		return
	}
	for i := range findings {
		update, ok := updates[findings[i].Name]
		if !ok {
			continue
		}
		if update.Type != "" {
			findings[i].Type = bot.FindingType(update.Type)
		}
		if update.Description != "" {
			findings[i].Description = update.Description
		}
	}
}
