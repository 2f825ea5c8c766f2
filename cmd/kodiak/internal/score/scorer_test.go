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
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/bot"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/ghapi"
	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/sandbox"
)

// fakeCompleter replays a canned completion and records the request.
type fakeCompleter struct {
	content string
	err     error
	empty   bool
	lastReq openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	if f.empty {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.content}},
		},
	}, nil
}

func fakeScorer(f *fakeCompleter) *Scorer {
	return &Scorer{client: f, model: "gpt-4o", log: slog.Default()}
}

var scoredPR = &ghapi.PullRequest{Number: 7, Title: "Add token refresh", Body: "Rotates session tokens."}

func TestAnalyze_ParsesResponse(t *testing.T) {
	fake := &fakeCompleter{content: `{
		"risk": 85,
		"confidence": 70,
		"reasoning": "touches session handling",
		"reviewUpdates": {
			"Review 1": {"risk": 90, "type": "danger", "description": "token reuse"}
		}
	}`}
	s := fakeScorer(fake)

	findings := []bot.ReviewFinding{{Name: "Review 1", Type: bot.FindingWarning}}
	exec := &sandbox.ExecutionResult{Status: sandbox.StatusPassed, Output: "5 passed"}
	analysis := s.Analyze(context.Background(), scoredPR, findings, exec, nil)

	assert.Equal(t, 85, analysis.Risk)
	assert.Equal(t, 70, analysis.Confidence)
	assert.Equal(t, "touches session handling", analysis.Reasoning)
	require.Contains(t, analysis.ReviewUpdates, "Review 1")
	assert.Equal(t, "danger", analysis.ReviewUpdates["Review 1"].Type)

	// Request shape: model, JSON response format, both messages.
	assert.Equal(t, "gpt-4o", fake.lastReq.Model)
	assert.InDelta(t, 0.3, fake.lastReq.Temperature, 1e-6)
	require.NotNil(t, fake.lastReq.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, fake.lastReq.ResponseFormat.Type)
	require.Len(t, fake.lastReq.Messages, 2)
	assert.Contains(t, fake.lastReq.Messages[1].Content, "Add token refresh")
}

func TestAnalyze_DefaultOnTransportError(t *testing.T) {
	s := fakeScorer(&fakeCompleter{err: errors.New("dial tcp: connection refused")})

	analysis := s.Analyze(context.Background(), scoredPR, nil, nil, nil)
	assert.Equal(t, 50, analysis.Risk)
	assert.Equal(t, 0, analysis.Confidence)
	assert.Contains(t, analysis.Reasoning, "Error")
}

func TestAnalyze_DefaultOnEmptyChoices(t *testing.T) {
	s := fakeScorer(&fakeCompleter{empty: true})

	analysis := s.Analyze(context.Background(), scoredPR, nil, nil, nil)
	assert.Equal(t, 50, analysis.Risk)
	assert.Contains(t, analysis.Reasoning, "Error")
}

func TestAnalyze_DefaultOnMalformedJSON(t *testing.T) {
	s := fakeScorer(&fakeCompleter{content: "the risk is high, trust me"})

	analysis := s.Analyze(context.Background(), scoredPR, nil, nil, nil)
	assert.Equal(t, 50, analysis.Risk)
	assert.Equal(t, 0, analysis.Confidence)
	assert.Contains(t, analysis.Reasoning, "Error")
}

func TestAnalyze_DefaultOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	s := NewScorer(openai.NewClientWithConfig(cfg), "gpt-4o", slog.Default())

	analysis := s.Analyze(context.Background(), scoredPR, nil, nil, nil)
	assert.Equal(t, 50, analysis.Risk)
	assert.Equal(t, 0, analysis.Confidence)
	assert.Contains(t, analysis.Reasoning, "Error")
}

func TestApplyUpdates(t *testing.T) {
	findings := []bot.ReviewFinding{
		{Name: "Review 1", Type: bot.FindingWarning, Description: "old"},
		{Name: "Review 2", Type: bot.FindingInfo, Description: "untouched"},
	}

	ApplyUpdates(findings, map[string]FindingUpdate{
		"Review 1": {Risk: 90, Type: "danger", Description: "sql injection"},
		"Review 9": {Risk: 10, Type: "success", Description: "no such finding"},
	})

	assert.Equal(t, bot.FindingDanger, findings[0].Type)
	assert.Equal(t, "sql injection", findings[0].Description)
	assert.Equal(t, bot.FindingInfo, findings[1].Type)
	assert.Equal(t, "untouched", findings[1].Description)
}

func TestApplyUpdates_PartialUpdateKeepsFields(t *testing.T) {
	findings := []bot.ReviewFinding{
		{Name: "Review 1", Type: bot.FindingWarning, Description: "original"},
	}

	ApplyUpdates(findings, map[string]FindingUpdate{
		"Review 1": {Risk: 60},
	})

	assert.Equal(t, bot.FindingWarning, findings[0].Type)
	assert.Equal(t, "original", findings[0].Description)
}
