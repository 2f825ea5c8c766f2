// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bot

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/ghapi"
)

// fakeSource is an in-memory CommentSource.
type fakeSource struct {
	issueComments  []ghapi.Comment
	reviewComments []ghapi.Comment
	reviews        []ghapi.Comment
	openPRs        []*ghapi.PullRequest
	closedPRs      []*ghapi.PullRequest
	posted         []string
	recentLimits   []int
}

func (f *fakeSource) IssueComments(ctx context.Context, number int) ([]ghapi.Comment, error) {
	return f.issueComments, nil
}

func (f *fakeSource) ReviewComments(ctx context.Context, number int) ([]ghapi.Comment, error) {
	return f.reviewComments, nil
}

func (f *fakeSource) Reviews(ctx context.Context, number int) ([]ghapi.Comment, error) {
	return f.reviews, nil
}

func (f *fakeSource) ListPRs(ctx context.Context, state string) ([]*ghapi.PullRequest, error) {
	if state == "closed" {
		return f.closedPRs, nil
	}
	return f.openPRs, nil
}

func (f *fakeSource) ListRecentPRs(ctx context.Context, state string, limit int) ([]*ghapi.PullRequest, error) {
	f.recentLimits = append(f.recentLimits, limit)
	prs := f.openPRs
	if state == "closed" {
		prs = f.closedPRs
	}
	if len(prs) > limit {
		prs = prs[:limit]
	}
	return prs, nil
}

func (f *fakeSource) PostComment(ctx context.Context, number int, body string) (string, error) {
	f.posted = append(f.posted, body)
	return "https://example.com/comment/1", nil
}

func newTestTracker(source *fakeSource) *Tracker {
	return NewTracker(source, "coderabbit", nil, slog.Default())
}

func TestHasBotReview_NoBotAnywhere(t *testing.T) {
	source := &fakeSource{
		issueComments:  []ghapi.Comment{{Author: "alice", Body: "lgtm"}},
		reviewComments: []ghapi.Comment{{Author: "bob", Body: "nit"}},
		reviews:        []ghapi.Comment{{Author: "carol", Body: "approve"}},
	}

	has, err := newTestTracker(source).HasBotReview(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestHasBotReview_UnionAcrossSurfaces(t *testing.T) {
	tests := []struct {
		name   string
		source *fakeSource
	}{
		{"issue comments only", &fakeSource{issueComments: []ghapi.Comment{{Author: "coderabbitai", Body: "hi"}}}},
		{"review comments only", &fakeSource{reviewComments: []ghapi.Comment{{Author: "CodeRabbit[bot]", Body: "hi"}}}},
		{"formal reviews only", &fakeSource{reviews: []ghapi.Comment{{Author: "coderabbit[bot]", Body: "hi"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			has, err := newTestTracker(tt.source).HasBotReview(context.Background(), 1)
			require.NoError(t, err)
			assert.True(t, has)
		})
	}
}

func TestClassify_RuleOrder(t *testing.T) {
	tests := []struct {
		body string
		want FindingType
	}{
		{"There is a security hole here", FindingDanger},
		{"security issue but also a suggestion and approved", FindingDanger},
		{"Found a bug in the loop", FindingDanger},
		{"This is a vulnerability", FindingDanger},
		{"A warning about style", FindingWarning},
		{"suggestion: rename this", FindingWarning},
		{"possible improvement here, looks good otherwise", FindingWarning},
		{"Looks good to me", FindingSuccess},
		{"LGTM, approved", FindingSuccess},
		{"All checks passed", FindingSuccess},
		{"Reviewed the diff", FindingInfo},
		{"", FindingInfo},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.body).Type)
		})
	}
}

func TestClassify_TruncatesDescription(t *testing.T) {
	body := strings.Repeat("x", 300)
	finding := classify(body)
	assert.Len(t, finding.Description, maxDescriptionLen+3)
	assert.True(t, strings.HasSuffix(finding.Description, "..."))

	short := classify("short body")
	assert.Equal(t, "short body", short.Description)
}

func TestClassify_TruncatesOnRuneBoundary(t *testing.T) {
	// Multi-byte bodies must be cut per character, never mid-sequence.
	body := strings.Repeat("é", 250)
	finding := classify(body)
	assert.True(t, utf8.ValidString(finding.Description))
	assert.Equal(t, maxDescriptionLen+3, utf8.RuneCountInString(finding.Description))
	assert.True(t, strings.HasSuffix(finding.Description, "..."))

	// A multi-byte body at exactly the limit is untouched.
	exact := strings.Repeat("é", maxDescriptionLen)
	assert.Equal(t, exact, classify(exact).Description)
}

func TestCollectFindings_SkipsHumans(t *testing.T) {
	source := &fakeSource{
		issueComments: []ghapi.Comment{
			{Author: "coderabbitai", Body: "LGTM, approved"},
			{Author: "alice", Body: "security problem!"},
		},
		reviewComments: []ghapi.Comment{
			{Author: "coderabbit[bot]", Body: "warning: unused variable"},
		},
	}

	findings, err := newTestTracker(source).CollectFindings(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, FindingSuccess, findings[0].Type)
	assert.Equal(t, FindingWarning, findings[1].Type)
}

func TestTriggerTestGeneration_PostsMention(t *testing.T) {
	source := &fakeSource{}
	require.NoError(t, newTestTracker(source).TriggerTestGeneration(context.Background(), 3))
	require.Len(t, source.posted, 1)
	assert.Equal(t, "@coderabbitai generate unit tests", source.posted[0])
}

func TestFindCompanionPR_OpenFirstMatchWins(t *testing.T) {
	source := &fakeSource{
		openPRs: []*ghapi.PullRequest{
			{Number: 3, Title: "Add unit tests for PR #3", Author: "coderabbitai"}, // original, skipped
			{Number: 7, Title: "Unrelated change", Author: "alice"},
			{Number: 4, Title: "Add unit tests for PR #3", Author: "coderabbitai"},
			{Number: 5, Title: "More unit tests", Author: "somebot"},
		},
	}

	pr, err := newTestTracker(source).FindCompanionPR(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 4, pr.Number)
}

func TestFindCompanionPR_GenericBotAuthorAccepted(t *testing.T) {
	source := &fakeSource{
		openPRs: []*ghapi.PullRequest{
			{Number: 9, Title: "Generated tests", Author: "some-other-bot"},
		},
	}

	pr, err := newTestTracker(source).FindCompanionPR(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 9, pr.Number)
}

func TestFindCompanionPR_HumanAuthorRejected(t *testing.T) {
	source := &fakeSource{
		openPRs: []*ghapi.PullRequest{
			{Number: 9, Title: "unit test cleanup", Author: "alice"},
		},
	}

	_, err := newTestTracker(source).FindCompanionPR(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNoCompanionPR)
}

func TestFindCompanionPR_ClosedFallbackWindow(t *testing.T) {
	closed := make([]*ghapi.PullRequest, 0, 12)
	for i := 100; i < 111; i++ {
		closed = append(closed, &ghapi.PullRequest{Number: i, Title: "chore", Author: "alice"})
	}
	// Outside the 10-PR window: must not be found.
	closed = append(closed, &ghapi.PullRequest{Number: 111, Title: "unit test for pr #3", Author: "coderabbitai"})

	source := &fakeSource{closedPRs: closed}
	_, err := newTestTracker(source).FindCompanionPR(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNoCompanionPR)

	// The closed listing itself is requested with the window as limit,
	// never unbounded.
	assert.Equal(t, []int{closedPRSearchWindow}, source.recentLimits)

	// Inside the window: found.
	source.closedPRs = closed[2:]
	pr, err := newTestTracker(source).FindCompanionPR(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 111, pr.Number)
}

func TestFindCompanionPR_BodyKeywordMatch(t *testing.T) {
	source := &fakeSource{
		openPRs: []*ghapi.PullRequest{
			{Number: 8, Title: "Chore", Body: "This adds a generated test suite", Author: "coderabbit[bot]"},
		},
	}

	pr, err := newTestTracker(source).FindCompanionPR(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 8, pr.Number)
}

func TestMarkerIdentity(t *testing.T) {
	isBot := MarkerIdentity("coderabbit")
	assert.True(t, isBot("coderabbitai"))
	assert.True(t, isBot("CodeRabbit[bot]"))
	assert.False(t, isBot("alice"))

	custom := MarkerIdentity("reviewdog")
	assert.True(t, custom("ReviewDog-Agent"))
	assert.False(t, custom("coderabbitai"))
}

func TestNewTracker_CustomIdentity(t *testing.T) {
	source := &fakeSource{
		issueComments: []ghapi.Comment{{Author: "alice", Body: "hello"}},
	}
	tracker := NewTracker(source, "coderabbit", func(login string) bool { return login == "alice" }, slog.Default())

	has, err := tracker.HasBotReview(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, has)
}
