// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bot tracks an automated reviewer's activity on a pull
// request: detecting its reviews, harvesting and classifying its
// comments into findings, triggering test generation, and locating the
// companion PR that carries the generated tests.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/ghapi"
)

// maxDescriptionLen bounds the finding description excerpt.
const maxDescriptionLen = 200

// closedPRSearchWindow limits the companion-PR fallback search to the
// most recently listed closed PRs.
const closedPRSearchWindow = 10

// ErrNoCompanionPR indicates no generated-tests PR could be located.
var ErrNoCompanionPR = errors.New("no companion test pr found")

// FindingType classifies a review finding's severity.
type FindingType string

const (
	FindingDanger  FindingType = "danger"
	FindingWarning FindingType = "warning"
	FindingSuccess FindingType = "success"
	FindingInfo    FindingType = "info"
)

// ReviewFinding is one classified bot comment. The risk scorer may
// later overwrite Type and Description by name match.
type ReviewFinding struct {
	Name        string      `json:"name"`
	Type        FindingType `json:"type"`
	Description string      `json:"description"`
}

// classRule pairs a keyword set with the finding type it implies.
// Rules are evaluated top to bottom; first match wins.
type classRule struct {
	keywords []string
	finding  FindingType
}

// classRules is the ordered classification rule list. Order matters:
// "security" outranks "suggestion" even when both appear in a body.
var classRules = []classRule{
	{keywords: []string{"error", "bug", "security", "vulnerability"}, finding: FindingDanger},
	{keywords: []string{"warning", "suggestion", "improvement"}, finding: FindingWarning},
	{keywords: []string{"good", "approved", "passed"}, finding: FindingSuccess},
}

// CommentSource is the slice of the code-hosting API the tracker needs.
type CommentSource interface {
	IssueComments(ctx context.Context, number int) ([]ghapi.Comment, error)
	ReviewComments(ctx context.Context, number int) ([]ghapi.Comment, error)
	Reviews(ctx context.Context, number int) ([]ghapi.Comment, error)
	ListPRs(ctx context.Context, state string) ([]*ghapi.PullRequest, error)
	ListRecentPRs(ctx context.Context, state string, limit int) ([]*ghapi.PullRequest, error)
	PostComment(ctx context.Context, number int, body string) (string, error)
}

// IdentityFunc decides whether a login belongs to the tracked bot.
// Injectable so alternate bot identities can be registered without
// touching the tracker's control flow.
type IdentityFunc func(login string) bool

// MarkerIdentity returns the default identity predicate: the
// lower-cased login contains the marker substring.
func MarkerIdentity(marker string) IdentityFunc {
	marker = strings.ToLower(marker)
	return func(login string) bool {
		return strings.Contains(strings.ToLower(login), marker)
	}
}

// Tracker detects and harvests one bot's interactions with PRs.
type Tracker struct {
	source CommentSource
	isBot  IdentityFunc
	marker string
	log    *slog.Logger
}

// NewTracker creates a Tracker for the bot identified by marker.
// A nil identity falls back to MarkerIdentity(marker).
func NewTracker(source CommentSource, marker string, identity IdentityFunc, log *slog.Logger) *Tracker {
	if identity == nil {
		identity = MarkerIdentity(marker)
	}
	return &Tracker{source: source, isBot: identity, marker: strings.ToLower(marker), log: log}
}

// HasBotReview reports whether the bot appears on any of the three
// comment surfaces of the PR. The check is a union: one bot-authored
// entry on any surface is enough.
func (t *Tracker) HasBotReview(ctx context.Context, number int) (bool, error) {
	surfaces := []func(context.Context, int) ([]ghapi.Comment, error){
		t.source.IssueComments,
		t.source.ReviewComments,
		t.source.Reviews,
	}
	for _, list := range surfaces {
		comments, err := list(ctx, number)
		if err != nil {
			return false, err
		}
		for _, c := range comments {
			if t.isBot(c.Author) {
				return true, nil
			}
		}
	}
	return false, nil
}

// CollectFindings harvests the bot's comments from the issue and
// review-comment surfaces and classifies each into a ReviewFinding.
func (t *Tracker) CollectFindings(ctx context.Context, number int) ([]ReviewFinding, error) {
	issue, err := t.source.IssueComments(ctx, number)
	if err != nil {
		return nil, err
	}
	review, err := t.source.ReviewComments(ctx, number)
	if err != nil {
		return nil, err
	}

	var findings []ReviewFinding
	for _, c := range append(issue, review...) {
		if !t.isBot(c.Author) {
			continue
		}
		findings = append(findings, classify(c.Body))
	}
	t.log.Info("collected bot findings", "pr", number, "count", len(findings))
	return findings, nil
}

// TriggerTestGeneration asks the bot to generate unit tests by posting
// the trigger comment on the PR.
func (t *Tracker) TriggerTestGeneration(ctx context.Context, number int) error {
	url, err := t.source.PostComment(ctx, number, t.triggerBody())
	if err != nil {
		return fmt.Errorf("trigger test generation: %w", err)
	}
	t.log.Info("test generation triggered", "pr", number, "comment", url)
	return nil
}

// triggerBody builds the mention that asks the bot to generate tests.
// CodeRabbit answers to the "coderabbitai" handle rather than its
// marker, so that case is special.
func (t *Tracker) triggerBody() string {
	mention := t.marker
	if mention == "coderabbit" {
		mention = "coderabbitai"
	}
	return fmt.Sprintf("@%s generate unit tests", mention)
}

// FindCompanionPR locates the PR that carries bot-generated tests for
// the original PR. Open PRs are scanned first in listing order, then
// the most recent closed PRs. First match wins; there is deliberately
// no ranking among multiple matches. Returns ErrNoCompanionPR when
// nothing matches.
func (t *Tracker) FindCompanionPR(ctx context.Context, originalNumber int) (*ghapi.PullRequest, error) {
	open, err := t.source.ListPRs(ctx, "open")
	if err != nil {
		return nil, fmt.Errorf("list open prs: %w", err)
	}
	if pr := t.matchCompanion(open, originalNumber); pr != nil {
		return pr, nil
	}

	// The closed fallback only ever inspects the most recent PRs, so
	// the listing itself is capped rather than fetched in full.
	closed, err := t.source.ListRecentPRs(ctx, "closed", closedPRSearchWindow)
	if err != nil {
		return nil, fmt.Errorf("list closed prs: %w", err)
	}
	if pr := t.matchCompanion(closed, originalNumber); pr != nil {
		return pr, nil
	}

	return nil, ErrNoCompanionPR
}

func (t *Tracker) matchCompanion(prs []*ghapi.PullRequest, originalNumber int) *ghapi.PullRequest {
	keywords := []string{
		"unit test",
		"test for pr",
		"generated test",
		t.marker,
		fmt.Sprintf("pr #%d", originalNumber),
		fmt.Sprintf("pr %d", originalNumber),
	}

	for _, pr := range prs {
		if pr.Number == originalNumber {
			continue
		}
		title := strings.ToLower(pr.Title)
		body := strings.ToLower(pr.Body)

		matched := false
		for _, kw := range keywords {
			if strings.Contains(title, kw) || strings.Contains(body, kw) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if t.isBot(pr.Author) || strings.Contains(strings.ToLower(pr.Author), "bot") {
			return pr
		}
	}
	return nil
}

// classify builds a finding from a comment body using the ordered rule
// list, defaulting to info when no rule matches.
func classify(body string) ReviewFinding {
	finding := ReviewFinding{
		Name:        "Bot Review",
		Type:        FindingInfo,
		Description: truncate(body, maxDescriptionLen),
	}

	lower := strings.ToLower(body)
	for _, rule := range classRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				finding.Type = rule.finding
				return finding
			}
		}
	}
	return finding
}

// truncate cuts s to at most n characters, counting runes so a
// multi-byte character is never split mid-sequence.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
