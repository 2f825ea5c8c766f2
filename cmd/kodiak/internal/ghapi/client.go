// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ghapi wraps the GitHub REST API behind the narrow surface the
// pipeline consumes: pull request snapshots, the three comment surfaces,
// changed-file listings, branch trees, and file content.
//
// Every method is rate limited with a shared token bucket so a large
// batch run stays under GitHub's secondary rate limits.
package ghapi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v68/github"
	"golang.org/x/time/rate"
)

// requestsPerSecond caps outbound API calls. GitHub's secondary limits
// trip near 900 points/minute for REST reads.
const requestsPerSecond = 8

// PullRequest is an immutable snapshot of a pull request, fetched once
// per pipeline run.
type PullRequest struct {
	Number  int
	Title   string
	Body    string
	State   string
	HTMLURL string
	Author  string
	HeadSHA string
	HeadRef string
}

// Comment is a single comment or review body from any surface.
type Comment struct {
	Author string
	Body   string
	URL    string
}

// ChangedFile is one entry of a PR's changed-file listing.
type ChangedFile struct {
	Path   string
	Status string // added, modified, removed, renamed
}

// Client is a rate-limited GitHub API client scoped to one repository.
type Client struct {
	gh      *github.Client
	owner   string
	repo    string
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewClient creates a Client for owner/repo authenticated with token.
func NewClient(token, owner, repo string, log *slog.Logger) *Client {
	return &Client{
		gh:      github.NewClient(nil).WithAuthToken(token),
		owner:   owner,
		repo:    repo,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		log:     log,
	}
}

func (c *Client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// GetPR fetches a pull request snapshot.
func (c *Client) GetPR(ctx context.Context, number int) (*PullRequest, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	pr, _, err := c.gh.PullRequests.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, fmt.Errorf("get pr #%d: %w", number, err)
	}
	return convertPR(pr), nil
}

// ListPRs lists pull requests in the given state ("open" or "closed"),
// newest first, following pagination.
func (c *Client) ListPRs(ctx context.Context, state string) ([]*PullRequest, error) {
	opts := &github.PullRequestListOptions{
		State:       state,
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var out []*PullRequest
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		prs, resp, err := c.gh.PullRequests.List(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list %s prs: %w", state, err)
		}
		for _, pr := range prs {
			out = append(out, convertPR(pr))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// ListRecentPRs lists at most limit pull requests in the given state,
// newest first. Unlike ListPRs it issues a single bounded request
// instead of walking the full paginated history.
func (c *Client) ListRecentPRs(ctx context.Context, state string, limit int) ([]*PullRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	opts := &github.PullRequestListOptions{
		State:       state,
		ListOptions: github.ListOptions{PerPage: limit},
	}
	prs, _, err := c.gh.PullRequests.List(ctx, c.owner, c.repo, opts)
	if err != nil {
		return nil, fmt.Errorf("list recent %s prs: %w", state, err)
	}
	if len(prs) > limit {
		prs = prs[:limit]
	}
	out := make([]*PullRequest, 0, len(prs))
	for _, pr := range prs {
		out = append(out, convertPR(pr))
	}
	return out, nil
}

// ChangedFiles lists the files changed in a pull request.
func (c *Client) ChangedFiles(ctx context.Context, number int) ([]ChangedFile, error) {
	opts := &github.ListOptions{PerPage: 100}

	var out []ChangedFile
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		files, resp, err := c.gh.PullRequests.ListFiles(ctx, c.owner, c.repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list files for pr #%d: %w", number, err)
		}
		for _, f := range files {
			out = append(out, ChangedFile{Path: f.GetFilename(), Status: f.GetStatus()})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// FileContent fetches the decoded text content of a file at ref.
func (c *Client) FileContent(ctx context.Context, path, ref string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	file, _, _, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path,
		&github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return "", fmt.Errorf("get content %s@%s: %w", path, ref, err)
	}
	if file == nil {
		return "", fmt.Errorf("get content %s@%s: path is a directory", path, ref)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode content %s@%s: %w", path, ref, err)
	}
	return content, nil
}

// BranchTree returns every blob path reachable from the given commit,
// using the recursive git tree API.
func (c *Client) BranchTree(ctx context.Context, sha string) ([]string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	tree, _, err := c.gh.Git.GetTree(ctx, c.owner, c.repo, sha, true)
	if err != nil {
		return nil, fmt.Errorf("get tree %s: %w", sha, err)
	}

	var paths []string
	for _, entry := range tree.Entries {
		if entry.GetType() == "blob" {
			paths = append(paths, entry.GetPath())
		}
	}
	if tree.GetTruncated() {
		c.log.Warn("branch tree truncated by API", "sha", sha, "paths", len(paths))
	}
	return paths, nil
}

// IssueComments lists issue-level comments on a pull request.
func (c *Client) IssueComments(ctx context.Context, number int) ([]Comment, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	comments, _, err := c.gh.Issues.ListComments(ctx, c.owner, c.repo, number, nil)
	if err != nil {
		return nil, fmt.Errorf("list issue comments for pr #%d: %w", number, err)
	}
	out := make([]Comment, 0, len(comments))
	for _, cm := range comments {
		out = append(out, Comment{
			Author: cm.GetUser().GetLogin(),
			Body:   cm.GetBody(),
			URL:    cm.GetHTMLURL(),
		})
	}
	return out, nil
}

// ReviewComments lists inline review comments on a pull request.
func (c *Client) ReviewComments(ctx context.Context, number int) ([]Comment, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	comments, _, err := c.gh.PullRequests.ListComments(ctx, c.owner, c.repo, number, nil)
	if err != nil {
		return nil, fmt.Errorf("list review comments for pr #%d: %w", number, err)
	}
	out := make([]Comment, 0, len(comments))
	for _, cm := range comments {
		out = append(out, Comment{
			Author: cm.GetUser().GetLogin(),
			Body:   cm.GetBody(),
			URL:    cm.GetHTMLURL(),
		})
	}
	return out, nil
}

// Reviews lists formal reviews on a pull request.
func (c *Client) Reviews(ctx context.Context, number int) ([]Comment, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	reviews, _, err := c.gh.PullRequests.ListReviews(ctx, c.owner, c.repo, number, nil)
	if err != nil {
		return nil, fmt.Errorf("list reviews for pr #%d: %w", number, err)
	}
	out := make([]Comment, 0, len(reviews))
	for _, rv := range reviews {
		out = append(out, Comment{
			Author: rv.GetUser().GetLogin(),
			Body:   rv.GetBody(),
			URL:    rv.GetHTMLURL(),
		})
	}
	return out, nil
}

// PostComment posts an issue-level comment and returns its URL.
func (c *Client) PostComment(ctx context.Context, number int, body string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	comment, _, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, number,
		&github.IssueComment{Body: github.Ptr(body)})
	if err != nil {
		return "", fmt.Errorf("post comment on pr #%d: %w", number, err)
	}
	return comment.GetHTMLURL(), nil
}

func convertPR(pr *github.PullRequest) *PullRequest {
	return &PullRequest{
		Number:  pr.GetNumber(),
		Title:   pr.GetTitle(),
		Body:    pr.GetBody(),
		State:   pr.GetState(),
		HTMLURL: pr.GetHTMLURL(),
		Author:  pr.GetUser().GetLogin(),
		HeadSHA: pr.GetHead().GetSHA(),
		HeadRef: pr.GetHead().GetRef(),
	}
}
