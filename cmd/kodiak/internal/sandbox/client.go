// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sandbox provisions isolated execution environments and runs
// machine-generated tests in them. The Client speaks the sandbox
// service's REST API; the Runner drives the materialize/install/
// execute/dispose protocol on top of it.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// httpTimeout bounds a single API call. It must exceed the in-sandbox
// test timeout (5 minutes) so a long test run is reported by the
// sandbox rather than cut off at the transport.
const httpTimeout = 6 * time.Minute

// RunResponse is the result of executing a code snippet in a sandbox.
type RunResponse struct {
	ExitCode int    `json:"exitCode"`
	Output   string `json:"output"`
}

// CodeRunner is the sandbox service contract the Runner consumes.
type CodeRunner interface {
	Create(ctx context.Context) (string, error)
	RunCode(ctx context.Context, id, code string) (*RunResponse, error)
	Delete(ctx context.Context, id string) error
}

// Client is an HTTP client for the sandbox provisioning service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a sandbox service client.
func NewClient(baseURL, apiKey string, log *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: httpTimeout},
		log:        log,
	}
}

// Create provisions a new sandbox and returns its handle.
func (c *Client) Create(ctx context.Context) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/sandboxes", map[string]any{"language": "python"}, &created); err != nil {
		return "", fmt.Errorf("create sandbox: %w", err)
	}
	c.log.Info("sandbox created", "id", created.ID)
	return created.ID, nil
}

// RunCode executes a Python snippet inside the sandbox.
func (c *Client) RunCode(ctx context.Context, id, code string) (*RunResponse, error) {
	var run RunResponse
	path := fmt.Sprintf("/sandboxes/%s/run", id)
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"code": code}, &run); err != nil {
		return nil, fmt.Errorf("run code in sandbox %s: %w", id, err)
	}
	return &run, nil
}

// Delete tears down the sandbox.
func (c *Client) Delete(ctx context.Context, id string) error {
	path := fmt.Sprintf("/sandboxes/%s", id)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete sandbox %s: %w", id, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(payload))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
