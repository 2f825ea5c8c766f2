// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/fileset"
)

// executeTimeoutSeconds is the hard in-sandbox ceiling for one test
// command. On expiry the snippet exits nonzero instead of hanging.
const executeTimeoutSeconds = 300

// disposeTimeout bounds sandbox teardown once it has been detached
// from the caller's context.
const disposeTimeout = 30 * time.Second

// Status is the normalized outcome of a test execution.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
	StatusNoTests Status = "no_tests"
	StatusUnknown Status = "unknown"
)

// GeneratedTest describes one machine-generated test for reporting.
type GeneratedTest struct {
	Test   string `json:"test"`
	Reason string `json:"reason"`
}

// ExecutionResult is the normalized outcome of a sandbox run.
type ExecutionResult struct {
	Status         Status          `json:"status"`
	ExitCode       *int            `json:"exitCode"`
	Output         string          `json:"output"`
	GeneratedTests []GeneratedTest `json:"generatedTests"`
	Error          string          `json:"error,omitempty"`
}

// ErrNotProvisioned is returned when protocol methods run before
// Provision succeeded.
var ErrNotProvisioned = errors.New("sandbox not provisioned")

// Runner owns one sandbox for the duration of one PR pipeline run.
// It is not safe for concurrent use and must not be reused across PRs.
type Runner struct {
	client CodeRunner
	id     string
	log    *slog.Logger
}

// NewRunner creates a Runner on top of the given sandbox service.
func NewRunner(client CodeRunner, log *slog.Logger) *Runner {
	return &Runner{client: client, log: log}
}

// Provision creates the sandbox backing this runner.
func (r *Runner) Provision(ctx context.Context) error {
	id, err := r.client.Create(ctx)
	if err != nil {
		return err
	}
	r.id = id
	return nil
}

// Materialize writes the file set into the sandbox, creating any
// intermediate directories a relative path implies. Content crosses
// the wire base64-encoded so non-ASCII text survives exactly.
func (r *Runner) Materialize(ctx context.Context, files fileset.FileSet) error {
	if r.id == "" {
		return ErrNotProvisioned
	}

	encoded, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("encode file set: %w", err)
	}
	payload := base64.StdEncoding.EncodeToString(encoded)

	snippet := fmt.Sprintf(`import os
import json
import base64

files = json.loads(base64.b64decode('%s').decode('utf-8'))
for path, content in files.items():
    directory = os.path.dirname(path)
    if directory:
        os.makedirs(directory, exist_ok=True)
    with open(path, 'w', encoding='utf-8') as f:
        f.write(content)
print(f"created {len(files)} file(s)")
`, payload)

	resp, err := r.client.RunCode(ctx, r.id, snippet)
	if err != nil {
		return fmt.Errorf("materialize files: %w", err)
	}
	if resp.ExitCode != 0 {
		return fmt.Errorf("materialize files: exit %d: %s", resp.ExitCode, resp.Output)
	}
	r.log.Info("files materialized", "sandbox", r.id, "files", len(files))
	return nil
}

// InstallDependencies pip-installs the given packages, defaulting to
// pytest. Individual package failures are reported by the snippet but
// do not fail the call; the test run surfaces real problems.
func (r *Runner) InstallDependencies(ctx context.Context, packages []string) error {
	if r.id == "" {
		return ErrNotProvisioned
	}
	if len(packages) == 0 {
		packages = []string{"pytest"}
	}

	list, err := json.Marshal(packages)
	if err != nil {
		return fmt.Errorf("encode package list: %w", err)
	}

	snippet := fmt.Sprintf(`import subprocess
import sys

for package in %s:
    result = subprocess.run(
        [sys.executable, '-m', 'pip', 'install', package],
        capture_output=True, text=True, timeout=120)
    if result.returncode != 0:
        print(f"failed to install {package}: {result.stderr}", file=sys.stderr)
`, list)

	if _, err := r.client.RunCode(ctx, r.id, snippet); err != nil {
		return fmt.Errorf("install dependencies: %w", err)
	}
	return nil
}

// Execute runs the shell command under the in-sandbox timeout and
// normalizes the outcome: exit 0 is passed, anything else failed.
// Embedded quotes in the command are escaped for the shell.
func (r *Runner) Execute(ctx context.Context, command string) (*ExecutionResult, error) {
	if r.id == "" {
		return nil, ErrNotProvisioned
	}

	// The shell-style escape also survives the Python source: the
	// inserted '"'"' sequences read as adjacent string literals that
	// concatenate back to the original command.
	escaped := strings.ReplaceAll(command, "'", `'"'"'`)

	snippet := fmt.Sprintf(`import subprocess
import sys

try:
    result = subprocess.run(
        '%s',
        shell=True, capture_output=True, text=True, timeout=%d)
    print(result.stdout)
    if result.stderr:
        print(result.stderr, file=sys.stderr)
    sys.exit(result.returncode)
except subprocess.TimeoutExpired:
    print("test execution timed out after %d seconds", file=sys.stderr)
    sys.exit(1)
`, escaped, executeTimeoutSeconds, executeTimeoutSeconds)

	resp, err := r.client.RunCode(ctx, r.id, snippet)
	if err != nil {
		return nil, fmt.Errorf("execute %q: %w", command, err)
	}

	status := StatusPassed
	if resp.ExitCode != 0 {
		status = StatusFailed
	}
	exitCode := resp.ExitCode
	r.log.Info("test command finished", "sandbox", r.id, "command", command, "exit", exitCode)
	return &ExecutionResult{
		Status:   status,
		ExitCode: &exitCode,
		Output:   resp.Output,
	}, nil
}

// Dispose tears the sandbox down. Teardown failures are swallowed and
// logged: a leaked sandbox is preferred over crashing the pipeline.
// Safe to call when provisioning never happened.
func (r *Runner) Dispose(ctx context.Context) {
	if r.id == "" {
		return
	}
	// Teardown must outlive a cancelled pipeline: a Ctrl-C mid-run
	// still has to delete the sandbox or it leaks.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disposeTimeout)
	defer cancel()
	if err := r.client.Delete(ctx, r.id); err != nil {
		r.log.Warn("sandbox teardown failed", "sandbox", r.id, "error", err)
	} else {
		r.log.Info("sandbox deleted", "sandbox", r.id)
	}
	r.id = ""
}
