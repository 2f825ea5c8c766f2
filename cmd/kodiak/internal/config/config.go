// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the explicit configuration for a Kodiak run.
//
// All credentials and tunables are resolved once at startup and passed
// into component constructors. Business logic never reads the
// environment directly.
//
// Resolution order (later wins):
//
//  1. Built-in defaults
//  2. config.yaml (optional)
//  3. Environment variables
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied before the YAML and environment overlays.
const (
	DefaultOpenAIModel    = "gpt-4o"
	DefaultSandboxURL     = "https://app.daytona.io/api"
	DefaultBotMarker      = "coderabbit"
	DefaultGenerationWait = 10 * time.Second
)

// Sentinel errors for missing credentials. The CLI maps these to a
// nonzero exit before any PR is processed.
var (
	ErrNoGitHubToken = errors.New("github token is required: set GITHUB_TOKEN or github_token in config.yaml")
	ErrNoOpenAIKey   = errors.New("openai api key is required: set OPENAI_API_KEY or disable scoring with --skip-gpt")
	ErrNoSandboxKey  = errors.New("sandbox api key is required: set SANDBOX_API_KEY or disable testing with --skip-tests")
)

// Config carries every external credential and tunable the pipeline
// needs. Constructed once per run; components receive it (or slices of
// it) via their constructors.
type Config struct {
	GitHubToken string `yaml:"github_token"`

	OpenAIKey   string `yaml:"openai_key"`
	OpenAIModel string `yaml:"openai_model"`

	SandboxKey string `yaml:"sandbox_key"`
	SandboxURL string `yaml:"sandbox_url"`

	// BotMarker is the substring identifying the automated reviewer's
	// login, e.g. "coderabbit" matches both "coderabbitai" and
	// "coderabbit[bot]".
	BotMarker string `yaml:"bot_marker"`

	// GenerationWait is the grace period between triggering test
	// generation and searching for the companion PR.
	GenerationWait time.Duration `yaml:"generation_wait"`
}

// Load builds a Config from defaults, an optional YAML file, and the
// environment. A missing file at path is not an error; a malformed
// file is.
func Load(path string) (*Config, error) {
	cfg := &Config{
		OpenAIModel:    DefaultOpenAIModel,
		SandboxURL:     DefaultSandboxURL,
		BotMarker:      DefaultBotMarker,
		GenerationWait: DefaultGenerationWait,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	overlayEnv(&cfg.GitHubToken, "GITHUB_TOKEN")
	overlayEnv(&cfg.OpenAIKey, "OPENAI_API_KEY")
	overlayEnv(&cfg.OpenAIModel, "OPENAI_MODEL")
	overlayEnv(&cfg.SandboxKey, "SANDBOX_API_KEY")
	overlayEnv(&cfg.SandboxURL, "SANDBOX_API_URL")
	overlayEnv(&cfg.BotMarker, "KODIAK_BOT_MARKER")

	return cfg, nil
}

// Validate checks that the credentials required for the enabled stages
// are present. Skipped stages do not need their credentials.
func (c *Config) Validate(skipTests, skipGPT bool) error {
	if c.GitHubToken == "" {
		return ErrNoGitHubToken
	}
	if !skipGPT && c.OpenAIKey == "" {
		return ErrNoOpenAIKey
	}
	if !skipTests && c.SandboxKey == "" {
		return ErrNoSandboxKey
	}
	return nil
}

func overlayEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
