// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/jeranaias/devgenius/internal/claude"
	"github.com/jeranaias/devgenius/internal/cloud"
	"github.com/jeranaias/devgenius/internal/config"
	"github.com/jeranaias/devgenius/internal/llm"
	"github.com/jeranaias/devgenius/internal/session"
	"github.com/jeranaias/devgenius/internal/solution"
	"github.com/jeranaias/devgenius/internal/storage"
)

var errConfig = errors.New("configuration error")

// App wires the configured transport, stores and services together.
type App struct {
	Config    *config.Config
	Service   *solution.Service
	Sessions  *session.Manager
	Artifacts *storage.ArtifactStore
	Ledger    *storage.Ledger
}

// loadConfig reads path, or the default location when path is empty.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = config.Load()
	} else {
		cfg, err = config.LoadFromPath(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	config.SetGlobal(cfg)
	return cfg, nil
}

// NewTransport builds the model transport named by cfg.Model.Provider.
func NewTransport(cfg *config.Config) (llm.Transport, error) {
	m := cfg.Model
	switch m.Provider {
	case "anthropic", "":
		return claude.New(claude.Config{
			APIKey:      m.APIKey,
			BaseURL:     m.BaseURL,
			Model:       m.ID,
			ReadTimeout: m.ReadTimeout.Duration,
		}), nil
	case "http":
		return cloud.NewClient(m.APIKey).
			WithBaseURL(m.BaseURL).
			WithModel(m.ID).
			WithReadTimeout(m.ReadTimeout.Duration), nil
	default:
		return nil, fmt.Errorf("%w: unknown model provider %q", errConfig, m.Provider)
	}
}

// ServiceOptions maps the config onto solution.Options.
func ServiceOptions(cfg *config.Config) solution.Options {
	return solution.Options{
		Model:           cfg.Model.ID,
		MaxTokens:       cfg.Model.MaxTokens,
		Temperature:     cfg.Model.Temperature,
		ReasoningBudget: cfg.Model.ReasoningBudget,
		Retry: llm.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay.Duration,
		},
		MaxRounds:       cfg.Continuation.MaxRounds,
		Region:          cfg.AWS.Region,
		TemplateBaseURL: cfg.AWS.TemplateBaseURL,
		StackName:       cfg.AWS.StackName,
	}
}

// SessionConfig maps the config onto session.Config.
func SessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		IdleTimeout:   cfg.Session.IdleTimeout.Duration,
		SweepInterval: cfg.Session.SweepInterval.Duration,
	}
}

// NewApp opens the stores and builds the service for cfg.
func NewApp(cfg *config.Config) (*App, error) {
	t, err := NewTransport(cfg)
	if err != nil {
		return nil, err
	}
	return newAppWithTransport(cfg, t)
}

func newAppWithTransport(cfg *config.Config, t llm.Transport) (*App, error) {
	artifacts, err := storage.NewArtifactStore(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	ledger, err := storage.OpenLedger(cfg.Storage.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	if cfg.Model.APIKey == "" && cfg.Model.Provider != "http" {
		log.Printf("CONFIG_WARNING | model API key not set; set DEVGENIUS_API_KEY or ANTHROPIC_API_KEY")
	}

	return &App{
		Config:    cfg,
		Service:   solution.NewService(t, artifacts, ledger, ServiceOptions(cfg)),
		Sessions:  session.NewManager(SessionConfig(cfg)),
		Artifacts: artifacts,
		Ledger:    ledger,
	}, nil
}

// Apply pushes a reloaded config into the running service. a.Config keeps
// the startup values; config.Global returns the current ones.
func (a *App) Apply(cfg *config.Config) {
	a.Service.UpdateOptions(ServiceOptions(cfg))
	a.Sessions.SetIdleTimeout(cfg.Session.IdleTimeout.Duration)
	config.SetGlobal(cfg)
}

// Close releases the ledger.
func (a *App) Close() error {
	if a.Ledger == nil {
		return nil
	}
	return a.Ledger.Close()
}

// redirectLogs sends log output to stderr, or discards it when quiet.
func redirectLogs(quiet bool) {
	if quiet {
		log.SetOutput(io.Discard)
		return
	}
	log.SetOutput(os.Stderr)
}
