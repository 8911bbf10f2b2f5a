// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/devgenius/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete devgenius configuration.
type Config struct {
	Model        ModelConfig        `toml:"model" json:"model"`
	Retry        RetryConfig        `toml:"retry" json:"retry"`
	Continuation ContinuationConfig `toml:"continuation" json:"continuation"`
	Storage      StorageConfig      `toml:"storage" json:"storage"`
	Server       ServerConfig       `toml:"server" json:"server"`
	AWS          AWSConfig          `toml:"aws" json:"aws"`
	Session      SessionConfig      `toml:"session" json:"session"`
}

// ModelConfig selects the model and its transport.
type ModelConfig struct {
	// Provider is "anthropic" (official SDK) or "http" (raw Messages API
	// client, for compatible gateways).
	Provider string `toml:"provider" json:"provider"`
	ID       string `toml:"id" json:"id"`
	BaseURL  string `toml:"base_url" json:"base_url"`
	APIKey   string `toml:"api_key" json:"api_key"`

	MaxTokens       int      `toml:"max_tokens" json:"max_tokens"`
	Temperature     float64  `toml:"temperature" json:"temperature"`
	ReadTimeout     Duration `toml:"read_timeout" json:"read_timeout"`
	ReasoningBudget int      `toml:"reasoning_budget" json:"reasoning_budget"`
}

// RetryConfig bounds retries of rate-limited requests.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts" json:"max_attempts"`
	BaseDelay   Duration `toml:"base_delay" json:"base_delay"`
}

// ContinuationConfig bounds continuation of truncated answers.
type ContinuationConfig struct {
	MaxRounds int `toml:"max_rounds" json:"max_rounds"`
}

// StorageConfig locates the artifact store and the ledger.
type StorageConfig struct {
	DataDir    string `toml:"data_dir" json:"data_dir"`
	LedgerPath string `toml:"ledger_path" json:"ledger_path"`
}

// ServerConfig configures `devgenius serve`.
type ServerConfig struct {
	Host string `toml:"host" json:"host"`
	Port int    `toml:"port" json:"port"`

	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`
	RateBurst int     `toml:"rate_burst" json:"rate_burst"`

	// AuthToken enables bearer authentication when set.
	AuthToken       string   `toml:"auth_token" json:"auth_token"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" json:"shutdown_timeout"`
}

// AWSConfig is used to build CloudFormation launch links.
type AWSConfig struct {
	Region          string `toml:"region" json:"region"`
	TemplateBaseURL string `toml:"template_base_url" json:"template_base_url"`
	StackName       string `toml:"stack_name" json:"stack_name"`
}

// SessionConfig controls in-memory conversation expiry.
type SessionConfig struct {
	IdleTimeout   Duration `toml:"idle_timeout" json:"idle_timeout"`
	SweepInterval Duration `toml:"sweep_interval" json:"sweep_interval"`
}

// Duration is a time.Duration written as "30s" or "15m" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText accepts Go duration syntax or a bare number of seconds.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if secs, err := strconv.Atoi(s); err == nil {
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// MarshalText writes Go duration syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	dir, err := ConfigDir()
	if err != nil {
		dir = ".devgenius"
	}
	return &Config{
		Model: ModelConfig{
			Provider:        "anthropic",
			ID:              "claude-3-7-sonnet-20250219",
			BaseURL:         "https://api.anthropic.com",
			MaxTokens:       64000,
			Temperature:     0.1,
			ReadTimeout:     Duration{1000 * time.Second},
			ReasoningBudget: 2000,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   Duration{time.Second},
		},
		Continuation: ContinuationConfig{MaxRounds: 4},
		Storage: StorageConfig{
			DataDir:    filepath.Join(dir, "artifacts"),
			LedgerPath: filepath.Join(dir, "ledger.db"),
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8787,
			RateLimit:       2,
			RateBurst:       10,
			ShutdownTimeout: Duration{10 * time.Second},
		},
		AWS: AWSConfig{
			Region:    "us-west-2",
			StackName: "myteststack",
		},
		Session: SessionConfig{
			IdleTimeout:   Duration{30 * time.Minute},
			SweepInterval: Duration{time.Minute},
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns ~/.devgenius.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".devgenius"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions narrows the config file to 0600; it holds keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the default config file if it exists, then applies
// environment overrides and validates. A missing file is not an error.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return finish(Default())
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		return finish(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the TOML file at path over the defaults.
func LoadFromPath(path string) (*Config, error) {
	if err := ensureSecurePermissions(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return finish(cfg)
}

// Parse decodes TOML text over the defaults without consulting the
// environment.
func Parse(data string) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to the default config path.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes cfg as TOML with 0600 permissions.
func SaveTo(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# devgenius configuration file\n")
	buf.WriteString("# Generated by devgenius - edit with care\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0o600, 0o700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every invalid field.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch c.Model.Provider {
	case "anthropic", "http":
	default:
		add("model.provider", "invalid provider '%s', must be one of: anthropic, http", c.Model.Provider)
	}
	if strings.TrimSpace(c.Model.ID) == "" {
		add("model.id", "must not be empty")
	}
	if c.Model.BaseURL != "" {
		if u, err := url.Parse(c.Model.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("model.base_url", "invalid URL '%s'", c.Model.BaseURL)
		} else if u.Scheme != "https" && u.Scheme != "http" {
			add("model.base_url", "unsupported scheme '%s'", u.Scheme)
		}
	}
	if c.Model.MaxTokens < 1 {
		add("model.max_tokens", "must be positive, got %d", c.Model.MaxTokens)
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		add("model.temperature", "must be between 0 and 1, got %g", c.Model.Temperature)
	}
	if c.Model.ReadTimeout.Duration <= 0 {
		add("model.read_timeout", "must be positive")
	}
	if c.Model.ReasoningBudget < 1024 {
		add("model.reasoning_budget", "must be at least 1024 tokens, got %d", c.Model.ReasoningBudget)
	} else if c.Model.ReasoningBudget >= c.Model.MaxTokens {
		add("model.reasoning_budget", "must be less than model.max_tokens")
	}

	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 10 {
		add("retry.max_attempts", "must be between 1 and 10, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay.Duration < 0 {
		add("retry.base_delay", "must not be negative")
	}
	if c.Continuation.MaxRounds < 1 || c.Continuation.MaxRounds > 10 {
		add("continuation.max_rounds", "must be between 1 and 10, got %d", c.Continuation.MaxRounds)
	}

	if c.Storage.DataDir == "" {
		add("storage.data_dir", "must not be empty")
	}
	if c.Storage.LedgerPath == "" {
		add("storage.ledger_path", "must not be empty")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		add("server.rate_burst", "must be positive when rate_limit is set")
	}

	if c.AWS.Region == "" {
		add("aws.region", "must not be empty")
	}
	if c.AWS.TemplateBaseURL != "" {
		if u, err := url.Parse(c.AWS.TemplateBaseURL); err != nil || u.Scheme == "" {
			add("aws.template_base_url", "invalid URL '%s'", c.AWS.TemplateBaseURL)
		}
	}

	if c.Session.IdleTimeout.Duration < time.Minute {
		add("session.idle_timeout", "must be at least 1m")
	}
	if c.Session.SweepInterval.Duration <= 0 {
		add("session.sweep_interval", "must be positive")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - DEVGENIUS_API_KEY, then ANTHROPIC_API_KEY: model.api_key
//   - DEVGENIUS_MODEL: model.id
//   - DEVGENIUS_BASE_URL: model.base_url
//   - AWS_REGION: aws.region
//   - DEVGENIUS_DATA_DIR: storage.data_dir and storage.ledger_path
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("DEVGENIUS_API_KEY"); key != "" {
		c.Model.APIKey = key
	} else if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && c.Model.APIKey == "" {
		c.Model.APIKey = key
	}
	if model := os.Getenv("DEVGENIUS_MODEL"); model != "" {
		c.Model.ID = model
	}
	if base := os.Getenv("DEVGENIUS_BASE_URL"); base != "" {
		c.Model.BaseURL = base
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		c.AWS.Region = region
	}
	if dir := os.Getenv("DEVGENIUS_DATA_DIR"); dir != "" {
		c.Storage.DataDir = filepath.Join(dir, "artifacts")
		c.Storage.LedgerPath = filepath.Join(dir, "ledger.db")
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// String renders the config as JSON with the secrets masked.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Model.APIKey != "" {
		safe.Model.APIKey = "***"
	}
	if safe.Server.AuthToken != "" {
		safe.Server.AuthToken = "***"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the process-wide configuration, loading it on first use.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal replaces the process-wide configuration.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting clears the process-wide configuration.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
