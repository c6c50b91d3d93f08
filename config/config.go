// Package config handles YAML config file loading for waivern run.
//
// Precedence (highest to lowest) is resolved by callers, not this
// package: CLI flags, then this file's values, then environment
// variables already expanded into the file, then the runbook's own
// config block, then the engine defaults in types.RunbookConfig.
package config

import (
	"fmt"
	"time"
)

// Config represents a waivern.yaml configuration file. All values are
// optional and act as defaults for waivern run flags; CLI flags always
// override config values, and config values always override a
// runbook's own config block.
type Config struct {
	// MaxConcurrency overrides the runbook's config.max_concurrency.
	MaxConcurrency int `yaml:"max_concurrency,omitempty"`
	// TimeoutSeconds overrides the runbook's config.timeout_seconds.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
	// CostLimit overrides the runbook's config.cost_limit.
	CostLimit float64 `yaml:"cost_limit,omitempty"`

	// LogLevel is parsed from the file (debug, info, warn, error). No
	// command reads it: the run logger always emits at debug level.
	LogLevel string `yaml:"log_level,omitempty"`

	Store  StoreConfig  `yaml:"store"`
	Notify NotifyConfig `yaml:"notify"`
}

// StoreConfig selects and configures the artifact store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"`

	// Filesystem
	Path string `yaml:"path,omitempty"`

	// S3
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	PathStyle bool   `yaml:"path_style,omitempty"`

	// Redis
	URL       string `yaml:"url,omitempty"`
	KeyPrefix string `yaml:"key_prefix,omitempty"`
}

// NotifyConfig selects and configures the run-completion notifier.
type NotifyConfig struct {
	Type string `yaml:"type,omitempty"`

	// Redis
	URL     string `yaml:"url,omitempty"`
	Channel string `yaml:"channel,omitempty"`

	// Webhook
	WebhookURL string            `yaml:"webhook_url,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`

	Timeout Duration `yaml:"timeout,omitempty"`
	Retries *int     `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
