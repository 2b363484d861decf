// Package config loads daemon configuration from a JSON file or from
// BABYSITTER_-prefixed environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the top-level babysitter configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Store     StoreConfig     `json:"store"`
	Runtime   RuntimeConfig   `json:"runtime"`
	Resolver  ResolverConfig  `json:"resolver"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Slack     *SlackConfig    `json:"slack,omitempty"`
	LogBuffer int             `json:"log_buffer,omitempty"` // captured entries, default 1000
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key,omitempty"` // bearer key for /api/*; empty disables auth
}

// StoreConfig holds ticket store settings.
type StoreConfig struct {
	Path string `json:"path"` // sqlite database file
}

// RuntimeConfig selects and configures the execution runtime.
type RuntimeConfig struct {
	Type            string `json:"type"` // "llm" or "scripted"
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty"`
	Model           string `json:"model,omitempty"`
	BaseURL         string `json:"base_url,omitempty"`
	MaxIterations   int    `json:"max_iterations,omitempty"`
	// WaitTimeout bounds how long a question blocks on the human,
	// e.g. "30m". Default 30m.
	WaitTimeout string `json:"wait_timeout,omitempty"`
}

// ResolverConfig tunes the response resolver.
type ResolverConfig struct {
	PollInterval string `json:"poll_interval,omitempty"` // default "1s"
	BufferTTL    string `json:"buffer_ttl,omitempty"`    // default "5m"
}

// SchedulerConfig holds the sweep schedules. Empty disables a sweep.
type SchedulerConfig struct {
	SweepSchedule string `json:"sweep_schedule,omitempty"` // stranded pending tickets
	PurgeSchedule string `json:"purge_schedule,omitempty"` // expired resolver cells
}

// SlackConfig holds the optional Slack notifier settings.
type SlackConfig struct {
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from BABYSITTER_-prefixed environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getenv("BABYSITTER_HOST", "0.0.0.0"),
			Port: getenvInt("BABYSITTER_PORT", 8080),
			Key:  os.Getenv("BABYSITTER_API_KEY"),
		},
		Store: StoreConfig{
			Path: getenv("BABYSITTER_DB_PATH", "/data/babysitter.db"),
		},
		Runtime: RuntimeConfig{
			Type:            getenv("BABYSITTER_RUNTIME", "llm"),
			AnthropicAPIKey: os.Getenv("BABYSITTER_ANTHROPIC_API_KEY"),
			Model:           os.Getenv("BABYSITTER_MODEL"),
			WaitTimeout:     os.Getenv("BABYSITTER_WAIT_TIMEOUT"),
		},
		Resolver: ResolverConfig{
			PollInterval: os.Getenv("BABYSITTER_POLL_INTERVAL"),
			BufferTTL:    os.Getenv("BABYSITTER_BUFFER_TTL"),
		},
		Scheduler: SchedulerConfig{
			SweepSchedule: os.Getenv("BABYSITTER_SWEEP_SCHEDULE"),
			PurgeSchedule: os.Getenv("BABYSITTER_PURGE_SCHEDULE"),
		},
		LogBuffer: getenvInt("BABYSITTER_LOG_BUFFER", 0),
	}

	if token := os.Getenv("BABYSITTER_SLACK_TOKEN"); token != "" {
		cfg.Slack = &SlackConfig{
			BotToken: token,
			Channel:  os.Getenv("BABYSITTER_SLACK_CHANNEL"),
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Runtime.Type == "" {
		c.Runtime.Type = "llm"
	}
	if c.Runtime.WaitTimeout == "" {
		c.Runtime.WaitTimeout = "30m"
	}
	if c.Resolver.PollInterval == "" {
		c.Resolver.PollInterval = "1s"
	}
	if c.Resolver.BufferTTL == "" {
		c.Resolver.BufferTTL = "5m"
	}
	if c.Scheduler.SweepSchedule == "" {
		c.Scheduler.SweepSchedule = "@every 1m"
	}
	if c.Scheduler.PurgeSchedule == "" {
		c.Scheduler.PurgeSchedule = "@every 5m"
	}
	if c.LogBuffer == 0 {
		c.LogBuffer = 1000
	}
}

// Validate checks for required fields, collecting every failure.
func (c *Config) Validate() error {
	var errs []string

	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}

	switch c.Runtime.Type {
	case "llm":
		if c.Runtime.AnthropicAPIKey == "" {
			errs = append(errs, "runtime.anthropic_api_key is required for the llm runtime")
		}
	case "scripted":
		// No credentials needed.
	default:
		errs = append(errs, fmt.Sprintf("runtime.type %q is not one of: llm, scripted", c.Runtime.Type))
	}

	for _, d := range []struct{ name, value string }{
		{"runtime.wait_timeout", c.Runtime.WaitTimeout},
		{"resolver.poll_interval", c.Resolver.PollInterval},
		{"resolver.buffer_ttl", c.Resolver.BufferTTL},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid duration %q", d.name, d.value))
		}
	}

	if c.Slack != nil {
		if c.Slack.BotToken == "" {
			errs = append(errs, "slack.bot_token is required")
		}
		if c.Slack.Channel == "" {
			errs = append(errs, "slack.channel is required")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// WaitTimeout returns the parsed runtime wait timeout. Validate must have
// passed.
func (c *Config) WaitTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Runtime.WaitTimeout)
	return d
}

// PollInterval returns the parsed resolver poll interval.
func (c *Config) PollInterval() time.Duration {
	d, _ := time.ParseDuration(c.Resolver.PollInterval)
	return d
}

// BufferTTL returns the parsed resolver buffer TTL.
func (c *Config) BufferTTL() time.Duration {
	d, _ := time.ParseDuration(c.Resolver.BufferTTL)
	return d
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
