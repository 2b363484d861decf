package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": 9000, "api_key": "secret"},
		"store": {"path": "/tmp/test.db"},
		"runtime": {"type": "scripted"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default host = %q", cfg.Server.Host)
	}
	if cfg.WaitTimeout() != 30*time.Minute {
		t.Errorf("wait timeout = %v", cfg.WaitTimeout())
	}
	if cfg.PollInterval() != time.Second {
		t.Errorf("poll interval = %v", cfg.PollInterval())
	}
	if cfg.LogBuffer != 1000 {
		t.Errorf("log buffer = %d", cfg.LogBuffer)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.json"); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	path := writeConfig(t, `{
		"runtime": {"type": "llm", "wait_timeout": "not a duration"},
		"slack": {"bot_token": ""}
	}`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		"store.path is required",
		"runtime.anthropic_api_key is required",
		"wait_timeout",
		"slack.bot_token is required",
		"slack.channel is required",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q:\n%s", want, msg)
		}
	}
}

func TestValidate_UnknownRuntime(t *testing.T) {
	path := writeConfig(t, `{
		"store": {"path": "/tmp/test.db"},
		"runtime": {"type": "quantum"}
	}`)

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "runtime.type") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BABYSITTER_PORT", "7070")
	t.Setenv("BABYSITTER_DB_PATH", "/tmp/env.db")
	t.Setenv("BABYSITTER_RUNTIME", "llm")
	t.Setenv("BABYSITTER_ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("BABYSITTER_SLACK_TOKEN", "xoxb-x")
	t.Setenv("BABYSITTER_SLACK_CHANNEL", "C123")
	t.Setenv("BABYSITTER_POLL_INTERVAL", "250ms")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Store.Path != "/tmp/env.db" {
		t.Errorf("db path = %q", cfg.Store.Path)
	}
	if cfg.Slack == nil || cfg.Slack.Channel != "C123" {
		t.Errorf("slack = %+v", cfg.Slack)
	}
	if cfg.PollInterval() != 250*time.Millisecond {
		t.Errorf("poll interval = %v", cfg.PollInterval())
	}
}
