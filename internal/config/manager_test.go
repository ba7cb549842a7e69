package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{
		"telegram": {"token": "123:abc", "admin_ids": [10, 20], "channel_id": -100},
		"logging": {"level": "debug", "console": true},
		"scheduler": {"timezone": "Europe/Warsaw"},
		"data": {"dir": "/tmp/postbot"}
	}`)
	cfg, err := NewConfigManager(path).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.ChannelID != -100 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if len(cfg.Telegram.AdminIDs) != 2 || cfg.Telegram.AdminIDs[1] != 20 {
		t.Fatalf("admin ids = %v", cfg.Telegram.AdminIDs)
	}
	if cfg.Scheduler.Timezone != "Europe/Warsaw" {
		t.Fatalf("timezone = %q", cfg.Scheduler.Timezone)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
logging:
  level: info
  console: true
scheduler:
  timezone: UTC
data: {}
sender:
  rate_per_sec: 10
storage:
  driver: file
  path: audit.jsonl
`)
	cfg, err := NewConfigManager(path).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Sender == nil || cfg.Sender.RatePerSec != 10 {
		t.Fatalf("sender = %+v", cfg.Sender)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"telegram": {"token": "x"}, "loging": {}}`)
	if _, err := NewConfigManager(path).Parse(); err == nil {
		t.Fatal("expected error for misspelled section")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"telegram": {"token": "x"}}{"extra": 1}`)
	if _, err := NewConfigManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing JSON document")
	}
}

func TestLoadCommitsAndGet(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"telegram": {"token": "x"}}`)
	m := NewConfigManager(path)
	if m.Get() != nil {
		t.Fatal("Get before Load should be nil")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	t.Parallel()

	m := NewConfigManager("unused")
	ch := m.Subscribe(1)

	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("received wrong config")
		}
	default:
		t.Fatal("no config delivered")
	}

	// Full buffer: the oldest update is dropped for the newest.
	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second)
	if got := <-ch; got != second {
		t.Fatal("expected latest config after overflow")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after Unsubscribe")
	}
}

func TestWatchPublishesOnChange(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"logging": {"level": "info"}}`)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	sub := m.Subscribe(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// Give the watcher a moment to arm before the write.
	time.Sleep(300 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"logging": {"level": "debug"}}`), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published level = %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published after file change")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop on context cancel")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	d, err := ParseDurationOrDefault("telegram.poll_timeout", "", 10*time.Second)
	if err != nil || d != 10*time.Second {
		t.Fatalf("empty = %v, %v", d, err)
	}
	d, err = ParseDurationField("telegram.poll_timeout", "30s")
	if err != nil || d != 30*time.Second {
		t.Fatalf("30s = %v, %v", d, err)
	}
	if _, err := ParseDurationField("telegram.poll_timeout", "soon"); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}
