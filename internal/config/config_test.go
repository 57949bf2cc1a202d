package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
discord:
  token: file-token
  guild_ids: ["111"]
  staff_role_ids: ["222"]
logging:
  level: debug
  console: true
schedules:
  driver: file
  path: ./data/s.json
scheduler:
  enabled: true
  tick: 5s
  max_sends_per_tick: 3
dispatch:
  rate_per_sec: 5
notifier:
  enabled: true
  channel_id: "333"
  workers: 1
  queue_size: 64
  rate_per_sec: 1
  retry_max: 2
  retry_base: 500ms
  retry_max_delay: 5s
  dedup_window: 10m
  dedup_max_entries: 100
status:
  enabled: true
  addr: 127.0.0.1:8089
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Discord.Token != "file-token" || len(cfg.Discord.GuildIDs) != 1 {
		t.Fatalf("discord = %+v", cfg.Discord)
	}
	if cfg.Scheduler.Tick != "5s" || cfg.Scheduler.MaxSendsPerTick != 3 {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Notifier == nil || cfg.Notifier.ChannelID != "333" {
		t.Fatalf("notifier = %+v", cfg.Notifier)
	}
	if cfg.Dispatch.RatePerSec != 5 {
		t.Fatalf("dispatch = %+v", cfg.Dispatch)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, path, body string
	}{
		{"unknown key", "c.json", `{"discord":{"token":"x"},"telegram":{}}`},
		{"trailing data", "c.json", `{"discord":{"token":"x"}}{}`},
		{"bad yaml", "c.yml", "discord: [\n"},
		{"multi document yaml", "c.yaml", "discord:\n  token: x\n---\ndiscord:\n  token: y\n"},
		{"non-string key", "c.yaml", "discord:\n  1: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tt.path, []byte(tt.body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{Discord: DiscordConfig{Token: "t"}}
	}
	tests := []struct {
		name   string
		mutate func(c *Config)
		errHas string
	}{
		{"ok", func(*Config) {}, ""},
		{"no token", func(c *Config) { c.Discord.Token = " " }, "discord.token"},
		{"bad tick", func(c *Config) { c.Scheduler.Tick = "soon" }, "scheduler.tick"},
		{"negative cap", func(c *Config) { c.Scheduler.MaxSendsPerTick = -1 }, "max_sends_per_tick"},
		{"unknown schedules driver", func(c *Config) { c.Schedules.Driver = "redis" }, "schedules.driver"},
		{"mysql without dsn", func(c *Config) { c.Schedules.Driver = "mysql" }, "schedules.dsn"},
		{"sqlite schedules", func(c *Config) { c.Schedules = SchedulesConfig{Driver: "sqlite", Path: "x.db"} }, ""},
		{"storage without path", func(c *Config) { c.Storage = &StorageConfig{Driver: "sqlite"} }, "storage.path"},
		{"storage none", func(c *Config) { c.Storage = &StorageConfig{Driver: "none"} }, ""},
		{"notifier duration", func(c *Config) { n := DefaultNotifier(); n.DedupWindow = "-1m"; c.Notifier = &n }, "notifier.dedup_window"},
		{"status public no token", func(c *Config) { c.Status = StatusConfig{Enabled: true, Addr: "0.0.0.0:8089"} }, "status.addr"},
		{"status public token", func(c *Config) { c.Status = StatusConfig{Enabled: true, Addr: ":8089", Token: "s"} }, ""},
		{"status loopback", func(c *Config) { c.Status = StatusConfig{Enabled: true, Addr: "[::1]:8089"} }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base()
			tt.mutate(c)
			err := Validate(c)
			if tt.errHas == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errHas) {
				t.Fatalf("err = %v, want mention of %q", err, tt.errHas)
			}
		})
	}
}

func TestLoadAppliesEnv(t *testing.T) {
	p := writeFile(t, "config.yaml", sampleYAML)
	t.Setenv(EnvDiscordToken, "env-token")
	t.Setenv(EnvSchedulesFile, "/var/lib/bizbot/schedules.json")

	m := NewConfigManager(p)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "env-token" {
		t.Fatalf("token = %q", cfg.Discord.Token)
	}
	if cfg.Schedules.Path != "/var/lib/bizbot/schedules.json" {
		t.Fatalf("schedules.path = %q", cfg.Schedules.Path)
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit")
	}
}

func TestLoadMissingToken(t *testing.T) {
	t.Setenv(EnvDiscordToken, "")
	p := writeFile(t, "config.json", `{"discord":{"token":""}}`)
	if _, err := NewConfigManager(p).Load(); err == nil {
		t.Fatal("expected missing token error")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg, err := Decode("c.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	newCfg, _ := Decode("c.yaml", []byte(sampleYAML))

	if sections, _ := SummarizeConfigChange(oldCfg, newCfg); len(sections) != 0 {
		t.Fatalf("identical configs changed %v", sections)
	}

	newCfg.Scheduler.Tick = "10s"
	newCfg.Status.Token = "secret"
	newCfg.Storage = &StorageConfig{Driver: "file", Path: "./data/bot"}
	sections, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"scheduler", "status", "storage"}
	if !slices.Equal(sections, want) {
		t.Fatalf("sections = %v want %v", sections, want)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	if got := RestartRequired(sections); !slices.Equal(got, []string{"storage"}) {
		t.Fatalf("RestartRequired = %v", got)
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("x", "", 5*time.Second); err != nil || d != 5*time.Second {
		t.Fatalf("default = %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "2m", time.Second); err != nil || d != 2*time.Minute {
		t.Fatalf("explicit = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative accepted")
	}
}

func TestWatchPublishesReload(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.json", `{"discord":{"token":"t"},"scheduler":{"enabled":true,"tick":"5s"}}`)
	m := NewConfigManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher a moment to attach before writing.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(p, []byte(`{"discord":{"token":"t"},"scheduler":{"enabled":true,"tick":"9s"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-sub:
		if cfg.Scheduler.Tick != "9s" {
			t.Fatalf("tick = %q", cfg.Scheduler.Tick)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published")
	}
}
