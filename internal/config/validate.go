package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate rejects configs that cannot start. Hot reloads run it too, so a
// bad edit keeps the previous config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Discord.Token) == "" {
		return fmt.Errorf("discord.token is required (or set %s)", EnvDiscordToken)
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Schedules.Driver)); d {
	case "", "file", "json":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Schedules.Path) == "" {
			return errors.New("schedules.path is required when schedules.driver=sqlite")
		}
	case "mysql":
		if strings.TrimSpace(cfg.Schedules.DSN) == "" {
			return errors.New("schedules.dsn is required when schedules.driver=mysql")
		}
	default:
		return fmt.Errorf("unknown schedules.driver: %s", cfg.Schedules.Driver)
	}

	if _, err := ParseDurationField("scheduler.tick", cfg.Scheduler.Tick); err != nil {
		return err
	}
	if cfg.Scheduler.MaxSendsPerTick < 0 {
		return errors.New("scheduler.max_sends_per_tick must be >= 0")
	}
	if cfg.Dispatch.RatePerSec < 0 || cfg.Dispatch.Burst < 0 {
		return errors.New("dispatch.rate_per_sec and dispatch.burst must be >= 0")
	}

	if n := cfg.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 || n.DedupMaxEntries < 0 {
			return errors.New("notifier: numeric fields must be >= 0")
		}
		for key, raw := range map[string]string{
			"notifier.retry_base":      n.RetryBase,
			"notifier.retry_max_delay": n.RetryMaxDelay,
			"notifier.dedup_window":    n.DedupWindow,
		} {
			if _, err := ParseDurationField(key, raw); err != nil {
				return err
			}
		}
	}

	if s := cfg.Storage; s != nil {
		switch d := strings.ToLower(strings.TrimSpace(s.Driver)); d {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("storage.path is required when storage.driver=%s", d)
			}
			if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown storage.driver: %s", s.Driver)
		}
	}

	return validateStatus(cfg.Status)
}

func validateStatus(s StatusConfig) error {
	for key, raw := range map[string]string{
		"status.read_timeout":  s.ReadTimeout,
		"status.write_timeout": s.WriteTimeout,
		"status.idle_timeout":  s.IdleTimeout,
	} {
		if _, err := ParseDurationField(key, raw); err != nil {
			return err
		}
	}
	if !s.Enabled {
		return nil
	}
	addr := strings.TrimSpace(s.Addr)
	if addr == "" {
		return nil
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("status.addr: %w", err)
	}
	if !IsLoopbackHost(host) && strings.TrimSpace(s.Token) == "" && !s.AllowInsecure {
		return errors.New("status.addr is not loopback: set status.token or status.allow_insecure")
	}
	return nil
}

// IsLoopbackHost reports whether host only accepts local connections.
// An empty host binds every interface and is not loopback.
func IsLoopbackHost(host string) bool {
	host = strings.Trim(strings.TrimSpace(host), "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
