package app

import (
	"strings"
	"time"

	"bizbot/internal/config"
	"bizbot/internal/dispatch"
	"bizbot/internal/notifier"
	"bizbot/internal/observability/status"
	"bizbot/internal/schedule"
	"bizbot/internal/scheduler"
	"bizbot/internal/storage"
	"bizbot/internal/transport/discord"
	logx "bizbot/pkg/logx"
)

func mapDiscordConfig(cfg *config.Config) discord.Config {
	return discord.Config{
		Token:         strings.TrimSpace(cfg.Discord.Token),
		ApplicationID: strings.TrimSpace(cfg.Discord.ApplicationID),
		GuildIDs:      cfg.Discord.GuildIDs,
	}
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Discord: logx.DiscordConfig{
			Enabled:    cfg.Logging.Discord.Enabled,
			ChannelID:  strings.TrimSpace(cfg.Discord.LogChannelID),
			MinLevel:   cfg.Logging.Discord.MinLevel,
			RatePerSec: cfg.Logging.Discord.RatePerSec,
		},
	}
}

func mapSchedulesConfig(cfg *config.Config) schedule.BackendConfig {
	return schedule.BackendConfig{
		Driver: cfg.Schedules.Driver,
		Path:   cfg.Schedules.Path,
		DSN:    cfg.Schedules.DSN,
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	tick, err := config.ParseDurationOrDefault("scheduler.tick", cfg.Scheduler.Tick, scheduler.DefaultTick)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:         cfg.Scheduler.Enabled,
		Tick:            tick,
		MaxSendsPerTick: cfg.Scheduler.MaxSendsPerTick,
	}, nil
}

func mapDispatchConfig(cfg *config.Config) dispatch.Config {
	return dispatch.Config{RatePerSec: cfg.Dispatch.RatePerSec, Burst: cfg.Dispatch.Burst}
}

// mapNotifierConfig fills omitted fields from config.DefaultNotifier. Alerts
// fall back to the log channel when no channel is set.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	def := config.DefaultNotifier()
	nc := def
	if cfg.Notifier != nil {
		nc = *cfg.Notifier
	}
	if nc.Workers <= 0 {
		nc.Workers = def.Workers
	}
	if nc.QueueSize <= 0 {
		nc.QueueSize = def.QueueSize
	}
	if nc.RatePerSec <= 0 {
		nc.RatePerSec = def.RatePerSec
	}
	if nc.DedupMaxEntries <= 0 {
		nc.DedupMaxEntries = def.DedupMaxEntries
	}

	retryBase, err := config.ParseDurationOrDefault("notifier.retry_base", nc.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationOrDefault("notifier.retry_max_delay", nc.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	dedupWindow, err := config.ParseDurationOrDefault("notifier.dedup_window", nc.DedupWindow, 10*time.Minute)
	if err != nil {
		return notifier.Config{}, err
	}

	ch := strings.TrimSpace(nc.ChannelID)
	if ch == "" {
		ch = strings.TrimSpace(cfg.Discord.LogChannelID)
	}
	return notifier.Config{
		Enabled:         nc.Enabled,
		ChannelID:       ch,
		Workers:         nc.Workers,
		QueueSize:       nc.QueueSize,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        nc.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		DedupWindow:     dedupWindow,
		DedupMaxEntries: nc.DedupMaxEntries,
		PersistDedup:    nc.PersistDedup,
	}, nil
}

// mapStorageConfig reports enabled=false for an omitted section or driver "none".
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, true, nil
}

func mapStatusConfig(cfg *config.Config) (status.Config, error) {
	sc := cfg.Status
	read, err := config.ParseDurationOrDefault("status.read_timeout", sc.ReadTimeout, 5*time.Second)
	if err != nil {
		return status.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("status.write_timeout", sc.WriteTimeout, 30*time.Second)
	if err != nil {
		return status.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("status.idle_timeout", sc.IdleTimeout, 60*time.Second)
	if err != nil {
		return status.Config{}, err
	}
	addr := strings.TrimSpace(sc.Addr)
	if addr == "" {
		addr = status.DefaultAddr
	}
	return status.Config{
		Enabled:       sc.Enabled,
		Addr:          addr,
		Token:         strings.TrimSpace(sc.Token),
		AllowInsecure: sc.AllowInsecure,
		Pprof:         sc.Pprof,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

// bootConfig holds the mappings that can fail, resolved before NewApp opens
// anything.
type bootConfig struct {
	scheduler scheduler.Config
	notifier  notifier.Config
	storage   storage.Config
	storageOn bool
	status    status.Config
}

func mapBootConfig(cfg *config.Config) (bootConfig, error) {
	var bc bootConfig
	var err error
	if bc.scheduler, err = mapSchedulerConfig(cfg); err != nil {
		return bootConfig{}, err
	}
	if bc.notifier, err = mapNotifierConfig(cfg); err != nil {
		return bootConfig{}, err
	}
	if bc.storage, bc.storageOn, err = mapStorageConfig(cfg); err != nil {
		return bootConfig{}, err
	}
	if bc.status, err = mapStatusConfig(cfg); err != nil {
		return bootConfig{}, err
	}
	return bc, nil
}

// validateMapped runs every mapping so a hot reload is rejected before commit.
func validateMapped(cfg *config.Config) error {
	_, err := mapBootConfig(cfg)
	return err
}

// discordRestartNeeded reports connection settings that only apply on restart.
func discordRestartNeeded(oldCfg, newCfg *config.Config) bool {
	if oldCfg == nil || newCfg == nil {
		return false
	}
	o, n := mapDiscordConfig(oldCfg), mapDiscordConfig(newCfg)
	return o.Token != n.Token || o.ApplicationID != n.ApplicationID || strings.Join(o.GuildIDs, ",") != strings.Join(n.GuildIDs, ",")
}
