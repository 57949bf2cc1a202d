package config

import (
	"reflect"
	"sort"
	"strings"

	logx "bizbot/pkg/logx"
)

// SummarizeConfigChange lists the changed top-level sections and returns
// log fields describing them. Secrets (tokens, DSNs) are reported only as
// "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	od, nd := oldCfg.Discord, newCfg.Discord
	if od.Token != nd.Token ||
		strings.TrimSpace(od.ApplicationID) != strings.TrimSpace(nd.ApplicationID) ||
		!reflect.DeepEqual(od.GuildIDs, nd.GuildIDs) ||
		strings.TrimSpace(od.LogChannelID) != strings.TrimSpace(nd.LogChannelID) ||
		!reflect.DeepEqual(od.StaffRoleIDs, nd.StaffRoleIDs) {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.Bool("discord.token_changed", od.Token != nd.Token),
			logx.Int("discord.guild_count", len(nd.GuildIDs)),
			logx.Int("discord.staff_role_count", len(nd.StaffRoleIDs)),
			logx.Bool("discord.log_channel_set", strings.TrimSpace(nd.LogChannelID) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.discord_enabled", newCfg.Logging.Discord.Enabled),
		)
	}

	os, ns := oldCfg.Schedules, newCfg.Schedules
	if !strings.EqualFold(strings.TrimSpace(os.Driver), strings.TrimSpace(ns.Driver)) ||
		strings.TrimSpace(os.Path) != strings.TrimSpace(ns.Path) ||
		os.DSN != ns.DSN {
		changed = append(changed, "schedules")
		attrs = append(attrs,
			logx.String("schedules.driver", strings.TrimSpace(ns.Driver)),
			logx.String("schedules.path", strings.TrimSpace(ns.Path)),
			logx.Bool("schedules.dsn_set", ns.DSN != ""),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.tick", strings.TrimSpace(newCfg.Scheduler.Tick)),
			logx.Int("scheduler.max_sends_per_tick", newCfg.Scheduler.MaxSendsPerTick),
		)
	}

	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Any("dispatch.rate_per_sec", newCfg.Dispatch.RatePerSec),
			logx.Int("dispatch.burst", newCfg.Dispatch.Burst),
		)
	}

	def := DefaultNotifier()
	oldN, newN := oldCfg.Notifier, newCfg.Notifier
	if oldN == nil {
		oldN = &def
	}
	if newN == nil {
		newN = &def
	}
	if *oldN != *newN {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.Bool("notifier.channel_set", strings.TrimSpace(newN.ChannelID) != ""),
			logx.Int("notifier.workers", newN.Workers),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.String("notifier.dedup_window", newN.DedupWindow),
			logx.Bool("notifier.persist_dedup", newN.PersistDedup),
		)
	}

	var oStore, nStore StorageConfig
	if oldCfg.Storage != nil {
		oStore = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nStore = *newCfg.Storage
	}
	if oStore != nStore {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nStore.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nStore.Path) != ""),
		)
	}

	if oldCfg.Status != newCfg.Status {
		changed = append(changed, "status")
		attrs = append(attrs,
			logx.Bool("status.enabled", newCfg.Status.Enabled),
			logx.String("status.addr", strings.TrimSpace(newCfg.Status.Addr)),
			logx.Bool("status.token_set", strings.TrimSpace(newCfg.Status.Token) != ""),
			logx.Bool("status.pprof", newCfg.Status.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired reports the changed sections that only take effect after
// a restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "schedules", "storage":
			out = append(out, s)
		}
	}
	return out
}
