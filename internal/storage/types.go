package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines audit log plus a dedup snapshot/journal
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one moderator action on a schedule.
type AuditEntry struct {
	At         time.Time `json:"at" db:"at"`
	GuildID    string    `json:"guild_id" db:"guild_id"`
	ActorID    string    `json:"actor_id" db:"actor_id"`
	ActorName  string    `json:"actor_name,omitempty" db:"actor_name"`
	Action     string    `json:"action" db:"action"`
	ScheduleID int64     `json:"schedule_id,omitempty" db:"schedule_id"`
	ChannelID  string    `json:"channel_id,omitempty" db:"channel_id"`
	OK         bool      `json:"ok" db:"ok"`
	Error      string    `json:"error,omitempty" db:"err"`
	Meta       string    `json:"meta,omitempty" db:"meta"`
}
