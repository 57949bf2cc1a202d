package scheduler

import (
	"context"
	"time"

	"bizbot/internal/dispatch"
	"bizbot/internal/schedule"
	"bizbot/internal/transport"
)

const (
	DefaultTick            = 5 * time.Second
	MinTick                = time.Second
	DefaultMaxSendsPerTick = 3
)

// Event types published on the bus after each processed occurrence.
const (
	EventRun    = "schedule.run"
	EventFailed = "schedule.failed"
)

type Config struct {
	Enabled         bool
	Tick            time.Duration
	MaxSendsPerTick int
}

func (c Config) normalized() Config {
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if c.Tick < MinTick {
		c.Tick = MinTick
	}
	if c.MaxSendsPerTick <= 0 {
		c.MaxSendsPerTick = DefaultMaxSendsPerTick
	}
	return c
}

// Store is the part of schedule.Store the runner needs.
type Store interface {
	ComputeDue(now time.Time) []schedule.Schedule
	Get(guildID string, id int64) (schedule.Schedule, bool)
	RecordRun(ctx context.Context, guildID string, id int64, out schedule.Outcome, now time.Time) (schedule.Schedule, int, error)
}

type Dispatcher interface {
	Send(ctx context.Context, sc schedule.Schedule) dispatch.Result
}

// Alerter receives staff alerts for failed runs (notifier.Service).
type Alerter interface {
	Notify(ctx context.Context, n transport.Notification) error
}

// RunEvent is the bus payload for EventRun and EventFailed.
type RunEvent struct {
	GuildID   string    `json:"guild_id"`
	ID        int64     `json:"id"`
	ChannelID string    `json:"channel_id"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Runs      int64     `json:"runs"`
	NextRunAt time.Time `json:"next_run_at"`
	At        time.Time `json:"at"`
}

// TickReport summarizes one Tick.
type TickReport struct {
	At        time.Time     `json:"at"`
	Due       int           `json:"due"`
	Enqueued  int           `json:"enqueued"`
	Sent      int           `json:"sent"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Dropped   int           `json:"dropped"`
	Remaining int           `json:"remaining"`
	Took      time.Duration `json:"took"`
}

type Snapshot struct {
	Enabled         bool          `json:"enabled"`
	Running         bool          `json:"running"`
	Tick            time.Duration `json:"tick"`
	MaxSendsPerTick int           `json:"max_sends_per_tick"`

	QueueLen int      `json:"queue_len"`
	Queued   []string `json:"queued,omitempty"`

	Ticks   uint64 `json:"ticks"`
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Skipped uint64 `json:"skipped"`
	Dropped uint64 `json:"dropped"`

	Last TickReport `json:"last"`
}
