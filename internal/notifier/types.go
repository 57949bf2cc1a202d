package notifier

import "time"

// Config controls the async staff-alert pipeline.
type Config struct {
	Enabled bool
	// ChannelID receives notifications that name no channel of their own.
	ChannelID       string
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
}

type HistoryItem struct {
	At        time.Time `json:"at"`
	ChannelID string    `json:"channel_id"`
	Text      string    `json:"text"`
}

// Event is the bus payload for notifier.* events.
type Event struct {
	ChannelID string    `json:"channel_id"`
	Key       string    `json:"key"`
	At        time.Time `json:"at"`
	Error     string    `json:"error,omitempty"`
}

// Event types published on the bus.
const (
	EventQueued  = "notifier.queued"
	EventDeduped = "notifier.deduped"
	EventDropped = "notifier.dropped"
	EventSent    = "notifier.sent"
	EventFailed  = "notifier.failed"
)
