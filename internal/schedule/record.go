package schedule

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Snapshot is the persisted state: every schedule of every guild plus the id
// counter. The JSON form is {"nextId": n, "schedules": [...]}.
type Snapshot struct {
	NextID    int64    `json:"nextId"`
	Schedules []Record `json:"schedules"`
}

// Record is the on-disk shape of a Schedule. Timestamps are unix millis.
// Pointer members distinguish "absent" from zero during normalization.
type Record struct {
	ID        int64           `json:"id"`
	GuildID   string          `json:"guildId"`
	ChannelID string          `json:"channelId"`
	Type      Type            `json:"type"`
	EveryMs   int64           `json:"everyMs"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Ping      string          `json:"ping,omitempty"`
	Active    *bool           `json:"active,omitempty"`
	Paused    bool            `json:"paused"`
	CreatedBy string          `json:"createdBy,omitempty"`
	CreatedAt int64           `json:"createdAt,omitempty"`
	UpdatedAt int64           `json:"updatedAt,omitempty"`
	Runs      int64           `json:"runs"`
	LastRunAt *int64          `json:"lastRunAt"`
	LastError *string         `json:"lastError"`
	NextRunAt *int64          `json:"nextRunAt"`
}

func toRecord(s *Schedule) Record {
	active := s.Active
	r := Record{
		ID:        s.ID,
		GuildID:   s.GuildID,
		ChannelID: s.ChannelID,
		Type:      s.Type(),
		EveryMs:   s.Every.Milliseconds(),
		Ping:      s.Ping,
		Active:    &active,
		Paused:    s.Paused,
		CreatedBy: s.CreatedBy,
		CreatedAt: millis(s.CreatedAt),
		UpdatedAt: millis(s.UpdatedAt),
		Runs:      s.Runs,
	}
	if s.Payload != nil {
		if b, err := json.Marshal(s.Payload); err == nil {
			r.Payload = b
		}
	}
	if !s.LastRunAt.IsZero() {
		v := s.LastRunAt.UnixMilli()
		r.LastRunAt = &v
	}
	if s.LastError != "" {
		v := s.LastError
		r.LastError = &v
	}
	next := s.NextRunAt.UnixMilli()
	r.NextRunAt = &next
	return r
}

// fromRecord normalizes a possibly malformed record into a usable schedule.
// It reports false only for records that cannot be keyed (no id or guild).
func fromRecord(r Record, now time.Time) (*Schedule, bool) {
	guild := strings.TrimSpace(r.GuildID)
	if r.ID <= 0 || guild == "" {
		return nil, false
	}
	every := ClampEvery(everyFromMillis(r.EveryMs))
	s := &Schedule{
		ID:        r.ID,
		GuildID:   guild,
		ChannelID: strings.TrimSpace(r.ChannelID),
		Every:     every,
		Ping:      r.Ping,
		Active:    true,
		Paused:    r.Paused,
		CreatedBy: r.CreatedBy,
		CreatedAt: fromMillis(r.CreatedAt, now),
		Runs:      max(r.Runs, 0),
		Payload:   decodePayload(r.Type, r.Payload),
	}
	s.UpdatedAt = fromMillis(r.UpdatedAt, s.CreatedAt)
	if r.Active != nil {
		s.Active = *r.Active
	}
	if r.LastRunAt != nil && *r.LastRunAt > 0 {
		s.LastRunAt = time.UnixMilli(*r.LastRunAt)
	}
	if r.LastError != nil {
		s.LastError = *r.LastError
	}
	if r.NextRunAt != nil && *r.NextRunAt > 0 {
		s.NextRunAt = time.UnixMilli(*r.NextRunAt)
	} else {
		s.NextRunAt = now.Add(every)
	}
	return s, true
}

// decodePayload never fails: unknown types and broken JSON degrade to an
// empty text payload, which the dispatcher reports as a send failure.
func decodePayload(t Type, raw json.RawMessage) Payload {
	switch t {
	case TypeEmbed:
		var p EmbedPayload
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &p)
		}
		if len(p.Fields) > MaxEmbedFields {
			p.Fields = p.Fields[:MaxEmbedFields]
		}
		return p
	default:
		var p TextPayload
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &p)
		}
		return p
	}
}

// maxEveryMs is the largest millisecond count a time.Duration can hold.
const maxEveryMs = math.MaxInt64 / int64(time.Millisecond)

// everyFromMillis converts a stored interval without overflowing. Values out
// of range saturate.
func everyFromMillis(ms int64) time.Duration {
	switch {
	case ms > maxEveryMs:
		ms = maxEveryMs
	case ms < 0:
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64, def time.Time) time.Time {
	if ms <= 0 {
		return def
	}
	return time.UnixMilli(ms)
}
