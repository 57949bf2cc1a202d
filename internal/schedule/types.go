package schedule

import (
	"errors"
	"time"
)

const (
	// MinEvery is the smallest allowed repeat interval.
	MinEvery = time.Minute
	// CatchUpCap bounds how many intervals a single bump may add before
	// snapping to now+every.
	CatchUpCap = 3
	// SafetyDelay keeps resume/edit from firing immediately.
	SafetyDelay = 5 * time.Second
	// MaxEmbedFields is Discord's per-embed field limit.
	MaxEmbedFields = 25
)

var ErrNotFound = errors.New("schedule not found")

type Type string

const (
	TypeText  Type = "text"
	TypeEmbed Type = "embed"
)

// Payload is the content sent on every run: TextPayload or EmbedPayload.
type Payload interface {
	Type() Type
	isPayload()
}

type TextPayload struct {
	Content string `json:"content"`
}

func (TextPayload) Type() Type { return TypeText }
func (TextPayload) isPayload() {}

type EmbedAuthor struct {
	Name    string `json:"name,omitempty"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"iconUrl,omitempty"`
}

type EmbedFooter struct {
	Text    string `json:"text,omitempty"`
	IconURL string `json:"iconUrl,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedPayload holds optional rich-message parts. Color is a hex string
// ("#5865F2"); an invalid color is dropped at render time.
type EmbedPayload struct {
	Title        string       `json:"title,omitempty"`
	Description  string       `json:"description,omitempty"`
	Color        string       `json:"color,omitempty"`
	Author       *EmbedAuthor `json:"author,omitempty"`
	Footer       *EmbedFooter `json:"footer,omitempty"`
	ImageURL     string       `json:"imageUrl,omitempty"`
	ThumbnailURL string       `json:"thumbnailUrl,omitempty"`
	Fields       []EmbedField `json:"fields,omitempty"`
	Timestamp    bool         `json:"timestamp,omitempty"`
}

func (EmbedPayload) Type() Type { return TypeEmbed }
func (EmbedPayload) isPayload() {}

// clone copies the fields slice and the author and footer so the result
// shares no memory with p.
func (p EmbedPayload) clone() EmbedPayload {
	if p.Author != nil {
		a := *p.Author
		p.Author = &a
	}
	if p.Footer != nil {
		f := *p.Footer
		p.Footer = &f
	}
	if p.Fields != nil {
		p.Fields = append([]EmbedField(nil), p.Fields...)
	}
	return p
}

func clonePayload(p Payload) Payload {
	if e, ok := p.(EmbedPayload); ok {
		return e.clone()
	}
	return p
}

// Schedule is a recurring message definition plus its run state.
type Schedule struct {
	ID        int64
	GuildID   string
	ChannelID string
	Payload   Payload
	Every     time.Duration
	Ping      string

	Active bool
	Paused bool

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time

	Runs      int64
	LastRunAt time.Time // zero if never run
	LastError string    // empty if the last run succeeded
	NextRunAt time.Time
}

// clone returns a copy of s that shares no memory with the stored schedule.
func (s *Schedule) clone() Schedule {
	out := *s
	out.Payload = clonePayload(s.Payload)
	return out
}

func (s Schedule) Type() Type {
	if s.Payload == nil {
		return TypeText
	}
	return s.Payload.Type()
}

// Key identifies a schedule across guilds ("guild:id").
func (s Schedule) Key() Key { return Key{GuildID: s.GuildID, ID: s.ID} }

type Key struct {
	GuildID string
	ID      int64
}

func (k Key) String() string { return k.GuildID + ":" + itoa(k.ID) }

// Definition is what the interaction layer supplies to create a schedule.
// Every below MinEvery is clamped.
type Definition struct {
	GuildID    string
	ChannelID  string
	Payload    Payload
	Every      time.Duration
	StartDelay time.Duration
	Ping       string
	CreatedBy  string
}

// Patch edits a schedule. Nil members are left unchanged.
type Patch struct {
	ChannelID *string
	Every     *time.Duration
	Ping      *string
}

// Outcome is the result of one dispatch attempt, as recorded by RecordRun.
type Outcome struct {
	OK    bool
	Error string
}

// Stats is a cheap summary for status surfaces.
type Stats struct {
	Guilds    int
	Schedules int
	Paused    int
	Failing   int
	NextID    int64
	// Dropped counts occurrences skipped by the catch-up cap since Load.
	Dropped int64
}
