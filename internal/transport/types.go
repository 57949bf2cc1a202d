package transport

import "context"

type UpdateKind string

const (
	UpdateCommand UpdateKind = "command"
)

type Update struct {
	Kind    UpdateKind
	Command *Command
}

// Command is a decoded slash-command invocation.
//
// Options holds the leaf options of the invoked subcommand keyed by name.
// Values are string, int64, bool or a channel id (string).
type Command struct {
	InteractionID string
	GuildID       string
	ChannelID     string
	UserID        string
	Username      string
	Permissions   int64
	RoleIDs       []string

	Name    string // "schedule"
	Sub     string // "text", "list", ...
	Options map[string]any

	// Raw is the adapter-specific interaction handle (discord: *discordgo.Interaction).
	Raw any
}

func (c *Command) String(name string) (string, bool) {
	if c == nil || c.Options == nil {
		return "", false
	}
	v, ok := c.Options[name].(string)
	return v, ok
}

func (c *Command) Int(name string) (int64, bool) {
	if c == nil || c.Options == nil {
		return 0, false
	}
	switch v := c.Options[name].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func (c *Command) Bool(name string) (bool, bool) {
	if c == nil || c.Options == nil {
		return false, false
	}
	v, ok := c.Options[name].(bool)
	return v, ok
}

// Channel is a resolved destination channel.
type Channel struct {
	ID        string
	GuildID   string
	Name      string
	TextBased bool
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type EmbedAuthor struct {
	Name    string
	URL     string
	IconURL string
}

type EmbedFooter struct {
	Text    string
	IconURL string
}

// Embed is a platform-neutral rich message. Zero-valued members are omitted.
type Embed struct {
	Title        string
	Description  string
	Color        int // 0 means "no color"
	Author       *EmbedAuthor
	Footer       *EmbedFooter
	ImageURL     string
	ThumbnailURL string
	Fields       []EmbedField
	Timestamp    string // RFC3339, empty for none
}

// AllowedMentions restricts which mentions in Content actually ping.
// The zero value suppresses all pings.
type AllowedMentions struct {
	Everyone bool
	Roles    []string
	Users    []string
}

type OutgoingMessage struct {
	Content  string
	Embeds   []Embed
	Mentions AllowedMentions
}

type MessageRef struct {
	ChannelID string
	MessageID string
}

type Reply struct {
	Content   string
	Ephemeral bool
}

// Notification is a best-effort staff alert routed through the notifier.
type Notification struct {
	Priority  int // 0 low.. 10 high
	ChannelID string
	Text      string
	// DedupKey overrides the content-derived dedup key.
	DedupKey string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// Channel resolves a channel id. It returns (nil, nil) when the channel
	// does not exist or is not visible to the bot.
	Channel(ctx context.Context, channelID string) (*Channel, error)
	Send(ctx context.Context, channelID string, msg OutgoingMessage) (MessageRef, error)
	Reply(ctx context.Context, cmd *Command, reply Reply) error
}

// Slash command and option names shared by the adapter (registration,
// decoding) and the router.
const (
	CommandSchedule = "schedule"

	OptChannel   = "channel"
	OptMessage   = "message"
	OptEvery     = "every_minutes"
	OptStartIn   = "start_in_minutes"
	OptPing      = "ping"
	OptID        = "id"
	OptTitle     = "title"
	OptDesc      = "description"
	OptColor     = "color"
	OptFooter    = "footer"
	OptAuthor    = "author"
	OptImage     = "image_url"
	OptThumbnail = "thumbnail_url"
	OptFields    = "fields"
	OptTimestamp = "timestamp"
)
