package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"bizbot/internal/schedule"
	"bizbot/internal/transport"
	logx "bizbot/pkg/logx"
)

type fakeAdapter struct {
	mu       sync.Mutex
	channels map[string]*transport.Channel
	lookup   error
	sendErr  error
	panicOn  string
	sent     []sentMessage
}

type sentMessage struct {
	channel string
	msg     transport.OutgoingMessage
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                          { return nil }

func (f *fakeAdapter) Channel(_ context.Context, id string) (*transport.Channel, error) {
	if f.panicOn == id {
		panic("boom")
	}
	if f.lookup != nil {
		return nil, f.lookup
	}
	return f.channels[id], nil
}

func (f *fakeAdapter) Send(_ context.Context, channelID string, msg transport.OutgoingMessage) (transport.MessageRef, error) {
	if f.sendErr != nil {
		return transport.MessageRef{}, f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{channel: channelID, msg: msg})
	return transport.MessageRef{ChannelID: channelID, MessageID: "m1"}, nil
}

func (f *fakeAdapter) Reply(context.Context, *transport.Command, transport.Reply) error { return nil }

func newFake() *fakeAdapter {
	return &fakeAdapter{channels: map[string]*transport.Channel{
		"text":  {ID: "text", GuildID: "g", TextBased: true},
		"voice": {ID: "voice", GuildID: "g"},
	}}
}

func textSchedule(channel, content, ping string) schedule.Schedule {
	return schedule.Schedule{ID: 1, GuildID: "g", ChannelID: channel, Payload: schedule.TextPayload{Content: content}, Ping: ping, Every: time.Hour}
}

func TestSendText(t *testing.T) {
	t.Parallel()
	fa := newFake()
	svc := New(fa, Config{RatePerSec: 100}, logx.Nop())

	res := svc.Send(context.Background(), textSchedule("text", "Daily standup", "<@&42>"))
	if !res.OK || res.MessageID != "m1" {
		t.Fatalf("result = %+v", res)
	}
	if len(fa.sent) != 1 {
		t.Fatalf("sent = %d", len(fa.sent))
	}
	got := fa.sent[0].msg
	if got.Content != "<@&42>\nDaily standup" {
		t.Fatalf("content = %q", got.Content)
	}
	if len(got.Mentions.Roles) != 1 || got.Mentions.Roles[0] != "42" || got.Mentions.Everyone {
		t.Fatalf("mentions = %+v", got.Mentions)
	}
}

func TestSendChannelUnavailable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		channel string
		lookup  error
	}{
		{name: "missing", channel: "gone"},
		{name: "not text", channel: "voice"},
		{name: "lookup error", channel: "text", lookup: errors.New("403 forbidden")},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fa := newFake()
			fa.lookup = tt.lookup
			res := New(fa, Config{}, logx.Nop()).Send(context.Background(), textSchedule(tt.channel, "hi", ""))
			if res.OK || res.Error != ErrChannelUnavailable {
				t.Fatalf("result = %+v", res)
			}
			if len(fa.sent) != 0 {
				t.Fatal("message sent to unavailable channel")
			}
		})
	}
}

func TestSendPlatformErrorAndPanic(t *testing.T) {
	t.Parallel()
	fa := newFake()
	fa.sendErr = errors.New("HTTP 403 Forbidden\nMissing Access")
	res := New(fa, Config{}, logx.Nop()).Send(context.Background(), textSchedule("text", "hi", ""))
	if res.OK || res.Error != "HTTP 403 Forbidden" {
		t.Fatalf("result = %+v", res)
	}

	fp := newFake()
	fp.panicOn = "text"
	res = New(fp, Config{}, logx.Nop()).Send(context.Background(), textSchedule("text", "hi", ""))
	if res.OK || !strings.Contains(res.Error, "boom") {
		t.Fatalf("panic result = %+v", res)
	}
}

func TestSendCancelledContext(t *testing.T) {
	t.Parallel()
	fa := newFake()
	svc := New(fa, Config{RatePerSec: 0.001, Burst: 1}, logx.Nop())
	// Spend the only token.
	if res := svc.Send(context.Background(), textSchedule("text", "one", "")); !res.OK {
		t.Fatalf("first send = %+v", res)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if res := svc.Send(ctx, textSchedule("text", "two", "")); res.OK {
		t.Fatal("send should fail with cancelled context")
	}
	if len(fa.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(fa.sent))
	}
}

func TestRenderTextLimits(t *testing.T) {
	t.Parallel()
	if _, err := Render(textSchedule("c", "   ", ""), time.Now()); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	long := strings.Repeat("é", 2500)
	msg, err := Render(textSchedule("c", long, ""), time.Now())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if n := utf8.RuneCountInString(msg.Content); n != MaxContent {
		t.Fatalf("content runes = %d, want %d", n, MaxContent)
	}
	if msg.Mentions.Everyone || len(msg.Mentions.Roles) != 0 || len(msg.Mentions.Users) != 0 {
		t.Fatalf("unexpected mentions: %+v", msg.Mentions)
	}
}

func TestRenderEmbed(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fields := make([]schedule.EmbedField, 0, 30)
	for i := 0; i < 30; i++ {
		fields = append(fields, schedule.EmbedField{Name: "n", Value: "v", Inline: i%2 == 0})
	}
	fields = append([]schedule.EmbedField{{Name: "", Value: "dropped"}}, fields...)
	sc := schedule.Schedule{
		GuildID: "g", ChannelID: "c", Ping: "@here",
		Payload: schedule.EmbedPayload{
			Title:     strings.Repeat("t", 300),
			Color:     "#5865F2",
			Footer:    &schedule.EmbedFooter{Text: "footer"},
			Fields:    fields,
			Timestamp: true,
		},
	}
	msg, err := Render(sc, now)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(msg.Embeds) != 1 {
		t.Fatalf("embeds = %d", len(msg.Embeds))
	}
	e := msg.Embeds[0]
	if utf8.RuneCountInString(e.Title) != MaxTitle {
		t.Fatalf("title runes = %d", utf8.RuneCountInString(e.Title))
	}
	if e.Color != 0x5865F2 {
		t.Fatalf("color = %#x", e.Color)
	}
	if len(e.Fields) != schedule.MaxEmbedFields {
		t.Fatalf("fields = %d", len(e.Fields))
	}
	if e.Timestamp != "2026-03-01T12:00:00Z" {
		t.Fatalf("timestamp = %q", e.Timestamp)
	}
	if msg.Content != "@here" || !msg.Mentions.Everyone {
		t.Fatalf("content=%q mentions=%+v", msg.Content, msg.Mentions)
	}
}

func TestRenderEmbedTotalBudget(t *testing.T) {
	t.Parallel()
	bigFields := func(n int) []schedule.EmbedField {
		out := make([]schedule.EmbedField, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, schedule.EmbedField{
				Name:  string(rune('a'+i%26)) + strings.Repeat("n", MaxFieldName-1),
				Value: strings.Repeat("é", MaxFieldValue),
			})
		}
		return out
	}
	tests := []struct {
		name       string
		payload    schedule.EmbedPayload
		wantDesc   int
		wantFields int
	}{
		{
			name:       "within budget untouched",
			payload:    schedule.EmbedPayload{Description: strings.Repeat("d", 1000), Fields: bigFields(3)},
			wantDesc:   1000,
			wantFields: 3,
		},
		{
			name:       "description trimmed first",
			payload:    schedule.EmbedPayload{Title: strings.Repeat("t", MaxTitle), Description: strings.Repeat("d", MaxDescription), Fields: bigFields(2)},
			wantDesc:   MaxEmbedTotal - MaxTitle - 2*(MaxFieldName+MaxFieldValue),
			wantFields: 2,
		},
		{
			name: "fields dropped from the end",
			payload: schedule.EmbedPayload{
				Title:       strings.Repeat("t", MaxTitle),
				Description: strings.Repeat("d", MaxDescription),
				Author:      &schedule.EmbedAuthor{Name: strings.Repeat("a", MaxAuthorName)},
				Footer:      &schedule.EmbedFooter{Text: strings.Repeat("f", MaxFooterText)},
				Fields:      bigFields(schedule.MaxEmbedFields),
			},
			wantDesc:   0,
			wantFields: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, err := Render(schedule.Schedule{ChannelID: "c", Payload: tt.payload}, time.Now())
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			e := msg.Embeds[0]
			if n := embedSize(e); n > MaxEmbedTotal {
				t.Fatalf("embed size = %d, over %d", n, MaxEmbedTotal)
			}
			if n := utf8.RuneCountInString(e.Description); n != tt.wantDesc {
				t.Fatalf("description runes = %d want %d", n, tt.wantDesc)
			}
			if len(e.Fields) != tt.wantFields {
				t.Fatalf("fields = %d want %d", len(e.Fields), tt.wantFields)
			}
			for i, f := range e.Fields {
				if f.Name[0] != byte('a'+i) {
					t.Fatalf("field %d = %q, leading fields must survive", i, f.Name[:1])
				}
			}
		})
	}
}

func TestEmbedSize(t *testing.T) {
	t.Parallel()
	p := schedule.EmbedPayload{
		Title:       strings.Repeat("t", MaxTitle+50),
		Description: "  hello  ",
		Footer:      &schedule.EmbedFooter{Text: "ft"},
		Fields:      []schedule.EmbedField{{Name: "n", Value: "vv"}, {Name: "", Value: "skipped"}},
	}
	if got, want := EmbedSize(p), MaxTitle+5+2+3; got != want {
		t.Fatalf("EmbedSize = %d want %d", got, want)
	}
}

func TestRenderEmptyEmbed(t *testing.T) {
	t.Parallel()
	sc := schedule.Schedule{Payload: schedule.EmbedPayload{Color: "#ffffff", Timestamp: true, Author: &schedule.EmbedAuthor{}}}
	if _, err := Render(sc, time.Now()); !errors.Is(err, ErrEmptyEmbed) {
		t.Fatalf("err = %v, want ErrEmptyEmbed", err)
	}
	res := New(newFake(), Config{}, logx.Nop()).Send(context.Background(), schedule.Schedule{ChannelID: "text", Payload: sc.Payload})
	if res.OK || res.Error != "embed payload is empty" {
		t.Fatalf("result = %+v", res)
	}
}

func TestParseColor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{in: "#FF0000", want: 0xFF0000, ok: true},
		{in: "00ff00", want: 0x00FF00, ok: true},
		{in: "0x0000FF", want: 0x0000FF, ok: true},
		{in: "red"},
		{in: "#12345"},
		{in: ""},
		{in: "#GGGGGG"},
	}
	for _, tt := range tests {
		got, ok := ParseColor(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("ParseColor(%q) = %#x,%v want %#x,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseMentions(t *testing.T) {
	t.Parallel()
	am := ParseMentions("<@&1> <@2> <@!3> <@&1>")
	if len(am.Roles) != 1 || am.Roles[0] != "1" {
		t.Fatalf("roles = %v", am.Roles)
	}
	if len(am.Users) != 2 || am.Users[0] != "2" || am.Users[1] != "3" {
		t.Fatalf("users = %v", am.Users)
	}
	if am.Everyone {
		t.Fatal("everyone should be false")
	}
	if got := ParseMentions(""); got.Everyone || got.Roles != nil || got.Users != nil {
		t.Fatalf("empty ping = %+v", got)
	}
}
