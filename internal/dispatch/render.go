package dispatch

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"bizbot/internal/schedule"
	"bizbot/internal/transport"
)

// Discord message limits.
const (
	MaxContent     = 2000
	MaxTitle       = 256
	MaxDescription = 4096
	MaxAuthorName  = 256
	MaxFooterText  = 2048
	MaxFieldName   = 256
	MaxFieldValue  = 1024

	// MaxEmbedTotal caps title, description, author, footer and field
	// text of one embed combined.
	MaxEmbedTotal = 6000
)

var (
	ErrEmptyText  = errors.New("text payload is empty")
	ErrEmptyEmbed = errors.New("embed payload is empty")
)

// Render builds the outgoing message for s. now stamps embeds that ask for a
// timestamp. The ping line is the only source of allowed mentions.
func Render(s schedule.Schedule, now time.Time) (transport.OutgoingMessage, error) {
	ping := strings.TrimSpace(s.Ping)
	msg := transport.OutgoingMessage{Mentions: ParseMentions(ping)}

	switch p := s.Payload.(type) {
	case schedule.TextPayload:
		body := strings.TrimSpace(p.Content)
		if body == "" {
			return transport.OutgoingMessage{}, ErrEmptyText
		}
		if ping != "" {
			body = ping + "\n" + body
		}
		msg.Content = transport.Truncate(body, MaxContent)
	case schedule.EmbedPayload:
		e, ok := renderEmbed(p, now)
		if !ok {
			return transport.OutgoingMessage{}, ErrEmptyEmbed
		}
		msg.Embeds = []transport.Embed{e}
		msg.Content = transport.Truncate(ping, MaxContent)
	case nil:
		return transport.OutgoingMessage{}, errors.New("schedule has no payload")
	default:
		return transport.OutgoingMessage{}, fmt.Errorf("unsupported payload type %T", p)
	}
	return msg, nil
}

func renderEmbed(p schedule.EmbedPayload, now time.Time) (transport.Embed, bool) {
	e := capEmbed(p)
	fitEmbed(&e)

	// Color and timestamp alone do not make a visible embed.
	visible := e.Title != "" || e.Description != "" || e.Author != nil || e.Footer != nil ||
		e.ImageURL != "" || e.ThumbnailURL != "" || len(e.Fields) > 0
	if !visible {
		return transport.Embed{}, false
	}
	if p.Timestamp {
		e.Timestamp = now.UTC().Format(time.RFC3339)
	}
	return e, true
}

// EmbedSize is the combined text length of p once each part is capped to
// its own limit. Anything above MaxEmbedTotal is trimmed at send time.
func EmbedSize(p schedule.EmbedPayload) int {
	return embedSize(capEmbed(p))
}

// capEmbed applies the per-part limits.
func capEmbed(p schedule.EmbedPayload) transport.Embed {
	e := transport.Embed{
		Title:        transport.Truncate(strings.TrimSpace(p.Title), MaxTitle),
		Description:  transport.Truncate(strings.TrimSpace(p.Description), MaxDescription),
		ImageURL:     strings.TrimSpace(p.ImageURL),
		ThumbnailURL: strings.TrimSpace(p.ThumbnailURL),
	}
	if c, ok := ParseColor(p.Color); ok {
		e.Color = c
	}
	if p.Author != nil && strings.TrimSpace(p.Author.Name) != "" {
		e.Author = &transport.EmbedAuthor{
			Name:    transport.Truncate(strings.TrimSpace(p.Author.Name), MaxAuthorName),
			URL:     strings.TrimSpace(p.Author.URL),
			IconURL: strings.TrimSpace(p.Author.IconURL),
		}
	}
	if p.Footer != nil && strings.TrimSpace(p.Footer.Text) != "" {
		e.Footer = &transport.EmbedFooter{
			Text:    transport.Truncate(strings.TrimSpace(p.Footer.Text), MaxFooterText),
			IconURL: strings.TrimSpace(p.Footer.IconURL),
		}
	}
	for _, f := range p.Fields {
		if len(e.Fields) == schedule.MaxEmbedFields {
			break
		}
		name := strings.TrimSpace(f.Name)
		value := strings.TrimSpace(f.Value)
		if name == "" || value == "" {
			continue
		}
		e.Fields = append(e.Fields, transport.EmbedField{
			Name:   transport.Truncate(name, MaxFieldName),
			Value:  transport.Truncate(value, MaxFieldValue),
			Inline: f.Inline,
		})
	}
	return e
}

// fitEmbed shortens the description, then drops fields from the end, until
// e fits MaxEmbedTotal. Title, author and footer are capped well below the
// total, so they are never touched.
func fitEmbed(e *transport.Embed) {
	over := embedSize(*e) - MaxEmbedTotal
	if over <= 0 {
		return
	}
	if n := utf8.RuneCountInString(e.Description); n > 0 {
		cut := min(over, n)
		e.Description = transport.Truncate(e.Description, n-cut)
		over -= n - utf8.RuneCountInString(e.Description)
	}
	for over > 0 && len(e.Fields) > 0 {
		last := e.Fields[len(e.Fields)-1]
		over -= utf8.RuneCountInString(last.Name) + utf8.RuneCountInString(last.Value)
		e.Fields = e.Fields[:len(e.Fields)-1]
	}
}

func embedSize(e transport.Embed) int {
	n := utf8.RuneCountInString(e.Title) + utf8.RuneCountInString(e.Description)
	if e.Author != nil {
		n += utf8.RuneCountInString(e.Author.Name)
	}
	if e.Footer != nil {
		n += utf8.RuneCountInString(e.Footer.Text)
	}
	for _, f := range e.Fields {
		n += utf8.RuneCountInString(f.Name) + utf8.RuneCountInString(f.Value)
	}
	return n
}

// ParseColor accepts "#RRGGBB", "RRGGBB" and "0xRRGGBB".
func ParseColor(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "#")
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if len(s) != 6 {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return int(v), true
}

var (
	roleMention = regexp.MustCompile(`<@&(\d+)>`)
	userMention = regexp.MustCompile(`<@!?(\d+)>`)
)

// ParseMentions derives the allowed mentions from a ping string. Only what
// the ping names may notify anyone.
func ParseMentions(ping string) transport.AllowedMentions {
	var am transport.AllowedMentions
	if ping == "" {
		return am
	}
	if strings.Contains(ping, "@everyone") || strings.Contains(ping, "@here") {
		am.Everyone = true
	}
	for _, m := range roleMention.FindAllStringSubmatch(ping, -1) {
		am.Roles = appendUnique(am.Roles, m[1])
	}
	for _, m := range userMention.FindAllStringSubmatch(ping, -1) {
		am.Users = appendUnique(am.Users, m[1])
	}
	return am
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
