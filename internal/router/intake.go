package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bizbot/internal/dispatch"
	"bizbot/internal/schedule"
	kit "bizbot/internal/transport"
)

// errUser is an intake error whose message is shown to the member as is.
type errUser struct{ msg string }

func (e errUser) Error() string { return e.msg }

func userErr(format string, a ...any) error { return errUser{msg: fmt.Sprintf(format, a...)} }

// unescape turns the literal "\n" members type into line breaks.
func unescape(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

// minutes converts a minute option. Values under one minute are clamped and
// reported through clamped.
func minutes(cmd *kit.Command, name string) (d time.Duration, set, clamped bool) {
	v, ok := cmd.Int(name)
	if !ok {
		return 0, false, false
	}
	d = time.Duration(v) * time.Minute
	if d < schedule.MinEvery {
		return schedule.MinEvery, true, true
	}
	return d, true, false
}

// resolveChannel checks that id names a text channel of the invoking guild
// the bot can see.
func (m *CommandManager) resolveChannel(ctx context.Context, cmd *kit.Command, id string) (*kit.Channel, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, userErr("A channel is required.")
	}
	ch, err := m.adapter.Channel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("channel lookup: %w", err)
	}
	if ch == nil || !ch.TextBased {
		return nil, userErr("I can't post in <#%s>. Pick a text channel I can see.", id)
	}
	if ch.GuildID != "" && ch.GuildID != cmd.GuildID {
		return nil, userErr("That channel belongs to another server.")
	}
	return ch, nil
}

// parseFields reads "name=value; name2=value2". A trailing "=inline" on a
// pair ("name=value=inline") marks the field inline.
func parseFields(raw string) ([]schedule.EmbedField, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []schedule.EmbedField
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			return nil, userErr("Field %q must look like name=value.", part)
		}
		inline := false
		if v, flag, ok := strings.Cut(value, "="); ok && strings.EqualFold(strings.TrimSpace(flag), "inline") {
			value, inline = strings.TrimSpace(v), true
		}
		out = append(out, schedule.EmbedField{Name: unescape(name), Value: unescape(value), Inline: inline})
	}
	return out, nil
}

// embedPayload builds an embed from the command options.
func embedPayload(cmd *kit.Command) (schedule.EmbedPayload, []string, error) {
	var notes []string
	str := func(name string) string {
		v, _ := cmd.String(name)
		return strings.TrimSpace(v)
	}
	p := schedule.EmbedPayload{
		Title:        unescape(str(kit.OptTitle)),
		Description:  unescape(str(kit.OptDesc)),
		ImageURL:     str(kit.OptImage),
		ThumbnailURL: str(kit.OptThumbnail),
	}
	if c := str(kit.OptColor); c != "" {
		if _, ok := dispatch.ParseColor(c); !ok {
			return p, nil, userErr("Color %q is not a hex color like #5865F2.", c)
		}
		p.Color = c
	}
	if a := str(kit.OptAuthor); a != "" {
		p.Author = &schedule.EmbedAuthor{Name: a}
	}
	if f := str(kit.OptFooter); f != "" {
		p.Footer = &schedule.EmbedFooter{Text: unescape(f)}
	}
	for _, u := range []string{p.ImageURL, p.ThumbnailURL} {
		if u != "" && !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") {
			return p, nil, userErr("Image URLs must start with https://.")
		}
	}
	fields, err := parseFields(str(kit.OptFields))
	if err != nil {
		return p, nil, err
	}
	if len(fields) > schedule.MaxEmbedFields {
		notes = append(notes, fmt.Sprintf("Only the first %d fields are kept.", schedule.MaxEmbedFields))
		fields = fields[:schedule.MaxEmbedFields]
	}
	p.Fields = fields
	p.Timestamp, _ = cmd.Bool(kit.OptTimestamp)
	if n := dispatch.EmbedSize(p); n > dispatch.MaxEmbedTotal {
		return p, nil, userErr("That embed holds %d characters of text; Discord allows %d per embed. Shorten the description or fields.", n, dispatch.MaxEmbedTotal)
	}

	if p.Title == "" && p.Description == "" && p.ImageURL == "" && p.ThumbnailURL == "" &&
		len(p.Fields) == 0 && p.Author == nil && p.Footer == nil {
		return p, nil, userErr("An embed needs at least a title, description, image or field.")
	}
	return p, notes, nil
}

// replyErr shows user errors verbatim and hides internal ones.
func replyErr(ctx context.Context, req *Request, err error) error {
	var ue errUser
	if errors.As(err, &ue) {
		return req.reply(ctx, ue.msg)
	}
	if errors.Is(err, schedule.ErrNotFound) {
		return req.reply(ctx, "Schedule not found in this server.")
	}
	_ = req.reply(ctx, "Something went wrong, try again.")
	return err
}
