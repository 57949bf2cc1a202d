package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bizbot/internal/schedule"
	kit "bizbot/internal/transport"
)

func (m *CommandManager) handleText(ctx context.Context, req *Request) error {
	cmd := req.Cmd
	msg, _ := cmd.String(kit.OptMessage)
	msg = strings.TrimSpace(unescape(msg))
	if msg == "" {
		return req.reply(ctx, "The message can't be empty.")
	}
	return m.create(ctx, req, "add.text", schedule.TextPayload{Content: msg}, nil)
}

func (m *CommandManager) handleEmbed(ctx context.Context, req *Request) error {
	p, notes, err := embedPayload(req.Cmd)
	if err != nil {
		return replyErr(ctx, req, err)
	}
	return m.create(ctx, req, "add.embed", p, notes)
}

// create validates the shared intake options and adds the schedule.
func (m *CommandManager) create(ctx context.Context, req *Request, action string, p schedule.Payload, notes []string) error {
	cmd := req.Cmd
	chID, _ := cmd.String(kit.OptChannel)
	ch, err := m.resolveChannel(ctx, cmd, chID)
	if err != nil {
		m.record(ctx, req, action, 0, chID, err)
		return replyErr(ctx, req, err)
	}

	every, set, clamped := minutes(cmd, kit.OptEvery)
	if !set {
		return req.reply(ctx, "An interval in minutes is required.")
	}
	if clamped {
		notes = append(notes, "Interval raised to the 1 minute minimum.")
	}
	var startIn time.Duration
	if v, ok := cmd.Int(kit.OptStartIn); ok && v > 0 {
		startIn = time.Duration(v) * time.Minute
	}
	ping, _ := cmd.String(kit.OptPing)

	sc, err := m.store.Add(ctx, schedule.Definition{
		GuildID:    cmd.GuildID,
		ChannelID:  ch.ID,
		Payload:    p,
		Every:      every,
		StartDelay: startIn,
		Ping:       ping,
		CreatedBy:  cmd.UserID,
	})
	m.record(ctx, req, action, sc.ID, ch.ID, err)
	if err != nil {
		return replyErr(ctx, req, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Scheduled **#%d** in <#%s> %s. First post %s.", sc.ID, sc.ChannelID, humanEvery(sc.Every), relTime(sc.NextRunAt))
	for _, n := range notes {
		b.WriteString("\n")
		b.WriteString(n)
	}
	return req.reply(ctx, b.String())
}

func (m *CommandManager) handleList(ctx context.Context, req *Request) error {
	list := m.store.List(req.Cmd.GuildID)
	if len(list) == 0 {
		return req.reply(ctx, "No schedules in this server yet. Create one with /schedule text or /schedule embed.")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**%d schedule(s)**\n", len(list))
	for _, sc := range list {
		line := summaryLine(sc)
		if b.Len()+len(line) > 1900 {
			b.WriteString("…")
			break
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return req.reply(ctx, b.String())
}

func (m *CommandManager) handleInfo(ctx context.Context, req *Request) error {
	id, ok := req.Cmd.Int(kit.OptID)
	if !ok {
		return req.reply(ctx, "A schedule id is required.")
	}
	sc, found := m.store.Get(req.Cmd.GuildID, id)
	if !found {
		return replyErr(ctx, req, schedule.ErrNotFound)
	}
	return req.reply(ctx, detail(sc))
}

func (m *CommandManager) handlePause(ctx context.Context, req *Request) error {
	return m.byID(ctx, req, "pause", func(id int64) (string, error) {
		sc, err := m.store.Pause(ctx, req.Cmd.GuildID, id)
		return fmt.Sprintf("Paused **#%d**.", sc.ID), err
	})
}

func (m *CommandManager) handleResume(ctx context.Context, req *Request) error {
	return m.byID(ctx, req, "resume", func(id int64) (string, error) {
		sc, err := m.store.Resume(ctx, req.Cmd.GuildID, id)
		return fmt.Sprintf("Resumed **#%d**. Next post %s.", sc.ID, relTime(sc.NextRunAt)), err
	})
}

func (m *CommandManager) handleStop(ctx context.Context, req *Request) error {
	return m.byID(ctx, req, "stop", func(id int64) (string, error) {
		err := m.store.Remove(ctx, req.Cmd.GuildID, id)
		return fmt.Sprintf("Deleted **#%d**.", id), err
	})
}

func (m *CommandManager) handleRunNow(ctx context.Context, req *Request) error {
	return m.byID(ctx, req, "runnow", func(id int64) (string, error) {
		sc, err := m.store.RunNow(ctx, req.Cmd.GuildID, id)
		if err == nil && sc.Paused {
			return fmt.Sprintf("**#%d** is paused; it will post once resumed.", sc.ID), nil
		}
		return fmt.Sprintf("**#%d** will post on the next tick.", sc.ID), err
	})
}

func (m *CommandManager) handleEdit(ctx context.Context, req *Request) error {
	cmd := req.Cmd
	id, ok := cmd.Int(kit.OptID)
	if !ok {
		return req.reply(ctx, "A schedule id is required.")
	}
	if _, found := m.store.Get(cmd.GuildID, id); !found {
		return replyErr(ctx, req, schedule.ErrNotFound)
	}

	var (
		p     schedule.Patch
		notes []string
		chID  string
	)
	if raw, ok := cmd.String(kit.OptChannel); ok && strings.TrimSpace(raw) != "" {
		ch, err := m.resolveChannel(ctx, cmd, raw)
		if err != nil {
			m.record(ctx, req, "edit", id, raw, err)
			return replyErr(ctx, req, err)
		}
		chID = ch.ID
		p.ChannelID = &chID
	}
	if every, set, clamped := minutes(cmd, kit.OptEvery); set {
		p.Every = &every
		if clamped {
			notes = append(notes, "Interval raised to the 1 minute minimum.")
		}
	}
	if raw, ok := cmd.String(kit.OptPing); ok {
		ping := strings.TrimSpace(raw)
		if strings.EqualFold(ping, "none") {
			ping = ""
		}
		p.Ping = &ping
	}
	if p.ChannelID == nil && p.Every == nil && p.Ping == nil {
		return req.reply(ctx, "Nothing to change. Pass a channel, interval or ping.")
	}

	sc, err := m.store.Edit(ctx, cmd.GuildID, id, p)
	m.record(ctx, req, "edit", id, chID, err)
	if err != nil {
		return replyErr(ctx, req, err)
	}
	text := fmt.Sprintf("Updated **#%d**: <#%s> %s. Next post %s.", sc.ID, sc.ChannelID, humanEvery(sc.Every), relTime(sc.NextRunAt))
	if len(notes) > 0 {
		text += "\n" + strings.Join(notes, "\n")
	}
	return req.reply(ctx, text)
}

// handleTest sends one copy through the dispatcher without touching due time
// or run state.
func (m *CommandManager) handleTest(ctx context.Context, req *Request) error {
	id, ok := req.Cmd.Int(kit.OptID)
	if !ok {
		return req.reply(ctx, "A schedule id is required.")
	}
	sc, found := m.store.Get(req.Cmd.GuildID, id)
	if !found {
		return replyErr(ctx, req, schedule.ErrNotFound)
	}
	res := m.tester.Send(ctx, sc)
	if !res.OK {
		return req.reply(ctx, fmt.Sprintf("Test send for **#%d** failed: %s", sc.ID, res.Error))
	}
	return req.reply(ctx, fmt.Sprintf("Sent a test copy of **#%d** to <#%s>.", sc.ID, sc.ChannelID))
}

// byID runs a single-id action, audits it and replies with its text.
func (m *CommandManager) byID(ctx context.Context, req *Request, action string, fn func(id int64) (string, error)) error {
	id, ok := req.Cmd.Int(kit.OptID)
	if !ok {
		return req.reply(ctx, "A schedule id is required.")
	}
	text, err := fn(id)
	m.record(ctx, req, action, id, "", err)
	if err != nil {
		return replyErr(ctx, req, err)
	}
	return req.reply(ctx, text)
}

func relTime(t time.Time) string {
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}

// humanEvery renders an interval as "every 90 min", "every 2 h" or "every 3 d".
func humanEvery(d time.Duration) string {
	mins := int64(d / time.Minute)
	switch {
	case mins >= 24*60 && mins%(24*60) == 0:
		return fmt.Sprintf("every %d d", mins/(24*60))
	case mins >= 60 && mins%60 == 0:
		return fmt.Sprintf("every %d h", mins/60)
	default:
		return fmt.Sprintf("every %d min", mins)
	}
}

func status(sc schedule.Schedule) string {
	switch {
	case !sc.Active:
		return "inactive"
	case sc.Paused:
		return "paused"
	case sc.LastError != "":
		return "failing"
	}
	return "active"
}

func summaryLine(sc schedule.Schedule) string {
	line := fmt.Sprintf("`#%d` %s → <#%s> %s · %s · next %s", sc.ID, sc.Type(), sc.ChannelID, humanEvery(sc.Every), status(sc), relTime(sc.NextRunAt))
	if sc.LastError != "" {
		line += " · last error: " + kit.Truncate(sc.LastError, 80)
	}
	return line
}

func detail(sc schedule.Schedule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Schedule #%d** (%s, %s)\n", sc.ID, sc.Type(), status(sc))
	fmt.Fprintf(&b, "Channel: <#%s>\nInterval: %s\n", sc.ChannelID, humanEvery(sc.Every))
	if sc.Ping != "" {
		fmt.Fprintf(&b, "Ping: `%s`\n", sc.Ping)
	}
	fmt.Fprintf(&b, "Next post: %s\nRuns: %d\n", relTime(sc.NextRunAt), sc.Runs)
	if !sc.LastRunAt.IsZero() {
		fmt.Fprintf(&b, "Last run: %s\n", relTime(sc.LastRunAt))
	}
	if sc.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", kit.Truncate(sc.LastError, 300))
	}
	if sc.CreatedBy != "" {
		fmt.Fprintf(&b, "Created by <@%s> %s\n", sc.CreatedBy, relTime(sc.CreatedAt))
	}
	switch p := sc.Payload.(type) {
	case schedule.TextPayload:
		fmt.Fprintf(&b, "Message:\n>>> %s", kit.Truncate(p.Content, 1000))
	case schedule.EmbedPayload:
		if p.Title != "" {
			fmt.Fprintf(&b, "Title: %s\n", kit.Truncate(p.Title, 200))
		}
		if p.Description != "" {
			fmt.Fprintf(&b, "Description:\n>>> %s", kit.Truncate(p.Description, 800))
		}
	}
	return b.String()
}
