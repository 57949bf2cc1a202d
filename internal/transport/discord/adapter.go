package discord

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	rtsup "bizbot/internal/runtime/supervisor"
	kit "bizbot/internal/transport"
	logx "bizbot/pkg/logx"

	"github.com/bwmarrin/discordgo"
)

type Config struct {
	Token         string
	ApplicationID string
	// GuildIDs registers commands per guild (instant); empty registers
	// them globally.
	GuildIDs []string
}

type Adapter struct {
	cfg Config
	log logx.Logger

	session *discordgo.Session
	out     atomic.Value // stores (chan<- kit.Update)

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s, err := discordgo.New("Bot " + strings.TrimPrefix(token, "Bot "))
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	s.StateEnabled = true

	a := &Adapter{cfg: cfg, log: log, session: s}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	s.AddHandler(a.onReady)
	s.AddHandler(a.onInteraction)
	return a, nil
}

// Supervisor returns the adapter's internal supervisor (nil if not started).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) onReady(s *discordgo.Session, r *discordgo.Ready) {
	appID := strings.TrimSpace(a.cfg.ApplicationID)
	if appID == "" && r.User != nil {
		appID = r.User.ID
	}
	name := ""
	if r.User != nil {
		name = r.User.Username
	}
	a.log.Info("gateway ready", logx.String("user", name), logx.Int("guilds", len(r.Guilds)))
	if err := a.registerCommands(s, appID); err != nil {
		a.log.Error("command registration failed", logx.Err(err))
	}
}

func (a *Adapter) onInteraction(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	cmd, ok := decodeInteraction(ic.Interaction)
	if !ok {
		return
	}
	a.sendUpdate(kit.Update{Kind: kit.UpdateCommand, Command: cmd})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.out.Store(out)
	if err := a.session.Open(); err != nil {
		var nilOut chan<- kit.Update
		a.out.Store(nilOut)
		a.runMu.Unlock()
		return err
	}
	a.running = true
	a.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "discord.adapter"))),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-ticker.C:
				a.reportDropped(cap(out))
			}
		}
	})
	return nil
}

func (a *Adapter) reportDropped(capacity int) {
	if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
		a.log.Warn("interactions dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", capacity))
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if sup != nil {
		sup.Cancel()
	}
	err := a.session.Close()

	if sup != nil {
		wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if werr := sup.Wait(wctx); werr != nil && !errors.Is(werr, context.DeadlineExceeded) && !errors.Is(werr, context.Canceled) {
			a.log.Debug("adapter supervisor stopped with error", logx.Err(werr))
		}
	}
	a.log.Info("gateway closed")
	return err
}

// Channel resolves from the state cache first, then REST. Unknown or
// forbidden channels resolve to (nil, nil).
func (a *Adapter) Channel(ctx context.Context, channelID string) (*kit.Channel, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, nil
	}
	var ch *discordgo.Channel
	if a.session.State != nil {
		if c, err := a.session.State.Channel(channelID); err == nil {
			ch = c
		}
	}
	if ch == nil {
		c, err := a.session.Channel(channelID, discordgo.WithContext(ctx))
		if err != nil {
			if isMissing(err) {
				return nil, nil
			}
			return nil, err
		}
		ch = c
	}
	return &kit.Channel{
		ID:        ch.ID,
		GuildID:   ch.GuildID,
		Name:      ch.Name,
		TextBased: isTextBased(ch.Type),
	}, nil
}

func (a *Adapter) Send(ctx context.Context, channelID string, msg kit.OutgoingMessage) (kit.MessageRef, error) {
	m, err := a.session.ChannelMessageSendComplex(channelID, toMessageSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChannelID: m.ChannelID, MessageID: m.ID}, nil
}

func (a *Adapter) Reply(ctx context.Context, cmd *kit.Command, reply kit.Reply) error {
	if cmd == nil {
		return errors.New("nil command")
	}
	it, ok := cmd.Raw.(*discordgo.Interaction)
	if !ok || it == nil {
		return errors.New("command has no interaction handle")
	}
	data := &discordgo.InteractionResponseData{
		Content:         kit.Truncate(reply.Content, 2000),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if reply.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return a.session.InteractionRespond(it, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
}

func (a *Adapter) registerCommands(s *discordgo.Session, appID string) error {
	if appID == "" {
		return errors.New("application id unknown")
	}
	cmds := Commands()
	if len(a.cfg.GuildIDs) == 0 {
		_, err := s.ApplicationCommandBulkOverwrite(appID, "", cmds)
		if err == nil {
			a.log.Info("global commands registered", logx.Int("count", len(cmds)))
		}
		return err
	}
	var errs []error
	for _, gid := range a.cfg.GuildIDs {
		if _, err := s.ApplicationCommandBulkOverwrite(appID, gid, cmds); err != nil {
			errs = append(errs, err)
			continue
		}
		a.log.Info("guild commands registered", logx.String("guild", gid), logx.Int("count", len(cmds)))
	}
	return errors.Join(errs...)
}

func isMissing(err error) bool {
	var rerr *discordgo.RESTError
	if !errors.As(err, &rerr) || rerr.Response == nil {
		return false
	}
	switch rerr.Response.StatusCode {
	case http.StatusNotFound, http.StatusForbidden:
		return true
	}
	return false
}

func isTextBased(t discordgo.ChannelType) bool {
	switch t {
	case discordgo.ChannelTypeGuildText,
		discordgo.ChannelTypeGuildNews,
		discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread,
		discordgo.ChannelTypeGuildNewsThread:
		return true
	}
	return false
}

func toMessageSend(msg kit.OutgoingMessage) *discordgo.MessageSend {
	out := &discordgo.MessageSend{
		Content:         msg.Content,
		AllowedMentions: toAllowedMentions(msg.Mentions),
	}
	for _, e := range msg.Embeds {
		out.Embeds = append(out.Embeds, toEmbed(e))
	}
	return out
}

func toAllowedMentions(m kit.AllowedMentions) *discordgo.MessageAllowedMentions {
	am := &discordgo.MessageAllowedMentions{
		Parse: []discordgo.AllowedMentionType{},
		Roles: m.Roles,
		Users: m.Users,
	}
	if m.Everyone {
		am.Parse = append(am.Parse, discordgo.AllowedMentionTypeEveryone)
	}
	return am
}

func toEmbed(e kit.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
		Timestamp:   e.Timestamp,
	}
	if e.Author != nil {
		out.Author = &discordgo.MessageEmbedAuthor{Name: e.Author.Name, URL: e.Author.URL, IconURL: e.Author.IconURL}
	}
	if e.Footer != nil {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer.Text, IconURL: e.Footer.IconURL}
	}
	if e.ImageURL != "" {
		out.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	if e.ThumbnailURL != "" {
		out.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.ThumbnailURL}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}
