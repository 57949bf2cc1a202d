package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"bizbot/internal/schedule"
	"bizbot/internal/transport"
	logx "bizbot/pkg/logx"

	"golang.org/x/time/rate"
)

// ErrChannelUnavailable is the recorded error text for destinations the bot
// cannot post to.
const ErrChannelUnavailable = "channel not found or not text-based"

type Config struct {
	// RatePerSec caps sends across all guilds. <= 0 uses the default (5).
	RatePerSec float64
	Burst      int
}

type Result struct {
	OK        bool
	Error     string
	MessageID string
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	adapter transport.Adapter
	log     logx.Logger
	now     func() time.Time
}

func New(adapter transport.Adapter, cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log, now: time.Now}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, int(cfg.RatePerSec))
	}
	s.cfg = cfg
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
		return
	}
	s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	s.limiter.SetBurst(cfg.Burst)
}

// Send delivers one occurrence of sc. It always returns a Result.
func (s *Service) Send(ctx context.Context, sc schedule.Schedule) (res Result) {
	log := s.log.With(logx.String("guild", sc.GuildID), logx.Int64("id", sc.ID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatch panic", logx.Any("panic", r))
			res = Result{Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()
	if ctx == nil {
		ctx = context.Background()
	}
	if s.adapter == nil {
		return Result{Error: "no transport configured"}
	}

	ch, err := s.adapter.Channel(ctx, sc.ChannelID)
	if err != nil {
		log.Debug("channel lookup failed", logx.String("channel", sc.ChannelID), logx.Err(err))
		return Result{Error: ErrChannelUnavailable}
	}
	if ch == nil || !ch.TextBased {
		return Result{Error: ErrChannelUnavailable}
	}

	msg, err := Render(sc, s.now())
	if err != nil {
		return Result{Error: err.Error()}
	}

	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()
	if err := lim.Wait(ctx); err != nil {
		return Result{Error: "send cancelled: " + err.Error()}
	}

	ref, err := s.adapter.Send(ctx, ch.ID, msg)
	if err != nil {
		log.Warn("scheduled send failed", logx.String("channel", ch.ID), logx.Err(err))
		return Result{Error: shortError(err)}
	}
	log.Debug("scheduled message sent", logx.String("channel", ch.ID), logx.String("message", ref.MessageID))
	return Result{OK: true, MessageID: ref.MessageID}
}

// shortError keeps the first line of err, bounded so it fits a list view.
func shortError(err error) string {
	msg := strings.TrimSpace(err.Error())
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	if msg == "" {
		return "unknown error"
	}
	return transport.Truncate(msg, 300)
}
