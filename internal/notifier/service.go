package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"

	"bizbot/internal/eventbus"
	rtsup "bizbot/internal/runtime/supervisor"
	"bizbot/internal/storage"
	kit "bizbot/internal/transport"
	logx "bizbot/pkg/logx"

	"golang.org/x/time/rate"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
	ErrNoChannel = errors.New("notifier has no target channel")
)

const historyCap = 200

type job struct {
	n   kit.Notification
	key string
}

type dedupWrite struct {
	key   string
	until time.Time
}

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus
	store   storage.Store

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	inflight  sync.WaitGroup
	queue     chan job
	persistCh chan dedupWrite
	sup       *rtsup.Supervisor
	stopDone  chan struct{}

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		adapter: adapter,
		log:     log,
		bus:     bus,
		store:   store,
		dedup:   map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Supervisor returns the worker supervisor (nil if not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Apply updates limits and targets. Worker count and queue size take effect
// on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	cfg.ChannelID = strings.TrimSpace(cfg.ChannelID)
	s.cfg = cfg
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
		return
	}
	s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	s.limiter.SetBurst(cfg.RatePerSec)
}

// Start launches the workers. It is idempotent and a no-op when disabled.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	if s.cfg.PersistDedup && s.store != nil {
		s.persistCh = make(chan dedupWrite, 256)
	}
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	sup, q, pch, workers := s.sup, s.queue, s.persistCh, s.cfg.Workers
	s.mu.Unlock()

	if pch != nil {
		sup.GoRestart("dedup.persist", func(c context.Context) error {
			s.persistLoop(c, pch)
			return s.exitErr(c, "dedup persist loop")
		}, rtsup.WithPublishFirstError(true))
	}
	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return s.exitErr(c, "worker")
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Info("notifier started", logx.Int("workers", workers), logx.String("channel", s.defaultChannel()))
}

// exitErr classifies a loop return: shutdown is clean, anything else is
// restarted by the supervisor.
func (s *Service) exitErr(c context.Context, what string) error {
	s.mu.Lock()
	stopping := s.stopDone != nil
	s.mu.Unlock()
	if stopping {
		return context.Canceled
	}
	if c.Err() != nil {
		return c.Err()
	}
	return errors.New(what + " exited unexpectedly")
}

// Stop refuses new alerts and drains the queue until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	q, pch, sup := s.queue, s.persistCh, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.inflight.Wait()
		if pch != nil {
			close(pch)
		}
		close(q)
		if sup != nil {
			_ = sup.Wait(context.Background())
		}
		s.mu.Lock()
		s.queue, s.persistCh, s.sup, s.stopDone = nil, nil, nil, nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

// Notify enqueues n. Duplicates inside the dedup window are dropped silently.
func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	if strings.TrimSpace(n.ChannelID) == "" {
		n.ChannelID = s.cfg.ChannelID
	}
	if n.ChannelID == "" {
		s.mu.Unlock()
		return ErrNoChannel
	}
	q := s.queue
	cfg := s.cfg
	pch := s.persistCh
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	key := dedupKey(n)
	if cfg.DedupWindow > 0 && !s.dedupAllow(ctx, key, cfg, pch) {
		s.publish(EventDeduped, Event{ChannelID: n.ChannelID, Key: key})
		return nil
	}

	select {
	case q <- job{n: n, key: key}:
		s.publish(EventQueued, Event{ChannelID: n.ChannelID, Key: key})
		return nil
	default:
		s.publish(EventDropped, Event{ChannelID: n.ChannelID, Key: key, Error: ErrQueueFull.Error()})
		return ErrQueueFull
	}
}

// History returns recently delivered alerts, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) defaultChannel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.ChannelID
}

func (s *Service) publish(typ string, ev Event) {
	if s.bus == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

func (s *Service) remember(channelID, text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), ChannelID: channelID, Text: text})
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.hmu.Unlock()
}

func (s *Service) persistLoop(ctx context.Context, ch <-chan dedupWrite) {
	st := s.store
	if st == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-ch:
			if !ok {
				return
			}
			cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
			if err := st.PutDedup(cctx, w.key, w.until); err != nil {
				s.log.Debug("dedup persist failed", logx.Err(err))
			}
			cancel()
		}
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, j)
		}
	}
}

func (s *Service) deliver(ctx context.Context, j job) {
	s.mu.Lock()
	cfg, lim, ad := s.cfg, s.limiter, s.adapter
	s.mu.Unlock()
	if ad == nil {
		return
	}
	text := priorityPrefix(j.n.Priority) + j.n.Text
	msg := kit.OutgoingMessage{Content: kit.Truncate(text, 2000)}

	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := ad.Send(callCtx, j.n.ChannelID, msg)
		cancel()
		if err == nil {
			s.remember(j.n.ChannelID, text)
			s.publish(EventSent, Event{ChannelID: j.n.ChannelID, Key: j.key})
			return
		}
		lastErr = err
		s.log.Debug("alert send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt == attempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	s.log.Warn("alert dropped after retries", logx.String("channel", j.n.ChannelID), logx.Err(lastErr))
	s.publish(EventFailed, Event{ChannelID: j.n.ChannelID, Key: j.key, Error: lastErr.Error()})
}

func priorityPrefix(p int) string {
	switch {
	case p >= 9:
		return "🚨 "
	case p >= 7:
		return "⚠️ "
	case p >= 5:
		return "ℹ️ "
	}
	return ""
}

func dedupKey(n kit.Notification) string {
	if k := strings.TrimSpace(n.DedupKey); k != "" {
		return "k:" + k
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%s", n.ChannelID, n.Priority, n.Text)
	return fmt.Sprintf("h:%x", h.Sum64())
}

// dedupAllow reports whether key is outside its suppression window and, if
// so, opens a new one.
func (s *Service) dedupAllow(ctx context.Context, key string, cfg Config, pch chan<- dedupWrite) bool {
	now := time.Now()

	s.dmu.Lock()
	until, ok := s.dedup[key]
	s.dmu.Unlock()
	if ok && now.Before(until) {
		return false
	}

	if cfg.PersistDedup && s.store != nil {
		cctx, cancel := context.WithTimeout(ctx, 25*time.Millisecond)
		until, ok, err := s.store.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return false
		}
	}

	until = now.Add(cfg.DedupWindow)
	s.dmu.Lock()
	s.dedup[key] = until
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	for len(s.dedup) > cfg.DedupMaxEntries {
		oldest := ""
		var oldestAt time.Time
		for k, u := range s.dedup {
			if oldest == "" || u.Before(oldestAt) {
				oldest, oldestAt = k, u
			}
		}
		delete(s.dedup, oldest)
	}
	s.dmu.Unlock()

	if pch != nil {
		select {
		case pch <- dedupWrite{key: key, until: until}:
		default:
		}
	}
	return true
}

func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	// 0.7x..1.3x jitter
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}
