package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bizbot/internal/eventbus"
	"bizbot/internal/schedule"
	"bizbot/internal/transport"
	logx "bizbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

// Service drives due schedules to the dispatcher.
//
// Each tick it enqueues newly due schedules (at most once per key) and sends
// at most MaxSendsPerTick of them, oldest first. Whatever is left waits for
// the next tick. Ticks never overlap.
type Service struct {
	mu  sync.Mutex
	cfg Config
	c   *cron.Cron
	// runCtx outlives Stop so an in-flight send is never cut off.
	runCtx context.Context

	store  Store
	disp   Dispatcher
	alerts Alerter
	log    logx.Logger
	bus    eventbus.Bus

	// tickMu serializes Tick.
	tickMu sync.Mutex

	qmu    sync.Mutex
	queue  []schedule.Key
	queued map[schedule.Key]struct{}

	stats Snapshot
}

type Option func(*Service)

// WithAlerter sends a staff alert for every failed run.
func WithAlerter(a Alerter) Option {
	return func(s *Service) { s.alerts = a }
}

func New(cfg Config, store Store, disp Dispatcher, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:    cfg.normalized(),
		store:  store,
		disp:   disp,
		log:    log,
		bus:    bus,
		queued: map[schedule.Key]struct{}{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps the config. A changed tick restarts the trigger; disabling
// stops it.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.normalized()

	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	running := s.c != nil
	runCtx := s.runCtx
	s.mu.Unlock()

	switch {
	case running && !cfg.Enabled:
		s.Stop(context.Background())
	case running && cfg.Tick != old.Tick:
		s.Stop(context.Background())
		s.Start(runCtx)
	case !running && cfg.Enabled && !old.Enabled && runCtx != nil:
		s.Start(runCtx)
	}
}

// Start begins ticking every cfg.Tick. It is a no-op when disabled or
// already running.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runCtx = context.WithoutCancel(ctx)
	if s.c != nil || !s.cfg.Enabled {
		return
	}

	cl := logx.CronLogger(s.log)
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.DelayIfStillRunning(cl)),
	)
	runCtx := s.runCtx
	c.Schedule(cron.Every(s.cfg.Tick), cron.FuncJob(func() {
		s.Tick(runCtx, time.Now())
	}))
	c.Start()
	s.c = c
	s.log.Info("runner started", logx.Duration("tick", s.cfg.Tick), logx.Int("max_sends_per_tick", s.cfg.MaxSendsPerTick))
}

// Stop halts future ticks and waits for a running tick until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("runner stop timed out waiting for tick")
	}
	s.log.Info("runner stopped")
}

// Tick runs one scheduling pass at now and reports what it did.
func (s *Service) Tick(ctx context.Context, now time.Time) TickReport {
	if ctx == nil {
		ctx = context.Background()
	}
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.Lock()
	limit := s.cfg.MaxSendsPerTick
	s.mu.Unlock()

	start := time.Now()
	rep := TickReport{At: now}

	due := s.store.ComputeDue(now)
	rep.Due = len(due)
	s.qmu.Lock()
	for _, sc := range due {
		k := sc.Key()
		if _, ok := s.queued[k]; ok {
			continue
		}
		s.queued[k] = struct{}{}
		s.queue = append(s.queue, k)
		rep.Enqueued++
	}
	s.qmu.Unlock()

	for rep.Sent+rep.Failed < limit {
		k, ok := s.dequeue()
		if !ok {
			break
		}

		// The schedule may have been removed, paused or rescheduled while queued.
		sc, ok := s.store.Get(k.GuildID, k.ID)
		if !ok || !schedule.IsDue(&sc, now) {
			rep.Skipped++
			continue
		}
		s.run(ctx, sc, now, &rep)
	}

	s.qmu.Lock()
	rep.Remaining = len(s.queue)
	s.qmu.Unlock()
	rep.Took = time.Since(start)
	if rep.Remaining > 0 {
		s.log.Debug("send cap reached; carrying over", logx.Int("remaining", rep.Remaining), logx.Int("cap", limit))
	}

	s.mu.Lock()
	s.stats.Ticks++
	s.stats.Sent += uint64(rep.Sent)
	s.stats.Failed += uint64(rep.Failed)
	s.stats.Skipped += uint64(rep.Skipped)
	s.stats.Dropped += uint64(rep.Dropped)
	s.stats.Last = rep
	s.mu.Unlock()
	return rep
}

func (s *Service) dequeue() (schedule.Key, bool) {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if len(s.queue) == 0 {
		return schedule.Key{}, false
	}
	k := s.queue[0]
	s.queue = s.queue[1:]
	delete(s.queued, k)
	return k, true
}

func (s *Service) run(ctx context.Context, sc schedule.Schedule, now time.Time, rep *TickReport) {
	log := s.log.With(logx.String("guild", sc.GuildID), logx.Int64("id", sc.ID))

	res := s.disp.Send(ctx, sc)
	updated, dropped, err := s.store.RecordRun(ctx, sc.GuildID, sc.ID, schedule.Outcome{OK: res.OK, Error: res.Error}, now)
	if err != nil {
		// Persistence failures keep the in-memory bookkeeping.
		log.Warn("record run failed", logx.Err(err))
	}
	rep.Dropped += dropped
	if updated.ID == 0 {
		updated = sc
	}

	ev := RunEvent{
		GuildID: sc.GuildID, ID: sc.ID, ChannelID: sc.ChannelID,
		OK: res.OK, Error: res.Error, MessageID: res.MessageID,
		Runs: updated.Runs, NextRunAt: updated.NextRunAt, At: now,
	}
	if res.OK {
		rep.Sent++
		log.Debug("scheduled message sent", logx.String("channel", sc.ChannelID), logx.Time("next", updated.NextRunAt))
		s.publish(EventRun, ev)
		return
	}

	rep.Failed++
	log.Warn("scheduled message failed", logx.String("channel", sc.ChannelID), logx.String("error", res.Error))
	s.publish(EventFailed, ev)
	if s.alerts != nil {
		n := transport.Notification{
			Priority: 7,
			Text:     fmt.Sprintf("Scheduled message #%d (guild %s) failed to post in <#%s>: %s", sc.ID, sc.GuildID, sc.ChannelID, res.Error),
			DedupKey: "schedule.failed:" + sc.Key().String() + ":" + res.Error,
		}
		if err := s.alerts.Notify(ctx, n); err != nil {
			log.Debug("failure alert not queued", logx.Err(err))
		}
	}
}

func (s *Service) publish(typ string, ev RunEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

// Snapshot reports config, queue state and counters.
func (s *Service) Snapshot() Snapshot {
	s.qmu.Lock()
	queued := make([]string, 0, len(s.queue))
	for _, k := range s.queue {
		queued = append(queued, k.String())
	}
	s.qmu.Unlock()

	s.mu.Lock()
	out := s.stats
	out.Enabled = s.cfg.Enabled
	out.Running = s.c != nil
	out.Tick = s.cfg.Tick
	out.MaxSendsPerTick = s.cfg.MaxSendsPerTick
	s.mu.Unlock()

	out.QueueLen = len(queued)
	out.Queued = queued
	return out
}
