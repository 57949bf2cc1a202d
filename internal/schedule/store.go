package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	logx "bizbot/pkg/logx"
)

// Store is the authoritative index of schedules (guild -> id -> schedule).
//
// Every mutating call persists the full snapshot through the Backend before
// returning. Persistence failures are logged and returned, but the in-memory
// state stays authoritative. Getters return deep copies, so callers can never
// change a stored schedule without going through the Store.
type Store struct {
	mu sync.Mutex

	log     logx.Logger
	backend Backend
	now     func() time.Time

	guilds  map[string]map[int64]*Schedule
	nextID  int64
	dropped int64
}

type Option func(*Store)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(backend Backend, log logx.Logger, opts ...Option) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{
		log:     log,
		backend: backend,
		now:     time.Now,
		guilds:  map[string]map[int64]*Schedule{},
		nextID:  1,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load replaces the in-memory state with the backend snapshot. A missing or
// unreadable snapshot yields an empty store; Load never fails.
func (s *Store) Load(ctx context.Context) {
	var snap Snapshot
	if s.backend != nil {
		var err error
		snap, err = s.backend.Load(ctx)
		if err != nil {
			s.log.Warn("schedule snapshot unreadable; starting empty", logx.Err(err))
			snap = Snapshot{}
		}
	}

	now := s.now()
	guilds := map[string]map[int64]*Schedule{}
	var maxID int64
	skipped := 0
	for _, r := range snap.Schedules {
		sc, ok := fromRecord(r, now)
		if !ok {
			skipped++
			continue
		}
		g := guilds[sc.GuildID]
		if g == nil {
			g = map[int64]*Schedule{}
			guilds[sc.GuildID] = g
		}
		g[sc.ID] = sc
		maxID = max(maxID, sc.ID)
	}

	s.mu.Lock()
	s.guilds = guilds
	s.nextID = max(snap.NextID, maxID+1, 1)
	s.dropped = 0
	n := s.countLocked()
	next := s.nextID
	s.mu.Unlock()

	if skipped > 0 {
		s.log.Warn("skipped malformed schedule records", logx.Int("count", skipped))
	}
	s.log.Info("schedules loaded", logx.Int("schedules", n), logx.Int("guilds", len(guilds)), logx.Int64("next_id", next))
}

// Save persists the full state.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	snap := Snapshot{NextID: s.nextID, Schedules: make([]Record, 0, s.countLocked())}
	for _, sc := range s.sortedLocked("") {
		snap.Schedules = append(snap.Schedules, toRecord(sc))
	}
	if err := s.backend.Save(ctx, snap); err != nil {
		s.log.Error("schedule snapshot save failed", logx.Err(err))
		return fmt.Errorf("save schedules: %w", err)
	}
	return nil
}

// Add creates a schedule from def and persists it. The returned error is
// non-nil for unusable definitions; a persistence failure is logged and the
// created schedule is still returned.
func (s *Store) Add(ctx context.Context, def Definition) (Schedule, error) {
	guild := strings.TrimSpace(def.GuildID)
	channel := strings.TrimSpace(def.ChannelID)
	if guild == "" || channel == "" {
		return Schedule{}, errors.New("guild and channel are required")
	}
	if def.Payload == nil {
		return Schedule{}, errors.New("payload is required")
	}
	def.Payload = clonePayload(def.Payload)
	if p, ok := def.Payload.(EmbedPayload); ok && len(p.Fields) > MaxEmbedFields {
		p.Fields = p.Fields[:MaxEmbedFields]
		def.Payload = p
	}
	delay := def.StartDelay
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sc := &Schedule{
		ID:        s.nextID,
		GuildID:   guild,
		ChannelID: channel,
		Payload:   def.Payload,
		Every:     ClampEvery(def.Every),
		Ping:      strings.TrimSpace(def.Ping),
		Active:    true,
		CreatedBy: def.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
		NextRunAt: now.Add(delay),
	}
	s.nextID++
	g := s.guilds[guild]
	if g == nil {
		g = map[int64]*Schedule{}
		s.guilds[guild] = g
	}
	g[sc.ID] = sc
	_ = s.saveLocked(ctx)

	s.log.Info("schedule added",
		logx.String("guild", guild), logx.Int64("id", sc.ID), logx.String("type", string(sc.Type())),
		logx.Duration("every", sc.Every), logx.Time("next", sc.NextRunAt))
	return sc.clone(), nil
}

// List returns the guild's schedules ordered by id.
func (s *Store) List(guildID string) []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copies(s.sortedLocked(guildID))
}

// ListAll returns every schedule ordered by (guild, id).
func (s *Store) ListAll() []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copies(s.sortedLocked(""))
}

func (s *Store) Get(guildID string, id int64) (Schedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.lookupLocked(guildID, id)
	if sc == nil {
		return Schedule{}, false
	}
	return sc.clone(), true
}

// Remove deletes a schedule. Ids are never reused.
func (s *Store) Remove(ctx context.Context, guildID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.guilds[guildID]
	if g == nil || g[id] == nil {
		return ErrNotFound
	}
	delete(g, id)
	if len(g) == 0 {
		delete(s.guilds, guildID)
	}
	_ = s.saveLocked(ctx)
	s.log.Info("schedule removed", logx.String("guild", guildID), logx.Int64("id", id))
	return nil
}

func (s *Store) Pause(ctx context.Context, guildID string, id int64) (Schedule, error) {
	return s.mutate(ctx, guildID, id, func(sc *Schedule, _ time.Time) {
		sc.Paused = true
	})
}

// Resume unpauses and keeps the next run at least SafetyDelay away.
func (s *Store) Resume(ctx context.Context, guildID string, id int64) (Schedule, error) {
	return s.mutate(ctx, guildID, id, func(sc *Schedule, now time.Time) {
		sc.Paused = false
		sc.NextRunAt = SafeNext(sc.NextRunAt, now)
	})
}

// Edit applies p, re-clamping the interval and keeping the next run at
// least SafetyDelay away.
func (s *Store) Edit(ctx context.Context, guildID string, id int64, p Patch) (Schedule, error) {
	return s.mutate(ctx, guildID, id, func(sc *Schedule, now time.Time) {
		if p.ChannelID != nil && strings.TrimSpace(*p.ChannelID) != "" {
			sc.ChannelID = strings.TrimSpace(*p.ChannelID)
		}
		if p.Every != nil {
			sc.Every = ClampEvery(*p.Every)
		}
		if p.Ping != nil {
			sc.Ping = strings.TrimSpace(*p.Ping)
		}
		sc.NextRunAt = SafeNext(sc.NextRunAt, now)
	})
}

// RunNow makes the schedule due on the next tick.
func (s *Store) RunNow(ctx context.Context, guildID string, id int64) (Schedule, error) {
	return s.mutate(ctx, guildID, id, func(sc *Schedule, now time.Time) {
		sc.NextRunAt = now
	})
}

// ComputeDue returns active, unpaused schedules whose next run is not after
// now, oldest first. It does not mutate state.
func (s *Store) ComputeDue(now time.Time) []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Schedule
	for _, g := range s.guilds {
		for _, sc := range g {
			if IsDue(sc, now) {
				out = append(out, sc.clone())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextRunAt.Equal(out[j].NextRunAt) {
			return out[i].NextRunAt.Before(out[j].NextRunAt)
		}
		if out[i].GuildID != out[j].GuildID {
			return out[i].GuildID < out[j].GuildID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// BumpNextRun advances the schedule's next run past now (see NextRun) and
// persists. It returns the number of intervals skipped by the catch-up cap.
func (s *Store) BumpNextRun(ctx context.Context, guildID string, id int64, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.lookupLocked(guildID, id)
	if sc == nil {
		return 0, ErrNotFound
	}
	dropped := s.bumpLocked(sc, now)
	return dropped, s.saveLocked(ctx)
}

// RecordRun applies the bookkeeping for one dispatch attempt and bumps the
// next run, persisting once.
func (s *Store) RecordRun(ctx context.Context, guildID string, id int64, out Outcome, now time.Time) (Schedule, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.lookupLocked(guildID, id)
	if sc == nil {
		return Schedule{}, 0, ErrNotFound
	}
	sc.LastRunAt = now
	if out.OK {
		sc.LastError = ""
		sc.Runs++
	} else {
		sc.LastError = out.Error
		if sc.LastError == "" {
			sc.LastError = "unknown error"
		}
	}
	dropped := s.bumpLocked(sc, now)
	err := s.saveLocked(ctx)
	return sc.clone(), dropped, err
}

func (s *Store) bumpLocked(sc *Schedule, now time.Time) int {
	next, dropped := NextRun(sc.NextRunAt, sc.Every, now)
	sc.NextRunAt = next
	sc.UpdatedAt = s.now()
	if dropped > 0 {
		s.dropped += int64(dropped)
		s.log.Warn("catch-up cap reached; skipping missed occurrences",
			logx.String("guild", sc.GuildID), logx.Int64("id", sc.ID),
			logx.Int("skipped", dropped), logx.Time("next", next))
	}
	return dropped
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Guilds: len(s.guilds), NextID: s.nextID, Dropped: s.dropped}
	for _, g := range s.guilds {
		for _, sc := range g {
			st.Schedules++
			if sc.Paused {
				st.Paused++
			}
			if sc.LastError != "" {
				st.Failing++
			}
		}
	}
	return st
}

func (s *Store) mutate(ctx context.Context, guildID string, id int64, fn func(sc *Schedule, now time.Time)) (Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.lookupLocked(guildID, id)
	if sc == nil {
		return Schedule{}, ErrNotFound
	}
	now := s.now()
	fn(sc, now)
	sc.UpdatedAt = now
	err := s.saveLocked(ctx)
	return sc.clone(), err
}

func (s *Store) lookupLocked(guildID string, id int64) *Schedule {
	g := s.guilds[guildID]
	if g == nil {
		return nil
	}
	return g[id]
}

func (s *Store) countLocked() int {
	n := 0
	for _, g := range s.guilds {
		n += len(g)
	}
	return n
}

// sortedLocked returns the guild's schedules (all guilds if guildID is
// empty) ordered by (guild, id).
func (s *Store) sortedLocked(guildID string) []*Schedule {
	var out []*Schedule
	for gid, g := range s.guilds {
		if guildID != "" && gid != guildID {
			continue
		}
		for _, sc := range g {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GuildID != out[j].GuildID {
			return out[i].GuildID < out[j].GuildID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func copies(in []*Schedule) []Schedule {
	out := make([]Schedule, len(in))
	for i, sc := range in {
		out[i] = sc.clone()
	}
	return out
}

// Close releases the backend.
func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}
