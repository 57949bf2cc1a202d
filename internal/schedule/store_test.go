package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	logx "bizbot/pkg/logx"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memBackend struct {
	mu    sync.Mutex
	snap  Snapshot
	saves int
	err   error
}

func (b *memBackend) Load(context.Context) (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap, b.err
}

func (b *memBackend) Save(_ context.Context, snap Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.snap = snap
	b.saves++
	return nil
}

func (b *memBackend) Close() error { return nil }

func newTestStore(t *testing.T) (*Store, *memBackend, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	be := &memBackend{}
	st := New(be, logx.Nop(), WithClock(clock.Now))
	st.Load(context.Background())
	return st, be, clock
}

func textDef(guild string, every time.Duration) Definition {
	return Definition{
		GuildID:   guild,
		ChannelID: "c1",
		Payload:   TextPayload{Content: "hello"},
		Every:     every,
		CreatedBy: "u1",
	}
}

func TestStoreAddAssignsIncreasingIDs(t *testing.T) {
	t.Parallel()
	st, be, clock := newTestStore(t)
	ctx := context.Background()

	a, err := st.Add(ctx, textDef("g1", time.Hour))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	b, err := st.Add(ctx, textDef("g2", time.Hour))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("ids = %d,%d, want 1,2", a.ID, b.ID)
	}
	if !a.Active || a.Paused || a.Runs != 0 || a.LastError != "" {
		t.Fatalf("unexpected initial state: %+v", a)
	}
	if !a.NextRunAt.Equal(clock.Now()) {
		t.Fatalf("NextRunAt = %v, want now", a.NextRunAt)
	}
	if be.saves != 2 || be.snap.NextID != 3 || len(be.snap.Schedules) != 2 {
		t.Fatalf("persisted snapshot = %+v (saves=%d)", be.snap, be.saves)
	}
}

func TestStoreAddClampsAndDelays(t *testing.T) {
	t.Parallel()
	st, _, clock := newTestStore(t)
	def := textDef("g1", 10*time.Second)
	def.StartDelay = 30 * time.Minute

	sc, err := st.Add(context.Background(), def)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if sc.Every != MinEvery {
		t.Fatalf("Every = %v, want %v", sc.Every, MinEvery)
	}
	if want := clock.Now().Add(30 * time.Minute); !sc.NextRunAt.Equal(want) {
		t.Fatalf("NextRunAt = %v, want %v", sc.NextRunAt, want)
	}
}

func TestStoreAddRejectsIncompleteDefinition(t *testing.T) {
	t.Parallel()
	st, _, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := st.Add(ctx, Definition{ChannelID: "c", Payload: TextPayload{}}); err == nil {
		t.Fatal("expected error without guild")
	}
	if _, err := st.Add(ctx, Definition{GuildID: "g", Payload: TextPayload{}}); err == nil {
		t.Fatal("expected error without channel")
	}
	if _, err := st.Add(ctx, Definition{GuildID: "g", ChannelID: "c"}); err == nil {
		t.Fatal("expected error without payload")
	}
	if got := st.Stats().NextID; got != 1 {
		t.Fatalf("NextID = %d after rejected adds, want 1", got)
	}
}

func TestStoreAddTruncatesEmbedFields(t *testing.T) {
	t.Parallel()
	st, _, _ := newTestStore(t)
	fields := make([]EmbedField, 30)
	for i := range fields {
		fields[i] = EmbedField{Name: "n", Value: "v"}
	}
	sc, err := st.Add(context.Background(), Definition{
		GuildID: "g", ChannelID: "c", Every: time.Hour,
		Payload: EmbedPayload{Title: "t", Fields: fields},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := len(sc.Payload.(EmbedPayload).Fields); got != MaxEmbedFields {
		t.Fatalf("fields = %d, want %d", got, MaxEmbedFields)
	}
}

func TestStoreReturnsIndependentCopies(t *testing.T) {
	t.Parallel()
	st, be, _ := newTestStore(t)
	def := Definition{
		GuildID: "g", ChannelID: "c", Every: time.Hour,
		Payload: EmbedPayload{
			Title:  "t",
			Author: &EmbedAuthor{Name: "author"},
			Footer: &EmbedFooter{Text: "footer"},
			Fields: []EmbedField{{Name: "rules", Value: "be nice"}},
		},
	}
	added, err := st.Add(context.Background(), def)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	saves := be.saves

	mutateEmbed := func(sc Schedule) {
		p := sc.Payload.(EmbedPayload)
		p.Fields[0].Name = "MUTATED"
		p.Author.Name = "MUTATED"
		p.Footer.Text = "MUTATED"
	}
	mutateEmbed(Schedule{Payload: def.Payload})
	mutateEmbed(added)
	got, _ := st.Get("g", added.ID)
	mutateEmbed(got)
	mutateEmbed(st.List("g")[0])
	mutateEmbed(st.ComputeDue(time.Now().Add(48 * time.Hour))[0])

	got, _ = st.Get("g", added.ID)
	p := got.Payload.(EmbedPayload)
	if p.Fields[0].Name != "rules" || p.Author.Name != "author" || p.Footer.Text != "footer" {
		t.Fatalf("stored payload changed outside the store: %+v", p)
	}
	if be.saves != saves {
		t.Fatalf("saves = %d, want %d", be.saves, saves)
	}
}

func TestStoreRemoveNeverReusesIDs(t *testing.T) {
	t.Parallel()
	st, _, _ := newTestStore(t)
	ctx := context.Background()

	a, _ := st.Add(ctx, textDef("g1", time.Hour))
	if err := st.Remove(ctx, "g1", a.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := st.Remove(ctx, "g1", a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Remove err = %v, want ErrNotFound", err)
	}
	b, _ := st.Add(ctx, textDef("g1", time.Hour))
	if b.ID == a.ID {
		t.Fatalf("id %d reused", b.ID)
	}
	if _, ok := st.Get("g1", a.ID); ok {
		t.Fatal("removed schedule still visible")
	}
}

func TestStoreGuildIsolation(t *testing.T) {
	t.Parallel()
	st, _, _ := newTestStore(t)
	ctx := context.Background()
	a, _ := st.Add(ctx, textDef("g1", time.Hour))

	if _, ok := st.Get("g2", a.ID); ok {
		t.Fatal("schedule visible from another guild")
	}
	if _, err := st.Pause(ctx, "g2", a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Pause from other guild err = %v", err)
	}
	if got := st.List("g2"); len(got) != 0 {
		t.Fatalf("List(g2) = %d items", len(got))
	}
}

func TestStorePauseExcludesFromDue(t *testing.T) {
	t.Parallel()
	st, _, clock := newTestStore(t)
	ctx := context.Background()
	a, _ := st.Add(ctx, textDef("g1", time.Hour))

	if due := st.ComputeDue(clock.Now()); len(due) != 1 {
		t.Fatalf("due = %d, want 1", len(due))
	}
	if _, err := st.Pause(ctx, "g1", a.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if due := st.ComputeDue(clock.Now().Add(24 * time.Hour)); len(due) != 0 {
		t.Fatalf("paused schedule due: %+v", due)
	}

	clock.Advance(time.Minute)
	resumed, err := st.Resume(ctx, "g1", a.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Paused {
		t.Fatal("still paused after Resume")
	}
	if want := clock.Now().Add(SafetyDelay); !resumed.NextRunAt.Equal(want) {
		t.Fatalf("NextRunAt = %v, want %v", resumed.NextRunAt, want)
	}
}

func TestStoreEditClampsAndKeepsSafetyDelay(t *testing.T) {
	t.Parallel()
	st, _, clock := newTestStore(t)
	ctx := context.Background()
	a, _ := st.Add(ctx, textDef("g1", time.Hour))

	every := 5 * time.Second
	channel := " c2 "
	ping := "<@&99>"
	got, err := st.Edit(ctx, "g1", a.ID, Patch{ChannelID: &channel, Every: &every, Ping: &ping})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got.Every != MinEvery || got.ChannelID != "c2" || got.Ping != "<@&99>" {
		t.Fatalf("edited = %+v", got)
	}
	if want := clock.Now().Add(SafetyDelay); !got.NextRunAt.Equal(want) {
		t.Fatalf("NextRunAt = %v, want %v", got.NextRunAt, want)
	}
}

func TestStoreRunNow(t *testing.T) {
	t.Parallel()
	st, _, clock := newTestStore(t)
	ctx := context.Background()
	def := textDef("g1", time.Hour)
	def.StartDelay = time.Hour
	a, _ := st.Add(ctx, def)

	if due := st.ComputeDue(clock.Now()); len(due) != 0 {
		t.Fatalf("due before RunNow: %d", len(due))
	}
	if _, err := st.RunNow(ctx, "g1", a.ID); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if due := st.ComputeDue(clock.Now()); len(due) != 1 {
		t.Fatalf("due after RunNow: %d", len(due))
	}
}

func TestStoreComputeDueOrderAndIdempotence(t *testing.T) {
	t.Parallel()
	st, _, clock := newTestStore(t)
	ctx := context.Background()

	late := textDef("g2", time.Hour)
	late.StartDelay = 2 * time.Minute
	_, _ = st.Add(ctx, late)
	_, _ = st.Add(ctx, textDef("g1", time.Hour))
	mid := textDef("g1", time.Hour)
	mid.StartDelay = time.Minute
	_, _ = st.Add(ctx, mid)

	at := clock.Now().Add(5 * time.Minute)
	first := st.ComputeDue(at)
	second := st.ComputeDue(at)
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("due = %d/%d, want 3", len(first), len(second))
	}
	wantIDs := []int64{2, 3, 1}
	for i, sc := range first {
		if sc.ID != wantIDs[i] || second[i].ID != wantIDs[i] {
			t.Fatalf("order = %v, want %v", []int64{first[0].ID, first[1].ID, first[2].ID}, wantIDs)
		}
	}
}

func TestStoreRecordRun(t *testing.T) {
	t.Parallel()
	st, _, clock := newTestStore(t)
	ctx := context.Background()
	a, _ := st.Add(ctx, textDef("g1", time.Hour))
	now := clock.Now()

	failed, _, err := st.RecordRun(ctx, "g1", a.ID, Outcome{Error: "channel not found or not text-based"}, now)
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if failed.Runs != 0 || failed.LastError == "" || !failed.LastRunAt.Equal(now) {
		t.Fatalf("after failure = %+v", failed)
	}
	if !failed.NextRunAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("NextRunAt = %v, want now+1h", failed.NextRunAt)
	}

	later := now.Add(time.Hour)
	ok, _, err := st.RecordRun(ctx, "g1", a.ID, Outcome{OK: true}, later)
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if ok.Runs != 1 || ok.LastError != "" {
		t.Fatalf("after success = %+v", ok)
	}
	if !ok.NextRunAt.After(later) {
		t.Fatalf("NextRunAt %v not after %v", ok.NextRunAt, later)
	}

	if st.Stats().Failing != 0 {
		t.Fatal("schedule still counted as failing")
	}
	if _, _, err := st.RecordRun(ctx, "g1", 99, Outcome{OK: true}, later); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RecordRun unknown err = %v", err)
	}
}

func TestStoreRecordRunDefaultsErrorText(t *testing.T) {
	t.Parallel()
	st, _, clock := newTestStore(t)
	a, _ := st.Add(context.Background(), textDef("g1", time.Hour))
	got, _, _ := st.RecordRun(context.Background(), "g1", a.ID, Outcome{}, clock.Now())
	if got.LastError != "unknown error" {
		t.Fatalf("LastError = %q", got.LastError)
	}
}

func TestStoreBumpAfterDowntime(t *testing.T) {
	t.Parallel()
	st, _, clock := newTestStore(t)
	ctx := context.Background()
	a, _ := st.Add(ctx, textDef("g1", time.Hour))

	// The process was down for four intervals.
	clock.Advance(4 * time.Hour)
	now := clock.Now()
	if due := st.ComputeDue(now); len(due) != 1 {
		t.Fatalf("due = %d, want exactly one", len(due))
	}
	dropped, err := st.BumpNextRun(ctx, "g1", a.ID, now)
	if err != nil {
		t.Fatalf("BumpNextRun: %v", err)
	}
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
	got, _ := st.Get("g1", a.ID)
	if !got.NextRunAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("NextRunAt = %v, want now+1h", got.NextRunAt)
	}
	if due := st.ComputeDue(now); len(due) != 0 {
		t.Fatalf("still due after bump: %d", len(due))
	}
	if st.Stats().Dropped != 1 {
		t.Fatalf("Stats.Dropped = %d", st.Stats().Dropped)
	}
}

func TestStoreSaveFailureKeepsMemoryState(t *testing.T) {
	t.Parallel()
	st, be, _ := newTestStore(t)
	be.err = errors.New("disk full")

	sc, err := st.Add(context.Background(), textDef("g1", time.Hour))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, ok := st.Get("g1", sc.ID); !ok {
		t.Fatal("schedule lost after failed save")
	}
	if err := st.Save(context.Background()); err == nil {
		t.Fatal("Save should report backend error")
	}
}

func TestStoreLoadNormalizesRecords(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	inactive := false
	next := clock.now.Add(time.Hour).UnixMilli()
	be := &memBackend{snap: Snapshot{
		NextID: 2,
		Schedules: []Record{
			{ID: 5, GuildID: "g1", ChannelID: "c1", Type: TypeText, EveryMs: 1000, Payload: json.RawMessage(`{"content":"hi"}`), Runs: -3},
			{ID: 6, GuildID: "g1", ChannelID: "c1", Type: TypeEmbed, EveryMs: 3_600_000, Payload: json.RawMessage(`{"title":"t"}`), Active: &inactive, NextRunAt: &next},
			{ID: 7, GuildID: "g2", ChannelID: "c1", Type: "mystery", EveryMs: 3_600_000, Payload: json.RawMessage(`not json`)},
			{ID: 0, GuildID: "g1"},
			{ID: 8, GuildID: "  "},
		},
	}}
	st := New(be, logx.Nop(), WithClock(clock.Now))
	st.Load(context.Background())

	if got := st.Stats(); got.Schedules != 3 || got.Guilds != 2 || got.NextID != 8 {
		t.Fatalf("stats = %+v", got)
	}

	a, ok := st.Get("g1", 5)
	if !ok {
		t.Fatal("record 5 not loaded")
	}
	if a.Every != MinEvery || a.Runs != 0 || !a.Active {
		t.Fatalf("record 5 = %+v", a)
	}
	if !a.NextRunAt.Equal(clock.now.Add(MinEvery)) {
		t.Fatalf("record 5 NextRunAt = %v", a.NextRunAt)
	}
	if p, ok := a.Payload.(TextPayload); !ok || p.Content != "hi" {
		t.Fatalf("record 5 payload = %#v", a.Payload)
	}

	b, _ := st.Get("g1", 6)
	if b.Active || b.Type() != TypeEmbed || !b.NextRunAt.Equal(time.UnixMilli(next)) {
		t.Fatalf("record 6 = %+v", b)
	}
	if due := st.ComputeDue(clock.now.Add(48 * time.Hour)); len(due) != 2 {
		t.Fatalf("due = %d, want 2 (inactive excluded)", len(due))
	}

	c, _ := st.Get("g2", 7)
	if p, ok := c.Payload.(TextPayload); !ok || p.Content != "" {
		t.Fatalf("record 7 payload = %#v", c.Payload)
	}
}

func TestEveryFromMillis(t *testing.T) {
	t.Parallel()
	maxEvery := time.Duration(maxEveryMs) * time.Millisecond
	tests := []struct {
		name string
		ms   int64
		want time.Duration
	}{
		{"hour", 3_600_000, time.Hour},
		{"largest exact", maxEveryMs, maxEvery},
		{"just over", maxEveryMs + 1, maxEvery},
		{"wraps when multiplied", 9_300_000_000_000, maxEvery},
		{"max int64", math.MaxInt64, maxEvery},
		{"negative", -9_300_000_000_000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := everyFromMillis(tt.ms); got != tt.want {
				t.Fatalf("everyFromMillis(%d) = %v want %v", tt.ms, got, tt.want)
			}
		})
	}
}

func TestStoreLoadOversizedInterval(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	be := &memBackend{snap: Snapshot{Schedules: []Record{
		{ID: 1, GuildID: "g", ChannelID: "c", Type: TypeText, EveryMs: 9_300_000_000_000, Payload: json.RawMessage(`{"content":"hi"}`)},
		{ID: 2, GuildID: "g", ChannelID: "c", Type: TypeText, EveryMs: -9_300_000_000_000, Payload: json.RawMessage(`{"content":"hi"}`)},
	}}}
	st := New(be, logx.Nop(), WithClock(clock.Now))
	st.Load(context.Background())

	big, _ := st.Get("g", 1)
	if big.Every < 290*365*24*time.Hour {
		t.Fatalf("oversized interval wrapped to %v", big.Every)
	}
	if !big.NextRunAt.After(clock.now) {
		t.Fatalf("NextRunAt = %v", big.NextRunAt)
	}
	neg, _ := st.Get("g", 2)
	if neg.Every != MinEvery {
		t.Fatalf("negative interval = %v, want %v", neg.Every, MinEvery)
	}
}

func TestStoreLoadUnreadableSnapshotStartsEmpty(t *testing.T) {
	t.Parallel()
	be := &memBackend{err: errors.New("corrupt")}
	st := New(be, logx.Nop())
	st.Load(context.Background())
	if got := st.Stats(); got.Schedules != 0 || got.NextID != 1 {
		t.Fatalf("stats = %+v", got)
	}
}

func TestStoreFileBackendRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "schedules.json")
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	ctx := context.Background()

	st := New(NewFileBackend(path), logx.Nop(), WithClock(clock.Now))
	st.Load(ctx)
	text, _ := st.Add(ctx, Definition{GuildID: "g1", ChannelID: "c1", Payload: TextPayload{Content: "hello"}, Every: time.Hour, Ping: "@here"})
	embed, _ := st.Add(ctx, Definition{
		GuildID: "g1", ChannelID: "c2", Every: 2 * time.Hour,
		Payload: EmbedPayload{Title: "Weekly", Color: "#5865F2", Fields: []EmbedField{{Name: "a", Value: "b", Inline: true}}, Footer: &EmbedFooter{Text: "f"}},
	})
	_, _ = st.Pause(ctx, "g1", embed.ID)
	_ = st.Remove(ctx, "g1", text.ID)

	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file left behind: %v", err)
	}

	reloaded := New(NewFileBackend(path), logx.Nop(), WithClock(clock.Now))
	reloaded.Load(ctx)
	got, ok := reloaded.Get("g1", embed.ID)
	if !ok {
		t.Fatal("embed schedule missing after reload")
	}
	if !got.Paused || got.Every != 2*time.Hour || got.ChannelID != "c2" {
		t.Fatalf("reloaded = %+v", got)
	}
	p, ok := got.Payload.(EmbedPayload)
	if !ok || p.Title != "Weekly" || len(p.Fields) != 1 || p.Footer == nil || p.Footer.Text != "f" {
		t.Fatalf("reloaded payload = %#v", got.Payload)
	}
	if n := reloaded.Stats().NextID; n != 3 {
		t.Fatalf("NextID = %d, want 3", n)
	}
}

func TestFileBackendMissingAndCorrupt(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	snap, err := NewFileBackend(filepath.Join(dir, "absent.json")).Load(context.Background())
	if err != nil || len(snap.Schedules) != 0 {
		t.Fatalf("missing file: snap=%+v err=%v", snap, err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileBackend(bad).Load(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStoreKeepsCorruptSnapshotAside(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "schedules.json")
	corrupt := []byte(`{"nextId": 12, "schedules": [{"id": 11,`)
	if err := os.WriteFile(path, corrupt, 0o600); err != nil {
		t.Fatal(err)
	}

	st := New(NewFileBackend(path), logx.Nop())
	st.Load(ctx)
	if got := st.Stats(); got.Schedules != 0 {
		t.Fatalf("stats = %+v", got)
	}
	if _, err := st.Add(ctx, textDef("g", time.Hour)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	matches, err := filepath.Glob(path + ".corrupt-*")
	if err != nil || len(matches) != 1 {
		t.Fatalf("corrupt copies = %v (err %v)", matches, err)
	}
	kept, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(kept) != string(corrupt) {
		t.Fatalf("corrupt copy = %q", kept)
	}
	if _, err := NewFileBackend(path).Load(ctx); err != nil {
		t.Fatalf("fresh snapshot unreadable: %v", err)
	}
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	t.Parallel()
	be, err := OpenSQLBackend("sqlite", filepath.Join(t.TempDir(), "schedules.db"))
	if err != nil {
		t.Fatalf("OpenSQLBackend: %v", err)
	}
	t.Cleanup(func() { _ = be.Close() })

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	ctx := context.Background()
	st := New(be, logx.Nop(), WithClock(clock.Now))
	st.Load(ctx)
	a, _ := st.Add(ctx, textDef("g1", time.Hour))
	_, _ = st.Add(ctx, textDef("g2", time.Hour))
	_ = st.Remove(ctx, "g2", 2)

	reloaded := New(be, logx.Nop(), WithClock(clock.Now))
	reloaded.Load(ctx)
	if got := reloaded.Stats(); got.Schedules != 1 || got.NextID != 3 {
		t.Fatalf("stats = %+v", got)
	}
	got, ok := reloaded.Get("g1", a.ID)
	if !ok || got.Payload.(TextPayload).Content != "hello" {
		t.Fatalf("reloaded = %+v", got)
	}
}

func TestOpenBackendDrivers(t *testing.T) {
	if _, err := OpenBackend(BackendConfig{Driver: "sqlite"}); err == nil {
		t.Fatal("sqlite without path should fail")
	}
	if _, err := OpenBackend(BackendConfig{Driver: "mysql"}); err == nil {
		t.Fatal("mysql without dsn should fail")
	}
	if _, err := OpenBackend(BackendConfig{Driver: "redis"}); err == nil {
		t.Fatal("unknown driver should fail")
	}

	t.Setenv(PathEnv, "/tmp/from-env.json")
	be, err := OpenBackend(BackendConfig{Path: "./ignored.json"})
	if err != nil {
		t.Fatalf("OpenBackend: %v", err)
	}
	if fb, ok := be.(*FileBackend); !ok || fb.Path() != "/tmp/from-env.json" {
		t.Fatalf("backend = %#v", be)
	}
}
