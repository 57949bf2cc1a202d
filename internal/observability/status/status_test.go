package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bizbot/internal/schedule"
	"bizbot/internal/scheduler"
	logx "bizbot/pkg/logx"
)

type fakeRunner struct{ snap scheduler.Snapshot }

func (f fakeRunner) Snapshot() scheduler.Snapshot { return f.snap }

type fakeSchedules struct{ items []schedule.Schedule }

func (f fakeSchedules) List(guildID string) []schedule.Schedule {
	var out []schedule.Schedule
	for _, sc := range f.items {
		if sc.GuildID == guildID {
			out = append(out, sc)
		}
	}
	return out
}

func (f fakeSchedules) Stats() schedule.Stats {
	return schedule.Stats{Schedules: len(f.items)}
}

func testService(token string) *Service {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	src := Sources{
		Runner: fakeRunner{snap: scheduler.Snapshot{Enabled: true, Running: true, Sent: 4}},
		Schedules: fakeSchedules{items: []schedule.Schedule{
			{ID: 2, GuildID: "g1", ChannelID: "c1", Every: time.Hour, Active: true, NextRunAt: now},
			{ID: 1, GuildID: "g1", ChannelID: "c2", Every: time.Minute, Active: true, Paused: true, NextRunAt: now, LastRunAt: now},
			{ID: 3, GuildID: "g2", ChannelID: "c3", Every: time.Minute, Active: true, NextRunAt: now},
		}},
	}
	return New(Config{Enabled: true, Token: token}, src, logx.Nop())
}

func doGet(t *testing.T, s *Service, token, url string, header bool) (*http.Response, []byte) {
	t.Helper()
	app := s.newApp(Config{Token: token})
	req := httptest.NewRequest(http.MethodGet, url, nil)
	if header {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func TestAuth(t *testing.T) {
	t.Parallel()

	s := testService("secret")
	tests := []struct {
		name   string
		url    string
		header bool
		want   int
	}{
		{"no token", "/healthz", false, http.StatusUnauthorized},
		{"wrong query token", "/healthz?token=nope", false, http.StatusUnauthorized},
		{"query token", "/healthz?token=secret", false, http.StatusOK},
		{"bearer header", "/healthz", true, http.StatusOK},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, _ := doGet(t, s, "secret", tt.url, tt.header)
			if resp.StatusCode != tt.want {
				t.Fatalf("status=%d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestHealthAndRunner(t *testing.T) {
	t.Parallel()

	s := testService("")
	resp, body := doGet(t, s, "", "/healthz", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status=%d", resp.StatusCode)
	}
	var health struct {
		OK        bool           `json:"ok"`
		Schedules schedule.Stats `json:"schedules"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if !health.OK || health.Schedules.Schedules != 3 {
		t.Fatalf("unexpected health: %s", body)
	}

	resp, body = doGet(t, s, "", "/v1/runner", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("runner status=%d", resp.StatusCode)
	}
	var snap scheduler.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode runner: %v", err)
	}
	if !snap.Running || snap.Sent != 4 {
		t.Fatalf("unexpected runner snapshot: %s", body)
	}
}

func TestGuildSchedules(t *testing.T) {
	t.Parallel()

	s := testService("")
	resp, body := doGet(t, s, "", "/v1/guilds/g1/schedules", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var out struct {
		GuildID   string         `json:"guild_id"`
		Count     int            `json:"count"`
		Schedules []scheduleView `json:"schedules"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.GuildID != "g1" || out.Count != 2 {
		t.Fatalf("unexpected body: %s", body)
	}
	if out.Schedules[0].ID != 1 || out.Schedules[1].ID != 2 {
		t.Fatalf("not sorted by id: %+v", out.Schedules)
	}
	if !out.Schedules[0].Paused || out.Schedules[0].LastRunAt == nil {
		t.Fatalf("paused view lost state: %+v", out.Schedules[0])
	}
	if out.Schedules[1].LastRunAt != nil {
		t.Fatalf("never-run schedule has last_run_at: %+v", out.Schedules[1])
	}
}

func TestMissingSources(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true}, Sources{}, logx.Nop())
	resp, _ := doGet(t, s, "", "/v1/runner", false)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("runner status=%d", resp.StatusCode)
	}
	resp, _ = doGet(t, s, "", "/v1/guilds/g1/schedules", false)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("schedules status=%d", resp.StatusCode)
	}
}

func TestServeRefusesInsecurePublicBind(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, Sources{}, logx.Nop())
	if err := s.serveOnce(context.Background()); err == nil {
		t.Fatal("expected refusal for public bind without token")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	s := testService("")
	s.Reconfigure(context.Background(), Config{Enabled: true, Addr: "127.0.0.1:0"})

	deadline := time.Now().Add(3 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not bind")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx)
	if s.Supervisor() != nil {
		t.Fatal("supervisor still set after Stop")
	}
}
