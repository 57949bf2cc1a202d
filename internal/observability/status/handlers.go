package status

import (
	"crypto/subtle"
	"sort"
	"strings"
	"time"

	rtsup "bizbot/internal/runtime/supervisor"
	"bizbot/internal/schedule"

	"github.com/gofiber/fiber/v2"
	fpprof "github.com/gofiber/fiber/v2/middleware/pprof"
)

type scheduleView struct {
	ID        int64      `json:"id"`
	GuildID   string     `json:"guild_id"`
	ChannelID string     `json:"channel_id"`
	Type      string     `json:"type"`
	Every     string     `json:"every"`
	Ping      string     `json:"ping,omitempty"`
	Active    bool       `json:"active"`
	Paused    bool       `json:"paused"`
	Runs      int64      `json:"runs"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	NextRunAt time.Time  `json:"next_run_at"`
}

func viewOf(sc schedule.Schedule) scheduleView {
	v := scheduleView{
		ID:        sc.ID,
		GuildID:   sc.GuildID,
		ChannelID: sc.ChannelID,
		Type:      string(sc.Type()),
		Every:     sc.Every.String(),
		Ping:      sc.Ping,
		Active:    sc.Active,
		Paused:    sc.Paused,
		Runs:      sc.Runs,
		LastError: sc.LastError,
		NextRunAt: sc.NextRunAt,
	}
	if !sc.LastRunAt.IsZero() {
		t := sc.LastRunAt
		v.LastRunAt = &t
	}
	return v
}

func (s *Service) newApp(cfg Config) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		IdleTimeout:           cfg.IdleTimeout,
	})
	app.Use(bearerAuth(cfg.Token))
	if cfg.Pprof {
		app.Use(fpprof.New())
	}

	app.Get("/healthz", s.handleHealth)
	v1 := app.Group("/v1")
	v1.Get("/runner", s.handleRunner)
	v1.Get("/guilds/:guild/schedules", s.handleGuildSchedules)
	return app
}

// bearerAuth accepts "Authorization: Bearer <token>" or ?token=. An empty
// token disables the check.
func bearerAuth(token string) fiber.Handler {
	tok := []byte(strings.TrimSpace(token))
	return func(c *fiber.Ctx) error {
		if len(tok) == 0 {
			return c.Next()
		}
		got := c.Query("token")
		if got == "" {
			got = strings.TrimSpace(strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "))
		}
		if subtle.ConstantTimeCompare([]byte(got), tok) != 1 {
			c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
			return c.Status(fiber.StatusUnauthorized).SendString("unauthorized")
		}
		return c.Next()
	}
}

func (s *Service) handleHealth(c *fiber.Ctx) error {
	out := fiber.Map{"ok": true, "time": time.Now().UTC()}
	if s.src.Schedules != nil {
		out["schedules"] = s.src.Schedules.Stats()
	}
	if s.src.Runner != nil {
		snap := s.src.Runner.Snapshot()
		out["runner"] = fiber.Map{"enabled": snap.Enabled, "running": snap.Running, "queue_len": snap.QueueLen}
	}
	if s.src.Supervisors != nil {
		sups := map[string]rtsup.Snapshot{}
		for name, sup := range s.src.Supervisors() {
			if sup == nil {
				continue
			}
			snap := sup.Snapshot()
			if snap.FirstError != "" {
				out["ok"] = false
			}
			sups[name] = snap
		}
		out["supervisors"] = sups
	}
	if s.src.EventsDropped != nil {
		out["events_dropped"] = s.src.EventsDropped()
	}
	return c.JSON(out)
}

func (s *Service) handleRunner(c *fiber.Ctx) error {
	if s.src.Runner == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "runner not configured"})
	}
	return c.JSON(s.src.Runner.Snapshot())
}

func (s *Service) handleGuildSchedules(c *fiber.Ctx) error {
	if s.src.Schedules == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "schedules not configured"})
	}
	guild := strings.TrimSpace(c.Params("guild"))
	list := s.src.Schedules.List(guild)
	views := make([]scheduleView, 0, len(list))
	for _, sc := range list {
		views = append(views, viewOf(sc))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return c.JSON(fiber.Map{"guild_id": guild, "count": len(views), "schedules": views})
}
