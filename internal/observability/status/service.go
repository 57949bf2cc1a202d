// Package status serves a small ops HTTP surface: health, runner state,
// per-guild schedule listings and optional pprof.
package status

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"bizbot/internal/config"
	rtsup "bizbot/internal/runtime/supervisor"
	"bizbot/internal/schedule"
	"bizbot/internal/scheduler"
	logx "bizbot/pkg/logx"

	"github.com/gofiber/fiber/v2"
)

const DefaultAddr = "127.0.0.1:8089"

type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Runner interface {
	Snapshot() scheduler.Snapshot
}

type Schedules interface {
	List(guildID string) []schedule.Schedule
	Stats() schedule.Stats
}

// Sources feeds the endpoints. Any field may be nil.
type Sources struct {
	Runner        Runner
	Schedules     Schedules
	Supervisors   func() map[string]*rtsup.Supervisor
	EventsDropped func() uint64
}

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config
	src Sources

	app      *fiber.App
	addr     string
	sup      *rtsup.Supervisor
	stopDone chan struct{}
}

func New(cfg Config, src Sources, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, src: src, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Addr is the bound listen address while serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Reconfigure applies cfg, starting, stopping or restarting the server as
// needed. Safe during hot reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
	case !running:
		s.Start(ctx)
	case prev != cfg:
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// Start is idempotent. The server runs under a restart loop.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if done := s.stopDone; done != nil {
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.sup != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	sup := s.sup
	s.mu.Unlock()

	sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.sup == nil {
		s.mu.Unlock()
		return
	}
	if done := s.stopDone; done != nil {
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	app, sup := s.app, s.sup
	s.mu.Unlock()

	go func() {
		defer close(done)
		if app != nil {
			_ = app.ShutdownWithContext(ctx)
		}
		sup.Cancel()
		_ = sup.Wait(context.Background())
		s.mu.Lock()
		s.app, s.sup, s.addr, s.stopDone = nil, nil, "", nil
		s.mu.Unlock()
		s.log.Info("status server stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()
	if !cur.Enabled {
		return context.Canceled
	}

	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	host, _, _ := net.SplitHostPort(addr)
	public := !config.IsLoopbackHost(host)
	if public && cur.Token == "" && !cur.AllowInsecure {
		s.log.Error("status server refused to start: non-loopback addr requires token or allow_insecure", logx.String("addr", addr))
		return errors.New("status server refused to start: insecure bind")
	}
	if public && cur.Token == "" {
		s.log.Warn("status server running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}

	app := s.newApp(cur)
	s.mu.Lock()
	s.app = app
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = app.ShutdownWithTimeout(2 * time.Second)
	}()

	s.log.Info("status server started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cur.Token != ""), logx.Bool("pprof", cur.Pprof))
	err = app.Listener(ln)

	s.mu.Lock()
	stopping := s.stopDone != nil
	if s.app == app {
		s.app, s.addr = nil, ""
	}
	s.mu.Unlock()
	if stopping || ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil {
		return errors.New("status server exited unexpectedly")
	}
	return err
}
