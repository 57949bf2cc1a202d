package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bizbot/internal/config"
	"bizbot/internal/dispatch"
	"bizbot/internal/eventbus"
	"bizbot/internal/notifier"
	"bizbot/internal/observability/status"
	"bizbot/internal/router"
	rtsup "bizbot/internal/runtime/supervisor"
	"bizbot/internal/schedule"
	"bizbot/internal/scheduler"
	"bizbot/internal/storage"
	kit "bizbot/internal/transport"
	"bizbot/internal/transport/discord"
	logx "bizbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *discord.Adapter

	schedules *schedule.Store
	disp      *dispatch.Service
	runner    *scheduler.Service
	notif     *notifier.Service
	status    *status.Service

	cmdm *router.CommandManager

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	boot, err := mapBootConfig(cfg)
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "discord"))
	ad, err := discord.New(mapDiscordConfig(cfg), bootLog)
	if err != nil {
		return nil, err
	}

	var opened resources
	fail := func(err error) (*App, error) {
		_ = opened.release()
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg), ad)
	opened.add(logSvc.Close)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if boot.storageOn {
		st, err := storage.Open(boot.storage, log.With(logx.String("comp", "storage")))
		if err != nil {
			return fail(err)
		}
		store = st
		opened.add(st.Close)
		log.Info("storage enabled", logx.String("driver", boot.storage.Driver))
	}

	backend, err := schedule.OpenBackend(mapSchedulesConfig(cfg))
	if err != nil {
		return fail(fmt.Errorf("schedules backend: %w", err))
	}
	schedules := schedule.New(backend, log.With(logx.String("comp", "schedules")))
	opened.add(schedules.Close)
	schedules.Load(context.Background())

	disp := dispatch.New(ad, mapDispatchConfig(cfg), log.With(logx.String("comp", "dispatch")))
	notifSvc := notifier.New(boot.notifier, ad, log.With(logx.String("comp", "notifier")), bus, store)
	runner := scheduler.New(boot.scheduler, schedules, disp, log.With(logx.String("comp", "scheduler")), bus,
		scheduler.WithAlerter(notifSvc))

	cmdm := router.NewCommandManager(log.With(logx.String("comp", "commands")),
		ad, schedules, disp, store, cfg.Discord.StaffRoleIDs)

	a := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		adapter:   ad,
		schedules: schedules,
		disp:      disp,
		runner:    runner,
		notif:     notifSvc,
		cmdm:      cmdm,
		updates:   make(chan kit.Update, 256),
	}
	a.status = status.New(boot.status, status.Sources{
		Runner:        runner,
		Schedules:     schedules,
		Supervisors:   a.supervisors,
		EventsDropped: bus.Dropped,
	}, log.With(logx.String("comp", "status")))
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// supervisors returns the live supervisors by component for the status server.
func (a *App) supervisors() map[string]*rtsup.Supervisor {
	out := map[string]*rtsup.Supervisor{}
	add := func(name string, sup *rtsup.Supervisor) {
		if sup != nil {
			out[name] = sup
		}
	}
	add("app", a.sup)
	add("discord.adapter", a.adapter.Supervisor())
	add("notifier", a.notif.Supervisor())
	add("commands", a.cmdm.Supervisor())
	add("status", a.status.Supervisor())
	return out
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateMapped(cfg)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	// The runner keeps its context even while disabled so a reload can enable it.
	a.runner.Start(a.sup.Context())
	if a.status.Enabled() {
		a.status.Start(a.sup.Context())
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128, "schedule.", "notifier.")
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	st := a.schedules.Stats()
	a.log.Info("app started",
		logx.Int("guilds", st.Guilds),
		logx.Int("schedules", st.Schedules),
		logx.Bool("runner", a.runner.Enabled()),
	)
	return nil
}

// applyConfig pushes a committed config into the live services.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if need := config.RestartRequired(sections); len(need) > 0 {
		a.log.Warn("config sections changed; restart required for changes to take effect", logx.String("sections", strings.Join(need, ",")))
	}
	if discordRestartNeeded(oldCfg, newCfg) {
		a.log.Warn("discord connection settings changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLoggingConfig(newCfg))
	a.cmdm.SetStaffRoles(newCfg.Discord.StaffRoleIDs)
	a.disp.Apply(mapDispatchConfig(newCfg))

	if rcfg, err := mapSchedulerConfig(newCfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		prev := a.runner.Enabled()
		a.runner.Apply(rcfg)
		if prev != rcfg.Enabled {
			a.log.Info("runner toggled via config", logx.Bool("enabled", rcfg.Enabled))
		}
	}

	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		prev := a.notif.Enabled()
		a.notif.Apply(ncfg)
		switch {
		case prev && !ncfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !prev && ncfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	if scfg, err := mapStatusConfig(newCfg); err != nil {
		a.log.Warn("invalid status config; keeping previous", logx.Err(err))
	} else {
		a.status.Reconfigure(ctx, scfg)
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			if took := time.Since(start); took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			}()
		}
	}

	// Runner first so no tick races the final save.
	step("scheduler", 3*time.Second, func(c context.Context) error { a.runner.Stop(c); return nil })
	step("schedules.save", 2*time.Second, func(c context.Context) error { return a.schedules.Save(c) })
	step("status", 1*time.Second, func(c context.Context) error { a.status.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("schedules.close", 1*time.Second, func(context.Context) error { return a.schedules.Close() })
	step("storage", 1*time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	// Finally, wait for supervised goroutines (config watch/reload, command dispatcher).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
