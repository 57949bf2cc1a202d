// Package router handles /schedule slash commands: permission checks,
// schedule definition intake, management actions and the audit trail.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"bizbot/internal/dispatch"
	rtsup "bizbot/internal/runtime/supervisor"
	"bizbot/internal/schedule"
	"bizbot/internal/storage"
	kit "bizbot/internal/transport"
	logx "bizbot/pkg/logx"
)

// Discord permission bits.
const (
	permAdministrator int64 = 1 << 3
	permManageGuild   int64 = 1 << 5
)

// handlerTimeout bounds a single command. Discord expects the interaction
// response within three seconds.
const handlerTimeout = 2500 * time.Millisecond

// Tester sends one copy of a schedule without recording a run.
type Tester interface {
	Send(ctx context.Context, sc schedule.Schedule) dispatch.Result
}

type Request struct {
	Cmd    *kit.Command
	ReqID  string
	Logger logx.Logger

	adapter kit.Adapter
}

func (r *Request) reply(ctx context.Context, text string) error {
	return r.adapter.Reply(ctx, r.Cmd, kit.Reply{Content: text, Ephemeral: true})
}

type CommandManager struct {
	log     logx.Logger
	adapter kit.Adapter
	store   *schedule.Store
	tester  Tester
	audit   storage.Store

	mu         sync.RWMutex
	staffRoles map[string]struct{}

	routes map[string]HandlerFunc

	runMu sync.Mutex
	sup   *rtsup.Supervisor
	jobs  chan func()
}

// NewCommandManager wires the /schedule handlers. audit may be nil.
func NewCommandManager(log logx.Logger, adapter kit.Adapter, store *schedule.Store, tester Tester, audit storage.Store, staffRoles []string) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &CommandManager{
		log:     log,
		adapter: adapter,
		store:   store,
		tester:  tester,
		audit:   audit,
		jobs:    make(chan func(), 256),
	}
	m.SetStaffRoles(staffRoles)
	m.routes = map[string]HandlerFunc{
		"text":   m.handleText,
		"embed":  m.handleEmbed,
		"list":   m.handleList,
		"info":   m.handleInfo,
		"pause":  m.handlePause,
		"resume": m.handleResume,
		"stop":   m.handleStop,
		"runnow": m.handleRunNow,
		"edit":   m.handleEdit,
		"test":   m.handleTest,
	}
	return m
}

// SetStaffRoles replaces the roles that may manage schedules. Safe during
// hot reload.
func (m *CommandManager) SetStaffRoles(ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	m.mu.Lock()
	m.staffRoles = set
	m.mu.Unlock()
}

func (m *CommandManager) canManage(cmd *kit.Command) bool {
	if cmd == nil || cmd.GuildID == "" {
		return false
	}
	if cmd.Permissions&(permAdministrator|permManageGuild) != 0 {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range cmd.RoleIDs {
		if _, ok := m.staffRoles[r]; ok {
			return true
		}
	}
	return false
}

// Supervisor returns the worker supervisor while DispatchLoop runs.
func (m *CommandManager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.sup
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
// Commands run on a small worker pool; a full pool answers "busy".
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := max(2, runtime.NumCPU())
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(m.log),
		rtsup.WithCancelOnError(false),
	)
	m.runMu.Lock()
	m.sup = sup
	m.runMu.Unlock()

	jobs := m.jobs
	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-jobs:
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second), rtsup.WithPublishFirstError(true))
	}
	m.log.Info("command dispatcher started", logx.Int("workers", workers))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.runMu.Lock()
		m.sup = nil
		m.runMu.Unlock()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind != kit.UpdateCommand || up.Command == nil {
				continue
			}
			cmd := up.Command
			select {
			case jobs <- func() { _ = m.Handle(ctx, cmd) }:
			default:
				_ = m.adapter.Reply(ctx, cmd, kit.Reply{Content: "Busy, try again in a moment.", Ephemeral: true})
			}
		}
	}
}

// Handle runs one command synchronously through the middleware chain.
func (m *CommandManager) Handle(ctx context.Context, cmd *kit.Command) error {
	if cmd == nil || cmd.Name != kit.CommandSchedule {
		return nil
	}
	req := &Request{
		Cmd:   cmd,
		ReqID: cmd.InteractionID,
		Logger: m.log.With(
			logx.String("rid", cmd.InteractionID),
			logx.String("guild", cmd.GuildID),
			logx.String("user", cmd.UserID),
			logx.String("cmd", cmd.Name+" "+cmd.Sub),
		),
		adapter: m.adapter,
	}
	h, ok := m.routes[cmd.Sub]
	if !ok {
		h = func(ctx context.Context, req *Request) error {
			return req.reply(ctx, "Unknown subcommand.")
		}
	}
	final := Chain(h,
		MWPanicRecover(),
		MWRequestLog(),
		MWPermission(m),
		MWTimeout(handlerTimeout),
	)
	return final(ctx, req)
}

// record appends an audit entry when storage is configured.
func (m *CommandManager) record(ctx context.Context, req *Request, action string, id int64, channelID string, err error) {
	if m.audit == nil {
		return
	}
	e := storage.AuditEntry{
		At:         time.Now(),
		GuildID:    req.Cmd.GuildID,
		ActorID:    req.Cmd.UserID,
		ActorName:  req.Cmd.Username,
		Action:     "schedule." + action,
		ScheduleID: id,
		ChannelID:  channelID,
		OK:         err == nil,
	}
	if err != nil {
		e.Error = err.Error()
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if aerr := m.audit.AppendAudit(actx, e); aerr != nil {
		req.Logger.Warn("audit append failed", logx.Err(aerr))
	}
}
