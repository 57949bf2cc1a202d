package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	logx "bizbot/pkg/logx"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at TEXT NOT NULL,
		guild_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		actor_name TEXT,
		action TEXT NOT NULL,
		schedule_id INTEGER,
		channel_id TEXT,
		ok INTEGER NOT NULL,
		err TEXT,
		meta TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS audit_guild_at ON audit(guild_id, at)`,
	`CREATE TABLE IF NOT EXISTS dedup (
		key TEXT PRIMARY KEY,
		until INTEGER NOT NULL
	)`,
}

type sqliteStore struct {
	db  *sqlx.DB
	log logx.Logger

	ops        atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for the sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log, pruneEvery: 500}
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage migrate: %w", err)
		}
	}
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO audit(at, guild_id, actor_id, actor_name, action, schedule_id, channel_id, ok, err, meta)
		 VALUES(:at, :guild_id, :actor_id, :actor_name, :action, :schedule_id, :channel_id, :ok, :err, :meta)`,
		map[string]any{
			"at":          e.At.UTC().Format(time.RFC3339Nano),
			"guild_id":    e.GuildID,
			"actor_id":    e.ActorID,
			"actor_name":  nullStr(e.ActorName),
			"action":      e.Action,
			"schedule_id": e.ScheduleID,
			"channel_id":  nullStr(e.ChannelID),
			"ok":          e.OK,
			"err":         nullStr(e.Error),
			"meta":        nullStr(e.Meta),
		})
	return err
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET until = excluded.until`,
		key, until.UnixMilli(),
	)
	if err == nil && s.ops.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_, _ = s.db.ExecContext(pctx, `DELETE FROM dedup WHERE until < ?`, time.Now().UnixMilli())
		cancel()
	}
	return err
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, ErrDisabled
	}
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.GetContext(ctx, &ms, `SELECT until FROM dedup WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
