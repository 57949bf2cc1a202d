package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLBackend stores one row per schedule (the record as JSON) plus the id
// counter. Save rewrites every row inside one transaction, so a snapshot is
// replaced wholesale exactly like the file backend.
type SQLBackend struct {
	db     *sqlx.DB
	driver string
}

var sqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS schedules (
		id BIGINT NOT NULL PRIMARY KEY,
		guild_id VARCHAR(64) NOT NULL,
		data TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS schedule_meta (
		k VARCHAR(64) NOT NULL PRIMARY KEY,
		v BIGINT NOT NULL
	)`,
}

const metaNextID = "next_id"

type scheduleRow struct {
	ID      int64  `db:"id"`
	GuildID string `db:"guild_id"`
	Data    string `db:"data"`
}

// OpenSQLBackend opens driver ("sqlite" or "mysql") at dsn and ensures the
// schema exists.
func OpenSQLBackend(driver, dsn string) (*SQLBackend, error) {
	if driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// SQLite prefers a single writer.
		db.SetMaxOpenConns(1)
		_, _ = db.Exec("PRAGMA journal_mode = WAL")
	}
	b := &SQLBackend{db: db, driver: driver}
	if err := b.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLBackend) migrate(ctx context.Context) error {
	for _, stmt := range sqlSchema {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schedules: %w", err)
		}
	}
	return nil
}

func (b *SQLBackend) Load(ctx context.Context) (Snapshot, error) {
	var rows []scheduleRow
	if err := b.db.SelectContext(ctx, &rows, `SELECT id, guild_id, data FROM schedules ORDER BY guild_id, id`); err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Schedules: make([]Record, 0, len(rows))}
	for _, row := range rows {
		var r Record
		if err := json.Unmarshal([]byte(row.Data), &r); err != nil {
			// Keep the key so the id is never reused; fromRecord fills defaults.
			r = Record{}
		}
		r.ID = row.ID
		r.GuildID = row.GuildID
		snap.Schedules = append(snap.Schedules, r)
	}

	err := b.db.GetContext(ctx, &snap.NextID, b.db.Rebind(`SELECT v FROM schedule_meta WHERE k = ?`), metaNextID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, err
	}
	return snap, nil
}

func (b *SQLBackend) Save(ctx context.Context, snap Snapshot) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedules`); err != nil {
		return err
	}
	insert := tx.Rebind(`INSERT INTO schedules (id, guild_id, data) VALUES (?, ?, ?)`)
	for _, r := range snap.Schedules {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insert, r.ID, r.GuildID, string(data)); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM schedule_meta WHERE k = ?`), metaNextID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO schedule_meta (k, v) VALUES (?, ?)`), metaNextID, snap.NextID); err != nil {
		return err
	}
	return tx.Commit()
}

func (b *SQLBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
