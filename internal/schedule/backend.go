package schedule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultPath is the snapshot location used when neither config nor
// SCHEDULES_FILE set one.
const DefaultPath = "./data/schedules.json"

// PathEnv overrides the file backend path.
const PathEnv = "SCHEDULES_FILE"

// Backend persists whole snapshots. Save replaces the previous snapshot.
type Backend interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Close() error
}

// BackendConfig selects a backend.
//
// Driver values:
//   - "file" (default): JSON snapshot at Path
//   - "sqlite": SQLite database file at Path
//   - "mysql": MySQL database at DSN
type BackendConfig struct {
	Driver string
	Path   string
	DSN    string
}

// OpenBackend opens the configured backend. For the file driver, the
// SCHEDULES_FILE environment variable wins over Path.
func OpenBackend(cfg BackendConfig) (Backend, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file", "json":
		path := strings.TrimSpace(os.Getenv(PathEnv))
		if path == "" {
			path = strings.TrimSpace(cfg.Path)
		}
		if path == "" {
			path = DefaultPath
		}
		return NewFileBackend(path), nil
	case "sqlite", "sqlite3":
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			return nil, errors.New("schedules.path is required for the sqlite driver")
		}
		return OpenSQLBackend("sqlite", path)
	case "mysql":
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			return nil, errors.New("schedules.dsn is required for the mysql driver")
		}
		return OpenSQLBackend("mysql", dsn)
	default:
		return nil, fmt.Errorf("unknown schedules.driver: %s", cfg.Driver)
	}
}
