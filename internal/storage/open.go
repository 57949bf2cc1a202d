package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	logx "bizbot/pkg/logx"
)

// Store keeps the moderator audit trail and the notifier dedup window.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	Close() error
}

var openers = map[string]func(Config, logx.Logger) (Store, error){
	"file":    openFile,
	"sqlite":  openSQLite,
	"sqlite3": openSQLite,
}

// Open returns (nil, nil) for an empty or "none" driver. Callers treat a
// nil Store as "no persistence".
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	open, ok := openers[driver]
	if !ok {
		return nil, fmt.Errorf("unknown storage driver %q (want none, file or sqlite)", cfg.Driver)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	st, err := open(cfg, log.With(logx.String("driver", driver)))
	if err != nil {
		return nil, fmt.Errorf("storage %s: %w", driver, err)
	}
	return st, nil
}
