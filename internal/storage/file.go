package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "bizbot/pkg/logx"
)

// compactEvery is the number of dedup journal writes between compactions.
const compactEvery = 500

// fileStore keeps everything next to the configured path:
//
//   - <base>.audit.jsonl          append-only audit log
//   - <base>.dedup.snapshot.json  dedup map, rewritten on compaction
//   - <base>.dedup.journal.jsonl  dedup writes since the last snapshot
type fileStore struct {
	log logx.Logger
	mu  sync.Mutex

	audit   *os.File
	journal *os.File

	snapshotPath string
	dedup        map[string]int64 // key -> suppress-until, unix millis
	writes       int
}

type dedupRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for the file driver")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	base := filepath.Join(dir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))

	audit, err := os.OpenFile(base+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	snapshotPath := base + ".dedup.snapshot.json"
	journalPath := base + ".dedup.journal.jsonl"
	dedup := map[string]int64{}
	if err := readSnapshot(snapshotPath, dedup); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("dedup snapshot unreadable", logx.Err(err))
	}
	if err := replayJournal(journalPath, dedup); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("dedup journal unreadable", logx.Err(err))
	}
	pruneExpired(dedup, time.Now())

	journal, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = audit.Close()
		return nil, err
	}
	return &fileStore{
		log:          log,
		audit:        audit,
		journal:      journal,
		snapshotPath: snapshotPath,
		dedup:        dedup,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal != nil && s.writes > 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("dedup compact on close failed", logx.Err(err))
		}
	}
	var errs []error
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
		s.audit = nil
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
		s.journal = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return errors.New("audit log closed")
	}
	return appendLine(s.audit, e)
}

func (s *fileStore) PutDedup(_ context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return errors.New("dedup journal closed")
	}
	s.dedup[key] = ms
	if err := appendLine(s.journal, dedupRecord{Key: key, Until: ms}); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// compactLocked writes the live dedup map as the new snapshot and empties
// the journal.
func (s *fileStore) compactLocked() error {
	pruneExpired(s.dedup, time.Now())
	data, err := json.Marshal(s.dedup)
	if err != nil {
		return err
	}
	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	s.writes = 0
	return err
}

func appendLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func readSnapshot(path string, out map[string]int64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var m map[string]int64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r dedupRecord
		if json.Unmarshal(sc.Bytes(), &r) != nil || r.Key == "" {
			continue
		}
		out[r.Key] = r.Until
	}
	return sc.Err()
}

func pruneExpired(m map[string]int64, now time.Time) {
	cut := now.UnixMilli()
	for k, v := range m {
		if v < cut {
			delete(m, k)
		}
	}
}
