package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileBackend keeps the snapshot in one JSON file, replaced atomically via
// a temp file and rename.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend { return &FileBackend{path: path} }

func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Load(ctx context.Context) (Snapshot, error) {
	_ = ctx
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", b.path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		aside, qerr := b.quarantine(data)
		if qerr != nil {
			return Snapshot{}, fmt.Errorf("parse %s: %w (could not move it aside: %v)", b.path, err, qerr)
		}
		return Snapshot{}, fmt.Errorf("parse %s: %w (moved to %s)", b.path, err, aside)
	}
	return snap, nil
}

// quarantine moves an unparsable snapshot to <path>.corrupt-<unix> so the
// next Save cannot overwrite it.
func (b *FileBackend) quarantine(data []byte) (string, error) {
	aside := fmt.Sprintf("%s.corrupt-%d", b.path, time.Now().Unix())
	if err := os.Rename(b.path, aside); err == nil {
		return aside, nil
	}
	if err := os.WriteFile(aside, data, 0o600); err != nil {
		return "", err
	}
	return aside, nil
}

func (b *FileBackend) Save(ctx context.Context, snap Snapshot) error {
	_ = ctx
	if snap.Schedules == nil {
		snap.Schedules = []Record{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return err
	}

	tmp := b.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, b.path)
}

func (b *FileBackend) Close() error { return nil }
