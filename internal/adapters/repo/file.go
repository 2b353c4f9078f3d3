package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tg-photo-moderator/internal/domain"
	"tg-photo-moderator/internal/infra/metrics"
)

const (
	hashesFile    = "hashes.json"
	pendingFile   = "pending.json"
	scheduledFile = "scheduled.json"
	sessionsFile  = "sessions.json"
)

// File хранит каждую таблицу состояния отдельным JSON-файлом в каталоге.
// Файлы пишутся через временный файл и rename, но между файлами атомарности нет.
type File struct {
	dir string
}

var _ domain.StateRepo = (*File)(nil)

// NewFile создаёт файловое хранилище в каталоге dir.
func NewFile(dir string) *File {
	return &File{dir: dir}
}

// Load читает все таблицы; отсутствующий файл означает пустую таблицу.
func (f *File) Load(ctx context.Context) (domain.Snapshot, error) {
	start := time.Now()
	var snap domain.Snapshot
	err := errors.Join(
		readJSON(filepath.Join(f.dir, hashesFile), &snap.Hashes),
		readJSON(filepath.Join(f.dir, pendingFile), &snap.Pending),
		readJSON(filepath.Join(f.dir, scheduledFile), &snap.Scheduled),
		readJSON(filepath.Join(f.dir, sessionsFile), &snap.Sessions),
	)
	metrics.ObserveNetworkRequest("file", "load", f.dir, start, err)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

// Save перезаписывает все таблицы целиком.
func (f *File) Save(ctx context.Context, snap domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("создание каталога состояния: %w", err)
	}
	err := errors.Join(
		writeJSON(filepath.Join(f.dir, hashesFile), nonNil(snap.Hashes)),
		writeJSON(filepath.Join(f.dir, pendingFile), nonNil(snap.Pending)),
		writeJSON(filepath.Join(f.dir, scheduledFile), nonNil(snap.Scheduled)),
		writeJSON(filepath.Join(f.dir, sessionsFile), nonNil(snap.Sessions)),
	)
	metrics.ObserveNetworkRequest("file", "save", f.dir, start, err)
	return err
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("чтение %s: %w", filepath.Base(path), err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("разбор %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("сериализация %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("запись %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("переименование %s: %w", filepath.Base(tmp), err)
	}
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
