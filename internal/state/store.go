// Package state владеет всем изменяемым состоянием процесса: индексом отпечатков,
// очередью модерации, запланированными публикациями и сессиями планирования.
// Любой доступ идёт через Store.View или Store.Update под одним мьютексом,
// поэтому обработчики событий и планировщик не гоняются за общие карты.
package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tg-photo-moderator/internal/domain"
	"tg-photo-moderator/internal/infra/metrics"
	"tg-photo-moderator/internal/usecase/similarity"
)

const saveTimeout = 5 * time.Second

// Tables — таблицы состояния. Доступны только внутри View/Update.
type Tables struct {
	Index     *similarity.Index
	Pending   map[string]domain.PendingSubmission
	Scheduled []domain.ScheduledEntry
	Sessions  map[int64]*domain.PlanningSession

	// Reserved — ключи модерации, выданные, но ещё не сохранённые. Не персистится.
	Reserved map[string]struct{}
}

func newTables(threshold int) *Tables {
	return &Tables{
		Index:    similarity.NewIndex(threshold),
		Pending:  make(map[string]domain.PendingSubmission),
		Sessions: make(map[int64]*domain.PlanningSession),
		Reserved: make(map[string]struct{}),
	}
}

// KeyTaken сообщает, использовался ли ключ модерации когда-либо.
func (t *Tables) KeyTaken(key string) bool {
	if _, ok := t.Pending[key]; ok {
		return true
	}
	if _, ok := t.Reserved[key]; ok {
		return true
	}
	return t.Index.Has(key)
}

// Session возвращает сессию владельца.
func (t *Tables) Session(ownerID int64) (*domain.PlanningSession, bool) {
	s, ok := t.Sessions[ownerID]
	return s, ok
}

// Store сериализует доступ к Tables и сохраняет их после изменений.
type Store struct {
	mu     sync.Mutex
	tables *Tables
	repo   domain.StateRepo
	log    zerolog.Logger
}

// NewStore создаёт пустое состояние. Перед работой нужно вызвать Load.
func NewStore(repo domain.StateRepo, threshold int, log zerolog.Logger) *Store {
	return &Store{tables: newTables(threshold), repo: repo, log: log}
}

// Load заменяет состояние данными из хранилища.
func (s *Store) Load(ctx context.Context) error {
	snap, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("загрузка состояния: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restoreLocked(snap)
	s.log.Info().
		Int("hashes", len(snap.Hashes)).
		Int("pending", len(snap.Pending)).
		Int("scheduled", len(snap.Scheduled)).
		Int("sessions", len(snap.Sessions)).
		Msg("состояние загружено")
	metrics.SetStateSizes(len(snap.Hashes), len(snap.Pending), len(snap.Scheduled), len(snap.Sessions))
	return nil
}

func (s *Store) restoreLocked(snap domain.Snapshot) {
	t := newTables(s.tables.Index.Threshold())
	t.Index.Restore(snap.Hashes)
	for _, p := range snap.Pending {
		t.Pending[p.Key] = p
	}
	t.Scheduled = append(t.Scheduled, snap.Scheduled...)
	for _, sess := range snap.Sessions {
		clone := sess.Clone()
		t.Sessions[sess.OwnerID] = &clone
	}
	s.tables = t
}

// View выполняет fn под блокировкой без сохранения.
func (s *Store) View(fn func(t *Tables)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.tables)
}

// Update выполняет fn под блокировкой. Если fn сообщила об изменениях,
// состояние синхронно сохраняется. Ошибка сохранения логируется:
// память остаётся источником истины до следующего удачного сохранения.
func (s *Store) Update(ctx context.Context, fn func(t *Tables) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed, err := fn(s.tables)
	if changed {
		s.saveLocked(ctx)
	}
	return err
}

// Snapshot возвращает копию текущего состояния.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() domain.Snapshot {
	t := s.tables
	snap := domain.Snapshot{
		Hashes:    t.Index.Records(),
		Pending:   make([]domain.PendingSubmission, 0, len(t.Pending)),
		Scheduled: append([]domain.ScheduledEntry{}, t.Scheduled...),
		Sessions:  make([]domain.PlanningSession, 0, len(t.Sessions)),
	}
	for _, p := range t.Pending {
		snap.Pending = append(snap.Pending, p)
	}
	sort.Slice(snap.Pending, func(i, j int) bool {
		a, b := snap.Pending[i], snap.Pending[j]
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
		return a.Key < b.Key
	})
	for _, sess := range t.Sessions {
		snap.Sessions = append(snap.Sessions, sess.Clone())
	}
	sort.Slice(snap.Sessions, func(i, j int) bool { return snap.Sessions[i].OwnerID < snap.Sessions[j].OwnerID })
	return snap
}

func (s *Store) saveLocked(ctx context.Context) {
	snap := s.snapshotLocked()
	metrics.SetStateSizes(len(snap.Hashes), len(snap.Pending), len(snap.Scheduled), len(snap.Sessions))
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := s.repo.Save(saveCtx, snap); err != nil {
		metrics.PersistenceFailures.Inc()
		s.log.Error().Err(err).Msg("не удалось сохранить состояние")
	}
}
