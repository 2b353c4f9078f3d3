// Package planning ведёт личные планы публикаций: фото копятся в сессии и при
// финализации раскладываются по дневным слотам времени.
package planning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-photo-moderator/internal/domain"
	"tg-photo-moderator/internal/infra/metrics"
	"tg-photo-moderator/internal/state"
)

// ErrNoValidSlots возвращается, если в сообщении нет ни одного корректного времени.
var ErrNoValidSlots = errors.New("нет корректного времени публикации")

// AddedPhoto — результат добавления фото в план.
type AddedPhoto struct {
	Photo     domain.PlannedPhoto
	Index     int
	FireAt    time.Time
	HasFireAt bool
}

// Service ведёт сессии планирования публикаций.
type Service struct {
	store        *state.Store
	fingerprints domain.Fingerprinter
	loc          *time.Location
	now          func() time.Time
	log          zerolog.Logger
}

// NewService создаёт сервис планирования.
func NewService(store *state.Store, fingerprints domain.Fingerprinter, loc *time.Location, log zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, fingerprints: fingerprints, loc: loc, now: time.Now, log: log}
}

// SetClock подменяет источник времени.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// PlanID — идентификатор отпечатка фото из плана в индексе.
func PlanID(ownerID int64, photoID string) string {
	return fmt.Sprintf("plan:%d:%s", ownerID, photoID)
}

// Start создаёт сессию или активирует существующую, сохраняя фото и расписание.
func (s *Service) Start(ctx context.Context, ownerID int64) error {
	return s.store.Update(ctx, func(t *state.Tables) (bool, error) {
		sess, ok := t.Session(ownerID)
		if !ok {
			sess = &domain.PlanningSession{OwnerID: ownerID}
			t.Sessions[ownerID] = sess
		}
		sess.Active = true
		sess.UpdatedAt = s.now()
		return true, nil
	})
}

// SetSchedule заменяет расписание активной сессии.
func (s *Service) SetSchedule(ctx context.Context, ownerID int64, text string) ([]domain.TimeSlot, error) {
	slots := ParseSlots(text)
	err := s.store.Update(ctx, func(t *state.Tables) (bool, error) {
		sess, ok := t.Session(ownerID)
		if !ok || !sess.Active {
			return false, domain.ErrNotFound
		}
		if len(slots) == 0 {
			return false, ErrNoValidSlots
		}
		sess.Slots = slots
		sess.UpdatedAt = s.now()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug().Int64("owner", ownerID).Int("slots", len(slots)).Msg("расписание обновлено")
	return slots, nil
}

// AddPhoto добавляет фото в конец плана и записывает его отпечаток в индекс.
func (s *Service) AddPhoto(ctx context.Context, ownerID int64, ref string) (AddedPhoto, error) {
	var active bool
	s.store.View(func(t *state.Tables) {
		sess, ok := t.Session(ownerID)
		active = ok && sess.Active
	})
	if !active {
		return AddedPhoto{}, domain.ErrNotFound
	}

	fp, err := s.fingerprints.Fingerprint(ctx, ref)
	if err != nil {
		return AddedPhoto{}, fmt.Errorf("отпечаток фото: %w", err)
	}

	var added AddedPhoto
	err = s.store.Update(ctx, func(t *state.Tables) (bool, error) {
		sess, ok := t.Session(ownerID)
		if !ok || !sess.Active {
			return false, domain.ErrNotFound
		}
		photo := domain.PlannedPhoto{
			ID:          newPhotoID(sess),
			SourceRef:   ref,
			Fingerprint: fp,
			Duplicate:   t.Index.IsDuplicate(fp),
		}
		sess.Photos = append(sess.Photos, photo)
		sess.UpdatedAt = s.now()
		t.Index.Add(PlanID(ownerID, photo.ID), fp)

		added = AddedPhoto{Photo: photo, Index: len(sess.Photos) - 1}
		if len(sess.Slots) > 0 {
			added.FireAt = FireTime(s.now(), s.loc, sess.Slots, added.Index)
			added.HasFireAt = true
		}
		return true, nil
	})
	if err != nil {
		return AddedPhoto{}, err
	}
	metrics.PlannedPhotosTotal.Inc()
	return added, nil
}

func newPhotoID(sess *domain.PlanningSession) string {
	for {
		id := uuid.NewString()[:8]
		taken := false
		for _, p := range sess.Photos {
			if p.ID == id {
				taken = true
				break
			}
		}
		if !taken {
			return id
		}
	}
}

// RemovePhoto удаляет фото по позиции. Если photoID не пуст, он должен совпасть
// с фото на этой позиции, иначе кнопка устарела и возвращается ErrNotFound.
func (s *Service) RemovePhoto(ctx context.Context, ownerID int64, index int, photoID string) (domain.PlannedPhoto, error) {
	var removed domain.PlannedPhoto
	err := s.store.Update(ctx, func(t *state.Tables) (bool, error) {
		sess, ok := t.Session(ownerID)
		if !ok || !sess.Active {
			return false, domain.ErrNotFound
		}
		if index < 0 || index >= len(sess.Photos) {
			return false, domain.ErrNotFound
		}
		if photoID != "" && sess.Photos[index].ID != photoID {
			return false, domain.ErrNotFound
		}
		removed = sess.Photos[index]
		sess.Photos = append(sess.Photos[:index], sess.Photos[index+1:]...)
		sess.UpdatedAt = s.now()
		t.Index.Remove(PlanID(ownerID, removed.ID))
		return true, nil
	})
	return removed, err
}

// Finalize превращает план в запланированные публикации и удаляет сессию.
// Возвращает (0, false), если нет фото или расписания.
func (s *Service) Finalize(ctx context.Context, ownerID int64) (int, bool) {
	var count int
	err := s.store.Update(ctx, func(t *state.Tables) (bool, error) {
		sess, ok := t.Session(ownerID)
		if !ok || len(sess.Photos) == 0 || len(sess.Slots) == 0 {
			return false, nil
		}
		now := s.now()
		for i, photo := range sess.Photos {
			t.Scheduled = append(t.Scheduled, domain.ScheduledEntry{
				ID:        uuid.NewString(),
				SourceRef: photo.SourceRef,
				FireAt:    FireTime(now, s.loc, sess.Slots, i),
				OwnerID:   ownerID,
			})
		}
		count = len(sess.Photos)
		delete(t.Sessions, ownerID)
		return true, nil
	})
	if err != nil || count == 0 {
		return 0, false
	}
	metrics.ScheduledEntriesTotal.Add(float64(count))
	s.log.Info().Int64("owner", ownerID).Int("entries", count).Msg("план публикаций сформирован")
	return count, true
}

// Status возвращает копию сессии владельца.
func (s *Service) Status(ownerID int64) (domain.PlanningSession, bool) {
	var (
		out domain.PlanningSession
		ok  bool
	)
	s.store.View(func(t *state.Tables) {
		sess, found := t.Session(ownerID)
		if found {
			out = sess.Clone()
			ok = true
		}
	})
	return out, ok
}
