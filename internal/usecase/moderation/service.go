// Package moderation ведёт очередь фото из группы: уведомляет администратора,
// принимает решение и публикует одобренное в канал.
package moderation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-photo-moderator/internal/domain"
	"tg-photo-moderator/internal/infra/metrics"
	"tg-photo-moderator/internal/state"
)

const (
	// ApprovePrefix и RejectPrefix — префиксы callback-данных кнопок решения.
	ApprovePrefix = "approve_"
	RejectPrefix  = "reject_"

	controlsText   = "Действие с фото:"
	archiveTimeout = 30 * time.Second
)

// Config — параметры модерации.
type Config struct {
	AdminID      int64
	ChannelID    int64
	DeleteOrigin bool
}

// Service реализует сценарий модерации.
type Service struct {
	store        *state.Store
	fingerprints domain.Fingerprinter
	messenger    domain.Messenger
	archiver     domain.Archiver
	cfg          Config
	now          func() time.Time
	newKey       func() string
	log          zerolog.Logger
	archives     sync.WaitGroup
}

// NewService создаёт сервис. archiver может быть nil.
func NewService(store *state.Store, fingerprints domain.Fingerprinter, messenger domain.Messenger, archiver domain.Archiver, cfg Config, log zerolog.Logger) *Service {
	return &Service{
		store:        store,
		fingerprints: fingerprints,
		messenger:    messenger,
		archiver:     archiver,
		cfg:          cfg,
		now:          time.Now,
		newKey:       func() string { return uuid.NewString()[:8] },
		log:          log,
	}
}

// Submit ставит фото из группы на модерацию.
func (s *Service) Submit(ctx context.Context, sub domain.Submission) (domain.PendingSubmission, error) {
	fp, err := s.fingerprints.Fingerprint(ctx, sub.SourceRef)
	if err != nil {
		return domain.PendingSubmission{}, fmt.Errorf("отпечаток фото: %w", err)
	}

	var (
		key       string
		match     domain.ContentRecord
		duplicate bool
	)
	_ = s.store.Update(ctx, func(t *state.Tables) (bool, error) {
		match, duplicate = t.Index.Match(fp)
		for {
			key = s.newKey()
			if !t.KeyTaken(key) {
				break
			}
		}
		t.Reserved[key] = struct{}{}
		return false, nil
	})
	release := func() {
		_ = s.store.Update(ctx, func(t *state.Tables) (bool, error) {
			delete(t.Reserved, key)
			return false, nil
		})
	}

	photoMsg, err := s.messenger.SendPhoto(ctx, s.cfg.AdminID, sub.SourceRef, Caption(sub.Author, duplicate), nil)
	if err != nil {
		release()
		return domain.PendingSubmission{}, fmt.Errorf("отправка фото администратору: %w", err)
	}
	controlsMsg, err := s.messenger.SendText(ctx, s.cfg.AdminID, controlsText, DecisionControls(key))
	if err != nil {
		if delErr := s.messenger.DeleteMessage(ctx, s.cfg.AdminID, photoMsg); delErr != nil {
			s.log.Warn().Err(delErr).Str("key", key).Msg("не удалось убрать фото без кнопок")
		}
		release()
		return domain.PendingSubmission{}, fmt.Errorf("отправка кнопок администратору: %w", err)
	}

	pending := domain.PendingSubmission{
		Key:             key,
		SourceRef:       sub.SourceRef,
		OriginChatID:    sub.OriginChatID,
		OriginMessageID: sub.OriginMessageID,
		Author:          sub.Author,
		Notification:    domain.Notification{PhotoMessageID: photoMsg, ControlsMessageID: controlsMsg},
		Fingerprint:     fp,
		Duplicate:       duplicate,
		SubmittedAt:     s.now(),
	}
	_ = s.store.Update(ctx, func(t *state.Tables) (bool, error) {
		delete(t.Reserved, key)
		t.Pending[key] = pending
		return true, nil
	})

	metrics.IncSubmission(duplicate)
	event := s.log.Info().Str("key", key).Str("author", sub.Author).Bool("duplicate", duplicate)
	if duplicate {
		event = event.Str("similar_to", match.ID).Int("distance", domain.Distance(fp, match.Fingerprint))
	}
	event.Msg("фото отправлено на модерацию")
	return pending, nil
}

// Decide применяет решение администратора. Запись изымается из очереди и это
// сохраняется до любых сетевых вызовов: повторное или параллельное решение, в том
// числе после перезапуска, получает ErrNotFound. При ошибке запись возвращается.
func (s *Service) Decide(ctx context.Context, key string, action domain.DecisionAction) (domain.PendingSubmission, error) {
	var pending domain.PendingSubmission
	err := s.store.Update(ctx, func(t *state.Tables) (bool, error) {
		p, ok := t.Pending[key]
		if !ok {
			return false, domain.ErrNotFound
		}
		pending = p
		delete(t.Pending, key)
		return true, nil
	})
	if err != nil {
		metrics.IncDecision(string(action), "not_found")
		return domain.PendingSubmission{}, err
	}

	switch action {
	case domain.DecisionApprove:
		err = s.approve(ctx, pending)
	case domain.DecisionReject:
		s.reject(ctx, pending)
	default:
		err = fmt.Errorf("неизвестное действие %q", action)
	}
	if err != nil {
		_ = s.store.Update(ctx, func(t *state.Tables) (bool, error) {
			t.Pending[key] = pending
			return true, nil
		})
		metrics.IncDecision(string(action), "error")
		return domain.PendingSubmission{}, err
	}

	_ = s.store.Update(ctx, func(t *state.Tables) (bool, error) {
		t.Index.Add(key, pending.Fingerprint)
		return true, nil
	})
	metrics.IncDecision(string(action), "ok")
	s.log.Info().Str("key", key).Str("action", string(action)).Msg("решение по фото применено")
	return pending, nil
}

func (s *Service) approve(ctx context.Context, p domain.PendingSubmission) error {
	if _, err := s.messenger.SendPhoto(ctx, s.cfg.ChannelID, p.SourceRef, "", nil); err != nil {
		return fmt.Errorf("публикация в канал: %w", err)
	}
	s.deleteQuietly(ctx, s.cfg.AdminID, p.Notification.ControlsMessageID, p.Key)
	s.archive(ctx, p)
	return nil
}

func (s *Service) reject(ctx context.Context, p domain.PendingSubmission) {
	s.deleteQuietly(ctx, s.cfg.AdminID, p.Notification.PhotoMessageID, p.Key)
	s.deleteQuietly(ctx, s.cfg.AdminID, p.Notification.ControlsMessageID, p.Key)
	if s.cfg.DeleteOrigin && p.OriginChatID != 0 {
		s.deleteQuietly(ctx, p.OriginChatID, p.OriginMessageID, p.Key)
	}
}

func (s *Service) deleteQuietly(ctx context.Context, chatID int64, messageID int, key string) {
	if messageID == 0 {
		return
	}
	if err := s.messenger.DeleteMessage(ctx, chatID, messageID); err != nil {
		s.log.Warn().Err(err).Str("key", key).Int64("chat", chatID).Int("message", messageID).Msg("не удалось удалить сообщение")
	}
}

func (s *Service) archive(ctx context.Context, p domain.PendingSubmission) {
	if s.archiver == nil {
		return
	}
	s.archives.Add(1)
	go func() {
		defer s.archives.Done()
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		defer cancel()
		if err := s.archiver.Archive(actx, p.Key, p.SourceRef); err != nil {
			s.log.Warn().Err(err).Str("key", p.Key).Msg("не удалось заархивировать фото")
		}
	}()
}

// Wait дожидается фоновой архивации.
func (s *Service) Wait() {
	s.archives.Wait()
}

// Caption формирует подпись к фото для администратора.
func Caption(author string, duplicate bool) string {
	if author == "" {
		author = "неизвестного автора"
	}
	caption := "От: " + author
	if duplicate {
		caption += "\n⚠️ Похожее фото уже встречалось"
	}
	return caption
}

// DecisionControls — кнопки одобрения и удаления для ключа.
func DecisionControls(key string) *domain.Controls {
	return &domain.Controls{Rows: [][]domain.Button{
		{{Text: "✅ Одобрить", Data: ApprovePrefix + key}},
		{{Text: "❌ Удалить", Data: RejectPrefix + key}},
	}}
}
