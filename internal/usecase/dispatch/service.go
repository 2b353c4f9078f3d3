// Package dispatch публикует запланированные фото, когда наступает их время.
package dispatch

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tg-photo-moderator/internal/domain"
	"tg-photo-moderator/internal/infra/metrics"
	"tg-photo-moderator/internal/state"
)

// DefaultInterval — период проверки очереди публикаций.
const DefaultInterval = time.Minute

// Result — итог одного прохода.
type Result struct {
	Sent   int
	Failed int
}

type failure struct {
	entry domain.ScheduledEntry
	err   error
}

// Service — планировщик отложенных публикаций.
type Service struct {
	store     *state.Store
	messenger domain.Messenger
	channelID int64
	interval  time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewService создаёт планировщик.
func NewService(store *state.Store, messenger domain.Messenger, channelID int64, interval time.Duration, log zerolog.Logger) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		store:     store,
		messenger: messenger,
		channelID: channelID,
		interval:  interval,
		now:       time.Now,
		log:       log,
	}
}

// Run выполняет проход сразу и затем каждые interval, пока ctx не отменён.
// Проходы не перекрываются: если предыдущий ещё идёт, очередной пропускается.
func (s *Service) Run(ctx context.Context) {
	logger := cronLogger{log: s.log}
	job := cron.NewChain(cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(func() {
		s.Tick(ctx)
	}))

	c := cron.New(cron.WithLogger(logger), cron.WithLocation(time.UTC))
	c.Schedule(cron.Every(s.interval), job)

	job.Run()
	c.Start()
	s.log.Info().Dur("interval", s.interval).Msg("планировщик запущен")

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info().Msg("планировщик остановлен")
}

// Tick публикует все записи, время которых наступило. Успешные удаляются,
// неудачные остаются с увеличенным счётчиком попыток. Состояние сохраняется
// один раз за проход.
func (s *Service) Tick(ctx context.Context) Result {
	start := time.Now()
	defer func() { metrics.DispatchTickSeconds.Observe(time.Since(start).Seconds()) }()

	now := s.now()
	var due []domain.ScheduledEntry
	s.store.View(func(t *state.Tables) {
		for _, e := range t.Scheduled {
			if !e.FireAt.After(now) {
				due = append(due, e)
			}
		}
	})
	if len(due) == 0 {
		return Result{}
	}

	sent := make(map[string]bool, len(due))
	failed := make(map[string]error)
	for _, e := range due {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.messenger.SendPhoto(ctx, s.channelID, e.SourceRef, "", nil); err != nil {
			failed[e.ID] = err
			metrics.DispatchTotal.WithLabelValues("failed").Inc()
			s.log.Error().Err(err).Str("entry", e.ID).Int64("owner", e.OwnerID).Msg("не удалось опубликовать запланированное фото")
			continue
		}
		sent[e.ID] = true
		metrics.DispatchTotal.WithLabelValues("sent").Inc()
	}

	var firstFailures []failure
	_ = s.store.Update(ctx, func(t *state.Tables) (bool, error) {
		kept := t.Scheduled[:0]
		for _, e := range t.Scheduled {
			if sent[e.ID] {
				continue
			}
			if err, ok := failed[e.ID]; ok {
				e.Attempts++
				e.LastError = err.Error()
				if e.Attempts == 1 {
					firstFailures = append(firstFailures, failure{entry: e, err: err})
				}
			}
			kept = append(kept, e)
		}
		t.Scheduled = kept
		return len(sent)+len(failed) > 0, nil
	})

	for _, f := range firstFailures {
		s.notifyOwner(ctx, f)
	}
	if len(sent) > 0 || len(failed) > 0 {
		s.log.Info().Int("sent", len(sent)).Int("failed", len(failed)).Msg("проход планировщика завершён")
	}
	return Result{Sent: len(sent), Failed: len(failed)}
}

func (s *Service) notifyOwner(ctx context.Context, f failure) {
	if f.entry.OwnerID == 0 {
		return
	}
	text := "Ошибка при отправке фотографии в канал: " + f.err.Error() + "\nПовторю попытку при следующей проверке."
	if _, err := s.messenger.SendText(ctx, f.entry.OwnerID, text, nil); err != nil {
		s.log.Warn().Err(err).Int64("owner", f.entry.OwnerID).Msg("не удалось сообщить владельцу об ошибке публикации")
	}
}

type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
