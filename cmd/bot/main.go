package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"tg-photo-moderator/internal/adapters/bot"
	"tg-photo-moderator/internal/adapters/phash"
	"tg-photo-moderator/internal/adapters/repo"
	"tg-photo-moderator/internal/adapters/telegram"
	"tg-photo-moderator/internal/domain"
	"tg-photo-moderator/internal/infra/config"
	httpinfra "tg-photo-moderator/internal/infra/http"
	"tg-photo-moderator/internal/infra/log"
	"tg-photo-moderator/internal/infra/metrics"
	"tg-photo-moderator/internal/infra/objectstore"
	"tg-photo-moderator/internal/state"
	"tg-photo-moderator/internal/usecase/dispatch"
	"tg-photo-moderator/internal/usecase/moderation"
	"tg-photo-moderator/internal/usecase/planning"
)

const webhookPath = "/bot/webhook"

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("некорректная конфигурация")
	}
	loc, _ := cfg.Location()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stateRepo, closeRepo, err := repo.Open(ctx, cfg, log.Component(logger, "repo"))
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("не удалось открыть хранилище состояния")
	}
	defer closeRepo()

	store := state.NewStore(stateRepo, cfg.Moderation.DuplicateThreshold, log.Component(logger, "state"))
	if err := store.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("не удалось загрузить состояние")
	}

	botAPI, err := telegram.NewBotAPI(cfg.Telegram.Token, cfg.Telegram.Timeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	logger.Info().Str("bot", botAPI.Self.UserName).Msg("бот авторизован")

	client := telegram.NewClient(botAPI, cfg.Telegram.Timeout)
	fingerprints := phash.NewFingerprinter(client, phash.NewHasher(), cfg.Fingerprint.CacheSize, cfg.Fingerprint.CacheTTL)

	var archiver domain.Archiver
	if cfg.ArchiveEnabled() {
		archive, err := objectstore.New(objectstore.Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		}, client)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к архиву")
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			logger.Fatal().Err(err).Msg("архив недоступен")
		}
		archiver = archive
	}

	moderationUC := moderation.NewService(store, fingerprints, client, archiver, moderation.Config{
		AdminID:      cfg.Telegram.AdminID,
		ChannelID:    cfg.Telegram.ChannelID,
		DeleteOrigin: cfg.Moderation.DeleteOrigin,
	}, log.Component(logger, "moderation"))
	planningUC := planning.NewService(store, fingerprints, loc, log.Component(logger, "planning"))
	dispatcher := dispatch.NewService(store, client, cfg.Telegram.ChannelID, cfg.Scheduler.PollInterval, log.Component(logger, "dispatch"))
	h := bot.NewHandler(client, moderationUC, planningUC, bot.Config{
		AdminID:       cfg.Telegram.AdminID,
		Planners:      cfg.Planners(),
		WebhookSecret: cfg.Telegram.WebhookSecret,
	}, log.Component(logger, "bot"))

	srv := httpinfra.NewServer(logger)
	webhook := cfg.Telegram.WebhookURL != ""
	if webhook {
		srv.Router.Post(webhookPath, h.WebhookHandler())
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := srv.Run(ctx, fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("HTTP сервер остановлен с ошибкой")
			stop()
		}
	}()

	if webhook {
		if err := telegram.SetWebhook(botAPI, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			logger.Fatal().Err(err).Msg("не удалось установить вебхук")
		}
		logger.Info().Str("url", cfg.Telegram.WebhookURL).Msg("бот принимает апдейты через вебхук")
		<-ctx.Done()
	} else {
		poll(ctx, botAPI, h, cfg.Telegram.Timeout, logger)
	}

	logger.Info().Msg("остановка бота")
	wg.Wait()
	moderationUC.Wait()
}

// poll читает апдейты long polling в одной горутине, поэтому события обрабатываются строго по порядку.
func poll(ctx context.Context, botAPI *tgbotapi.BotAPI, h *bot.Handler, timeout time.Duration, logger zerolog.Logger) {
	if _, err := botAPI.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		logger.Warn().Err(err).Msg("не удалось сбросить вебхук и старые апдейты")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = max(1, int((timeout - 5*time.Second).Seconds()))
	updates := botAPI.GetUpdatesChan(u)
	logger.Info().Msg("бот запущен в режиме long polling")
	for {
		select {
		case <-ctx.Done():
			botAPI.StopReceivingUpdates()
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			h.HandleUpdate(ctx, upd)
		}
	}
}
