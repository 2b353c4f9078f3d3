package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tg-photo-moderator/internal/domain"
	"tg-photo-moderator/internal/infra/config"
	"tg-photo-moderator/internal/infra/db"
)

// Open создаёт хранилище состояния по STORAGE_BACKEND.
// Возвращаемая функция закрывает соединения бэкенда.
func Open(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (domain.StateRepo, func(), error) {
	noop := func() {}
	switch cfg.Storage.Backend {
	case config.StorageMemory:
		logger.Warn().Msg("состояние хранится только в памяти и не переживёт рестарт")
		return NewMemory(), noop, nil
	case config.StorageFile:
		return NewFile(cfg.Storage.Dir), noop, nil
	case config.StoragePostgres:
		if err := db.Migrate(cfg.PGDSN, 0, logger); err != nil {
			return nil, noop, err
		}
		pool, err := db.Connect(cfg.PGDSN)
		if err != nil {
			return nil, noop, fmt.Errorf("подключение к postgres: %w", err)
		}
		return NewPostgres(pool), pool.Close, nil
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("подключение к redis: %w", err)
		}
		return NewRedis(client, cfg.Storage.RedisPrefix), func() { _ = client.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("неизвестный бэкенд хранения %q", cfg.Storage.Backend)
	}
}
