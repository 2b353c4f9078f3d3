package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-photo-moderator/internal/domain"
	"tg-photo-moderator/internal/infra/metrics"
)

// Redis хранит каждую таблицу состояния JSON-значением под своим ключом.
// Save пишет все ключи в одной транзакции MULTI/EXEC.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ domain.StateRepo = (*Redis)(nil)

// NewRedis создаёт хранилище с префиксом ключей prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) keys() []string {
	return []string{
		r.prefix + "hashes",
		r.prefix + "pending",
		r.prefix + "scheduled",
		r.prefix + "sessions",
	}
}

// Load читает все таблицы; отсутствующий ключ означает пустую таблицу.
func (r *Redis) Load(ctx context.Context) (domain.Snapshot, error) {
	keys := r.keys()
	start := time.Now()
	values, err := r.client.MGet(ctx, keys...).Result()
	metrics.ObserveNetworkRequest("redis", "mget", r.prefix, start, err)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("чтение состояния из redis: %w", err)
	}

	var snap domain.Snapshot
	targets := []any{&snap.Hashes, &snap.Pending, &snap.Scheduled, &snap.Sessions}
	for i, raw := range values {
		if raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok || s == "" {
			continue
		}
		if err := json.Unmarshal([]byte(s), targets[i]); err != nil {
			return domain.Snapshot{}, fmt.Errorf("разбор %s: %w", keys[i], err)
		}
	}
	return snap, nil
}

// Save перезаписывает все ключи атомарно.
func (r *Redis) Save(ctx context.Context, snap domain.Snapshot) error {
	keys := r.keys()
	values := []any{nonNil(snap.Hashes), nonNil(snap.Pending), nonNil(snap.Scheduled), nonNil(snap.Sessions)}
	payloads := make([][]byte, len(values))
	for i, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("сериализация %s: %w", keys[i], err)
		}
		payloads[i] = data
	}

	start := time.Now()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			pipe.Set(ctx, key, payloads[i], 0)
		}
		return nil
	})
	metrics.ObserveNetworkRequest("redis", "save", r.prefix, start, err)
	if err != nil {
		return fmt.Errorf("запись состояния в redis: %w", err)
	}
	return nil
}
