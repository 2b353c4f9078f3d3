package phash

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"tg-photo-moderator/internal/domain"
	"tg-photo-moderator/internal/infra/metrics"
)

// Fingerprinter скачивает изображение и считает отпечаток.
// Результаты кэшируются по ссылке: один и тот же file_id Telegram
// не скачивается повторно, пока запись жива.
type Fingerprinter struct {
	source domain.ImageSource
	hasher domain.Hasher
	cache  *expirable.LRU[string, domain.Fingerprint]
}

var _ domain.Fingerprinter = (*Fingerprinter)(nil)

// NewFingerprinter создаёт фингерпринтер с LRU-кэшем размера size и временем жизни ttl.
func NewFingerprinter(source domain.ImageSource, hasher domain.Hasher, size int, ttl time.Duration) *Fingerprinter {
	if size <= 0 {
		size = 1
	}
	return &Fingerprinter{
		source: source,
		hasher: hasher,
		cache:  expirable.NewLRU[string, domain.Fingerprint](size, nil, ttl),
	}
}

// Fingerprint возвращает отпечаток изображения по ссылке.
func (f *Fingerprinter) Fingerprint(ctx context.Context, ref string) (domain.Fingerprint, error) {
	if fp, ok := f.cache.Get(ref); ok {
		metrics.FingerprintCacheHits.Inc()
		return fp, nil
	}
	metrics.FingerprintCacheMisses.Inc()

	data, err := f.source.Download(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("скачивание изображения: %w", err)
	}
	fp, err := f.hasher.Hash(data)
	if err != nil {
		return 0, err
	}
	f.cache.Add(ref, fp)
	return fp, nil
}
