// Package objectstore складывает одобренные фото в S3-совместимое хранилище.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"tg-photo-moderator/internal/domain"
	"tg-photo-moderator/internal/infra/metrics"
)

// Config — параметры подключения к MinIO/S3.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Archive реализует domain.Archiver.
type Archive struct {
	client *minio.Client
	bucket string
	source domain.ImageSource
	now    func() time.Time
}

var _ domain.Archiver = (*Archive)(nil)

// New создаёт архив. Эндпоинт может быть как host:port, так и URL со схемой.
func New(cfg Config, source domain.ImageSource) (*Archive, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("разбор MINIO_ENDPOINT: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("инициализация minio: %w", err)
	}
	return &Archive{client: client, bucket: cfg.Bucket, source: source, now: time.Now}, nil
}

// EnsureBucket создаёт бакет, если его нет.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	start := time.Now()
	exists, err := a.client.BucketExists(ctx, a.bucket)
	metrics.ObserveNetworkRequest("minio", "bucket_exists", a.bucket, start, err)
	if err != nil {
		return fmt.Errorf("проверка бакета %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	start = time.Now()
	err = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{})
	metrics.ObserveNetworkRequest("minio", "make_bucket", a.bucket, start, err)
	if err != nil {
		return fmt.Errorf("создание бакета %s: %w", a.bucket, err)
	}
	return nil
}

// Archive скачивает фото и кладёт его в бакет под ключом модерации.
func (a *Archive) Archive(ctx context.Context, key, ref string) error {
	data, err := a.source.Download(ctx, ref)
	if err != nil {
		return fmt.Errorf("скачивание фото для архива: %w", err)
	}
	contentType := http.DetectContentType(data)
	name := ObjectName(key, contentType, a.now())

	start := time.Now()
	_, err = a.client.PutObject(ctx, a.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"telegram-file-id": ref},
	})
	metrics.ObserveNetworkRequest("minio", "put_object", a.bucket, start, err)
	if err != nil {
		return fmt.Errorf("загрузка %s: %w", name, err)
	}
	return nil
}

// ObjectName строит путь объекта: approved/ГГГГ/ММ/<key>.<ext>.
func ObjectName(key, contentType string, at time.Time) string {
	ext := ".bin"
	switch contentType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	case "image/gif":
		ext = ".gif"
	case "image/webp":
		ext = ".webp"
	}
	return fmt.Sprintf("approved/%s/%s%s", at.UTC().Format("2006/01"), key, ext)
}
