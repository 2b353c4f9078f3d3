package config

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Бэкенды хранения состояния.
const (
	StorageFile     = "file"
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// webhookSecretRe — допустимый формат secret_token в setWebhook.
var webhookSecretRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

// AppConfig описывает конфигурацию бота.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Moscow"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token         string        `envconfig:"TG_BOT_TOKEN"`
		WebhookURL    string        `envconfig:"TG_WEBHOOK_URL"`
		WebhookSecret string        `envconfig:"TG_WEBHOOK_SECRET"`
		AdminID       int64         `envconfig:"TG_ADMIN_ID"`
		ChannelID     int64         `envconfig:"TG_CHANNEL_ID"`
		PlannerIDs    []int64       `envconfig:"TG_PLANNER_IDS"`
		Timeout       time.Duration `envconfig:"TG_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Moderation struct {
		DuplicateThreshold int  `envconfig:"DUPLICATE_THRESHOLD" default:"5"`
		DeleteOrigin       bool `envconfig:"MODERATION_DELETE_ORIGIN" default:"true"`
	} `envconfig:""`

	Scheduler struct {
		PollInterval time.Duration `envconfig:"SCHEDULER_POLL_INTERVAL" default:"60s"`
	} `envconfig:""`

	Storage struct {
		Backend     string `envconfig:"STORAGE_BACKEND" default:"file"`
		Dir         string `envconfig:"STORAGE_DIR" default:"data"`
		RedisPrefix string `envconfig:"REDIS_PREFIX" default:"photo_moderator:"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Fingerprint struct {
		CacheSize int           `envconfig:"FINGERPRINT_CACHE_SIZE" default:"1024"`
		CacheTTL  time.Duration `envconfig:"FINGERPRINT_CACHE_TTL" default:"24h"`
	} `envconfig:""`

	Archive struct {
		Endpoint  string `envconfig:"MINIO_ENDPOINT"`
		AccessKey string `envconfig:"MINIO_ACCESS_KEY"`
		SecretKey string `envconfig:"MINIO_SECRET_KEY"`
		Bucket    string `envconfig:"MINIO_BUCKET" default:"approved-photos"`
		UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
	} `envconfig:""`
}

// Load загружает конфиг из .env (если есть) и окружения.
func Load() AppConfig {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Location возвращает часовой пояс расписания.
func (c AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return nil, fmt.Errorf("часовой пояс %q: %w", c.TZ, err)
	}
	return loc, nil
}

// ArchiveEnabled сообщает, настроен ли архив одобренных фото.
func (c AppConfig) ArchiveEnabled() bool {
	return c.Archive.Endpoint != ""
}

// Planners возвращает пользователей, которым доступно планирование: админ и TG_PLANNER_IDS.
func (c AppConfig) Planners() map[int64]bool {
	out := map[int64]bool{c.Telegram.AdminID: true}
	for _, id := range c.Telegram.PlannerIDs {
		out[id] = true
	}
	return out
}

// Validate проверяет параметры, без которых бот не может стартовать.
func (c AppConfig) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("TG_BOT_TOKEN не задан"))
	}
	if c.Telegram.AdminID == 0 {
		errs = append(errs, errors.New("TG_ADMIN_ID не задан"))
	}
	if c.Telegram.ChannelID == 0 {
		errs = append(errs, errors.New("TG_CHANNEL_ID не задан"))
	}
	if c.Telegram.WebhookURL != "" && !webhookSecretRe.MatchString(c.Telegram.WebhookSecret) {
		errs = append(errs, errors.New("TG_WEBHOOK_SECRET обязателен при TG_WEBHOOK_URL: 1-256 символов A-Z, a-z, 0-9, _ и -"))
	}
	if c.Moderation.DuplicateThreshold < 0 || c.Moderation.DuplicateThreshold > 64 {
		errs = append(errs, fmt.Errorf("DUPLICATE_THRESHOLD вне диапазона 0..64: %d", c.Moderation.DuplicateThreshold))
	}
	if c.Scheduler.PollInterval <= 0 {
		errs = append(errs, errors.New("SCHEDULER_POLL_INTERVAL должен быть положительным"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, c.ValidateStorage())
	if c.ArchiveEnabled() && (c.Archive.AccessKey == "" || c.Archive.SecretKey == "") {
		errs = append(errs, errors.New("MINIO_ACCESS_KEY и MINIO_SECRET_KEY обязательны при MINIO_ENDPOINT"))
	}
	return errors.Join(errs...)
}

// ValidateStorage проверяет только параметры хранилища; используется CLI.
func (c AppConfig) ValidateStorage() error {
	switch c.Storage.Backend {
	case StorageFile:
		if c.Storage.Dir == "" {
			return errors.New("STORAGE_DIR не задан")
		}
	case StorageMemory:
	case StoragePostgres:
		if c.PGDSN == "" {
			return errors.New("PG_DSN обязателен для STORAGE_BACKEND=postgres")
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR обязателен для STORAGE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("неизвестный STORAGE_BACKEND %q", c.Storage.Backend)
	}
	return nil
}
