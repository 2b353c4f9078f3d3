package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-photo-moderator/internal/domain"
	"tg-photo-moderator/internal/infra/metrics"
)

// Postgres хранит таблицы состояния в PostgreSQL.
// Save переписывает все четыре таблицы в одной транзакции.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.StateRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// Load читает все таблицы.
func (p *Postgres) Load(ctx context.Context) (domain.Snapshot, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		snap domain.Snapshot
		err  error
	)
	if snap.Hashes, err = p.loadHashes(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("чтение photo_hashes: %w", err)
	}
	if snap.Pending, err = p.loadPending(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("чтение pending_submissions: %w", err)
	}
	if snap.Scheduled, err = p.loadScheduled(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("чтение scheduled_posts: %w", err)
	}
	if snap.Sessions, err = p.loadSessions(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("чтение planning_sessions: %w", err)
	}
	return snap, nil
}

func (p *Postgres) loadHashes(ctx context.Context) ([]domain.ContentRecord, error) {
	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT id, fingerprint FROM photo_hashes ORDER BY id`)
	metrics.ObserveNetworkRequest("postgres", "photo_hashes_load", "photo_hashes", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ContentRecord
	for rows.Next() {
		var (
			rec domain.ContentRecord
			fp  int64
		)
		if err := rows.Scan(&rec.ID, &fp); err != nil {
			return nil, err
		}
		rec.Fingerprint = domain.Fingerprint(uint64(fp))
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) loadPending(ctx context.Context) ([]domain.PendingSubmission, error) {
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT key, source_ref, origin_chat_id, origin_message_id, author, photo_message_id, controls_message_id, fingerprint, duplicate, submitted_at
FROM pending_submissions ORDER BY submitted_at, key
`)
	metrics.ObserveNetworkRequest("postgres", "pending_submissions_load", "pending_submissions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.PendingSubmission
	for rows.Next() {
		var (
			ps domain.PendingSubmission
			fp int64
		)
		if err := rows.Scan(&ps.Key, &ps.SourceRef, &ps.OriginChatID, &ps.OriginMessageID, &ps.Author, &ps.Notification.PhotoMessageID, &ps.Notification.ControlsMessageID, &fp, &ps.Duplicate, &ps.SubmittedAt); err != nil {
			return nil, err
		}
		ps.Fingerprint = domain.Fingerprint(uint64(fp))
		out = append(out, ps)
	}
	return out, rows.Err()
}

func (p *Postgres) loadScheduled(ctx context.Context) ([]domain.ScheduledEntry, error) {
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, source_ref, fire_at, owner_id, attempts, last_error
FROM scheduled_posts ORDER BY position
`)
	metrics.ObserveNetworkRequest("postgres", "scheduled_posts_load", "scheduled_posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ScheduledEntry
	for rows.Next() {
		var e domain.ScheduledEntry
		if err := rows.Scan(&e.ID, &e.SourceRef, &e.FireAt, &e.OwnerID, &e.Attempts, &e.LastError); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) loadSessions(ctx context.Context) ([]domain.PlanningSession, error) {
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT owner_id, active, photos, time_slots, updated_at
FROM planning_sessions ORDER BY owner_id
`)
	metrics.ObserveNetworkRequest("postgres", "planning_sessions_load", "planning_sessions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.PlanningSession
	for rows.Next() {
		var (
			s            domain.PlanningSession
			photos, slots []byte
		)
		if err := rows.Scan(&s.OwnerID, &s.Active, &photos, &slots, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(photos, &s.Photos); err != nil {
			return nil, fmt.Errorf("разбор фото сессии %d: %w", s.OwnerID, err)
		}
		if err := json.Unmarshal(slots, &s.Slots); err != nil {
			return nil, fmt.Errorf("разбор слотов сессии %d: %w", s.OwnerID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Save переписывает таблицы целиком в одной транзакции.
func (p *Postgres) Save(ctx context.Context, snap domain.Snapshot) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "state", start, err)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	start = time.Now()
	_, err = tx.Exec(ctx, `TRUNCATE photo_hashes, pending_submissions, scheduled_posts, planning_sessions`)
	metrics.ObserveNetworkRequest("postgres", "truncate", "state", start, err)
	if err != nil {
		return fmt.Errorf("очистка таблиц: %w", err)
	}

	hashRows := make([][]any, 0, len(snap.Hashes))
	for _, rec := range snap.Hashes {
		hashRows = append(hashRows, []any{rec.ID, int64(uint64(rec.Fingerprint))})
	}
	if err := p.copy(ctx, tx, "photo_hashes", []string{"id", "fingerprint"}, hashRows); err != nil {
		return err
	}

	pendingRows := make([][]any, 0, len(snap.Pending))
	for _, ps := range snap.Pending {
		pendingRows = append(pendingRows, []any{
			ps.Key, ps.SourceRef, ps.OriginChatID, ps.OriginMessageID, ps.Author,
			ps.Notification.PhotoMessageID, ps.Notification.ControlsMessageID,
			int64(uint64(ps.Fingerprint)), ps.Duplicate, ps.SubmittedAt,
		})
	}
	if err := p.copy(ctx, tx, "pending_submissions", []string{
		"key", "source_ref", "origin_chat_id", "origin_message_id", "author",
		"photo_message_id", "controls_message_id", "fingerprint", "duplicate", "submitted_at",
	}, pendingRows); err != nil {
		return err
	}

	scheduledRows := make([][]any, 0, len(snap.Scheduled))
	for i, e := range snap.Scheduled {
		scheduledRows = append(scheduledRows, []any{e.ID, i, e.SourceRef, e.FireAt, e.OwnerID, e.Attempts, e.LastError})
	}
	if err := p.copy(ctx, tx, "scheduled_posts", []string{"id", "position", "source_ref", "fire_at", "owner_id", "attempts", "last_error"}, scheduledRows); err != nil {
		return err
	}

	sessionRows := make([][]any, 0, len(snap.Sessions))
	for _, s := range snap.Sessions {
		photos, err := json.Marshal(nonNil(s.Photos))
		if err != nil {
			return fmt.Errorf("сериализация фото сессии %d: %w", s.OwnerID, err)
		}
		slots, err := json.Marshal(nonNil(s.Slots))
		if err != nil {
			return fmt.Errorf("сериализация слотов сессии %d: %w", s.OwnerID, err)
		}
		sessionRows = append(sessionRows, []any{s.OwnerID, s.Active, photos, slots, s.UpdatedAt})
	}
	if err := p.copy(ctx, tx, "planning_sessions", []string{"owner_id", "active", "photos", "time_slots", "updated_at"}, sessionRows); err != nil {
		return err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "state", start, err)
	return err
}

func (p *Postgres) copy(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()
	_, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	metrics.ObserveNetworkRequest("postgres", table+"_copy", table, start, err)
	if err != nil {
		return fmt.Errorf("запись %s: %w", table, err)
	}
	return nil
}
