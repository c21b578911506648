package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/scenetrack/internal/config"
	"github.com/your-org/scenetrack/internal/models"
)

var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS scene_events (
	id           UUID PRIMARY KEY,
	session_id   TEXT        NOT NULL,
	signature    TEXT        NOT NULL,
	summary      TEXT        NOT NULL,
	counts       JSONB       NOT NULL DEFAULT '{}',
	occurred_at  TIMESTAMPTZ NOT NULL,
	snapshot_key TEXT        NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS scene_events_session_time ON scene_events (session_id, occurred_at DESC);

CREATE TABLE IF NOT EXISTS track_history (
	id         UUID PRIMARY KEY,
	session_id TEXT        NOT NULL,
	track_id   INTEGER     NOT NULL,
	class      TEXT        NOT NULL,
	hits       INTEGER     NOT NULL,
	first_seen TIMESTAMPTZ NOT NULL,
	last_seen  TIMESTAMPTZ NOT NULL,
	evicted_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS track_history_session_class ON track_history (session_id, class, evicted_at DESC);
`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the tables if they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// --- Scene events ---

func (s *PostgresStore) CreateSceneEvent(ctx context.Context, ev *models.SceneEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	counts, err := json.Marshal(ev.Counts)
	if err != nil {
		return fmt.Errorf("marshal counts: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO scene_events (id, session_id, signature, summary, counts, occurred_at, snapshot_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET snapshot_key = EXCLUDED.snapshot_key
		 RETURNING created_at`,
		ev.ID, ev.SessionID, ev.Signature, ev.Summary, counts, ev.OccurredAt, ev.SnapshotKey,
	).Scan(&ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("create scene event: %w", err)
	}
	return nil
}

// SceneQuery filters scene-event history.
type SceneQuery struct {
	SessionID string
	From, To  *time.Time
	Limit     int
	Offset    int
}

// where builds the WHERE clause and its arguments.
func (q SceneQuery) where() (string, []any) {
	clause := "WHERE session_id = $1"
	args := []any{q.SessionID}
	if q.From != nil {
		args = append(args, *q.From)
		clause += fmt.Sprintf(" AND occurred_at >= $%d", len(args))
	}
	if q.To != nil {
		args = append(args, *q.To)
		clause += fmt.Sprintf(" AND occurred_at <= $%d", len(args))
	}
	return clause, args
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return min(limit, 500)
}

func (s *PostgresStore) QuerySceneEvents(ctx context.Context, q SceneQuery) ([]models.SceneEvent, int, error) {
	where, args := q.where()

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM scene_events "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count scene events: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, session_id, signature, summary, counts, occurred_at, snapshot_key, created_at
		 FROM scene_events %s ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, clampLimit(q.Limit), max(q.Offset, 0))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query scene events: %w", err)
	}
	defer rows.Close()

	var events []models.SceneEvent
	for rows.Next() {
		ev, err := scanSceneEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate scene events: %w", err)
	}
	return events, total, nil
}

// GetSceneEvent returns a single scene event, or ErrNotFound.
func (s *PostgresStore) GetSceneEvent(ctx context.Context, id uuid.UUID) (*models.SceneEvent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, session_id, signature, summary, counts, occurred_at, snapshot_key, created_at
		 FROM scene_events WHERE id = $1`, id)
	ev, err := scanSceneEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// ListSessions returns the sessions with recorded scene history, most recent first.
func (s *PostgresStore) ListSessions(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id FROM scene_events GROUP BY session_id ORDER BY max(occurred_at) DESC LIMIT $1`,
		clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanSceneEvent(row pgx.Row) (models.SceneEvent, error) {
	var (
		ev     models.SceneEvent
		counts []byte
	)
	if err := row.Scan(&ev.ID, &ev.SessionID, &ev.Signature, &ev.Summary, &counts,
		&ev.OccurredAt, &ev.SnapshotKey, &ev.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ev, err
		}
		return ev, fmt.Errorf("scan scene event: %w", err)
	}
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &ev.Counts); err != nil {
			return ev, fmt.Errorf("decode counts: %w", err)
		}
	}
	return ev, nil
}

// --- Track history ---

func (s *PostgresStore) RecordTrackHistory(ctx context.Context, rec *models.TrackRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO track_history (id, session_id, track_id, class, hits, first_seen, last_seen, evicted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.SessionID, rec.TrackID, rec.Class, rec.Hits, rec.FirstSeen, rec.LastSeen, rec.EvictedAt)
	if err != nil {
		return fmt.Errorf("record track history: %w", err)
	}
	return nil
}

// ListTrackHistory returns evicted tracks of a session, newest first. An
// empty class matches every class.
func (s *PostgresStore) ListTrackHistory(ctx context.Context, sessionID, class string, limit int) ([]models.TrackRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, track_id, class, hits, first_seen, last_seen, evicted_at
		 FROM track_history
		 WHERE session_id = $1 AND ($2 = '' OR class = $2)
		 ORDER BY evicted_at DESC LIMIT $3`,
		sessionID, class, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list track history: %w", err)
	}
	defer rows.Close()

	var records []models.TrackRecord
	for rows.Next() {
		var r models.TrackRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.TrackID, &r.Class, &r.Hits,
			&r.FirstSeen, &r.LastSeen, &r.EvictedAt); err != nil {
			return nil, fmt.Errorf("scan track record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
