package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimewatch/internal/domain"
	"github.com/hamed0406/uptimewatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS monitors (
  id                TEXT PRIMARY KEY,
  owner_id          TEXT NOT NULL DEFAULT '',
  name              TEXT NOT NULL DEFAULT '',
  url               TEXT NOT NULL,
  frequency_seconds INTEGER NOT NULL CHECK (frequency_seconds BETWEEN 60 AND 86400),
  is_active         BOOLEAN NOT NULL DEFAULT TRUE,
  status            TEXT NOT NULL DEFAULT 'PENDING',
  last_check        TIMESTAMPTZ NULL,
  next_check        TIMESTAMPTZ NOT NULL DEFAULT now(),
  created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_monitors_owner  ON monitors (owner_id);
CREATE INDEX IF NOT EXISTS idx_monitors_active ON monitors (is_active) WHERE is_active;

CREATE TABLE IF NOT EXISTS check_results (
  id          TEXT PRIMARY KEY,
  monitor_id  TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
  checked_at  TIMESTAMPTZ NOT NULL,
  status_code INTEGER NULL,
  duration_ms BIGINT NOT NULL,
  success     BOOLEAN NULL,
  error       TEXT NULL
);

CREATE INDEX IF NOT EXISTS idx_check_results_monitor_time ON check_results (monitor_id, checked_at);
`

const monitorColumns = `id, owner_id, name, url, frequency_seconds, is_active, status, last_check, next_check, created_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.log.Info("postgres_schema_ready")
	return nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ---- MonitorStore ----

func (s *Store) UpsertMonitor(ctx context.Context, m *domain.Monitor) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = domain.StatusPending
	}
	if m.NextCheck.IsZero() {
		m.NextCheck = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO monitors
		   (id, owner_id, name, url, frequency_seconds, is_active, status, last_check, next_check)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   owner_id          = EXCLUDED.owner_id,
		   name              = EXCLUDED.name,
		   url               = EXCLUDED.url,
		   frequency_seconds = EXCLUDED.frequency_seconds,
		   is_active         = EXCLUDED.is_active,
		   updated_at        = now()
		 RETURNING `+monitorColumns,
		m.ID, m.OwnerID, m.Name, m.URL, m.FrequencySeconds, m.IsActive, string(m.Status), m.LastCheck, m.NextCheck,
	)
	// on update the stored status and schedule win
	stored, err := scanMonitor(row)
	if err != nil {
		return repo.Wrap("upsert monitor", err)
	}
	*m = *stored
	return nil
}

func (s *Store) GetMonitor(ctx context.Context, id string) (*domain.Monitor, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = $1`, id)
	m, err := scanMonitor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.Wrap("get monitor", repo.ErrNotFound)
	}
	if err != nil {
		return nil, repo.Wrap("get monitor", err)
	}
	return m, nil
}

func (s *Store) ListActiveMonitors(ctx context.Context) ([]domain.Monitor, error) {
	return s.listMonitors(ctx, "list active monitors",
		`SELECT `+monitorColumns+` FROM monitors WHERE is_active ORDER BY created_at, id`)
}

func (s *Store) ListMonitorsByOwner(ctx context.Context, ownerID string) ([]domain.Monitor, error) {
	return s.listMonitors(ctx, "list monitors by owner",
		`SELECT `+monitorColumns+` FROM monitors WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
}

func (s *Store) listMonitors(ctx context.Context, op, q string, args ...any) ([]domain.Monitor, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, repo.Wrap(op, err)
	}
	defer rows.Close()

	var out []domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, repo.Wrap(op, fmt.Errorf("scan monitor: %w", err))
		}
		out = append(out, *m)
	}
	return out, repo.Wrap(op, rows.Err())
}

func (s *Store) UpdateMonitorState(ctx context.Context, id string, st domain.MonitorState) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitors
		    SET status = $2, last_check = $3, next_check = $4, updated_at = now()
		  WHERE id = $1`,
		id, string(st.Status), nullTime(st.LastCheck), st.NextCheck)
	if err != nil {
		return repo.Wrap("update monitor state", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.Wrap("update monitor state", repo.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteMonitor(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM monitors WHERE id = $1`, id)
	if err != nil {
		return repo.Wrap("delete monitor", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.Wrap("delete monitor", repo.ErrNotFound)
	}
	return nil
}

// ---- ResultStore ----

func (s *Store) AppendResult(ctx context.Context, r *domain.CheckResult) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO check_results
		   (id, monitor_id, checked_at, status_code, duration_ms, success, error)
		 VALUES
		   ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.MonitorID, r.Timestamp, r.StatusCode, r.DurationMS, r.Success, r.Error,
	)
	return repo.Wrap("append result", err)
}

func (s *Store) ListResultsForMonitor(ctx context.Context, monitorID string, since *time.Time) ([]domain.CheckResult, error) {
	q := `SELECT id, monitor_id, checked_at, status_code, duration_ms, success, error
	        FROM check_results
	       WHERE monitor_id = $1`
	args := []any{monitorID}
	if since != nil {
		q += ` AND checked_at >= $2`
		args = append(args, *since)
	}
	q += ` ORDER BY checked_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, repo.Wrap("list results", err)
	}
	defer rows.Close()

	var out []domain.CheckResult
	for rows.Next() {
		var r domain.CheckResult
		if err := rows.Scan(&r.ID, &r.MonitorID, &r.Timestamp, &r.StatusCode, &r.DurationMS, &r.Success, &r.Error); err != nil {
			return nil, repo.Wrap("list results", fmt.Errorf("scan result: %w", err))
		}
		out = append(out, r)
	}
	return out, repo.Wrap("list results", rows.Err())
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scanMonitor(row pgx.Row) (*domain.Monitor, error) {
	var (
		m      domain.Monitor
		status string
	)
	if err := row.Scan(&m.ID, &m.OwnerID, &m.Name, &m.URL, &m.FrequencySeconds, &m.IsActive,
		&status, &m.LastCheck, &m.NextCheck, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Status = domain.Status(status)
	return &m, nil
}
