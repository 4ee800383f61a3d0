package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hamed0406/uptimewatch/internal/domain"
	"github.com/hamed0406/uptimewatch/internal/repo"
)

// Fixed-width UTC layout so TEXT ordering matches time ordering.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

const monitorColumns = `id, owner_id, name, url, frequency_seconds, is_active, status, last_check, next_check, created_at, updated_at`

// Store implements repo.Store on an embedded SQLite file.
type Store struct {
	db *sql.DB
}

// New opens the database file and runs migrations.
func New(ctx context.Context, dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// one writer keeps SQLITE_BUSY out of the scheduler's write path
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS monitors (
	id                TEXT PRIMARY KEY,
	owner_id          TEXT NOT NULL DEFAULT '',
	name              TEXT NOT NULL DEFAULT '',
	url               TEXT NOT NULL,
	frequency_seconds INTEGER NOT NULL,
	is_active         INTEGER NOT NULL DEFAULT 1,
	status            TEXT NOT NULL DEFAULT 'PENDING',
	last_check        TEXT,
	next_check        TEXT NOT NULL,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitors_owner ON monitors (owner_id);

CREATE TABLE IF NOT EXISTS check_results (
	id          TEXT PRIMARY KEY,
	monitor_id  TEXT NOT NULL,
	checked_at  TEXT NOT NULL,
	status_code INTEGER,
	duration_ms INTEGER NOT NULL,
	success     INTEGER,
	error       TEXT,
	FOREIGN KEY(monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_check_results_monitor_checked_at ON check_results (monitor_id, checked_at);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTS(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// ---- MonitorStore ----

func (s *Store) UpsertMonitor(ctx context.Context, m *domain.Monitor) error {
	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = domain.StatusPending
	}
	if m.NextCheck.IsZero() {
		m.NextCheck = now
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	var last *string
	if m.LastCheck != nil {
		v := formatTS(*m.LastCheck)
		last = &v
	}
	query := `
INSERT INTO monitors (id, owner_id, name, url, frequency_seconds, is_active, status, last_check, next_check, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	owner_id = excluded.owner_id,
	name = excluded.name,
	url = excluded.url,
	frequency_seconds = excluded.frequency_seconds,
	is_active = excluded.is_active,
	updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, m.ID, m.OwnerID, m.Name, m.URL, m.FrequencySeconds, m.IsActive,
		string(m.Status), last, formatTS(m.NextCheck), formatTS(m.CreatedAt), formatTS(m.UpdatedAt)); err != nil {
		return repo.Wrap("upsert monitor", err)
	}
	// on update the stored created_at, status and schedule win
	stored, err := scanMonitor(s.db.QueryRowContext(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = ?`, m.ID))
	if err != nil {
		return repo.Wrap("upsert monitor", err)
	}
	m.CreatedAt = stored.CreatedAt
	m.Status = stored.Status
	m.LastCheck = stored.LastCheck
	m.NextCheck = stored.NextCheck
	return nil
}

func (s *Store) GetMonitor(ctx context.Context, id string) (*domain.Monitor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = ?`, id)
	m, err := scanMonitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.Wrap("get monitor", repo.ErrNotFound)
	}
	if err != nil {
		return nil, repo.Wrap("get monitor", err)
	}
	return m, nil
}

func (s *Store) ListActiveMonitors(ctx context.Context) ([]domain.Monitor, error) {
	return s.listMonitors(ctx, "list active monitors",
		`SELECT `+monitorColumns+` FROM monitors WHERE is_active = 1 ORDER BY created_at, id`)
}

func (s *Store) ListMonitorsByOwner(ctx context.Context, ownerID string) ([]domain.Monitor, error) {
	return s.listMonitors(ctx, "list monitors by owner",
		`SELECT `+monitorColumns+` FROM monitors WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
}

func (s *Store) listMonitors(ctx context.Context, op, query string, args ...interface{}) ([]domain.Monitor, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, repo.Wrap(op, err)
	}
	defer rows.Close()
	var out []domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, repo.Wrap(op, fmt.Errorf("failed to scan monitor row: %w", err))
		}
		out = append(out, *m)
	}
	return out, repo.Wrap(op, rows.Err())
}

func (s *Store) UpdateMonitorState(ctx context.Context, id string, st domain.MonitorState) error {
	var last *string
	if !st.LastCheck.IsZero() {
		v := formatTS(st.LastCheck)
		last = &v
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE monitors SET status = ?, last_check = ?, next_check = ?, updated_at = ? WHERE id = ?`,
		string(st.Status), last, formatTS(st.NextCheck), formatTS(time.Now()), id)
	if err != nil {
		return repo.Wrap("update monitor state", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.Wrap("update monitor state", repo.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteMonitor(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitors WHERE id = ?`, id)
	if err != nil {
		return repo.Wrap("delete monitor", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
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
	query := `INSERT INTO check_results (id, monitor_id, checked_at, status_code, duration_ms, success, error) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, r.ID, r.MonitorID, formatTS(r.Timestamp), r.StatusCode, r.DurationMS, r.Success, r.Error)
	return repo.Wrap("append result", err)
}

func (s *Store) ListResultsForMonitor(ctx context.Context, monitorID string, since *time.Time) ([]domain.CheckResult, error) {
	query := `SELECT id, monitor_id, checked_at, status_code, duration_ms, success, error FROM check_results WHERE monitor_id = ?`
	args := []interface{}{monitorID}
	if since != nil {
		query += ` AND checked_at >= ?`
		args = append(args, formatTS(*since))
	}
	query += ` ORDER BY checked_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, repo.Wrap("list results", err)
	}
	defer rows.Close()
	var out []domain.CheckResult
	for rows.Next() {
		var (
			r         domain.CheckResult
			checkedAt string
		)
		if err := rows.Scan(&r.ID, &r.MonitorID, &checkedAt, &r.StatusCode, &r.DurationMS, &r.Success, &r.Error); err != nil {
			return nil, repo.Wrap("list results", fmt.Errorf("failed to scan check result row: %w", err))
		}
		r.Timestamp = parseTS(checkedAt)
		out = append(out, r)
	}
	return out, repo.Wrap("list results", rows.Err())
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMonitor(row scanner) (*domain.Monitor, error) {
	var (
		m                          domain.Monitor
		status                     string
		last                       sql.NullString
		next, createdAt, updatedAt string
	)
	if err := row.Scan(&m.ID, &m.OwnerID, &m.Name, &m.URL, &m.FrequencySeconds, &m.IsActive,
		&status, &last, &next, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m.Status = domain.Status(status)
	if last.Valid {
		t := parseTS(last.String)
		m.LastCheck = &t
	}
	m.NextCheck = parseTS(next)
	m.CreatedAt = parseTS(createdAt)
	m.UpdatedAt = parseTS(updatedAt)
	return &m, nil
}

var _ repo.Store = (*Store)(nil)
