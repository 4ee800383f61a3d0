package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hamed0406/uptimewatch/internal/domain"
)

// ErrNotFound is returned when a monitor does not exist.
var ErrNotFound = errors.New("not found")

// StorageError tags a failed store operation so callers can log which step broke.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// Wrap returns nil for a nil err so adapters can `return repo.Wrap("op", err)`.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Ports (interfaces); swap in any DB adapter.
type ResultStore interface {
	AppendResult(ctx context.Context, r *domain.CheckResult) error
	// ListResultsForMonitor returns results ordered by timestamp ascending.
	// A nil since returns the full history.
	ListResultsForMonitor(ctx context.Context, monitorID string, since *time.Time) ([]domain.CheckResult, error)
}

type MonitorStore interface {
	ListActiveMonitors(ctx context.Context) ([]domain.Monitor, error)
	// UpdateMonitorState is the only writer of status, last and next check.
	// A zero LastCheck clears it.
	UpdateMonitorState(ctx context.Context, id string, st domain.MonitorState) error
	// UpsertMonitor inserts m as given. For an existing monitor it writes the
	// descriptive fields only and loads the stored state back into m.
	UpsertMonitor(ctx context.Context, m *domain.Monitor) error
	GetMonitor(ctx context.Context, id string) (*domain.Monitor, error)
	ListMonitorsByOwner(ctx context.Context, ownerID string) ([]domain.Monitor, error)
	DeleteMonitor(ctx context.Context, id string) error
}

type Store interface {
	MonitorStore
	ResultStore
}
