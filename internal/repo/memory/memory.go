package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/uptimewatch/internal/domain"
	"github.com/hamed0406/uptimewatch/internal/repo"
)

type Store struct {
	mu       sync.RWMutex
	monitors map[string]domain.Monitor
	results  map[string][]domain.CheckResult
}

func New() *Store {
	return &Store{
		monitors: make(map[string]domain.Monitor),
		results:  make(map[string][]domain.CheckResult),
	}
}

// ---- MonitorStore ----

func (m *Store) UpsertMonitor(ctx context.Context, mon *domain.Monitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if mon.ID == "" {
		mon.ID = uuid.NewString()
	}
	if prev, ok := m.monitors[mon.ID]; ok {
		// status and schedule belong to UpdateMonitorState
		mon.CreatedAt = prev.CreatedAt
		mon.Status = prev.Status
		mon.LastCheck = prev.LastCheck
		mon.NextCheck = prev.NextCheck
	} else if mon.CreatedAt.IsZero() {
		mon.CreatedAt = now
	}
	if mon.Status == "" {
		mon.Status = domain.StatusPending
	}
	mon.UpdatedAt = now
	m.monitors[mon.ID] = *mon
	return nil
}

func (m *Store) GetMonitor(ctx context.Context, id string) (*domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mon, ok := m.monitors[id]
	if !ok {
		return nil, repo.Wrap("get monitor", repo.ErrNotFound)
	}
	return &mon, nil
}

func (m *Store) ListActiveMonitors(ctx context.Context) ([]domain.Monitor, error) {
	return m.filter(func(mon domain.Monitor) bool { return mon.IsActive }), nil
}

func (m *Store) ListMonitorsByOwner(ctx context.Context, ownerID string) ([]domain.Monitor, error) {
	return m.filter(func(mon domain.Monitor) bool { return mon.OwnerID == ownerID }), nil
}

func (m *Store) filter(keep func(domain.Monitor) bool) []domain.Monitor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		if keep(mon) {
			out = append(out, mon)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Store) UpdateMonitorState(ctx context.Context, id string, st domain.MonitorState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mon, ok := m.monitors[id]
	if !ok {
		return repo.Wrap("update monitor state", repo.ErrNotFound)
	}
	mon.Status = st.Status
	mon.LastCheck = nil
	if !st.LastCheck.IsZero() {
		last := st.LastCheck
		mon.LastCheck = &last
	}
	mon.NextCheck = st.NextCheck
	mon.UpdatedAt = time.Now().UTC()
	m.monitors[id] = mon
	return nil
}

// DeleteMonitor drops the monitor and its check history.
func (m *Store) DeleteMonitor(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.monitors[id]; !ok {
		return repo.Wrap("delete monitor", repo.ErrNotFound)
	}
	delete(m.monitors, id)
	delete(m.results, id)
	return nil
}

// ---- ResultStore ----

func (m *Store) AppendResult(ctx context.Context, r *domain.CheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	rows := m.results[r.MonitorID]
	// keep ascending order even if a late writer shows up
	i := sort.Search(len(rows), func(i int) bool { return rows[i].Timestamp.After(r.Timestamp) })
	rows = append(rows, domain.CheckResult{})
	copy(rows[i+1:], rows[i:])
	rows[i] = *r
	m.results[r.MonitorID] = rows
	return nil
}

func (m *Store) ListResultsForMonitor(ctx context.Context, monitorID string, since *time.Time) ([]domain.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.results[monitorID]
	start := 0
	if since != nil {
		start = sort.Search(len(rows), func(i int) bool { return !rows[i].Timestamp.Before(*since) })
	}
	out := make([]domain.CheckResult, len(rows)-start)
	copy(out, rows[start:])
	return out, nil
}

var _ repo.Store = (*Store)(nil)
