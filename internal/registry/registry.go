// Package registry holds the in-memory set of active monitors that the
// scheduler scans every tick.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/uptimewatch/internal/domain"
)

// ErrCorrupt is returned when an active monitor has no NextCheck.
var ErrCorrupt = errors.New("registry corrupt")

// Registry is safe for concurrent use. Every read returns copies, so a caller
// never sees a monitor halfway through an update.
type Registry struct {
	mu       sync.RWMutex
	monitors map[string]domain.Monitor
	now      func() time.Time
}

func New() *Registry {
	return &Registry{
		monitors: make(map[string]domain.Monitor),
		now:      time.Now,
	}
}

// ListDue returns active monitors with NextCheck <= now, oldest first.
func (r *Registry) ListDue(now time.Time) ([]domain.Monitor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var due []domain.Monitor
	for id, m := range r.monitors {
		if m.NextCheck.IsZero() {
			return nil, fmt.Errorf("%w: monitor %s has no next_check", ErrCorrupt, id)
		}
		if !m.NextCheck.After(now) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextCheck.Equal(due[j].NextCheck) {
			return due[i].NextCheck.Before(due[j].NextCheck)
		}
		return due[i].ID < due[j].ID
	})
	return due, nil
}

func (r *Registry) Get(id string) (domain.Monitor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.monitors[id]
	return m, ok
}

// Upsert inserts a monitor or updates the descriptive fields of one already
// held. Status, LastCheck and NextCheck of a held monitor only change through
// ApplyCheck, Reschedule or Reset. An inactive monitor is removed instead,
// which pauses its schedule.
func (r *Registry) Upsert(m domain.Monitor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.monitors[m.ID]; ok {
		keepRuntime(&m, cur)
	}
	r.upsertLocked(m)
}

// Reset inserts or replaces a monitor including its status and schedule.
// Used when the target changes and earlier results no longer describe it.
func (r *Registry) Reset(m domain.Monitor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertLocked(m)
}

func keepRuntime(m *domain.Monitor, cur domain.Monitor) {
	m.Status = cur.Status
	m.LastCheck = cur.LastCheck
	m.NextCheck = cur.NextCheck
}

func (r *Registry) upsertLocked(m domain.Monitor) {
	if !m.IsActive {
		delete(r.monitors, m.ID)
		return
	}
	if m.NextCheck.IsZero() {
		m.NextCheck = r.now().UTC()
	}
	if m.Status == "" {
		m.Status = domain.StatusPending
	}
	r.monitors[m.ID] = m
}

// Remove reports whether the monitor was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.monitors[id]
	delete(r.monitors, id)
	return ok
}

// Load replaces the whole set.
func (r *Registry) Load(monitors []domain.Monitor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.monitors = make(map[string]domain.Monitor, len(monitors))
	for _, m := range monitors {
		r.upsertLocked(m)
	}
}

// Sync merges a fresh listing of active monitors from the store. Descriptive
// fields come from the listing; status and schedule of monitors already held
// stay as they are in memory. Monitors missing from the listing are dropped.
// It returns how many monitors were added and removed.
func (r *Registry) Sync(active []domain.Monitor) (added, removed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{}, len(active))
	for _, m := range active {
		if !m.IsActive {
			continue
		}
		seen[m.ID] = struct{}{}
		if cur, ok := r.monitors[m.ID]; ok {
			keepRuntime(&m, cur)
		} else {
			added++
		}
		r.upsertLocked(m)
	}
	for id := range r.monitors {
		if _, ok := seen[id]; !ok {
			delete(r.monitors, id)
			removed++
		}
	}
	return added, removed
}

// ApplyCheck writes the outcome of a completed check of url and returns the
// status it replaced. ok is false when the monitor is no longer held or now
// points at another url, in which case nothing is written.
func (r *Registry) ApplyCheck(id, url string, st domain.MonitorState) (prev domain.Status, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.monitors[id]
	if !ok || m.URL != url {
		return "", false
	}
	prev = m.Status
	last := st.LastCheck
	m.Status = st.Status
	m.LastCheck = &last
	m.NextCheck = st.NextCheck
	m.UpdatedAt = st.LastCheck
	r.monitors[id] = m
	return prev, true
}

// Reschedule moves NextCheck without touching status.
func (r *Registry) Reschedule(id string, next time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.monitors[id]
	if !ok {
		return false
	}
	m.NextCheck = next
	r.monitors[id] = m
	return true
}

// Snapshot returns every held monitor ordered by ID.
func (r *Registry) Snapshot() []domain.Monitor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Monitor, 0, len(r.monitors))
	for _, m := range r.monitors {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.monitors)
}
