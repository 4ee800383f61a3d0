package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/uptimewatch/internal/domain"
)

// Source is the slice of the store the deriver reads from.
type Source interface {
	GetMonitor(ctx context.Context, id string) (*domain.Monitor, error)
	ListMonitorsByOwner(ctx context.Context, ownerID string) ([]domain.Monitor, error)
	ListResultsForMonitor(ctx context.Context, monitorID string, since *time.Time) ([]domain.CheckResult, error)
}

// Deriver answers incident queries on the read path.
type Deriver struct {
	Source Source
	// Window bounds how far back the check log is read. Zero reads it all.
	// A failing run cut by the window starts at the first result inside it.
	Window time.Duration
	Now    func() time.Time
}

func NewDeriver(src Source, window time.Duration) *Deriver {
	return &Deriver{Source: src, Window: window, Now: time.Now}
}

func (d *Deriver) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now().UTC()
}

func (d *Deriver) since(now time.Time) *time.Time {
	if d.Window <= 0 {
		return nil
	}
	s := now.Add(-d.Window)
	return &s
}

// DeriveIncidents returns a monitor's incidents in chronological order.
func (d *Deriver) DeriveIncidents(ctx context.Context, monitorID string) ([]domain.Incident, error) {
	m, err := d.Source.GetMonitor(ctx, monitorID)
	if err != nil {
		return nil, err
	}
	return d.forMonitor(ctx, *m, d.now())
}

func (d *Deriver) forMonitor(ctx context.Context, m domain.Monitor, now time.Time) ([]domain.Incident, error) {
	rows, err := d.Source.ListResultsForMonitor(ctx, m.ID, d.since(now))
	if err != nil {
		return nil, fmt.Errorf("list results for %s: %w", m.ID, err)
	}
	incs := Derive(m.ID, rows, now)
	Annotate(incs, m)
	if incs == nil {
		incs = []domain.Incident{}
	}
	return incs, nil
}

// DeriveUserIncidentSummary reduces the incidents of every monitor the owner has.
func (d *Deriver) DeriveUserIncidentSummary(ctx context.Context, ownerID string) (UserSummary, error) {
	monitors, err := d.Source.ListMonitorsByOwner(ctx, ownerID)
	if err != nil {
		return UserSummary{}, err
	}
	now := d.now()
	per := make([]MonitorSummary, 0, len(monitors))
	for _, m := range monitors {
		incs, err := d.forMonitor(ctx, m, now)
		if err != nil {
			return UserSummary{}, err
		}
		per = append(per, Summarize(m, incs))
	}
	return SummarizeUser(ownerID, per), nil
}

// ListUserIncidents flattens incidents across the owner's monitors, then
// filters and sorts them.
func (d *Deriver) ListUserIncidents(ctx context.Context, ownerID string, q Query) ([]domain.Incident, error) {
	monitors, err := d.Source.ListMonitorsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	now := d.now()
	var all []domain.Incident
	for _, m := range monitors {
		incs, err := d.forMonitor(ctx, m, now)
		if err != nil {
			return nil, err
		}
		all = append(all, incs...)
	}
	out := Filter(all, q)
	key := q.Sort
	if key == "" {
		key = SortRecent
	}
	Sort(out, key, q.Desc)
	return out, nil
}
