// Package incident rebuilds downtime intervals from a monitor's check log.
// Nothing here is stored; every call recomputes from the results it is given.
package incident

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/uptimewatch/internal/domain"
)

var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/hamed0406/uptimewatch/incident"))

// ID is stable for a given monitor and start time, so the same incident keeps
// its ID across queries.
func ID(monitorID string, start time.Time) string {
	key := monitorID + "|" + start.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(namespace, []byte(key)).String()
}

// Derive walks results in ascending timestamp order and returns one incident
// per contiguous run of failures. A result with unknown success counts as a
// failure. A run still open at the end of the log is ONGOING and its duration
// is measured up to now. The input slice is not modified.
func Derive(monitorID string, results []domain.CheckResult, now time.Time) []domain.Incident {
	if len(results) == 0 {
		return nil
	}
	rows := make([]domain.CheckResult, len(results))
	copy(rows, results)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })

	var (
		out []domain.Incident
		cur *domain.Incident
	)
	for _, r := range rows {
		if r.Succeeded() {
			if cur != nil {
				end := r.Timestamp
				cur.EndTime = &end
				cur.DurationMS = end.Sub(cur.StartTime).Milliseconds()
				cur.Status = domain.IncidentResolved
				out = append(out, *cur)
				cur = nil
			}
			continue
		}
		if cur == nil {
			cur = &domain.Incident{
				ID:         ID(monitorID, r.Timestamp),
				MonitorID:  monitorID,
				StartTime:  r.Timestamp,
				FirstError: r.ErrorText(),
			}
		}
		cur.AffectedChecks++
		cur.LastError = r.ErrorText()
	}
	if cur != nil {
		cur.Status = domain.IncidentOngoing
		cur.DurationMS = now.Sub(cur.StartTime).Milliseconds()
		if cur.DurationMS < 0 {
			cur.DurationMS = 0
		}
		out = append(out, *cur)
	}
	return out
}

// Annotate copies monitor name and URL onto each incident.
func Annotate(incidents []domain.Incident, m domain.Monitor) {
	for i := range incidents {
		incidents[i].MonitorName = m.Name
		incidents[i].MonitorURL = m.URL
	}
}
