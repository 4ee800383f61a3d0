package incident

import (
	"time"

	"github.com/hamed0406/uptimewatch/internal/domain"
)

type MonitorSummary struct {
	MonitorID       string     `json:"monitor_id"`
	MonitorName     string     `json:"monitor_name,omitempty"`
	MonitorURL      string     `json:"monitor_url,omitempty"`
	Status          string     `json:"status"`
	Incidents       int        `json:"incidents"`
	Ongoing         int        `json:"ongoing"`
	TotalDowntimeMS int64      `json:"total_downtime_ms"`
	LastIncidentAt  *time.Time `json:"last_incident_at"`
}

type UserSummary struct {
	OwnerID         string           `json:"owner_id"`
	Monitors        int              `json:"monitors"`
	Incidents       int              `json:"incidents"`
	Ongoing         int              `json:"ongoing"`
	HasOngoing      bool             `json:"has_ongoing"`
	TotalDowntimeMS int64            `json:"total_downtime_ms"`
	ByMonitor       []MonitorSummary `json:"by_monitor"`
}

// Summarize reduces one monitor's incidents. Ongoing incidents contribute
// the duration they were derived with.
func Summarize(m domain.Monitor, incidents []domain.Incident) MonitorSummary {
	s := MonitorSummary{
		MonitorID:   m.ID,
		MonitorName: m.Name,
		MonitorURL:  m.URL,
		Status:      string(m.Status),
		Incidents:   len(incidents),
	}
	for _, inc := range incidents {
		s.TotalDowntimeMS += inc.DurationMS
		if inc.Ongoing() {
			s.Ongoing++
		}
		if s.LastIncidentAt == nil || inc.StartTime.After(*s.LastIncidentAt) {
			start := inc.StartTime
			s.LastIncidentAt = &start
		}
	}
	return s
}

func SummarizeUser(ownerID string, monitors []MonitorSummary) UserSummary {
	u := UserSummary{OwnerID: ownerID, Monitors: len(monitors), ByMonitor: monitors}
	if u.ByMonitor == nil {
		u.ByMonitor = []MonitorSummary{}
	}
	for _, m := range monitors {
		u.Incidents += m.Incidents
		u.Ongoing += m.Ongoing
		u.TotalDowntimeMS += m.TotalDowntimeMS
	}
	u.HasOngoing = u.Ongoing > 0
	return u
}
