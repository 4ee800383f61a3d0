package domain

import "time"

type IncidentStatus string

const (
	IncidentOngoing  IncidentStatus = "ONGOING"
	IncidentResolved IncidentStatus = "RESOLVED"
)

// Incident is a contiguous run of failing checks. It is never stored; it is
// recomputed from the check log on every read.
type Incident struct {
	ID             string         `json:"id"`
	MonitorID      string         `json:"monitor_id"`
	MonitorName    string         `json:"monitor_name,omitempty"`
	MonitorURL     string         `json:"monitor_url,omitempty"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        *time.Time     `json:"end_time"`
	DurationMS     int64          `json:"duration_ms"`
	Status         IncidentStatus `json:"status"`
	AffectedChecks int            `json:"affected_checks"`
	FirstError     string         `json:"first_error,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
}

func (i Incident) Ongoing() bool { return i.Status == IncidentOngoing }
