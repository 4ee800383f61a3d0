package domain

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

type Status string

const (
	StatusUp      Status = "UP"
	StatusDown    Status = "DOWN"
	StatusPending Status = "PENDING"
)

// Frequency bounds, in seconds.
const (
	MinFrequencySeconds = 60
	MaxFrequencySeconds = 86400
)

type Monitor struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"owner_id"`
	Name             string     `json:"name"`
	URL              string     `json:"url"`
	FrequencySeconds int        `json:"frequency_seconds"`
	IsActive         bool       `json:"is_active"`
	Status           Status     `json:"status"`
	LastCheck        *time.Time `json:"last_check"`
	NextCheck        time.Time  `json:"next_check"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (m Monitor) Frequency() time.Duration {
	return time.Duration(m.FrequencySeconds) * time.Second
}

// Validate checks the fields the API layer is allowed to set.
func (m Monitor) Validate() error {
	if m.ID == "" {
		return errors.New("monitor id is required")
	}
	if m.FrequencySeconds < MinFrequencySeconds || m.FrequencySeconds > MaxFrequencySeconds {
		return fmt.Errorf("frequency_seconds must be within [%d,%d], got %d",
			MinFrequencySeconds, MaxFrequencySeconds, m.FrequencySeconds)
	}
	u, err := url.Parse(m.URL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be an absolute http(s) url: %q", m.URL)
	}
	switch m.Status {
	case "", StatusUp, StatusDown, StatusPending:
	default:
		return fmt.Errorf("unknown status %q", m.Status)
	}
	return nil
}

// MonitorState is the part of a monitor the scheduler owns and writes back.
type MonitorState struct {
	Status    Status    `json:"status"`
	LastCheck time.Time `json:"last_check"`
	NextCheck time.Time `json:"next_check"`
}

// CheckResult is one ping log row. Success is nil when the outcome is unknown.
type CheckResult struct {
	ID         string    `json:"id"`
	MonitorID  string    `json:"monitor_id"`
	Timestamp  time.Time `json:"timestamp"`
	StatusCode *int      `json:"status_code"`
	DurationMS int64     `json:"duration_ms"`
	Success    *bool     `json:"success"`
	Error      *string   `json:"error"`
}

// Succeeded reports whether the check is a known success. Unknown counts as failure.
func (r CheckResult) Succeeded() bool {
	return r.Success != nil && *r.Success
}

func (r CheckResult) ErrorText() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

func Bool(b bool) *bool { return &b }

func Int(i int) *int { return &i }

func String(s string) *string { return &s }
