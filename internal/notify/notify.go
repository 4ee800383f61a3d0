// Package notify delivers monitor status transitions to the outside world.
// Delivery is best effort: callers log errors and never retry.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/uptimewatch/internal/domain"
)

// Event describes one status transition of a monitor.
type Event struct {
	MonitorID   string        `json:"monitor_id"`
	MonitorName string        `json:"monitor_name,omitempty"`
	URL         string        `json:"url"`
	Old         domain.Status `json:"old_status"`
	New         domain.Status `json:"new_status"`
	At          time.Time     `json:"at"`
	StatusCode  *int          `json:"status_code,omitempty"`
	DurationMS  int64         `json:"duration_ms"`
	Error       string        `json:"error,omitempty"`
}

// Title is a short headline for chat-style sinks.
func (e Event) Title() string {
	name := e.MonitorName
	if name == "" {
		name = e.URL
	}
	switch e.New {
	case domain.StatusDown:
		return "🔴 " + name + " is DOWN"
	case domain.StatusUp:
		return "🟢 " + name + " RECOVERED"
	}
	return name + " is " + string(e.New)
}

// Text is the body that goes under Title.
func (e Event) Text() string {
	httpTxt := "n/a"
	if e.StatusCode != nil {
		httpTxt = fmt.Sprintf("%d", *e.StatusCode)
	}
	reason := e.Error
	if reason == "" {
		reason = "-"
	}
	return fmt.Sprintf(
		"URL: %s\nStatus: %s -> %s\nHTTP: %s\nLatency: %d ms\nReason: %s\nChecked: %s",
		e.URL, e.Old, e.New, httpTxt, e.DurationMS, reason, e.At.UTC().Format(time.RFC3339),
	)
}

type Sink interface {
	Notify(ctx context.Context, evt Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, evt Event) error

func (f SinkFunc) Notify(ctx context.Context, evt Event) error { return f(ctx, evt) }

// Multi fans an event out to every sink and returns all of their errors combined.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, evt Event) error {
	var err error
	for _, s := range m {
		if s == nil {
			continue
		}
		err = multierr.Append(err, s.Notify(ctx, evt))
	}
	return err
}
