package notify

import (
	"context"

	"go.uber.org/zap"
)

// Log writes transitions to the service log. It never fails.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Notify(_ context.Context, evt Event) error {
	fields := []zap.Field{
		zap.String("monitor_id", evt.MonitorID),
		zap.String("url", evt.URL),
		zap.String("old_status", string(evt.Old)),
		zap.String("new_status", string(evt.New)),
		zap.Time("at", evt.At),
		zap.Int64("duration_ms", evt.DurationMS),
	}
	if evt.StatusCode != nil {
		fields = append(fields, zap.Int("http_status", *evt.StatusCode))
	}
	if evt.Error != "" {
		fields = append(fields, zap.String("reason", evt.Error))
	}
	l.Logger.Info("monitor_status_changed", fields...)
	return nil
}
