package scheduler

import (
	"context"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimewatch/internal/domain"
	"github.com/hamed0406/uptimewatch/internal/notify"
)

// shouldNotify decides whether a status change is worth an alert.
//
// Policy: UP -> DOWN, DOWN -> UP and PENDING -> DOWN notify. PENDING -> UP is
// silent, so adding a healthy monitor (or retargeting one) sends nothing.
// Every other pair, including no change, is silent too.
func shouldNotify(prev, next domain.Status) bool {
	if prev == next {
		return false
	}
	switch {
	case next == domain.StatusDown:
		return true
	case next == domain.StatusUp && prev == domain.StatusDown:
		return true
	}
	return false
}

// notify hands the event to the sink without blocking the worker. Failures
// are logged and never retried.
func (s *Scheduler) notify(evt notify.Event) {
	if s.sink == nil {
		return
	}
	s.notifies.Add(1)
	go func() {
		defer s.notifies.Done()
		ctx, cancel := context.WithTimeout(s.workCtx, s.cfg.NotifyTimeout)
		defer cancel()
		if err := s.sink.Notify(ctx, evt); err != nil {
			s.log.Warn("notify_error",
				zap.String("monitor_id", evt.MonitorID),
				zap.String("old_status", string(evt.Old)),
				zap.String("new_status", string(evt.New)),
				zap.Error(err),
			)
			return
		}
		s.log.Info("notify_sent",
			zap.String("monitor_id", evt.MonitorID),
			zap.String("new_status", string(evt.New)),
		)
	}()
}
