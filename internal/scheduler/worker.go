package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimewatch/internal/domain"
	"github.com/hamed0406/uptimewatch/internal/notify"
	"github.com/hamed0406/uptimewatch/internal/probe"
)

func (s *Scheduler) worker() {
	defer s.workers.Done()
	for {
		select {
		case <-s.quit:
			return
		case m := <-s.jobs:
			s.runJob(m)
		}
	}
}

func (s *Scheduler) runJob(m domain.Monitor) {
	// released only after the registry holds the new NextCheck
	defer s.inflight.Release(m.ID)

	s.dispatchMu.Lock()
	stopping := s.stopping
	s.dispatchMu.Unlock()
	if stopping {
		return
	}
	s.check(s.workCtx, m)
}

// check runs one probe and records it. Probe failures become failed results;
// storage failures are logged and the monitor is retried on its next cycle.
func (s *Scheduler) check(ctx context.Context, m domain.Monitor) {
	freq := m.Frequency()
	cctx, cancel := context.WithTimeout(ctx, CheckTimeout(freq, s.cfg.TimeoutRatio, s.cfg.TimeoutCap))
	defer cancel()

	started := s.now()
	out := s.checker.Check(cctx, m.URL)
	finished := s.now()

	if ctx.Err() != nil {
		// shutdown cut the probe short; do not record a false failure
		s.log.Info("check_aborted", zap.String("monitor_id", m.ID), zap.String("url", m.URL))
		return
	}

	res := resultFrom(m.ID, started, out)
	if err := s.store.AppendResult(ctx, &res); err != nil {
		s.reg.Reschedule(m.ID, finished.Add(freq))
		s.log.Warn("check_append_error",
			zap.String("monitor_id", m.ID),
			zap.String("url", m.URL),
			zap.Error(err),
		)
		return
	}

	status := domain.StatusDown
	if out.Success {
		status = domain.StatusUp
	}
	st := domain.MonitorState{Status: status, LastCheck: finished, NextCheck: finished.Add(freq)}
	prev, ok := s.reg.ApplyCheck(m.ID, m.URL, st)
	if !ok {
		// removed, deactivated or retargeted while in flight: status stays frozen
		s.log.Info("check_result_for_unscheduled_monitor",
			zap.String("monitor_id", m.ID),
			zap.Bool("success", out.Success),
		)
		return
	}
	if err := s.store.UpdateMonitorState(ctx, m.ID, st); err != nil {
		s.log.Warn("monitor_state_write_error",
			zap.String("monitor_id", m.ID),
			zap.Error(err),
		)
	}

	s.log.Debug("check_completed",
		zap.String("monitor_id", m.ID),
		zap.String("url", m.URL),
		zap.Int("status", out.StatusCode),
		zap.Bool("up", out.Success),
		zap.Int64("latency_ms", res.DurationMS),
		zap.String("reason", out.Error),
	)

	if shouldNotify(prev, status) {
		s.notify(notify.Event{
			MonitorID:   m.ID,
			MonitorName: m.Name,
			URL:         m.URL,
			Old:         prev,
			New:         status,
			At:          finished,
			StatusCode:  res.StatusCode,
			DurationMS:  res.DurationMS,
			Error:       out.Error,
		})
	}
}

func resultFrom(monitorID string, at time.Time, out probe.Result) domain.CheckResult {
	r := domain.CheckResult{
		MonitorID:  monitorID,
		Timestamp:  at,
		DurationMS: out.Duration.Milliseconds(),
		Success:    domain.Bool(out.Success),
	}
	if out.StatusCode != 0 {
		r.StatusCode = domain.Int(out.StatusCode)
	}
	if out.Error != "" {
		r.Error = domain.String(out.Error)
	}
	return r
}
