// Package scheduler drives periodic checks of active monitors.
//
// A fixed tick scans the registry for due monitors and hands them to a
// bounded worker pool. Each monitor is in flight at most once; when the
// job queue is full the monitor simply stays due until a later tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimewatch/internal/domain"
	"github.com/hamed0406/uptimewatch/internal/notify"
	"github.com/hamed0406/uptimewatch/internal/probe"
	"github.com/hamed0406/uptimewatch/internal/registry"
)

var (
	ErrNotRunning     = errors.New("scheduler not running")
	ErrAlreadyStarted = errors.New("scheduler already started")
)

// FatalError halts the tick loop. Only registry corruption produces one.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "scheduler halted: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Store is the part of the persistence layer the scheduler writes to.
type Store interface {
	ListActiveMonitors(ctx context.Context) ([]domain.Monitor, error)
	AppendResult(ctx context.Context, r *domain.CheckResult) error
	UpdateMonitorState(ctx context.Context, id string, st domain.MonitorState) error
}

type Config struct {
	TickInterval  time.Duration
	MaxConcurrent int
	// QueueSize bounds jobs waiting for a worker. Defaults to 2x MaxConcurrent.
	QueueSize     int
	TimeoutRatio  float64
	TimeoutCap    time.Duration
	NotifyTimeout time.Duration
	// ResyncSchedule is a cron spec for reloading monitors from the store.
	// Empty disables it.
	ResyncSchedule string
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 2 * time.Second
	}
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = 10
	}
	if c.QueueSize < 1 {
		c.QueueSize = c.MaxConcurrent * 2
	}
	if c.TimeoutRatio <= 0 || c.TimeoutRatio >= 1 {
		c.TimeoutRatio = 0.8
	}
	if c.TimeoutCap <= 0 {
		c.TimeoutCap = 30 * time.Second
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 10 * time.Second
	}
	return c
}

type Stats struct {
	Running            bool    `json:"running"`
	ActiveMonitors     int     `json:"active_monitors"`
	InFlight           int     `json:"in_flight"`
	Queued             int     `json:"queued"`
	LastTickDurationMS float64 `json:"last_tick_duration_ms"`
	TicksSinceStart    int64   `json:"ticks_since_start"`
	Dispatched         int64   `json:"dispatched"`
	Deferred           int64   `json:"deferred"`
}

type Scheduler struct {
	cfg     Config
	store   Store
	reg     *registry.Registry
	checker probe.Checker
	sink    notify.Sink
	log     *zap.Logger
	now     func() time.Time

	inflight *inflightSet
	jobs     chan domain.Monitor
	quit     chan struct{}
	cron     *cron.Cron

	workCtx    context.Context
	cancelWork context.CancelFunc
	stopLoop   context.CancelFunc
	loopDone   chan struct{}
	workers    sync.WaitGroup
	notifies   sync.WaitGroup

	// dispatchMu serializes evaluations and guards sends on jobs.
	dispatchMu sync.Mutex
	stopping   bool

	mu      sync.Mutex
	started bool
	stopped bool
	fatal   error

	ticks      atomic.Int64
	dispatched atomic.Int64
	deferred   atomic.Int64
	lastTickNs atomic.Int64
}

func New(cfg Config, store Store, reg *registry.Registry, checker probe.Checker, sink notify.Sink, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		reg:      reg,
		checker:  checker,
		sink:     sink,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		inflight: newInflightSet(),
		jobs:     make(chan domain.Monitor, cfg.QueueSize),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Start loads active monitors from the store and starts the tick loop, the
// workers and the resync job. The loop runs until Stop is called or ctx is
// done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	monitors, err := s.store.ListActiveMonitors(ctx)
	if err != nil {
		return fmt.Errorf("load active monitors: %w", err)
	}
	s.reg.Load(monitors)

	if s.cfg.ResyncSchedule != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(s.cfg.ResyncSchedule, s.resync); err != nil {
			return fmt.Errorf("resync schedule %q: %w", s.cfg.ResyncSchedule, err)
		}
	}

	s.workCtx, s.cancelWork = context.WithCancel(context.Background())
	loopCtx, stopLoop := context.WithCancel(ctx)
	s.stopLoop = stopLoop
	s.started = true

	s.workers.Add(s.cfg.MaxConcurrent)
	for i := 0; i < s.cfg.MaxConcurrent; i++ {
		go s.worker()
	}
	if s.cron != nil {
		s.cron.Start()
	}
	go s.run(loopCtx)

	s.log.Info("scheduler_started",
		zap.Int("monitors", len(monitors)),
		zap.Duration("tick", s.cfg.TickInterval),
		zap.Int("max_concurrent", s.cfg.MaxConcurrent),
		zap.String("resync", s.cfg.ResyncSchedule),
	)
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.loopDone)
	t := time.NewTicker(s.cfg.TickInterval)
	defer t.Stop()

	// immediate pass
	if s.tick() != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler_loop_stopped")
			return
		case <-t.C:
			if s.tick() != nil {
				return
			}
		}
	}
}

// tick returns non-nil only when the loop must halt.
func (s *Scheduler) tick() error {
	start := time.Now()
	ids, err := s.evaluate()
	s.lastTickNs.Store(int64(time.Since(start)))
	s.ticks.Add(1)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		s.log.Debug("scheduler_tick", zap.Int("dispatched", len(ids)))
	}
	return nil
}

// evaluate dispatches every due monitor that is not already in flight.
func (s *Scheduler) evaluate() ([]string, error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	if s.stopping {
		return nil, ErrNotRunning
	}

	due, err := s.reg.ListDue(s.now())
	if err != nil {
		return nil, s.halt(err)
	}

	var ids []string
	for _, m := range due {
		if !s.inflight.Acquire(m.ID) {
			continue
		}
		select {
		case s.jobs <- m:
			ids = append(ids, m.ID)
			s.dispatched.Add(1)
		default:
			// queue full, stays due
			s.inflight.Release(m.ID)
			s.deferred.Add(1)
		}
	}
	if n := len(due) - len(ids); n > 0 {
		s.log.Debug("scheduler_skipped_due", zap.Int("count", n))
	}
	return ids, nil
}

func (s *Scheduler) halt(err error) error {
	fe := &FatalError{Err: err}
	s.mu.Lock()
	if s.fatal == nil {
		s.fatal = fe
	}
	stop := s.stopLoop
	s.mu.Unlock()
	s.log.Error("scheduler_fatal", zap.Error(err))
	if stop != nil {
		stop()
	}
	return fe
}

// FlushNow evaluates due monitors immediately and returns the IDs it
// dispatched. The periodic schedule is left alone.
func (s *Scheduler) FlushNow(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	running := s.started && !s.stopped
	fatal := s.fatal
	s.mu.Unlock()
	if fatal != nil {
		return nil, fatal
	}
	if !running {
		return nil, ErrNotRunning
	}
	ids, err := s.evaluate()
	if ids == nil {
		ids = []string{}
	}
	return ids, err
}

// Stop stops dispatching, drops queued checks that have not started, and
// waits for in-flight checks and notifications. When ctx expires first the
// remaining work is cancelled and ctx's error is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.dispatchMu.Lock()
	s.stopping = true
	s.dispatchMu.Unlock()

	s.stopLoop()
	<-s.loopDone
	if s.cron != nil {
		s.cron.Stop()
	}
	close(s.quit)

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		s.notifies.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.cancelWork()
		s.log.Warn("scheduler_stop_timeout", zap.Int("in_flight", s.inflight.Len()))
		return ctx.Err()
	}
	s.cancelWork()

	// release whatever never reached a worker
	for {
		select {
		case m := <-s.jobs:
			s.inflight.Release(m.ID)
		default:
			s.log.Info("scheduler_stopped")
			return nil
		}
	}
}

// Err returns the error that halted the loop, if any.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

// Done is closed once the tick loop has exited.
func (s *Scheduler) Done() <-chan struct{} { return s.loopDone }

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	running := s.started && !s.stopped && s.fatal == nil
	s.mu.Unlock()
	return Stats{
		Running:            running,
		ActiveMonitors:     s.reg.Len(),
		InFlight:           s.inflight.Len(),
		Queued:             len(s.jobs),
		LastTickDurationMS: float64(s.lastTickNs.Load()) / float64(time.Millisecond),
		TicksSinceStart:    s.ticks.Load(),
		Dispatched:         s.dispatched.Load(),
		Deferred:           s.deferred.Load(),
	}
}

// Upsert applies a created, updated or (de)activated monitor to the schedule.
// Status and schedule of a monitor already scheduled are kept.
func (s *Scheduler) Upsert(m domain.Monitor) { s.reg.Upsert(m) }

// Reset schedules m with the status and schedule it carries, discarding what
// was known about it. An in-flight check of its previous url is not applied.
func (s *Scheduler) Reset(m domain.Monitor) { s.reg.Reset(m) }

// Remove takes a monitor off the schedule. An in-flight check still records
// its result but no longer changes status.
func (s *Scheduler) Remove(id string) bool { return s.reg.Remove(id) }

// Monitors returns the monitors currently scheduled.
func (s *Scheduler) Monitors() []domain.Monitor { return s.reg.Snapshot() }

// CheckTimeout is the per-check deadline: a share of the frequency, capped.
func CheckTimeout(freq time.Duration, ratio float64, max time.Duration) time.Duration {
	t := time.Duration(float64(freq) * ratio)
	if t <= 0 || t > max {
		return max
	}
	return t
}

func (s *Scheduler) resync() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	monitors, err := s.store.ListActiveMonitors(ctx)
	if err != nil {
		s.log.Warn("registry_resync_error", zap.Error(err))
		return
	}
	added, removed := s.reg.Sync(monitors)
	s.log.Info("registry_resynced",
		zap.Int("active", len(monitors)),
		zap.Int("added", added),
		zap.Int("removed", removed),
	)
}
