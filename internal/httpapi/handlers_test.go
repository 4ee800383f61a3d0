package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimewatch/internal/domain"
	apimw "github.com/hamed0406/uptimewatch/internal/httpapi/middleware"
	"github.com/hamed0406/uptimewatch/internal/incident"
	"github.com/hamed0406/uptimewatch/internal/notify"
	"github.com/hamed0406/uptimewatch/internal/probe"
	"github.com/hamed0406/uptimewatch/internal/registry"
	"github.com/hamed0406/uptimewatch/internal/repo"
	"github.com/hamed0406/uptimewatch/internal/repo/memory"
	"github.com/hamed0406/uptimewatch/internal/scheduler"
)

// ---- test helpers ----

type fakeScheduler struct {
	mu       sync.Mutex
	upserted map[string]domain.Monitor
	resets   []string
	removed  []string
	flushErr error
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{upserted: make(map[string]domain.Monitor)}
}

func (f *fakeScheduler) Upsert(m domain.Monitor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted[m.ID] = m
}

func (f *fakeScheduler) Reset(m domain.Monitor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted[m.ID] = m
	f.resets = append(f.resets, m.ID)
}

func (f *fakeScheduler) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resets)
}

func (f *fakeScheduler) Remove(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	_, ok := f.upserted[id]
	delete(f.upserted, id)
	return ok
}

func (f *fakeScheduler) FlushNow(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flushErr != nil {
		return nil, f.flushErr
	}
	ids := []string{}
	for id := range f.upserted {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeScheduler) Stats() scheduler.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return scheduler.Stats{Running: true, ActiveMonitors: len(f.upserted)}
}

func (f *fakeScheduler) scheduled(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.upserted[id]
	return ok
}

func (f *fakeScheduler) failFlush(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushErr = err
}

type fixture struct {
	ts    *httptest.Server
	store *memory.Store
	sched *fakeScheduler
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	sched := newFakeScheduler()
	return &fixture{ts: serve(t, store, sched), store: store, sched: sched}
}

func serve(t *testing.T, store repo.Store, sched Scheduler) *httptest.Server {
	t.Helper()
	srv := NewServer(zap.NewNop(), store, sched, incident.NewDeriver(store, 0), nil)

	keys := apimw.Keys{
		Public: []string{"pub_test"},
		Admin:  []string{"adm_test"},
	}
	// very high rate limits to avoid flakiness in tests
	ts := httptest.NewServer(srv.Router(keys, nil, 10_000, 10_000, 10_000, 10_000))
	t.Cleanup(ts.Close)
	return ts
}

func (f *fixture) do(t *testing.T, method, path, key string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, _ := http.NewRequest(method, f.ts.URL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

// ---- tests ----

func TestPutMonitor_CreateUpdateInvalid(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodPut, "/api/monitors/m1", "adm_test", map[string]any{
		"owner_id": "u1", "name": "Home", "url": "https://EXAMPLE.com:443/", "frequency_seconds": 60,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("want 201, got %d", resp.StatusCode)
	}
	var m domain.Monitor
	decode(t, resp, &m)
	if m.URL != "https://example.com" || m.Status != domain.StatusPending || !m.IsActive {
		t.Fatalf("unexpected monitor: %+v", m)
	}
	if !f.sched.scheduled("m1") {
		t.Fatalf("scheduler was not told about the new monitor")
	}

	// update keeps the scheduler-owned state
	if err := f.store.UpdateMonitorState(context.Background(), "m1", domain.MonitorState{
		Status: domain.StatusDown, LastCheck: time.Now().UTC(), NextCheck: time.Now().UTC().Add(time.Minute),
	}); err != nil {
		t.Fatal(err)
	}
	resp = f.do(t, http.MethodPut, "/api/monitors/m1", "adm_test", map[string]any{
		"owner_id": "u1", "name": "Home page", "url": "https://example.com", "frequency_seconds": 120,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200 on update, got %d", resp.StatusCode)
	}
	decode(t, resp, &m)
	if m.Name != "Home page" || m.FrequencySeconds != 120 || m.Status != domain.StatusDown {
		t.Fatalf("update lost state: %+v", m)
	}

	bad := []map[string]any{
		{"url": "ftp://example.com", "frequency_seconds": 60},
		{"url": "https://example.com", "frequency_seconds": 59},
		{"url": "https://example.com", "frequency_seconds": 86401},
	}
	for _, b := range bad {
		if resp := f.do(t, http.MethodPut, "/api/monitors/m2", "adm_test", b); resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("payload %v: want 400, got %d", b, resp.StatusCode)
		}
	}
}

func TestAuth_PublicCannotWrite(t *testing.T) {
	f := setup(t)
	body := map[string]any{"url": "https://example.com", "frequency_seconds": 60}

	if resp := f.do(t, http.MethodPut, "/api/monitors/m1", "pub_test", body); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("public key write: want 403, got %d", resp.StatusCode)
	}
	if resp := f.do(t, http.MethodGet, "/api/monitors", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no key read: want 401, got %d", resp.StatusCode)
	}
	if resp := f.do(t, http.MethodGet, "/api/monitors", "pub_test", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("public key read: want 200, got %d", resp.StatusCode)
	}
}

func TestMonitorReads_NotFoundAndLists(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for _, m := range []domain.Monitor{
		{ID: "a", OwnerID: "u1", URL: "https://a.example", FrequencySeconds: 60, IsActive: true},
		{ID: "b", OwnerID: "u1", URL: "https://b.example", FrequencySeconds: 60, IsActive: false},
		{ID: "c", OwnerID: "u2", URL: "https://c.example", FrequencySeconds: 60, IsActive: true},
	} {
		m := m
		if err := f.store.UpsertMonitor(ctx, &m); err != nil {
			t.Fatal(err)
		}
	}

	if resp := f.do(t, http.MethodGet, "/api/monitors/nope", "pub_test", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404, got %d", resp.StatusCode)
	}

	var ms []domain.Monitor
	decode(t, f.do(t, http.MethodGet, "/api/monitors?owner=u1", "pub_test", nil), &ms)
	if len(ms) != 2 {
		t.Fatalf("owner u1 should have 2 monitors, got %d", len(ms))
	}
	decode(t, f.do(t, http.MethodGet, "/api/monitors", "pub_test", nil), &ms)
	if len(ms) != 2 {
		t.Fatalf("want 2 active monitors, got %d", len(ms))
	}

	if resp := f.do(t, http.MethodGet, "/api/monitors/a/results?since=yesterday", "pub_test", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad since: want 400, got %d", resp.StatusCode)
	}
}

func TestIncidentRoutes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := domain.Monitor{ID: "a", OwnerID: "u1", Name: "API", URL: "https://a.example", FrequencySeconds: 60, IsActive: true}
	if err := f.store.UpsertMonitor(ctx, &m); err != nil {
		t.Fatal(err)
	}
	t0 := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	for i, ok := range []bool{true, false, false, true, false} {
		r := domain.CheckResult{
			MonitorID: "a",
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Success:   domain.Bool(ok),
		}
		if !ok {
			r.Error = domain.String("connection refused")
		}
		if err := f.store.AppendResult(ctx, &r); err != nil {
			t.Fatal(err)
		}
	}

	var incs []domain.Incident
	decode(t, f.do(t, http.MethodGet, "/api/monitors/a/incidents", "pub_test", nil), &incs)
	if len(incs) != 2 || incs[0].Status != domain.IncidentResolved || incs[1].Status != domain.IncidentOngoing {
		t.Fatalf("unexpected incidents: %+v", incs)
	}

	decode(t, f.do(t, http.MethodGet, "/api/users/u1/incidents?status=resolved", "pub_test", nil), &incs)
	if len(incs) != 1 || incs[0].AffectedChecks != 2 {
		t.Fatalf("status filter: %+v", incs)
	}

	var sum incident.UserSummary
	decode(t, f.do(t, http.MethodGet, "/api/users/u1/incidents/summary", "pub_test", nil), &sum)
	if sum.Incidents != 2 || !sum.HasOngoing || sum.Monitors != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	if resp := f.do(t, http.MethodGet, "/api/users/u1/incidents?sort=loudest", "pub_test", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad sort: want 400, got %d", resp.StatusCode)
	}
	if resp := f.do(t, http.MethodGet, "/api/monitors/zzz/incidents", "pub_test", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown monitor: want 404, got %d", resp.StatusCode)
	}
}

func TestActivateDeactivateDelete(t *testing.T) {
	f := setup(t)
	f.do(t, http.MethodPut, "/api/monitors/m1", "adm_test", map[string]any{
		"url": "https://example.com", "frequency_seconds": 60,
	})

	resp := f.do(t, http.MethodPost, "/api/monitors/m1/deactivate", "adm_test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deactivate: %d", resp.StatusCode)
	}
	if f.sched.scheduled("m1") {
		t.Fatalf("deactivated monitor still scheduled")
	}
	got, _ := f.store.GetMonitor(context.Background(), "m1")
	if got.IsActive {
		t.Fatalf("store still has monitor active")
	}

	if resp := f.do(t, http.MethodPost, "/api/monitors/m1/activate", "adm_test", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("activate: %d", resp.StatusCode)
	}
	if !f.sched.scheduled("m1") {
		t.Fatalf("activated monitor not scheduled")
	}

	if resp := f.do(t, http.MethodDelete, "/api/monitors/m1", "adm_test", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	if resp := f.do(t, http.MethodDelete, "/api/monitors/m1", "adm_test", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete: want 404, got %d", resp.StatusCode)
	}
}

func TestSchedulerRoutes(t *testing.T) {
	f := setup(t)
	f.do(t, http.MethodPut, "/api/monitors/m1", "adm_test", map[string]any{
		"url": "https://example.com", "frequency_seconds": 60,
	})

	var out struct {
		Dispatched []string `json:"dispatched"`
	}
	decode(t, f.do(t, http.MethodPost, "/api/scheduler/flush", "adm_test", nil), &out)
	if len(out.Dispatched) != 1 || out.Dispatched[0] != "m1" {
		t.Fatalf("flush: %+v", out)
	}

	var st scheduler.Stats
	decode(t, f.do(t, http.MethodGet, "/api/scheduler/stats", "pub_test", nil), &st)
	if !st.Running || st.ActiveMonitors != 1 {
		t.Fatalf("stats: %+v", st)
	}

	f.sched.failFlush(scheduler.ErrNotRunning)
	if resp := f.do(t, http.MethodPost, "/api/scheduler/flush", "adm_test", nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("flush on stopped scheduler: want 503, got %d", resp.StatusCode)
	}
}

// ---- edits against a running scheduler ----

type alwaysDown struct{}

func (alwaysDown) Check(context.Context, string) probe.Result {
	return probe.Result{StatusCode: http.StatusServiceUnavailable, Error: "unexpected status 503"}
}

// stateFailStore fails the first n state writes so the stored status lags
// behind the scheduler's.
type stateFailStore struct {
	*memory.Store
	failures atomic.Int32
}

func (s *stateFailStore) UpdateMonitorState(ctx context.Context, id string, st domain.MonitorState) error {
	if s.failures.Add(-1) >= 0 {
		return errors.New("state write failed")
	}
	return s.Store.UpdateMonitorState(ctx, id, st)
}

type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func (l *eventLog) sink() notify.Sink {
	return notify.SinkFunc(func(_ context.Context, evt notify.Event) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = append(l.events, evt)
		return nil
	})
}

func (l *eventLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func heldMonitor(t *testing.T, s *scheduler.Scheduler, id string) domain.Monitor {
	t.Helper()
	for _, m := range s.Monitors() {
		if m.ID == id {
			return m
		}
	}
	t.Fatalf("monitor %s is not scheduled", id)
	return domain.Monitor{}
}

func TestPutMonitor_EditKeepsSchedulerState(t *testing.T) {
	store := &stateFailStore{Store: memory.New()}
	store.failures.Store(1)
	events := &eventLog{}
	sched := scheduler.New(scheduler.Config{TickInterval: time.Hour, MaxConcurrent: 1},
		store, registry.New(), alwaysDown{}, events.sink(), zap.NewNop())
	if err := sched.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })
	f := &fixture{ts: serve(t, store, sched)}
	ctx := context.Background()

	body := map[string]any{"name": "Shop", "url": "https://shop.example", "frequency_seconds": 300}
	if resp := f.do(t, http.MethodPut, "/api/monitors/m1", "adm_test", body); resp.StatusCode != http.StatusCreated {
		t.Fatalf("want 201, got %d", resp.StatusCode)
	}
	if ids, err := sched.FlushNow(ctx); err != nil || len(ids) != 1 {
		t.Fatalf("first flush: ids=%v err=%v", ids, err)
	}
	waitFor(t, "down notification", func() bool { return events.count() == 1 })
	waitFor(t, "check to finish", func() bool { return sched.Stats().InFlight == 0 })

	// the failed state write leaves the store at PENDING with a past next check
	stored, err := store.GetMonitor(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.StatusPending {
		t.Fatalf("stored status should lag at PENDING, got %s", stored.Status)
	}

	body["name"] = "Shop front"
	if resp := f.do(t, http.MethodPut, "/api/monitors/m1", "adm_test", body); resp.StatusCode != http.StatusOK {
		t.Fatalf("rename: want 200, got %d", resp.StatusCode)
	}
	held := heldMonitor(t, sched, "m1")
	if held.Name != "Shop front" || held.Status != domain.StatusDown || !held.NextCheck.After(time.Now()) {
		t.Fatalf("rename clobbered scheduler state: %+v", held)
	}
	if ids, err := sched.FlushNow(ctx); err != nil || len(ids) != 0 {
		t.Fatalf("rename should not make the monitor due: ids=%v err=%v", ids, err)
	}
	if n := events.count(); n != 1 {
		t.Fatalf("want exactly 1 notification, got %d", n)
	}

	// a new target starts over
	body["url"] = "https://shop2.example"
	resp := f.do(t, http.MethodPut, "/api/monitors/m1", "adm_test", body)
	var m domain.Monitor
	decode(t, resp, &m)
	if m.Status != domain.StatusPending || m.LastCheck != nil {
		t.Fatalf("url change should reset state, got %+v", m)
	}
	if held := heldMonitor(t, sched, "m1"); held.Status != domain.StatusPending || held.URL != "https://shop2.example" {
		t.Fatalf("url change not applied to scheduler: %+v", held)
	}
	if stored, err := store.GetMonitor(ctx, "m1"); err != nil || stored.Status != domain.StatusPending || stored.LastCheck != nil {
		t.Fatalf("url change not persisted: %+v err=%v", stored, err)
	}
	if ids, err := sched.FlushNow(ctx); err != nil || len(ids) != 1 {
		t.Fatalf("retargeted monitor should be due: ids=%v err=%v", ids, err)
	}
}

func TestPutMonitor_URLChangeResets(t *testing.T) {
	f := setup(t)
	body := map[string]any{"url": "https://a.example", "frequency_seconds": 60}
	f.do(t, http.MethodPut, "/api/monitors/m1", "adm_test", body)
	f.do(t, http.MethodPut, "/api/monitors/m1", "adm_test", body)
	if n := f.sched.resetCount(); n != 1 {
		t.Fatalf("unchanged url should not reset, got %d resets", n)
	}
	body["url"] = "https://b.example"
	f.do(t, http.MethodPut, "/api/monitors/m1", "adm_test", body)
	if n := f.sched.resetCount(); n != 2 {
		t.Fatalf("url change should reset, got %d resets", n)
	}
}
