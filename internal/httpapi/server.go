package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimewatch/internal/domain"
	apimw "github.com/hamed0406/uptimewatch/internal/httpapi/middleware"
	"github.com/hamed0406/uptimewatch/internal/incident"
	"github.com/hamed0406/uptimewatch/internal/repo"
	"github.com/hamed0406/uptimewatch/internal/scheduler"
)

// Scheduler is what the API needs from the check scheduler.
type Scheduler interface {
	Upsert(m domain.Monitor)
	Reset(m domain.Monitor)
	Remove(id string) bool
	FlushNow(ctx context.Context) ([]string, error)
	Stats() scheduler.Stats
}

// Incidents answers incident reads.
type Incidents interface {
	DeriveIncidents(ctx context.Context, monitorID string) ([]domain.Incident, error)
	DeriveUserIncidentSummary(ctx context.Context, ownerID string) (incident.UserSummary, error)
	ListUserIncidents(ctx context.Context, ownerID string, q incident.Query) ([]domain.Incident, error)
}

type Server struct {
	Logger    *zap.Logger
	Store     repo.Store
	Scheduler Scheduler
	Incidents Incidents
	// Live is mounted at /ws when set.
	Live http.Handler
	now  func() time.Time
}

func NewServer(l *zap.Logger, store repo.Store, sched Scheduler, inc Incidents, live http.Handler) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Store: store, Scheduler: sched, Incidents: inc, Live: live, now: time.Now}
}

func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, publicRPM, publicBurst, adminRPM, adminBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(apimw.RequestLogger(s.Logger))
	r.Use(chimw.Recoverer)
	if len(allowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			AllowCredentials: true,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		// reads: public or admin key
		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAny(keys))
			r.Use(apimw.RateLimit(publicRPM, publicBurst))

			r.Get("/monitors", s.handleListMonitors)
			r.Get("/monitors/{id}", s.handleGetMonitor)
			r.Get("/monitors/{id}/results", s.handleListResults)
			r.Get("/monitors/{id}/incidents", s.handleMonitorIncidents)
			r.Get("/users/{ownerID}/incidents", s.handleUserIncidents)
			r.Get("/users/{ownerID}/incidents/summary", s.handleUserSummary)
			r.Get("/scheduler/stats", s.handleStats)
		})

		// writes: admin key only
		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAdmin(keys))
			r.Use(apimw.RateLimit(adminRPM, adminBurst))

			r.Put("/monitors/{id}", s.handlePutMonitor)
			r.Post("/monitors/{id}/activate", s.handleSetActive(true))
			r.Post("/monitors/{id}/deactivate", s.handleSetActive(false))
			r.Delete("/monitors/{id}", s.handleDeleteMonitor)
			r.Post("/scheduler/flush", s.handleFlush)
		})
	})

	if s.Live != nil {
		r.With(apimw.RequireAny(keys)).Get("/ws", s.Live.ServeHTTP)
	}

	return r
}

type monitorPayload struct {
	OwnerID          string `json:"owner_id"`
	Name             string `json:"name"`
	URL              string `json:"url"`
	FrequencySeconds int    `json:"frequency_seconds"`
	IsActive         *bool  `json:"is_active"`
}

func (s *Server) handlePutMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p monitorPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if !isValidHTTPURL(p.URL) {
		writeError(w, http.StatusBadRequest, "url must be http(s) with a host")
		return
	}

	m, created, err := s.loadOrNew(r.Context(), id)
	if err != nil {
		s.storeError(w, "get_monitor", err)
		return
	}
	urlChanged := m.URL != normalizeHTTPURL(p.URL)
	m.OwnerID = strings.TrimSpace(p.OwnerID)
	m.Name = strings.TrimSpace(p.Name)
	m.URL = normalizeHTTPURL(p.URL)
	m.FrequencySeconds = p.FrequencySeconds
	if p.IsActive != nil {
		m.IsActive = *p.IsActive
	}
	now := s.now().UTC()
	if created {
		m.Status = domain.StatusPending
		m.LastCheck = nil
		m.NextCheck = now
	}
	if err := m.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if urlChanged && !created {
		// a new target has no history worth keeping a status for
		reset := domain.MonitorState{Status: domain.StatusPending, NextCheck: now}
		if err := s.Store.UpdateMonitorState(r.Context(), m.ID, reset); err != nil {
			s.storeError(w, "reset_monitor_state", err)
			return
		}
	}
	// UpsertMonitor only writes metadata for an existing row and loads the
	// stored status and schedule back into m.
	if err := s.Store.UpsertMonitor(r.Context(), m); err != nil {
		s.storeError(w, "upsert_monitor", err)
		return
	}
	if created || urlChanged {
		s.Scheduler.Reset(*m)
	} else {
		s.Scheduler.Upsert(*m)
	}

	s.Logger.Info("monitor_saved",
		zap.String("monitor_id", m.ID),
		zap.String("url", m.URL),
		zap.Int("frequency_s", m.FrequencySeconds),
		zap.Bool("active", m.IsActive),
		zap.Bool("created", created),
	)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, m)
}

func (s *Server) loadOrNew(ctx context.Context, id string) (*domain.Monitor, bool, error) {
	m, err := s.Store.GetMonitor(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return &domain.Monitor{ID: id, IsActive: true, Status: domain.StatusPending}, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return m, false, nil
}

func (s *Server) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := s.Store.GetMonitor(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			s.storeError(w, "get_monitor", err)
			return
		}
		if m.IsActive != active {
			m.IsActive = active
			if err := s.Store.UpsertMonitor(r.Context(), m); err != nil {
				s.storeError(w, "upsert_monitor", err)
				return
			}
			if active {
				// first check right away; a monitor already held keeps its schedule
				m.NextCheck = s.now().UTC()
			}
		}
		if active {
			s.Scheduler.Upsert(*m)
		} else {
			s.Scheduler.Remove(m.ID)
		}
		s.Logger.Info("monitor_active_changed", zap.String("monitor_id", m.ID), zap.Bool("active", active))
		writeJSON(w, http.StatusOK, m)
	}
}

func (s *Server) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.DeleteMonitor(r.Context(), id); err != nil {
		s.storeError(w, "delete_monitor", err)
		return
	}
	s.Scheduler.Remove(id)
	s.Logger.Info("monitor_deleted", zap.String("monitor_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// handleListMonitors lists one owner's monitors with ?owner=, otherwise
// every active monitor.
func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	var (
		ms  []domain.Monitor
		err error
	)
	if owner := r.URL.Query().Get("owner"); owner != "" {
		ms, err = s.Store.ListMonitorsByOwner(r.Context(), owner)
	} else {
		ms, err = s.Store.ListActiveMonitors(r.Context())
	}
	if err != nil {
		s.storeError(w, "list_monitors", err)
		return
	}
	if ms == nil {
		ms = []domain.Monitor{}
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	m, err := s.Store.GetMonitor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, "get_monitor", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var since *time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = &t
	}
	if _, err := s.Store.GetMonitor(r.Context(), id); err != nil {
		s.storeError(w, "get_monitor", err)
		return
	}
	rs, err := s.Store.ListResultsForMonitor(r.Context(), id, since)
	if err != nil {
		s.storeError(w, "list_results", err)
		return
	}
	if rs == nil {
		rs = []domain.CheckResult{}
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleMonitorIncidents(w http.ResponseWriter, r *http.Request) {
	incs, err := s.Incidents.DeriveIncidents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, "derive_incidents", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(incs))
}

func (s *Server) handleUserIncidents(w http.ResponseWriter, r *http.Request) {
	q, err := parseIncidentQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	incs, err := s.Incidents.ListUserIncidents(r.Context(), chi.URLParam(r, "ownerID"), q)
	if err != nil {
		s.storeError(w, "list_user_incidents", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(incs))
}

func (s *Server) handleUserSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Incidents.DeriveUserIncidentSummary(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		s.storeError(w, "user_incident_summary", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Scheduler.Stats())
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Scheduler.FlushNow(r.Context())
	if err != nil {
		s.Logger.Warn("flush_error", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dispatched": ids})
}

func parseIncidentQuery(r *http.Request) (incident.Query, error) {
	v := r.URL.Query()
	key, err := incident.ParseSortKey(v.Get("sort"))
	if err != nil {
		return incident.Query{}, err
	}
	q := incident.Query{Text: v.Get("q"), Sort: key}
	switch st := domain.IncidentStatus(strings.ToUpper(v.Get("status"))); st {
	case "", domain.IncidentOngoing, domain.IncidentResolved:
		q.Status = st
	default:
		return incident.Query{}, errors.New("status must be ONGOING or RESOLVED")
	}
	switch strings.ToLower(v.Get("order")) {
	case "", "desc":
		q.Desc = true
	case "asc":
	default:
		return incident.Query{}, errors.New("order must be asc or desc")
	}
	return q, nil
}

func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	s.Logger.Error("store_error", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func nonNil(incs []domain.Incident) []domain.Incident {
	if incs == nil {
		return []domain.Incident{}
	}
	return incs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
