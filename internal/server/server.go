// Package server is a thin HTTP adapter over the transport-agnostic
// operator command surface: list positions and risks, list/resolve alerts,
// show/set limits, manual sizing calc, trigger assessment, emergency
// stop/resume/status. There is no force-snapshot route.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/domain"
	riskhandlers "github.com/aristath/rpcp/internal/risk/handlers"
	"github.com/aristath/rpcp/internal/sizer"
	"github.com/aristath/rpcp/internal/store"
)

// EmergencyController is the slice of Coordinator the server needs, kept
// narrow so server never imports the coordinator package directly (avoids an
// import cycle, since the Coordinator could in principle want to expose its
// own status over this same server).
type EmergencyController interface {
	EmergencyHalted() bool
	TriggerEmergencyStop(reason string)
	Resume()
}

// Server wraps a chi router serving the operator command surface plus the
// /ws/events stream.
type Server struct {
	router *chi.Mux
	http *http.Server
	log zerolog.Logger
}

// Deps bundles every collaborator the server's routes need.
type Deps struct {
	Store *store.Store
	Clock clock.Clock
	RiskH *riskhandlers.Handlers
	Emergency EmergencyController
	Events *EventHub
	Port int
}

// New builds the full router before wrapping it in an *http.Server.
func New(deps Deps, log zerolog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
 AllowedOrigins: []string{"*"},
 AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
 AllowedHeaders: []string{"*"},
 AllowCredentials: false,
	}))

	s := &Server{log: log.With().Str("component", "server").Logger()}

	r.Get("/api/positions", s.withJSON(func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
 return deps.RiskH.ListPositionsAndRisks(r.Context())
	}))
	r.Get("/api/alerts", s.withJSON(func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
 unresolved := r.URL.Query().Get("unresolved") == "true"
 return deps.RiskH.ListAlerts(r.Context(), unresolved)
	}))
	r.Post("/api/alerts/{id}/resolve", s.withJSON(func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
 id := chi.URLParam(r, "id")
 operator := r.URL.Query().Get("operator")
 if err := deps.RiskH.ResolveAlert(r.Context(), id, operator, deps.Clock.Now()); err != nil {
 return nil, err
 }
 return map[string]string{"status": "resolved"}, nil
	}))
	r.Get("/api/limits", s.withJSON(func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
 return deps.RiskH.ShowLimits(r.Context())
	}))
	r.Put("/api/limits", s.withJSON(func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
 var limits domain.RiskLimits
 if err := json.NewDecoder(r.Body).Decode(&limits); err != nil {
 return nil, err
 }
 if err := deps.RiskH.SetLimits(r.Context(), limits, deps.Clock.Now()); err != nil {
 return nil, err
 }
 return map[string]string{"status": "saved"}, nil
	}))
	r.Post("/api/sizing/calc", s.withJSON(func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
 var req sizer.Request
 if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
 return nil, err
 }
 return deps.RiskH.ManualSizeCalc(r.Context(), req)
	}))
	r.Post("/api/assessment/trigger", s.withJSON(func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
 if err := deps.RiskH.TriggerAssessment(r.Context()); err != nil {
 return nil, err
 }
 return map[string]string{"status": "triggered"}, nil
	}))

	r.Get("/api/emergency/status", s.withJSON(func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
 return map[string]bool{"halted": deps.Emergency.EmergencyHalted()}, nil
	}))
	r.Post("/api/emergency/stop", s.withJSON(func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
 reason := r.URL.Query().Get("reason")
 if reason == "" {
 reason = "operator requested"
 }
 deps.Emergency.TriggerEmergencyStop(reason)
 return map[string]string{"status": "halted"}, nil
	}))
	r.Post("/api/emergency/resume", s.withJSON(func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
 deps.Emergency.Resume()
 return map[string]string{"status": "resumed"}, nil
	}))

	if deps.Events != nil {
 r.Get("/ws/events", deps.Events.ServeHTTP)
	}

	s.router = r
	s.http = &http.Server{
 Addr: fmt.Sprintf(":%d", deps.Port),
 Handler: r,
 ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the underlying router for tests (httptest.NewServer) and
// any adapter that wants to mount it behind its own listener.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe starts the HTTP server, blocking until it stops.
func (s *Server) ListenAndServe() error { return s.http.ListenAndServe() }

// Shutdown gracefully stops the HTTP server within a 10s budget.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

type jsonHandler func(w http.ResponseWriter, r *http.Request) (interface{}, error)

// withJSON wraps a command-surface call, encoding its result (or an error
// status) as JSON.
func (s *Server) withJSON(h jsonHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
 result, err := h(w, r)
 if err != nil {
 s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
 w.Header().Set("Content-Type", "application/json")
 w.WriteHeader(http.StatusBadRequest)
 _ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
 return
 }
 w.Header().Set("Content-Type", "application/json")
 _ = json.NewEncoder(w).Encode(result)
	}
}
