// Package server exposes the support pipeline over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kmufti7/intelliflow-supportflow/internal/agent"
	"github.com/kmufti7/intelliflow-supportflow/internal/audit"
	"github.com/kmufti7/intelliflow-supportflow/internal/costs"
	"github.com/kmufti7/intelliflow-supportflow/internal/store"
)

const defaultTimeout = 120 * time.Second

// Server holds the dependencies for the HTTP API.
type Server struct {
	router       *chi.Mux
	orchestrator *agent.Orchestrator
	db           *store.DB
	costs        *costs.Tracker
	audit        *audit.Service
	log          zerolog.Logger
	startTime    time.Time
}

// NewServer builds a Server over the pipeline services.
func NewServer(orch *agent.Orchestrator, db *store.DB, costTracker *costs.Tracker, auditSvc *audit.Service, log zerolog.Logger) *Server {
	return &Server{
		router:       chi.NewRouter(),
		orchestrator: orch,
		db:           db,
		costs:        costTracker,
		audit:        auditSvc,
		log:          log.With().Str("component", "server").Logger(),
		startTime:    time.Now(),
	}
}

// Routes returns the configured http.Handler.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)

	// Message processing runs two model calls; give it the long timeout.
	r.Post("/v1/messages", s.handleProcessMessage)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(defaultTimeout))
		r.Get("/v1/tickets", s.handleTicketsList)
		r.Get("/v1/tickets/{id}", s.handleTicketGet)
		r.Get("/v1/tickets/{id}/audit", s.handleTicketAudit)

		r.Get("/v1/costs/summary", s.handleCostsSummary)
		r.Get("/v1/stats", s.handleStats)
		r.Get("/v1/audit/failures", s.handleAuditFailures)
	})

	return r
}
