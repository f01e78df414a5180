package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kmufti7/intelliflow-supportflow/internal/agent"
	"github.com/kmufti7/intelliflow-supportflow/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

type processMessageRequest struct {
	CustomerID string `json:"customer_id"`
	Message    string `json:"message"`
	ChaosMode  bool   `json:"chaos_mode"`
}

func (s *Server) handleProcessMessage(w http.ResponseWriter, r *http.Request) {
	var req processMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CustomerID == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "customer_id and message are required")
		return
	}

	result, err := s.orchestrator.ProcessMessage(r.Context(), req.CustomerID, req.Message, req.ChaosMode)
	if err != nil {
		var fault *agent.FaultError
		if errors.As(err, &fault) {
			writeError(w, http.StatusServiceUnavailable, fault.Error())
			return
		}
		s.log.Error().Err(err).Str("customer_id", req.CustomerID).Msg("message processing failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTicketGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail, err := s.orchestrator.TicketDetails(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrTicketNotFound) {
			writeError(w, http.StatusNotFound, "ticket not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleTicketsList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	var tickets []*store.Ticket
	var err error
	switch {
	case r.URL.Query().Get("customer_id") != "":
		tickets, err = s.db.TicketsByCustomer(r.Context(), r.URL.Query().Get("customer_id"), limit)
	case r.URL.Query().Get("status") != "":
		tickets, err = s.db.TicketsByStatus(r.Context(), store.Status(r.URL.Query().Get("status")), limit)
	default:
		writeError(w, http.StatusBadRequest, "customer_id or status query parameter is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tickets": tickets, "count": len(tickets)})
}

func (s *Server) handleTicketAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trail, err := s.audit.Trail(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"audit_trail": trail, "count": len(trail)})
}

func (s *Server) handleCostsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.costs.Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	byAgent, err := s.costs.CostByAgent(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	byModel, err := s.costs.CostByModel(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary":        summary,
		"total_cost_usd": summary.TotalCostUSD(),
		"cost_by_agent":  byAgent,
		"cost_by_model":  byModel,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.orchestrator.SystemStatistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAuditFailures(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	failures, err := s.audit.Failures(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"failures": failures, "count": len(failures)})
}
