package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pulsestack/pulse-insights/internal/models"
	"github.com/pulsestack/pulse-insights/internal/utils"
)

const (
	statusOK               = "ok"
	statusInsufficientData = "insufficient_data"
)

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleCompute runs the full pipeline and returns the complete snapshot.
func (s *Server) handleCompute(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := s.compute(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   statusOK,
		"snapshot": snapshot,
	})
}

func (s *Server) handleRetention(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := s.compute(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    statusOK,
		"retention": snapshot.Retention,
	})
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := s.compute(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":          statusOK,
		"baselines":       snapshot.Baselines,
		"anomalies":       snapshot.Anomalies,
		"recommendations": snapshot.Recommendations,
	})
}

func (s *Server) handleHealthScores(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := s.compute(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":       statusOK,
		"healthScores": snapshot.HealthScores,
	})
}

func (s *Server) handleForecasts(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := s.compute(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    statusOK,
		"forecasts": snapshot.Forecasts,
	})
}

// handlePatterns mines recurring anomalies from stored snapshot history.
func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		s.writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	mined, err := s.service.Patterns(r.Context(), tenantID, limit)
	if err != nil {
		s.logger.Error("pattern mining failed", slog.Any("error", err))
		s.writeError(w, http.StatusInternalServerError, "pattern mining failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   statusOK,
		"patterns": mined,
	})
}

// compute decodes the request, runs the service, and maps the error
// taxonomy onto HTTP. Invalid ranges are client errors; insufficient data
// is a successful response with a degraded status so dashboards can render
// an explicit empty state.
func (s *Server) compute(w http.ResponseWriter, r *http.Request) (models.Snapshot, bool) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return models.Snapshot{}, false
	}

	var req models.AnalyticsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return models.Snapshot{}, false
	}
	if req.TenantID == "" {
		s.writeError(w, http.StatusBadRequest, "tenantId is required")
		return models.Snapshot{}, false
	}

	snapshot, err := s.service.Compute(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrInvalidRange):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, utils.ErrInsufficientData):
			s.writeJSON(w, http.StatusOK, map[string]any{
				"status":  statusInsufficientData,
				"message": err.Error(),
			})
		default:
			s.logger.Error("computation failed", slog.Any("error", err))
			s.writeError(w, http.StatusInternalServerError, "computation failed")
		}
		return models.Snapshot{}, false
	}

	return snapshot, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("response encode failed", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"status":  "error",
		"message": message,
	})
}
