package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Connected:     s.bridge.IsConnected(),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Bridge:        s.bridge.Status(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	if s.history != nil {
		counts, err := s.history.CountByOutcome(r.Context())
		if err != nil {
			s.logger.Error("failed to count request log", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to read request log")
			return
		}
		resp.Requests = RequestCounts{
			Total:    counts.Total,
			OK:       counts.OK,
			Errors:   counts.Errors,
			Timeouts: counts.Timeouts,
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "limit must be 1..1000")
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read request log", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read request log")
		return
	}

	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			ID:         e.ID,
			Kind:       e.Kind,
			Tool:       e.Tool,
			Outcome:    e.Outcome,
			Error:      e.Error,
			DurationMS: e.Duration.Milliseconds(),
			CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
