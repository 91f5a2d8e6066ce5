package api

import (
	"net/http"
	"strconv"

	"shopwatch/internal/config"
	"shopwatch/internal/ledger"
)

const defaultHistoryLimit = 20

// HistoryResponse is the response of GET /api/alerts/history
type HistoryResponse struct {
	Alerts []ledger.Entry `json:"alerts"`
	Total  int            `json:"total"`
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := s.Recent
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(ctx, w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}
	if limit > config.MaxHistoryLimit {
		limit = config.MaxHistoryLimit
	}

	s.writeJSON(ctx, w, http.StatusOK, &HistoryResponse{
		Alerts: s.History.Recent(limit),
		Total:  s.History.Total(),
	})
}
