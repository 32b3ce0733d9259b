package httpapi

import (
	"net/http"

	"github.com/buyback-hub/buyback-hub/internal/domain/payout"
)

type processPayoutRequest struct {
	Success bool   `json:"success"`
	Notes   string `json:"notes,omitempty"`
}

func (s *Server) listPayouts(w http.ResponseWriter, r *http.Request) {
	var status *payout.Status
	if st := r.URL.Query().Get("status"); st != "" {
		v := payout.Status(st)
		status = &v
	}
	limit, offset := parseLimitOffset(r, 100, 200)
	payouts, err := s.rewardSvc.List(r.Context(), status, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"payouts": payouts})
}

func (s *Server) processPayout(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "buybackId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid buybackId")
		return
	}
	var req processPayoutRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	po, err := s.rewardSvc.MarkProcessed(r.Context(), id, req.Success, req.Notes)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, po)
}
