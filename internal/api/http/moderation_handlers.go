package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/buyback-hub/buyback-hub/internal/domain/buyback"
)

type decideRequest struct {
	Approve bool   `json:"approve"`
	Comment string `json:"comment,omitempty"`
	// PublishAt pins the publication deadline of a following review
	// step, RFC 3339.
	PublishAt string `json:"publish_at,omitempty"`
}

func (s *Server) listPendingModeration(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 50, 200)
	items, err := s.moderationSvc.ListPending(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"pending": items})
}

func (s *Server) decideModeration(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "responseId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid responseId")
		return
	}
	var req decideRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	var publishAt *time.Time
	if req.PublishAt != "" {
		t, err := time.Parse(time.RFC3339, req.PublishAt)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid publish_at")
			return
		}
		publishAt = &t
	}

	if err := s.moderationSvc.Decide(r.Context(), id, req.Approve, req.Comment, publishAt); err != nil {
		switch {
		case errors.Is(err, buyback.ErrDecisionConflict):
			respondError(w, http.StatusConflict, "ALREADY_DECIDED", err.Error())
		case errors.Is(err, buyback.ErrStaleDecision):
			respondError(w, http.StatusConflict, "STALE_DECISION", err.Error())
		case errors.Is(err, buyback.ErrStalePrecondition):
			respondError(w, http.StatusConflict, "CONFLICT", err.Error())
		default:
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"response_id": id, "approved": req.Approve})
}
