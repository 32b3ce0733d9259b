package httpapi

import (
	"net/http"

	"github.com/google/uuid"
)

func (s *Server) getAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "productId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid productId")
		return
	}
	avail, err := s.inventorySvc.Availability(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"product_id": id, "available": avail})
}

func (s *Server) getEligibility(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "productId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid productId")
		return
	}
	participantID, err := uuid.Parse(r.URL.Query().Get("participant_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid participant_id")
		return
	}
	ok, reason, err := s.inventorySvc.ClaimEligibility(r.Context(), participantID, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	body := map[string]interface{}{"product_id": id, "eligible": ok}
	if !ok {
		body["reason"] = reason
	}
	respondJSON(w, http.StatusOK, body)
}
