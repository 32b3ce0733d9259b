package httpapi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/buyback-hub/buyback-hub/internal/application/pipeline"
	"github.com/buyback-hub/buyback-hub/internal/application/validation"
	"github.com/buyback-hub/buyback-hub/internal/domain/buyback"
)

type claimRequest struct {
	TaskID        string `json:"task_id"`
	ParticipantID string `json:"participant_id"`
}

type responseRequest struct {
	Text    string              `json:"text,omitempty"`
	FileRef string              `json:"file_ref,omitempty"`
	Payment *paymentRequestPart `json:"payment,omitempty"`
}

type paymentRequestPart struct {
	Phone          string `json:"phone"`
	BankName       string `json:"bank_name"`
	CardHolderName string `json:"card_holder_name"`
}

type finalizeRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) claimBuyback(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid task_id")
		return
	}
	participantID, err := uuid.Parse(req.ParticipantID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid participant_id")
		return
	}

	b, step, err := s.pipelineSvc.Claim(r.Context(), taskID, participantID)
	if err != nil {
		var refusal *pipeline.RefusalError
		switch {
		case errors.As(err, &refusal):
			respondError(w, http.StatusConflict, "CLAIM_REFUSED", refusal.Reason)
		case errors.Is(err, buyback.ErrActiveExists):
			respondError(w, http.StatusConflict, "ALREADY_CLAIMED", err.Error())
		case errors.Is(err, pipeline.ErrTaskInactive):
			respondError(w, http.StatusConflict, "TASK_INACTIVE", err.Error())
		default:
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"buyback_id":   b.BuybackID,
		"status":       b.Status,
		"current_step": b.CurrentStep,
		"step_title":   step.DisplayTitle(),
		"instruction":  step.Instruction,
	})
}

func (s *Server) getBuyback(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "buybackId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid buybackId")
		return
	}
	b, step, err := s.pipelineSvc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "buyback not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	resp := map[string]interface{}{"buyback": b}
	if step != nil {
		resp["step"] = step
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) submitResponse(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "buybackId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid buybackId")
		return
	}
	var req responseRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	in := validation.Input{Text: req.Text, FileRef: req.FileRef}
	if req.Payment != nil {
		in.Payment = &validation.PaymentInput{
			Phone:          req.Payment.Phone,
			BankName:       req.Payment.BankName,
			CardHolderName: req.Payment.CardHolderName,
		}
	}

	res, err := s.pipelineSvc.SubmitResponse(r.Context(), id, in)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrNotFound):
			respondError(w, http.StatusNotFound, "NOT_FOUND", "buyback not found")
		case errors.Is(err, pipeline.ErrAwaitingReview):
			respondError(w, http.StatusConflict, "ON_MODERATION", err.Error())
		case errors.Is(err, buyback.ErrInvalidTransition), errors.Is(err, buyback.ErrStalePrecondition):
			respondError(w, http.StatusConflict, "CONFLICT", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		}
		return
	}

	body := map[string]interface{}{
		"accepted": res.Outcome.Accepted,
		"status":   res.Buyback.Status,
	}
	if !res.Outcome.Accepted {
		body["message"] = res.Outcome.ErrorMessage
	}
	if res.NextStep != nil {
		body["current_step"] = res.NextStep.Position
		body["step_title"] = res.NextStep.DisplayTitle()
		body["instruction"] = res.NextStep.Instruction
	}
	if res.Completed {
		body["completed"] = true
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) cancelBuyback(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "buybackId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid buybackId")
		return
	}
	if err := s.pipelineSvc.Cancel(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrNotFound):
			respondError(w, http.StatusNotFound, "NOT_FOUND", "buyback not found")
		case errors.Is(err, buyback.ErrInvalidTransition), errors.Is(err, buyback.ErrStalePrecondition):
			respondError(w, http.StatusConflict, "CONFLICT", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"buyback_id": id, "status": buyback.StatusCancelled})
}

func (s *Server) finalizeBuyback(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "buybackId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid buybackId")
		return
	}
	var req finalizeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if err := s.pipelineSvc.Finalize(r.Context(), id, req.Approve, req.Reason); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrNotFound):
			respondError(w, http.StatusNotFound, "NOT_FOUND", "buyback not found")
		case errors.Is(err, buyback.ErrTerminal):
			respondError(w, http.StatusConflict, "ALREADY_FINALIZED", err.Error())
		case errors.Is(err, buyback.ErrInvalidTransition), errors.Is(err, buyback.ErrStalePrecondition):
			respondError(w, http.StatusConflict, "CONFLICT", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		}
		return
	}
	status := buyback.StatusApproved
	if !req.Approve {
		status = buyback.StatusRejected
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"buyback_id": id, "status": status})
}

func (s *Server) listResponses(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "buybackId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid buybackId")
		return
	}
	responses, err := s.moderationSvc.ListByBuyback(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"buyback_id": id, "responses": responses})
}
