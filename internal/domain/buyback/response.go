package buyback

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ResponseStatus represents moderation status of a step response.
type ResponseStatus string

const (
	ResponsePending      ResponseStatus = "pending"
	ResponseApproved     ResponseStatus = "approved"
	ResponseRejected     ResponseStatus = "rejected"
	ResponseAutoApproved ResponseStatus = "auto_approved"
)

var (
	// ErrDecisionConflict is returned when a second decision arrives
	// for a response that already left pending.
	ErrDecisionConflict = errors.New("response already decided")
	// ErrStaleDecision is returned when a decision arrives for a
	// response whose buyback has moved past that step. Nothing is
	// mutated; the operator surface reports the decision as discarded.
	ErrStaleDecision = errors.New("decision discarded: buyback no longer on this step")
)

// StepResponse is one submitted answer to one step within one buyback.
// The step position is snapshotted so stale moderation decisions can be
// detected without another lookup.
type StepResponse struct {
	ID               int64           `json:"id"`
	ResponseID       uuid.UUID       `json:"responseId"`
	BuybackID        uuid.UUID       `json:"buybackId"`
	StepID           uuid.UUID       `json:"stepId"`
	StepPosition     int             `json:"stepPosition"`
	Data             json.RawMessage `json:"data"`
	Status           ResponseStatus  `json:"status"`
	ModeratorComment string          `json:"moderatorComment,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}
