package payout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents payout processing status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var ErrAlreadyExists = errors.New("payout already exists for buyback")

// Payout is the one-time reward record created when a buyback reaches
// final approval. Payment fields are a point-in-time snapshot of the
// participant's details; later edits never alter an existing payout.
type Payout struct {
	ID            int64      `json:"id"`
	PayoutID      uuid.UUID  `json:"payoutId"`
	BuybackID     uuid.UUID  `json:"buybackId"`
	ParticipantID uuid.UUID  `json:"participantId"`
	Amount        float64    `json:"amount"`
	PaymentPhone  string     `json:"paymentPhone"`
	PaymentBank   string     `json:"paymentBank"`
	PaymentName   string     `json:"paymentName"`
	Status        Status     `json:"status"`
	Notes         string     `json:"notes,omitempty"`
	ProcessedAt   *time.Time `json:"processedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// MarkCompleted records a successful disbursement.
func (p *Payout) MarkCompleted(now time.Time) {
	p.Status = StatusCompleted
	p.ProcessedAt = &now
}

// MarkFailed records a failed disbursement attempt.
func (p *Payout) MarkFailed(now time.Time, notes string) {
	p.Status = StatusFailed
	p.ProcessedAt = &now
	p.Notes = notes
}

// Repository defines persistence for payouts.
type Repository interface {
	// Create inserts the payout; the buyback reference is unique, so a
	// duplicate insert returns ErrAlreadyExists.
	Create(ctx context.Context, p *Payout) error
	GetByBuybackID(ctx context.Context, buybackID uuid.UUID) (*Payout, error)
	ExistsForBuyback(ctx context.Context, buybackID uuid.UUID) (bool, error)
	Update(ctx context.Context, p *Payout) error
	List(ctx context.Context, status *Status, limit, offset int) ([]*Payout, error)
}
