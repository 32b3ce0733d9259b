package buyback

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for buybacks.
type Repository interface {
	// CreateClaim inserts a new buyback inside one transaction that
	// locks the product row and re-checks availability, so two
	// concurrent claims for the last unit cannot both succeed.
	// Returns catalog.ErrSoldOut when no unit remains.
	CreateClaim(ctx context.Context, b *Buyback, productID uuid.UUID) error
	GetByID(ctx context.Context, buybackID uuid.UUID) (*Buyback, error)
	Update(ctx context.Context, b *Buyback) error
	// UpdateIf persists b only when the stored row still matches the
	// expected status and step. Reports false when the precondition
	// failed, which callers treat as a benign no-op.
	UpdateIf(ctx context.Context, b *Buyback, expectStatus Status, expectStep int) (bool, error)
	List(ctx context.Context, status *Status, limit, offset int) ([]*Buyback, error)
	// CountActiveByProduct counts non-terminal buybacks reserving
	// units of the given product.
	CountActiveByProduct(ctx context.Context, productID uuid.UUID) (int, error)
	// CountClaimedByParticipant counts a participant's buybacks
	// against a product that consume the claim limit (everything but
	// cancelled, expired and rejected), optionally bounded below by
	// since.
	CountClaimedByParticipant(ctx context.Context, participantID, productID uuid.UUID, since *time.Time) (int, error)
	ExistsActive(ctx context.Context, participantID, taskID uuid.UUID) (bool, error)
}

// ResponseRepository defines persistence for step responses.
type ResponseRepository interface {
	Create(ctx context.Context, r *StepResponse) error
	GetByID(ctx context.Context, responseID uuid.UUID) (*StepResponse, error)
	// Decide atomically moves a pending response to the target status,
	// recording the moderator comment. Reports false when the response
	// already left pending (double-decide guard).
	Decide(ctx context.Context, responseID uuid.UUID, target ResponseStatus, comment string) (bool, error)
	ListPending(ctx context.Context, limit, offset int) ([]*StepResponse, error)
	ListByBuyback(ctx context.Context, buybackID uuid.UUID) ([]*StepResponse, error)
}
