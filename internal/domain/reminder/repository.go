package reminder

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for scheduler jobs. Rows are the
// ledger; the redis index only decides when to look.
type Repository interface {
	Create(ctx context.Context, j *Job) error
	CreateBatch(ctx context.Context, jobs []*Job) error
	GetByID(ctx context.Context, jobID uuid.UUID) (*Job, error)
	MarkSent(ctx context.Context, jobID uuid.UUID) error
	MarkSentWithCount(ctx context.Context, jobID uuid.UUID, overdueCount int) error
	Cancel(ctx context.Context, jobID uuid.UUID) error
	// CancelForBuyback soft-cancels every unfired job of the buyback
	// and returns the affected job IDs so the wake index can drop them.
	CancelForBuyback(ctx context.Context, buybackID uuid.UUID) ([]uuid.UUID, error)
	// ListPending returns unfired, uncancelled jobs ordered by fire
	// time, for re-seeding the wake index from the ledger.
	ListPending(ctx context.Context, limit int) ([]*Job, error)
}
