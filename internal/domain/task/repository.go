package task

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for tasks.
type Repository interface {
	Create(ctx context.Context, t *Task) error
	Update(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, taskID uuid.UUID) (*Task, error)
	ListActive(ctx context.Context, limit, offset int) ([]*Task, error)
}

// StepRepository defines persistence for task steps.
type StepRepository interface {
	Create(ctx context.Context, s *Step) error
	GetByID(ctx context.Context, stepID uuid.UUID) (*Step, error)
	GetByPosition(ctx context.Context, taskID uuid.UUID, position int) (*Step, error)
	// NextAfter returns the step with the lowest position strictly
	// greater than the given one, or nil when none remains.
	NextAfter(ctx context.Context, taskID uuid.UUID, position int) (*Step, error)
	First(ctx context.Context, taskID uuid.UUID) (*Step, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*Step, error)
	CountByTask(ctx context.Context, taskID uuid.UUID) (int, error)
}
