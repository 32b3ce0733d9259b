package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for products.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, productID uuid.UUID) (*Product, error)
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Product, error)
	IncrementCompleted(ctx context.Context, productID uuid.UUID) error
}
