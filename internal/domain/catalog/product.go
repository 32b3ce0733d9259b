package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSoldOut  = errors.New("product sold out")
	ErrInactive = errors.New("product is not active")
)

// Product represents a catalog item with finite buyback capacity.
type Product struct {
	ID                int64     `json:"id"`
	ProductID         uuid.UUID `json:"productId"`
	Name              string    `json:"name"`
	Article           string    `json:"article"`
	Price             float64   `json:"price"`
	Description       string    `json:"description"`
	QuantityTotal     int       `json:"quantityTotal"`
	QuantityCompleted int       `json:"quantityCompleted"`
	LimitPerUser      int       `json:"limitPerUser"`
	LimitPerUserDays  int       `json:"limitPerUserDays"`
	IsActive          bool      `json:"isActive"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Available computes claimable units given the count of in-flight
// buybacks. The arithmetic must never go negative; a negative value
// means reservations and counters diverged.
func (p *Product) Available(reserved int) (int, error) {
	avail := p.QuantityTotal - p.QuantityCompleted - reserved
	if avail < 0 {
		return 0, fmt.Errorf("negative availability for product %s: total=%d completed=%d reserved=%d",
			p.ProductID, p.QuantityTotal, p.QuantityCompleted, reserved)
	}
	return avail, nil
}

// LimitDisplay renders the per-user claim limit for participant-facing text.
func (p *Product) LimitDisplay() string {
	if p.LimitPerUser == 0 {
		return "no limit"
	}
	if p.LimitPerUserDays == 0 {
		return fmt.Sprintf("%d per person", p.LimitPerUser)
	}
	if p.LimitPerUserDays == 1 {
		return fmt.Sprintf("%d per day", p.LimitPerUser)
	}
	return fmt.Sprintf("%d per %d days", p.LimitPerUser, p.LimitPerUserDays)
}
