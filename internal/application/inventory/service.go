package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/buyback-hub/buyback-hub/internal/domain/buyback"
	"github.com/buyback-hub/buyback-hub/internal/domain/catalog"
)

// Service answers availability and claim-eligibility questions. It
// never reserves anything itself; the authoritative check-and-reserve
// happens inside the claim transaction.
type Service struct {
	productRepo catalog.Repository
	buybackRepo buyback.Repository
	logger      zerolog.Logger
}

func NewService(productRepo catalog.Repository, buybackRepo buyback.Repository, logger zerolog.Logger) *Service {
	return &Service{
		productRepo: productRepo,
		buybackRepo: buybackRepo,
		logger:      logger.With().Str("service", "inventory").Logger(),
	}
}

// Availability returns units still claimable for the product.
func (s *Service) Availability(ctx context.Context, productID uuid.UUID) (int, error) {
	p, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, fmt.Errorf("product not found: %s", productID)
	}
	reserved, err := s.buybackRepo.CountActiveByProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	avail, err := p.Available(reserved)
	if err != nil {
		// Counters diverged; report zero rather than oversell.
		s.logger.Error().Err(err).Str("product_id", productID.String()).Msg("availability went negative")
		return 0, nil
	}
	return avail, nil
}

// ClaimEligibility reports whether the participant may claim the
// product now. Refusals are expected outcomes carried in the reason
// string, not errors.
func (s *Service) ClaimEligibility(ctx context.Context, participantID, productID uuid.UUID) (bool, string, error) {
	p, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return false, "", err
	}
	if p == nil {
		return false, "", fmt.Errorf("product not found: %s", productID)
	}
	if !p.IsActive {
		return false, "This offer is no longer active.", nil
	}

	avail, err := s.Availability(ctx, productID)
	if err != nil {
		return false, "", err
	}
	if avail <= 0 {
		return false, "Sold out: no units left to claim.", nil
	}

	if p.LimitPerUser == 0 {
		return true, "", nil
	}

	var since *time.Time
	if p.LimitPerUserDays > 0 {
		t := time.Now().UTC().AddDate(0, 0, -p.LimitPerUserDays)
		since = &t
	}
	claimed, err := s.buybackRepo.CountClaimedByParticipant(ctx, participantID, productID, since)
	if err != nil {
		return false, "", err
	}
	if claimed >= p.LimitPerUser {
		return false, fmt.Sprintf("Claim limit reached: %s.", p.LimitDisplay()), nil
	}
	return true, "", nil
}
