package reward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/buyback-hub/buyback-hub/internal/domain/buyback"
	"github.com/buyback-hub/buyback-hub/internal/domain/catalog"
	"github.com/buyback-hub/buyback-hub/internal/domain/participant"
	"github.com/buyback-hub/buyback-hub/internal/domain/payout"
	"github.com/buyback-hub/buyback-hub/internal/domain/task"
	"github.com/buyback-hub/buyback-hub/internal/telemetry"
)

// Service creates and tracks payouts for approved buybacks. Creation
// is idempotent per buyback: a repeated trigger finds the existing
// record and stops, backed by a unique constraint for the racing case.
type Service struct {
	payoutRepo      payout.Repository
	buybackRepo     buyback.Repository
	taskRepo        task.Repository
	productRepo     catalog.Repository
	participantRepo participant.Repository
	logger          zerolog.Logger
}

func NewService(
	payoutRepo payout.Repository,
	buybackRepo buyback.Repository,
	taskRepo task.Repository,
	productRepo catalog.Repository,
	participantRepo participant.Repository,
	logger zerolog.Logger,
) *Service {
	return &Service{
		payoutRepo:      payoutRepo,
		buybackRepo:     buybackRepo,
		taskRepo:        taskRepo,
		productRepo:     productRepo,
		participantRepo: participantRepo,
		logger:          logger.With().Str("service", "reward").Logger(),
	}
}

// Complete runs the one-time completion effects for an approved
// buyback: a payout record snapshotting the participant's payment
// details, plus the completion counters on product and participant.
func (s *Service) Complete(ctx context.Context, buybackID uuid.UUID) (*payout.Payout, error) {
	exists, err := s.payoutRepo.ExistsForBuyback(ctx, buybackID)
	if err != nil {
		return nil, err
	}
	if exists {
		return s.payoutRepo.GetByBuybackID(ctx, buybackID)
	}

	b, err := s.buybackRepo.GetByID(ctx, buybackID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("buyback %s not found", buybackID)
	}
	if b.Status != buyback.StatusApproved {
		return nil, fmt.Errorf("buyback %s is not approved", buybackID)
	}

	t, err := s.taskRepo.GetByID(ctx, b.TaskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("task %s not found", b.TaskID)
	}
	p, err := s.participantRepo.GetByID(ctx, b.ParticipantID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("participant %s not found", b.ParticipantID)
	}

	po := &payout.Payout{
		PayoutID:      uuid.New(),
		BuybackID:     buybackID,
		ParticipantID: b.ParticipantID,
		Amount:        t.Payout,
		PaymentPhone:  p.Phone,
		PaymentBank:   p.BankName,
		PaymentName:   p.CardHolderName,
		Status:        payout.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.payoutRepo.Create(ctx, po); err != nil {
		// Lost the race to another trigger; the winner's record stands.
		if errors.Is(err, payout.ErrAlreadyExists) {
			return s.payoutRepo.GetByBuybackID(ctx, buybackID)
		}
		return nil, err
	}
	telemetry.PayoutsCreated.Inc()

	if err := s.productRepo.IncrementCompleted(ctx, t.ProductID); err != nil {
		s.logger.Error().Err(err).Str("product_id", t.ProductID.String()).Msg("incrementing product completions failed")
	}
	if err := s.participantRepo.IncrementCompleted(ctx, b.ParticipantID); err != nil {
		s.logger.Error().Err(err).Str("participant_id", b.ParticipantID.String()).Msg("incrementing participant completions failed")
	}

	s.logger.Info().
		Str("buyback_id", buybackID.String()).
		Str("payout_id", po.PayoutID.String()).
		Float64("amount", po.Amount).
		Msg("payout created")
	return po, nil
}

// List returns payouts, optionally filtered by status.
func (s *Service) List(ctx context.Context, status *payout.Status, limit, offset int) ([]*payout.Payout, error) {
	return s.payoutRepo.List(ctx, status, limit, offset)
}

// MarkProcessed records the outcome of a manual disbursement.
func (s *Service) MarkProcessed(ctx context.Context, buybackID uuid.UUID, success bool, notes string) (*payout.Payout, error) {
	po, err := s.payoutRepo.GetByBuybackID(ctx, buybackID)
	if err != nil {
		return nil, err
	}
	if po == nil {
		return nil, fmt.Errorf("payout for buyback %s not found", buybackID)
	}
	now := time.Now().UTC()
	if success {
		po.MarkCompleted(now)
	} else {
		po.MarkFailed(now, notes)
	}
	if err := s.payoutRepo.Update(ctx, po); err != nil {
		return nil, err
	}
	return po, nil
}
