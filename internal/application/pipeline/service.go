package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/buyback-hub/buyback-hub/internal/application/inventory"
	"github.com/buyback-hub/buyback-hub/internal/application/validation"
	"github.com/buyback-hub/buyback-hub/internal/domain/buyback"
	"github.com/buyback-hub/buyback-hub/internal/domain/catalog"
	"github.com/buyback-hub/buyback-hub/internal/domain/event"
	"github.com/buyback-hub/buyback-hub/internal/domain/participant"
	"github.com/buyback-hub/buyback-hub/internal/domain/task"
	"github.com/buyback-hub/buyback-hub/internal/telemetry"
)

var (
	ErrNotFound       = errors.New("buyback not found")
	ErrTaskInactive   = errors.New("task is not active")
	ErrAwaitingReview = errors.New("step response is awaiting moderation")
)

// RefusalError reports a claim refused on business grounds (sold out,
// per-user limit, duplicate attempt) with a participant-facing reason.
type RefusalError struct {
	Reason string
}

func (e *RefusalError) Error() string { return e.Reason }

// Scheduler arms and cancels the reminder and timeout jobs that track a
// buyback's current step.
type Scheduler interface {
	Arm(ctx context.Context, b *buyback.Buyback, step *task.Step, now time.Time) error
	ArmPublishReview(ctx context.Context, b *buyback.Buyback, step *task.Step, now time.Time) error
	CancelForBuyback(ctx context.Context, buybackID uuid.UUID) error
}

// SubmitResult is the outcome of one step submission.
type SubmitResult struct {
	Outcome   validation.Outcome
	Buyback   *buyback.Buyback
	NextStep  *task.Step
	Completed bool
}

// Service drives the per-buyback state machine: claiming, step
// submission, moderation, cancellation, expiry and final review.
// Every write goes through a conditional update on (status, step), so
// a transition that lost a race is a no-op rather than a corruption.
type Service struct {
	buybackRepo     buyback.Repository
	responseRepo    buyback.ResponseRepository
	productRepo     catalog.Repository
	taskRepo        task.Repository
	stepRepo        task.StepRepository
	participantRepo participant.Repository
	inventory       *inventory.Service
	scheduler       Scheduler
	bus             *event.Bus
	locks           *keyedMutex
	logger          zerolog.Logger
}

func NewService(
	buybackRepo buyback.Repository,
	responseRepo buyback.ResponseRepository,
	productRepo catalog.Repository,
	taskRepo task.Repository,
	stepRepo task.StepRepository,
	participantRepo participant.Repository,
	inventorySvc *inventory.Service,
	scheduler Scheduler,
	bus *event.Bus,
	logger zerolog.Logger,
) *Service {
	return &Service{
		buybackRepo:     buybackRepo,
		responseRepo:    responseRepo,
		productRepo:     productRepo,
		taskRepo:        taskRepo,
		stepRepo:        stepRepo,
		participantRepo: participantRepo,
		inventory:       inventorySvc,
		scheduler:       scheduler,
		bus:             bus,
		locks:           newKeyedMutex(),
		logger:          logger.With().Str("service", "pipeline").Logger(),
	}
}

// Claim starts a buyback for the participant on the task's first step.
// Availability is re-checked inside the insert transaction, so the
// pre-check here only produces friendlier refusals.
func (s *Service) Claim(ctx context.Context, taskID, participantID uuid.UUID) (*buyback.Buyback, *task.Step, error) {
	t, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if t == nil {
		return nil, nil, fmt.Errorf("task %s not found", taskID)
	}
	if !t.IsActive {
		return nil, nil, ErrTaskInactive
	}

	exists, err := s.buybackRepo.ExistsActive(ctx, participantID, taskID)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		telemetry.ClaimsRefused.Inc()
		return nil, nil, buyback.ErrActiveExists
	}

	ok, reason, err := s.inventory.ClaimEligibility(ctx, participantID, t.ProductID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		telemetry.ClaimsRefused.Inc()
		return nil, nil, &RefusalError{Reason: reason}
	}

	first, err := s.stepRepo.First(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if first == nil {
		return nil, nil, fmt.Errorf("task %s has no steps", taskID)
	}

	now := time.Now().UTC()
	b := &buyback.Buyback{
		BuybackID:     uuid.New(),
		TaskID:        taskID,
		ParticipantID: participantID,
		CurrentStep:   first.Position,
		Status:        buyback.StatusInProgress,
		StepStartedAt: &now,
		StartedAt:     now,
	}
	if err := s.buybackRepo.CreateClaim(ctx, b, t.ProductID); err != nil {
		if errors.Is(err, catalog.ErrSoldOut) {
			telemetry.ClaimsRefused.Inc()
			return nil, nil, &RefusalError{Reason: "Sold out: no units left to claim."}
		}
		return nil, nil, err
	}

	if err := s.armFor(ctx, b, first, now); err != nil {
		s.logger.Warn().Err(err).Str("buyback_id", b.BuybackID.String()).Msg("arming step timers failed")
	}
	telemetry.ClaimsTotal.Inc()
	s.bus.Publish(ctx, event.Event{
		Kind:          event.KindClaimed,
		BuybackID:     b.BuybackID,
		TaskID:        taskID,
		ParticipantID: participantID,
		StepPosition:  first.Position,
		OccurredAt:    now,
	})
	return b, first, nil
}

// Get loads a buyback together with its current step.
func (s *Service) Get(ctx context.Context, buybackID uuid.UUID) (*buyback.Buyback, *task.Step, error) {
	b, err := s.buybackRepo.GetByID(ctx, buybackID)
	if err != nil {
		return nil, nil, err
	}
	if b == nil {
		return nil, nil, ErrNotFound
	}
	step, err := s.stepRepo.GetByPosition(ctx, b.TaskID, b.CurrentStep)
	if err != nil {
		return nil, nil, err
	}
	return b, step, nil
}

// SubmitResponse validates the participant's answer to the current
// step and either advances the buyback, parks it for moderation, or
// returns the validation failure without touching state.
func (s *Service) SubmitResponse(ctx context.Context, buybackID uuid.UUID, in validation.Input) (*SubmitResult, error) {
	unlock := s.locks.Lock(buybackID)
	defer unlock()

	b, err := s.buybackRepo.GetByID(ctx, buybackID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound
	}
	if b.Status == buyback.StatusOnModeration {
		return nil, ErrAwaitingReview
	}
	if b.Status != buyback.StatusInProgress {
		return nil, buyback.ErrInvalidTransition
	}

	step, err := s.stepRepo.GetByPosition(ctx, b.TaskID, b.CurrentStep)
	if err != nil {
		return nil, err
	}
	if step == nil {
		return nil, fmt.Errorf("step %d not found for task %s", b.CurrentStep, b.TaskID)
	}

	t, err := s.taskRepo.GetByID(ctx, b.TaskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("task %s not found", b.TaskID)
	}
	product, err := s.productRepo.GetByID(ctx, t.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, fmt.Errorf("product %s not found", t.ProductID)
	}

	outcome, err := validation.Validate(step, product, in)
	if err != nil {
		return nil, err
	}
	telemetry.ResponsesTotal.Inc()
	if !outcome.Accepted {
		return &SubmitResult{Outcome: outcome, Buyback: b}, nil
	}

	now := time.Now().UTC()
	if _, err := s.recordResponse(ctx, b, step, outcome, now); err != nil {
		return nil, err
	}

	if outcome.RequiresModeration {
		if err := b.SendToModeration(); err != nil {
			return nil, err
		}
		applied, err := s.buybackRepo.UpdateIf(ctx, b, buyback.StatusInProgress, step.Position)
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, buyback.ErrStalePrecondition
		}
		if err := s.scheduler.CancelForBuyback(ctx, b.BuybackID); err != nil {
			s.logger.Warn().Err(err).Str("buyback_id", b.BuybackID.String()).Msg("cancelling step timers failed")
		}
		s.publish(ctx, event.KindSentToModeration, b, step.Position, "")
		return &SubmitResult{Outcome: outcome, Buyback: b}, nil
	}

	if step.Kind == task.KindPaymentDetails && in.Payment != nil {
		if err := s.savePaymentDetails(ctx, b.ParticipantID, *in.Payment); err != nil {
			return nil, err
		}
	}

	next, completed, err := s.advance(ctx, b, step.Position, buyback.StatusInProgress, now)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Outcome: outcome, Buyback: b, NextStep: next, Completed: completed}, nil
}

// Moderate applies a human decision to a pending step response.
// Approval advances the buyback; rejection returns it to the same step
// with a fresh clock. A decision for a response whose buyback has
// already moved on is discarded and reported as stale.
// scheduleOverride, when set on approval, pins the publication deadline
// for a following review step.
func (s *Service) Moderate(ctx context.Context, responseID uuid.UUID, approve bool, comment string, scheduleOverride *time.Time) error {
	resp, err := s.responseRepo.GetByID(ctx, responseID)
	if err != nil {
		return err
	}
	if resp == nil {
		return fmt.Errorf("response %s not found", responseID)
	}

	unlock := s.locks.Lock(resp.BuybackID)
	defer unlock()

	target := buyback.ResponseApproved
	if !approve {
		target = buyback.ResponseRejected
	}
	decided, err := s.responseRepo.Decide(ctx, responseID, target, comment)
	if err != nil {
		return err
	}
	if !decided {
		return buyback.ErrDecisionConflict
	}
	telemetry.ModerationDecisions.Inc()

	b, err := s.buybackRepo.GetByID(ctx, resp.BuybackID)
	if err != nil {
		return err
	}
	if b == nil {
		return ErrNotFound
	}
	if b.Status != buyback.StatusOnModeration || b.CurrentStep != resp.StepPosition {
		return buyback.ErrStaleDecision
	}

	now := time.Now().UTC()
	if !approve {
		if err := b.ResumeAt(resp.StepPosition, now); err != nil {
			return err
		}
		applied, err := s.buybackRepo.UpdateIf(ctx, b, buyback.StatusOnModeration, resp.StepPosition)
		if err != nil {
			return err
		}
		if !applied {
			return buyback.ErrStalePrecondition
		}
		step, err := s.stepRepo.GetByPosition(ctx, b.TaskID, resp.StepPosition)
		if err != nil {
			return err
		}
		if step != nil {
			if err := s.armFor(ctx, b, step, now); err != nil {
				s.logger.Warn().Err(err).Str("buyback_id", b.BuybackID.String()).Msg("re-arming step timers failed")
			}
		}
		s.publish(ctx, event.KindResponseRejected, b, resp.StepPosition, comment)
		return nil
	}

	if scheduleOverride != nil {
		b.CustomPublishAt = scheduleOverride
	}
	_, _, err = s.advance(ctx, b, resp.StepPosition, buyback.StatusOnModeration, now)
	return err
}

// Cancel aborts the buyback on the participant's request. Valid only
// while in progress; releases the reserved unit.
func (s *Service) Cancel(ctx context.Context, buybackID uuid.UUID) error {
	unlock := s.locks.Lock(buybackID)
	defer unlock()

	b, err := s.buybackRepo.GetByID(ctx, buybackID)
	if err != nil {
		return err
	}
	if b == nil {
		return ErrNotFound
	}
	prevStep := b.CurrentStep
	if err := b.Cancel(); err != nil {
		return err
	}
	applied, err := s.buybackRepo.UpdateIf(ctx, b, buyback.StatusInProgress, prevStep)
	if err != nil {
		return err
	}
	if !applied {
		return buyback.ErrStalePrecondition
	}
	if err := s.scheduler.CancelForBuyback(ctx, buybackID); err != nil {
		s.logger.Warn().Err(err).Str("buyback_id", buybackID.String()).Msg("cancelling step timers failed")
	}
	s.publish(ctx, event.KindCancelled, b, prevStep, "")
	return nil
}

// Expire is the timeout transition fired by the scheduler. A fire that
// raced a user transition finds the precondition gone and does nothing.
func (s *Service) Expire(ctx context.Context, buybackID uuid.UUID, stepPosition int) error {
	unlock := s.locks.Lock(buybackID)
	defer unlock()

	b, err := s.buybackRepo.GetByID(ctx, buybackID)
	if err != nil {
		return err
	}
	if b == nil {
		return nil
	}
	if b.Status != buyback.StatusInProgress || b.CurrentStep != stepPosition {
		return nil
	}
	if err := b.Expire(); err != nil {
		return err
	}
	applied, err := s.buybackRepo.UpdateIf(ctx, b, buyback.StatusInProgress, stepPosition)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	if err := s.scheduler.CancelForBuyback(ctx, buybackID); err != nil {
		s.logger.Warn().Err(err).Str("buyback_id", buybackID.String()).Msg("cancelling step timers failed")
	}
	s.publish(ctx, event.KindExpired, b, stepPosition, "")
	return nil
}

// Finalize records the moderator's verdict on a fully completed
// buyback. Approval triggers the reward flow through its event; a
// second finalize finds a terminal status and fails with ErrTerminal.
func (s *Service) Finalize(ctx context.Context, buybackID uuid.UUID, approve bool, reason string) error {
	unlock := s.locks.Lock(buybackID)
	defer unlock()

	b, err := s.buybackRepo.GetByID(ctx, buybackID)
	if err != nil {
		return err
	}
	if b == nil {
		return ErrNotFound
	}
	prevStep := b.CurrentStep
	kind := event.KindApproved
	if approve {
		if err := b.Approve(); err != nil {
			return err
		}
	} else {
		if err := b.Reject(reason); err != nil {
			return err
		}
		kind = event.KindRejected
	}
	applied, err := s.buybackRepo.UpdateIf(ctx, b, buyback.StatusPendingReview, prevStep)
	if err != nil {
		return err
	}
	if !applied {
		return buyback.ErrStalePrecondition
	}
	s.publish(ctx, kind, b, prevStep, reason)
	return nil
}

// advance moves the buyback past the given step, or into final review
// when no step remains. expect names the status the stored row must
// still hold: in progress on the direct path, on moderation when an
// approval releases the step.
func (s *Service) advance(ctx context.Context, b *buyback.Buyback, fromPosition int, expect buyback.Status, now time.Time) (*task.Step, bool, error) {
	next, err := s.stepRepo.NextAfter(ctx, b.TaskID, fromPosition)
	if err != nil {
		return nil, false, err
	}

	if next == nil {
		if err := b.CompleteSteps(now); err != nil {
			return nil, false, err
		}
		applied, err := s.buybackRepo.UpdateIf(ctx, b, expect, fromPosition)
		if err != nil {
			return nil, false, err
		}
		if !applied {
			return nil, false, buyback.ErrStalePrecondition
		}
		if err := s.scheduler.CancelForBuyback(ctx, b.BuybackID); err != nil {
			s.logger.Warn().Err(err).Str("buyback_id", b.BuybackID.String()).Msg("cancelling step timers failed")
		}
		s.publish(ctx, event.KindAllStepsCompleted, b, fromPosition, "")
		return nil, true, nil
	}

	if err := b.AdvanceTo(next.Position, now); err != nil {
		return nil, false, err
	}
	applied, err := s.buybackRepo.UpdateIf(ctx, b, expect, fromPosition)
	if err != nil {
		return nil, false, err
	}
	if !applied {
		return nil, false, buyback.ErrStalePrecondition
	}
	if err := s.armFor(ctx, b, next, now); err != nil {
		s.logger.Warn().Err(err).Str("buyback_id", b.BuybackID.String()).Msg("arming step timers failed")
	}
	s.publish(ctx, event.KindStepAdvanced, b, next.Position, "")
	return next, false, nil
}

func (s *Service) armFor(ctx context.Context, b *buyback.Buyback, step *task.Step, now time.Time) error {
	if step.Kind == task.KindPublishReview {
		return s.scheduler.ArmPublishReview(ctx, b, step, now)
	}
	return s.scheduler.Arm(ctx, b, step, now)
}

func (s *Service) recordResponse(ctx context.Context, b *buyback.Buyback, step *task.Step, outcome validation.Outcome, now time.Time) (*buyback.StepResponse, error) {
	data, err := json.Marshal(outcome.Data)
	if err != nil {
		return nil, err
	}
	status := buyback.ResponseAutoApproved
	if outcome.RequiresModeration {
		status = buyback.ResponsePending
	}
	resp := &buyback.StepResponse{
		ResponseID:   uuid.New(),
		BuybackID:    b.BuybackID,
		StepID:       step.StepID,
		StepPosition: step.Position,
		Data:         data,
		Status:       status,
		CreatedAt:    now,
	}
	if err := s.responseRepo.Create(ctx, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) savePaymentDetails(ctx context.Context, participantID uuid.UUID, p validation.PaymentInput) error {
	return s.participantRepo.UpdatePaymentDetails(ctx, participantID, p.Phone, p.BankName, p.CardHolderName)
}

func (s *Service) publish(ctx context.Context, kind event.Kind, b *buyback.Buyback, stepPosition int, comment string) {
	s.bus.Publish(ctx, event.Event{
		Kind:          kind,
		BuybackID:     b.BuybackID,
		TaskID:        b.TaskID,
		ParticipantID: b.ParticipantID,
		StepPosition:  stepPosition,
		Comment:       comment,
		OccurredAt:    time.Now().UTC(),
	})
}
