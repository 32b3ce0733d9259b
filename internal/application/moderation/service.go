package moderation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/buyback-hub/buyback-hub/internal/application/pipeline"
	"github.com/buyback-hub/buyback-hub/internal/domain/buyback"
	"github.com/buyback-hub/buyback-hub/internal/domain/task"
)

// PendingItem is one queued response with the context a reviewer needs
// to judge it.
type PendingItem struct {
	Response  *buyback.StepResponse `json:"response"`
	Buyback   *buyback.Buyback      `json:"buyback"`
	TaskTitle string                `json:"taskTitle"`
	StepTitle string                `json:"stepTitle"`
	StepKind  task.Kind             `json:"stepKind"`
}

// Service is the reviewer-facing queue over pending step responses.
// Decisions are applied through the pipeline so they obey the same
// preconditions as every other transition.
type Service struct {
	responseRepo buyback.ResponseRepository
	buybackRepo  buyback.Repository
	taskRepo     task.Repository
	stepRepo     task.StepRepository
	pipeline     *pipeline.Service
	logger       zerolog.Logger
}

func NewService(
	responseRepo buyback.ResponseRepository,
	buybackRepo buyback.Repository,
	taskRepo task.Repository,
	stepRepo task.StepRepository,
	pipelineSvc *pipeline.Service,
	logger zerolog.Logger,
) *Service {
	return &Service{
		responseRepo: responseRepo,
		buybackRepo:  buybackRepo,
		taskRepo:     taskRepo,
		stepRepo:     stepRepo,
		pipeline:     pipelineSvc,
		logger:       logger.With().Str("service", "moderation").Logger(),
	}
}

// ListPending returns the review queue in submission order.
func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]*PendingItem, error) {
	responses, err := s.responseRepo.ListPending(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]*PendingItem, 0, len(responses))
	for _, r := range responses {
		item := &PendingItem{Response: r}
		b, err := s.buybackRepo.GetByID(ctx, r.BuybackID)
		if err != nil {
			return nil, err
		}
		item.Buyback = b
		if b != nil {
			if t, err := s.taskRepo.GetByID(ctx, b.TaskID); err == nil && t != nil {
				item.TaskTitle = t.Title
			}
		}
		if step, err := s.stepRepo.GetByID(ctx, r.StepID); err == nil && step != nil {
			item.StepTitle = step.DisplayTitle()
			item.StepKind = step.Kind
		}
		items = append(items, item)
	}
	return items, nil
}

// ListByBuyback returns every response of one buyback, newest last.
func (s *Service) ListByBuyback(ctx context.Context, buybackID uuid.UUID) ([]*buyback.StepResponse, error) {
	return s.responseRepo.ListByBuyback(ctx, buybackID)
}

// Decide applies a reviewer's verdict. A second decision on the same
// response fails with ErrDecisionConflict; a decision whose buyback
// has moved on is discarded and reported with ErrStaleDecision.
func (s *Service) Decide(ctx context.Context, responseID uuid.UUID, approve bool, comment string, scheduleOverride *time.Time) error {
	err := s.pipeline.Moderate(ctx, responseID, approve, comment, scheduleOverride)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("response_id", responseID.String()).
			Bool("approve", approve).
			Msg("moderation decision not applied")
		return err
	}
	s.logger.Info().
		Str("response_id", responseID.String()).
		Bool("approve", approve).
		Msg("moderation decision applied")
	return nil
}
