package notifier

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/buyback-hub/buyback-hub/internal/domain/buyback"
	"github.com/buyback-hub/buyback-hub/internal/domain/event"
	"github.com/buyback-hub/buyback-hub/internal/domain/notify"
	"github.com/buyback-hub/buyback-hub/internal/domain/participant"
	"github.com/buyback-hub/buyback-hub/internal/domain/task"
)

// Notifier turns pipeline events into participant messages. Delivery
// failures are logged and swallowed: a lost message never rolls back
// the transition that caused it.
type Notifier struct {
	participantRepo participant.Repository
	taskRepo        task.Repository
	stepRepo        task.StepRepository
	buybackRepo     buyback.Repository
	messenger       notify.Messenger
	logger          zerolog.Logger
}

func New(
	participantRepo participant.Repository,
	taskRepo task.Repository,
	stepRepo task.StepRepository,
	buybackRepo buyback.Repository,
	messenger notify.Messenger,
	logger zerolog.Logger,
) *Notifier {
	return &Notifier{
		participantRepo: participantRepo,
		taskRepo:        taskRepo,
		stepRepo:        stepRepo,
		buybackRepo:     buybackRepo,
		messenger:       messenger,
		logger:          logger.With().Str("service", "notifier").Logger(),
	}
}

// Register subscribes the notifier to every event kind it renders.
func (n *Notifier) Register(bus *event.Bus) {
	bus.SubscribeAll(n,
		event.KindClaimed,
		event.KindStepAdvanced,
		event.KindSentToModeration,
		event.KindResponseRejected,
		event.KindAllStepsCompleted,
		event.KindApproved,
		event.KindRejected,
		event.KindExpired,
	)
}

func (n *Notifier) Handle(ctx context.Context, e event.Event) {
	text := n.render(ctx, e)
	if text == "" {
		return
	}
	p, err := n.participantRepo.GetByID(ctx, e.ParticipantID)
	if err != nil || p == nil {
		n.logger.Warn().Err(err).Str("participant_id", e.ParticipantID.String()).Msg("participant lookup failed")
		return
	}
	if err := n.messenger.Deliver(ctx, notify.Message{ChatID: p.ChatID, Text: text}); err != nil {
		n.logger.Warn().Err(err).
			Str("kind", string(e.Kind)).
			Int64("chat_id", p.ChatID).
			Msg("notification delivery failed")
	}
}

func (n *Notifier) render(ctx context.Context, e event.Event) string {
	title := ""
	if t, err := n.taskRepo.GetByID(ctx, e.TaskID); err == nil && t != nil {
		title = t.Title
	}

	switch e.Kind {
	case event.KindClaimed:
		return fmt.Sprintf("You have claimed the task %q. Follow the steps to complete it.", title)
	case event.KindStepAdvanced:
		return n.renderNextStep(ctx, e)
	case event.KindSentToModeration:
		return "Your answer was sent for review. We will get back to you shortly."
	case event.KindResponseRejected:
		if e.Comment != "" {
			return fmt.Sprintf("Your answer was not accepted: %s\nPlease try again.", e.Comment)
		}
		return "Your answer was not accepted. Please try again."
	case event.KindAllStepsCompleted:
		return "All steps are done! Your buyback is under final review."
	case event.KindApproved:
		return fmt.Sprintf("Your buyback for %q is approved. The payout is on its way.", title)
	case event.KindRejected:
		if e.Comment != "" {
			return fmt.Sprintf("Your buyback for %q was rejected: %s", title, e.Comment)
		}
		return fmt.Sprintf("Your buyback for %q was rejected.", title)
	case event.KindExpired:
		return fmt.Sprintf("Time ran out on a step of %q, so the buyback was closed. You can claim the task again while units remain.", title)
	default:
		return ""
	}
}

// renderNextStep prompts the participant with the step the buyback
// just moved onto. STEP_ADVANCED is the only signal the participant
// gets after a moderator approves a mid-task answer, so it must always
// produce a message.
func (n *Notifier) renderNextStep(ctx context.Context, e event.Event) string {
	step, err := n.stepRepo.GetByPosition(ctx, e.TaskID, e.StepPosition)
	if err != nil || step == nil {
		n.logger.Warn().Err(err).
			Str("task_id", e.TaskID.String()).
			Int("position", e.StepPosition).
			Msg("step lookup failed for next-step prompt")
		return "Your answer is accepted. On to the next step!"
	}

	text := fmt.Sprintf("Your answer is accepted. Next step: %s.", step.DisplayTitle())
	if step.Instruction != "" {
		text += "\n" + step.Instruction
	}
	if step.Kind == task.KindPublishReview {
		if when := n.publishDeadline(ctx, e.BuybackID, step); when != "" {
			text += "\nPublish your review by " + when + "."
		}
	}
	return text
}

// publishDeadline renders the publication time: the per-buyback
// override when a moderator set one, else the step's configured local
// time of day.
func (n *Notifier) publishDeadline(ctx context.Context, buybackID uuid.UUID, step *task.Step) string {
	if b, err := n.buybackRepo.GetByID(ctx, buybackID); err == nil && b != nil && b.CustomPublishAt != nil {
		return b.CustomPublishAt.Format("2006-01-02 15:04")
	}
	cfg, err := step.DecodeConfig()
	if err != nil {
		return ""
	}
	if pc, ok := cfg.(task.PublishConfig); ok && pc.PublishAt != "" {
		return pc.PublishAt
	}
	return ""
}
