package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind enumerates pipeline events. The state machine emits explicit
// event values instead of implicit hooks so that one transition always
// produces a deterministic, testable set of effects.
type Kind string

const (
	KindClaimed           Kind = "CLAIMED"
	KindStepAdvanced      Kind = "STEP_ADVANCED"
	KindSentToModeration  Kind = "SENT_TO_MODERATION"
	KindResponseRejected  Kind = "RESPONSE_REJECTED"
	KindAllStepsCompleted Kind = "ALL_STEPS_COMPLETED"
	KindApproved          Kind = "APPROVED"
	KindRejected          Kind = "REJECTED"
	KindCancelled         Kind = "CANCELLED"
	KindExpired           Kind = "EXPIRED"
)

// Event describes one committed state-machine transition.
type Event struct {
	Kind          Kind
	BuybackID     uuid.UUID
	TaskID        uuid.UUID
	ParticipantID uuid.UUID
	// StepPosition is the step the buyback is on after the transition
	// (or the rejected step for RESPONSE_REJECTED).
	StepPosition int
	// Comment carries the moderator comment or rejection reason.
	Comment    string
	OccurredAt time.Time
}

// Handler consumes pipeline events. Handler errors are logged by the
// bus and never roll back the transition that emitted the event.
type Handler interface {
	Handle(ctx context.Context, e Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e Event)

func (f HandlerFunc) Handle(ctx context.Context, e Event) { f(ctx, e) }

// Bus dispatches events synchronously to named subscribers in
// registration order.
type Bus struct {
	handlers map[Kind][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[Kind][]Handler)}
}

// Subscribe registers a handler for one event kind.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.handlers[kind] = append(b.handlers[kind], h)
}

// SubscribeAll registers a handler for every listed kind.
func (b *Bus) SubscribeAll(h Handler, kinds ...Kind) {
	for _, k := range kinds {
		b.Subscribe(k, h)
	}
}

// Publish delivers the event to all subscribers of its kind.
func (b *Bus) Publish(ctx context.Context, e Event) {
	for _, h := range b.handlers[e.Kind] {
		h.Handle(ctx, e)
	}
}
