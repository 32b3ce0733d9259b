package buyback

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents buyback status.
type Status string

const (
	StatusInProgress    Status = "IN_PROGRESS"
	StatusOnModeration  Status = "ON_MODERATION"
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusApproved      Status = "APPROVED"
	StatusRejected      Status = "REJECTED"
	StatusCancelled     Status = "CANCELLED"
	StatusExpired       Status = "EXPIRED"
)

var (
	ErrInvalidTransition = errors.New("invalid buyback status transition")
	ErrTerminal          = errors.New("buyback is in a terminal state")
	ErrStalePrecondition = errors.New("buyback state changed underneath the operation")
	ErrActiveExists      = errors.New("participant already has an active buyback for this task")
)

// Active reports whether the buyback still reserves a unit of product
// inventory.
func (s Status) Active() bool {
	switch s {
	case StatusInProgress, StatusOnModeration, StatusPendingReview:
		return true
	}
	return false
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// ActiveStatuses lists the non-terminal statuses that count as reserved
// inventory.
func ActiveStatuses() []Status {
	return []Status{StatusInProgress, StatusOnModeration, StatusPendingReview}
}

// Buyback is one participant's attempt at a task.
type Buyback struct {
	ID              int64      `json:"id"`
	BuybackID       uuid.UUID  `json:"buybackId"`
	TaskID          uuid.UUID  `json:"taskId"`
	ParticipantID   uuid.UUID  `json:"participantId"`
	CurrentStep     int        `json:"currentStep"`
	Status          Status     `json:"status"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	CustomPublishAt *time.Time `json:"customPublishAt,omitempty"`
	StepStartedAt   *time.Time `json:"stepStartedAt,omitempty"`
	StartedAt       time.Time  `json:"startedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// CanTransitionTo validates a status transition. Terminal states admit
// nothing.
func (b *Buyback) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusInProgress:    {StatusOnModeration, StatusPendingReview, StatusCancelled, StatusExpired},
		StatusOnModeration:  {StatusInProgress, StatusPendingReview},
		StatusPendingReview: {StatusApproved, StatusRejected},
		StatusApproved:      {},
		StatusRejected:      {},
		StatusCancelled:     {},
		StatusExpired:       {},
	}
	for _, s := range transitions[b.Status] {
		if s == target {
			return true
		}
	}
	return false
}

func (b *Buyback) transition(target Status) error {
	if b.Status.Terminal() {
		return ErrTerminal
	}
	if !b.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	b.Status = target
	return nil
}

// SendToModeration parks the buyback while a response awaits review.
func (b *Buyback) SendToModeration() error {
	return b.transition(StatusOnModeration)
}

// ResumeAt returns the buyback to participant control at the given step.
func (b *Buyback) ResumeAt(position int, now time.Time) error {
	if err := b.transition(StatusInProgress); err != nil {
		return err
	}
	b.CurrentStep = position
	b.StepStartedAt = &now
	return nil
}

// AdvanceTo moves the step pointer forward while staying in progress.
func (b *Buyback) AdvanceTo(position int, now time.Time) error {
	if b.Status != StatusInProgress && b.Status != StatusOnModeration {
		return ErrInvalidTransition
	}
	b.Status = StatusInProgress
	b.CurrentStep = position
	b.StepStartedAt = &now
	return nil
}

// CompleteSteps marks all steps done, pending final review.
func (b *Buyback) CompleteSteps(now time.Time) error {
	if err := b.transition(StatusPendingReview); err != nil {
		return err
	}
	b.CompletedAt = &now
	return nil
}

// Approve finalizes the buyback positively.
func (b *Buyback) Approve() error {
	return b.transition(StatusApproved)
}

// Reject finalizes the buyback negatively with a reason.
func (b *Buyback) Reject(reason string) error {
	if err := b.transition(StatusRejected); err != nil {
		return err
	}
	b.RejectionReason = reason
	return nil
}

// Cancel is a participant-driven abort, valid only while in progress.
func (b *Buyback) Cancel() error {
	if b.Status != StatusInProgress {
		return ErrInvalidTransition
	}
	b.Status = StatusCancelled
	return nil
}

// Expire is the system transition fired when a step's time budget lapses.
func (b *Buyback) Expire() error {
	if b.Status != StatusInProgress {
		return ErrInvalidTransition
	}
	b.Status = StatusExpired
	return nil
}
