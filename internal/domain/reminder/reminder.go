package reminder

import (
	"time"

	"github.com/google/uuid"
)

// Kind enumerates scheduler job kinds.
type Kind string

const (
	// KindStepReminder nudges a stalled participant partway through a
	// step's time budget.
	KindStepReminder Kind = "step_reminder"
	// KindStepTimeout expires the buyback when the budget lapses.
	KindStepTimeout Kind = "step_timeout"

	// Pre-deadline reminders for the review publication step.
	KindBefore3H Kind = "before_3h"
	KindBefore2H Kind = "before_2h"
	KindBefore1H Kind = "before_1h"
	KindBefore5M Kind = "before_5m"
	// KindOverdue repeats after the publication deadline, capped.
	KindOverdue Kind = "overdue"
)

// MaxOverdueNotices caps how many overdue repeats fire per step.
const MaxOverdueNotices = 5

// Job is a time-keyed reminder or expiry check tied to a buyback's
// current step. Cancellation is soft: a fired goroutine must re-check
// instance state, because the flag may be set after its wake time.
type Job struct {
	ID           int64      `json:"id"`
	JobID        uuid.UUID  `json:"jobId"`
	BuybackID    uuid.UUID  `json:"buybackId"`
	StepID       uuid.UUID  `json:"stepId"`
	StepPosition int        `json:"stepPosition"`
	Kind         Kind       `json:"kind"`
	ScheduledAt  time.Time  `json:"scheduledAt"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	IsCancelled  bool       `json:"isCancelled"`
	OverdueCount int        `json:"overdueCount"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Pending reports whether the job is still eligible to fire.
func (j *Job) Pending() bool {
	return j.SentAt == nil && !j.IsCancelled
}
