package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task defines a rewarded multi-step buyback activity tied to one product.
type Task struct {
	ID        int64     `json:"id"`
	TaskID    uuid.UUID `json:"taskId"`
	ProductID uuid.UUID `json:"productId"`
	Title     string    `json:"title"`
	Payout    float64   `json:"payout"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Step is one ordered unit of work within a task. Positions are unique
// within a task and ascending, but need not be contiguous.
type Step struct {
	ID                 int64           `json:"id"`
	StepID             uuid.UUID       `json:"stepId"`
	TaskID             uuid.UUID       `json:"taskId"`
	Position           int             `json:"position"`
	Title              string          `json:"title"`
	Kind               Kind            `json:"kind"`
	Instruction        string          `json:"instruction"`
	Config             json.RawMessage `json:"config,omitempty"`
	TimeoutMinutes     *int            `json:"timeoutMinutes,omitempty"`
	ReminderMinutes    *int            `json:"reminderMinutes,omitempty"`
	ReminderText       string          `json:"reminderText,omitempty"`
	RequiresModeration bool            `json:"requiresModeration"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// DisplayTitle returns the step title, falling back to the kind label.
func (s *Step) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Kind.Label()
}

// Moderated reports whether a response to this step must pass human
// review. Some kinds are moderated regardless of the configured flag.
func (s *Step) Moderated() bool {
	return s.RequiresModeration || s.Kind.AlwaysModerated()
}
