package participant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Participant is a chat user who claims and executes buybacks.
type Participant struct {
	ID             int64     `json:"id"`
	ParticipantID  uuid.UUID `json:"participantId"`
	ChatID         int64     `json:"chatId"`
	Username       string    `json:"username,omitempty"`
	FirstName      string    `json:"firstName,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	BankName       string    `json:"bankName,omitempty"`
	CardHolderName string    `json:"cardHolderName,omitempty"`
	TotalCompleted int       `json:"totalCompleted"`
	IsBlocked      bool      `json:"isBlocked"`
	CreatedAt      time.Time `json:"createdAt"`
}

// HasPaymentDetails reports whether all payout fields are on file.
func (p *Participant) HasPaymentDetails() bool {
	return p.Phone != "" && p.BankName != "" && p.CardHolderName != ""
}

// PaymentDisplay renders the stored details for confirmation prompts.
func (p *Participant) PaymentDisplay() string {
	if !p.HasPaymentDetails() {
		return "not provided"
	}
	return fmt.Sprintf("%s: %s (%s)", p.BankName, p.Phone, p.CardHolderName)
}

// Repository defines persistence for participants.
type Repository interface {
	Create(ctx context.Context, p *Participant) error
	Update(ctx context.Context, p *Participant) error
	GetByID(ctx context.Context, participantID uuid.UUID) (*Participant, error)
	GetByChatID(ctx context.Context, chatID int64) (*Participant, error)
	UpdatePaymentDetails(ctx context.Context, participantID uuid.UUID, phone, bankName, holderName string) error
	IncrementCompleted(ctx context.Context, participantID uuid.UUID) error
}
