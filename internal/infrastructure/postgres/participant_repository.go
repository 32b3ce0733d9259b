package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buyback-hub/buyback-hub/internal/domain/participant"
)

// ParticipantRepository implements participant.Repository.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

const participantColumns = `id, participant_id, chat_id, username, first_name, phone, bank_name, card_holder_name, total_completed, is_blocked, created_at`

func (r *ParticipantRepository) Create(ctx context.Context, p *participant.Participant) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO participants (participant_id, chat_id, username, first_name, phone, bank_name, card_holder_name, total_completed, is_blocked, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, p.ParticipantID, p.ChatID, p.Username, p.FirstName, p.Phone, p.BankName, p.CardHolderName, p.TotalCompleted, p.IsBlocked, p.CreatedAt)
	return err
}

func (r *ParticipantRepository) Update(ctx context.Context, p *participant.Participant) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE participants SET username=$1, first_name=$2, phone=$3, bank_name=$4, card_holder_name=$5, is_blocked=$6
		WHERE participant_id=$7
	`, p.Username, p.FirstName, p.Phone, p.BankName, p.CardHolderName, p.IsBlocked, p.ParticipantID)
	return err
}

func (r *ParticipantRepository) GetByID(ctx context.Context, participantID uuid.UUID) (*participant.Participant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE participant_id=$1`, participantID)
	return scanParticipant(row)
}

func (r *ParticipantRepository) GetByChatID(ctx context.Context, chatID int64) (*participant.Participant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE chat_id=$1`, chatID)
	return scanParticipant(row)
}

func (r *ParticipantRepository) UpdatePaymentDetails(ctx context.Context, participantID uuid.UUID, phone, bankName, holderName string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE participants SET phone=$1, bank_name=$2, card_holder_name=$3 WHERE participant_id=$4
	`, phone, bankName, holderName, participantID)
	return err
}

func (r *ParticipantRepository) IncrementCompleted(ctx context.Context, participantID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE participants SET total_completed=total_completed+1 WHERE participant_id=$1
	`, participantID)
	return err
}

func scanParticipant(row pgx.Row) (*participant.Participant, error) {
	var p participant.Participant
	if err := row.Scan(&p.ID, &p.ParticipantID, &p.ChatID, &p.Username, &p.FirstName, &p.Phone,
		&p.BankName, &p.CardHolderName, &p.TotalCompleted, &p.IsBlocked, &p.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
