package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buyback-hub/buyback-hub/internal/domain/payout"
)

// PayoutRepository implements payout.Repository.
type PayoutRepository struct {
	pool *pgxpool.Pool
}

func NewPayoutRepository(pool *pgxpool.Pool) *PayoutRepository {
	return &PayoutRepository{pool: pool}
}

const payoutColumns = `id, payout_id, buyback_id, participant_id, amount, payment_phone, payment_bank, payment_name, status, notes, processed_at, created_at`

func (r *PayoutRepository) Create(ctx context.Context, p *payout.Payout) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payouts (payout_id, buyback_id, participant_id, amount, payment_phone, payment_bank, payment_name, status, notes, processed_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, p.PayoutID, p.BuybackID, p.ParticipantID, p.Amount, p.PaymentPhone, p.PaymentBank, p.PaymentName, p.Status, p.Notes, p.ProcessedAt, p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505: the unique buyback_id constraint backs up the
		// fire-once guarantee of the completion trigger.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return payout.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *PayoutRepository) GetByBuybackID(ctx context.Context, buybackID uuid.UUID) (*payout.Payout, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE buyback_id=$1`, buybackID)
	return scanPayout(row)
}

func (r *PayoutRepository) ExistsForBuyback(ctx context.Context, buybackID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payouts WHERE buyback_id=$1)`, buybackID).Scan(&exists)
	return exists, err
}

func (r *PayoutRepository) Update(ctx context.Context, p *payout.Payout) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payouts SET status=$1, notes=$2, processed_at=$3 WHERE payout_id=$4
	`, p.Status, p.Notes, p.ProcessedAt, p.PayoutID)
	return err
}

func (r *PayoutRepository) List(ctx context.Context, status *payout.Status, limit, offset int) ([]*payout.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status=$1`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC LIMIT $` + itoa(len(args)+1) + ` OFFSET $` + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payouts []*payout.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

func scanPayout(row pgx.Row) (*payout.Payout, error) {
	var p payout.Payout
	if err := row.Scan(&p.ID, &p.PayoutID, &p.BuybackID, &p.ParticipantID, &p.Amount,
		&p.PaymentPhone, &p.PaymentBank, &p.PaymentName, &p.Status, &p.Notes, &p.ProcessedAt, &p.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
