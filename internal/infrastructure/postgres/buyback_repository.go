package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buyback-hub/buyback-hub/internal/domain/buyback"
	"github.com/buyback-hub/buyback-hub/internal/domain/catalog"
)

// BuybackRepository implements buyback.Repository.
type BuybackRepository struct {
	pool *pgxpool.Pool
}

func NewBuybackRepository(pool *pgxpool.Pool) *BuybackRepository {
	return &BuybackRepository{pool: pool}
}

const buybackColumns = `id, buyback_id, task_id, participant_id, current_step, status, rejection_reason, custom_publish_at, step_started_at, started_at, completed_at`

// CreateClaim reserves one unit of the product and inserts the buyback
// in a single transaction. The product row is locked so availability
// cannot be re-read by a concurrent claim until this one commits.
func (r *BuybackRepository) CreateClaim(ctx context.Context, b *buyback.Buyback, productID uuid.UUID) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var total, completed int
	err = tx.QueryRow(ctx, `
		SELECT quantity_total, quantity_completed FROM products WHERE product_id=$1 FOR UPDATE
	`, productID).Scan(&total, &completed)
	if err != nil {
		return err
	}

	var reserved int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM buybacks b JOIN tasks t ON t.task_id=b.task_id
		WHERE t.product_id=$1 AND b.status = ANY($2)
	`, productID, statusStrings(buyback.ActiveStatuses())).Scan(&reserved)
	if err != nil {
		return err
	}

	if total-completed-reserved <= 0 {
		return catalog.ErrSoldOut
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO buybacks (buyback_id, task_id, participant_id, current_step, status, rejection_reason, custom_publish_at, step_started_at, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, b.BuybackID, b.TaskID, b.ParticipantID, b.CurrentStep, b.Status, b.RejectionReason, b.CustomPublishAt, b.StepStartedAt, b.StartedAt, b.CompletedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *BuybackRepository) GetByID(ctx context.Context, buybackID uuid.UUID) (*buyback.Buyback, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+buybackColumns+` FROM buybacks WHERE buyback_id=$1`, buybackID)
	return scanBuyback(row)
}

func (r *BuybackRepository) Update(ctx context.Context, b *buyback.Buyback) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE buybacks SET current_step=$1, status=$2, rejection_reason=$3, custom_publish_at=$4, step_started_at=$5, completed_at=$6
		WHERE buyback_id=$7
	`, b.CurrentStep, b.Status, b.RejectionReason, b.CustomPublishAt, b.StepStartedAt, b.CompletedAt, b.BuybackID)
	return err
}

// UpdateIf persists the buyback only when the stored row still matches
// the expected status and step, so a racing transition loses cleanly.
func (r *BuybackRepository) UpdateIf(ctx context.Context, b *buyback.Buyback, expectStatus buyback.Status, expectStep int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE buybacks SET current_step=$1, status=$2, rejection_reason=$3, custom_publish_at=$4, step_started_at=$5, completed_at=$6
		WHERE buyback_id=$7 AND status=$8 AND current_step=$9
	`, b.CurrentStep, b.Status, b.RejectionReason, b.CustomPublishAt, b.StepStartedAt, b.CompletedAt,
		b.BuybackID, expectStatus, expectStep)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *BuybackRepository) List(ctx context.Context, status *buyback.Status, limit, offset int) ([]*buyback.Buyback, error) {
	query := `SELECT ` + buybackColumns + ` FROM buybacks`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status=$1`
		args = append(args, *status)
	}
	query += ` ORDER BY started_at DESC LIMIT $` + itoa(len(args)+1) + ` OFFSET $` + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var buybacks []*buyback.Buyback
	for rows.Next() {
		b, err := scanBuyback(rows)
		if err != nil {
			return nil, err
		}
		buybacks = append(buybacks, b)
	}
	return buybacks, rows.Err()
}

func (r *BuybackRepository) CountActiveByProduct(ctx context.Context, productID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM buybacks b JOIN tasks t ON t.task_id=b.task_id
		WHERE t.product_id=$1 AND b.status = ANY($2)
	`, productID, statusStrings(buyback.ActiveStatuses())).Scan(&n)
	return n, err
}

func (r *BuybackRepository) CountClaimedByParticipant(ctx context.Context, participantID, productID uuid.UUID, since *time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM buybacks b JOIN tasks t ON t.task_id=b.task_id
		WHERE b.participant_id=$1 AND t.product_id=$2 AND b.status NOT IN ('CANCELLED','EXPIRED','REJECTED')`
	args := []interface{}{participantID, productID}
	if since != nil {
		query += ` AND b.started_at >= $3`
		args = append(args, *since)
	}
	var n int
	err := r.pool.QueryRow(ctx, query, args...).Scan(&n)
	return n, err
}

func (r *BuybackRepository) ExistsActive(ctx context.Context, participantID, taskID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM buybacks WHERE participant_id=$1 AND task_id=$2 AND status = ANY($3))
	`, participantID, taskID, statusStrings(buyback.ActiveStatuses())).Scan(&exists)
	return exists, err
}

func scanBuyback(row pgx.Row) (*buyback.Buyback, error) {
	var b buyback.Buyback
	if err := row.Scan(&b.ID, &b.BuybackID, &b.TaskID, &b.ParticipantID, &b.CurrentStep, &b.Status,
		&b.RejectionReason, &b.CustomPublishAt, &b.StepStartedAt, &b.StartedAt, &b.CompletedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func statusStrings(statuses []buyback.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
