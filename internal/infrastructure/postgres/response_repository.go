package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buyback-hub/buyback-hub/internal/domain/buyback"
)

// ResponseRepository implements buyback.ResponseRepository.
type ResponseRepository struct {
	pool *pgxpool.Pool
}

func NewResponseRepository(pool *pgxpool.Pool) *ResponseRepository {
	return &ResponseRepository{pool: pool}
}

const responseColumns = `id, response_id, buyback_id, step_id, step_position, data, status, moderator_comment, created_at`

func (r *ResponseRepository) Create(ctx context.Context, resp *buyback.StepResponse) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO step_responses (response_id, buyback_id, step_id, step_position, data, status, moderator_comment, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, resp.ResponseID, resp.BuybackID, resp.StepID, resp.StepPosition, resp.Data, resp.Status, resp.ModeratorComment, resp.CreatedAt)
	return err
}

func (r *ResponseRepository) GetByID(ctx context.Context, responseID uuid.UUID) (*buyback.StepResponse, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+responseColumns+` FROM step_responses WHERE response_id=$1`, responseID)
	return scanResponse(row)
}

// Decide is the check-and-set that guards against double decisions: the
// status moves only if the row is still pending.
func (r *ResponseRepository) Decide(ctx context.Context, responseID uuid.UUID, target buyback.ResponseStatus, comment string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE step_responses SET status=$1, moderator_comment=$2 WHERE response_id=$3 AND status='pending'
	`, target, comment, responseID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ResponseRepository) ListPending(ctx context.Context, limit, offset int) ([]*buyback.StepResponse, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+responseColumns+` FROM step_responses WHERE status='pending' ORDER BY created_at LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectResponses(rows)
}

func (r *ResponseRepository) ListByBuyback(ctx context.Context, buybackID uuid.UUID) ([]*buyback.StepResponse, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+responseColumns+` FROM step_responses WHERE buyback_id=$1 ORDER BY step_position, created_at
	`, buybackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectResponses(rows)
}

func collectResponses(rows pgx.Rows) ([]*buyback.StepResponse, error) {
	var responses []*buyback.StepResponse
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

func scanResponse(row pgx.Row) (*buyback.StepResponse, error) {
	var resp buyback.StepResponse
	var data json.RawMessage
	if err := row.Scan(&resp.ID, &resp.ResponseID, &resp.BuybackID, &resp.StepID, &resp.StepPosition,
		&data, &resp.Status, &resp.ModeratorComment, &resp.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if len(data) > 0 {
		resp.Data = data
	}
	return &resp, nil
}
