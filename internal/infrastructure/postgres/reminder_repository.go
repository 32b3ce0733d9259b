package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buyback-hub/buyback-hub/internal/domain/reminder"
)

// ReminderRepository implements reminder.Repository.
type ReminderRepository struct {
	pool *pgxpool.Pool
}

func NewReminderRepository(pool *pgxpool.Pool) *ReminderRepository {
	return &ReminderRepository{pool: pool}
}

const reminderColumns = `id, job_id, buyback_id, step_id, step_position, kind, scheduled_at, sent_at, is_cancelled, overdue_count, created_at`

func (r *ReminderRepository) Create(ctx context.Context, j *reminder.Job) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reminder_jobs (job_id, buyback_id, step_id, step_position, kind, scheduled_at, sent_at, is_cancelled, overdue_count, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, j.JobID, j.BuybackID, j.StepID, j.StepPosition, j.Kind, j.ScheduledAt, j.SentAt, j.IsCancelled, j.OverdueCount, j.CreatedAt)
	return err
}

func (r *ReminderRepository) CreateBatch(ctx context.Context, jobs []*reminder.Job) error {
	batch := &pgx.Batch{}
	for _, j := range jobs {
		batch.Queue(`
			INSERT INTO reminder_jobs (job_id, buyback_id, step_id, step_position, kind, scheduled_at, sent_at, is_cancelled, overdue_count, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, j.JobID, j.BuybackID, j.StepID, j.StepPosition, j.Kind, j.ScheduledAt, j.SentAt, j.IsCancelled, j.OverdueCount, j.CreatedAt)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

func (r *ReminderRepository) GetByID(ctx context.Context, jobID uuid.UUID) (*reminder.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminder_jobs WHERE job_id=$1`, jobID)
	var j reminder.Job
	if err := row.Scan(&j.ID, &j.JobID, &j.BuybackID, &j.StepID, &j.StepPosition, &j.Kind,
		&j.ScheduledAt, &j.SentAt, &j.IsCancelled, &j.OverdueCount, &j.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &j, nil
}

func (r *ReminderRepository) MarkSent(ctx context.Context, jobID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE reminder_jobs SET sent_at=NOW() WHERE job_id=$1`, jobID)
	return err
}

func (r *ReminderRepository) MarkSentWithCount(ctx context.Context, jobID uuid.UUID, overdueCount int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE reminder_jobs SET sent_at=NOW(), overdue_count=$1 WHERE job_id=$2
	`, overdueCount, jobID)
	return err
}

func (r *ReminderRepository) Cancel(ctx context.Context, jobID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE reminder_jobs SET is_cancelled=TRUE WHERE job_id=$1 AND sent_at IS NULL`, jobID)
	return err
}

func (r *ReminderRepository) ListPending(ctx context.Context, limit int) ([]*reminder.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reminderColumns+` FROM reminder_jobs
		WHERE sent_at IS NULL AND NOT is_cancelled
		ORDER BY scheduled_at LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []*reminder.Job
	for rows.Next() {
		var j reminder.Job
		if err := rows.Scan(&j.ID, &j.JobID, &j.BuybackID, &j.StepID, &j.StepPosition, &j.Kind,
			&j.ScheduledAt, &j.SentAt, &j.IsCancelled, &j.OverdueCount, &j.CreatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func (r *ReminderRepository) CancelForBuyback(ctx context.Context, buybackID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE reminder_jobs SET is_cancelled=TRUE
		WHERE buyback_id=$1 AND sent_at IS NULL AND NOT is_cancelled
		RETURNING job_id
	`, buybackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
