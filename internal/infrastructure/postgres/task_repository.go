package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buyback-hub/buyback-hub/internal/domain/task"
)

// TaskRepository implements task.Repository.
type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tasks (task_id, product_id, title, payout, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, t.TaskID, t.ProductID, t.Title, t.Payout, t.IsActive, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *TaskRepository) Update(ctx context.Context, t *task.Task) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tasks SET product_id=$1, title=$2, payout=$3, is_active=$4, updated_at=NOW() WHERE task_id=$5
	`, t.ProductID, t.Title, t.Payout, t.IsActive, t.TaskID)
	return err
}

func (r *TaskRepository) GetByID(ctx context.Context, taskID uuid.UUID) (*task.Task, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, task_id, product_id, title, payout, is_active, created_at, updated_at
		FROM tasks WHERE task_id=$1
	`, taskID)
	return scanTask(row)
}

func (r *TaskRepository) ListActive(ctx context.Context, limit, offset int) ([]*task.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.task_id, t.product_id, t.title, t.payout, t.is_active, t.created_at, t.updated_at
		FROM tasks t JOIN products p ON p.product_id=t.product_id
		WHERE t.is_active AND p.is_active
		ORDER BY t.created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (*task.Task, error) {
	var t task.Task
	if err := row.Scan(&t.ID, &t.TaskID, &t.ProductID, &t.Title, &t.Payout, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// StepRepository implements task.StepRepository.
type StepRepository struct {
	pool *pgxpool.Pool
}

func NewStepRepository(pool *pgxpool.Pool) *StepRepository {
	return &StepRepository{pool: pool}
}

const stepColumns = `id, step_id, task_id, position, title, kind, instruction, config, timeout_minutes, reminder_minutes, reminder_text, requires_moderation, created_at`

func (r *StepRepository) Create(ctx context.Context, s *task.Step) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO task_steps (step_id, task_id, position, title, kind, instruction, config, timeout_minutes, reminder_minutes, reminder_text, requires_moderation, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, s.StepID, s.TaskID, s.Position, s.Title, s.Kind, s.Instruction, s.Config, s.TimeoutMinutes, s.ReminderMinutes, s.ReminderText, s.RequiresModeration, s.CreatedAt)
	return err
}

func (r *StepRepository) GetByID(ctx context.Context, stepID uuid.UUID) (*task.Step, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+stepColumns+` FROM task_steps WHERE step_id=$1`, stepID)
	return scanStep(row)
}

func (r *StepRepository) GetByPosition(ctx context.Context, taskID uuid.UUID, position int) (*task.Step, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+stepColumns+` FROM task_steps WHERE task_id=$1 AND position=$2`, taskID, position)
	return scanStep(row)
}

func (r *StepRepository) NextAfter(ctx context.Context, taskID uuid.UUID, position int) (*task.Step, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+stepColumns+` FROM task_steps WHERE task_id=$1 AND position>$2 ORDER BY position LIMIT 1
	`, taskID, position)
	return scanStep(row)
}

func (r *StepRepository) First(ctx context.Context, taskID uuid.UUID) (*task.Step, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+stepColumns+` FROM task_steps WHERE task_id=$1 ORDER BY position LIMIT 1
	`, taskID)
	return scanStep(row)
}

func (r *StepRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*task.Step, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+stepColumns+` FROM task_steps WHERE task_id=$1 ORDER BY position`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var steps []*task.Step
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func (r *StepRepository) CountByTask(ctx context.Context, taskID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM task_steps WHERE task_id=$1`, taskID).Scan(&n)
	return n, err
}

func scanStep(row pgx.Row) (*task.Step, error) {
	var s task.Step
	var config json.RawMessage
	if err := row.Scan(&s.ID, &s.StepID, &s.TaskID, &s.Position, &s.Title, &s.Kind, &s.Instruction,
		&config, &s.TimeoutMinutes, &s.ReminderMinutes, &s.ReminderText, &s.RequiresModeration, &s.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if len(config) > 0 {
		s.Config = config
	}
	return &s, nil
}
