package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/buyback-hub/buyback-hub/internal/domain/buyback"
	"github.com/buyback-hub/buyback-hub/internal/domain/participant"
	"github.com/buyback-hub/buyback-hub/internal/domain/reminder"
	"github.com/buyback-hub/buyback-hub/internal/domain/task"
)

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*reminder.Job
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[uuid.UUID]*reminder.Job)}
}

func (r *memJobRepo) Create(ctx context.Context, j *reminder.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *j
	r.jobs[j.JobID] = &c
	return nil
}

func (r *memJobRepo) CreateBatch(ctx context.Context, jobs []*reminder.Job) error {
	for _, j := range jobs {
		if err := r.Create(ctx, j); err != nil {
			return err
		}
	}
	return nil
}

func (r *memJobRepo) GetByID(ctx context.Context, jobID uuid.UUID) (*reminder.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil, nil
	}
	c := *j
	return &c, nil
}

func (r *memJobRepo) MarkSent(ctx context.Context, jobID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok {
		now := time.Now()
		j.SentAt = &now
	}
	return nil
}

func (r *memJobRepo) MarkSentWithCount(ctx context.Context, jobID uuid.UUID, overdueCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok {
		now := time.Now()
		j.SentAt = &now
		j.OverdueCount = overdueCount
	}
	return nil
}

func (r *memJobRepo) Cancel(ctx context.Context, jobID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok {
		j.IsCancelled = true
	}
	return nil
}

func (r *memJobRepo) CancelForBuyback(ctx context.Context, buybackID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for _, j := range r.jobs {
		if j.BuybackID == buybackID && j.Pending() {
			j.IsCancelled = true
			ids = append(ids, j.JobID)
		}
	}
	return ids, nil
}

func (r *memJobRepo) ListPending(ctx context.Context, limit int) ([]*reminder.Job, error) {
	out := r.pending()
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memJobRepo) pending() []*reminder.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*reminder.Job
	for _, j := range r.jobs {
		if j.Pending() {
			c := *j
			out = append(out, &c)
		}
	}
	return out
}

type stubBuybackRepo struct {
	mu sync.Mutex
	b  *buyback.Buyback
}

func (r *stubBuybackRepo) get() *buyback.Buyback {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *r.b
	return &c
}

func (r *stubBuybackRepo) set(mutate func(*buyback.Buyback)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mutate(r.b)
}

func (r *stubBuybackRepo) CreateClaim(ctx context.Context, b *buyback.Buyback, productID uuid.UUID) error {
	return nil
}

func (r *stubBuybackRepo) GetByID(ctx context.Context, id uuid.UUID) (*buyback.Buyback, error) {
	if r.b == nil || r.b.BuybackID != id {
		return nil, nil
	}
	return r.get(), nil
}

func (r *stubBuybackRepo) Update(ctx context.Context, b *buyback.Buyback) error { return nil }

func (r *stubBuybackRepo) UpdateIf(ctx context.Context, b *buyback.Buyback, expectStatus buyback.Status, expectStep int) (bool, error) {
	return true, nil
}

func (r *stubBuybackRepo) List(ctx context.Context, status *buyback.Status, limit, offset int) ([]*buyback.Buyback, error) {
	return nil, nil
}

func (r *stubBuybackRepo) CountActiveByProduct(ctx context.Context, productID uuid.UUID) (int, error) {
	return 0, nil
}

func (r *stubBuybackRepo) CountClaimedByParticipant(ctx context.Context, participantID, productID uuid.UUID, since *time.Time) (int, error) {
	return 0, nil
}

func (r *stubBuybackRepo) ExistsActive(ctx context.Context, participantID, taskID uuid.UUID) (bool, error) {
	return false, nil
}

type stubTaskRepo struct {
	t *task.Task
}

func (r *stubTaskRepo) Create(ctx context.Context, t *task.Task) error { return nil }
func (r *stubTaskRepo) Update(ctx context.Context, t *task.Task) error { return nil }
func (r *stubTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	return r.t, nil
}
func (r *stubTaskRepo) ListActive(ctx context.Context, limit, offset int) ([]*task.Task, error) {
	return nil, nil
}

type stubStepRepo struct {
	steps []*task.Step
}

func (r *stubStepRepo) Create(ctx context.Context, s *task.Step) error { return nil }
func (r *stubStepRepo) GetByID(ctx context.Context, stepID uuid.UUID) (*task.Step, error) {
	for _, s := range r.steps {
		if s.StepID == stepID {
			return s, nil
		}
	}
	return nil, nil
}
func (r *stubStepRepo) GetByPosition(ctx context.Context, taskID uuid.UUID, position int) (*task.Step, error) {
	for _, s := range r.steps {
		if s.Position == position {
			return s, nil
		}
	}
	return nil, nil
}
func (r *stubStepRepo) NextAfter(ctx context.Context, taskID uuid.UUID, position int) (*task.Step, error) {
	return nil, nil
}
func (r *stubStepRepo) First(ctx context.Context, taskID uuid.UUID) (*task.Step, error) {
	if len(r.steps) == 0 {
		return nil, nil
	}
	return r.steps[0], nil
}
func (r *stubStepRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*task.Step, error) {
	return r.steps, nil
}
func (r *stubStepRepo) CountByTask(ctx context.Context, taskID uuid.UUID) (int, error) {
	return len(r.steps), nil
}

type stubParticipantRepo struct {
	p *participant.Participant
}

func (r *stubParticipantRepo) Create(ctx context.Context, p *participant.Participant) error {
	return nil
}
func (r *stubParticipantRepo) Update(ctx context.Context, p *participant.Participant) error {
	return nil
}
func (r *stubParticipantRepo) GetByID(ctx context.Context, id uuid.UUID) (*participant.Participant, error) {
	return r.p, nil
}
func (r *stubParticipantRepo) GetByChatID(ctx context.Context, chatID int64) (*participant.Participant, error) {
	return r.p, nil
}
func (r *stubParticipantRepo) UpdatePaymentDetails(ctx context.Context, id uuid.UUID, phone, bank, holder string) error {
	return nil
}
func (r *stubParticipantRepo) IncrementCompleted(ctx context.Context, id uuid.UUID) error {
	return nil
}

type fakeExpirer struct {
	mu    sync.Mutex
	calls []int
	err   error
}

func (f *fakeExpirer) Expire(ctx context.Context, buybackID uuid.UUID, stepPosition int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, stepPosition)
	return f.err
}
