package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/buyback-hub/buyback-hub/internal/domain/buyback"
	"github.com/buyback-hub/buyback-hub/internal/domain/catalog"
	"github.com/buyback-hub/buyback-hub/internal/domain/notify"
	"github.com/buyback-hub/buyback-hub/internal/domain/participant"
	"github.com/buyback-hub/buyback-hub/internal/domain/task"
)

// In-memory repositories backing the service tests. They mirror the
// conditional-update semantics of the SQL layer: UpdateIf compares the
// stored row, not the caller's copy.

type memBuybackRepo struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*buyback.Buyback
	soldOut bool
}

func newMemBuybackRepo() *memBuybackRepo {
	return &memBuybackRepo{items: make(map[uuid.UUID]*buyback.Buyback)}
}

func copyBuyback(b *buyback.Buyback) *buyback.Buyback {
	c := *b
	return &c
}

func (r *memBuybackRepo) CreateClaim(ctx context.Context, b *buyback.Buyback, productID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.soldOut {
		return catalog.ErrSoldOut
	}
	r.items[b.BuybackID] = copyBuyback(b)
	return nil
}

func (r *memBuybackRepo) GetByID(ctx context.Context, id uuid.UUID) (*buyback.Buyback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return copyBuyback(b), nil
}

func (r *memBuybackRepo) Update(ctx context.Context, b *buyback.Buyback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[b.BuybackID] = copyBuyback(b)
	return nil
}

func (r *memBuybackRepo) UpdateIf(ctx context.Context, b *buyback.Buyback, expectStatus buyback.Status, expectStep int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[b.BuybackID]
	if !ok || stored.Status != expectStatus || stored.CurrentStep != expectStep {
		return false, nil
	}
	r.items[b.BuybackID] = copyBuyback(b)
	return true, nil
}

func (r *memBuybackRepo) List(ctx context.Context, status *buyback.Status, limit, offset int) ([]*buyback.Buyback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*buyback.Buyback
	for _, b := range r.items {
		if status == nil || b.Status == *status {
			out = append(out, copyBuyback(b))
		}
	}
	return out, nil
}

func (r *memBuybackRepo) CountActiveByProduct(ctx context.Context, productID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.items {
		if b.Status.Active() {
			n++
		}
	}
	return n, nil
}

func (r *memBuybackRepo) CountClaimedByParticipant(ctx context.Context, participantID, productID uuid.UUID, since *time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.items {
		if b.ParticipantID != participantID {
			continue
		}
		switch b.Status {
		case buyback.StatusCancelled, buyback.StatusExpired, buyback.StatusRejected:
			continue
		}
		if since != nil && b.StartedAt.Before(*since) {
			continue
		}
		n++
	}
	return n, nil
}

func (r *memBuybackRepo) ExistsActive(ctx context.Context, participantID, taskID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.items {
		if b.ParticipantID == participantID && b.TaskID == taskID && b.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

type memResponseRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*buyback.StepResponse
	order []uuid.UUID
}

func newMemResponseRepo() *memResponseRepo {
	return &memResponseRepo{items: make(map[uuid.UUID]*buyback.StepResponse)}
}

func (r *memResponseRepo) Create(ctx context.Context, resp *buyback.StepResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *resp
	r.items[resp.ResponseID] = &c
	r.order = append(r.order, resp.ResponseID)
	return nil
}

func (r *memResponseRepo) GetByID(ctx context.Context, id uuid.UUID) (*buyback.StepResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	c := *resp
	return &c, nil
}

func (r *memResponseRepo) Decide(ctx context.Context, id uuid.UUID, target buyback.ResponseStatus, comment string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.items[id]
	if !ok || resp.Status != buyback.ResponsePending {
		return false, nil
	}
	resp.Status = target
	resp.ModeratorComment = comment
	return true, nil
}

func (r *memResponseRepo) ListPending(ctx context.Context, limit, offset int) ([]*buyback.StepResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*buyback.StepResponse
	for _, id := range r.order {
		if resp := r.items[id]; resp.Status == buyback.ResponsePending {
			c := *resp
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memResponseRepo) ListByBuyback(ctx context.Context, buybackID uuid.UUID) ([]*buyback.StepResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*buyback.StepResponse
	for _, id := range r.order {
		if resp := r.items[id]; resp.BuybackID == buybackID {
			c := *resp
			out = append(out, &c)
		}
	}
	return out, nil
}

type memMessenger struct {
	mu    sync.Mutex
	texts []string
}

func (m *memMessenger) Deliver(ctx context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, msg.Text)
	return nil
}

func (m *memMessenger) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

type memProductRepo struct {
	items map[uuid.UUID]*catalog.Product
}

func (r *memProductRepo) Create(ctx context.Context, p *catalog.Product) error { return nil }
func (r *memProductRepo) Update(ctx context.Context, p *catalog.Product) error { return nil }
func (r *memProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	return r.items[id], nil
}
func (r *memProductRepo) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*catalog.Product, error) {
	return nil, nil
}
func (r *memProductRepo) IncrementCompleted(ctx context.Context, id uuid.UUID) error {
	if p, ok := r.items[id]; ok {
		p.QuantityCompleted++
	}
	return nil
}

type memTaskRepo struct {
	items map[uuid.UUID]*task.Task
}

func (r *memTaskRepo) Create(ctx context.Context, t *task.Task) error { return nil }
func (r *memTaskRepo) Update(ctx context.Context, t *task.Task) error { return nil }
func (r *memTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	return r.items[id], nil
}
func (r *memTaskRepo) ListActive(ctx context.Context, limit, offset int) ([]*task.Task, error) {
	return nil, nil
}

type memStepRepo struct {
	steps []*task.Step
}

func (r *memStepRepo) sorted() []*task.Step {
	out := append([]*task.Step(nil), r.steps...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (r *memStepRepo) Create(ctx context.Context, s *task.Step) error { return nil }

func (r *memStepRepo) GetByID(ctx context.Context, stepID uuid.UUID) (*task.Step, error) {
	for _, s := range r.steps {
		if s.StepID == stepID {
			return s, nil
		}
	}
	return nil, nil
}

func (r *memStepRepo) GetByPosition(ctx context.Context, taskID uuid.UUID, position int) (*task.Step, error) {
	for _, s := range r.steps {
		if s.TaskID == taskID && s.Position == position {
			return s, nil
		}
	}
	return nil, nil
}

func (r *memStepRepo) NextAfter(ctx context.Context, taskID uuid.UUID, position int) (*task.Step, error) {
	for _, s := range r.sorted() {
		if s.TaskID == taskID && s.Position > position {
			return s, nil
		}
	}
	return nil, nil
}

func (r *memStepRepo) First(ctx context.Context, taskID uuid.UUID) (*task.Step, error) {
	for _, s := range r.sorted() {
		if s.TaskID == taskID {
			return s, nil
		}
	}
	return nil, nil
}

func (r *memStepRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*task.Step, error) {
	return r.sorted(), nil
}

func (r *memStepRepo) CountByTask(ctx context.Context, taskID uuid.UUID) (int, error) {
	return len(r.steps), nil
}

type memParticipantRepo struct {
	items          map[uuid.UUID]*participant.Participant
	paymentUpdates int
}

func (r *memParticipantRepo) Create(ctx context.Context, p *participant.Participant) error { return nil }
func (r *memParticipantRepo) Update(ctx context.Context, p *participant.Participant) error { return nil }
func (r *memParticipantRepo) GetByID(ctx context.Context, id uuid.UUID) (*participant.Participant, error) {
	return r.items[id], nil
}
func (r *memParticipantRepo) GetByChatID(ctx context.Context, chatID int64) (*participant.Participant, error) {
	return nil, nil
}
func (r *memParticipantRepo) UpdatePaymentDetails(ctx context.Context, id uuid.UUID, phone, bank, holder string) error {
	r.paymentUpdates++
	if p, ok := r.items[id]; ok {
		p.Phone, p.BankName, p.CardHolderName = phone, bank, holder
	}
	return nil
}
func (r *memParticipantRepo) IncrementCompleted(ctx context.Context, id uuid.UUID) error {
	if p, ok := r.items[id]; ok {
		p.TotalCompleted++
	}
	return nil
}

// fakeScheduler records arm and cancel calls.
type fakeScheduler struct {
	mu      sync.Mutex
	armed   []int
	publish []int
	cancels int
}

func (f *fakeScheduler) Arm(ctx context.Context, b *buyback.Buyback, step *task.Step, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = append(f.armed, step.Position)
	return nil
}

func (f *fakeScheduler) ArmPublishReview(ctx context.Context, b *buyback.Buyback, step *task.Step, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publish = append(f.publish, step.Position)
	return nil
}

func (f *fakeScheduler) CancelForBuyback(ctx context.Context, buybackID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}
