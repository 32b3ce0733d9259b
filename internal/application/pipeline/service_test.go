package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/buyback-hub/buyback-hub/internal/application/inventory"
	"github.com/buyback-hub/buyback-hub/internal/application/notifier"
	"github.com/buyback-hub/buyback-hub/internal/application/validation"
	"github.com/buyback-hub/buyback-hub/internal/domain/buyback"
	"github.com/buyback-hub/buyback-hub/internal/domain/catalog"
	"github.com/buyback-hub/buyback-hub/internal/domain/event"
	"github.com/buyback-hub/buyback-hub/internal/domain/participant"
	"github.com/buyback-hub/buyback-hub/internal/domain/task"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *eventRecorder) Handle(ctx context.Context, e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) kinds() []event.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *eventRecorder) last() event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return event.Event{}
	}
	return r.events[len(r.events)-1]
}

type testEnv struct {
	svc           *Service
	buybacks      *memBuybackRepo
	responses     *memResponseRepo
	products      *memProductRepo
	tasks         *memTaskRepo
	steps         *memStepRepo
	participants  *memParticipantRepo
	sched         *fakeScheduler
	recorder      *eventRecorder
	bus           *event.Bus
	taskID        uuid.UUID
	productID     uuid.UUID
	participantID uuid.UUID
}

// newTestEnv builds a three-step task: article check (auto), moderated
// text, confirmation (auto).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	taskID := uuid.New()
	productID := uuid.New()
	participantID := uuid.New()

	products := &memProductRepo{items: map[uuid.UUID]*catalog.Product{
		productID: {ProductID: productID, Article: "AB-123", QuantityTotal: 5, IsActive: true},
	}}
	tasks := &memTaskRepo{items: map[uuid.UUID]*task.Task{
		taskID: {TaskID: taskID, ProductID: productID, Title: "Buy the lamp", Payout: 500, IsActive: true},
	}}
	steps := &memStepRepo{steps: []*task.Step{
		{StepID: uuid.New(), TaskID: taskID, Position: 1, Kind: task.KindArticleCheck},
		{StepID: uuid.New(), TaskID: taskID, Position: 2, Kind: task.KindTextModerated},
		{StepID: uuid.New(), TaskID: taskID, Position: 3, Kind: task.KindConfirm},
	}}
	participants := &memParticipantRepo{items: map[uuid.UUID]*participant.Participant{
		participantID: {ParticipantID: participantID, ChatID: 1},
	}}
	buybacks := newMemBuybackRepo()
	responses := newMemResponseRepo()
	sched := &fakeScheduler{}
	recorder := &eventRecorder{}

	bus := event.NewBus()
	bus.SubscribeAll(recorder,
		event.KindClaimed, event.KindStepAdvanced, event.KindSentToModeration,
		event.KindResponseRejected, event.KindAllStepsCompleted,
		event.KindApproved, event.KindRejected, event.KindCancelled, event.KindExpired,
	)

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	inventorySvc := inventory.NewService(products, buybacks, logger)
	svc := NewService(buybacks, responses, products, tasks, steps, participants, inventorySvc, sched, bus, logger)

	return &testEnv{
		svc:           svc,
		buybacks:      buybacks,
		responses:     responses,
		products:      products,
		tasks:         tasks,
		steps:         steps,
		participants:  participants,
		sched:         sched,
		recorder:      recorder,
		bus:           bus,
		taskID:        taskID,
		productID:     productID,
		participantID: participantID,
	}
}

func (env *testEnv) claim(t *testing.T) *buyback.Buyback {
	t.Helper()
	b, _, err := env.svc.Claim(context.Background(), env.taskID, env.participantID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	return b
}

func (env *testEnv) toModeration(t *testing.T, b *buyback.Buyback) *buyback.StepResponse {
	t.Helper()
	ctx := context.Background()
	if _, err := env.svc.SubmitResponse(ctx, b.BuybackID, validation.Input{Text: "AB-123"}); err != nil {
		t.Fatalf("submit article: %v", err)
	}
	if _, err := env.svc.SubmitResponse(ctx, b.BuybackID, validation.Input{Text: "a long enough review text"}); err != nil {
		t.Fatalf("submit text: %v", err)
	}
	pending, _ := env.responses.ListPending(ctx, 10, 0)
	if len(pending) != 1 {
		t.Fatalf("expected one pending response, got %d", len(pending))
	}
	return pending[0]
}

func TestClaimStartsOnFirstStep(t *testing.T) {
	env := newTestEnv(t)
	b, step, err := env.svc.Claim(context.Background(), env.taskID, env.participantID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if b.Status != buyback.StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", b.Status)
	}
	if step.Position != 1 || b.CurrentStep != 1 {
		t.Fatalf("expected first step, got step=%d buyback=%d", step.Position, b.CurrentStep)
	}
	if b.StepStartedAt == nil {
		t.Fatal("expected step clock started")
	}
	if len(env.sched.armed) != 1 || env.sched.armed[0] != 1 {
		t.Fatalf("expected timers armed for step 1, got %v", env.sched.armed)
	}
	if kinds := env.recorder.kinds(); len(kinds) != 1 || kinds[0] != event.KindClaimed {
		t.Fatalf("expected CLAIMED event, got %v", kinds)
	}
}

func TestClaimRefusedWhileActiveExists(t *testing.T) {
	env := newTestEnv(t)
	env.claim(t)
	_, _, err := env.svc.Claim(context.Background(), env.taskID, env.participantID)
	if !errors.Is(err, buyback.ErrActiveExists) {
		t.Fatalf("expected ErrActiveExists, got %v", err)
	}
}

func TestClaimRefusedWhenSoldOut(t *testing.T) {
	env := newTestEnv(t)
	env.products.items[env.productID].QuantityTotal = 0
	_, _, err := env.svc.Claim(context.Background(), env.taskID, env.participantID)
	var refusal *RefusalError
	if !errors.As(err, &refusal) {
		t.Fatalf("expected refusal, got %v", err)
	}
}

func TestSubmitAbortsWhenTaskVanished(t *testing.T) {
	env := newTestEnv(t)
	b := env.claim(t)
	delete(env.tasks.items, env.taskID)
	if _, err := env.svc.SubmitResponse(context.Background(), b.BuybackID, validation.Input{Text: "AB-123"}); err == nil {
		t.Fatal("expected an error when the task row is gone")
	}
	got, _ := env.buybacks.GetByID(context.Background(), b.BuybackID)
	if got.Status != buyback.StatusInProgress || got.CurrentStep != 1 {
		t.Fatalf("expected buyback untouched, got %s step %d", got.Status, got.CurrentStep)
	}
}

func TestClaimRaceLosesToReservation(t *testing.T) {
	env := newTestEnv(t)
	// The eligibility pre-check passes but the claim transaction finds
	// the last unit gone.
	env.buybacks.soldOut = true
	_, _, err := env.svc.Claim(context.Background(), env.taskID, env.participantID)
	var refusal *RefusalError
	if !errors.As(err, &refusal) {
		t.Fatalf("expected refusal from claim transaction, got %v", err)
	}
}

func TestSubmitAdvancesOnAcceptedAutoStep(t *testing.T) {
	env := newTestEnv(t)
	b := env.claim(t)

	res, err := env.svc.SubmitResponse(context.Background(), b.BuybackID, validation.Input{Text: "AB-123"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Outcome.Accepted {
		t.Fatalf("expected accepted, got %q", res.Outcome.ErrorMessage)
	}
	if res.NextStep == nil || res.NextStep.Position != 2 {
		t.Fatalf("expected advance to step 2, got %+v", res.NextStep)
	}
	stored, _ := env.buybacks.GetByID(context.Background(), b.BuybackID)
	if stored.CurrentStep != 2 || stored.Status != buyback.StatusInProgress {
		t.Fatalf("expected stored step 2 in progress, got %d %s", stored.CurrentStep, stored.Status)
	}
	if env.recorder.last().Kind != event.KindStepAdvanced {
		t.Fatalf("expected STEP_ADVANCED, got %s", env.recorder.last().Kind)
	}
}

func TestSubmitRejectedInputKeepsState(t *testing.T) {
	env := newTestEnv(t)
	b := env.claim(t)

	res, err := env.svc.SubmitResponse(context.Background(), b.BuybackID, validation.Input{Text: "WRONG"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Outcome.Accepted {
		t.Fatal("expected validation failure")
	}
	stored, _ := env.buybacks.GetByID(context.Background(), b.BuybackID)
	if stored.CurrentStep != 1 || stored.Status != buyback.StatusInProgress {
		t.Fatalf("failed input must not move state, got %d %s", stored.CurrentStep, stored.Status)
	}
	all, _ := env.responses.ListByBuyback(context.Background(), b.BuybackID)
	if len(all) != 0 {
		t.Fatalf("failed input must not persist a response, got %d", len(all))
	}
}

func TestSubmitModeratedStepParksBuyback(t *testing.T) {
	env := newTestEnv(t)
	b := env.claim(t)
	env.toModeration(t, b)

	stored, _ := env.buybacks.GetByID(context.Background(), b.BuybackID)
	if stored.Status != buyback.StatusOnModeration {
		t.Fatalf("expected ON_MODERATION, got %s", stored.Status)
	}
	if stored.CurrentStep != 2 {
		t.Fatalf("expected step 2 held, got %d", stored.CurrentStep)
	}
	// One arm per entered step, plus a cancel when parked.
	if env.sched.cancels == 0 {
		t.Fatal("expected step timers cancelled while on moderation")
	}
	// Further submissions are refused while parked.
	_, err := env.svc.SubmitResponse(context.Background(), b.BuybackID, validation.Input{Text: "more"})
	if !errors.Is(err, ErrAwaitingReview) {
		t.Fatalf("expected ErrAwaitingReview, got %v", err)
	}
}

func TestModerateRejectRewindsSameStep(t *testing.T) {
	env := newTestEnv(t)
	b := env.claim(t)
	resp := env.toModeration(t, b)

	before, _ := env.buybacks.GetByID(context.Background(), b.BuybackID)
	time.Sleep(5 * time.Millisecond)

	if err := env.svc.Moderate(context.Background(), resp.ResponseID, false, "photo is blurry", nil); err != nil {
		t.Fatalf("moderate: %v", err)
	}
	stored, _ := env.buybacks.GetByID(context.Background(), b.BuybackID)
	if stored.Status != buyback.StatusInProgress || stored.CurrentStep != 2 {
		t.Fatalf("expected rewind to step 2 in progress, got %d %s", stored.CurrentStep, stored.Status)
	}
	if !stored.StepStartedAt.After(*before.StepStartedAt) {
		t.Fatal("expected step clock reset on rejection")
	}
	last := env.recorder.last()
	if last.Kind != event.KindResponseRejected || last.Comment != "photo is blurry" {
		t.Fatalf("expected RESPONSE_REJECTED with comment, got %+v", last)
	}
	decided, _ := env.responses.GetByID(context.Background(), resp.ResponseID)
	if decided.Status != buyback.ResponseRejected {
		t.Fatalf("expected response rejected, got %s", decided.Status)
	}
}

func TestModerateApproveAdvances(t *testing.T) {
	env := newTestEnv(t)
	b := env.claim(t)
	resp := env.toModeration(t, b)

	if err := env.svc.Moderate(context.Background(), resp.ResponseID, true, "", nil); err != nil {
		t.Fatalf("moderate: %v", err)
	}
	stored, _ := env.buybacks.GetByID(context.Background(), b.BuybackID)
	if stored.Status != buyback.StatusInProgress || stored.CurrentStep != 3 {
		t.Fatalf("expected advance to step 3, got %d %s", stored.CurrentStep, stored.Status)
	}
}

func TestModerateApprovePromptsNextStep(t *testing.T) {
	env := newTestEnv(t)
	messenger := &memMessenger{}
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	notifier.New(env.participants, env.tasks, env.steps, env.buybacks, messenger, logger).Register(env.bus)

	b := env.claim(t)
	resp := env.toModeration(t, b)

	before := len(messenger.sent())
	if err := env.svc.Moderate(context.Background(), resp.ResponseID, true, "", nil); err != nil {
		t.Fatalf("moderate: %v", err)
	}
	sent := messenger.sent()[before:]
	if len(sent) == 0 {
		t.Fatal("expected a participant message after approval advanced the buyback")
	}
	prompted := false
	for _, text := range sent {
		if strings.Contains(text, "Next step: Confirmation") {
			prompted = true
		}
	}
	if !prompted {
		t.Fatalf("expected a next-step prompt, got %v", sent)
	}
}

func TestModerateDoubleDecideConflicts(t *testing.T) {
	env := newTestEnv(t)
	b := env.claim(t)
	resp := env.toModeration(t, b)

	if err := env.svc.Moderate(context.Background(), resp.ResponseID, true, "", nil); err != nil {
		t.Fatalf("first decide: %v", err)
	}
	err := env.svc.Moderate(context.Background(), resp.ResponseID, false, "changed my mind", nil)
	if !errors.Is(err, buyback.ErrDecisionConflict) {
		t.Fatalf("expected ErrDecisionConflict, got %v", err)
	}
	// The first decision's advance stands.
	stored, _ := env.buybacks.GetByID(context.Background(), b.BuybackID)
	if stored.CurrentStep != 3 {
		t.Fatalf("expected step 3 untouched, got %d", stored.CurrentStep)
	}
}

func TestModerateStaleDecisionDiscarded(t *testing.T) {
	env := newTestEnv(t)
	b := env.claim(t)
	// A pending response left over from a step the buyback is no longer
	// on (e.g. an operator raced a rewind).
	stale := &buyback.StepResponse{
		ResponseID:   uuid.New(),
		BuybackID:    b.BuybackID,
		StepPosition: 2,
		Status:       buyback.ResponsePending,
		CreatedAt:    time.Now(),
	}
	_ = env.responses.Create(context.Background(), stale)

	err := env.svc.Moderate(context.Background(), stale.ResponseID, true, "", nil)
	if !errors.Is(err, buyback.ErrStaleDecision) {
		t.Fatalf("expected ErrStaleDecision, got %v", err)
	}
	stored, _ := env.buybacks.GetByID(context.Background(), b.BuybackID)
	if stored.CurrentStep != 1 || stored.Status != buyback.StatusInProgress {
		t.Fatalf("stale decision must not move the buyback, got %d %s", stored.CurrentStep, stored.Status)
	}
}

func TestAllStepsCompletedEntersPendingReview(t *testing.T) {
	env := newTestEnv(t)
	b := env.claim(t)
	resp := env.toModeration(t, b)
	if err := env.svc.Moderate(context.Background(), resp.ResponseID, true, "", nil); err != nil {
		t.Fatalf("moderate: %v", err)
	}

	res, err := env.svc.SubmitResponse(context.Background(), b.BuybackID, validation.Input{})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !res.Completed {
		t.Fatal("expected completion after last step")
	}
	stored, _ := env.buybacks.GetByID(context.Background(), b.BuybackID)
	if stored.Status != buyback.StatusPendingReview {
		t.Fatalf("expected PENDING_REVIEW, got %s", stored.Status)
	}
	if stored.CompletedAt == nil {
		t.Fatal("expected completion timestamp")
	}
	if env.recorder.last().Kind != event.KindAllStepsCompleted {
		t.Fatalf("expected ALL_STEPS_COMPLETED, got %s", env.recorder.last().Kind)
	}
}

func TestFinalizeApproveIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	b := env.claim(t)
	resp := env.toModeration(t, b)
	_ = env.svc.Moderate(context.Background(), resp.ResponseID, true, "", nil)
	if _, err := env.svc.SubmitResponse(context.Background(), b.BuybackID, validation.Input{}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if err := env.svc.Finalize(context.Background(), b.BuybackID, true, ""); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	stored, _ := env.buybacks.GetByID(context.Background(), b.BuybackID)
	if stored.Status != buyback.StatusApproved {
		t.Fatalf("expected APPROVED, got %s", stored.Status)
	}
	if env.recorder.last().Kind != event.KindApproved {
		t.Fatalf("expected APPROVED event, got %s", env.recorder.last().Kind)
	}

	err := env.svc.Finalize(context.Background(), b.BuybackID, true, "")
	if !errors.Is(err, buyback.ErrTerminal) {
		t.Fatalf("expected ErrTerminal on repeat, got %v", err)
	}
}

func TestCancelOnlyWhileInProgress(t *testing.T) {
	env := newTestEnv(t)
	b := env.claim(t)
	env.toModeration(t, b)

	err := env.svc.Cancel(context.Background(), b.BuybackID)
	if !errors.Is(err, buyback.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition while on moderation, got %v", err)
	}
}

func TestCancelReleasesBuyback(t *testing.T) {
	env := newTestEnv(t)
	b := env.claim(t)

	if err := env.svc.Cancel(context.Background(), b.BuybackID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	stored, _ := env.buybacks.GetByID(context.Background(), b.BuybackID)
	if stored.Status != buyback.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", stored.Status)
	}
	// The unit is free again: a fresh claim succeeds.
	if _, _, err := env.svc.Claim(context.Background(), env.taskID, env.participantID); err != nil {
		t.Fatalf("expected re-claim after cancel, got %v", err)
	}
}

func TestExpireStaleFireIsNoop(t *testing.T) {
	env := newTestEnv(t)
	b := env.claim(t)
	if _, err := env.svc.SubmitResponse(context.Background(), b.BuybackID, validation.Input{Text: "AB-123"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Timeout armed for step 1 fires after the user already advanced.
	if err := env.svc.Expire(context.Background(), b.BuybackID, 1); err != nil {
		t.Fatalf("expire: %v", err)
	}
	stored, _ := env.buybacks.GetByID(context.Background(), b.BuybackID)
	if stored.Status != buyback.StatusInProgress || stored.CurrentStep != 2 {
		t.Fatalf("stale expire must not fire, got %d %s", stored.CurrentStep, stored.Status)
	}
}

func TestExpireOnMatchingStep(t *testing.T) {
	env := newTestEnv(t)
	b := env.claim(t)

	if err := env.svc.Expire(context.Background(), b.BuybackID, 1); err != nil {
		t.Fatalf("expire: %v", err)
	}
	stored, _ := env.buybacks.GetByID(context.Background(), b.BuybackID)
	if stored.Status != buyback.StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", stored.Status)
	}
	if env.recorder.last().Kind != event.KindExpired {
		t.Fatalf("expected EXPIRED event, got %s", env.recorder.last().Kind)
	}
}

func TestPaymentDetailsSavedOnAutoStep(t *testing.T) {
	env := newTestEnv(t)
	// A separate task whose first step collects payment details.
	taskID := uuid.New()
	productID := env.productID
	steps := &memStepRepo{steps: []*task.Step{
		{StepID: uuid.New(), TaskID: taskID, Position: 1, Kind: task.KindPaymentDetails},
		{StepID: uuid.New(), TaskID: taskID, Position: 2, Kind: task.KindConfirm},
	}}
	tasks := &memTaskRepo{items: map[uuid.UUID]*task.Task{
		taskID: {TaskID: taskID, ProductID: productID, Title: "Payment task", IsActive: true},
	}}
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	inventorySvc := inventory.NewService(env.products, env.buybacks, logger)
	svc := NewService(env.buybacks, env.responses, env.products, tasks, steps, env.participants, inventorySvc, env.sched, event.NewBus(), logger)

	b, _, err := svc.Claim(context.Background(), taskID, env.participantID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	in := validation.Input{Payment: &validation.PaymentInput{Phone: "+7", BankName: "Bank", CardHolderName: "Ivan"}}
	if _, err := svc.SubmitResponse(context.Background(), b.BuybackID, in); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if env.participants.paymentUpdates != 1 {
		t.Fatalf("expected one payment update, got %d", env.participants.paymentUpdates)
	}
	p := env.participants.items[env.participantID]
	if !p.HasPaymentDetails() {
		t.Fatal("expected payment details on file")
	}
}
