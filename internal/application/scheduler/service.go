package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/buyback-hub/buyback-hub/internal/domain/buyback"
	"github.com/buyback-hub/buyback-hub/internal/domain/notify"
	"github.com/buyback-hub/buyback-hub/internal/domain/participant"
	"github.com/buyback-hub/buyback-hub/internal/domain/reminder"
	"github.com/buyback-hub/buyback-hub/internal/domain/task"
	"github.com/buyback-hub/buyback-hub/internal/telemetry"
)

// overdueInterval separates repeats of the overdue notice.
const overdueInterval = 2 * time.Hour

// preDeadlineOffsets are the fixed reminder offsets before a scheduled
// publication, paired with their job kinds.
var preDeadlineOffsets = []struct {
	kind   reminder.Kind
	offset time.Duration
}{
	{reminder.KindBefore3H, 3 * time.Hour},
	{reminder.KindBefore2H, 2 * time.Hour},
	{reminder.KindBefore1H, time.Hour},
	{reminder.KindBefore5M, 5 * time.Minute},
}

// Index is the time-ordered wake index over pending job IDs.
type Index interface {
	Add(ctx context.Context, jobID string, at time.Time) error
	Remove(ctx context.Context, jobIDs ...string) error
	PopDue(ctx context.Context, now time.Time, limit int64) ([]string, error)
}

// Expirer applies the step-timeout transition. Satisfied by the
// pipeline service; injected after construction because the pipeline
// also arms this scheduler.
type Expirer interface {
	Expire(ctx context.Context, buybackID uuid.UUID, stepPosition int) error
}

// Service owns reminder and timeout jobs keyed by (buyback, kind).
// Cancellation is soft, so every fire re-validates instance state.
type Service struct {
	jobRepo         reminder.Repository
	buybackRepo     buyback.Repository
	taskRepo        task.Repository
	stepRepo        task.StepRepository
	participantRepo participant.Repository
	index           Index
	messenger       notify.Messenger
	expirer         Expirer
	publishLoc      *time.Location
	logger          zerolog.Logger
}

func NewService(
	jobRepo reminder.Repository,
	buybackRepo buyback.Repository,
	taskRepo task.Repository,
	stepRepo task.StepRepository,
	participantRepo participant.Repository,
	index Index,
	messenger notify.Messenger,
	publishLoc *time.Location,
	logger zerolog.Logger,
) *Service {
	if publishLoc == nil {
		publishLoc = time.UTC
	}
	return &Service{
		jobRepo:         jobRepo,
		buybackRepo:     buybackRepo,
		taskRepo:        taskRepo,
		stepRepo:        stepRepo,
		participantRepo: participantRepo,
		index:           index,
		messenger:       messenger,
		publishLoc:      publishLoc,
		logger:          logger.With().Str("service", "scheduler").Logger(),
	}
}

// SetExpirer wires the timeout transition target.
func (s *Service) SetExpirer(e Expirer) {
	s.expirer = e
}

// Arm schedules the reminder and expiry jobs for a step the buyback
// just entered. Steps awaiting moderation carry no timers. Re-arming
// is idempotent: existing jobs are cancelled first.
func (s *Service) Arm(ctx context.Context, b *buyback.Buyback, step *task.Step, now time.Time) error {
	if err := s.CancelForBuyback(ctx, b.BuybackID); err != nil {
		return err
	}
	if step.Moderated() {
		return nil
	}

	start := now
	if b.StepStartedAt != nil {
		start = *b.StepStartedAt
	}

	var jobs []*reminder.Job
	if step.ReminderMinutes != nil && *step.ReminderMinutes > 0 {
		jobs = append(jobs, s.newJob(b, step, reminder.KindStepReminder,
			start.Add(time.Duration(*step.ReminderMinutes)*time.Minute), now))
	}
	if step.TimeoutMinutes != nil && *step.TimeoutMinutes > 0 {
		jobs = append(jobs, s.newJob(b, step, reminder.KindStepTimeout,
			start.Add(time.Duration(*step.TimeoutMinutes)*time.Minute), now))
	}
	return s.store(ctx, jobs)
}

// ArmPublishReview creates the long-horizon reminder set for the
// review publication step: fixed pre-deadline nudges plus the first
// overdue notice shortly after the deadline.
func (s *Service) ArmPublishReview(ctx context.Context, b *buyback.Buyback, step *task.Step, now time.Time) error {
	if err := s.CancelForBuyback(ctx, b.BuybackID); err != nil {
		return err
	}

	publishAt, ok, err := s.publishDeadline(b, step, now)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var jobs []*reminder.Job
	for _, pd := range preDeadlineOffsets {
		at := publishAt.Add(-pd.offset)
		if at.After(now) {
			jobs = append(jobs, s.newJob(b, step, pd.kind, at, now))
		}
	}
	jobs = append(jobs, s.newJob(b, step, reminder.KindOverdue, publishAt.Add(5*time.Minute), now))
	return s.store(ctx, jobs)
}

// PublishDeadline resolves the effective publication time for display.
func (s *Service) PublishDeadline(b *buyback.Buyback, step *task.Step, now time.Time) (time.Time, bool, error) {
	return s.publishDeadline(b, step, now)
}

// publishDeadline prefers a per-buyback override, then the step's
// configured local time on the next occurrence (today or tomorrow).
func (s *Service) publishDeadline(b *buyback.Buyback, step *task.Step, now time.Time) (time.Time, bool, error) {
	if b.CustomPublishAt != nil {
		return *b.CustomPublishAt, true, nil
	}
	cfg, err := step.DecodeConfig()
	if err != nil {
		return time.Time{}, false, err
	}
	pc, ok := cfg.(task.PublishConfig)
	if !ok || pc.PublishAt == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse("15:04", pc.PublishAt)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("bad publish time %q: %w", pc.PublishAt, err)
	}
	local := now.In(s.publishLoc)
	at := time.Date(local.Year(), local.Month(), local.Day(), t.Hour(), t.Minute(), 0, 0, s.publishLoc)
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, true, nil
}

// CancelForBuyback soft-cancels all unfired jobs of the buyback and
// drops them from the wake index.
func (s *Service) CancelForBuyback(ctx context.Context, buybackID uuid.UUID) error {
	ids, err := s.jobRepo.CancelForBuyback(ctx, buybackID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	return s.index.Remove(ctx, keys...)
}

// ResyncIndex re-seeds the wake index from the pending job rows. The
// rows are the ledger; a flushed or restarted redis loses only wake
// times, and this sweep restores them. Re-adding an already indexed
// job just refreshes its score, so the sweep is safe to run anytime.
func (s *Service) ResyncIndex(ctx context.Context, limit int) (int, error) {
	jobs, err := s.jobRepo.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, j := range jobs {
		if err := s.index.Add(ctx, j.JobID.String(), j.ScheduledAt); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// ProcessDue fires every job due at or before now. Each fire
// re-validates that the buyback is still in progress on the job's step;
// stale jobs are cancelled without visible effect.
func (s *Service) ProcessDue(ctx context.Context, now time.Time, limit int64) (int, error) {
	ids, err := s.index.PopDue(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	fired := 0
	for _, id := range ids {
		jobID, err := uuid.Parse(id)
		if err != nil {
			s.logger.Warn().Str("job_id", id).Msg("unparseable job id in wake index")
			continue
		}
		if err := s.fire(ctx, jobID, now); err != nil {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("job fire failed")
			continue
		}
		fired++
	}
	return fired, nil
}

func (s *Service) fire(ctx context.Context, jobID uuid.UUID, now time.Time) error {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil || !job.Pending() {
		return nil
	}

	b, err := s.buybackRepo.GetByID(ctx, job.BuybackID)
	if err != nil {
		return err
	}
	// Stale fire: the buyback moved on while the job slept.
	if b == nil || b.Status != buyback.StatusInProgress || b.CurrentStep != job.StepPosition {
		return s.jobRepo.Cancel(ctx, jobID)
	}

	if job.Kind == reminder.KindStepTimeout {
		// Expire first, book-keep after: a failed expiry leaves the job
		// pending so the resync sweep re-queues it. A retried fire is
		// benign thanks to the precondition re-check above.
		if err := s.expirer.Expire(ctx, b.BuybackID, job.StepPosition); err != nil {
			return err
		}
		telemetry.Expirations.Inc()
		return s.jobRepo.MarkSent(ctx, jobID)
	}

	step, err := s.stepRepo.GetByID(ctx, job.StepID)
	if err != nil {
		return err
	}
	if step == nil {
		return s.jobRepo.Cancel(ctx, jobID)
	}

	if job.Kind == reminder.KindOverdue && job.OverdueCount >= reminder.MaxOverdueNotices {
		return s.jobRepo.Cancel(ctx, jobID)
	}

	text, err := s.renderReminder(ctx, b, step, job, now)
	if err != nil {
		return err
	}
	s.deliver(ctx, b, text)
	telemetry.RemindersSent.Inc()

	if job.Kind != reminder.KindOverdue {
		return s.jobRepo.MarkSent(ctx, jobID)
	}

	count := job.OverdueCount + 1
	if err := s.jobRepo.MarkSentWithCount(ctx, jobID, count); err != nil {
		return err
	}
	if count >= reminder.MaxOverdueNotices {
		return nil
	}
	next := s.newJob(b, step, reminder.KindOverdue, now.Add(overdueInterval), now)
	next.OverdueCount = count
	return s.store(ctx, []*reminder.Job{next})
}

// deliver sends the reminder best-effort. A failed send is logged; the
// job bookkeeping proceeds as if delivered.
func (s *Service) deliver(ctx context.Context, b *buyback.Buyback, text string) {
	p, err := s.participantRepo.GetByID(ctx, b.ParticipantID)
	if err != nil || p == nil {
		s.logger.Warn().Err(err).Str("buyback_id", b.BuybackID.String()).Msg("participant lookup failed for reminder")
		return
	}
	if err := s.messenger.Deliver(ctx, notify.Message{ChatID: p.ChatID, Text: text}); err != nil {
		s.logger.Warn().Err(err).Int64("chat_id", p.ChatID).Msg("reminder delivery failed")
	}
}

func (s *Service) renderReminder(ctx context.Context, b *buyback.Buyback, step *task.Step, job *reminder.Job, now time.Time) (string, error) {
	t, err := s.taskRepo.GetByID(ctx, b.TaskID)
	if err != nil {
		return "", err
	}
	title := ""
	if t != nil {
		title = t.Title
	}

	switch job.Kind {
	case reminder.KindStepReminder:
		return s.renderStepReminder(b, step, title, now), nil
	case reminder.KindBefore3H:
		return fmt.Sprintf("Reminder: publish your review in 3 hours (task %q).", title), nil
	case reminder.KindBefore2H:
		return fmt.Sprintf("Reminder: publish your review in 2 hours (task %q).", title), nil
	case reminder.KindBefore1H:
		return fmt.Sprintf("Reminder: your review is due in 1 hour (task %q).", title), nil
	case reminder.KindBefore5M:
		return "You can publish your review in 5 minutes!", nil
	case reminder.KindOverdue:
		return "Your review is overdue. Publish it now and send a screenshot of the published review.", nil
	default:
		return "", fmt.Errorf("unknown reminder kind: %s", job.Kind)
	}
}

// renderStepReminder fills the step's reminder template, or falls back
// to a generic nudge. Template variables: {remaining_time},
// {task_title}, {step_title}.
func (s *Service) renderStepReminder(b *buyback.Buyback, step *task.Step, taskTitle string, now time.Time) string {
	remaining := ""
	if step.TimeoutMinutes != nil && b.StepStartedAt != nil {
		deadline := b.StepStartedAt.Add(time.Duration(*step.TimeoutMinutes) * time.Minute)
		left := int(deadline.Sub(now).Minutes())
		if left > 0 {
			remaining = formatRemaining(left)
		}
	}
	if step.ReminderText != "" {
		return strings.NewReplacer(
			"{remaining_time}", remaining,
			"{task_title}", taskTitle,
			"{step_title}", step.DisplayTitle(),
		).Replace(step.ReminderText)
	}
	text := fmt.Sprintf("Reminder: you have an unfinished step in task %q.", taskTitle)
	if remaining != "" {
		text += fmt.Sprintf(" Time left: %s.", remaining)
	}
	return text
}

func formatRemaining(minutes int) string {
	if minutes >= 60 {
		h, m := minutes/60, minutes%60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh %dmin", h, m)
	}
	return fmt.Sprintf("%dmin", minutes)
}

func (s *Service) newJob(b *buyback.Buyback, step *task.Step, kind reminder.Kind, at, now time.Time) *reminder.Job {
	return &reminder.Job{
		JobID:        uuid.New(),
		BuybackID:    b.BuybackID,
		StepID:       step.StepID,
		StepPosition: step.Position,
		Kind:         kind,
		ScheduledAt:  at,
		CreatedAt:    now,
	}
}

func (s *Service) store(ctx context.Context, jobs []*reminder.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	if err := s.jobRepo.CreateBatch(ctx, jobs); err != nil {
		return err
	}
	for _, j := range jobs {
		if err := s.index.Add(ctx, j.JobID.String(), j.ScheduledAt); err != nil {
			return err
		}
	}
	return nil
}
