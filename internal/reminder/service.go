// Package reminder implements the reminder operations on top of the store,
// the job scheduler and the delivery dispatcher.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"remindbot/internal/delivery"
	"remindbot/internal/domain"
	"remindbot/internal/metrics"
	"remindbot/internal/scheduler"
	"remindbot/internal/store"
)

// Notifier delivers one occurrence and reports how many notifications failed.
type Notifier interface {
	Deliver(ctx context.Context, notes []delivery.Notification) int
}

type Config struct {
	// StoreTimeout bounds every store call made on behalf of a request.
	StoreTimeout time.Duration
}

type AddRequest struct {
	Owner       string
	Title       string
	CreatedAt   time.Time
	Deadline    time.Time
	Destination *domain.Destination
	Recurrence  *domain.Interval
}

type Service struct {
	cfg      Config
	repo     store.Repository
	sched    *scheduler.Service
	notifier Notifier
	metrics  *metrics.Metrics
}

func NewService(cfg Config, repo store.Repository, sched *scheduler.Service, notifier Notifier, m *metrics.Metrics) *Service {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &Service{cfg: cfg, repo: repo, sched: sched, notifier: notifier, metrics: m}
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

// storeErr keeps not-found errors and turns everything else into ErrUnavailable.
func storeErr(op string, err error) error {
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrUnavailable, op, err)
}

func validateAdd(req AddRequest) error {
	if strings.TrimSpace(req.Owner) == "" {
		return &domain.ValidationError{Field: "owner", Reason: "owner is required"}
	}
	if strings.TrimSpace(req.Title) == "" {
		return &domain.ValidationError{Field: "title", Reason: "title is required"}
	}
	if req.CreatedAt.IsZero() || req.Deadline.IsZero() {
		return &domain.ValidationError{Field: "deadline", Reason: "created and deadline times are required"}
	}
	if req.Deadline.Before(req.CreatedAt) {
		return &domain.ValidationError{Field: "deadline", Reason: "deadline is in the past"}
	}
	if d := req.Destination; d != nil && (strings.TrimSpace(d.Stream) == "" || strings.TrimSpace(d.Topic) == "") {
		return &domain.ValidationError{Field: "destination", Reason: "stream and topic are both required"}
	}
	if req.Recurrence != nil {
		return req.Recurrence.Validate()
	}
	return nil
}

// AddReminder persists a reminder and registers its job. When registration
// fails the reminder id is still returned alongside a *domain.SchedulerError;
// Reschedule retries the registration.
func (s *Service) AddReminder(ctx context.Context, req AddRequest) (int64, error) {
	if err := validateAdd(req); err != nil {
		return 0, err
	}
	r := domain.Reminder{
		Owner:       strings.TrimSpace(req.Owner),
		Title:       strings.TrimSpace(req.Title),
		CreatedAt:   req.CreatedAt,
		Deadline:    req.Deadline,
		Active:      true,
		Destination: req.Destination,
		Recurrence:  req.Recurrence,
	}

	sctx, cancel := s.storeCtx(ctx)
	id, err := s.repo.Create(sctx, r)
	cancel()
	if err != nil {
		return 0, storeErr("create reminder", err)
	}
	r.ID = id
	s.metrics.ReminderCreated()

	if err := s.register(r); err != nil {
		log.Warn().Err(err).Int64("reminder_id", id).Msg("reminder stored without a job")
		return id, err
	}
	log.Info().Int64("reminder_id", id).Str("owner", r.Owner).Time("deadline", r.Deadline).Str("cadence", r.Cadence()).Msg("reminder added")
	return id, nil
}

// register creates the job(s) for a stored reminder. A recurring reminder gets
// an interval job anchored at RepeatFrom, or at its deadline when RepeatFrom is
// unset. A repeat added before the deadline keeps the pending one-shot job.
func (s *Service) register(r domain.Reminder) error {
	if r.Recurrence == nil {
		return s.sched.ScheduleOnce(scheduler.OnceKey(r.ID), r.Deadline, s.occurrence(r.ID, scheduler.ModeOnce))
	}
	if err := r.Recurrence.Validate(); err != nil {
		return &domain.SchedulerError{Key: scheduler.IntervalKey(r.ID).String(), Err: err}
	}
	from := r.RepeatFrom
	if from.IsZero() {
		from = r.Deadline
	}
	if from.After(r.Deadline) && r.Deadline.After(time.Now()) {
		if err := s.sched.ScheduleOnce(scheduler.OnceKey(r.ID), r.Deadline, s.occurrence(r.ID, scheduler.ModeOnce)); err != nil {
			return err
		}
	}
	return s.sched.ScheduleIntervalAt(scheduler.IntervalKey(r.ID), from, r.Recurrence.Duration(), s.occurrence(r.ID, scheduler.ModeInterval))
}

// RemoveReminder deletes the reminder, then cancels its jobs. A failed delete
// leaves the jobs in place; a job firing in between finds no reminder and
// skips.
func (s *Service) RemoveReminder(ctx context.Context, id int64) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.repo.Delete(sctx, id); err != nil {
		return storeErr("delete reminder", err)
	}
	n := s.sched.CancelReminder(id)
	log.Info().Int64("reminder_id", id).Int("jobs_cancelled", n).Msg("reminder removed")
	return nil
}

// ListReminders returns the owner's reminders ordered by deadline. An empty
// result is not an error.
func (s *Service) ListReminders(ctx context.Context, owner string) ([]domain.Reminder, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	list, err := s.repo.ListByOwner(sctx, owner)
	return list, storeErr("list reminders", err)
}

// RepeatReminder sets the recurrence of an existing reminder and adds an
// interval job starting one period from now. The start is stored so a restart
// keeps the same phase. A pending one-shot job is kept.
func (s *Service) RepeatReminder(ctx context.Context, id int64, every domain.Interval) error {
	if err := every.Validate(); err != nil {
		return err
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	r, err := s.repo.Get(sctx, id)
	if err != nil {
		return storeErr("get reminder", err)
	}
	first := time.Now().Add(every.Duration())
	if err := s.repo.UpdateRecurrence(sctx, id, &every, first); err != nil {
		return storeErr("update recurrence", err)
	}
	if !r.Active {
		if err := s.repo.SetActive(sctx, id, true); err != nil {
			return storeErr("activate reminder", err)
		}
	}
	if err := s.sched.ScheduleIntervalAt(scheduler.IntervalKey(id), first, every.Duration(), s.occurrence(id, scheduler.ModeInterval)); err != nil {
		return err
	}
	log.Info().Int64("reminder_id", id).Str("every", every.String()).Msg("reminder repeats")
	return nil
}

// MultiRemind adds recipients to a reminder; every later occurrence is fanned
// out to them as well. It returns the full recipient list.
func (s *Service) MultiRemind(ctx context.Context, id int64, recipients []string) ([]string, error) {
	if len(recipients) == 0 {
		return nil, &domain.ValidationError{Field: "recipients", Reason: "at least one recipient is required"}
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	r, err := s.repo.Get(sctx, id)
	if err != nil {
		return nil, storeErr("get reminder", err)
	}
	merged := append([]string{}, r.Recipients...)
	seen := make(map[string]bool, len(merged))
	for _, rc := range merged {
		seen[rc] = true
	}
	for _, rc := range recipients {
		rc = strings.TrimSpace(rc)
		if rc == "" || seen[rc] {
			continue
		}
		seen[rc] = true
		merged = append(merged, rc)
	}
	if err := s.repo.UpdateRecipients(sctx, id, merged); err != nil {
		return nil, storeErr("update recipients", err)
	}
	log.Info().Int64("reminder_id", id).Strs("recipients", merged).Msg("recipients updated")
	return merged, nil
}

// Reschedule re-registers the jobs of a stored reminder, for example after
// AddReminder returned a scheduler error.
func (s *Service) Reschedule(ctx context.Context, id int64) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	r, err := s.repo.Get(sctx, id)
	if err != nil {
		return storeErr("get reminder", err)
	}
	if !r.Active {
		return &domain.ValidationError{Field: "reminder", Reason: fmt.Sprintf("reminder %d has already fired", id)}
	}
	return s.register(r)
}

// Restore registers jobs for every active reminder in the store. Past one-shot
// deadlines fire right away; interval jobs resume on their next boundary.
func (s *Service) Restore(ctx context.Context) (int, error) {
	sctx, cancel := s.storeCtx(ctx)
	active, err := s.repo.ListActive(sctx)
	cancel()
	if err != nil {
		return 0, storeErr("list active reminders", err)
	}
	n := 0
	for _, r := range active {
		if err := s.register(r); err != nil {
			log.Error().Err(err).Int64("reminder_id", r.ID).Msg("restore reminder")
			continue
		}
		n++
	}
	return n, nil
}

// occurrence is the job action. The reminder is re-read on every fire so a
// reminder removed while its job was firing is skipped quietly.
func (s *Service) occurrence(id int64, mode scheduler.Mode) scheduler.Action {
	return func(ctx context.Context) error {
		r, err := s.repo.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			log.Debug().Int64("reminder_id", id).Msg("reminder gone before it fired")
			return nil
		}
		if err != nil {
			return fmt.Errorf("load reminder %d: %w", id, err)
		}

		if failed := s.notifier.Deliver(ctx, delivery.Targets(r)); failed > 0 {
			log.Warn().Int64("reminder_id", id).Int("failed", failed).Msg("occurrence partly undelivered")
		}

		if mode == scheduler.ModeOnce && r.Recurrence == nil {
			if err := s.repo.SetActive(ctx, id, false); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("deactivate reminder %d: %w", id, err)
			}
		}
		return nil
	}
}
