package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"remindbot/internal/domain"
	"remindbot/internal/metrics"
)

type Mode string

const (
	ModeOnce     Mode = "once"
	ModeInterval Mode = "interval"
)

// Key addresses a job. It depends only on the immutable reminder id; the mode
// lets a one-shot and an interval job of the same reminder coexist.
type Key struct {
	ReminderID int64
	Mode       Mode
}

func OnceKey(id int64) Key     { return Key{ReminderID: id, Mode: ModeOnce} }
func IntervalKey(id int64) Key { return Key{ReminderID: id, Mode: ModeInterval} }

func (k Key) String() string { return fmt.Sprintf("reminder-%d/%s", k.ReminderID, k.Mode) }

// Action is invoked once per occurrence on its own goroutine.
type Action func(ctx context.Context) error

// Job is a read-only view of a live job.
type Job struct {
	Key    Key
	FireAt time.Time     // one-shot only
	Period time.Duration // interval only
	Next   time.Time
}

type entry struct {
	id  cron.EntryID
	seq uint64
	job Job
}

type Config struct {
	// FireTimeout bounds a single action run. Zero means no bound.
	FireTimeout time.Duration
}

// Service keeps at most one live job per Key on top of a robfig/cron run loop.
// Registration and cancellation for a key are serialized by mu.
type Service struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    map[Key]*entry
	seq     uint64
	stopped bool

	cfg     Config
	metrics *metrics.Metrics

	baseCtx context.Context
	cancel  context.CancelFunc
}

func NewService(cfg Config, m *metrics.Metrics) *Service {
	cronLog := log.Logger.With().Str("component", "cron").Logger()
	logger := cron.PrintfLogger(&cronLog)
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cron:    cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger))),
		jobs:    make(map[Key]*entry),
		cfg:     cfg,
		metrics: m,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Start runs the dispatch loop in the background. Jobs registered before
// Start are kept and begin counting from Start.
func (s *Service) Start() {
	s.cron.Start()
	log.Info().Dur("fire_timeout", s.cfg.FireTimeout).Msg("job scheduler started")
}

// Stop refuses new registrations, stops dispatching and waits for in-flight
// fires to finish or ctx to expire, whichever comes first.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		log.Info().Msg("job scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("scheduler drain: %w", ctx.Err())
	}
}

// ScheduleOnce registers a one-shot job. A fireAt in the past fires on the
// next dispatch instead of being dropped.
func (s *Service) ScheduleOnce(key Key, fireAt time.Time, action Action) error {
	if fireAt.IsZero() {
		return &domain.SchedulerError{Key: key.String(), Err: errors.New("zero fire time")}
	}
	return s.register(Job{Key: key, FireAt: fireAt}, &onceSchedule{at: fireAt}, action)
}

// ScheduleInterval registers a job firing every period, first one period from now.
func (s *Service) ScheduleInterval(key Key, period time.Duration, action Action) error {
	return s.ScheduleIntervalAt(key, time.Now().Add(period), period, action)
}

// ScheduleIntervalAt registers a job firing at first and every period after it.
// If first has passed, the next boundary after now is used.
func (s *Service) ScheduleIntervalAt(key Key, first time.Time, period time.Duration, action Action) error {
	if period <= 0 {
		return &domain.SchedulerError{Key: key.String(), Err: fmt.Errorf("period must be positive, got %s", period)}
	}
	return s.register(Job{Key: key, Period: period}, &intervalSchedule{first: first, period: period}, action)
}

func (s *Service) register(job Job, sched cron.Schedule, action Action) error {
	if action == nil {
		return &domain.SchedulerError{Key: job.Key.String(), Err: errors.New("nil action")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return &domain.SchedulerError{Key: job.Key.String(), Err: domain.ErrStopped}
	}

	if old, ok := s.jobs[job.Key]; ok {
		s.cron.Remove(old.id)
		log.Debug().Str("job_key", job.Key.String()).Msg("replacing job")
	}
	s.seq++
	seq := s.seq
	key := job.Key
	id := s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(key, seq, action) }))
	s.jobs[key] = &entry{id: id, seq: seq, job: job}
	s.updateGaugesLocked()

	log.Info().
		Str("job_key", key.String()).
		Time("fire_at", job.FireAt).
		Dur("period", job.Period).
		Msg("job scheduled")
	return nil
}

// Cancel removes the job for key. Unknown keys are ignored; the result reports
// whether a job was removed.
func (s *Service) Cancel(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(key)
}

// CancelReminder removes every job derived from a reminder.
func (s *Service) CancelReminder(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, mode := range []Mode{ModeOnce, ModeInterval} {
		if s.cancelLocked(Key{ReminderID: id, Mode: mode}) {
			n++
		}
	}
	return n
}

func (s *Service) cancelLocked(key Key) bool {
	e, ok := s.jobs[key]
	if !ok {
		return false
	}
	s.cron.Remove(e.id)
	delete(s.jobs, key)
	s.updateGaugesLocked()
	log.Info().Str("job_key", key.String()).Msg("job cancelled")
	return true
}

// Lookup returns the live job for key.
func (s *Service) Lookup(key Key) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[key]
	if !ok {
		return Job{}, false
	}
	job := e.job
	job.Next = s.cron.Entry(e.id).Next
	return job, true
}

// Jobs returns a snapshot of live jobs ordered by reminder id and mode.
func (s *Service) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, e := range s.jobs {
		job := e.job
		job.Next = s.cron.Entry(e.id).Next
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.ReminderID != out[j].Key.ReminderID {
			return out[i].Key.ReminderID < out[j].Key.ReminderID
		}
		return out[i].Key.Mode < out[j].Key.Mode
	})
	return out
}

// fire runs on a goroutine of its own, so a slow action never holds up the
// dispatch loop or other jobs.
func (s *Service) fire(key Key, seq uint64, action Action) {
	s.mu.Lock()
	e, ok := s.jobs[key]
	if !ok || e.seq != seq {
		s.mu.Unlock()
		log.Debug().Str("job_key", key.String()).Msg("skipping fire of superseded job")
		return
	}
	if key.Mode == ModeOnce {
		// A one-shot job is spent once it starts, whatever the outcome.
		s.cron.Remove(e.id)
		delete(s.jobs, key)
		s.updateGaugesLocked()
	}
	s.mu.Unlock()

	occurrence := uuid.NewString()
	ctx := s.baseCtx
	if s.cfg.FireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FireTimeout)
		defer cancel()
	}

	start := time.Now()
	err := run(ctx, action)
	if err != nil {
		s.metrics.Fired(string(key.Mode), "error")
		log.Error().Err(err).Str("job_key", key.String()).Str("occurrence", occurrence).Msg("job failed")
		return
	}
	s.metrics.Fired(string(key.Mode), "ok")
	log.Info().
		Str("job_key", key.String()).
		Str("occurrence", occurrence).
		Dur("took", time.Since(start)).
		Msg("job fired")
}

func run(ctx context.Context, action Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action(ctx)
}

func (s *Service) updateGaugesLocked() {
	counts := map[Mode]int{ModeOnce: 0, ModeInterval: 0}
	for k := range s.jobs {
		counts[k.Mode]++
	}
	for mode, n := range counts {
		s.metrics.SetJobs(string(mode), n)
	}
}
