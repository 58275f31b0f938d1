package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/domain"
	"remindbot/internal/metrics"
)

func newStarted(t *testing.T) *Service {
	t.Helper()
	s := NewService(Config{FireTimeout: 5 * time.Second}, metrics.New(prometheus.NewRegistry()))
	s.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func counter(n *atomic.Int32) Action {
	return func(context.Context) error {
		n.Add(1)
		return nil
	}
}

func TestKeyDependsOnlyOnID(t *testing.T) {
	assert.Equal(t, "reminder-42/once", OnceKey(42).String())
	assert.Equal(t, "reminder-42/interval", IntervalKey(42).String())
	assert.NotEqual(t, OnceKey(42), IntervalKey(42))
}

func TestOnceInThePastFiresOnNextDispatch(t *testing.T) {
	s := newStarted(t)
	var n atomic.Int32
	require.NoError(t, s.ScheduleOnce(OnceKey(1), time.Now().Add(-time.Hour), counter(&n)))

	require.Eventually(t, func() bool { return n.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	_, live := s.Lookup(OnceKey(1))
	assert.False(t, live)
}

func TestOnceFiresExactlyOnce(t *testing.T) {
	s := newStarted(t)
	var n atomic.Int32
	require.NoError(t, s.ScheduleOnce(OnceKey(1), time.Now().Add(100*time.Millisecond), counter(&n)))

	job, ok := s.Lookup(OnceKey(1))
	require.True(t, ok)
	assert.False(t, job.FireAt.IsZero())

	require.Eventually(t, func() bool { return n.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), n.Load())
	assert.Empty(t, s.Jobs())
}

func TestCancelIsIdempotent(t *testing.T) {
	s := newStarted(t)
	var n atomic.Int32
	require.NoError(t, s.ScheduleOnce(OnceKey(1), time.Now().Add(200*time.Millisecond), counter(&n)))
	require.NoError(t, s.ScheduleOnce(OnceKey(2), time.Now().Add(200*time.Millisecond), counter(&n)))

	assert.True(t, s.Cancel(OnceKey(1)))
	assert.False(t, s.Cancel(OnceKey(1)))
	assert.False(t, s.Cancel(OnceKey(99)))

	require.Eventually(t, func() bool { return n.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), n.Load(), "only the uncancelled job fires")
}

func TestReRegisterReplaces(t *testing.T) {
	s := newStarted(t)
	var first, second atomic.Int32
	require.NoError(t, s.ScheduleOnce(OnceKey(1), time.Now().Add(150*time.Millisecond), counter(&first)))
	require.NoError(t, s.ScheduleOnce(OnceKey(1), time.Now().Add(150*time.Millisecond), counter(&second)))
	assert.Len(t, s.Jobs(), 1)

	require.Eventually(t, func() bool { return second.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestIntervalRepeatsUntilCancelled(t *testing.T) {
	s := newStarted(t)
	var n atomic.Int32
	require.NoError(t, s.ScheduleInterval(IntervalKey(1), 50*time.Millisecond, counter(&n)))

	job, ok := s.Lookup(IntervalKey(1))
	require.True(t, ok)
	assert.Equal(t, 50*time.Millisecond, job.Period)

	require.Eventually(t, func() bool { return n.Load() >= 3 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.CancelReminder(1))
	time.Sleep(100 * time.Millisecond)
	seen := n.Load()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, seen, n.Load())
}

func TestIntervalFirstFireIsOnePeriodOut(t *testing.T) {
	s := newStarted(t)
	var n atomic.Int32
	require.NoError(t, s.ScheduleInterval(IntervalKey(1), time.Hour, counter(&n)))
	job, ok := s.Lookup(IntervalKey(1))
	require.True(t, ok)
	require.Eventually(t, func() bool {
		job, _ = s.Lookup(IntervalKey(1))
		return !job.Next.IsZero()
	}, time.Second, 10*time.Millisecond)
	assert.WithinDuration(t, time.Now().Add(time.Hour), job.Next, 5*time.Second)
	assert.Equal(t, int32(0), n.Load())
}

func TestFailuresAreIsolated(t *testing.T) {
	s := newStarted(t)
	var ok atomic.Int32
	require.NoError(t, s.ScheduleOnce(OnceKey(1), time.Now(), func(context.Context) error { return errors.New("boom") }))
	require.NoError(t, s.ScheduleOnce(OnceKey(2), time.Now(), func(context.Context) error { panic("kaboom") }))
	require.NoError(t, s.ScheduleOnce(OnceKey(3), time.Now().Add(50*time.Millisecond), counter(&ok)))
	require.NoError(t, s.ScheduleInterval(IntervalKey(4), 50*time.Millisecond, func(context.Context) error { return errors.New("always") }))

	require.Eventually(t, func() bool { return ok.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	_, stillLive := s.Lookup(IntervalKey(4))
	assert.True(t, stillLive, "a failing interval job keeps its schedule")
	_, failedOnce := s.Lookup(OnceKey(1))
	assert.False(t, failedOnce, "a failed one-shot counts as fired")
}

func TestSlowActionDoesNotBlockOthers(t *testing.T) {
	s := newStarted(t)
	release := make(chan struct{})
	defer close(release)
	var fast atomic.Int32
	require.NoError(t, s.ScheduleOnce(OnceKey(1), time.Now(), func(ctx context.Context) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}))
	require.NoError(t, s.ScheduleOnce(OnceKey(2), time.Now().Add(50*time.Millisecond), counter(&fast)))
	require.Eventually(t, func() bool { return fast.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestStopDrainsAndRejectsNewJobs(t *testing.T) {
	s := NewService(Config{}, nil)
	s.Start()

	var finished atomic.Bool
	started := make(chan struct{})
	require.NoError(t, s.ScheduleOnce(OnceKey(1), time.Now(), func(context.Context) error {
		close(started)
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
		return nil
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.True(t, finished.Load())

	err := s.ScheduleOnce(OnceKey(2), time.Now(), counter(new(atomic.Int32)))
	var se *domain.SchedulerError
	require.True(t, errors.As(err, &se))
	assert.True(t, errors.Is(err, domain.ErrStopped))
}

func TestRegistrationValidation(t *testing.T) {
	s := NewService(Config{}, nil)
	var se *domain.SchedulerError
	assert.True(t, errors.As(s.ScheduleInterval(IntervalKey(1), 0, counter(new(atomic.Int32))), &se))
	assert.True(t, errors.As(s.ScheduleOnce(OnceKey(1), time.Time{}, counter(new(atomic.Int32))), &se))
	assert.True(t, errors.As(s.ScheduleOnce(OnceKey(1), time.Now(), nil), &se))
}

func TestNextBoundary(t *testing.T) {
	first := time.Date(2021, 5, 13, 16, 0, 0, 0, time.UTC)
	week := 7 * 24 * time.Hour

	assert.Equal(t, first, NextBoundary(first, week, first.Add(-time.Minute)))
	assert.Equal(t, first.Add(week), NextBoundary(first, week, first))
	assert.Equal(t, first.Add(3*week), NextBoundary(first, week, first.Add(2*week+time.Second)))
}

func TestOnceScheduleStopsAfterItsInstant(t *testing.T) {
	at := time.Now().Add(-time.Minute)
	o := &onceSchedule{at: at}
	assert.Equal(t, at, o.Next(time.Now()))
	assert.True(t, o.Next(time.Now()).IsZero())

	future := time.Now().Add(time.Hour)
	o = &onceSchedule{at: future}
	assert.Equal(t, future, o.Next(time.Now()))
	assert.Equal(t, future, o.Next(time.Now()), "still pending before its instant")
}
