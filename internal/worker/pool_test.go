package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsErrorsInOrder(t *testing.T) {
	p := NewPool(2, time.Second)
	boom := errors.New("boom")
	errs := p.Run(context.Background(), []Task{
		func(context.Context) error { return nil },
		func(context.Context) error { return boom },
		func(context.Context) error { return nil },
	})
	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
	assert.NoError(t, errs[2])
}

func TestRunBoundsConcurrency(t *testing.T) {
	p := NewPool(2, 0)
	var cur, peak atomic.Int32
	task := func(context.Context) error {
		n := cur.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		cur.Add(-1)
		return nil
	}
	p.Run(context.Background(), []Task{task, task, task, task, task, task})
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunAppliesTimeout(t *testing.T) {
	p := NewPool(1, 20*time.Millisecond)
	errs := p.Run(context.Background(), []Task{func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	assert.ErrorIs(t, errs[0], context.DeadlineExceeded)
}

func TestRunCancelledContext(t *testing.T) {
	p := NewPool(1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Int32
	errs := p.Run(ctx, []Task{
		func(context.Context) error { ran.Add(1); return nil },
		func(context.Context) error { ran.Add(1); return nil },
	})
	for _, err := range errs {
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, int32(0), ran.Load())
}
