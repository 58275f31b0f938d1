package worker

import (
	"context"
	"sync"
	"time"
)

// Task is one unit of work handed to the pool.
type Task func(ctx context.Context) error

// Pool bounds how many tasks run at once across all callers and gives each
// task its own timeout.
type Pool struct {
	sem     chan struct{}
	timeout time.Duration
}

func NewPool(size int, timeout time.Duration) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size), timeout: timeout}
}

// Run executes tasks concurrently and returns their errors in task order.
// A task that cannot get a slot before ctx ends reports ctx.Err().
func (p *Pool) Run(ctx context.Context, tasks []Task) []error {
	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			errs[i] = ctx.Err()
			continue
		}
		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			defer func() { <-p.sem }()
			c := ctx
			if p.timeout > 0 {
				var cancel context.CancelFunc
				c, cancel = context.WithTimeout(ctx, p.timeout)
				defer cancel()
			}
			errs[i] = task(c)
		}(i, task)
	}
	wg.Wait()
	return errs
}
