package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("reminder not found")
	ErrUnavailable = errors.New("service unavailable")
	ErrStopped     = errors.New("scheduler stopped")
)

// ValidationError rejects a syntactically valid command whose values make no sense.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SchedulerError reports a failed job registration. The reminder record may
// already exist; callers can retry the registration.
type SchedulerError struct {
	Key string
	Err error
}

func (e *SchedulerError) Error() string {
	return fmt.Sprintf("schedule %s: %v", e.Key, e.Err)
}

func (e *SchedulerError) Unwrap() error { return e.Err }

func NotFound(id int64) error {
	return fmt.Errorf("%w: id %d", ErrNotFound, id)
}
