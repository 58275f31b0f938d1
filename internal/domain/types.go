package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Unit is the granularity of a relative offset or a repeat interval.
type Unit string

const (
	Minute Unit = "minute"
	Hour   Unit = "hour"
	Day    Unit = "day"
	Week   Unit = "week"
)

// Duration is calendar-naive: a day is always 24h and a week 7 days.
func (u Unit) Duration() time.Duration {
	switch u {
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	case Day:
		return 24 * time.Hour
	case Week:
		return 7 * 24 * time.Hour
	}
	return 0
}

func (u Unit) Valid() bool { return u.Duration() > 0 }

// ParseUnit accepts singular and plural spellings, case-insensitively.
func ParseUnit(s string) (Unit, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "s")
	u := Unit(s)
	return u, u.Valid()
}

// Interval is a positive count of units.
type Interval struct {
	Value int
	Unit  Unit
}

// Duration is only meaningful for an interval that passed Validate.
func (iv Interval) Duration() time.Duration {
	return time.Duration(iv.Value) * iv.Unit.Duration()
}

func (iv Interval) Validate() error {
	if !iv.Unit.Valid() {
		return &ValidationError{Field: "unit", Reason: fmt.Sprintf("unknown time unit %q", iv.Unit)}
	}
	if iv.Value <= 0 {
		return &ValidationError{Field: "interval", Reason: "interval must be a positive number"}
	}
	if int64(iv.Value) > math.MaxInt64/int64(iv.Unit.Duration()) {
		return &ValidationError{Field: "interval", Reason: "interval is too long"}
	}
	return nil
}

func (iv Interval) String() string {
	if iv.Value == 1 {
		return fmt.Sprintf("1 %s", iv.Unit)
	}
	return fmt.Sprintf("%d %ss", iv.Value, iv.Unit)
}

// Destination is a stream/topic pair. A reminder without one is delivered privately.
type Destination struct {
	Stream string
	Topic  string
}

type Reminder struct {
	ID          int64
	Owner       string
	Title       string
	CreatedAt   time.Time
	Deadline    time.Time
	Active      bool
	Destination *Destination
	Recipients  []string
	Recurrence  *Interval
	// RepeatFrom is the first interval occurrence. Zero means the deadline.
	RepeatFrom time.Time
}

// Cadence returns "every N units" for recurring reminders and "" otherwise.
func (r Reminder) Cadence() string {
	if r.Recurrence == nil {
		return ""
	}
	return "every " + r.Recurrence.String()
}

// Delivery is one attempt to hand an occurrence to the transport.
type Delivery struct {
	ID          string
	ReminderID  int64
	Recipient   string
	Success     bool
	Error       string
	DeliveredAt time.Time
}
