package scheduler

import "time"

// onceSchedule yields its instant until that instant has been reached, then
// nothing. The cron run loop is the only caller, so no locking is needed.
type onceSchedule struct {
	at       time.Time
	returned bool
}

func (o *onceSchedule) Next(t time.Time) time.Time {
	if o.returned && !t.Before(o.at) {
		return time.Time{}
	}
	o.returned = true
	return o.at
}

// intervalSchedule fires at first and then on every period boundary after it.
type intervalSchedule struct {
	first  time.Time
	period time.Duration
}

func (s *intervalSchedule) Next(t time.Time) time.Time {
	return NextBoundary(s.first, s.period, t)
}

// NextBoundary returns the first instant first+k*period (k >= 0) strictly after t,
// or first itself when t is before it.
func NextBoundary(first time.Time, period time.Duration, t time.Time) time.Time {
	if t.Before(first) {
		return first
	}
	k := t.Sub(first)/period + 1
	return first.Add(k * period)
}
