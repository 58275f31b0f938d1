// Package deadline converts parsed time expressions into absolute instants.
package deadline

import (
	"time"

	"github.com/rs/zerolog/log"

	"remindbot/internal/domain"
	"remindbot/internal/timeexpr"
)

type Resolver struct {
	loc *time.Location
}

// New returns a resolver that reads absolute moments in loc (time.Local when nil).
func New(loc *time.Location) Resolver {
	if loc == nil {
		loc = time.Local
	}
	return Resolver{loc: loc}
}

func (r Resolver) Location() *time.Location { return r.loc }

// Resolve returns the deadline for a reminder submitted at createdAt.
// Exactly one of offset and at is expected.
func (r Resolver) Resolve(createdAt time.Time, offset *domain.Interval, at *timeexpr.Moment) (time.Time, error) {
	switch {
	case offset != nil && at != nil:
		return time.Time{}, &domain.ValidationError{Field: "deadline", Reason: "both a relative and an absolute time were given"}
	case offset != nil:
		return Add(createdAt, *offset)
	case at != nil:
		t, err := time.ParseInLocation(timeexpr.MomentLayout, string(*at), r.loc)
		if err != nil {
			return time.Time{}, &domain.ValidationError{Field: "date", Reason: "not a valid DD/MM/YYYY HH:MM date: " + string(*at)}
		}
		return t, nil
	}
	log.Warn().Time("created_at", createdAt).Msg("deadline requested without a time expression, parser let an incomplete command through")
	return createdAt, nil
}

// Add advances from by iv with calendar-naive unit lengths.
func Add(from time.Time, iv domain.Interval) (time.Time, error) {
	if err := iv.Validate(); err != nil {
		return time.Time{}, err
	}
	return from.Add(iv.Duration()), nil
}

// Format renders a deadline back in the absolute command form.
func (r Resolver) Format(t time.Time) string {
	return t.In(r.loc).Format(timeexpr.MomentLayout)
}
