// Package command turns chat commands into reminder operations and renders
// the reply text.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"remindbot/internal/deadline"
	"remindbot/internal/domain"
	"remindbot/internal/metrics"
	"remindbot/internal/reminder"
	"remindbot/internal/timeexpr"
)

// Reminders is the set of operations the orchestrator drives.
type Reminders interface {
	AddReminder(ctx context.Context, req reminder.AddRequest) (int64, error)
	RemoveReminder(ctx context.Context, id int64) error
	ListReminders(ctx context.Context, owner string) ([]domain.Reminder, error)
	RepeatReminder(ctx context.Context, id int64, every domain.Interval) error
	MultiRemind(ctx context.Context, id int64, recipients []string) ([]string, error)
}

// Message is one inbound command.
type Message struct {
	Owner   string
	Content string
	// SentAt is the submission instant; zero means now.
	SentAt time.Time
}

type Reply struct {
	Intent timeexpr.Kind
	Text   string
	// Err is the classified failure behind Text, nil on success.
	Err error
}

const (
	invalidInput  = "Invalid input."
	unavailable   = "The reminder service is unavailable right now, please try again later."
	somethingWent = "Something went wrong."
	listLayout    = "2006-01-02 15:04"
)

type Orchestrator struct {
	reminders Reminders
	resolver  deadline.Resolver
	metrics   *metrics.Metrics
}

func New(reminders Reminders, resolver deadline.Resolver, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{reminders: reminders, resolver: resolver, metrics: m}
}

// Handle runs one command to completion. Every outcome, including invalid
// input, is a reply; nothing here is fatal.
func (o *Orchestrator) Handle(ctx context.Context, msg Message) Reply {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	in, err := timeexpr.Parse(msg.Content)
	if err != nil {
		o.metrics.Command("unknown", "invalid")
		return Reply{Text: invalidInput + "\n\n" + Usage, Err: err}
	}

	var reply Reply
	switch in.Kind {
	case timeexpr.KindHelp:
		reply = Reply{Text: Usage}
	case timeexpr.KindAdd:
		reply = o.add(ctx, msg, in)
	case timeexpr.KindRemove:
		reply = o.remove(ctx, in)
	case timeexpr.KindList:
		reply = o.list(ctx, msg)
	case timeexpr.KindRepeat:
		reply = o.repeat(ctx, in)
	case timeexpr.KindMultiRemind:
		reply = o.multiRemind(ctx, in)
	}
	reply.Intent = in.Kind

	outcome := "ok"
	if reply.Err != nil {
		outcome = classify(reply.Err)
		log.Warn().Err(reply.Err).Str("owner", msg.Owner).Str("intent", in.Kind.String()).Msg("command failed")
	}
	o.metrics.Command(in.Kind.String(), outcome)
	return reply
}

func (o *Orchestrator) add(ctx context.Context, msg Message, in timeexpr.Intent) Reply {
	due, err := o.resolver.Resolve(msg.SentAt, in.Offset, in.At)
	if err != nil {
		return failure(timeexpr.KindAdd, err, 0)
	}
	id, err := o.reminders.AddReminder(ctx, reminder.AddRequest{
		Owner:       msg.Owner,
		Title:       in.Title,
		CreatedAt:   msg.SentAt,
		Deadline:    due,
		Destination: in.Destination,
		Recurrence:  in.Repeat,
	})
	if err != nil {
		return failure(timeexpr.KindAdd, err, id)
	}

	var b strings.Builder
	if in.Repeat != nil {
		b.WriteString("Repeat reminder stored.")
	} else {
		b.WriteString("Reminder stored.")
	}
	if d := in.Destination; d != nil {
		fmt.Fprintf(&b, " Your reminder will be displayed in Stream: %s - Topic: %s.", d.Stream, d.Topic)
	}
	fmt.Fprintf(&b, " Your reminder id is: %d", id)
	return Reply{Text: b.String()}
}

func (o *Orchestrator) remove(ctx context.Context, in timeexpr.Intent) Reply {
	if err := o.reminders.RemoveReminder(ctx, in.ReminderID); err != nil {
		return failure(timeexpr.KindRemove, err, in.ReminderID)
	}
	return Reply{Text: "Reminder deleted."}
}

func (o *Orchestrator) list(ctx context.Context, msg Message) Reply {
	list, err := o.reminders.ListReminders(ctx, msg.Owner)
	if err != nil {
		return failure(timeexpr.KindList, err, 0)
	}
	return Reply{Text: o.FormatList(list)}
}

func (o *Orchestrator) repeat(ctx context.Context, in timeexpr.Intent) Reply {
	if err := o.reminders.RepeatReminder(ctx, in.ReminderID, *in.Repeat); err != nil {
		return failure(timeexpr.KindRepeat, err, in.ReminderID)
	}
	return Reply{Text: fmt.Sprintf("Reminder will be repeated every %s.", in.Repeat)}
}

func (o *Orchestrator) multiRemind(ctx context.Context, in timeexpr.Intent) Reply {
	recipients, err := o.reminders.MultiRemind(ctx, in.ReminderID, in.Recipients)
	if err != nil {
		return failure(timeexpr.KindMultiRemind, err, in.ReminderID)
	}
	return Reply{Text: fmt.Sprintf("Reminder will be sent to the specified recipients: %s.", strings.Join(recipients, ", "))}
}

// FormatList renders reminders one per line; an empty list has its own reply.
func (o *Orchestrator) FormatList(list []domain.Reminder) string {
	if len(list) == 0 {
		return "No reminders available."
	}
	var b strings.Builder
	for i, r := range list {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Reminder id %d, titled %s", r.ID, r.Title)
		if d := r.Destination; d != nil {
			fmt.Fprintf(&b, ", stream: %s topic: %s", d.Stream, d.Topic)
		}
		fmt.Fprintf(&b, ", is scheduled on %s", r.Deadline.In(o.resolver.Location()).Format(listLayout))
		if c := r.Cadence(); c != "" {
			b.WriteString(" " + c)
		}
		if !r.Active {
			b.WriteString(" (done)")
		}
	}
	return b.String()
}

func failure(kind timeexpr.Kind, err error, id int64) Reply {
	var (
		ve *domain.ValidationError
		se *domain.SchedulerError
	)
	switch {
	case errors.As(err, &ve):
		return Reply{Text: fmt.Sprintf("%s %s.", invalidInput, ve.Reason), Err: err}
	case errors.Is(err, domain.ErrNotFound):
		return Reply{Text: fmt.Sprintf("Reminder %d not found.", id), Err: err}
	case errors.As(err, &se):
		switch {
		case kind == timeexpr.KindRepeat:
			return Reply{Text: fmt.Sprintf("Reminder %d was not set to repeat, please try again.", id), Err: err}
		case id != 0:
			return Reply{Text: fmt.Sprintf("Reminder %d was saved but could not be scheduled, please try again.", id), Err: err}
		}
		return Reply{Text: "The reminder could not be scheduled, please try again.", Err: err}
	case errors.Is(err, domain.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return Reply{Text: unavailable, Err: err}
	}
	return Reply{Text: somethingWent, Err: err}
}

func classify(err error) string {
	var (
		ve *domain.ValidationError
		se *domain.SchedulerError
	)
	switch {
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.As(err, &se):
		return "scheduler_error"
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	}
	return "error"
}
