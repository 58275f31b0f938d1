// Package delivery hands reminder occurrences to a chat transport.
package delivery

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"remindbot/internal/domain"
	"remindbot/internal/metrics"
	"remindbot/internal/worker"
)

// Notification is one message to one addressee. A non-nil Destination means
// the message goes to that stream/topic instead of a private conversation.
type Notification struct {
	ReminderID  int64
	Recipient   string
	Destination *domain.Destination
	Text        string
}

type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Recorder persists the outcome of each attempt.
type Recorder interface {
	RecordDelivery(ctx context.Context, d domain.Delivery) (string, error)
}

// Message is the text delivered for a reminder.
func Message(r domain.Reminder) string {
	return "Don't forget: " + r.Title
}

// Targets expands a reminder into notifications: the destination (or the
// owner privately) followed by a private copy for every extra recipient.
func Targets(r domain.Reminder) []Notification {
	text := Message(r)
	out := []Notification{{ReminderID: r.ID, Recipient: r.Owner, Destination: r.Destination, Text: text}}
	seen := map[string]bool{r.Owner: true}
	for _, rc := range r.Recipients {
		if seen[rc] {
			continue
		}
		seen[rc] = true
		out = append(out, Notification{ReminderID: r.ID, Recipient: rc, Text: text})
	}
	return out
}

type Config struct {
	Workers int
	Timeout time.Duration
	// RatePerSec limits sends across all occurrences; zero disables limiting.
	RatePerSec float64
}

// Dispatcher fans notifications out over a bounded pool. Failures are logged
// and recorded, never retried and never returned to the scheduler.
type Dispatcher struct {
	sender   Sender
	recorder Recorder
	pool     *worker.Pool
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
}

func NewDispatcher(cfg Config, sender Sender, recorder Recorder, m *metrics.Metrics) *Dispatcher {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return &Dispatcher{
		sender:   sender,
		recorder: recorder,
		pool:     worker.NewPool(cfg.Workers, cfg.Timeout),
		limiter:  limiter,
		metrics:  m,
	}
}

// Deliver sends every notification and returns how many failed.
func (d *Dispatcher) Deliver(ctx context.Context, notes []Notification) int {
	tasks := make([]worker.Task, len(notes))
	for i, n := range notes {
		n := n
		tasks[i] = func(ctx context.Context) error {
			if err := d.limiter.Wait(ctx); err != nil {
				return err
			}
			return d.sender.Send(ctx, n)
		}
	}

	failed := 0
	for i, err := range d.pool.Run(ctx, tasks) {
		n := notes[i]
		rec := domain.Delivery{ReminderID: n.ReminderID, Recipient: n.Recipient, Success: err == nil, DeliveredAt: time.Now()}
		if err != nil {
			failed++
			rec.Error = err.Error()
			d.metrics.Delivered("error")
			log.Warn().Err(err).Int64("reminder_id", n.ReminderID).Str("recipient", n.Recipient).Msg("delivery failed")
		} else {
			d.metrics.Delivered("ok")
			log.Debug().Int64("reminder_id", n.ReminderID).Str("recipient", n.Recipient).Msg("delivered")
		}
		if d.recorder == nil {
			continue
		}
		// Record even when ctx has expired so the attempt is not lost.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if _, err := d.recorder.RecordDelivery(rctx, rec); err != nil {
			log.Error().Err(err).Int64("reminder_id", n.ReminderID).Msg("record delivery")
		}
		cancel()
	}
	return failed
}
