package delivery

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Log writes notifications to the service log instead of a chat transport.
type Log struct{}

func (Log) Send(_ context.Context, n Notification) error {
	ev := log.Info().Int64("reminder_id", n.ReminderID).Str("recipient", n.Recipient)
	if n.Destination != nil {
		ev = ev.Str("stream", n.Destination.Stream).Str("topic", n.Destination.Topic)
	}
	ev.Str("text", n.Text).Msg("reminder")
	return nil
}
