package delivery

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Shell runs an external command per notification. The recipient is appended
// to Args, the message text is written to stdin and the reminder details are
// exported as REMINDER_* environment variables.
type Shell struct {
	Command string
	Args    []string
}

func (h Shell) Send(ctx context.Context, n Notification) error {
	if h.Command == "" {
		return fmt.Errorf("command is required")
	}
	args := append(append([]string{}, h.Args...), n.Recipient)
	cmd := exec.CommandContext(ctx, h.Command, args...)
	cmd.Stdin = strings.NewReader(n.Text)
	cmd.Env = append(os.Environ(),
		"REMINDER_ID="+strconv.FormatInt(n.ReminderID, 10),
		"REMINDER_RECIPIENT="+n.Recipient,
	)
	if n.Destination != nil {
		cmd.Env = append(cmd.Env,
			"REMINDER_STREAM="+n.Destination.Stream,
			"REMINDER_TOPIC="+n.Destination.Topic,
		)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("shell error: %v; out=%s", err, string(out))
	}
	return nil
}
