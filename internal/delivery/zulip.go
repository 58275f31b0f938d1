package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Zulip posts notifications through the Zulip REST API.
type Zulip struct {
	Site   string
	Email  string
	APIKey string
	Client *http.Client
}

type zulipResponse struct {
	Result string `json:"result"`
	Msg    string `json:"msg"`
}

func (z Zulip) Send(ctx context.Context, n Notification) error {
	form := url.Values{}
	form.Set("content", n.Text)
	if n.Destination != nil {
		form.Set("type", "stream")
		form.Set("to", n.Destination.Stream)
		form.Set("topic", n.Destination.Topic)
	} else {
		form.Set("type", "private")
		form.Set("to", n.Recipient)
	}

	endpoint := strings.TrimRight(z.Site, "/") + "/api/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create zulip request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(z.Email, z.APIKey)

	client := z.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("zulip request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("failed to read zulip response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("zulip HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var zr zulipResponse
	if err := json.Unmarshal(body, &zr); err != nil {
		return fmt.Errorf("invalid zulip response: %w", err)
	}
	if zr.Result != "success" {
		return fmt.Errorf("zulip error: %s", zr.Msg)
	}
	return nil
}
