package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier POSTs a JSON payload to a configured URL for each allowed
// event. There is no webhook backend in the reference notifier crate (it
// ships only a Telegram sink); this fills the "Webhooks, etc." gap the
// crate's own doc comment calls out as future work, using the ecosystem's
// plain net/http client the way the rest of this codebase reaches for
// outbound HTTP.
type WebhookNotifier struct {
	url    string
	client *http.Client
	filter Filter
}

func NewWebhookNotifier(url string, filter Filter) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		filter: filter,
	}
}

type webhookPayload struct {
	Type    EventType `json:"type"`
	AppID   int64     `json:"app_id"`
	AppName string    `json:"app_name"`
	Message string    `json:"message"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if !n.filter.allows(event.Type) {
		return nil
	}

	body, err := json.Marshal(webhookPayload{
		Type:    event.Type,
		AppID:   event.AppID,
		AppName: event.AppName,
		Message: event.FormatMessage(),
	})
	if err != nil {
		return fmt.Errorf("notify: encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: webhook delivery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
