package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// NotificationPayload is the body delivered for a due reminder.
type NotificationPayload struct {
	UserIDs       []string `json:"user_ids"`
	Subject       string   `json:"subject"`
	Message       string   `json:"message"`
	TransactionID string   `json:"transaction_id"`
}

// Dispatcher delivers notification payloads to an external endpoint.
type Dispatcher interface {
	Dispatch(ctx context.Context, p NotificationPayload) error
}

// HTTPDispatcher POSTs payloads as JSON to a notification service.
type HTTPDispatcher struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

func NewHTTPDispatcher(url string, log zerolog.Logger) *HTTPDispatcher {
	return &HTTPDispatcher{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, p NotificationPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification service returned %d", resp.StatusCode)
	}

	d.log.Debug().
		Str("transaction_id", p.TransactionID).
		Int("recipients", len(p.UserIDs)).
		Msg("notification delivered")
	return nil
}

// LogDispatcher logs payloads instead of delivering them. The default
// when no notification endpoint is configured.
type LogDispatcher struct {
	log zerolog.Logger
}

func NewLogDispatcher(log zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Dispatch(_ context.Context, p NotificationPayload) error {
	d.log.Info().
		Str("transaction_id", p.TransactionID).
		Str("subject", p.Subject).
		Strs("user_ids", p.UserIDs).
		Msg("notification (log only)")
	return nil
}
