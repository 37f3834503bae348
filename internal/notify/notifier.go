// Package notify abstracts outbound email delivery. The marketplace does not
// render or send mail itself; it hands the code to an external mailer
// service and moves on.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Notifier delivers a one-time verification code to an email address.
type Notifier interface {
	SendCode(ctx context.Context, email, code string) error
}

// WebhookNotifier posts the code to the external mailer's HTTP endpoint.
// No retries; delivery is single-shot and the caller decides what a
// failure means.
type WebhookNotifier struct {
	endpoint string
	client   *http.Client
}

// NewWebhookNotifier creates a notifier for the given mailer endpoint.
func NewWebhookNotifier(endpoint string) *WebhookNotifier {
	return &WebhookNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type codeMessage struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (n *WebhookNotifier) SendCode(ctx context.Context, email, code string) error {
	body, err := json.Marshal(codeMessage{Email: email, Code: code})
	if err != nil {
		return fmt.Errorf("marshal code message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mailer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("mailer dispatch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("mailer returned status %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier writes the code to the structured log instead of sending mail.
// Development and test use only.
type LogNotifier struct{}

func (LogNotifier) SendCode(_ context.Context, email, code string) error {
	slog.Info("verification code issued (log notifier)", "email", email, "code", code)
	return nil
}
