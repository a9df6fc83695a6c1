// Package alert delivers human-notification messages to a chat webhook.
// Delivery is strictly best-effort: a lost notification is an accepted
// failure mode, never retried and never surfaced to the request path.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Sink accepts notification messages. Implementations must never block the
// caller on delivery outcome.
type Sink interface {
	// Notify queues msg for delivery. Fire-and-forget.
	Notify(msg string)
}

// Webhook posts messages as {"content": msg} JSON to a chat webhook URL.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// Option configures a Webhook sink.
type Option func(*Webhook)

// WithClient sets a custom HTTP client (mainly for tests).
func WithClient(c *http.Client) Option {
	return func(w *Webhook) { w.client = c }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Webhook) { w.logger = l }
}

// NewWebhook creates a sink targeting url.
func NewWebhook(url string, opts ...Option) *Webhook {
	w := &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Notify posts msg on a background goroutine. Errors are logged and dropped.
func (w *Webhook) Notify(msg string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		body, err := json.Marshal(map[string]string{"content": msg})
		if err != nil {
			w.logger.Error("alert: marshal", "error", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			w.logger.Error("alert: new request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			w.logger.Warn("alert: delivery failed", "error", err)
			return
		}
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			w.logger.Warn("alert: bad status", "status", resp.StatusCode)
		}
	}()
}

// Nop is a Sink that drops every message. Used when no webhook is configured.
type Nop struct{}

func (Nop) Notify(string) {}
