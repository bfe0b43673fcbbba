package adapter

import (
	"context"
	"fmt"

	fastshot "github.com/opus-domini/fast-shot"
)

// Notifier posts Notify effects to a configured webhook endpoint
// (spec.md §4.5 "Notify{title, body}: adapter (fire-and-forget)").
// A zero-value Notifier (no URL) is a no-op, so notifications are
// opt-in via config.
type Notifier struct {
	url string
}

// NewNotifier returns a Notifier posting to url. An empty url makes
// every Notify call a no-op.
func NewNotifier(url string) *Notifier {
	return &Notifier{url: url}
}

type notifyPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Notify POSTs {title, body} as JSON to the configured webhook.
func (n *Notifier) Notify(ctx context.Context, title, body string) error {
	if n == nil || n.url == "" {
		return nil
	}
	client := fastshot.NewClient(n.url).Build()
	resp, err := client.POST("").
		Context().Set(ctx).
		Body().AsJSON(notifyPayload{Title: title, Body: body}).
		Send()
	if err != nil {
		return fmt.Errorf("notify webhook: %w", err)
	}
	if resp.Status().IsError() {
		return fmt.Errorf("notify webhook: status %d", resp.Status().Code())
	}
	return nil
}
