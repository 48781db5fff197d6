package watch

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"PodAtlas/internal/logger"
)

// WebhookNotifier posts each alert as a JSON document to a webhook
// endpoint. Failed deliveries are logged and dropped; alerting is
// best-effort.
type WebhookNotifier struct {
	url  string
	http *http.Client
}

// NewWebhookNotifier creates a notifier for the given endpoint.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// Notify delivers one alert.
func (n *WebhookNotifier) Notify(alert Alert) {
	body, err := json.Marshal(alert)
	if err != nil {
		logger.Warn("marshal alert failed", "error", err)
		return
	}

	resp, err := n.http.Post(n.url, "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Warn("alert delivery failed", "url", n.url, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logger.Warn("alert delivery rejected", "url", n.url, "status", resp.StatusCode)
	}
}
