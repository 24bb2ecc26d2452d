// Package notify delivers alarm notifications to external channels:
// webhook endpoints and email via Microsoft Graph.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event     string  `json:"event"`
	Loudness  float64 `json:"loudness,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Block     int64   `json:"block,omitempty"`
	Station   string  `json:"station,omitempty"`
	Message   string  `json:"message,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// timestampUTC returns the current UTC time in RFC3339 format.
func timestampUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// SendAlarmWebhook notifies the configured webhook of a triggered alarm.
func SendAlarmWebhook(webhookURL, stationName string, loudness, threshold float64, block int64) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "alarm_triggered",
		Loudness:  loudness,
		Threshold: threshold,
		Block:     block,
		Station:   stationName,
		Timestamp: timestampUTC(),
	})
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(webhookURL, stationName string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "test",
		Station:   stationName,
		Message:   "This is a test notification from " + stationName,
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
