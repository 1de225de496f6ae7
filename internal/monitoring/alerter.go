package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hwvalue/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate  AlertType = "ingest_failure_rate"
	AlertZeroAccepted AlertType = "ingest_zero_accepted"
	AlertStale        AlertType = "ingest_stale"
)

// minFinishedRuns is how many finished runs the failure rate needs before
// it is trusted.
const minFinishedRuns = 3

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates run health against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the health snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(h *RunHealth) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := h.Completed + h.Failed
	if finished >= minFinishedRuns && h.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Ingestion failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				h.FailRate*100, a.cfg.FailureRateThreshold*100, h.Failed, finished, h.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": h.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       h.Failed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if h.ZeroAccepted > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertZeroAccepted,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d completed run(s) accepted no listings in last %dh",
				h.ZeroAccepted, h.LookbackHours,
			),
			Details: map[string]any{
				"zero_accepted": h.ZeroAccepted,
				"completed":     h.Completed,
			},
			Timestamp: now,
		})
	}

	if h.Total == 0 && h.LookbackHours > 0 {
		alerts = append(alerts, Alert{
			Type:      AlertStale,
			Severity:  "medium",
			Message:   fmt.Sprintf("No ingestion runs started in last %dh", h.LookbackHours),
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
