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

	"github.com/sells-group/edgeflow/internal/config"
	"github.com/sells-group/edgeflow/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertTaskFailures   AlertType = "task_failures"
	AlertStalledRuns    AlertType = "stalled_runs"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig, retry resilience.RetryConfig) *Alerter {
	retry.OnRetry = resilience.RetryLogger("monitoring.alerter", "webhook")
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  retry,
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	minRuns := a.cfg.MinFinishedRuns
	if minRuns <= 0 {
		minRuns = 5
	}

	finished := snap.RunsComplete + snap.RunsFailed
	if finished >= minRuns && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if a.cfg.TaskFailureThreshold > 0 && snap.TaskFailures > a.cfg.TaskFailureThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertTaskFailures,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d background task failure(s) exceed threshold %d in last %dh",
				snap.TaskFailures, a.cfg.TaskFailureThreshold, snap.LookbackHours,
			),
			Details: map[string]any{
				"task_failures": snap.TaskFailures,
				"threshold":     a.cfg.TaskFailureThreshold,
				"runs_complete": snap.RunsComplete,
			},
			Timestamp: now,
		})
	}

	if snap.RunsStalled > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertStalledRuns,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d run(s) have not progressed in %dm",
				snap.RunsStalled, a.cfg.StalledAfterMins,
			),
			Details: map[string]any{
				"stalled":   snap.RunsStalled,
				"in_flight": snap.RunsInFlight,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// Notification is the webhook payload: every alert raised by one check.
type Notification struct {
	Source string    `json:"source"`
	SentAt time.Time `json:"sent_at"`
	Alerts []Alert   `json:"alerts"`
}

// Notify posts alerts to the configured webhook as one Notification. It is a
// no-op without a webhook or alerts. Server errors and throttling are retried.
func (a *Alerter) Notify(ctx context.Context, alerts []Alert) error {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return nil
	}

	payload, err := json.Marshal(Notification{
		Source: "edgeflow",
		SentAt: time.Now().UTC(),
		Alerts: alerts,
	})
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal notification")
	}

	err = resilience.Do(ctx, a.retry, func(ctx context.Context) error {
		return a.post(ctx, payload)
	})
	if err != nil {
		return eris.Wrap(err, "monitoring: notify")
	}

	zap.L().Info("monitoring: alerts delivered", zap.Int("alerts", len(alerts)))
	return nil
}

func (a *Alerter) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "edgeflow-monitor")

	resp, err := a.client.Do(req)
	if err != nil {
		return resilience.Transient(eris.Wrap(err, "monitoring: webhook request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 300 {
		return nil
	}
	err = eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return resilience.Transient(err)
	}
	return err
}
