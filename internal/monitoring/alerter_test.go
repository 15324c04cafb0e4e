package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/edgeflow/internal/config"
	"github.com/sells-group/edgeflow/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
		TaskFailureThreshold: 10,
	}, fastRetry())

	snap := &MetricsSnapshot{
		RunsTotal:     100,
		RunsComplete:  95,
		RunsFailed:    5,
		FailRate:      0.05,
		TaskFailures:  3,
		LookbackHours: 24,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_RunFailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10}, fastRetry())

	snap := &MetricsSnapshot{
		RunsTotal:     20,
		RunsComplete:  12,
		RunsFailed:    8,
		FailRate:      0.4,
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Equal(t, 20, alerts[0].Details["finished"])
}

func TestAlerter_Evaluate_BelowMinRuns(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10, MinFinishedRuns: 10}, fastRetry())

	snap := &MetricsSnapshot{RunsComplete: 2, RunsFailed: 3, FailRate: 0.6}
	assert.Empty(t, a.Evaluate(snap))

	// Unset minimum falls back to five finished runs.
	a = NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10}, fastRetry())
	assert.Len(t, a.Evaluate(snap), 1)
}

func TestAlerter_Evaluate_TaskFailures(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1, TaskFailureThreshold: 2}, fastRetry())

	alerts := a.Evaluate(&MetricsSnapshot{TaskFailures: 3, LookbackHours: 6})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertTaskFailures, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)

	// Zero threshold disables the check.
	a = NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1}, fastRetry())
	assert.Empty(t, a.Evaluate(&MetricsSnapshot{TaskFailures: 100}))
}

func TestAlerter_Evaluate_StalledRuns(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1, StalledAfterMins: 30}, fastRetry())

	alerts := a.Evaluate(&MetricsSnapshot{RunsInFlight: 3, RunsStalled: 2})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStalledRuns, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "30m")
}

func TestAlerter_Notify(t *testing.T) {
	var received []Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var n Notification
		require.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		received = append(received, n)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL}, fastRetry())
	err := a.Notify(context.Background(), []Alert{
		{Type: AlertRunFailureRate, Severity: "high", Message: "one"},
		{Type: AlertStalledRuns, Severity: "high", Message: "two"},
	})
	require.NoError(t, err)

	require.Len(t, received, 1)
	assert.Equal(t, "edgeflow", received[0].Source)
	require.Len(t, received[0].Alerts, 2)
	assert.Equal(t, AlertRunFailureRate, received[0].Alerts[0].Type)
	assert.Equal(t, "two", received[0].Alerts[1].Message)
}

func TestAlerter_Notify_NoWebhook(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{}, fastRetry())
	assert.NoError(t, a.Notify(context.Background(), []Alert{{Type: AlertTaskFailures}}))
}

func TestAlerter_Notify_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL}, fastRetry())
	require.NoError(t, a.Notify(context.Background(), []Alert{{Type: AlertStalledRuns}}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestAlerter_Notify_GivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL}, fastRetry())
	err := a.Notify(context.Background(), []Alert{{Type: AlertStalledRuns}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Equal(t, int32(3), calls.Load())
}

func TestAlerter_Notify_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL}, fastRetry())
	err := a.Notify(context.Background(), []Alert{{Type: AlertStalledRuns}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}
