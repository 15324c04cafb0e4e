package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/edgeflow/internal/config"
	"github.com/sells-group/edgeflow/internal/model"
)

func TestChecker_Check(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	now := time.Now().UTC()
	runs := &fakeRuns{}
	for i := 0; i < 5; i++ {
		runs.runs = append(runs.runs, model.Run{Status: model.RunStatusFailed, CreatedAt: now.Add(-time.Minute)})
	}

	cfg := config.MonitoringConfig{
		WebhookURL:           srv.URL,
		FailureRateThreshold: 0.25,
		LookbackWindowHours:  24,
	}
	c := NewChecker(NewCollector(runs, 0), NewAlerter(cfg, fastRetry()), cfg)

	snap, alerts := c.Check(context.Background())
	require.NotNil(t, snap)
	assert.Equal(t, 5, snap.RunsFailed)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, int32(1), hits.Load())
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 1}
	c := NewChecker(NewCollector(&fakeRuns{listErr: eris.New("db down")}, 0), NewAlerter(cfg, fastRetry()), cfg)

	snap, alerts := c.Check(context.Background())
	assert.Nil(t, snap)
	assert.Nil(t, alerts)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 1, CheckIntervalSecs: 1}
	runs := &fakeRuns{}
	c := NewChecker(NewCollector(runs, 0), NewAlerter(cfg, fastRetry()), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(runs.snapshotFilters()) >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop after cancel")
	}
}
