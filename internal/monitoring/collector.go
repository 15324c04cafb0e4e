package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/edgeflow/internal/model"
	"github.com/sells-group/edgeflow/internal/store"
)

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	// Runs created within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsInFlight int     `json:"runs_in_flight"`
	RunsStalled  int     `json:"runs_stalled"`
	FailRate     float64 `json:"fail_rate"`

	// Totals over completed runs.
	AvgPairs       float64 `json:"avg_pairs"`
	AvgDurationMs  int64   `json:"avg_duration_ms"`
	TaskFailures   int     `json:"task_failures"`
	Issues         int     `json:"issues"`
	StagedVertices int     `json:"staged_vertices"`
	StagedEdges    int     `json:"staged_edges"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the slice of store.Store the collector reads from.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers run metrics from the store.
type Collector struct {
	runs         RunLister
	stalledAfter time.Duration
	now          func() time.Time
}

// NewCollector creates a new metrics collector. Runs still in flight whose
// last update is older than stalledAfter are counted as stalled; zero
// disables the check.
func NewCollector(runs RunLister, stalledAfter time.Duration) *Collector {
	return &Collector{
		runs:         runs,
		stalledAfter: stalledAfter,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var totalPairs int
	var totalDuration int64

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		default:
			snap.RunsInFlight++
			if c.stalledAfter > 0 && now.Sub(r.UpdatedAt) > c.stalledAfter {
				snap.RunsStalled++
			}
		}
		if r.Result == nil {
			continue
		}
		totalPairs += r.Result.Pairs
		snap.TaskFailures += r.Result.Failures
		snap.Issues += r.Result.Issues
		snap.StagedVertices += r.Result.StagedVtx
		snap.StagedEdges += r.Result.StagedEdge
		for _, p := range r.Result.Phases {
			totalDuration += p.Duration
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.RunsComplete > 0 {
		snap.AvgPairs = float64(totalPairs) / float64(snap.RunsComplete)
		snap.AvgDurationMs = totalDuration / int64(snap.RunsComplete)
	}

	return snap, nil
}
