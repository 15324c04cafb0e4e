package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgeflow/internal/model"
	"github.com/sells-group/edgeflow/internal/monitoring"
	"github.com/sells-group/edgeflow/internal/resilience"
	"github.com/sells-group/edgeflow/internal/store"
)

// stateStatus maps the states that do timed work to the run status persisted
// while they are active.
var stateStatus = map[State]model.RunStatus{
	StateClusterProcessing:     model.RunStatusProcessing,
	StateClusterCompletingWork: model.RunStatusCompleting,
	StateClusterWriting:        model.RunStatusWriting,
	StateCompiling:             model.RunStatusCompiling,
}

type openPhase struct {
	id    string
	name  string
	start time.Time
}

// recorder persists a run and its phases. Every method is a no-op on the
// store side when no store is configured; phase results are still collected.
// Store failures are logged and never fail the run.
type recorder struct {
	store store.Store
	retry resilience.RetryConfig
	log   *zap.Logger

	runID string

	mu     sync.Mutex
	phases []model.PhaseResult
	open   *openPhase
}

func newRecorder(st store.Store, retry resilience.RetryConfig) *recorder {
	return &recorder{
		store: st,
		retry: retry,
		log:   zap.L().With(zap.String("component", "pipeline.recorder")),
	}
}

func (r *recorder) withRetry(op string) resilience.RetryConfig {
	cfg := r.retry
	cfg.OnRetry = resilience.RetryLogger("store", op)
	return cfg
}

// create opens the run record. Without a store the run still gets an ID.
func (r *recorder) create(ctx context.Context, spec model.RunSpec) error {
	if r.store == nil {
		r.runID = uuid.New().String()
		return nil
	}
	run, err := resilience.DoVal(ctx, r.withRetry("create_run"), func(ctx context.Context) (*model.Run, error) {
		return r.store.CreateRun(ctx, spec)
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: create run")
	}
	r.runID = run.ID
	return nil
}

func (r *recorder) status(ctx context.Context, status model.RunStatus) {
	if r.store == nil {
		return
	}
	err := resilience.Do(ctx, r.withRetry("update_run_status"), func(ctx context.Context) error {
		return r.store.UpdateRunStatus(ctx, r.runID, status)
	})
	if err != nil {
		r.log.Warn("pipeline: failed to update status", zap.String("status", string(status)), zap.Error(err))
	}
}

func (r *recorder) createPhase(ctx context.Context, name string) string {
	if r.store == nil {
		return ""
	}
	phase, err := resilience.DoVal(ctx, r.withRetry("create_phase"), func(ctx context.Context) (*model.RunPhase, error) {
		return r.store.CreatePhase(ctx, r.runID, name)
	})
	if err != nil {
		r.log.Warn("pipeline: failed to create phase", zap.String("phase", name), zap.Error(err))
		return ""
	}
	return phase.ID
}

func (r *recorder) completePhase(ctx context.Context, id string, pr *model.PhaseResult) {
	monitoring.ObservePhase(pr.Name, time.Duration(pr.Duration)*time.Millisecond)

	r.mu.Lock()
	r.phases = append(r.phases, *pr)
	r.mu.Unlock()

	if r.store == nil || id == "" {
		return
	}
	err := resilience.Do(ctx, r.withRetry("complete_phase"), func(ctx context.Context) error {
		return r.store.CompletePhase(ctx, id, pr)
	})
	if err != nil {
		r.log.Warn("pipeline: failed to complete phase", zap.String("phase", pr.Name), zap.Error(err))
	}
}

// track runs fn as a named phase and records its outcome.
func (r *recorder) track(ctx context.Context, name string, fn func() (*model.PhaseResult, error)) error {
	id := r.createPhase(ctx, name)

	start := time.Now()
	pr, fnErr := fn()
	duration := time.Since(start).Milliseconds()

	if pr == nil {
		pr = &model.PhaseResult{}
	}
	pr.Name = name
	pr.Duration = duration

	if fnErr != nil {
		pr.Status = model.PhaseStatusFailed
		pr.Error = fnErr.Error()
		r.log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.Error(fnErr),
		)
	} else {
		pr.Status = model.PhaseStatusComplete
		r.log.Info("pipeline: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
		)
	}

	r.completePhase(ctx, id, pr)
	return fnErr
}

// transition closes the phase of the state being left and opens one for the
// state being entered when that state does timed work.
func (r *recorder) transition(ctx context.Context, _ State, to State) {
	r.closeOpen(ctx, model.PhaseStatusComplete, "")

	status, timed := stateStatus[to]
	if !timed {
		return
	}
	r.status(ctx, status)
	r.open = &openPhase{
		id:    r.createPhase(ctx, to.String()),
		name:  to.String(),
		start: time.Now(),
	}
}

func (r *recorder) closeOpen(ctx context.Context, status model.PhaseStatus, errMsg string) {
	if r.open == nil {
		return
	}
	op := r.open
	r.open = nil
	r.completePhase(ctx, op.id, &model.PhaseResult{
		Name:     op.name,
		Status:   status,
		Duration: time.Since(op.start).Milliseconds(),
		Error:    errMsg,
	})
}

// fail marks the run failed. The store write outlives ctx cancellation.
func (r *recorder) fail(ctx context.Context, runErr error) {
	ctx = context.WithoutCancel(ctx)
	r.closeOpen(ctx, model.PhaseStatusFailed, runErr.Error())
	monitoring.ObserveRun(string(model.RunStatusFailed))
	if r.store == nil {
		return
	}
	err := resilience.Do(ctx, r.withRetry("fail_run"), func(ctx context.Context) error {
		return r.store.FailRun(ctx, r.runID, runErr.Error())
	})
	if err != nil {
		r.log.Warn("pipeline: failed to record run failure", zap.Error(err))
	}
}

// finish persists the staged outputs and the final result.
func (r *recorder) finish(ctx context.Context, result *model.RunResult, out *model.Outputs) error {
	r.closeOpen(ctx, model.PhaseStatusComplete, "")
	result.Phases = r.results()
	monitoring.ObserveRun(string(model.RunStatusComplete))
	if r.store == nil {
		return nil
	}

	staged, results := out.Staged(), out.Results()
	err := resilience.Do(ctx, r.withRetry("save_outputs"), func(ctx context.Context) error {
		return r.store.SaveOutputs(ctx, r.runID, staged, results)
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: save outputs")
	}
	err = resilience.Do(ctx, r.withRetry("update_run_result"), func(ctx context.Context) error {
		return r.store.UpdateRunResult(ctx, r.runID, result)
	})
	return eris.Wrap(err, "pipeline: update run result")
}

func (r *recorder) results() []model.PhaseResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.PhaseResult(nil), r.phases...)
}
