// Package pipeline drives resolved cluster pairs through the batch phases and
// stages what they produce.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/edgeflow/internal/batch"
	"github.com/sells-group/edgeflow/internal/cluster"
	"github.com/sells-group/edgeflow/internal/model"
	"github.com/sells-group/edgeflow/internal/monitoring"
	"github.com/sells-group/edgeflow/internal/resilience"
	"github.com/sells-group/edgeflow/internal/store"
)

// Config is everything a Runner needs to know about a run besides its inputs.
type Config struct {
	// Enabled false forwards the edge inputs untouched.
	Enabled      bool
	Settings     Settings
	Capabilities cluster.Capabilities
	Options      cluster.Options
	// TickRate caps orchestration ticks per second. Zero or less is unlimited.
	TickRate float64
}

// Report is what a run produced.
type Report struct {
	RunID      string
	Resolution *cluster.Resolution
	Outputs    *model.Outputs
	Result     *model.RunResult
	TaskErrors []error
}

// Runner boots, drives and records runs.
type Runner struct {
	cfg     Config
	factory batch.Factory
	store   store.Store
	retry   resilience.RetryConfig
	hooks   Hooks
}

// Option configures a Runner.
type Option func(*Runner)

// WithHooks installs phase hooks. A Transition hook is chained after the
// runner's own phase recording.
func WithHooks(h Hooks) Option {
	return func(r *Runner) { r.hooks = h }
}

// WithRetry sets the retry policy for store writes.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(r *Runner) { r.retry = cfg }
}

// New creates a Runner. st may be nil, in which case nothing is persisted.
func New(cfg Config, factory batch.Factory, st store.Store, opts ...Option) *Runner {
	r := &Runner{
		cfg:     cfg,
		factory: factory,
		store:   st,
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one run over the collections in arena. A fatal boot error is
// returned with nothing staged; the report is still returned so callers can
// see the run ID.
func (r *Runner) Run(ctx context.Context, arena *model.Arena, in cluster.Inputs, spec model.RunSpec) (*Report, error) {
	log := zap.L().With(zap.String("component", "pipeline.runner"), zap.String("input", spec.Input))

	rec := newRecorder(r.store, r.retry)
	if err := rec.create(ctx, spec); err != nil {
		return nil, err
	}
	log = log.With(zap.String("run_id", rec.runID))
	log.Info("pipeline: starting run", zap.String("mode", string(spec.Mode)))

	rep := &Report{
		RunID:   rec.runID,
		Outputs: model.NewOutputs(),
		Result:  &model.RunResult{},
	}

	if !r.cfg.Enabled {
		log.Info("pipeline: disabled, passing inputs through")
		PassThrough(arena, rep.Outputs)
		rep.Result.StagedVtx = len(rep.Outputs.Pin(model.PinVtx))
		rep.Result.StagedEdge = len(rep.Outputs.Pin(model.PinEdges))
		return rep, rec.finish(ctx, rep.Result, rep.Outputs)
	}

	// Boot.
	rec.status(ctx, model.RunStatusBooting)
	var res *cluster.Resolution
	bootErr := rec.track(ctx, "boot", func() (*model.PhaseResult, error) {
		var err error
		res, err = cluster.NewResolver(arena, r.cfg.Capabilities, r.cfg.Options).Resolve(in)
		if err != nil {
			return nil, err
		}
		return &model.PhaseResult{
			Metadata: map[string]any{
				"pairs":    len(res.Pairs),
				"issues":   len(res.Issues),
				"orphans":  len(res.Orphans),
				"disabled": len(res.Disabled),
				"max_key":  res.MaxKey,
			},
		}, nil
	})
	if bootErr != nil {
		rec.fail(ctx, bootErr)
		return rep, eris.Wrap(bootErr, "pipeline: boot")
	}

	rep.Resolution = res
	rep.Result.Pairs = len(res.Pairs)
	rep.Result.Issues = len(res.Issues)
	for _, is := range res.Issues {
		monitoring.ObserveIssue(string(is.Kind))
	}

	hooks := r.hooks
	userTransition := hooks.Transition
	hooks.Transition = func(from, to State) {
		rec.transition(ctx, from, to)
		if userTransition != nil {
			userTransition(from, to)
		}
	}

	pc := NewContext(ctx, arena, res, rep.Outputs, r.cfg.Settings, hooks)
	defer pc.Close()

	if err := r.process(ctx, pc, rep); err != nil {
		rec.fail(ctx, err)
		return rep, err
	}

	// Output.
	_ = rec.track(ctx, "output", func() (*model.PhaseResult, error) {
		pc.OutputBatches()
		pc.OutputPointsAndEdges()
		return &model.PhaseResult{
			Metadata: map[string]any{
				"staged":  len(rep.Outputs.Staged()),
				"results": len(rep.Outputs.Results()),
				"graphs":  len(rep.Outputs.Graphs()),
			},
		}, nil
	})

	rep.Result.Batches = len(pc.Batches())
	rep.Result.StagedVtx = len(rep.Outputs.Pin(model.PinVtx))
	rep.Result.StagedEdge = len(rep.Outputs.Pin(model.PinEdges))
	rep.Result.Graphs = len(rep.Outputs.Graphs())
	rep.Result.Failures = len(rep.TaskErrors)

	if err := rec.finish(ctx, rep.Result, rep.Outputs); err != nil {
		return rep, err
	}

	log.Info("pipeline: run complete",
		zap.Int("pairs", rep.Result.Pairs),
		zap.Int("batches", rep.Result.Batches),
		zap.Int("staged_vtx", rep.Result.StagedVtx),
		zap.Int("staged_edges", rep.Result.StagedEdge),
		zap.Int("task_failures", rep.Result.Failures),
	)
	return rep, nil
}

// process starts the batches and drives them to StateDone.
func (r *Runner) process(ctx context.Context, pc *Context, rep *Report) error {
	if !pc.StartProcessingClusters(r.factory) {
		zap.L().Warn("pipeline: no batch created", zap.String("run_id", rep.RunID))
		pc.SetState(StateDone)
		return nil
	}

	compile := r.cfg.Settings.CompileGraph
	next := StateDone
	if compile {
		next = StateReadyToCompile
	}

	limit := rate.Inf
	if r.cfg.TickRate > 0 {
		limit = rate.Limit(r.cfg.TickRate)
	}
	limiter := rate.NewLimiter(limit, 1)

	if err := r.drive(ctx, pc, limiter, rep, func() bool { return pc.ProcessClusters(next, false) }); err != nil {
		return eris.Wrap(err, "pipeline: process clusters")
	}
	if compile {
		if err := r.drive(ctx, pc, limiter, rep, func() bool { return pc.CompileGraphBuilders(true, StateDone) }); err != nil {
			return eris.Wrap(err, "pipeline: compile graphs")
		}
	}
	return nil
}

// drive calls tick until it reports done. Between ticks it sleeps on the
// async manager's wake channel while work is in flight.
func (r *Runner) drive(ctx context.Context, pc *Context, limiter *rate.Limiter, rep *Report, tick func() bool) error {
	m := pc.Manager()
	for {
		done := tick()

		if errs := m.Errors(); len(errs) > 0 {
			monitoring.ObserveTaskFailures(len(errs))
			rep.TaskErrors = append(rep.TaskErrors, errs...)
		}
		n := pc.NumProcessors()
		monitoring.SetLiveProcessors(n)
		if n > rep.Result.Processors {
			rep.Result.Processors = n
		}

		if done {
			return nil
		}

		if !m.Idle() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-m.WakeC():
			}
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}
}
