package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgeflow/internal/async"
	"github.com/sells-group/edgeflow/internal/batch"
	"github.com/sells-group/edgeflow/internal/cluster"
	"github.com/sells-group/edgeflow/internal/model"
	"github.com/sells-group/edgeflow/internal/monitoring"
)

// Settings are the per-run toggles read by the context.
type Settings struct {
	// Inline processes one batch at a time instead of all batches in lockstep.
	Inline bool
	// BatchSize is the number of cluster pairs grouped into one batch.
	BatchSize int
	// MaxWorkers bounds concurrent tasks per phase group.
	MaxWorkers int

	ScopedIndexLookupBuild bool
	ScopedLookupThreshold  int

	// SkipCompletion marks every batch as bypassing its completion step.
	SkipCompletion bool
	// SkipBatchCompletionStep skips the completing-work phase for the run.
	SkipBatchCompletionStep bool
	// DoBatchWritingStep enables the writing phase.
	DoBatchWritingStep bool
	// CompileGraph gives every batch a graph builder.
	CompileGraph bool
}

// Context is the orchestrator of a run. It owns the batches and advances
// them through their phases. All methods except NumProcessors must be called
// from a single goroutine.
type Context struct {
	arena    *model.Arena
	res      *cluster.Resolution
	settings Settings
	hooks    Hooks
	out      *model.Outputs
	manager  *async.Manager
	sched    scheduler
	log      *zap.Logger

	state    State
	async    bool
	batches  []*batch.Batch
	staged   map[int]bool
	enabled  bool
	nextKey  int64
	vtxIndex int

	currentVtx        model.Handle
	currentKey        int64
	currentEdges      []model.Handle
	currentEdgesIndex int

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewContext creates a context over a resolved run. The scheduling strategy
// is fixed here for the lifetime of the context.
func NewContext(ctx context.Context, arena *model.Arena, res *cluster.Resolution, out *model.Outputs, settings Settings, hooks Hooks) *Context {
	if settings.BatchSize <= 0 {
		settings.BatchSize = 1
	}
	if out == nil {
		out = model.NewOutputs()
	}
	c := &Context{
		arena:             arena,
		res:               res,
		settings:          settings,
		hooks:             hooks,
		out:               out,
		manager:           async.New(ctx, settings.MaxWorkers),
		staged:            make(map[int]bool),
		nextKey:           res.MaxKey + 1,
		vtxIndex:          -1,
		currentVtx:        model.InvalidHandle,
		currentEdgesIndex: -1,
		log:               zap.L().With(zap.String("component", "pipeline.context")),
	}
	if settings.Inline {
		c.sched = &inlineScheduler{cursor: -1}
	} else {
		c.sched = &parallelScheduler{}
	}
	return c
}

// State returns the current state.
func (c *Context) State() State { return c.state }

// IsAsync reports whether the current state was entered as an asynchronous
// wait.
func (c *Context) IsAsync() bool { return c.async }

// SetState moves the context to s.
func (c *Context) SetState(s State) { c.setState(s, false) }

// SetAsyncState moves the context to s and marks it as waiting on async work.
func (c *Context) SetAsyncState(s State) { c.setState(s, true) }

func (c *Context) setState(s State, isAsync bool) {
	from := c.state
	c.state = s
	c.async = isAsync
	if from == s {
		return
	}
	c.log.Debug("state transition", zap.Stringer("from", from), zap.Stringer("to", s))
	monitoring.ObserveTransition(s.String())
	if c.hooks.Transition != nil {
		c.hooks.Transition(from, s)
	}
}

// Manager returns the async manager driving phase work.
func (c *Context) Manager() *async.Manager { return c.manager }

// Outputs returns the run's output slots.
func (c *Context) Outputs() *model.Outputs { return c.out }

// Batches returns the batches created by StartProcessingClusters.
func (c *Context) Batches() []*batch.Batch { return c.batches }

// AdvanceVertices moves to the next paired vertex collection. The vertex is
// given a fresh cluster key scoped to this context and its edge collections
// are marked with the same key. The edge cursor is reset.
func (c *Context) AdvanceVertices() bool {
	c.vtxIndex++
	c.currentEdgesIndex = -1
	if c.vtxIndex >= len(c.res.Pairs) {
		c.currentVtx = model.InvalidHandle
		c.currentEdges = nil
		return false
	}

	pair := c.res.Pairs[c.vtxIndex]
	key := c.nextKey
	c.nextKey++

	c.currentVtx = pair.Vertex
	c.currentKey = key
	c.currentEdges = pair.Edges
	c.arena.Get(pair.Vertex).Tags.Set(model.TagCluster, key)
	for _, h := range pair.Edges {
		c.arena.Get(h).Tags.Set(model.TagCluster, key)
	}
	return true
}

// AdvanceEdges moves to the next edge collection of the current vertex.
func (c *Context) AdvanceEdges() bool {
	if c.currentVtx == model.InvalidHandle {
		return false
	}
	c.currentEdgesIndex++
	return c.currentEdgesIndex < len(c.currentEdges)
}

// CurrentVertex returns the vertex collection being consumed.
func (c *Context) CurrentVertex() model.Handle { return c.currentVtx }

// CurrentKey returns the resolved key of the vertex being consumed.
func (c *Context) CurrentKey() int64 { return c.currentKey }

// CurrentEdges returns the edge collection under the edge cursor.
func (c *Context) CurrentEdges() model.Handle {
	if c.currentEdgesIndex < 0 || c.currentEdgesIndex >= len(c.currentEdges) {
		return model.InvalidHandle
	}
	return c.currentEdges[c.currentEdgesIndex]
}

// StartProcessingClusters consumes every pair, groups them into batches and
// starts the first phase. It returns false when no batch could be created.
func (c *Context) StartProcessingClusters(factory batch.Factory) bool {
	if c.manager.Terminated() {
		return false
	}

	opts := batch.Options{
		SkipCompletion:        c.settings.SkipCompletion,
		CompileGraph:          c.settings.CompileGraph,
		ScopedLookupThreshold: c.settings.ScopedLookupThreshold,
		SortRules:             c.res.SortRules,
		Filters:               c.res.Filters,
		Heuristics:            c.res.Heuristics,
	}

	var group []cluster.Pair
	flush := func() {
		if len(group) == 0 {
			return
		}
		b, err := batch.New(len(c.batches), c.arena, group, factory, c.out, opts)
		group = nil
		if err != nil {
			c.log.Warn("batch creation failed", zap.Error(eris.Wrap(err, "start processing clusters")))
			return
		}
		if c.hooks.BatchCreated != nil {
			c.hooks.BatchCreated(b)
		}
		c.batches = append(c.batches, b)
	}

	for c.AdvanceVertices() {
		group = append(group, cluster.Pair{Key: c.currentKey, Vertex: c.currentVtx, Edges: c.currentEdges})
		if len(group) >= c.settings.BatchSize {
			flush()
		}
	}
	flush()

	if len(c.batches) == 0 {
		return false
	}

	monitoring.ObserveBatches(len(c.batches))
	c.log.Info("batches created",
		zap.Int("batches", len(c.batches)),
		zap.Int("pairs", len(c.res.Pairs)),
		zap.Bool("inline", c.settings.Inline),
	)

	c.enabled = true
	c.sched.start(c)
	return true
}

// ProcessClusters advances the batch phases. It returns false while work is
// in flight and true once every batch has finished every enabled phase, at
// which point the context has moved to next. Safe to call on every tick.
func (c *Context) ProcessClusters(next State, nextAsync bool) bool {
	if !c.enabled {
		return true
	}
	return c.sched.tick(c, next, nextAsync)
}

// CompileGraphBuilders runs the graph compilation barrier. Callers reach it
// by passing StateReadyToCompile to ProcessClusters. It returns true once
// every batch has compiled and the context has moved to next. While batch
// phases are still running it reports false; in any other state there is
// nothing to compile and it reports true.
func (c *Context) CompileGraphBuilders(outputToContext bool, next State) bool {
	switch c.state {
	case StateReadyToCompile:
		c.SetAsyncState(StateCompiling)
		for _, b := range c.batches {
			if err := b.CompileGraphBuilder(outputToContext); err != nil {
				c.log.Warn("graph compilation skipped", zap.Int("batch", b.Index), zap.Error(err))
			}
		}
		return false
	case StateCompiling:
		if !c.manager.Idle() {
			return false
		}
		call(c.hooks.GraphCompilationDone)
		c.SetState(next)
		return true
	default:
		return !(c.enabled && c.state.clusterPhase())
	}
}

// OutputBatches stages the results of every batch not yet staged.
func (c *Context) OutputBatches() {
	for _, b := range c.batches {
		c.outputBatch(b)
	}
}

func (c *Context) outputBatch(b *batch.Batch) {
	if c.staged[b.Index] {
		return
	}
	c.staged[b.Index] = true
	b.Output()
}

// NumProcessors returns the live processor count across every batch.
func (c *Context) NumProcessors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += b.NumProcessors()
	}
	return n
}

// Close terminates outstanding work and cleans up every batch exactly once.
// Safe at any state and more than once.
func (c *Context) Close() {
	c.closeOnce.Do(func() {
		c.manager.Terminate()
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, b := range c.batches {
			b.Cleanup()
		}
		c.enabled = false
		c.log.Debug("context closed", zap.Int("batches", len(c.batches)), zap.Stringer("state", c.state))
	})
}

func (c *Context) finish(next State, nextAsync bool) bool {
	c.enabled = false
	c.setState(next, nextAsync)
	return true
}

func (c *Context) scheduleAll(fn func(b *batch.Batch) error) {
	for _, b := range c.batches {
		if err := fn(b); err != nil {
			c.log.Warn("batch phase not scheduled", zap.Int("batch", b.Index), zap.Error(err))
		}
	}
}
