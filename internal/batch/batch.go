// Package batch groups cluster pairs into scheduling units and drives their
// processors through each phase.
package batch

import (
	"context"
	"strconv"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgeflow/internal/async"
	"github.com/sells-group/edgeflow/internal/cluster"
	"github.com/sells-group/edgeflow/internal/graph"
	"github.com/sells-group/edgeflow/internal/model"
)

// DefaultScopedLookupThreshold is the point count above which a scoped
// lookup build is worth its fan-out.
const DefaultScopedLookupThreshold = 4096

// ErrNotScheduled is returned when a phase is requested before ScheduleOn.
var ErrNotScheduled = eris.New("batch: not scheduled")

// Options configure a batch.
type Options struct {
	SkipCompletion        bool
	CompileGraph          bool
	ScopedLookupThreshold int
	SortRules             []model.SortRule
	Filters               []model.FilterFactory
	Heuristics            []model.HeuristicFactory
}

// Batch owns one or more cluster pairs and their processors.
type Batch struct {
	Index          int
	SkipCompletion bool

	arena   *model.Arena
	pairs   []cluster.Pair
	factory Factory
	out     *model.Outputs
	opts    Options

	mu         sync.Mutex
	manager    *async.Manager
	processors []Processor
	lookups    []*Lookup
	builder    *graph.Builder
	compiled   *graph.Compiled

	cleanupOnce sync.Once
	cleaned     bool
	log         *zap.Logger
}

// New creates a batch over a non-empty set of pairs. Processors are created
// lazily once the batch is scheduled.
func New(index int, arena *model.Arena, pairs []cluster.Pair, factory Factory, out *model.Outputs, opts Options) (*Batch, error) {
	if len(pairs) == 0 {
		return nil, eris.New("batch: no cluster pairs")
	}
	if factory == nil {
		return nil, eris.New("batch: nil processor factory")
	}
	if opts.ScopedLookupThreshold <= 0 {
		opts.ScopedLookupThreshold = DefaultScopedLookupThreshold
	}
	b := &Batch{
		Index:          index,
		SkipCompletion: opts.SkipCompletion,
		arena:          arena,
		pairs:          pairs,
		factory:        factory,
		out:            out,
		opts:           opts,
		log:            zap.L().With(zap.String("component", "batch"), zap.Int("batch", index)),
	}
	if opts.CompileGraph {
		b.builder = graph.NewBuilder()
	}
	return b, nil
}

// Pairs returns the cluster pairs owned by the batch.
func (b *Batch) Pairs() []cluster.Pair {
	return b.pairs
}

// ScheduleOn begins the processing phase on m: the index lookups are built,
// one processor is created per pair, and every processor runs Process
// concurrently. With scopedLookupBuild, large vertex sets are indexed across
// worker partitions instead of on a single goroutine.
func (b *Batch) ScheduleOn(m *async.Manager, scopedLookupBuild bool) {
	b.mu.Lock()
	b.manager = m
	b.mu.Unlock()

	m.Launch(b.phase("prepare"), func(ctx context.Context) error {
		if err := b.prepare(ctx, scopedLookupBuild); err != nil {
			return err
		}
		b.launchEach(m, "processing", func(ctx context.Context, p Processor) error {
			return p.Process(ctx)
		})
		return nil
	})
}

func (b *Batch) prepare(ctx context.Context, scoped bool) error {
	lookups := make([]*Lookup, len(b.pairs))
	for i, pair := range b.pairs {
		points := b.arena.Get(pair.Vertex).Points
		if scoped && len(points) >= b.opts.ScopedLookupThreshold {
			l, err := BuildLookupScoped(ctx, points, 0)
			if err != nil {
				return eris.Wrapf(err, "batch %d: scoped lookup build", b.Index)
			}
			lookups[i] = l
			continue
		}
		lookups[i] = BuildLookup(points)
	}

	processors := make([]Processor, 0, len(b.pairs))
	for i, pair := range b.pairs {
		c := &Cluster{
			Batch:      b.Index,
			Key:        pair.Key,
			Vertex:     b.arena.Get(pair.Vertex),
			Lookup:     lookups[i],
			SortRules:  b.opts.SortRules,
			Filters:    b.opts.Filters,
			Heuristics: b.opts.Heuristics,
			Builder:    b.builder,
		}
		for _, h := range pair.Edges {
			c.Edges = append(c.Edges, b.arena.Get(h))
		}
		p, err := b.factory.NewProcessor(c)
		if err != nil {
			b.log.Warn("processor creation failed", zap.Int64("key", pair.Key), zap.Error(err))
			continue
		}
		processors = append(processors, p)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cleaned {
		for _, p := range processors {
			p.Cleanup()
		}
		return eris.Wrapf(ErrNotScheduled, "batch %d: cleaned up during prepare", b.Index)
	}
	b.lookups = lookups
	b.processors = processors
	b.log.Debug("processors created", zap.Int("processors", len(processors)))
	return nil
}

// CompleteWork runs every processor's completion step.
func (b *Batch) CompleteWork() error {
	return b.run("completing", func(ctx context.Context, p Processor) error {
		return p.CompleteWork(ctx)
	})
}

// Write runs every processor's writing step.
func (b *Batch) Write() error {
	return b.run("writing", func(ctx context.Context, p Processor) error {
		return p.Write(ctx)
	})
}

// Output stages every processor's results. Runs on the calling goroutine.
func (b *Batch) Output() {
	if b.out == nil {
		return
	}
	for _, p := range b.snapshot() {
		p.Output(b.out)
	}
}

// CompileGraphBuilder compiles the graph the batch's processors contributed.
// With outputToContext the compiled graph is also staged to the run outputs.
func (b *Batch) CompileGraphBuilder(outputToContext bool) error {
	b.mu.Lock()
	m, builder := b.manager, b.builder
	b.mu.Unlock()
	if m == nil {
		return eris.Wrapf(ErrNotScheduled, "batch %d: compiling", b.Index)
	}
	if builder == nil {
		return nil
	}

	m.Launch(b.phase("compiling"), func(context.Context) error {
		compiled, err := builder.Compile()
		if err != nil {
			return eris.Wrapf(err, "batch %d: compile graph", b.Index)
		}
		b.mu.Lock()
		b.compiled = compiled
		b.mu.Unlock()

		if outputToContext && b.out != nil {
			nodes, edges := builder.Len()
			b.out.AddGraph(model.CompiledGraph{
				Batch:      b.Index,
				Nodes:      nodes,
				Edges:      compiled.Graph.Edges().Len(),
				Components: compiled.Components,
				EWKB:       compiled.EWKB,
			})
			b.log.Debug("graph staged", zap.Int("nodes", nodes), zap.Int("contributed_edges", edges))
		}
		return nil
	})
	return nil
}

// Compiled returns the last compiled graph, or nil.
func (b *Batch) Compiled() *graph.Compiled {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.compiled
}

// NumProcessors returns the number of live processors.
func (b *Batch) NumProcessors() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.processors)
}

// Cleanup releases every processor, the lookups and any graph builder state.
// Safe to call more than once and before the batch was ever scheduled.
func (b *Batch) Cleanup() {
	b.cleanupOnce.Do(func() {
		b.mu.Lock()
		processors := b.processors
		b.processors = nil
		b.lookups = nil
		b.compiled = nil
		b.cleaned = true
		builder := b.builder
		b.mu.Unlock()

		for _, p := range processors {
			p.Cleanup()
		}
		if builder != nil {
			builder.Reset()
		}
		b.log.Debug("batch cleaned up", zap.Int("processors", len(processors)))
	})
}

// CleanedUp reports whether Cleanup has run.
func (b *Batch) CleanedUp() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cleaned
}

func (b *Batch) run(phase string, fn func(context.Context, Processor) error) error {
	b.mu.Lock()
	m := b.manager
	b.mu.Unlock()
	if m == nil {
		return eris.Wrapf(ErrNotScheduled, "batch %d: %s", b.Index, phase)
	}
	b.launchEach(m, phase, fn)
	return nil
}

func (b *Batch) launchEach(m *async.Manager, phase string, fn func(context.Context, Processor) error) {
	processors := b.snapshot()
	tasks := make([]async.Task, 0, len(processors))
	for _, p := range processors {
		tasks = append(tasks, func(ctx context.Context) error {
			return fn(ctx, p)
		})
	}
	m.Launch(b.phase(phase), tasks...)
}

func (b *Batch) snapshot() []Processor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Processor(nil), b.processors...)
}

func (b *Batch) phase(name string) string {
	return "batch[" + strconv.Itoa(b.Index) + "]/" + name
}
