package batch

import (
	"context"

	"github.com/sells-group/edgeflow/internal/graph"
	"github.com/sells-group/edgeflow/internal/model"
)

// Cluster is the working set handed to one processor. Everything in it is
// owned by the processor for the duration of the run except Lookup and
// Builder, which are shared read-only and mutex-guarded respectively.
type Cluster struct {
	Batch      int
	Key        int64
	Vertex     *model.Collection
	Edges      []*model.Collection
	Lookup     *Lookup
	SortRules  []model.SortRule
	Filters    []model.FilterFactory
	Heuristics []model.HeuristicFactory
	// Builder is nil unless the run compiles graphs.
	Builder *graph.Builder
}

// Processor runs the per-cluster algorithm. Each phase method is called at
// most once, in order, from a worker goroutine.
type Processor interface {
	Process(ctx context.Context) error
	CompleteWork(ctx context.Context) error
	Write(ctx context.Context) error
	Output(out *model.Outputs)
	Cleanup()
}

// Factory creates the processor for one cluster.
type Factory interface {
	NewProcessor(c *Cluster) (Processor, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(c *Cluster) (Processor, error)

// NewProcessor calls f(c).
func (f FactoryFunc) NewProcessor(c *Cluster) (Processor, error) {
	return f(c)
}
