// Package processor holds the reference cluster processor shipped with the
// CLI: it resolves edges against the vertex points, counts connected
// components and reports a per-cluster summary.
package processor

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/sells-group/edgeflow/internal/batch"
	"github.com/sells-group/edgeflow/internal/graph"
	"github.com/sells-group/edgeflow/internal/model"
)

// ErrNoLookup is returned when a cluster reaches Process without an index
// lookup.
var ErrNoLookup = eris.New("processor: cluster has no index lookup")

// resolvedEdge is an edge whose endpoints were found among the vertex points.
type resolvedEdge struct {
	source     string
	start, end int
	startID    uint64
	endID      uint64
	length     float64
}

// Components counts the connected components a cluster's edges form over its
// vertex points.
type Components struct {
	c   *batch.Cluster
	log *zap.Logger

	keep    []bool
	edges   []resolvedEdge
	dropped int

	components [][]int
	sortedBy   []string
	length     float64
	weighted   float64
}

// NewFactory returns the factory creating a Components processor per cluster.
func NewFactory() batch.Factory {
	return batch.FactoryFunc(func(c *batch.Cluster) (batch.Processor, error) {
		return New(c)
	})
}

// New creates the processor for c.
func New(c *batch.Cluster) (*Components, error) {
	if c == nil || c.Vertex == nil {
		return nil, eris.New("processor: cluster has no vertex collection")
	}
	return &Components{
		c: c,
		log: zap.L().With(
			zap.String("component", "processor.components"),
			zap.Int64("cluster", c.Key),
			zap.String("vertex", c.Vertex.Name),
		),
	}, nil
}

// Process resolves every edge endpoint through the lookup, drops edges that
// reference unknown or filtered points and builds the component graph.
func (p *Components) Process(ctx context.Context) error {
	if p.c.Lookup == nil {
		return ErrNoLookup
	}

	points := p.c.Vertex.Points
	keep, err := applyFilters(points, p.c.Filters)
	if err != nil {
		return eris.Wrapf(err, "processor: cluster %d", p.c.Key)
	}
	p.keep = keep

	g := simple.NewUndirectedGraph()
	for i := range points {
		if keep[i] {
			g.AddNode(simple.Node(i))
		}
	}

	for _, coll := range p.c.Edges {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, e := range coll.Edges {
			start, okStart := p.c.Lookup.Index(e.Start)
			end, okEnd := p.c.Lookup.Index(e.End)
			if !okStart || !okEnd || start == end || !keep[start] || !keep[end] {
				p.dropped++
				continue
			}
			p.edges = append(p.edges, resolvedEdge{
				source:  coll.Name,
				start:   start,
				end:     end,
				startID: e.Start,
				endID:   e.End,
				length:  distance(points[start].Coord, points[end].Coord),
			})
			if g.HasEdgeBetween(int64(start), int64(end)) {
				continue
			}
			g.SetEdge(g.NewEdge(simple.Node(start), simple.Node(end)))
		}
	}

	p.components = graph.Components(g)
	p.contribute()

	if p.dropped > 0 {
		p.log.Debug("edges dropped", zap.Int("dropped", p.dropped), zap.Int("valid", len(p.edges)))
	}
	return nil
}

// contribute adds the kept points and valid edges to the batch graph.
func (p *Components) contribute() {
	b := p.c.Builder
	if b == nil {
		return
	}
	for i, pt := range p.c.Vertex.Points {
		if p.keep[i] {
			b.AddNode(p.c.Key, pt.ID, pt.Coord)
		}
	}
	for _, e := range p.edges {
		b.AddEdge(p.c.Key, e.startID, e.endID)
	}
}

// CompleteWork orders the valid edges by the cluster's sort rules.
func (p *Components) CompleteWork(context.Context) error {
	p.sortedBy = sortEdges(p.edges, p.c.SortRules)
	return nil
}

// Write computes the cluster summary.
func (p *Components) Write(context.Context) error {
	p.length = 0
	for _, e := range p.edges {
		p.length += e.length
	}
	p.weighted = p.length
	for _, h := range p.c.Heuristics {
		p.weighted *= h.Weight
	}
	return nil
}

// Output stages the cluster result.
func (p *Components) Output(out *model.Outputs) {
	names := make([]string, 0, len(p.c.Edges))
	for _, e := range p.c.Edges {
		names = append(names, e.Name)
	}
	order := make([][2]uint64, 0, len(p.edges))
	for _, e := range p.edges {
		order = append(order, [2]uint64{e.startID, e.endID})
	}

	md := map[string]any{
		"length":     round(p.length),
		"edge_order": order,
	}
	if len(p.c.Heuristics) > 0 {
		md["weighted_length"] = round(p.weighted)
	}
	if len(p.sortedBy) > 0 {
		md["sorted_by"] = p.sortedBy
	}

	out.AddResult(model.ClusterResult{
		Batch:      p.c.Batch,
		Vertex:     p.c.Vertex.Name,
		Edges:      names,
		Key:        p.c.Key,
		Components: len(p.components),
		ValidEdges: len(p.edges),
		Dropped:    p.dropped,
		Metadata:   md,
	})
}

// Cleanup releases the per-cluster state.
func (p *Components) Cleanup() {
	p.keep = nil
	p.edges = nil
	p.components = nil
}

// ComponentSets returns the node index sets of each component.
func (p *Components) ComponentSets() [][]int {
	return p.components
}

func distance(a, b []float64) float64 {
	var sum float64
	for i := 0; i < len(a) && i < len(b); i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
