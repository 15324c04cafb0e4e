package batch

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/stretchr/testify/mock"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/edgeflow/internal/cluster"
	"github.com/sells-group/edgeflow/internal/model"
)

// --- Processor Mock ---

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Process(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockProcessor) CompleteWork(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockProcessor) Write(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockProcessor) Output(out *model.Outputs) {
	m.Called(out)
}

func (m *mockProcessor) Cleanup() {
	m.Called()
}

// --- Counting fake ---

type countingProcessor struct {
	c         *Cluster
	processed atomic.Int32
	completed atomic.Int32
	written   atomic.Int32
	cleaned   atomic.Int32
	err       error
}

func (p *countingProcessor) Process(context.Context) error {
	p.processed.Add(1)
	if p.c.Builder != nil {
		for _, pt := range p.c.Vertex.Points {
			p.c.Builder.AddNode(p.c.Key, pt.ID, pt.Coord)
		}
		for _, e := range p.c.Edges {
			for _, edge := range e.Edges {
				p.c.Builder.AddEdge(p.c.Key, edge.Start, edge.End)
			}
		}
	}
	return p.err
}

func (p *countingProcessor) CompleteWork(context.Context) error {
	p.completed.Add(1)
	return nil
}

func (p *countingProcessor) Write(context.Context) error {
	p.written.Add(1)
	return nil
}

func (p *countingProcessor) Output(out *model.Outputs) {
	out.AddResult(model.ClusterResult{Batch: p.c.Batch, Key: p.c.Key, Vertex: p.c.Vertex.Name})
}

func (p *countingProcessor) Cleanup() {
	p.cleaned.Add(1)
}

type countingFactory struct {
	made []*countingProcessor
	err  map[int64]error
	fail map[int64]bool
}

func (f *countingFactory) NewProcessor(c *Cluster) (Processor, error) {
	if f.fail[c.Key] {
		return nil, assertErr("factory refused " + strconv.FormatInt(c.Key, 10))
	}
	p := &countingProcessor{c: c, err: f.err[c.Key]}
	f.made = append(f.made, p)
	return p, nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

// pairsOf adds one vertex/edge pair per key to a and returns the pairs.
func pairsOf(a *model.Arena, keys ...int64) []cluster.Pair {
	out := make([]cluster.Pair, 0, len(keys))
	for _, k := range keys {
		v := a.Add(&model.Collection{
			Name:   "v" + strconv.FormatInt(k, 10),
			Source: model.ChannelVertices,
			Points: []model.Point{
				{ID: 1, Coord: geom.Coord{0, 0, 0}},
				{ID: 2, Coord: geom.Coord{1, 0, 0}},
				{ID: 3, Coord: geom.Coord{2, 0, 0}},
			},
		})
		e := a.Add(&model.Collection{
			Name:   "e" + strconv.FormatInt(k, 10),
			Source: model.ChannelEdges,
			Edges:  []model.Edge{{Start: 1, End: 2}},
		})
		out = append(out, cluster.Pair{Key: k, Vertex: v, Edges: []model.Handle{e}})
	}
	return out
}
