package pipeline

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/edgeflow/internal/batch"
	"github.com/sells-group/edgeflow/internal/cluster"
	"github.com/sells-group/edgeflow/internal/model"
)

// vtx adds a vertex-channel collection with three points on a line.
func vtx(a *model.Arena, name string, key int64) model.Handle {
	return a.Add(&model.Collection{
		Name:       name,
		Source:     model.ChannelVertices,
		Tags:       model.ParseTags([]string{model.TagVtx, model.TagCluster + ":" + strconv.FormatInt(key, 10)}),
		Attributes: []string{model.AttrVtxEndpoint},
		Points: []model.Point{
			{ID: 1, Coord: geom.Coord{0, 0, 0}},
			{ID: 2, Coord: geom.Coord{1, 0, 0}},
			{ID: 3, Coord: geom.Coord{2, 0, 0}},
		},
	})
}

// edges adds an edge-channel collection joining points 1-2.
func edges(a *model.Arena, name string, key int64) model.Handle {
	return a.Add(&model.Collection{
		Name:       name,
		Source:     model.ChannelEdges,
		Tags:       model.ParseTags([]string{model.TagEdges, model.TagCluster + ":" + strconv.FormatInt(key, 10)}),
		Attributes: []string{model.AttrEdgeEndpoints},
		Edges:      []model.Edge{{Start: 1, End: 2}},
	})
}

// workedExample builds vertices [Va:1, Vb:1, Vc:2] and edges [Ea:1, Eb:2, Ec:3].
func workedExample() (*model.Arena, cluster.Inputs) {
	a := model.NewArena()
	in := cluster.Inputs{
		Vertices: []model.Handle{vtx(a, "Va", 1), vtx(a, "Vb", 1), vtx(a, "Vc", 2)},
		Edges:    []model.Handle{edges(a, "Ea", 1), edges(a, "Eb", 2), edges(a, "Ec", 3)},
	}
	return a, in
}

// keyed builds n distinct pairs keyed 1..n.
func keyed(n int) (*model.Arena, cluster.Inputs) {
	a := model.NewArena()
	var in cluster.Inputs
	for i := 1; i <= n; i++ {
		k := int64(i)
		in.Vertices = append(in.Vertices, vtx(a, "V"+strconv.Itoa(i), k))
		in.Edges = append(in.Edges, edges(a, "E"+strconv.Itoa(i), k))
	}
	return a, in
}

func resolve(t *testing.T, a *model.Arena, in cluster.Inputs) *cluster.Resolution {
	t.Helper()
	res, err := cluster.NewResolver(a, cluster.Capabilities{}, cluster.Options{}).Resolve(in)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return res
}

// recordingFactory creates processors that append every phase they run to a
// shared event log.
type recordingFactory struct {
	mu      sync.Mutex
	events  []string
	made    []*recordingProcessor
	failKey map[string]bool
	// block, when set, holds Process until it is closed or ctx is done.
	block chan struct{}
	// onProcess runs at the start of Process.
	onProcess func()
}

func (f *recordingFactory) NewProcessor(c *batch.Cluster) (batch.Processor, error) {
	p := &recordingProcessor{f: f, c: c}
	f.mu.Lock()
	f.made = append(f.made, p)
	f.mu.Unlock()
	return p, nil
}

func (f *recordingFactory) log(event string, c *batch.Cluster) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event+":"+c.Vertex.Name)
}

func (f *recordingFactory) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *recordingFactory) Processors() []*recordingProcessor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*recordingProcessor(nil), f.made...)
}

type recordingProcessor struct {
	f       *recordingFactory
	c       *batch.Cluster
	cleaned atomic.Int32
}

func (p *recordingProcessor) Process(ctx context.Context) error {
	if p.f.onProcess != nil {
		p.f.onProcess()
	}
	if p.f.block != nil {
		select {
		case <-p.f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.f.log("process", p.c)
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
	if p.f.failKey[p.c.Vertex.Name] {
		return assertErr("process failed for " + p.c.Vertex.Name)
	}
	return nil
}

func (p *recordingProcessor) CompleteWork(context.Context) error {
	p.f.log("complete", p.c)
	return nil
}

func (p *recordingProcessor) Write(context.Context) error {
	p.f.log("write", p.c)
	return nil
}

func (p *recordingProcessor) Output(out *model.Outputs) {
	edgeNames := make([]string, 0, len(p.c.Edges))
	for _, e := range p.c.Edges {
		edgeNames = append(edgeNames, e.Name)
	}
	out.AddResult(model.ClusterResult{
		Batch:  p.c.Batch,
		Key:    p.c.Key,
		Vertex: p.c.Vertex.Name,
		Edges:  edgeNames,
	})
}

func (p *recordingProcessor) Cleanup() {
	p.cleaned.Add(1)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

// run drives tick to completion, waiting on the async manager between ticks.
func run(t *testing.T, pc *Context, tick func() bool) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		if tick() {
			return
		}
		pc.Manager().Wait()
	}
	t.Fatal("context never reached its next state")
}

func pinNames(data []model.StagedData) []string {
	out := make([]string, 0, len(data))
	for _, d := range data {
		out = append(out, d.Name)
	}
	return out
}

func resultVertices(results []model.ClusterResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Vertex)
	}
	return out
}
