// Package graph accumulates per-cluster contributions and compiles them into
// an exportable graph.
package graph

import (
	"slices"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// SRID stamped on compiled geometry.
const SRID = 4326

type nodeKey struct {
	cluster int64
	point   uint64
}

// Builder collects nodes and edges from many processors. Node identities are
// scoped by cluster key so that point IDs may repeat across clusters. Safe for
// concurrent use.
type Builder struct {
	mu     sync.Mutex
	ids    map[nodeKey]int64
	coords []geom.Coord
	edges  [][2]int64
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{ids: make(map[nodeKey]int64)}
}

// AddNode registers a point of cluster and returns its graph node ID. Adding
// the same point twice returns the original ID.
func (b *Builder) AddNode(cluster int64, point uint64, coord geom.Coord) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addNode(cluster, point, coord)
}

func (b *Builder) addNode(cluster int64, point uint64, coord geom.Coord) int64 {
	k := nodeKey{cluster: cluster, point: point}
	if id, ok := b.ids[k]; ok {
		return id
	}
	id := int64(len(b.coords))
	b.ids[k] = id
	b.coords = append(b.coords, coord)
	return id
}

// AddEdge links two points of cluster. Unknown points are added without a
// coordinate.
func (b *Builder) AddEdge(cluster int64, start, end uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.lookup(cluster, start)
	v := b.lookup(cluster, end)
	b.edges = append(b.edges, [2]int64{u, v})
}

func (b *Builder) lookup(cluster int64, point uint64) int64 {
	if id, ok := b.ids[nodeKey{cluster: cluster, point: point}]; ok {
		return id
	}
	return b.addNode(cluster, point, nil)
}

// Len returns the number of nodes and edges contributed so far.
func (b *Builder) Len() (nodes, edges int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.coords), len(b.edges)
}

// Reset releases everything contributed so far.
func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids = make(map[nodeKey]int64)
	b.coords = nil
	b.edges = nil
}

// Compiled is the exportable form of a builder.
type Compiled struct {
	Graph      *simple.UndirectedGraph
	Components [][]int
	Geometry   *geom.MultiLineString
	EWKB       []byte
}

// Compile converts the accumulated buffers into a gonum graph, its connected
// components and a MultiLineString of every edge whose endpoints both carry
// coordinates. Self loops and repeated edges collapse to one graph edge.
func (b *Builder) Compile() (*Compiled, error) {
	b.mu.Lock()
	coords := slices.Clone(b.coords)
	edges := slices.Clone(b.edges)
	b.mu.Unlock()

	g := simple.NewUndirectedGraph()
	for id := range coords {
		g.AddNode(simple.Node(int64(id)))
	}

	mls := geom.NewMultiLineString(geom.XYZ).SetSRID(SRID)
	for _, e := range edges {
		u, v := e[0], e[1]
		if u == v || g.HasEdgeBetween(u, v) {
			continue
		}
		g.SetEdge(g.NewEdge(simple.Node(u), simple.Node(v)))

		a, z := coords[u], coords[v]
		if len(a) == 0 || len(z) == 0 {
			continue
		}
		ls := geom.NewLineStringFlat(geom.XYZ, flatXYZ(a, z))
		if err := mls.Push(ls); err != nil {
			return nil, eris.Wrap(err, "graph: push edge geometry")
		}
	}

	out := &Compiled{
		Graph:      g,
		Components: Components(g),
		Geometry:   mls,
	}
	if mls.NumLineStrings() > 0 {
		data, err := ewkb.Marshal(mls, ewkb.NDR)
		if err != nil {
			return nil, eris.Wrap(err, "graph: encode EWKB")
		}
		out.EWKB = data
	}
	return out, nil
}

// Components returns the connected components of g, each sorted by node ID,
// ordered by their smallest node.
func Components(g *simple.UndirectedGraph) [][]int {
	cc := topo.ConnectedComponents(g)
	out := make([][]int, 0, len(cc))
	for _, c := range cc {
		ids := nodeIDs(c)
		slices.Sort(ids)
		out = append(out, ids)
	}
	slices.SortFunc(out, func(a, b []int) int { return a[0] - b[0] })
	return out
}

func nodeIDs(nodes []gonum.Node) []int {
	out := make([]int, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, int(n.ID()))
	}
	return out
}

func flatXYZ(cs ...geom.Coord) []float64 {
	out := make([]float64, 0, 3*len(cs))
	for _, c := range cs {
		var xyz [3]float64
		copy(xyz[:], c)
		out = append(out, xyz[:]...)
	}
	return out
}
