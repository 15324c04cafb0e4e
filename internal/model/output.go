package model

import "sync"

// Output pin names.
const (
	PinVtx   = "vtx"
	PinEdges = "edges"
)

// StagedData is one collection forwarded to an output pin.
type StagedData struct {
	Pin    string   `json:"pin"`
	Handle Handle   `json:"handle"`
	Name   string   `json:"name"`
	Tags   []string `json:"tags"`
}

// ClusterResult is what a processor reports for its cluster.
type ClusterResult struct {
	Batch      int            `json:"batch" yaml:"batch"`
	Vertex     string         `json:"vertex" yaml:"vertex"`
	Edges      []string       `json:"edges" yaml:"edges,flow"`
	Key        int64          `json:"key" yaml:"key"`
	Components int            `json:"components" yaml:"components"`
	ValidEdges int            `json:"valid_edges" yaml:"valid_edges"`
	Dropped    int            `json:"dropped_edges" yaml:"dropped_edges"`
	Metadata   map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// CompiledGraph is the exportable form of a batch's graph builder.
type CompiledGraph struct {
	Batch      int     `json:"batch"`
	Nodes      int     `json:"nodes"`
	Edges      int     `json:"edges"`
	Components [][]int `json:"components"`
	EWKB       []byte  `json:"ewkb"`
}

// Outputs collects everything a run stages. Safe for concurrent use; the
// writing and compiling phases stage from worker goroutines.
type Outputs struct {
	mu      sync.Mutex
	staged  []StagedData
	results []ClusterResult
	graphs  []CompiledGraph
}

// NewOutputs returns empty output slots.
func NewOutputs() *Outputs {
	return &Outputs{}
}

// Stage forwards c to pin with its tags flattened verbatim.
func (o *Outputs) Stage(pin string, c *Collection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.staged = append(o.staged, StagedData{
		Pin:    pin,
		Handle: c.Handle,
		Name:   c.Name,
		Tags:   c.Tags.Flatten(),
	})
}

// StageRaw forwards data that never entered an arena.
func (o *Outputs) StageRaw(d StagedData) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.staged = append(o.staged, d)
}

// AddResult records a cluster result.
func (o *Outputs) AddResult(r ClusterResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, r)
}

// AddGraph records a compiled graph.
func (o *Outputs) AddGraph(g CompiledGraph) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.graphs = append(o.graphs, g)
}

// Pin returns the data staged to pin, in staging order.
func (o *Outputs) Pin(pin string) []StagedData {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []StagedData
	for _, d := range o.staged {
		if d.Pin == pin {
			out = append(out, d)
		}
	}
	return out
}

// Staged returns a copy of all staged data.
func (o *Outputs) Staged() []StagedData {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]StagedData(nil), o.staged...)
}

// Results returns a copy of all cluster results.
func (o *Outputs) Results() []ClusterResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ClusterResult(nil), o.results...)
}

// Graphs returns a copy of all compiled graphs.
func (o *Outputs) Graphs() []CompiledGraph {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]CompiledGraph(nil), o.graphs...)
}

// Reset drops everything staged so far.
func (o *Outputs) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.staged = nil
	o.results = nil
	o.graphs = nil
}
