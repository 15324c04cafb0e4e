package manifest

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/edgeflow/internal/model"
)

// Document is the output written for a finished run.
type Document struct {
	RunID   string                `yaml:"run_id"`
	Vtx     []Staged              `yaml:"vtx"`
	Edges   []Staged              `yaml:"edges"`
	Results []model.ClusterResult `yaml:"results"`
	Graphs  []Graph               `yaml:"graphs,omitempty"`
	Issues  []Issue               `yaml:"issues,omitempty"`
}

// Staged is one forwarded collection.
type Staged struct {
	Name string   `yaml:"name"`
	Tags []string `yaml:"tags"`
}

// Graph is a compiled batch graph; the geometry is hex-encoded EWKB.
type Graph struct {
	Batch      int     `yaml:"batch"`
	Nodes      int     `yaml:"nodes"`
	Edges      int     `yaml:"edges"`
	Components [][]int `yaml:"components,flow"`
	EWKB       string  `yaml:"ewkb,omitempty"`
}

// Issue is a recoverable input problem reported at boot.
type Issue struct {
	Kind       string `yaml:"kind"`
	Collection string `yaml:"collection"`
	Message    string `yaml:"message"`
}

// NewDocument assembles the output document from staged outputs.
func NewDocument(runID string, out *model.Outputs, issues []Issue) *Document {
	doc := &Document{
		RunID:   runID,
		Vtx:     staged(out.Pin(model.PinVtx)),
		Edges:   staged(out.Pin(model.PinEdges)),
		Results: out.Results(),
		Issues:  issues,
	}
	for _, g := range out.Graphs() {
		doc.Graphs = append(doc.Graphs, Graph{
			Batch:      g.Batch,
			Nodes:      g.Nodes,
			Edges:      g.Edges,
			Components: g.Components,
			EWKB:       hex.EncodeToString(g.EWKB),
		})
	}
	return doc
}

func staged(data []model.StagedData) []Staged {
	out := make([]Staged, 0, len(data))
	for _, d := range data {
		out = append(out, Staged{Name: d.Name, Tags: d.Tags})
	}
	return out
}

// Encode writes doc as YAML.
func (d *Document) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return eris.Wrap(err, "manifest: encode output")
	}
	return eris.Wrap(enc.Close(), "manifest: flush output")
}

// WriteFile writes doc to path, or to stdout when path is "-".
func (d *Document) WriteFile(path string) error {
	if path == "-" {
		return d.Encode(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "manifest: create %s", path)
	}
	if err := d.Encode(f); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "manifest: close %s", path)
}
