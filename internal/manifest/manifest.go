// Package manifest reads run inputs from YAML and writes run outputs back.
package manifest

import (
	"bytes"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/edgeflow/internal/cluster"
	"github.com/sells-group/edgeflow/internal/model"
)

// Manifest is the input document of a run.
type Manifest struct {
	Vertices   []Collection             `yaml:"vertices" validate:"dive"`
	Edges      []Collection             `yaml:"edges" validate:"dive"`
	SortRules  []model.SortRule         `yaml:"sort_rules"`
	Filters    []model.FilterFactory    `yaml:"filters"`
	Heuristics []model.HeuristicFactory `yaml:"heuristics"`
}

// Collection is one tagged collection as written in a manifest.
type Collection struct {
	Name       string       `yaml:"name" validate:"required"`
	Tags       []string     `yaml:"tags"`
	Attributes []string     `yaml:"attributes"`
	Points     []Point      `yaml:"points" validate:"dive"`
	Edges      []model.Edge `yaml:"edges"`
}

// Point is a vertex point with an XY or XYZ coordinate.
type Point struct {
	ID    uint64    `yaml:"id"`
	Coord []float64 `yaml:"coord" validate:"omitempty,min=2,max=3"`
}

var validate = validator.New()

// Load reads a manifest from a YAML file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: read %s", path)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: %s", path)
	}
	return m, nil
}

// Parse decodes and validates a manifest. Unknown keys are rejected.
func Parse(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, eris.Wrap(err, "manifest: parse")
	}
	if err := validate.Struct(&m); err != nil {
		return nil, eris.Wrap(err, "manifest: validate")
	}
	return &m, nil
}

// Build adds every collection to a fresh arena, vertices first, and returns
// the run inputs referencing them.
func (m *Manifest) Build() (*model.Arena, cluster.Inputs) {
	arena := model.NewArena()
	in := cluster.Inputs{
		SortRules:  m.SortRules,
		Filters:    m.Filters,
		Heuristics: m.Heuristics,
	}
	for _, c := range m.Vertices {
		in.Vertices = append(in.Vertices, arena.Add(c.collection(model.ChannelVertices)))
	}
	for _, c := range m.Edges {
		in.Edges = append(in.Edges, arena.Add(c.collection(model.ChannelEdges)))
	}
	return arena, in
}

func (c Collection) collection(ch model.Channel) *model.Collection {
	points := make([]model.Point, 0, len(c.Points))
	for _, p := range c.Points {
		coord := make(geom.Coord, 3)
		copy(coord, p.Coord)
		points = append(points, model.Point{ID: p.ID, Coord: coord})
	}
	return &model.Collection{
		Name:       c.Name,
		Source:     ch,
		Tags:       model.ParseTags(c.Tags),
		Attributes: append([]string(nil), c.Attributes...),
		Points:     points,
		Edges:      append([]model.Edge(nil), c.Edges...),
	}
}

// Spec summarizes the manifest for run records.
func (m *Manifest) Spec(path string, mode model.ScheduleMode) model.RunSpec {
	return model.RunSpec{
		Input:    path,
		Mode:     mode,
		Vertices: len(m.Vertices),
		Edges:    len(m.Edges),
	}
}
