package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/edgeflow/internal/model"
)

func TestLoad(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "worked.yaml"))
	require.NoError(t, err)

	require.Len(t, m.Vertices, 3)
	require.Len(t, m.Edges, 3)
	assert.Equal(t, "Vb", m.Vertices[1].Name)
	assert.Equal(t, []model.Edge{{Start: 1, End: 2}, {Start: 2, End: 3}}, m.Edges[0].Edges)
	require.Len(t, m.SortRules, 2)
	assert.Equal(t, "length", m.SortRules[0].Attribute)
	assert.True(t, m.SortRules[0].Descending)
	require.Len(t, m.Filters, 1)
	assert.Equal(t, "bbox", m.Filters[0].Name)
	assert.Equal(t, 20, m.Filters[0].Params["max_x"])
	assert.Equal(t, 1.5, m.Heuristics[0].Weight)
}

func TestBuild(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "worked.yaml"))
	require.NoError(t, err)

	arena, in := m.Build()
	assert.Equal(t, 6, arena.Len())
	require.Len(t, in.Vertices, 3)
	require.Len(t, in.Edges, 3)
	assert.Len(t, in.SortRules, 2)
	assert.Len(t, in.Filters, 1)
	assert.Len(t, in.Heuristics, 1)

	va := arena.Get(in.Vertices[0])
	assert.Equal(t, "Va", va.Name)
	assert.Equal(t, model.ChannelVertices, va.Source)
	assert.Equal(t, model.RoleVertex, va.Role())
	assert.True(t, va.VtxReady())
	key, ok := va.ClusterKey()
	require.True(t, ok)
	assert.Equal(t, int64(1), key)
	assert.Equal(t, geom.Coord{1, 1, 0}, va.Points[2].Coord, "2D coordinates get a zero Z")

	ec := arena.Get(in.Edges[2])
	assert.Equal(t, model.ChannelEdges, ec.Source)
	assert.Equal(t, model.RoleEdge, ec.Role())
	assert.True(t, ec.EdgeReady())

	spec := m.Spec("worked.yaml", model.ScheduleInline)
	assert.Equal(t, model.RunSpec{Input: "worked.yaml", Mode: model.ScheduleInline, Vertices: 3, Edges: 3}, spec)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "vertices: []\ncolour: blue\n"},
		{"missing name", "vertices:\n  - tags: [edgeflow/vtx]\n"},
		{"too many coords", "vertices:\n  - name: Va\n    points:\n      - { id: 1, coord: [1, 2, 3, 4] }\n"},
		{"bad yaml", "vertices: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	m, err := Parse([]byte("edges: []\n"))
	require.NoError(t, err)
	arena, in := m.Build()
	assert.Equal(t, 0, arena.Len())
	assert.Empty(t, in.Vertices)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("edges: {"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), path)
}
