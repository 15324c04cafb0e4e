package manifest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/edgeflow/internal/model"
)

func sampleOutputs() *model.Outputs {
	out := model.NewOutputs()
	out.StageRaw(model.StagedData{Pin: model.PinVtx, Name: "Va", Tags: []string{"edgeflow/vtx", "edgeflow/cluster:4"}})
	out.StageRaw(model.StagedData{Pin: model.PinEdges, Name: "Ea", Tags: []string{"edgeflow/edges", "edgeflow/cluster:4"}})
	out.StageRaw(model.StagedData{Pin: model.PinEdges, Name: "Ec", Tags: []string{"edgeflow/edges", "edgeflow/cluster:3"}})
	out.AddResult(model.ClusterResult{Key: 4, Vertex: "Va", Edges: []string{"Ea"}, Components: 1, ValidEdges: 2})
	out.AddGraph(model.CompiledGraph{Batch: 0, Nodes: 3, Edges: 2, Components: [][]int{{0, 1, 2}}, EWKB: []byte{0x01, 0xff}})
	return out
}

func TestNewDocument(t *testing.T) {
	doc := NewDocument("run-1", sampleOutputs(), []Issue{{Kind: "orphan_edges", Collection: "Ec", Message: "no vtx"}})

	assert.Equal(t, "run-1", doc.RunID)
	assert.Equal(t, []Staged{{Name: "Va", Tags: []string{"edgeflow/vtx", "edgeflow/cluster:4"}}}, doc.Vtx)
	require.Len(t, doc.Edges, 2)
	assert.Equal(t, "Ec", doc.Edges[1].Name)
	require.Len(t, doc.Graphs, 1)
	assert.Equal(t, "01ff", doc.Graphs[0].EWKB)
	assert.Len(t, doc.Issues, 1)
}

func TestDocument_Encode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewDocument("run-1", sampleOutputs(), nil).Encode(&buf))

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &raw))
	assert.Equal(t, "run-1", raw["run_id"])
	assert.Len(t, raw["vtx"], 1)
	assert.Len(t, raw["edges"], 2)
	assert.NotContains(t, raw, "issues")

	results := raw["results"].([]any)
	require.Len(t, results, 1)
	r := results[0].(map[string]any)
	assert.Equal(t, "Va", r["vertex"])
	assert.Equal(t, 2, r["valid_edges"])
}

func TestDocument_WriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, NewDocument("run-2", sampleOutputs(), nil).WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run_id: run-2")
	assert.Contains(t, string(data), "01ff")

	err = NewDocument("run-2", sampleOutputs(), nil).WriteFile(filepath.Join(t.TempDir(), "missing", "out.yaml"))
	assert.Error(t, err)
}
