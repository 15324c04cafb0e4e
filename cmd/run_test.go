package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/edgeflow/internal/cluster"
	"github.com/sells-group/edgeflow/internal/config"
	"github.com/sells-group/edgeflow/internal/manifest"
	"github.com/sells-group/edgeflow/internal/model"
)

const workedManifest = "../internal/manifest/testdata/worked.yaml"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Load("")
	require.NoError(t, err)
	c.Store.Driver = "none"
	c.Store.DatabaseURL = ""
	return c
}

func readDocument(t *testing.T, path string) manifest.Document {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc manifest.Document
	require.NoError(t, yaml.Unmarshal(data, &doc))
	return doc
}

func stagedNames(staged []manifest.Staged) []string {
	names := make([]string, 0, len(staged))
	for _, s := range staged {
		names = append(names, s.Name)
	}
	return names
}

func TestPipelineConfig(t *testing.T) {
	c := testConfig(t)
	c.Pipeline.Inline = true
	c.Pipeline.BatchSize = 4
	c.Pipeline.TickRate = 50
	c.Pipeline.FatalMissingClusterPairElement = true
	c.Capabilities.RequiresEdgeSorting = true

	pc := pipelineConfig(c)
	assert.True(t, pc.Enabled)
	assert.True(t, pc.Settings.Inline)
	assert.Equal(t, 4, pc.Settings.BatchSize)
	assert.True(t, pc.Settings.DoBatchWritingStep)
	assert.True(t, pc.Settings.ScopedIndexLookupBuild)
	assert.InDelta(t, 50.0, pc.TickRate, 0.001)
	assert.True(t, pc.Options.FatalMissingClusterPairElement)
	assert.True(t, pc.Capabilities.RequiresEdgeSorting)
	assert.True(t, pc.Capabilities.SupportsEdgeSorting)
}

func TestApplyRunFlags(t *testing.T) {
	c := testConfig(t)
	require.NoError(t, runCmd.Flags().Set("batch-size", "3"))
	require.NoError(t, runCmd.Flags().Set("inline", "true"))
	t.Cleanup(func() {
		runCmd.Flags().Set("batch-size", "0") //nolint:errcheck
		runCmd.Flags().Set("inline", "false") //nolint:errcheck
		runCmd.Flags().Lookup("batch-size").Changed = false
		runCmd.Flags().Lookup("inline").Changed = false
	})

	require.NoError(t, applyRunFlags(runCmd, c))
	assert.Equal(t, 3, c.Pipeline.BatchSize)
	assert.True(t, c.Pipeline.Inline)
	// Untouched flags keep config values.
	assert.True(t, c.Pipeline.Enabled)
	assert.Equal(t, 0, c.Pipeline.MaxWorkers)
}

func TestExecuteRun_WorkedExample(t *testing.T) {
	c := testConfig(t)
	out := filepath.Join(t.TempDir(), "out.yaml")

	rep, err := executeRun(context.Background(), c, workedManifest, out)
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, 2, rep.Result.Pairs)
	assert.Equal(t, 2, rep.Result.Issues)

	doc := readDocument(t, out)
	assert.Equal(t, rep.RunID, doc.RunID)
	assert.Equal(t, []string{"Va", "Vc"}, stagedNames(doc.Vtx))
	assert.Equal(t, []string{"Ea", "Eb", "Ec"}, stagedNames(doc.Edges))
	assert.Len(t, doc.Results, 2)
	assert.Len(t, doc.Issues, 2)
	assert.Empty(t, doc.Graphs)
}

func TestExecuteRun_SQLiteStore(t *testing.T) {
	c := testConfig(t)
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "edgeflow.db")
	c.Pipeline.Inline = true
	c.Pipeline.CompileGraph = true
	out := filepath.Join(t.TempDir(), "out.yaml")

	ctx := context.Background()
	rep, err := executeRun(ctx, c, workedManifest, out)
	require.NoError(t, err)

	st, err := initStore(ctx, c.Store)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	run, err := st.GetRun(ctx, rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, model.ScheduleInline, run.Spec.Mode)
	assert.Equal(t, workedManifest, run.Spec.Input)

	doc := readDocument(t, out)
	assert.NotEmpty(t, doc.Graphs)
}

func TestExecuteRun_Disabled(t *testing.T) {
	c := testConfig(t)
	c.Pipeline.Enabled = false
	out := filepath.Join(t.TempDir(), "out.yaml")

	rep, err := executeRun(context.Background(), c, workedManifest, out)
	require.NoError(t, err)
	assert.Nil(t, rep.Resolution)

	doc := readDocument(t, out)
	assert.Equal(t, []string{"Ea", "Eb", "Ec"}, stagedNames(doc.Edges))
	assert.Equal(t, []string{"Va", "Vb", "Vc"}, stagedNames(doc.Vtx))
	assert.Empty(t, doc.Issues)
}

func TestExecuteRun_MissingManifest(t *testing.T) {
	_, err := executeRun(context.Background(), testConfig(t), filepath.Join(t.TempDir(), "nope.yaml"), "-")
	assert.Error(t, err)
}

func TestExecuteRun_FatalBoot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vertices-only.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
vertices:
  - name: V
    tags: [edgeflow/vtx, "edgeflow/cluster:1"]
    attributes: [edgeflow/vtx_endpoint]
    points:
      - { id: 1, coord: [0, 0] }
`), 0644))

	out := filepath.Join(dir, "out.yaml")
	_, err := executeRun(context.Background(), testConfig(t), path, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, cluster.ErrMissingEdges)
	assert.NoFileExists(t, out)
}

func TestValidateManifest(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, validateManifest(&buf, testConfig(t), workedManifest))

	output := buf.String()
	assert.Contains(t, output, "Pairs:")
	assert.Contains(t, output, "cluster 1:")
	assert.Contains(t, output, "Va")
	assert.Contains(t, output, "cluster 2:")
	assert.Contains(t, output, string(cluster.IssueDuplicateKey))
	assert.Contains(t, output, string(cluster.IssueOrphanEdges))
}

func TestDocumentIssues_NilResolution(t *testing.T) {
	assert.Nil(t, documentIssues(model.NewArena(), nil))
}

func TestInitStore(t *testing.T) {
	ctx := context.Background()

	st, err := initStore(ctx, config.StoreConfig{Driver: "none"})
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = initStore(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "s.db")})
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.NoError(t, st.Close())

	_, err = initStore(ctx, config.StoreConfig{Driver: "mysql"})
	assert.Error(t, err)
}
