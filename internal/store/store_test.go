package store

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/edgeflow/internal/model"
)

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	spec := model.RunSpec{Input: "testdata/roads.yaml", Mode: model.ScheduleParallel, Vertices: 3, Edges: 3}

	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, spec)
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunStatusQueued, run.Status)
		assert.Equal(t, spec, run.Spec)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, model.RunStatusQueued, got.Status)
		assert.Equal(t, spec, got.Spec)
		assert.Nil(t, got.Result)
		assert.Empty(t, got.Error)
	})

	t.Run("GetRunNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetRun(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrNotFound))
	})

	t.Run("UpdateRunStatus", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, spec)
		require.NoError(t, err)

		require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusProcessing))
		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusProcessing, got.Status)

		err = s.UpdateRunStatus(ctx, "missing", model.RunStatusProcessing)
		assert.True(t, eris.Is(err, ErrNotFound))
	})

	t.Run("UpdateRunResult", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, spec)
		require.NoError(t, err)

		result := &model.RunResult{
			Pairs:   2,
			Batches: 2,
			Issues:  1,
			Phases: []model.PhaseResult{
				{Name: "boot", Status: model.PhaseStatusComplete, Duration: 3},
			},
		}
		require.NoError(t, s.UpdateRunResult(ctx, run.ID, result))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusComplete, got.Status)
		require.NotNil(t, got.Result)
		assert.Equal(t, 2, got.Result.Pairs)
		require.Len(t, got.Result.Phases, 1)
		assert.Equal(t, "boot", got.Result.Phases[0].Name)
	})

	t.Run("FailRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, spec)
		require.NoError(t, err)
		require.NoError(t, s.FailRun(ctx, run.ID, "missing edges"))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusFailed, got.Status)
		assert.Equal(t, "missing edges", got.Error)
	})

	t.Run("ListRuns", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			_, err := s.CreateRun(ctx, spec)
			require.NoError(t, err)
			time.Sleep(5 * time.Millisecond)
		}
		other, err := s.CreateRun(ctx, model.RunSpec{Input: "other.yaml", Mode: model.ScheduleInline})
		require.NoError(t, err)
		require.NoError(t, s.UpdateRunStatus(ctx, other.ID, model.RunStatusFailed))

		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 4)

		failed, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, other.ID, failed[0].ID)

		byInput, err := s.ListRuns(ctx, RunFilter{Input: spec.Input})
		require.NoError(t, err)
		assert.Len(t, byInput, 3)

		limited, err := s.ListRuns(ctx, RunFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("Phases", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, spec)
		require.NoError(t, err)

		boot, err := s.CreatePhase(ctx, run.ID, "boot")
		require.NoError(t, err)
		assert.Equal(t, model.PhaseStatusRunning, boot.Status)

		require.NoError(t, s.CompletePhase(ctx, boot.ID, &model.PhaseResult{
			Name:     "boot",
			Status:   model.PhaseStatusComplete,
			Duration: 12,
			Metadata: map[string]any{"pairs": 2},
		}))
		_, err = s.CreatePhase(ctx, run.ID, "cluster_processing")
		require.NoError(t, err)

		phases, err := s.ListPhases(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, phases, 2)
		assert.Equal(t, "boot", phases[0].Name)
		assert.Equal(t, model.PhaseStatusComplete, phases[0].Status)
		require.NotNil(t, phases[0].Result)
		assert.Equal(t, int64(12), phases[0].Result.Duration)
		assert.Equal(t, model.PhaseStatusRunning, phases[1].Status)
		assert.Nil(t, phases[1].Result)

		err = s.CompletePhase(ctx, "missing", &model.PhaseResult{Status: model.PhaseStatusComplete})
		assert.True(t, eris.Is(err, ErrNotFound))
	})

	t.Run("Outputs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, spec)
		require.NoError(t, err)

		staged := []model.StagedData{
			{Pin: model.PinVtx, Handle: 0, Name: "Va", Tags: []string{"edgeflow/vtx", "edgeflow/cluster:4"}},
			{Pin: model.PinEdges, Handle: 3, Name: "Ea", Tags: []string{"edgeflow/edges", "edgeflow/cluster:4"}},
		}
		results := []model.ClusterResult{{Batch: 0, Key: 4, Vertex: "Va", Components: 1, ValidEdges: 2}}
		require.NoError(t, s.SaveOutputs(ctx, run.ID, staged, results))
		// Saving again replaces the staged set.
		require.NoError(t, s.SaveOutputs(ctx, run.ID, staged[:1], results))

		got, err := s.ListOutputs(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, staged[:1], got)
	})
}
