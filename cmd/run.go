package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/edgeflow/internal/cluster"
	"github.com/sells-group/edgeflow/internal/config"
	"github.com/sells-group/edgeflow/internal/manifest"
	"github.com/sells-group/edgeflow/internal/model"
	"github.com/sells-group/edgeflow/internal/pipeline"
	"github.com/sells-group/edgeflow/internal/processor"
	"github.com/sells-group/edgeflow/internal/resilience"
)

var runOut string

var runCmd = &cobra.Command{
	Use:         "run <manifest>",
	Short:       "Run the pipeline over a manifest",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{modeAnnotation: "run"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyRunFlags(cmd, cfg); err != nil {
			return err
		}

		stopMetrics, err := serveMetrics(ctx, cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		defer stopMetrics()

		_, err = executeRun(ctx, cfg, args[0], runOut)
		return err
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOut, "out", "o", "-", "output file (- for stdout)")
	runCmd.Flags().Bool("inline", false, "process one batch at a time")
	runCmd.Flags().Int("batch-size", 0, "cluster pairs per batch (default from config)")
	runCmd.Flags().Int("max-workers", 0, "concurrent tasks per phase (default from config)")
	runCmd.Flags().Bool("compile-graph", false, "compile a graph per batch")
	runCmd.Flags().Bool("disabled", false, "forward edge inputs without processing")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags overrides config values with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("inline") {
		c.Pipeline.Inline, _ = flags.GetBool("inline")
	}
	if flags.Changed("batch-size") {
		c.Pipeline.BatchSize, _ = flags.GetInt("batch-size")
	}
	if flags.Changed("max-workers") {
		c.Pipeline.MaxWorkers, _ = flags.GetInt("max-workers")
	}
	if flags.Changed("compile-graph") {
		c.Pipeline.CompileGraph, _ = flags.GetBool("compile-graph")
	}
	if flags.Changed("disabled") {
		disabled, _ := flags.GetBool("disabled")
		c.Pipeline.Enabled = !disabled
	}
	return c.Validate("run")
}

// pipelineConfig maps the loaded configuration onto the runner's.
func pipelineConfig(c *config.Config) pipeline.Config {
	p := c.Pipeline
	return pipeline.Config{
		Enabled: p.Enabled,
		Settings: pipeline.Settings{
			Inline:                  p.Inline,
			BatchSize:               p.BatchSize,
			MaxWorkers:              p.MaxWorkers,
			ScopedIndexLookupBuild:  p.ScopedIndexLookupBuild,
			ScopedLookupThreshold:   p.ScopedLookupThreshold,
			SkipCompletion:          p.SkipCompletion,
			SkipBatchCompletionStep: p.SkipBatchCompletionStep,
			DoBatchWritingStep:      p.DoBatchWritingStep,
			CompileGraph:            p.CompileGraph,
		},
		Capabilities: cluster.Capabilities{
			SupportsEdgeSorting:  c.Capabilities.SupportsEdgeSorting,
			RequiresEdgeSorting:  c.Capabilities.RequiresEdgeSorting,
			SupportsPointFilters: c.Capabilities.SupportsPointFilters,
			RequiresPointFilters: c.Capabilities.RequiresPointFilters,
		},
		Options: cluster.Options{
			QuietMissingClusterPairElement: p.QuietMissingClusterPairElement,
			FatalMissingClusterPairElement: p.FatalMissingClusterPairElement,
		},
		TickRate: p.TickRate,
	}
}

// executeRun loads the manifest, runs it and writes the output document.
func executeRun(ctx context.Context, c *config.Config, path, out string) (*pipeline.Report, error) {
	log := zap.L().With(zap.String("component", "cmd.run"), zap.String("manifest", path))

	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	if st != nil {
		defer st.Close() //nolint:errcheck
	}

	mode := model.ScheduleParallel
	if c.Pipeline.Inline {
		mode = model.ScheduleInline
	}

	arena, in := m.Build()
	runner := pipeline.New(pipelineConfig(c), processor.NewFactory(), st,
		pipeline.WithRetry(resilience.FromConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs)),
	)

	rep, err := runner.Run(ctx, arena, in, m.Spec(path, mode))
	if err != nil {
		return rep, eris.Wrapf(err, "run %s", path)
	}

	for _, taskErr := range rep.TaskErrors {
		log.Warn("background task failed", zap.String("run_id", rep.RunID), zap.Error(taskErr))
	}

	doc := manifest.NewDocument(rep.RunID, rep.Outputs, documentIssues(arena, rep.Resolution))
	if err := doc.WriteFile(out); err != nil {
		return rep, err
	}

	log.Info("run complete",
		zap.String("run_id", rep.RunID),
		zap.Int("pairs", rep.Result.Pairs),
		zap.Int("batches", rep.Result.Batches),
		zap.Int("issues", rep.Result.Issues),
		zap.Int("staged_edges", rep.Result.StagedEdge),
	)
	return rep, nil
}

func documentIssues(arena *model.Arena, res *cluster.Resolution) []manifest.Issue {
	if res == nil {
		return nil
	}
	issues := make([]manifest.Issue, 0, len(res.Issues))
	for _, is := range res.Issues {
		name := is.Name
		if name == "" {
			if c := arena.Get(is.Handle); c != nil {
				name = c.Name
			}
		}
		issues = append(issues, manifest.Issue{
			Kind:       string(is.Kind),
			Collection: name,
			Message:    is.Message,
		})
	}
	return issues
}
