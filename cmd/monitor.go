package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/edgeflow/internal/config"
	"github.com/sells-group/edgeflow/internal/monitoring"
	"github.com/sells-group/edgeflow/internal/resilience"
)

var monitorOnce bool

var monitorCmd = &cobra.Command{
	Use:         "monitor",
	Short:       "Watch run health and send alerts",
	Long:        "Periodically summarizes recent runs and posts alerts to the configured webhook when thresholds are breached.",
	Annotations: map[string]string{modeAnnotation: "monitor"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		checker := newChecker(st, cfg)
		if monitorOnce {
			return checkOnce(ctx, os.Stdout, checker)
		}

		stopMetrics, err := serveMetrics(ctx, cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		defer stopMetrics()

		checker.Run(ctx)
		return nil
	},
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorOnce, "once", false, "check once, print the snapshot and exit")
	rootCmd.AddCommand(monitorCmd)
}

func newChecker(runs monitoring.RunLister, c *config.Config) *monitoring.Checker {
	mc := c.Monitoring
	collector := monitoring.NewCollector(runs, time.Duration(mc.StalledAfterMins)*time.Minute)
	alerter := monitoring.NewAlerter(mc, resilience.FromConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs))
	return monitoring.NewChecker(collector, alerter, mc)
}

// checkOnce runs a single check and prints the snapshot with any alerts.
func checkOnce(ctx context.Context, out io.Writer, checker *monitoring.Checker) error {
	snap, alerts := checker.Check(ctx)
	if snap == nil {
		return eris.New("monitor: collect metrics failed")
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Snapshot *monitoring.MetricsSnapshot `json:"snapshot"`
		Alerts   []monitoring.Alert          `json:"alerts"`
	}{snap, alerts})
}
