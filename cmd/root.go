package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/edgeflow/internal/config"
)

var (
	cfg     *config.Config
	cfgFile string
)

// modeAnnotation names the config validation mode a command needs.
const modeAnnotation = "edgeflow/mode"

var rootCmd = &cobra.Command{
	Use:   "edgeflow",
	Short: "Cluster-pair edge processing pipeline",
	Long:  "Pairs tagged vertex and edge collections by cluster key, processes them in batches and stages the results.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		if mode := cmd.Annotations[modeAnnotation]; mode != "" {
			if err := cfg.Validate(mode); err != nil {
				return err
			}
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
