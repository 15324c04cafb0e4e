package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Pipeline     PipelineConfig     `yaml:"pipeline" mapstructure:"pipeline"`
	Capabilities CapabilitiesConfig `yaml:"capabilities" mapstructure:"capabilities"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Retry        RetryConfig        `yaml:"retry" mapstructure:"retry"`
	Metrics      MetricsConfig      `yaml:"metrics" mapstructure:"metrics"`
	Monitoring   MonitoringConfig   `yaml:"monitoring" mapstructure:"monitoring"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// PipelineConfig configures how runs are scheduled.
type PipelineConfig struct {
	Enabled                        bool    `yaml:"enabled" mapstructure:"enabled"`
	Inline                         bool    `yaml:"inline" mapstructure:"inline"`
	BatchSize                      int     `yaml:"batch_size" mapstructure:"batch_size" validate:"min=1,max=10000"`
	MaxWorkers                     int     `yaml:"max_workers" mapstructure:"max_workers" validate:"min=0,max=1024"`
	TickRate                       float64 `yaml:"tick_rate" mapstructure:"tick_rate" validate:"min=0"`
	QuietMissingClusterPairElement bool    `yaml:"quiet_missing_cluster_pair_element" mapstructure:"quiet_missing_cluster_pair_element"`
	FatalMissingClusterPairElement bool    `yaml:"fatal_missing_cluster_pair_element" mapstructure:"fatal_missing_cluster_pair_element"`
	ScopedIndexLookupBuild         bool    `yaml:"scoped_index_lookup_build" mapstructure:"scoped_index_lookup_build"`
	ScopedLookupThreshold          int     `yaml:"scoped_lookup_threshold" mapstructure:"scoped_lookup_threshold" validate:"min=0"`
	SkipCompletion                 bool    `yaml:"skip_completion" mapstructure:"skip_completion"`
	SkipBatchCompletionStep        bool    `yaml:"skip_batch_completion_step" mapstructure:"skip_batch_completion_step"`
	DoBatchWritingStep             bool    `yaml:"do_batch_writing_step" mapstructure:"do_batch_writing_step"`
	CompileGraph                   bool    `yaml:"compile_graph" mapstructure:"compile_graph"`
}

// CapabilitiesConfig declares what the cluster processor supports.
type CapabilitiesConfig struct {
	SupportsEdgeSorting  bool `yaml:"supports_edge_sorting" mapstructure:"supports_edge_sorting"`
	RequiresEdgeSorting  bool `yaml:"requires_edge_sorting" mapstructure:"requires_edge_sorting"`
	SupportsPointFilters bool `yaml:"supports_point_filters" mapstructure:"supports_point_filters"`
	RequiresPointFilters bool `yaml:"requires_point_filters" mapstructure:"requires_point_filters"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres none"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url" validate:"required_unless=Driver none"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"min=0"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns" validate:"min=0"`
}

// RetryConfig configures retries of store writes.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts" validate:"min=1,max=10"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms" validate:"min=0"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms" validate:"min=0"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// MonitoringConfig configures run health alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url" validate:"omitempty,url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold" validate:"min=0,max=1"`
	MinFinishedRuns      int     `yaml:"min_finished_runs" mapstructure:"min_finished_runs" validate:"min=1"`
	TaskFailureThreshold int     `yaml:"task_failure_threshold" mapstructure:"task_failure_threshold" validate:"min=0"`
	StalledAfterMins     int     `yaml:"stalled_after_mins" mapstructure:"stalled_after_mins" validate:"min=0"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours" validate:"min=1"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs" validate:"min=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// Load reads configuration from file and environment. An empty path searches
// for config.yaml in the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("EDGEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional unless named)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.enabled", true)
	v.SetDefault("pipeline.inline", false)
	v.SetDefault("pipeline.batch_size", 1)
	v.SetDefault("pipeline.max_workers", 0)
	v.SetDefault("pipeline.tick_rate", 0)
	v.SetDefault("pipeline.quiet_missing_cluster_pair_element", false)
	v.SetDefault("pipeline.fatal_missing_cluster_pair_element", false)
	v.SetDefault("pipeline.scoped_index_lookup_build", true)
	v.SetDefault("pipeline.scoped_lookup_threshold", 4096)
	v.SetDefault("pipeline.skip_completion", false)
	v.SetDefault("pipeline.skip_batch_completion_step", false)
	v.SetDefault("pipeline.do_batch_writing_step", true)
	v.SetDefault("pipeline.compile_graph", false)
	v.SetDefault("capabilities.supports_edge_sorting", true)
	v.SetDefault("capabilities.requires_edge_sorting", false)
	v.SetDefault("capabilities.supports_point_filters", true)
	v.SetDefault("capabilities.requires_point_filters", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "edgeflow.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 100)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_finished_runs", 5)
	v.SetDefault("monitoring.task_failure_threshold", 0)
	v.SetDefault("monitoring.stalled_after_mins", 60)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their config key.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks the configuration for the given command mode: "run",
// "query" or "monitor". Query and monitor need a persistent store.
func (c *Config) Validate(mode string) error {
	switch mode {
	case "run", "query", "monitor":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	var problems []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return eris.Wrap(err, "config: validate")
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, "log.level must be a zap level")
	}
	if mode != "run" && c.Store.Driver == "none" {
		problems = append(problems, "store.driver must not be none for "+mode)
	}
	if c.Store.MaxConns > 0 && c.Store.MinConns > c.Store.MaxConns {
		problems = append(problems, "store.min_conns must be <= store.max_conns")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_unless":
		return field + " is required"
	case "min", "gte":
		return field + " must be >= " + fe.Param()
	case "max", "lte":
		return field + " must be <= " + fe.Param()
	case "oneof":
		return field + " must be one of [" + fe.Param() + "]"
	case "url":
		return field + " must be a valid URL"
	case "hostname_port":
		return field + " must be host:port"
	default:
		return field + " failed " + fe.Tag()
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
