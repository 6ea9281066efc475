// Package config loads the run configuration: embedded defaults overlaid by
// an optional YAML file, then validated.
package config

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/gridtrack/metrics"
	"github.com/YuminosukeSato/gridtrack/modelselection"
	"github.com/YuminosukeSato/gridtrack/pkg/errors"
)

//go:embed default.yaml
var defaultYAML []byte

// Config is the complete configuration of one run.
type Config struct {
	Experiment ExperimentConfig `yaml:"experiment"`
	Data       DataConfig       `yaml:"data"`
	Search     SearchConfig     `yaml:"search"`
	Model      ModelConfig      `yaml:"model"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Metrics    MetricsConfig    `yaml:"metrics"`

	// RandomState seeds the split, fold shuffling and the forest. Nil leaves
	// every random step unseeded.
	RandomState *uint64 `yaml:"random_state"`

	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn warning error"`
}

type ExperimentConfig struct {
	Name    string `yaml:"name" validate:"required"`
	RunName string `yaml:"run_name"`
}

type DataConfig struct {
	URL            string  `yaml:"url" validate:"required"`
	TestSize       float64 `yaml:"test_size" validate:"gt=0,lt=1"`
	TimeoutSeconds int     `yaml:"timeout_seconds" validate:"min=0"`
}

// Timeout returns the fetch timeout; zero means none.
func (d DataConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

type SearchConfig struct {
	// ParamGrid is keyed by pipeline stage, then parameter name.
	ParamGrid modelselection.Grid `yaml:"param_grid" validate:"required,min=1"`
	CV        int                 `yaml:"cv" validate:"min=2"`
	NJobs     int                 `yaml:"n_jobs" validate:"ne=0,min=-1"`
	Scoring   string              `yaml:"scoring" validate:"required"`
	Verbose   int                 `yaml:"verbose" validate:"min=0"`
	Shuffle   bool                `yaml:"shuffle"`
}

type ModelConfig struct {
	ArtifactPath        string `yaml:"artifact_path" validate:"required"`
	RegisteredModelName string `yaml:"registered_model_name"`
	PlotCVResults       bool   `yaml:"plot_cv_results"`
}

type TrackingConfig struct {
	StorePath       string `yaml:"store_path" validate:"required"`
	ArtifactRoot    string `yaml:"artifact_root" validate:"required"`
	CredentialsFile string `yaml:"credentials_file"`
}

// TelemetryConfig selects where trace spans go.
type TelemetryConfig struct {
	TraceExporter string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	OTLPEndpoint  string `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	OTLPInsecure  bool   `yaml:"otlp_insecure"`
}

// MetricsConfig selects where the search's Prometheus metrics are exported
// when the run ends. Both targets are optional.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" validate:"omitempty,url"`
	Job            string `yaml:"job" validate:"required"`
	Textfile       string `yaml:"textfile"` // node_exporter textfile collector
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the embedded defaults.
func Default() (*Config, error) {
	var cfg Config
	if err := decode(defaultYAML, &cfg); err != nil {
		return nil, errors.Wrap(err, "decode embedded defaults")
	}
	return &cfg, nil
}

// Load reads path on top of the defaults and validates the result. An empty
// path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		// param_grid は上書きではなく置き換える
		var probe struct {
			Search struct {
				ParamGrid yaml.Node `yaml:"param_grid"`
			} `yaml:"search"`
		}
		if err := yaml.Unmarshal(data, &probe); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
		if !probe.Search.ParamGrid.IsZero() {
			cfg.Search.ParamGrid = nil
		}
		if err := decode(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode rejects unknown keys. An empty document leaves out unchanged.
func decode(data []byte, out interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks struct constraints and rejects unknown scoring names.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.NewValidationError(fe.Namespace(), "failed "+fe.Tag()+" constraint", fe.Value())
		}
		return errors.Wrap(err, "validate config")
	}
	if _, err := metrics.GetScorer(c.Search.Scoring); err != nil {
		return err
	}
	return nil
}
