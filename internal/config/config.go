// Package config loads runtime settings from TRIAGE_* environment variables
// and maps them onto the per-package config structs.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/danielpatrickdp/adaptive-triage/internal/eval"
	"github.com/danielpatrickdp/adaptive-triage/internal/gate"
	"github.com/danielpatrickdp/adaptive-triage/internal/network"
	"github.com/danielpatrickdp/adaptive-triage/internal/selector"
	"github.com/danielpatrickdp/adaptive-triage/internal/session"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
	"github.com/danielpatrickdp/adaptive-triage/internal/update"
)

// #region config
// Config is the process-wide runtime configuration.
type Config struct {
	DBPath        string `env:"TRIAGE_DB_PATH"        envDefault:"triage.db"`
	ModelDir      string `env:"TRIAGE_MODEL_DIR"      envDefault:"models"`
	KnowledgePath string `env:"TRIAGE_KNOWLEDGE_PATH"` // empty uses the embedded table
	LogLevel      string `env:"TRIAGE_LOG_LEVEL"      envDefault:"info"`
	LogFormat     string `env:"TRIAGE_LOG_FORMAT"     envDefault:"text"`
	GRPCAddr      string `env:"TRIAGE_GRPC_ADDR"      envDefault:":50051"`

	ConfidenceThreshold float64 `env:"TRIAGE_CONFIDENCE_THRESHOLD" envDefault:"0.75"`
	MaxQuestions        int     `env:"TRIAGE_MAX_QUESTIONS"        envDefault:"12"`
	DifferentialSize    int     `env:"TRIAGE_DIFFERENTIAL_SIZE"    envDefault:"5"`
	DefaultSeverity     float64 `env:"TRIAGE_DEFAULT_SEVERITY"     envDefault:"0.5"`

	Optimizer    string  `env:"TRIAGE_OPTIMIZER"     envDefault:"adam"`
	LearningRate float64 `env:"TRIAGE_LEARNING_RATE" envDefault:"0.01"`
	Epochs       int     `env:"TRIAGE_EPOCHS"        envDefault:"200"`
	Hidden       int     `env:"TRIAGE_HIDDEN"        envDefault:"32"`
	L2           float64 `env:"TRIAGE_L2"            envDefault:"0.0001"`
	Dropout      float64 `env:"TRIAGE_DROPOUT"       envDefault:"0.1"`
	Patience     int     `env:"TRIAGE_PATIENCE"      envDefault:"20"`
	Seed         int64   `env:"TRIAGE_SEED"          envDefault:"42"`

	MinAccuracy float64 `env:"TRIAGE_MIN_ACCURACY" envDefault:"0.6"`
	MaxECE      float64 `env:"TRIAGE_MAX_ECE"      envDefault:"0.15"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every out-of-range setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("confidence threshold must lie in (0,1], got %v", c.ConfidenceThreshold))
	}
	if c.MaxQuestions < 0 {
		errs = append(errs, fmt.Errorf("max questions must be non-negative, got %d", c.MaxQuestions))
	}
	if c.DifferentialSize <= 0 {
		errs = append(errs, fmt.Errorf("differential size must be positive, got %d", c.DifferentialSize))
	}
	if c.DefaultSeverity < 0 || c.DefaultSeverity > 1 {
		errs = append(errs, fmt.Errorf("default severity must lie in [0,1], got %v", c.DefaultSeverity))
	}
	if _, err := update.ParseKind(c.Optimizer); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// #endregion config

// #region sub-configs
// Gate returns the rule gate settings.
func (c Config) Gate() gate.GateConfig {
	g := gate.DefaultGateConfig()
	g.DifferentialSize = c.DifferentialSize
	g.DefaultSeverity = c.DefaultSeverity
	return g
}

// Encoder returns the symptom encoder settings.
func (c Config) Encoder() symptom.EncoderConfig {
	return symptom.EncoderConfig{DefaultSeverity: c.DefaultSeverity}
}

// Selector returns the stop-rule settings.
func (c Config) Selector() selector.SelectorConfig {
	return selector.SelectorConfig{
		ConfidenceThreshold: c.ConfidenceThreshold,
		MaxQuestions:        c.MaxQuestions,
	}
}

// Engine returns the session engine settings.
func (c Config) Engine() session.EngineConfig {
	e := session.DefaultEngineConfig()
	e.Selector = c.Selector()
	return e
}

// Train returns the training hyperparameters.
func (c Config) Train() network.TrainConfig {
	t := network.DefaultTrainConfig()
	t.Optimizer, _ = update.ParseKind(c.Optimizer)
	t.LearningRate = c.LearningRate
	t.Epochs = c.Epochs
	t.Hidden = c.Hidden
	t.L2 = c.L2
	t.DropoutRate = c.Dropout
	t.Patience = c.Patience
	t.Seed = c.Seed
	return t
}

// Eval returns the release gate for trained models.
func (c Config) Eval() eval.EvalConfig {
	e := eval.DefaultEvalConfig()
	e.MinAccuracy = c.MinAccuracy
	e.MaxECE = c.MaxECE
	return e
}

// #endregion sub-configs

// #region log-level
// ParseLevel maps debug/info/warn/error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level: %s", s)
}

// #endregion log-level
