// Package config loads and validates gasoline.yaml.
//
// A file is decoded over Default(), so every key is optional, and then
// unified with an embedded CUE schema. Unknown keys are rejected.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/gasoline/internal/engine"
	"github.com/roach88/gasoline/internal/service/wsadapter"
)

//go:embed schema.cue
var schemaCUE string

// Config is the file configuration of a gasoline process.
type Config struct {
	Store       StoreConfig       `yaml:"store" json:"store"`
	Persistence PersistenceConfig `yaml:"persistence" json:"persistence"`
	Service     *ServiceConfig    `yaml:"service,omitempty" json:"service,omitempty"`
	Metrics     MetricsConfig     `yaml:"metrics" json:"metrics"`
}

// StoreConfig configures the dispatch engine.
type StoreConfig struct {
	MaxSteps int    `yaml:"max_steps" json:"max_steps"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// PersistenceConfig configures the SQLite database. An empty Database
// disables persistence.
type PersistenceConfig struct {
	Database       string `yaml:"database" json:"database"`
	SnapshotOnStop bool   `yaml:"snapshot_on_stop" json:"snapshot_on_stop"`
	RecordActions  bool   `yaml:"record_actions" json:"record_actions"`
}

// ServiceConfig configures the WebSocket service adapter.
type ServiceConfig struct {
	URL         string        `yaml:"url" json:"url"`
	AutoConnect bool          `yaml:"auto_connect" json:"auto_connect"`
	SendRate    float64       `yaml:"send_rate" json:"send_rate"`
	SendBurst   int           `yaml:"send_burst" json:"send_burst"`
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
}

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// Default returns the configuration used for absent keys.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			MaxSteps: engine.DefaultMaxSteps,
			LogLevel: "info",
		},
		Persistence: PersistenceConfig{
			SnapshotOnStop: true,
			RecordActions:  true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "gasoline",
		},
	}
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Service != nil {
		cfg.Service.applyDefaults()
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *ServiceConfig) applyDefaults() {
	if s.DialTimeout == 0 {
		s.DialTimeout = wsadapter.DefaultDialTimeout
	}
}

// ValidationError is one schema violation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every violation of one config.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Validate checks cfg against the CUE schema. It returns ValidationErrors
// listing every violation.
func Validate(cfg *Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(cfg))
	err := v.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var out ValidationErrors
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		out = append(out, ValidationError{
			Field:   strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}
	return out
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	switch c.Store.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EngineOptions returns the store options this config implies.
func (c *Config) EngineOptions(logger *slog.Logger) []engine.StoreOption {
	return []engine.StoreOption{
		engine.WithLogger(logger),
		engine.WithMaxSteps(c.Store.MaxSteps),
	}
}

// AdapterOptions returns the WebSocket adapter options, or nil when no
// service is configured.
func (c *Config) AdapterOptions(logger *slog.Logger) []wsadapter.Option {
	if c.Service == nil {
		return nil
	}
	opts := []wsadapter.Option{
		wsadapter.WithAutoConnect(c.Service.AutoConnect),
		wsadapter.WithDialTimeout(c.Service.DialTimeout),
		wsadapter.WithLogger(logger),
	}
	if c.Service.SendRate > 0 {
		burst := c.Service.SendBurst
		if burst == 0 {
			burst = 1
		}
		opts = append(opts, wsadapter.WithSendLimit(c.Service.SendRate, burst))
	}
	return opts
}
