// Package config loads host configuration from files, the environment and
// .env files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"inferhost/internal/backend"
	"inferhost/internal/core"
	"inferhost/internal/params"
	"inferhost/internal/session"
	"inferhost/pkg/types"
)

// Config holds runtime parameters for the host.
type Config struct {
	Addr        string   `json:"addr" yaml:"addr" toml:"addr" env:"ADDR"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`

	// CorePath is a shared library path or "inproc:<name>".
	CorePath     string   `json:"core_path" yaml:"core_path" toml:"core_path" env:"CORE_PATH"`
	PluginPaths  []string `json:"plugin_paths" yaml:"plugin_paths" toml:"plugin_paths" env:"PLUGIN_PATHS" envSeparator:","`
	DataDir      string   `json:"data_dir" yaml:"data_dir" toml:"data_dir" env:"DATA_DIR"`
	ShowConsole  bool     `json:"show_console" yaml:"show_console" toml:"show_console" env:"SHOW_CONSOLE"`
	CoreLogLevel string   `json:"core_log_level" yaml:"core_log_level" toml:"core_log_level" env:"CORE_LOG_LEVEL"`

	ModelsDir   string `json:"models_dir" yaml:"models_dir" toml:"models_dir" env:"MODELS_DIR"`
	ContextSize int    `json:"context_size" yaml:"context_size" toml:"context_size" env:"CONTEXT_SIZE"`
	// Adapters reported by the in-process core. Empty reports a CPU adapter.
	Adapters []types.AdapterInfo `json:"adapters" yaml:"adapters" toml:"adapters" env:"-"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format" env:"LOG_FORMAT"`

	Session SessionConfig `json:"session" yaml:"session" toml:"session" envPrefix:"SESSION_"`
	Backend BackendConfig `json:"backend" yaml:"backend" toml:"backend" envPrefix:"BACKEND_"`
}

// SessionConfig configures the text generation session.
type SessionConfig struct {
	Feature         string `json:"feature" yaml:"feature" toml:"feature" env:"FEATURE"`
	PluginPath      string `json:"plugin_path" yaml:"plugin_path" toml:"plugin_path" env:"PLUGIN_PATH"`
	ModelGUID       string `json:"model_guid" yaml:"model_guid" toml:"model_guid" env:"MODEL_GUID"`
	NumThreads      int    `json:"threads" yaml:"threads" toml:"threads" env:"THREADS"`
	VRAMBudgetMB    int    `json:"vram_budget_mb" yaml:"vram_budget_mb" toml:"vram_budget_mb" env:"VRAM_BUDGET_MB"`
	TokensToPredict int    `json:"tokens" yaml:"tokens" toml:"tokens" env:"TOKENS"`
	Marker          string `json:"marker" yaml:"marker" toml:"marker" env:"MARKER"`
	RequireBackend  bool   `json:"require_backend" yaml:"require_backend" toml:"require_backend" env:"REQUIRE_BACKEND"`
	QueueDepth      int    `json:"queue_depth" yaml:"queue_depth" toml:"queue_depth" env:"QUEUE_DEPTH"`
	MaxWaitMS       int    `json:"max_wait_ms" yaml:"max_wait_ms" toml:"max_wait_ms" env:"MAX_WAIT_MS"`
}

// BackendConfig describes the host render system for headless hosts. Device
// and Queue are native handle values.
type BackendConfig struct {
	API    string `json:"api" yaml:"api" toml:"api" env:"API"`
	Device uint64 `json:"device" yaml:"device" toml:"device" env:"DEVICE"`
	Queue  uint64 `json:"queue" yaml:"queue" toml:"queue" env:"QUEUE"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Addr:         ":8080",
		CorePath:     core.InProcessScheme + "llama",
		CoreLogLevel: "default",
		ModelsDir:    "./models",
		ContextSize:  2048,
		LogLevel:     "info",
		LogFormat:    "console",
		Session: SessionConfig{
			Feature:         types.FeatureGPTCPU.String(),
			ModelGUID:       session.DefaultModelGUID,
			NumThreads:      session.DefaultNumThreads,
			VRAMBudgetMB:    session.DefaultVRAMBudgetMB,
			TokensToPredict: session.DefaultTokensToPredict,
			Marker:          session.DefaultMarker,
			QueueDepth:      session.DefaultQueueDepth,
		},
		Backend: BackendConfig{API: "none"},
	}
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr is empty"))
	}
	if strings.TrimSpace(c.CorePath) == "" {
		errs = append(errs, errors.New("core_path is empty"))
	}
	if _, err := c.CoreLevel(); err != nil {
		errs = append(errs, err)
	}
	if _, err := types.ParseFeatureID(c.Session.Feature); err != nil {
		errs = append(errs, fmt.Errorf("session.feature: %w", err))
	}
	if _, err := types.ParseGraphicsAPI(c.Backend.API); err != nil {
		errs = append(errs, fmt.Errorf("backend.api: %w", err))
	}
	if c.Session.NumThreads < 0 || c.Session.VRAMBudgetMB < 0 || c.Session.TokensToPredict < 0 {
		errs = append(errs, errors.New("session: threads, vram_budget_mb and tokens must not be negative"))
	}
	if c.Session.MaxWaitMS < 0 || c.Session.QueueDepth < 0 {
		errs = append(errs, errors.New("session: queue_depth and max_wait_ms must not be negative"))
	}
	return errors.Join(errs...)
}

// CoreLevel parses CoreLogLevel.
func (c Config) CoreLevel() (core.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(c.CoreLogLevel)) {
	case "off":
		return core.LogLevelOff, nil
	case "", "default":
		return core.LogLevelDefault, nil
	case "verbose":
		return core.LogLevelVerbose, nil
	}
	return core.LogLevelOff, fmt.Errorf("core_log_level %q (expected off, default or verbose)", c.CoreLogLevel)
}

// Preferences builds the core init preferences. The log callback is left to
// the runtime.
func (c Config) Preferences() core.Preferences {
	lvl, _ := c.CoreLevel()
	return core.Preferences{
		ShowConsole: c.ShowConsole,
		LogLevel:    lvl,
		PluginPaths: append([]string(nil), c.PluginPaths...),
		LogDir:      c.DataDir,
	}
}

// TextConfig builds the session configuration.
func (c Config) TextConfig() (session.TextConfig, error) {
	id, err := types.ParseFeatureID(c.Session.Feature)
	if err != nil {
		return session.TextConfig{}, err
	}
	return session.TextConfig{
		Feature:         id,
		PluginPath:      c.Session.PluginPath,
		ModelDir:        c.ModelsDir,
		ModelGUID:       c.Session.ModelGUID,
		NumThreads:      c.Session.NumThreads,
		VRAMBudgetMB:    c.Session.VRAMBudgetMB,
		TokensToPredict: c.Session.TokensToPredict,
		Marker:          c.Session.Marker,
		RequireBackend:  c.Session.RequireBackend,
		QueueDepth:      c.Session.QueueDepth,
		MaxWait:         time.Duration(c.Session.MaxWaitMS) * time.Millisecond,
	}, nil
}

// RenderSystem returns the configured render system.
func (c Config) RenderSystem() (backend.RenderSystem, error) {
	api, err := types.ParseGraphicsAPI(c.Backend.API)
	if err != nil {
		return nil, err
	}
	return backend.Static{API: api, Device: params.Handle(c.Backend.Device), Queue: params.Handle(c.Backend.Queue)}, nil
}
