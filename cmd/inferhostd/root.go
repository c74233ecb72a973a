package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"inferhost/internal/backend"
	"inferhost/internal/config"
	"inferhost/internal/host"
	"inferhost/internal/inproc"
	"inferhost/internal/logging"
	"inferhost/internal/registry"
	"inferhost/internal/session"
)

// app is shared by the subcommands once the root pre-run resolved config.
type app struct {
	configPath string
	envFile    string

	addr        string
	corePath    string
	modelsDir   string
	pluginPaths string
	corsOrigins string
	logLevel    string
	logFormat   string

	cfg      config.Config
	log      zerolog.Logger
	closeLog func()
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "inferhostd",
		Short:         "Host for plugin-based inference runtimes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.closeLog != nil {
				a.closeLog()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (.yaml, .yml, .json or .toml)")
	pf.StringVar(&a.envFile, "env-file", ".env", "Dotenv file with INFERHOST_* overrides (missing is fine)")
	pf.StringVar(&a.corePath, "core", "", "Core library path or inproc:<name> (default from config)")
	pf.StringVar(&a.modelsDir, "models-dir", "", "Models directory (<dir>/<plugin>/<{GUID}>/*.gguf)")
	pf.StringVar(&a.pluginPaths, "plugin-paths", "", "Comma-separated plugin search paths")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&a.logFormat, "log-format", "", "Log format: console|json")

	root.AddCommand(newServeCmd(a), newProbeCmd(a), newEvalCmd(a))
	return root
}

// setup resolves config (file, then env, then flags) and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Resolve(a.configPath, a.envFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = a.addr
	}
	if flags.Changed("core") {
		cfg.CorePath = a.corePath
	}
	if flags.Changed("models-dir") {
		cfg.ModelsDir = a.modelsDir
	}
	if flags.Changed("plugin-paths") {
		cfg.PluginPaths = splitCSV(a.pluginPaths)
	}
	if flags.Changed("cors-origins") {
		cfg.CORSOrigins = splitCSV(a.corsOrigins)
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	ctx, closeLog := logging.NewContextWithLogger(cmd.Context(), logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Out:    cmd.ErrOrStderr(),
	})
	a.closeLog = closeLog
	a.log = *logging.FromCtx(ctx)
	cmd.SetContext(ctx)
	return nil
}

// newRegistry builds the registry and its text session factory. The core is
// not loaded yet.
func (a *app) newRegistry() (*registry.Registry, error) {
	inproc.Register(inproc.Config{
		Adapters:    a.cfg.Adapters,
		ModelsDir:   a.cfg.ModelsDir,
		ContextSize: a.cfg.ContextSize,
	})
	tc, err := a.cfg.TextConfig()
	if err != nil {
		return nil, err
	}
	tc.Logger = &a.log
	rs, err := a.cfg.RenderSystem()
	if err != nil {
		return nil, err
	}

	reg := registry.New(registry.Config{
		Preferences: a.cfg.Preferences(),
		Events:      registry.LogPublisher{Log: a.log},
		Logger:      &a.log,
	})
	reg.RegisterSession(session.KindGPT, host.TextFactory(tc, backend.NewProvider(rs)))
	return reg, nil
}

// loadCore builds a registry and loads the configured core into it.
func (a *app) loadCore() (*registry.Registry, error) {
	reg, err := a.newRegistry()
	if err != nil {
		return nil, err
	}
	if !reg.LoadCore(a.cfg.CorePath) {
		return nil, fmt.Errorf("load core %s: %s", a.cfg.CorePath, reg.Status().LastError)
	}
	return reg, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
