package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"inferhost/pkg/types"
)

// Runtime owns an opened core library and the discovery result of its init
// call. It is safe for concurrent use.
type Runtime struct {
	mu          sync.RWMutex
	open        OpenFunc
	log         zerolog.Logger
	lib         Library
	ep          EntryPoints
	path        string
	info        SystemInfo
	adapter     int
	initialized bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithOpener replaces Open as the library loader.
func WithOpener(fn OpenFunc) Option {
	return func(r *Runtime) {
		if fn != nil {
			r.open = fn
		}
	}
}

// WithLogger sets the logger used for runtime and library messages.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runtime) { r.log = l }
}

// NewRuntime returns an uninitialized runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{open: Open, log: zerolog.Nop(), adapter: NoAdapter}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Initialize opens the library at path, resolves its entry points and runs
// discovery. Library and entry point failures are logged at fatal level
// without aborting the process; the runtime stays uninitialized.
func (r *Runtime) Initialize(path string, prefs Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return fmt.Errorf("%w: already initialized from %s", ErrInvalidState, r.path)
	}
	if path == "" {
		return r.fatal(fmt.Errorf("%w: empty path", ErrLibraryLoadFailed))
	}
	lib, err := r.open(path)
	if err != nil {
		if !errors.Is(err, ErrLibraryLoadFailed) {
			err = fmt.Errorf("%w: %s: %v", ErrLibraryLoadFailed, path, err)
		}
		return r.fatal(err)
	}
	ep := lib.EntryPoints()
	if name := ep.missing(); name != "" {
		_ = lib.Close()
		return r.fatal(fmt.Errorf("%w: %s in %s", ErrEntryPointMissing, name, path))
	}
	if prefs.LogCallback == nil {
		prefs.LogCallback = r.libraryLog
	}
	info, res := ep.Init(prefs, SDKVersion)
	if err := ResultOf("init", res); err != nil {
		_ = lib.Close()
		r.log.Error().Str("event", "core_init_failed").Str("path", path).Err(err).Msg("core")
		return err
	}
	r.lib, r.ep, r.path, r.info = lib, ep, path, info
	r.adapter = SelectAdapter(info.Adapters)
	r.initialized = true
	ev := r.log.Info().Str("event", "core_initialized").Str("path", path).
		Int("adapters", len(info.Adapters)).Int("plugins", len(info.Plugins)).Int("selected", r.adapter)
	if r.adapter != NoAdapter {
		ev = ev.Str("adapter", info.Adapters[r.adapter].Name)
	}
	ev.Msg("core")
	return nil
}

func (r *Runtime) fatal(err error) error {
	r.log.WithLevel(zerolog.FatalLevel).Str("event", "core_load_failed").Err(err).Msg("core")
	return err
}

func (r *Runtime) libraryLog(t MessageType, msg string) {
	var ev *zerolog.Event
	switch t {
	case MessageWarning:
		ev = r.log.Warn()
	case MessageError:
		ev = r.log.Error()
	default:
		ev = r.log.Info()
	}
	ev.Str("source", "core").Msg(msg)
}

// IsInitialized reports whether Initialize succeeded and Shutdown has not run.
func (r *Runtime) IsInitialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// Path returns the library path of an initialized runtime.
func (r *Runtime) Path() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.path
}

// Adapters returns a copy of the discovered adapters.
func (r *Runtime) Adapters() []types.AdapterInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.AdapterInfo(nil), r.info.Adapters...)
}

// Plugins returns a copy of the discovered plugin requirements.
func (r *Runtime) Plugins() []types.PluginRequirement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.PluginRequirement(nil), r.info.Plugins...)
}

// SelectedAdapter returns the index chosen at init, NoAdapter when none.
func (r *Runtime) SelectedAdapter() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapter
}

// CheckCompatibility checks feature against the selected adapter. name only
// labels log lines.
func (r *Runtime) CheckCompatibility(feature types.FeatureID, name string) error {
	r.mu.RLock()
	if !r.initialized {
		r.mu.RUnlock()
		return ErrInvalidState
	}
	var adapter *types.AdapterInfo
	if r.adapter != NoAdapter {
		a := r.info.Adapters[r.adapter]
		adapter = &a
	}
	err := CheckCompatibility(adapter, r.info.Plugins, feature)
	r.mu.RUnlock()
	if err != nil {
		r.log.Warn().Str("event", "feature_incompatible").Str("feature", feature.String()).Str("name", name).Err(err).Msg("core")
	}
	return err
}

// LoadInterface asks the library for the kind interface of feature.
func (r *Runtime) LoadInterface(feature types.FeatureID, kind types.InterfaceKind, pluginPath string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.initialized {
		return nil, ErrInvalidState
	}
	iface, res := r.ep.LoadInterface(feature, kind, InterfaceVersion(kind), pluginPath)
	err := ResultOf("loadInterface", res)
	if err == nil && iface == nil {
		err = &ResultError{Op: "loadInterface", Result: ResultMissingInterface}
	}
	observeOp("load", err)
	if err != nil {
		r.log.Error().Str("event", "interface_load_failed").Str("feature", feature.String()).Err(err).Msg("core")
		return nil, err
	}
	r.log.Debug().Str("event", "interface_loaded").Str("feature", feature.String()).Msg("core")
	return iface, nil
}

// UnloadInterface releases an interface obtained from LoadInterface.
func (r *Runtime) UnloadInterface(feature types.FeatureID, iface any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.initialized {
		return ErrInvalidState
	}
	err := ResultOf("unloadInterface", r.ep.UnloadInterface(feature, iface))
	observeOp("unload", err)
	if err != nil {
		r.log.Error().Str("event", "interface_unload_failed").Str("feature", feature.String()).Err(err).Msg("core")
		return err
	}
	r.log.Debug().Str("event", "interface_unloaded").Str("feature", feature.String()).Msg("core")
	return nil
}

// Shutdown runs the library shutdown entry point and releases the library.
// Calling it again is a no-op.
func (r *Runtime) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return nil
	}
	err := ResultOf("shutdown", r.ep.Shutdown())
	if cerr := r.lib.Close(); cerr != nil && err == nil {
		err = cerr
	}
	r.log.Info().Str("event", "core_shutdown").Str("path", r.path).Err(err).Msg("core")
	r.lib, r.ep, r.info, r.path = nil, EntryPoints{}, SystemInfo{}, ""
	r.adapter = NoAdapter
	r.initialized = false
	return err
}
