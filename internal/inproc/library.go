// Package inproc is a core library that runs inside the host process. It
// reports the adapters given in its Config and a single CPU text generation
// plugin backed by llama.cpp (build tag "llama").
package inproc

import (
	"errors"
	"fmt"
	"sync"

	"inferhost/internal/core"
	"inferhost/pkg/types"
)

// Name is the registration name; open the library as "inproc:llama".
const Name = "llama"

// PluginName is the name reported for the CPU text generation plugin.
const PluginName = "inproc.plugin.gpt.llama"

// ErrDependencyUnavailable reports a binary built without llama support.
var ErrDependencyUnavailable = errors.New("llama support not built (missing 'llama' build tag)")

// Config configures the in-process library.
type Config struct {
	// Adapters are reported by discovery. Defaults to one CPU pseudo adapter.
	Adapters []types.AdapterInfo
	// ModelsDir is searched when a creation chain carries no model dir.
	ModelsDir string
	// ContextSize is the llama context length. Defaults to 2048.
	ContextSize int
}

// Register installs the library under Name.
func Register(cfg Config) {
	core.RegisterInProcess(Name, func() core.Library { return New(cfg) })
}

// Library implements core.Library.
type Library struct {
	cfg Config

	mu          sync.Mutex
	initialized bool
	logf        func(core.MessageType, string)
	loaded      map[types.FeatureID]int
}

// New returns an unopened library.
func New(cfg Config) *Library {
	if len(cfg.Adapters) == 0 {
		cfg.Adapters = []types.AdapterInfo{{Name: "cpu", Vendor: types.VendorAny}}
	}
	if cfg.ContextSize <= 0 {
		cfg.ContextSize = 2048
	}
	return &Library{cfg: cfg, loaded: make(map[types.FeatureID]int)}
}

// Built reports whether this binary links llama.cpp.
func Built() bool { return llamaBuilt }

func (l *Library) EntryPoints() core.EntryPoints {
	return core.EntryPoints{
		Init:            l.init,
		Shutdown:        l.shutdown,
		LoadInterface:   l.loadInterface,
		UnloadInterface: l.unloadInterface,
	}
}

func (l *Library) Close() error { return nil }

func (l *Library) log(t core.MessageType, format string, args ...any) {
	l.mu.Lock()
	fn := l.logf
	l.mu.Unlock()
	if fn != nil {
		fn(t, fmt.Sprintf(format, args...))
	}
}

func (l *Library) init(prefs core.Preferences, _ uint64) (core.SystemInfo, core.Result) {
	l.mu.Lock()
	if l.initialized {
		l.mu.Unlock()
		return core.SystemInfo{}, core.ResultInvalidState
	}
	l.initialized = true
	if prefs.LogLevel != core.LogLevelOff {
		l.logf = prefs.LogCallback
	}
	l.mu.Unlock()

	info := core.SystemInfo{
		Adapters: append([]types.AdapterInfo(nil), l.cfg.Adapters...),
		Plugins: []types.PluginRequirement{{
			Feature:        types.FeatureGPTCPU,
			Name:           PluginName,
			RequiredVendor: types.VendorAny,
		}},
	}
	l.log(core.MessageInfo, "inproc core ready: %d adapter(s), llama built=%t", len(info.Adapters), llamaBuilt)
	return info, core.ResultOK
}

func (l *Library) shutdown() core.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return core.ResultInvalidState
	}
	l.initialized = false
	for id, n := range l.loaded {
		if n > 0 && l.logf != nil {
			l.logf(core.MessageWarning, fmt.Sprintf("shutdown with %d interface(s) of %s still loaded", n, id))
		}
	}
	l.loaded = make(map[types.FeatureID]int)
	l.logf = nil
	return core.ResultOK
}

func (l *Library) loadInterface(id types.FeatureID, kind types.InterfaceKind, version uint32, _ string) (any, core.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return nil, core.ResultInvalidState
	}
	if id != types.FeatureGPTCPU {
		return nil, core.ResultItemNotFound
	}
	if kind != types.InterfaceTextGeneration {
		return nil, core.ResultMissingInterface
	}
	if version > core.InterfaceVersion(kind) {
		return nil, core.ResultPluginOutOfDate
	}
	l.loaded[id]++
	return &gptPlugin{lib: l}, core.ResultOK
}

func (l *Library) unloadInterface(id types.FeatureID, iface any) core.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return core.ResultInvalidState
	}
	p, ok := iface.(*gptPlugin)
	if !ok || p.lib != l || l.loaded[id] == 0 {
		return core.ResultInvalidParameter
	}
	l.loaded[id]--
	return core.ResultOK
}
