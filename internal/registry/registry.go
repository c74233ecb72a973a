// Package registry owns the core runtime, the loaded feature interfaces and
// the sessions built on them. A Registry is created once by the host and torn
// down with UnloadCore.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"inferhost/internal/core"
	"inferhost/internal/feature"
	"inferhost/internal/session"
	"inferhost/pkg/types"
)

// Factory builds the session of one kind. It runs under the session lock and
// may call LoadFeature.
type Factory func(ctx context.Context, r *Registry) (session.Session, error)

// Config configures a Registry.
type Config struct {
	// Preferences are passed to the core library at LoadCore.
	Preferences core.Preferences
	// Opener replaces core.Open, mainly for tests.
	Opener core.OpenFunc
	// Binders types raw interfaces. Defaults to a table whose fallback is
	// core.BindNative.
	Binders *feature.Binders
	Events  EventPublisher
	Logger  *zerolog.Logger
}

type loadedFeature struct {
	raw   any
	iface feature.Interface
}

// Registry is the feature registry. Lock order: sessMu before mu.
type Registry struct {
	log     zerolog.Logger
	prefs   core.Preferences
	opener  core.OpenFunc
	binders *feature.Binders
	events  EventPublisher

	sessMu    sync.Mutex
	sessions  map[string]session.Session
	factories map[string]Factory

	mu       sync.Mutex
	rt       *core.Runtime
	features map[types.FeatureID]loadedFeature
	lastErr  string
}

// New returns a registry without a core loaded.
func New(cfg Config) *Registry {
	r := &Registry{
		log:       zerolog.Nop(),
		prefs:     cfg.Preferences,
		opener:    cfg.Opener,
		binders:   cfg.Binders,
		events:    cfg.Events,
		sessions:  make(map[string]session.Session),
		factories: make(map[string]Factory),
		features:  make(map[types.FeatureID]loadedFeature),
	}
	if cfg.Logger != nil {
		r.log = *cfg.Logger
	}
	if r.opener == nil {
		r.opener = core.Open
	}
	if r.binders == nil {
		r.binders = feature.NewBinders()
		r.binders.SetFallback(core.BindNative)
	}
	if r.events == nil {
		r.events = noopPublisher{}
	}
	return r
}

// RegisterSession installs the factory for kind, replacing any previous one.
func (r *Registry) RegisterSession(kind string, f Factory) {
	r.sessMu.Lock()
	r.factories[kind] = f
	r.sessMu.Unlock()
}

// Binders returns the bind table so hosts can register typed binders.
func (r *Registry) Binders() *feature.Binders { return r.binders }

// LoadCore initializes the core runtime from path. It reports whether a core
// is loaded afterwards; a second call with a core already loaded is a no-op.
func (r *Registry) LoadCore(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rt != nil && r.rt.IsInitialized() {
		if r.rt.Path() != path {
			r.log.Warn().Str("event", "core_already_loaded").Str("path", r.rt.Path()).Str("requested", path).Msg("registry")
		}
		return true
	}
	rt := core.NewRuntime(core.WithOpener(r.opener), core.WithLogger(r.log))
	if err := rt.Initialize(path, r.prefs); err != nil {
		r.lastErr = err.Error()
		r.events.Publish(Event{Name: EventCoreLoadFailed, Fields: map[string]any{"path": path, "error": err.Error()}})
		return false
	}
	r.rt = rt
	r.lastErr = ""
	r.events.Publish(Event{Name: EventCoreLoaded, Fields: map[string]any{
		"path":     path,
		"adapters": len(rt.Adapters()),
		"plugins":  len(rt.Plugins()),
	}})
	return true
}

// UnloadCore closes every session, unloads any feature still held and shuts
// the runtime down. It is idempotent and always returns true.
func (r *Registry) UnloadCore() bool {
	r.sessMu.Lock()
	defer r.sessMu.Unlock()
	r.closeSessionsLocked()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rt == nil {
		return true
	}
	for id, lf := range r.features {
		r.log.Warn().Str("event", "feature_leaked").Str("feature", id.String()).Msg("unloading at core shutdown")
		if err := r.rt.UnloadInterface(id, lf.raw); err != nil {
			r.lastErr = err.Error()
		}
		delete(r.features, id)
	}
	if err := r.rt.Shutdown(); err != nil {
		r.lastErr = err.Error()
		r.log.Error().Str("event", "core_shutdown_failed").Err(err).Msg("registry")
	}
	r.rt = nil
	r.events.Publish(Event{Name: EventCoreUnloaded})
	return true
}

// closeSessionsLocked closes sessions in kind order. Caller holds sessMu.
func (r *Registry) closeSessionsLocked() {
	kinds := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		if err := r.sessions[k].Close(); err != nil {
			r.log.Error().Str("event", "session_close_failed").Str("kind", k).Err(err).Msg("registry")
		}
		delete(r.sessions, k)
		r.events.Publish(Event{Name: EventSessionClosed, Fields: map[string]any{"kind": k}})
	}
}

// IsCoreLoaded reports whether a core runtime is initialized.
func (r *Registry) IsCoreLoaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rt != nil && r.rt.IsInitialized()
}

// Runtime returns the core runtime, nil when none is loaded.
func (r *Registry) Runtime() *core.Runtime {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rt
}

// CheckCompatibility checks feature against the selected adapter.
func (r *Registry) CheckCompatibility(id types.FeatureID, name string) error {
	rt := r.Runtime()
	if rt == nil {
		return ErrCoreNotLoaded
	}
	return rt.CheckCompatibility(id, name)
}

// LoadFeature loads the text generation interface of id.
func (r *Registry) LoadFeature(id types.FeatureID, pluginPath string) (feature.Interface, error) {
	return r.LoadFeatureKind(id, types.InterfaceTextGeneration, pluginPath)
}

// LoadFeatureKind loads the kind interface of id and types it through the
// bind table. A feature id is loaded at most once at a time.
func (r *Registry) LoadFeatureKind(id types.FeatureID, kind types.InterfaceKind, pluginPath string) (feature.Interface, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rt == nil {
		return nil, ErrCoreNotLoaded
	}
	if _, ok := r.features[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrFeatureInUse, id)
	}
	raw, err := r.rt.LoadInterface(id, kind, pluginPath)
	if err != nil {
		r.lastErr = err.Error()
		return nil, fmt.Errorf("load feature %s: %w", id, err)
	}
	iface, err := r.binders.Bind(id, raw)
	if err != nil {
		if uerr := r.rt.UnloadInterface(id, raw); uerr != nil {
			r.log.Error().Str("event", "feature_unload_failed").Str("feature", id.String()).Err(uerr).Msg("registry")
		}
		r.lastErr = err.Error()
		return nil, fmt.Errorf("bind feature %s: %w", id, err)
	}
	r.features[id] = loadedFeature{raw: raw, iface: iface}
	r.events.Publish(Event{Name: EventFeatureLoaded, Feature: id.String()})
	return iface, nil
}

// UnloadFeature releases the interface of id. iface is accepted for symmetry
// with LoadFeature; the registry unloads the raw value it holds for id.
func (r *Registry) UnloadFeature(id types.FeatureID, _ feature.Interface) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rt == nil {
		return ErrCoreNotLoaded
	}
	lf, ok := r.features[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFeatureNotLoaded, id)
	}
	delete(r.features, id)
	if err := r.rt.UnloadInterface(id, lf.raw); err != nil {
		r.lastErr = err.Error()
		return fmt.Errorf("unload feature %s: %w", id, err)
	}
	r.events.Publish(Event{Name: EventFeatureUnloaded, Feature: id.String()})
	return nil
}

// Session returns the session of kind, creating it on first use. A failed
// creation is not cached: the next call tries again.
func (r *Registry) Session(ctx context.Context, kind string) (session.Session, error) {
	r.sessMu.Lock()
	defer r.sessMu.Unlock()
	if s, ok := r.sessions[kind]; ok {
		return s, nil
	}
	f, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSessionKind, kind)
	}
	if !r.IsCoreLoaded() {
		return nil, ErrCoreNotLoaded
	}
	s, err := f(ctx, r)
	if err != nil {
		r.mu.Lock()
		r.lastErr = err.Error()
		r.mu.Unlock()
		r.events.Publish(Event{Name: EventSessionFailed, Fields: map[string]any{"kind": kind, "error": err.Error()}})
		return nil, err
	}
	r.sessions[kind] = s
	r.events.Publish(Event{Name: EventSessionCreated, Fields: map[string]any{"kind": kind}})
	return s, nil
}

// TextSession returns the KindGPT session.
func (r *Registry) TextSession(ctx context.Context) (*session.TextSession, error) {
	s, err := r.Session(ctx, session.KindGPT)
	if err != nil {
		return nil, err
	}
	ts, ok := s.(*session.TextSession)
	if !ok {
		return nil, fmt.Errorf("%w: %q is %T", ErrUnknownSessionKind, session.KindGPT, s)
	}
	return ts, nil
}

// CloseSession closes and forgets the session of kind, if any.
func (r *Registry) CloseSession(kind string) error {
	r.sessMu.Lock()
	defer r.sessMu.Unlock()
	s, ok := r.sessions[kind]
	if !ok {
		return nil
	}
	delete(r.sessions, kind)
	err := s.Close()
	r.events.Publish(Event{Name: EventSessionClosed, Fields: map[string]any{"kind": kind}})
	return err
}
