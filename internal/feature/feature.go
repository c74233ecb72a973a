// Package feature defines the capability interfaces a loaded plugin exposes
// and the binder table that turns an opaque loaded interface into one of them.
//
// The core runtime hands back an untyped interface value for a feature id.
// Binders map each FeatureID to a BindFunc that validates and wraps that value
// into a typed variant (today TextGeneration). New capabilities add a variant
// interface here and a binder, without touching the core runtime.
package feature

import (
	"errors"
	"fmt"
	"sync"

	"inferhost/internal/params"
	"inferhost/pkg/types"
)

// ErrUnsupportedInterface reports a loaded interface no binder can type.
var ErrUnsupportedInterface = errors.New("unsupported feature interface")

// Interface is the common surface of every loaded feature interface.
type Interface interface {
	Feature() types.FeatureID
	Kind() types.InterfaceKind
}

// TextGeneration is the general purpose transformer capability.
type TextGeneration interface {
	Interface
	// CreateInstance builds a stateful instance from a validated chain.
	CreateInstance(chain *params.Chain) (Instance, error)
	// DestroyInstance releases inst. It must be called before the interface
	// is unloaded.
	DestroyInstance(inst Instance) error
}

// Instance is a live, stateful handle that executes inference.
type Instance interface {
	// EvaluateAsync submits ec and returns once the request is queued. The
	// callback is invoked on a plugin-owned goroutine zero or more times with
	// a non-terminal state and exactly once with a terminal state.
	EvaluateAsync(ec *ExecutionContext) error
}

// BindFunc types the raw interface returned by the core for feature id.
type BindFunc func(id types.FeatureID, raw any) (Interface, error)

// Binders maps feature ids to bind functions.
type Binders struct {
	mu       sync.RWMutex
	byID     map[types.FeatureID]BindFunc
	fallback BindFunc
}

// NewBinders returns a table whose fallback accepts values that already
// implement Interface (in-process plugins).
func NewBinders() *Binders {
	return &Binders{byID: make(map[types.FeatureID]BindFunc), fallback: bindDirect}
}

// Register installs fn for id, replacing any previous binder.
func (b *Binders) Register(id types.FeatureID, fn BindFunc) {
	b.mu.Lock()
	b.byID[id] = fn
	b.mu.Unlock()
}

// SetFallback installs the binder used for ids without a registered one.
func (b *Binders) SetFallback(fn BindFunc) {
	b.mu.Lock()
	b.fallback = fn
	b.mu.Unlock()
}

// Bind types raw for id.
func (b *Binders) Bind(id types.FeatureID, raw any) (Interface, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: %s: nil interface", ErrUnsupportedInterface, id)
	}
	b.mu.RLock()
	fn, ok := b.byID[id]
	if !ok {
		fn = b.fallback
	}
	b.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("%w: %s: no binder", ErrUnsupportedInterface, id)
	}
	return fn(id, raw)
}

func bindDirect(id types.FeatureID, raw any) (Interface, error) {
	iface, ok := raw.(Interface)
	if !ok {
		return nil, fmt.Errorf("%w: %s: %T", ErrUnsupportedInterface, id, raw)
	}
	return iface, nil
}

// AsTextGeneration narrows iface to TextGeneration.
func AsTextGeneration(iface Interface) (TextGeneration, error) {
	tg, ok := iface.(TextGeneration)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not provide text generation (%T)", ErrUnsupportedInterface, iface.Feature(), iface)
	}
	return tg, nil
}
