// Package coretest provides an in-memory core library for tests.
package coretest

import (
	"sync"

	"inferhost/internal/core"
	"inferhost/internal/feature/featuretest"
	"inferhost/pkg/types"
)

// Library is a scripted core library. Interfaces maps feature ids to the raw
// value LoadInterface hands out.
type Library struct {
	Info       core.SystemInfo
	Interfaces map[types.FeatureID]any
	Journal    *featuretest.Journal

	InitResult     core.Result
	LoadResult     core.Result
	UnloadResult   core.Result
	ShutdownResult core.Result
	// Omit names an entry point to leave out, e.g. "nvigiShutdown".
	Omit string

	mu       sync.Mutex
	prefs    core.Preferences
	versions []uint32
	loaded   map[types.FeatureID]int
	closed   bool
}

// Opener returns an OpenFunc that always yields l.
func (l *Library) Opener() core.OpenFunc {
	return func(string) (core.Library, error) { return l, nil }
}

func (l *Library) EntryPoints() core.EntryPoints {
	ep := core.EntryPoints{
		Init:            l.init,
		Shutdown:        l.shutdown,
		LoadInterface:   l.load,
		UnloadInterface: l.unload,
	}
	switch l.Omit {
	case "nvigiInit":
		ep.Init = nil
	case "nvigiShutdown":
		ep.Shutdown = nil
	case "nvigiLoadInterface":
		ep.LoadInterface = nil
	case "nvigiUnloadInterface":
		ep.UnloadInterface = nil
	}
	return ep
}

func (l *Library) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.Journal.Add("close")
	return nil
}

func (l *Library) init(prefs core.Preferences, _ uint64) (core.SystemInfo, core.Result) {
	l.mu.Lock()
	l.prefs = prefs
	l.mu.Unlock()
	l.Journal.Add("init")
	if prefs.LogCallback != nil {
		prefs.LogCallback(core.MessageInfo, "coretest initialized")
	}
	return l.Info, l.InitResult
}

func (l *Library) shutdown() core.Result {
	l.Journal.Add("shutdown")
	return l.ShutdownResult
}

func (l *Library) load(feature types.FeatureID, _ types.InterfaceKind, version uint32, _ string) (any, core.Result) {
	if l.LoadResult != core.ResultOK {
		return nil, l.LoadResult
	}
	raw, ok := l.Interfaces[feature]
	if !ok {
		return nil, core.ResultItemNotFound
	}
	l.mu.Lock()
	if l.loaded == nil {
		l.loaded = make(map[types.FeatureID]int)
	}
	l.loaded[feature]++
	l.versions = append(l.versions, version)
	l.mu.Unlock()
	l.Journal.Add("load")
	return raw, core.ResultOK
}

func (l *Library) unload(feature types.FeatureID, _ any) core.Result {
	l.Journal.Add("unload")
	if l.UnloadResult != core.ResultOK {
		return l.UnloadResult
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded[feature] == 0 {
		return core.ResultInvalidState
	}
	l.loaded[feature]--
	return core.ResultOK
}

// Loaded returns how many interfaces of feature are outstanding.
func (l *Library) Loaded(feature types.FeatureID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded[feature]
}

// Closed reports whether Close ran.
func (l *Library) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Prefs returns the preferences passed to init.
func (l *Library) Prefs() core.Preferences {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prefs
}

// Versions returns the interface versions requested so far.
func (l *Library) Versions() []uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]uint32(nil), l.versions...)
}
