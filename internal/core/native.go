//go:build (darwin || freebsd || linux || windows) && (amd64 || arm64)

package core

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"

	"inferhost/pkg/types"
)

// module is a dynamically loaded shared library.
type module interface {
	sym(name string) (uintptr, error)
	close() error
}

type nativeLibrary struct {
	path string
	mod  module
	ep   EntryPoints
	once sync.Once
}

func openNative(path string) (Library, error) {
	mod, err := loadModule(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLibraryLoadFailed, path, err)
	}
	l := &nativeLibrary{path: path, mod: mod}
	l.resolve()
	return l, nil
}

func (l *nativeLibrary) EntryPoints() EntryPoints { return l.ep }

func (l *nativeLibrary) Close() error {
	var err error
	l.once.Do(func() {
		logSink.Store(nil)
		err = l.mod.close()
	})
	return err
}

func (l *nativeLibrary) lookup(name string) uintptr {
	addr, err := l.mod.sym(name)
	if err != nil {
		return 0
	}
	return addr
}

// resolve binds every export that is present. Missing ones stay nil.
func (l *nativeLibrary) resolve() {
	if addr := l.lookup("nvigiInit"); addr != 0 {
		var fn func(prefs *cPreferences, out *unsafe.Pointer, sdkVersion uint64) uint32
		purego.RegisterFunc(&fn, addr)
		l.ep.Init = func(prefs Preferences, sdkVersion uint64) (SystemInfo, Result) {
			var pin runtime.Pinner
			defer pin.Unpin()
			cp := &cPreferences{}
			pin.Pin(cp)
			if prefs.LogCallback != nil {
				cb := prefs.LogCallback
				logSink.Store(&cb)
			}
			cp.fill(&pin, prefs, logCallbackPtr())
			var out unsafe.Pointer
			res := Result(fn(cp, &out, sdkVersion))
			if res != ResultOK {
				return SystemInfo{}, res
			}
			return (*cSystemInfo)(out).decode(), res
		}
	}
	if addr := l.lookup("nvigiShutdown"); addr != 0 {
		var fn func() uint32
		purego.RegisterFunc(&fn, addr)
		l.ep.Shutdown = func() Result { return Result(fn()) }
	}
	if addr := l.lookup("nvigiLoadInterface"); addr != 0 {
		var fn func(feature, kind *cUID, version uint32, out *unsafe.Pointer, pluginPath *byte) uint32
		purego.RegisterFunc(&fn, addr)
		l.ep.LoadInterface = func(feature types.FeatureID, kind types.InterfaceKind, version uint32, pluginPath string) (any, Result) {
			var pin runtime.Pinner
			defer pin.Unpin()
			var out unsafe.Pointer
			res := Result(fn(toCUID(feature), toCUID(kind), version, &out, optionalCString(&pin, pluginPath)))
			if res != ResultOK || out == nil {
				return nil, res
			}
			ni := &NativeInterface{feature: feature, kind: kind, ptr: out}
			if kind == types.InterfaceTextGeneration {
				ni.bind = bindNativeText
			}
			return ni, res
		}
	}
	if addr := l.lookup("nvigiUnloadInterface"); addr != 0 {
		var fn func(feature *cUID, iface unsafe.Pointer) uint32
		purego.RegisterFunc(&fn, addr)
		l.ep.UnloadInterface = func(feature types.FeatureID, iface any) Result {
			p := unwrapNative(iface)
			if p == nil {
				return ResultInvalidParameter
			}
			return Result(fn(toCUID(feature), p))
		}
	}
}

// The library keeps a single C log callback for its whole lifetime, so one
// trampoline serves every runtime and forwards to the latest sink.
var (
	logSink        atomic.Pointer[func(MessageType, string)]
	logCallbackPtr = sync.OnceValue(func() uintptr {
		return purego.NewCallback(func(messageType uintptr, msg *byte) uintptr {
			if fn := logSink.Load(); fn != nil {
				(*fn)(MessageType(messageType), goString(msg))
			}
			return 0
		})
	})
)
