package core

import (
	"fmt"
	"strings"
	"sync"

	"inferhost/pkg/types"
)

// SDKVersion is the version tag passed to the library init entry point.
const SDKVersion uint64 = 1<<48 | 1<<32

// InProcessScheme prefixes core paths served by a registered in-process library.
const InProcessScheme = "inproc:"

// LogLevel selects how much the core library logs.
type LogLevel uint32

const (
	LogLevelOff LogLevel = iota
	LogLevelDefault
	LogLevelVerbose
)

// MessageType is the severity of a message delivered through the log callback.
type MessageType uint32

const (
	MessageInfo MessageType = iota
	MessageWarning
	MessageError
)

// Preferences is handed to the library init entry point.
type Preferences struct {
	ShowConsole bool
	LogLevel    LogLevel
	// Directories searched for plugin libraries.
	PluginPaths []string
	// Directory for logs and plugin data. Empty disables file logging.
	LogDir string
	// Receives every message the core and its plugins log.
	LogCallback func(MessageType, string)
}

// SystemInfo is the discovery result returned once by init.
type SystemInfo struct {
	Adapters []types.AdapterInfo
	Plugins  []types.PluginRequirement
}

// EntryPoints are the four functions a core library exports. A nil field is a
// missing export.
type EntryPoints struct {
	Init            func(prefs Preferences, sdkVersion uint64) (SystemInfo, Result)
	Shutdown        func() Result
	LoadInterface   func(feature types.FeatureID, kind types.InterfaceKind, version uint32, pluginPath string) (any, Result)
	UnloadInterface func(feature types.FeatureID, iface any) Result
}

// missing returns the name of the first absent entry point, or "".
func (e EntryPoints) missing() string {
	switch {
	case e.Init == nil:
		return "nvigiInit"
	case e.Shutdown == nil:
		return "nvigiShutdown"
	case e.LoadInterface == nil:
		return "nvigiLoadInterface"
	case e.UnloadInterface == nil:
		return "nvigiUnloadInterface"
	}
	return ""
}

// Library is an opened core library.
type Library interface {
	EntryPoints() EntryPoints
	Close() error
}

// OpenFunc opens the core library at path.
type OpenFunc func(path string) (Library, error)

var (
	inprocMu sync.RWMutex
	inproc   = map[string]func() Library{}
)

// RegisterInProcess makes `inproc:<name>` resolve to the library built by fn.
// Registering the same name twice replaces the earlier entry.
func RegisterInProcess(name string, fn func() Library) {
	inprocMu.Lock()
	defer inprocMu.Unlock()
	inproc[name] = fn
}

// InProcessNames lists registered in-process libraries.
func InProcessNames() []string {
	inprocMu.RLock()
	defer inprocMu.RUnlock()
	out := make([]string, 0, len(inproc))
	for n := range inproc {
		out = append(out, n)
	}
	return out
}

// Open resolves path to a library: `inproc:<name>` paths go to the in-process
// registry, everything else to the platform loader.
func Open(path string) (Library, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrLibraryLoadFailed)
	}
	if name, ok := strings.CutPrefix(path, InProcessScheme); ok {
		inprocMu.RLock()
		fn := inproc[name]
		inprocMu.RUnlock()
		if fn == nil {
			return nil, fmt.Errorf("%w: no in-process library %q", ErrLibraryLoadFailed, name)
		}
		return fn(), nil
	}
	return openNative(path)
}

var interfaceVersions = map[types.InterfaceKind]uint32{
	types.InterfaceTextGeneration: 1,
}

// InterfaceVersion returns the version this host expects for kind, 0 if unknown.
func InterfaceVersion(kind types.InterfaceKind) uint32 {
	return interfaceVersions[kind]
}
