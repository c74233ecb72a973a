package core

import (
	"runtime"
	"unsafe"

	"inferhost/pkg/types"
)

// C layout of the core library ABI. All structs are naturally aligned for
// 64-bit targets; strings are NUL terminated UTF-8.
//
//	Result nvigiInit(const Preferences*, const SystemInfo** out, uint64 sdkVersion)
//	Result nvigiShutdown(void)
//	Result nvigiLoadInterface(const UID* feature, const UID* kind, uint32 version, void** out, const char* pluginPath)
//	Result nvigiUnloadInterface(const UID* feature, void* iface)

type cUID [16]byte

func toCUID[T ~[16]byte](u T) *cUID {
	c := cUID(u)
	return &c
}

type cPreferences struct {
	showConsole    uint8
	_              [3]byte
	logLevel       uint32
	pluginPaths    **byte
	numPluginPaths uint32
	_              uint32
	logDir         *byte
	// void (*)(uint32 messageType, const char* msg)
	logCallback uintptr
}

type cAdapter struct {
	vendor       uint32
	architecture uint32
	driverMajor  uint32
	driverMinor  uint32
	vramMB       uint64
	name         *byte
}

type cPlugin struct {
	id                   cUID
	name                 *byte
	requiredVendor       uint32
	requiredArchitecture uint32
	driverMajor          uint32
	driverMinor          uint32
}

type cSystemInfo struct {
	plugins     **cPlugin
	numPlugins  uint32
	_           uint32
	adapters    **cAdapter
	numAdapters uint32
	_           uint32
}

// Text generation interface returned by nvigiLoadInterface for
// InterfaceTextGeneration.
//
//	Result createInstance(const BlockHeader* chain, Instance** out)
//	Result destroyInstance(const Instance*)
type cTextGeneration struct {
	version         uint32
	_               uint32
	createInstance  uintptr
	destroyInstance uintptr
}

// Result evaluateAsync(const ExecutionContext*)
type cInstance struct {
	data          unsafe.Pointer
	evaluateAsync uintptr
}

// Creation parameter blocks are linked through header.next.
type cBlockHeader struct {
	kind uint32
	_    uint32
	next unsafe.Pointer
}

type cCommon struct {
	header       cBlockHeader
	modelDir     *byte
	numThreads   uint32
	_            uint32
	vramBudgetMB uint64
	modelGUID    *byte
}

type cBackend struct {
	header cBlockHeader
	device uintptr
	queue  uintptr
}

type cSlot struct {
	key  *byte
	text *byte
	size uint64
}

type cSlotArray struct {
	items *cSlot
	count uint64
}

type cRuntimeParams struct {
	seed            int32
	tokensToPredict int32
	interactive     uint8
	_               [7]byte
}

// State (*callback)(const ExecutionContext*, State, void* userData)
type cExecutionContext struct {
	instance unsafe.Pointer
	callback uintptr
	userData uintptr
	inputs   *cSlotArray
	outputs  *cSlotArray
	runtime  *cRuntimeParams
}

// cString copies s into pinned Go memory with a trailing NUL.
func cString(pin *runtime.Pinner, s string) *byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	pin.Pin(&b[0])
	return &b[0]
}

// optionalCString is cString with an empty s mapped to NULL.
func optionalCString(pin *runtime.Pinner, s string) *byte {
	if s == "" {
		return nil
	}
	return cString(pin, s)
}

// goString copies a NUL terminated C string.
func goString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}

func (p *cPreferences) fill(pin *runtime.Pinner, prefs Preferences, logCallback uintptr) {
	if prefs.ShowConsole {
		p.showConsole = 1
	}
	p.logLevel = uint32(prefs.LogLevel)
	if n := len(prefs.PluginPaths); n > 0 {
		paths := make([]*byte, n)
		for i, s := range prefs.PluginPaths {
			paths[i] = cString(pin, s)
		}
		pin.Pin(&paths[0])
		p.pluginPaths = &paths[0]
		p.numPluginPaths = uint32(n)
	}
	if prefs.LogDir != "" {
		p.logDir = cString(pin, prefs.LogDir)
	}
	if prefs.LogCallback != nil {
		p.logCallback = logCallback
	}
}

func (s *cSystemInfo) decode() SystemInfo {
	var out SystemInfo
	if s == nil {
		return out
	}
	if s.adapters != nil && s.numAdapters > 0 {
		for _, a := range unsafe.Slice(s.adapters, s.numAdapters) {
			if a == nil {
				continue
			}
			out.Adapters = append(out.Adapters, types.AdapterInfo{
				Name:         goString(a.name),
				Vendor:       types.VendorID(a.vendor),
				Architecture: a.architecture,
				Driver:       types.DriverVersion{Major: a.driverMajor, Minor: a.driverMinor},
				VRAMMB:       a.vramMB,
			})
		}
	}
	if s.plugins != nil && s.numPlugins > 0 {
		for _, p := range unsafe.Slice(s.plugins, s.numPlugins) {
			if p == nil {
				continue
			}
			out.Plugins = append(out.Plugins, types.PluginRequirement{
				Feature:              types.FeatureID(p.id),
				Name:                 goString(p.name),
				RequiredVendor:       types.VendorID(p.requiredVendor),
				RequiredArchitecture: p.requiredArchitecture,
				RequiredDriver:       types.DriverVersion{Major: p.driverMajor, Minor: p.driverMinor},
			})
		}
	}
	return out
}
