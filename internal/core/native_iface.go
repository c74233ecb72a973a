package core

import (
	"fmt"
	"unsafe"

	"inferhost/internal/feature"
	"inferhost/pkg/types"
)

// NativeInterface is the raw interface pointer returned by a native core
// library. BindNative types it.
type NativeInterface struct {
	feature types.FeatureID
	kind    types.InterfaceKind
	ptr     unsafe.Pointer
	bind    func(*NativeInterface) (feature.Interface, error)
}

func (n *NativeInterface) Feature() types.FeatureID  { return n.feature }
func (n *NativeInterface) Kind() types.InterfaceKind { return n.kind }

// Raw returns the library-side address of the interface.
func (n *NativeInterface) Raw() uintptr { return uintptr(n.ptr) }

// BindNative is a feature.BindFunc for interfaces loaded from a native core
// library. Other values fall through to plain interface assertion.
func BindNative(id types.FeatureID, raw any) (feature.Interface, error) {
	ni, ok := raw.(*NativeInterface)
	if !ok {
		if iface, ok := raw.(feature.Interface); ok {
			return iface, nil
		}
		return nil, fmt.Errorf("%w: %s: %T", feature.ErrUnsupportedInterface, id, raw)
	}
	if ni.ptr == nil || ni.bind == nil {
		return nil, fmt.Errorf("%w: %s: empty native interface", feature.ErrUnsupportedInterface, id)
	}
	return ni.bind(ni)
}

// unwrapNative returns the library pointer held by iface, nil if iface did not
// come from a native library.
func unwrapNative(iface any) unsafe.Pointer {
	switch v := iface.(type) {
	case *NativeInterface:
		return v.ptr
	case interface{ native() *NativeInterface }:
		return v.native().ptr
	}
	return nil
}
