package core

import (
	"fmt"

	"inferhost/pkg/types"
)

// NoAdapter is the selected index when discovery reported no adapters.
const NoAdapter = -1

// SelectAdapter picks the adapter with the highest architecture among those
// from a physical vendor; ties keep the first. When none qualify it falls back
// to index 0, or NoAdapter when the list is empty.
func SelectAdapter(adapters []types.AdapterInfo) int {
	best := NoAdapter
	for i, a := range adapters {
		if !a.Vendor.IsPhysical() {
			continue
		}
		if best == NoAdapter || a.Architecture > adapters[best].Architecture {
			best = i
		}
	}
	if best == NoAdapter && len(adapters) > 0 {
		return 0
	}
	return best
}

// FindPlugin returns the requirement entry reported for feature.
func FindPlugin(plugins []types.PluginRequirement, feature types.FeatureID) (types.PluginRequirement, bool) {
	for _, p := range plugins {
		if p.Feature == feature {
			return p, true
		}
	}
	return types.PluginRequirement{}, false
}

// CheckCompatibility reports whether the plugin for feature can run on adapter
// (nil when there is none). Checks run in order: vendor, architecture (NVIDIA
// only), driver.
func CheckCompatibility(adapter *types.AdapterInfo, plugins []types.PluginRequirement, feature types.FeatureID) error {
	req, ok := FindPlugin(plugins, feature)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, feature)
	}
	if !req.RequiredVendor.IsPhysical() {
		return nil
	}
	if adapter == nil {
		return fmt.Errorf("%w: %s requires %s, no adapter present", ErrIncompatibleHardware, req.Name, req.RequiredVendor)
	}
	if adapter.Vendor != req.RequiredVendor {
		return fmt.Errorf("%w: %s requires %s, found %s", ErrIncompatibleHardware, req.Name, req.RequiredVendor, adapter.Vendor)
	}
	if req.RequiredVendor == types.VendorNVIDIA && adapter.Architecture < req.RequiredArchitecture {
		return fmt.Errorf("%w: %s requires architecture %d, found %d", ErrUnsupportedHardware, req.Name, req.RequiredArchitecture, adapter.Architecture)
	}
	if adapter.Driver.Less(req.RequiredDriver) {
		return fmt.Errorf("%w: %s requires driver %s, found %s", ErrDriverOutOfDate, req.Name, req.RequiredDriver, adapter.Driver)
	}
	return nil
}
