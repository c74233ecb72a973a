package registry

import (
	"sort"

	"inferhost/internal/core"
	"inferhost/internal/session"
	"inferhost/pkg/types"
)

// Status snapshots the registry. UptimeSeconds and ServerTimeUnix are left
// for the caller.
//
// sessMu is held only to copy the session set, so a session being built or
// closed does not stall the snapshot.
func (r *Registry) Status() types.StatusResponse {
	r.sessMu.Lock()
	kinds := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	live := make([]session.Session, 0, len(kinds))
	for _, k := range kinds {
		live = append(live, r.sessions[k])
	}
	r.sessMu.Unlock()

	out := types.StatusResponse{SelectedAdapter: core.NoAdapter}
	for _, s := range live {
		out.Sessions = append(out.Sessions, s.Status())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rt != nil && r.rt.IsInitialized() {
		out.CoreLoaded = true
		out.CorePath = r.rt.Path()
		out.SelectedAdapter = r.rt.SelectedAdapter()
	}
	for id := range r.features {
		out.LoadedFeatures = append(out.LoadedFeatures, id.String())
	}
	sort.Strings(out.LoadedFeatures)
	out.LastError = r.lastErr
	return out
}

// Features lists the discovered plugins with their compatibility against the
// selected adapter.
func (r *Registry) Features() []types.FeatureStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rt == nil {
		return nil
	}
	adapters := r.rt.Adapters()
	var adapter *types.AdapterInfo
	if i := r.rt.SelectedAdapter(); i != core.NoAdapter {
		adapter = &adapters[i]
	}
	plugins := r.rt.Plugins()
	out := make([]types.FeatureStatus, 0, len(plugins))
	for _, p := range plugins {
		fs := types.FeatureStatus{
			ID:                   p.Feature.String(),
			Name:                 p.Name,
			RequiredVendor:       p.RequiredVendor.String(),
			RequiredArchitecture: p.RequiredArchitecture,
			RequiredDriver:       p.RequiredDriver.String(),
			Compatible:           true,
		}
		if err := core.CheckCompatibility(adapter, plugins, p.Feature); err != nil {
			fs.Compatible = false
			fs.Reason = err.Error()
		}
		_, fs.Loaded = r.features[p.Feature]
		out = append(out, fs)
	}
	return out
}
