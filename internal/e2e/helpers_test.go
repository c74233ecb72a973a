package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"inferhost/internal/core"
	"inferhost/internal/core/coretest"
	"inferhost/internal/feature/featuretest"
	"inferhost/internal/host"
	"inferhost/internal/httpapi"
	"inferhost/internal/registry"
	"inferhost/internal/session"
	"inferhost/pkg/types"
)

type harness struct {
	srv    *httptest.Server
	reg    *registry.Registry
	plugin *featuretest.Plugin
	events *registry.MemoryPublisher
}

// createTempModelsDir lays out <dir>/<plugin>/<guid>/<name> for each name.
func createTempModelsDir(t *testing.T, plugin, guid string, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	d := filepath.Join(dir, plugin, guid)
	if err := os.MkdirAll(d, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, n := range names {
		p := filepath.Join(d, n)
		if err := os.WriteFile(p, []byte(""), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
	return dir
}

// newServer starts an HTTP server over a registry backed by a scripted core
// with one CPU text generation plugin. The core is not loaded.
func newServer(t *testing.T, modelsDir string, cfg session.TextConfig) *harness {
	t.Helper()
	p := &featuretest.Plugin{ID: types.FeatureGPTCPU}
	lib := &coretest.Library{
		Info: core.SystemInfo{
			Adapters: []types.AdapterInfo{{Name: "cpu", Vendor: types.VendorAny}},
			Plugins:  []types.PluginRequirement{{Feature: types.FeatureGPTCPU, Name: "gpt.cpu", RequiredVendor: types.VendorAny}},
		},
		Interfaces: map[types.FeatureID]any{types.FeatureGPTCPU: p},
	}
	ev := registry.NewMemoryPublisher()
	reg := registry.New(registry.Config{Opener: lib.Opener(), Events: ev})
	cfg.Feature = types.FeatureGPTCPU
	reg.RegisterSession(session.KindGPT, host.TextFactory(cfg, nil))

	srv := httptest.NewServer(httpapi.NewMux(host.New(reg, modelsDir, nil)))
	t.Cleanup(func() {
		srv.Close()
		reg.UnloadCore()
	})
	return &harness{srv: srv, reg: reg, plugin: p, events: ev}
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

// httpPostJSON is safe to call from goroutines; failures are returned as
// status 0.
func httpPostJSON(url string, payload []byte) (int, []byte) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, body
}
