package registry_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inferhost/internal/core"
	"inferhost/internal/core/coretest"
	"inferhost/internal/feature/featuretest"
	"inferhost/internal/registry"
	"inferhost/internal/session"
	"inferhost/pkg/types"
)

type fixture struct {
	reg     *registry.Registry
	lib     *coretest.Library
	plugin  *featuretest.Plugin
	journal *featuretest.Journal
	events  *registry.MemoryPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	j := &featuretest.Journal{}
	p := &featuretest.Plugin{ID: types.FeatureGPTCPU, Journal: j}
	lib := &coretest.Library{
		Journal: j,
		Info: core.SystemInfo{
			Adapters: []types.AdapterInfo{{Name: "cpu", Vendor: types.VendorAny}},
			Plugins: []types.PluginRequirement{
				{Feature: types.FeatureGPTCPU, Name: "gpt.cpu", RequiredVendor: types.VendorAny},
				{Feature: types.FeatureGPTCUDA, Name: "gpt.cuda", RequiredVendor: types.VendorNVIDIA},
			},
		},
		Interfaces: map[types.FeatureID]any{types.FeatureGPTCPU: p},
	}
	ev := registry.NewMemoryPublisher()
	reg := registry.New(registry.Config{Opener: lib.Opener(), Events: ev})
	reg.RegisterSession(session.KindGPT, func(ctx context.Context, r *registry.Registry) (session.Session, error) {
		s, err := session.NewText(ctx, r, nil, session.TextConfig{Feature: types.FeatureGPTCPU})
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	return &fixture{reg: reg, lib: lib, plugin: p, journal: j, events: ev}
}

func TestLoadCore(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.reg.LoadCore(""))
	assert.False(t, f.reg.IsCoreLoaded())
	assert.NotEmpty(t, f.reg.Status().LastError)

	assert.True(t, f.reg.LoadCore("inproc:test"))
	assert.True(t, f.reg.LoadCore("inproc:test"))
	assert.Equal(t, []string{"init"}, f.journal.Entries(), "second LoadCore must not re-init")
	assert.Equal(t, []string{registry.EventCoreLoadFailed, registry.EventCoreLoaded}, f.events.Names())
}

func TestUnloadCoreIdempotent(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.reg.UnloadCore(), "unload without a core")
	require.True(t, f.reg.LoadCore("x"))
	assert.True(t, f.reg.UnloadCore())
	assert.True(t, f.reg.UnloadCore())
	assert.Equal(t, []string{"init", "shutdown", "close"}, f.journal.Entries())
	assert.False(t, f.reg.IsCoreLoaded())
	assert.Nil(t, f.reg.Runtime())
}

func TestLoadFeatureRequiresCore(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.LoadFeature(types.FeatureGPTCPU, "")
	require.ErrorIs(t, err, registry.ErrCoreNotLoaded)
	require.ErrorIs(t, f.reg.UnloadFeature(types.FeatureGPTCPU, nil), registry.ErrCoreNotLoaded)
	_, err = f.reg.Session(context.Background(), session.KindGPT)
	require.ErrorIs(t, err, registry.ErrCoreNotLoaded)
}

func TestLoadFeatureOnce(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.reg.LoadCore("x"))
	iface, err := f.reg.LoadFeature(types.FeatureGPTCPU, "")
	require.NoError(t, err)
	assert.Equal(t, types.FeatureGPTCPU, iface.Feature())

	_, err = f.reg.LoadFeature(types.FeatureGPTCPU, "")
	require.ErrorIs(t, err, registry.ErrFeatureInUse)
	assert.Equal(t, 1, f.lib.Loaded(types.FeatureGPTCPU))

	require.NoError(t, f.reg.UnloadFeature(types.FeatureGPTCPU, iface))
	assert.Equal(t, 0, f.lib.Loaded(types.FeatureGPTCPU))
	require.ErrorIs(t, f.reg.UnloadFeature(types.FeatureGPTCPU, iface), registry.ErrFeatureNotLoaded)

	_, err = f.reg.LoadFeature(types.FeatureGPTCPU, "")
	require.NoError(t, err)
}

func TestLoadFeatureUnknown(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.reg.LoadCore("x"))
	_, err := f.reg.LoadFeature(types.FeatureGPTCUDA, "")
	require.ErrorIs(t, err, core.ErrPluginNotFound)
}

func TestLoadFeatureBindFailureUnloads(t *testing.T) {
	f := newFixture(t)
	f.lib.Interfaces[types.FeatureGPTCUDA] = "not an interface"
	require.True(t, f.reg.LoadCore("x"))
	_, err := f.reg.LoadFeature(types.FeatureGPTCUDA, "")
	require.Error(t, err)
	assert.Equal(t, 0, f.lib.Loaded(types.FeatureGPTCUDA))
	assert.Empty(t, f.reg.Status().LoadedFeatures)
}

func TestSessionCached(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.reg.LoadCore("x"))
	s1, err := f.reg.Session(context.Background(), session.KindGPT)
	require.NoError(t, err)
	s2, err := f.reg.Session(context.Background(), session.KindGPT)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, f.plugin.Live())

	ts, err := f.reg.TextSession(context.Background())
	require.NoError(t, err)
	out, err := ts.Evaluate(context.Background(), "", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestSessionConcurrentFirstUse(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.reg.LoadCore("x"))
	var calls atomic.Int32
	f.reg.RegisterSession("counted", func(ctx context.Context, r *registry.Registry) (session.Session, error) {
		calls.Add(1)
		return session.NewText(ctx, r, nil, session.TextConfig{})
	})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.reg.Session(context.Background(), "counted")
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestSessionFailureNotCached(t *testing.T) {
	f := newFixture(t)
	f.plugin.CreateErr = errors.New("no vram")
	require.True(t, f.reg.LoadCore("x"))

	_, err := f.reg.Session(context.Background(), session.KindGPT)
	require.ErrorIs(t, err, session.ErrInstanceCreationFailed)
	assert.Equal(t, 0, f.lib.Loaded(types.FeatureGPTCPU), "failed session must unload its feature")
	assert.Empty(t, f.reg.Status().Sessions)

	f.plugin.CreateErr = nil
	s, err := f.reg.Session(context.Background(), session.KindGPT)
	require.NoError(t, err)
	assert.Equal(t, "ready", s.Status().State)
}

func TestUnknownSessionKind(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.reg.LoadCore("x"))
	_, err := f.reg.Session(context.Background(), "asr")
	require.ErrorIs(t, err, registry.ErrUnknownSessionKind)
}

func TestUnloadCoreClosesSessionsFirst(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.reg.LoadCore("x"))
	_, err := f.reg.Session(context.Background(), session.KindGPT)
	require.NoError(t, err)

	require.True(t, f.reg.UnloadCore())
	assert.Equal(t, []string{"init", "load", "create", "destroy", "unload", "shutdown", "close"}, f.journal.Entries())
	assert.Equal(t, 0, f.plugin.Live())
}

func TestUnloadCoreReleasesLeakedFeatures(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.reg.LoadCore("x"))
	_, err := f.reg.LoadFeature(types.FeatureGPTCPU, "")
	require.NoError(t, err)
	require.True(t, f.reg.UnloadCore())
	assert.Equal(t, 0, f.lib.Loaded(types.FeatureGPTCPU))
	assert.Less(t, f.journal.Index("unload"), f.journal.Index("shutdown"))
}

func TestCloseSession(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.reg.LoadCore("x"))
	_, err := f.reg.Session(context.Background(), session.KindGPT)
	require.NoError(t, err)
	require.NoError(t, f.reg.CloseSession(session.KindGPT))
	require.NoError(t, f.reg.CloseSession(session.KindGPT))
	assert.Equal(t, 0, f.lib.Loaded(types.FeatureGPTCPU))
}

func TestStatusAndFeatures(t *testing.T) {
	f := newFixture(t)
	assert.Nil(t, f.reg.Features())
	st := f.reg.Status()
	assert.False(t, st.CoreLoaded)
	assert.Equal(t, core.NoAdapter, st.SelectedAdapter)

	require.True(t, f.reg.LoadCore("x"))
	_, err := f.reg.Session(context.Background(), session.KindGPT)
	require.NoError(t, err)

	st = f.reg.Status()
	assert.True(t, st.CoreLoaded)
	assert.Equal(t, "x", st.CorePath)
	assert.Equal(t, 0, st.SelectedAdapter)
	assert.Equal(t, []string{types.FeatureGPTCPU.String()}, st.LoadedFeatures)
	require.Len(t, st.Sessions, 1)
	assert.Equal(t, session.KindGPT, st.Sessions[0].Kind)

	feats := f.reg.Features()
	require.Len(t, feats, 2)
	assert.True(t, feats[0].Compatible)
	assert.True(t, feats[0].Loaded)
	assert.False(t, feats[1].Compatible)
	assert.NotEmpty(t, feats[1].Reason)

	require.ErrorIs(t, f.reg.CheckCompatibility(types.FeatureGPTCUDA, "gpt.cuda"), core.ErrIncompatibleHardware)
}

func TestStatusDuringSessionCreation(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.reg.LoadCore("x"))
	_, err := f.reg.Session(context.Background(), session.KindGPT)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.reg.RegisterSession("slow", func(ctx context.Context, r *registry.Registry) (session.Session, error) {
		close(entered)
		<-release
		return nil, errors.New("gave up")
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.reg.Session(context.Background(), "slow")
	}()
	<-entered

	got := make(chan types.StatusResponse, 1)
	go func() { got <- f.reg.Status() }()
	select {
	case st := <-got:
		require.Len(t, st.Sessions, 1)
		assert.Equal(t, session.KindGPT, st.Sessions[0].Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("Status blocked behind a session factory")
	}
	close(release)
	<-done
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	registry.LogPublisher{Log: zerolog.New(&buf)}.Publish(registry.Event{
		Name:    registry.EventFeatureLoaded,
		Feature: types.FeatureGPTCPU.String(),
		Fields:  map[string]any{"kind": "gpt"},
	})
	out := buf.String()
	assert.Contains(t, out, `"event":"feature_loaded"`)
	assert.Contains(t, out, `"feature":"`+types.FeatureGPTCPU.String()+`"`)
	assert.Contains(t, out, `"kind":"gpt"`)
}
