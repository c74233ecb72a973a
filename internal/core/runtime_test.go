package core_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inferhost/internal/core"
	"inferhost/internal/core/coretest"
	"inferhost/internal/feature/featuretest"
	"inferhost/pkg/types"
)

func newLib(j *featuretest.Journal) *coretest.Library {
	return &coretest.Library{
		Journal: j,
		Info: core.SystemInfo{
			Adapters: []types.AdapterInfo{
				{Name: "igpu", Vendor: types.VendorIntel, Architecture: 1},
				{Name: "rtx", Vendor: types.VendorNVIDIA, Architecture: 0x190, Driver: types.DriverVersion{Major: 560}},
			},
			Plugins: []types.PluginRequirement{
				{Feature: types.FeatureGPTCUDA, Name: "gpt.cuda", RequiredVendor: types.VendorNVIDIA, RequiredArchitecture: 0x180},
				{Feature: types.FeatureGPTCPU, Name: "gpt.cpu", RequiredVendor: types.VendorAny},
			},
		},
		Interfaces: map[types.FeatureID]any{
			types.FeatureGPTCPU: &featuretest.Plugin{ID: types.FeatureGPTCPU},
		},
	}
}

func TestInitializeSelectsAdapter(t *testing.T) {
	lib := newLib(nil)
	rt := core.NewRuntime(core.WithOpener(lib.Opener()))
	require.NoError(t, rt.Initialize("fake", core.Preferences{LogLevel: core.LogLevelVerbose}))
	assert.True(t, rt.IsInitialized())
	assert.Equal(t, 1, rt.SelectedAdapter())
	assert.Len(t, rt.Adapters(), 2)
	assert.Len(t, rt.Plugins(), 2)
	assert.Equal(t, "fake", rt.Path())
	assert.NotNil(t, lib.Prefs().LogCallback, "runtime installs a log callback")
	require.NoError(t, rt.CheckCompatibility(types.FeatureGPTCUDA, "gpt.cuda"))
}

func TestInitializeEmptyPath(t *testing.T) {
	var buf bytes.Buffer
	rt := core.NewRuntime(core.WithLogger(zerolog.New(&buf)))
	err := rt.Initialize("", core.Preferences{})
	require.ErrorIs(t, err, core.ErrLibraryLoadFailed)
	assert.True(t, core.IsFatal(err))
	assert.False(t, rt.IsInitialized())
	assert.Contains(t, buf.String(), `"level":"fatal"`)
}

func TestInitializeOpenFailure(t *testing.T) {
	rt := core.NewRuntime(core.WithOpener(func(string) (core.Library, error) {
		return nil, errors.New("no such file")
	}))
	err := rt.Initialize("/missing.so", core.Preferences{})
	require.ErrorIs(t, err, core.ErrLibraryLoadFailed)
	assert.False(t, rt.IsInitialized())
}

func TestInitializeMissingEntryPoint(t *testing.T) {
	for _, name := range []string{"nvigiInit", "nvigiShutdown", "nvigiLoadInterface", "nvigiUnloadInterface"} {
		t.Run(name, func(t *testing.T) {
			lib := newLib(nil)
			lib.Omit = name
			rt := core.NewRuntime(core.WithOpener(lib.Opener()))
			err := rt.Initialize("fake", core.Preferences{})
			require.ErrorIs(t, err, core.ErrEntryPointMissing)
			assert.Contains(t, err.Error(), name)
			assert.False(t, rt.IsInitialized())
			assert.True(t, lib.Closed())
		})
	}
}

func TestInitializeResultFailure(t *testing.T) {
	lib := newLib(nil)
	lib.InitResult = core.ResultNoPluginsFound
	rt := core.NewRuntime(core.WithOpener(lib.Opener()))
	err := rt.Initialize("fake", core.Preferences{})
	require.ErrorIs(t, err, core.ErrPluginNotFound)
	var re *core.ResultError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, core.ResultNoPluginsFound, re.Result)
	assert.False(t, rt.IsInitialized())
}

func TestOperationsBeforeInitialize(t *testing.T) {
	rt := core.NewRuntime()
	_, err := rt.LoadInterface(types.FeatureGPTCPU, types.InterfaceTextGeneration, "")
	require.ErrorIs(t, err, core.ErrInvalidState)
	require.ErrorIs(t, rt.UnloadInterface(types.FeatureGPTCPU, nil), core.ErrInvalidState)
	require.ErrorIs(t, rt.CheckCompatibility(types.FeatureGPTCPU, "cpu"), core.ErrInvalidState)
	assert.Equal(t, core.NoAdapter, rt.SelectedAdapter())
}

func TestLoadUnloadInterface(t *testing.T) {
	lib := newLib(nil)
	rt := core.NewRuntime(core.WithOpener(lib.Opener()))
	require.NoError(t, rt.Initialize("fake", core.Preferences{}))

	raw, err := rt.LoadInterface(types.FeatureGPTCPU, types.InterfaceTextGeneration, "")
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, 1, lib.Loaded(types.FeatureGPTCPU))
	assert.Equal(t, []uint32{core.InterfaceVersion(types.InterfaceTextGeneration)}, lib.Versions())

	require.NoError(t, rt.UnloadInterface(types.FeatureGPTCPU, raw))
	assert.Equal(t, 0, lib.Loaded(types.FeatureGPTCPU))

	_, err = rt.LoadInterface(types.FeatureGPTCUDA, types.InterfaceTextGeneration, "")
	require.ErrorIs(t, err, core.ErrPluginNotFound)
}

func TestShutdownIdempotent(t *testing.T) {
	j := &featuretest.Journal{}
	lib := newLib(j)
	rt := core.NewRuntime(core.WithOpener(lib.Opener()))
	require.NoError(t, rt.Initialize("fake", core.Preferences{}))
	require.NoError(t, rt.Shutdown())
	require.NoError(t, rt.Shutdown())
	assert.False(t, rt.IsInitialized())
	assert.Equal(t, []string{"init", "shutdown", "close"}, j.Entries())
	require.NoError(t, rt.Initialize("fake", core.Preferences{}), "re-initialize after shutdown")
}

func TestInitializeTwice(t *testing.T) {
	lib := newLib(nil)
	rt := core.NewRuntime(core.WithOpener(lib.Opener()))
	require.NoError(t, rt.Initialize("fake", core.Preferences{}))
	require.ErrorIs(t, rt.Initialize("fake", core.Preferences{}), core.ErrInvalidState)
}

func TestLibraryLogRouted(t *testing.T) {
	var buf bytes.Buffer
	lib := newLib(nil)
	rt := core.NewRuntime(core.WithOpener(lib.Opener()), core.WithLogger(zerolog.New(&buf)))
	require.NoError(t, rt.Initialize("fake", core.Preferences{}))
	assert.True(t, strings.Contains(buf.String(), "coretest initialized"))
}

func TestOpenInProcess(t *testing.T) {
	lib := newLib(nil)
	core.RegisterInProcess("coretest", func() core.Library { return lib })
	got, err := core.Open(core.InProcessScheme + "coretest")
	require.NoError(t, err)
	assert.Same(t, lib, got)
	assert.Contains(t, core.InProcessNames(), "coretest")

	_, err = core.Open(core.InProcessScheme + "nope")
	require.ErrorIs(t, err, core.ErrLibraryLoadFailed)
	_, err = core.Open("  ")
	require.ErrorIs(t, err, core.ErrLibraryLoadFailed)
}

func TestOpenNativeMissingFile(t *testing.T) {
	_, err := core.Open("/nonexistent/libcore-does-not-exist.so")
	require.ErrorIs(t, err, core.ErrLibraryLoadFailed)
}

func TestResultErrorMapping(t *testing.T) {
	assert.ErrorIs(t, core.ResultOf("x", core.ResultInvalidState), core.ErrInvalidState)
	assert.ErrorIs(t, core.ResultOf("x", core.ResultDriverOutOfDate), core.ErrDriverOutOfDate)
	assert.NoError(t, core.ResultOf("x", core.ResultOK))
	assert.Equal(t, "result(999)", core.Result(999).String())
}
