package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inferhost/internal/backend"
	"inferhost/internal/feature"
	"inferhost/internal/feature/featuretest"
	"inferhost/internal/params"
	"inferhost/internal/session"
	"inferhost/pkg/types"
)

// fakeLoader hands out a single plugin and journals load/unload.
type fakeLoader struct {
	plugin  *featuretest.Plugin
	journal *featuretest.Journal
	loadErr error

	mu       sync.Mutex
	unloaded []feature.Interface
}

func (l *fakeLoader) LoadFeature(id types.FeatureID, _ string) (feature.Interface, error) {
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	l.journal.Add("load")
	return l.plugin, nil
}

func (l *fakeLoader) UnloadFeature(_ types.FeatureID, iface feature.Interface) error {
	l.journal.Add("unload")
	l.mu.Lock()
	l.unloaded = append(l.unloaded, iface)
	l.mu.Unlock()
	return nil
}

func newFixture() (*fakeLoader, *featuretest.Plugin, *featuretest.Journal) {
	j := &featuretest.Journal{}
	p := &featuretest.Plugin{ID: types.FeatureGPTCPU, Journal: j}
	return &fakeLoader{plugin: p, journal: j}, p, j
}

func script(steps ...featuretest.Step) func(feature.Slots) []featuretest.Step {
	return func(feature.Slots) []featuretest.Step { return steps }
}

func TestEvaluateDropsMarkedFragments(t *testing.T) {
	l, p, _ := newFixture()
	p.Respond = script(
		featuretest.Step{Text: "hello ", State: feature.StateDataPending},
		featuretest.Step{Text: "<JSON>ignored", State: feature.StateDataPending},
		featuretest.Step{State: feature.StateDone},
	)
	s, err := session.NewText(context.Background(), l, nil, session.TextConfig{})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Evaluate(context.Background(), "", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "hello ", got)
}

func TestEvaluateRequestShape(t *testing.T) {
	l, p, _ := newFixture()
	s, err := session.NewText(context.Background(), l, nil, session.TextConfig{})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Evaluate(context.Background(), "", "ping", "")
	require.NoError(t, err)
	assert.Equal(t, "ping", got)

	_, err = s.Evaluate(context.Background(), "sys", "ping", "asst")
	require.NoError(t, err)

	reqs := p.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, feature.Slots{{Name: feature.SlotUser, Text: "ping"}}, reqs[0].Inputs)
	assert.Equal(t, feature.Slots{
		{Name: feature.SlotUser, Text: "ping"},
		{Name: feature.SlotSystem, Text: "sys"},
		{Name: feature.SlotAssistant, Text: "asst"},
	}, reqs[1].Inputs)
	assert.Equal(t, feature.RuntimeParameters{Seed: -1, TokensToPredict: 200}, reqs[0].Runtime)
	assert.Equal(t, uint64(2), s.Status().Evaluations)
}

func TestEvaluateStateOnlyTerminal(t *testing.T) {
	l, p, _ := newFixture()
	p.Respond = script(
		featuretest.Step{Text: "a", State: feature.StateDataPartial},
		featuretest.Step{Text: "b", State: feature.StateDataPending},
		featuretest.Step{Text: "c", State: feature.StateInvalid},
	)
	s, err := session.NewText(context.Background(), l, nil, session.TextConfig{})
	require.NoError(t, err)
	defer s.Close()

	res, err := s.EvaluatePrompt(context.Background(), session.Prompt{User: "x"})
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Text)
	assert.Equal(t, feature.StateInvalid, res.State)
	assert.Equal(t, session.StateReady, s.State())
}

func TestEvaluateSerialized(t *testing.T) {
	l, p, _ := newFixture()
	gate := make(chan struct{})
	p.Gate = gate
	s, err := session.NewText(context.Background(), l, nil, session.TextConfig{})
	require.NoError(t, err)
	defer s.Close()

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i, prompt := range []string{"one", "two"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = s.Evaluate(context.Background(), "", prompt, "")
		}()
	}

	require.Eventually(t, func() bool { return len(p.Requests()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, p.Requests(), 1, "second evaluation must wait for the first to finish")
	assert.Equal(t, 1, s.Status().Inflight)

	close(gate)
	wg.Wait()
	assert.Len(t, p.Requests(), 2)
	assert.ElementsMatch(t, []string{"one", "two"}, results)
}

func TestEvaluateTooBusy(t *testing.T) {
	l, p, _ := newFixture()
	gate := make(chan struct{})
	p.Gate = gate
	s, err := session.NewText(context.Background(), l, nil, session.TextConfig{QueueDepth: 1, MaxWait: 20 * time.Millisecond})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Evaluate(context.Background(), "", "first", "")
	}()
	require.Eventually(t, func() bool { return len(p.Requests()) == 1 }, time.Second, 5*time.Millisecond)

	_, err = s.Evaluate(context.Background(), "", "second", "")
	require.ErrorIs(t, err, session.ErrTooBusy)
	assert.True(t, session.IsTooBusy(err))

	close(gate)
	<-done
	require.NoError(t, s.Close())
}

func TestEvaluateCanceledBeforeAdmission(t *testing.T) {
	l, _, _ := newFixture()
	s, err := session.NewText(context.Background(), l, nil, session.TextConfig{})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Evaluate(ctx, "", "x", "")
	require.ErrorIs(t, err, context.Canceled)
}

func TestSubmitFailure(t *testing.T) {
	l, p, _ := newFixture()
	p.SubmitErr = errors.New("queue full")
	s, err := session.NewText(context.Background(), l, nil, session.TextConfig{})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Evaluate(context.Background(), "", "x", "")
	require.Error(t, err)
	assert.Equal(t, session.StateReady, s.State())
}

func TestCloseDestroysBeforeUnload(t *testing.T) {
	l, p, j := newFixture()
	s, err := session.NewText(context.Background(), l, nil, session.TextConfig{})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, []string{"load", "create", "destroy", "unload"}, j.Entries())
	assert.Equal(t, 0, p.Live())
	assert.Equal(t, session.StateDestroyed, s.State())

	_, err = s.Evaluate(context.Background(), "", "x", "")
	require.ErrorIs(t, err, session.ErrNotReady)
}

func TestCloseWaitsForInflight(t *testing.T) {
	l, p, j := newFixture()
	gate := make(chan struct{})
	p.Gate = gate
	s, err := session.NewText(context.Background(), l, nil, session.TextConfig{})
	require.NoError(t, err)

	evalDone := make(chan string, 1)
	go func() {
		out, _ := s.Evaluate(context.Background(), "", "late", "")
		evalDone <- out
	}()
	require.Eventually(t, func() bool { return len(p.Requests()) == 1 }, time.Second, 5*time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, -1, j.Index("destroy"), "instance destroyed while evaluating")

	close(gate)
	assert.Equal(t, "late", <-evalDone)
	require.NoError(t, <-closed)
	assert.Less(t, j.Index("destroy"), j.Index("unload"))
}

func TestCreateFailureLeavesInertSession(t *testing.T) {
	l, p, j := newFixture()
	p.CreateErr = errors.New("out of memory")
	s, err := session.NewText(context.Background(), l, nil, session.TextConfig{})
	require.ErrorIs(t, err, session.ErrInstanceCreationFailed)
	assert.True(t, session.IsCreateFailed(err))
	require.NotNil(t, s)
	assert.Equal(t, session.StateDestroyed, s.State())
	assert.Equal(t, []string{"load", "create", "unload"}, j.Entries())

	_, err = s.Evaluate(context.Background(), "", "x", "")
	require.ErrorIs(t, err, session.ErrNotReady)
	require.NoError(t, s.Close())
	assert.Equal(t, -1, j.Index("destroy"))
}

func TestLoadFailure(t *testing.T) {
	l, _, j := newFixture()
	l.loadErr = errors.New("plugin missing")
	s, err := session.NewText(context.Background(), l, nil, session.TextConfig{})
	require.Error(t, err)
	assert.Equal(t, session.StateDestroyed, s.State())
	assert.Empty(t, j.Entries())
}

func TestRequiredBackendUnavailable(t *testing.T) {
	l, p, j := newFixture()
	src := backend.NewProvider(backend.Static{API: types.APID3D12})
	_, err := session.NewText(context.Background(), l, src, session.TextConfig{RequireBackend: true})
	require.ErrorIs(t, err, session.ErrParameterChainFailed)
	require.ErrorIs(t, err, backend.ErrDeviceUnavailable)
	assert.Equal(t, []string{"load", "unload"}, j.Entries())
	assert.Empty(t, p.Chains())
}

func TestBackendUnavailableFallsBackToCPU(t *testing.T) {
	l, p, _ := newFixture()
	src := backend.NewProvider(backend.Static{API: types.APIVulkan})
	s, err := session.NewText(context.Background(), l, src, session.TextConfig{})
	require.NoError(t, err)
	defer s.Close()

	chains := p.Chains()
	require.Len(t, chains, 1)
	assert.Equal(t, 1, chains[0].Len())
	assert.Equal(t, types.APINone, chains[0].API())
	assert.Equal(t, "none", s.Status().Backend)
}

func TestBackendBlockChained(t *testing.T) {
	l, p, _ := newFixture()
	src := backend.NewProvider(backend.Static{API: types.APIVulkan, Device: 7, Queue: 8})
	s, err := session.NewText(context.Background(), l, src, session.TextConfig{ModelDir: "/models", NumThreads: 4})
	require.NoError(t, err)
	defer s.Close()

	chain := p.Chains()[0]
	require.Equal(t, 2, chain.Len())
	common, ok := chain.Common()
	require.True(t, ok)
	assert.Equal(t, params.Common{
		ModelDir:     "/models",
		NumThreads:   4,
		VRAMBudgetMB: session.DefaultVRAMBudgetMB,
		ModelGUID:    session.DefaultModelGUID,
	}, common)
	assert.Equal(t, types.APIVulkan, chain.API())
}

func TestEvaluateStream(t *testing.T) {
	l, p, _ := newFixture()
	p.Respond = script(
		featuretest.Step{Text: "a", State: feature.StateDataPending},
		featuretest.Step{Text: "<JSON>{}", State: feature.StateDataPending},
		featuretest.Step{Text: "b", State: feature.StateDataPending},
		featuretest.Step{State: feature.StateDone},
	)
	s, err := session.NewText(context.Background(), l, nil, session.TextConfig{})
	require.NoError(t, err)
	defer s.Close()

	ch, err := s.EvaluateStream(context.Background(), session.Prompt{User: "x"})
	require.NoError(t, err)
	var texts []string
	var last session.Chunk
	for c := range ch {
		if c.Done {
			last = c
			continue
		}
		texts = append(texts, c.Text)
	}
	assert.Equal(t, []string{"a", "b"}, texts)
	assert.True(t, last.Done)
	assert.Equal(t, feature.StateDone, last.State)
	assert.NoError(t, last.Err)
}

func TestMarkerFilter(t *testing.T) {
	f := session.MarkerFilter{Marker: session.DefaultMarker}
	got, ok := f.Apply("plain")
	assert.True(t, ok)
	assert.Equal(t, "plain", got)
	_, ok = f.Apply(`x<JSON>{"a":1}`)
	assert.False(t, ok)

	got, ok = session.MarkerFilter{}.Apply("<JSON>")
	assert.True(t, ok, "empty marker keeps everything")
	assert.Equal(t, "<JSON>", got)
}

func TestEvaluateInlineCallbacks(t *testing.T) {
	for _, n := range []int{1, 63, 64, 200, 1000} {
		l, p, _ := newFixture()
		p.Inline = true
		steps := make([]featuretest.Step, 0, n+1)
		for i := 0; i < n; i++ {
			steps = append(steps, featuretest.Step{Text: "x", State: feature.StateDataPending})
		}
		p.Respond = script(append(steps, featuretest.Step{State: feature.StateDone})...)
		s, err := session.NewText(context.Background(), l, nil, session.TextConfig{})
		require.NoError(t, err)

		done := make(chan session.Result, 1)
		go func() {
			res, err := s.EvaluatePrompt(context.Background(), session.Prompt{User: "x"})
			assert.NoError(t, err)
			done <- res
		}()
		select {
		case res := <-done:
			assert.Len(t, res.Text, n, "frames=%d", n)
			assert.Equal(t, feature.StateDone, res.State)
		case <-time.After(2 * time.Second):
			t.Fatalf("frames=%d: evaluation did not finish", n)
		}
		require.NoError(t, s.Close())
	}
}

func TestEvaluateStreamInlineCallbacks(t *testing.T) {
	l, p, _ := newFixture()
	p.Inline = true
	steps := make([]featuretest.Step, 0, 201)
	for i := 0; i < 200; i++ {
		steps = append(steps, featuretest.Step{Text: "x", State: feature.StateDataPending})
	}
	p.Respond = script(append(steps, featuretest.Step{State: feature.StateDone})...)
	s, err := session.NewText(context.Background(), l, nil, session.TextConfig{})
	require.NoError(t, err)
	defer s.Close()

	ch, err := s.EvaluateStream(context.Background(), session.Prompt{User: "x"})
	require.NoError(t, err)
	n := 0
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				assert.Equal(t, 201, n)
				return
			}
			n++
		case <-timeout:
			t.Fatalf("stream stalled after %d chunks", n)
		}
	}
}

func TestEvaluateStreamIncomplete(t *testing.T) {
	l, p, _ := newFixture()
	p.Respond = script(
		featuretest.Step{Text: "a", State: feature.StateDataPending},
		featuretest.Step{State: feature.StateCancel},
	)
	s, err := session.NewText(context.Background(), l, nil, session.TextConfig{})
	require.NoError(t, err)
	defer s.Close()

	ch, err := s.EvaluateStream(context.Background(), session.Prompt{User: "x"})
	require.NoError(t, err)
	var last session.Chunk
	for c := range ch {
		if c.Text != "" {
			assert.NoError(t, c.Err)
		}
		last = c
	}
	require.True(t, last.Done)
	assert.Equal(t, feature.StateCancel, last.State)
	assert.ErrorIs(t, last.Err, session.ErrIncomplete)
}
