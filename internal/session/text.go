package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"inferhost/internal/feature"
	"inferhost/internal/logging"
	"inferhost/internal/params"
	"inferhost/pkg/types"
)

// TextSession owns one text generation instance. Evaluations are serialized
// through a single in-flight slot.
type TextSession struct {
	cfg    TextConfig
	kind   string
	loader Loader
	log    zerolog.Logger

	genCh   chan struct{} // size 1: single in-flight evaluation
	queueCh chan struct{} // buffered: queue slots, including the in-flight one

	mu       sync.Mutex
	state    State
	iface    feature.Interface
	tg       feature.TextGeneration
	inst     feature.Instance
	api      types.GraphicsAPI
	evals    uint64
	lastUsed time.Time
}

// NewText loads cfg.Feature through loader, chains the common block and the
// backend block from src (which may be nil), and creates the instance.
//
// On a chain or creation failure the interface is unloaded again and the
// returned session is inert: it is in StateDestroyed and rejects evaluations
// with ErrNotReady. The error is recoverable.
func NewText(ctx context.Context, loader Loader, src ParameterSource, cfg TextConfig) (*TextSession, error) {
	cfg = cfg.withDefaults()
	s := &TextSession{
		cfg:     cfg,
		kind:    KindGPT,
		loader:  loader,
		genCh:   make(chan struct{}, 1),
		queueCh: make(chan struct{}, cfg.QueueDepth),
		state:   StateCreating,
	}
	if cfg.Logger != nil {
		s.log = cfg.Logger.With().Str("session", s.kind).Logger()
	} else {
		s.log = logging.FromCtx(ctx).With().Str("session", s.kind).Logger()
	}

	iface, err := loader.LoadFeature(cfg.Feature, cfg.PluginPath)
	if err != nil {
		s.setState(StateDestroyed)
		s.log.Error().Str("event", "session_load_failed").Str("feature", cfg.Feature.String()).Err(err).Msg("session")
		return s, fmt.Errorf("session %s: load feature %s: %w", s.kind, cfg.Feature, err)
	}
	tg, err := feature.AsTextGeneration(iface)
	if err != nil {
		return s, s.abort(iface, fmt.Errorf("%w: %w", ErrInstanceCreationFailed, err))
	}

	chain, err := s.buildChain(src)
	if err != nil {
		return s, s.abort(iface, err)
	}

	inst, err := tg.CreateInstance(chain)
	if err != nil {
		return s, s.abort(iface, fmt.Errorf("%w: %w", ErrInstanceCreationFailed, err))
	}
	if inst == nil {
		return s, s.abort(iface, fmt.Errorf("%w: plugin returned no instance", ErrInstanceCreationFailed))
	}

	s.mu.Lock()
	s.iface, s.tg, s.inst, s.api = iface, tg, inst, chain.API()
	s.state = StateReady
	s.mu.Unlock()
	s.log.Info().Str("event", "session_created").Str("feature", cfg.Feature.String()).
		Str("backend", chain.API().String()).Int("threads", cfg.NumThreads).Msg("session")
	return s, nil
}

func (s *TextSession) buildChain(src ParameterSource) (*params.Chain, error) {
	chain := &params.Chain{}
	common := params.Common{
		ModelDir:     s.cfg.ModelDir,
		NumThreads:   s.cfg.NumThreads,
		VRAMBudgetMB: s.cfg.VRAMBudgetMB,
		ModelGUID:    s.cfg.ModelGUID,
	}
	if err := chain.Add(common); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParameterChainFailed, err)
	}
	if src == nil {
		return chain, nil
	}
	blk, err := src.Parameters()
	if err != nil {
		if s.cfg.RequireBackend {
			return nil, fmt.Errorf("%w: %w", ErrParameterChainFailed, err)
		}
		s.log.Warn().Str("event", "session_backend_fallback").Err(err).Msg("falling back to CPU")
		return chain, nil
	}
	if blk == nil {
		return chain, nil
	}
	if err := chain.Add(blk); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParameterChainFailed, err)
	}
	return chain, nil
}

// abort unloads iface after a failed construction and leaves s inert.
func (s *TextSession) abort(iface feature.Interface, cause error) error {
	s.setState(StateDestroying)
	if uerr := s.loader.UnloadFeature(s.cfg.Feature, iface); uerr != nil {
		s.log.Error().Str("event", "session_unload_failed").Err(uerr).Msg("session")
	}
	s.setState(StateDestroyed)
	s.log.Error().Str("event", "session_create_failed").Str("feature", s.cfg.Feature.String()).Err(cause).Msg("session")
	return fmt.Errorf("session %s: %w", s.kind, cause)
}

func (s *TextSession) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Kind returns KindGPT.
func (s *TextSession) Kind() string { return s.kind }

// State returns the current lifecycle state.
func (s *TextSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Feature returns the feature id the session was built from.
func (s *TextSession) Feature() types.FeatureID { return s.cfg.Feature }

// Status snapshots the session for /status.
func (s *TextSession) Status() types.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := types.SessionStatus{
		Kind:        s.kind,
		State:       s.state.String(),
		Feature:     s.cfg.Feature.String(),
		Backend:     s.api.String(),
		Evaluations: s.evals,
		Inflight:    len(s.genCh),
		QueueLen:    len(s.queueCh) - len(s.genCh),
	}
	if st.QueueLen < 0 {
		st.QueueLen = 0
	}
	if !s.lastUsed.IsZero() {
		st.LastUsed = s.lastUsed.Unix()
	}
	return st
}

type frame struct {
	text  string
	state feature.State
}

// frameQueue is an unbounded frame buffer. push never blocks, so a plugin may
// call back on the submitting goroutine before EvaluateAsync returns.
type frameQueue struct {
	mu    sync.Mutex
	buf   []frame
	ready chan struct{} // size 1: set while buf may be non-empty
}

func newFrameQueue(capacity int) *frameQueue {
	return &frameQueue{buf: make([]frame, 0, capacity), ready: make(chan struct{}, 1)}
}

func (q *frameQueue) push(f frame) {
	q.mu.Lock()
	q.buf = append(q.buf, f)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// next blocks until a frame is available.
func (q *frameQueue) next() frame {
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			f := q.buf[0]
			q.buf[0] = frame{}
			q.buf = q.buf[1:]
			q.mu.Unlock()
			return f
		}
		q.mu.Unlock()
		<-q.ready
	}
}

// evaluation is a submitted request whose frames are still to be drained.
type evaluation struct {
	frames  *frameQueue
	release func()
	start   time.Time
}

// begin admits the caller, submits the request and returns the frame source.
// The caller must drain it to the terminal frame.
func (s *TextSession) begin(ctx context.Context, p Prompt) (*evaluation, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.state != StateReady {
		st := s.state
		s.mu.Unlock()
		release()
		return nil, fmt.Errorf("%w: %s", ErrNotReady, st)
	}
	s.state = StateEvaluating
	inst := s.inst
	s.mu.Unlock()

	ev := &evaluation{frames: newFrameQueue(s.cfg.FrameBuffer), release: release, start: time.Now()}
	var finished atomic.Bool
	ec := &feature.ExecutionContext{
		Inputs: p.slots(),
		Runtime: feature.RuntimeParameters{
			Seed:            DefaultSeed,
			TokensToPredict: s.cfg.TokensToPredict,
		},
		Callback: func(outputs feature.Slots, state feature.State) feature.State {
			// Frames after the terminal one have no reader.
			if finished.Load() {
				return feature.StateCancel
			}
			text, _ := outputs.Find(feature.SlotResponse)
			if state.Terminal() {
				finished.Store(true)
			}
			ev.frames.push(frame{text: text, state: state})
			return state
		},
	}
	if err := inst.EvaluateAsync(ec); err != nil {
		s.finish(false)
		release()
		s.log.Error().Str("event", "evaluate_submit_failed").Err(err).Msg("session")
		return nil, fmt.Errorf("session %s: submit: %w", s.kind, err)
	}
	return ev, nil
}

// drain reads frames until the terminal one, passing kept fragments to emit.
func (s *TextSession) drain(ev *evaluation, emit func(string)) Result {
	defer ev.release()
	var sb strings.Builder
	res := Result{}
	for {
		f := ev.frames.next()
		if f.text != "" {
			if kept, ok := s.cfg.Filter.Apply(f.text); ok {
				sb.WriteString(kept)
				if emit != nil && kept != "" {
					emit(kept)
				}
			} else {
				filteredFragmentsTotal.Inc()
			}
		}
		if f.state.Terminal() {
			res.State = f.state
			break
		}
	}
	res.Text = sb.String()
	res.Duration = time.Since(ev.start)
	s.finish(true)

	feat := s.cfg.Feature.String()
	evaluationsTotal.WithLabelValues(feat, res.State.String()).Inc()
	evaluateDuration.WithLabelValues(feat).Observe(res.Duration.Seconds())
	s.log.Debug().Str("event", "evaluate_done").Str("state", res.State.String()).
		Dur("duration", res.Duration).Int("chars", len(res.Text)).Msg("session")
	return res
}

func (s *TextSession) finish(completed bool) {
	s.mu.Lock()
	if s.state == StateEvaluating {
		s.state = StateReady
	}
	if completed {
		s.evals++
		s.lastUsed = time.Now()
	}
	s.mu.Unlock()
}

// Evaluate runs one request to completion and returns the filtered response.
// ctx bounds admission only; once submitted the request always completes.
func (s *TextSession) Evaluate(ctx context.Context, system, user, assistant string) (string, error) {
	res, err := s.EvaluatePrompt(ctx, Prompt{System: system, User: user, Assistant: assistant})
	return res.Text, err
}

// EvaluatePrompt is Evaluate returning the terminal state and duration too.
func (s *TextSession) EvaluatePrompt(ctx context.Context, p Prompt) (Result, error) {
	ev, err := s.begin(ctx, p)
	if err != nil {
		return Result{}, err
	}
	return s.drain(ev, nil), nil
}

// EvaluateStream submits p and returns filtered fragments as they arrive. The
// channel ends with a Done chunk and is then closed. The Done chunk carries
// ErrIncomplete when the plugin ended in any state but done. If ctx ends
// early the remaining chunks are discarded but the request still runs to
// completion.
func (s *TextSession) EvaluateStream(ctx context.Context, p Prompt) (<-chan Chunk, error) {
	ev, err := s.begin(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make(chan Chunk, s.cfg.FrameBuffer)
	go func() {
		defer close(out)
		gone := false
		send := func(c Chunk) {
			if gone {
				return
			}
			select {
			case out <- c:
			case <-ctx.Done():
				gone = true
			}
		}
		res := s.drain(ev, func(text string) { send(Chunk{Text: text, State: feature.StateDataPending}) })
		last := Chunk{State: res.State, Done: true}
		if res.State != feature.StateDone {
			last.Err = fmt.Errorf("%w: %s", ErrIncomplete, res.State)
		}
		send(last)
	}()
	return out, nil
}

// Close waits for an in-flight evaluation, destroys the instance and then
// unloads the interface. It is safe to call more than once.
func (s *TextSession) Close() error {
	s.genCh <- struct{}{}
	defer func() { <-s.genCh }()

	s.mu.Lock()
	if s.state == StateDestroyed || s.state == StateDestroying {
		s.mu.Unlock()
		return nil
	}
	s.state = StateDestroying
	tg, inst, iface := s.tg, s.inst, s.iface
	s.mu.Unlock()

	var errs []error
	if tg != nil && inst != nil {
		if err := tg.DestroyInstance(inst); err != nil {
			errs = append(errs, fmt.Errorf("destroy instance: %w", err))
		}
	}
	if iface != nil {
		if err := s.loader.UnloadFeature(s.cfg.Feature, iface); err != nil {
			errs = append(errs, fmt.Errorf("unload feature: %w", err))
		}
	}

	s.mu.Lock()
	s.state = StateDestroyed
	s.tg, s.inst, s.iface = nil, nil, nil
	s.mu.Unlock()
	err := errors.Join(errs...)
	s.log.Info().Str("event", "session_closed").Err(err).Msg("session")
	return err
}
