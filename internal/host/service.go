// Package host adapts a registry to the HTTP and CLI surfaces.
package host

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"inferhost/internal/core"
	"inferhost/internal/models"
	"inferhost/internal/registry"
	"inferhost/internal/session"
	"inferhost/pkg/types"
)

// TextFactory returns a registry factory building the KindGPT session from cfg
// and the render system parameters in src (nil for CPU only).
func TextFactory(cfg session.TextConfig, src session.ParameterSource) registry.Factory {
	return func(ctx context.Context, r *registry.Registry) (session.Session, error) {
		s, err := session.NewText(ctx, r, src, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Service serves host queries and evaluations from a registry.
type Service struct {
	reg       *registry.Registry
	modelsDir string
	log       zerolog.Logger
	started   time.Time
	now       func() time.Time
}

// New returns a Service over reg. modelsDir is scanned for /models.
func New(reg *registry.Registry, modelsDir string, logger *zerolog.Logger) *Service {
	s := &Service{reg: reg, modelsDir: modelsDir, log: zerolog.Nop(), now: time.Now}
	if logger != nil {
		s.log = *logger
	}
	s.started = s.now()
	return s
}

func (s *Service) Features() []types.FeatureStatus { return s.reg.Features() }

func (s *Service) Adapters() types.AdaptersResponse {
	rt := s.reg.Runtime()
	if rt == nil {
		return types.AdaptersResponse{Adapters: []types.AdapterInfo{}, Selected: core.NoAdapter}
	}
	return types.AdaptersResponse{Adapters: rt.Adapters(), Selected: rt.SelectedAdapter()}
}

func (s *Service) ListModels() []types.Model {
	if s.modelsDir == "" {
		return nil
	}
	ms, err := models.Scan(s.modelsDir)
	if err != nil {
		s.log.Warn().Str("event", "models_scan_failed").Str("dir", s.modelsDir).Err(err).Msg("host")
		return nil
	}
	return ms
}

func (s *Service) Status() types.StatusResponse {
	st := s.reg.Status()
	now := s.now()
	st.UptimeSeconds = int64(now.Sub(s.started).Seconds())
	st.ServerTimeUnix = now.Unix()
	return st
}

// Ready reports whether the core is loaded.
func (s *Service) Ready() bool { return s.reg.IsCoreLoaded() }

// Evaluate runs one prompt on the text session, creating it on first use.
func (s *Service) Evaluate(ctx context.Context, req types.EvaluateRequest) (types.EvaluateResponse, error) {
	ts, err := s.reg.TextSession(ctx)
	if err != nil {
		return types.EvaluateResponse{}, err
	}
	res, err := ts.EvaluatePrompt(ctx, promptOf(req))
	if err != nil {
		return types.EvaluateResponse{}, err
	}
	return types.EvaluateResponse{
		Text:       res.Text,
		State:      res.State.String(),
		Feature:    ts.Feature().String(),
		DurationMS: res.Duration.Milliseconds(),
	}, nil
}

// EvaluateStream runs one prompt and returns its filtered fragments. The
// channel is closed after the Done chunk.
func (s *Service) EvaluateStream(ctx context.Context, req types.EvaluateRequest) (<-chan types.Chunk, error) {
	ts, err := s.reg.TextSession(ctx)
	if err != nil {
		return nil, err
	}
	in, err := ts.EvaluateStream(ctx, promptOf(req))
	if err != nil {
		return nil, err
	}
	out := make(chan types.Chunk)
	go func() {
		defer close(out)
		for c := range in {
			tc := types.Chunk{Text: c.Text, Done: c.Done}
			if c.Done {
				tc.State = c.State.String()
			}
			if c.Err != nil {
				tc.Error = c.Err.Error()
			}
			select {
			case out <- tc:
			case <-ctx.Done():
				// in stops sending once ctx is done and is then closed.
			}
		}
	}()
	return out, nil
}

func promptOf(req types.EvaluateRequest) session.Prompt {
	return session.Prompt{System: req.System, User: req.User, Assistant: req.Assistant}
}
