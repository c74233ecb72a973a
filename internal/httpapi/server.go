// Package httpapi exposes the host over HTTP: discovery, status and
// text evaluation (JSON or NDJSON streaming).
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"inferhost/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Features() []types.FeatureStatus
	Adapters() types.AdaptersResponse
	ListModels() []types.Model
	Status() types.StatusResponse
	Evaluate(ctx context.Context, req types.EvaluateRequest) (types.EvaluateResponse, error)
	EvaluateStream(ctx context.Context, req types.EvaluateRequest) (<-chan types.Chunk, error)
	Ready() bool
}

type handlers struct{ svc Service }

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsOpts != nil {
		r.Use(cors.Handler(*corsOpts))
	}

	h := &handlers{svc: svc}
	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5, "application/json"))
		r.Get("/features", h.features)
		r.Get("/adapters", h.adapters)
		r.Get("/models", h.models)
		r.Get("/status", h.status)
	})
	r.Post("/v1/evaluate", h.evaluate)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("core not loaded"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

// features godoc
// @Summary      List discovered plugins
// @Description  Plugins reported by the core with their compatibility against the selected adapter.
// @Tags         discovery
// @Produce      json
// @Success      200  {object}  types.FeaturesResponse
// @Router       /features [get]
func (h *handlers) features(w http.ResponseWriter, r *http.Request) {
	fs := h.svc.Features()
	if fs == nil {
		fs = []types.FeatureStatus{}
	}
	writeJSON(w, types.FeaturesResponse{Features: fs})
}

// adapters godoc
// @Summary      List compute adapters
// @Tags         discovery
// @Produce      json
// @Success      200  {object}  types.AdaptersResponse
// @Router       /adapters [get]
func (h *handlers) adapters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.Adapters())
}

// models godoc
// @Summary      List models
// @Description  Models found under <models_dir>/<plugin>/<{GUID}>/.
// @Tags         discovery
// @Produce      json
// @Success      200  {object}  types.ModelsResponse
// @Router       /models [get]
func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	ms := h.svc.ListModels()
	if ms == nil {
		ms = []types.Model{}
	}
	writeJSON(w, types.ModelsResponse{Models: ms})
}

// status godoc
// @Summary      Host status
// @Tags         status
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.Status())
}

// evaluate godoc
// @Summary      Evaluate a prompt
// @Description  Runs one prompt on the text generation session. With stream=true the
// @Description  filtered fragments are returned as NDJSON lines ending with a done line.
// @Tags         evaluate
// @Accept       json
// @Produce      json
// @Produce      application/x-ndjson
// @Param        request  body      types.EvaluateRequest  true  "Prompt"
// @Success      200      {object}  types.EvaluateResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      415      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /v1/evaluate [post]
func (h *handlers) evaluate(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.User) == "" {
		writeJSONError(w, http.StatusBadRequest, "user is required")
		return
	}

	lvl := requestLogLevel(r)
	lg := requestLogger(r)
	start := time.Now()
	if lvl >= LevelInfo {
		lg.Info().Str("event", "evaluate_start").Bool("stream", req.Stream).Msg("evaluate")
	}

	ctx, cancel := joinContexts(r.Context(), serverBaseCtx)
	defer cancel()
	if evaluateTimeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, evaluateTimeout)
		defer tcancel()
	}

	var err error
	if req.Stream {
		err = h.stream(ctx, w, req, lvl, lg)
	} else {
		var resp types.EvaluateResponse
		if resp, err = h.svc.Evaluate(ctx, req); err == nil {
			writeJSON(w, resp)
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) && (r.Context().Err() != nil || serverBaseCtx.Err() != nil) {
			return
		}
		code := statusFor(err)
		if code == http.StatusTooManyRequests {
			IncrementBackpressure("session_queue")
		}
		writeJSONError(w, code, err.Error())
		if lvl >= LevelError {
			lg.Warn().Str("event", "evaluate_end").Int("status", code).Dur("dur", time.Since(start)).Err(err).Msg("evaluate")
		}
		return
	}
	if lvl >= LevelInfo {
		lg.Info().Str("event", "evaluate_end").Int("status", http.StatusOK).Dur("dur", time.Since(start)).Msg("evaluate")
	}
}

// stream writes NDJSON chunks. Errors before the first line are returned so
// the caller can map them to a status code; later errors end the stream with
// an error line.
func (h *handlers) stream(ctx context.Context, w http.ResponseWriter, req types.EvaluateRequest, lvl LogLevel, lg zerolog.Logger) error {
	ch, err := h.svc.EvaluateStream(ctx, req)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flush := func() {}
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	out := io.Writer(w)
	if lvl >= LevelDebug {
		out = io.MultiWriter(w, &frameLogWriter{log: lg})
	}
	enc := json.NewEncoder(out)
	broken := false
	for c := range ch {
		if broken {
			continue
		}
		if err := enc.Encode(c); err != nil {
			lg.Warn().Str("event", "evaluate_write_failed").Err(err).Msg("evaluate")
			broken = true
			continue
		}
		streamedLinesTotal.Inc()
		flush()
	}
	return nil
}
