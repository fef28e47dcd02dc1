// Package api serves simulations over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/san-kum/stochsim/internal/analysis"
	"github.com/san-kum/stochsim/internal/config"
	"github.com/san-kum/stochsim/internal/experiment"
	"github.com/san-kum/stochsim/internal/expr"
	"github.com/san-kum/stochsim/internal/metrics"
	"github.com/san-kum/stochsim/internal/model"
	"github.com/san-kum/stochsim/internal/sim"
	"github.com/san-kum/stochsim/internal/storage"
)

// Cache stores the exports of seeded runs.
type Cache interface {
	Get(ctx context.Context, key string) (*storage.ExportData, error)
	Set(ctx context.Context, key string, data *storage.ExportData) error
}

type Server struct {
	registry  *experiment.Registry
	collector *metrics.Collector
	cache     Cache
	logger    *slog.Logger
	workers   int
	timeout   time.Duration
}

type Option func(*Server)

func WithCache(c Cache) Option {
	return func(s *Server) { s.cache = c }
}

func WithCollector(c *metrics.Collector) Option {
	return func(s *Server) { s.collector = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithWorkers bounds the realizations run concurrently per request.
func WithWorkers(n int) Option {
	return func(s *Server) { s.workers = n }
}

// WithTimeout bounds the wall time of a single simulate request.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

func New(registry *experiment.Registry, opts ...Option) *Server {
	s := &Server{
		registry: registry,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.collector == nil {
		s.collector = metrics.NewCollector()
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Get("/metrics", s.collector.Handler().ServeHTTP)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/presets", s.listPresets)
		r.Get("/presets/{name}", s.getPreset)
		r.Post("/simulate", s.simulate)
	})
	return r
}

// SimulateRequest selects a model by preset name or inline definition.
// Zero run controls keep the preset's values; a zero seed is drawn from the
// clock and disables caching.
type SimulateRequest struct {
	Preset       string             `json:"preset,omitempty"`
	Model        *model.Model       `json:"model,omitempty"`
	Params       map[string]float64 `json:"params,omitempty"`
	TMax         float64            `json:"t_max,omitempty"`
	Dt           float64            `json:"dt,omitempty"`
	Realizations int                `json:"realizations,omitempty"`
	Seed         int64              `json:"seed,omitempty"`
	// MaxPoints caps the returned samples over all realizations and
	// variables.
	MaxPoints int `json:"max_points,omitempty"`
}

type SimulateResponse struct {
	*storage.ExportData
	Cached    bool    `json:"cached"`
	Stride    int     `json:"stride"`
	EventsAvg float64 `json:"events_avg"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listPresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) getPreset(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) simulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	cfg, status, err := s.resolve(req)
	if err != nil {
		writeError(w, status, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	var key string
	if req.Seed != 0 && s.cache != nil {
		key, err = storage.Key(cfg)
		if err == nil {
			if data, err := s.cache.Get(ctx, key); err == nil {
				s.logger.Debug("cache hit", "model", cfg.Model.Name, "key", key)
				writeJSON(w, http.StatusOK, respond(data, req.MaxPoints, true, 0))
				return
			} else if !errors.Is(err, storage.ErrCacheMiss) {
				s.logger.Warn("cache read failed", "error", err)
			}
		}
	}

	exp := experiment.New(cfg,
		experiment.WithLogger(s.logger),
		experiment.WithCollector(s.collector),
	)
	rep, err := exp.Run(ctx)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	if err := rep.Check(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	data := rep.Export()
	if key != "" {
		if err := s.cache.Set(ctx, key, data); err != nil {
			s.logger.Warn("cache write failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, respond(data, req.MaxPoints, false, rep.Elapsed))
}

// resolve builds the experiment configuration of a request.
func (s *Server) resolve(req SimulateRequest) (experiment.Config, int, error) {
	var base *config.Config
	switch {
	case req.Model != nil && req.Preset != "":
		return experiment.Config{}, http.StatusBadRequest, errors.New("set either preset or model, not both")
	case req.Model != nil:
		kind, err := model.ParseKind(string(req.Model.Kind))
		if err != nil {
			return experiment.Config{}, http.StatusUnprocessableEntity, err
		}
		base = &config.Config{Model: *req.Model.Clone(), Run: config.DefaultRun()}
		base.Model.Kind = kind
	case req.Preset != "":
		var err error
		if base, err = s.registry.Get(req.Preset); err != nil {
			return experiment.Config{}, http.StatusNotFound, err
		}
	default:
		return experiment.Config{}, http.StatusBadRequest, errors.New("preset or model is required")
	}

	for name, v := range req.Params {
		if err := base.Model.SetParam(name, v); err != nil {
			return experiment.Config{}, http.StatusUnprocessableEntity, err
		}
	}

	cfg := experiment.FromConfig(base)
	if req.TMax != 0 {
		cfg.TMax = req.TMax
	}
	if req.Dt != 0 {
		cfg.Dt = req.Dt
	}
	if req.Realizations != 0 {
		cfg.Realizations = req.Realizations
	}
	cfg.Seed = req.Seed
	if s.workers > 0 {
		cfg.Workers = s.workers
	}
	return cfg, http.StatusOK, nil
}

func respond(data *storage.ExportData, maxPoints int, cached bool, elapsed time.Duration) SimulateResponse {
	results := data.Results()
	budget := analysis.DisplayBudget
	if maxPoints > 0 {
		budget = maxPoints
	}
	stride := analysis.DisplayStride(results, len(data.VarNames), budget)

	out := *data
	if stride > 1 {
		thinned := storage.NewExport(storage.RunMetadata{}, downsampleAll(results, stride))
		out.Realizations = thinned.Realizations
	}
	events := 0
	for _, rz := range data.Realizations {
		events += rz.Events
	}
	avg := 0.0
	if n := len(data.Realizations); n > 0 {
		avg = float64(events) / float64(n)
	}
	return SimulateResponse{
		ExportData: &out,
		Cached:     cached,
		Stride:     stride,
		EventsAvg:  avg,
		ElapsedMS:  float64(elapsed.Microseconds()) / 1000,
	}
}

func downsampleAll(results []*sim.Result, stride int) []*sim.Result {
	out := make([]*sim.Result, len(results))
	for i, r := range results {
		out[i] = analysis.Downsample(r, stride)
	}
	return out
}

// statusFor maps definition and run-control problems to 422. Anything
// else happened while running.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidModel),
		errors.Is(err, expr.ErrSyntax),
		errors.Is(err, sim.ErrInvalidConfig):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v before the status line goes out, so an unencodable
// value becomes a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		status = http.StatusInternalServerError
		buf.Reset()
		json.NewEncoder(&buf).Encode(errorResponse{Error: "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
