package experiment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/san-kum/stochsim/internal/config"
	"github.com/san-kum/stochsim/internal/metrics"
	"github.com/san-kum/stochsim/internal/model"
	"github.com/san-kum/stochsim/internal/sim"
	"github.com/san-kum/stochsim/internal/storage"
)

type Config struct {
	Model        model.Model
	TMax         float64
	Dt           float64
	Realizations int
	// Seed of realization 0; realization i uses Seed+i. Zero picks a seed
	// from the clock, reported back in Report.Seed.
	Seed     int64
	Workers  int
	MaxSteps int
}

// FromConfig lifts a loaded model file into an experiment configuration.
func FromConfig(c *config.Config) Config {
	return Config{
		Model:        *c.Model.Clone(),
		TMax:         c.Run.TMax,
		Dt:           c.Run.Dt,
		Realizations: c.Run.Realizations,
		Seed:         c.Run.Seed,
		Workers:      c.Run.Workers,
		MaxSteps:     c.Run.MaxSteps,
	}
}

type Experiment struct {
	cfg       Config
	logger    *slog.Logger
	collector *metrics.Collector
	progress  sim.ProgressFunc
}

type Option func(*Experiment)

func WithLogger(l *slog.Logger) Option {
	return func(e *Experiment) { e.logger = l }
}

// WithCollector exports every run to Prometheus.
func WithCollector(c *metrics.Collector) Option {
	return func(e *Experiment) { e.collector = c }
}

func WithProgress(fn sim.ProgressFunc) Option {
	return func(e *Experiment) { e.progress = fn }
}

func New(cfg Config, opts ...Option) *Experiment {
	e := &Experiment{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Report is the outcome of one ensemble request.
type Report struct {
	Model        string
	Kind         model.Kind
	VarNames     []string
	Params       sim.Params
	TMax         float64
	Dt           float64
	Seed         int64
	Results      []*sim.Result
	Warning      string
	Metrics      map[string]float64
	Elapsed      time.Duration
	Realizations int
}

// AvgEvents is the mean number of applied transitions per realization.
func (r *Report) AvgEvents() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	total := 0
	for _, res := range r.Results {
		total += res.Events
	}
	return float64(total) / float64(len(r.Results))
}

// Check returns the first realization, in index order, whose trajectory left
// the finite range.
func (r *Report) Check() error {
	for i, res := range r.Results {
		if err := res.Check(); err != nil {
			return fmt.Errorf("realization %d: %w", i, err)
		}
	}
	return nil
}

// Metadata describes the report for storage.
func (r *Report) Metadata() storage.RunMetadata {
	return storage.RunMetadata{
		Model:    r.Model,
		Kind:     string(r.Kind),
		Seed:     r.Seed,
		TMax:     r.TMax,
		Dt:       r.Dt,
		VarNames: r.VarNames,
		Warning:  r.Warning,
		Metrics:  r.Metrics,
	}
}

// Export is the JSON form of the report.
func (r *Report) Export() *storage.ExportData {
	return storage.NewExport(r.Metadata(), r.Results)
}

// Run validates and compiles the model once, then runs every realization.
// Definition and compile errors are returned before any realization starts.
func (e *Experiment) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	rep, err := e.run(ctx)
	elapsed := time.Since(start)

	if e.collector != nil {
		stats := metrics.RunStats{Kind: string(e.cfg.Model.Kind), Elapsed: elapsed, Err: err}
		if rep != nil {
			stats.Realizations = len(rep.Results)
			stats.Warned = rep.Warning != ""
			for _, r := range rep.Results {
				stats.Events += r.Events
			}
		}
		e.collector.Observe(stats)
	}

	if err != nil {
		e.logger.Error("ensemble failed", "model", e.cfg.Model.Name, "error", err)
		return nil, err
	}
	rep.Elapsed = elapsed

	e.logger.Info("ensemble finished",
		"model", rep.Model,
		"kind", rep.Kind,
		"realizations", len(rep.Results),
		"events_avg", rep.AvgEvents(),
		"elapsed", elapsed,
	)
	if rep.Warning != "" {
		e.logger.Warn("numerical warning", "model", rep.Model, "warning", rep.Warning)
	}
	return rep, nil
}

func (e *Experiment) run(ctx context.Context) (*Report, error) {
	compiled, err := e.cfg.Model.Compile()
	if err != nil {
		return nil, err
	}

	simCfg := sim.Config{
		TMax:     e.cfg.TMax,
		Dt:       e.cfg.Dt,
		Seed:     e.cfg.Seed,
		MaxSteps: e.cfg.MaxSteps,
	}
	if err := simCfg.Validate(compiled.Kind != model.KindSSA); err != nil {
		return nil, err
	}
	if simCfg.Seed == 0 {
		simCfg.Seed = time.Now().UnixNano()
	}

	opts := []sim.EnsembleOption{sim.WithWorkers(e.cfg.Workers)}
	if e.progress != nil {
		opts = append(opts, sim.WithProgress(e.progress))
	}
	ens := sim.NewEnsemble(compiled.Engine, e.cfg.Realizations, simCfg.Seed, opts...)

	e.logger.Debug("ensemble starting",
		"model", e.cfg.Model.Name,
		"engine", compiled.Engine.Name(),
		"realizations", ens.Size(),
		"seed", simCfg.Seed,
	)

	out, err := ens.Run(ctx, compiled.X0, simCfg)
	if err != nil {
		return nil, err
	}

	ms := metrics.Standard(compiled.VarNames, simCfg.TMax, compiled.Kind.Discrete())
	return &Report{
		Model:        e.cfg.Model.Name,
		Kind:         compiled.Kind,
		VarNames:     compiled.VarNames,
		Params:       compiled.Params,
		TMax:         simCfg.TMax,
		Dt:           simCfg.Dt,
		Seed:         simCfg.Seed,
		Results:      out.Results,
		Warning:      out.Warning,
		Metrics:      metrics.Evaluate(ms, out.Results),
		Realizations: len(out.Results),
	}, nil
}
