// Package automation runs scripted batches of ensemble requests and
// one-parameter sweeps.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/stochsim/internal/config"
	"github.com/san-kum/stochsim/internal/experiment"
	"github.com/san-kum/stochsim/internal/storage"
)

// Scenario defines a scripted simulation sequence
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one ensemble request. It names a registered model or a
// model file; zero controls keep the model's own.
type ScenarioStep struct {
	Model        string             `yaml:"model"`
	File         string             `yaml:"file"`
	TMax         float64            `yaml:"t_max"`
	Dt           float64            `yaml:"dt"`
	Realizations int                `yaml:"realizations"`
	Seed         int64              `yaml:"seed"`
	Params       map[string]float64 `yaml:"params"`
	Save         bool               `yaml:"save"`
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("%s: scenario has no steps", path)
	}
	return &scenario, nil
}

// Runner executes scenarios and sweeps.
type Runner struct {
	Registry *experiment.Registry
	// Store receives the runs of steps marked save; nil disables saving.
	Store  *storage.Store
	Logger *slog.Logger
	Opts   []experiment.Option
}

// StepResult is the outcome of one scenario step.
type StepResult struct {
	Report *experiment.Report
	RunID  string
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Resolve builds the experiment configuration of a step.
func (r *Runner) Resolve(step ScenarioStep) (experiment.Config, error) {
	var base *config.Config
	var err error
	switch {
	case step.File != "":
		base, err = config.Load(step.File)
	case step.Model != "":
		base, err = r.Registry.Get(step.Model)
	default:
		err = fmt.Errorf("step needs a model or a file")
	}
	if err != nil {
		return experiment.Config{}, err
	}

	for k, v := range step.Params {
		if err := base.Model.SetParam(k, v); err != nil {
			return experiment.Config{}, err
		}
	}

	cfg := experiment.FromConfig(base)
	if step.TMax > 0 {
		cfg.TMax = step.TMax
	}
	if step.Dt > 0 {
		cfg.Dt = step.Dt
	}
	if step.Realizations > 0 {
		cfg.Realizations = step.Realizations
	}
	if step.Seed != 0 {
		cfg.Seed = step.Seed
	}
	return cfg, nil
}

// RunScenario executes all steps in order and stops at the first failure,
// returning the steps completed so far.
func (r *Runner) RunScenario(ctx context.Context, scenario *Scenario) ([]StepResult, error) {
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := r.Resolve(step)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		r.logger().Info("scenario step", "scenario", scenario.Name, "step", i+1, "of", len(scenario.Steps), "model", cfg.Model.Name)

		rep, err := experiment.New(cfg, r.Opts...).Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		res := StepResult{Report: rep}
		if step.Save && r.Store != nil {
			if res.RunID, err = r.Store.Save(rep.Metadata(), rep.Results); err != nil {
				return results, fmt.Errorf("step %d save: %w", i+1, err)
			}
		}
		results = append(results, res)
	}

	return results, nil
}

// ParameterSweep runs one ensemble per value of a single parameter.
type ParameterSweep struct {
	Base   experiment.Config
	Param  string
	Values []float64
}

// SweepResult holds the metrics of one sweep value.
type SweepResult struct {
	ParamValue float64
	Metrics    map[string]float64
	Warning    string
}

// RunSweep executes a parameter sweep. A non-zero base seed is reused for
// every value.
func (r *Runner) RunSweep(ctx context.Context, sweep *ParameterSweep) ([]SweepResult, error) {
	if len(sweep.Values) == 0 {
		return nil, fmt.Errorf("sweep over %s has no values", sweep.Param)
	}
	results := make([]SweepResult, 0, len(sweep.Values))

	for i, v := range sweep.Values {
		cfg := sweep.Base
		cfg.Model = *sweep.Base.Model.Clone()
		if err := cfg.Model.SetParam(sweep.Param, v); err != nil {
			return nil, err
		}

		rep, err := experiment.New(cfg, r.Opts...).Run(ctx)
		if err != nil {
			return nil, fmt.Errorf("sweep %s=%g: %w", sweep.Param, v, err)
		}
		results = append(results, SweepResult{ParamValue: v, Metrics: rep.Metrics, Warning: rep.Warning})

		r.logger().Debug("sweep", "step", i+1, "of", len(sweep.Values), "param", sweep.Param, "value", v)
	}

	return results, nil
}
