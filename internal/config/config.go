package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/stochsim/internal/model"
	"github.com/san-kum/stochsim/internal/sim"
)

const (
	DefaultTMax         = 10.0
	DefaultDt           = 0.01
	DefaultRealizations = 1
)

// Run holds the controls of one ensemble request.
type Run struct {
	TMax         float64 `yaml:"t_max" json:"t_max"`
	Dt           float64 `yaml:"dt,omitempty" json:"dt,omitempty"`
	Realizations int     `yaml:"realizations" json:"realizations"`
	Seed         int64   `yaml:"seed" json:"seed"`
	Workers      int     `yaml:"workers,omitempty" json:"workers,omitempty"`
	MaxSteps     int     `yaml:"max_steps,omitempty" json:"max_steps,omitempty"`
}

// Config is the on-disk form of a simulation: a model plus its run controls.
type Config struct {
	Model model.Model `yaml:"model" json:"model"`
	Run   Run         `yaml:"run" json:"run"`
}

func DefaultRun() Run {
	return Run{
		TMax:         DefaultTMax,
		Dt:           DefaultDt,
		Realizations: DefaultRealizations,
	}
}

// DefaultConfig is the food chain preset.
func DefaultConfig() *Config {
	return GetPreset("food_chain")
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document. Run controls missing from the document
// keep their defaults and the model kind may be given by engine alias.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{Run: DefaultRun()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	kind, err := model.ParseKind(string(cfg.Model.Kind))
	if err != nil {
		return nil, err
	}
	cfg.Model.Kind = kind
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Clone() *Config {
	return &Config{Model: *c.Model.Clone(), Run: c.Run}
}

// SimConfig converts the run controls for the engines.
func (c *Config) SimConfig() sim.Config {
	return sim.Config{
		TMax:     c.Run.TMax,
		Dt:       c.Run.Dt,
		Seed:     c.Run.Seed,
		MaxSteps: c.Run.MaxSteps,
	}
}
