package config

import (
	"sort"

	"github.com/san-kum/stochsim/internal/expr"
	"github.com/san-kum/stochsim/internal/model"
)

var Presets = map[string]*Config{
	"food_chain": {
		Model: model.Model{
			Name:        "food_chain",
			Kind:        model.KindSSA,
			Description: "plants, herbivores and carnivores with logistic plant growth",
			Variables: []model.Variable{
				{Name: "Plants", Init: 500},
				{Name: "Herbivores", Init: 500},
				{Name: "Carnivores", Init: 100},
			},
			Parameters: []model.Parameter{
				{Name: "p_growth", Value: 100},
				{Name: "K", Value: 1000},
				{Name: "p_decay", Value: 0.1},
				{Name: "h_eat", Value: 0.06},
				{Name: "h_death", Value: 0.2},
				{Name: "c_eat", Value: 0.01},
				{Name: "c_death", Value: 0.8},
			},
			Transitions: []model.Transition{
				{Rate: "p_growth * (1 - Plants/K)", Change: []float64{1, 0, 0}},
				{Rate: "p_decay * Plants", Change: []float64{-1, 0, 0}},
				{Rate: "h_eat * Plants * Herbivores", Change: []float64{-1, 1, 0}},
				{Rate: "h_death * Herbivores", Change: []float64{0, -1, 0}},
				{Rate: "c_eat * Herbivores * Carnivores", Change: []float64{0, -1, 1}},
				{Rate: "c_death * Carnivores", Change: []float64{0, 0, -1}},
			},
		},
		Run: Run{TMax: 5, Realizations: 1},
	},
	"birth_death": {
		Model: model.Model{
			Name:        "birth_death",
			Kind:        model.KindSSA,
			Description: "linear birth and death of a single population",
			Variables:   []model.Variable{{Name: "N", Init: 100}},
			Parameters: []model.Parameter{
				{Name: "lambda", Value: 1.0},
				{Name: "mu", Value: 1.1},
			},
			Transitions: []model.Transition{
				{Rate: "lambda * N", Change: []float64{1}},
				{Rate: "mu * N", Change: []float64{-1}},
			},
		},
		Run: Run{TMax: 20, Realizations: 20},
	},
	"seasonal": {
		Model: model.Model{
			Name:        "seasonal",
			Kind:        model.KindCTMP,
			Description: "predator and prey with a seasonally forced prey birth rate",
			Variables: []model.Variable{
				{Name: "Prey", Init: 300},
				{Name: "Pred", Init: 100},
			},
			Parameters: []model.Parameter{
				{Name: "A", Value: 2},
				{Name: "w", Value: 6.28},
				{Name: "birth", Value: 2},
				{Name: "eat", Value: 0.005},
				{Name: "die", Value: 2},
			},
			Helpers: []expr.Helper{{Name: "Season", Body: "1 + A * sin(w*t)"}},
			Transitions: []model.Transition{
				{Rate: "birth * Season(t) * Prey", Change: []float64{1, 0}},
				{Rate: "eat * Prey * Pred", Change: []float64{-1, 1}},
				{Rate: "die * Pred", Change: []float64{0, -1}},
			},
		},
		Run: Run{TMax: 7, Dt: 0.000002, Realizations: 1},
	},
	"lotka_volterra": {
		Model: model.Model{
			Name:        "lotka_volterra",
			Kind:        model.KindSDE,
			Description: "predator and prey with multiplicative noise",
			Parameters: []model.Parameter{
				{Name: "a", Value: 1.1},
				{Name: "b", Value: 0.01},
				{Name: "c", Value: 1.0},
				{Name: "d", Value: 0.005},
				{Name: "sigma_x", Value: 0.2},
				{Name: "sigma_y", Value: 0.2},
			},
			Components: []model.Component{
				{Name: "Prey", Init: 300, Drift: "a*Prey - b*Prey*Pred", Diffusion: "sigma_x * Prey"},
				{Name: "Pred", Init: 10, Drift: "-c*Pred + d*Prey*Pred", Diffusion: "sigma_y * Pred"},
			},
		},
		Run: Run{TMax: 20, Dt: 0.005, Realizations: 1},
	},
	"ornstein_uhlenbeck": {
		Model: model.Model{
			Name:        "ornstein_uhlenbeck",
			Kind:        model.KindSDE,
			Description: "mean-reverting process around mu",
			Parameters: []model.Parameter{
				{Name: "theta", Value: 1.5},
				{Name: "mu", Value: 2},
				{Name: "sigma", Value: 0.4},
			},
			Components: []model.Component{
				{Name: "X", Init: 0, Drift: "theta * (mu - X)", Diffusion: "sigma"},
			},
		},
		Run: Run{TMax: 10, Dt: 0.01, Realizations: 50},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

// ListPresets returns the preset names in sorted order.
func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
