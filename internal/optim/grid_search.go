// Package optim searches model parameter grids for the best value of an
// ensemble metric.
package optim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/stochsim/internal/experiment"
)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	maximize   bool
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Maximize makes Search prefer larger metric values.
func (g *GridSearch) Maximize() *GridSearch {
	g.maximize = true
	return g
}

// Point is one evaluated grid cell.
type Point struct {
	Params map[string]float64
	Value  float64
}

type SearchResult struct {
	Points []Point
	Best   Point
}

// Search runs base once per grid cell with the cell's parameter values and
// scores it by metricName. Every cell uses the same seed so cells differ
// only by their parameters. Cells whose metric is NaN never win.
func (g *GridSearch) Search(ctx context.Context, base experiment.Config, metricName string, opts ...experiment.Option) (*SearchResult, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, fmt.Errorf("grid search: %d parameters but %d ranges", len(g.paramNames), len(g.ranges))
	}
	for i, r := range g.ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("grid search: empty range for %s", g.paramNames[i])
		}
	}

	res := &SearchResult{Best: Point{Value: math.NaN()}}
	if err := g.searchRecursive(ctx, 0, make(map[string]float64), base, metricName, opts, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	base experiment.Config,
	metricName string,
	opts []experiment.Option,
	res *SearchResult,
) error {
	if depth == len(g.paramNames) {
		cfg := base
		cfg.Model = *base.Model.Clone()
		for name, v := range current {
			if err := cfg.Model.SetParam(name, v); err != nil {
				return err
			}
		}

		rep, err := experiment.New(cfg, opts...).Run(ctx)
		if err != nil {
			return fmt.Errorf("grid search at %v: %w", current, err)
		}
		val, ok := rep.Metrics[metricName]
		if !ok {
			return fmt.Errorf("grid search: unknown metric %q", metricName)
		}

		p := Point{Params: current, Value: val}
		res.Points = append(res.Points, p)
		if g.better(val, res.Best.Value) {
			res.Best = p
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, base, metricName, opts, res); err != nil {
			return err
		}
	}
	return nil
}

func (g *GridSearch) better(val, best float64) bool {
	switch {
	case math.IsNaN(val):
		return false
	case math.IsNaN(best):
		return true
	case g.maximize:
		return val > best
	default:
		return val < best
	}
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	switch {
	case n < 1:
		return nil
	case n == 1:
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}
