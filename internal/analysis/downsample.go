package analysis

import "github.com/san-kum/stochsim/internal/sim"

// DisplayBudget is the number of plotted values, over all realizations and
// variables, above which output is thinned.
const DisplayBudget = 15000

// DisplayStride is the sampling stride that keeps an ensemble within budget
// plotted values.
func DisplayStride(results []*sim.Result, numVars, budget int) int {
	total := 0
	for _, r := range results {
		total += r.Len()
	}
	total *= numVars
	if budget < 1 || total <= budget {
		return 1
	}
	return (total + budget - 1) / budget
}

// Downsample keeps every stride-th sample of r plus the final one. The
// engine fields are carried over; r is not modified.
func Downsample(r *sim.Result, stride int) *sim.Result {
	if stride <= 1 || r.Len() <= 2 {
		return r
	}
	out := &sim.Result{
		Warning:   r.Warning,
		Steps:     r.Steps,
		Events:    r.Events,
		Truncated: r.Truncated,
	}
	last := r.Len() - 1
	for i := 0; i <= last; i++ {
		if i%stride == 0 || i == last {
			out.Times = append(out.Times, r.Times[i])
			out.States = append(out.States, r.States[i])
		}
	}
	return out
}
