package metrics

import "github.com/san-kum/stochsim/internal/sim"

// Extinction is the fraction of realizations in which a variable ends at or
// below zero.
type Extinction struct {
	name    string
	idx     int
	extinct int
	samples int
}

func NewExtinction(varName string, idx int) *Extinction {
	return &Extinction{
		name: "extinct_" + varName,
		idx:  idx,
	}
}

func (e *Extinction) Name() string {
	return e.name
}

func (e *Extinction) Observe(r *sim.Result) {
	_, x := r.Final()
	if e.idx >= len(x) {
		return
	}
	e.samples++
	if x[e.idx] <= 0 {
		e.extinct++
	}
}

func (e *Extinction) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return float64(e.extinct) / float64(e.samples)
}

func (e *Extinction) Reset() {
	e.extinct = 0
	e.samples = 0
}

// TimeAverage is the time-weighted mean of a variable, averaged over
// realizations. Trajectories are read as step functions held until horizon,
// so a run that stops early keeps its last state.
type TimeAverage struct {
	name    string
	idx     int
	horizon float64
	total   float64
	samples int
}

func NewTimeAverage(varName string, idx int, horizon float64) *TimeAverage {
	return &TimeAverage{
		name:    "mean_" + varName,
		idx:     idx,
		horizon: horizon,
	}
}

func (a *TimeAverage) Name() string { return a.name }

func (a *TimeAverage) Observe(r *sim.Result) {
	n := r.Len()
	if n == 0 || a.idx >= len(r.States[0]) {
		return
	}
	end := r.Times[n-1]
	if a.horizon > end {
		end = a.horizon
	}
	if end <= 0 {
		a.total += r.States[0][a.idx]
		a.samples++
		return
	}

	integral := 0.0
	for k := 0; k < n; k++ {
		next := end
		if k+1 < n {
			next = r.Times[k+1]
		}
		integral += r.States[k][a.idx] * (next - r.Times[k])
	}
	a.total += integral / end
	a.samples++
}

func (a *TimeAverage) Value() float64 {
	if a.samples == 0 {
		return 0
	}
	return a.total / float64(a.samples)
}

func (a *TimeAverage) Reset() {
	a.total = 0
	a.samples = 0
}

// FinalMean is the mean final value of a variable across realizations.
type FinalMean struct {
	name    string
	idx     int
	sum     float64
	samples int
}

func NewFinalMean(varName string, idx int) *FinalMean {
	return &FinalMean{name: "final_" + varName, idx: idx}
}

func (f *FinalMean) Name() string { return f.name }

func (f *FinalMean) Observe(r *sim.Result) {
	_, x := r.Final()
	if f.idx >= len(x) {
		return
	}
	f.sum += x[f.idx]
	f.samples++
}

func (f *FinalMean) Value() float64 {
	if f.samples == 0 {
		return 0
	}
	return f.sum / float64(f.samples)
}

func (f *FinalMean) Reset() {
	f.sum = 0
	f.samples = 0
}

// Standard builds the default metric set for a model with the given
// variables. Extinction is only meaningful for discrete populations.
func Standard(varNames []string, horizon float64, discrete bool) []sim.Metric {
	ms := []sim.Metric{NewEventCount(), NewPointCount(), NewTruncation()}
	for i, name := range varNames {
		ms = append(ms, NewTimeAverage(name, i, horizon), NewFinalMean(name, i))
		if discrete {
			ms = append(ms, NewExtinction(name, i))
		}
	}
	return ms
}

// Evaluate resets ms, feeds every result and returns the values by name.
func Evaluate(ms []sim.Metric, results []*sim.Result) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		m.Reset()
		for _, r := range results {
			m.Observe(r)
		}
		out[m.Name()] = m.Value()
	}
	return out
}
