package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/stochsim/internal/sim"
)

// ExportData is the JSON form of an ensemble run.
type ExportData struct {
	Model        string              `json:"model"`
	Kind         string              `json:"kind"`
	TMax         float64             `json:"t_max"`
	Dt           float64             `json:"dt,omitempty"`
	Seed         int64               `json:"seed"`
	VarNames     []string            `json:"var_names"`
	Warning      string              `json:"warning,omitempty"`
	Metrics      map[string]float64  `json:"metrics,omitempty"`
	Realizations []ExportRealization `json:"realizations"`
}

type ExportRealization struct {
	Times     []float64   `json:"times"`
	States    [][]float64 `json:"states"`
	Events    int         `json:"events"`
	Truncated bool        `json:"truncated,omitempty"`
	Warning   string      `json:"warning,omitempty"`
}

// NewExport assembles the export form of a run.
func NewExport(meta RunMetadata, results []*sim.Result) *ExportData {
	data := &ExportData{
		Model:        meta.Model,
		Kind:         meta.Kind,
		TMax:         meta.TMax,
		Dt:           meta.Dt,
		Seed:         meta.Seed,
		VarNames:     meta.VarNames,
		Warning:      meta.Warning,
		Metrics:      meta.Metrics,
		Realizations: make([]ExportRealization, len(results)),
	}
	for i, r := range results {
		states := make([][]float64, len(r.States))
		for j, s := range r.States {
			states[j] = s
		}
		data.Realizations[i] = ExportRealization{
			Times:     r.Times,
			States:    states,
			Events:    r.Events,
			Truncated: r.Truncated,
			Warning:   r.Warning,
		}
	}
	return data
}

// Results converts the realizations back to engine results.
func (d *ExportData) Results() []*sim.Result {
	out := make([]*sim.Result, len(d.Realizations))
	for i, rz := range d.Realizations {
		r := &sim.Result{
			Times:     rz.Times,
			States:    make([]sim.State, len(rz.States)),
			Events:    rz.Events,
			Truncated: rz.Truncated,
			Warning:   rz.Warning,
		}
		for j, s := range rz.States {
			r.States[j] = s
		}
		out[i] = r
	}
	return out
}

func ExportJSON(w io.Writer, data *ExportData) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
