package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exports ensemble activity to Prometheus.
type Collector struct {
	runs         *prometheus.CounterVec
	realizations *prometheus.CounterVec
	events       *prometheus.CounterVec
	warnings     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	gatherer     prometheus.Gatherer
}

// NewCollector registers the stochsim metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stochsim_runs_total",
				Help: "Ensemble requests by model kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		realizations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stochsim_realizations_total",
				Help: "Completed realizations",
			},
			[]string{"kind"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stochsim_events_total",
				Help: "Transitions applied across all realizations",
			},
			[]string{"kind"},
		),
		warnings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stochsim_warnings_total",
				Help: "Ensemble requests that produced a numerical warning",
			},
			[]string{"kind"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stochsim_run_duration_seconds",
				Help:    "Wall time of ensemble requests",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"kind"},
		),
		gatherer: reg,
	}
	reg.MustRegister(c.runs, c.realizations, c.events, c.warnings, c.duration)
	return c
}

// RunStats summarizes one ensemble request.
type RunStats struct {
	Kind         string
	Realizations int
	Events       int
	Warned       bool
	Elapsed      time.Duration
	Err          error
}

func (c *Collector) Observe(s RunStats) {
	outcome := "ok"
	if s.Err != nil {
		outcome = "error"
	}
	c.runs.WithLabelValues(s.Kind, outcome).Inc()
	c.duration.WithLabelValues(s.Kind).Observe(s.Elapsed.Seconds())
	if s.Err != nil {
		return
	}
	c.realizations.WithLabelValues(s.Kind).Add(float64(s.Realizations))
	c.events.WithLabelValues(s.Kind).Add(float64(s.Events))
	if s.Warned {
		c.warnings.WithLabelValues(s.Kind).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
