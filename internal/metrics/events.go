package metrics

import "github.com/san-kum/stochsim/internal/sim"

// EventCount is the mean number of applied transitions per realization.
type EventCount struct {
	name    string
	sum     float64
	samples int
}

func NewEventCount() *EventCount {
	return &EventCount{
		name: "events_avg",
	}
}

func (c *EventCount) Name() string {
	return c.name
}

func (c *EventCount) Observe(r *sim.Result) {
	c.sum += float64(r.Events)
	c.samples++
}

func (c *EventCount) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *EventCount) Reset() {
	c.sum = 0
	c.samples = 0
}

// PointCount is the mean number of recorded samples per realization.
type PointCount struct {
	sum     float64
	samples int
}

func NewPointCount() *PointCount { return &PointCount{} }

func (c *PointCount) Name() string { return "points_avg" }

func (c *PointCount) Observe(r *sim.Result) {
	c.sum += float64(r.Len())
	c.samples++
}

func (c *PointCount) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *PointCount) Reset() {
	c.sum = 0
	c.samples = 0
}

// Truncation is the fraction of realizations cut short by an iteration cap.
type Truncation struct {
	truncated int
	samples   int
}

func NewTruncation() *Truncation { return &Truncation{} }

func (t *Truncation) Name() string { return "truncated" }

func (t *Truncation) Observe(r *sim.Result) {
	t.samples++
	if r.Truncated {
		t.truncated++
	}
}

func (t *Truncation) Value() float64 {
	if t.samples == 0 {
		return 0
	}
	return float64(t.truncated) / float64(t.samples)
}

func (t *Truncation) Reset() {
	t.truncated = 0
	t.samples = 0
}
