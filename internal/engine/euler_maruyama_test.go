package engine

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/stochsim/internal/sim"
)

func component(t *testing.T, name, drift, diffusion string, vars, params []string) *sim.Component {
	t.Helper()
	return sim.NewComponent(name, mustCompile(t, drift, vars, params), mustCompile(t, diffusion, vars, params))
}

func TestEulerMaruyamaZeroDiffusion(t *testing.T) {
	vars := []string{"X"}
	em, err := NewEulerMaruyama([]*sim.Component{component(t, "X", "-X", "0", vars, nil)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := em.Run(context.Background(), sim.State{1}, sim.Config{TMax: 1, Dt: 0.01}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}

	checkInvariants(t, res, sim.State{1}, 1)
	if res.Len() != 101 {
		t.Errorf("samples = %d, want 101", res.Len())
	}
	_, x := res.Final()
	if math.Abs(x[0]-math.Exp(-1)) > 0.01 {
		t.Errorf("X(1) = %v, want ~%v", x[0], math.Exp(-1))
	}
	if want := math.Pow(0.99, 100); math.Abs(x[0]-want) > 1e-12 {
		t.Errorf("X(1) = %v, explicit Euler gives %v", x[0], want)
	}
}

func TestEulerMaruyamaNoClamping(t *testing.T) {
	vars := []string{"X"}
	em, err := NewEulerMaruyama([]*sim.Component{component(t, "X", "-10", "0", vars, nil)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := em.Run(context.Background(), sim.State{1}, sim.Config{TMax: 1, Dt: 0.01}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if _, x := res.Final(); math.Abs(x[0]+9) > 1e-9 {
		t.Errorf("X(1) = %v, want -9", x[0])
	}
}

func TestEulerMaruyamaExplicitCoupling(t *testing.T) {
	// both components must read the pre-step state
	vars := []string{"X", "Y"}
	em, err := NewEulerMaruyama([]*sim.Component{
		component(t, "X", "Y", "0", vars, nil),
		component(t, "Y", "-X", "0", vars, nil),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := em.Run(context.Background(), sim.State{1, 0}, sim.Config{TMax: 0.1, Dt: 0.1}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if _, x := res.Final(); x[0] != 1 || math.Abs(x[1]+0.1) > 1e-12 {
		t.Errorf("state after one step = %v, want [1 -0.1]", x)
	}
}

func TestEulerMaruyamaNoise(t *testing.T) {
	vars := []string{"X"}
	em, err := NewEulerMaruyama([]*sim.Component{component(t, "X", "0", "sigma", vars, []string{"sigma"})}, sim.Params{"sigma": 1})
	if err != nil {
		t.Fatal(err)
	}

	const runs = 400
	sum, sumSq := 0.0, 0.0
	for i := 0; i < runs; i++ {
		res, err := em.Run(context.Background(), sim.State{0}, sim.Config{TMax: 1, Dt: 0.01}, rand.New(rand.NewSource(int64(i))))
		if err != nil {
			t.Fatal(err)
		}
		_, x := res.Final()
		sum += x[0]
		sumSq += x[0] * x[0]
	}
	mean := sum / runs
	variance := sumSq/runs - mean*mean
	// Brownian motion: Var[W(1)] = 1
	if math.Abs(mean) > 0.2 || variance < 0.75 || variance > 1.25 {
		t.Errorf("mean = %v, variance = %v", mean, variance)
	}
}

func TestEulerMaruyamaTruncates(t *testing.T) {
	vars := []string{"X"}
	em, err := NewEulerMaruyama([]*sim.Component{component(t, "X", "1", "0", vars, nil)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := em.Run(context.Background(), sim.State{0}, sim.Config{TMax: 1, Dt: 0.01, MaxSteps: 10}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Truncated || res.Len() != 11 {
		t.Errorf("Truncated = %v, samples = %d", res.Truncated, res.Len())
	}
}

func TestEulerMaruyamaRejectsBadInput(t *testing.T) {
	if _, err := NewEulerMaruyama(nil, nil); !errors.Is(err, sim.ErrNoTransitions) {
		t.Errorf("expected ErrNoTransitions, got %v", err)
	}
	vars := []string{"X"}
	em, err := NewEulerMaruyama([]*sim.Component{component(t, "X", "1", "0", vars, nil)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := em.Run(context.Background(), sim.State{0, 1}, sim.Config{TMax: 1, Dt: 0.1}, rand.New(rand.NewSource(1))); !errors.Is(err, sim.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}
