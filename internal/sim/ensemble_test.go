package sim

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
)

// drawEngine records one uniform draw per step so that results depend only on
// the source it is handed.
type drawEngine struct {
	failAt  int
	warning string
}

func (e *drawEngine) Name() string { return "draw" }

func (e *drawEngine) Run(ctx context.Context, x0 State, cfg Config, rng *rand.Rand) (*Result, error) {
	if e.failAt > 0 && int(x0[0]) == e.failAt {
		return nil, errors.New("boom")
	}
	r := NewResult(x0, 4)
	x := x0.Clone()
	for i := 1; i <= 3; i++ {
		x[0] = rng.Float64()
		r.Record(float64(i), x)
	}
	if e.warning != "" {
		r.Warning = e.warning
	}
	return r, ctx.Err()
}

func TestClampRealizations(t *testing.T) {
	cases := map[int]int{-5: 1, 0: 1, 1: 1, 50: 50, 200: 200, 201: 200, 10000: 200}
	for in, want := range cases {
		if got := ClampRealizations(in); got != want {
			t.Errorf("ClampRealizations(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestEnsembleRunCountAndOrder(t *testing.T) {
	eng := &drawEngine{}
	ens := NewEnsemble(eng, 7, 100, WithWorkers(3))
	out, err := ens.Run(context.Background(), State{0}, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 7 || ens.Size() != 7 {
		t.Fatalf("expected 7 results, got %d", len(out.Results))
	}

	for i, r := range out.Results {
		rng := rand.New(rand.NewSource(100 + int64(i)))
		if want := rng.Float64(); r.States[1][0] != want {
			t.Errorf("realization %d not seeded with seedStart+i: got %v want %v", i, r.States[1][0], want)
		}
	}
}

func TestEnsembleDeterministicAcrossWorkerCounts(t *testing.T) {
	serial, err := NewEnsemble(&drawEngine{}, 12, 42, WithWorkers(1)).Run(context.Background(), State{0}, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	parallel, err := NewEnsemble(&drawEngine{}, 12, 42, WithWorkers(8)).Run(context.Background(), State{0}, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	for i := range serial.Results {
		a, b := serial.Results[i], parallel.Results[i]
		for k := range a.States {
			if a.States[k][0] != b.States[k][0] {
				t.Fatalf("realization %d differs at sample %d", i, k)
			}
		}
	}
}

func TestEnsembleSharedInitialStateUntouched(t *testing.T) {
	x0 := State{0}
	if _, err := NewEnsemble(&drawEngine{}, 4, 1).Run(context.Background(), x0, DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	if x0[0] != 0 {
		t.Errorf("x0 was modified: %v", x0)
	}
}

func TestEnsembleClampsCount(t *testing.T) {
	if n := NewEnsemble(&drawEngine{}, 0, 1).Size(); n != 1 {
		t.Errorf("Size() = %d, want 1", n)
	}
	if n := NewEnsemble(&drawEngine{}, 999, 1).Size(); n != MaxRealizations {
		t.Errorf("Size() = %d, want %d", n, MaxRealizations)
	}
}

func TestEnsembleWarningPropagates(t *testing.T) {
	out, err := NewEnsemble(&drawEngine{warning: "high event probability"}, 3, 1).Run(context.Background(), State{0}, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if out.Warning != "high event probability" {
		t.Errorf("Warning = %q", out.Warning)
	}
}

func TestEnsembleErrorAborts(t *testing.T) {
	eng := &drawEngine{failAt: 5}
	out, err := NewEnsemble(eng, 3, 1).Run(context.Background(), State{5}, DefaultConfig())
	if err == nil {
		t.Fatal("expected error")
	}
	if out != nil {
		t.Error("partial results returned on failure")
	}
}

func TestEnsembleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEnsemble(&drawEngine{}, 5, 1).Run(ctx, State{0}, DefaultConfig())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEnsembleProgress(t *testing.T) {
	var mu sync.Mutex
	var calls, last int
	progress := func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if done > last {
			last = done
		}
		if total != 6 {
			t.Errorf("total = %d, want 6", total)
		}
	}
	if _, err := NewEnsemble(&drawEngine{}, 6, 1, WithProgress(progress)).Run(context.Background(), State{0}, DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	if calls != 6 || last != 6 {
		t.Errorf("progress called %d times, max done %d", calls, last)
	}
}
