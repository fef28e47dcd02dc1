package sim

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// MaxRealizations bounds the size of one ensemble request.
const MaxRealizations = 200

// ClampRealizations maps a requested count into [1, MaxRealizations].
func ClampRealizations(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxRealizations {
		return MaxRealizations
	}
	return n
}

// ProgressFunc is called after each finished realization. It may be called
// from several goroutines at once.
type ProgressFunc func(done, total int)

type Ensemble struct {
	engine    Engine
	numRuns   int
	seedStart int64
	workers   int
	progress  ProgressFunc
}

type EnsembleOption func(*Ensemble)

// WithWorkers bounds the number of realizations running at once. Values
// below one mean GOMAXPROCS.
func WithWorkers(n int) EnsembleOption {
	return func(e *Ensemble) { e.workers = n }
}

func WithProgress(fn ProgressFunc) EnsembleOption {
	return func(e *Ensemble) { e.progress = fn }
}

// NewEnsemble prepares numRuns realizations of engine. Realization i draws
// from a source seeded with seedStart+i.
func NewEnsemble(engine Engine, numRuns int, seedStart int64, opts ...EnsembleOption) *Ensemble {
	e := &Ensemble{
		engine:    engine,
		numRuns:   ClampRealizations(numRuns),
		seedStart: seedStart,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	return e
}

func (e *Ensemble) Size() int { return e.numRuns }

type EnsembleResult struct {
	Results []*Result
	// Warning is the first non-empty realization warning, in index order.
	Warning string
}

// Run executes all realizations. Results[i] belongs to realization i. The
// first failure cancels the remaining runs and no partial results are
// returned.
func (e *Ensemble) Run(ctx context.Context, x0 State, cfg Config) (*EnsembleResult, error) {
	results := make([]*Result, e.numRuns)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := 0; i < e.numRuns; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			rng := rand.New(rand.NewSource(e.seedStart + int64(i)))
			res, err := e.engine.Run(gctx, x0.Clone(), cfg, rng)
			if err != nil {
				return fmt.Errorf("realization %d: %w", i+1, err)
			}
			results[i] = res
			if e.progress != nil {
				e.progress(int(done.Add(1)), e.numRuns)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &EnsembleResult{Results: results}
	for _, r := range results {
		if r.Warning != "" {
			out.Warning = r.Warning
			break
		}
	}
	return out, nil
}
