package spkd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/nvandessel/tbc/internal/logging"
	"github.com/nvandessel/tbc/internal/spiketrain"
	"golang.org/x/sync/errgroup"
)

// ErrLengthMismatch is returned when the two pair columns differ in length.
var ErrLengthMismatch = errors.New("first and second train collections differ in length")

// PairError reports a failure computing the distance of one pair. It aborts
// the whole batch.
type PairError struct {
	Index int
	Err   error
}

func (e *PairError) Error() string {
	return fmt.Sprintf("pair %d: %v", e.Index, e.Err)
}

func (e *PairError) Unwrap() error { return e.Err }

// distanceFunc is swapped in tests to inject per-pair faults.
type distanceFunc func(a, b spiketrain.Train, duration, cost float64) float64

// Engine evaluates Distance over many independent pairs concurrently.
// It holds no per-batch state and is safe for concurrent use.
type Engine struct {
	workers  int
	logger   *slog.Logger
	distance distanceFunc
}

// NewEngine creates an engine running at most workers pair computations at
// once. workers <= 0 uses GOMAXPROCS. A nil logger discards output.
func NewEngine(workers int, logger *slog.Logger) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{workers: workers, logger: logger, distance: Distance}
}

// Workers returns the concurrency limit.
func (e *Engine) Workers() int {
	return e.workers
}

// Distances computes Distance(first[i], second[i]) for every i and returns
// the results in input order. On any failure, including context
// cancellation, it returns a nil slice and the error.
func (e *Engine) Distances(ctx context.Context, first, second []spiketrain.Train, duration, cost float64) ([]float64, error) {
	if len(first) != len(second) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(first), len(second))
	}
	if err := ValidateCost(cost); err != nil {
		return nil, err
	}
	if err := ValidateDuration(duration); err != nil {
		return nil, err
	}

	start := time.Now()
	out := make([]float64, len(first))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range first {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PairError{Index: i, Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = e.distance(first[i], second[i], duration, cost)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.logger.Log(ctx, logging.LevelTrace, "distance batch complete",
		"pairs", len(first),
		"workers", e.workers,
		"cost", cost,
		"duration", duration,
		"elapsed", time.Since(start))

	return out, nil
}

// PairDistances generates every trial pair of unit and computes their
// distances. The returned pairs and distances are index-aligned.
func (e *Engine) PairDistances(ctx context.Context, unit spiketrain.Unit, duration, cost float64) ([]Pair, []float64, error) {
	pairs := Pairs(unit.Trials)
	first, second := Columns(pairs)
	dists, err := e.Distances(ctx, first, second, duration, cost)
	if err != nil {
		return nil, nil, err
	}
	return pairs, dists, nil
}
