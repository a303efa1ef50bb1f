// Package estimate provides a closed-form approximation of the expected
// Victor–Purpura distance between two independent homogeneous Poisson spike
// trains, replacing pairwise computation for the idealized case.
//
// The model is a logistic curve in log10(cost):
//
//	SPKD(q; λ) = α(λ) + β(λ) / (1 + exp(-γ(λ)·(log10(q) - δ(λ))))
//
// α and β are closed-form per output mode; γ and δ come from ShapeParams.
package estimate

import (
	"errors"
	"fmt"
	"math"
)

// Mode selects the normalization of the estimate.
type Mode string

const (
	// PerSpike normalizes by the expected spike count.
	PerSpike Mode = "per_spike"
	// PerSec normalizes by the trial duration.
	PerSec Mode = "per_sec"
)

var (
	// ErrUnknownMode is returned for an output mode other than per_spike or
	// per_sec. It is a configuration error.
	ErrUnknownMode = errors.New("output must be 'per_spike' or 'per_sec'")

	// ErrInvalidArgument is returned for negative or NaN rates and costs, or
	// a non-positive duration where one is required.
	ErrInvalidArgument = errors.New("invalid estimator argument")
)

// ParseMode validates s as an output mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case PerSpike, PerSec:
		return m, nil
	default:
		return "", fmt.Errorf("%w, got %q", ErrUnknownMode, s)
	}
}

// Estimator evaluates the analytic SPKD model with a fixed set of shape
// parameters. It is safe for concurrent use.
type Estimator struct {
	params ShapeParams
}

// NewEstimator creates an estimator bound to params.
func NewEstimator(params *ShapeParams) (*Estimator, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: estimator requires loaded shape parameters", ErrShapeParamsNotFound)
	}
	return &Estimator{params: *params}, nil
}

// Params returns a copy of the estimator's shape parameters.
func (e *Estimator) Params() ShapeParams {
	return e.params
}

// Estimate returns the expected SPKD for firing rate (Hz) and cost. duration
// is only used for per_sec output and the zero-cost path.
func (e *Estimator) Estimate(rate, cost float64, mode Mode, duration float64) (float64, error) {
	if rate == 0 {
		return 0, nil
	}
	if mode != PerSpike && mode != PerSec {
		return 0, fmt.Errorf("%w, got %q", ErrUnknownMode, string(mode))
	}
	if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, fmt.Errorf("%w: firing rate %v", ErrInvalidArgument, rate)
	}
	if cost < 0 || math.IsNaN(cost) {
		return 0, fmt.Errorf("%w: cost %v", ErrInvalidArgument, cost)
	}

	if cost == 0 {
		return zeroCost(rate, mode, duration)
	}

	alpha, beta := asymptotes(rate, mode)
	gamma := e.params.GammaAt(rate)
	delta := e.params.DeltaAt(rate)

	if math.IsInf(cost, 1) {
		// Limit of the logistic as log10(cost) grows without bound.
		switch {
		case gamma > 0:
			return alpha + beta, nil
		case gamma < 0:
			return alpha, nil
		default:
			return alpha + beta/2, nil
		}
	}

	exponent := -gamma * (math.Log10(cost) - delta)
	return alpha + beta/(1+math.Exp(exponent)), nil
}

// zeroCost uses the expected absolute difference of two Poisson counts with
// mean rate*duration, approximated as sqrt(2·λT/π).
func zeroCost(rate float64, mode Mode, duration float64) (float64, error) {
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return 0, fmt.Errorf("%w: duration %v", ErrInvalidArgument, duration)
	}
	expectedDiff := math.Sqrt(2 * rate * duration / math.Pi)
	if mode == PerSec {
		return expectedDiff / duration, nil
	}
	return expectedDiff / (rate * duration), nil
}

func asymptotes(rate float64, mode Mode) (alpha, beta float64) {
	if mode == PerSec {
		alpha = math.Sqrt(4 * rate / math.Pi)
		return alpha, 2*rate - alpha
	}
	alpha = math.Sqrt(4 / (math.Pi * rate))
	return alpha, 2 - alpha
}
