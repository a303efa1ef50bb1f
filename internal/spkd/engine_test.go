package spkd

import (
	"context"
	"errors"
	"testing"

	"github.com/nvandessel/tbc/internal/spiketrain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairs(t *testing.T) {
	for k := 0; k <= 7; k++ {
		trials := make([]spiketrain.Train, k)
		for i := range trials {
			trials[i] = spiketrain.Train{float64(i)}
		}

		pairs := Pairs(trials)
		require.Len(t, pairs, PairCount(k), "k=%d", k)

		seen := make(map[[2]int]bool)
		prev := [2]int{-1, -1}
		for _, p := range pairs {
			assert.Less(t, p.I, p.J, "self-pair or reversed pair")
			key := [2]int{p.I, p.J}
			assert.False(t, seen[key], "duplicate pair %v", key)
			seen[key] = true
			assert.True(t, prev[0] < p.I || (prev[0] == p.I && prev[1] < p.J), "pairs out of order")
			prev = key
			assert.Equal(t, trials[p.I], p.First)
			assert.Equal(t, trials[p.J], p.Second)
		}
	}
}

func TestPairCount(t *testing.T) {
	assert.Equal(t, 0, PairCount(0))
	assert.Equal(t, 0, PairCount(1))
	assert.Equal(t, 1, PairCount(2))
	assert.Equal(t, 10, PairCount(5))
	assert.Equal(t, 4950, PairCount(100))
}

func TestPairIndicesMatchPairs(t *testing.T) {
	trials := make([]spiketrain.Train, 6)
	pairs := Pairs(trials)
	idx := PairIndices(len(trials))
	require.Len(t, idx, len(pairs))
	for k, p := range pairs {
		assert.Equal(t, [2]int{p.I, p.J}, idx[k])
	}
	assert.Empty(t, PairIndices(1))
}

func TestEngineDistancesPreservesOrder(t *testing.T) {
	var first, second []spiketrain.Train
	want := make([]float64, 200)
	for i := range want {
		// i deletions apart, so the expected distance is the index itself.
		tr := make(spiketrain.Train, i)
		for k := range tr {
			tr[k] = float64(k) / 1000
		}
		first = append(first, tr)
		second = append(second, spiketrain.Train{})
		want[i] = float64(i)
	}

	for _, workers := range []int{0, 1, 3, 64} {
		e := NewEngine(workers, nil)
		got, err := e.Distances(context.Background(), first, second, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, want, got, "workers=%d", workers)
	}
}

func TestEngineDistancesMatchesSerial(t *testing.T) {
	trials := []spiketrain.Train{
		{0.05, 0.3, 0.71},
		{0.1, 0.32},
		{},
		{0.9, 0.95, 0.99, 1.2},
		{0.4},
	}
	e := NewEngine(4, nil)
	pairs, dists, err := e.PairDistances(context.Background(), spiketrain.Unit{Trials: trials}, 1, 5)
	require.NoError(t, err)
	require.Len(t, dists, 10)
	for k, p := range pairs {
		assert.Equal(t, Distance(trials[p.I], trials[p.J], 1, 5), dists[k])
	}
}

func TestEngineDistancesErrors(t *testing.T) {
	e := NewEngine(2, nil)
	ctx := context.Background()

	_, err := e.Distances(ctx, make([]spiketrain.Train, 2), make([]spiketrain.Train, 3), 1, 1)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = e.Distances(ctx, nil, nil, 1, -2)
	assert.ErrorIs(t, err, ErrInvalidCost)

	_, err = e.Distances(ctx, nil, nil, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	got, err := e.Distances(ctx, nil, nil, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEngineDistancesAbortsOnPairFault(t *testing.T) {
	e := NewEngine(4, nil)
	e.distance = func(a, b spiketrain.Train, duration, cost float64) float64 {
		if len(a) == 3 {
			panic("corrupt train")
		}
		return Distance(a, b, duration, cost)
	}

	first := []spiketrain.Train{{0.1}, {0.1, 0.2}, {0.1, 0.2, 0.3}, {0.5}}
	second := []spiketrain.Train{{0.1}, {0.1}, {0.1}, {0.1}}

	got, err := e.Distances(context.Background(), first, second, 1, 1)
	require.Error(t, err)
	assert.Nil(t, got, "partial results must not be returned")

	var pe *PairError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Index)
}

func TestEngineDistancesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewEngine(2, nil)
	first := []spiketrain.Train{{0.1}, {0.2}}
	second := []spiketrain.Train{{0.1}, {0.3}}

	got, err := e.Distances(ctx, first, second, 1, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)
}

func TestTrialsForPairs(t *testing.T) {
	for k := 2; k < 20; k++ {
		assert.Equal(t, k, TrialsForPairs(PairCount(k)), "k=%d", k)
	}
	assert.Equal(t, 0, TrialsForPairs(0))
}
