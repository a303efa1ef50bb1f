package spkd

import "github.com/nvandessel/tbc/internal/spiketrain"

// Pair is an unordered pair of trials from one unit, identified by their
// trial indices with I < J.
type Pair struct {
	I, J   int
	First  spiketrain.Train
	Second spiketrain.Train
}

// PairCount returns k(k-1)/2.
func PairCount(k int) int {
	if k < 2 {
		return 0
	}
	return k * (k - 1) / 2
}

// Pairs returns every unordered pair of distinct trials in (i, j) order
// with i < j.
func Pairs(trials []spiketrain.Train) []Pair {
	pairs := make([]Pair, 0, PairCount(len(trials)))
	for i := 0; i < len(trials); i++ {
		for j := i + 1; j < len(trials); j++ {
			pairs = append(pairs, Pair{I: i, J: j, First: trials[i], Second: trials[j]})
		}
	}
	return pairs
}

// Columns splits pairs into the index-aligned first and second trains
// expected by Engine.Distances.
func Columns(pairs []Pair) (first, second []spiketrain.Train) {
	first = make([]spiketrain.Train, len(pairs))
	second = make([]spiketrain.Train, len(pairs))
	for k, p := range pairs {
		first[k] = p.First
		second[k] = p.Second
	}
	return first, second
}

// PairIndices returns the (i, j) trial indices Pairs would produce for k
// trials, without touching any spike data.
func PairIndices(k int) [][2]int {
	out := make([][2]int, 0, PairCount(k))
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			out = append(out, [2]int{i, j})
		}
	}
	return out
}

// TrialsForPairs inverts PairCount: the smallest k with PairCount(k) >= n.
func TrialsForPairs(n int) int {
	if n <= 0 {
		return 0
	}
	k := 2
	for PairCount(k) < n {
		k++
	}
	return k
}
