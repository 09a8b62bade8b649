// Package rating implements the league's team strength and Elo math.
package rating

import (
	"math"
	"sort"
)

const (
	// PowerMeanP weighs strong players heavily when estimating team strength.
	PowerMeanP = 5.0

	// DefaultUnfairnessQ is the exponent for the rank-matched mismatch score.
	DefaultUnfairnessQ = 2.0

	// EloDivisor is the spread constant in the expected-score formula.
	// The league runs on a wider rating scale than classic chess Elo.
	EloDivisor = 3322.0

	// DefaultK is the rating update step.
	DefaultK = 50
)

// PowerMean returns the generalized power mean (sum(r^p)/n)^(1/p),
// truncated to an integer. An empty slice yields 0.
func PowerMean(ratings []int, p float64) int {
	if len(ratings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range ratings {
		sum += math.Pow(float64(r), p)
	}
	return int(math.Pow(sum/float64(len(ratings)), 1/p))
}

// Unfairness measures per-rank mismatch between two teams. Both rating
// slices are sorted descending and paired by rank; the result is the
// L_q norm of the pairwise differences, truncated to an integer.
// Two teams with equal means can still be unfair when their strongest
// players are far apart.
func Unfairness(a, b []int, q float64) int {
	as := sortedDesc(a)
	bs := sortedDesc(b)

	n := len(as)
	if len(bs) < n {
		n = len(bs)
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Pow(math.Abs(float64(as[i]-bs[i])), q)
	}
	return int(math.Pow(sum, 1/q))
}

// PartitionScore scores a candidate radiant/dire split. Lower is better:
// the absolute power-mean gap plus the rank mismatch penalty.
func PartitionScore(a, b []int, p, q float64) int {
	gap := PowerMean(a, p) - PowerMean(b, p)
	if gap < 0 {
		gap = -gap
	}
	return gap + Unfairness(a, b, q)
}

// Expected returns radiant's expected score against dire given the two
// team ratings.
func Expected(radiant, dire int) float64 {
	return 1 / (1 + math.Pow(10, float64(dire-radiant)/EloDivisor))
}

// Updated applies one Elo step to a single rating. score is 1 for a win
// and 0 for a loss; expected is the team-level expected score. Every
// player on a team gets the same k, score and expected, so the whole
// team moves by the same delta. Ratings may go negative.
func Updated(rating, k int, score, expected float64) int {
	return int(math.Round(float64(rating) + float64(k)*(score-expected)))
}

func sortedDesc(v []int) []int {
	out := make([]int, len(v))
	copy(out, v)
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
