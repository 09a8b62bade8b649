package rating_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gargamel/gargamel-league/internal/rating"
)

func TestPowerMean(t *testing.T) {
	assert.Equal(t, 0, rating.PowerMean(nil, rating.PowerMeanP))
	assert.Equal(t, 3000, rating.PowerMean([]int{3000}, rating.PowerMeanP))
	assert.Equal(t, 2500, rating.PowerMean([]int{2500, 2500, 2500, 2500, 2500}, rating.PowerMeanP))

	// (1000^5 / 2)^(1/5) = 1000 / 2^(1/5)
	assert.Equal(t, 870, rating.PowerMean([]int{0, 1000}, rating.PowerMeanP))
}

func TestPowerMeanWeighsStrongPlayers(t *testing.T) {
	// One standout player should pull the mean well above the arithmetic mean.
	pm := rating.PowerMean([]int{1000, 1000, 1000, 1000, 5000}, rating.PowerMeanP)
	assert.Greater(t, pm, 1800)
	assert.Less(t, pm, 5000)
}

func TestUnfairness(t *testing.T) {
	// Rank-matched diffs are 100 and 100: sqrt(100^2 + 100^2) = 141.42.
	assert.Equal(t, 141, rating.Unfairness([]int{3000, 2000}, []int{2900, 2100}, 2))

	// Input order must not matter: teams are sorted before pairing.
	assert.Equal(t, 141, rating.Unfairness([]int{2000, 3000}, []int{2100, 2900}, 2))

	// q=1 degenerates to the sum of absolute diffs.
	assert.Equal(t, 200, rating.Unfairness([]int{3000, 2000}, []int{2900, 2100}, 1))

	// Identical teams are perfectly fair.
	assert.Equal(t, 0, rating.Unfairness([]int{3000, 2000}, []int{3000, 2000}, 2))
}

func TestUnfairnessCatchesEqualMeansMismatch(t *testing.T) {
	// Same arithmetic mean, very different rank profile.
	a := []int{4000, 2000}
	b := []int{3000, 3000}
	assert.Greater(t, rating.Unfairness(a, b, 2), 1000)
}

func TestPartitionScore(t *testing.T) {
	a := []int{3000, 2000}
	b := []int{3000, 2000}
	assert.Equal(t, 0, rating.PartitionScore(a, b, rating.PowerMeanP, 2))

	// Score is symmetric in the two teams.
	c := []int{3100, 1900}
	assert.Equal(t,
		rating.PartitionScore(a, c, rating.PowerMeanP, 2),
		rating.PartitionScore(c, a, rating.PowerMeanP, 2))
}

func TestExpected(t *testing.T) {
	assert.InDelta(t, 0.5, rating.Expected(3000, 3000), 1e-9)

	// A full divisor of advantage gives 10:1 odds.
	assert.InDelta(t, 1.0/1.1, rating.Expected(3000+3322, 3000), 1e-9)

	// Expected scores of the two sides sum to one.
	e := rating.Expected(3100, 2700)
	assert.InDelta(t, 1.0, e+rating.Expected(2700, 3100), 1e-9)
	assert.Greater(t, e, 0.5)
}

func TestUpdated(t *testing.T) {
	assert.Equal(t, 3025, rating.Updated(3000, 50, 1, 0.5))
	assert.Equal(t, 2975, rating.Updated(3000, 50, 0, 0.5))

	// Rounding, not truncation.
	assert.Equal(t, 3005, rating.Updated(3000, 50, 1, 1.0/1.1))

	// No floor: ratings may go negative.
	assert.Equal(t, -35, rating.Updated(10, 50, 0, 0.9))
}

func TestUpdatedConservesPointsAcrossTeams(t *testing.T) {
	// The two team deltas cancel up to rounding, which can drift by at
	// most one point per player.
	games := [][2][]int{
		{{3000, 3000, 3000, 3000, 3000}, {3000, 3000, 3000, 3000, 3000}},
		{{3400, 3200, 3100, 2900, 2700}, {3300, 3250, 3000, 2800, 2750}},
		{{4100, 1200, 2500, 3900, 900}, {2600, 2600, 2700, 2900, 3100}},
	}

	for _, g := range games {
		radiant, dire := g[0], g[1]
		expected := rating.Expected(
			rating.PowerMean(radiant, rating.PowerMeanP),
			rating.PowerMean(dire, rating.PowerMeanP))

		sum := 0
		for _, r := range radiant {
			sum += rating.Updated(r, rating.DefaultK, 1, expected) - r
		}
		for _, r := range dire {
			sum += rating.Updated(r, rating.DefaultK, 0, 1-expected) - r
		}

		bound := len(radiant) + len(dire)
		assert.LessOrEqual(t, sum, bound)
		assert.GreaterOrEqual(t, sum, -bound)
	}
}

func TestUpdatedUniformTeamDelta(t *testing.T) {
	// Every player on a team moves by the same amount regardless of their
	// individual rating.
	expected := rating.Expected(2800, 3100)
	ratings := []int{1200, 2500, 3900, 4100, 900}

	var delta *int
	for _, r := range ratings {
		d := rating.Updated(r, rating.DefaultK, 1, expected) - r
		if delta == nil {
			delta = &d
			continue
		}
		require.Equal(t, *delta, d)
	}
	require.NotNil(t, delta)
	assert.Greater(t, *delta, 0)
}
