package matchmaker_test

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gargamel/gargamel-league/internal/matchmaker"
	"github.com/gargamel/gargamel-league/internal/rating"
)

func newMatchmaker(t *testing.T, seed int64) *matchmaker.Matchmaker {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return matchmaker.New(matchmaker.Config{}, rand.New(rand.NewSource(seed)), log)
}

// fixedClock returns a settable clock starting at a fixed instant.
type fixedClock struct {
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time          { return c.now }
func (c *fixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestQueueAndDequeue(t *testing.T) {
	m := newMatchmaker(t, 1)

	require.NoError(t, m.Queue("a", 3000))
	assert.ErrorIs(t, m.Queue("a", 3000), matchmaker.ErrAlreadyQueued)
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Queued("a"))

	assert.True(t, m.Dequeue("a"))
	assert.False(t, m.Dequeue("a"))
	assert.Equal(t, 0, m.Len())
}

func TestFormMatchNotEnoughPlayers(t *testing.T) {
	m := newMatchmaker(t, 1)

	for i := 0; i < 9; i++ {
		require.NoError(t, m.Queue(fmt.Sprintf("p%d", i), 3000))
	}

	_, err := m.FormMatch(5)
	assert.ErrorIs(t, err, matchmaker.ErrNotEnoughPlayers)
}

func TestFormMatchSelectsDistinctPlayers(t *testing.T) {
	m := newMatchmaker(t, 7)
	clock := newFixedClock()
	m.SetClock(clock.Now)

	for i := 0; i < 10; i++ {
		require.NoError(t, m.Queue(fmt.Sprintf("p%d", i), 2500+i*100))
	}
	clock.Advance(time.Minute)

	prop, err := m.FormMatch(5)
	require.NoError(t, err)
	require.Len(t, prop.Radiant, 5)
	require.Len(t, prop.Dire, 5)

	seen := make(map[string]bool)
	for _, p := range append(append([]matchmaker.Player{}, prop.Radiant...), prop.Dire...) {
		assert.False(t, seen[p.SteamID], "player %s selected twice", p.SteamID)
		seen[p.SteamID] = true
	}
	assert.Len(t, seen, 10)
	assert.Equal(t, 0, m.Len())

	// Everyone was taken, so nobody was left waiting.
	assert.Empty(t, prop.Waited)
}

func TestFormMatchReportsLeftBehindPlayers(t *testing.T) {
	m := newMatchmaker(t, 11)
	clock := newFixedClock()
	m.SetClock(clock.Now)

	for i := 0; i < 12; i++ {
		require.NoError(t, m.Queue(fmt.Sprintf("p%d", i), 3000))
	}
	clock.Advance(time.Minute)

	prop, err := m.FormMatch(5)
	require.NoError(t, err)

	selected := make(map[string]bool)
	for _, p := range append(append([]matchmaker.Player{}, prop.Radiant...), prop.Dire...) {
		selected[p.SteamID] = true
	}

	// The two unselected players stay queued and come back with their
	// wait times.
	require.Len(t, prop.Waited, 2)
	assert.Equal(t, 2, m.Len())
	for id, waited := range prop.Waited {
		assert.False(t, selected[id], "player %s both selected and waiting", id)
		assert.True(t, m.Queued(id))
		assert.Equal(t, time.Minute, waited)
	}
}

func TestClear(t *testing.T) {
	m := newMatchmaker(t, 1)

	require.NoError(t, m.Queue("a", 3000))
	require.NoError(t, m.Queue("b", 2500))

	assert.Equal(t, 2, m.Clear())
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 0, m.Clear())

	// Cleared players may queue again.
	require.NoError(t, m.Queue("a", 3000))
}

func TestSnapshotTieBreakIsRandomized(t *testing.T) {
	clock := newFixedClock()

	order := func(seed int64) []string {
		m := newMatchmaker(t, seed)
		m.SetClock(clock.Now)
		for i := 0; i < 10; i++ {
			require.NoError(t, m.Queue(fmt.Sprintf("p%d", i), 3000))
		}
		snap := m.Snapshot()
		out := make([]string, len(snap))
		for i, p := range snap {
			out[i] = p.SteamID
		}
		return out
	}

	// Same seed, same order.
	assert.Equal(t, order(1), order(1))

	// Equal join times break ties on a per-entry random nonce, not on
	// the player ID, so different seeds order differently.
	assert.NotEqual(t, order(1), order(2))
}

func TestFormMatchFavorsLongWaiters(t *testing.T) {
	clock := newFixedClock()

	// Two players have waited an hour, ten just arrived. Squared wait
	// weighting makes the veterans near-certain picks.
	const trials = 200
	veteranPicks := 0

	rng := rand.New(rand.NewSource(42))
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	for trial := 0; trial < trials; trial++ {
		m := matchmaker.New(matchmaker.Config{}, rng, log)
		m.SetClock(clock.Now)

		require.NoError(t, m.Queue("vet1", 3000))
		require.NoError(t, m.Queue("vet2", 3000))
		clock.Advance(time.Hour)
		for i := 0; i < 10; i++ {
			require.NoError(t, m.Queue(fmt.Sprintf("fresh%d", i), 3000))
		}

		prop, err := m.FormMatch(2)
		require.NoError(t, err)

		picked := make(map[string]bool)
		for _, p := range append(append([]matchmaker.Player{}, prop.Radiant...), prop.Dire...) {
			picked[p.SteamID] = true
		}
		if picked["vet1"] && picked["vet2"] {
			veteranPicks++
		}
	}

	assert.GreaterOrEqual(t, veteranPicks, trials*9/10)
}

func TestFormMatchBalancesTeams(t *testing.T) {
	m := newMatchmaker(t, 3)

	// Two strong and two weak players. The only fair split puts one of
	// each on both sides.
	require.NoError(t, m.Queue("strong1", 3000))
	require.NoError(t, m.Queue("strong2", 3000))
	require.NoError(t, m.Queue("weak1", 1000))
	require.NoError(t, m.Queue("weak2", 1000))

	prop, err := m.FormMatch(2)
	require.NoError(t, err)
	assert.Equal(t, 0, prop.Score)

	for _, team := range [][]matchmaker.Player{prop.Radiant, prop.Dire} {
		require.Len(t, team, 2)
		sum := team[0].Rating + team[1].Rating
		assert.Equal(t, 4000, sum, "each team should pair a strong and a weak player")
	}
}

func TestFormMatchScoreWithinBoundOfOptimum(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	for trial := 0; trial < 50; trial++ {
		m := matchmaker.New(matchmaker.Config{}, rng, log)
		for i := 0; i < 6; i++ {
			require.NoError(t, m.Queue(fmt.Sprintf("p%d", i), 1000+rng.Intn(3000)))
		}

		prop, err := m.FormMatch(3)
		require.NoError(t, err)

		// The returned score matches the returned teams.
		assert.Equal(t, prop.Score, rating.PartitionScore(
			ratings(prop.Radiant), ratings(prop.Dire),
			rating.PowerMeanP, rating.DefaultUnfairnessQ))

		best := exactBestScore(append(ratings(prop.Radiant), ratings(prop.Dire)...))
		assert.LessOrEqual(t, float64(prop.Score), 1.2*float64(best)+1e-9,
			"trial %d: score %d vs optimum %d", trial, prop.Score, best)
	}
}

func TestRequeuePreservesJoinTime(t *testing.T) {
	m := newMatchmaker(t, 5)
	clock := newFixedClock()
	m.SetClock(clock.Now)

	joined := clock.Now()
	m.Requeue([]matchmaker.Player{
		{SteamID: "a", Rating: 3000, JoinedAt: joined.Add(-time.Hour)},
		{SteamID: "b", Rating: 2000, JoinedAt: joined.Add(-time.Minute)},
	})

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].SteamID)
	assert.Equal(t, time.Hour, snap[0].Waited)
	assert.Equal(t, time.Minute, snap[1].Waited)

	// Requeueing someone already waiting keeps the existing entry.
	m.Requeue([]matchmaker.Player{{SteamID: "a", Rating: 3000, JoinedAt: joined}})
	snap = m.Snapshot()
	assert.Equal(t, time.Hour, snap[0].Waited)
}

func ratings(players []matchmaker.Player) []int {
	out := make([]int, len(players))
	for i, p := range players {
		out[i] = p.Rating
	}
	return out
}

// exactBestScore brute-forces the minimum partition score over all splits
// of the given ratings into two equal teams.
func exactBestScore(all []int) int {
	n := len(all)
	teamSize := n / 2
	best := -1

	for mask := 0; mask < 1<<n; mask++ {
		if bits(mask) != teamSize || mask&1 == 0 {
			continue
		}
		var a, b []int
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				a = append(a, all[i])
			} else {
				b = append(b, all[i])
			}
		}
		score := rating.PartitionScore(a, b, rating.PowerMeanP, rating.DefaultUnfairnessQ)
		if best < 0 || score < best {
			best = score
		}
	}
	return best
}

func bits(mask int) int {
	count := 0
	for mask != 0 {
		count += mask & 1
		mask >>= 1
	}
	return count
}
