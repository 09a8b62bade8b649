// Package matchmaker holds the waiting queue and forms balanced games.
//
// Selection favors players who have waited longest, then the selected set
// is split into the fairest radiant/dire partition the rating math can
// find.
package matchmaker

import (
	"container/heap"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gargamel/gargamel-league/internal/rating"
)

var (
	ErrNotEnoughPlayers = errors.New("not enough players in queue")
	ErrAlreadyQueued    = errors.New("player already queued")
)

// keepBest is how many low-scoring partitions survive enumeration before
// the weighted pick.
const keepBest = 5

// qualityBound caps how far above the best kept score the picked
// partition may land.
const qualityBound = 1.2

const scoreEpsilon = 1e-9

// Player is a queued player. The nonce breaks ordering ties between
// equal join times without favoring any particular ID.
type Player struct {
	SteamID  string
	Rating   int
	JoinedAt time.Time

	nonce float64
}

// WaitingPlayer is a queue snapshot entry.
type WaitingPlayer struct {
	SteamID string
	Rating  int
	Waited  time.Duration
}

// Proposal is a formed game: two teams, the partition score, and the
// players left waiting in the queue with their wait durations.
type Proposal struct {
	Radiant []Player
	Dire    []Player
	Score   int
	Waited  map[string]time.Duration
}

// Config tunes the partition scoring.
type Config struct {
	PowerMeanP  float64
	UnfairnessQ float64
}

// Matchmaker is safe for concurrent use.
type Matchmaker struct {
	mu      sync.Mutex
	waiting map[string]*Player

	rng *rand.Rand
	now func() time.Time

	p, q float64
	log  *logrus.Logger
}

// New creates a matchmaker. The rand source drives both player sampling
// and the final partition pick, so a seeded source makes runs repeatable.
func New(cfg Config, rng *rand.Rand, log *logrus.Logger) *Matchmaker {
	if cfg.PowerMeanP == 0 {
		cfg.PowerMeanP = rating.PowerMeanP
	}
	if cfg.UnfairnessQ == 0 {
		cfg.UnfairnessQ = rating.DefaultUnfairnessQ
	}
	return &Matchmaker{
		waiting: make(map[string]*Player),
		rng:     rng,
		now:     time.Now,
		p:       cfg.PowerMeanP,
		q:       cfg.UnfairnessQ,
		log:     log,
	}
}

// SetClock overrides the time source. Intended for tests.
func (m *Matchmaker) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Queue adds a player to the waiting pool.
func (m *Matchmaker) Queue(steamID string, playerRating int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.waiting[steamID]; ok {
		return ErrAlreadyQueued
	}
	m.waiting[steamID] = &Player{
		SteamID:  steamID,
		Rating:   playerRating,
		JoinedAt: m.now(),
		nonce:    m.rng.Float64(),
	}
	return nil
}

// Dequeue removes a player; reports whether they were queued.
func (m *Matchmaker) Dequeue(steamID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.waiting[steamID]; !ok {
		return false
	}
	delete(m.waiting, steamID)
	return true
}

// Requeue restores players with their original join times, so a game that
// failed to launch costs nobody their queue position. Players who queued
// again in the meantime keep their newer entry.
func (m *Matchmaker) Requeue(players []Player) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range players {
		if _, ok := m.waiting[p.SteamID]; ok {
			continue
		}
		cp := p
		if cp.nonce == 0 {
			cp.nonce = m.rng.Float64()
		}
		m.waiting[p.SteamID] = &cp
	}
}

// Clear empties the queue and returns how many players were waiting.
func (m *Matchmaker) Clear() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.waiting)
	m.waiting = make(map[string]*Player)
	return n
}

// Len returns the number of waiting players.
func (m *Matchmaker) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiting)
}

// Queued reports whether a player is waiting.
func (m *Matchmaker) Queued(steamID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.waiting[steamID]
	return ok
}

// Snapshot returns the waiting players, longest wait first.
func (m *Matchmaker) Snapshot() []WaitingPlayer {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	players := make([]*Player, 0, len(m.waiting))
	for _, p := range m.waiting {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].nonce < players[j].nonce
	})

	out := make([]WaitingPlayer, 0, len(players))
	for _, p := range players {
		out = append(out, WaitingPlayer{
			SteamID: p.SteamID,
			Rating:  p.Rating,
			Waited:  now.Sub(p.JoinedAt),
		})
	}
	return out
}

// FormMatch selects 2*teamSize players and splits them into the fairest
// partition found. Selected players are removed from the queue.
func (m *Matchmaker) FormMatch(teamSize int) (*Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	need := 2 * teamSize
	if len(m.waiting) < need {
		return nil, ErrNotEnoughPlayers
	}

	now := m.now()
	pool := make([]*Player, 0, len(m.waiting))
	for _, p := range m.waiting {
		pool = append(pool, p)
	}
	// Map iteration order is random; fix it so seeded runs repeat.
	sort.Slice(pool, func(i, j int) bool {
		if !pool[i].JoinedAt.Equal(pool[j].JoinedAt) {
			return pool[i].JoinedAt.Before(pool[j].JoinedAt)
		}
		return pool[i].nonce < pool[j].nonce
	})

	selected := m.selectByWait(pool, now, need)

	radiantIdx, direIdx, score := m.bestPartition(selected)

	prop := &Proposal{Score: score}
	for _, i := range radiantIdx {
		prop.Radiant = append(prop.Radiant, *selected[i])
	}
	for _, i := range direIdx {
		prop.Dire = append(prop.Dire, *selected[i])
	}
	for _, p := range selected {
		delete(m.waiting, p.SteamID)
	}

	// Whoever was not selected stays queued; report them so the caller
	// can tell them they are still waiting.
	prop.Waited = make(map[string]time.Duration, len(m.waiting))
	for id, p := range m.waiting {
		prop.Waited[id] = now.Sub(p.JoinedAt)
	}

	m.log.WithFields(logrus.Fields{
		"players": need,
		"score":   score,
	}).Info("Formed game proposal")

	return prop, nil
}

// selectByWait draws need players weighted by squared wait time. Draws are
// with replacement and then deduplicated; any shortfall is filled with the
// longest-waiting players not yet picked.
func (m *Matchmaker) selectByWait(pool []*Player, now time.Time, need int) []*Player {
	weights := make([]float64, len(pool))
	for i, p := range pool {
		w := now.Sub(p.JoinedAt).Seconds()
		if w < 1 {
			w = 1
		}
		weights[i] = w * w
	}

	picked := make(map[int]bool, need)
	selected := make([]*Player, 0, need)
	for draws := 0; draws < need; draws++ {
		i := weightedIndex(m.rng, weights)
		if picked[i] {
			continue
		}
		picked[i] = true
		selected = append(selected, pool[i])
	}

	// Backfill oldest first. The pool is already sorted by join time.
	for i := 0; len(selected) < need; i++ {
		if picked[i] {
			continue
		}
		picked[i] = true
		selected = append(selected, pool[i])
	}

	return selected
}

func weightedIndex(rng *rand.Rand, weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r < 0 {
			return i
		}
	}
	return len(weights) - 1
}

type candidate struct {
	radiant []int
	dire    []int
	score   int
}

// candidateHeap is a max-heap by score so the worst kept candidate is
// always on top, ready to be evicted.
type candidateHeap []candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].score > h[j].score }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// bestPartition enumerates every split of the selected players into two
// equal teams (player 0 pinned to radiant so each unordered partition is
// visited once), keeps the lowest-scoring few and samples one of them
// inversely proportional to its score.
func (m *Matchmaker) bestPartition(selected []*Player) (radiant, dire []int, score int) {
	n := len(selected)
	teamSize := n / 2
	ratings := make([]int, n)
	for i, p := range selected {
		ratings[i] = p.Rating
	}

	kept := &candidateHeap{}
	heap.Init(kept)

	comb := make([]int, 0, teamSize)
	comb = append(comb, 0)
	m.enumerate(ratings, comb, 1, teamSize, kept)

	best := math.MaxInt
	for _, c := range *kept {
		if c.score < best {
			best = c.score
		}
	}

	// Drop kept candidates that are too far above the best one, then pick
	// among the survivors with weight 1/(score+eps).
	survivors := make([]candidate, 0, kept.Len())
	weights := make([]float64, 0, kept.Len())
	for _, c := range *kept {
		if float64(c.score) > qualityBound*float64(best) {
			continue
		}
		survivors = append(survivors, c)
		weights = append(weights, 1/(float64(c.score)+scoreEpsilon))
	}

	chosen := survivors[weightedIndex(m.rng, weights)]
	return chosen.radiant, chosen.dire, chosen.score
}

func (m *Matchmaker) enumerate(ratings, comb []int, next, teamSize int, kept *candidateHeap) {
	if len(comb) == teamSize {
		m.consider(ratings, comb, kept)
		return
	}
	n := len(ratings)
	// Leave enough indices to complete the team.
	for i := next; i <= n-(teamSize-len(comb)); i++ {
		m.enumerate(ratings, append(comb, i), i+1, teamSize, kept)
	}
}

func (m *Matchmaker) consider(ratings, radiant []int, kept *candidateHeap) {
	n := len(ratings)
	inRadiant := make([]bool, n)
	for _, i := range radiant {
		inRadiant[i] = true
	}

	a := make([]int, 0, len(radiant))
	b := make([]int, 0, n-len(radiant))
	dire := make([]int, 0, n-len(radiant))
	for i := 0; i < n; i++ {
		if inRadiant[i] {
			a = append(a, ratings[i])
		} else {
			b = append(b, ratings[i])
			dire = append(dire, i)
		}
	}

	score := rating.PartitionScore(a, b, m.p, m.q)
	if kept.Len() >= keepBest {
		if score >= (*kept)[0].score {
			return
		}
		heap.Pop(kept)
	}

	rad := make([]int, len(radiant))
	copy(rad, radiant)
	heap.Push(kept, candidate{radiant: rad, dire: dire, score: score})
}
