package controller

import (
	"time"

	"github.com/gargamel/gargamel-league/internal/matchmaker"
)

// Event is the interface for all events emitted by the controller.
type Event interface {
	event() // marker method
}

// QueueUpdated fires whenever the waiting queue changes.
type QueueUpdated struct {
	Queue []matchmaker.WaitingPlayer
}

func (QueueUpdated) event() {}

// GameFormed fires when a game has a lobby on the way. Password is the
// lobby pass key the players need. Waited names the players still in
// the queue after this selection, with their wait so far.
type GameFormed struct {
	GameID   int64
	Radiant  []Player
	Dire     []Player
	Password string
	Waited   map[string]time.Duration
}

func (GameFormed) event() {}

// GameRunning fires exactly once when the game goes live.
type GameRunning struct {
	GameID      int64
	LobbyID     uint64
	DotaMatchID uint64
}

func (GameRunning) event() {}

// GameEnded fires exactly once per game. WinningTeam is "radiant",
// "dire" or "none"; NewRatings is empty when no result was observed.
type GameEnded struct {
	GameID      int64
	WinningTeam string
	DotaMatchID uint64
	Radiant     []Player
	Dire        []Player
	NewRatings  map[string]int
}

func (GameEnded) event() {}

// GameCanceled fires when a game is torn down without a result.
type GameCanceled struct {
	GameID   int64
	Requeued bool
}

func (GameCanceled) event() {}
