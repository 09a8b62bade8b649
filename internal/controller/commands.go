package controller

import "github.com/gargamel/gargamel-league/internal/supervisor"

// Command is the interface for all commands sent to the controller.
type Command interface {
	command() // marker method
}

// QueuePlayer requests to add a player to the matchmaking queue.
type QueuePlayer struct {
	SteamID  string
	Response chan error
}

func (QueuePlayer) command() {}

// DequeuePlayer requests to remove a player from the queue.
type DequeuePlayer struct {
	SteamID  string
	Response chan error
}

func (DequeuePlayer) command() {}

// FormGame forces a matchmaking pass right now.
type FormGame struct {
	Response chan error
}

func (FormGame) command() {}

// SwapPlayers exchanges the teams of two players in a live game.
type SwapPlayers struct {
	GameID   int64
	A, B     string
	Response chan error
}

func (SwapPlayers) command() {}

// ReplacePlayer substitutes a rostered player with a newcomer.
type ReplacePlayer struct {
	GameID   int64
	Out, In  string
	Response chan error
}

func (ReplacePlayer) command() {}

// ChangeMode updates whitelisted lobby settings on a live game.
type ChangeMode struct {
	GameID   int64
	Options  map[string]interface{}
	Response chan error
}

func (ChangeMode) command() {}

// ClearQueue empties the waiting queue.
type ClearQueue struct {
	Response chan error
}

func (ClearQueue) command() {}

// CancelGame tears a game down without a result.
type CancelGame struct {
	GameID   int64
	Requeue  bool
	Response chan error
}

func (CancelGame) command() {}

// lobbyRunning is posted by the notification pump when a supervisor
// reports its game went live.
type lobbyRunning struct {
	GameID      int64
	LobbyID     uint64
	DotaMatchID uint64
}

func (lobbyRunning) command() {}

// lobbyEnded is posted by the notification pump when a supervisor
// reports its game finished (or its watchdog gave up).
type lobbyEnded struct {
	GameID  int64
	Outcome supervisor.Outcome
}

func (lobbyEnded) command() {}

// lobbyCreateFailed is posted when an async lobby creation fails.
type lobbyCreateFailed struct {
	GameID int64
	Err    error
}

func (lobbyCreateFailed) command() {}

// swapApplied mirrors a successful supervisor swap into controller state.
type swapApplied struct {
	GameID int64
	A, B   string
}

func (swapApplied) command() {}

// replaceApplied mirrors a successful supervisor replace.
type replaceApplied struct {
	GameID int64
	Out    string
	In     Player
}

func (replaceApplied) command() {}

type getStateCmd struct {
	Response chan StateSnapshot
}

func (getStateCmd) command() {}
