package controller

import (
	"time"

	"github.com/gargamel/gargamel-league/internal/matchmaker"
	"github.com/gargamel/gargamel-league/internal/store"
	"github.com/gargamel/gargamel-league/internal/supervisor"
)

// Player is a game participant with the rating they entered the game at.
type Player struct {
	SteamID string
	Name    string
	Rating  int
}

// Game is a live game owned by the controller loop.
type Game struct {
	GameID      int64
	Slot        int
	Password    string
	State       string
	Radiant     []Player
	Dire        []Player
	LobbyID     uint64
	DotaMatchID uint64
	FormedAt    time.Time

	handle supervisor.Handle
	// origin preserves the matchmaker entries so a game that fails to
	// launch can requeue everyone with their original join times.
	origin []matchmaker.Player
}

// roster returns all players in the game.
func (g *Game) roster() []Player {
	out := make([]Player, 0, len(g.Radiant)+len(g.Dire))
	out = append(out, g.Radiant...)
	return append(out, g.Dire...)
}

func (g *Game) hasPlayer(steamID string) bool {
	for _, p := range g.roster() {
		if p.SteamID == steamID {
			return true
		}
	}
	return false
}

// GameView is a copy of a game safe to hand out of the loop.
type GameView struct {
	GameID      int64
	State       string
	Radiant     []Player
	Dire        []Player
	LobbyID     uint64
	DotaMatchID uint64
	Password    string
	FormedAt    time.Time
}

// StateSnapshot is the controller state as seen from outside.
type StateSnapshot struct {
	Queue []matchmaker.WaitingPlayer
	Games []GameView
}

// State holds every live game. Only the controller loop touches it.
type State struct {
	Games map[int64]*Game
}

// NewState creates empty controller state.
func NewState() *State {
	return &State{Games: make(map[int64]*Game)}
}

// PlayerGame returns the live game a player is rostered in, or nil.
func (s *State) PlayerGame(steamID string) *Game {
	for _, g := range s.Games {
		if g.hasPlayer(steamID) {
			return g
		}
	}
	return nil
}

func (s *State) view() []GameView {
	out := make([]GameView, 0, len(s.Games))
	for _, g := range s.Games {
		out = append(out, GameView{
			GameID:      g.GameID,
			State:       g.State,
			Radiant:     append([]Player{}, g.Radiant...),
			Dire:        append([]Player{}, g.Dire...),
			LobbyID:     g.LobbyID,
			DotaMatchID: g.DotaMatchID,
			Password:    g.Password,
			FormedAt:    g.FormedAt,
		})
	}
	return out
}

// teamOf returns which store team a player is on, or "".
func (g *Game) teamOf(steamID string) string {
	for _, p := range g.Radiant {
		if p.SteamID == steamID {
			return store.TeamRadiant
		}
	}
	for _, p := range g.Dire {
		if p.SteamID == steamID {
			return store.TeamDire
		}
	}
	return ""
}
