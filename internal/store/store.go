// Package store persists league users, matches and ratings in SQLite.
package store

import (
	"context"
	"time"
)

// DefaultRating is assigned to players on first login.
const DefaultRating = 3000

// Match lifecycle states.
const (
	MatchStatePending  = "pending"
	MatchStateRunning  = "running"
	MatchStateEnded    = "ended"
	MatchStateCanceled = "canceled"
)

// Winning team values. TeamNone records a game whose result could not be
// determined (watchdog teardown, admin cancel).
const (
	TeamRadiant = "radiant"
	TeamDire    = "dire"
	TeamNone    = "none"
)

type User struct {
	SteamID   string
	Name      string
	AvatarURL string
	Rating    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Session struct {
	ID        string
	SteamID   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type Match struct {
	GameID       int64
	LobbyID      uint64
	DotaMatchID  uint64
	State        string
	GameMode     int
	ServerRegion int
	LobbyType    int
	LeagueID     int
	WinningTeam  *string
	StartedAt    time.Time
	EndedAt      *time.Time
	Duration     *int // seconds
	RadiantScore *int
	DireScore    *int
}

type MatchPlayer struct {
	GameID       int64
	SteamID      string
	Team         string
	RatingBefore int
	RatingAfter  *int
}

type LeaderboardEntry struct {
	SteamID   string
	Name      string
	AvatarURL string
	Rating    int
	Wins      int
	Losses    int
	Total     int
}

type PushSubscription struct {
	SteamID   string
	Endpoint  string
	P256dh    string
	Auth      string
	CreatedAt time.Time
}

type Store interface {
	GetUser(ctx context.Context, steamID string) (*User, error)
	UpsertUser(ctx context.Context, user *User) error
	ListUsers(ctx context.Context) ([]User, error)
	// GetRating returns the player's rating. ok is false when the player
	// has never logged in.
	GetRating(ctx context.Context, steamID string) (rating int, ok bool, err error)
	SetRating(ctx context.Context, steamID string, rating int) error

	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteExpiredSessions(ctx context.Context) error

	// NextGameID increments and returns the persistent game counter.
	// The increment and read run in one transaction so concurrent callers
	// never see the same ID.
	NextGameID(ctx context.Context) (int64, error)

	// RecordMatchStart writes the match row and all of its player rows in
	// a single transaction. Re-recording an existing game ID is a no-op.
	RecordMatchStart(ctx context.Context, match *Match, players []MatchPlayer) error

	// SetMatchRunning stores the lobby and server-side match IDs once the
	// game is live.
	SetMatchRunning(ctx context.Context, gameID int64, lobbyID, dotaMatchID uint64) error

	// FinalizeMatch records the winning team (radiant, dire or none) and
	// moves the match to its terminal state.
	FinalizeMatch(ctx context.Context, gameID int64, winningTeam, state string) error

	// SetRatingsForMatch writes post-game ratings to match_players and
	// users in one transaction.
	SetRatingsForMatch(ctx context.Context, gameID int64, after map[string]int) error

	// SwapMatchPlayerTeams exchanges the recorded teams of two players in
	// a live match.
	SwapMatchPlayerTeams(ctx context.Context, gameID int64, a, b string) error

	// ReplaceMatchPlayer substitutes one rostered player for another in a
	// live match, in one transaction.
	ReplaceMatchPlayer(ctx context.Context, gameID int64, out string, in MatchPlayer) error

	// BackfillMatchDetails stores audit data fetched from the Dota 2 Web
	// API after the game ended. It never touches the winning team.
	BackfillMatchDetails(ctx context.Context, gameID int64, dotaMatchID uint64, duration, radiantScore, direScore int) error

	GetMatch(ctx context.Context, gameID int64) (*Match, error)
	GetMatchPlayers(ctx context.Context, gameID int64) ([]MatchPlayer, error)
	ListMatches(ctx context.Context, limit int) ([]Match, error)
	ListUnfinishedMatches(ctx context.Context) ([]Match, error)

	Leaderboard(ctx context.Context) ([]LeaderboardEntry, error)

	SavePushSubscription(ctx context.Context, sub *PushSubscription) error
	GetPushSubscriptions(ctx context.Context, steamID string) ([]PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error

	Close() error
}
