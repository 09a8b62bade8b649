package supervisor

import "context"

// Lobby states as reported by the game coordinator.
type LobbyState int

const (
	LobbyStateSetup LobbyState = iota // members seating up
	LobbyStateRun                     // game in progress
	LobbyStatePostGame
)

func (s LobbyState) String() string {
	switch s {
	case LobbyStateSetup:
		return "SETUP"
	case LobbyStateRun:
		return "RUN"
	case LobbyStatePostGame:
		return "POSTGAME"
	default:
		return "UNKNOWN"
	}
}

// MemberTeam is the team slot a lobby member currently occupies.
type MemberTeam int

const (
	MemberTeamRadiant MemberTeam = iota
	MemberTeamDire
	MemberTeamSpectator
	MemberTeamPool
)

// Outcome is the reported game result.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeRadiantWin
	OutcomeDireWin
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRadiantWin:
		return "radiant"
	case OutcomeDireWin:
		return "dire"
	default:
		return "unknown"
	}
}

// LobbyMember is one occupant of the lobby.
type LobbyMember struct {
	SteamID string
	Team    MemberTeam
	Slot    int
}

// LobbySnapshot is a point-in-time view of the lobby.
type LobbySnapshot struct {
	LobbyID     uint64
	State       LobbyState
	Members     []LobbyMember
	DotaMatchID uint64
	Outcome     Outcome
}

// LobbyOptions configures a practice lobby at creation time.
type LobbyOptions struct {
	GameName        string
	PassKey         string
	ServerRegion    uint32
	GameMode        uint32
	Visibility      uint32
	LeagueID        uint32
	AllowCheats     bool
	AllowSpectating bool
}

// Client events delivered by a LobbyClient.
type ClientEvent interface{ clientEvent() }

// ReadyEvent fires once the client is logged on and the game coordinator
// has welcomed it.
type ReadyEvent struct{}

// DisconnectedEvent fires when the Steam connection drops. The client is
// expected to reconnect on its own; the supervisor only logs it.
type DisconnectedEvent struct {
	Err error
}

// FriendRequestEvent fires when someone adds the bot account.
type FriendRequestEvent struct {
	SteamID string
}

// LobbyEvent fires whenever the shared lobby object changes.
type LobbyEvent struct {
	Snapshot LobbySnapshot
}

func (ReadyEvent) clientEvent()         {}
func (DisconnectedEvent) clientEvent()  {}
func (FriendRequestEvent) clientEvent() {}
func (LobbyEvent) clientEvent()         {}

// PlatformError wraps a failure from the Steam or Dota layer. Transient
// errors are logged and otherwise ignored; anything else ends the lobby
// through the unknown-outcome path.
type PlatformError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *PlatformError) Error() string {
	return "platform: " + e.Op + ": " + e.Err.Error()
}

func (e *PlatformError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a transient platform error.
func IsTransient(err error) bool {
	pe, ok := err.(*PlatformError)
	return ok && pe.Transient
}

// LobbyClient is the connection a supervisor drives. The production
// implementation lives in internal/dota; tests use a fake.
type LobbyClient interface {
	// Connect starts the logon flow. Events arrive on Events.
	Connect(ctx context.Context) error
	Events() <-chan ClientEvent

	CreateLobby(opts LobbyOptions) error
	// ApplyLobbyOptions overlays the given options onto the current lobby
	// details and resends them. Keys are already validated by the
	// supervisor.
	ApplyLobbyOptions(opts map[string]interface{}) error
	InviteLobbyMember(steamID string) error
	KickLobbyMemberFromTeam(steamID string) error
	LaunchLobby() error
	SendLobbyMessage(text string) error
	AcceptFriend(steamID string) error

	// FetchLobbySnapshot probes for the current lobby. (nil, nil) means
	// the client has no lobby.
	FetchLobbySnapshot() (*LobbySnapshot, error)

	DestroyLobby(ctx context.Context) error
	Close() error
}
