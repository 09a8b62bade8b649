package supervisor

// command is the marker interface for supervisor inbox messages. Each
// variant carries a reply channel so the caller can wait for the result.
type command interface{ command() }

type createLobbyCommand struct {
	Request  CreateLobbyRequest
	Response chan error
}

type swapCommand struct {
	A, B     string
	Response chan error
}

type replaceCommand struct {
	Out, In  string
	Response chan error
}

type changeOptionsCommand struct {
	Options  map[string]interface{}
	Response chan error
}

type teardownCommand struct {
	Response chan error
}

func (createLobbyCommand) command()   {}
func (swapCommand) command()          {}
func (replaceCommand) command()       {}
func (changeOptionsCommand) command() {}
func (teardownCommand) command()      {}

// Notification is the marker interface for messages a supervisor sends
// upward to its owner.
type Notification interface{ notification() }

// LobbyRunning fires exactly once when the game goes live.
type LobbyRunning struct {
	GameID      int64
	LobbyID     uint64
	DotaMatchID uint64
}

// LobbyEnded fires exactly once when the lobby finishes, is torn down or
// the watchdog gives up on it. Outcome is OutcomeUnknown whenever the
// result could not be observed.
type LobbyEnded struct {
	GameID  int64
	Outcome Outcome
}

func (LobbyRunning) notification() {}
func (LobbyEnded) notification()   {}
