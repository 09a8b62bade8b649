// Package supervisor drives one practice lobby per live game: it seats the
// rostered players, launches the game exactly once, reports the result and
// cleans up after itself. A watchdog ends lobbies that go nowhere.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotReady means the Steam client did not reach the game
	// coordinator within the ready timeout.
	ErrNotReady = errors.New("client not ready")

	// ErrNotOpposingTeams means a swap was requested for two players on
	// the same team, or players not both rostered.
	ErrNotOpposingTeams = errors.New("players are not on opposing teams")

	// ErrPlayerAlreadyInGame means a replacement target is already
	// rostered in this game.
	ErrPlayerAlreadyInGame = errors.New("player already in this game")

	// ErrNotInGame means the player to replace is not rostered.
	ErrNotInGame = errors.New("player not in this game")

	// ErrStopped means the supervisor has already shut down.
	ErrStopped = errors.New("supervisor stopped")
)

// Supervisor lifecycle states.
type State int

const (
	StateInit State = iota
	StateReady
	StateSeating
	StateRunning
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReady:
		return "READY"
	case StateSeating:
		return "SEATING"
	case StateRunning:
		return "RUNNING"
	case StateEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// Config holds the supervisor timeouts. Tests shrink these.
type Config struct {
	ReadyTimeout     time.Duration
	SoftIdle         time.Duration
	HardIdle         time.Duration
	MaxGame          time.Duration
	ProbeInterval    time.Duration
	MaxNoLobbyProbes int
	TeardownTimeout  time.Duration
}

// DefaultConfig returns the production timeouts.
func DefaultConfig() Config {
	return Config{
		ReadyTimeout:     60 * time.Second,
		SoftIdle:         2 * time.Minute,
		HardIdle:         5 * time.Minute,
		MaxGame:          3 * time.Hour,
		ProbeInterval:    30 * time.Second,
		MaxNoLobbyProbes: 6,
		TeardownTimeout:  10 * time.Second,
	}
}

// CreateLobbyRequest carries everything needed to open a lobby.
type CreateLobbyRequest struct {
	GameID   int64
	Password string
	Radiant  []string
	Dire     []string
	Options  LobbyOptions
}

// Handle is the controller-facing surface of a supervisor.
type Handle interface {
	CreateLobby(ctx context.Context, req CreateLobbyRequest) error
	Swap(ctx context.Context, a, b string) error
	Replace(ctx context.Context, out, in string) error
	ChangeOptions(ctx context.Context, opts map[string]interface{}) error
	Teardown(ctx context.Context) error
	Notifications() <-chan Notification
}

// Supervisor owns one lobby on one bot account. All state below the inbox
// is touched only by the run goroutine.
type Supervisor struct {
	id     string
	client LobbyClient
	cfg    Config
	log    *logrus.Entry

	inbox  chan command
	notify chan Notification
	done   chan struct{}

	state    State
	gameID   int64
	password string
	roster   map[string]MemberTeam
	present  map[string]bool

	launchOnce  sync.Once
	runningSent bool
	endedSent   bool

	lobbyID      uint64
	dotaMatchID  uint64
	lastActivity time.Time
	lastNudge    time.Time
	runningSince time.Time
	lastSeating  string
	probeMisses  int
}

// New creates a supervisor over the given client. Call Start to connect
// and begin processing.
func New(client LobbyClient, cfg Config, log *logrus.Logger) *Supervisor {
	id := uuid.NewString()
	return &Supervisor{
		id:      id,
		client:  client,
		cfg:     cfg,
		log:     log.WithField("supervisor", id[:8]),
		inbox:   make(chan command),
		notify:  make(chan Notification, 8),
		done:    make(chan struct{}),
		roster:  make(map[string]MemberTeam),
		present: make(map[string]bool),
	}
}

// Start connects the client and launches the run loop.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	go s.run(ctx)
	return nil
}

// Notifications returns the upward event stream. It is closed when the
// supervisor stops.
func (s *Supervisor) Notifications() <-chan Notification {
	return s.notify
}

// CreateLobby opens the lobby and invites the roster. It waits up to the
// ready timeout for the client to reach the game coordinator.
func (s *Supervisor) CreateLobby(ctx context.Context, req CreateLobbyRequest) error {
	resp := make(chan error, 1)
	return s.send(ctx, createLobbyCommand{Request: req, Response: resp}, resp)
}

// Swap exchanges the teams of two rostered players on opposite sides.
func (s *Supervisor) Swap(ctx context.Context, a, b string) error {
	resp := make(chan error, 1)
	return s.send(ctx, swapCommand{A: a, B: b, Response: resp}, resp)
}

// Replace substitutes a rostered player with a newcomer on the same team.
func (s *Supervisor) Replace(ctx context.Context, out, in string) error {
	resp := make(chan error, 1)
	return s.send(ctx, replaceCommand{Out: out, In: in, Response: resp}, resp)
}

// ChangeOptions updates whitelisted lobby settings on the live lobby.
func (s *Supervisor) ChangeOptions(ctx context.Context, opts map[string]interface{}) error {
	resp := make(chan error, 1)
	return s.send(ctx, changeOptionsCommand{Options: opts, Response: resp}, resp)
}

// Teardown destroys the lobby and stops the supervisor. Calling it on a
// stopped supervisor is a no-op.
func (s *Supervisor) Teardown(ctx context.Context) error {
	resp := make(chan error, 1)
	select {
	case s.inbox <- teardownCommand{Response: resp}:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-resp:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-s.done:
		return nil
	case <-time.After(s.cfg.TeardownTimeout):
		return fmt.Errorf("supervisor %s did not stop within %s", s.id[:8], s.cfg.TeardownTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) send(ctx context.Context, cmd command, resp chan error) error {
	select {
	case s.inbox <- cmd:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		// The loop may have replied just before stopping.
		select {
		case err := <-resp:
			return err
		default:
			return ErrStopped
		}
	}
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.notify)
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()

	s.log.Info("Supervisor started")

	for {
		select {
		case cmd := <-s.inbox:
			if stop := s.handleCommand(ctx, cmd); stop {
				return
			}
		case ev, ok := <-s.client.Events():
			if !ok {
				s.finish(ctx, OutcomeUnknown, "client event stream closed")
				return
			}
			s.handleClientEvent(ctx, ev)
			if s.state == StateEnded {
				return
			}
		case <-ticker.C:
			s.watchdog(ctx)
			if s.state == StateEnded {
				return
			}
		case <-ctx.Done():
			s.shutdown(context.Background())
			return
		}
	}
}

func (s *Supervisor) handleCommand(ctx context.Context, cmd command) (stop bool) {
	switch c := cmd.(type) {
	case createLobbyCommand:
		err := s.createLobby(ctx, c.Request)
		c.Response <- err
		if err != nil {
			// A lobby that never opened leaves nothing to supervise.
			s.shutdown(ctx)
			return true
		}
	case swapCommand:
		c.Response <- s.swap(c.A, c.B)
	case replaceCommand:
		c.Response <- s.replace(c.Out, c.In)
	case changeOptionsCommand:
		c.Response <- s.changeOptions(c.Options)
	case teardownCommand:
		s.log.Info("Teardown requested")
		s.shutdown(ctx)
		c.Response <- nil
		return true
	default:
		s.log.Warnf("Unknown command type %T", cmd)
	}
	return false
}

func (s *Supervisor) createLobby(ctx context.Context, req CreateLobbyRequest) error {
	if s.state == StateInit {
		if err := s.waitReady(ctx); err != nil {
			return err
		}
	}
	if s.state != StateReady {
		return fmt.Errorf("cannot create lobby in state %s", s.state)
	}

	s.gameID = req.GameID
	s.password = req.Password
	s.roster = make(map[string]MemberTeam, len(req.Radiant)+len(req.Dire))
	for _, id := range req.Radiant {
		s.roster[id] = MemberTeamRadiant
	}
	for _, id := range req.Dire {
		s.roster[id] = MemberTeamDire
	}

	opts := req.Options
	opts.PassKey = req.Password
	if opts.GameName == "" {
		opts.GameName = fmt.Sprintf("Gargamel League Game %d", req.GameID)
	}

	if err := s.client.CreateLobby(opts); err != nil {
		return fmt.Errorf("create lobby: %w", err)
	}

	for id := range s.roster {
		if err := s.client.InviteLobbyMember(id); err != nil {
			s.logPlatformErr("invite", id, err)
		}
	}
	if err := s.client.SendLobbyMessage("Lobby password: " + req.Password); err != nil {
		s.logPlatformErr("lobby message", "", err)
	}

	s.state = StateSeating
	now := time.Now()
	s.lastActivity = now
	s.lastNudge = now
	s.log.WithFields(logrus.Fields{
		"game":    req.GameID,
		"players": len(s.roster),
	}).Info("Lobby created, waiting for players to seat")

	return nil
}

// waitReady consumes client events inline until the coordinator welcome
// arrives. No lobby exists yet so nothing else meaningful can show up.
func (s *Supervisor) waitReady(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.ReadyTimeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-s.client.Events():
			if !ok {
				return ErrNotReady
			}
			s.handleClientEvent(ctx, ev)
			if s.state == StateReady {
				return nil
			}
		case <-timer.C:
			s.log.Warnf("Client not ready after %s", s.cfg.ReadyTimeout)
			return ErrNotReady
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Supervisor) swap(a, b string) error {
	teamA, okA := s.roster[a]
	teamB, okB := s.roster[b]
	if !okA || !okB || teamA == teamB {
		return ErrNotOpposingTeams
	}

	s.roster[a], s.roster[b] = teamB, teamA

	// Knock both players back to the pool; seating enforcement reseats
	// them on their new sides.
	for _, id := range []string{a, b} {
		if s.present[id] {
			if err := s.client.KickLobbyMemberFromTeam(id); err != nil {
				s.logPlatformErr("kick for swap", id, err)
			}
		}
	}

	s.log.WithFields(logrus.Fields{"a": a, "b": b}).Info("Swapped players")
	return nil
}

func (s *Supervisor) replace(out, in string) error {
	team, ok := s.roster[out]
	if !ok {
		return ErrNotInGame
	}
	if _, ok := s.roster[in]; ok {
		return ErrPlayerAlreadyInGame
	}

	delete(s.roster, out)
	s.roster[in] = team

	if s.present[out] {
		if err := s.client.KickLobbyMemberFromTeam(out); err != nil {
			s.logPlatformErr("kick replaced player", out, err)
		}
	}
	if err := s.client.InviteLobbyMember(in); err != nil {
		s.logPlatformErr("invite replacement", in, err)
	}

	s.log.WithFields(logrus.Fields{"out": out, "in": in}).Info("Replaced player")
	return nil
}

func (s *Supervisor) changeOptions(opts map[string]interface{}) error {
	clean, err := sanitizeLobbyOptions(opts)
	if err != nil {
		return err
	}
	if len(clean) == 0 {
		return nil
	}
	if err := s.client.ApplyLobbyOptions(clean); err != nil {
		return fmt.Errorf("apply lobby options: %w", err)
	}
	s.log.WithField("options", clean).Info("Changed lobby options")
	return nil
}

func (s *Supervisor) handleClientEvent(ctx context.Context, ev ClientEvent) {
	switch e := ev.(type) {
	case ReadyEvent:
		if s.state == StateInit {
			s.state = StateReady
			s.log.Info("Client ready")
		}
	case DisconnectedEvent:
		// The client reconnects on its own; a lobby that never comes
		// back is caught by the probe counter.
		s.log.WithError(e.Err).Warn("Steam connection dropped")
	case FriendRequestEvent:
		if err := s.client.AcceptFriend(e.SteamID); err != nil {
			s.logPlatformErr("accept friend", e.SteamID, err)
			return
		}
		if _, rostered := s.roster[e.SteamID]; rostered && s.state == StateSeating {
			if err := s.client.InviteLobbyMember(e.SteamID); err != nil {
				s.logPlatformErr("invite friend", e.SteamID, err)
			}
		}
	case LobbyEvent:
		s.handleLobby(ctx, e.Snapshot)
	}
}

func (s *Supervisor) handleLobby(ctx context.Context, snap LobbySnapshot) {
	if snap.LobbyID != 0 {
		s.lobbyID = snap.LobbyID
	}
	if snap.DotaMatchID != 0 {
		s.dotaMatchID = snap.DotaMatchID
	}
	s.probeMisses = 0

	switch snap.State {
	case LobbyStateSetup:
		if s.state == StateSeating {
			s.enforceSeating(snap)
		}
	case LobbyStateRun:
		if s.state == StateSeating && !s.runningSent {
			s.runningSent = true
			s.state = StateRunning
			s.runningSince = time.Now()
			s.log.WithFields(logrus.Fields{
				"game":  s.gameID,
				"lobby": s.lobbyID,
				"match": s.dotaMatchID,
			}).Info("Game is live")
			s.notify <- LobbyRunning{
				GameID:      s.gameID,
				LobbyID:     s.lobbyID,
				DotaMatchID: s.dotaMatchID,
			}
		}
	case LobbyStatePostGame:
		if s.state == StateSeating || s.state == StateRunning {
			s.finish(ctx, snap.Outcome, "postgame")
		}
	}
}

// enforceSeating kicks anyone occupying a team slot they are not rostered
// for and launches the game once every rostered player sits correctly.
func (s *Supervisor) enforceSeating(snap LobbySnapshot) {
	present := make(map[string]bool, len(snap.Members))
	correct := 0
	sig := ""

	for _, mem := range snap.Members {
		present[mem.SteamID] = true
		sig += fmt.Sprintf("%s:%d;", mem.SteamID, mem.Team)

		if mem.Team != MemberTeamRadiant && mem.Team != MemberTeamDire {
			continue
		}
		want, rostered := s.roster[mem.SteamID]
		if !rostered || want != mem.Team {
			s.log.WithField("player", mem.SteamID).Info("Kicking wrong-seat member to pool")
			if err := s.client.KickLobbyMemberFromTeam(mem.SteamID); err != nil {
				s.logPlatformErr("kick", mem.SteamID, err)
			}
			continue
		}
		correct++
	}

	s.present = present
	if sig != s.lastSeating {
		s.lastSeating = sig
		s.lastActivity = time.Now()
	}

	if correct == len(s.roster) && correct > 0 {
		s.launchOnce.Do(func() {
			s.log.WithField("game", s.gameID).Info("All players seated, launching")
			if err := s.client.LaunchLobby(); err != nil {
				s.logPlatformErr("launch", "", err)
			}
		})
	}
}

func (s *Supervisor) watchdog(ctx context.Context) {
	now := time.Now()

	switch s.state {
	case StateSeating:
		idle := now.Sub(s.lastActivity)
		if idle >= s.cfg.HardIdle {
			s.finish(ctx, OutcomeUnknown, "lobby idle past hard limit")
			return
		}
		if idle >= s.cfg.SoftIdle && now.Sub(s.lastNudge) >= s.cfg.SoftIdle {
			s.lastNudge = now
			for id := range s.roster {
				if s.present[id] {
					continue
				}
				if err := s.client.InviteLobbyMember(id); err != nil {
					s.logPlatformErr("re-invite", id, err)
				}
			}
			s.log.Info("Lobby idle, re-invited absent players")
		}
	case StateRunning:
		if now.Sub(s.runningSince) >= s.cfg.MaxGame {
			s.finish(ctx, OutcomeUnknown, "game exceeded max duration")
			return
		}
	default:
		return
	}

	snap, err := s.client.FetchLobbySnapshot()
	if err != nil {
		s.logPlatformErr("lobby probe", "", err)
		return
	}
	if snap == nil {
		s.probeMisses++
		if s.probeMisses >= s.cfg.MaxNoLobbyProbes {
			s.finish(ctx, OutcomeUnknown, "lobby vanished")
		}
		return
	}
	s.probeMisses = 0
}

// finish emits the terminal notification exactly once and shuts down.
func (s *Supervisor) finish(ctx context.Context, outcome Outcome, reason string) {
	if s.endedSent {
		return
	}
	s.endedSent = true
	s.state = StateEnded

	s.log.WithFields(logrus.Fields{
		"game":    s.gameID,
		"outcome": outcome.String(),
		"reason":  reason,
	}).Info("Lobby ended")

	s.notify <- LobbyEnded{GameID: s.gameID, Outcome: outcome}
	s.shutdown(ctx)
}

func (s *Supervisor) shutdown(ctx context.Context) {
	if err := s.client.DestroyLobby(ctx); err != nil {
		s.logPlatformErr("destroy lobby", "", err)
	}
	if err := s.client.Close(); err != nil {
		s.log.WithError(err).Warn("Client close failed")
	}
}

func (s *Supervisor) logPlatformErr(op, subject string, err error) {
	entry := s.log.WithError(err)
	if subject != "" {
		entry = entry.WithField("player", subject)
	}
	if IsTransient(err) {
		entry.Warnf("Transient platform failure: %s", op)
		return
	}
	entry.Errorf("Platform failure: %s", op)
}
