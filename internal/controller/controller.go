package controller

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gargamel/gargamel-league/internal/matchmaker"
	"github.com/gargamel/gargamel-league/internal/rating"
	"github.com/gargamel/gargamel-league/internal/store"
	"github.com/gargamel/gargamel-league/internal/supervisor"
)

var (
	// ErrNoRating means the player has never logged in, so there is no
	// rating row to queue or substitute with.
	ErrNoRating = errors.New("player has no rating on record")

	// ErrUnknownGame means the game id does not name a live game.
	ErrUnknownGame = errors.New("unknown game")

	// ErrNotQueued means the player was not in the waiting queue.
	ErrNotQueued = errors.New("player is not queued")

	// ErrPlayerAlreadyInGame mirrors the supervisor error for callers
	// that only import this package.
	ErrPlayerAlreadyInGame = supervisor.ErrPlayerAlreadyInGame
)

// SupervisorFactory spawns a supervisor on a freshly acquired bot slot.
type SupervisorFactory interface {
	Spawn(ctx context.Context, slot int, cred supervisor.Credential) (supervisor.Handle, error)
}

// Config tunes game formation and rating updates.
type Config struct {
	TeamSize     int
	EloK         int
	GameMode     uint32
	ServerRegion uint32
	LeagueID     uint32
	AllowCheats  bool
	FormInterval time.Duration
}

// Controller owns the matchmaking queue and every live game. All state
// mutation happens on the Run goroutine; the outside world talks to it
// through Send and listens on Events.
type Controller struct {
	commands chan Command
	events   chan Event

	subMu       sync.Mutex
	subscribers []chan Event

	store   store.Store
	mm      *matchmaker.Matchmaker
	pool    *supervisor.Pool
	factory SupervisorFactory

	state *State
	cfg   Config
	rng   *rand.Rand
	log   *logrus.Logger
}

// New creates a controller. Zero config fields get league defaults.
func New(st store.Store, mm *matchmaker.Matchmaker, pool *supervisor.Pool, factory SupervisorFactory, cfg Config, rng *rand.Rand, log *logrus.Logger) *Controller {
	if cfg.TeamSize == 0 {
		cfg.TeamSize = 5
	}
	if cfg.EloK == 0 {
		cfg.EloK = rating.DefaultK
	}
	if cfg.GameMode == 0 {
		cfg.GameMode = 22 // all draft
	}
	if cfg.FormInterval == 0 {
		cfg.FormInterval = 30 * time.Second
	}
	return &Controller{
		commands: make(chan Command, 100),
		events:   make(chan Event, 100),
		store:    st,
		mm:       mm,
		pool:     pool,
		factory:  factory,
		state:    NewState(),
		cfg:      cfg,
		rng:      rng,
		log:      log,
	}
}

// Send queues a command for the controller loop.
func (c *Controller) Send(cmd Command) {
	c.commands <- cmd
}

// Events is the primary event stream.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Subscribe registers an additional event listener. Slow listeners
// lose events rather than stalling the loop.
func (c *Controller) Subscribe() <-chan Event {
	ch := make(chan Event, 100)
	c.subMu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.subMu.Unlock()
	return ch
}

// GetState asks the loop for a snapshot of the queue and live games.
func (c *Controller) GetState() StateSnapshot {
	resp := make(chan StateSnapshot, 1)
	c.Send(getStateCmd{Response: resp})
	return <-resp
}

// Run processes commands until the context is canceled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.FormInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("Controller shutting down")
			return
		case cmd := <-c.commands:
			c.handleCommand(ctx, cmd)
		case <-ticker.C:
			c.tryFormGame(ctx)
		}
	}
}

func (c *Controller) handleCommand(ctx context.Context, cmd Command) {
	switch cmd := cmd.(type) {
	case QueuePlayer:
		respond(cmd.Response, c.handleQueuePlayer(ctx, cmd.SteamID))
	case DequeuePlayer:
		respond(cmd.Response, c.handleDequeuePlayer(cmd.SteamID))
	case ClearQueue:
		respond(cmd.Response, c.handleClearQueue())
	case FormGame:
		respond(cmd.Response, c.formGame(ctx))
	case SwapPlayers:
		c.handleSwapPlayers(ctx, cmd)
	case ReplacePlayer:
		c.handleReplacePlayer(ctx, cmd)
	case ChangeMode:
		c.handleChangeMode(ctx, cmd)
	case CancelGame:
		respond(cmd.Response, c.handleCancelGame(ctx, cmd))
	case lobbyRunning:
		c.handleLobbyRunning(ctx, cmd)
	case lobbyEnded:
		c.handleLobbyEnded(ctx, cmd)
	case lobbyCreateFailed:
		c.handleLobbyCreateFailed(ctx, cmd)
	case swapApplied:
		c.handleSwapApplied(ctx, cmd)
	case replaceApplied:
		c.handleReplaceApplied(ctx, cmd)
	case getStateCmd:
		cmd.Response <- StateSnapshot{Queue: c.mm.Snapshot(), Games: c.state.view()}
	default:
		c.log.WithField("command", fmt.Sprintf("%T", cmd)).Warn("Unknown command")
	}
}

// emit fans an event out without ever blocking the loop.
func (c *Controller) emit(event Event) {
	select {
	case c.events <- event:
	default:
		c.log.WithField("event", fmt.Sprintf("%T", event)).Warn("Event channel full, dropping event")
	}
	c.subMu.Lock()
	subs := c.subscribers
	c.subMu.Unlock()
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
		}
	}
}

func respond(ch chan error, err error) {
	if ch != nil {
		ch <- err
	}
}

func (c *Controller) handleQueuePlayer(ctx context.Context, steamID string) error {
	if g := c.state.PlayerGame(steamID); g != nil {
		return ErrPlayerAlreadyInGame
	}
	playerRating, ok, err := c.store.GetRating(ctx, steamID)
	if err != nil {
		return fmt.Errorf("looking up player: %w", err)
	}
	if !ok {
		return ErrNoRating
	}
	if err := c.mm.Queue(steamID, playerRating); err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{
		"steam_id": steamID,
		"rating":   playerRating,
		"queued":   c.mm.Len(),
	}).Info("Player queued")
	c.emit(QueueUpdated{Queue: c.mm.Snapshot()})
	c.tryFormGame(ctx)
	return nil
}

func (c *Controller) handleDequeuePlayer(steamID string) error {
	if !c.mm.Dequeue(steamID) {
		return ErrNotQueued
	}
	c.log.WithField("steam_id", steamID).Info("Player left queue")
	c.emit(QueueUpdated{Queue: c.mm.Snapshot()})
	return nil
}

func (c *Controller) handleClearQueue() error {
	n := c.mm.Clear()
	c.log.WithField("removed", n).Info("Queue cleared")
	c.emit(QueueUpdated{Queue: c.mm.Snapshot()})
	return nil
}

// tryFormGame forms a game if enough players are waiting. Shortfalls
// are normal and not worth logging.
func (c *Controller) tryFormGame(ctx context.Context) {
	if c.mm.Len() < 2*c.cfg.TeamSize {
		return
	}
	if err := c.formGame(ctx); err != nil && !errors.Is(err, matchmaker.ErrNotEnoughPlayers) {
		c.log.WithError(err).Error("Failed to form game")
	}
}

func (c *Controller) formGame(ctx context.Context) error {
	prop, err := c.mm.FormMatch(c.cfg.TeamSize)
	if err != nil {
		return err
	}
	origin := append(append([]matchmaker.Player{}, prop.Radiant...), prop.Dire...)

	gameID, err := c.store.NextGameID(ctx)
	if err != nil {
		c.mm.Requeue(origin)
		return fmt.Errorf("allocating game id: %w", err)
	}

	slot, cred, err := c.pool.Acquire()
	if err != nil {
		c.mm.Requeue(origin)
		c.emit(QueueUpdated{Queue: c.mm.Snapshot()})
		c.log.WithField("game_id", gameID).Warn("No bot slot free, players requeued")
		return err
	}

	handle, err := c.factory.Spawn(ctx, slot, cred)
	if err != nil {
		c.pool.Release(slot)
		c.mm.Requeue(origin)
		c.emit(QueueUpdated{Queue: c.mm.Snapshot()})
		return fmt.Errorf("spawning supervisor: %w", err)
	}

	game := &Game{
		GameID:   gameID,
		Slot:     slot,
		Password: strconv.Itoa(1000 + c.rng.Intn(9000)),
		State:    store.MatchStatePending,
		Radiant:  c.toPlayers(ctx, prop.Radiant),
		Dire:     c.toPlayers(ctx, prop.Dire),
		FormedAt: time.Now(),
		handle:   handle,
		origin:   origin,
	}

	players := make([]store.MatchPlayer, 0, len(origin))
	for _, p := range game.Radiant {
		players = append(players, store.MatchPlayer{GameID: gameID, SteamID: p.SteamID, Team: store.TeamRadiant, RatingBefore: p.Rating})
	}
	for _, p := range game.Dire {
		players = append(players, store.MatchPlayer{GameID: gameID, SteamID: p.SteamID, Team: store.TeamDire, RatingBefore: p.Rating})
	}
	now := time.Now()
	match := &store.Match{
		GameID:       gameID,
		State:        store.MatchStatePending,
		GameMode:     int(c.cfg.GameMode),
		ServerRegion: int(c.cfg.ServerRegion),
		LobbyType:    1,
		LeagueID:     int(c.cfg.LeagueID),
		StartedAt:    now,
	}
	if err := c.store.RecordMatchStart(ctx, match, players); err != nil {
		c.pool.Release(slot)
		c.mm.Requeue(origin)
		c.emit(QueueUpdated{Queue: c.mm.Snapshot()})
		go func() {
			if terr := handle.Teardown(ctx); terr != nil {
				c.log.WithError(terr).Warn("Teardown after failed match record")
			}
		}()
		return fmt.Errorf("recording match: %w", err)
	}

	c.state.Games[gameID] = game
	c.log.WithFields(logrus.Fields{
		"game_id": gameID,
		"slot":    slot,
		"score":   prop.Score,
	}).Info("Game formed")
	c.emit(GameFormed{GameID: gameID, Radiant: game.Radiant, Dire: game.Dire, Password: game.Password, Waited: prop.Waited})
	c.emit(QueueUpdated{Queue: c.mm.Snapshot()})

	req := supervisor.CreateLobbyRequest{
		GameID:   gameID,
		Password: game.Password,
		Radiant:  steamIDs(game.Radiant),
		Dire:     steamIDs(game.Dire),
		Options: supervisor.LobbyOptions{
			GameName:        fmt.Sprintf("Gargamel League Game %d", gameID),
			PassKey:         game.Password,
			ServerRegion:    c.cfg.ServerRegion,
			GameMode:        c.cfg.GameMode,
			LeagueID:        c.cfg.LeagueID,
			AllowCheats:     c.cfg.AllowCheats,
			AllowSpectating: true,
		},
	}
	go c.runLobby(ctx, gameID, handle, req)
	return nil
}

// runLobby drives one supervisor from its own goroutine so the loop
// never blocks on lobby creation. Everything it learns comes back in
// as internal commands.
func (c *Controller) runLobby(ctx context.Context, gameID int64, handle supervisor.Handle, req supervisor.CreateLobbyRequest) {
	if err := handle.CreateLobby(ctx, req); err != nil {
		c.Send(lobbyCreateFailed{GameID: gameID, Err: err})
		return
	}
	for n := range handle.Notifications() {
		switch n := n.(type) {
		case supervisor.LobbyRunning:
			c.Send(lobbyRunning{GameID: gameID, LobbyID: n.LobbyID, DotaMatchID: n.DotaMatchID})
		case supervisor.LobbyEnded:
			c.Send(lobbyEnded{GameID: gameID, Outcome: n.Outcome})
		}
	}
}

func (c *Controller) handleLobbyCreateFailed(ctx context.Context, cmd lobbyCreateFailed) {
	game, ok := c.state.Games[cmd.GameID]
	if !ok {
		c.log.WithField("game_id", cmd.GameID).Warn("Create failure for unknown game, dropping")
		return
	}
	c.log.WithError(cmd.Err).WithField("game_id", cmd.GameID).Error("Lobby creation failed, requeuing players")

	delete(c.state.Games, cmd.GameID)
	c.pool.Release(game.Slot)
	c.mm.Requeue(game.origin)
	if err := c.store.FinalizeMatch(ctx, cmd.GameID, store.TeamNone, store.MatchStateCanceled); err != nil {
		c.log.WithError(err).WithField("game_id", cmd.GameID).Error("Failed to cancel match record")
	}
	c.emit(GameCanceled{GameID: cmd.GameID, Requeued: true})
	c.emit(QueueUpdated{Queue: c.mm.Snapshot()})
}

func (c *Controller) handleLobbyRunning(ctx context.Context, cmd lobbyRunning) {
	game, ok := c.state.Games[cmd.GameID]
	if !ok || game.State != store.MatchStatePending {
		c.log.WithField("game_id", cmd.GameID).Warn("Stale running notification, dropping")
		return
	}
	game.State = store.MatchStateRunning
	game.LobbyID = cmd.LobbyID
	game.DotaMatchID = cmd.DotaMatchID
	if err := c.store.SetMatchRunning(ctx, cmd.GameID, cmd.LobbyID, cmd.DotaMatchID); err != nil {
		c.log.WithError(err).WithField("game_id", cmd.GameID).Error("Failed to mark match running")
	}
	c.log.WithFields(logrus.Fields{
		"game_id":       cmd.GameID,
		"dota_match_id": cmd.DotaMatchID,
	}).Info("Game running")
	c.emit(GameRunning{GameID: cmd.GameID, LobbyID: cmd.LobbyID, DotaMatchID: cmd.DotaMatchID})
}

func (c *Controller) handleLobbyEnded(ctx context.Context, cmd lobbyEnded) {
	game, ok := c.state.Games[cmd.GameID]
	if !ok {
		c.log.WithField("game_id", cmd.GameID).Warn("Stale ended notification, dropping")
		return
	}
	delete(c.state.Games, cmd.GameID)
	c.pool.Release(game.Slot)

	winner := store.TeamNone
	newRatings := map[string]int{}
	switch cmd.Outcome {
	case supervisor.OutcomeRadiantWin, supervisor.OutcomeDireWin:
		winner = cmd.Outcome.String()
		newRatings = c.applyRatings(ctx, game, cmd.Outcome)
	default:
		c.log.WithField("game_id", cmd.GameID).Warn("Game ended without a result, ratings unchanged")
	}
	if err := c.store.FinalizeMatch(ctx, cmd.GameID, winner, store.MatchStateEnded); err != nil {
		c.log.WithError(err).WithField("game_id", cmd.GameID).Error("Failed to finalize match")
	}
	c.log.WithFields(logrus.Fields{
		"game_id": cmd.GameID,
		"winner":  winner,
	}).Info("Game ended")
	c.emit(GameEnded{
		GameID:      cmd.GameID,
		WinningTeam: winner,
		DotaMatchID: game.DotaMatchID,
		Radiant:     game.Radiant,
		Dire:        game.Dire,
		NewRatings:  newRatings,
	})
}

// applyRatings computes and persists the Elo update for a decided game.
// Ratings are re-read from the store first so an admin correction made
// while the game ran feeds into the math. Every player on a team moves
// by the same amount.
func (c *Controller) applyRatings(ctx context.Context, game *Game, outcome supervisor.Outcome) map[string]int {
	radiantNow := c.currentRatings(ctx, game.Radiant)
	direNow := c.currentRatings(ctx, game.Dire)

	radiantMean := rating.PowerMean(radiantNow, rating.PowerMeanP)
	direMean := rating.PowerMean(direNow, rating.PowerMeanP)
	expected := rating.Expected(radiantMean, direMean)

	radiantScore := 0.0
	if outcome == supervisor.OutcomeRadiantWin {
		radiantScore = 1.0
	}

	updated := make(map[string]int, len(game.Radiant)+len(game.Dire))
	for i, p := range game.Radiant {
		updated[p.SteamID] = rating.Updated(radiantNow[i], c.cfg.EloK, radiantScore, expected)
	}
	for i, p := range game.Dire {
		updated[p.SteamID] = rating.Updated(direNow[i], c.cfg.EloK, 1-radiantScore, 1-expected)
	}
	if err := c.store.SetRatingsForMatch(ctx, game.GameID, updated); err != nil {
		c.log.WithError(err).WithField("game_id", game.GameID).Error("Failed to persist ratings")
	}
	return updated
}

// currentRatings reads each player's stored rating, falling back to the
// rating they carried into the game when the lookup fails.
func (c *Controller) currentRatings(ctx context.Context, team []Player) []int {
	out := make([]int, len(team))
	for i, p := range team {
		out[i] = p.Rating
		if r, ok, err := c.store.GetRating(ctx, p.SteamID); err != nil {
			c.log.WithError(err).WithField("steam_id", p.SteamID).Warn("Rating lookup failed, using rating at game start")
		} else if ok {
			out[i] = r
		}
	}
	return out
}

func (c *Controller) handleSwapPlayers(ctx context.Context, cmd SwapPlayers) {
	game, ok := c.state.Games[cmd.GameID]
	if !ok {
		respond(cmd.Response, ErrUnknownGame)
		return
	}
	teamA, teamB := game.teamOf(cmd.A), game.teamOf(cmd.B)
	if teamA == "" || teamB == "" || teamA == teamB {
		respond(cmd.Response, supervisor.ErrNotOpposingTeams)
		return
	}
	handle := game.handle
	go func() {
		err := handle.Swap(ctx, cmd.A, cmd.B)
		if err == nil {
			c.Send(swapApplied{GameID: cmd.GameID, A: cmd.A, B: cmd.B})
		}
		respond(cmd.Response, err)
	}()
}

func (c *Controller) handleSwapApplied(ctx context.Context, cmd swapApplied) {
	game, ok := c.state.Games[cmd.GameID]
	if !ok {
		c.log.WithField("game_id", cmd.GameID).Warn("Swap applied to a game that already ended")
		return
	}
	swapRosterSlots(game, cmd.A, cmd.B)
	if err := c.store.SwapMatchPlayerTeams(ctx, cmd.GameID, cmd.A, cmd.B); err != nil {
		c.log.WithError(err).WithField("game_id", cmd.GameID).Error("Failed to persist swap")
	}
	c.log.WithFields(logrus.Fields{
		"game_id": cmd.GameID,
		"a":       cmd.A,
		"b":       cmd.B,
	}).Info("Players swapped")
}

func (c *Controller) handleReplacePlayer(ctx context.Context, cmd ReplacePlayer) {
	game, ok := c.state.Games[cmd.GameID]
	if !ok {
		respond(cmd.Response, ErrUnknownGame)
		return
	}
	if game.teamOf(cmd.Out) == "" {
		respond(cmd.Response, supervisor.ErrNotInGame)
		return
	}
	if g := c.state.PlayerGame(cmd.In); g != nil {
		respond(cmd.Response, ErrPlayerAlreadyInGame)
		return
	}
	user, err := c.store.GetUser(ctx, cmd.In)
	if err != nil {
		respond(cmd.Response, fmt.Errorf("looking up substitute: %w", err))
		return
	}
	if user == nil {
		respond(cmd.Response, ErrNoRating)
		return
	}
	// A substitute entering a game leaves the waiting queue.
	if c.mm.Dequeue(cmd.In) {
		c.emit(QueueUpdated{Queue: c.mm.Snapshot()})
	}

	in := Player{SteamID: user.SteamID, Name: user.Name, Rating: user.Rating}
	handle := game.handle
	go func() {
		err := handle.Replace(ctx, cmd.Out, cmd.In)
		if err == nil {
			c.Send(replaceApplied{GameID: cmd.GameID, Out: cmd.Out, In: in})
		}
		respond(cmd.Response, err)
	}()
}

func (c *Controller) handleReplaceApplied(ctx context.Context, cmd replaceApplied) {
	game, ok := c.state.Games[cmd.GameID]
	if !ok {
		c.log.WithField("game_id", cmd.GameID).Warn("Replace applied to a game that already ended")
		return
	}
	team := game.teamOf(cmd.Out)
	replaceRosterSlot(game, cmd.Out, cmd.In)
	if err := c.store.ReplaceMatchPlayer(ctx, cmd.GameID, cmd.Out, store.MatchPlayer{
		GameID:       cmd.GameID,
		SteamID:      cmd.In.SteamID,
		Team:         team,
		RatingBefore: cmd.In.Rating,
	}); err != nil {
		c.log.WithError(err).WithField("game_id", cmd.GameID).Error("Failed to persist replacement")
	}
	c.log.WithFields(logrus.Fields{
		"game_id": cmd.GameID,
		"out":     cmd.Out,
		"in":      cmd.In.SteamID,
	}).Info("Player replaced")
}

func (c *Controller) handleChangeMode(ctx context.Context, cmd ChangeMode) {
	game, ok := c.state.Games[cmd.GameID]
	if !ok {
		respond(cmd.Response, ErrUnknownGame)
		return
	}
	handle := game.handle
	go func() {
		respond(cmd.Response, handle.ChangeOptions(ctx, cmd.Options))
	}()
}

func (c *Controller) handleCancelGame(ctx context.Context, cmd CancelGame) error {
	game, ok := c.state.Games[cmd.GameID]
	if !ok {
		return ErrUnknownGame
	}
	// Removing the game first makes any notification that races in
	// afterwards stale, so it gets dropped instead of double-counted.
	delete(c.state.Games, cmd.GameID)
	c.pool.Release(game.Slot)

	if cmd.Requeue {
		now := time.Now()
		players := make([]matchmaker.Player, 0, len(game.Radiant)+len(game.Dire))
		for _, p := range game.roster() {
			players = append(players, matchmaker.Player{SteamID: p.SteamID, Rating: p.Rating, JoinedAt: now})
		}
		c.mm.Requeue(players)
	}
	if err := c.store.FinalizeMatch(ctx, cmd.GameID, store.TeamNone, store.MatchStateCanceled); err != nil {
		c.log.WithError(err).WithField("game_id", cmd.GameID).Error("Failed to cancel match record")
	}
	handle := game.handle
	go func() {
		if err := handle.Teardown(ctx); err != nil && !errors.Is(err, supervisor.ErrStopped) {
			c.log.WithError(err).WithField("game_id", cmd.GameID).Warn("Teardown error on cancel")
		}
	}()

	c.log.WithFields(logrus.Fields{
		"game_id": cmd.GameID,
		"requeue": cmd.Requeue,
	}).Info("Game canceled")
	c.emit(GameCanceled{GameID: cmd.GameID, Requeued: cmd.Requeue})
	c.emit(QueueUpdated{Queue: c.mm.Snapshot()})
	return nil
}

// toPlayers resolves display names for a formed team. A missing name is
// cosmetic, so lookup failures only log.
func (c *Controller) toPlayers(ctx context.Context, team []matchmaker.Player) []Player {
	out := make([]Player, 0, len(team))
	for _, p := range team {
		name := ""
		if user, err := c.store.GetUser(ctx, p.SteamID); err == nil && user != nil {
			name = user.Name
		} else if err != nil {
			c.log.WithError(err).WithField("steam_id", p.SteamID).Warn("Name lookup failed")
		}
		out = append(out, Player{SteamID: p.SteamID, Name: name, Rating: p.Rating})
	}
	return out
}

func steamIDs(players []Player) []string {
	out := make([]string, len(players))
	for i, p := range players {
		out[i] = p.SteamID
	}
	return out
}

func swapRosterSlots(g *Game, a, b string) {
	ai, aTeam := rosterIndex(g, a)
	bi, bTeam := rosterIndex(g, b)
	if ai < 0 || bi < 0 || aTeam == bTeam {
		return
	}
	if aTeam == store.TeamRadiant {
		g.Radiant[ai], g.Dire[bi] = g.Dire[bi], g.Radiant[ai]
	} else {
		g.Dire[ai], g.Radiant[bi] = g.Radiant[bi], g.Dire[ai]
	}
}

func replaceRosterSlot(g *Game, out string, in Player) {
	if i, team := rosterIndex(g, out); i >= 0 {
		if team == store.TeamRadiant {
			g.Radiant[i] = in
		} else {
			g.Dire[i] = in
		}
	}
}

func rosterIndex(g *Game, steamID string) (int, string) {
	for i, p := range g.Radiant {
		if p.SteamID == steamID {
			return i, store.TeamRadiant
		}
	}
	for i, p := range g.Dire {
		if p.SteamID == steamID {
			return i, store.TeamDire
		}
	}
	return -1, ""
}
