// Package dota drives a Steam account and its Dota 2 game coordinator
// session, exposing them as a supervisor.LobbyClient.
package dota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/paralin/go-dota2"
	"github.com/paralin/go-dota2/cso"
	devents "github.com/paralin/go-dota2/events"
	"github.com/paralin/go-dota2/protocol"
	"github.com/paralin/go-steam"
	"github.com/paralin/go-steam/protocol/steamlang"
	"github.com/paralin/go-steam/steamid"
	"github.com/sirupsen/logrus"

	"github.com/gargamel/gargamel-league/internal/supervisor"
)

const (
	dotaAppID        = 570
	gcKeepaliveEvery = 55 * time.Second
	gcBootstrapDelay = 10 * time.Second
	reconnectBackoff = 5 * time.Second
)

// Client is the production LobbyClient. One client owns one Steam
// connection and at most one practice lobby.
type Client struct {
	username string
	password string
	log      *logrus.Entry

	steam *steam.Client

	events chan supervisor.ClientEvent

	mu       sync.Mutex
	dota     *dota2.Dota2
	lobby    *protocol.CSODOTALobby
	welcomed bool
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc

	dotaOnce      sync.Once
	keepaliveOnce sync.Once
}

// NewClient prepares a client for one Steam account. Nothing connects
// until Connect is called.
func NewClient(username, password string, log *logrus.Logger) *Client {
	return &Client{
		username: username,
		password: password,
		log:      log.WithField("account", username),
		steam:    steam.NewClient(),
		events:   make(chan supervisor.ClientEvent, 64),
	}
}

// Connect starts the Steam logon flow. Readiness is reported with a
// ReadyEvent once the game coordinator has welcomed the session.
func (c *Client) Connect(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	go c.eventLoop()
	c.steam.Connect()
	return nil
}

// Events returns the stream the supervisor consumes.
func (c *Client) Events() <-chan supervisor.ClientEvent {
	return c.events
}

func (c *Client) emit(ev supervisor.ClientEvent) {
	select {
	case c.events <- ev:
	default:
		c.log.WithField("event", fmt.Sprintf("%T", ev)).Warn("Client event channel full, dropping")
	}
}

func (c *Client) eventLoop() {
	for event := range c.steam.Events() {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		switch e := event.(type) {
		case *steam.ConnectedEvent:
			c.log.Info("Connected to Steam, logging on")
			c.steam.Auth.LogOn(&steam.LogOnDetails{
				Username: c.username,
				Password: c.password,
			})

		case *steam.LoggedOnEvent:
			c.log.Info("Logged on")
			c.steam.Social.SetPersonaState(steamlang.EPersonaState_Online)
			c.steam.GC.SetGamesPlayed(dotaAppID)
			c.dotaOnce.Do(func() { go c.bootstrapDota() })

		case *devents.ClientWelcomed:
			c.log.Info("Game coordinator session established")
			c.mu.Lock()
			c.welcomed = true
			c.mu.Unlock()
			c.keepaliveOnce.Do(func() { go c.keepalive() })
			c.emit(supervisor.ReadyEvent{})

		case *devents.GCConnectionStatusChanged:
			c.handleGCStatus(e)

		case *steam.FriendStateEvent:
			if e.Relationship == steamlang.EFriendRelationship_RequestRecipient {
				c.emit(supervisor.FriendRequestEvent{
					SteamID: strconv.FormatUint(e.SteamId.ToUint64(), 10),
				})
			}

		case *steam.DisconnectedEvent:
			c.log.Warn("Disconnected from Steam")
			c.mu.Lock()
			c.welcomed = false
			closed := c.closed
			c.mu.Unlock()
			c.emit(supervisor.DisconnectedEvent{})
			if !closed {
				go c.reconnect()
			}

		case error:
			c.log.WithError(e).Warn("Steam client error")
		}
	}
}

// bootstrapDota waits for the Steam session to settle, then greets the
// game coordinator and subscribes to the shared lobby object.
func (c *Client) bootstrapDota() {
	select {
	case <-time.After(gcBootstrapDelay):
	case <-c.ctx.Done():
		return
	}

	gcLog := logrus.New()
	gcLog.SetLevel(logrus.WarnLevel)
	d := dota2.New(c.steam, gcLog)
	c.mu.Lock()
	c.dota = d
	c.mu.Unlock()

	d.SetPlaying(true)
	time.Sleep(time.Second)
	d.SayHello()

	eventCh, eventCancel, err := d.GetCache().SubscribeType(cso.Lobby)
	if err != nil {
		c.log.WithError(err).Error("Failed to subscribe to lobby cache")
		return
	}

	go func() {
		defer eventCancel()
		for {
			select {
			case <-c.ctx.Done():
				return
			case lobbyEvent, ok := <-eventCh:
				if !ok {
					return
				}
				lobby, ok := lobbyEvent.Object.(*protocol.CSODOTALobby)
				if !ok {
					continue
				}
				c.mu.Lock()
				c.lobby = lobby
				c.mu.Unlock()
				c.emit(supervisor.LobbyEvent{Snapshot: snapshotFromLobby(lobby)})
			}
		}
	}()
}

// keepalive pings the game coordinator so the session survives past
// Valve's idle timeout.
func (c *Client) keepalive() {
	ticker := time.NewTicker(gcKeepaliveEvery)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			d := c.dota
			welcomed := c.welcomed
			c.mu.Unlock()
			if d != nil && welcomed {
				d.SayHello()
			}
		}
	}
}

func (c *Client) handleGCStatus(e *devents.GCConnectionStatusChanged) {
	haveSession := protocol.GCConnectionStatus_GCConnectionStatus_HAVE_SESSION
	if e.OldState == haveSession && e.NewState != haveSession {
		c.log.Warn("Lost game coordinator session, greeting again")
		c.mu.Lock()
		c.welcomed = false
		d := c.dota
		c.mu.Unlock()
		if d != nil {
			go func() {
				time.Sleep(2 * time.Second)
				d.SetPlaying(true)
				time.Sleep(time.Second)
				d.SayHello()
			}()
		}
	}
}

func (c *Client) reconnect() {
	select {
	case <-time.After(reconnectBackoff):
	case <-c.ctx.Done():
		return
	}
	c.log.Info("Reconnecting to Steam")
	c.steam.Connect()
}

func (c *Client) client() (*dota2.Dota2, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dota == nil || !c.welcomed {
		return nil, &supervisor.PlatformError{
			Op:        "gc session",
			Err:       errors.New("game coordinator not ready"),
			Transient: true,
		}
	}
	return c.dota, nil
}

// CreateLobby leaves any stale lobby, opens a fresh one with the given
// options and parks the bot in the unassigned pool.
func (c *Client) CreateLobby(opts supervisor.LobbyOptions) error {
	d, err := c.client()
	if err != nil {
		return err
	}

	details := &protocol.CMsgPracticeLobbySetDetails{
		GameName:        proto.String(opts.GameName),
		PassKey:         proto.String(opts.PassKey),
		ServerRegion:    proto.Uint32(opts.ServerRegion),
		GameMode:        proto.Uint32(opts.GameMode),
		AllowCheats:     proto.Bool(opts.AllowCheats),
		AllowSpectating: proto.Bool(opts.AllowSpectating),
		FillWithBots:    proto.Bool(false),
		Allchat:         proto.Bool(true),
		Visibility:      protocol.DOTALobbyVisibility(opts.Visibility).Enum(),
		PauseSetting:    protocol.LobbyDotaPauseSetting_LobbyDotaPauseSetting_Limited.Enum(),
		DotaTvDelay:     protocol.LobbyDotaTVDelay_LobbyDotaTV_10.Enum(),
	}
	if opts.LeagueID != 0 {
		details.Leagueid = proto.Uint32(opts.LeagueID)
	}

	if err := d.LeaveCreateLobby(c.ctx, details, true); err != nil {
		return &supervisor.PlatformError{Op: "create lobby", Err: err}
	}
	d.JoinLobbyTeam(protocol.DOTA_GC_TEAM_DOTA_GC_TEAM_PLAYER_POOL, 1)
	return nil
}

// ApplyLobbyOptions overlays validated settings onto the current lobby
// and resends the details message. Unknown values were rejected by the
// supervisor; keys without a details field are skipped with a log line.
func (c *Client) ApplyLobbyOptions(opts map[string]interface{}) error {
	d, err := c.client()
	if err != nil {
		return err
	}

	c.mu.Lock()
	lobby := c.lobby
	c.mu.Unlock()
	if lobby == nil {
		return &supervisor.PlatformError{Op: "apply options", Err: errors.New("no lobby"), Transient: true}
	}

	details := &protocol.CMsgPracticeLobbySetDetails{
		LobbyId:      proto.Uint64(lobby.GetLobbyId()),
		GameName:     proto.String(lobby.GetGameName()),
		PassKey:      proto.String(lobby.GetPassKey()),
		ServerRegion: proto.Uint32(lobby.GetServerRegion()),
		GameMode:     proto.Uint32(lobby.GetGameMode()),
		AllowCheats:  proto.Bool(lobby.GetAllowCheats()),
	}

	for key, value := range opts {
		switch key {
		case "game_name":
			details.GameName = proto.String(value.(string))
		case "pass_key":
			details.PassKey = proto.String(value.(string))
		case "server_region":
			details.ServerRegion = proto.Uint32(value.(uint32))
		case "game_mode":
			details.GameMode = proto.Uint32(value.(uint32))
		case "allow_cheats":
			details.AllowCheats = proto.Bool(value.(bool))
		case "fill_with_bots":
			details.FillWithBots = proto.Bool(value.(bool))
		case "allow_spectating":
			details.AllowSpectating = proto.Bool(value.(bool))
		case "allchat":
			details.Allchat = proto.Bool(value.(bool))
		case "visibility":
			details.Visibility = protocol.DOTALobbyVisibility(value.(uint32)).Enum()
		case "cm_pick":
			details.CmPick = protocol.DOTA_CM_PICK(value.(uint32)).Enum()
		case "series_type":
			details.SeriesType = proto.Uint32(value.(uint32))
		case "dota_tv_delay":
			details.DotaTvDelay = protocol.LobbyDotaTVDelay(value.(uint32)).Enum()
		case "pause_setting":
			details.PauseSetting = protocol.LobbyDotaPauseSetting(value.(uint32)).Enum()
		case "league_id", "leagueid":
			details.Leagueid = proto.Uint32(value.(uint32))
		default:
			c.log.WithField("key", key).Info("Lobby option has no details field, skipping")
		}
	}

	d.SetLobbyDetails(details)
	return nil
}

// InviteLobbyMember invites a player by 64-bit Steam ID.
func (c *Client) InviteLobbyMember(steamID string) error {
	d, err := c.client()
	if err != nil {
		return err
	}
	id, err := strconv.ParseUint(steamID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid steam id %q: %w", steamID, err)
	}
	d.InviteLobbyMember(steamid.SteamId(id))
	return nil
}

// KickLobbyMemberFromTeam moves a player back to the unassigned pool.
// The kick message addresses members by account ID, the low half of the
// 64-bit Steam ID.
func (c *Client) KickLobbyMemberFromTeam(steamID string) error {
	d, err := c.client()
	if err != nil {
		return err
	}
	id, err := strconv.ParseUint(steamID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid steam id %q: %w", steamID, err)
	}
	d.KickLobbyMemberFromTeam(uint32(id & 0xFFFFFFFF))
	return nil
}

// LaunchLobby starts the game.
func (c *Client) LaunchLobby() error {
	d, err := c.client()
	if err != nil {
		return err
	}
	d.LaunchLobby()
	return nil
}

// SendLobbyMessage posts to the lobby chat channel.
func (c *Client) SendLobbyMessage(text string) error {
	d, err := c.client()
	if err != nil {
		return err
	}
	c.mu.Lock()
	lobby := c.lobby
	c.mu.Unlock()
	if lobby == nil || lobby.GetLobbyId() == 0 {
		return &supervisor.PlatformError{Op: "lobby chat", Err: errors.New("no lobby"), Transient: true}
	}
	d.SendChannelMessage(lobby.GetLobbyId(), text)
	return nil
}

// AcceptFriend accepts an incoming friend request by adding back.
func (c *Client) AcceptFriend(steamID string) error {
	id, err := strconv.ParseUint(steamID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid steam id %q: %w", steamID, err)
	}
	c.steam.Social.AddFriend(steamid.SteamId(id))
	return nil
}

// FetchLobbySnapshot returns the last lobby object seen from the cache.
// (nil, nil) means the client currently has no lobby.
func (c *Client) FetchLobbySnapshot() (*supervisor.LobbySnapshot, error) {
	c.mu.Lock()
	lobby := c.lobby
	c.mu.Unlock()
	if lobby == nil {
		return nil, nil
	}
	snap := snapshotFromLobby(lobby)
	return &snap, nil
}

// DestroyLobby tears the lobby down and clears the cached object.
func (c *Client) DestroyLobby(ctx context.Context) error {
	d, err := c.client()
	if err != nil {
		return err
	}
	if _, derr := d.DestroyLobby(ctx); derr != nil {
		return &supervisor.PlatformError{Op: "destroy lobby", Err: derr}
	}
	c.mu.Lock()
	c.lobby = nil
	c.mu.Unlock()
	return nil
}

// Close disconnects from Steam. The client cannot be reused.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	d := c.dota
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if d != nil {
		d.SetPlaying(false)
	}
	c.steam.Disconnect()
	return nil
}

// snapshotFromLobby translates the shared lobby object into the
// supervisor's view of it.
func snapshotFromLobby(lobby *protocol.CSODOTALobby) supervisor.LobbySnapshot {
	snap := supervisor.LobbySnapshot{
		LobbyID:     lobby.GetLobbyId(),
		State:       lobbyState(lobby.GetState()),
		DotaMatchID: lobby.GetMatchId(),
		Outcome:     lobbyOutcome(lobby.GetMatchOutcome()),
	}
	for _, member := range lobby.GetAllMembers() {
		if member.GetId() == 0 {
			continue
		}
		snap.Members = append(snap.Members, supervisor.LobbyMember{
			SteamID: strconv.FormatUint(member.GetId(), 10),
			Team:    memberTeam(member.GetTeam()),
			Slot:    int(member.GetSlot()),
		})
	}
	return snap
}

func lobbyState(state protocol.CSODOTALobby_State) supervisor.LobbyState {
	switch state {
	case protocol.CSODOTALobby_RUN:
		return supervisor.LobbyStateRun
	case protocol.CSODOTALobby_POSTGAME:
		return supervisor.LobbyStatePostGame
	default:
		return supervisor.LobbyStateSetup
	}
}

func memberTeam(team protocol.DOTA_GC_TEAM) supervisor.MemberTeam {
	switch team {
	case protocol.DOTA_GC_TEAM_DOTA_GC_TEAM_GOOD_GUYS:
		return supervisor.MemberTeamRadiant
	case protocol.DOTA_GC_TEAM_DOTA_GC_TEAM_BAD_GUYS:
		return supervisor.MemberTeamDire
	case protocol.DOTA_GC_TEAM_DOTA_GC_TEAM_PLAYER_POOL:
		return supervisor.MemberTeamPool
	default:
		return supervisor.MemberTeamSpectator
	}
}

func lobbyOutcome(outcome protocol.EMatchOutcome) supervisor.Outcome {
	switch outcome {
	case protocol.EMatchOutcome_k_EMatchOutcome_RadVictory:
		return supervisor.OutcomeRadiantWin
	case protocol.EMatchOutcome_k_EMatchOutcome_DireVictory:
		return supervisor.OutcomeDireWin
	default:
		return supervisor.OutcomeUnknown
	}
}
