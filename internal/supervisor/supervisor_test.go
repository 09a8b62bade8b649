package supervisor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gargamel/gargamel-league/internal/supervisor"
)

// fakeClient records every platform call and lets tests feed events in.
type fakeClient struct {
	mu       sync.Mutex
	events   chan supervisor.ClientEvent
	created  []supervisor.LobbyOptions
	invited  []string
	kicked   []string
	messages []string
	accepted []string
	applied  []map[string]interface{}
	launched int
	destroys int
	closed   bool

	createErr error
	snapshot  *supervisor.LobbySnapshot
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan supervisor.ClientEvent, 64)}
}

func (f *fakeClient) Connect(ctx context.Context) error            { return nil }
func (f *fakeClient) Events() <-chan supervisor.ClientEvent        { return f.events }
func (f *fakeClient) emit(ev supervisor.ClientEvent)               { f.events <- ev }

func (f *fakeClient) CreateLobby(opts supervisor.LobbyOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, opts)
	return nil
}

func (f *fakeClient) ApplyLobbyOptions(opts map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, opts)
	return nil
}

func (f *fakeClient) InviteLobbyMember(steamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invited = append(f.invited, steamID)
	return nil
}

func (f *fakeClient) KickLobbyMemberFromTeam(steamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicked = append(f.kicked, steamID)
	return nil
}

func (f *fakeClient) LaunchLobby() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launched++
	return nil
}

func (f *fakeClient) SendLobbyMessage(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeClient) AcceptFriend(steamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, steamID)
	return nil
}

func (f *fakeClient) FetchLobbySnapshot() (*supervisor.LobbySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, nil
}

func (f *fakeClient) DestroyLobby(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroys++
	return nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeClient) launchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launched
}

func (f *fakeClient) kickedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.kicked...)
}

func (f *fakeClient) invitedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.invited...)
}

func (f *fakeClient) acceptedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.accepted...)
}

func (f *fakeClient) appliedOptions() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}{}, f.applied...)
}

func (f *fakeClient) firstCreated() (supervisor.LobbyOptions, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return supervisor.LobbyOptions{}, false
	}
	return f.created[0], true
}

func (f *fakeClient) destroyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroys
}

func (f *fakeClient) setSnapshot(snap *supervisor.LobbySnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = snap
}

func quietConfig() supervisor.Config {
	cfg := supervisor.DefaultConfig()
	cfg.ReadyTimeout = time.Second
	cfg.ProbeInterval = time.Hour // keep the watchdog out of the way
	cfg.TeardownTimeout = time.Second
	return cfg
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func startSupervisor(t *testing.T, client *fakeClient, cfg supervisor.Config) *supervisor.Supervisor {
	t.Helper()
	sup := supervisor.New(client, cfg, testLogger())
	require.NoError(t, sup.Start(context.Background()))
	return sup
}

func createTestLobby(t *testing.T, sup *supervisor.Supervisor, client *fakeClient) {
	t.Helper()
	client.emit(supervisor.ReadyEvent{})
	err := sup.CreateLobby(context.Background(), supervisor.CreateLobbyRequest{
		GameID:   42,
		Password: "1234",
		Radiant:  []string{"r1", "r2"},
		Dire:     []string{"d1", "d2"},
		Options:  supervisor.LobbyOptions{GameMode: 22, ServerRegion: 2},
	})
	require.NoError(t, err)
}

func waitNotification(t *testing.T, sup *supervisor.Supervisor, timeout time.Duration) supervisor.Notification {
	t.Helper()
	select {
	case n, ok := <-sup.Notifications():
		require.True(t, ok, "notification channel closed")
		return n
	case <-time.After(timeout):
		t.Fatal("timed out waiting for notification")
		return nil
	}
}

func seated(id string, team supervisor.MemberTeam) supervisor.LobbyMember {
	return supervisor.LobbyMember{SteamID: id, Team: team}
}

func setupSnapshot(members ...supervisor.LobbyMember) supervisor.LobbyEvent {
	return supervisor.LobbyEvent{Snapshot: supervisor.LobbySnapshot{
		LobbyID: 777,
		State:   supervisor.LobbyStateSetup,
		Members: members,
	}}
}

func TestCreateLobbyNotReady(t *testing.T) {
	client := newFakeClient()
	cfg := quietConfig()
	cfg.ReadyTimeout = 50 * time.Millisecond
	sup := startSupervisor(t, client, cfg)

	err := sup.CreateLobby(context.Background(), supervisor.CreateLobbyRequest{GameID: 1, Password: "1000"})
	assert.ErrorIs(t, err, supervisor.ErrNotReady)

	// The supervisor stops after a failed create.
	assert.NoError(t, sup.Teardown(context.Background()))
	err = sup.CreateLobby(context.Background(), supervisor.CreateLobbyRequest{GameID: 1, Password: "1000"})
	assert.ErrorIs(t, err, supervisor.ErrStopped)
}

func TestLobbyLifecycle(t *testing.T) {
	client := newFakeClient()
	sup := startSupervisor(t, client, quietConfig())
	createTestLobby(t, sup, client)

	opts, ok := client.firstCreated()
	require.True(t, ok)
	assert.Equal(t, "1234", opts.PassKey)
	assert.Equal(t, "Gargamel League Game 42", opts.GameName)
	assert.Equal(t, uint32(22), opts.GameMode)

	assert.ElementsMatch(t, []string{"r1", "r2", "d1", "d2"}, client.invitedIDs())
	assert.Contains(t, client.messages, "Lobby password: 1234")

	// An intruder on radiant and a rostered player on the wrong side both
	// get kicked back to the pool.
	client.emit(setupSnapshot(
		seated("r1", supervisor.MemberTeamRadiant),
		seated("intruder", supervisor.MemberTeamRadiant),
		seated("d1", supervisor.MemberTeamRadiant),
	))
	require.Eventually(t, func() bool {
		kicked := client.kickedIDs()
		return contains(kicked, "intruder") && contains(kicked, "d1")
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, client.launchCount())

	// Everyone seated correctly: launch exactly once, also across
	// repeated correct snapshots.
	full := setupSnapshot(
		seated("r1", supervisor.MemberTeamRadiant),
		seated("r2", supervisor.MemberTeamRadiant),
		seated("d1", supervisor.MemberTeamDire),
		seated("d2", supervisor.MemberTeamDire),
		seated("watcher", supervisor.MemberTeamSpectator),
	)
	client.emit(full)
	client.emit(full)
	require.Eventually(t, func() bool { return client.launchCount() == 1 }, time.Second, 5*time.Millisecond)

	client.emit(supervisor.LobbyEvent{Snapshot: supervisor.LobbySnapshot{
		LobbyID:     777,
		State:       supervisor.LobbyStateRun,
		DotaMatchID: 999888,
	}})

	n := waitNotification(t, sup, time.Second)
	running, ok := n.(supervisor.LobbyRunning)
	require.True(t, ok, "expected LobbyRunning, got %T", n)
	assert.Equal(t, int64(42), running.GameID)
	assert.Equal(t, uint64(777), running.LobbyID)
	assert.Equal(t, uint64(999888), running.DotaMatchID)
	assert.Equal(t, 1, client.launchCount())

	client.emit(supervisor.LobbyEvent{Snapshot: supervisor.LobbySnapshot{
		LobbyID: 777,
		State:   supervisor.LobbyStatePostGame,
		Outcome: supervisor.OutcomeRadiantWin,
	}})

	n = waitNotification(t, sup, time.Second)
	ended, ok := n.(supervisor.LobbyEnded)
	require.True(t, ok, "expected LobbyEnded, got %T", n)
	assert.Equal(t, int64(42), ended.GameID)
	assert.Equal(t, supervisor.OutcomeRadiantWin, ended.Outcome)

	// Channel closes after the terminal notification.
	_, open := <-sup.Notifications()
	assert.False(t, open)
	assert.GreaterOrEqual(t, client.destroyCount(), 1)
}

func TestSwap(t *testing.T) {
	client := newFakeClient()
	sup := startSupervisor(t, client, quietConfig())
	createTestLobby(t, sup, client)
	ctx := context.Background()

	assert.ErrorIs(t, sup.Swap(ctx, "r1", "r2"), supervisor.ErrNotOpposingTeams)
	assert.ErrorIs(t, sup.Swap(ctx, "r1", "stranger"), supervisor.ErrNotOpposingTeams)

	require.NoError(t, sup.Swap(ctx, "r1", "d1"))

	// r1 now belongs on dire; seating them on radiant must get them
	// kicked.
	client.emit(setupSnapshot(seated("r1", supervisor.MemberTeamRadiant)))
	require.Eventually(t, func() bool {
		return contains(client.kickedIDs(), "r1")
	}, time.Second, 5*time.Millisecond)

	// And the swapped arrangement launches.
	client.emit(setupSnapshot(
		seated("d1", supervisor.MemberTeamRadiant),
		seated("r2", supervisor.MemberTeamRadiant),
		seated("r1", supervisor.MemberTeamDire),
		seated("d2", supervisor.MemberTeamDire),
	))
	require.Eventually(t, func() bool { return client.launchCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestReplace(t *testing.T) {
	client := newFakeClient()
	sup := startSupervisor(t, client, quietConfig())
	createTestLobby(t, sup, client)
	ctx := context.Background()

	assert.ErrorIs(t, sup.Replace(ctx, "stranger", "sub"), supervisor.ErrNotInGame)
	assert.ErrorIs(t, sup.Replace(ctx, "r1", "d2"), supervisor.ErrPlayerAlreadyInGame)

	require.NoError(t, sup.Replace(ctx, "r2", "sub"))
	require.Eventually(t, func() bool {
		return contains(client.invitedIDs(), "sub")
	}, time.Second, 5*time.Millisecond)

	// The replaced player is no longer welcome on radiant.
	client.emit(setupSnapshot(seated("r2", supervisor.MemberTeamRadiant)))
	require.Eventually(t, func() bool {
		return contains(client.kickedIDs(), "r2")
	}, time.Second, 5*time.Millisecond)

	client.emit(setupSnapshot(
		seated("r1", supervisor.MemberTeamRadiant),
		seated("sub", supervisor.MemberTeamRadiant),
		seated("d1", supervisor.MemberTeamDire),
		seated("d2", supervisor.MemberTeamDire),
	))
	require.Eventually(t, func() bool { return client.launchCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestChangeOptions(t *testing.T) {
	client := newFakeClient()
	sup := startSupervisor(t, client, quietConfig())
	createTestLobby(t, sup, client)
	ctx := context.Background()

	err := sup.ChangeOptions(ctx, map[string]interface{}{"lobby_hax": 1})
	assert.Error(t, err)
	assert.Empty(t, client.appliedOptions())

	err = sup.ChangeOptions(ctx, map[string]interface{}{
		"game_mode":     "2",
		"allow_cheats":  "true",
		"dota_tv_delay": float64(10),
		"game_name":     "rematch",
	})
	require.NoError(t, err)

	applied := client.appliedOptions()
	require.Len(t, applied, 1)
	assert.Equal(t, uint32(2), applied[0]["game_mode"])
	assert.Equal(t, true, applied[0]["allow_cheats"])
	assert.Equal(t, uint32(10), applied[0]["dota_tv_delay"])
	assert.Equal(t, "rematch", applied[0]["game_name"])
}

func TestFriendRequests(t *testing.T) {
	client := newFakeClient()
	sup := startSupervisor(t, client, quietConfig())
	createTestLobby(t, sup, client)

	invitedBefore := len(client.invitedIDs())

	client.emit(supervisor.FriendRequestEvent{SteamID: "r1"})
	client.emit(supervisor.FriendRequestEvent{SteamID: "stranger"})

	require.Eventually(t, func() bool {
		return len(client.acceptedIDs()) == 2
	}, time.Second, 5*time.Millisecond)

	// Rostered players get re-invited, strangers only befriended.
	invited := client.invitedIDs()
	assert.Equal(t, invitedBefore+1, len(invited))
	assert.Equal(t, "r1", invited[len(invited)-1])
	_ = sup
}

func TestWatchdogIdleTimeouts(t *testing.T) {
	client := newFakeClient()
	client.setSnapshot(&supervisor.LobbySnapshot{State: supervisor.LobbyStateSetup})

	cfg := quietConfig()
	cfg.SoftIdle = 40 * time.Millisecond
	cfg.HardIdle = 150 * time.Millisecond
	cfg.ProbeInterval = 10 * time.Millisecond
	cfg.MaxNoLobbyProbes = 1000

	sup := startSupervisor(t, client, cfg)
	createTestLobby(t, sup, client)

	invitedAfterCreate := len(client.invitedIDs())

	// Soft idle: absent players get re-invited before the hard limit.
	require.Eventually(t, func() bool {
		return len(client.invitedIDs()) > invitedAfterCreate
	}, time.Second, 5*time.Millisecond)

	// Hard idle: the lobby is written off with an unknown outcome.
	n := waitNotification(t, sup, time.Second)
	ended, ok := n.(supervisor.LobbyEnded)
	require.True(t, ok, "expected LobbyEnded, got %T", n)
	assert.Equal(t, supervisor.OutcomeUnknown, ended.Outcome)
	assert.GreaterOrEqual(t, client.destroyCount(), 1)
}

func TestWatchdogLobbyVanished(t *testing.T) {
	client := newFakeClient() // FetchLobbySnapshot returns nil: no lobby
	cfg := quietConfig()
	cfg.SoftIdle = time.Hour
	cfg.HardIdle = time.Hour
	cfg.ProbeInterval = 10 * time.Millisecond
	cfg.MaxNoLobbyProbes = 3

	sup := startSupervisor(t, client, cfg)
	createTestLobby(t, sup, client)

	n := waitNotification(t, sup, time.Second)
	ended, ok := n.(supervisor.LobbyEnded)
	require.True(t, ok, "expected LobbyEnded, got %T", n)
	assert.Equal(t, supervisor.OutcomeUnknown, ended.Outcome)
}

func TestWatchdogMaxGameDuration(t *testing.T) {
	client := newFakeClient()
	client.setSnapshot(&supervisor.LobbySnapshot{State: supervisor.LobbyStateRun})

	cfg := quietConfig()
	cfg.SoftIdle = time.Hour
	cfg.HardIdle = time.Hour
	cfg.MaxGame = 80 * time.Millisecond
	cfg.ProbeInterval = 10 * time.Millisecond
	cfg.MaxNoLobbyProbes = 1000

	sup := startSupervisor(t, client, cfg)
	createTestLobby(t, sup, client)

	client.emit(setupSnapshot(
		seated("r1", supervisor.MemberTeamRadiant),
		seated("r2", supervisor.MemberTeamRadiant),
		seated("d1", supervisor.MemberTeamDire),
		seated("d2", supervisor.MemberTeamDire),
	))
	client.emit(supervisor.LobbyEvent{Snapshot: supervisor.LobbySnapshot{
		State: supervisor.LobbyStateRun,
	}})

	n := waitNotification(t, sup, time.Second)
	_, ok := n.(supervisor.LobbyRunning)
	require.True(t, ok, "expected LobbyRunning, got %T", n)

	n = waitNotification(t, sup, time.Second)
	ended, ok := n.(supervisor.LobbyEnded)
	require.True(t, ok, "expected LobbyEnded, got %T", n)
	assert.Equal(t, supervisor.OutcomeUnknown, ended.Outcome)
}

func TestTeardownIdempotent(t *testing.T) {
	client := newFakeClient()
	sup := startSupervisor(t, client, quietConfig())
	createTestLobby(t, sup, client)

	require.NoError(t, sup.Teardown(context.Background()))
	require.NoError(t, sup.Teardown(context.Background()))
	assert.GreaterOrEqual(t, client.destroyCount(), 1)

	// An explicit teardown emits no result notification.
	_, open := <-sup.Notifications()
	assert.False(t, open)
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
