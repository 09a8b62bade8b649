package matchaudit_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gargamel/gargamel-league/internal/controller"
	"github.com/gargamel/gargamel-league/internal/dotaapi"
	"github.com/gargamel/gargamel-league/internal/matchaudit"
	"github.com/gargamel/gargamel-league/internal/store"
)

type fakeFetcher struct {
	details *dotaapi.MatchDetails
	err     error
	calls   int
}

func (f *fakeFetcher) GetMatchDetails(context.Context, uint64) (*dotaapi.MatchDetails, error) {
	f.calls++
	return f.details, f.err
}

func newAuditStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "league.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func recordEndedMatch(t *testing.T, s store.Store, gameID int64, dotaMatchID uint64) {
	t.Helper()
	ctx := context.Background()

	// Match player rows reference users, so seed the roster first.
	now := time.Now()
	for _, id := range []string{"1", "2"} {
		require.NoError(t, s.UpsertUser(ctx, &store.User{
			SteamID:   id,
			Name:      "player " + id,
			Rating:    3000,
			CreatedAt: now,
			UpdatedAt: now,
		}))
	}

	err := s.RecordMatchStart(ctx, &store.Match{
		GameID:    gameID,
		State:     store.MatchStatePending,
		StartedAt: time.Now(),
	}, []store.MatchPlayer{
		{GameID: gameID, SteamID: "1", Team: store.TeamRadiant, RatingBefore: 3000},
		{GameID: gameID, SteamID: "2", Team: store.TeamDire, RatingBefore: 3000},
	})
	require.NoError(t, err)
	require.NoError(t, s.SetMatchRunning(ctx, gameID, 77, dotaMatchID))
	require.NoError(t, s.FinalizeMatch(ctx, gameID, store.TeamRadiant, store.MatchStateEnded))
}

func TestAuditorBackfillsDetails(t *testing.T) {
	s := newAuditStore(t)
	recordEndedMatch(t, s, 5, 12345)

	fetcher := &fakeFetcher{details: &dotaapi.MatchDetails{
		MatchID:      12345,
		RadiantWin:   true,
		Duration:     2712,
		RadiantScore: 31,
		DireScore:    19,
	}}
	auditor := matchaudit.New(s, fetcher)

	events := make(chan controller.Event, 1)
	events <- controller.GameEnded{GameID: 5, WinningTeam: store.TeamRadiant, DotaMatchID: 12345}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		auditor.Run(ctx, events)
		close(done)
	}()

	require.Eventually(t, func() bool { return fetcher.calls > 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	match, err := s.GetMatch(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, match.Duration)
	assert.Equal(t, 2712, *match.Duration)
	require.NotNil(t, match.RadiantScore)
	assert.Equal(t, 31, *match.RadiantScore)
	require.NotNil(t, match.DireScore)
	assert.Equal(t, 19, *match.DireScore)

	// The live result stays authoritative.
	require.NotNil(t, match.WinningTeam)
	assert.Equal(t, store.TeamRadiant, *match.WinningTeam)
}

func TestAuditorSkipsWithoutDotaMatchID(t *testing.T) {
	s := newAuditStore(t)
	recordEndedMatch(t, s, 6, 0)

	fetcher := &fakeFetcher{err: fmt.Errorf("should not be called")}
	auditor := matchaudit.New(s, fetcher)

	events := make(chan controller.Event, 1)
	events <- controller.GameEnded{GameID: 6, WinningTeam: store.TeamDire, DotaMatchID: 0}
	close(events)

	auditor.Run(context.Background(), events)
	assert.Equal(t, 0, fetcher.calls)
}
