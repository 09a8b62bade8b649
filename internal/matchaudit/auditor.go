// Package matchaudit enriches finished matches with data from the
// Dota 2 Web API. The live result stays authoritative; the audit only
// backfills duration and scores.
package matchaudit

import (
	"context"
	"log"

	"github.com/gargamel/gargamel-league/internal/controller"
	"github.com/gargamel/gargamel-league/internal/dotaapi"
	"github.com/gargamel/gargamel-league/internal/store"
)

// MatchDetailsFetcher is the slice of the Web API client the auditor
// needs.
type MatchDetailsFetcher interface {
	GetMatchDetails(ctx context.Context, matchID uint64) (*dotaapi.MatchDetails, error)
}

// Auditor saves post-game audit data to the database.
type Auditor struct {
	store   store.Store
	dotaAPI MatchDetailsFetcher
}

// New creates a new match auditor. dotaAPI may be nil when no Steam API
// key is configured; the auditor then does nothing.
func New(s store.Store, dotaAPI MatchDetailsFetcher) *Auditor {
	return &Auditor{store: s, dotaAPI: dotaAPI}
}

// Run listens for game events and audits the finished ones.
func (a *Auditor) Run(ctx context.Context, events <-chan controller.Event) {
	log.Println("Match auditor started")
	for {
		select {
		case <-ctx.Done():
			log.Println("Match auditor shutting down")
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if ended, isEnded := event.(controller.GameEnded); isEnded {
				a.audit(ctx, ended)
			}
		}
	}
}

func (a *Auditor) audit(ctx context.Context, e controller.GameEnded) {
	if e.DotaMatchID == 0 || a.dotaAPI == nil {
		return
	}

	details, err := a.dotaAPI.GetMatchDetails(ctx, e.DotaMatchID)
	if err != nil {
		log.Printf("Match auditor: failed to fetch details for match %d: %v", e.DotaMatchID, err)
		return
	}

	if err := a.store.BackfillMatchDetails(ctx, e.GameID, e.DotaMatchID,
		details.Duration, details.RadiantScore, details.DireScore); err != nil {
		log.Printf("Match auditor: failed to backfill game %d: %v", e.GameID, err)
		return
	}

	if details.Winner() != e.WinningTeam {
		log.Printf("Match auditor: game %d winner mismatch, lobby said %s but API says %s",
			e.GameID, e.WinningTeam, details.Winner())
	}

	log.Printf("Match auditor: backfilled game %d (duration %s, score %d-%d)",
		e.GameID, details.DurationFormatted(), details.RadiantScore, details.DireScore)
}
