package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gargamel/gargamel-league/internal/auth"
	"github.com/gargamel/gargamel-league/internal/controller"
	"github.com/gargamel/gargamel-league/internal/matchmaker"
	"github.com/gargamel/gargamel-league/internal/store"
	"github.com/gargamel/gargamel-league/internal/supervisor"
)

const handlerTimeout = 10 * time.Second

// waitForResponse waits for a response with a timeout.
func waitForResponse(resp <-chan error) error {
	select {
	case err := <-resp:
		return err
	case <-time.After(handlerTimeout):
		return fmt.Errorf("request timed out")
	}
}

// statusForError maps controller errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, controller.ErrUnknownGame):
		return http.StatusNotFound
	case errors.Is(err, matchmaker.ErrAlreadyQueued),
		errors.Is(err, controller.ErrPlayerAlreadyInGame):
		return http.StatusConflict
	case errors.Is(err, supervisor.ErrNoSlotAvailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
}

func (s *Server) handleJoinQueue(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	resp := make(chan error, 1)
	s.controller.Send(controller.QueuePlayer{
		SteamID:  user.SteamID,
		Response: resp,
	})

	if err := waitForResponse(resp); err != nil {
		writeError(w, err)
		return
	}

	log.Printf("Player %s (%s) joined queue", user.Name, user.SteamID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLeaveQueue(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	resp := make(chan error, 1)
	s.controller.Send(controller.DequeuePlayer{
		SteamID:  user.SteamID,
		Response: resp,
	})

	if err := waitForResponse(resp); err != nil {
		writeError(w, err)
		return
	}

	log.Printf("Player %s (%s) left queue", user.Name, user.SteamID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	user, _ := s.sessions.GetUser(r.Context(), r)

	var userID string
	if user != nil {
		userID = user.SteamID
	}

	s.sse.HandleConnection(w, r, userID)
}

// handleState returns the queue and the live games. Pass keys are never
// included here; rostered players get theirs over SSE or push.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.controller.GetState()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queue": queueEntries(snap.Queue),
		"games": gameViews(snap.Games, false),
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Leaderboard(r.Context())
	if err != nil {
		http.Error(w, "Failed to load leaderboard", http.StatusInternalServerError)
		return
	}

	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]interface{}{
			"steamId": e.SteamID,
			"name":    e.Name,
			"rating":  e.Rating,
			"wins":    e.Wins,
			"losses":  e.Losses,
			"total":   e.Total,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": out})
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 500 {
		limit = n
	}

	matches, err := s.store.ListMatches(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to load matches", http.StatusInternalServerError)
		return
	}

	out := make([]map[string]interface{}, 0, len(matches))
	for _, m := range matches {
		out = append(out, matchJSON(m))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"matches": out})
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	gameID, err := strconv.ParseInt(chi.URLParam(r, "gameID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid game ID", http.StatusBadRequest)
		return
	}

	match, err := s.store.GetMatch(r.Context(), gameID)
	if err != nil {
		http.Error(w, "match not found", http.StatusNotFound)
		return
	}

	players, err := s.store.GetMatchPlayers(r.Context(), gameID)
	if err != nil {
		http.Error(w, "Failed to load match players", http.StatusInternalServerError)
		return
	}

	playerList := make([]map[string]interface{}, 0, len(players))
	for _, p := range players {
		entry := map[string]interface{}{
			"steamId":      p.SteamID,
			"team":         p.Team,
			"ratingBefore": p.RatingBefore,
		}
		if p.RatingAfter != nil {
			entry["ratingAfter"] = *p.RatingAfter
		}
		playerList = append(playerList, entry)
	}

	body := matchJSON(*match)
	body["players"] = playerList
	writeJSON(w, http.StatusOK, body)
}

func matchJSON(m store.Match) map[string]interface{} {
	body := map[string]interface{}{
		"gameId":    m.GameID,
		"state":     m.State,
		"gameMode":  m.GameMode,
		"startedAt": m.StartedAt.UTC().Format(time.RFC3339),
	}
	if m.LobbyID != 0 {
		body["lobbyId"] = fmt.Sprintf("%d", m.LobbyID)
	}
	if m.DotaMatchID != 0 {
		body["dotaMatchId"] = fmt.Sprintf("%d", m.DotaMatchID)
	}
	if m.WinningTeam != nil {
		body["winningTeam"] = *m.WinningTeam
	}
	if m.EndedAt != nil {
		body["endedAt"] = m.EndedAt.UTC().Format(time.RFC3339)
	}
	if m.Duration != nil {
		body["duration"] = *m.Duration
	}
	if m.RadiantScore != nil {
		body["radiantScore"] = *m.RadiantScore
	}
	if m.DireScore != nil {
		body["direScore"] = *m.DireScore
	}
	return body
}

func (s *Server) handleAddFakePlayers(w http.ResponseWriter, r *http.Request) {
	if !s.devMode {
		http.Error(w, "Not available", http.StatusNotFound)
		return
	}

	count := 10
	if n, err := strconv.Atoi(r.URL.Query().Get("count")); err == nil && n > 0 && n <= 50 {
		count = n
	}

	if err := s.steamAuth.CreateFakeUsers(r.Context(), count); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	for i := 1; i <= count; i++ {
		resp := make(chan error, 1)
		s.controller.Send(controller.QueuePlayer{
			SteamID:  fmt.Sprintf("90000000000000%04d", i),
			Response: resp,
		})
		waitForResponse(resp)
	}

	w.WriteHeader(http.StatusNoContent)
}
