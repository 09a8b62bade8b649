package web

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gargamel/gargamel-league/internal/controller"
)

func gameIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "gameID"), 10, 64)
}

// handleAdminFormGame forces a matchmaking pass right now.
func (s *Server) handleAdminFormGame(w http.ResponseWriter, r *http.Request) {
	resp := make(chan error, 1)
	s.controller.Send(controller.FormGame{Response: resp})

	if err := waitForResponse(resp); err != nil {
		writeError(w, err)
		return
	}

	log.Printf("Admin forced a matchmaking pass")
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminClearQueue empties the waiting queue.
func (s *Server) handleAdminClearQueue(w http.ResponseWriter, r *http.Request) {
	resp := make(chan error, 1)
	s.controller.Send(controller.ClearQueue{Response: resp})

	if err := waitForResponse(resp); err != nil {
		writeError(w, err)
		return
	}

	log.Printf("Admin cleared the queue")
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminSwapPlayers exchanges the teams of two players in a live game.
func (s *Server) handleAdminSwapPlayers(w http.ResponseWriter, r *http.Request) {
	gameID, err := gameIDParam(r)
	if err != nil {
		http.Error(w, "invalid game ID", http.StatusBadRequest)
		return
	}

	var req struct {
		A string `json:"a"`
		B string `json:"b"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.A == "" || req.B == "" {
		http.Error(w, "two steam IDs required", http.StatusBadRequest)
		return
	}

	resp := make(chan error, 1)
	s.controller.Send(controller.SwapPlayers{
		GameID:   gameID,
		A:        req.A,
		B:        req.B,
		Response: resp,
	})

	if err := waitForResponse(resp); err != nil {
		writeError(w, err)
		return
	}

	log.Printf("Admin swapped %s and %s in game %d", req.A, req.B, gameID)
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminReplacePlayer substitutes a rostered player with a newcomer.
func (s *Server) handleAdminReplacePlayer(w http.ResponseWriter, r *http.Request) {
	gameID, err := gameIDParam(r)
	if err != nil {
		http.Error(w, "invalid game ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Out string `json:"out"`
		In  string `json:"in"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Out == "" || req.In == "" {
		http.Error(w, "out and in steam IDs required", http.StatusBadRequest)
		return
	}

	resp := make(chan error, 1)
	s.controller.Send(controller.ReplacePlayer{
		GameID:   gameID,
		Out:      req.Out,
		In:       req.In,
		Response: resp,
	})

	if err := waitForResponse(resp); err != nil {
		writeError(w, err)
		return
	}

	log.Printf("Admin replaced %s with %s in game %d", req.Out, req.In, gameID)
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminChangeMode updates whitelisted lobby settings on a live game.
// The body is a JSON object of setting name to value; the supervisor
// refuses anything outside its whitelist.
func (s *Server) handleAdminChangeMode(w http.ResponseWriter, r *http.Request) {
	gameID, err := gameIDParam(r)
	if err != nil {
		http.Error(w, "invalid game ID", http.StatusBadRequest)
		return
	}

	var options map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&options); err != nil || len(options) == 0 {
		http.Error(w, "lobby options required", http.StatusBadRequest)
		return
	}

	resp := make(chan error, 1)
	s.controller.Send(controller.ChangeMode{
		GameID:   gameID,
		Options:  options,
		Response: resp,
	})

	if err := waitForResponse(resp); err != nil {
		writeError(w, err)
		return
	}

	log.Printf("Admin changed lobby settings for game %d", gameID)
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminCancelGame tears a game down without a result.
func (s *Server) handleAdminCancelGame(w http.ResponseWriter, r *http.Request) {
	gameID, err := gameIDParam(r)
	if err != nil {
		http.Error(w, "invalid game ID", http.StatusBadRequest)
		return
	}

	requeue := r.URL.Query().Get("requeue") != "false"

	resp := make(chan error, 1)
	s.controller.Send(controller.CancelGame{
		GameID:   gameID,
		Requeue:  requeue,
		Response: resp,
	})

	if err := waitForResponse(resp); err != nil {
		writeError(w, err)
		return
	}

	log.Printf("Admin cancelled game %d (requeue=%v)", gameID, requeue)
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminGamePassword reveals the pass key of a live game.
func (s *Server) handleAdminGamePassword(w http.ResponseWriter, r *http.Request) {
	gameID, err := gameIDParam(r)
	if err != nil {
		http.Error(w, "invalid game ID", http.StatusBadRequest)
		return
	}

	snap := s.controller.GetState()
	for _, g := range snap.Games {
		if g.GameID == gameID {
			writeJSON(w, http.StatusOK, map[string]string{"password": g.Password})
			return
		}
	}
	http.Error(w, "game not found", http.StatusNotFound)
}

// handleAdminKickPlayer removes a player from the queue.
func (s *Server) handleAdminKickPlayer(w http.ResponseWriter, r *http.Request) {
	steamID := chi.URLParam(r, "steamID")
	if steamID == "" {
		http.Error(w, "steam ID required", http.StatusBadRequest)
		return
	}

	resp := make(chan error, 1)
	s.controller.Send(controller.DequeuePlayer{
		SteamID:  steamID,
		Response: resp,
	})

	if err := waitForResponse(resp); err != nil {
		writeError(w, err)
		return
	}

	log.Printf("Admin kicked player %s from queue", steamID)
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminSetRating overrides a player's rating in the database. The
// change takes effect immediately; a game ending afterwards computes its
// Elo update from the new value.
func (s *Server) handleAdminSetRating(w http.ResponseWriter, r *http.Request) {
	steamID := chi.URLParam(r, "steamID")
	if steamID == "" {
		http.Error(w, "steam ID required", http.StatusBadRequest)
		return
	}

	rating, err := strconv.Atoi(chi.URLParam(r, "value"))
	if err != nil || rating <= 0 {
		http.Error(w, "positive rating required", http.StatusBadRequest)
		return
	}

	if err := s.store.SetRating(r.Context(), steamID, rating); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Printf("Admin set rating of %s to %d", steamID, rating)
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminState returns the full live state, pass keys included.
func (s *Server) handleAdminState(w http.ResponseWriter, r *http.Request) {
	snap := s.controller.GetState()

	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		log.Printf("Failed to list users: %v", err)
	}

	userList := make([]map[string]interface{}, 0, len(users))
	for _, u := range users {
		userList = append(userList, map[string]interface{}{
			"steamId": u.SteamID,
			"name":    u.Name,
			"rating":  u.Rating,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queue": queueEntries(snap.Queue),
		"games": gameViews(snap.Games, true),
		"users": userList,
	})
}
