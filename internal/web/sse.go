package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/gargamel/gargamel-league/internal/controller"
	"github.com/gargamel/gargamel-league/internal/matchmaker"
)

// SSEClient represents a connected SSE client.
type SSEClient struct {
	ID      string
	UserID  string
	Channel chan sseMessage
}

type sseMessage struct {
	Event string
	Data  []byte
}

// SSEHub manages SSE connections and broadcasts controller events as
// JSON frames.
type SSEHub struct {
	clients    map[*SSEClient]bool
	mu         sync.RWMutex
	controller *controller.Controller
}

// NewSSEHub creates a new SSE hub.
func NewSSEHub(ctrl *controller.Controller) *SSEHub {
	return &SSEHub{
		clients:    make(map[*SSEClient]bool),
		controller: ctrl,
	}
}

// Run starts the SSE hub, processing events from the controller.
func (h *SSEHub) Run(events <-chan controller.Event) {
	log.Println("SSE hub started")
	for event := range events {
		h.handleEvent(event)
	}
}

func (h *SSEHub) handleEvent(event controller.Event) {
	switch e := event.(type) {
	case controller.QueueUpdated:
		h.broadcast("queue", map[string]interface{}{
			"queue": queueEntries(e.Queue),
		})

	case controller.GameFormed:
		// The pass key goes only to rostered players; everyone else
		// just sees that a game formed.
		h.broadcast("game-formed", map[string]interface{}{
			"gameId":  e.GameID,
			"radiant": playerViews(e.Radiant),
			"dire":    playerViews(e.Dire),
		})
		for _, p := range append(append([]controller.Player{}, e.Radiant...), e.Dire...) {
			h.sendToUser(p.SteamID, "lobby-password", map[string]interface{}{
				"gameId":   e.GameID,
				"password": e.Password,
			})
		}
		// Players passed over this round learn they are still queued.
		for steamID, waited := range e.Waited {
			h.sendToUser(steamID, "still-queued", map[string]interface{}{
				"gameId":        e.GameID,
				"waitedSeconds": int(waited.Seconds()),
			})
		}

	case controller.GameRunning:
		h.broadcast("game-running", map[string]interface{}{
			"gameId":      e.GameID,
			"lobbyId":     fmt.Sprintf("%d", e.LobbyID),
			"dotaMatchId": fmt.Sprintf("%d", e.DotaMatchID),
		})

	case controller.GameEnded:
		h.broadcast("game-ended", map[string]interface{}{
			"gameId":      e.GameID,
			"winningTeam": e.WinningTeam,
			"newRatings":  e.NewRatings,
		})

	case controller.GameCanceled:
		h.broadcast("game-canceled", map[string]interface{}{
			"gameId":   e.GameID,
			"requeued": e.Requeued,
		})
	}
}

func (h *SSEHub) broadcast(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", event, err)
		return
	}
	msg := sseMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.Channel <- msg:
		default:
			// Client too slow, skip
			log.Printf("Dropping %s event for slow client %s", event, client.ID)
		}
	}
}

// sendToUser delivers an event to every connection of one user.
func (h *SSEHub) sendToUser(userID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", event, err)
		return
	}
	msg := sseMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.UserID != userID {
			continue
		}
		select {
		case client.Channel <- msg:
		default:
		}
	}
}

// HandleConnection handles a new SSE connection.
func (h *SSEHub) HandleConnection(w http.ResponseWriter, r *http.Request, userID string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	client := &SSEClient{
		ID:      uuid.NewString(),
		UserID:  userID,
		Channel: make(chan sseMessage, 10),
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	log.Printf("SSE client connected: %s (user: %s)", client.ID[:8], userID)

	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		close(client.Channel)
		log.Printf("SSE client disconnected: %s", client.ID[:8])
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	// Initial state sync so a fresh page does not have to poll.
	snap := h.controller.GetState()
	initial, err := json.Marshal(map[string]interface{}{
		"queue": queueEntries(snap.Queue),
		"games": gameViews(snap.Games, false),
	})
	if err == nil {
		writeSSEFrame(w, "state", initial)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-client.Channel:
			if !ok {
				return
			}
			writeSSEFrame(w, msg.Event, msg.Data)
			flusher.Flush()
		}
	}
}

func writeSSEFrame(w http.ResponseWriter, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// JSON view types shared by the SSE hub and the REST handlers.

type playerView struct {
	SteamID string `json:"steamId"`
	Name    string `json:"name"`
	Rating  int    `json:"rating"`
}

type queueEntry struct {
	SteamID       string `json:"steamId"`
	Rating        int    `json:"rating"`
	WaitedSeconds int    `json:"waitedSeconds"`
}

type gameJSON struct {
	GameID      int64        `json:"gameId"`
	State       string       `json:"state"`
	Radiant     []playerView `json:"radiant"`
	Dire        []playerView `json:"dire"`
	LobbyID     string       `json:"lobbyId,omitempty"`
	DotaMatchID string       `json:"dotaMatchId,omitempty"`
	Password    string       `json:"password,omitempty"`
	FormedAt    string       `json:"formedAt"`
}

func playerViews(players []controller.Player) []playerView {
	out := make([]playerView, len(players))
	for i, p := range players {
		out[i] = playerView{SteamID: p.SteamID, Name: p.Name, Rating: p.Rating}
	}
	return out
}

func queueEntries(queue []matchmaker.WaitingPlayer) []queueEntry {
	out := make([]queueEntry, len(queue))
	for i, p := range queue {
		out[i] = queueEntry{
			SteamID:       p.SteamID,
			Rating:        p.Rating,
			WaitedSeconds: int(p.Waited.Seconds()),
		}
	}
	return out
}

func gameViews(games []controller.GameView, includePassword bool) []gameJSON {
	out := make([]gameJSON, 0, len(games))
	for _, g := range games {
		view := gameJSON{
			GameID:   g.GameID,
			State:    g.State,
			Radiant:  playerViews(g.Radiant),
			Dire:     playerViews(g.Dire),
			FormedAt: g.FormedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
		if g.LobbyID != 0 {
			view.LobbyID = fmt.Sprintf("%d", g.LobbyID)
		}
		if g.DotaMatchID != 0 {
			view.DotaMatchID = fmt.Sprintf("%d", g.DotaMatchID)
		}
		if includePassword {
			view.Password = g.Password
		}
		out = append(out, view)
	}
	return out
}
