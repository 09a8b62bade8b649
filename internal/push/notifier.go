package push

import (
	"context"
	"fmt"
	"log"

	"github.com/gargamel/gargamel-league/internal/controller"
)

// Notifier listens to controller events and sends push notifications
type Notifier struct {
	service *Service
}

func NewNotifier(service *Service) *Notifier {
	return &Notifier{
		service: service,
	}
}

// Run starts listening to controller events
func (n *Notifier) Run(ctx context.Context, events <-chan controller.Event) {
	log.Println("Push notifier started")

	for {
		select {
		case <-ctx.Done():
			log.Println("Push notifier stopped")
			return

		case event := <-events:
			n.handleEvent(ctx, event)
		}
	}
}

func (n *Notifier) handleEvent(ctx context.Context, event controller.Event) {
	switch e := event.(type) {
	case controller.GameFormed:
		n.handleGameFormed(ctx, e)
	case controller.GameEnded:
		n.handleGameEnded(ctx, e)
	case controller.GameCanceled:
		n.handleGameCanceled(ctx, e)
	}
}

func (n *Notifier) handleGameFormed(ctx context.Context, event controller.GameFormed) {
	log.Printf("Sending lobby notification for game %d to %d players",
		event.GameID, len(event.Radiant)+len(event.Dire))

	payload := NotificationPayload{
		Title: "Gargamel League Game Found!",
		Body:  fmt.Sprintf("Lobby password: %s", event.Password),
		Tag:   "game-formed",
		Data: map[string]interface{}{
			"gameID":   event.GameID,
			"password": event.Password,
			"url":      "/",
		},
	}

	n.service.SendToMultipleUsers(ctx, rosterSteamIDs(event.Radiant, event.Dire), payload)
}

func (n *Notifier) handleGameEnded(ctx context.Context, event controller.GameEnded) {
	if event.WinningTeam == "none" {
		return
	}

	payload := NotificationPayload{
		Title: "Game Over!",
		Body:  fmt.Sprintf("The %s claim victory. Ratings are updated.", event.WinningTeam),
		Tag:   "game-ended",
		Data: map[string]interface{}{
			"gameID": event.GameID,
			"url":    "/",
		},
	}

	n.service.SendToMultipleUsers(ctx, rosterSteamIDs(event.Radiant, event.Dire), payload)
}

func (n *Notifier) handleGameCanceled(ctx context.Context, event controller.GameCanceled) {
	log.Printf("Game %d canceled, no notification sent", event.GameID)
}

func rosterSteamIDs(radiant, dire []controller.Player) []string {
	ids := make([]string, 0, len(radiant)+len(dire))
	for _, p := range radiant {
		ids = append(ids, p.SteamID)
	}
	for _, p := range dire {
		ids = append(ids, p.SteamID)
	}
	return ids
}
