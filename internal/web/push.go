package web

import (
	"encoding/json"
	"net/http"

	"github.com/gargamel/gargamel-league/internal/auth"
	"github.com/gargamel/gargamel-league/internal/push"
	"github.com/gargamel/gargamel-league/internal/store"
)

// handleSubscribePush stores a browser push subscription for the
// logged-in player.
func (s *Server) handleSubscribePush(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		http.Error(w, "Invalid subscription", http.StatusBadRequest)
		return
	}

	sub := &store.PushSubscription{
		SteamID:  user.SteamID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := s.store.SavePushSubscription(r.Context(), sub); err != nil {
		http.Error(w, "Failed to save subscription", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "subscribed"})
}

func (s *Server) handleUnsubscribePush(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := s.store.DeletePushSubscription(r.Context(), req.Endpoint); err != nil {
		http.Error(w, "Failed to delete subscription", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

func (s *Server) handleGetVAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	if s.pushService == nil {
		http.Error(w, "Push notifications not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": s.pushService.GetPublicKey()})
}

// handleTestPush lets a player verify their subscription end to end.
func (s *Server) handleTestPush(w http.ResponseWriter, r *http.Request) {
	if s.pushService == nil {
		http.Error(w, "Push notifications not configured", http.StatusServiceUnavailable)
		return
	}

	user := auth.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	payload := push.NotificationPayload{
		Title: "Gargamel League",
		Body:  "Push notifications are working.",
		Tag:   "test-notification",
		Data:  map[string]interface{}{"url": "/"},
	}
	if err := s.pushService.SendToUser(r.Context(), user.SteamID, payload); err != nil {
		http.Error(w, "Failed to send test notification", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
