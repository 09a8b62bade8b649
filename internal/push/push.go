// Package push delivers web-push notifications to subscribed players.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/gargamel/gargamel-league/internal/store"
)

// Config holds the VAPID key pair; generate one with cmd/generate-vapid.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string // mailto: address
}

// Service sends web-push messages to every subscription a player has.
type Service struct {
	store store.Store
	cfg   Config
}

func NewService(st store.Store, cfg Config) *Service {
	return &Service{store: st, cfg: cfg}
}

// NotificationPayload is the JSON the service worker receives.
type NotificationPayload struct {
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Icon  string                 `json:"icon,omitempty"`
	Badge string                 `json:"badge,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
	Tag   string                 `json:"tag,omitempty"`
}

// SendToUser pushes the payload to all of a player's subscriptions.
// Subscriptions the push service reports gone (410/404) are pruned.
// It returns nil if at least one delivery succeeded.
func (s *Service) SendToUser(ctx context.Context, steamID string, payload NotificationPayload) error {
	subs, err := s.store.GetPushSubscriptions(ctx, steamID)
	if err != nil {
		return fmt.Errorf("loading subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	delivered := 0
	var lastErr error
	for _, sub := range subs {
		if err := s.sendOne(ctx, body, sub); err != nil {
			lastErr = err
			continue
		}
		delivered++
	}

	if delivered > 0 {
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("no delivery succeeded for %s", steamID)
}

func (s *Service) sendOne(ctx context.Context, body []byte, sub store.PushSubscription) error {
	resp, err := webpush.SendNotification(body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		Subscriber:      s.cfg.VAPIDSubject,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		TTL:             60,
	})
	if err != nil {
		log.Printf("Push to %s failed: %v", sub.Endpoint, err)
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == 410 || resp.StatusCode == 404:
		log.Printf("Subscription gone, pruning: %s", sub.Endpoint)
		if derr := s.store.DeletePushSubscription(ctx, sub.Endpoint); derr != nil {
			log.Printf("Failed to prune subscription: %v", derr)
		}
		return fmt.Errorf("subscription gone (status %d)", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("push failed with status %d", resp.StatusCode)
	}
	return nil
}

// SendToMultipleUsers fans a payload out without blocking the caller.
func (s *Service) SendToMultipleUsers(ctx context.Context, steamIDs []string, payload NotificationPayload) {
	for _, steamID := range steamIDs {
		go func(id string) {
			if err := s.SendToUser(ctx, id, payload); err != nil {
				log.Printf("Push to user %s failed: %v", id, err)
			}
		}(steamID)
	}
}

// GetPublicKey exposes the VAPID public key for subscribing clients.
func (s *Service) GetPublicKey() string {
	return s.cfg.VAPIDPublicKey
}
