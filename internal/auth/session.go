package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gargamel/gargamel-league/internal/store"
)

const (
	sessionCookie = "gl_session"
	sessionTTL    = 30 * 24 * time.Hour
)

// SessionManager issues and resolves cookie sessions backed by the store.
type SessionManager struct {
	store store.Store
}

func NewSessionManager(st store.Store) *SessionManager {
	return &SessionManager{store: st}
}

// CreateSession persists a fresh session for the player and sets the
// cookie on the response.
func (sm *SessionManager) CreateSession(ctx context.Context, w http.ResponseWriter, steamID string) error {
	id, err := newSessionID()
	if err != nil {
		return err
	}

	now := time.Now()
	session := &store.Session{
		ID:        id,
		SteamID:   steamID,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionTTL),
	}
	if err := sm.store.CreateSession(ctx, session); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// GetSession resolves the request's session cookie. A missing cookie is
// not an error, just an anonymous request.
func (sm *SessionManager) GetSession(ctx context.Context, r *http.Request) (*store.Session, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, nil
	}
	return sm.store.GetSession(ctx, cookie.Value)
}

// GetUser loads the user behind the request's session, or nil.
func (sm *SessionManager) GetUser(ctx context.Context, r *http.Request) (*store.User, error) {
	session, err := sm.GetSession(ctx, r)
	if err != nil || session == nil {
		return nil, err
	}
	return sm.store.GetUser(ctx, session.SteamID)
}

// DeleteSession drops the current session and expires the cookie.
func (sm *SessionManager) DeleteSession(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	if err := sm.store.DeleteSession(ctx, cookie.Value); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	return nil
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
