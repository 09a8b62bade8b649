package auth

import (
	"net/http"
	"strings"
)

// AdminConfig is the allowlist of Steam IDs with admin powers.
type AdminConfig struct {
	admins map[string]struct{}
}

// NewAdminConfig parses a comma-separated list of Steam IDs, typically
// straight from ADMIN_STEAM_IDS.
func NewAdminConfig(steamIDs string) *AdminConfig {
	cfg := &AdminConfig{admins: make(map[string]struct{})}
	for _, id := range strings.Split(steamIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.admins[id] = struct{}{}
		}
	}
	return cfg
}

// IsAdmin reports whether the Steam ID is on the allowlist.
func (c *AdminConfig) IsAdmin(steamID string) bool {
	_, ok := c.admins[steamID]
	return ok
}

// AdminMiddleware rejects requests from anyone not on the allowlist.
func AdminMiddleware(cfg *AdminConfig, sessions *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := sessions.GetUser(r.Context(), r)
			if err != nil || user == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !cfg.IsAdmin(user.SteamID) {
				http.Error(w, "Forbidden: admin access required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
