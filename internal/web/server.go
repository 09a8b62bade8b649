package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gargamel/gargamel-league/internal/auth"
	"github.com/gargamel/gargamel-league/internal/controller"
	"github.com/gargamel/gargamel-league/internal/push"
	"github.com/gargamel/gargamel-league/internal/store"
)

// Server holds the HTTP server and its dependencies.
type Server struct {
	router      *chi.Mux
	controller  *controller.Controller
	store       store.Store
	steamAuth   *auth.SteamAuth
	sessions    *auth.SessionManager
	adminCfg    *auth.AdminConfig
	pushService *push.Service
	sse         *SSEHub
	devMode     bool
}

// Config holds server configuration.
type Config struct {
	DevMode bool
}

// NewServer creates a new HTTP server. pushService may be nil when no
// VAPID keys are configured.
func NewServer(
	ctrl *controller.Controller,
	st store.Store,
	steamAuth *auth.SteamAuth,
	sessions *auth.SessionManager,
	adminCfg *auth.AdminConfig,
	pushService *push.Service,
	cfg Config,
) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		controller:  ctrl,
		store:       st,
		steamAuth:   steamAuth,
		sessions:    sessions,
		adminCfg:    adminCfg,
		pushService: pushService,
		sse:         NewSSEHub(ctrl),
		devMode:     cfg.DevMode,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// Auth routes
	r.Get("/auth/login", s.steamAuth.LoginHandler)
	r.Get("/auth/callback", s.steamAuth.CallbackHandler)
	r.Get("/auth/logout", s.steamAuth.LogoutHandler)
	r.Get("/me", s.steamAuth.MeHandler)

	// Dev mode routes
	if s.devMode {
		r.Get("/dev/login", s.steamAuth.DevLoginHandler)
		r.Post("/dev/add-fake-players", s.handleAddFakePlayers)
	}

	// SSE endpoint
	r.Get("/events", s.handleSSE)

	// Public read-only views
	r.Get("/state", s.handleState)
	r.Get("/leaderboard", s.handleLeaderboard)
	r.Get("/matches", s.handleMatches)
	r.Get("/matches/{gameID}", s.handleMatch)

	// Queue routes (require auth)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(s.sessions))

		r.Post("/queue/join", s.handleJoinQueue)
		r.Post("/queue/leave", s.handleLeaveQueue)

		r.Post("/push/subscribe", s.handleSubscribePush)
		r.Post("/push/unsubscribe", s.handleUnsubscribePush)
		r.Post("/push/test", s.handleTestPush)
	})
	r.Get("/push/vapid-public-key", s.handleGetVAPIDPublicKey)

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AdminMiddleware(s.adminCfg, s.sessions))

		r.Post("/admin/games/form", s.handleAdminFormGame)
		r.Post("/admin/queue/clear", s.handleAdminClearQueue)
		r.Post("/admin/games/{gameID}/swap", s.handleAdminSwapPlayers)
		r.Post("/admin/games/{gameID}/replace", s.handleAdminReplacePlayer)
		r.Post("/admin/games/{gameID}/mode", s.handleAdminChangeMode)
		r.Post("/admin/games/{gameID}/cancel", s.handleAdminCancelGame)
		r.Get("/admin/games/{gameID}/password", s.handleAdminGamePassword)
		r.Post("/admin/players/{steamID}/kick", s.handleAdminKickPlayer)
		r.Post("/admin/players/{steamID}/rating/{value}", s.handleAdminSetRating)
		r.Get("/admin/state", s.handleAdminState)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// StartSSE starts the SSE hub goroutine.
func (s *Server) StartSSE(events <-chan controller.Event) {
	go s.sse.Run(events)
}
