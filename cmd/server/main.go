package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gargamel/gargamel-league/internal/auth"
	"github.com/gargamel/gargamel-league/internal/controller"
	"github.com/gargamel/gargamel-league/internal/dota"
	"github.com/gargamel/gargamel-league/internal/dotaapi"
	"github.com/gargamel/gargamel-league/internal/matchaudit"
	"github.com/gargamel/gargamel-league/internal/matchmaker"
	"github.com/gargamel/gargamel-league/internal/push"
	"github.com/gargamel/gargamel-league/internal/store"
	"github.com/gargamel/gargamel-league/internal/supervisor"
	"github.com/gargamel/gargamel-league/internal/web"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Configuration from environment
	port := getEnv("PORT", "8080")
	baseURL := getEnv("BASE_URL", "http://localhost:"+port)
	steamAPIKey := getEnv("STEAM_API_KEY", "")
	dbPath := getEnv("DB_PATH", "./data/league.db")
	adminSteamIDs := getEnv("ADMIN_STEAM_IDS", "")
	devMode := getEnv("DEV_MODE", "") == "true"
	debugMode := getEnv("DEBUG_MODE", "") == "true"

	if steamAPIKey == "" && !devMode {
		log.Warn("STEAM_API_KEY not set. Steam login and match audit will not work.")
	}

	// Ensure data directory exists
	if err := os.MkdirAll("./data", 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Initialize store
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Lobbies do not survive a restart, so any match still marked
	// pending or running is finalized without a result.
	reconcileUnfinishedMatches(log, db)

	// Bot accounts
	creds := loadBotCredentials()
	if len(creds) == 0 {
		log.Warn("No bot credentials configured. Lobby creation will fail until some are added.")
	}
	pool := supervisor.NewPool(creds, log)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	mm := matchmaker.New(matchmaker.Config{
		UnfairnessQ: float64(getEnvInt("UNFAIRNESS_Q", 0)),
	}, rng, log)
	factory := dota.NewFactory(supervisor.DefaultConfig(), log)

	// Cheats are a debugging aid, never a league setting.
	ctrl := controller.New(db, mm, pool, factory, controller.Config{
		TeamSize:     getEnvInt("TEAM_SIZE", 5),
		EloK:         getEnvInt("ELO_K", 0),
		GameMode:     uint32(getEnvInt("GAME_MODE", 0)),
		ServerRegion: uint32(getEnvInt("SERVER_REGION", 0)),
		LeagueID:     uint32(getEnvInt("LEAGUE_ID", 0)),
		AllowCheats:  debugMode,
	}, rng, log)

	// Initialize auth
	sessions := auth.NewSessionManager(db)
	steamAuth := auth.NewSteamAuth(steamAPIKey, baseURL, db, sessions)
	adminCfg := auth.NewAdminConfig(adminSteamIDs)

	// Create fake users in dev mode
	if devMode {
		log.Info("Dev mode enabled")
		if err := steamAuth.CreateFakeUsers(context.Background(), 15); err != nil {
			log.Warnf("Failed to create fake users: %v", err)
		}
	}

	// Push notifications need a VAPID key pair; run cmd/generate-vapid once.
	var pushService *push.Service
	vapidPublic := getEnv("VAPID_PUBLIC_KEY", "")
	vapidPrivate := getEnv("VAPID_PRIVATE_KEY", "")
	if vapidPublic != "" && vapidPrivate != "" {
		pushService = push.NewService(db, push.Config{
			VAPIDPublicKey:  vapidPublic,
			VAPIDPrivateKey: vapidPrivate,
			VAPIDSubject:    getEnv("VAPID_SUBJECT", "mailto:admin@localhost"),
		})
	} else {
		log.Warn("VAPID keys not set. Push notifications disabled.")
	}

	// Initialize web server
	server := web.NewServer(ctrl, db, steamAuth, sessions, adminCfg, pushService, web.Config{
		DevMode: devMode,
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start controller
	go ctrl.Run(ctx)

	// Start SSE hub
	server.StartSSE(ctrl.Events())

	// Start push notifier
	if pushService != nil {
		notifier := push.NewNotifier(pushService)
		go notifier.Run(ctx, ctrl.Subscribe())
	}

	// Start match auditor
	var fetcher matchaudit.MatchDetailsFetcher
	if steamAPIKey != "" {
		fetcher = dotaapi.NewClient(steamAPIKey)
	}
	auditor := matchaudit.New(db, fetcher)
	go auditor.Run(ctx, ctrl.Subscribe())

	// Start HTTP server
	httpServer := &http.Server{
		Addr:    ":" + port,
		Handler: server,
	}

	// Handle shutdown signals
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		log.Info("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("HTTP server shutdown error: %v", err)
		}
	}()

	fmt.Printf("Server running on http://localhost:%s\n", port)
	if devMode {
		fmt.Printf("Dev login: http://localhost:%s/dev/login?steamid=test1&name=TestUser\n", port)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}

	log.Info("Server stopped")
}

// reconcileUnfinishedMatches closes out matches a previous process left
// pending or running.
func reconcileUnfinishedMatches(log *logrus.Logger, db store.Store) {
	ctx := context.Background()
	matches, err := db.ListUnfinishedMatches(ctx)
	if err != nil {
		log.Errorf("Failed to list unfinished matches: %v", err)
		return
	}
	for _, m := range matches {
		if err := db.FinalizeMatch(ctx, m.GameID, store.TeamNone, store.MatchStateCanceled); err != nil {
			log.Errorf("Failed to cancel stale game %d: %v", m.GameID, err)
			continue
		}
		log.Warnf("Canceled stale game %d from a previous run", m.GameID)
	}
}

// loadBotCredentials reads NUM_CLIENTS bot accounts from
// STEAM_USERNAME_n / STEAM_PASSWORD_n (0-based).
func loadBotCredentials() []supervisor.Credential {
	var creds []supervisor.Credential
	n := getEnvInt("NUM_CLIENTS", 0)
	for i := 0; i < n; i++ {
		user := os.Getenv(fmt.Sprintf("STEAM_USERNAME_%d", i))
		pass := os.Getenv(fmt.Sprintf("STEAM_PASSWORD_%d", i))
		if user == "" || pass == "" {
			continue
		}
		creds = append(creds, supervisor.Credential{Username: user, Password: pass})
	}
	return creds
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
