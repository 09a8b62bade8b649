package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			steam_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			avatar_url TEXT,
			rating INTEGER NOT NULL DEFAULT 3000,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			steam_id TEXT NOT NULL REFERENCES users(steam_id),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,
		`CREATE TABLE IF NOT EXISTS matches (
			game_id INTEGER PRIMARY KEY,
			lobby_id INTEGER,
			dota_match_id INTEGER,
			state TEXT NOT NULL,
			game_mode INTEGER,
			server_region INTEGER,
			lobby_type INTEGER,
			league_id INTEGER,
			winning_team TEXT,
			started_at TIMESTAMP,
			ended_at TIMESTAMP,
			duration INTEGER,
			radiant_score INTEGER,
			dire_score INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS match_players (
			game_id INTEGER NOT NULL REFERENCES matches(game_id),
			steam_id TEXT NOT NULL REFERENCES users(steam_id),
			team TEXT NOT NULL CHECK (team IN ('radiant', 'dire')),
			rating_before INTEGER NOT NULL,
			rating_after INTEGER,
			PRIMARY KEY (game_id, steam_id)
		)`,
		`CREATE TABLE IF NOT EXISTS game_counter (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			counter INTEGER NOT NULL
		)`,
		`INSERT OR IGNORE INTO game_counter (id, counter) VALUES (1, 0)`,
		`CREATE TABLE IF NOT EXISTS push_subscriptions (
			endpoint TEXT PRIMARY KEY,
			steam_id TEXT NOT NULL REFERENCES users(steam_id),
			p256dh TEXT NOT NULL,
			auth TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetUser retrieves a user by SteamID.
func (s *SQLiteStore) GetUser(ctx context.Context, steamID string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		`SELECT steam_id, name, avatar_url, rating, created_at, updated_at
		 FROM users WHERE steam_id = ?`, steamID).Scan(
		&user.SteamID, &user.Name, &user.AvatarURL,
		&user.Rating, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpsertUser creates or updates a user. The rating of an existing user is
// never overwritten here; only SetRatingsForMatch and SetRating move it.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (steam_id, name, avatar_url, rating, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(steam_id) DO UPDATE SET
		 	name = excluded.name,
		 	avatar_url = excluded.avatar_url,
		 	updated_at = excluded.updated_at`,
		user.SteamID, user.Name, user.AvatarURL,
		user.Rating, user.CreatedAt, user.UpdatedAt,
	)
	return err
}

// ListUsers returns all registered users, strongest first.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT steam_id, name, avatar_url, rating, created_at, updated_at
		 FROM users ORDER BY rating DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.SteamID, &u.Name, &u.AvatarURL, &u.Rating, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetRating sets a user's rating directly (admin correction).
func (s *SQLiteStore) GetRating(ctx context.Context, steamID string) (int, bool, error) {
	var rating int
	err := s.db.QueryRowContext(ctx,
		`SELECT rating FROM users WHERE steam_id = ?`, steamID).Scan(&rating)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rating, true, nil
}

func (s *SQLiteStore) SetRating(ctx context.Context, steamID string, rating int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET rating = ?, updated_at = ? WHERE steam_id = ?`,
		rating, time.Now(), steamID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, steam_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?)`,
		session.ID, session.SteamID, session.CreatedAt, session.ExpiresAt,
	)
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var session Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, steam_id, created_at, expires_at
		 FROM sessions WHERE id = ? AND expires_at > ?`,
		sessionID, time.Now()).Scan(
		&session.ID, &session.SteamID, &session.CreatedAt, &session.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes a session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	return err
}

// DeleteExpiredSessions removes all expired sessions.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, time.Now())
	return err
}

// NextGameID increments the game counter and returns the new value.
func (s *SQLiteStore) NextGameID(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE game_counter SET counter = counter + 1 WHERE id = 1`); err != nil {
		return 0, err
	}

	var id int64
	if err := tx.QueryRowContext(ctx,
		`SELECT counter FROM game_counter WHERE id = 1`).Scan(&id); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// RecordMatchStart writes the match and all player rows atomically.
func (s *SQLiteStore) RecordMatchStart(ctx context.Context, match *Match, players []MatchPlayer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO matches
		 (game_id, lobby_id, dota_match_id, state, game_mode, server_region, lobby_type, league_id, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		match.GameID, match.LobbyID, match.DotaMatchID, match.State,
		match.GameMode, match.ServerRegion, match.LobbyType, match.LeagueID,
		match.StartedAt,
	)
	if err != nil {
		return err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		// Already recorded, nothing to do.
		return nil
	}

	for _, p := range players {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO match_players (game_id, steam_id, team, rating_before)
			 VALUES (?, ?, ?, ?)`,
			match.GameID, p.SteamID, p.Team, p.RatingBefore,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SetMatchRunning stores lobby and Dota match identifiers.
func (s *SQLiteStore) SetMatchRunning(ctx context.Context, gameID int64, lobbyID, dotaMatchID uint64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE matches SET state = ?, lobby_id = ?, dota_match_id = ? WHERE game_id = ?`,
		MatchStateRunning, lobbyID, dotaMatchID, gameID)
	return err
}

// FinalizeMatch records the result and moves the match to a terminal state.
func (s *SQLiteStore) FinalizeMatch(ctx context.Context, gameID int64, winningTeam, state string) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE matches SET winning_team = ?, state = ?, ended_at = ? WHERE game_id = ?`,
		winningTeam, state, now, gameID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("match %d not found", gameID)
	}
	return nil
}

// SetRatingsForMatch writes post-game ratings atomically.
func (s *SQLiteStore) SetRatingsForMatch(ctx context.Context, gameID int64, after map[string]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for steamID, r := range after {
		if _, err := tx.ExecContext(ctx,
			`UPDATE match_players SET rating_after = ? WHERE game_id = ? AND steam_id = ?`,
			r, gameID, steamID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET rating = ?, updated_at = ? WHERE steam_id = ?`,
			r, now, steamID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SwapMatchPlayerTeams exchanges the recorded teams of two players.
func (s *SQLiteStore) SwapMatchPlayerTeams(ctx context.Context, gameID int64, a, b string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var teamA, teamB string
	if err := tx.QueryRowContext(ctx,
		`SELECT team FROM match_players WHERE game_id = ? AND steam_id = ?`, gameID, a).Scan(&teamA); err != nil {
		return fmt.Errorf("player %s not in match %d: %w", a, gameID, err)
	}
	if err := tx.QueryRowContext(ctx,
		`SELECT team FROM match_players WHERE game_id = ? AND steam_id = ?`, gameID, b).Scan(&teamB); err != nil {
		return fmt.Errorf("player %s not in match %d: %w", b, gameID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE match_players SET team = ? WHERE game_id = ? AND steam_id = ?`, teamB, gameID, a); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE match_players SET team = ? WHERE game_id = ? AND steam_id = ?`, teamA, gameID, b); err != nil {
		return err
	}

	return tx.Commit()
}

// ReplaceMatchPlayer substitutes one rostered player for another.
func (s *SQLiteStore) ReplaceMatchPlayer(ctx context.Context, gameID int64, out string, in MatchPlayer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM match_players WHERE game_id = ? AND steam_id = ?`, gameID, out)
	if err != nil {
		return err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if removed == 0 {
		return fmt.Errorf("player %s not in match %d", out, gameID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO match_players (game_id, steam_id, team, rating_before)
		 VALUES (?, ?, ?, ?)`,
		gameID, in.SteamID, in.Team, in.RatingBefore); err != nil {
		return err
	}

	return tx.Commit()
}

// BackfillMatchDetails stores Web API audit data for an ended match.
func (s *SQLiteStore) BackfillMatchDetails(ctx context.Context, gameID int64, dotaMatchID uint64, duration, radiantScore, direScore int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE matches SET dota_match_id = ?, duration = ?, radiant_score = ?, dire_score = ?
		 WHERE game_id = ?`,
		dotaMatchID, duration, radiantScore, direScore, gameID)
	return err
}

// GetMatch retrieves a match by game ID.
func (s *SQLiteStore) GetMatch(ctx context.Context, gameID int64) (*Match, error) {
	var m Match
	var lobbyID, dotaMatchID sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT game_id, lobby_id, dota_match_id, state, game_mode, server_region,
		        lobby_type, league_id, winning_team, started_at, ended_at,
		        duration, radiant_score, dire_score
		 FROM matches WHERE game_id = ?`, gameID).Scan(
		&m.GameID, &lobbyID, &dotaMatchID, &m.State, &m.GameMode, &m.ServerRegion,
		&m.LobbyType, &m.LeagueID, &m.WinningTeam, &m.StartedAt, &m.EndedAt,
		&m.Duration, &m.RadiantScore, &m.DireScore,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.LobbyID = uint64(lobbyID.Int64)
	m.DotaMatchID = uint64(dotaMatchID.Int64)
	return &m, nil
}

// GetMatchPlayers retrieves all players for a match.
func (s *SQLiteStore) GetMatchPlayers(ctx context.Context, gameID int64) ([]MatchPlayer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT game_id, steam_id, team, rating_before, rating_after
		 FROM match_players WHERE game_id = ?`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []MatchPlayer
	for rows.Next() {
		var mp MatchPlayer
		if err := rows.Scan(&mp.GameID, &mp.SteamID, &mp.Team, &mp.RatingBefore, &mp.RatingAfter); err != nil {
			return nil, err
		}
		players = append(players, mp)
	}
	return players, rows.Err()
}

// ListMatches retrieves the most recent finished matches.
func (s *SQLiteStore) ListMatches(ctx context.Context, limit int) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT game_id, lobby_id, dota_match_id, state, game_mode, server_region,
		        lobby_type, league_id, winning_team, started_at, ended_at,
		        duration, radiant_score, dire_score
		 FROM matches
		 WHERE state IN (?, ?)
		 ORDER BY ended_at DESC
		 LIMIT ?`, MatchStateEnded, MatchStateCanceled, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMatches(rows)
}

// ListUnfinishedMatches returns matches that never reached a terminal state,
// typically after a crash.
func (s *SQLiteStore) ListUnfinishedMatches(ctx context.Context) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT game_id, lobby_id, dota_match_id, state, game_mode, server_region,
		        lobby_type, league_id, winning_team, started_at, ended_at,
		        duration, radiant_score, dire_score
		 FROM matches
		 WHERE state NOT IN (?, ?)
		 ORDER BY game_id`, MatchStateEnded, MatchStateCanceled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMatches(rows)
}

func scanMatches(rows *sql.Rows) ([]Match, error) {
	var matches []Match
	for rows.Next() {
		var m Match
		var lobbyID, dotaMatchID sql.NullInt64
		if err := rows.Scan(
			&m.GameID, &lobbyID, &dotaMatchID, &m.State, &m.GameMode, &m.ServerRegion,
			&m.LobbyType, &m.LeagueID, &m.WinningTeam, &m.StartedAt, &m.EndedAt,
			&m.Duration, &m.RadiantScore, &m.DireScore,
		); err != nil {
			return nil, err
		}
		m.LobbyID = uint64(lobbyID.Int64)
		m.DotaMatchID = uint64(dotaMatchID.Int64)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Leaderboard returns every user with their rating and win/loss record.
func (s *SQLiteStore) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			u.steam_id,
			u.name,
			u.avatar_url,
			u.rating,
			COALESCE(SUM(CASE WHEN m.winning_team = mp.team THEN 1 ELSE 0 END), 0) AS wins,
			COALESCE(SUM(CASE WHEN m.winning_team IS NOT NULL
				AND m.winning_team != 'none'
				AND m.winning_team != mp.team THEN 1 ELSE 0 END), 0) AS losses
		FROM users u
		LEFT JOIN match_players mp ON mp.steam_id = u.steam_id
		LEFT JOIN matches m ON m.game_id = mp.game_id AND m.state = 'ended'
		GROUP BY u.steam_id
		ORDER BY u.rating DESC, wins DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		var avatar sql.NullString
		if err := rows.Scan(&e.SteamID, &e.Name, &avatar, &e.Rating, &e.Wins, &e.Losses); err != nil {
			return nil, err
		}
		e.AvatarURL = avatar.String
		e.Total = e.Wins + e.Losses
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SavePushSubscription stores or refreshes a push subscription.
func (s *SQLiteStore) SavePushSubscription(ctx context.Context, sub *PushSubscription) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (endpoint, steam_id, p256dh, auth)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET
		 	steam_id = excluded.steam_id,
		 	p256dh = excluded.p256dh,
		 	auth = excluded.auth`,
		sub.Endpoint, sub.SteamID, sub.P256dh, sub.Auth,
	)
	return err
}

// GetPushSubscriptions returns all subscriptions for a user.
func (s *SQLiteStore) GetPushSubscriptions(ctx context.Context, steamID string) ([]PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT endpoint, steam_id, p256dh, auth, created_at
		 FROM push_subscriptions WHERE steam_id = ?`, steamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []PushSubscription
	for rows.Next() {
		var sub PushSubscription
		if err := rows.Scan(&sub.Endpoint, &sub.SteamID, &sub.P256dh, &sub.Auth, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeletePushSubscription removes a subscription by endpoint.
func (s *SQLiteStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	return err
}
