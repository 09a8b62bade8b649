// Package dotaapi is a thin client for the Dota 2 Web API match
// details endpoint.
package dotaapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const matchDetailsURL = "https://api.steampowered.com/IDOTA2Match_570/GetMatchDetails/v1"

// Client calls the Dota 2 Web API with a Steam API key.
type Client struct {
	apiKey string
	http   *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey: apiKey,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// MatchDetails is the subset of the API result the league cares about.
type MatchDetails struct {
	MatchID      uint64 `json:"match_id"`
	RadiantWin   bool   `json:"radiant_win"`
	Duration     int    `json:"duration"` // seconds
	StartTime    int64  `json:"start_time"`
	GameMode     int    `json:"game_mode"`
	RadiantScore int    `json:"radiant_score"`
	DireScore    int    `json:"dire_score"`
}

// GetMatchDetails fetches one match by its Dota match ID. A match the
// API does not know comes back with match_id 0, reported as an error.
func (c *Client) GetMatchDetails(ctx context.Context, matchID uint64) (*MatchDetails, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("no API key configured")
	}

	query := url.Values{}
	query.Set("key", c.apiKey)
	query.Set("match_id", strconv.FormatUint(matchID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, matchDetailsURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching match %d: %w", matchID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("match details API returned status %d", resp.StatusCode)
	}

	var body struct {
		Result MatchDetails `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding match details: %w", err)
	}
	if body.Result.MatchID == 0 {
		return nil, fmt.Errorf("match %d not found", matchID)
	}
	return &body.Result, nil
}

// Winner names the winning side per the API result.
func (m *MatchDetails) Winner() string {
	if m.RadiantWin {
		return "radiant"
	}
	return "dire"
}

// DurationFormatted renders the duration as mm:ss.
func (m *MatchDetails) DurationFormatted() string {
	return fmt.Sprintf("%d:%02d", m.Duration/60, m.Duration%60)
}
