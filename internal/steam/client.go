package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "trophybot/pkg/logx"
)

const defaultBaseURL = "https://api.steampowered.com"

// Config configures the Web API client.
type Config struct {
	// BaseURL overrides the API host (tests).
	BaseURL string

	// Timeout bounds a single request (default 10s).
	Timeout time.Duration

	// RatePerSec throttles outbound calls across all accounts (default 2).
	RatePerSec int
}

// Client is a thin, rate-limited Steam Web API reader.
//
// Every method returns an error on any HTTP or decode failure; callers treat
// that as "no data this cycle", never as fatal.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 2
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base:    base,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.base + "/" + strings.Trim(endpoint, "/") + "/?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 512)
		return fmt.Errorf("%s: unexpected status %d", endpoint, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", endpoint, err)
	}
	return nil
}

// PlayerSummary fetches the account summary for one Steam ID.
func (c *Client) PlayerSummary(ctx context.Context, apiKey, steamID string) (Account, error) {
	params := url.Values{}
	params.Set("key", apiKey)
	params.Set("steamids", steamID)

	var out playerSummariesResponse
	if err := c.get(ctx, "ISteamUser/GetPlayerSummaries/v0002", params, &out); err != nil {
		return Account{}, err
	}
	if len(out.Response.Players) == 0 {
		return Account{}, fmt.Errorf("GetPlayerSummaries: no player for %s", steamID)
	}
	p := out.Response.Players[0]
	acc := Account{
		SteamID:    p.SteamID,
		Name:       p.PersonaName,
		ProfileURL: p.ProfileURL,
		AvatarURL:  p.AvatarFull,
	}
	if acc.SteamID == "" {
		acc.SteamID = steamID
	}
	if p.TimeCreated > 0 {
		acc.CreatedAt = time.Unix(p.TimeCreated, 0)
	}
	return acc, nil
}

// OwnedGames fetches the owned-games list with app info.
func (c *Client) OwnedGames(ctx context.Context, apiKey, steamID string) ([]OwnedGame, error) {
	params := url.Values{}
	params.Set("key", apiKey)
	params.Set("steamid", steamID)
	params.Set("include_appinfo", "1")
	params.Set("include_played_free_games", "1")

	var out ownedGamesResponse
	if err := c.get(ctx, "IPlayerService/GetOwnedGames/v0001", params, &out); err != nil {
		return nil, err
	}
	return mapGames(out.Response.Games), nil
}

// RecentlyPlayedGames fetches the recently-played list. It also covers
// family-shared games that never appear on the owned list.
func (c *Client) RecentlyPlayedGames(ctx context.Context, apiKey, steamID string) ([]OwnedGame, error) {
	params := url.Values{}
	params.Set("key", apiKey)
	params.Set("steamid", steamID)

	var out recentlyPlayedResponse
	if err := c.get(ctx, "IPlayerService/GetRecentlyPlayedGames/v0001", params, &out); err != nil {
		return nil, err
	}
	return mapGames(out.Response.Games), nil
}

func mapGames(in []wireGame) []OwnedGame {
	games := make([]OwnedGame, 0, len(in))
	for _, g := range in {
		games = append(games, OwnedGame{
			AppID:      g.AppID,
			Name:       g.Name,
			IconURL:    iconURL(g.AppID, g.ImgIconURL),
			StoreURL:   storeURL(g.AppID),
			LastPlayed: unixOrNil(g.RTimeLastPlayed),
		})
	}
	return games
}

// GameSchema fetches the achievement definitions for one game. A game with
// no achievement block yields an empty slice, not an error.
func (c *Client) GameSchema(ctx context.Context, apiKey string, appID int) ([]SchemaAchievement, error) {
	params := url.Values{}
	params.Set("key", apiKey)
	params.Set("appid", strconv.Itoa(appID))
	params.Set("l", "en")

	var out gameSchemaResponse
	if err := c.get(ctx, "ISteamUserStats/GetSchemaForGame/v2", params, &out); err != nil {
		return nil, err
	}

	in := out.Game.AvailableGameStats.Achievements
	defs := make([]SchemaAchievement, 0, len(in))
	for _, a := range in {
		defs = append(defs, SchemaAchievement{
			AppID:       appID,
			APIName:     a.Name,
			DisplayName: a.DisplayName,
			Hidden:      a.Hidden != 0,
			Description: a.Description,
			IconURL:     a.Icon,
			IconGrayURL: a.IconGray,
		})
	}
	return defs, nil
}

// PlayerAchievements fetches one account's unlock records for one game.
func (c *Client) PlayerAchievements(ctx context.Context, apiKey, steamID string, appID int) ([]PlayerAchievement, error) {
	params := url.Values{}
	params.Set("key", apiKey)
	params.Set("steamid", steamID)
	params.Set("appid", strconv.Itoa(appID))
	params.Set("l", "en")

	var out playerAchievementsResponse
	if err := c.get(ctx, "ISteamUserStats/GetPlayerAchievements/v0001", params, &out); err != nil {
		return nil, err
	}
	if !out.PlayerStats.Success && out.PlayerStats.Error != "" {
		return nil, fmt.Errorf("GetPlayerAchievements: %s", out.PlayerStats.Error)
	}

	in := out.PlayerStats.Achievements
	recs := make([]PlayerAchievement, 0, len(in))
	for _, a := range in {
		rec := PlayerAchievement{
			APIName:     a.APIName,
			Achieved:    a.Achieved == 1,
			Name:        a.Name,
			Description: a.Description,
		}
		if rec.Achieved {
			rec.UnlockTime = unixOrNil(a.UnlockTime)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// GlobalAchievementPercentages fetches global unlock rarity per achievement
// apiname. The endpoint is keyless and may be missing for some games.
func (c *Client) GlobalAchievementPercentages(ctx context.Context, appID int) (map[string]float64, error) {
	params := url.Values{}
	params.Set("gameid", strconv.Itoa(appID))

	var out globalPercentagesResponse
	if err := c.get(ctx, "ISteamUserStats/GetGlobalAchievementPercentagesForApp/v0002", params, &out); err != nil {
		return nil, err
	}
	pct := make(map[string]float64, len(out.AchievementPercentages.Achievements))
	for _, a := range out.AchievementPercentages.Achievements {
		pct[a.Name] = a.Percent
	}
	return pct, nil
}
