package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SteamConfig configures the Steam Web API client.
type SteamConfig struct {
	APIKey  string
	BaseURL string
	Client  ClientConfig
}

// SteamClient implements Adapter for the Steam Web API.
//
// A sync issues three calls in order: achievement schema, player unlocks and
// global percentages. Only the schema call is required.
type SteamClient struct {
	apiKey  string
	baseURL string
	api     *apiClient
	logger  *slog.Logger
}

func NewSteamClient(cfg SteamConfig, logger *slog.Logger) *SteamClient {
	if logger == nil {
		logger = slog.Default()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.steampowered.com"
	}
	return &SteamClient{
		apiKey:  cfg.APIKey,
		baseURL: base,
		api:     newAPIClient(Steam, cfg.Client, logger),
		logger:  logger,
	}
}

func (c *SteamClient) Source() Source { return Steam }

type steamSchemaResponse struct {
	Game struct {
		GameName           string `json:"gameName"`
		AvailableGameStats struct {
			Achievements []steamSchemaAchievement `json:"achievements"`
		} `json:"availableGameStats"`
	} `json:"game"`
}

type steamSchemaAchievement struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	Description  string `json:"description"`
	Icon         string `json:"icon"`
	IconGray     string `json:"icongray"`
	Hidden       int    `json:"hidden"`
	DefaultValue int    `json:"defaultvalue"`
}

type steamPlayerAchievementsResponse struct {
	PlayerStats struct {
		SteamID      string `json:"steamID"`
		Success      bool   `json:"success"`
		Error        string `json:"error"`
		Achievements []struct {
			APIName    string `json:"apiname"`
			Achieved   int    `json:"achieved"`
			UnlockTime int64  `json:"unlocktime"`
		} `json:"achievements"`
	} `json:"playerstats"`
}

type steamGlobalPercentagesResponse struct {
	AchievementPercentages struct {
		Achievements []struct {
			Name    string        `json:"name"`
			Percent flexibleFloat `json:"percent"`
		} `json:"achievements"`
	} `json:"achievementpercentages"`
}

type steamPlayerSummariesResponse struct {
	Response struct {
		Players []SteamPlayerSummary `json:"players"`
	} `json:"response"`
}

// SteamPlayerSummary is the public profile of a Steam account.
type SteamPlayerSummary struct {
	SteamID     string `json:"steamid"`
	PersonaName string `json:"personaname"`
	ProfileURL  string `json:"profileurl"`
	AvatarFull  string `json:"avatarfull"`
}

// flexibleFloat accepts both JSON numbers and numeric strings; Steam returns either.
type flexibleFloat float64

func (f *flexibleFloat) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*f = flexibleFloat(v)
	return nil
}

type steamUnlock struct {
	achieved bool
	at       *time.Time
}

// FetchAchievements returns the normalized achievement list for a Steam app id.
func (c *SteamClient) FetchAchievements(ctx context.Context, appID string, account Account) ([]NormalizedAchievement, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if account.ID == "" {
		return nil, ErrMissingAccount
	}

	schema, err := c.fetchSchema(ctx, appID)
	if err != nil {
		c.logger.Warn("steam schema fetch failed", "source", string(Steam), "app_id", appID, "error", err)
		return []NormalizedAchievement{}, nil
	}

	unlocks, err := c.fetchPlayerAchievements(ctx, appID, account.ID)
	unlockUnknown := err != nil
	if err != nil {
		c.logger.Warn("steam player achievements unavailable, unlock state unknown",
			"source", string(Steam), "app_id", appID, "error", err)
		unlocks = map[string]steamUnlock{}
	}

	rarity, err := c.fetchGlobalPercentages(ctx, appID)
	if err != nil {
		c.logger.Warn("steam global percentages unavailable", "source", string(Steam), "app_id", appID, "error", err)
		rarity = map[string]float64{}
	}

	out := make([]NormalizedAchievement, 0, len(schema))
	for _, a := range schema {
		n := NormalizedAchievement{
			ExternalID:    a.Name,
			Name:          a.DisplayName,
			Description:   a.Description,
			IconURL:       a.Icon,
			UnlockUnknown: unlockUnknown,
		}
		if n.Name == "" {
			n.Name = a.Name
		}
		if u, ok := unlocks[a.Name]; ok {
			n.Unlocked = u.achieved
			n.UnlockTime = u.at
		}
		if pct, ok := rarity[a.Name]; ok {
			p := pct
			n.RarityPercentage = &p
		}
		out = append(out, n)
	}
	return out, nil
}

func (c *SteamClient) fetchSchema(ctx context.Context, appID string) ([]steamSchemaAchievement, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("appid", appID)
	req, err := c.newRequest(ctx, "/ISteamUserStats/GetSchemaForGame/v2/", q)
	if err != nil {
		return nil, err
	}

	var resp steamSchemaResponse
	if err := c.api.getJSON(ctx, "GetSchemaForGame", req, &resp); err != nil {
		return nil, err
	}
	return resp.Game.AvailableGameStats.Achievements, nil
}

func (c *SteamClient) fetchPlayerAchievements(ctx context.Context, appID, steamID string) (map[string]steamUnlock, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("appid", appID)
	q.Set("steamid", steamID)
	req, err := c.newRequest(ctx, "/ISteamUserStats/GetPlayerAchievements/v1/", q)
	if err != nil {
		return nil, err
	}

	var resp steamPlayerAchievementsResponse
	if err := c.api.getJSON(ctx, "GetPlayerAchievements", req, &resp); err != nil {
		return nil, err
	}
	if !resp.PlayerStats.Success {
		msg := resp.PlayerStats.Error
		if msg == "" {
			msg = "request unsuccessful"
		}
		return nil, fmt.Errorf("%w: GetPlayerAchievements: %s", ErrUpstream, msg)
	}

	out := make(map[string]steamUnlock, len(resp.PlayerStats.Achievements))
	for _, a := range resp.PlayerStats.Achievements {
		u := steamUnlock{achieved: a.Achieved == 1}
		if u.achieved && a.UnlockTime > 0 {
			t := time.Unix(a.UnlockTime, 0).UTC()
			u.at = &t
		}
		out[a.APIName] = u
	}
	return out, nil
}

func (c *SteamClient) fetchGlobalPercentages(ctx context.Context, appID string) (map[string]float64, error) {
	q := url.Values{}
	q.Set("gameid", appID)
	req, err := c.newRequest(ctx, "/ISteamUserStats/GetGlobalAchievementPercentagesForApp/v2/", q)
	if err != nil {
		return nil, err
	}

	var resp steamGlobalPercentagesResponse
	if err := c.api.getJSON(ctx, "GetGlobalAchievementPercentagesForApp", req, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(resp.AchievementPercentages.Achievements))
	for _, a := range resp.AchievementPercentages.Achievements {
		out[a.Name] = float64(a.Percent)
	}
	return out, nil
}

// GetPlayerSummary fetches the public profile for a Steam id.
func (c *SteamClient) GetPlayerSummary(ctx context.Context, steamID string) (*SteamPlayerSummary, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("steamids", steamID)
	req, err := c.newRequest(ctx, "/ISteamUser/GetPlayerSummaries/v2/", q)
	if err != nil {
		return nil, err
	}

	var resp steamPlayerSummariesResponse
	if err := c.api.getJSON(ctx, "GetPlayerSummaries", req, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Response.Players {
		if resp.Response.Players[i].SteamID == steamID {
			return &resp.Response.Players[i], nil
		}
	}
	return nil, errors.New("steam profile not found")
}

func (c *SteamClient) newRequest(ctx context.Context, path string, q url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build steam request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}
