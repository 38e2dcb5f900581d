package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	psnPageSize = 100
	psnMaxPages = 50
)

// trophyPoints is the conventional score per trophy grade.
var trophyPoints = map[string]int{
	"bronze":   15,
	"silver":   30,
	"gold":     90,
	"platinum": 300,
}

type PSNConfig struct {
	BaseURL string
	Client  ClientConfig
}

// PSNClient implements Adapter for PlayStation Network trophy lists.
// Unlike Steam it needs a per-user bearer token and returns progress inline.
type PSNClient struct {
	baseURL string
	api     *apiClient
	logger  *slog.Logger
}

func NewPSNClient(cfg PSNConfig, logger *slog.Logger) *PSNClient {
	if logger == nil {
		logger = slog.Default()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://m.np.playstation.com/api"
	}
	return &PSNClient{
		baseURL: base,
		api:     newAPIClient(PSN, cfg.Client, logger),
		logger:  logger,
	}
}

func (c *PSNClient) Source() Source { return PSN }

type psnTrophyPage struct {
	Trophies       []psnTrophy `json:"trophies"`
	NextOffset     int         `json:"nextOffset"`
	TotalItemCount int         `json:"totalItemCount"`
}

type psnTrophy struct {
	TrophyID         int           `json:"trophyId"`
	TrophyType       string        `json:"trophyType"`
	TrophyName       string        `json:"trophyName"`
	TrophyDetail     string        `json:"trophyDetail"`
	TrophyIconURL    string        `json:"trophyIconUrl"`
	TrophyEarnedRate flexibleFloat `json:"trophyEarnedRate"`
	Earned           bool          `json:"earned"`
	EarnedDateTime   string        `json:"earnedDateTime"`
}

// FetchAchievements pages through the trophy list of one title for one account.
func (c *PSNClient) FetchAchievements(ctx context.Context, titleID string, account Account) ([]NormalizedAchievement, error) {
	if account.ID == "" {
		return nil, ErrMissingAccount
	}
	if account.Token == "" {
		return nil, ErrUnauthorized
	}

	var out []NormalizedAchievement
	offset := 0
	for page := 0; page < psnMaxPages; page++ {
		p, err := c.fetchPage(ctx, titleID, account, offset)
		if err != nil {
			return nil, err
		}
		for _, t := range p.Trophies {
			out = append(out, normalizeTrophy(t))
		}
		if p.NextOffset <= offset || len(p.Trophies) == 0 || (p.TotalItemCount > 0 && p.NextOffset >= p.TotalItemCount) {
			break
		}
		offset = p.NextOffset
	}
	if out == nil {
		out = []NormalizedAchievement{}
	}
	return out, nil
}

func (c *PSNClient) fetchPage(ctx context.Context, titleID string, account Account, offset int) (*psnTrophyPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(psnPageSize))
	q.Set("offset", strconv.Itoa(offset))
	endpoint := fmt.Sprintf("%s/trophy/v1/users/%s/titles/%s/trophies?%s",
		c.baseURL, url.PathEscape(account.ID), url.PathEscape(titleID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build psn request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+account.Token)

	var page psnTrophyPage
	if err := c.api.getJSON(ctx, "UserTitleTrophies", req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func normalizeTrophy(t psnTrophy) NormalizedAchievement {
	n := NormalizedAchievement{
		ExternalID:  strconv.Itoa(t.TrophyID),
		Name:        t.TrophyName,
		Description: t.TrophyDetail,
		IconURL:     t.TrophyIconURL,
		Unlocked:    t.Earned,
	}
	if t.TrophyEarnedRate > 0 {
		r := float64(t.TrophyEarnedRate)
		n.RarityPercentage = &r
	}
	if pts, ok := trophyPoints[strings.ToLower(t.TrophyType)]; ok {
		p := pts
		n.Points = &p
	}
	if t.Earned && t.EarnedDateTime != "" {
		if ts, err := time.Parse(time.RFC3339, t.EarnedDateTime); err == nil {
			ts = ts.UTC()
			n.UnlockTime = &ts
		}
	}
	return n
}
