package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/models"
)

type SyncRequest struct {
	Source string `json:"source" validate:"required,max=32"`
}

// AchievementView is one catalog entry with the caller's unlock state.
type AchievementView struct {
	ID            uuid.UUID  `json:"id"`
	AchievementID string     `json:"achievement_id"`
	PlatformID    uuid.UUID  `json:"platform_id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	IconURL       *string    `json:"icon_url"`
	Rarity        *float64   `json:"rarity"`
	Points        *int       `json:"points"`
	Source        string     `json:"source"`
	Unlocked      bool       `json:"unlocked"`
	UnlockedAt    *time.Time `json:"unlocked_at"`
}

type AchievementsResponse struct {
	Source       string            `json:"source"`
	Achievements []AchievementView `json:"achievements"`
	Total        int               `json:"total"`
	Unlocked     int               `json:"unlocked"`
}

type ProgressResponse struct {
	Unlocked   int64 `json:"unlocked"`
	Total      int64 `json:"total"`
	Percentage int   `json:"percentage"`
}

// NewAchievementsResponse counts unlocked rows while converting them.
func NewAchievementsResponse(source string, rows []models.AchievementProgress) *AchievementsResponse {
	resp := &AchievementsResponse{
		Source:       source,
		Achievements: make([]AchievementView, 0, len(rows)),
		Total:        len(rows),
	}
	for _, r := range rows {
		if r.Unlocked {
			resp.Unlocked++
		}
		resp.Achievements = append(resp.Achievements, AchievementView{
			ID:            r.ID,
			AchievementID: r.AchievementID,
			PlatformID:    r.PlatformID,
			Name:          r.Name,
			Description:   r.Description,
			IconURL:       r.IconURL,
			Rarity:        r.Rarity,
			Points:        r.Points,
			Source:        r.SourceAPI,
			Unlocked:      r.Unlocked,
			UnlockedAt:    r.UnlockedAt,
		})
	}
	return resp
}
