package models

import (
	"time"

	"github.com/google/uuid"
)

// Achievement is one unlockable item for a (game, platform) pair, shared by all users.
type Achievement struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	GameID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_achievements_game_platform_ach" json:"game_id"`
	PlatformID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_achievements_game_platform_ach" json:"platform_id"`
	AchievementID string    `gorm:"size:255;not null;uniqueIndex:idx_achievements_game_platform_ach" json:"achievement_id"`
	Name          string    `gorm:"size:255;not null" json:"name"`
	Description   string    `gorm:"type:text" json:"description"`
	IconURL       *string   `gorm:"type:text" json:"icon_url"`
	Rarity        *float64  `json:"rarity"`
	Points        *int      `json:"points"`
	SourceAPI     string    `gorm:"size:32;not null;index" json:"source_api"`
	ExternalID    *string   `gorm:"size:255" json:"external_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UserAchievement is a user's unlock state for one catalog achievement.
// A missing row means locked.
type UserAchievement struct {
	ID            uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID        uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_user_achievements_user_ach" json:"user_id"`
	AchievementID uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_user_achievements_user_ach" json:"achievement_id"`
	Unlocked      bool        `gorm:"not null;default:false" json:"unlocked"`
	UnlockedAt    *time.Time  `json:"unlocked_at"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Achievement   Achievement `gorm:"foreignKey:AchievementID;constraint:OnDelete:CASCADE" json:"-"`
}

// UnlockStatus is the per-user state keyed by the provider achievement id during a sync.
type UnlockStatus struct {
	Unlocked   bool
	UnlockedAt *time.Time
}

// AchievementProgress is a catalog row left-joined with one user's unlock row.
type AchievementProgress struct {
	Achievement
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at"`
}
