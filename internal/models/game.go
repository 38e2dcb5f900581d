package models

import (
	"time"

	"github.com/google/uuid"
)

// Platform is a hardware/store platform an achievement list is attributed to.
type Platform struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Slug      string    `gorm:"size:50;not null;uniqueIndex" json:"slug"`
	Family    string    `gorm:"size:50;index" json:"family"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Game is the shared game record. External ids are optional per provider.
type Game struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Title      string    `gorm:"size:255;not null" json:"title"`
	SteamAppID *string   `gorm:"size:32;index" json:"steam_app_id"`
	PSNTitleID *string   `gorm:"size:64;index" json:"psn_title_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UserGame is a library entry: one game owned by one user, optionally on a platform.
type UserGame struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_user_games_user_game" json:"user_id"`
	GameID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_user_games_user_game" json:"game_id"`
	PlatformID *uuid.UUID `gorm:"type:uuid" json:"platform_id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Game       Game       `gorm:"foreignKey:GameID" json:"-"`
	Platform   *Platform  `gorm:"foreignKey:PlatformID" json:"-"`
}

// LibraryGame is the read shape returned by game lookups.
type LibraryGame struct {
	GameID         uuid.UUID
	Title          string
	SteamAppID     string
	PSNTitleID     string
	PlatformID     *uuid.UUID
	PlatformFamily string
}
