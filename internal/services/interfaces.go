package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/models"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/sources"
)

type GameLookup interface {
	FindLibraryGame(ctx context.Context, userID, gameID uuid.UUID) (*models.LibraryGame, error)
}

type PlatformLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Platform, error)
	FindBySlug(ctx context.Context, slug string) (*models.Platform, error)
	FindByFamily(ctx context.Context, family string) (*models.Platform, error)
	First(ctx context.Context) (*models.Platform, error)
}

type CredentialStore interface {
	Find(ctx context.Context, userID uuid.UUID, service string) (*models.UserCredential, error)
	Upsert(ctx context.Context, cred *models.UserCredential) error
	Delete(ctx context.Context, userID uuid.UUID, service string) error
	UpdateValidationStatus(ctx context.Context, userID uuid.UUID, service string, valid bool, at time.Time) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserCredential, error)
}

type AchievementStore interface {
	UpsertAchievementsWithProgress(ctx context.Context, records []models.Achievement, userID uuid.UUID, unlocks map[string]models.UnlockStatus) ([]models.Achievement, error)
	ListWithProgress(ctx context.Context, userID, gameID uuid.UUID, platformID *uuid.UUID, source string) ([]models.AchievementProgress, error)
	LatestPlatformForSource(ctx context.Context, gameID uuid.UUID, source string) (uuid.UUID, error)
	CountProgress(ctx context.Context, userID, gameID, platformID uuid.UUID) (unlocked, total int64, err error)
}

// Sealer encrypts credential payloads; *vault.Vault implements it.
type Sealer interface {
	Encrypt(v any) (string, error)
	Decrypt(envelope string, v any) error
}

type SteamProfiles interface {
	GetPlayerSummary(ctx context.Context, steamID string) (*sources.SteamPlayerSummary, error)
}

type AssertionVerifier interface {
	AuthURL(returnTo, realm string) string
	Verify(ctx context.Context, params map[string]string) (string, bool)
}
