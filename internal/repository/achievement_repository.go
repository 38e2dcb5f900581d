package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/models"
)

var errEmptyUnlockTarget = errors.New("unlock rows reference no returned achievement")

type AchievementRepository struct {
	base
}

func NewAchievementRepository(db *gorm.DB, logger *slog.Logger) *AchievementRepository {
	return &AchievementRepository{base: newBase(db, logger, "repository/achievements")}
}

// catalogRarityKept leaves the stored rarity in place when a sync could not fetch one.
var catalogRarityKept = clause.Assignment{
	Column: clause.Column{Name: "rarity"},
	Value:  gorm.Expr("COALESCE(excluded.rarity, achievements.rarity)"),
}

// UpsertAchievementsWithProgress writes catalog rows and the user's unlock rows in
// one transaction. unlocks is keyed by the provider achievement id; catalog rows
// without an entry get no user row. Returns the post-upsert catalog rows.
func (r *AchievementRepository) UpsertAchievementsWithProgress(
	ctx context.Context,
	records []models.Achievement,
	userID uuid.UUID,
	unlocks map[string]models.UnlockStatus,
) ([]models.Achievement, error) {
	rows := dedupeLastWins(records, func(a models.Achievement) string { return a.AchievementID })
	if len(rows) == 0 {
		return []models.Achievement{}, nil
	}

	now := time.Now().UTC()
	for i := range rows {
		rows[i].ID = uuid.Nil
		rows[i].UpdatedAt = now
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "game_id"}, {Name: "platform_id"}, {Name: "achievement_id"}},
				DoUpdates: append(clause.AssignmentColumns([]string{
					"name", "description", "icon_url", "points",
					"source_api", "external_id", "updated_at",
				}), catalogRarityKept),
			},
			clause.Returning{},
		).Create(&rows).Error
		if err != nil {
			return err
		}

		userRows := make([]models.UserAchievement, 0, len(unlocks))
		for _, a := range rows {
			st, ok := unlocks[a.AchievementID]
			if !ok {
				continue
			}
			if a.ID == uuid.Nil {
				return errEmptyUnlockTarget
			}
			userRows = append(userRows, models.UserAchievement{
				UserID:        userID,
				AchievementID: a.ID,
				Unlocked:      st.Unlocked,
				UnlockedAt:    st.UnlockedAt,
				UpdatedAt:     now,
			})
		}
		if len(userRows) == 0 {
			return nil
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"unlocked", "unlocked_at", "updated_at"}),
		}).Create(&userRows).Error
	})
	if err != nil {
		return nil, r.logError("achievement_repo_upsert_failed", err,
			"user_id", userID.String(),
			"game_id", rows[0].GameID.String(),
			"platform_id", rows[0].PlatformID.String(),
			"source", rows[0].SourceAPI,
			"count", len(rows),
		)
	}
	return rows, nil
}

// ListWithProgress returns the catalog of one game and source joined with one
// user's unlock rows. A nil platformID matches any platform.
func (r *AchievementRepository) ListWithProgress(
	ctx context.Context,
	userID, gameID uuid.UUID,
	platformID *uuid.UUID,
	source string,
) ([]models.AchievementProgress, error) {
	q := r.db.WithContext(ctx).
		Table("achievements AS a").
		Select("a.*, COALESCE(ua.unlocked, false) AS unlocked, ua.unlocked_at AS unlocked_at").
		Joins("LEFT JOIN user_achievements ua ON ua.achievement_id = a.id AND ua.user_id = ?", userID).
		Where("a.game_id = ? AND a.source_api = ?", gameID, source)
	if platformID != nil {
		q = q.Where("a.platform_id = ?", *platformID)
	}

	var out []models.AchievementProgress
	if err := q.Order("a.name ASC, a.achievement_id ASC").Scan(&out).Error; err != nil {
		return nil, r.logError("achievement_repo_list_failed", err,
			"user_id", userID.String(), "game_id", gameID.String(), "source", source)
	}
	if out == nil {
		out = []models.AchievementProgress{}
	}
	return out, nil
}

// LatestPlatformForSource returns the platform of the most recently updated
// catalog row for a game and source, across all users.
func (r *AchievementRepository) LatestPlatformForSource(ctx context.Context, gameID uuid.UUID, source string) (uuid.UUID, error) {
	var row models.Achievement
	err := r.db.WithContext(ctx).
		Select("platform_id").
		Where("game_id = ? AND source_api = ?", gameID, source).
		Order("updated_at DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, r.logError("achievement_repo_latest_platform_failed", err,
			"game_id", gameID.String(), "source", source)
	}
	return row.PlatformID, nil
}

// CountProgress counts the catalog of a game on one platform and how much of it the user unlocked.
func (r *AchievementRepository) CountProgress(ctx context.Context, userID, gameID, platformID uuid.UUID) (unlocked, total int64, err error) {
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Achievement{}).
		Where("game_id = ? AND platform_id = ?", gameID, platformID).
		Count(&total).Error; err != nil {
		return 0, 0, r.logError("achievement_repo_count_total_failed", err,
			"game_id", gameID.String(), "platform_id", platformID.String())
	}
	if total == 0 {
		return 0, 0, nil
	}

	if err := db.Table("user_achievements AS ua").
		Joins("JOIN achievements a ON a.id = ua.achievement_id").
		Where("ua.user_id = ? AND ua.unlocked = ? AND a.game_id = ? AND a.platform_id = ?", userID, true, gameID, platformID).
		Count(&unlocked).Error; err != nil {
		return 0, 0, r.logError("achievement_repo_count_unlocked_failed", err,
			"user_id", userID.String(), "game_id", gameID.String(), "platform_id", platformID.String())
	}
	return unlocked, total, nil
}
