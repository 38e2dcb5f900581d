package repository

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/models"
)

type GameRepository struct {
	base
}

func NewGameRepository(db *gorm.DB, logger *slog.Logger) *GameRepository {
	return &GameRepository{base: newBase(db, logger, "repository/games")}
}

// FindLibraryGame loads a game from the user's library with its provider ids
// and the platform the user owns it on.
func (r *GameRepository) FindLibraryGame(ctx context.Context, userID, gameID uuid.UUID) (*models.LibraryGame, error) {
	var row models.LibraryGame
	res := r.db.WithContext(ctx).
		Table("user_games AS ug").
		Select(`g.id AS game_id, g.title AS title,
			COALESCE(g.steam_app_id, '') AS steam_app_id,
			COALESCE(g.psn_title_id, '') AS psn_title_id,
			ug.platform_id AS platform_id,
			COALESCE(p.family, '') AS platform_family`).
		Joins("JOIN games g ON g.id = ug.game_id").
		Joins("LEFT JOIN platforms p ON p.id = ug.platform_id").
		Where("ug.user_id = ? AND ug.game_id = ?", userID, gameID).
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return nil, r.logError("game_repo_find_library_game_failed", res.Error,
			"user_id", userID.String(), "game_id", gameID.String())
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &row, nil
}
