package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/models"
)

type PlatformRepository struct {
	base
}

func NewPlatformRepository(db *gorm.DB, logger *slog.Logger) *PlatformRepository {
	return &PlatformRepository{base: newBase(db, logger, "repository/platforms")}
}

func (r *PlatformRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Platform, error) {
	return r.take(ctx, "platform_repo_find_by_id_failed", r.db.Where("id = ?", id), "platform_id", id.String())
}

func (r *PlatformRepository) FindBySlug(ctx context.Context, slug string) (*models.Platform, error) {
	return r.take(ctx, "platform_repo_find_by_slug_failed", r.db.Where("slug = ?", slug), "slug", slug)
}

// FindByFamily returns the oldest platform of a family, e.g. "playstation".
func (r *PlatformRepository) FindByFamily(ctx context.Context, family string) (*models.Platform, error) {
	return r.take(ctx, "platform_repo_find_by_family_failed",
		r.db.Where("family = ?", family).Order("created_at ASC"), "family", family)
}

// First returns the oldest platform of any family.
func (r *PlatformRepository) First(ctx context.Context) (*models.Platform, error) {
	return r.take(ctx, "platform_repo_first_failed", r.db.Order("created_at ASC"))
}

func (r *PlatformRepository) take(ctx context.Context, event string, q *gorm.DB, attrs ...any) (*models.Platform, error) {
	var p models.Platform
	if err := q.WithContext(ctx).Take(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, r.logError(event, err, attrs...)
	}
	return &p, nil
}
