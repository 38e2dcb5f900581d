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

// CredentialRepository stores vault envelopes keyed by (user, service).
// Every query is scoped by user id.
type CredentialRepository struct {
	base
}

func NewCredentialRepository(db *gorm.DB, logger *slog.Logger) *CredentialRepository {
	return &CredentialRepository{base: newBase(db, logger, "repository/credentials")}
}

func (r *CredentialRepository) Find(ctx context.Context, userID uuid.UUID, service string) (*models.UserCredential, error) {
	var c models.UserCredential
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND service_name = ?", userID, service).
		Take(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, r.logError("credential_repo_find_failed", err, "user_id", userID.String(), "service", service)
	}
	return &c, nil
}

// Upsert inserts or replaces the credential for (user, service).
func (r *CredentialRepository) Upsert(ctx context.Context, cred *models.UserCredential) error {
	cred.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "service_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"credential_type", "encrypted_data", "metadata", "is_active", "is_valid",
				"expires_at", "last_validated_at", "updated_at",
			}),
		},
		clause.Returning{},
	).Create(cred).Error
	if err != nil {
		return r.logError("credential_repo_upsert_failed", err,
			"user_id", cred.UserID.String(), "service", cred.ServiceName)
	}
	return nil
}

func (r *CredentialRepository) Delete(ctx context.Context, userID uuid.UUID, service string) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND service_name = ?", userID, service).
		Delete(&models.UserCredential{})
	if res.Error != nil {
		return r.logError("credential_repo_delete_failed", res.Error, "user_id", userID.String(), "service", service)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateValidationStatus records the outcome of the latest provider call made with the credential.
func (r *CredentialRepository) UpdateValidationStatus(ctx context.Context, userID uuid.UUID, service string, valid bool, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.UserCredential{}).
		Where("user_id = ? AND service_name = ?", userID, service).
		Updates(map[string]any{
			"is_valid":          valid,
			"last_validated_at": at.UTC(),
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return r.logError("credential_repo_update_validation_failed", res.Error,
			"user_id", userID.String(), "service", service)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CredentialRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserCredential, error) {
	var out []models.UserCredential
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("service_name ASC").
		Find(&out).Error; err != nil {
		return nil, r.logError("credential_repo_list_failed", err, "user_id", userID.String())
	}
	return out, nil
}
