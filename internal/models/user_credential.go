package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UserCredential holds one user's encrypted secret for one external service.
// EncryptedData is a vault envelope; the plaintext is never stored.
type UserCredential struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_user_credentials_user_service" json:"user_id"`
	ServiceName     string         `gorm:"size:50;not null;uniqueIndex:idx_user_credentials_user_service" json:"service_name"`
	CredentialType  string         `gorm:"size:50;not null" json:"credential_type"`
	EncryptedData   string         `gorm:"type:text;not null" json:"-"`
	Metadata        datatypes.JSON `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	IsActive        bool           `gorm:"not null;default:true" json:"is_active"`
	IsValid         bool           `gorm:"not null;default:true" json:"is_valid"`
	ExpiresAt       *time.Time     `json:"expires_at"`
	LastValidatedAt *time.Time     `json:"last_validated_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
