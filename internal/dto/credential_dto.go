package dto

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/models"
)

// SaveCredentialRequest stores a secret for a service. Data is encrypted before it is persisted.
type SaveCredentialRequest struct {
	CredentialType string         `json:"credential_type" validate:"required,max=50"`
	Data           map[string]any `json:"data" validate:"required,min=1"`
	Metadata       map[string]any `json:"metadata"`
	ExpiresAt      *time.Time     `json:"expires_at"`
}

// CredentialStatus describes a stored credential without its secret.
type CredentialStatus struct {
	Service         string         `json:"service"`
	CredentialType  string         `json:"credential_type"`
	IsActive        bool           `json:"is_active"`
	IsValid         bool           `json:"is_valid"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ExpiresAt       *time.Time     `json:"expires_at"`
	LastValidatedAt *time.Time     `json:"last_validated_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func NewCredentialStatus(c models.UserCredential) CredentialStatus {
	s := CredentialStatus{
		Service:         c.ServiceName,
		CredentialType:  c.CredentialType,
		IsActive:        c.IsActive,
		IsValid:         c.IsValid,
		ExpiresAt:       c.ExpiresAt,
		LastValidatedAt: c.LastValidatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if len(c.Metadata) > 0 {
		_ = json.Unmarshal(c.Metadata, &s.Metadata)
	}
	return s
}
