package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/models"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/sources"
)

// ResolvedCredential is a decrypted credential payload.
type ResolvedCredential struct {
	Service   string
	Type      string
	IsValid   bool
	ExpiresAt *time.Time
	data      map[string]json.RawMessage
}

// String returns a payload field as text. Numbers keep their literal digits,
// anything else is empty.
func (c *ResolvedCredential) String(key string) string {
	raw, ok := c.data[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	lit := strings.TrimSpace(string(raw))
	if _, err := strconv.ParseFloat(lit, 64); err == nil {
		return lit
	}
	return ""
}

func (c *ResolvedCredential) SteamID() string     { return c.String("steam_id") }
func (c *ResolvedCredential) AccountID() string   { return c.String("account_id") }
func (c *ResolvedCredential) AccessToken() string { return c.String("access_token") }

// Expired reports whether the credential carries an expiry at or before now.
func (c *ResolvedCredential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// CredentialInput is a plaintext credential to be sealed and stored.
type CredentialInput struct {
	Service   string
	Type      string
	Data      map[string]any
	Metadata  map[string]any
	ExpiresAt *time.Time
}

type CredentialService struct {
	store  CredentialStore
	vault  Sealer
	logger *slog.Logger
	now    func() time.Time
}

func NewCredentialService(store CredentialStore, vault Sealer, logger *slog.Logger) *CredentialService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{
		store:  store,
		vault:  vault,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Resolve loads and decrypts the user's credential for service.
// Missing, inactive and undecryptable rows are all reported as ErrNotConfigured.
func (s *CredentialService) Resolve(ctx context.Context, userID uuid.UUID, service string) (*ResolvedCredential, error) {
	row, err := s.store.Find(ctx, userID, service)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if !row.IsActive {
		return nil, ErrNotConfigured
	}

	var data map[string]json.RawMessage
	if err := s.vault.Decrypt(row.EncryptedData, &data); err != nil {
		s.logger.Warn("stored credential could not be decrypted",
			"user_id", userID.String(), "service", service, "error", err)
		metrics.CredentialDecryptFailures.WithLabelValues(service).Inc()
		return nil, ErrNotConfigured
	}

	return &ResolvedCredential{
		Service:   row.ServiceName,
		Type:      row.CredentialType,
		IsValid:   row.IsValid,
		ExpiresAt: row.ExpiresAt,
		data:      data,
	}, nil
}

// reservedServices are written only by their own linking flow.
var reservedServices = map[string]bool{
	string(sources.Steam): true,
}

// Save seals in.Data and upserts it, resetting the row to active and valid.
// Services with a verified linking flow are rejected here.
func (s *CredentialService) Save(ctx context.Context, userID uuid.UUID, in CredentialInput) (*models.UserCredential, error) {
	service := strings.ToLower(strings.TrimSpace(in.Service))
	if reservedServices[service] {
		return nil, fmt.Errorf("%w: %s credentials are created by account linking", ErrValidation, service)
	}
	return s.save(ctx, userID, in)
}

func (s *CredentialService) save(ctx context.Context, userID uuid.UUID, in CredentialInput) (*models.UserCredential, error) {
	service := strings.ToLower(strings.TrimSpace(in.Service))
	if service == "" {
		return nil, fmt.Errorf("%w: service name is required", ErrValidation)
	}
	if strings.TrimSpace(in.Type) == "" {
		return nil, fmt.Errorf("%w: credential type is required", ErrValidation)
	}
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: credential data is required", ErrValidation)
	}

	envelope, err := s.vault.Encrypt(in.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credential: %w", err)
	}

	meta := datatypes.JSON("{}")
	if len(in.Metadata) > 0 {
		b, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata is not serializable", ErrValidation)
		}
		meta = datatypes.JSON(b)
	}

	row := &models.UserCredential{
		UserID:         userID,
		ServiceName:    service,
		CredentialType: in.Type,
		EncryptedData:  envelope,
		Metadata:       meta,
		IsActive:       true,
		IsValid:        true,
		ExpiresAt:      in.ExpiresAt,
	}
	if err := s.store.Upsert(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to save credential: %w", err)
	}
	return row, nil
}

func (s *CredentialService) List(ctx context.Context, userID uuid.UUID) ([]models.UserCredential, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *CredentialService) Delete(ctx context.Context, userID uuid.UUID, service string) error {
	return s.store.Delete(ctx, userID, strings.ToLower(strings.TrimSpace(service)))
}

// MarkValidation records whether the last provider call accepted the credential.
// Failures are logged only; they never fail the calling sync.
func (s *CredentialService) MarkValidation(ctx context.Context, userID uuid.UUID, service string, valid bool) {
	if err := s.store.UpdateValidationStatus(ctx, userID, service, valid, s.now()); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Warn("failed to update credential validation status",
			"user_id", userID.String(), "service", service, "valid", valid, "error", err)
	}
}
