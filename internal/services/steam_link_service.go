package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/dto"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/sources"
)

const steamCredentialType = "openid"

// SteamLinkService links a user's Steam account through OpenID 2.0.
type SteamLinkService struct {
	verifier     AssertionVerifier
	profiles     SteamProfiles
	credentials  *CredentialService
	callbackPath string
	logger       *slog.Logger
	now          func() time.Time
}

func NewSteamLinkService(
	verifier AssertionVerifier,
	profiles SteamProfiles,
	credentials *CredentialService,
	callbackPath string,
	logger *slog.Logger,
) *SteamLinkService {
	if logger == nil {
		logger = slog.Default()
	}
	if callbackPath == "" {
		callbackPath = "/integrations/steam/callback"
	}
	if !strings.HasPrefix(callbackPath, "/") {
		callbackPath = "/" + callbackPath
	}
	return &SteamLinkService{
		verifier:     verifier,
		profiles:     profiles,
		credentials:  credentials,
		callbackPath: callbackPath,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// LoginURL builds the provider redirect. The realm is the request origin; an
// explicit callback must live on that origin.
func (s *SteamLinkService) LoginURL(origin, callbackURL string) (string, error) {
	o, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || o.Scheme == "" || o.Host == "" {
		return "", fmt.Errorf("%w: invalid origin %q", ErrValidation, origin)
	}
	realm := o.Scheme + "://" + o.Host

	returnTo := realm + s.callbackPath
	if callbackURL != "" {
		cb, err := url.Parse(callbackURL)
		if err != nil || cb.Scheme+"://"+cb.Host != realm {
			return "", fmt.Errorf("%w: callback url must be on %s", ErrValidation, realm)
		}
		returnTo = cb.String()
	}
	return s.verifier.AuthURL(returnTo, realm), nil
}

// Link verifies the assertion and stores the Steam id. A failed verification is
// reported as Linked=false and writes nothing.
func (s *SteamLinkService) Link(ctx context.Context, userID uuid.UUID, params map[string]string) (*dto.SteamLinkResponse, error) {
	steamID, ok := s.verifier.Verify(ctx, params)
	if !ok {
		s.logger.Info("steam account link rejected", "user_id", userID.String())
		return &dto.SteamLinkResponse{Linked: false}, nil
	}

	resp := &dto.SteamLinkResponse{Linked: true, SteamID: steamID}
	if s.profiles != nil {
		profile, err := s.profiles.GetPlayerSummary(ctx, steamID)
		if err != nil {
			s.logger.Warn("steam profile lookup failed, linking without display metadata",
				"user_id", userID.String(), "source", string(sources.Steam), "error", err)
		} else {
			resp.PersonaName = profile.PersonaName
			resp.AvatarURL = profile.AvatarFull
			resp.ProfileURL = profile.ProfileURL
		}
	}

	_, err := s.credentials.save(ctx, userID, CredentialInput{
		Service: string(sources.Steam),
		Type:    steamCredentialType,
		Data: map[string]any{
			"steam_id":     steamID,
			"persona_name": resp.PersonaName,
			"avatar_url":   resp.AvatarURL,
			"profile_url":  resp.ProfileURL,
			"linked_at":    s.now().Format(time.RFC3339),
		},
		Metadata: map[string]any{
			"persona_name": resp.PersonaName,
			"avatar_url":   resp.AvatarURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *SteamLinkService) Unlink(ctx context.Context, userID uuid.UUID) error {
	return s.credentials.Delete(ctx, userID, string(sources.Steam))
}
