package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/dto"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/models"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/sources"
)

// AttributionConfig decides which platform synced rows are stored under.
type AttributionConfig struct {
	SteamPlatformSlug       string
	PSNPlatformFamily       string
	PSNFallbackPlatformSlug string
}

type attemptOutcome string

const (
	outcomeSucceeded attemptOutcome = "succeeded"
	outcomeSkipped   attemptOutcome = "skipped"
	outcomeFailed    attemptOutcome = "failed"
	outcomeEmpty     attemptOutcome = "empty"
)

// syncAttempt is the result of trying one live source inside GetAchievements.
type syncAttempt struct {
	Source   sources.Source
	Outcome  attemptOutcome
	Reason   string
	Response *dto.AchievementsResponse
}

// pickAttempt returns the first successful attempt.
func pickAttempt(attempts []syncAttempt) (syncAttempt, bool) {
	for _, a := range attempts {
		if a.Outcome == outcomeSucceeded && a.Response != nil {
			return a, true
		}
	}
	return syncAttempt{}, false
}

type AchievementService struct {
	games       GameLookup
	platforms   PlatformLookup
	store       AchievementStore
	credentials *CredentialService
	registry    *sources.Registry
	attribution AttributionConfig
	logger      *slog.Logger
	now         func() time.Time
}

func NewAchievementService(
	games GameLookup,
	platforms PlatformLookup,
	store AchievementStore,
	credentials *CredentialService,
	registry *sources.Registry,
	attribution AttributionConfig,
	logger *slog.Logger,
) *AchievementService {
	if logger == nil {
		logger = slog.Default()
	}
	if attribution.SteamPlatformSlug == "" {
		attribution.SteamPlatformSlug = "pc"
	}
	if attribution.PSNPlatformFamily == "" {
		attribution.PSNPlatformFamily = "playstation"
	}
	return &AchievementService{
		games:       games,
		platforms:   platforms,
		store:       store,
		credentials: credentials,
		registry:    registry,
		attribution: attribution,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// GetAchievements tries each live source in order and falls back to stored rows.
// Only a missing library game is reported as an error.
func (s *AchievementService) GetAchievements(ctx context.Context, userID, gameID uuid.UUID) (*dto.AchievementsResponse, error) {
	game, err := s.games.FindLibraryGame(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}

	attempts := make([]syncAttempt, 0, len(sources.LiveOrder))
	for _, src := range sources.LiveOrder {
		a := s.attempt(ctx, userID, game, src)
		attempts = append(attempts, a)
		metrics.SyncAttempts.WithLabelValues(string(src), string(a.Outcome)).Inc()
		if a.Outcome == outcomeFailed || a.Outcome == outcomeEmpty {
			s.logger.Warn("live achievement sync fell through",
				"user_id", userID.String(),
				"game_id", gameID.String(),
				"source", string(src),
				"outcome", string(a.Outcome),
				"reason", a.Reason,
			)
		}
		if a.Outcome == outcomeSucceeded {
			break
		}
	}

	if a, ok := pickAttempt(attempts); ok {
		return a.Response, nil
	}
	return s.stored(ctx, userID, game), nil
}

func (s *AchievementService) attempt(ctx context.Context, userID uuid.UUID, game *models.LibraryGame, src sources.Source) syncAttempt {
	if externalID(game, src) == "" {
		return syncAttempt{Source: src, Outcome: outcomeSkipped, Reason: "game has no " + string(src) + " identifier"}
	}
	resp, err := s.sync(ctx, userID, game, src)
	switch {
	case errors.Is(err, ErrNotConfigured):
		return syncAttempt{Source: src, Outcome: outcomeSkipped, Reason: err.Error()}
	case err != nil:
		return syncAttempt{Source: src, Outcome: outcomeFailed, Reason: err.Error()}
	case resp.Total == 0:
		return syncAttempt{Source: src, Outcome: outcomeEmpty, Reason: "provider returned no achievements", Response: resp}
	default:
		return syncAttempt{Source: src, Outcome: outcomeSucceeded, Response: resp}
	}
}

// stored scans persisted rows in FallbackOrder. Read errors are logged and the scan continues.
func (s *AchievementService) stored(ctx context.Context, userID uuid.UUID, game *models.LibraryGame) *dto.AchievementsResponse {
	for _, src := range sources.FallbackOrder {
		rows, err := s.store.ListWithProgress(ctx, userID, game.GameID, game.PlatformID, string(src))
		if err != nil {
			s.logger.Warn("stored achievements read failed",
				"user_id", userID.String(), "game_id", game.GameID.String(), "source", string(src), "error", err)
			continue
		}
		if len(rows) > 0 {
			return dto.NewAchievementsResponse(string(src), rows)
		}
	}
	return dto.NewAchievementsResponse(string(sources.Manual), nil)
}

// SyncAchievements runs one explicit live sync and propagates every failure.
func (s *AchievementService) SyncAchievements(ctx context.Context, userID, gameID uuid.UUID, source string) (*dto.AchievementsResponse, error) {
	src, err := sources.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported source %q", ErrValidation, source)
	}
	if !src.Syncable() {
		return nil, fmt.Errorf("%w: source %q cannot be synced", ErrValidation, string(src))
	}

	game, err := s.games.FindLibraryGame(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}

	resp, err := s.sync(ctx, userID, game, src)
	outcome := outcomeSucceeded
	if err != nil {
		outcome = outcomeFailed
	}
	metrics.SyncAttempts.WithLabelValues(string(src), string(outcome)).Inc()
	return resp, err
}

func (s *AchievementService) sync(ctx context.Context, userID uuid.UUID, game *models.LibraryGame, src sources.Source) (*dto.AchievementsResponse, error) {
	extID := externalID(game, src)
	if extID == "" {
		return nil, fmt.Errorf("%w: game has no %s identifier", ErrValidation, string(src))
	}
	adapter, ok := s.registry.Get(src)
	if !ok {
		return nil, fmt.Errorf("%w: source %q cannot be synced", ErrValidation, string(src))
	}

	account, err := s.account(ctx, userID, src)
	if err != nil {
		return nil, err
	}
	platform, err := s.platformFor(ctx, game, src)
	if err != nil {
		return nil, err
	}

	fetched, err := adapter.FetchAchievements(ctx, extID, account)
	if err != nil {
		if errors.Is(err, sources.ErrUnauthorized) {
			s.credentials.MarkValidation(ctx, userID, string(src), false)
		}
		return nil, classifyFetchError(string(src), err)
	}
	// an empty result may hide a degraded call, so it proves nothing about the credential
	if len(fetched) > 0 {
		s.credentials.MarkValidation(ctx, userID, string(src), true)
	}

	records, unlocks := buildRecords(game.GameID, platform.ID, src, fetched)
	if _, err := s.store.UpsertAchievementsWithProgress(ctx, records, userID, unlocks); err != nil {
		return nil, fmt.Errorf("failed to store %s achievements: %w", string(src), err)
	}
	metrics.AchievementsUpserted.WithLabelValues(string(src)).Add(float64(len(records)))

	rows, err := s.store.ListWithProgress(ctx, userID, game.GameID, &platform.ID, string(src))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s achievements: %w", string(src), err)
	}
	return dto.NewAchievementsResponse(string(src), rows), nil
}

// account builds the adapter account from the user's stored credential.
func (s *AchievementService) account(ctx context.Context, userID uuid.UUID, src sources.Source) (sources.Account, error) {
	cred, err := s.credentials.Resolve(ctx, userID, string(src))
	if err != nil {
		return sources.Account{}, err
	}
	switch src {
	case sources.Steam:
		if cred.SteamID() == "" {
			return sources.Account{}, ErrNotConfigured
		}
		return sources.Account{ID: cred.SteamID()}, nil
	case sources.PSN:
		if cred.Expired(s.now()) {
			s.credentials.MarkValidation(ctx, userID, string(src), false)
			return sources.Account{}, fmt.Errorf("%w: psn token expired", ErrNotConfigured)
		}
		if cred.AccountID() == "" || cred.AccessToken() == "" {
			return sources.Account{}, ErrNotConfigured
		}
		return sources.Account{ID: cred.AccountID(), Token: cred.AccessToken()}, nil
	default:
		return sources.Account{}, fmt.Errorf("%w: source %q cannot be synced", ErrValidation, string(src))
	}
}

// platformFor resolves the platform synced rows are attributed to.
func (s *AchievementService) platformFor(ctx context.Context, game *models.LibraryGame, src sources.Source) (*models.Platform, error) {
	if src == sources.Steam {
		p, err := s.platforms.FindBySlug(ctx, s.attribution.SteamPlatformSlug)
		if err != nil {
			return nil, fmt.Errorf("steam platform %q: %w", s.attribution.SteamPlatformSlug, err)
		}
		return p, nil
	}

	lookups := []func() (*models.Platform, error){
		func() (*models.Platform, error) {
			id, err := s.store.LatestPlatformForSource(ctx, game.GameID, string(sources.PSN))
			if err != nil {
				return nil, err
			}
			return s.platforms.FindByID(ctx, id)
		},
		func() (*models.Platform, error) {
			if game.PlatformID == nil || game.PlatformFamily != s.attribution.PSNPlatformFamily {
				return nil, ErrNotFound
			}
			return s.platforms.FindByID(ctx, *game.PlatformID)
		},
		func() (*models.Platform, error) {
			return s.platforms.FindByFamily(ctx, s.attribution.PSNPlatformFamily)
		},
		func() (*models.Platform, error) {
			if s.attribution.PSNFallbackPlatformSlug == "" {
				return nil, ErrNotFound
			}
			return s.platforms.FindBySlug(ctx, s.attribution.PSNFallbackPlatformSlug)
		},
		func() (*models.Platform, error) {
			return s.platforms.First(ctx)
		},
	}
	for _, lookup := range lookups {
		p, err := lookup()
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("psn platform attribution: %w", err)
		}
	}
	return nil, fmt.Errorf("psn platform attribution: %w", ErrNotFound)
}

// GetProgress reads stored state only; no provider is called.
func (s *AchievementService) GetProgress(ctx context.Context, userID, gameID uuid.UUID) (*dto.ProgressResponse, error) {
	game, err := s.games.FindLibraryGame(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}

	platformID, ok, err := s.progressPlatform(ctx, game)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &dto.ProgressResponse{}, nil
	}

	unlocked, total, err := s.store.CountProgress(ctx, userID, game.GameID, platformID)
	if err != nil {
		return nil, err
	}
	return &dto.ProgressResponse{
		Unlocked:   unlocked,
		Total:      total,
		Percentage: percentage(unlocked, total),
	}, nil
}

func (s *AchievementService) progressPlatform(ctx context.Context, game *models.LibraryGame) (uuid.UUID, bool, error) {
	if game.SteamAppID != "" {
		p, err := s.platforms.FindBySlug(ctx, s.attribution.SteamPlatformSlug)
		switch {
		case err == nil:
			return p.ID, true, nil
		case !errors.Is(err, ErrNotFound):
			return uuid.Nil, false, err
		}
	}
	if game.PSNTitleID != "" {
		id, err := s.store.LatestPlatformForSource(ctx, game.GameID, string(sources.PSN))
		switch {
		case err == nil:
			return id, true, nil
		case !errors.Is(err, ErrNotFound):
			return uuid.Nil, false, err
		}
	}
	if game.PlatformID != nil {
		return *game.PlatformID, true, nil
	}
	return uuid.Nil, false, nil
}

func percentage(unlocked, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(unlocked) / float64(total) * 100))
}

func externalID(game *models.LibraryGame, src sources.Source) string {
	switch src {
	case sources.Steam:
		return game.SteamAppID
	case sources.PSN:
		return game.PSNTitleID
	default:
		return ""
	}
}

// buildRecords maps fetched achievements onto catalog rows and the user's unlock map.
func buildRecords(gameID, platformID uuid.UUID, src sources.Source, fetched []sources.NormalizedAchievement) ([]models.Achievement, map[string]models.UnlockStatus) {
	records := make([]models.Achievement, 0, len(fetched))
	unlocks := make(map[string]models.UnlockStatus, len(fetched))
	for _, n := range fetched {
		if n.ExternalID == "" {
			continue
		}
		name := n.Name
		if name == "" {
			name = n.ExternalID
		}
		extID := n.ExternalID
		records = append(records, models.Achievement{
			GameID:        gameID,
			PlatformID:    platformID,
			AchievementID: n.ExternalID,
			Name:          name,
			Description:   n.Description,
			IconURL:       optional(n.IconURL),
			Rarity:        n.RarityPercentage,
			Points:        n.Points,
			SourceAPI:     string(src),
			ExternalID:    &extID,
		})
		if n.UnlockUnknown {
			continue
		}
		status := models.UnlockStatus{Unlocked: n.Unlocked}
		if n.Unlocked {
			status.UnlockedAt = n.UnlockTime
		}
		unlocks[n.ExternalID] = status
	}
	return records, unlocks
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
