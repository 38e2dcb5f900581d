package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/models"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/sources"
)

type harness struct {
	userID      uuid.UUID
	game        models.LibraryGame
	pc          models.Platform
	ps4         models.Platform
	ps5         models.Platform
	games       *memGames
	platforms   *memPlatforms
	creds       *memCredentials
	store       *memAchievements
	steam       *fakeAdapter
	psn         *fakeAdapter
	credentials *CredentialService
	svc         *AchievementService
}

func newHarness(t *testing.T, steamAppID, psnTitleID string) *harness {
	t.Helper()
	h := &harness{
		userID: uuid.New(),
		pc:     models.Platform{ID: uuid.New(), Name: "PC", Slug: "pc", Family: "pc"},
		ps4:    models.Platform{ID: uuid.New(), Name: "PlayStation 4", Slug: "ps4", Family: "playstation"},
		ps5:    models.Platform{ID: uuid.New(), Name: "PlayStation 5", Slug: "ps5", Family: "playstation"},
		games:  newMemGames(),
		creds:  newMemCredentials(),
		store:  newMemAchievements(),
		steam:  &fakeAdapter{src: sources.Steam},
		psn:    &fakeAdapter{src: sources.PSN},
	}
	h.platforms = &memPlatforms{list: []models.Platform{h.pc, h.ps4, h.ps5}}
	h.game = models.LibraryGame{
		GameID:         uuid.New(),
		Title:          "Test Game",
		SteamAppID:     steamAppID,
		PSNTitleID:     psnTitleID,
		PlatformID:     &h.pc.ID,
		PlatformFamily: "pc",
	}
	h.games.add(h.userID, h.game)
	h.credentials = NewCredentialService(h.creds, testVault(t), nil)
	h.svc = NewAchievementService(h.games, h.platforms, h.store, h.credentials,
		sources.NewRegistry(h.steam, h.psn), AttributionConfig{}, nil)
	return h
}

func (h *harness) linkSteam(t *testing.T) {
	t.Helper()
	_, err := h.credentials.save(context.Background(), h.userID, CredentialInput{
		Service: "steam", Type: "openid", Data: map[string]any{"steam_id": "76561198000000001"},
	})
	if err != nil {
		t.Fatalf("link steam: %v", err)
	}
}

func (h *harness) linkPSN(t *testing.T) {
	t.Helper()
	_, err := h.credentials.Save(context.Background(), h.userID, CredentialInput{
		Service: "psn", Type: "oauth", Data: map[string]any{"account_id": "acct-1", "access_token": "tok"},
	})
	if err != nil {
		t.Fatalf("link psn: %v", err)
	}
}

func TestGetAchievementsPrefersSteam(t *testing.T) {
	h := newHarness(t, "400", "NPWR0001")
	h.linkSteam(t)
	h.linkPSN(t)
	h.steam.result = normalized("steam", 3, 1)
	h.psn.result = normalized("psn", 5, 5)

	resp, err := h.svc.GetAchievements(context.Background(), h.userID, h.game.GameID)
	if err != nil {
		t.Fatalf("GetAchievements: %v", err)
	}
	if resp.Source != "steam" || resp.Total != 3 || resp.Unlocked != 1 {
		t.Fatalf("expected steam 3/1, got %s %d/%d", resp.Source, resp.Total, resp.Unlocked)
	}
	if h.psn.calls != 0 {
		t.Errorf("psn must not be called after a steam success, got %d calls", h.psn.calls)
	}
	if h.steam.account.ID != "76561198000000001" {
		t.Errorf("steam adapter got account %+v", h.steam.account)
	}
}

func TestGetAchievementsFallsBackToPSN(t *testing.T) {
	h := newHarness(t, "400", "NPWR0001")
	h.linkSteam(t)
	h.linkPSN(t)
	h.steam.err = fmt.Errorf("%w: boom", sources.ErrUpstream)
	h.psn.result = normalized("psn", 4, 2)

	resp, err := h.svc.GetAchievements(context.Background(), h.userID, h.game.GameID)
	if err != nil {
		t.Fatalf("GetAchievements: %v", err)
	}
	if resp.Source != "psn" || resp.Total != 4 || resp.Unlocked != 2 {
		t.Fatalf("expected psn 4/2, got %s %d/%d", resp.Source, resp.Total, resp.Unlocked)
	}
	if h.psn.account.Token != "tok" || h.psn.account.ID != "acct-1" {
		t.Errorf("psn adapter got account %+v", h.psn.account)
	}
}

func TestGetAchievementsSkipsUnlinkedSource(t *testing.T) {
	h := newHarness(t, "400", "NPWR0001")
	h.linkPSN(t)
	h.steam.result = normalized("steam", 3, 1)
	h.psn.result = normalized("psn", 2, 0)

	resp, err := h.svc.GetAchievements(context.Background(), h.userID, h.game.GameID)
	if err != nil {
		t.Fatalf("GetAchievements: %v", err)
	}
	if resp.Source != "psn" {
		t.Fatalf("expected psn, got %s", resp.Source)
	}
	if h.steam.calls != 0 {
		t.Errorf("steam adapter must not run without a linked account")
	}
}

func TestGetAchievementsFallsBackToStoredManualRows(t *testing.T) {
	h := newHarness(t, "", "")
	manual := make([]models.Achievement, 0, 3)
	for i := 0; i < 3; i++ {
		manual = append(manual, models.Achievement{
			GameID: h.game.GameID, PlatformID: h.pc.ID,
			AchievementID: fmt.Sprintf("m%d", i), Name: fmt.Sprintf("Manual %d", i), SourceAPI: "manual",
		})
	}
	if _, err := h.store.UpsertAchievementsWithProgress(context.Background(), manual, h.userID,
		map[string]models.UnlockStatus{"m0": {Unlocked: true}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp, err := h.svc.GetAchievements(context.Background(), h.userID, h.game.GameID)
	if err != nil {
		t.Fatalf("GetAchievements: %v", err)
	}
	if resp.Source != "manual" || resp.Total != 3 || resp.Unlocked != 1 {
		t.Fatalf("expected manual 3/1, got %s %d/%d", resp.Source, resp.Total, resp.Unlocked)
	}
	if h.steam.calls+h.psn.calls != 0 {
		t.Error("no adapter should run for a game without provider ids")
	}
}

func TestGetAchievementsUsesStoredRowsWhenProvidersFail(t *testing.T) {
	h := newHarness(t, "400", "")
	h.linkSteam(t)
	h.steam.result = normalized("steam", 2, 2)
	if _, err := h.svc.SyncAchievements(context.Background(), h.userID, h.game.GameID, "steam"); err != nil {
		t.Fatalf("seed sync: %v", err)
	}

	h.steam.result = nil
	h.steam.err = sources.ErrCircuitOpen
	resp, err := h.svc.GetAchievements(context.Background(), h.userID, h.game.GameID)
	if err != nil {
		t.Fatalf("GetAchievements: %v", err)
	}
	if resp.Source != "steam" || resp.Total != 2 || resp.Unlocked != 2 {
		t.Fatalf("expected stored steam rows, got %s %d/%d", resp.Source, resp.Total, resp.Unlocked)
	}
}

func TestGetAchievementsEmptyResult(t *testing.T) {
	h := newHarness(t, "400", "")
	h.linkSteam(t)
	h.steam.result = []sources.NormalizedAchievement{}

	resp, err := h.svc.GetAchievements(context.Background(), h.userID, h.game.GameID)
	if err != nil {
		t.Fatalf("GetAchievements: %v", err)
	}
	if resp.Source != "manual" || resp.Total != 0 || resp.Unlocked != 0 || resp.Achievements == nil {
		t.Fatalf("expected empty manual result, got %+v", resp)
	}
}

func TestGetAchievementsUnknownGame(t *testing.T) {
	h := newHarness(t, "400", "")
	if _, err := h.svc.GetAchievements(context.Background(), h.userID, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSyncRejectsUnsupportedSources(t *testing.T) {
	h := newHarness(t, "400", "NPWR0001")
	for _, src := range []string{"manual", "third_party", "xbox"} {
		_, err := h.svc.SyncAchievements(context.Background(), h.userID, h.game.GameID, src)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", src, err)
			continue
		}
		if !strings.Contains(err.Error(), src) {
			t.Errorf("%s: error should name the source, got %q", src, err)
		}
	}
}

func TestSyncRequiresExternalID(t *testing.T) {
	h := newHarness(t, "", "NPWR0001")
	h.linkSteam(t)
	_, err := h.svc.SyncAchievements(context.Background(), h.userID, h.game.GameID, "steam")
	if !errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestSyncWithoutCredentialIsNotConfigured(t *testing.T) {
	h := newHarness(t, "400", "")
	_, err := h.svc.SyncAchievements(context.Background(), h.userID, h.game.GameID, "steam")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	h := newHarness(t, "400", "")
	h.linkSteam(t)
	h.steam.result = normalized("steam", 10, 4)
	ctx := context.Background()

	first, err := h.svc.SyncAchievements(ctx, h.userID, h.game.GameID, "steam")
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	catalog1, user1 := h.store.counts()

	second, err := h.svc.SyncAchievements(ctx, h.userID, h.game.GameID, "steam")
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	catalog2, user2 := h.store.counts()

	if catalog1 != catalog2 || user1 != user2 {
		t.Errorf("row counts changed: %d/%d then %d/%d", catalog1, user1, catalog2, user2)
	}
	if first.Total != second.Total || first.Unlocked != second.Unlocked {
		t.Errorf("responses differ: %d/%d vs %d/%d", first.Total, first.Unlocked, second.Total, second.Unlocked)
	}
	for _, a := range second.Achievements {
		if a.PlatformID != h.pc.ID {
			t.Fatalf("steam rows must be attributed to the pc platform, got %s", a.PlatformID)
		}
	}
}

func TestSyncThenProgress(t *testing.T) {
	h := newHarness(t, "400", "")
	h.linkSteam(t)
	h.steam.result = normalized("steam", 50, 20)
	ctx := context.Background()

	resp, err := h.svc.SyncAchievements(ctx, h.userID, h.game.GameID, "steam")
	if err != nil {
		t.Fatalf("SyncAchievements: %v", err)
	}
	if resp.Source != "steam" || resp.Total != 50 || resp.Unlocked != 20 {
		t.Fatalf("expected steam 50/20, got %s %d/%d", resp.Source, resp.Total, resp.Unlocked)
	}

	p, err := h.svc.GetProgress(ctx, h.userID, h.game.GameID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if p.Unlocked != 20 || p.Total != 50 || p.Percentage != 40 {
		t.Fatalf("expected 20/50/40, got %+v", p)
	}
}

func TestGetProgressWithoutRows(t *testing.T) {
	h := newHarness(t, "400", "")
	p, err := h.svc.GetProgress(context.Background(), h.userID, h.game.GameID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if p.Unlocked != 0 || p.Total != 0 || p.Percentage != 0 {
		t.Fatalf("expected zeros, got %+v", p)
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		unlocked, total int64
		want            int
	}{
		{0, 0, 0},
		{20, 50, 40},
		{1, 3, 33},
		{2, 3, 67},
		{1, 200, 1},
		{1, 201, 0},
		{7, 7, 100},
	}
	for _, tt := range tests {
		if got := percentage(tt.unlocked, tt.total); got != tt.want {
			t.Errorf("percentage(%d, %d) = %d, want %d", tt.unlocked, tt.total, got, tt.want)
		}
	}
}

func TestSyncUnauthorizedMarksCredentialInvalid(t *testing.T) {
	h := newHarness(t, "", "NPWR0001")
	h.linkPSN(t)
	h.psn.err = &sources.StatusError{Endpoint: "UserTitleTrophies", Code: 401}

	_, err := h.svc.SyncAchievements(context.Background(), h.userID, h.game.GameID, "psn")
	if !errors.Is(err, sources.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	row, _ := h.creds.Find(context.Background(), h.userID, "psn")
	if row.IsValid || row.LastValidatedAt == nil {
		t.Fatalf("expected credential marked invalid, got %+v", row)
	}

	h.psn.err = nil
	h.psn.result = normalized("psn", 1, 0)
	if _, err := h.svc.SyncAchievements(context.Background(), h.userID, h.game.GameID, "psn"); err != nil {
		t.Fatalf("SyncAchievements: %v", err)
	}
	row, _ = h.creds.Find(context.Background(), h.userID, "psn")
	if !row.IsValid {
		t.Fatal("expected credential marked valid after a successful fetch")
	}
}

func TestSyncExpiredPSNToken(t *testing.T) {
	h := newHarness(t, "", "NPWR0001")
	past := time.Now().Add(-time.Hour)
	if _, err := h.credentials.Save(context.Background(), h.userID, CredentialInput{
		Service: "psn", Type: "oauth", ExpiresAt: &past,
		Data: map[string]any{"account_id": "acct-1", "access_token": "tok"},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, err := h.svc.SyncAchievements(context.Background(), h.userID, h.game.GameID, "psn")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if h.psn.calls != 0 {
		t.Error("adapter must not be called with an expired token")
	}
}

func TestPSNPlatformAttribution(t *testing.T) {
	ctx := context.Background()

	t.Run("existing rows win", func(t *testing.T) {
		h := newHarness(t, "", "NPWR0001")
		seed := []models.Achievement{{GameID: h.game.GameID, PlatformID: h.ps5.ID, AchievementID: "0", Name: "x", SourceAPI: "psn"}}
		if _, err := h.store.UpsertAchievementsWithProgress(ctx, seed, uuid.New(), nil); err != nil {
			t.Fatal(err)
		}
		p, err := h.svc.platformFor(ctx, &h.game, sources.PSN)
		if err != nil || p.ID != h.ps5.ID {
			t.Fatalf("expected ps5, got %v, %v", p, err)
		}
	})

	t.Run("library platform of the family", func(t *testing.T) {
		h := newHarness(t, "", "NPWR0001")
		h.game.PlatformID = &h.ps5.ID
		h.game.PlatformFamily = "playstation"
		p, err := h.svc.platformFor(ctx, &h.game, sources.PSN)
		if err != nil || p.ID != h.ps5.ID {
			t.Fatalf("expected ps5, got %v, %v", p, err)
		}
	})

	t.Run("any platform of the family", func(t *testing.T) {
		h := newHarness(t, "", "NPWR0001")
		p, err := h.svc.platformFor(ctx, &h.game, sources.PSN)
		if err != nil || p.ID != h.ps4.ID {
			t.Fatalf("expected ps4, got %v, %v", p, err)
		}
	})

	t.Run("configured fallback slug", func(t *testing.T) {
		h := newHarness(t, "", "NPWR0001")
		h.platforms.list = []models.Platform{h.pc, {ID: uuid.New(), Slug: "vita", Family: "handheld"}}
		h.svc.attribution.PSNFallbackPlatformSlug = "vita"
		p, err := h.svc.platformFor(ctx, &h.game, sources.PSN)
		if err != nil || p.Slug != "vita" {
			t.Fatalf("expected vita, got %v, %v", p, err)
		}
	})

	t.Run("first available platform", func(t *testing.T) {
		h := newHarness(t, "", "NPWR0001")
		h.platforms.list = []models.Platform{h.pc}
		p, err := h.svc.platformFor(ctx, &h.game, sources.PSN)
		if err != nil || p.ID != h.pc.ID {
			t.Fatalf("expected pc, got %v, %v", p, err)
		}
	})

	t.Run("no platforms at all", func(t *testing.T) {
		h := newHarness(t, "", "NPWR0001")
		h.platforms.list = nil
		if _, err := h.svc.platformFor(ctx, &h.game, sources.PSN); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestPickAttempt(t *testing.T) {
	ok := syncAttempt{Source: sources.PSN, Outcome: outcomeSucceeded, Response: newEmptyResponse("psn")}
	tests := []struct {
		name     string
		attempts []syncAttempt
		want     sources.Source
		found    bool
	}{
		{"none", nil, "", false},
		{"all failed", []syncAttempt{{Source: sources.Steam, Outcome: outcomeFailed}, {Source: sources.PSN, Outcome: outcomeSkipped}}, "", false},
		{"empty is not success", []syncAttempt{{Source: sources.Steam, Outcome: outcomeEmpty, Response: newEmptyResponse("steam")}}, "", false},
		{"first success", []syncAttempt{{Source: sources.Steam, Outcome: outcomeFailed}, ok}, sources.PSN, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := pickAttempt(tt.attempts)
			if found != tt.found || got.Source != tt.want {
				t.Fatalf("pickAttempt() = %v, %v; want %v, %v", got.Source, found, tt.want, tt.found)
			}
		})
	}
}

func TestSyncClassifiesProviderErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"revoked token", &sources.StatusError{Endpoint: "UserTitleTrophies", Code: 401}, ErrCredentialRejected},
		{"rate limited", &sources.StatusError{Endpoint: "UserTitleTrophies", Code: 429}, ErrRateLimited},
		{"circuit open", fmt.Errorf("%w: UserTitleTrophies", sources.ErrCircuitOpen), ErrProviderUnavailable},
		{"missing api key", sources.ErrMissingAPIKey, ErrProviderUnavailable},
		{"upstream 502", &sources.StatusError{Endpoint: "UserTitleTrophies", Code: 502}, ErrProviderFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "", "NPWR0001")
			h.linkPSN(t)
			h.psn.err = tt.err

			_, err := h.svc.SyncAchievements(context.Background(), h.userID, h.game.GameID, "psn")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("adapter error dropped from chain: %v", err)
			}
		})
	}
}

func TestSyncKeepsProgressWhenUnlockStateUnknown(t *testing.T) {
	h := newHarness(t, "400", "")
	h.linkSteam(t)
	ctx := context.Background()

	first := normalized("steam", 3, 3)
	rarity := 4.5
	for i := range first {
		first[i].RarityPercentage = &rarity
	}
	h.steam.result = first
	if _, err := h.svc.SyncAchievements(ctx, h.userID, h.game.GameID, "steam"); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	degraded := normalized("steam", 3, 0)
	for i := range degraded {
		degraded[i].UnlockUnknown = true
	}
	h.steam.result = degraded
	resp, err := h.svc.SyncAchievements(ctx, h.userID, h.game.GameID, "steam")
	if err != nil {
		t.Fatalf("degraded sync: %v", err)
	}
	if resp.Total != 3 || resp.Unlocked != 3 {
		t.Fatalf("expected stored unlocks to survive, got %d/%d", resp.Unlocked, resp.Total)
	}
	for _, a := range resp.Achievements {
		if a.Rarity == nil || *a.Rarity != 4.5 {
			t.Errorf("rarity of %s lost: %v", a.AchievementID, a.Rarity)
		}
	}

	progress, err := h.svc.GetProgress(ctx, h.userID, h.game.GameID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if progress.Unlocked != 3 || progress.Total != 3 || progress.Percentage != 100 {
		t.Errorf("unexpected progress %+v", progress)
	}
}

func TestSyncEmptyFetchLeavesValidationUntouched(t *testing.T) {
	h := newHarness(t, "", "NPWR0001")
	h.linkPSN(t)
	ctx := context.Background()
	h.credentials.MarkValidation(ctx, h.userID, "psn", false)

	h.psn.result = []sources.NormalizedAchievement{}
	if _, err := h.svc.SyncAchievements(ctx, h.userID, h.game.GameID, "psn"); err != nil {
		t.Fatalf("SyncAchievements: %v", err)
	}
	row, _ := h.creds.Find(ctx, h.userID, "psn")
	if row.IsValid {
		t.Fatal("an empty fetch must not mark the credential valid")
	}
}
