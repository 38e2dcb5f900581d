package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/dto"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/models"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/sources"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/vault"
)

func testVault(t *testing.T) *vault.Vault {
	t.Helper()
	return vaultWithKeyByte(t, 0)
}

func vaultWithKeyByte(t *testing.T, b byte) *vault.Vault {
	t.Helper()
	raw := make([]byte, vault.KeySize)
	for i := range raw {
		raw[i] = b
	}
	key, err := vault.KeyFromBytes(raw)
	if err != nil {
		t.Fatalf("KeyFromBytes: %v", err)
	}
	v, err := vault.New(key)
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	return v
}

type memGames struct {
	games map[[2]uuid.UUID]*models.LibraryGame
}

func newMemGames() *memGames {
	return &memGames{games: map[[2]uuid.UUID]*models.LibraryGame{}}
}

func (m *memGames) add(userID uuid.UUID, g models.LibraryGame) {
	m.games[[2]uuid.UUID{userID, g.GameID}] = &g
}

func (m *memGames) FindLibraryGame(_ context.Context, userID, gameID uuid.UUID) (*models.LibraryGame, error) {
	g, ok := m.games[[2]uuid.UUID{userID, gameID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

type memPlatforms struct {
	list []models.Platform
}

func (m *memPlatforms) find(match func(models.Platform) bool) (*models.Platform, error) {
	for i := range m.list {
		if match(m.list[i]) {
			p := m.list[i]
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memPlatforms) FindByID(_ context.Context, id uuid.UUID) (*models.Platform, error) {
	return m.find(func(p models.Platform) bool { return p.ID == id })
}

func (m *memPlatforms) FindBySlug(_ context.Context, slug string) (*models.Platform, error) {
	return m.find(func(p models.Platform) bool { return p.Slug == slug })
}

func (m *memPlatforms) FindByFamily(_ context.Context, family string) (*models.Platform, error) {
	return m.find(func(p models.Platform) bool { return p.Family == family })
}

func (m *memPlatforms) First(_ context.Context) (*models.Platform, error) {
	return m.find(func(models.Platform) bool { return true })
}

type memCredentials struct {
	mu   sync.Mutex
	rows map[string]*models.UserCredential
}

func newMemCredentials() *memCredentials {
	return &memCredentials{rows: map[string]*models.UserCredential{}}
}

func credKey(userID uuid.UUID, service string) string { return userID.String() + "/" + service }

func (m *memCredentials) Find(_ context.Context, userID uuid.UUID, service string) (*models.UserCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[credKey(userID, service)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCredentials) Upsert(_ context.Context, cred *models.UserCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := credKey(cred.UserID, cred.ServiceName)
	if existing, ok := m.rows[k]; ok {
		cred.ID = existing.ID
	} else {
		cred.ID = uuid.New()
	}
	cp := *cred
	m.rows[k] = &cp
	return nil
}

func (m *memCredentials) Delete(_ context.Context, userID uuid.UUID, service string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := credKey(userID, service)
	if _, ok := m.rows[k]; !ok {
		return ErrNotFound
	}
	delete(m.rows, k)
	return nil
}

func (m *memCredentials) UpdateValidationStatus(_ context.Context, userID uuid.UUID, service string, valid bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[credKey(userID, service)]
	if !ok {
		return ErrNotFound
	}
	c.IsValid = valid
	c.LastValidatedAt = &at
	return nil
}

func (m *memCredentials) ListByUser(_ context.Context, userID uuid.UUID) ([]models.UserCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserCredential
	for _, c := range m.rows {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceName < out[j].ServiceName })
	return out, nil
}

type catalogKey struct {
	game, platform uuid.UUID
	achievementID  string
}

// memAchievements mirrors the conflict targets of the postgres store.
type memAchievements struct {
	mu      sync.Mutex
	rows    map[catalogKey]*models.Achievement
	touched map[catalogKey]int
	unlocks map[[2]uuid.UUID]models.UserAchievement
	seq     int
}

func newMemAchievements() *memAchievements {
	return &memAchievements{
		rows:    map[catalogKey]*models.Achievement{},
		touched: map[catalogKey]int{},
		unlocks: map[[2]uuid.UUID]models.UserAchievement{},
	}
}

func (m *memAchievements) UpsertAchievementsWithProgress(_ context.Context, records []models.Achievement, userID uuid.UUID, unlocks map[string]models.UnlockStatus) ([]models.Achievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Achievement, 0, len(records))
	for _, r := range records {
		k := catalogKey{r.GameID, r.PlatformID, r.AchievementID}
		m.seq++
		if existing, ok := m.rows[k]; ok {
			r.ID = existing.ID
			if r.Rarity == nil {
				r.Rarity = existing.Rarity
			}
		} else {
			r.ID = uuid.New()
		}
		cp := r
		m.rows[k] = &cp
		m.touched[k] = m.seq
		out = append(out, cp)
	}
	for _, a := range out {
		st, ok := unlocks[a.AchievementID]
		if !ok {
			continue
		}
		m.unlocks[[2]uuid.UUID{userID, a.ID}] = models.UserAchievement{
			UserID: userID, AchievementID: a.ID, Unlocked: st.Unlocked, UnlockedAt: st.UnlockedAt,
		}
	}
	return out, nil
}

func (m *memAchievements) ListWithProgress(_ context.Context, userID, gameID uuid.UUID, platformID *uuid.UUID, source string) ([]models.AchievementProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AchievementProgress{}
	for k, a := range m.rows {
		if k.game != gameID || a.SourceAPI != source {
			continue
		}
		if platformID != nil && k.platform != *platformID {
			continue
		}
		p := models.AchievementProgress{Achievement: *a}
		if u, ok := m.unlocks[[2]uuid.UUID{userID, a.ID}]; ok {
			p.Unlocked = u.Unlocked
			p.UnlockedAt = u.UnlockedAt
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].AchievementID < out[j].AchievementID
	})
	return out, nil
}

func (m *memAchievements) LatestPlatformForSource(_ context.Context, gameID uuid.UUID, source string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	best, bestSeq := uuid.Nil, -1
	for k, a := range m.rows {
		if k.game == gameID && a.SourceAPI == source && m.touched[k] > bestSeq {
			best, bestSeq = k.platform, m.touched[k]
		}
	}
	if bestSeq < 0 {
		return uuid.Nil, ErrNotFound
	}
	return best, nil
}

func (m *memAchievements) CountProgress(_ context.Context, userID, gameID, platformID uuid.UUID) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var unlocked, total int64
	for k, a := range m.rows {
		if k.game != gameID || k.platform != platformID {
			continue
		}
		total++
		if u, ok := m.unlocks[[2]uuid.UUID{userID, a.ID}]; ok && u.Unlocked {
			unlocked++
		}
	}
	return unlocked, total, nil
}

func (m *memAchievements) counts() (catalog, user int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), len(m.unlocks)
}

type fakeAdapter struct {
	src     sources.Source
	result  []sources.NormalizedAchievement
	err     error
	calls   int
	account sources.Account
}

func (f *fakeAdapter) Source() sources.Source { return f.src }

func (f *fakeAdapter) FetchAchievements(_ context.Context, _ string, account sources.Account) ([]sources.NormalizedAchievement, error) {
	f.calls++
	f.account = account
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// normalized builds n achievements of which the first unlocked are unlocked.
func normalized(prefix string, n, unlocked int) []sources.NormalizedAchievement {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := make([]sources.NormalizedAchievement, 0, n)
	for i := 0; i < n; i++ {
		a := sources.NormalizedAchievement{
			ExternalID: fmt.Sprintf("%s_%02d", prefix, i),
			Name:       fmt.Sprintf("%s achievement %02d", prefix, i),
		}
		if i < unlocked {
			a.Unlocked = true
			a.UnlockTime = &at
		}
		out = append(out, a)
	}
	return out
}

func newEmptyResponse(source string) *dto.AchievementsResponse {
	return dto.NewAchievementsResponse(source, nil)
}
