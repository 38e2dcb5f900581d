// Package sources holds the achievement provider adapters.
//
// The provider set is closed: Steam and PlayStation Network can be synced
// live; third_party and manual only exist as tags on stored rows. Order in
// FallbackOrder is a product decision: richer metadata first.
package sources

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Source string

const (
	Steam      Source = "steam"
	PSN        Source = "psn"
	ThirdParty Source = "third_party"
	Manual     Source = "manual"
)

var (
	// LiveOrder is the order providers are tried when reading achievements.
	LiveOrder = []Source{Steam, PSN}

	// FallbackOrder is the order stored rows are scanned when no live sync succeeded.
	FallbackOrder = []Source{Steam, PSN, ThirdParty, Manual}
)

var (
	ErrUnauthorized    = errors.New("provider rejected credentials")
	ErrMissingAPIKey   = errors.New("provider api key not configured")
	ErrMissingAccount  = errors.New("external account id is required")
	ErrUnknownSource   = errors.New("unknown source")
	ErrUpstream        = errors.New("provider request failed")
	ErrCircuitOpen     = errors.New("provider temporarily unavailable")
	ErrTooManyRequests = errors.New("provider rate limit exceeded")
)

// Parse maps a request string onto a known source.
func Parse(s string) (Source, error) {
	switch src := Source(s); src {
	case Steam, PSN, ThirdParty, Manual:
		return src, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
	}
}

// Syncable reports whether a live adapter exists for the source.
func (s Source) Syncable() bool {
	return s == Steam || s == PSN
}

func (s Source) String() string { return string(s) }

// NormalizedAchievement is the common shape every adapter produces.
type NormalizedAchievement struct {
	ExternalID       string
	Name             string
	Description      string
	IconURL          string
	RarityPercentage *float64
	Points           *int
	Unlocked         bool
	UnlockTime       *time.Time
	// UnlockUnknown is set when the provider could not report the user's
	// unlock state. Unlocked is then false and must not overwrite stored progress.
	UnlockUnknown    bool
}

// Account identifies the external account and, for token-based providers, its bearer token.
type Account struct {
	ID    string
	Token string
}

// Adapter fetches normalized achievements for one provider.
type Adapter interface {
	Source() Source
	FetchAchievements(ctx context.Context, externalGameID string, account Account) ([]NormalizedAchievement, error)
}

// Registry is the fixed, ordered set of live adapters.
type Registry struct {
	ordered []Adapter
}

// NewRegistry registers exactly the Steam and PSN adapters, in LiveOrder.
func NewRegistry(steam, psn Adapter) *Registry {
	return &Registry{ordered: []Adapter{steam, psn}}
}

// Get returns the adapter registered for src.
func (r *Registry) Get(src Source) (Adapter, bool) {
	for _, a := range r.ordered {
		if a != nil && a.Source() == src {
			return a, true
		}
	}
	return nil, false
}
