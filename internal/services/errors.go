package services

import (
	"errors"
	"fmt"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/repository"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/sources"
)

var (
	ErrNotFound    = repository.ErrNotFound
	ErrConflict    = repository.ErrAlreadyExists
	ErrInvalidData = repository.ErrInvalidData
	ErrValidation  = errors.New("validation failed")

	// ErrNotConfigured covers a missing, inactive or undecryptable credential alike.
	ErrNotConfigured = fmt.Errorf("%w: credential not configured", ErrValidation)

	// Provider outcomes of an explicit sync.
	ErrCredentialRejected  = errors.New("provider rejected the stored credential")
	ErrRateLimited         = errors.New("provider rate limit exceeded")
	ErrProviderUnavailable = errors.New("provider temporarily unavailable")
	ErrProviderFailed      = errors.New("provider request failed")
)

// classifyFetchError maps an adapter error onto the service taxonomy, keeping
// the adapter error in the chain.
func classifyFetchError(src string, err error) error {
	var kind error
	switch {
	case errors.Is(err, sources.ErrUnauthorized):
		kind = ErrCredentialRejected
	case errors.Is(err, sources.ErrMissingAccount):
		kind = ErrNotConfigured
	case errors.Is(err, sources.ErrTooManyRequests):
		kind = ErrRateLimited
	case errors.Is(err, sources.ErrCircuitOpen), errors.Is(err, sources.ErrMissingAPIKey):
		kind = ErrProviderUnavailable
	case errors.Is(err, sources.ErrUpstream):
		kind = ErrProviderFailed
	default:
		return fmt.Errorf("%s fetch failed: %w", src, err)
	}
	return fmt.Errorf("%s fetch failed: %w: %w", src, kind, err)
}
