package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/metrics"
)

// maxErrorBodySize bounds how much of an error response is kept for diagnostics.
const maxErrorBodySize = 64 * 1024

// maxBodySize bounds successful provider responses.
const maxBodySize = 16 * 1024 * 1024

// ClientConfig tunes the shared outbound client of one provider.
type ClientConfig struct {
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	HTTPClient    *http.Client
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.Code)
}

func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return ErrUnauthorized
	}
	if e.Code == http.StatusTooManyRequests {
		return ErrTooManyRequests
	}
	return ErrUpstream
}

// apiClient wraps http.Client with a rate limiter, a circuit breaker and latency metrics.
type apiClient struct {
	source  Source
	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

func newAPIClient(source Source, cfg ClientConfig, logger *slog.Logger) *apiClient {
	if logger == nil {
		logger = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	name := string(source) + "-api"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// Client errors (private profile, bad token) say nothing about provider health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500 && se.Code != http.StatusTooManyRequests
			}
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &apiClient{
		source:  source,
		http:    hc,
		limiter: rate.NewLimiter(limit, burst),
		cb:      cb,
		logger:  logger,
	}
}

// do executes req and returns the response body for 2xx responses.
func (c *apiClient) do(ctx context.Context, endpoint string, req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s rate limiter: %w", endpoint, err)
	}

	body, err := c.cb.Execute(func() ([]byte, error) {
		start := time.Now()
		resp, err := c.http.Do(req.WithContext(ctx))
		if err != nil {
			metrics.ProviderRequestDuration.WithLabelValues(string(c.source), endpoint, "error").Observe(time.Since(start).Seconds())
			return nil, fmt.Errorf("%w: %s: %w", ErrUpstream, endpoint, err)
		}
		defer resp.Body.Close()
		metrics.ProviderRequestDuration.WithLabelValues(string(c.source), endpoint, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: string(readBodyForError(resp.Body))}
		}
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: read body: %w", ErrUpstream, endpoint, err)
		}
		return b, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, endpoint)
		}
		return nil, err
	}
	return body, nil
}

func (c *apiClient) getJSON(ctx context.Context, endpoint string, req *http.Request, out any) error {
	body, err := c.do(ctx, endpoint, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", ErrUpstream, endpoint, err)
	}
	return nil
}

func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	return body
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
