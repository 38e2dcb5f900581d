package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SyncAttempts counts priority-chain and explicit sync attempts by outcome.
	SyncAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trophysync_sync_attempts_total",
		Help: "Achievement sync attempts by source and outcome.",
	}, []string{"source", "outcome"})

	// ProviderRequestDuration observes outbound provider API latency.
	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trophysync_provider_request_duration_seconds",
		Help:    "Latency of outbound achievement provider requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source", "endpoint", "status"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trophysync_circuit_breaker_state",
		Help: "Provider circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"name"})

	CredentialDecryptFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trophysync_credential_decrypt_failures_total",
		Help: "Stored credentials that failed to decrypt and were treated as not configured.",
	}, []string{"service"})

	AchievementsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trophysync_achievements_upserted_total",
		Help: "Catalog rows written by the persistence reconciler.",
	}, []string{"source"})
)

// Handler exposes the Prometheus metrics endpoint on a fiber route.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
