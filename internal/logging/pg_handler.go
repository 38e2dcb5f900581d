package logging

import (
	"context"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/models"
)

const (
	batchSize     = 50
	flushInterval = 5 * time.Second
)

// writeFunc persists a batch of log rows.
type writeFunc func(batch []models.SystemLog) error

// sink is the buffer shared by a PGHandler and every handler derived from it.
type sink struct {
	write    writeFunc
	fallback *slog.Logger
	mu       sync.Mutex
	buffer   []models.SystemLog
	ticker   *time.Ticker
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// PGHandler batches ERROR+ records into system_logs so failed syncs can be
// inspected per user, source and game.
type PGHandler struct {
	sink  *sink
	attrs []slog.Attr
}

func NewPGHandler(db *gorm.DB) *PGHandler {
	return newPGHandler(func(batch []models.SystemLog) error {
		return db.CreateInBatches(batch, batchSize).Error
	}, flushInterval)
}

func newPGHandler(write writeFunc, interval time.Duration) *PGHandler {
	s := &sink{
		write: write,
		// flush failures must not loop back through this handler
		fallback: slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		buffer:   make([]models.SystemLog, 0, batchSize),
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go s.loop()
	return &PGHandler{sink: s}
}

func (s *sink) loop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.ticker.C:
			s.flush()
		case <-s.done:
			s.flush()
			return
		}
	}
}

func (s *sink) flush() {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.buffer
	s.buffer = make([]models.SystemLog, 0, batchSize)
	s.mu.Unlock()

	if err := s.write(batch); err != nil {
		s.fallback.Error("system log flush failed", "error", err, "count", len(batch))
	}
}

// Stop flushes what is buffered and stops the background loop.
func (h *PGHandler) Stop() {
	h.sink.stopOnce.Do(func() {
		h.sink.ticker.Stop()
		close(h.sink.done)
	})
	<-h.sink.stopped
}

func (h *PGHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelError
}

func (h *PGHandler) Handle(_ context.Context, record slog.Record) error {
	entry := entryFromRecord(record, h.attrs)

	s := h.sink
	s.mu.Lock()
	s.buffer = append(s.buffer, entry)
	full := len(s.buffer) >= batchSize
	s.mu.Unlock()

	if full {
		go s.flush()
	}
	return nil
}

func (h *PGHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &PGHandler{sink: h.sink, attrs: merged}
}

// WithGroup is a no-op; groups are flattened into extra.
func (h *PGHandler) WithGroup(string) slog.Handler {
	return h
}

// entryFromRecord promotes well-known keys into columns and keeps the rest in extra.
func entryFromRecord(record slog.Record, preset []slog.Attr) models.SystemLog {
	entry := models.SystemLog{
		Timestamp: record.Time.UTC(),
		Level:     record.Level.String(),
		Message:   record.Message,
	}
	extra := map[string]any{}

	apply := func(a slog.Attr) {
		v := a.Value.Resolve()
		switch a.Key {
		case "trace_id", "request_id":
			entry.TraceID = v.String()
		case "user_id":
			s := v.String()
			entry.UserID = &s
		case "game_id":
			s := v.String()
			entry.GameID = &s
		case "source":
			entry.Source = v.String()
		case "service":
			entry.Service = v.String()
		case "error":
			entry.Error = v.String()
		case "latency_ms":
			entry.LatencyMs = latencyMs(v)
		default:
			extra[a.Key] = v.Any()
		}
	}
	for _, a := range preset {
		apply(a)
	}
	record.Attrs(func(a slog.Attr) bool {
		apply(a)
		return true
	})

	if len(extra) > 0 {
		if b, err := json.Marshal(extra); err == nil {
			entry.Extra = datatypes.JSON(b)
		}
	}
	return entry
}

func latencyMs(v slog.Value) int {
	switch v.Kind() {
	case slog.KindInt64:
		return int(v.Int64())
	case slog.KindUint64:
		return int(v.Uint64())
	case slog.KindFloat64:
		return int(math.Round(v.Float64()))
	case slog.KindDuration:
		return int(v.Duration().Milliseconds())
	}
	return 0
}
