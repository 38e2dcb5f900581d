// Package repository holds the gorm-backed stores for the achievement catalog,
// user unlock state, library lookups and encrypted credentials.
package repository

import (
	"log/slog"

	"gorm.io/gorm"
)

type base struct {
	db     *gorm.DB
	logger *slog.Logger
	module string
}

func newBase(db *gorm.DB, logger *slog.Logger, module string) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{db: db, logger: logger, module: module}
}

// logError records a failed store operation and returns the classified error.
func (b base) logError(event string, err error, attrs ...any) error {
	classified := classify(err)
	fields := make([]any, 0, len(attrs)+6)
	fields = append(fields,
		"event", event,
		"module", b.module,
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	b.logger.Error("repository operation failed", fields...)
	return classified
}

// dedupeLastWins collapses items sharing a key. The surviving value is the last
// one seen, placed where the key first appeared.
func dedupeLastWins[T any](items []T, key func(T) string) []T {
	pos := make(map[string]int, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		k := key(it)
		if i, ok := pos[k]; ok {
			out[i] = it
			continue
		}
		pos[k] = len(out)
		out = append(out, it)
	}
	return out
}
