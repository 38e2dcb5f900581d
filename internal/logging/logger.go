package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewJSONHandler returns the stdout handler. Development builds log at DEBUG.
func NewJSONHandler(w io.Writer, appEnv string) slog.Handler {
	if w == nil {
		w = os.Stdout
	}
	level := slog.LevelInfo
	if strings.EqualFold(appEnv, "development") {
		level = slog.LevelDebug
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// Setup installs handlers as the process default logger and returns it.
func Setup(handlers ...slog.Handler) *slog.Logger {
	var h slog.Handler
	switch len(handlers) {
	case 0:
		h = NewJSONHandler(os.Stdout, "")
	case 1:
		h = handlers[0]
	default:
		h = NewMultiHandler(handlers...)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}
