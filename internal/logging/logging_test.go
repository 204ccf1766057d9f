package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewHandler(t *testing.T) {
	for _, format := range []string{"tint", "text", "json"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(NewHandler(&buf, format, "warn"))

			logger.Info("hidden")
			logger.Warn("rate limited", "row", "row-tokyo")

			out := buf.String()
			assert.NotContains(t, out, "hidden")
			assert.Contains(t, out, "rate limited")
			assert.Contains(t, out, "row-tokyo")
		})
	}
}
