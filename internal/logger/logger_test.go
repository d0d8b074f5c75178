package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARN "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestSetupWriter_FiltersBelowLevel(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupWriter(&buf, "warn")

	slog.Info("hidden")
	slog.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestContextIDs(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetSessionID(ctx))
	assert.Empty(t, GetTurnID(ctx))

	ctx = WithSessionID(ctx, "sess_1")
	ctx = WithTurnID(ctx, "turn_1")
	assert.Equal(t, "sess_1", GetSessionID(ctx))
	assert.Equal(t, "turn_1", GetTurnID(ctx))
}
