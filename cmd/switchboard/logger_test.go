// ABOUTME: Tests for the terminal log handler
// ABOUTME: Checks level filtering and attribute formatting with groups

package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/2389/switchboard/internal/config"
)

func TestColorHandler_FormatsAttrs(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	logger := slog.New(newColorHandler(&buf, slog.LevelInfo)).With("component", "router")

	logger.Debug("hidden")
	logger.WithGroup("conn").Info("joined", "id", "c-1", slog.Group("peer", "role", "customer"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INF joined")
	assert.Contains(t, out, " component=router")
	assert.Contains(t, out, " conn.id=c-1")
	assert.Contains(t, out, " conn.peer.role=customer")
}

func TestSetupLogger_Levels(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"})
	assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, logger.Enabled(t.Context(), slog.LevelWarn))

	logger = setupLogger(config.LoggingConfig{Level: "nonsense"})
	assert.True(t, logger.Enabled(t.Context(), slog.LevelInfo))
	assert.False(t, logger.Enabled(t.Context(), slog.LevelDebug))
}
