package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn, "json")
	logger.Info("dropped")
	logger.Warn("kept", "item_id", "a")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "a", line["item_id"])

	buf.Reset()
	New(&buf, slog.LevelInfo, "text").Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}

func TestComponentPrefersContextLogger(t *testing.T) {
	var fallbackBuf, ctxBuf bytes.Buffer
	fallback := New(&fallbackBuf, slog.LevelInfo, "text")
	ctx := ContextWithLogger(context.Background(), New(&ctxBuf, slog.LevelInfo, "text"))

	Component(ctx, fallback, "handler", "ItemHandler", "Get", "item_id", "x").Info("served")
	assert.Empty(t, fallbackBuf.String())
	assert.Contains(t, ctxBuf.String(), "handler=ItemHandler")
	assert.Contains(t, ctxBuf.String(), "operation=Get")
	assert.Contains(t, ctxBuf.String(), "item_id=x")

	Component(context.Background(), fallback, "service", "ItemService", "").Info("fallback")
	assert.Contains(t, fallbackBuf.String(), "service=ItemService")
	assert.NotContains(t, fallbackBuf.String(), "operation=")
}

func TestContextWithLoggerIgnoresNil(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, ContextWithLogger(ctx, nil))
	assert.Nil(t, FromContext(ctx))
}
