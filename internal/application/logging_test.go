package application

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/item-scheduler/internal/logging"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Same(t, custom, defaultLogger(custom))
	assert.Same(t, slog.Default(), defaultLogger(nil))
}

func TestServiceLoggerPrefersContextLogger(t *testing.T) {
	t.Parallel()

	var base, scoped bytes.Buffer
	baseLogger := slog.New(slog.NewTextHandler(&base, nil))
	ctx := logging.ContextWithLogger(context.Background(), slog.New(slog.NewTextHandler(&scoped, nil)))

	serviceLogger(ctx, baseLogger, "ItemService", "CreateItem", "item_id", "a").Info("created")

	assert.Empty(t, base.String())
	assert.Contains(t, scoped.String(), "service=ItemService")
	assert.Contains(t, scoped.String(), "operation=CreateItem")
	assert.Contains(t, scoped.String(), "item_id=a")
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: ErrNotFound, want: "not_found"},
		{err: fmt.Errorf("wrap: %w", ErrInvalidScope), want: "invalid_scope"},
		{err: ErrConflict, want: "conflict"},
		{err: fieldError("title", "required"), want: "validation"},
		{err: io.ErrUnexpectedEOF, want: "unexpected"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, ErrorKind(tc.err))
	}
}
