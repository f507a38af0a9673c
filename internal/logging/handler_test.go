package logging

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiHandler_FansOutAndSkipsNil(t *testing.T) {
	var file, console bytes.Buffer
	multi := NewMultiHandler(nil, slog.NewTextHandler(&file, nil), nil, slog.NewTextHandler(&console, nil))
	require.Len(t, multi, 2)

	slog.New(multi).Info("routes loaded", "trails", 33)
	for _, out := range []string{file.String(), console.String()} {
		assert.Contains(t, out, `msg="routes loaded" trails=33`)
	}
}

func TestMultiHandler_Enabled(t *testing.T) {
	at := func(l slog.Level) slog.Handler {
		return slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: l})
	}
	tests := []struct {
		name    string
		multi   MultiHandler
		level   slog.Level
		enabled bool
	}{
		{"empty", NewMultiHandler(), slog.LevelError, false},
		{"below the only member", NewMultiHandler(at(slog.LevelInfo)), slog.LevelDebug, false},
		{"at the only member", NewMultiHandler(at(slog.LevelInfo)), slog.LevelInfo, true},
		{"any member enabled", NewMultiHandler(at(slog.LevelWarn), at(slog.LevelDebug)), slog.LevelDebug, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.enabled, tt.multi.Enabled(context.Background(), tt.level))
		})
	}
}

func TestMultiHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiHandler(slog.NewTextHandler(&buf, nil))

	slog.New(multi.WithAttrs([]slog.Attr{slog.String("component", "cache")})).Info("with attrs")
	assert.Contains(t, buf.String(), "component=cache")

	slog.New(multi.WithGroup("trail")).Info("grouped", "id", "ruta-001")
	assert.Contains(t, buf.String(), "trail.id=ruta-001")

	assert.Equal(t, multi, multi.WithGroup(""))
}

// errorHandler is a slog.Handler that always returns an error from Handle.
type errorHandler struct {
	slog.Handler
}

func (h *errorHandler) Handle(_ context.Context, _ slog.Record) error {
	return errors.New("handler error")
}

func (h *errorHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func TestMultiHandler_HandleError(t *testing.T) {
	var buf bytes.Buffer
	spy := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	multi := NewMultiHandler(&errorHandler{}, spy)
	err := multi.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "should reach spy", 0))

	assert.EqualError(t, err, "handler error")
	assert.Contains(t, buf.String(), "should reach spy")
}

func TestContextHandler_ProviderAndContext(t *testing.T) {
	var buf bytes.Buffer
	calls := 0
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		calls++
		return []slog.Attr{slog.Int("call", calls)}
	})
	logger := slog.New(h)

	ctx := WithAttrs(context.Background(), slog.String("request", "abc"))
	ctx = WithAttrs(ctx, slog.String("trail", "ruta-002"))
	logger.InfoContext(ctx, "pin clicked")
	logger.Info("no request")

	out := buf.String()
	assert.Contains(t, out, `msg="pin clicked" call=1 request=abc trail=ruta-002`)
	assert.Contains(t, out, `msg="no request" call=2`)
	assert.NotContains(t, out, `msg="no request" call=2 request`)
}

func TestContextHandler_NilProvider(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), nil)

	slog.New(h.WithAttrs([]slog.Attr{slog.String("k", "v")})).Info("plain")
	assert.Contains(t, buf.String(), "k=v")
	assert.Same(t, h, h.WithGroup(""))
}
