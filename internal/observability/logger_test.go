package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects stdout around fn and returns what was written.
// InitLogger binds the handler to os.Stdout at creation time, so it must
// be called inside fn.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestInitLogger_JSONFormat(t *testing.T) {
	out := captureOutput(t, func() {
		InitLogger("info", "json")
		Info("relay starting", "port", "3001")
	})

	assert.Contains(t, out, `"msg":"relay starting"`)
	assert.Contains(t, out, `"port":"3001"`)
	assert.Contains(t, out, `"level":"INFO"`)
}

func TestInitLogger_TextFormat(t *testing.T) {
	out := captureOutput(t, func() {
		InitLogger("info", "text")
		Info("relay starting", "port", "3001")
	})

	assert.Contains(t, out, `msg="relay starting"`)
	assert.Contains(t, out, "port=3001")
}

func TestInitLogger_LevelFilter(t *testing.T) {
	t.Run("debug suppressed at info level", func(t *testing.T) {
		out := captureOutput(t, func() {
			InitLogger("info", "text")
			Debug("join_room from unauthenticated connection")
		})
		assert.Empty(t, out)
	})

	t.Run("debug emitted at debug level", func(t *testing.T) {
		out := captureOutput(t, func() {
			InitLogger("debug", "text")
			Debug("join_room from unauthenticated connection")
		})
		assert.Contains(t, out, "join_room from unauthenticated connection")
	})

	t.Run("warn and error always emitted", func(t *testing.T) {
		out := captureOutput(t, func() {
			InitLogger("info", "text")
			Warn("client dropped, send buffer full")
			Error("failed to encode event")
		})
		assert.Contains(t, out, "client dropped, send buffer full")
		assert.Contains(t, out, "failed to encode event")
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelInfo}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestFromContext(t *testing.T) {
	t.Run("connection id appears in output", func(t *testing.T) {
		out := captureOutput(t, func() {
			InitLogger("info", "text")
			ctx := WithConnectionID(context.Background(), "conn-42")
			FromContext(ctx).Info("client authenticated")
		})
		assert.Contains(t, out, "connection_id=conn-42")
	})

	t.Run("request id appears in output", func(t *testing.T) {
		out := captureOutput(t, func() {
			InitLogger("info", "text")
			ctx := WithRequestID(context.Background(), "req-7")
			FromContext(ctx).Info("upgrade requested")
		})
		assert.Contains(t, out, "request_id=req-7")
	})

	t.Run("both ids appear together", func(t *testing.T) {
		out := captureOutput(t, func() {
			InitLogger("info", "text")
			ctx := WithRequestID(context.Background(), "req-7")
			ctx = WithConnectionID(ctx, "conn-42")
			FromContext(ctx).Info("upgrade complete")
		})
		assert.Contains(t, out, "request_id=req-7")
		assert.Contains(t, out, "connection_id=conn-42")
	})

	t.Run("empty values are skipped", func(t *testing.T) {
		out := captureOutput(t, func() {
			InitLogger("info", "text")
			ctx := WithConnectionID(context.Background(), "")
			FromContext(ctx).Info("bare line")
		})
		assert.NotContains(t, out, "connection_id")
	})

	t.Run("falls back to default when uninitialized", func(t *testing.T) {
		saved := logger
		defer func() { logger = saved }()
		logger = nil

		assert.Equal(t, slog.Default(), FromContext(context.Background()))
	})
}

func TestContextKeys(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithConnectionID(ctx, "conn-1")

	assert.Equal(t, "req-1", ctx.Value(requestIDKey))
	assert.Equal(t, "conn-1", ctx.Value(connectionIDKey))

	// Rebinding overwrites.
	ctx = WithConnectionID(ctx, "conn-2")
	assert.Equal(t, "conn-2", ctx.Value(connectionIDKey))
}

func TestHelpers_WithoutInitializedLogger(t *testing.T) {
	saved := logger
	defer func() { logger = saved }()
	logger = nil

	assert.NotPanics(t, func() {
		Info("info without init")
		Warn("warn without init")
		Error("error without init")
		Debug("debug without init")
	})
}
