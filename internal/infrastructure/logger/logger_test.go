package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"console stdout", DefaultConfig()},
		{"json stderr", &Config{Level: "debug", Format: "json", Output: "stderr"}},
		{"file", &Config{Level: "warn", Format: "json", Output: filepath.Join(t.TempDir(), "app.log")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, err := New(tc.cfg)
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}

	_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "app.log")})
	assert.Error(t, err)
}

func TestNew_TeesExtraCores(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l, err := New(&Config{Level: "error", Format: "json", Output: "stderr"}, core)
	require.NoError(t, err)

	l.Info("settlement recorded")
	assert.Equal(t, 1, logs.Len())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithContext(context.Background(), zap.New(core))
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithActor(ctx, "alice")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "alice", GetActor(ctx))

	L(ctx).Info("hello")
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "alice", fields["actor"])
	assert.NotContains(t, fields, "trace_id")
}

func TestL_AddsTraceContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	core, logs := observer.New(zapcore.InfoLevel)
	L(WithContext(ctx, zap.New(core))).Info("traced")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.ErrorLevel)
	r := gin.New()
	r.Use(Recovery(zap.New(core)))
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	assert.Equal(t, 1, logs.Len())
}

func TestGormLogger_Trace(t *testing.T) {
	tests := []struct {
		name      string
		level     gormlogger.LogLevel
		elapsed   time.Duration
		err       error
		wantMsg   string
		wantLevel zapcore.Level
	}{
		{"error", gormlogger.Warn, 0, assert.AnError, "SQL error", zapcore.ErrorLevel},
		{"not found is not an error", gormlogger.Warn, 0, gormlogger.ErrRecordNotFound, "", 0},
		{"not found traced at info", gormlogger.Info, 0, gormlogger.ErrRecordNotFound, "SQL", zapcore.DebugLevel},
		{"slow", gormlogger.Warn, time.Second, nil, "Slow SQL", zapcore.WarnLevel},
		{"fast below info", gormlogger.Warn, 0, nil, "", 0},
		{"normal", gormlogger.Info, 0, nil, "SQL", zapcore.DebugLevel},
		{"silent", gormlogger.Silent, 0, assert.AnError, "", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			gl := NewGormLogger(zap.New(core), tc.level)
			ctx := WithActor(WithRequestID(context.Background(), "req-3"), "alice")
			gl.Trace(ctx, time.Now().Add(-tc.elapsed), func() (string, int64) {
				return "UPDATE funding_sources SET available_balance = available_balance - 10", 1
			}, tc.err)

			if tc.wantMsg == "" {
				assert.Equal(t, 0, logs.Len())
				return
			}
			require.Equal(t, 1, logs.Len())
			assert.Equal(t, tc.wantMsg, logs.All()[0].Message)
			assert.Equal(t, tc.wantLevel, logs.All()[0].Level)
			assert.Equal(t, "req-3", logs.All()[0].ContextMap()["request_id"])
			assert.Equal(t, "alice", logs.All()[0].ContextMap()["actor"])
		})
	}
}

func TestGormLogger_ParamsFilter(t *testing.T) {
	const sql = "UPDATE funding_sources SET available_balance = available_balance - $1 WHERE id = $2"

	full := NewGormLogger(zap.NewNop(), gormlogger.Info)
	_, params := full.ParamsFilter(context.Background(), sql, "250.00", "fs-1")
	assert.Equal(t, []any{"250.00", "fs-1"}, params)

	redacted := NewGormLogger(zap.NewNop(), gormlogger.Info, WithParameterizedQueries(true))
	gotSQL, params := redacted.ParamsFilter(context.Background(), sql, "250.00", "fs-1")
	assert.Equal(t, sql, gotSQL)
	assert.Nil(t, params)
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("unknown"))
}

func TestFromContext_NotFound(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		status    int
		wantLevel zapcore.Level
	}{
		{"ok", http.StatusOK, zapcore.InfoLevel},
		{"client error", http.StatusUnprocessableEntity, zapcore.WarnLevel},
		{"server error", http.StatusInternalServerError, zapcore.ErrorLevel},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			r := gin.New()
			r.Use(func(c *gin.Context) { c.Set("request_id", "req-9"); c.Next() })
			r.Use(GinMiddleware(zap.New(core)))
			r.GET("/x", func(c *gin.Context) {
				assert.NotNil(t, GetGinLogger(c))
				FromContext(c.Request.Context()).Debug("inside handler")
				c.Status(tc.status)
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?page=2", nil))

			require.Equal(t, 2, logs.Len())
			assert.Equal(t, "inside handler", logs.All()[0].Message)
			entry := logs.All()[1]
			assert.Equal(t, tc.wantLevel, entry.Level)
			assert.Equal(t, "req-9", entry.ContextMap()["request_id"])
			assert.Equal(t, "page=2", entry.ContextMap()["query"])
		})
	}
}
