package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	h := NewSystemHandler("settlement-engine", "1.2.0", "postgres", nil)
	assert.False(t, h.startTime.IsZero())

	c, w := newTestContext(http.MethodGet, "/system/info")
	h.GetSystemInfo(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "settlement-engine", data["name"])
	assert.Equal(t, "1.2.0", data["version"])
	assert.Equal(t, "postgres", data["storage"])
	assert.NotEmpty(t, data["go_version"])
	assert.NotEmpty(t, data["uptime"])
}

func TestSystemHandler_Health(t *testing.T) {
	tests := []struct {
		name         string
		store        Pinger
		expectedCode int
		status       string
		database     string
	}{
		{name: "in-memory store", store: nil, expectedCode: http.StatusOK, status: "healthy", database: "n/a"},
		{name: "database reachable", store: stubPinger{}, expectedCode: http.StatusOK, status: "healthy", database: "ok"},
		{name: "database down", store: stubPinger{err: errors.New("dial tcp: refused")}, expectedCode: http.StatusServiceUnavailable, status: "unhealthy", database: "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSystemHandler("settlement-engine", "test", "memory", tt.store)
			c, w := newTestContext(http.MethodGet, "/health")
			h.Health(c)

			assert.Equal(t, tt.expectedCode, w.Code)
			data := decodeResponse(t, w).Data.(map[string]any)
			assert.Equal(t, tt.status, data["status"])
			assert.Equal(t, tt.database, data["database"])
		})
	}
}
