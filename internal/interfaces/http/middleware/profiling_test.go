package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"testing"

	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type ctxProbe string

func TestProfiling(t *testing.T) {
	tests := []struct {
		name       string
		cfg        ProfilingConfig
		path       string
		wantLabels map[string]string
	}{
		{
			name: "labels route and method",
			cfg:  DefaultProfilingConfig(),
			path: "/api/v1/documents/123",
			wantLabels: map[string]string{
				telemetry.ProfilingLabelRoute:  "/api/v1/documents/:id",
				telemetry.ProfilingLabelMethod: http.MethodGet,
			},
		},
		{
			name:       "skipped path carries no labels",
			cfg:        DefaultProfilingConfig(),
			path:       "/health",
			wantLabels: map[string]string{},
		},
		{
			name:       "disabled",
			cfg:        ProfilingConfig{Enabled: false},
			path:       "/api/v1/documents/123",
			wantLabels: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := map[string]string{}
			var kept bool

			router := gin.New()
			router.Use(func(c *gin.Context) {
				c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ctxProbe("probe"), "kept"))
				c.Next()
			})
			router.Use(Profiling(tt.cfg))
			handler := func(c *gin.Context) {
				pprof.ForLabels(c.Request.Context(), func(key, value string) bool {
					got[key] = value
					return true
				})
				kept = c.Request.Context().Value(ctxProbe("probe")) == "kept"
				c.Status(http.StatusOK)
			}
			router.GET("/api/v1/documents/:id", handler)
			router.GET("/health", handler)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantLabels, got)
			assert.True(t, kept, "upstream context values survive")
		})
	}
}
