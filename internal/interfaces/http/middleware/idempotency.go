package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Idempotency headers
const (
	IdempotencyKeyHeader   = "Idempotency-Key"
	IdempotentReplayHeader = "Idempotent-Replayed"
)

// MaxIdempotencyKeyLength caps client-supplied keys
const MaxIdempotencyKeyLength = 255

// IdempotencyConfig holds configuration for the idempotency middleware
type IdempotencyConfig struct {
	Store  shared.IdempotencyStore
	TTL    time.Duration
	Logger *zap.Logger
}

// storedResponse is what a completed request leaves behind for its retries
type storedResponse struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// captureWriter tees the response body so it can be stored
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency makes a route safe to retry. A request carrying an
// Idempotency-Key runs at most once per actor and route within TTL; later
// requests with the same key and body get the stored response back with
// Idempotent-Replayed set. The same key with a different body is refused,
// as is a retry that arrives while the first attempt is still running.
//
// Server errors and 409s are not stored, so those attempts may be retried
// with the same key. Requests without the header pass straight through.
func Idempotency(cfg IdempotencyConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}
		requestID := GetRequestID(c)
		if len(key) > MaxIdempotencyKeyLength {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeBadRequest, "Idempotency-Key is too long", requestID))
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			HandleValidationError(c, err)
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		fingerprint := fingerprintOf(body)

		ctx := c.Request.Context()
		storeKey := "http:" + GetActor(c) + ":" + c.Request.Method + " " + c.FullPath() + ":" + key

		stored, found, err := cfg.Store.GetResult(ctx, storeKey)
		if err != nil {
			abortStoreFailure(c, log, err)
			return
		}
		if found {
			var prev storedResponse
			if err := json.Unmarshal(stored, &prev); err != nil {
				abortStoreFailure(c, log, err)
				return
			}
			if prev.Fingerprint != fingerprint {
				c.AbortWithStatusJSON(http.StatusConflict, dto.NewErrorResponseWithRequestID(
					dto.ErrCodeIdempotencyReuse, "Idempotency-Key was already used with a different request", requestID))
				return
			}
			c.Header(IdempotentReplayHeader, "true")
			c.Data(prev.Status, prev.ContentType, prev.Body)
			c.Abort()
			return
		}

		claimed, err := cfg.Store.MarkProcessed(ctx, storeKey, cfg.TTL)
		if err != nil {
			abortStoreFailure(c, log, err)
			return
		}
		if !claimed {
			c.AbortWithStatusJSON(http.StatusConflict, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRequestInFlight, "A request with this Idempotency-Key is still being processed", requestID))
			return
		}

		writer := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		// The outcome is persisted even if the client already hung up
		saveCtx := context.WithoutCancel(ctx)
		status := writer.Status()
		if status >= http.StatusInternalServerError || status == http.StatusConflict {
			if err := cfg.Store.Forget(saveCtx, storeKey); err != nil {
				log.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(err))
			}
			return
		}

		result, err := json.Marshal(storedResponse{
			Fingerprint: fingerprint,
			Status:      status,
			ContentType: writer.Header().Get("Content-Type"),
			Body:        writer.body.Bytes(),
		})
		if err == nil {
			err = cfg.Store.SaveResult(saveCtx, storeKey, result, cfg.TTL)
		}
		if err != nil {
			log.Error("Failed to store idempotent response", zap.String("key", key), zap.Error(err))
		}
	}
}

func fingerprintOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func abortStoreFailure(c *gin.Context, log *zap.Logger, err error) {
	log.Error("Idempotency store unavailable", zap.Error(err))
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeInternal, "Idempotency store unavailable, retry later", GetRequestID(c)))
}
