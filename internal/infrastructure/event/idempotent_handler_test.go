package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/settlement/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockIdempotencyStore is a testify mock of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) SaveResult(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	return m.Called(ctx, key, result, ttl).Error(0)
}

func (m *MockIdempotencyStore) GetResult(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Bool(1), args.Error(2)
}

func (m *MockIdempotencyStore) Forget(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}

func TestIdempotentHandler_SkipsDuplicates(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	inner := newTestHandler("DocumentApproved")
	h := NewIdempotentHandler(inner, store, zap.NewNop())
	event := newTestEvent("DocumentApproved")
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, event))
	require.NoError(t, h.Handle(ctx, event))
	require.NoError(t, h.Handle(ctx, newTestEvent("DocumentApproved")))

	assert.Len(t, inner.getHandled(), 2)
	stats := h.Metrics().Stats()
	assert.Equal(t, int64(2), stats.EventsProcessed)
	assert.Equal(t, int64(1), stats.EventsDuplicate)
	assert.Equal(t, []string{"DocumentApproved"}, h.EventTypes())
}

func TestIdempotentHandler_FailureAllowsRedelivery(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	inner := newTestHandler("DocumentApproved")
	inner.err = errors.New("gateway down")
	h := NewIdempotentHandler(inner, store, zap.NewNop())
	event := newTestEvent("DocumentApproved")
	ctx := context.Background()

	assert.Error(t, h.Handle(ctx, event))
	inner.mu.Lock()
	inner.err = nil
	inner.mu.Unlock()
	require.NoError(t, h.Handle(ctx, event))

	assert.Len(t, inner.getHandled(), 2)
	assert.Equal(t, int64(1), h.Metrics().Stats().EventsFailed)
}

func TestIdempotentHandler_StoreErrorStillDelivers(t *testing.T) {
	store := new(MockIdempotencyStore)
	store.On("MarkProcessed", mock.Anything, mock.AnythingOfType("string"), time.Hour).
		Return(false, errors.New("redis timeout"))

	inner := newTestHandler("DocumentRejected")
	h := NewIdempotentHandler(inner, store, zap.NewNop(), WithIdempotencyTTL(time.Hour))

	require.NoError(t, h.Handle(context.Background(), newTestEvent("DocumentRejected")))
	assert.Len(t, inner.getHandled(), 1)
	store.AssertExpectations(t)
}

func TestIdempotentHandler_SharedMetrics(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	metrics := &IdempotencyMetrics{}
	first := NewIdempotentHandler(newTestHandler("A"), store, zap.NewNop(), WithIdempotencyMetrics(metrics))
	second := NewIdempotentHandler(&NotificationHandler{notifier: NewLogNotifier(zap.NewNop())}, store, zap.NewNop(), WithIdempotencyMetrics(metrics))

	event := newTestEvent("A")
	require.NoError(t, first.Handle(context.Background(), event))
	// a different handler type keeps its own key for the same event
	require.NoError(t, second.Handle(context.Background(), event))
	assert.Equal(t, int64(2), metrics.Stats().EventsProcessed)
}
