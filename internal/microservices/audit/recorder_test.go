package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"newsdist/internal/microservices/tcp"
)

// MockRepository mocks the Repository interface
type MockRepository struct {
	mock.Mock
	mu    sync.Mutex
	saved []SubscriptionEvent
}

func (m *MockRepository) SaveBatch(ctx context.Context, events []SubscriptionEvent) error {
	args := m.Called(ctx, events)
	if args.Error(0) == nil {
		m.mu.Lock()
		m.saved = append(m.saved, events...)
		m.mu.Unlock()
	}
	return args.Error(0)
}

func (m *MockRepository) Recent(ctx context.Context, limit int) ([]SubscriptionEvent, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]SubscriptionEvent), args.Error(1)
}

func (m *MockRepository) RecentByName(ctx context.Context, name string, limit int) ([]SubscriptionEvent, error) {
	args := m.Called(ctx, name, limit)
	return args.Get(0).([]SubscriptionEvent), args.Error(1)
}

func (m *MockRepository) savedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func testEvent(typ tcp.EventType, name string) tcp.Event {
	return tcp.Event{
		Type:       typ,
		Name:       name,
		SessionID:  "8f7c3f4e-0a39-4d55-9a55-2d3c6a0e7b11",
		RemoteAddr: "127.0.0.1:50000",
		At:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRecorder_FlushesOnBatchSize(t *testing.T) {
	repo := new(MockRepository)
	repo.On("SaveBatch", mock.Anything, mock.Anything).Return(nil)

	r := NewRecorder(repo, WithBatchSize(2), WithFlushInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	listener := r.Listener()
	listener(testEvent(tcp.EventSubscribed, "alice"))
	listener(testEvent(tcp.EventUnsubscribed, "alice"))

	require.Eventually(t, func() bool { return repo.savedCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-r.Done()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, "SUBSCRIBED", repo.saved[0].EventType)
	assert.Equal(t, "alice", repo.saved[0].Name)
	assert.Equal(t, "UNSUBSCRIBED", repo.saved[1].EventType)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), repo.saved[1].OccurredAt)
}

func TestRecorder_FlushesOnInterval(t *testing.T) {
	repo := new(MockRepository)
	repo.On("SaveBatch", mock.Anything, mock.Anything).Return(nil)

	r := NewRecorder(repo, WithBatchSize(100), WithFlushInterval(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.NoError(t, r.Record(testEvent(tcp.EventSubscribed, "bob")))
	require.Eventually(t, func() bool { return repo.savedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRecorder_FlushesRemainderOnShutdown(t *testing.T) {
	repo := new(MockRepository)
	repo.On("SaveBatch", mock.Anything, mock.Anything).Return(nil)

	r := NewRecorder(repo, WithBatchSize(100), WithFlushInterval(time.Hour))
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Record(testEvent(tcp.EventSubscribed, "carol")))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)

	assert.Equal(t, 3, repo.savedCount())
	assert.ErrorIs(t, r.Record(testEvent(tcp.EventSubscribed, "late")), ErrRecorderClosed)
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	repo := new(MockRepository)
	r := NewRecorder(repo, WithQueueSize(1))

	require.NoError(t, r.Record(testEvent(tcp.EventSubscribed, "a")))
	assert.Error(t, r.Record(testEvent(tcp.EventSubscribed, "b")))
	assert.EqualValues(t, 1, r.Dropped())
}

func TestRecorder_SaveFailureDoesNotStopWriter(t *testing.T) {
	repo := new(MockRepository)
	repo.On("SaveBatch", mock.Anything, mock.Anything).Return(errors.New("connection refused")).Once()
	repo.On("SaveBatch", mock.Anything, mock.Anything).Return(nil)

	r := NewRecorder(repo, WithBatchSize(1), WithFlushInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.NoError(t, r.Record(testEvent(tcp.EventSubscribed, "lost")))
	require.NoError(t, r.Record(testEvent(tcp.EventSubscribed, "kept")))

	require.Eventually(t, func() bool { return repo.savedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	repo.mu.Lock()
	assert.Equal(t, "kept", repo.saved[0].Name)
	repo.mu.Unlock()
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, maxRecentEvents, clampLimit(0))
	assert.Equal(t, maxRecentEvents, clampLimit(-1))
	assert.Equal(t, maxRecentEvents, clampLimit(10000))
	assert.Equal(t, 25, clampLimit(25))
}
