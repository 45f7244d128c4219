package eventbus

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipt-server-go/internal/domain/eventbus/infrastructure"
	"receipt-server-go/internal/platform/storage"
)

type silentLogger struct{}

func (silentLogger) Debug(string, ...any) {}
func (silentLogger) Warn(string, ...any)  {}
func (silentLogger) Error(string, ...any) {}

func TestAsyncEventBus_Delivers(t *testing.T) {
	bus := NewAsyncEventBus(2, silentLogger{})
	bus.Start()
	defer bus.Stop()

	var got atomic.Int64
	handler := func(data AuthEventData) {
		got.Add(data.UserID)
	}
	require.NoError(t, bus.Subscribe(EventAuthLogin, handler))

	for i := 1; i <= 10; i++ {
		bus.PublishAsync(EventAuthLogin, AuthEventData{UserID: int64(i)})
	}
	bus.WaitAsync()

	assert.EqualValues(t, 55, got.Load())
	assert.True(t, bus.HasCallback(EventAuthLogin))
	assert.Zero(t, bus.Dropped())

	require.NoError(t, bus.Unsubscribe(EventAuthLogin, handler))
	assert.False(t, bus.HasCallback(EventAuthLogin))
}

func TestAsyncEventBus_DropsAfterStop(t *testing.T) {
	bus := NewAsyncEventBus(1, silentLogger{})
	bus.Start()
	bus.Stop()
	bus.Stop()

	bus.PublishAsync(EventAuthLogout, AuthEventData{UserID: 1})
	assert.EqualValues(t, 1, bus.Dropped())
}

func TestAsyncEventBus_RecoversHandlerPanic(t *testing.T) {
	bus := NewAsyncEventBus(1, silentLogger{})
	bus.Start()
	defer bus.Stop()

	var calls atomic.Int32
	require.NoError(t, bus.Subscribe(EventAuthRefresh, func(AuthEventData) {
		calls.Add(1)
		panic("boom")
	}))

	bus.PublishAsync(EventAuthRefresh, AuthEventData{})
	bus.PublishAsync(EventAuthRefresh, AuthEventData{})
	bus.WaitAsync()

	assert.EqualValues(t, 2, calls.Load(), "worker must survive a panicking handler")
}

func TestRecorder_PersistsAuthEvents(t *testing.T) {
	dsn := fmt.Sprintf("file:events-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := storage.Open(storage.Config{Driver: storage.DriverSQLite, DSN: dsn})
	require.NoError(t, err)
	defer storage.Close(db)

	repo := infrastructure.NewEventRepository(db)
	bus := NewAsyncEventBus(2, silentLogger{})
	bus.Start()
	defer bus.Stop()

	require.NoError(t, NewRecorder(repo, silentLogger{}).Attach(bus))

	bus.PublishAsync(EventAuthLogin, AuthEventData{UserID: 3, Username: "alice"})
	bus.PublishAsync(EventAuthLoginFailed, AuthEventData{Username: "alice", Reason: "InvalidCredentials"})
	bus.PublishAsync(EventAuthLogout, AuthEventData{UserID: 3, Username: "alice"})
	bus.WaitAsync()

	ctx := context.Background()
	byUser, err := repo.FindByUserID(ctx, "3")
	require.NoError(t, err)
	require.Len(t, byUser, 2)

	failed, err := repo.FindByEventType(ctx, EventAuthLoginFailed, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	payload, ok := failed[0].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "InvalidCredentials", payload["reason"])
	assert.NotContains(t, payload, "access_token")

	recent, err := repo.FindByTimeRange(ctx, time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	stats, err := repo.GetEventStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats[EventAuthLogin])

	require.NoError(t, repo.DeleteOldEvents(ctx, time.Now().Add(time.Minute)))
	stats, err = repo.GetEventStats(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats)
}
