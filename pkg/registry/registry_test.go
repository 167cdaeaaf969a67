package registry

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlink-protocol/carlink-go/pkg/connection"
	"github.com/carlink-protocol/carlink-go/pkg/security"
	"github.com/carlink-protocol/carlink-go/pkg/wire"
)

type disposeRecorder struct {
	mu       sync.Mutex
	disposed []security.Context
}

func (d *disposeRecorder) dispose(ctxs []security.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disposed = append(d.disposed, ctxs...)
}

func (d *disposeRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.disposed)
}

type stubContext struct{}

func (stubContext) Encrypt(p []byte) ([]byte, error) { return p, nil }
func (stubContext) Decrypt(p []byte) ([]byte, error) { return p, nil }
func (stubContext) Close() error                     { return nil }

func TestCreateAndGetConnection(t *testing.T) {
	r := New(Config{})

	h, err := r.CreateConnection(42, 0, "conn-1")
	require.NoError(t, err)
	require.NotZero(t, h)

	conn, ok := r.GetConnection(h)
	require.True(t, ok)
	assert.Equal(t, connection.DeviceHandle(42), conn.Device())
	assert.Equal(t, h, conn.Handle())
	assert.Equal(t, 1, r.Count())
}

func TestHandlesAreUniqueAmongLive(t *testing.T) {
	r := New(Config{})

	seen := make(map[connection.Handle]bool)
	for i := 0; i < 50; i++ {
		h, err := r.CreateConnection(connection.DeviceHandle(i), 0, "")
		require.NoError(t, err)
		require.False(t, seen[h], "handle %d reused", h)
		seen[h] = true
	}
	assert.Equal(t, 50, r.Count())
	r.CloseAll()
	assert.Equal(t, 0, r.Count())
}

func TestDestroyConnection(t *testing.T) {
	// Scenario: destroy, then lookup comes back empty; an in-flight
	// keep-alive racing the destroy is dropped without effect.
	r := New(Config{})
	h, err := r.CreateConnection(42, 0, "")
	require.NoError(t, err)

	require.NoError(t, r.DestroyConnection(h))

	_, ok := r.GetConnection(h)
	assert.False(t, ok, "destroyed connection still visible")

	// Stale keep-alive and double destroy are harmless.
	r.KeepAlive(h)
	assert.ErrorIs(t, r.DestroyConnection(h), ErrNotFound)
}

func TestDestroyNotifiesObserversOnce(t *testing.T) {
	r := New(Config{})

	var calls atomic.Int32
	var gotReason Reason
	var gotDevice connection.DeviceHandle
	r.AddObserver(func(h connection.Handle, device connection.DeviceHandle, reason Reason) {
		calls.Add(1)
		gotReason = reason
		gotDevice = device
	})

	h, err := r.CreateConnection(7, 0, "")
	require.NoError(t, err)

	require.NoError(t, r.DestroyConnection(h))
	_ = r.DestroyConnection(h)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, ReasonDisconnect, gotReason)
	assert.Equal(t, connection.DeviceHandle(7), gotDevice)
}

func TestDestroyDisposesReleasedBindings(t *testing.T) {
	rec := &disposeRecorder{}
	r := New(Config{Dispose: rec.dispose})

	h, err := r.CreateConnection(1, 0, "")
	require.NoError(t, err)
	conn, ok := r.GetConnection(h)
	require.True(t, ok)

	id, err := conn.AddNewSession()
	require.NoError(t, err)
	require.NoError(t, conn.AddNewService(id, wire.ServiceTypeRPC))
	_, err = conn.SetSecurityContext(id, wire.ServiceTypeRPC, stubContext{})
	require.NoError(t, err)

	require.NoError(t, r.DestroyConnection(h))
	assert.Equal(t, 1, rec.count())
}

func TestHeartbeatExpiryDestroysViaRegistry(t *testing.T) {
	r := New(Config{})

	notified := make(chan Reason, 1)
	r.AddObserver(func(h connection.Handle, device connection.DeviceHandle, reason Reason) {
		notified <- reason
	})

	h, err := r.CreateConnection(9, 50*time.Millisecond, "")
	require.NoError(t, err)

	select {
	case reason := <-notified:
		assert.Equal(t, ReasonHeartbeat, reason)
	case <-time.After(time.Second):
		t.Fatal("heartbeat expiry never destroyed the connection")
	}

	_, ok := r.GetConnection(h)
	assert.False(t, ok, "expired connection still registered")
}

func TestKeepAliveHoldsOffExpiry(t *testing.T) {
	r := New(Config{})

	destroyed := make(chan struct{}, 1)
	r.AddObserver(func(connection.Handle, connection.DeviceHandle, Reason) {
		destroyed <- struct{}{}
	})

	h, err := r.CreateConnection(9, 100*time.Millisecond, "")
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		time.Sleep(40 * time.Millisecond)
		r.KeepAlive(h)
		select {
		case <-destroyed:
			t.Fatal("connection expired despite keep-alives")
		default:
		}
	}
	require.NoError(t, r.DestroyConnection(h))
}

func TestDestroyRacingExpiry(t *testing.T) {
	// A transport disconnect racing heartbeat expiry must destroy the
	// connection exactly once, whoever wins.
	r := New(Config{})

	var notifications atomic.Int32
	r.AddObserver(func(connection.Handle, connection.DeviceHandle, Reason) {
		notifications.Add(1)
	})

	h, err := r.CreateConnection(3, 20*time.Millisecond, "")
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)
	_ = r.DestroyConnection(h)

	// Let any in-flight expiry settle.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), notifications.Load())
	_, ok := r.GetConnection(h)
	assert.False(t, ok)
}

func TestConcurrentCreateDestroy(t *testing.T) {
	r := New(Config{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				h, err := r.CreateConnection(connection.DeviceHandle(i), 0, "")
				if err != nil {
					t.Error(err)
					return
				}
				r.KeepAlive(h)
				if err := r.DestroyConnection(h); err != nil {
					t.Error(err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.Count())
}
