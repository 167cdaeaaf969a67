package connection

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/carlink-protocol/carlink-go/pkg/heartbeat"
	"github.com/carlink-protocol/carlink-go/pkg/security"
	"github.com/carlink-protocol/carlink-go/pkg/wire"
)

// fakeContext is a stand-in security context owned by the test.
type fakeContext struct {
	name   string
	closed bool
}

func (f *fakeContext) Encrypt(p []byte) ([]byte, error) { return p, nil }
func (f *fakeContext) Decrypt(p []byte) ([]byte, error) { return p, nil }
func (f *fakeContext) Close() error                     { f.closed = true; return nil }

var _ security.Context = (*fakeContext)(nil)

func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	c := New(1, 42, Config{})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestAddNewSessionCreatesControlService(t *testing.T) {
	c := newTestConnection(t)

	id, err := c.AddNewSession()
	if err != nil {
		t.Fatalf("AddNewSession: %v", err)
	}
	if id != 0 {
		t.Errorf("first session ID = %d, want 0", id)
	}

	snap := c.SessionMapSnapshot()
	services, ok := snap[id]
	if !ok {
		t.Fatal("session missing from snapshot")
	}
	if len(services) != 1 || services[0].Type != wire.ServiceTypeControl {
		t.Errorf("services = %+v, want single control service", services)
	}
}

func TestSessionIDAllocationLowestUnused(t *testing.T) {
	c := newTestConnection(t)

	for want := SessionID(0); want < 3; want++ {
		id, err := c.AddNewSession()
		if err != nil {
			t.Fatalf("AddNewSession: %v", err)
		}
		if id != want {
			t.Errorf("session ID = %d, want %d", id, want)
		}
	}

	if _, err := c.RemoveSession(1); err != nil {
		t.Fatalf("RemoveSession: %v", err)
	}

	id, err := c.AddNewSession()
	if err != nil {
		t.Fatalf("AddNewSession: %v", err)
	}
	if id != 1 {
		t.Errorf("reallocated session ID = %d, want 1", id)
	}
}

func TestSessionIDExhaustion(t *testing.T) {
	c := newTestConnection(t)

	for i := 0; i < MaxSessions; i++ {
		if _, err := c.AddNewSession(); err != nil {
			t.Fatalf("AddNewSession #%d: %v", i, err)
		}
	}

	_, err := c.AddNewSession()
	if !errors.Is(err, ErrResourceExhausted) {
		t.Errorf("err = %v, want ErrResourceExhausted", err)
	}
	if c.SessionCount() != MaxSessions {
		t.Errorf("SessionCount = %d, want %d", c.SessionCount(), MaxSessions)
	}
}

func TestAddServiceDuplicateType(t *testing.T) {
	c := newTestConnection(t)
	id, _ := c.AddNewSession()

	if err := c.AddNewService(id, wire.ServiceTypeAudio); err != nil {
		t.Fatalf("AddNewService: %v", err)
	}
	err := c.AddNewService(id, wire.ServiceTypeAudio)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate add err = %v, want ErrAlreadyExists", err)
	}

	// Invariant: still exactly one audio service.
	count := 0
	for _, svc := range c.SessionMapSnapshot()[id] {
		if svc.Type == wire.ServiceTypeAudio {
			count++
		}
	}
	if count != 1 {
		t.Errorf("audio services = %d, want 1", count)
	}
}

func TestAddServiceToMissingSession(t *testing.T) {
	c := newTestConnection(t)

	err := c.AddNewService(9, wire.ServiceTypeVideo)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRemoveControlServiceCascades(t *testing.T) {
	// Scenario: session with audio; removing the control service removes
	// the whole session, and lookups on it come back empty.
	c := newTestConnection(t)
	id, _ := c.AddNewSession()

	if err := c.AddNewService(id, wire.ServiceTypeAudio); err != nil {
		t.Fatalf("AddNewService: %v", err)
	}
	ctx := &fakeContext{name: "audio"}
	if _, err := c.SetSecurityContext(id, wire.ServiceTypeAudio, ctx); err != nil {
		t.Fatalf("SetSecurityContext: %v", err)
	}

	released, err := c.RemoveService(id, wire.ServiceTypeControl)
	if err != nil {
		t.Fatalf("RemoveService(control): %v", err)
	}
	if len(released) != 1 || released[0] != ctx {
		t.Errorf("released = %v, want [audio ctx]", released)
	}

	if _, ok := c.SessionMapSnapshot()[id]; ok {
		t.Error("session still present after control service removal")
	}
	if _, ok := c.GetSecurityContext(id, wire.ServiceTypeAudio); ok {
		t.Error("GetSecurityContext found binding on removed session")
	}
}

func TestRemoveNonControlServiceKeepsSession(t *testing.T) {
	c := newTestConnection(t)
	id, _ := c.AddNewSession()
	_ = c.AddNewService(id, wire.ServiceTypeVideo)
	_ = c.AddNewService(id, wire.ServiceTypeBulk)

	if _, err := c.RemoveService(id, wire.ServiceTypeVideo); err != nil {
		t.Fatalf("RemoveService: %v", err)
	}

	services := c.SessionMapSnapshot()[id]
	if len(services) != 2 {
		t.Fatalf("services = %+v, want control+bulk", services)
	}
	// Control service stays first.
	if services[0].Type != wire.ServiceTypeControl {
		t.Errorf("first service = %v, want control", services[0].Type)
	}

	_, err := c.RemoveService(id, wire.ServiceTypeVideo)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove err = %v, want ErrNotFound", err)
	}
}

func TestSecurityContextHandBackOnReplace(t *testing.T) {
	// Scenario: bind ctxA, replace with ctxB; ctxA comes back to the
	// caller and lookups return ctxB.
	c := newTestConnection(t)
	id, _ := c.AddNewSession()
	_ = c.AddNewService(id, wire.ServiceTypeRPC)

	ctxA := &fakeContext{name: "A"}
	ctxB := &fakeContext{name: "B"}

	old, err := c.SetSecurityContext(id, wire.ServiceTypeRPC, ctxA)
	if err != nil {
		t.Fatalf("SetSecurityContext(A): %v", err)
	}
	if old != nil {
		t.Errorf("first bind returned old = %v, want nil", old)
	}

	old, err = c.SetSecurityContext(id, wire.ServiceTypeRPC, ctxB)
	if err != nil {
		t.Fatalf("SetSecurityContext(B): %v", err)
	}
	if old != ctxA {
		t.Errorf("replaced binding = %v, want ctxA", old)
	}

	got, ok := c.GetSecurityContext(id, wire.ServiceTypeRPC)
	if !ok || got != ctxB {
		t.Errorf("GetSecurityContext = %v/%v, want ctxB/true", got, ok)
	}
}

func TestSetSecurityContextOnMissingPair(t *testing.T) {
	c := newTestConnection(t)
	id, _ := c.AddNewSession()

	_, err := c.SetSecurityContext(id, wire.ServiceTypeAudio, &fakeContext{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	_, err = c.SetSecurityContext(7, wire.ServiceTypeControl, &fakeContext{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing session err = %v, want ErrNotFound", err)
	}
}

func TestGetSecurityContextUnprotected(t *testing.T) {
	c := newTestConnection(t)
	id, _ := c.AddNewSession()
	_ = c.AddNewService(id, wire.ServiceTypeAudio)

	// Unprotected service is a valid state, not an error.
	ctx, ok := c.GetSecurityContext(id, wire.ServiceTypeAudio)
	if ok || ctx != nil {
		t.Errorf("GetSecurityContext = %v/%v, want nil/false", ctx, ok)
	}
}

func TestCloseIdempotent(t *testing.T) {
	c := New(1, 42, Config{HeartbeatTimeout: time.Minute})
	id, _ := c.AddNewSession()
	_ = c.AddNewService(id, wire.ServiceTypeRPC)
	ctx := &fakeContext{}
	_, _ = c.SetSecurityContext(id, wire.ServiceTypeRPC, ctx)

	released := c.Close()
	if len(released) != 1 || released[0] != ctx {
		t.Errorf("released = %v, want [ctx]", released)
	}
	if !c.Closed() {
		t.Error("Closed() = false after Close")
	}
	if c.SessionCount() != 0 {
		t.Errorf("SessionCount = %d after Close, want 0", c.SessionCount())
	}
	if c.HeartbeatState() != heartbeat.StateStopped {
		t.Errorf("heartbeat state = %v, want STOPPED", c.HeartbeatState())
	}

	// Second close: no-op, nothing handed back twice.
	if again := c.Close(); again != nil {
		t.Errorf("second Close released %v, want nil", again)
	}
}

func TestOperationsAfterClose(t *testing.T) {
	c := New(1, 42, Config{})
	c.Close()

	if _, err := c.AddNewSession(); !errors.Is(err, ErrClosed) {
		t.Errorf("AddNewSession err = %v, want ErrClosed", err)
	}
	if err := c.AddNewService(0, wire.ServiceTypeAudio); !errors.Is(err, ErrClosed) {
		t.Errorf("AddNewService err = %v, want ErrClosed", err)
	}
	if _, err := c.RemoveSession(0); !errors.Is(err, ErrClosed) {
		t.Errorf("RemoveSession err = %v, want ErrClosed", err)
	}
	if _, err := c.SetSecurityContext(0, wire.ServiceTypeRPC, &fakeContext{}); !errors.Is(err, ErrClosed) {
		t.Errorf("SetSecurityContext err = %v, want ErrClosed", err)
	}

	// Reads and keep-alives on a closed connection are harmless.
	if _, ok := c.GetSecurityContext(0, wire.ServiceTypeRPC); ok {
		t.Error("GetSecurityContext = true on closed connection")
	}
	c.KeepAlive()
	if len(c.SessionMapSnapshot()) != 0 {
		t.Error("snapshot not empty on closed connection")
	}
}

func TestSnapshotIsCopyOut(t *testing.T) {
	c := newTestConnection(t)
	id, _ := c.AddNewSession()
	_ = c.AddNewService(id, wire.ServiceTypeAudio)

	snap := c.SessionMapSnapshot()
	delete(snap, id)
	snap2 := c.SessionMapSnapshot()
	if _, ok := snap2[id]; !ok {
		t.Error("mutating a snapshot affected the live table")
	}
}

func TestConcurrentDuplicateServiceAdds(t *testing.T) {
	// N goroutines race to add the same type: exactly one wins, the rest
	// observe ErrAlreadyExists, and the final state has one entry.
	c := newTestConnection(t)
	id, _ := c.AddNewSession()

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.AddNewService(id, wire.ServiceTypeVideo)
		}(i)
	}
	wg.Wait()

	var successes, duplicates int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrAlreadyExists):
			duplicates++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 || duplicates != n-1 {
		t.Errorf("successes = %d, duplicates = %d, want 1/%d", successes, duplicates, n-1)
	}

	count := 0
	for _, svc := range c.SessionMapSnapshot()[id] {
		if svc.Type == wire.ServiceTypeVideo {
			count++
		}
	}
	if count != 1 {
		t.Errorf("video services = %d, want 1", count)
	}
}

func TestConcurrentMutationKeepsControlInvariant(t *testing.T) {
	// Hammer a session with adds and removes; at every observable point a
	// session either has its control service first or does not exist.
	c := newTestConnection(t)
	id, _ := c.AddNewSession()

	var wg sync.WaitGroup
	types := []wire.ServiceType{wire.ServiceTypeAudio, wire.ServiceTypeVideo, wire.ServiceTypeBulk}
	for _, st := range types {
		wg.Add(1)
		go func(st wire.ServiceType) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = c.AddNewService(id, st)
				_, _ = c.RemoveService(id, st)
			}
		}(st)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			for sid, services := range c.SessionMapSnapshot() {
				if len(services) == 0 {
					t.Errorf("session %d observed with zero services", sid)
					return
				}
				if services[0].Type != wire.ServiceTypeControl {
					t.Errorf("session %d first service = %v, want control", sid, services[0].Type)
					return
				}
			}
		}
	}()

	wg.Wait()
	<-done
}

func TestHeartbeatExpiryClosesConnection(t *testing.T) {
	expired := make(chan struct{})

	var c *Connection
	c = New(1, 42, Config{
		HeartbeatTimeout: 50 * time.Millisecond,
		OnExpired: func(time.Duration) {
			c.Close()
			close(expired)
		},
	})

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("heartbeat expiry never fired")
	}
	if !c.Closed() {
		t.Error("connection not closed after expiry")
	}
}

func TestKeepAliveDefersHeartbeatExpiry(t *testing.T) {
	expired := make(chan struct{})

	c := New(1, 42, Config{
		HeartbeatTimeout: 100 * time.Millisecond,
		OnExpired:        func(time.Duration) { close(expired) },
	})
	defer c.Close()

	// Keep the connection alive past several timeout windows.
	for i := 0; i < 6; i++ {
		time.Sleep(40 * time.Millisecond)
		c.KeepAlive()
		select {
		case <-expired:
			t.Fatal("expiry fired despite keep-alives")
		default:
		}
	}
}
