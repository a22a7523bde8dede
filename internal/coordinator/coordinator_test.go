package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeIdentity struct {
	mu     sync.Mutex
	bound  bool
	binds  int
	releases int
	announces int
}

func (f *fakeIdentity) Bind(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound = true
	f.binds++
	return nil
}

func (f *fakeIdentity) Release(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound = false
	f.releases++
	return nil
}

func (f *fakeIdentity) Announce(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announces++
}

func (f *fakeIdentity) Bound() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bound
}

// fakeWake reports its result after delay, so tests can observe Waking.
type fakeWake struct {
	succeed bool
	delay   time.Duration
	calls   atomicInt
}

func (f *fakeWake) SendWithRetry(ctx context.Context, maxRetries int) bool {
	f.calls.add(1)
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return false
	}
	return f.succeed
}

// fakeOnline reports online after delay; when offline it waits out maxWait
// the way the real prober does, so tests can observe Starting.
type fakeOnline struct {
	online bool
	delay  time.Duration
}

func (f *fakeOnline) WaitForOnline(ctx context.Context, maxWait, interval time.Duration) bool {
	wait := f.delay
	if !f.online {
		wait = maxWait
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return false
	}
	return f.online
}

type fakeProtocolA struct {
	mu   sync.Mutex
	mode Mode
}

func (f *fakeProtocolA) SetMode(m Mode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = m
}

func (f *fakeProtocolA) Mode() Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

type fakeProtocolB struct {
	mu      sync.Mutex
	enabled bool
}

func (f *fakeProtocolB) EnableForwarding()  { f.mu.Lock(); f.enabled = true; f.mu.Unlock() }
func (f *fakeProtocolB) DisableForwarding() { f.mu.Lock(); f.enabled = false; f.mu.Unlock() }
func (f *fakeProtocolB) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

type atomicInt struct {
	mu sync.Mutex
	n  int
}

func (a *atomicInt) add(d int) {
	a.mu.Lock()
	a.n += d
	a.mu.Unlock()
}

func (a *atomicInt) get() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}

func waitForState(t *testing.T, c *Coordinator, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, got %s", want, c.State())
}

func TestCoordinator_FullWakeCycleToProxying(t *testing.T) {
	identity := &fakeIdentity{}
	wake := &fakeWake{succeed: true, delay: 100 * time.Millisecond}
	online := &fakeOnline{online: true, delay: 100 * time.Millisecond}
	protoA := &fakeProtocolA{}
	protoB := &fakeProtocolB{}

	c := New(Config{BootWaitSeconds: time.Second, WakeRetryInterval: 10 * time.Millisecond}, identity, wake, online, protoA, protoB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	waitForState(t, c, StateOffline, time.Second)
	// The state reads Offline before Run has executed the entry actions.
	deadline := time.Now().Add(time.Second)
	for !identity.Bound() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !identity.Bound() {
		t.Fatal("expected IP to be bound entering Offline")
	}

	c.Post(Event{Kind: EventClientIntent})
	waitForState(t, c, StateWaking, time.Second)

	waitForState(t, c, StateStarting, time.Second)
	if protoA.Mode() != ModeStarting {
		t.Errorf("expected ModeStarting, got %v", protoA.Mode())
	}

	waitForState(t, c, StateProxying, time.Second)
	if identity.Bound() {
		t.Fatal("expected IP to be released entering Proxying")
	}
	if !protoB.Enabled() {
		t.Fatal("expected Protocol-B forwarding enabled in Proxying")
	}
	if protoA.Mode() != ModeProxying {
		t.Errorf("expected ModeProxying, got %v", protoA.Mode())
	}

	c.Post(Event{Kind: EventShutdown})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after Shutdown")
	}
	waitForState(t, c, StateStopping, time.Second)
}

func TestCoordinator_WakeFailureReturnsToOffline(t *testing.T) {
	identity := &fakeIdentity{}
	wake := &fakeWake{succeed: false, delay: 100 * time.Millisecond}
	online := &fakeOnline{online: false}

	c := New(Config{}, identity, wake, online, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitForState(t, c, StateOffline, time.Second)
	c.Post(Event{Kind: EventClientIntent})
	waitForState(t, c, StateWaking, time.Second)
	waitForState(t, c, StateOffline, time.Second)
}

func TestCoordinator_BootTimeoutReturnsToOffline(t *testing.T) {
	identity := &fakeIdentity{}
	wake := &fakeWake{succeed: true}
	online := &fakeOnline{online: false}

	c := New(Config{BootWaitSeconds: 50 * time.Millisecond}, identity, wake, online, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitForState(t, c, StateOffline, time.Second)
	c.Post(Event{Kind: EventClientIntent})
	waitForState(t, c, StateStarting, time.Second)
	waitForState(t, c, StateOffline, 2*time.Second)
}

func TestCoordinator_HealthOfflineDropsProxyingToOffline(t *testing.T) {
	identity := &fakeIdentity{}
	wake := &fakeWake{succeed: true}
	online := &fakeOnline{online: true}

	c := New(Config{}, identity, wake, online, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitForState(t, c, StateOffline, time.Second)
	c.Post(Event{Kind: EventHealthOnline}) // defensive Offline -> Proxying
	waitForState(t, c, StateProxying, time.Second)

	c.Post(Event{Kind: EventHealthOffline})
	waitForState(t, c, StateOffline, time.Second)
}

func TestCoordinator_DuplicateClientIntentWhileWakingIsIgnored(t *testing.T) {
	identity := &fakeIdentity{}
	wake := &fakeWake{succeed: true, delay: 200 * time.Millisecond}
	online := &fakeOnline{online: false}

	c := New(Config{BootWaitSeconds: time.Second}, identity, wake, online, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitForState(t, c, StateOffline, time.Second)
	c.Post(Event{Kind: EventClientIntent})
	waitForState(t, c, StateWaking, time.Second)

	c.Post(Event{Kind: EventClientIntent})
	c.Post(Event{Kind: EventClientIntent})
	time.Sleep(50 * time.Millisecond)

	if got := wake.calls.get(); got != 1 {
		t.Errorf("expected exactly one wake attempt despite duplicate client-intent events, got %d", got)
	}
}
