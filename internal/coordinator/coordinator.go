// Package coordinator owns the proxy's state machine: it serializes every
// transition on a single event loop, driving IP binding, impersonation mode,
// and forwarding for the protocol handlers it controls.
package coordinator

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// State is one of the five proxy operational states.
type State int

const (
	StateOffline State = iota
	StateWaking
	StateStarting
	StateProxying
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateWaking:
		return "waking"
	case StateStarting:
		return "starting"
	case StateProxying:
		return "proxying"
	case StateStopping:
		return "stopping"
	default:
		return "offline"
	}
}

// Mode is the impersonation/forwarding mode handed to protocol handlers.
type Mode int

const (
	ModeOffline Mode = iota
	ModeStarting
	ModeProxying
)

// EventKind classifies an event posted to the Coordinator's event loop.
type EventKind int

const (
	EventClientIntent EventKind = iota
	EventHealthOnline
	EventHealthOffline
	EventWakeSent
	EventWakeFailed
	EventWakeTimeout
	EventShutdown
)

func (k EventKind) String() string {
	switch k {
	case EventClientIntent:
		return "client-intent"
	case EventHealthOnline:
		return "health-online"
	case EventHealthOffline:
		return "health-offline"
	case EventWakeSent:
		return "wake-sent"
	case EventWakeFailed:
		return "wake-failed"
	case EventWakeTimeout:
		return "wake-timeout"
	case EventShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Event is posted to the Coordinator's serialized event loop.
type Event struct {
	Kind   EventKind
	Reason string
}

// IdentityManager binds/releases the target IP and announces identity
// handovers. Implemented by internal/identity.Manager.
type IdentityManager interface {
	Bind(ctx context.Context) error
	Release(ctx context.Context) error
	Announce(ctx context.Context)
}

// WakeEmitter sends the magic wake packet. Implemented by internal/wol.Emitter.
type WakeEmitter interface {
	SendWithRetry(ctx context.Context, maxRetries int) bool
}

// OnlineWaiter performs a bounded wait for the real host to become reachable.
// Implemented by internal/prober.Prober.
type OnlineWaiter interface {
	WaitForOnline(ctx context.Context, maxWait, interval time.Duration) bool
}

// ProtocolAController receives impersonation-mode changes for the Protocol-A
// handler. Implemented by an adapter over internal/minecraft.Handler.
type ProtocolAController interface {
	SetMode(m Mode)
}

// ProtocolBController enables/disables Protocol-B forwarding. Implemented by
// an adapter over internal/satisfactory.Handler.
type ProtocolBController interface {
	EnableForwarding()
	DisableForwarding()
}

// Config configures a Coordinator.
type Config struct {
	BootWaitSeconds   time.Duration
	WakeRetryInterval time.Duration
	WakeMaxRetries    int
}

// Stats is a read-only snapshot of coordinator counters for /status.
type Stats struct {
	State              string
	StateChangedAt     time.Time
	WakeAttempts       int64
	SuccessfulWakes    int64
	StateTransitions   int64
	LastWakeTime       time.Time
	LastHealthChangeAt time.Time
}

// Coordinator runs the proxy state machine.
type Coordinator struct {
	cfg Config

	identity  IdentityManager
	wake      WakeEmitter
	online    OnlineWaiter
	protocolA ProtocolAController
	protocolB ProtocolBController

	stateMu        sync.RWMutex
	state          State
	stateChangedAt time.Time

	wakeAttempts       atomic.Int64
	successfulWakes    atomic.Int64
	stateTransitions   atomic.Int64
	lastWakeTimeMu     sync.Mutex
	lastWakeTime       time.Time
	lastHealthChangeMu sync.Mutex
	lastHealthChange   time.Time

	events chan Event

	bgWg sync.WaitGroup

	wg   sync.WaitGroup
	stop chan struct{}
}

// New creates a Coordinator. Call Run to start its event loop.
func New(cfg Config, identity IdentityManager, wake WakeEmitter, online OnlineWaiter, protocolA ProtocolAController, protocolB ProtocolBController) *Coordinator {
	if cfg.BootWaitSeconds <= 0 {
		cfg.BootWaitSeconds = 90 * time.Second
	}
	if cfg.WakeRetryInterval <= 0 {
		cfg.WakeRetryInterval = 5 * time.Second
	}
	if cfg.WakeMaxRetries <= 0 {
		cfg.WakeMaxRetries = 3
	}
	return &Coordinator{
		cfg:            cfg,
		identity:       identity,
		wake:           wake,
		online:         online,
		protocolA:      protocolA,
		protocolB:      protocolB,
		state:          StateOffline,
		stateChangedAt: time.Now(),
		events:         make(chan Event, 64),
		stop:           make(chan struct{}),
	}
}

// Post queues an event for the Coordinator's event loop. Events from a
// single source are observed in emission order; posting never blocks the
// caller beyond the channel's buffer.
func (c *Coordinator) Post(ev Event) {
	select {
	case c.events <- ev:
	default:
		log.Printf("[coordinator] event queue full, dropping %s event", ev.Kind)
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Stats returns a snapshot of coordinator counters.
func (c *Coordinator) Stats() Stats {
	c.stateMu.RLock()
	state, changedAt := c.state, c.stateChangedAt
	c.stateMu.RUnlock()

	c.lastWakeTimeMu.Lock()
	lastWake := c.lastWakeTime
	c.lastWakeTimeMu.Unlock()

	c.lastHealthChangeMu.Lock()
	lastHealth := c.lastHealthChange
	c.lastHealthChangeMu.Unlock()

	return Stats{
		State:              state.String(),
		StateChangedAt:     changedAt,
		WakeAttempts:       c.wakeAttempts.Load(),
		SuccessfulWakes:    c.successfulWakes.Load(),
		StateTransitions:   c.stateTransitions.Load(),
		LastWakeTime:       lastWake,
		LastHealthChangeAt: lastHealth,
	}
}

// Run starts the Coordinator's event loop and enters Offline. It blocks
// until ctx is canceled or a Shutdown event drives the machine to Stopping
// and all background work has drained.
func (c *Coordinator) Run(ctx context.Context) {
	c.enter(ctx, StateOffline)

	for {
		select {
		case ev := <-c.events:
			if ev.Kind == EventHealthOnline || ev.Kind == EventHealthOffline {
				c.lastHealthChangeMu.Lock()
				c.lastHealthChange = time.Now()
				c.lastHealthChangeMu.Unlock()
			}
			c.handle(ctx, ev)
			if c.State() == StateStopping {
				c.bgWg.Wait()
				return
			}
		case <-ctx.Done():
			c.transition(ctx, StateStopping)
			c.bgWg.Wait()
			return
		}
	}
}

// handle applies the transition table in §4.6: the Coordinator's single
// source of truth for which (state, event) pairs move the machine and which
// are ignored.
func (c *Coordinator) handle(ctx context.Context, ev Event) {
	state := c.State()
	log.Printf("[coordinator] event %s in state %s", ev.Kind, state)

	switch ev.Kind {
	case EventShutdown:
		c.transition(ctx, StateStopping)
		return
	}

	switch state {
	case StateOffline:
		switch ev.Kind {
		case EventClientIntent:
			c.transition(ctx, StateWaking)
		case EventHealthOnline:
			c.transition(ctx, StateProxying)
		}
	case StateWaking:
		switch ev.Kind {
		case EventHealthOnline:
			c.transition(ctx, StateProxying)
		case EventWakeSent:
			c.transition(ctx, StateStarting)
		case EventWakeFailed:
			c.transition(ctx, StateOffline)
		}
	case StateStarting:
		switch ev.Kind {
		case EventHealthOnline:
			c.transition(ctx, StateProxying)
		case EventWakeTimeout:
			c.transition(ctx, StateOffline)
		}
	case StateProxying:
		switch ev.Kind {
		case EventHealthOffline:
			c.transition(ctx, StateOffline)
		}
	case StateStopping:
		// terminal; all events ignored.
	}
}

func (c *Coordinator) transition(ctx context.Context, next State) {
	prev := c.State()
	if prev == next {
		return
	}

	c.stateMu.Lock()
	c.state = next
	c.stateChangedAt = time.Now()
	c.stateMu.Unlock()

	c.stateTransitions.Add(1)
	log.Printf("[coordinator] state transition: %s -> %s", prev, next)

	c.enter(ctx, next)
}

// enter runs the ordered entry actions for a state, per §4.6.
func (c *Coordinator) enter(ctx context.Context, s State) {
	switch s {
	case StateOffline:
		c.bindIP(ctx)
		c.disableForwarding()
		c.setProtocolAMode(ModeOffline)
		c.announce(ctx)
	case StateWaking:
		c.bindIP(ctx)
		c.disableForwarding()
		c.setProtocolAMode(ModeStarting)
		c.beginWake(ctx)
	case StateStarting:
		c.bindIP(ctx)
		c.disableForwarding()
		c.setProtocolAMode(ModeStarting)
		c.beginBootWait(ctx)
	case StateProxying:
		c.releaseIP(ctx)
		c.enableForwarding()
		c.setProtocolAMode(ModeProxying)
		c.announce(ctx)
	case StateStopping:
		if c.identity != nil {
			if err := c.identity.Release(ctx); err != nil {
				log.Printf("[coordinator] failed to release IP during shutdown: %v", err)
			}
		}
	}
}

func (c *Coordinator) bindIP(ctx context.Context) {
	if c.identity == nil {
		return
	}
	if err := c.identity.Bind(ctx); err != nil {
		log.Printf("[coordinator] bind failed: %v", err)
	}
}

func (c *Coordinator) releaseIP(ctx context.Context) {
	if c.identity == nil {
		return
	}
	if err := c.identity.Release(ctx); err != nil {
		log.Printf("[coordinator] release failed: %v", err)
	}
}

func (c *Coordinator) announce(ctx context.Context) {
	if c.identity == nil {
		return
	}
	c.identity.Announce(ctx)
}

func (c *Coordinator) disableForwarding() {
	if c.protocolB != nil {
		c.protocolB.DisableForwarding()
	}
}

func (c *Coordinator) enableForwarding() {
	if c.protocolB != nil {
		c.protocolB.EnableForwarding()
	}
}

func (c *Coordinator) setProtocolAMode(m Mode) {
	if c.protocolA != nil {
		c.protocolA.SetMode(m)
	}
}

// beginWake sends the magic packet in the background and posts the result.
func (c *Coordinator) beginWake(ctx context.Context) {
	c.wakeAttempts.Add(1)
	c.lastWakeTimeMu.Lock()
	c.lastWakeTime = time.Now()
	c.lastWakeTimeMu.Unlock()

	if c.wake == nil {
		c.Post(Event{Kind: EventWakeSent})
		return
	}

	c.bgWg.Add(1)
	go func() {
		defer c.bgWg.Done()
		ok := c.wake.SendWithRetry(ctx, c.cfg.WakeMaxRetries)
		if ok {
			c.Post(Event{Kind: EventWakeSent})
		} else {
			c.Post(Event{Kind: EventWakeFailed})
		}
	}()
}

// beginBootWait spawns a bounded wait for the host to come online.
func (c *Coordinator) beginBootWait(ctx context.Context) {
	if c.online == nil {
		return
	}
	c.bgWg.Add(1)
	go func() {
		defer c.bgWg.Done()
		online := c.online.WaitForOnline(ctx, c.cfg.BootWaitSeconds, 5*time.Second)
		if online {
			c.successfulWakes.Add(1)
			c.Post(Event{Kind: EventHealthOnline})
		} else {
			c.Post(Event{Kind: EventWakeTimeout})
		}
	}()
}
