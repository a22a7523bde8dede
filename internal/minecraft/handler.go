// Package minecraft implements the length-prefixed varint-framed TCP
// protocol handler: it impersonates an offline or booting game host closely
// enough for clients to render a server-list entry, detects join attempts,
// and — once the real host is reachable — transparently forwards connections
// to it.
package minecraft

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Mode selects how the Handler responds to new connections, mirroring the
// Coordinator's current state.
type Mode int

const (
	// ModeOffline serves the "offline" status/MOTD and treats logins as
	// wake triggers.
	ModeOffline Mode = iota
	// ModeStarting serves the "starting" status/MOTD; logins still get the
	// kick message and an EventJoinAttempt, which the Coordinator ignores
	// while a wake is already in flight.
	ModeStarting
	// ModeProxying disables impersonation and transparently forwards every
	// connection to the real host.
	ModeProxying
)

func (m Mode) String() string {
	switch m {
	case ModeStarting:
		return "starting"
	case ModeProxying:
		return "proxying"
	default:
		return "offline"
	}
}

// EventKind classifies a Handler event.
type EventKind int

const (
	// EventJoinAttempt fires when a client's handshake declares login
	// intent while the Handler is impersonating (Offline or Starting).
	EventJoinAttempt EventKind = iota
	// EventStatusRequest fires on a status-probe handshake, for telemetry.
	EventStatusRequest
)

// Event is posted to the Handler's event channel for the Coordinator (or
// other observers) to consume.
type Event struct {
	Kind       EventKind
	RemoteAddr string
}

// Config configures a Handler.
type Config struct {
	Port                int
	ProtocolVersion     int
	MOTDOffline         string
	MOTDStarting        string
	VersionTextStarting string
	KickMessage         string
	MaxPlayersDisplay   int

	// TargetIP is the real host's address, dialed on Port when forwarding.
	TargetIP string

	HandshakeTimeout time.Duration
	ConnectionTimeout time.Duration

	// RateLimitPerSecond and RateLimitBurst bound per-source-IP handshake
	// attempts, guarding against connection floods during impersonation.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Handler accepts and impersonates/forwards connections for one game's
// protocol-A TCP port.
type Handler struct {
	cfg Config

	modeMu sync.RWMutex
	mode   Mode

	ln net.Listener

	events chan Event

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter

	connectionsHandled atomic.Int64
	joinAttempts       atomic.Int64
	statusRequests     atomic.Int64

	wg   sync.WaitGroup
	stop chan struct{}
}

// Stats is a read-only snapshot of handler counters for the status endpoint.
type Stats struct {
	ConnectionsHandled int64
	JoinAttempts       int64
	StatusRequests     int64
	Mode               string
}

// Stats returns a snapshot of handler counters.
func (h *Handler) Stats() Stats {
	return Stats{
		ConnectionsHandled: h.connectionsHandled.Load(),
		JoinAttempts:       h.joinAttempts.Load(),
		StatusRequests:     h.statusRequests.Load(),
		Mode:               h.Mode().String(),
	}
}

// New creates a Handler. Call Start to begin accepting connections.
func New(cfg Config) *Handler {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 5 * time.Second
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 5
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}
	return &Handler{
		cfg:      cfg,
		mode:     ModeOffline,
		events:   make(chan Event, 32),
		limiters: make(map[string]*rate.Limiter),
		stop:     make(chan struct{}),
	}
}

// Events returns the channel of join/status events.
func (h *Handler) Events() <-chan Event {
	return h.events
}

// SetMode switches impersonation/forwarding behavior. Safe to call while
// Start is running.
func (h *Handler) SetMode(m Mode) {
	h.modeMu.Lock()
	h.mode = m
	h.modeMu.Unlock()
}

// Mode returns the current mode.
func (h *Handler) Mode() Mode {
	h.modeMu.RLock()
	defer h.modeMu.RUnlock()
	return h.mode
}

// Start binds the listener and begins accepting connections in the
// background. It returns once the listener is bound.
func (h *Handler) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", h.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", h.cfg.Port, err)
	}
	h.ln = ln
	log.Printf("[minecraft] listening on %d", h.cfg.Port)

	h.wg.Add(1)
	go h.acceptLoop(ctx)
	return nil
}

// Stop closes the listener and waits for in-flight accept handling to drain.
func (h *Handler) Stop() error {
	close(h.stop)
	var err error
	if h.ln != nil {
		err = h.ln.Close()
	}
	h.wg.Wait()
	return err
}

func (h *Handler) acceptLoop(ctx context.Context) {
	defer h.wg.Done()
	for {
		conn, err := h.ln.Accept()
		if err != nil {
			select {
			case <-h.stop:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[minecraft] accept error: %v", err)
			return
		}
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.handleConn(ctx, conn)
		}()
	}
}

func (h *Handler) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	if h.Mode() == ModeProxying {
		h.forward(ctx, conn)
		return
	}

	if !h.allow(remote) {
		log.Printf("[minecraft] rate-limited handshake from %s", remote)
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout))
	packetID, payload, err := ReadPacket(conn)
	if err != nil {
		log.Printf("[minecraft] handshake read failed from %s: %v", remote, err)
		return
	}
	if packetID != 0x00 {
		log.Printf("[minecraft] unexpected first packet id %#x from %s", packetID, remote)
		return
	}
	handshake, err := ParseHandshake(payload)
	if err != nil {
		log.Printf("[minecraft] malformed handshake from %s: %v", remote, err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	h.connectionsHandled.Add(1)
	switch handshake.NextState {
	case NextStateStatus:
		h.statusRequests.Add(1)
		h.postEvent(Event{Kind: EventStatusRequest, RemoteAddr: remote})
		h.handleStatusRequest(conn, remote)
	case NextStateLogin:
		log.Printf("[minecraft] login attempt from %s", remote)
		h.joinAttempts.Add(1)
		h.postEvent(Event{Kind: EventJoinAttempt, RemoteAddr: remote})
		h.handleLoginAttempt(conn)
	}
}

func (h *Handler) handleStatusRequest(conn net.Conn, remote string) {
	starting := h.Mode() == ModeStarting
	body, err := h.buildStatusResponse(starting)
	if err != nil {
		log.Printf("[minecraft] build status response: %v", err)
		return
	}
	packet, err := buildStatusResponsePacket(body)
	if err != nil {
		log.Printf("[minecraft] build status packet: %v", err)
		return
	}
	if _, err := conn.Write(packet); err != nil {
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout))
	pingID, pingPayload, err := ReadPacket(conn)
	if err != nil {
		log.Printf("[minecraft] no ping received from %s after status response", remote)
		return
	}
	if pingID != 0x01 {
		return
	}
	payload, err := ReadLong(bytes.NewReader(pingPayload))
	if err != nil {
		return
	}
	pong, err := buildPongPacket(payload)
	if err != nil {
		return
	}
	_, _ = conn.Write(pong)
}

func (h *Handler) handleLoginAttempt(conn net.Conn) {
	packet, err := buildDisconnectPacket(h.cfg.KickMessage)
	if err != nil {
		log.Printf("[minecraft] build disconnect packet: %v", err)
		return
	}
	_, _ = conn.Write(packet)
}

// forward splices conn to a freshly dialed connection on the real host and
// byte-pumps both directions until either side closes.
func (h *Handler) forward(ctx context.Context, conn net.Conn) {
	dialCtx, cancel := context.WithTimeout(ctx, h.cfg.ConnectionTimeout)
	defer cancel()

	upstream, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", fmt.Sprintf("%s:%d", h.cfg.TargetIP, h.cfg.Port))
	if err != nil {
		log.Printf("[minecraft] forward dial to %s:%d failed: %v", h.cfg.TargetIP, h.cfg.Port, err)
		return
	}
	defer upstream.Close()

	tunnel(conn, upstream)
}

// tunnel performs a bidirectional copy between two connections with 8 KiB
// buffers until either side closes; an error or EOF on either direction
// closes both.
func tunnel(a, b net.Conn) {
	done := make(chan struct{}, 2)
	pump := func(dst, src net.Conn) {
		buf := make([]byte, 8*1024)
		_, _ = io.CopyBuffer(dst, src, buf)
		if tc, ok := dst.(*net.TCPConn); ok {
			_ = tc.CloseWrite()
		}
		done <- struct{}{}
	}
	go pump(a, b)
	go pump(b, a)
	<-done
	_ = a.Close()
	_ = b.Close()
	<-done
}

func (h *Handler) postEvent(ev Event) {
	select {
	case h.events <- ev:
	default:
		log.Printf("[minecraft] event channel full, dropping %v event from %s", ev.Kind, ev.RemoteAddr)
	}
}

func (h *Handler) allow(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	h.limiterMu.Lock()
	lim, ok := h.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(h.cfg.RateLimitPerSecond), h.cfg.RateLimitBurst)
		h.limiters[host] = lim
	}
	h.limiterMu.Unlock()

	return lim.Allow()
}
