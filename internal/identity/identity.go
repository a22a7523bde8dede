// Package identity manages whether the target IP is assigned to the local
// network interface, so the proxy can occupy and later release the real
// host's layer-3 identity. Operations are implemented by shelling out to the
// OS's interface-address and neighbor-advertisement commands; this package
// specifies their required effects, not the specific binaries, matching
// spec.md §4.3 and §6.
package identity

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Config configures the Manager's target and the commands it shells out to.
type Config struct {
	TargetIP  string
	Interface string
	Mask      int

	// AddrCmd names the interface-address command, always invoked as
	// `<AddrCmd> addr <add|del> <ip>/<mask> dev <iface>`. Defaults to `ip`,
	// the Linux invocation used by the original service.
	AddrCmd string

	// AnnounceCmd is the gratuitous-neighbor-advertisement command, defaulting
	// to `arping -c 2 -A -I <iface> <ip>`.
	AnnounceCmd string

	// CommandTimeout bounds every shelled-out invocation.
	CommandTimeout time.Duration
}

// Manager binds and releases Config.TargetIP on Config.Interface.
type Manager struct {
	cfg Config

	mu    sync.Mutex
	bound bool
}

// New returns a Manager for cfg. Shelled-out command names default to the
// same `ip` / `arping` tools the original Python service used.
func New(cfg Config) *Manager {
	if cfg.AddrCmd == "" {
		cfg.AddrCmd = "ip"
	}
	if cfg.AnnounceCmd == "" {
		cfg.AnnounceCmd = "arping"
	}
	if cfg.Mask == 0 {
		cfg.Mask = 24
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 5 * time.Second
	}
	return &Manager{cfg: cfg}
}

// Bound reports whether the manager believes the IP is currently assigned.
func (m *Manager) Bound() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bound
}

// Bind assigns the target IP to the interface. Idempotent: if the privileged
// helper reports the address already exists, that counts as success.
func (m *Manager) Bind(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bound {
		return nil
	}

	cidr := fmt.Sprintf("%s/%d", m.cfg.TargetIP, m.cfg.Mask)
	out, err := m.run(ctx, m.cfg.AddrCmd, "addr", "add", cidr, "dev", m.cfg.Interface)
	if err == nil {
		m.bound = true
		log.Printf("[identity] bound %s to %s", cidr, m.cfg.Interface)
		return nil
	}

	lower := strings.ToLower(out)
	if strings.Contains(lower, "file exists") || strings.Contains(lower, "already") {
		m.bound = true
		log.Printf("[identity] %s already bound to %s", cidr, m.cfg.Interface)
		return nil
	}

	log.Printf("[identity] failed to bind %s to %s: %v (%s)", cidr, m.cfg.Interface, err, out)
	return fmt.Errorf("bind %s to %s: %w", cidr, m.cfg.Interface, err)
}

// Release unassigns the target IP. Idempotent: if already absent, returns
// success.
func (m *Manager) Release(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.bound {
		return nil
	}

	cidr := fmt.Sprintf("%s/%d", m.cfg.TargetIP, m.cfg.Mask)
	out, err := m.run(ctx, m.cfg.AddrCmd, "addr", "del", cidr, "dev", m.cfg.Interface)
	if err == nil {
		m.bound = false
		log.Printf("[identity] released %s from %s", cidr, m.cfg.Interface)
		return nil
	}

	lower := strings.ToLower(out)
	if strings.Contains(lower, "cannot assign") || strings.Contains(lower, "not found") {
		m.bound = false
		log.Printf("[identity] %s was not bound to %s", cidr, m.cfg.Interface)
		return nil
	}

	log.Printf("[identity] failed to release %s from %s: %v (%s)", cidr, m.cfg.Interface, err, out)
	return fmt.Errorf("release %s from %s: %w", cidr, m.cfg.Interface, err)
}

// Announce sends two gratuitous neighbor advertisements so switches/routers
// update their forwarding tables after an identity handover. Best-effort:
// failure is non-fatal and logged at debug-equivalent verbosity.
func (m *Manager) Announce(ctx context.Context) {
	_, err := m.run(ctx, m.cfg.AnnounceCmd, "-c", "2", "-A", "-I", m.cfg.Interface, m.cfg.TargetIP)
	if err != nil {
		log.Printf("[identity] neighbor announcement failed (non-fatal): %v", err)
		return
	}
	log.Printf("[identity] neighbor advertisement sent for %s", m.cfg.TargetIP)
}

func (m *Manager) run(ctx context.Context, name string, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, m.cfg.CommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}
