// Package wol builds and transmits Wake-on-LAN magic packets, with retry.
package wol

import (
	"context"
	"fmt"
	"log"
	"net"
	"syscall"
	"time"

	"github.com/drsoft-oss/wolproxy/internal/netutil"
)

const (
	magicPreambleLen = 6
	macRepeatCount   = 16
	magicPacketLen   = magicPreambleLen + macRepeatCount*6 // 102

	wolPortPrimary   = 9
	wolPortSecondary = 7
)

// Config describes the target host and retry policy for a wake attempt.
type Config struct {
	// TargetIP is the real host's IPv4 address.
	TargetIP string
	// MACAddress is accepted in AA:BB:CC:DD:EE:FF, AA-BB-CC-DD-EE-FF, or
	// unseparated hex form.
	MACAddress string
	// NetworkMask is the CIDR prefix used to derive the directed broadcast
	// address. Defaults to 24 when zero.
	NetworkMask int
	// RetryInterval is the sleep between whole-round retries.
	RetryInterval time.Duration
}

// Emitter sends magic packets to a fixed, validated target.
type Emitter struct {
	targetIP      string
	macBytes      []byte
	broadcastIP   string
	retryInterval time.Duration
}

// New validates cfg and returns an Emitter ready to wake the host.
func New(cfg Config) (*Emitter, error) {
	if net.ParseIP(cfg.TargetIP) == nil {
		return nil, fmt.Errorf("invalid target IP: %q", cfg.TargetIP)
	}
	macBytes, err := netutil.ParseMAC(cfg.MACAddress)
	if err != nil {
		return nil, err
	}

	mask := cfg.NetworkMask
	if mask == 0 {
		mask = 24
	}
	broadcast := netutil.DirectedBroadcast(cfg.TargetIP, mask)

	retry := cfg.RetryInterval
	if retry <= 0 {
		retry = 5 * time.Second
	}

	return &Emitter{
		targetIP:      cfg.TargetIP,
		macBytes:      macBytes,
		broadcastIP:   broadcast,
		retryInterval: retry,
	}, nil
}

// MagicPacket returns the 102-byte magic frame for this emitter's MAC.
func (e *Emitter) MagicPacket() []byte {
	packet := make([]byte, magicPacketLen)
	for i := 0; i < magicPreambleLen; i++ {
		packet[i] = 0xFF
	}
	for i := 0; i < macRepeatCount; i++ {
		copy(packet[magicPreambleLen+i*6:], e.macBytes)
	}
	return packet
}

// destinations returns the ordered, deduplicated set of IPs to send to.
func (e *Emitter) destinations() []string {
	seen := make(map[string]bool, 3)
	var out []string
	for _, ip := range []string{e.broadcastIP, e.targetIP, "255.255.255.255"} {
		if ip == "" || seen[ip] {
			continue
		}
		seen[ip] = true
		out = append(out, ip)
	}
	return out
}

// setBroadcast enables SO_BROADCAST on the listening socket, matching the
// original sender's setsockopt(SOL_SOCKET, SO_BROADCAST, 1) call. Without it,
// writes to a directed broadcast or 255.255.255.255 destination fail with
// EACCES on Linux.
func setBroadcast(_, _ string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// Send transmits the magic packet once to every (destination, port) pair.
// It returns true if at least one send succeeded without an OS error.
func (e *Emitter) Send(ctx context.Context) bool {
	packet := e.MagicPacket()

	lc := net.ListenConfig{Control: setBroadcast}
	conn, err := lc.ListenPacket(ctx, "udp4", "")
	if err != nil {
		log.Printf("[wol] failed to open broadcast socket: %v", err)
		return false
	}
	defer conn.Close()

	success := false
	for _, dest := range e.destinations() {
		for _, port := range []int{wolPortPrimary, wolPortSecondary} {
			select {
			case <-ctx.Done():
				return success
			default:
			}
			addr := &net.UDPAddr{IP: net.ParseIP(dest), Port: port}
			if _, err := conn.WriteTo(packet, addr); err != nil {
				log.Printf("[wol] send to %s:%d failed: %v", dest, port, err)
				continue
			}
			log.Printf("[wol] magic packet sent to %s:%d", dest, port)
			success = true
		}
	}

	if !success {
		log.Printf("[wol] failed to send magic packet for MAC %x to any destination", e.macBytes)
	}
	return success
}

// SendWithRetry retries Send up to maxRetries times, sleeping RetryInterval
// between attempts, returning on the first whole-round success.
func (e *Emitter) SendWithRetry(ctx context.Context, maxRetries int) bool {
	for attempt := 0; attempt < maxRetries; attempt++ {
		log.Printf("[wol] sending magic packet (attempt %d/%d)", attempt+1, maxRetries)
		if e.Send(ctx) {
			return true
		}
		if attempt < maxRetries-1 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(e.retryInterval):
			}
		}
	}
	log.Printf("[wol] failed to send magic packet after %d attempts", maxRetries)
	return false
}
