// Package netutil holds small, dependency-free network helpers shared across
// wolproxy's components: MAC parsing and directed-broadcast derivation.
package netutil

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
)

// ParseMAC accepts a MAC address in any of the three conventional forms
// (colon-separated, dash-separated, or bare hex) and returns its 6 raw bytes.
func ParseMAC(mac string) ([]byte, error) {
	clean := strings.ToUpper(mac)
	clean = strings.ReplaceAll(clean, ":", "")
	clean = strings.ReplaceAll(clean, "-", "")

	if len(clean) != 12 {
		return nil, fmt.Errorf("invalid MAC address length: %q", mac)
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid MAC address format: %q: %w", mac, err)
	}
	return b, nil
}

// DirectedBroadcast computes the all-ones-host-bits address of ip/mask. If
// mask is out of range or ip does not parse as IPv4, it returns the limited
// broadcast address "255.255.255.255" instead of failing, matching the
// original service's fallback behaviour.
func DirectedBroadcast(ip string, mask int) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "255.255.255.255"
	}
	v4 := parsed.To4()
	if v4 == nil || mask < 0 || mask > 32 {
		return "255.255.255.255"
	}

	ipNet := net.IPNet{IP: v4, Mask: net.CIDRMask(mask, 32)}
	bcast := make(net.IP, len(ipNet.IP))
	for i := range ipNet.IP {
		bcast[i] = ipNet.IP[i] | ^ipNet.Mask[i]
	}
	return bcast.String()
}
