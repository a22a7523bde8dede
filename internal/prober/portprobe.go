package prober

import (
	"context"
	"fmt"
	"net"
	"time"
)

// PortProbe performs a single best-effort TCP dial against host:port. Unlike
// the classifying probe loop in prober.go, this is informational only and
// never feeds the Coordinator's state machine. Nothing in the service calls
// it; /status does not report per-port reachability. A UDP "probe" here can only ever
// confirm the local socket could connect()-bind; it never confirms the
// remote port is listening, so it is reported as best-effort too.
func PortProbe(ctx context.Context, host string, port int, timeout time.Duration, network string) bool {
	addr := fmt.Sprintf("%s:%d", host, port)
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch network {
	case "udp":
		conn, err := (&net.Dialer{Timeout: timeout}).DialContext(dialCtx, "udp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	default:
		conn, err := (&net.Dialer{Timeout: timeout}).DialContext(dialCtx, "tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}
