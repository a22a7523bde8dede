package satisfactory

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"golang.org/x/net/nettest"
)

func freeUDPPort(t *testing.T) int {
	t.Helper()
	pc, err := nettest.NewLocalPacketListener("udp")
	if err != nil {
		t.Fatal(err)
	}
	_, portStr, _ := net.SplitHostPort(pc.LocalAddr().String())
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	pc.Close()
	return port
}

func newTestHandler(t *testing.T) (*Handler, int, int, int) {
	t.Helper()
	game, query, beacon := freeUDPPort(t), freeUDPPort(t), freeUDPPort(t)
	h := New(Config{GamePort: game, QueryPort: query, BeaconPort: beacon, TargetIP: "127.0.0.1"})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { h.Stop() })
	return h, game, query, beacon
}

func TestHandler_NewClientEmitsEvent(t *testing.T) {
	h, gamePort, _, _ := newTestHandler(t)

	conn, err := net.Dial("udp", "127.0.0.1:"+strconv.Itoa(gamePort))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-h.Events():
		if ev.Port != gamePort {
			t.Errorf("expected event on port %d, got %d", gamePort, ev.Port)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a new-client event")
	}

	stats := h.Stats()
	if stats.PacketsReceived != 1 {
		t.Errorf("expected 1 packet received, got %d", stats.PacketsReceived)
	}
	if stats.ConnectionsDetected != 1 {
		t.Errorf("expected 1 connection detected, got %d", stats.ConnectionsDetected)
	}
}

func TestHandler_RepeatTrafficDoesNotReEmit(t *testing.T) {
	h, gamePort, _, _ := newTestHandler(t)

	conn, err := net.Dial("udp", "127.0.0.1:"+strconv.Itoa(gamePort))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.Write([]byte("one"))
	<-h.Events()

	conn.Write([]byte("two"))
	select {
	case ev := <-h.Events():
		t.Fatalf("expected no second event for repeat traffic, got %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}

	if stats := h.Stats(); stats.PacketsReceived != 2 {
		t.Errorf("expected 2 packets received, got %d", stats.PacketsReceived)
	}
}

func TestHandler_DropsWhenForwardingDisabled(t *testing.T) {
	h, gamePort, _, _ := newTestHandler(t)

	conn, err := net.Dial("udp", "127.0.0.1:"+strconv.Itoa(gamePort))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.Write([]byte("ping"))
	<-h.Events()

	if stats := h.Stats(); stats.PacketsForwarded != 0 {
		t.Errorf("expected no forwarded packets while disabled, got %d", stats.PacketsForwarded)
	}
}

func TestHandler_ForwardsWhenEnabled(t *testing.T) {
	// The handler always forwards to TargetIP on the SAME port number it
	// received traffic on, so the backend must listen on a distinct address
	// (a second loopback alias) sharing that port number.
	frontPort := freeUDPPort(t)
	query, beacon := freeUDPPort(t), freeUDPPort(t)

	backendConn, err := net.ListenPacket("udp", "127.0.0.2:"+strconv.Itoa(frontPort))
	if err != nil {
		t.Skipf("loopback alias 127.0.0.2 unavailable in this environment: %v", err)
	}
	defer backendConn.Close()

	h := New(Config{GamePort: frontPort, QueryPort: query, BeaconPort: beacon, TargetIP: "127.0.0.2"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer h.Stop()
	h.EnableForwarding()

	client, err := net.Dial("udp", "127.0.0.1:"+strconv.Itoa(frontPort))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	if _, err := client.Write([]byte("relay-me")); err != nil {
		t.Fatal(err)
	}

	backendConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, _, err := backendConn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("expected the backend to receive a forwarded datagram: %v", err)
	}
	if string(buf[:n]) != "relay-me" {
		t.Errorf("unexpected forwarded payload: %q", buf[:n])
	}
}
