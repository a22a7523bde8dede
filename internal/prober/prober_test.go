package prober

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"
)

func listenClosableTCP(t *testing.T) (addr string, closeFn func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func TestProbeOnce_TransitionsUnknownToOnline(t *testing.T) {
	addr, closeFn := listenClosableTCP(t)
	defer closeFn()
	host, portStr, _ := net.SplitHostPort(addr)
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	p := New(Config{TargetIP: host, ProbePort: port, ProbeTimeout: time.Second})
	ctx := context.Background()

	health := p.ProbeOnce(ctx)
	if health != HealthOnline {
		t.Fatalf("expected Online, got %s", health)
	}

	select {
	case tr := <-p.Events():
		if tr.Previous != HealthUnknown || tr.Current != HealthOnline {
			t.Errorf("unexpected transition: %+v", tr)
		}
	default:
		t.Fatal("expected a transition event")
	}
}

func TestProbeOnce_SingleFailureTransitionsOnlineToOffline(t *testing.T) {
	addr, closeFn := listenClosableTCP(t)
	host, portStr, _ := net.SplitHostPort(addr)
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	p := New(Config{TargetIP: host, ProbePort: port, ProbeTimeout: 200 * time.Millisecond})
	ctx := context.Background()

	if h := p.ProbeOnce(ctx); h != HealthOnline {
		t.Fatalf("expected Online before closing listener, got %s", h)
	}
	<-p.Events()

	closeFn()
	time.Sleep(50 * time.Millisecond)

	if h := p.ProbeOnce(ctx); h != HealthOffline {
		t.Fatalf("expected Offline after single failed probe, got %s", h)
	}
}

func TestWaitForOnline_TimesOut(t *testing.T) {
	p := New(Config{TargetIP: "127.0.0.1", ProbePort: 1, ProbeTimeout: 50 * time.Millisecond})
	ok := p.WaitForOnline(context.Background(), 150*time.Millisecond, 50*time.Millisecond)
	if ok {
		t.Fatal("expected WaitForOnline to time out against a closed port")
	}
}

