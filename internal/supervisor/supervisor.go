// Package supervisor wires the Coordinator, Prober, Identity Manager, Wake
// Emitter, and protocol handlers together, pumping their events into the
// Coordinator and exposing a small HTTP status surface.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/drsoft-oss/wolproxy/internal/config"
	"github.com/drsoft-oss/wolproxy/internal/coordinator"
	"github.com/drsoft-oss/wolproxy/internal/identity"
	"github.com/drsoft-oss/wolproxy/internal/minecraft"
	"github.com/drsoft-oss/wolproxy/internal/prober"
	"github.com/drsoft-oss/wolproxy/internal/satisfactory"
	"github.com/drsoft-oss/wolproxy/internal/wol"
)

// Supervisor owns the lifecycle of every component and the status HTTP server.
type Supervisor struct {
	cfg config.Config

	coord      *coordinator.Coordinator
	prb        *prober.Prober
	ident      *identity.Manager
	emitter    *wol.Emitter
	minecraftH *minecraft.Handler
	satisfactH *satisfactory.Handler
	httpServer *http.Server
	metrics    *prometheus.Registry
	startTime  time.Time
}

// New builds every component from cfg, wiring the Coordinator to whichever
// protocol handlers are enabled. It does not start anything; call Run.
func New(cfg config.Config) (*Supervisor, error) {
	emitter, err := wol.New(wol.Config{
		TargetIP:      cfg.Server.TargetIP,
		MACAddress:    cfg.Server.MACAddress,
		NetworkMask:   cfg.Server.NetworkMask,
		RetryInterval: time.Duration(cfg.Timing.WOLRetryInterval) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("init wake emitter: %w", err)
	}

	ident := identity.New(identity.Config{
		TargetIP:  cfg.Server.TargetIP,
		Interface: cfg.Server.NetworkInterface,
		Mask:      cfg.Server.NetworkMask,
	})

	prb := prober.New(prober.Config{
		TargetIP:     cfg.Server.TargetIP,
		ProbePort:    cfg.ProtocolA.Port,
		ProbeTimeout: time.Duration(cfg.Timing.ServerCheckTimeout) * time.Second,
		PollInterval: time.Duration(cfg.Timing.HealthCheckInterval) * time.Second,
	})

	s := &Supervisor{cfg: cfg, prb: prb, ident: ident, emitter: emitter, startTime: time.Now()}

	var protoA coordinator.ProtocolAController
	if cfg.ProtocolA.Enabled {
		s.minecraftH = minecraft.New(minecraft.Config{
			Port:                cfg.ProtocolA.Port,
			ProtocolVersion:     cfg.ProtocolA.ProtocolVersion,
			MOTDOffline:         cfg.ProtocolA.MOTDOffline,
			MOTDStarting:        cfg.ProtocolA.MOTDStarting,
			VersionTextStarting: cfg.ProtocolA.VersionTextStarting,
			KickMessage:         cfg.ProtocolA.KickMessage,
			MaxPlayersDisplay:   cfg.ProtocolA.MaxPlayersDisplay,
			TargetIP:            cfg.Server.TargetIP,
			ConnectionTimeout:   time.Duration(cfg.Timing.ConnectionTimeout) * time.Second,
		})
		protoA = protocolAAdapter{h: s.minecraftH}
	}

	var protoB coordinator.ProtocolBController
	if cfg.ProtocolB.Enabled {
		s.satisfactH = satisfactory.New(satisfactory.Config{
			GamePort:          cfg.ProtocolB.GamePort,
			QueryPort:         cfg.ProtocolB.QueryPort,
			BeaconPort:        cfg.ProtocolB.BeaconPort,
			TargetIP:          cfg.Server.TargetIP,
			ConnectionTimeout: time.Duration(cfg.Timing.ConnectionTimeout) * time.Second,
		})
		protoB = s.satisfactH
	}

	s.coord = coordinator.New(coordinator.Config{
		BootWaitSeconds: time.Duration(cfg.Timing.BootWaitSeconds) * time.Second,
	}, ident, emitter, prb, protoA, protoB)

	s.metrics = s.newMetricsRegistry()
	s.httpServer = s.buildHTTPServer()
	return s, nil
}

// protocolAAdapter translates the Coordinator's generic Mode into the
// Protocol-A handler's own Mode type, keeping coordinator decoupled from the
// minecraft package.
type protocolAAdapter struct {
	h *minecraft.Handler
}

func (a protocolAAdapter) SetMode(m coordinator.Mode) {
	switch m {
	case coordinator.ModeStarting:
		a.h.SetMode(minecraft.ModeStarting)
	case coordinator.ModeProxying:
		a.h.SetMode(minecraft.ModeProxying)
	default:
		a.h.SetMode(minecraft.ModeOffline)
	}
}

// Run starts every component and blocks until ctx is canceled or an OS
// interrupt/termination signal arrives, then shuts everything down in order.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	g, gctx := errgroup.WithContext(ctx)

	if s.minecraftH != nil {
		if err := s.minecraftH.Start(gctx); err != nil {
			return fmt.Errorf("start protocol-a handler: %w", err)
		}
		defer s.minecraftH.Stop()
		g.Go(func() error { s.pumpMinecraftEvents(gctx); return nil })
	}

	if s.satisfactH != nil {
		if err := s.satisfactH.Start(gctx); err != nil {
			return fmt.Errorf("start protocol-b handler: %w", err)
		}
		defer s.satisfactH.Stop()
		g.Go(func() error { s.pumpSatisfactoryEvents(gctx); return nil })
	}

	s.prb.Start(gctx)
	defer s.prb.Stop()
	g.Go(func() error { s.pumpProberEvents(gctx); return nil })

	g.Go(func() error {
		s.coord.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Printf("[supervisor] status server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.coord.Post(coordinator.Event{Kind: coordinator.EventShutdown})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Supervisor) pumpProberEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tr := <-s.prb.Events():
			if tr.Current == prober.HealthOnline {
				s.coord.Post(coordinator.Event{Kind: coordinator.EventHealthOnline})
			} else {
				s.coord.Post(coordinator.Event{Kind: coordinator.EventHealthOffline})
			}
		}
	}
}

func (s *Supervisor) pumpMinecraftEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.minecraftH.Events():
			if ev.Kind == minecraft.EventJoinAttempt {
				s.coord.Post(coordinator.Event{Kind: coordinator.EventClientIntent, Reason: "protocol-a join observed"})
			}
		}
	}
}

func (s *Supervisor) pumpSatisfactoryEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.satisfactH.Events():
			s.coord.Post(coordinator.Event{Kind: coordinator.EventClientIntent, Reason: "protocol-b flow observed"})
		}
	}
}
