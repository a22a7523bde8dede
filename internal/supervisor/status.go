package supervisor

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// statusResponse is the JSON snapshot served by GET /status.
type statusResponse struct {
	ProxyState     string    `json:"proxy_state"`
	StateChangedAt time.Time `json:"state_changed_at"`
	TimeInState    string    `json:"time_in_current_state"`
	ServerHealth   string    `json:"server_health"`
	TargetIP       string    `json:"target_ip"`
	Uptime         string    `json:"uptime"`
	Statistics     any       `json:"statistics"`
	ProberStats    any       `json:"prober_stats"`
	ProtocolAStats any       `json:"protocol_a_stats,omitempty"`
	ProtocolBStats any       `json:"protocol_b_stats,omitempty"`
}

func (s *Supervisor) buildHTTPServer() *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	if s.cfg.Monitoring.MetricsEnabled {
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}

	addr := fmt.Sprintf("0.0.0.0:%d", s.cfg.Monitoring.StatusEndpointPort)
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// newMetricsRegistry builds a Prometheus registry whose gauges are computed
// on demand from the coordinator/prober/handler snapshots at scrape time, the
// same ambient-addition surface /status reports, in exposition format.
func (s *Supervisor) newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "wolproxy_wake_attempts_total", Help: "Wake-on-LAN attempts issued by the coordinator.",
	}, func() float64 { return float64(s.coord.Stats().WakeAttempts) }))
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "wolproxy_successful_wakes_total", Help: "Wake cycles that reached a reachable host.",
	}, func() float64 { return float64(s.coord.Stats().SuccessfulWakes) }))
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "wolproxy_state_transitions_total", Help: "Coordinator state transitions observed.",
	}, func() float64 { return float64(s.coord.Stats().StateTransitions) }))
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "wolproxy_proxy_state", Help: "Current coordinator state as an ordinal (offline=0, waking=1, starting=2, proxying=3, stopping=4).",
	}, func() float64 { return float64(stateOrdinal(s.coord.Stats().State)) }))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "wolproxy_prober_total_checks", Help: "Liveness probes performed against the target host.",
	}, func() float64 { return float64(s.prb.Stats().TotalChecks) }))
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "wolproxy_prober_consecutive_failures", Help: "Consecutive failed liveness probes.",
	}, func() float64 { return float64(s.prb.Stats().ConsecutiveFailure) }))

	if s.minecraftH != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "wolproxy_protocol_a_connections_handled_total", Help: "Protocol-A connections handshaked.",
		}, func() float64 { return float64(s.minecraftH.Stats().ConnectionsHandled) }))
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "wolproxy_protocol_a_join_attempts_total", Help: "Protocol-A login-intent handshakes observed.",
		}, func() float64 { return float64(s.minecraftH.Stats().JoinAttempts) }))
	}
	if s.satisfactH != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "wolproxy_protocol_b_packets_received_total", Help: "Protocol-B datagrams received across all ports.",
		}, func() float64 { return float64(s.satisfactH.Stats().PacketsReceived) }))
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "wolproxy_protocol_b_packets_forwarded_total", Help: "Protocol-B datagrams forwarded to the target host.",
		}, func() float64 { return float64(s.satisfactH.Stats().PacketsForwarded) }))
	}

	return reg
}

func stateOrdinal(state string) int {
	switch state {
	case "offline":
		return 0
	case "waking":
		return 1
	case "starting":
		return 2
	case "proxying":
		return 3
	case "stopping":
		return 4
	default:
		return -1
	}
}

// handleStatus returns a JSON snapshot of ProxyState, ServerHealth,
// statistics, and the target IP. The rest of the effective configuration is
// not included.
func (s *Supervisor) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	coordStats := s.coord.Stats()
	resp := statusResponse{
		ProxyState:     coordStats.State,
		StateChangedAt: coordStats.StateChangedAt,
		TimeInState:    time.Since(coordStats.StateChangedAt).Round(time.Second).String(),
		ServerHealth:   s.prb.Health().String(),
		TargetIP:       s.cfg.Server.TargetIP,
		Uptime:         time.Since(s.startTime).Round(time.Second).String(),
		Statistics:     coordStats,
		ProberStats:    s.prb.Stats(),
	}
	if s.minecraftH != nil {
		resp.ProtocolAStats = s.minecraftH.Stats()
	}
	if s.satisfactH != nil {
		resp.ProtocolBStats = s.satisfactH.Stats()
	}

	jsonOK(w, resp)
}

// handleHealth is a liveness probe for external orchestration, always
// reporting healthy as long as the process can answer HTTP at all.
func (s *Supervisor) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]string{"status": "healthy"})
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[supervisor] encode response: %v", err)
	}
}
