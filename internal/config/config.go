// Package config loads, validates, and serialises the wolproxy configuration
// file. The on-disk format is JSON; keys are grouped the same way the original
// Python service grouped them (server, timing, protocol_a, protocol_b, logging,
// monitoring). Missing keys fall back to defaults; unknown keys are ignored by
// encoding/json; invalid values abort startup with an aggregated error.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/drsoft-oss/wolproxy/internal/netutil"
)

// Server describes the real game host this proxy impersonates while it is off.
type Server struct {
	TargetIP         string `json:"target_ip"`
	MACAddress       string `json:"mac_address"`
	NetworkInterface string `json:"network_interface"`
	NetworkMask      int    `json:"network_mask"`
}

// Timing holds every duration/timeout the proxy consults, expressed in seconds
// on disk and converted to time.Duration at the call sites that need it.
type Timing struct {
	BootWaitSeconds     int `json:"boot_wait_seconds"`
	HealthCheckInterval int `json:"health_check_interval"`
	WOLRetryInterval    int `json:"wol_retry_interval"`
	ConnectionTimeout   int `json:"connection_timeout"`
	ServerCheckTimeout  int `json:"server_check_timeout"`
}

// ProtocolA is the Minecraft-style length-prefixed handshake protocol surface.
type ProtocolA struct {
	Enabled             bool   `json:"enabled"`
	Port                int    `json:"port"`
	ProtocolVersion     int    `json:"protocol_version"`
	MOTDOffline         string `json:"motd_offline"`
	MOTDStarting        string `json:"motd_starting"`
	VersionTextStarting string `json:"version_text_starting"`
	KickMessage         string `json:"kick_message"`
	MaxPlayersDisplay   int    `json:"max_players_display"`
}

// ProtocolB is the three-port UDP surface (Satisfactory-style).
type ProtocolB struct {
	Enabled    bool `json:"enabled"`
	GamePort   int  `json:"game_port"`
	QueryPort  int  `json:"query_port"`
	BeaconPort int  `json:"beacon_port"`
}

// Logging holds the logging settings. Validate checks Level; nothing in the
// service applies these settings, so the standard library logger keeps its
// default destination and is never rotated.
type Logging struct {
	Level         string `json:"level"`
	File          string `json:"file"`
	MaxSizeMB     int    `json:"max_size_mb"`
	BackupCount   int    `json:"backup_count"`
	ConsoleOutput bool   `json:"console_output"`
}

// Monitoring controls the Supervisor's HTTP surface.
type Monitoring struct {
	HealthCheckEnabled bool `json:"health_check_enabled"`
	StatusEndpointPort int  `json:"status_endpoint_port"`
	MetricsEnabled     bool `json:"metrics_enabled"`
}

// Config is the full parsed and validated configuration tree.
type Config struct {
	Server     Server     `json:"server"`
	Timing     Timing     `json:"timing"`
	ProtocolA  ProtocolA  `json:"protocol_a"`
	ProtocolB  ProtocolB  `json:"protocol_b"`
	Logging    Logging    `json:"logging"`
	Monitoring Monitoring `json:"monitoring"`
}

// Default returns the built-in configuration used when no file is present or
// when a loaded file omits a key.
func Default() Config {
	return Config{
		Server: Server{
			TargetIP:         "192.168.1.100",
			MACAddress:       "AA:BB:CC:DD:EE:FF",
			NetworkInterface: "eth0",
			NetworkMask:      24,
		},
		Timing: Timing{
			BootWaitSeconds:     90,
			HealthCheckInterval: 15,
			WOLRetryInterval:    5,
			ConnectionTimeout:   30,
			ServerCheckTimeout:  5,
		},
		ProtocolA: ProtocolA{
			Enabled:             true,
			Port:                25565,
			ProtocolVersion:     763,
			MOTDOffline:         "§aJoin to start server",
			MOTDStarting:        "§eServer is starting, please wait",
			VersionTextStarting: "Starting...",
			KickMessage:         "§eServer is starting up, try joining again in a minute.",
			MaxPlayersDisplay:   20,
		},
		ProtocolB: ProtocolB{
			Enabled:    true,
			GamePort:   7777,
			QueryPort:  15000,
			BeaconPort: 15777,
		},
		Logging: Logging{
			Level:         "INFO",
			File:          "/var/log/wolproxy.log",
			MaxSizeMB:     10,
			BackupCount:   3,
			ConsoleOutput: true,
		},
		Monitoring: Monitoring{
			HealthCheckEnabled: true,
			StatusEndpointPort: 8080,
			MetricsEnabled:     false,
		},
	}
}

// Load reads path, merges it over Default(), validates the result, and
// returns it. A missing file is not an error: the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConfigError aggregates every validation failure found in one pass, mirroring
// the original service's behaviour of reporting all problems at once instead
// of failing on the first.
type ConfigError struct {
	Messages []string
}

func (e *ConfigError) Error() string {
	return "configuration validation failed:\n  - " + strings.Join(e.Messages, "\n  - ")
}

var validLogLevels = map[string]bool{
	"DEBUG": true, "INFO": true, "WARNING": true, "ERROR": true, "CRITICAL": true,
}

// Validate checks every field with a contract in spec.md §6 and returns a
// single *ConfigError listing every violation, or nil if cfg is sound.
func Validate(cfg *Config) error {
	var errs []string

	if net.ParseIP(cfg.Server.TargetIP) == nil {
		errs = append(errs, fmt.Sprintf("invalid target IP address: %q", cfg.Server.TargetIP))
	}
	if _, err := netutil.ParseMAC(cfg.Server.MACAddress); err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAC address: %q (%v)", cfg.Server.MACAddress, err))
	}
	if cfg.Server.NetworkMask < 0 || cfg.Server.NetworkMask > 32 {
		errs = append(errs, fmt.Sprintf("invalid network mask: %d", cfg.Server.NetworkMask))
	}

	for name, v := range map[string]int{
		"boot_wait_seconds":     cfg.Timing.BootWaitSeconds,
		"health_check_interval": cfg.Timing.HealthCheckInterval,
		"wol_retry_interval":    cfg.Timing.WOLRetryInterval,
		"connection_timeout":    cfg.Timing.ConnectionTimeout,
		"server_check_timeout":  cfg.Timing.ServerCheckTimeout,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Sprintf("invalid timing value for %s: %d", name, v))
		}
	}

	if cfg.ProtocolA.Enabled && !validPort(cfg.ProtocolA.Port) {
		errs = append(errs, fmt.Sprintf("invalid protocol_a port: %d", cfg.ProtocolA.Port))
	}
	if cfg.ProtocolB.Enabled {
		for name, p := range map[string]int{
			"game_port": cfg.ProtocolB.GamePort, "query_port": cfg.ProtocolB.QueryPort, "beacon_port": cfg.ProtocolB.BeaconPort,
		} {
			if !validPort(p) {
				errs = append(errs, fmt.Sprintf("invalid protocol_b %s: %d", name, p))
			}
		}
	}

	if !validLogLevels[strings.ToUpper(cfg.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s", cfg.Logging.Level))
	}

	if len(errs) > 0 {
		return &ConfigError{Messages: errs}
	}
	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// SaveExample writes a fully-populated example configuration to path, the
// equivalent of the original service's `--create-config` output.
func SaveExample(path string) error {
	cfg := Default()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal example config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Summary renders a short human-readable description of cfg, used by
// `wolproxy validate-config`.
func (c Config) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target Server: %s (%s)\n", c.Server.TargetIP, c.Server.MACAddress)
	fmt.Fprintf(&b, "Protocol A (Minecraft-style): %s", enabledText(c.ProtocolA.Enabled))
	if c.ProtocolA.Enabled {
		fmt.Fprintf(&b, " — port %d", c.ProtocolA.Port)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Protocol B (Satisfactory-style): %s", enabledText(c.ProtocolB.Enabled))
	if c.ProtocolB.Enabled {
		fmt.Fprintf(&b, " — ports %d, %d, %d", c.ProtocolB.GamePort, c.ProtocolB.QueryPort, c.ProtocolB.BeaconPort)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Boot wait: %ds\n", c.Timing.BootWaitSeconds)
	return b.String()
}

func enabledText(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}
