// Package config loads scanner settings from an optional YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/yaml"
)

// Config holds every tunable of a run. Keys match the YAML file.
type Config struct {
	// Probing
	TimeoutSeconds       float64 `json:"timeout_seconds"`        // per-probe timeout
	ConcurrencyLimit     int     `json:"concurrency_limit"`      // max simultaneous probes
	PortRange            []int   `json:"port_range"`             // [start, end]
	BannerTimeoutSeconds float64 `json:"banner_timeout_seconds"` // connect + read timeout for banners
	RateLimit            float64 `json:"rate_limit"`             // probe starts per second, 0 = unlimited

	// Discovery
	SweepRange   []int  `json:"sweep_range"`  // [first, last] host suffix
	Reachability string `json:"reachability"` // auto | icmp | tcp
	ReachPorts   []int  `json:"reach_ports"`  // ports for tcp reachability

	// Resolution
	DNSServer string `json:"dns_server"` // query this server directly instead of the system resolver

	// Output
	JSONOutput string `json:"json_output"`
	HTMLOutput string `json:"html_output"`
	DBPath     string `json:"db_path"`
	LogLevel   string `json:"log_level"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		TimeoutSeconds:       1,
		ConcurrencyLimit:     200,
		PortRange:            []int{1, 1000},
		BannerTimeoutSeconds: 3,
		SweepRange:           []int{1, 254},
		Reachability:         "auto",
		ReachPorts:           []int{80, 443, 22, 445},
		JSONOutput:           "scan_results.json",
		HTMLOutput:           "scan_report.html",
		LogLevel:             "info",
	}
}

// Load reads path on top of the defaults. An empty path yields the defaults.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for correctness.
func (c *Config) Validate() error {
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %v", c.TimeoutSeconds)
	}
	if c.ConcurrencyLimit < 1 || c.ConcurrencyLimit > 10000 {
		return fmt.Errorf("concurrency_limit must be between 1 and 10000, got %d", c.ConcurrencyLimit)
	}
	if len(c.PortRange) != 2 {
		return fmt.Errorf("port_range must have exactly two elements, got %v", c.PortRange)
	}
	if lo, hi := c.PortRange[0], c.PortRange[1]; lo < 1 || hi > 65535 || lo > hi {
		return fmt.Errorf("port_range must satisfy 1 <= start <= end <= 65535, got %v", c.PortRange)
	}
	if c.BannerTimeoutSeconds <= 0 {
		return fmt.Errorf("banner_timeout_seconds must be positive, got %v", c.BannerTimeoutSeconds)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative, got %v", c.RateLimit)
	}

	if len(c.SweepRange) != 2 {
		return fmt.Errorf("sweep_range must have exactly two elements, got %v", c.SweepRange)
	}
	if lo, hi := c.SweepRange[0], c.SweepRange[1]; lo < 0 || hi > 255 || lo > hi {
		return fmt.Errorf("sweep_range must satisfy 0 <= start <= end <= 255, got %v", c.SweepRange)
	}
	switch c.Reachability {
	case "auto", "icmp", "tcp":
	default:
		return fmt.Errorf("reachability must be 'auto', 'icmp' or 'tcp', got %q", c.Reachability)
	}
	if c.Reachability == "tcp" && len(c.ReachPorts) == 0 {
		return fmt.Errorf("reach_ports cannot be empty with tcp reachability")
	}
	for _, p := range c.ReachPorts {
		if p < 1 || p > 65535 {
			return fmt.Errorf("reach_ports entry %d out of range", p)
		}
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Timeout is the per-probe timeout.
func (c *Config) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// BannerTimeout is the banner connect and read timeout.
func (c *Config) BannerTimeout() time.Duration {
	return seconds(c.BannerTimeoutSeconds)
}

// ReachPortList converts ReachPorts for the discovery package.
func (c *Config) ReachPortList() []uint16 {
	out := make([]uint16, 0, len(c.ReachPorts))
	for _, p := range c.ReachPorts {
		out = append(out, uint16(p))
	}
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
