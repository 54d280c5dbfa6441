package rules

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"watchpost/internal/model"
)

// Default rule settings. The burst numbers are heuristic starting points,
// tunable per deployment.
const (
	DefaultCPUThreshold    = 80.0
	DefaultMemoryThreshold = 85.0
	DefaultDiskThreshold   = 90.0

	DefaultProcessMultiplier    = 1.5
	DefaultConnectionMultiplier = 2.0

	DefaultBurstPacketThreshold = 1000
	DefaultBurstWindowSeconds   = 10
)

// PlaintextRecommendation is the fixed recommendation attached to every
// plaintext-protocol finding.
const PlaintextRecommendation = "Use encrypted alternatives (HTTPS, SFTP, SSH) instead of plaintext protocols"

// BurstConfig bounds the traffic-shape rule: a connection whose packet count
// exceeds PacketThreshold within less than WindowSeconds is burst-shaped.
type BurstConfig struct {
	PacketThreshold int64 `yaml:"packet_threshold" json:"packet_threshold"`
	WindowSeconds   int   `yaml:"window_seconds" json:"window_seconds"`
}

// Window returns the burst window as a duration.
func (b BurstConfig) Window() time.Duration {
	return time.Duration(b.WindowSeconds) * time.Second
}

// Config is the externally tunable rule set. Operators adjust sensitivity
// here without code changes.
type Config struct {
	// Thresholds maps a metric name (cpu, memory, disk) to the percentage
	// above which an absolute-threshold finding is emitted.
	Thresholds map[string]float64 `yaml:"thresholds" json:"thresholds"`

	// BaselineMultipliers maps a metric name (processes, connections) to the
	// multiplier applied to the baseline value for relative rules.
	BaselineMultipliers map[string]float64 `yaml:"baseline_multipliers" json:"baseline_multipliers"`

	Burst BurstConfig `yaml:"burst" json:"burst"`

	// PlaintextProtocols lists protocol tags that trigger the plaintext rule
	// when present in the observed protocol set. Evaluation order follows
	// list order.
	PlaintextProtocols []model.Protocol `yaml:"plaintext_protocols" json:"plaintext_protocols"`
}

// DefaultConfig returns the built-in rule set.
func DefaultConfig() *Config {
	return &Config{
		Thresholds: map[string]float64{
			"cpu":    DefaultCPUThreshold,
			"memory": DefaultMemoryThreshold,
			"disk":   DefaultDiskThreshold,
		},
		BaselineMultipliers: map[string]float64{
			"processes":   DefaultProcessMultiplier,
			"connections": DefaultConnectionMultiplier,
		},
		Burst: BurstConfig{
			PacketThreshold: DefaultBurstPacketThreshold,
			WindowSeconds:   DefaultBurstWindowSeconds,
		},
		PlaintextProtocols: []model.Protocol{
			model.ProtocolHTTP,
			model.ProtocolFTP,
			model.ProtocolTelnet,
		},
	}
}

// LoadConfig reads a YAML rule configuration file and merges it over the
// defaults. Keys absent from the file keep their default values. An invalid
// configuration is fatal before any session starts.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule config: %w", err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rule config: %w", err)
	}

	cfg := DefaultConfig()
	for name, limit := range file.Thresholds {
		cfg.Thresholds[name] = limit
	}
	for name, mult := range file.BaselineMultipliers {
		cfg.BaselineMultipliers[name] = mult
	}
	if file.Burst.PacketThreshold != 0 {
		cfg.Burst.PacketThreshold = file.Burst.PacketThreshold
	}
	if file.Burst.WindowSeconds != 0 {
		cfg.Burst.WindowSeconds = file.Burst.WindowSeconds
	}
	if file.PlaintextProtocols != nil {
		cfg.PlaintextProtocols = file.PlaintextProtocols
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration. Percentage thresholds must fall in
// (0, 100], multipliers and burst bounds must be positive.
func (c *Config) Validate() error {
	for _, name := range []string{"cpu", "memory", "disk"} {
		limit, ok := c.Thresholds[name]
		if !ok {
			return &ValidationError{Field: "thresholds." + name, Message: "threshold is required"}
		}
		if limit <= 0 || limit > 100 {
			return &ValidationError{Field: "thresholds." + name, Message: "threshold must be in (0, 100]"}
		}
	}

	for name, mult := range c.BaselineMultipliers {
		if mult <= 0 {
			return &ValidationError{Field: "baseline_multipliers." + name, Message: "multiplier must be positive"}
		}
	}

	if c.Burst.PacketThreshold <= 0 {
		return &ValidationError{Field: "burst.packet_threshold", Message: "packet threshold must be positive"}
	}
	if c.Burst.WindowSeconds <= 0 {
		return &ValidationError{Field: "burst.window_seconds", Message: "window must be positive"}
	}

	return nil
}

// ValidationError represents a rule configuration error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
