package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Dimension classes map to distinct default drift thresholds. The classes
// are independently tunable; a single global constant would hide the fact
// that communication patterns drift more noisily than core values.
const (
	ClassPersonality   = "personality"
	ClassValue         = "value"
	ClassBehavior      = "behavior"
	ClassCommunication = "communication"
)

var classDriftDefaults = map[string]float64{
	ClassPersonality:   0.5,
	ClassValue:         0.4,
	ClassBehavior:      0.6,
	ClassCommunication: 0.7,
}

// Config is the top-level vigil configuration
type Config struct {
	Version     string             `yaml:"version"`
	StoragePath string             `yaml:"storage_path"`
	WALPath     string             `yaml:"wal_path"`
	Profiles    map[string]Profile `yaml:"profiles"`
	Dispatch    DispatchConfig     `yaml:"dispatch,omitempty"`
	Server      ServerConfig       `yaml:"server,omitempty"`
}

// Profile is one assessment profile: which dimensions run against a subject
// and every threshold the engine consults for it. Profiles are passed
// explicitly per cycle so different subjects can run different profiles
// concurrently without shared mutable configuration.
type Profile struct {
	Name            string            `yaml:"name"`
	Dimensions      []DimensionConfig `yaml:"dimensions"`
	Tiers           TierBoundaries    `yaml:"tiers,omitempty"`
	Cascade         CascadeConfig     `yaml:"cascade,omitempty"`
	Drift           DriftConfig       `yaml:"drift,omitempty"`
	AssessorTimeout time.Duration     `yaml:"assessor_timeout,omitempty"`
}

// DimensionConfig configures one dimension within a profile
type DimensionConfig struct {
	Name           string  `yaml:"name"`
	Class          string  `yaml:"class,omitempty"`
	Weight         float64 `yaml:"weight,omitempty"`
	DriftThreshold float64 `yaml:"drift_threshold,omitempty"`
}

// TierBoundaries are the overall-score cutpoints between tiers
type TierBoundaries struct {
	Escalate  float64 `yaml:"escalate"`
	Contain   float64 `yaml:"contain"`
	Emergency float64 `yaml:"emergency"`
}

// CascadeConfig controls cross-dimension cascade detection
type CascadeConfig struct {
	ElevatedThreshold float64 `yaml:"elevated_threshold"`
	Penalty           float64 `yaml:"penalty"`
}

// DriftConfig controls drift normalization
type DriftConfig struct {
	Epsilon       float64 `yaml:"epsilon"`
	SaturationCap float64 `yaml:"saturation_cap"`
}

// DispatchConfig configures outbound action channels
type DispatchConfig struct {
	SQSQueueURL string `yaml:"sqs_queue_url,omitempty"`
	Region      string `yaml:"region,omitempty"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr  string `yaml:"addr,omitempty"`
	Async bool   `yaml:"async,omitempty"`
}

// Load reads configuration from a yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills unset fields across all profiles
func (c *Config) ApplyDefaults() {
	if c.StoragePath == "" {
		c.StoragePath = "./vigil-data"
	}
	if c.WALPath == "" {
		c.WALPath = "./vigil-wal"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8643"
	}
	for name, p := range c.Profiles {
		p.Name = name
		p.ApplyDefaults()
		c.Profiles[name] = p
	}
}

// ApplyDefaults fills unset profile fields with engine defaults.
// The numeric defaults are starting points, not calibration - operators
// are expected to tune them per deployment.
func (p *Profile) ApplyDefaults() {
	if p.Tiers == (TierBoundaries{}) {
		p.Tiers = DefaultTierBoundaries()
	}
	if p.Cascade == (CascadeConfig{}) {
		p.Cascade = CascadeConfig{ElevatedThreshold: 0.6, Penalty: 0.1}
	}
	if p.Drift.Epsilon == 0 {
		p.Drift.Epsilon = 1e-6
	}
	if p.Drift.SaturationCap == 0 {
		p.Drift.SaturationCap = 4.0
	}
	if p.AssessorTimeout == 0 {
		p.AssessorTimeout = 5 * time.Second
	}
	for i := range p.Dimensions {
		d := &p.Dimensions[i]
		if d.Weight == 0 {
			d.Weight = 1.0
		}
		if d.Class == "" {
			d.Class = ClassBehavior
		}
		if d.DriftThreshold == 0 {
			if def, ok := classDriftDefaults[d.Class]; ok {
				d.DriftThreshold = def
			} else {
				d.DriftThreshold = classDriftDefaults[ClassBehavior]
			}
		}
	}
}

// DefaultTierBoundaries returns the standard tier cutpoints
func DefaultTierBoundaries() TierBoundaries {
	return TierBoundaries{Escalate: 0.4, Contain: 0.7, Emergency: 0.9}
}

// DefaultProfile builds a ready-to-run profile with the builtin dimensions
func DefaultProfile(name string) Profile {
	p := Profile{
		Name: name,
		Dimensions: []DimensionConfig{
			{Name: "behavioral", Class: ClassBehavior},
			{Name: "integrity", Class: ClassValue},
			{Name: "technical", Class: ClassBehavior},
			{Name: "communication", Class: ClassCommunication},
		},
	}
	p.ApplyDefaults()
	return p
}

// Validate ensures config has required fields and sane thresholds
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if len(c.Profiles) == 0 {
		return fmt.Errorf("at least one profile is required")
	}
	for name, p := range c.Profiles {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("profile %s: %w", name, err)
		}
	}
	return nil
}

// Validate checks one profile's thresholds
func (p *Profile) Validate() error {
	if len(p.Dimensions) == 0 {
		return fmt.Errorf("at least one dimension is required")
	}
	seen := make(map[string]bool, len(p.Dimensions))
	for _, d := range p.Dimensions {
		if d.Name == "" {
			return fmt.Errorf("dimension name is required")
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate dimension %s", d.Name)
		}
		seen[d.Name] = true
		if d.Weight < 0 {
			return fmt.Errorf("dimension %s has negative weight", d.Name)
		}
		if d.DriftThreshold < 0 || d.DriftThreshold > 1 {
			return fmt.Errorf("dimension %s drift threshold %f out of [0,1]", d.Name, d.DriftThreshold)
		}
	}
	t := p.Tiers
	if !(t.Escalate > 0 && t.Escalate < t.Contain && t.Contain < t.Emergency && t.Emergency <= 1) {
		return fmt.Errorf("tier boundaries must satisfy 0 < escalate < contain < emergency <= 1")
	}
	if p.Cascade.ElevatedThreshold <= 0 || p.Cascade.ElevatedThreshold >= 1 {
		return fmt.Errorf("cascade elevated threshold must be in (0,1)")
	}
	if p.Cascade.Penalty < 0 || p.Cascade.Penalty > 1 {
		return fmt.Errorf("cascade penalty must be in [0,1]")
	}
	if p.AssessorTimeout <= 0 {
		return fmt.Errorf("assessor timeout must be positive")
	}
	return nil
}

// Weights returns the profile's dimension weight map for aggregation
func (p *Profile) Weights() map[string]float64 {
	w := make(map[string]float64, len(p.Dimensions))
	for _, d := range p.Dimensions {
		w[d.Name] = d.Weight
	}
	return w
}

// DriftThresholds returns the per-dimension significance thresholds
func (p *Profile) DriftThresholds() map[string]float64 {
	t := make(map[string]float64, len(p.Dimensions))
	for _, d := range p.Dimensions {
		t[d.Name] = d.DriftThreshold
	}
	return t
}
