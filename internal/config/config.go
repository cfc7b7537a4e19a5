// Package config handles daemon configuration file management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the daemon configuration
type Config struct {
	// Audio settings for the output session
	Audio AudioConfig `json:"audio"`

	// Trajectory holds the motion-path constants
	Trajectory TrajectoryConfig `json:"trajectory"`

	// Session holds controller behavior settings
	Session SessionConfig `json:"session"`

	// TempDir overrides where transcoded media is written
	// (default: <os temp>/spatiald)
	TempDir string `json:"tempDir,omitempty"`
}

// AudioConfig contains audio output settings
type AudioConfig struct {
	// SampleRate of the output session (default: 44100)
	SampleRate int `json:"sampleRate"`

	// DefaultVolume level 0.0 - 1.0 (default: 1.0)
	DefaultVolume float64 `json:"defaultVolume"`
}

// TrajectoryConfig contains the static motion-path constants. These are
// read at startup and are not editable at runtime.
type TrajectoryConfig struct {
	// HeightY is the fixed vertical plane for the source, in meters
	HeightY float64 `json:"heightY"`

	// RangeMeters is the horizontal clamp for manual positioning
	RangeMeters float64 `json:"rangeMeters"`

	// Per-mode sweep bounds, in meters
	FrontZ float64 `json:"frontZ"`
	BackZ  float64 `json:"backZ"`
	LeftX  float64 `json:"leftX"`
	RightX float64 `json:"rightX"`
	LowY   float64 `json:"lowY"`
	HighY  float64 `json:"highY"`

	// OrbitRadius in meters for the overhead orbit mode
	OrbitRadius float64 `json:"orbitRadius"`

	// OrbitPeriodSec is one revolution's duration when the orbit runs on
	// elapsed time (media duration unknown)
	OrbitPeriodSec float64 `json:"orbitPeriodSec"`
}

// SessionConfig contains controller behavior settings
type SessionConfig struct {
	// TickRateHz is how often the controller samples the playback clock
	// while playing (default: 60)
	TickRateHz int `json:"tickRateHz"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:    44100,
			DefaultVolume: 1.0,
		},
		Trajectory: TrajectoryConfig{
			HeightY:        1.0,
			RangeMeters:    2.0,
			FrontZ:         -1.0,
			BackZ:          1.0,
			LeftX:          -1.0,
			RightX:         1.0,
			LowY:           0.0,
			HighY:          2.0,
			OrbitRadius:    1.0,
			OrbitPeriodSec: 8.0,
		},
		Session: SessionConfig{
			TickRateHz: 60,
		},
	}
}

// Manager handles loading and saving configuration
type Manager struct {
	configDir  string
	configPath string
	config     *Config
}

// NewManager creates a new configuration manager
func NewManager(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configPath: filepath.Join(configDir, "config.json"),
		config:     DefaultConfig(),
	}
}

// Load reads the configuration from disk
func (m *Manager) Load() error {
	// Ensure config directory exists
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Check if config file exists
	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		// Create default config
		m.config = DefaultConfig()
		return m.Save()
	}

	// Read existing config
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	// Parse JSON
	config := DefaultConfig() // Start with defaults
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.config = config
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	// Ensure config directory exists
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	return m.config
}

// GetPath returns the config file path
func (m *Manager) GetPath() string {
	return m.configPath
}
