package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	path := filepath.Join(dir, "config.json")
	if m.GetPath() != path {
		t.Errorf("Expected config path %s, got %s", path, m.GetPath())
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected config file to be created: %v", err)
	}

	cfg := m.Get()
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("Expected default sample rate 44100, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Session.TickRateHz != 60 {
		t.Errorf("Expected default tick rate 60, got %d", cfg.Session.TickRateHz)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"trajectory":{"heightY":2.5}}`), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	m := NewManager(dir)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Trajectory.HeightY != 2.5 {
		t.Errorf("Expected heightY 2.5 from file, got %f", cfg.Trajectory.HeightY)
	}
	// Fields absent from the file keep their defaults
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("Expected default sample rate 44100, got %d", cfg.Audio.SampleRate)
	}
}
