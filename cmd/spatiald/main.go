// Package main is the entry point for the spatiald daemon.
// spatiald is a headless spatial audio playback daemon that renders a single
// media source at a position in 3D space and communicates with clients via IPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/orbitaudio/spatiald/internal/audio"
	"github.com/orbitaudio/spatiald/internal/config"
	"github.com/orbitaudio/spatiald/internal/ipc"
	"github.com/orbitaudio/spatiald/internal/media"
	"github.com/orbitaudio/spatiald/internal/session"
	"github.com/orbitaudio/spatiald/internal/transcode"
)

// Version is set at build time via ldflags
var Version = "dev"

// Config holds daemon configuration
type Config struct {
	SocketPath string
	ConfigDir  string
	Verbose    bool
}

func main() {
	cfg := parseFlags()

	if cfg.Verbose {
		log.Printf("spatiald version %s starting...", Version)
	}

	// Create context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.SocketPath, "socket", "", "IPC socket path (default: auto-generated based on UID)")
	flag.StringVar(&cfg.ConfigDir, "config", "", "Configuration directory (default: ~/.config/spatiald)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	flag.Parse()

	// Set defaults
	if cfg.ConfigDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to get home directory: %v", err)
		}
		cfg.ConfigDir = homeDir + "/.config/spatiald"
	}

	if cfg.SocketPath == "" {
		cfg.SocketPath = fmt.Sprintf("/tmp/spatiald-%d.sock", os.Getuid())
	}

	return cfg
}

func run(ctx context.Context, cfg *Config) error {
	// Ensure config directory exists
	if err := os.MkdirAll(cfg.ConfigDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Initialize config manager
	configMgr := config.NewManager(cfg.ConfigDir)
	if err := configMgr.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	daemonCfg := configMgr.Get()

	// Resolve the temp directory for transcoded media
	tempDir := daemonCfg.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "spatiald")
	}
	if err := os.MkdirAll(tempDir, 0700); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}

	// Clean up transcoded files orphaned by a previous run
	if n := transcode.SweepTemp(tempDir); n > 0 {
		log.Printf("[TRANSCODE] Removed %d orphaned temp files", n)
	}

	// Initialize media session (platform-specific)
	mediaSession, err := media.NewSession()
	if err != nil {
		log.Printf("[MEDIA] Warning: failed to initialize media session: %v", err)
		log.Printf("[MEDIA] Continuing without OS media integration")
		// Continue without media session - not fatal
		mediaSession = media.NewNoOpSession()
	} else {
		log.Printf("[MEDIA] Media session initialized successfully")
	}

	// Initialize the spatial engine and session controller
	engine := audio.NewEngine(audio.OtoFactory, daemonCfg.Audio.SampleRate)
	transcoder := transcode.New(tempDir)
	controller := session.New(engine, transcoder, daemonCfg)
	defer controller.Close()

	// Connect media session commands to the controller
	controller.SetMediaSession(mediaSession)
	log.Printf("[MEDIA] Connected media session commands to controller")

	// Open the output session up front so clients get a ready daemon
	if err := controller.Prepare(); err != nil {
		return fmt.Errorf("failed to prepare audio output: %w", err)
	}

	// Initialize IPC server
	server := ipc.NewServer(cfg.SocketPath, configMgr, controller)

	// Start the IPC server
	log.Printf("Starting IPC server on %s", cfg.SocketPath)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("IPC server error: %w", err)
	}

	return nil
}
