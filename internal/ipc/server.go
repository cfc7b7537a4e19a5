package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/orbitaudio/spatiald/internal/config"
	"github.com/orbitaudio/spatiald/internal/session"
)

// Server handles IPC communication with clients
type Server struct {
	socketPath string
	configMgr  *config.Manager
	controller *session.Controller
	listener   net.Listener
	mu         sync.Mutex
	clients    map[net.Conn]struct{}

	// Spectrum streaming (callback-based, no polling)
	audioSubsMu sync.RWMutex
	audioSubs   map[net.Conn]bool // Clients subscribed to audio data
}

// NewServer creates a new IPC server publishing the controller's session
// to connected clients.
func NewServer(socketPath string, configMgr *config.Manager, controller *session.Controller) *Server {
	s := &Server{
		socketPath: socketPath,
		configMgr:  configMgr,
		controller: controller,
		clients:    make(map[net.Conn]struct{}),
		audioSubs:  make(map[net.Conn]bool),
	}

	// Every session mutation and tick is pushed to connected clients
	controller.Subscribe(func(snap session.Snapshot) {
		s.pushState(snap)
	})

	return s
}

// Start starts the IPC server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	log.Printf("[IPC] Creating socket at %s", s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	// Socket permissions (user-only)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	log.Printf("[IPC] Server listening, waiting for connections...")

	go s.acceptLoop(ctx)

	<-ctx.Done()

	log.Printf("[IPC] Shutting down server...")

	s.mu.Lock()
	clientCount := len(s.clients)
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()

	log.Printf("[IPC] Closed %d client connections", clientCount)

	listener.Close()
	os.RemoveAll(s.socketPath)

	log.Printf("[IPC] Server stopped")

	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Printf("[IPC] Accept error: %v", err)
				continue
			}
		}

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		clientCount := len(s.clients)
		s.mu.Unlock()

		log.Printf("[IPC] New client connection (active: %d)", clientCount)

		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.mu.Unlock()
		s.dropAudioSubscriber(conn)
		log.Printf("[IPC] Client disconnected (active: %d)", clientCount)
	}()

	reader := bufio.NewReader(conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Read line (newline-delimited JSON)
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				log.Printf("[IPC] Read error: %v", err)
			}
			return
		}

		req, err := DecodeRequest(line)
		if err != nil {
			log.Printf("[IPC] Invalid request format: %v", err)
			s.sendError(conn, "invalid request format")
			continue
		}

		// Skip verbose logging for frequent polling commands
		isPollingCmd := req.Cmd == CmdStatus

		if !isPollingCmd {
			log.Printf("[IPC] Command: %s", req.Cmd)
		}

		resp := s.handleRequest(conn, req)

		if !isPollingCmd {
			if resp.Success {
				log.Printf("[IPC] Response: success")
			} else {
				log.Printf("[IPC] Response: error=%q", resp.Error)
			}
		}

		if err := s.sendResponse(conn, resp); err != nil {
			log.Printf("[IPC] Send error: %v", err)
			return
		}
	}
}

func (s *Server) handleRequest(conn net.Conn, req *Request) *Response {
	switch req.Cmd {
	case CmdStatus:
		return s.statusResponse()
	case CmdLoad:
		return s.handleLoad(req)
	case CmdPlay:
		return s.handlePlay()
	case CmdStop:
		return s.handleStop()
	case CmdReset:
		return s.handleReset()
	case CmdSetMode:
		return s.handleSetMode(req)
	case CmdSetPosition:
		return s.handleSetPosition(req)
	case CmdSetVolume:
		return s.handleSetVolume(req)
	case CmdGetPath:
		return s.handleGetPath(req)
	case CmdGetConfig:
		return s.handleGetConfig()
	case CmdSubscribeAudioData:
		return s.handleSubscribeAudioData(conn)
	case CmdUnsubscribeAudioData:
		return s.handleUnsubscribeAudioData(conn)
	default:
		return NewErrorResponse("unknown command")
	}
}

// statusFromSnapshot maps the controller snapshot onto the wire form.
func statusFromSnapshot(snap session.Snapshot) StatusResponse {
	return StatusResponse{
		State:      snap.State,
		IsPlaying:  snap.IsPlaying,
		Progress:   snap.Progress,
		Duration:   snap.Duration,
		Position:   snap.Position,
		Mode:       snap.Mode,
		SourcePath: snap.SourcePath,
		Volume:     snap.Volume,
		Status:     snap.Status,
	}
}

func (s *Server) statusResponse() *Response {
	resp, err := NewSuccessResponse(statusFromSnapshot(s.controller.Status()))
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) handleLoad(req *Request) *Response {
	var loadReq LoadRequest
	if err := json.Unmarshal(req.Data, &loadReq); err != nil {
		return NewErrorResponse("invalid load request")
	}
	if loadReq.Path == "" {
		return NewErrorResponse("path is required")
	}

	// Blocks through the transcode; each connection runs on its own
	// goroutine, and a newer load supersedes this one
	if err := s.controller.Load(loadReq.Path); err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.statusResponse()
}

func (s *Server) handlePlay() *Response {
	if err := s.controller.Play(); err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.statusResponse()
}

func (s *Server) handleStop() *Response {
	if err := s.controller.Stop(); err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.statusResponse()
}

func (s *Server) handleReset() *Response {
	if err := s.controller.Reset(); err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.statusResponse()
}

func (s *Server) handleSetMode(req *Request) *Response {
	var modeReq SetModeRequest
	if err := json.Unmarshal(req.Data, &modeReq); err != nil {
		return NewErrorResponse("invalid setMode request")
	}

	if err := s.controller.SetMode(modeReq.Mode); err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.statusResponse()
}

func (s *Server) handleSetPosition(req *Request) *Response {
	var posReq SetPositionRequest
	if err := json.Unmarshal(req.Data, &posReq); err != nil {
		return NewErrorResponse("invalid setPosition request")
	}

	if err := s.controller.SetManualPosition(posReq.X, posReq.Z); err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.statusResponse()
}

func (s *Server) handleSetVolume(req *Request) *Response {
	var volReq SetVolumeRequest
	if err := json.Unmarshal(req.Data, &volReq); err != nil {
		return NewErrorResponse("invalid setVolume request")
	}

	if err := s.controller.SetVolume(volReq.Level); err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.statusResponse()
}

func (s *Server) handleGetPath(req *Request) *Response {
	var pathReq GetPathRequest
	if req.Data != nil {
		if err := json.Unmarshal(req.Data, &pathReq); err != nil {
			return NewErrorResponse("invalid getPath request")
		}
	}
	if pathReq.Points <= 0 {
		pathReq.Points = 64
	}

	snap := s.controller.Status()
	resp, err := NewSuccessResponse(PathResponse{
		Mode:   snap.Mode,
		Points: s.controller.Path(pathReq.Points),
	})
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) handleGetConfig() *Response {
	log.Printf("[CONFIG] Get config requested")
	cfg := s.configMgr.Get()

	resp, err := NewSuccessResponse(ConfigResponse{
		ConfigPath:     s.configMgr.GetPath(),
		SampleRate:     cfg.Audio.SampleRate,
		DefaultVolume:  cfg.Audio.DefaultVolume,
		HeightY:        cfg.Trajectory.HeightY,
		RangeMeters:    cfg.Trajectory.RangeMeters,
		FrontZ:         cfg.Trajectory.FrontZ,
		BackZ:          cfg.Trajectory.BackZ,
		LeftX:          cfg.Trajectory.LeftX,
		RightX:         cfg.Trajectory.RightX,
		LowY:           cfg.Trajectory.LowY,
		HighY:          cfg.Trajectory.HighY,
		OrbitRadius:    cfg.Trajectory.OrbitRadius,
		OrbitPeriodSec: cfg.Trajectory.OrbitPeriodSec,
		TickRateHz:     cfg.Session.TickRateHz,
	})
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) sendResponse(conn net.Conn, resp *Response) error {
	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	return err
}

func (s *Server) sendError(conn net.Conn, msg string) {
	s.sendResponse(conn, NewErrorResponse(msg))
}

// pushState fans a session snapshot out to every connected client.
func (s *Server) pushState(snap session.Snapshot) {
	s.mu.Lock()
	if len(s.clients) == 0 {
		s.mu.Unlock()
		return
	}
	conns := make([]net.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	msgBytes, err := NewPushMessage("state", statusFromSnapshot(snap))
	if err != nil {
		return
	}
	msgBytes = append(msgBytes, '\n')

	for _, conn := range conns {
		// Failed writes are cleaned up by the connection's read loop
		conn.Write(msgBytes)
	}
}

// Spectrum subscription handlers. Analysis only runs while at least one
// client is subscribed.

func (s *Server) handleSubscribeAudioData(conn net.Conn) *Response {
	s.audioSubsMu.Lock()
	wasEmpty := len(s.audioSubs) == 0
	s.audioSubs[conn] = true
	count := len(s.audioSubs)
	s.audioSubsMu.Unlock()

	if wasEmpty {
		s.controller.SetSpectrumCallback(s.pushAudioData)
	}

	log.Printf("[AUDIO] Client subscribed to audio data (total: %d)", count)

	resp, _ := NewSuccessResponse(map[string]bool{"subscribed": true})
	return resp
}

func (s *Server) handleUnsubscribeAudioData(conn net.Conn) *Response {
	s.dropAudioSubscriber(conn)

	resp, _ := NewSuccessResponse(map[string]bool{"subscribed": false})
	return resp
}

func (s *Server) dropAudioSubscriber(conn net.Conn) {
	s.audioSubsMu.Lock()
	if _, ok := s.audioSubs[conn]; !ok {
		s.audioSubsMu.Unlock()
		return
	}
	delete(s.audioSubs, conn)
	empty := len(s.audioSubs) == 0
	count := len(s.audioSubs)
	s.audioSubsMu.Unlock()

	if empty {
		s.controller.SetSpectrumCallback(nil)
	}

	log.Printf("[AUDIO] Client unsubscribed from audio data (remaining: %d)", count)
}

// pushAudioData is the analyzer callback, providing real-time push with
// no polling timer. It runs on the device pull goroutine, so it works
// only with the frame it was handed and never calls back into the
// playback side.
func (s *Server) pushAudioData(bandsU8 []uint8, levels [2]float64, position float64) {
	s.audioSubsMu.RLock()
	if len(s.audioSubs) == 0 {
		s.audioSubsMu.RUnlock()
		return
	}

	// Copy subscriber list to avoid holding lock during I/O
	subs := make([]net.Conn, 0, len(s.audioSubs))
	for conn := range s.audioSubs {
		subs = append(subs, conn)
	}
	s.audioSubsMu.RUnlock()

	// Convert []uint8 to []int for JSON
	bands := make([]int, len(bandsU8))
	for i, b := range bandsU8 {
		bands[i] = int(b)
	}

	msgBytes, err := NewPushMessage("audioData", AudioDataResponse{
		Bands:     bands,
		Levels:    levels,
		Position:  position,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	msgBytes = append(msgBytes, '\n')

	for _, conn := range subs {
		if _, err := conn.Write(msgBytes); err != nil {
			// Remove failed connection from subscribers
			s.dropAudioSubscriber(conn)
		}
	}
}
