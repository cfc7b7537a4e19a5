// Package ipc handles inter-process communication between the daemon and clients.
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/orbitaudio/spatiald/internal/spatial"
)

// CommandType represents the type of command
type CommandType string

const (
	CmdStatus      CommandType = "status"
	CmdLoad        CommandType = "load"
	CmdPlay        CommandType = "play"
	CmdStop        CommandType = "stop"
	CmdReset       CommandType = "reset"
	CmdSetMode     CommandType = "setMode"
	CmdSetPosition CommandType = "setPosition"
	CmdSetVolume   CommandType = "setVolume"
	CmdGetPath     CommandType = "getPath"
	CmdGetConfig   CommandType = "getConfig"

	// Spectrum/level streaming
	CmdSubscribeAudioData   CommandType = "subscribeAudioData"
	CmdUnsubscribeAudioData CommandType = "unsubscribeAudioData"
)

// PushMessage represents a server-initiated message (no request needed)
type PushMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Request represents a client request
type Request struct {
	Cmd  CommandType     `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response represents a server response
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// LoadRequest is the data for a load command
type LoadRequest struct {
	Path string `json:"path"`
}

// SetModeRequest is the data for a setMode command
type SetModeRequest struct {
	Mode string `json:"mode"` // "manual", "frontback", "leftright", "bottomtop", "orbit", "parabola"
}

// SetPositionRequest is the data for a setPosition command. The source
// stays on the session's height plane; only the planar offset moves.
type SetPositionRequest struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// SetVolumeRequest is the data for a setVolume command
type SetVolumeRequest struct {
	Level float64 `json:"level"` // 0.0 - 1.0
}

// GetPathRequest is the data for a getPath command
type GetPathRequest struct {
	Points int `json:"points,omitempty"` // samples along the path, default 64
}

// StatusResponse is the session snapshot returned by most commands and
// carried by "state" push messages
type StatusResponse struct {
	State      string           `json:"state"`
	IsPlaying  bool             `json:"isPlaying"`
	Progress   float64          `json:"progress"`
	Duration   float64          `json:"duration"` // seconds
	Position   spatial.Position `json:"position"`
	Mode       string           `json:"mode"`
	SourcePath string           `json:"sourcePath,omitempty"`
	Volume     float64          `json:"volume"`
	Status     string           `json:"status,omitempty"`
}

// PathResponse is the response to a getPath command
type PathResponse struct {
	Mode   string             `json:"mode"`
	Points []spatial.Position `json:"points"`
}

// ConfigResponse is the response to a getConfig command
type ConfigResponse struct {
	ConfigPath     string  `json:"configPath"`
	SampleRate     int     `json:"sampleRate"`
	DefaultVolume  float64 `json:"defaultVolume"`
	HeightY        float64 `json:"heightY"`
	RangeMeters    float64 `json:"rangeMeters"`
	FrontZ         float64 `json:"frontZ"`
	BackZ          float64 `json:"backZ"`
	LeftX          float64 `json:"leftX"`
	RightX         float64 `json:"rightX"`
	LowY           float64 `json:"lowY"`
	HighY          float64 `json:"highY"`
	OrbitRadius    float64 `json:"orbitRadius"`
	OrbitPeriodSec float64 `json:"orbitPeriodSec"`
	TickRateHz     int     `json:"tickRateHz"`
}

// AudioDataResponse contains real-time spectrum data for visualization
type AudioDataResponse struct {
	// Bands contains frequency band magnitudes (0-255), logarithmically
	// distributed from 20Hz up to Nyquist.
	// Note: []int instead of []uint8 because Go's json package
	// base64-encodes []byte/[]uint8
	Bands []int `json:"bands"`
	// Levels holds the per-channel RMS levels (0-1)
	Levels [2]float64 `json:"levels"`
	// Position is the rendered playback position in seconds when these
	// samples were analyzed, so a client can sync its drawing
	Position float64 `json:"position"`
	// Timestamp is when the frame was captured (Unix ms)
	Timestamp int64 `json:"timestamp"`
}

// EncodeRequest encodes a request to JSON
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest decodes a request from JSON
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response to JSON
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse decodes a response from JSON
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data interface{}) (*Response, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Response{
		Success: true,
		Data:    rawData,
	}, nil
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// NewPushMessage creates a push message for streaming data
func NewPushMessage(msgType string, data interface{}) ([]byte, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	msg := PushMessage{
		Type: msgType,
		Data: rawData,
	}
	return json.Marshal(msg)
}
