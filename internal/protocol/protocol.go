// Package protocol defines the messages of the pose stream.
package protocol

import (
	"encoding/json"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// TypeHello is sent by the server right after a client connects
	TypeHello MessageType = "hello"

	// TypePose carries one PoseFrame
	TypePose MessageType = "pose"

	// TypeStatus carries a pipeline snapshot, sent on request
	TypeStatus MessageType = "status"

	// TypeStatusRequest is sent by a client to request a status message
	TypeStatusRequest MessageType = "status_req"

	// TypeResync is sent by a client to request a device rescan
	TypeResync MessageType = "resync"

	// TypeMode is sent by a client to request a mode switch
	TypeMode MessageType = "mode"

	// TypeError reports a rejected client message
	TypeError MessageType = "error"
)

// Message is the generic container for all WebSocket messages
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// HelloPayload is the payload for TypeHello
type HelloPayload struct {
	Session string   `json:"session"` // unique per connection
	Server  string   `json:"server"`  // unique per server process
	Version string   `json:"version"`
	Mode    string   `json:"mode"`
	Params  []string `json:"params"` // parameter order of every pose
}

// PosePayload is the payload for TypePose. Params is the ordered JSON object
// of the frame, kept raw so its key order survives decoding.
type PosePayload struct {
	Seq    uint64          `json:"seq"`
	TimeMS int64           `json:"time_ms"`
	Params json.RawMessage `json:"params"`
}

// ModePayload is the payload for TypeMode
type ModePayload struct {
	Name string `json:"name"`
}

// ErrorPayload is the payload for TypeError
type ErrorPayload struct {
	Message string `json:"message"`
}

// DecodePayload converts the generic payload of a decoded Message into v.
func DecodePayload(msg Message, v interface{}) error {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// DecodeParams decodes the params of a pose into a map.
func (p PosePayload) DecodeParams() (map[string]float64, error) {
	out := make(map[string]float64)
	if err := json.Unmarshal(p.Params, &out); err != nil {
		return nil, err
	}
	return out, nil
}
