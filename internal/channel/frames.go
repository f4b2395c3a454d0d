// File: internal/channel/frames.go
package channel

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/voicepilot/internal/executor"
	"github.com/xkilldash9x/voicepilot/internal/uistate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Source says who produced an inbound utterance.
type Source string

const (
	SourceUser  Source = "user"
	SourceAgent Source = "agent"
)

// Inbound is one transcript fragment or agent utterance from the voice client.
type Inbound struct {
	Source  Source `json:"source"`
	Message string `json:"message"`
}

// FrameType tags outbound frames.
type FrameType string

const (
	FrameSpeak   FrameType = "speak"
	FrameDisplay FrameType = "display"
	FrameStatus  FrameType = "status"
	FrameResult  FrameType = "result"
)

// Status values carried by status frames.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusProcessing   = "processing"
	StatusIdle         = "idle"
)

// Outbound is a frame sent to the voice client.
type Outbound struct {
	Type      FrameType         `json:"type"`
	SessionID string            `json:"sessionId,omitempty"`
	Text      string            `json:"text,omitempty"`
	Status    string            `json:"status,omitempty"`
	Result    *executor.Result  `json:"result,omitempty"`
	Snapshot  *uistate.Snapshot `json:"snapshot,omitempty"`
}
