// File: internal/intent/intent.go
package intent

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/voicepilot/internal/executor"
	"github.com/xkilldash9x/voicepilot/internal/uistate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrUnavailable means the intent source could not be reached or kept
	// failing after retries.
	ErrUnavailable = errors.New("intent source unavailable")
	// ErrRejected means the intent source refused the request outright.
	ErrRejected = errors.New("intent source rejected the request")
)

// Request is one finalized utterance plus the page it was spoken on.
type Request struct {
	FinalizedTranscript string            `json:"finalizedTranscript"`
	UIState             *uistate.Snapshot `json:"uiState,omitempty"`
	SessionID           string            `json:"sessionId"`
	UserID              string            `json:"userId"`
}

// Response is what the intent source decided. Action is nil when the turn
// only needs a spoken answer.
type Response struct {
	Action         executor.Action
	SpokenResponse string
	ToolUsed       string
}

type wireResponse struct {
	Action         jsoniter.RawMessage `json:"action,omitempty"`
	SpokenResponse string              `json:"spokenResponse"`
	ToolUsed       string              `json:"toolUsed,omitempty"`
}

// MarshalJSON writes the action as its tagged envelope.
func (r Response) MarshalJSON() ([]byte, error) {
	w := wireResponse{SpokenResponse: r.SpokenResponse, ToolUsed: r.ToolUsed}
	if r.Action != nil {
		data, err := executor.Marshal(r.Action)
		if err != nil {
			return nil, err
		}
		w.Action = data
	}
	return json.Marshal(w)
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Response{SpokenResponse: w.SpokenResponse, ToolUsed: w.ToolUsed}
	if len(w.Action) == 0 || string(w.Action) == "null" {
		return nil
	}
	a, err := executor.Unmarshal(w.Action)
	if err != nil {
		return fmt.Errorf("intent response action: %w", err)
	}
	r.Action = a
	return nil
}

// Source turns transcripts into actions. It is the conversational backend
// the engine talks to; it owns its own memory of each user.
type Source interface {
	Resolve(ctx context.Context, req Request) (Response, error)
	// Invalidate drops whatever the source remembers about userID.
	Invalidate(ctx context.Context, userID string) error
}
