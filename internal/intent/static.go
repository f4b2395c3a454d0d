// File: internal/intent/static.go
package intent

import (
	"context"
	"strings"
	"sync"
)

// Static answers from a fixed table keyed by transcript, for tests and
// offline runs. Unknown transcripts get Fallback.
type Static struct {
	Responses map[string]Response
	Fallback  Response

	mu          sync.Mutex
	requests    []Request
	invalidated []string
}

var _ Source = (*Static)(nil)

func (s *Static) Resolve(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(req.FinalizedTranscript))
	for k, resp := range s.Responses {
		if strings.ToLower(k) == key {
			return resp, nil
		}
	}
	return s.Fallback, nil
}

func (s *Static) Invalidate(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, userID)
	return nil
}

// Requests returns every request seen so far.
func (s *Static) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Invalidated returns the users invalidated so far.
func (s *Static) Invalidated() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.invalidated...)
}
