// File: internal/engine/session.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/browser/dom"
	"github.com/xkilldash9x/voicepilot/internal/channel"
	"github.com/xkilldash9x/voicepilot/internal/executor"
	"github.com/xkilldash9x/voicepilot/internal/intent"
	"github.com/xkilldash9x/voicepilot/internal/pending"
	"github.com/xkilldash9x/voicepilot/internal/turn"
	"github.com/xkilldash9x/voicepilot/internal/uistate"
)

// Session statuses as reported to clients.
const (
	StatusConnected    = channel.StatusConnected
	StatusDisconnected = channel.StatusDisconnected
	StatusProcessing   = channel.StatusProcessing
	StatusIdle         = channel.StatusIdle
)

// Sink is the audio channel of a session.
type Sink interface {
	Speak(text string) error
	Display(text string) error
	Status(status string) error
	Send(f channel.Outbound) error
}

type nopSink struct{}

func (nopSink) Speak(string) error          { return nil }
func (nopSink) Display(string) error        { return nil }
func (nopSink) Status(string) error         { return nil }
func (nopSink) Send(channel.Outbound) error { return nil }

// Outcome is everything that happened for one action.
type Outcome struct {
	Result executor.Result `json:"result"`
	// Deferred is set when the action was parked until its route rendered.
	Deferred bool   `json:"deferred,omitempty"`
	Route    string `json:"route,omitempty"`
	// Superseded names the kind of an older deferred action this one replaced.
	Superseded executor.Kind `json:"superseded,omitempty"`
	// Resumed is the result of a pending action drained after a navigation.
	Resumed  *executor.Result  `json:"resumed,omitempty"`
	Snapshot *uistate.Snapshot `json:"snapshot,omitempty"`
}

// Session is one user's live conversation with one page.
type Session struct {
	id        string
	userID    string
	engine    *Engine
	page      Page
	exec      *executor.Executor
	logger    *zap.Logger
	createdAt time.Time

	// run serializes everything that touches the page.
	run sync.Mutex

	mu       sync.Mutex
	coord    *turn.Coordinator
	sink     Sink
	attached bool
	status   string
	closed   bool
}

var _ channel.Handler = (*Session)(nil)

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

// Route is the route the page currently shows.
func (s *Session) Route() string { return s.page.CurrentRoute() }

// Status reports the session status.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// TurnState reports the state of the open conversation turn.
func (s *Session) TurnState() turn.State {
	s.mu.Lock()
	coord := s.coord
	s.mu.Unlock()
	return coord.State()
}

func (s *Session) newCoordinator() *turn.Coordinator {
	return turn.New(s.engine.cfg.Turn(), turn.DispatchFunc(s.dispatch), s, s.logger, turn.WithClock(s.engine.clock))
}

// Attach binds an audio channel to the session.
func (s *Session) Attach(sink Sink) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrSessionNotFound
	case s.attached:
		s.mu.Unlock()
		return ErrSessionBusy
	case s.status == StatusDisconnected:
		s.mu.Unlock()
		return ErrRestartRequired
	}
	s.sink = sink
	s.attached = true
	s.status = StatusConnected
	s.mu.Unlock()

	s.logger.Info("Audio channel attached")
	return sink.Status(StatusConnected)
}

// Detach records that the audio channel went away. The conversation is
// stopped and stays stopped until Restart; there is no automatic reconnect.
func (s *Session) Detach(cause error) {
	s.mu.Lock()
	if !s.attached {
		s.mu.Unlock()
		return
	}
	s.sink = nopSink{}
	s.attached = false
	coord := s.coord
	if cause != nil {
		s.status = StatusDisconnected
	} else {
		s.status = StatusIdle
	}
	s.mu.Unlock()

	coord.Stop()
	if cause != nil {
		s.logger.Warn("Audio channel lost", zap.Error(cause))
	} else {
		s.logger.Info("Audio channel closed")
	}
}

// Restart replaces the conversation with a fresh one so a new audio channel
// can attach.
func (s *Session) Restart() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	old := s.coord
	s.coord = s.newCoordinator()
	if s.status == StatusDisconnected {
		s.status = StatusIdle
	}
	s.mu.Unlock()

	old.Stop()
	s.logger.Info("Session restarted")
}

// HandleFrame routes an inbound frame to the conversation.
func (s *Session) HandleFrame(f channel.Inbound) {
	s.mu.Lock()
	coord := s.coord
	s.mu.Unlock()

	switch f.Source {
	case channel.SourceUser:
		coord.OnUserFragment(f.Message)
	case channel.SourceAgent:
		coord.OnAgentUtterance(f.Message)
	}
}

// Speak and Display make the session the coordinator's sink, so the channel
// can be swapped without touching the coordinator.
func (s *Session) Speak(text string) error   { return s.currentSink().Speak(text) }
func (s *Session) Display(text string) error { return s.currentSink().Display(text) }

func (s *Session) currentSink() Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink
}

func (s *Session) setStatus(status string) {
	s.mu.Lock()
	if !s.attached || s.closed {
		s.mu.Unlock()
		return
	}
	s.status = status
	sink := s.sink
	s.mu.Unlock()
	if err := sink.Status(status); err != nil {
		s.logger.Debug("Failed to send status", zap.Error(err))
	}
}

// dispatch is the coordinator's view of the session: one finalized turn in,
// one spoken reply out.
func (s *Session) dispatch(ctx context.Context, t turn.Turn) (turn.Reply, error) {
	s.setStatus(StatusProcessing)
	defer s.setStatus(StatusIdle)

	req := intent.Request{FinalizedTranscript: t.FinalizedTranscript, SessionID: s.id, UserID: s.userID}
	if snap, err := s.Snapshot(ctx); err != nil {
		s.logger.Warn("Failed to capture UI state for intent request", zap.Error(err))
	} else {
		req.UIState = &snap
	}

	resp, err := s.engine.intent.Resolve(ctx, req)
	if err != nil {
		return turn.Reply{}, fmt.Errorf("intent resolution failed: %w", err)
	}
	if resp.Action == nil {
		return turn.Reply{Spoken: resp.SpokenResponse}, nil
	}

	out := s.Perform(ctx, resp.Action)
	return turn.Reply{Spoken: Phrase(out, resp.SpokenResponse, s.engine.pending.NotifySuperseded())}, nil
}

// Perform executes an action. When the target is missing and the action
// names a different route, the action is deferred, the route is opened and
// the action runs there once the page settles.
func (s *Session) Perform(ctx context.Context, a executor.Action) Outcome {
	s.run.Lock()
	defer s.run.Unlock()

	before := s.page.CurrentRoute()
	out := Outcome{Result: s.exec.Execute(ctx, a)}

	if !out.Result.OK && out.Result.Hint == executor.HintNotFound {
		route := executor.RouteHintOf(a)
		if route != "" && pending.NormalizeRoute(route) != pending.NormalizeRoute(before) {
			s.deferAndNavigate(ctx, a, route, before, &out)
		}
	}
	if !out.Deferred && pending.NormalizeRoute(s.page.CurrentRoute()) != pending.NormalizeRoute(before) {
		// The action itself moved to another page.
		resumed, err := s.mounted(ctx)
		if err != nil {
			s.logger.Warn("Failed to check pending action after navigation", zap.Error(err))
		}
		out.Resumed = resumed
	}

	if snap, err := s.snapshotLocked(ctx); err == nil {
		out.Snapshot = &snap
	}
	s.publish(out)
	return out
}

func (s *Session) deferAndNavigate(ctx context.Context, a executor.Action, route, origin string, out *Outcome) {
	superseded, err := s.engine.pending.Defer(ctx, s.userID, a, route, origin)
	if err != nil {
		s.logger.Warn("Failed to defer action", zap.Error(err))
		return
	}
	out.Deferred = true
	out.Route = route
	if superseded != nil {
		out.Superseded = superseded.Action.Kind()
	}

	nav := s.exec.Execute(ctx, executor.Navigate{Route: route})
	if !nav.OK {
		if err := s.engine.pending.Clear(ctx, s.userID); err != nil {
			s.logger.Warn("Failed to clear pending action", zap.Error(err))
		}
		out.Deferred = false
		return
	}

	resumed, err := s.mounted(ctx)
	if err != nil {
		s.logger.Warn("Failed to resume deferred action", zap.Error(err))
	}
	out.Resumed = resumed
}

// PageMounted is called when the host application reports a new view. Any
// action waiting for this route runs now.
func (s *Session) PageMounted(ctx context.Context) (*executor.Result, error) {
	s.run.Lock()
	defer s.run.Unlock()
	res, err := s.mounted(ctx)
	if res != nil {
		out := Outcome{Result: *res}
		if snap, err := s.snapshotLocked(ctx); err == nil {
			out.Snapshot = &snap
		}
		s.publish(out)
	}
	return res, err
}

func (s *Session) mounted(ctx context.Context) (*executor.Result, error) {
	if err := s.exec.WaitStable(ctx); err != nil && !errors.Is(err, dom.ErrUnstable) {
		return nil, err
	}
	a, err := s.engine.pending.CheckAndDrain(ctx, s.userID, s.page.CurrentRoute())
	if err != nil || a == nil {
		return nil, err
	}
	res := s.exec.Execute(ctx, a)
	return &res, nil
}

// Snapshot captures the UI state of the page.
func (s *Session) Snapshot(ctx context.Context) (uistate.Snapshot, error) {
	s.run.Lock()
	defer s.run.Unlock()
	return s.snapshotLocked(ctx)
}

func (s *Session) snapshotLocked(ctx context.Context) (uistate.Snapshot, error) {
	return uistate.Capture(ctx, s.page)
}

func (s *Session) publish(out Outcome) {
	res := out.Result
	if out.Resumed != nil {
		res = *out.Resumed
	}
	if err := s.currentSink().Send(channel.Outbound{Type: channel.FrameResult, Result: &res, Snapshot: out.Snapshot}); err != nil {
		s.logger.Debug("Failed to publish result", zap.Error(err))
	}
}

// shutdown stops the conversation and releases the page.
func (s *Session) shutdown(ctx context.Context, clearPending bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	coord := s.coord
	sink := s.sink
	attached := s.attached
	s.sink = nopSink{}
	s.attached = false
	s.status = StatusDisconnected
	s.mu.Unlock()

	coord.Stop()
	if attached {
		_ = sink.Status(StatusDisconnected)
	}

	var err error
	if clearPending {
		err = s.engine.pending.Clear(ctx, s.userID)
	}

	s.run.Lock()
	s.page.Close()
	s.run.Unlock()
	s.logger.Info("Session closed")
	return err
}
