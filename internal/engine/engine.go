// File: internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/executor"
	"github.com/xkilldash9x/voicepilot/internal/intent"
	"github.com/xkilldash9x/voicepilot/internal/pending"
	"github.com/xkilldash9x/voicepilot/internal/resolver"
	"github.com/xkilldash9x/voicepilot/internal/turn"
)

var (
	// ErrSessionNotFound is returned for unknown session ids and for
	// sessions that belong to another user.
	ErrSessionNotFound = errors.New("engine: session not found")
	// ErrSessionBusy is returned when a second audio channel tries to attach.
	ErrSessionBusy = errors.New("engine: session already has an audio channel")
	// ErrRestartRequired is returned when attaching to a session whose audio
	// channel dropped and that has not been restarted.
	ErrRestartRequired = errors.New("engine: session must be restarted first")
)

// Option customizes an Engine.
type Option func(*Engine)

// WithClock sets the clock handed to every turn coordinator.
func WithClock(clk turn.Clock) Option {
	return func(e *Engine) { e.clock = clk }
}

// Engine owns the live sessions. Each session has its own page, executor and
// turn coordinator; the pending-action queue is shared and keyed by user.
type Engine struct {
	cfg      config.Interface
	resolver *resolver.Resolver
	intent   intent.Source
	pending  *pending.Queue
	pages    PageFactory
	clock    turn.Clock
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// New assembles an engine. Every dependency is required.
func New(cfg config.Interface, src intent.Source, queue *pending.Queue, pages PageFactory, logger *zap.Logger, opts ...Option) (*Engine, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("config cannot be nil")
	case src == nil:
		return nil, errors.New("intent source cannot be nil")
	case queue == nil:
		return nil, errors.New("pending queue cannot be nil")
	case pages == nil:
		return nil, errors.New("page factory cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:      cfg,
		resolver: resolver.New(cfg.Resolver(), logger),
		intent:   src,
		pending:  queue,
		pages:    pages,
		clock:    turn.RealClock(),
		logger:   logger.Named("engine"),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Open starts a session for userID showing the start route. A nil sink
// leaves the session without an audio channel until Attach.
func (e *Engine) Open(ctx context.Context, userID string, sink Sink) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	page, err := e.pages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	id := uuid.New().String()
	logger := e.logger.With(zap.String("session_id", id), zap.String("user_id", userID))
	s := &Session{
		id:        id,
		userID:    userID,
		engine:    e,
		page:      page,
		exec:      executor.New(page, e.resolver, e.cfg.Executor(), logger),
		logger:    logger,
		createdAt: time.Now().UTC(),
		sink:      nopSink{},
		status:    StatusIdle,
	}
	s.coord = s.newCoordinator()
	if sink != nil {
		if err := s.Attach(sink); err != nil {
			s.shutdown(ctx, false)
			return nil, err
		}
	}

	e.mu.Lock()
	e.sessions[id] = s
	e.mu.Unlock()

	logger.Info("Session opened", zap.String("route", page.CurrentRoute()))
	return s, nil
}

// Get returns a session by id.
func (e *Engine) Get(id string) (*Session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Lookup returns a session only if it belongs to userID.
func (e *Engine) Lookup(id, userID string) (*Session, error) {
	s, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	if s.userID != userID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Sessions lists a user's sessions, oldest first.
func (e *Engine) Sessions(userID string) []*Session {
	e.mu.RLock()
	var out []*Session
	for _, s := range e.sessions {
		if s.userID == userID {
			out = append(out, s)
		}
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].createdAt.Before(out[j].createdAt) })
	return out
}

// Close ends a session: its timers and dispatch are cancelled, the user's
// pending action is cleared and the page is released.
func (e *Engine) Close(ctx context.Context, id string) error {
	s := e.remove(id)
	if s == nil {
		return ErrSessionNotFound
	}
	return s.shutdown(ctx, true)
}

// Restart re-arms a session after its audio channel dropped.
func (e *Engine) Restart(id string) error {
	s, err := e.Get(id)
	if err != nil {
		return err
	}
	s.Restart()
	return nil
}

// Logout ends every session of the user and tells the intent source to
// forget the conversation.
func (e *Engine) Logout(ctx context.Context, userID string) error {
	var errs []error
	for _, s := range e.Sessions(userID) {
		e.remove(s.id)
		if err := s.shutdown(ctx, false); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.pending.Clear(ctx, userID); err != nil {
		errs = append(errs, err)
	}
	if err := e.intent.Invalidate(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("failed to invalidate intent memory: %w", err))
	}
	e.logger.Info("User logged out", zap.String("user_id", userID))
	return errors.Join(errs...)
}

// Shutdown closes every session. Pending actions are kept so a deferral can
// survive a restart when the store is persistent.
func (e *Engine) Shutdown(ctx context.Context) {
	e.mu.Lock()
	all := make([]*Session, 0, len(e.sessions))
	for id, s := range e.sessions {
		all = append(all, s)
		delete(e.sessions, id)
	}
	e.mu.Unlock()

	for _, s := range all {
		if err := s.shutdown(ctx, false); err != nil {
			e.logger.Warn("Error closing session during shutdown", zap.String("session_id", s.id), zap.Error(err))
		}
	}
	e.logger.Info("Engine stopped", zap.Int("sessions", len(all)))
}

func (e *Engine) remove(id string) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil
	}
	delete(e.sessions, id)
	return s
}
