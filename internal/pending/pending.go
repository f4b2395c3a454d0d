// File: internal/pending/pending.go
package pending

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/executor"
)

// ErrInvalid is returned for a deferral that is missing its user, action or
// required route.
var ErrInvalid = errors.New("pending: invalid deferral")

// PendingAction is an action waiting for its page to be rendered.
type PendingAction struct {
	UserID        string          `json:"userId"`
	Action        executor.Action `json:"-"`
	RequiredRoute string          `json:"requiredRoute"`
	OriginRoute   string          `json:"originRoute"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Store holds at most one pending action per user.
type Store interface {
	// Put replaces the user's slot and returns what was there.
	Put(ctx context.Context, p PendingAction) (*PendingAction, error)
	// Take atomically removes and returns the user's slot, or nil.
	Take(ctx context.Context, userID string) (*PendingAction, error)
	// Restore puts p back only if the slot is still empty.
	Restore(ctx context.Context, p PendingAction) error
	// Delete empties the user's slot.
	Delete(ctx context.Context, userID string) error
}

// Option customizes a Queue.
type Option func(*Queue)

// WithNow replaces the wall clock used for TTL checks.
func WithNow(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Queue defers actions across a navigation and hands each one back exactly
// once, on the page it was waiting for.
type Queue struct {
	store  Store
	cfg    config.PendingConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewQueue wraps a store.
func NewQueue(store Store, cfg config.PendingConfig, logger *zap.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.Named("pending"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Defer records action for userID until requiredRoute is reached. Any action
// the user had waiting is superseded and returned.
func (q *Queue) Defer(ctx context.Context, userID string, action executor.Action, requiredRoute, originRoute string) (*PendingAction, error) {
	if userID == "" || action == nil || strings.TrimSpace(requiredRoute) == "" {
		return nil, ErrInvalid
	}
	p := PendingAction{
		UserID:        userID,
		Action:        action,
		RequiredRoute: NormalizeRoute(requiredRoute),
		OriginRoute:   NormalizeRoute(originRoute),
		CreatedAt:     q.now().UTC(),
	}
	prev, err := q.store.Put(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to defer %s: %w", action.Kind(), err)
	}

	q.logger.Info("Deferred action until navigation completes",
		zap.String("user_id", userID),
		zap.String("kind", string(action.Kind())),
		zap.String("required_route", p.RequiredRoute))

	if prev == nil || q.expired(*prev) {
		return nil, nil
	}
	q.logger.Info("Pending action superseded",
		zap.String("user_id", userID),
		zap.String("kind", string(action.Kind())),
		zap.String("superseded_kind", string(prev.Action.Kind())),
		zap.String("superseded_route", prev.RequiredRoute))
	return prev, nil
}

// CheckAndDrain is called once the page at currentRoute has settled. It
// returns the user's pending action when currentRoute is the one it was
// waiting for. An action is kept while the user is still on its origin route
// and discarded anywhere else.
func (q *Queue) CheckAndDrain(ctx context.Context, userID, currentRoute string) (executor.Action, error) {
	p, err := q.store.Take(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending action: %w", err)
	}
	if p == nil {
		return nil, nil
	}
	logger := q.logger.With(
		zap.String("user_id", userID),
		zap.String("kind", string(p.Action.Kind())),
		zap.String("required_route", p.RequiredRoute),
		zap.String("current_route", currentRoute))

	switch current := NormalizeRoute(currentRoute); {
	case q.expired(*p):
		logger.Info("Discarded expired pending action", zap.Time("created_at", p.CreatedAt))
		return nil, nil
	case current == p.RequiredRoute:
		logger.Info("Draining pending action")
		return p.Action, nil
	case p.OriginRoute != "" && current == p.OriginRoute:
		if err := q.store.Restore(ctx, *p); err != nil {
			return nil, fmt.Errorf("failed to keep pending action: %w", err)
		}
		logger.Debug("Navigation not observed yet, keeping pending action")
		return nil, nil
	default:
		logger.Info("Discarded stale pending action")
		return nil, nil
	}
}

// Clear drops whatever the user had waiting.
func (q *Queue) Clear(ctx context.Context, userID string) error {
	if err := q.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear pending action: %w", err)
	}
	return nil
}

// NotifySuperseded reports whether users are told about superseded actions.
func (q *Queue) NotifySuperseded() bool { return q.cfg.NotifySuperseded }

func (q *Queue) expired(p PendingAction) bool {
	return q.cfg.TTL > 0 && q.now().Sub(p.CreatedAt) > q.cfg.TTL
}

// NormalizeRoute reduces a route or URL to a comparable path: lowercase,
// without query, fragment or trailing slash.
func NormalizeRoute(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return ""
	}
	if u, err := url.Parse(route); err == nil {
		route = u.Path
	} else if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	route = strings.ToLower(route)
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	if len(route) > 1 {
		route = strings.TrimRight(route, "/")
		if route == "" {
			route = "/"
		}
	}
	return route
}
