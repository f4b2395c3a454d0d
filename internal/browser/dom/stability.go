// File: internal/browser/dom/stability.go
package dom

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnstable is returned by WaitStable when the tree kept changing until the max wait elapsed.
var ErrUnstable = errors.New("dom: element tree did not settle")

// MutationCounter is the part of Page the stability gate needs.
type MutationCounter interface {
	Mutations(ctx context.Context) (uint64, error)
}

const (
	minPollInterval = 10 * time.Millisecond
	maxPollInterval = 100 * time.Millisecond
)

// WaitStable blocks until the mutation counter has not moved for the quiet
// period, or returns ErrUnstable once maxWait has elapsed without that.
func WaitStable(ctx context.Context, m MutationCounter, quiet, maxWait time.Duration) error {
	last, err := m.Mutations(ctx)
	if err != nil {
		return fmt.Errorf("failed to read mutation counter: %w", err)
	}

	poll := quiet / 5
	if poll < minPollInterval {
		poll = minPollInterval
	} else if poll > maxPollInterval {
		poll = maxPollInterval
	}

	settled := time.NewTimer(quiet)
	defer settled.Stop()
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrUnstable
		case <-settled.C:
			return nil
		case <-ticker.C:
			n, err := m.Mutations(ctx)
			if err != nil {
				return fmt.Errorf("failed to read mutation counter: %w", err)
			}
			if n != last {
				// Tree moved: the quiet period starts over.
				last = n
				settled.Reset(quiet)
			}
		}
	}
}
