// File: cmd/abort.go
package cmd

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/observability"
)

type abortHook struct {
	id int
	fn func(context.Context)
}

// abortHooks release what a crashing process would otherwise leave behind,
// chiefly live sessions holding remote browser tabs.
var abortHooks struct {
	mu    sync.Mutex
	next  int
	hooks []abortHook
}

// onAbort registers fn to run from Abort. The returned func unregisters it;
// callers invoke it on a normal return only, since deferred calls also run
// while a panic unwinds.
func onAbort(fn func(context.Context)) (remove func()) {
	abortHooks.mu.Lock()
	defer abortHooks.mu.Unlock()
	id := abortHooks.next
	abortHooks.next++
	abortHooks.hooks = append(abortHooks.hooks, abortHook{id: id, fn: fn})
	return func() {
		abortHooks.mu.Lock()
		defer abortHooks.mu.Unlock()
		abortHooks.hooks = slices.DeleteFunc(abortHooks.hooks, func(h abortHook) bool { return h.id == id })
	}
}

// Abort runs and unregisters every hook, newest first, and reports how many
// ran to completion. It is called from the crash handler, so a hook that
// panics is logged and skipped.
func Abort(ctx context.Context) int {
	abortHooks.mu.Lock()
	hooks := abortHooks.hooks
	abortHooks.hooks = nil
	abortHooks.mu.Unlock()

	done := 0
	for i := len(hooks) - 1; i >= 0; i-- {
		if runHook(ctx, hooks[i].fn) {
			done++
		}
	}
	return done
}

func runHook(ctx context.Context, fn func(context.Context)) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			observability.GetLogger().Error("Abort hook panicked", zap.Any("panic", r))
			ok = false
		}
	}()
	fn(ctx)
	return true
}
