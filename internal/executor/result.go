// File: internal/executor/result.go
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/voicepilot/internal/browser/dom"
)

// Hint classifies why an action did not succeed.
type Hint string

const (
	HintDisabled  Hint = "disabled"
	HintNotFound  Hint = "not_found"
	HintDuplicate Hint = "duplicate"
	HintInvalid   Hint = "invalid"
	HintFailed    Hint = "failed"
)

// Result reports what an action did. Recoverable outcomes are results, not
// errors, so callers can phrase them for the user.
type Result struct {
	OK     bool     `json:"ok"`
	Kind   Kind     `json:"kind"`
	Did    string   `json:"did"`
	Hint   Hint     `json:"hint,omitempty"`
	Target string   `json:"target,omitempty"`
	Steps  []Result `json:"steps,omitempty"`
}

func done(kind Kind, target, format string, args ...any) Result {
	return Result{OK: true, Kind: kind, Target: target, Did: fmt.Sprintf(format, args...)}
}

func failed(kind Kind, hint Hint, target, format string, args ...any) Result {
	return Result{Kind: kind, Hint: hint, Target: target, Did: fmt.Sprintf(format, args...)}
}

// fromError classifies an error raised by a page primitive.
func fromError(kind Kind, target string, err error) Result {
	switch {
	case errors.Is(err, dom.ErrDisabled):
		return failed(kind, HintDisabled, target, "%s is disabled", target)
	case errors.Is(err, dom.ErrElementNotFound), errors.Is(err, dom.ErrOptionNotFound):
		return failed(kind, HintNotFound, target, "%s is no longer on the page", target)
	case errors.Is(err, dom.ErrNotEditable):
		return failed(kind, HintInvalid, target, "%s does not accept text", target)
	case errors.Is(err, context.DeadlineExceeded):
		return failed(kind, HintFailed, target, "timed out on %s", target)
	default:
		return failed(kind, HintFailed, target, "failed on %s: %v", target, err)
	}
}
