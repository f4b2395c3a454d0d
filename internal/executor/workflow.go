// File: internal/executor/workflow.go
package executor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/browser/dom"
)

// runWorkflow executes steps in order and stops at the first failure. The
// results of the steps that ran are always returned.
func (e *Executor) runWorkflow(ctx context.Context, wf RunWorkflow) Result {
	res := Result{Kind: KindRunWorkflow, Target: wf.Name}
	if len(wf.Steps) == 0 {
		res.Hint = HintInvalid
		res.Did = "the workflow has no steps"
		return res
	}
	total := len(wf.Steps)

	for i, s := range wf.Steps {
		logger := e.logger.With(zap.String("workflow", wf.Name), zap.Int("step", i+1))
		if s.Action == nil {
			res.Steps = append(res.Steps, failed("", HintInvalid, "", "empty step"))
			res.Hint = HintInvalid
			res.Did = fmt.Sprintf("stopped at step %d of %d: empty step", i+1, total)
			return res
		}

		r := e.step(ctx, s.Action, true)
		res.Steps = append(res.Steps, r)
		if !r.OK {
			logger.Info("Workflow step failed, halting", zap.String("hint", string(r.Hint)))
			res.Hint = r.Hint
			res.Did = fmt.Sprintf("stopped at step %d of %d: %s", i+1, total, r.Did)
			return res
		}

		if s.Action.Kind() != KindNavigate && !s.WaitForLoad {
			continue
		}
		if err := e.WaitStable(ctx); err != nil && !errors.Is(err, dom.ErrUnstable) {
			res.Hint = HintFailed
			res.Did = fmt.Sprintf("stopped after step %d of %d: %v", i+1, total, err)
			return res
		}
	}

	res.OK = true
	if wf.Name != "" {
		res.Did = fmt.Sprintf("completed %s (%d steps)", wf.Name, total)
	} else {
		res.Did = fmt.Sprintf("completed %d steps", total)
	}
	return res
}
