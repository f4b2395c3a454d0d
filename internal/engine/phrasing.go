// File: internal/engine/phrasing.go
package engine

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xkilldash9x/voicepilot/internal/executor"
)

// Phrase turns an outcome into the sentence spoken back to the user. The
// agent's own reply wins when the action succeeded; failures are always
// described by what actually happened on the page.
func Phrase(out Outcome, agentReply string, notifySuperseded bool) string {
	var prefix string
	if notifySuperseded && out.Superseded != "" {
		prefix = fmt.Sprintf("I dropped the earlier %s request. ", strings.ReplaceAll(string(out.Superseded), "_", " "))
	}

	res := out.Result
	if out.Resumed != nil {
		res = *out.Resumed
	} else if out.Deferred {
		return prefix + fmt.Sprintf("I opened %s but couldn't finish that there.", out.Route)
	}

	if res.OK {
		if agentReply != "" {
			return prefix + agentReply
		}
		return prefix + sentence(res.Did)
	}
	return prefix + failure(res)
}

func failure(res executor.Result) string {
	if res.Kind == executor.KindRunWorkflow && len(res.Steps) > 0 {
		return "I had to stop: " + res.Did + "."
	}
	target := res.Target
	if target == "" {
		target = "that"
	}
	switch res.Hint {
	case executor.HintNotFound:
		return fmt.Sprintf("I couldn't find %s on this page.", target)
	case executor.HintDisabled:
		return sentence(fmt.Sprintf("%s is disabled right now", target))
	case executor.HintDuplicate:
		// A repeated tool call; the first one already answered.
		return ""
	case executor.HintInvalid:
		return "I can't do that here."
	}
	return "Sorry, that didn't work."
}

// sentence capitalizes s and ends it with a period.
func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r, n := utf8.DecodeRuneInString(s)
	s = string(unicode.ToUpper(r)) + s[n:]
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}
