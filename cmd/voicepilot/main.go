// File: cmd/voicepilot/main.go
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/xkilldash9x/voicepilot/cmd"
	"github.com/xkilldash9x/voicepilot/internal/observability"
)

const crashLogFile = "voicepilot-crash.log"

// Swapped out by tests.
var (
	osWriteFile  = os.WriteFile
	osExit       = os.Exit
	abortRun     = cmd.Abort
	abortTimeout = 5 * time.Second
	now          = time.Now
)

func main() {
	defer recoverCrash()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if code := exitCode(cmd.Execute(ctx)); code != 0 {
		osExit(code)
	}
}

// exitCode treats an interrupted run as a clean stop.
func exitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	return 1
}

// recoverCrash closes whatever sessions are still live, then leaves a crash
// report next to the binary and exits with status 2.
func recoverCrash() {
	r := recover()
	if r == nil {
		return
	}
	stack := debug.Stack()

	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	closed := abortRun(ctx)
	cancel()
	observability.Sync()

	report := crashReport(r, stack, closed)
	if err := osWriteFile(crashLogFile, report, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "voicepilot crashed and %s could not be written (%v)\n%s", crashLogFile, err, report)
	} else {
		fmt.Fprintf(os.Stderr, "voicepilot crashed; report written to %s\n", crashLogFile)
	}
	osExit(2)
}

func crashReport(r any, stack []byte, shutdowns int) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "voicepilot %s crashed at %s\n", cmd.Version, now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "command: %s\n", strings.Join(os.Args[1:], " "))
	fmt.Fprintf(&b, "engine shutdowns run: %d\n", shutdowns)
	fmt.Fprintf(&b, "panic: %v\n\n%s", r, stack)
	return b.Bytes()
}
