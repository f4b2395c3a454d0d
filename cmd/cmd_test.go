// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/auth"
	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/executor"
	"github.com/xkilldash9x/voicepilot/internal/intent"
	"github.com/xkilldash9x/voicepilot/internal/resolver"
	"github.com/xkilldash9x/voicepilot/internal/uistate"
)

const testPage = `<html><body>
<div role="tablist">
  <button role="tab" voice-id="tab-courses" aria-selected="false">Courses</button>
  <button role="tab" voice-id="tab-create" aria-selected="true">Create</button>
</div>
<label for="title">Course title</label><input id="title">
<button voice-id="save-draft">Save draft</button>
</body></html>`

// executeCommand runs a fresh command tree and captures its output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// Keep a config.yaml in the working directory from leaking in.
	t.Chdir(t.TempDir())

	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "voicepilot "+Version+"\n", out)

	out, err = executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "voicepilot version "+Version)
}

func TestArgumentValidation(t *testing.T) {
	for _, args := range [][]string{
		{"resolve"},
		{"exec"},
		{"token"},
		{"snapshot", "extra"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, err := executeCommand(t, args...)
			assert.Error(t, err)
		})
	}
}

func TestResolveCommand(t *testing.T) {
	page := writeTemp(t, "page.html", testPage)

	out, err := executeCommand(t, "resolve", "--html", page, "--kind", "button", "save draft")
	require.NoError(t, err)

	var d resolver.ElementDescriptor
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, "save-draft", d.VoiceID)

	_, err = executeCommand(t, "resolve", "--html", page, "--kind", "tab", "settings")
	assert.ErrorContains(t, err, "no tab element matches")
}

func TestExecCommand(t *testing.T) {
	page := writeTemp(t, "page.html", testPage)

	out, err := executeCommand(t, "exec", "--html", page, `{"kind":"switch_tab","payload":{"target":"courses"}}`)
	require.NoError(t, err)

	var got struct {
		Result   executor.Result  `json:"result"`
		Snapshot uistate.Snapshot `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Result.OK, got.Result.Did)
	assert.Equal(t, "tab-courses", got.Snapshot.ActiveTab)

	_, err = executeCommand(t, "exec", "--html", page, `{"kind":"teleport","payload":{}}`)
	assert.ErrorIs(t, err, executor.ErrUnknownKind)
}

func TestSnapshotCommand(t *testing.T) {
	page := writeTemp(t, "page.html", testPage)

	out, err := executeCommand(t, "snapshot", "--html", page, "--route", "/courses")
	require.NoError(t, err)

	var snap uistate.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, "/courses", snap.Route)
	assert.Equal(t, "tab-create", snap.ActiveTab)
}

func TestTokenCommand(t *testing.T) {
	cfgFile := writeTemp(t, "config.yaml", "auth:\n  enabled: true\n  issuer: test-issuer\n")
	t.Setenv("VOICEPILOT_JWT_SECRET", "cli-secret")

	out, err := executeCommand(t, "--config", cfgFile, "token", "u9")
	require.NoError(t, err)

	v, err := auth.NewVerifier(config.AuthConfig{Enabled: true, JWTSecret: "cli-secret", Issuer: "test-issuer"}, nil)
	require.NoError(t, err)
	user, err := v.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u9", user)
}

func TestTokenNeedsSecret(t *testing.T) {
	_, err := executeCommand(t, "token", "u9")
	assert.Error(t, err, "auth is disabled by default, so there is no secret to sign with")
}

func TestMissingExplicitConfigFails(t *testing.T) {
	_, err := executeCommand(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "snapshot")
	assert.ErrorContains(t, err, "failed to initialize configuration")
}

func TestInvalidConfigFails(t *testing.T) {
	cfgFile := writeTemp(t, "config.yaml", "turn:\n  debounce: 0s\n")
	_, err := executeCommand(t, "--config", cfgFile, "snapshot")
	assert.ErrorContains(t, err, "debounce must be positive")
}

func TestInitializeConfigPrecedence(t *testing.T) {
	cfgFile := writeTemp(t, "config.yaml", "server:\n  addr: \":9000\"\nturn:\n  debounce: 250ms\n")
	t.Setenv("VOICEPILOT_SERVER_ADDR", ":7000")

	v := viper.New()
	config.SetDefaults(v)
	require.NoError(t, initializeConfig(v, cfgFile))
	cfg, err := config.NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server().Addr, "environment beats the file")
	assert.Equal(t, "250ms", cfg.Turn().Debounce.String(), "the file beats defaults")
	assert.Equal(t, 150, cfg.Turn().WordsPerMinute)
}

func TestNewIntentSourceFallsBackOffline(t *testing.T) {
	src, err := newIntentSource(config.IntentConfig{}, zap.NewNop())
	require.NoError(t, err)
	resp, err := src.Resolve(context.Background(), intent.Request{FinalizedTranscript: "hello"})
	require.NoError(t, err)
	assert.Nil(t, resp.Action)
	assert.Equal(t, offlineReply, resp.SpokenResponse)

	src, err = newIntentSource(config.IntentConfig{Endpoint: "http://intent.local"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &intent.HTTPClient{}, src)
}
