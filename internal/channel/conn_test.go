// File: internal/channel/conn_test.go
package channel_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/voicepilot/internal/channel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type frameLog struct {
	mu     sync.Mutex
	frames []channel.Inbound
}

func (l *frameLog) HandleFrame(f channel.Inbound) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, f)
}

func (l *frameLog) All() []channel.Inbound {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]channel.Inbound(nil), l.frames...)
}

type testServer struct {
	*httptest.Server
	conns  chan *channel.Conn
	errs   chan error
	frames *frameLog
	cancel context.CancelFunc
}

func newTestServer(t *testing.T, origins []string) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{
		conns:  make(chan *channel.Conn, 1),
		errs:   make(chan error, 1),
		frames: &frameLog{},
		cancel: cancel,
	}
	up := channel.NewUpgrader(origins)
	logger := zaptest.NewLogger(t)
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := channel.Accept(w, r, up, "s1", logger)
		if err != nil {
			return
		}
		ts.conns <- conn
		ts.errs <- conn.Run(ctx, ts.frames)
	}))
	t.Cleanup(func() {
		cancel()
		ts.Server.Close()
	})
	return ts
}

func (ts *testServer) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	return client
}

func (ts *testServer) conn(t *testing.T) *channel.Conn {
	t.Helper()
	select {
	case c := <-ts.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted")
		return nil
	}
}

func (ts *testServer) runResult(t *testing.T) error {
	t.Helper()
	select {
	case err := <-ts.errs:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestInboundFramesArriveInOrder(t *testing.T) {
	ts := newTestServer(t, nil)
	client := ts.dial(t, nil)
	ts.conn(t)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"source":"user","message":"go to"}`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"source":"robot","message":"beep"}`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"source":"agent","message":"Sure"}`)))

	assert.Eventually(t, func() bool { return len(ts.frames.All()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []channel.Inbound{
		{Source: channel.SourceUser, Message: "go to"},
		{Source: channel.SourceAgent, Message: "Sure"},
	}, ts.frames.All())

	require.NoError(t, client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.NoError(t, ts.runResult(t), "an orderly close is not an error")
	client.Close()
}

func TestOutboundFrames(t *testing.T) {
	ts := newTestServer(t, nil)
	client := ts.dial(t, nil)
	defer client.Close()
	conn := ts.conn(t)

	require.NoError(t, conn.Speak("Your course was created"))
	require.NoError(t, conn.Display("Would you like to add a session?"))
	require.NoError(t, conn.Status(channel.StatusIdle))

	var got []map[string]any
	for range 3 {
		var frame map[string]any
		require.NoError(t, client.ReadJSON(&frame))
		got = append(got, frame)
	}
	assert.Equal(t, "speak", got[0]["type"])
	assert.Equal(t, "Your course was created", got[0]["text"])
	assert.Equal(t, "s1", got[0]["sessionId"])
	assert.Equal(t, "display", got[1]["type"])
	assert.Equal(t, "idle", got[2]["status"])

	conn.Close()
	assert.NoError(t, ts.runResult(t))
	assert.ErrorIs(t, conn.Speak("too late"), channel.ErrClosed)
}

func TestAbruptDisconnectIsReported(t *testing.T) {
	ts := newTestServer(t, nil)
	client := ts.dial(t, nil)
	ts.conn(t)

	require.NoError(t, client.UnderlyingConn().Close())
	assert.Error(t, ts.runResult(t))
}

func TestContextCancelClosesClient(t *testing.T) {
	ts := newTestServer(t, nil)
	client := ts.dial(t, nil)
	defer client.Close()
	ts.conn(t)

	ts.cancel()
	_, _, err := client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.NoError(t, ts.runResult(t))
}

func TestOriginCheck(t *testing.T) {
	ts := newTestServer(t, []string{"https://app.example.edu"})
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	client := ts.dial(t, http.Header{"Origin": {"https://app.example.edu/"}})
	ts.conn(t)
	client.Close()
	ts.runResult(t)
}
