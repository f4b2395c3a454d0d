// File: internal/channel/conn.go
package channel

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Transcript fragments are short.
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var (
	// ErrClosed is returned when sending on a closed connection.
	ErrClosed = errors.New("channel: connection closed")
	// ErrBackpressure is returned when the client is not draining frames.
	ErrBackpressure = errors.New("channel: send buffer full")
)

// Handler receives inbound frames in arrival order.
type Handler interface {
	HandleFrame(f Inbound)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(f Inbound)

func (fn HandlerFunc) HandleFrame(f Inbound) { fn(f) }

// NewUpgrader accepts same-host origins plus the listed ones. A "*" entry
// accepts every origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowed["*"] {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			if strings.EqualFold(u.Host, r.Host) {
				return true
			}
			return allowed[strings.ToLower(strings.TrimRight(origin, "/"))]
		},
	}
}

// Conn is one voice client. Frames are read on the goroutine that calls Run
// and written by a dedicated pump, so Send never blocks on the network.
type Conn struct {
	id     string
	ws     *websocket.Conn
	logger *zap.Logger
	send   chan []byte

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Accept upgrades the request.
func Accept(w http.ResponseWriter, r *http.Request, up *websocket.Upgrader, id string, logger *zap.Logger) (*Conn, error) {
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newConn(ws, id, logger), nil
}

func newConn(ws *websocket.Conn, id string, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		id:     id,
		ws:     ws,
		logger: logger.Named("channel").With(zap.String("session_id", id)),
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// ID is the session the connection belongs to.
func (c *Conn) ID() string { return c.id }

// Run pumps frames until the client goes away, ctx ends or Close is called.
// It returns nil for an orderly close and the read error otherwise.
func (c *Conn) Run(ctx context.Context, h Handler) error {
	c.wg.Add(2)
	go c.writePump()
	go func() {
		defer c.wg.Done()
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	err := c.readPump(h)
	c.Close()
	c.wg.Wait()
	return err
}

// Close stops both pumps. It is safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Send queues a frame for the client.
func (c *Conn) Send(f Outbound) error {
	if f.SessionID == "" {
		f.SessionID = c.id
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		c.logger.Warn("Dropping frame, client is not keeping up", zap.String("type", string(f.Type)))
		return ErrBackpressure
	}
}

// Speak sends text to be voiced.
func (c *Conn) Speak(text string) error {
	return c.Send(Outbound{Type: FrameSpeak, Text: text})
}

// Display shows an agent utterance without voicing it.
func (c *Conn) Display(text string) error {
	return c.Send(Outbound{Type: FrameDisplay, Text: text})
}

// Status reports a session state change.
func (c *Conn) Status(status string) error {
	return c.Send(Outbound{Type: FrameStatus, Status: status})
}

func (c *Conn) readPump(h Handler) error {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("Voice client closed the connection")
				return nil
			}
			c.logger.Warn("Voice client read error", zap.Error(err))
			return err
		}

		var in Inbound
		if err := json.Unmarshal(message, &in); err != nil {
			c.logger.Error("Failed to unmarshal incoming frame", zap.Error(err), zap.ByteString("message", message))
			continue
		}
		if in.Source != SourceUser && in.Source != SourceAgent {
			c.logger.Warn("Ignoring frame with unknown source", zap.String("source", string(in.Source)))
			continue
		}
		h.HandleFrame(in)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.wg.Done()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("Write failed, closing", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever was queued before the close.
func (c *Conn) flush() {
	for {
		select {
		case message := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}
