// ABOUTME: Websocket transport adapting gorilla connections to the conversation registry
// ABOUTME: Each connection gets a bounded send queue drained by a single writer goroutine

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/switchboard/internal/conversation"
)

const (
	writeWait         = 10 * time.Second
	maxFrameSize      = 64 << 10
	defaultSendBuffer = 64
)

var (
	errConnClosed    = errors.New("connection closed")
	errSendQueueFull = errors.New("send queue full")
)

// wsConn implements conversation.Conn over a gorilla websocket.
// Only writePump writes data frames; pings and close frames use
// WriteControl, which gorilla allows concurrently with other writes.
type wsConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newWSConn(ws *websocket.Conn, buffer int) *wsConn {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &wsConn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

// Send queues ev without blocking.
func (c *wsConn) Send(ev conversation.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errSendQueueFull
	}
}

func (c *wsConn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
	return nil
}

// writePump delivers queued frames in order until the connection closes.
func (c *wsConn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// handleWebSocket upgrades the request and runs one session until the
// peer disconnects or the registry closes the connection.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		g.logger.Debug("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	conn := newWSConn(ws, g.config.Realtime.SendBuffer)
	ws.SetReadLimit(maxFrameSize)
	ws.SetPongHandler(func(string) error {
		g.registry.MarkAlive(conn)
		return nil
	})
	go conn.writePump()

	session := g.router.Open(conn)
	logger := g.logger.With("connection_id", conn.ID())
	logger.Debug("websocket connected", "remote", r.RemoteAddr)
	defer func() {
		session.Close()
		_ = conn.Close()
		logger.Debug("websocket disconnected", "conversation_id", session.ConversationID())
	}()

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		session.Handle(r.Context(), data)
	}
}

// originChecker accepts requests whose Origin host is in allowed. An empty
// list accepts everything, as do requests without an Origin header.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	hosts := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if u, err := url.Parse(a); err == nil && u.Host != "" {
			hosts = append(hosts, strings.ToLower(u.Host))
		} else {
			hosts = append(hosts, strings.ToLower(a))
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.Contains(hosts, strings.ToLower(u.Host))
	}
}
