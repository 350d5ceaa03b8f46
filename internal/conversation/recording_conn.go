// ABOUTME: RecordingConn is an in-memory Conn for tests
// ABOUTME: Captures sent events and lets tests simulate failed sends and pings

package conversation

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrConnClosed is returned by RecordingConn after Close.
var ErrConnClosed = errors.New("connection closed")

// RecordingConn implements Conn by recording events in memory.
type RecordingConn struct {
	id string

	mu     sync.Mutex
	events []Event

	FailSend atomic.Bool
	FailPing atomic.Bool
	pings    atomic.Int32
	closed   atomic.Bool
}

// NewRecordingConn creates a RecordingConn with a random ID.
func NewRecordingConn() *RecordingConn {
	return &RecordingConn{id: uuid.New().String()}
}

func (c *RecordingConn) ID() string { return c.id }

// Send records ev unless the connection is closed or FailSend is set.
func (c *RecordingConn) Send(ev Event) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	if c.FailSend.Load() {
		return errors.New("send queue full")
	}
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

// Ping counts pings and fails when FailPing is set.
func (c *RecordingConn) Ping() error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	c.pings.Add(1)
	if c.FailPing.Load() {
		return errors.New("ping failed")
	}
	return nil
}

func (c *RecordingConn) Close() error {
	c.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (c *RecordingConn) Closed() bool { return c.closed.Load() }

// Pings returns the number of pings received.
func (c *RecordingConn) Pings() int { return int(c.pings.Load()) }

// Events returns a copy of every recorded event.
func (c *RecordingConn) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Messages returns the payloads of recorded new_message events in order.
func (c *RecordingConn) Messages() []MessageView {
	var out []MessageView
	for _, ev := range c.Events() {
		if nm, ok := ev.(NewMessageEvent); ok {
			out = append(out, nm.Message)
		}
	}
	return out
}

// Reset discards recorded events.
func (c *RecordingConn) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}
