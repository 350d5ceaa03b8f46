// ABOUTME: In-memory registry of live connections grouped by conversation
// ABOUTME: Fans out events to a conversation's members and sweeps dead connections

package conversation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Conn is a live bidirectional client connection.
// Send must not block: implementations enqueue and report a full or closed
// queue as an error.
type Conn interface {
	ID() string
	Send(Event) error
	Ping() error
	Close() error
}

// bucket is the member set of one conversation.
type bucket struct {
	mu      sync.Mutex
	members map[string]Conn
}

// tracked is the registry's view of one connection.
type tracked struct {
	conn           Conn
	conversationID string // empty until joined
	alive          atomic.Bool
}

// Registry owns the set of live connections per conversation.
//
// Lock order is r.mu then bucket.mu. Join and Leave hold r.mu exclusively;
// Broadcast holds it shared and serializes on the bucket, so fan-out for one
// conversation happens in call order while other conversations proceed.
type Registry struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	conns   map[string]*tracked

	heartbeat time.Duration
	logger    *slog.Logger
}

// NewRegistry creates a registry whose liveness sweep runs every heartbeat.
// Pass nil logger for default.
func NewRegistry(heartbeat time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Registry{
		buckets:   make(map[string]*bucket),
		conns:     make(map[string]*tracked),
		heartbeat: heartbeat,
		logger:    logger.With("component", "registry"),
	}
}

// Track registers a connection for liveness checks before it joins a conversation.
func (r *Registry) Track(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackLocked(conn)
}

func (r *Registry) trackLocked(conn Conn) *tracked {
	t, ok := r.conns[conn.ID()]
	if !ok {
		t = &tracked{conn: conn}
		t.alive.Store(true)
		r.conns[conn.ID()] = t
	}
	return t
}

// Join adds conn to the conversation's member set. Joining the same
// conversation again is a no-op; joining a different one moves the connection.
func (r *Registry) Join(conversationID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.trackLocked(conn)
	if t.conversationID == conversationID {
		return
	}
	if t.conversationID != "" {
		r.removeFromBucketLocked(t.conversationID, conn.ID())
	}

	b, ok := r.buckets[conversationID]
	if !ok {
		b = &bucket{members: make(map[string]Conn)}
		r.buckets[conversationID] = b
	}
	b.mu.Lock()
	b.members[conn.ID()] = conn
	b.mu.Unlock()
	t.conversationID = conversationID

	r.logger.Debug("connection joined", "conversation_id", conversationID, "conn_id", conn.ID())
}

// Leave removes conn from the registry entirely. No-op if unknown.
func (r *Registry) Leave(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(conn.ID())
}

func (r *Registry) leaveLocked(connID string) {
	t, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)
	if t.conversationID != "" {
		r.removeFromBucketLocked(t.conversationID, connID)
		r.logger.Debug("connection left", "conversation_id", t.conversationID, "conn_id", connID)
	}
}

// removeFromBucketLocked must be called with r.mu held exclusively.
func (r *Registry) removeFromBucketLocked(conversationID, connID string) {
	b, ok := r.buckets[conversationID]
	if !ok {
		return
	}
	b.mu.Lock()
	delete(b.members, connID)
	empty := len(b.members) == 0
	b.mu.Unlock()
	if empty {
		delete(r.buckets, conversationID)
	}
}

// Broadcast delivers event to every member of the conversation except
// exclude (which may be nil). A member whose Send fails is closed and
// removed; delivery to the others continues.
func (r *Registry) Broadcast(conversationID string, event Event, exclude Conn) {
	var excludeID string
	if exclude != nil {
		excludeID = exclude.ID()
	}

	var failed []Conn

	r.mu.RLock()
	if b, ok := r.buckets[conversationID]; ok {
		b.mu.Lock()
		for id, conn := range b.members {
			if id == excludeID {
				continue
			}
			if err := conn.Send(event); err != nil {
				r.logger.Debug("dropping connection after failed send",
					"conversation_id", conversationID,
					"conn_id", id,
					"error", err)
				failed = append(failed, conn)
			}
		}
		b.mu.Unlock()
	}
	r.mu.RUnlock()

	for _, conn := range failed {
		r.Leave(conn)
		_ = conn.Close()
	}
}

// MarkAlive records a pong from conn.
func (r *Registry) MarkAlive(conn Conn) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.conns[conn.ID()]; ok {
		t.alive.Store(true)
	}
}

// Count returns the number of tracked connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ConversationCount returns the number of connections joined to a conversation.
func (r *Registry) ConversationCount(conversationID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buckets[conversationID]
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.members)
}

// Run sweeps for dead connections every heartbeat until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep closes connections that did not answer the previous ping and pings
// the rest.
func (r *Registry) Sweep() {
	r.mu.RLock()
	snapshot := make([]*tracked, 0, len(r.conns))
	for _, t := range r.conns {
		snapshot = append(snapshot, t)
	}
	r.mu.RUnlock()

	var dead []Conn
	for _, t := range snapshot {
		if !t.alive.Swap(false) {
			dead = append(dead, t.conn)
			continue
		}
		if err := t.conn.Ping(); err != nil {
			dead = append(dead, t.conn)
		}
	}

	for _, conn := range dead {
		r.Leave(conn)
		_ = conn.Close()
	}
	if len(dead) > 0 {
		r.logger.Info("liveness sweep closed connections", "count", len(dead))
	}
}

// Close closes every tracked connection and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.conns))
	for _, t := range r.conns {
		conns = append(conns, t.conn)
	}
	r.conns = make(map[string]*tracked)
	r.buckets = make(map[string]*bucket)
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	r.logger.Debug("registry closed", "connections", len(conns))
}
