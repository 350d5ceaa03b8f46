// ABOUTME: Long-poll fallback for clients that cannot hold a websocket open
// ABOUTME: Waits for messages newer than a cursor and submits through the shared pipeline

package polling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/switchboard/internal/conversation"
	"github.com/2389/switchboard/internal/dedupe"
	"github.com/2389/switchboard/internal/store"
)

// Poll result types
const (
	ResultMessages = "messages"
	ResultTimeout  = "timeout"
)

// ErrDuplicateSubmission is returned when an idempotency key was already used.
var ErrDuplicateSubmission = errors.New("duplicate submission")

// Store is the persistence the bridge reads from.
type Store interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	GetMessagesAfter(ctx context.Context, conversationID, afterID string) ([]*store.Message, error)
}

// Submitter runs the message pipeline.
type Submitter interface {
	Submit(ctx context.Context, req conversation.PostRequest) (*store.Message, error)
}

// Options bound waits and session lifetime.
type Options struct {
	MaxWait          time.Duration
	DefaultWait      time.Duration
	CheckInterval    time.Duration
	SessionIdle      time.Duration
	MaxMessageLength int
}

// PollRequest asks for messages after Cursor.
type PollRequest struct {
	ConversationID string
	Cursor         string
	ClientID       string
	MaxWait        time.Duration
}

// PollResult is the long-poll response body.
type PollResult struct {
	Type     string                     `json:"type"`
	Messages []conversation.MessageView `json:"messages"`
	HasMore  bool                       `json:"hasMore"`
	ClientID string                     `json:"clientId,omitempty"`
}

// SubmitRequest is a message sent over the polling transport.
type SubmitRequest struct {
	ConversationID string
	Content        string
	Sender         conversation.Sender
	IdempotencyKey string
}

// Status summarizes poll sessions.
type Status struct {
	ActiveSessions int `json:"activeSessions"`
	WaitingPolls   int `json:"waitingPolls"`
}

type pollSession struct {
	conversationID string
	cursor         string
	lastPoll       time.Time
	waiting        int
	generated      bool
}

// Bridge serves the polling transport.
type Bridge struct {
	store    Store
	pipeline Submitter
	dedupe   *dedupe.Cache
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*pollSession
}

// New creates a Bridge. cache may be nil to disable idempotency keys.
func New(s Store, pipeline Submitter, cache *dedupe.Cache, opts Options, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 30 * time.Second
	}
	if opts.DefaultWait <= 0 || opts.DefaultWait > opts.MaxWait {
		opts.DefaultWait = min(25*time.Second, opts.MaxWait)
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 2 * time.Second
	}
	if opts.SessionIdle <= 0 {
		opts.SessionIdle = 5 * time.Minute
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 5000
	}
	return &Bridge{
		store:    s,
		pipeline: pipeline,
		dedupe:   cache,
		opts:     opts,
		logger:   logger.With("component", "polling"),
		now:      time.Now,
		sessions: make(map[string]*pollSession),
	}
}

// ClampWait applies the default and the ceiling to a requested wait.
func (b *Bridge) ClampWait(d time.Duration) time.Duration {
	if d <= 0 {
		return b.opts.DefaultWait
	}
	return min(d, b.opts.MaxWait)
}

// AwaitNewMessages returns as soon as the conversation has messages after
// the cursor, or a timeout result once the clamped wait elapses. An unknown
// cursor returns the whole conversation. Cancelling ctx abandons the wait.
func (b *Bridge) AwaitNewMessages(ctx context.Context, req PollRequest) (*PollResult, error) {
	if _, err := b.store.GetConversation(ctx, req.ConversationID); err != nil {
		return nil, err
	}

	clientID := b.begin(req)
	defer b.end(clientID)

	wait := b.ClampWait(req.MaxWait)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	ticker := time.NewTicker(b.opts.CheckInterval)
	defer ticker.Stop()

	for {
		msgs, err := b.store.GetMessagesAfter(ctx, req.ConversationID, req.Cursor)
		if err != nil {
			return nil, fmt.Errorf("loading messages: %w", err)
		}
		if len(msgs) > 0 {
			b.advance(clientID, msgs[len(msgs)-1].ID)
			return &PollResult{
				Type:     ResultMessages,
				Messages: conversation.MessageViews(msgs),
				ClientID: clientID,
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return &PollResult{
				Type:     ResultTimeout,
				Messages: []conversation.MessageView{},
				HasMore:  true,
				ClientID: clientID,
			}, nil
		case <-ticker.C:
		}
	}
}

// Submit validates content and runs it through the pipeline. A repeated
// idempotency key for the same conversation yields ErrDuplicateSubmission.
func (b *Bridge) Submit(ctx context.Context, req SubmitRequest) (*store.Message, error) {
	content, err := conversation.NormalizeContent(req.Content, b.opts.MaxMessageLength)
	if err != nil {
		return nil, err
	}

	var key string
	if req.IdempotencyKey != "" && b.dedupe != nil {
		key = dedupe.Key(req.ConversationID, req.IdempotencyKey)
		if !b.dedupe.Claim(key) {
			return nil, ErrDuplicateSubmission
		}
	}

	msg, err := b.pipeline.Submit(ctx, conversation.PostRequest{
		ConversationID: req.ConversationID,
		Content:        content,
		Sender:         req.Sender,
	})
	if err != nil {
		if key != "" {
			// Let the client retry with the same key.
			b.dedupe.Release(key)
		}
		return nil, err
	}
	return msg, nil
}

// Status reports current poll sessions.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Status{ActiveSessions: len(b.sessions)}
	for _, s := range b.sessions {
		st.WaitingPolls += s.waiting
	}
	return st
}

// Run reclaims idle sessions until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	ticker := time.NewTicker(min(b.opts.SessionIdle, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.reclaim(); n > 0 {
				b.logger.Debug("reclaimed idle poll sessions", "count", n)
			}
		}
	}
}

func (b *Bridge) begin(req PollRequest) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	clientID, generated := req.ClientID, false
	if clientID == "" {
		clientID, generated = uuid.NewString(), true
	}
	s, ok := b.sessions[clientID]
	if !ok {
		s = &pollSession{generated: generated}
		b.sessions[clientID] = s
	}
	s.conversationID = req.ConversationID
	s.cursor = req.Cursor
	s.lastPoll = b.now()
	s.waiting++
	return clientID
}

func (b *Bridge) advance(clientID, cursor string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[clientID]; ok {
		s.cursor = cursor
	}
}

func (b *Bridge) end(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[clientID]
	if !ok {
		return
	}
	s.waiting--
	s.lastPoll = b.now()
	if s.generated && s.waiting == 0 {
		delete(b.sessions, clientID)
	}
}

// reclaim drops sessions idle for longer than SessionIdle.
func (b *Bridge) reclaim() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := b.now().Add(-b.opts.SessionIdle)
	n := 0
	for id, s := range b.sessions {
		if s.waiting == 0 && s.lastPoll.Before(cutoff) {
			delete(b.sessions, id)
			n++
		}
	}
	return n
}
