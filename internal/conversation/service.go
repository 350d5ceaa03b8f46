// ABOUTME: Service is the single message pipeline shared by websocket and polling clients
// ABOUTME: Record first, then fan out; customer messages also notify staff and trigger handoff evaluation

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/switchboard/internal/store"
)

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	SaveMessage(ctx context.Context, msg *store.Message) error
	TouchConversation(ctx context.Context, id string, at time.Time) error
	CountMessages(ctx context.Context, conversationID string) (int, error)
}

// Notifier alerts staff about customer activity. Implementations report
// success but the pipeline never waits on or reacts to the result.
type Notifier interface {
	Notify(ctx context.Context, conv *store.Conversation, msg *store.Message, isFirstInThread bool) bool
}

// Evaluator decides how to respond to a customer message in an automated conversation.
type Evaluator interface {
	Evaluate(ctx context.Context, conversationID string, msg *store.Message)
}

// Sender is the authenticated author of a message. It is always derived
// from server-side state, never from client payloads.
type Sender struct {
	Type store.SenderType
	ID   string
}

// Customer is the anonymous customer sender.
var Customer = Sender{Type: store.SenderCustomer}

// PostRequest is a message to persist and broadcast.
type PostRequest struct {
	ConversationID string
	Content        string
	Sender         Sender
	Metadata       map[string]any
	// Exclude is skipped during fan-out, typically the sending connection.
	Exclude Conn
}

// Service persists messages and fans them out to live connections.
type Service struct {
	store     ConversationStore
	registry  *Registry
	notifier  Notifier
	evaluator Evaluator

	notifyTimeout time.Duration
	locks         keyedMutex
	background    sync.WaitGroup
	logger        *slog.Logger
}

// New creates a new conversation Service. notifier may be nil.
func New(store ConversationStore, registry *Registry, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:         store,
		registry:      registry,
		notifier:      notifier,
		notifyTimeout: 30 * time.Second,
		locks:         keyedMutex{locks: make(map[string]*refMutex)},
		logger:        logger.With("component", "conversation"),
	}
}

// SetEvaluator installs the handoff evaluator. Must be called before the
// service handles traffic.
func (s *Service) SetEvaluator(e Evaluator) {
	s.evaluator = e
}

// SetNotifyTimeout bounds each notification dispatch.
func (s *Service) SetNotifyTimeout(d time.Duration) {
	if d > 0 {
		s.notifyTimeout = d
	}
}

// Registry returns the connection registry the service broadcasts to.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Submit runs the full inbound pipeline: persist, broadcast, then for
// customer messages notify staff and, while the conversation is automated,
// hand off to the evaluator. Notification and evaluation run in the
// background; use Wait to drain them.
func (s *Service) Submit(ctx context.Context, req PostRequest) (*store.Message, error) {
	msg, conv, isFirst, err := s.post(ctx, req)
	if err != nil {
		return nil, err
	}

	if msg.SenderType != store.SenderCustomer {
		return msg, nil
	}

	if s.notifier != nil {
		s.goBackground(ctx, func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
			defer cancel()
			if !s.notifier.Notify(ctx, conv, msg, isFirst) {
				s.logger.Debug("notification not delivered", "conversation_id", conv.ID, "message_id", msg.ID)
			}
		})
	}

	if conv.Mode == store.ModeAutomated && s.evaluator != nil {
		s.goBackground(ctx, func(ctx context.Context) {
			s.evaluator.Evaluate(ctx, conv.ID, msg)
		})
	}

	return msg, nil
}

// Post persists a message and broadcasts it without triggering notification
// or evaluation. Used for assistant and system messages.
func (s *Service) Post(ctx context.Context, req PostRequest) (*store.Message, error) {
	msg, _, _, err := s.post(ctx, req)
	return msg, err
}

func (s *Service) post(ctx context.Context, req PostRequest) (*store.Message, *store.Conversation, bool, error) {
	if !req.Sender.Type.Valid() {
		return nil, nil, false, fmt.Errorf("invalid sender type %q", req.Sender.Type)
	}
	if req.Sender.Type == store.SenderRepresentative && req.Sender.ID == "" {
		return nil, nil, false, fmt.Errorf("representative messages require a sender id")
	}
	if req.Content == "" {
		return nil, nil, false, NewValidationError("content", "must not be empty")
	}

	// Serialize persist+broadcast per conversation so fan-out order matches
	// store order.
	unlock := s.locks.Lock(req.ConversationID)
	defer unlock()

	conv, err := s.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, false, err
		}
		return nil, nil, false, fmt.Errorf("loading conversation: %w", err)
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderType:     req.Sender.Type,
		SenderID:       req.Sender.ID,
		Content:        req.Content,
		Metadata:       req.Metadata,
		CreatedAt:      time.Now().UTC(),
	}

	// A departing client must not abort a write once started.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.store.SaveMessage(persistCtx, msg); err != nil {
		s.logger.Error("failed to persist message",
			"conversation_id", conv.ID,
			"sender_type", msg.SenderType,
			"error", err)
		return nil, nil, false, fmt.Errorf("saving message: %w", err)
	}

	if err := s.store.TouchConversation(persistCtx, conv.ID, msg.CreatedAt); err != nil {
		s.logger.Warn("failed to record conversation activity", "conversation_id", conv.ID, "error", err)
	}

	isFirst := false
	if msg.SenderType == store.SenderCustomer {
		if n, err := s.store.CountMessages(persistCtx, conv.ID); err == nil {
			isFirst = n == 1
		}
	}

	s.registry.Broadcast(conv.ID, NewNewMessageEvent(msg), req.Exclude)

	s.logger.Debug("message recorded",
		"conversation_id", conv.ID,
		"message_id", msg.ID,
		"sender_type", msg.SenderType)

	return msg, conv, isFirst, nil
}

// goBackground runs fn detached from the caller's cancellation but tracked
// for Wait.
func (s *Service) goBackground(ctx context.Context, fn func(ctx context.Context)) {
	bg := context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("background task panicked", "panic", r)
			}
		}()
		fn(bg)
	}()
}

// Wait blocks until background notification and evaluation work finishes
// or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// keyedMutex hands out one mutex per key, freeing it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
