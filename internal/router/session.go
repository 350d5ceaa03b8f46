// ABOUTME: Per-connection protocol state machine for the persistent channel
// ABOUTME: unjoined -> joined(unauthenticated) -> joined(authenticated); identity comes from the session, never the payload

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/switchboard/internal/auth"
	"github.com/2389/switchboard/internal/conversation"
	"github.com/2389/switchboard/internal/store"
)

// State is where a session is in the join/auth handshake.
type State int

const (
	StateUnjoined State = iota
	StateJoined
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoined:
		return "joined"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session roles reported in the joined event.
const (
	RoleCustomer       = "customer"
	RoleRepresentative = "representative"
)

// Client-facing error texts. Internals are only logged.
const (
	msgNotFound      = "Conversation not found"
	msgNotJoined     = "Join a conversation first"
	msgNotAuthorized = "Not authorized"
	msgSendFailed    = "Failed to send message"
	msgJoinFailed    = "Failed to join conversation"
)

// ConversationLookup finds conversations for join requests.
type ConversationLookup interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
}

// Submitter runs the message pipeline.
type Submitter interface {
	Submit(ctx context.Context, req conversation.PostRequest) (*store.Message, error)
}

// IdentityResolver verifies staff identity claims.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID, token string) (*auth.AuthContext, error)
}

// Router creates sessions and holds what they share.
type Router struct {
	lookup   ConversationLookup
	pipeline Submitter
	registry *conversation.Registry
	resolver IdentityResolver
	maxLen   int
	logger   *slog.Logger
}

// New creates a Router. maxLen bounds message content in characters.
func New(lookup ConversationLookup, pipeline Submitter, registry *conversation.Registry, resolver IdentityResolver, maxLen int, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if maxLen <= 0 {
		maxLen = 5000
	}
	return &Router{
		lookup:   lookup,
		pipeline: pipeline,
		registry: registry,
		resolver: resolver,
		maxLen:   maxLen,
		logger:   logger.With("component", "router"),
	}
}

// Session is the protocol state of one live connection.
type Session struct {
	router *Router
	conn   conversation.Conn
	logger *slog.Logger

	mu             sync.Mutex
	state          State
	conversationID string
	role           string
	userID         string
}

// Open registers conn for liveness tracking and returns its session.
func (r *Router) Open(conn conversation.Conn) *Session {
	r.registry.Track(conn)
	return &Session{
		router: r,
		conn:   conn,
		logger: r.logger.With("connection_id", conn.ID()),
	}
}

// Handle processes one inbound frame. Errors are reported to the client
// as error events; the connection always stays usable.
func (s *Session) Handle(ctx context.Context, data []byte) {
	ev, err := Decode(data)
	if err != nil {
		s.mu.Lock()
		if s.state == StateAuthenticated {
			s.state = StateJoined
		}
		s.mu.Unlock()
		s.reportError(err)
		return
	}

	switch e := ev.(type) {
	case JoinConversation:
		s.join(ctx, e)
	case SendMessage:
		s.send(ctx, e)
	case Typing:
		s.typing(e)
	default:
		s.logger.Error("unhandled inbound event", "type", fmt.Sprintf("%T", ev))
	}
}

// Close removes the connection from the registry. Conversation state is
// not affected.
func (s *Session) Close() {
	s.router.registry.Leave(s.conn)
}

// State returns the current handshake state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConversationID returns the joined conversation, if any.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Role returns the session role after a join.
func (s *Session) Role() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *Session) join(ctx context.Context, e JoinConversation) {
	conv, err := s.router.lookup.GetConversation(ctx, e.ConversationID)
	if errors.Is(err, store.ErrNotFound) {
		s.reply(conversation.NewErrorEvent(msgNotFound))
		return
	}
	if err != nil {
		s.logger.Error("failed to look up conversation", "conversation_id", e.ConversationID, "error", err)
		s.reply(conversation.NewErrorEvent(msgJoinFailed))
		return
	}

	role, userID, state := RoleCustomer, "", StateAuthenticated
	if e.UserID != "" || e.Token != "" {
		role = RoleRepresentative
		authCtx, err := s.resolve(ctx, e.UserID, e.Token)
		if err != nil {
			s.logger.Warn("staff identity rejected", "conversation_id", conv.ID, "user_id", e.UserID, "error", err)
			state = StateJoined
		} else {
			userID = authCtx.UserID
		}
	}

	s.router.registry.Join(conv.ID, s.conn)

	s.mu.Lock()
	s.state = state
	s.conversationID = conv.ID
	s.role = role
	s.userID = userID
	s.mu.Unlock()

	s.logger.Debug("joined conversation", "conversation_id", conv.ID, "role", role, "state", state)
	s.reply(conversation.NewJoinedEvent(conv.ID, role, state == StateAuthenticated))
}

func (s *Session) resolve(ctx context.Context, userID, token string) (*auth.AuthContext, error) {
	if s.router.resolver == nil {
		return nil, auth.ErrAuthNotConfigured
	}
	return s.router.resolver.Resolve(ctx, userID, token)
}

func (s *Session) send(ctx context.Context, e SendMessage) {
	convID, sender, err := s.authorized()
	if err != nil {
		s.reportError(err)
		return
	}

	content, err := conversation.NormalizeContent(e.Content, s.router.maxLen)
	if err != nil {
		s.reportError(err)
		return
	}

	_, err = s.router.pipeline.Submit(ctx, conversation.PostRequest{
		ConversationID: convID,
		Content:        content,
		Sender:         sender,
		Exclude:        s.conn,
	})
	if err != nil {
		s.logger.Error("failed to submit message", "conversation_id", convID, "error", err)
		if errors.Is(err, store.ErrNotFound) {
			s.reply(conversation.NewErrorEvent(msgNotFound))
			return
		}
		s.reply(conversation.NewErrorEvent(msgSendFailed))
	}
}

func (s *Session) typing(e Typing) {
	convID, sender, err := s.authorized()
	if err != nil {
		s.reportError(err)
		return
	}
	who := sender.ID
	if who == "" {
		who = s.conn.ID()
	}
	s.router.registry.Broadcast(convID, conversation.NewTypingEvent(who, e.IsTyping), s.conn)
}

// authorized returns the joined conversation and the sender derived from
// session state, or an error when the session may not act.
func (s *Session) authorized() (string, conversation.Sender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateUnjoined:
		return "", conversation.Sender{}, errNotJoined
	case StateJoined:
		return "", conversation.Sender{}, conversation.ErrNotAuthorized
	}
	if s.role == RoleRepresentative {
		return s.conversationID, conversation.Sender{Type: store.SenderRepresentative, ID: s.userID}, nil
	}
	return s.conversationID, conversation.Customer, nil
}

var errNotJoined = fmt.Errorf("%w: not joined", conversation.ErrNotAuthorized)

func (s *Session) reportError(err error) {
	var vErr *conversation.ValidationError
	switch {
	case errors.As(err, &vErr):
		s.reply(conversation.NewErrorEvent(vErr.Message, vErr.Issues...))
	case errors.Is(err, errNotJoined):
		s.reply(conversation.NewErrorEvent(msgNotJoined))
	case errors.Is(err, conversation.ErrNotAuthorized):
		s.reply(conversation.NewErrorEvent(msgNotAuthorized))
	default:
		s.logger.Error("unexpected error", "error", err)
		s.reply(conversation.NewErrorEvent(msgSendFailed))
	}
}

// reply delivers an event to this session's own connection.
func (s *Session) reply(ev conversation.Event) {
	if err := s.conn.Send(ev); err != nil {
		s.logger.Debug("failed to deliver event", "type", ev.EventType(), "error", err)
	}
}
