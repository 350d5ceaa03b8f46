// ABOUTME: Outbound event types delivered to live connections
// ABOUTME: JSON shapes for joined, new_message, typing and error events

package conversation

import (
	"time"

	"github.com/2389/switchboard/internal/store"
)

// Outbound event type tags
const (
	EventJoined     = "joined"
	EventNewMessage = "new_message"
	EventTyping     = "typing"
	EventError      = "error"
)

// Event is an outbound payload. Implementations marshal to JSON with a
// "type" discriminator.
type Event interface {
	EventType() string
}

// MessageView is the wire representation of a stored message.
type MessageView struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	SenderType     string         `json:"senderType"`
	SenderID       string         `json:"senderId,omitempty"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// NewMessageView converts a stored message for the wire.
func NewMessageView(m *store.Message) MessageView {
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderType:     string(m.SenderType),
		SenderID:       m.SenderID,
		Content:        m.Content,
		Metadata:       m.Metadata,
		CreatedAt:      m.CreatedAt,
	}
}

// MessageViews converts a slice of stored messages. Never returns nil.
func MessageViews(msgs []*store.Message) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewMessageView(m))
	}
	return out
}

// JoinedEvent confirms a join_conversation request.
type JoinedEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"`
	Authenticated  bool   `json:"authenticated"`
}

func (JoinedEvent) EventType() string { return EventJoined }

// NewJoinedEvent builds a joined event.
func NewJoinedEvent(conversationID, role string, authenticated bool) JoinedEvent {
	return JoinedEvent{Type: EventJoined, ConversationID: conversationID, Role: role, Authenticated: authenticated}
}

// NewMessageEvent announces a persisted message.
type NewMessageEvent struct {
	Type    string      `json:"type"`
	Message MessageView `json:"message"`
}

func (NewMessageEvent) EventType() string { return EventNewMessage }

// NewNewMessageEvent builds a new_message event.
func NewNewMessageEvent(m *store.Message) NewMessageEvent {
	return NewMessageEvent{Type: EventNewMessage, Message: NewMessageView(m)}
}

// TypingEvent relays a typing indicator. Never persisted.
type TypingEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

func (TypingEvent) EventType() string { return EventTyping }

// NewTypingEvent builds a typing event.
func NewTypingEvent(userID string, isTyping bool) TypingEvent {
	return TypingEvent{Type: EventTyping, UserID: userID, IsTyping: isTyping}
}

// ErrorEvent reports a problem with the client's last event.
type ErrorEvent struct {
	Type    string       `json:"type"`
	Message string       `json:"message"`
	Errors  []FieldIssue `json:"errors,omitempty"`
}

func (ErrorEvent) EventType() string { return EventError }

// NewErrorEvent builds an error event.
func NewErrorEvent(message string, issues ...FieldIssue) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: message, Errors: issues}
}
