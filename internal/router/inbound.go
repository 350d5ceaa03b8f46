// ABOUTME: Inbound event decoding for the persistent channel
// ABOUTME: Tagged union over join_conversation, send_message and typing

package router

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/switchboard/internal/conversation"
)

// Inbound event type tags
const (
	TypeJoinConversation = "join_conversation"
	TypeSendMessage      = "send_message"
	TypeTyping           = "typing"
)

// Inbound is a decoded client event. The concrete types are
// JoinConversation, SendMessage and Typing.
type Inbound interface {
	inbound()
}

// JoinConversation asks to join a conversation, optionally as staff.
type JoinConversation struct {
	ConversationID string
	UserID         string
	Token          string
}

// SendMessage carries message content. Sender identity is never read from
// the payload.
type SendMessage struct {
	Content string
}

// Typing toggles the typing indicator.
type Typing struct {
	IsTyping bool
}

func (JoinConversation) inbound() {}
func (SendMessage) inbound()      {}
func (Typing) inbound()           {}

// Decode parses one client frame. Any problem yields a
// *conversation.ValidationError.
func Decode(data []byte) (Inbound, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, conversation.NewValidationError("body", "invalid JSON")
	}

	switch envelope.Type {
	case TypeJoinConversation:
		var p struct {
			ConversationID *string `json:"conversationId"`
			UserID         string  `json:"userId"`
			Token          string  `json:"token"`
		}
		if err := decodePayload(data, &p); err != nil {
			return nil, err
		}
		if p.ConversationID == nil || *p.ConversationID == "" {
			return nil, conversation.NewValidationError("conversationId", "required")
		}
		return JoinConversation{ConversationID: *p.ConversationID, UserID: p.UserID, Token: p.Token}, nil

	case TypeSendMessage:
		var p struct {
			Content *string `json:"content"`
		}
		if err := decodePayload(data, &p); err != nil {
			return nil, err
		}
		if p.Content == nil {
			return nil, conversation.NewValidationError("content", "required")
		}
		return SendMessage{Content: *p.Content}, nil

	case TypeTyping:
		var p struct {
			IsTyping *bool `json:"isTyping"`
		}
		if err := decodePayload(data, &p); err != nil {
			return nil, err
		}
		if p.IsTyping == nil {
			return nil, conversation.NewValidationError("isTyping", "required")
		}
		return Typing{IsTyping: *p.IsTyping}, nil

	case "":
		return nil, conversation.NewValidationError("type", "required")

	default:
		return nil, conversation.NewValidationError("type", fmt.Sprintf("unknown event type %q", envelope.Type))
	}
}

// decodePayload decodes data into v, reporting type mismatches by field.
func decodePayload(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			return conversation.NewValidationError(te.Field, "unexpected "+te.Value)
		}
		return conversation.NewValidationError("body", "invalid JSON")
	}
	return nil
}
