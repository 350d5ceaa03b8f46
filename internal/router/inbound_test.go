// ABOUTME: Tests for inbound event decoding
// ABOUTME: Table of valid frames and the validation errors for malformed ones

package router

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/switchboard/internal/conversation"
)

func joinFrame(t *testing.T, conversationID, userID, token string) []byte {
	t.Helper()
	payload := map[string]string{"type": TypeJoinConversation, "conversationId": conversationID}
	if userID != "" {
		payload["userId"] = userID
	}
	if token != "" {
		payload["token"] = token
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return data
}

func TestDecode_Valid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Inbound
	}{
		{"join", `{"type":"join_conversation","conversationId":"c1"}`, JoinConversation{ConversationID: "c1"}},
		{"join staff", `{"type":"join_conversation","conversationId":"c1","userId":"u","token":"t"}`, JoinConversation{ConversationID: "c1", UserID: "u", Token: "t"}},
		{"send", `{"type":"send_message","content":"hi"}`, SendMessage{Content: "hi"}},
		{"send empty content decodes", `{"type":"send_message","content":""}`, SendMessage{}},
		{"typing false", `{"type":"typing","isTyping":false}`, Typing{IsTyping: false}},
		{"extra fields ignored", `{"type":"typing","isTyping":true,"userId":"spoof"}`, Typing{IsTyping: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		field string
	}{
		{"not json", `{`, "body"},
		{"not an object", `[1,2]`, "body"},
		{"missing type", `{"content":"x"}`, "type"},
		{"unknown type", `{"type":"delete_everything"}`, "type"},
		{"join without conversation", `{"type":"join_conversation"}`, "conversationId"},
		{"join empty conversation", `{"type":"join_conversation","conversationId":""}`, "conversationId"},
		{"send without content", `{"type":"send_message"}`, "content"},
		{"send numeric content", `{"type":"send_message","content":42}`, "content"},
		{"typing without flag", `{"type":"typing"}`, "isTyping"},
		{"typing string flag", `{"type":"typing","isTyping":"yes"}`, "isTyping"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			var vErr *conversation.ValidationError
			require.ErrorAs(t, err, &vErr)
			require.NotEmpty(t, vErr.Issues)
			assert.Equal(t, tt.field, vErr.Issues[0].Field)
		})
	}
}
