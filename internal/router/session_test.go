// ABOUTME: Tests for the per-connection protocol state machine
// ABOUTME: Covers join/auth transitions, sender derivation, typing and error recovery

package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/switchboard/internal/auth"
	"github.com/2389/switchboard/internal/conversation"
	"github.com/2389/switchboard/internal/store"
)

var testSecret = []byte("router-test-secret-that-is-long-enough")

type routerFixture struct {
	store    *store.MockStore
	registry *conversation.Registry
	svc      *conversation.Service
	router   *Router
	verifier *auth.JWTVerifier
}

func newRouterFixture(t *testing.T, withVerifier bool) *routerFixture {
	t.Helper()
	s := store.NewMockStore()
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &store.User{ID: "rep-1", Name: "Rita", Email: "rita@example.com", Role: store.RoleRepresentative, Status: store.UserOnline}))
	require.NoError(t, s.CreateUser(ctx, &store.User{ID: "admin-1", Name: "Ada", Email: "ada@example.com", Role: store.RoleAdmin, Status: store.UserOnline}))
	require.NoError(t, s.CreateConversation(ctx, &store.Conversation{ID: "conv-1", Status: store.StatusActive, Mode: store.ModeHuman, RepresentativeID: "rep-1"}))
	require.NoError(t, s.CreateConversation(ctx, &store.Conversation{ID: "conv-2", Status: store.StatusActive, Mode: store.ModeHuman, RepresentativeID: "rep-1"}))

	var (
		verifier *auth.JWTVerifier
		tv       auth.TokenVerifier
	)
	if withVerifier {
		v, err := auth.NewJWTVerifier(testSecret)
		require.NoError(t, err)
		verifier, tv = v, v
	}

	reg := conversation.NewRegistry(time.Minute, nil)
	svc := conversation.New(s, reg, nil, nil)
	r := New(s, svc, reg, auth.NewResolver(s, tv), 20, nil)
	return &routerFixture{store: s, registry: reg, svc: svc, router: r, verifier: verifier}
}

func (f *routerFixture) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := f.verifier.Generate(userID, time.Hour)
	require.NoError(t, err)
	return tok
}

func lastEvent(t *testing.T, c *conversation.RecordingConn) conversation.Event {
	t.Helper()
	evs := c.Events()
	require.NotEmpty(t, evs)
	return evs[len(evs)-1]
}

func lastError(t *testing.T, c *conversation.RecordingConn) conversation.ErrorEvent {
	t.Helper()
	ev, ok := lastEvent(t, c).(conversation.ErrorEvent)
	require.True(t, ok, "expected error event, got %T", lastEvent(t, c))
	return ev
}

func TestSession_CustomerJoinIsAuthenticated(t *testing.T) {
	f := newRouterFixture(t, true)
	conn := conversation.NewRecordingConn()
	s := f.router.Open(conn)
	assert.Equal(t, StateUnjoined, s.State())

	s.Handle(t.Context(), []byte(`{"type":"join_conversation","conversationId":"conv-1"}`))

	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, RoleCustomer, s.Role())
	assert.Equal(t, "conv-1", s.ConversationID())
	assert.Equal(t, conversation.NewJoinedEvent("conv-1", RoleCustomer, true), lastEvent(t, conn))
	assert.Equal(t, 1, f.registry.ConversationCount("conv-1"))
}

func TestSession_JoinUnknownConversation(t *testing.T) {
	f := newRouterFixture(t, true)
	conn := conversation.NewRecordingConn()
	s := f.router.Open(conn)

	s.Handle(t.Context(), []byte(`{"type":"join_conversation","conversationId":"nope"}`))

	assert.Equal(t, StateUnjoined, s.State())
	assert.Equal(t, "Conversation not found", lastError(t, conn).Message)
	assert.False(t, conn.Closed())
}

func TestSession_RepresentativeJoin(t *testing.T) {
	f := newRouterFixture(t, true)

	tests := []struct {
		name      string
		userID    string
		token     string
		wantState State
	}{
		{"valid token", "rep-1", f.token(t, "rep-1"), StateAuthenticated},
		{"admin counts as representative", "", f.token(t, "admin-1"), StateAuthenticated},
		{"missing token", "rep-1", "", StateJoined},
		{"token for someone else", "rep-1", f.token(t, "admin-1"), StateJoined},
		{"garbage token", "rep-1", "not-a-jwt", StateJoined},
		{"unknown user", "", f.token(t, "ghost"), StateJoined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := conversation.NewRecordingConn()
			s := f.router.Open(conn)
			defer s.Close()

			s.Handle(t.Context(), joinFrame(t, "conv-1", tt.userID, tt.token))

			assert.Equal(t, tt.wantState, s.State())
			assert.Equal(t, RoleRepresentative, s.Role())
			joined, ok := lastEvent(t, conn).(conversation.JoinedEvent)
			require.True(t, ok)
			assert.Equal(t, tt.wantState == StateAuthenticated, joined.Authenticated)
		})
	}
}

func TestSession_UnauthenticatedCannotSendOrType(t *testing.T) {
	f := newRouterFixture(t, true)
	conn, peer := conversation.NewRecordingConn(), conversation.NewRecordingConn()
	f.registry.Join("conv-1", peer)

	s := f.router.Open(conn)
	s.Handle(t.Context(), joinFrame(t, "conv-1", "rep-1", ""))
	require.Equal(t, StateJoined, s.State())

	s.Handle(t.Context(), []byte(`{"type":"send_message","content":"hi"}`))
	assert.Equal(t, "Not authorized", lastError(t, conn).Message)

	s.Handle(t.Context(), []byte(`{"type":"typing","isTyping":true}`))
	assert.Equal(t, "Not authorized", lastError(t, conn).Message)

	n, err := f.store.CountMessages(t.Context(), "conv-1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, peer.Events())
	assert.Equal(t, StateJoined, s.State())
}

func TestSession_SendBeforeJoin(t *testing.T) {
	f := newRouterFixture(t, true)
	conn := conversation.NewRecordingConn()
	s := f.router.Open(conn)

	s.Handle(t.Context(), []byte(`{"type":"send_message","content":"hi"}`))

	assert.Equal(t, "Join a conversation first", lastError(t, conn).Message)
	assert.Equal(t, StateUnjoined, s.State())
}

func TestSession_SenderDerivedFromSession(t *testing.T) {
	f := newRouterFixture(t, true)
	repConn, custConn := conversation.NewRecordingConn(), conversation.NewRecordingConn()
	rep, cust := f.router.Open(repConn), f.router.Open(custConn)

	rep.Handle(t.Context(), joinFrame(t, "conv-1", "rep-1", f.token(t, "rep-1")))
	cust.Handle(t.Context(), []byte(`{"type":"join_conversation","conversationId":"conv-1"}`))
	repConn.Reset()
	custConn.Reset()

	// Payload claims to be someone else; the session role wins.
	cust.Handle(t.Context(), []byte(`{"type":"send_message","content":"  hello  ","senderType":"representative","senderId":"rep-1"}`))
	rep.Handle(t.Context(), []byte(`{"type":"send_message","content":"hi there","senderType":"customer"}`))

	msgs, err := f.store.GetMessages(t.Context(), "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.SenderCustomer, msgs[0].SenderType)
	assert.Empty(t, msgs[0].SenderID)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, store.SenderRepresentative, msgs[1].SenderType)
	assert.Equal(t, "rep-1", msgs[1].SenderID)

	// Each side sees only the other's message.
	require.Len(t, repConn.Messages(), 1)
	assert.Equal(t, msgs[0].ID, repConn.Messages()[0].ID)
	require.Len(t, custConn.Messages(), 1)
	assert.Equal(t, msgs[1].ID, custConn.Messages()[0].ID)
}

func TestSession_ContentBounds(t *testing.T) {
	f := newRouterFixture(t, true)
	conn := conversation.NewRecordingConn()
	s := f.router.Open(conn)
	s.Handle(t.Context(), []byte(`{"type":"join_conversation","conversationId":"conv-1"}`))

	s.Handle(t.Context(), []byte(`{"type":"send_message","content":"   "}`))
	ev := lastError(t, conn)
	assert.Equal(t, "Invalid message format", ev.Message)
	require.Len(t, ev.Errors, 1)
	assert.Equal(t, "content", ev.Errors[0].Field)

	s.Handle(t.Context(), []byte(`{"type":"send_message","content":"this is longer than twenty"}`))
	assert.Equal(t, "content", lastError(t, conn).Errors[0].Field)

	// Bounds violations keep the session authenticated.
	assert.Equal(t, StateAuthenticated, s.State())
	n, err := f.store.CountMessages(t.Context(), "conv-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSession_MalformedInputDropsAuthentication(t *testing.T) {
	f := newRouterFixture(t, true)
	conn := conversation.NewRecordingConn()
	s := f.router.Open(conn)
	s.Handle(t.Context(), []byte(`{"type":"join_conversation","conversationId":"conv-1"}`))
	require.Equal(t, StateAuthenticated, s.State())

	s.Handle(t.Context(), []byte(`{"type":"shout"}`))
	assert.Equal(t, StateJoined, s.State())
	assert.Equal(t, "type", lastError(t, conn).Errors[0].Field)
	assert.False(t, conn.Closed())

	// Re-joining restores the session.
	s.Handle(t.Context(), []byte(`{"type":"join_conversation","conversationId":"conv-1"}`))
	assert.Equal(t, StateAuthenticated, s.State())
}

func TestSession_MalformedInputWhileUnjoined(t *testing.T) {
	f := newRouterFixture(t, true)
	conn := conversation.NewRecordingConn()
	s := f.router.Open(conn)

	s.Handle(t.Context(), []byte(`{not json`))
	assert.Equal(t, StateUnjoined, s.State())
	assert.Equal(t, "body", lastError(t, conn).Errors[0].Field)
}

func TestSession_Typing(t *testing.T) {
	f := newRouterFixture(t, true)
	repConn, custConn := conversation.NewRecordingConn(), conversation.NewRecordingConn()
	rep, cust := f.router.Open(repConn), f.router.Open(custConn)
	rep.Handle(t.Context(), joinFrame(t, "conv-1", "", f.token(t, "rep-1")))
	cust.Handle(t.Context(), []byte(`{"type":"join_conversation","conversationId":"conv-1"}`))
	repConn.Reset()
	custConn.Reset()

	rep.Handle(t.Context(), []byte(`{"type":"typing","isTyping":true}`))

	assert.Empty(t, repConn.Events())
	assert.Equal(t, conversation.NewTypingEvent("rep-1", true), lastEvent(t, custConn))

	n, err := f.store.CountMessages(t.Context(), "conv-1")
	require.NoError(t, err)
	assert.Zero(t, n, "typing is never persisted")
}

func TestSession_RejoinMovesConversation(t *testing.T) {
	f := newRouterFixture(t, true)
	conn := conversation.NewRecordingConn()
	s := f.router.Open(conn)

	s.Handle(t.Context(), []byte(`{"type":"join_conversation","conversationId":"conv-1"}`))
	s.Handle(t.Context(), []byte(`{"type":"join_conversation","conversationId":"conv-2"}`))

	assert.Equal(t, "conv-2", s.ConversationID())
	assert.Zero(t, f.registry.ConversationCount("conv-1"))
	assert.Equal(t, 1, f.registry.ConversationCount("conv-2"))
}

func TestSession_CloseLeavesRegistry(t *testing.T) {
	f := newRouterFixture(t, true)
	conn := conversation.NewRecordingConn()
	s := f.router.Open(conn)
	s.Handle(t.Context(), []byte(`{"type":"join_conversation","conversationId":"conv-1"}`))

	s.Close()

	assert.Zero(t, f.registry.Count())
	conv, err := f.store.GetConversation(t.Context(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, store.ModeHuman, conv.Mode, "disconnect does not touch conversation state")
}

func TestSession_DevModeTrustsUserID(t *testing.T) {
	f := newRouterFixture(t, false)
	conn := conversation.NewRecordingConn()
	s := f.router.Open(conn)

	s.Handle(t.Context(), joinFrame(t, "conv-1", "rep-1", ""))
	assert.Equal(t, StateAuthenticated, s.State())

	s.Handle(t.Context(), joinFrame(t, "conv-1", "nobody", ""))
	assert.Equal(t, StateJoined, s.State())
}
