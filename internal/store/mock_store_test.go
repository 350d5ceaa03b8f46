// ABOUTME: Unit tests for MockStore to ensure behavior matches SQLiteStore
// ABOUTME: Focuses on mode compare-and-set, ordering and copy semantics

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_TransitionMode_Conflict(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	require.NoError(t, store.CreateConversation(ctx, newConversation("conv-1")))

	_, err := store.TransitionMode(ctx, "conv-1", ModeTransition{
		From: []Mode{ModeAutomated, ModeEscalated}, To: ModeHuman, Status: StatusActive, RepresentativeID: "rep-1",
	})
	require.NoError(t, err)

	_, err = store.TransitionMode(ctx, "conv-1", ModeTransition{
		From: []Mode{ModeAutomated, ModeEscalated}, To: ModeHuman, Status: StatusActive, RepresentativeID: "rep-2",
	})
	assert.ErrorIs(t, err, ErrModeConflict)

	got, err := store.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "rep-1", got.RepresentativeID)
}

func TestMockStore_ReturnsCopies(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	require.NoError(t, store.CreateConversation(ctx, newConversation("conv-1")))

	got, err := store.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	got.Mode = ModeHuman

	again, err := store.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, ModeAutomated, again.Mode)
}

func TestMockStore_MessageOrdering(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	require.NoError(t, store.CreateConversation(ctx, newConversation("conv-1")))

	same := time.Now().UTC()
	for _, m := range []*Message{
		{ID: "b", CreatedAt: same},
		{ID: "c", CreatedAt: same},
		{ID: "a", CreatedAt: same.Add(-time.Second)},
	} {
		m.ConversationID = "conv-1"
		m.SenderType = SenderCustomer
		require.NoError(t, store.SaveMessage(ctx, m))
	}

	msgs, err := store.GetMessages(ctx, "conv-1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, messageIDs(msgs))

	after, err := store.GetMessagesAfter(ctx, "conv-1", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, messageIDs(after))

	all, err := store.GetMessagesAfter(ctx, "conv-1", "unknown")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMockStore_SaveMessageErr(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()
	require.NoError(t, store.CreateConversation(ctx, newConversation("conv-1")))

	boom := errors.New("disk full")
	store.SaveMessageErr = boom

	err := store.SaveMessage(ctx, &Message{ID: "m1", ConversationID: "conv-1", SenderType: SenderCustomer})
	assert.ErrorIs(t, err, boom)

	n, err := store.CountMessages(ctx, "conv-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMockStore_SaveMessage_UnknownConversation(t *testing.T) {
	store := NewMockStore()

	err := store.SaveMessage(context.Background(), &Message{ID: "m1", ConversationID: "nope", SenderType: SenderCustomer})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMockStore_CreateUser_UniqueEmail(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, &User{ID: "u1", Name: "Amy", Email: "amy@example.com", Role: RoleRepresentative}))
	require.NoError(t, store.CreateUser(ctx, &User{ID: "u2", Name: "Bo", Email: "bo@example.com", Role: RoleRepresentative}))
	assert.ErrorIs(t, store.CreateUser(ctx, &User{ID: "u3", Name: "Dup", Email: "amy@example.com"}), ErrDuplicateUser)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}
