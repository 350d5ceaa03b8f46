// ABOUTME: Tests for the conversation message pipeline
// ABOUTME: Covers persist-then-broadcast, sender exclusion, notification and evaluation dispatch

package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/switchboard/internal/store"
)

type notifyCall struct {
	conversationID string
	messageID      string
	first          bool
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (f *fakeNotifier) Notify(ctx context.Context, conv *store.Conversation, msg *store.Message, first bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{conv.ID, msg.ID, first})
	return true
}

func (f *fakeNotifier) Calls() []notifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notifyCall(nil), f.calls...)
}

type fakeEvaluator struct {
	mu      sync.Mutex
	handled []string
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, conversationID string, msg *store.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled = append(f.handled, msg.ID)
}

func (f *fakeEvaluator) Handled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.handled...)
}

type serviceFixture struct {
	store     *store.MockStore
	registry  *Registry
	notifier  *fakeNotifier
	evaluator *fakeEvaluator
	svc       *Service
}

func newServiceFixture(t *testing.T, mode store.Mode, repID string) *serviceFixture {
	t.Helper()
	s := store.NewMockStore()
	require.NoError(t, s.CreateConversation(context.Background(), &store.Conversation{
		ID: "conv-1", Status: store.StatusActive, Mode: mode, RepresentativeID: repID,
	}))

	reg := NewRegistry(time.Minute, nil)
	n := &fakeNotifier{}
	e := &fakeEvaluator{}
	svc := New(s, reg, n, nil)
	svc.SetEvaluator(e)

	return &serviceFixture{store: s, registry: reg, notifier: n, evaluator: e, svc: svc}
}

func (f *serviceFixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Wait(ctx))
}

func TestService_Submit_PersistsThenBroadcastsExcludingSender(t *testing.T) {
	f := newServiceFixture(t, store.ModeAutomated, "")
	sender, peer := NewRecordingConn(), NewRecordingConn()
	f.registry.Join("conv-1", sender)
	f.registry.Join("conv-1", peer)

	msg, err := f.svc.Submit(t.Context(), PostRequest{
		ConversationID: "conv-1",
		Content:        "hello",
		Sender:         Customer,
		Exclude:        sender,
	})
	require.NoError(t, err)
	f.wait(t)

	stored, err := f.store.GetMessages(t.Context(), "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, msg.ID, stored[0].ID)
	assert.Equal(t, store.SenderCustomer, stored[0].SenderType)

	assert.Empty(t, sender.Events())
	got := peer.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, msg.ID, got[0].ID)
	assert.Equal(t, "hello", got[0].Content)
}

func TestService_Submit_CustomerNotifiesAndEvaluates(t *testing.T) {
	f := newServiceFixture(t, store.ModeAutomated, "")

	first, err := f.svc.Submit(t.Context(), PostRequest{ConversationID: "conv-1", Content: "one", Sender: Customer})
	require.NoError(t, err)
	second, err := f.svc.Submit(t.Context(), PostRequest{ConversationID: "conv-1", Content: "two", Sender: Customer})
	require.NoError(t, err)
	f.wait(t)

	calls := f.notifier.Calls()
	require.Len(t, calls, 2)
	firstFlags := map[string]bool{}
	for _, c := range calls {
		firstFlags[c.messageID] = c.first
	}
	assert.True(t, firstFlags[first.ID])
	assert.False(t, firstFlags[second.ID])

	assert.ElementsMatch(t, []string{first.ID, second.ID}, f.evaluator.Handled())
}

func TestService_Submit_HumanModeSkipsEvaluation(t *testing.T) {
	f := newServiceFixture(t, store.ModeHuman, "rep-1")

	_, err := f.svc.Submit(t.Context(), PostRequest{ConversationID: "conv-1", Content: "anyone?", Sender: Customer})
	require.NoError(t, err)
	f.wait(t)

	assert.Empty(t, f.evaluator.Handled())
	assert.Len(t, f.notifier.Calls(), 1, "customer messages still notify staff")
}

func TestService_Submit_RepresentativeSkipsNotifyAndEvaluate(t *testing.T) {
	f := newServiceFixture(t, store.ModeAutomated, "")

	_, err := f.svc.Submit(t.Context(), PostRequest{
		ConversationID: "conv-1",
		Content:        "Hi, I'm Rita",
		Sender:         Sender{Type: store.SenderRepresentative, ID: "rep-1"},
	})
	require.NoError(t, err)
	f.wait(t)

	assert.Empty(t, f.notifier.Calls())
	assert.Empty(t, f.evaluator.Handled())
}

func TestService_Post_Validation(t *testing.T) {
	f := newServiceFixture(t, store.ModeAutomated, "")

	_, err := f.svc.Post(t.Context(), PostRequest{ConversationID: "conv-1", Content: "x", Sender: Sender{Type: store.SenderRepresentative}})
	assert.Error(t, err, "representative without id")

	_, err = f.svc.Post(t.Context(), PostRequest{ConversationID: "conv-1", Content: "x", Sender: Sender{Type: "bot"}})
	assert.Error(t, err)

	_, err = f.svc.Post(t.Context(), PostRequest{ConversationID: "conv-1", Content: "", Sender: Customer})
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestService_Post_UnknownConversation(t *testing.T) {
	f := newServiceFixture(t, store.ModeAutomated, "")

	_, err := f.svc.Post(t.Context(), PostRequest{ConversationID: "missing", Content: "x", Sender: Customer})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_Post_PersistFailureDoesNotBroadcast(t *testing.T) {
	f := newServiceFixture(t, store.ModeAutomated, "")
	peer := NewRecordingConn()
	f.registry.Join("conv-1", peer)

	f.store.SaveMessageErr = errors.New("disk full")

	_, err := f.svc.Submit(t.Context(), PostRequest{ConversationID: "conv-1", Content: "x", Sender: Customer})
	require.Error(t, err)
	f.wait(t)

	assert.Empty(t, peer.Events())
	assert.Empty(t, f.evaluator.Handled())
}

func TestService_Post_SurvivesCancelledContext(t *testing.T) {
	f := newServiceFixture(t, store.ModeAutomated, "")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := f.svc.Post(ctx, PostRequest{ConversationID: "conv-1", Content: "late", Sender: Customer})
	require.NoError(t, err)

	n, err := f.store.CountMessages(t.Context(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestService_BroadcastOrderMatchesStoreOrder(t *testing.T) {
	f := newServiceFixture(t, store.ModeHuman, "rep-1")
	watcher := NewRecordingConn()
	f.registry.Join("conv-1", watcher)

	var wg sync.WaitGroup
	for i := range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Post(t.Context(), PostRequest{
				ConversationID: "conv-1",
				Content:        fmt.Sprintf("msg %d", i),
				Sender:         Sender{Type: store.SenderRepresentative, ID: "rep-1"},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := f.store.GetMessages(t.Context(), "conv-1", 0)
	require.NoError(t, err)

	broadcast := watcher.Messages()
	require.Len(t, broadcast, len(stored))
	for i := range stored {
		assert.Equal(t, stored[i].ID, broadcast[i].ID)
	}
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := keyedMutex{locks: make(map[string]*refMutex)}
	unlock := k.Lock("a")
	assert.Len(t, k.locks, 1)
	unlock()
	assert.Empty(t, k.locks)
}

func TestNormalizeContent(t *testing.T) {
	got, err := NormalizeContent("  hi  ", 10)
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	_, err = NormalizeContent("   ", 10)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "content", vErr.Issues[0].Field)

	_, err = NormalizeContent("ééééé", 5)
	assert.NoError(t, err, "limit counts characters, not bytes")

	_, err = NormalizeContent("abcdef", 5)
	assert.Error(t, err)
}
