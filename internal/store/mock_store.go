// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
// Errors can be injected per operation through the exported hook fields.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      map[string][]*Message // keyed by conversation ID, insertion order
	users         map[string]*User
	emailThreads  map[string]*EmailThread

	// SaveMessageErr, when set, is returned by SaveMessage.
	SaveMessageErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
		users:         make(map[string]*User),
		emailThreads:  make(map[string]*EmailThread),
	}
}

// CreateConversation stores a new conversation.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	if err := ValidateModeInvariant(conv); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[conv.ID]; ok {
		return fmt.Errorf("conversation %s already exists", conv.ID)
	}

	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}
	if conv.LastActivityAt.IsZero() {
		conv.LastActivityAt = conv.CreatedAt
	}

	c := *conv
	m.conversations[c.ID] = &c
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ListConversations returns conversations by most recent activity.
func (m *MockStore) ListConversations(ctx context.Context, limit int) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Conversation
	for _, c := range m.conversations {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TransitionMode applies a compare-and-set mode change.
func (m *MockStore) TransitionMode(ctx context.Context, id string, t ModeTransition) (*Conversation, error) {
	if err := ValidateModeInvariant(&Conversation{Mode: t.To, RepresentativeID: t.RepresentativeID}); err != nil {
		return nil, fmt.Errorf("transition to %s: %w", t.To, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !slices.Contains(t.From, c.Mode) {
		return nil, ErrModeConflict
	}

	c.Mode = t.To
	c.Status = t.Status
	c.RepresentativeID = t.RepresentativeID
	c.UpdatedAt = time.Now().UTC()

	cp := *c
	return &cp, nil
}

// TouchConversation records activity on a conversation.
func (m *MockStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.LastActivityAt = at
	return nil
}

// SetConversationStatus changes a conversation's status.
func (m *MockStore) SetConversationStatus(ctx context.Context, id string, status ConversationStatus) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	return &cp, nil
}

// ConversationStats counts conversations by status and online representatives.
func (m *MockStore) ConversationStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := &Stats{TotalConversations: len(m.conversations)}
	for _, c := range m.conversations {
		switch c.Status {
		case StatusActive:
			st.ActiveConversations++
		case StatusWaiting:
			st.WaitingConversations++
		case StatusClosed:
			st.ClosedConversations++
		}
	}
	for _, u := range m.users {
		if u.Role == RoleRepresentative && u.Status == UserOnline {
			st.OnlineRepresentatives++
		}
	}
	return st, nil
}

// SaveMessage appends a message.
func (m *MockStore) SaveMessage(ctx context.Context, msg *Message) error {
	if m.SaveMessageErr != nil {
		return m.SaveMessageErr
	}
	if !msg.SenderType.Valid() {
		return fmt.Errorf("invalid sender type %q", msg.SenderType)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[msg.ConversationID]; !ok {
		return ErrNotFound
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	cp := *msg
	cp.Metadata = maps.Clone(msg.Metadata)
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &cp)
	return nil
}

// ordered returns copies of a conversation's messages sorted by creation
// time, falling back to insertion order. Caller must hold the lock.
func (m *MockStore) ordered(conversationID string) []*Message {
	src := m.messages[conversationID]
	out := make([]*Message, len(src))
	for i, msg := range src {
		cp := *msg
		cp.Metadata = maps.Clone(msg.Metadata)
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GetMessages returns messages in conversation order.
func (m *MockStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.ordered(conversationID)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// GetMessagesAfter returns the messages following afterID.
func (m *MockStore) GetMessagesAfter(ctx context.Context, conversationID, afterID string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.ordered(conversationID)
	if afterID == "" {
		return msgs, nil
	}
	for i, msg := range msgs {
		if msg.ID == afterID {
			return msgs[i+1:], nil
		}
	}
	return msgs, nil
}

// CountMessages returns the number of stored messages for a conversation.
func (m *MockStore) CountMessages(ctx context.Context, conversationID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages[conversationID]), nil
}

// CreateUser stores a staff account.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == user.Email {
			return ErrDuplicateUser
		}
	}
	if user.Status == "" {
		user.Status = UserOffline
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
		user.UpdatedAt = user.CreatedAt
	}
	cp := *user
	m.users[cp.ID] = &cp
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// ListUsers returns all users ordered by name.
func (m *MockStore) ListUsers(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpdateUserStatus sets a user's presence.
func (m *MockStore) UpdateUserStatus(ctx context.Context, id string, status UserStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Status = status
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// GetEmailThread returns the stored thread for a conversation.
func (m *MockStore) GetEmailThread(ctx context.Context, conversationID string) (*EmailThread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	th, ok := m.emailThreads[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *th
	cp.References = slices.Clone(th.References)
	return &cp, nil
}

// SaveEmailThread stores a thread, replacing any existing one.
func (m *MockStore) SaveEmailThread(ctx context.Context, thread *EmailThread) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *thread
	cp.References = slices.Clone(thread.References)
	cp.UpdatedAt = time.Now().UTC()
	m.emailThreads[cp.ConversationID] = &cp
	return nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time check that MockStore implements Store
var _ Store = (*MockStore)(nil)
