// ABOUTME: Store interface and data types for switchboard persistence
// ABOUTME: Defines Conversation, Message, User, EmailThread and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrModeConflict is returned by TransitionMode when the conversation is not
// in one of the expected source modes.
var ErrModeConflict = errors.New("conversation mode changed")

// ErrDuplicateUser is returned when creating a user whose email is taken
var ErrDuplicateUser = errors.New("user already exists")

// ConversationStatus tracks whether a conversation is being worked on
type ConversationStatus string

const (
	StatusActive  ConversationStatus = "active"
	StatusWaiting ConversationStatus = "waiting"
	StatusClosed  ConversationStatus = "closed"
)

// Valid reports whether s is a known conversation status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusActive, StatusWaiting, StatusClosed:
		return true
	}
	return false
}

// Mode records who is answering the customer
type Mode string

const (
	ModeAutomated Mode = "automated"
	ModeEscalated Mode = "escalated"
	ModeHuman     Mode = "human"
)

// SenderType identifies the author kind of a message
type SenderType string

const (
	SenderCustomer       SenderType = "customer"
	SenderRepresentative SenderType = "representative"
	SenderAssistant      SenderType = "assistant"
	SenderSystem         SenderType = "system"
)

// Valid reports whether s is one of the known sender kinds.
func (s SenderType) Valid() bool {
	switch s {
	case SenderCustomer, SenderRepresentative, SenderAssistant, SenderSystem:
		return true
	}
	return false
}

// Role is a staff account role
type Role string

const (
	RoleRepresentative Role = "representative"
	RoleAdmin          Role = "admin"
)

// UserStatus is a representative's presence
type UserStatus string

const (
	UserOnline  UserStatus = "online"
	UserOffline UserStatus = "offline"
	UserBusy    UserStatus = "busy"
	UserAway    UserStatus = "away"
)

// Valid reports whether s is a known presence.
func (s UserStatus) Valid() bool {
	switch s {
	case UserOnline, UserOffline, UserBusy, UserAway:
		return true
	}
	return false
}

// Conversation is a support session with one customer.
// Mode human always has a RepresentativeID; the other modes never do.
type Conversation struct {
	ID               string
	CustomerName     string
	CustomerEmail    string
	WebsiteID        string
	Status           ConversationStatus
	Mode             Mode
	RepresentativeID string
	LastActivityAt   time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Message is an immutable entry in a conversation
type Message struct {
	ID             string
	ConversationID string
	SenderType     SenderType
	SenderID       string // empty for customer, assistant and system
	Content        string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// User is a staff account that can join conversations as a representative
type User struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	Status    UserStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EmailThread tracks the Message-ID chain of notification emails for a conversation
type EmailThread struct {
	ConversationID string
	ThreadID       string
	RootMessageID  string
	LastMessageID  string
	References     []string
	UpdatedAt      time.Time
}

// Stats summarizes conversation load for the representative dashboard.
type Stats struct {
	TotalConversations    int
	ActiveConversations   int
	WaitingConversations  int
	ClosedConversations   int
	OnlineRepresentatives int
}

// ModeTransition describes a compare-and-set change of conversation mode.
// The update applies only while the current mode is one of From.
type ModeTransition struct {
	From             []Mode
	To               Mode
	Status           ConversationStatus
	RepresentativeID string
}

// Store defines the persistence operations used by switchboard
type Store interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, limit int) ([]*Conversation, error)
	// TransitionMode applies t atomically and returns the updated conversation.
	// Returns ErrNotFound for unknown ids and ErrModeConflict when the
	// current mode is not in t.From.
	TransitionMode(ctx context.Context, id string, t ModeTransition) (*Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	// SetConversationStatus changes status only; mode is owned by
	// TransitionMode. Returns ErrNotFound for unknown ids.
	SetConversationStatus(ctx context.Context, id string, status ConversationStatus) (*Conversation, error)
	ConversationStats(ctx context.Context) (*Stats, error)

	SaveMessage(ctx context.Context, msg *Message) error
	// GetMessages returns messages in conversation order. A positive limit
	// returns only the most recent limit messages.
	GetMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	// GetMessagesAfter returns messages strictly after afterID. An empty or
	// unknown afterID returns every message.
	GetMessagesAfter(ctx context.Context, conversationID, afterID string) ([]*Message, error)
	CountMessages(ctx context.Context, conversationID string) (int, error)

	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	UpdateUserStatus(ctx context.Context, id string, status UserStatus) error

	GetEmailThread(ctx context.Context, conversationID string) (*EmailThread, error)
	SaveEmailThread(ctx context.Context, thread *EmailThread) error

	Close() error
}

// ValidateModeInvariant reports whether the representative assignment
// matches the conversation mode.
func ValidateModeInvariant(c *Conversation) error {
	switch c.Mode {
	case ModeHuman:
		if c.RepresentativeID == "" {
			return errors.New("human mode requires a representative")
		}
	case ModeAutomated, ModeEscalated:
		if c.RepresentativeID != "" {
			return errors.New("only human mode may carry a representative")
		}
	default:
		return errors.New("unknown mode " + string(c.Mode))
	}
	return nil
}
