// ABOUTME: Controller owns conversation mode: automated replies, escalation and representative takeover
// ABOUTME: All mode writes are compare-and-set so concurrent transitions resolve to one winner

package handoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/switchboard/internal/assistant"
	"github.com/2389/switchboard/internal/conversation"
	"github.com/2389/switchboard/internal/store"
)

// Fixed customer-facing texts.
const (
	HandoffNotice   = "I understand you need additional assistance. I'm connecting you with one of our human representatives who will be with you shortly."
	FallbackReply   = "I apologize, but I'm experiencing technical difficulties. A human representative will assist you shortly."
	unavailableNote = "automated assistant unavailable"
)

// ErrInvalidTransition is returned when a takeover is attempted on a
// conversation that already has a representative.
var ErrInvalidTransition = errors.New("invalid mode transition")

// Generator produces automated replies and escalation verdicts.
type Generator interface {
	Complete(ctx context.Context, history []assistant.Turn, opts assistant.CompletionOptions) (string, error)
	ClassifyHandoff(ctx context.Context, message string, history []assistant.Turn) (assistant.Decision, error)
}

// Store is the persistence the controller needs.
type Store interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	GetMessages(ctx context.Context, conversationID string, limit int) ([]*store.Message, error)
	TransitionMode(ctx context.Context, id string, t store.ModeTransition) (*store.Conversation, error)
}

// Poster persists and broadcasts controller-authored messages.
type Poster interface {
	Post(ctx context.Context, req conversation.PostRequest) (*store.Message, error)
}

// Options tune reply generation.
type Options struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
	HistoryTurns int
	AutoHandoff  bool
}

// Representative identifies who takes over a conversation.
type Representative struct {
	ID   string
	Name string
}

// Controller decides how automated conversations are answered and moves
// them between automated, escalated and human.
type Controller struct {
	store  Store
	poster Poster
	gen    Generator
	opts   Options
	logger *slog.Logger
}

// New creates a Controller. A nil gen escalates every automated message.
func New(s Store, poster Poster, gen Generator, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 10
	}
	return &Controller{
		store:  s,
		poster: poster,
		gen:    gen,
		opts:   opts,
		logger: logger.With("component", "handoff"),
	}
}

// Evaluate answers a customer message in an automated conversation, either
// with a generated reply or by escalating to a human. It never returns an
// error. Unless a representative has visibly taken over, the customer gets a
// reply, a handoff notice or FallbackReply.
func (c *Controller) Evaluate(ctx context.Context, conversationID string, msg *store.Message) {
	logger := c.logger.With("conversation_id", conversationID, "message_id", msg.ID)

	// Callers only evaluate automated conversations, so an unreadable one
	// is still owed an answer.
	conv, err := c.store.GetConversation(ctx, conversationID)
	if err != nil {
		logger.Error("failed to load conversation", "error", err)
		c.reply(ctx, logger, conversationID, FallbackReply, map[string]any{"error": true})
		return
	}
	if conv.Mode != store.ModeAutomated {
		return
	}

	if c.gen == nil {
		c.escalate(ctx, conv, unavailableNote)
		return
	}

	msgs, err := c.store.GetMessages(ctx, conversationID, c.opts.HistoryTurns)
	if err != nil {
		logger.Error("failed to load history", "error", err)
		c.reply(ctx, logger, conversationID, FallbackReply, map[string]any{"error": true})
		return
	}
	history := assistant.HistoryFromMessages(msgs)

	if c.opts.AutoHandoff {
		decision, err := c.gen.ClassifyHandoff(ctx, msg.Content, history)
		if err != nil {
			logger.Warn("handoff classification failed, staying automated", "error", err)
		} else if decision.ShouldHandoff {
			c.escalate(ctx, conv, decision.Reason)
			return
		}
	}

	reply, err := c.gen.Complete(ctx, history, assistant.CompletionOptions{
		SystemPrompt: c.opts.SystemPrompt,
		MaxTokens:    c.opts.MaxTokens,
		Temperature:  c.opts.Temperature,
	})
	metadata := map[string]any{}
	if err != nil {
		logger.Error("failed to generate reply", "error", err)
		reply = FallbackReply
		metadata["error"] = true
	}

	// A representative may have taken over while the model was thinking.
	// Only a confirmed mode change drops the reply.
	current, err := c.store.GetConversation(ctx, conversationID)
	switch {
	case err != nil:
		logger.Warn("failed to reload conversation, sending reply anyway", "error", err)
	case current.Mode != store.ModeAutomated:
		logger.Info("dropping automated reply, conversation left automated mode", "mode", current.Mode)
		return
	}

	c.reply(ctx, logger, conversationID, reply, metadata)
}

// reply posts an assistant-authored message.
func (c *Controller) reply(ctx context.Context, logger *slog.Logger, conversationID, content string, metadata map[string]any) {
	if _, err := c.poster.Post(ctx, conversation.PostRequest{
		ConversationID: conversationID,
		Content:        content,
		Sender:         conversation.Sender{Type: store.SenderAssistant},
		Metadata:       metadata,
	}); err != nil {
		logger.Error("failed to post automated reply", "error", err)
	}
}

// escalate moves conv from automated to escalated and posts the handoff
// notice. Losing the compare-and-set means someone else already moved it.
func (c *Controller) escalate(ctx context.Context, conv *store.Conversation, reason string) {
	logger := c.logger.With("conversation_id", conv.ID)

	_, err := c.store.TransitionMode(ctx, conv.ID, store.ModeTransition{
		From:   []store.Mode{store.ModeAutomated},
		To:     store.ModeEscalated,
		Status: store.StatusWaiting,
	})
	if errors.Is(err, store.ErrModeConflict) {
		logger.Debug("escalation skipped, mode already changed")
		return
	}
	if err != nil {
		logger.Error("failed to escalate conversation", "error", err)
		return
	}

	content := HandoffNotice
	if reason != "" {
		content += " Reason: " + reason
	}
	if _, err := c.poster.Post(ctx, conversation.PostRequest{
		ConversationID: conv.ID,
		Content:        content,
		Sender:         conversation.Sender{Type: store.SenderSystem},
		Metadata:       map[string]any{"handoff_reason": reason},
	}); err != nil {
		logger.Error("failed to post handoff notice", "error", err)
		return
	}

	logger.Info("conversation escalated", "reason", reason)
}

// TakeOver assigns rep to the conversation and switches it to human mode.
// It fails with ErrInvalidTransition when a representative already owns it.
// A notice that cannot be posted is logged and the returned message is nil.
func (c *Controller) TakeOver(ctx context.Context, conversationID string, rep Representative) (*store.Conversation, *store.Message, error) {
	if rep.ID == "" {
		return nil, nil, fmt.Errorf("takeover requires a representative id")
	}

	conv, err := c.store.TransitionMode(ctx, conversationID, store.ModeTransition{
		From:             []store.Mode{store.ModeAutomated, store.ModeEscalated},
		To:               store.ModeHuman,
		Status:           store.StatusActive,
		RepresentativeID: rep.ID,
	})
	if errors.Is(err, store.ErrModeConflict) {
		return nil, nil, fmt.Errorf("%w: conversation %s already has a representative", ErrInvalidTransition, conversationID)
	}
	if err != nil {
		return nil, nil, err
	}

	name := rep.Name
	if name == "" {
		name = "A representative"
	}
	msg, err := c.poster.Post(ctx, conversation.PostRequest{
		ConversationID: conversationID,
		Content:        name + " has joined the conversation and will be assisting you.",
		Sender:         conversation.Sender{Type: store.SenderSystem},
		Metadata:       map[string]any{"takeover_by": rep.ID},
	})
	if err != nil {
		// The representative owns the conversation either way; a retry
		// would only hit ErrInvalidTransition.
		c.logger.Error("failed to post takeover notice", "conversation_id", conversationID, "error", err)
		msg = nil
	}

	c.logger.Info("conversation taken over", "conversation_id", conversationID, "representative_id", rep.ID)
	return conv, msg, nil
}

// Release hands a conversation back to the assistant, clearing any
// representative. It fails with ErrInvalidTransition when the conversation
// is already automated.
func (c *Controller) Release(ctx context.Context, conversationID string) (*store.Conversation, error) {
	conv, err := c.store.TransitionMode(ctx, conversationID, store.ModeTransition{
		From:   []store.Mode{store.ModeEscalated, store.ModeHuman},
		To:     store.ModeAutomated,
		Status: store.StatusActive,
	})
	if errors.Is(err, store.ErrModeConflict) {
		return nil, fmt.Errorf("%w: conversation %s is already automated", ErrInvalidTransition, conversationID)
	}
	if err != nil {
		return nil, err
	}

	c.logger.Info("conversation released to assistant", "conversation_id", conversationID)
	return conv, nil
}
