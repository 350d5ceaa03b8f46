// ABOUTME: Chat-completion client used for automated replies, handoff classification and reply suggestions
// ABOUTME: Talks to any OpenAI-compatible endpoint through go-openai

package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/2389/switchboard/internal/config"
	"github.com/2389/switchboard/internal/store"
)

// EmptyReply is returned by Complete when the backend answers with no text.
const EmptyReply = "I apologize, but I'm unable to provide a response at the moment. Please wait for a human representative."

// classifyHistory is how many trailing turns the handoff classifier sees.
const classifyHistory = 5

// suggestionMaxTokens bounds each suggested reply.
const suggestionMaxTokens = 300

const classifierPrompt = `You decide whether a customer support conversation needs a human representative.
Read the latest customer message and the recent history.
Escalate for complex technical problems, complaints, billing disputes, refund requests, signs of emotional distress, or when the customer asks for a manager.
Answer only with JSON of the form {"shouldHandoff": boolean, "reason": "string"}.`

// ErrNoSuggestions is returned when every suggestion persona failed.
var ErrNoSuggestions = errors.New("no suggestions generated")

// Role is the speaker of a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of conversation history as the model sees it.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// HistoryFromMessages maps stored messages to model turns. Customer
// messages become user turns, everything else is an assistant turn.
func HistoryFromMessages(msgs []*store.Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		role := RoleAssistant
		if m.SenderType == store.SenderCustomer {
			role = RoleUser
		}
		turns = append(turns, Turn{Role: role, Content: m.Content})
	}
	return turns
}

// CompletionOptions overrides the configured defaults for one call.
// Zero values fall back to the client configuration.
type CompletionOptions struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
}

// Decision is the classifier's verdict on a customer message.
type Decision struct {
	ShouldHandoff bool   `json:"shouldHandoff"`
	Reason        string `json:"reason"`
}

// Persona is a suggestion style offered to representatives.
type Persona struct {
	ID     string
	Name   string
	Prompt string
}

// Personas are the reply styles generated by Suggest, in display order.
var Personas = []Persona{
	{
		ID:     "professional",
		Name:   "Professional & Direct",
		Prompt: "You are a professional customer service representative. Answer clearly and directly and focus on resolving the customer's issue efficiently.",
	},
	{
		ID:     "empathetic",
		Name:   "Empathetic & Supportive",
		Prompt: "You are a warm and empathetic customer service representative. Acknowledge how the customer feels and reply in a reassuring, helpful way.",
	},
	{
		ID:     "detailed",
		Name:   "Detailed & Educational",
		Prompt: "You are a knowledgeable customer service representative. Give a thorough answer with step-by-step guidance and the context the customer needs.",
	},
}

// Suggestion is one candidate reply for a representative.
type Suggestion struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Client wraps an OpenAI-compatible chat completion API.
type Client struct {
	api      *openai.Client
	cfg      config.AssistantConfig
	personas []Persona
	logger   *slog.Logger
}

// New creates a Client from configuration. BaseURL, when set, replaces the
// public OpenAI endpoint.
func New(cfg config.AssistantConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Client{
		api:      openai.NewClientWithConfig(oc),
		cfg:      cfg,
		personas: Personas,
		logger:   logger.With("component", "assistant"),
	}
}

// Complete generates a reply to history. An empty answer yields EmptyReply.
func (c *Client) Complete(ctx context.Context, history []Turn, opts CompletionOptions) (string, error) {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = c.cfg.SystemPrompt
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = c.cfg.MaxTokens
	}
	if opts.Temperature <= 0 {
		opts.Temperature = c.cfg.Temperature
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: opts.SystemPrompt})
	for _, t := range history {
		role := openai.ChatMessageRoleAssistant
		if t.Role == RoleUser {
			role = openai.ChatMessageRoleUser
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}

	content, err := c.create(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generating reply: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return EmptyReply, nil
	}
	return content, nil
}

// ClassifyHandoff asks the model whether message should go to a human.
// An empty or missing verdict means no handoff.
func (c *Client) ClassifyHandoff(ctx context.Context, message string, history []Turn) (Decision, error) {
	if len(history) > classifyHistory {
		history = history[len(history)-classifyHistory:]
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return Decision{}, fmt.Errorf("encoding history: %w", err)
	}

	content, err := c.create(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Customer message: %q\n\nConversation history: %s", message, historyJSON)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return Decision{}, fmt.Errorf("classifying message: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return Decision{}, nil
	}

	var d Decision
	if err := json.Unmarshal([]byte(content), &d); err != nil {
		return Decision{}, fmt.Errorf("parsing classifier verdict: %w", err)
	}
	return d, nil
}

// Suggest generates one candidate reply per persona concurrently. Failed
// personas are dropped; ErrNoSuggestions is returned when all fail.
func (c *Client) Suggest(ctx context.Context, history []Turn) ([]Suggestion, error) {
	results := make([]*Suggestion, len(c.personas))
	var (
		mu   sync.Mutex
		errs []error
	)

	eg := errgroup.Group{}
	for i, p := range c.personas {
		eg.Go(func() error {
			content, err := c.Complete(ctx, history, CompletionOptions{
				SystemPrompt: p.Prompt,
				MaxTokens:    suggestionMaxTokens,
			})
			if err != nil {
				c.logger.Warn("suggestion failed", "persona", p.ID, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				// Other personas still run.
				return nil
			}
			results[i] = &Suggestion{ID: p.ID, Name: p.Name, Content: content}
			return nil
		})
	}
	_ = eg.Wait()

	out := make([]Suggestion, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoSuggestions, errors.Join(errs...))
	}
	return out, nil
}

func (c *Client) create(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
