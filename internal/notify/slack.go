// ABOUTME: Slack incoming-webhook notifier
// ABOUTME: Posts a short mrkdwn summary of each customer message

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/switchboard/internal/config"
	"github.com/2389/switchboard/internal/store"
)

// Slack posts notifications to an incoming webhook.
type Slack struct {
	webhookURL string
	channel    string
	http       *http.Client
	logger     *slog.Logger
}

// NewSlack creates a Slack notifier. A nil client gets a 10s timeout.
func NewSlack(cfg config.SlackConfig, client *http.Client, logger *slog.Logger) *Slack {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Slack{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		http:       client,
		logger:     logger.With("component", "notify.slack"),
	}
}

// Notify posts msg to the webhook.
func (s *Slack) Notify(ctx context.Context, conv *store.Conversation, msg *store.Message, isFirstInThread bool) bool {
	if err := s.post(ctx, conv, msg, isFirstInThread); err != nil {
		s.logger.Error("failed to post to slack", "conversation_id", conv.ID, "error", err)
		return false
	}
	return true
}

func (s *Slack) post(ctx context.Context, conv *store.Conversation, msg *store.Message, first bool) error {
	if s.webhookURL == "" {
		return fmt.Errorf("missing slack webhook url")
	}

	sum := newSummary(conv, msg, "")
	header := "New message"
	if first {
		header = "New conversation"
	}
	text := fmt.Sprintf("*%s* from %s\n>%s", header, sum.Customer, strings.ReplaceAll(sum.Content, "\n", "\n>"))

	payload := map[string]any{"text": text}
	if s.channel != "" {
		payload["channel"] = s.channel
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("slack webhook returned %d: %s", res.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
