// ABOUTME: Staff notification fan-out for customer messages
// ABOUTME: Builds the configured channels and delivers to all of them concurrently

package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/yuin/goldmark"
	"golang.org/x/sync/errgroup"

	"github.com/2389/switchboard/internal/config"
	"github.com/2389/switchboard/internal/store"
)

// Notifier alerts staff about a customer message. It reports whether the
// notification was delivered; callers never act on failure.
type Notifier interface {
	Notify(ctx context.Context, conv *store.Conversation, msg *store.Message, isFirstInThread bool) bool
}

// Multi delivers to several notifiers at once.
type Multi struct {
	notifiers []namedNotifier
	logger    *slog.Logger
}

type namedNotifier struct {
	name string
	n    Notifier
}

// NewMulti creates an empty Multi. Use Add to register channels.
func NewMulti(logger *slog.Logger) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{logger: logger.With("component", "notify")}
}

// Add registers a channel under name.
func (m *Multi) Add(name string, n Notifier) {
	m.notifiers = append(m.notifiers, namedNotifier{name: name, n: n})
}

// Len returns the number of registered channels.
func (m *Multi) Len() int {
	return len(m.notifiers)
}

// Notify delivers to every channel concurrently and reports whether at
// least one succeeded.
func (m *Multi) Notify(ctx context.Context, conv *store.Conversation, msg *store.Message, isFirstInThread bool) bool {
	var delivered atomic.Bool
	eg := errgroup.Group{}
	for _, nn := range m.notifiers {
		eg.Go(func() error {
			if nn.n.Notify(ctx, conv, msg, isFirstInThread) {
				delivered.Store(true)
			} else {
				m.logger.Warn("notification failed", "channel", nn.name, "conversation_id", conv.ID)
			}
			return nil
		})
	}
	_ = eg.Wait()
	return delivered.Load()
}

// FromConfig builds a Multi with every enabled channel. threads persists
// email thread state and may be nil when email is disabled.
func FromConfig(cfg config.NotifyConfig, threads ThreadStore, logger *slog.Logger) (*Multi, error) {
	m := NewMulti(logger)

	if cfg.Email.Enabled {
		if threads == nil {
			return nil, fmt.Errorf("email notifications need a thread store")
		}
		m.Add("email", NewEmail(cfg.Email, threads, nil, logger))
	}
	if cfg.Slack.Enabled {
		m.Add("slack", NewSlack(cfg.Slack, nil, logger))
	}
	if cfg.Matrix.Enabled {
		mx, err := NewMatrix(cfg.Matrix, logger)
		if err != nil {
			return nil, err
		}
		m.Add("matrix", mx)
	}
	return m, nil
}

// summary is the channel-neutral content of a notification.
type summary struct {
	Customer string
	Website  string
	Time     time.Time
	Content  string
	Link     string
	ThreadID string
}

func newSummary(conv *store.Conversation, msg *store.Message, appURL string) summary {
	s := summary{
		Customer: conv.CustomerEmail,
		Website:  conv.WebsiteID,
		Time:     msg.CreatedAt,
		Content:  msg.Content,
	}
	if s.Customer == "" {
		s.Customer = "Anonymous"
	}
	if s.Website == "" {
		s.Website = "Unknown"
	}
	if appURL != "" {
		s.Link = fmt.Sprintf("%s/conversations?selected=%s", strings.TrimRight(appURL, "/"), conv.ID)
	}
	return s
}

// Markdown renders the summary for chat channels and as the email HTML source.
func (s summary) Markdown() string {
	var b strings.Builder
	b.WriteString("**New customer chat message**\n\n")
	if s.ThreadID != "" {
		fmt.Fprintf(&b, "- Thread: %s\n", s.ThreadID)
	}
	fmt.Fprintf(&b, "- Customer: %s\n", s.Customer)
	fmt.Fprintf(&b, "- Website: %s\n", s.Website)
	fmt.Fprintf(&b, "- Time: %s\n\n", s.Time.UTC().Format(time.RFC1123))
	for _, line := range strings.Split(s.Content, "\n") {
		fmt.Fprintf(&b, "> %s\n", line)
	}
	if s.Link != "" {
		fmt.Fprintf(&b, "\n[View full conversation](%s)\n", s.Link)
	}
	return b.String()
}

// Text renders the summary as plain text.
func (s summary) Text() string {
	var b strings.Builder
	if s.ThreadID != "" {
		fmt.Fprintf(&b, "Thread: %s\n", s.ThreadID)
	}
	fmt.Fprintf(&b, "New message from %s\n", s.Customer)
	fmt.Fprintf(&b, "Website: %s\n", s.Website)
	fmt.Fprintf(&b, "Time: %s\n", s.Time.UTC().Format(time.RFC1123))
	fmt.Fprintf(&b, "Message: %s\n", s.Content)
	if s.Link != "" {
		fmt.Fprintf(&b, "View conversation: %s\n", s.Link)
	}
	return b.String()
}

// HTML renders the summary through goldmark. Raw HTML in customer content
// is not passed through.
func (s summary) HTML() (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(s.Markdown()), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}
