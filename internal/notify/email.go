// ABOUTME: SMTP notifier that keeps every conversation in one mail thread
// ABOUTME: Tracks Message-ID, In-Reply-To and References per conversation in the store

package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/switchboard/internal/config"
	"github.com/2389/switchboard/internal/store"
)

// ThreadStore persists email thread state per conversation.
type ThreadStore interface {
	GetEmailThread(ctx context.Context, conversationID string) (*store.EmailThread, error)
	SaveEmailThread(ctx context.Context, thread *store.EmailThread) error
}

// MailSender delivers a fully formed RFC 5322 message.
type MailSender interface {
	Send(ctx context.Context, from string, to []string, msg []byte) error
}

// SMTPSender sends through net/smtp with PLAIN auth when a user is set.
type SMTPSender struct {
	Addr string
	Auth smtp.Auth
}

// NewSMTPSender creates a sender for the configured server.
func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	s := &SMTPSender{Addr: net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort))}
	if cfg.SMTPUser != "" {
		s.Auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return s
}

// Send delivers msg. net/smtp has no context support, so cancellation only
// stops the wait.
func (s *SMTPSender) Send(ctx context.Context, from string, to []string, msg []byte) error {
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.Addr, s.Auth, from, to, msg)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Email notifies staff mailboxes about customer messages.
type Email struct {
	cfg     config.EmailConfig
	threads ThreadStore
	mailer  MailSender
	logger  *slog.Logger
	now     func() time.Time

	// mu serializes thread read-modify-write.
	mu sync.Mutex
}

// NewEmail creates an Email notifier. A nil mailer sends over SMTP.
func NewEmail(cfg config.EmailConfig, threads ThreadStore, mailer MailSender, logger *slog.Logger) *Email {
	if logger == nil {
		logger = slog.Default()
	}
	if mailer == nil {
		mailer = NewSMTPSender(cfg)
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = config.DefaultSubjectPrefix
	}
	if cfg.ThreadModifier == "" {
		cfg.ThreadModifier = config.DefaultThreadModifier
	}
	return &Email{
		cfg:     cfg,
		threads: threads,
		mailer:  mailer,
		logger:  logger.With("component", "notify.email"),
		now:     time.Now,
	}
}

// Notify sends one email for msg. With threading enabled every email of a
// conversation references the previous ones.
func (e *Email) Notify(ctx context.Context, conv *store.Conversation, msg *store.Message, isFirstInThread bool) bool {
	if len(e.cfg.Recipients) == 0 {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sum := newSummary(conv, msg, e.cfg.AppURL)
	base := "Chat Message - " + customerLabel(conv)
	subject := base
	headers := map[string]string{}

	var thread *store.EmailThread
	if e.cfg.EnableThreading {
		var created bool
		var err error
		thread, created, err = e.thread(ctx, conv.ID)
		if err != nil {
			e.logger.Error("failed to load email thread", "conversation_id", conv.ID, "error", err)
			return false
		}
		sum.ThreadID = thread.ThreadID
		subject = e.threadSubject(base, thread.ThreadID, isFirstInThread || created)

		if !isFirstInThread && !created {
			headers["In-Reply-To"] = thread.LastMessageID
		}
		headers["References"] = strings.Join(thread.References, " ")
		headers["Thread-Topic"] = thread.ThreadID
		headers["Thread-Index"] = base64.StdEncoding.EncodeToString([]byte(thread.ThreadID))
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), e.domain())
	raw, err := e.compose(subject, messageID, headers, sum)
	if err != nil {
		e.logger.Error("failed to compose email", "conversation_id", conv.ID, "error", err)
		return false
	}

	if err := e.mailer.Send(ctx, e.cfg.FromEmail, e.cfg.Recipients, raw); err != nil {
		e.logger.Error("failed to send email", "conversation_id", conv.ID, "error", err)
		return false
	}

	if thread != nil {
		thread.LastMessageID = messageID
		thread.References = append(thread.References, messageID)
		thread.UpdatedAt = e.now().UTC()
		if err := e.threads.SaveEmailThread(context.WithoutCancel(ctx), thread); err != nil {
			e.logger.Warn("failed to update email thread", "conversation_id", conv.ID, "error", err)
		}
	}

	e.logger.Debug("email sent", "conversation_id", conv.ID, "message_id", messageID)
	return true
}

// thread loads the conversation's thread, creating it on first use.
func (e *Email) thread(ctx context.Context, conversationID string) (*store.EmailThread, bool, error) {
	t, err := e.threads.GetEmailThread(ctx, conversationID)
	if err == nil {
		return t, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	threadID := fmt.Sprintf("thread-%s-%s", conversationID, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	root := fmt.Sprintf("<%s@%s>", threadID, e.domain())
	t = &store.EmailThread{
		ConversationID: conversationID,
		ThreadID:       threadID,
		RootMessageID:  root,
		LastMessageID:  root,
		References:     []string{root},
		UpdatedAt:      e.now().UTC(),
	}
	if err := e.threads.SaveEmailThread(ctx, t); err != nil {
		return nil, false, fmt.Errorf("saving email thread: %w", err)
	}
	return t, true, nil
}

func (e *Email) threadSubject(base, threadID string, first bool) string {
	subject := fmt.Sprintf("%s %s %s%s", e.cfg.SubjectPrefix, base, e.cfg.ThreadModifier, threadID)
	if first {
		return subject
	}
	return "Re: " + subject
}

func (e *Email) domain() string {
	if e.cfg.SMTPHost != "" {
		return e.cfg.SMTPHost
	}
	return "switchboard.local"
}

// compose builds a multipart/alternative message with text and HTML parts.
func (e *Email) compose(subject, messageID string, extra map[string]string, sum summary) ([]byte, error) {
	html, err := sum.HTML()
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, part := range []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", sum.Text()},
		{"text/html; charset=utf-8", html},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(part.content)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	from := mail.Address{Name: e.cfg.FromName, Address: e.cfg.FromEmail}
	var msg bytes.Buffer
	writeHeader := func(k, v string) {
		fmt.Fprintf(&msg, "%s: %s\r\n", k, v)
	}
	writeHeader("From", from.String())
	writeHeader("To", strings.Join(e.cfg.Recipients, ", "))
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", subject))
	writeHeader("Date", e.now().Format(time.RFC1123Z))
	writeHeader("Message-ID", messageID)
	for _, k := range []string{"In-Reply-To", "References", "Thread-Topic", "Thread-Index"} {
		if v, ok := extra[k]; ok && v != "" {
			writeHeader(k, v)
		}
	}
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func customerLabel(conv *store.Conversation) string {
	if conv.CustomerEmail != "" {
		return conv.CustomerEmail
	}
	return "Anonymous Customer"
}
