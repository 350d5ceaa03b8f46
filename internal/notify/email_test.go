// ABOUTME: Tests for the email notifier
// ABOUTME: Verifies subjects and threading headers across consecutive notifications

package notify

import (
	"bytes"
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/switchboard/internal/config"
	"github.com/2389/switchboard/internal/store"
)

type sentMail struct {
	from string
	to   []string
	msg  *mail.Message
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, from string, to []string, raw []byte) error {
	if f.err != nil {
		return f.err
	}
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{from: from, to: to, msg: msg})
	return nil
}

func testEmailConfig() config.EmailConfig {
	return config.EmailConfig{
		Enabled:         true,
		SMTPHost:        "mail.example.com",
		SMTPPort:        587,
		FromEmail:       "support@example.com",
		FromName:        "Support",
		Recipients:      []string{"team@example.com", "lead@example.com"},
		SubjectPrefix:   "[SUPPORT]",
		ThreadModifier:  "#SB",
		EnableThreading: true,
		AppURL:          "https://app.example.com",
	}
}

func TestEmail_ThreadsConsecutiveMessages(t *testing.T) {
	threads := store.NewMockStore()
	mailer := &fakeMailer{}
	e := NewEmail(testEmailConfig(), threads, mailer, nil)

	require.True(t, e.Notify(t.Context(), testConversation(), testMessage("first"), true))
	require.True(t, e.Notify(t.Context(), testConversation(), testMessage("second"), false))
	require.Len(t, mailer.sent, 2)

	thread, err := threads.GetEmailThread(t.Context(), "conv-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(thread.ThreadID, "thread-conv-1-"))
	assert.Equal(t, "<"+thread.ThreadID+"@mail.example.com>", thread.RootMessageID)

	first := mailer.sent[0].msg.Header
	second := mailer.sent[1].msg.Header

	assert.Equal(t, "[SUPPORT] Chat Message - pat@example.com #SB"+thread.ThreadID, first.Get("Subject"))
	assert.Equal(t, "Re: [SUPPORT] Chat Message - pat@example.com #SB"+thread.ThreadID, second.Get("Subject"))

	assert.Empty(t, first.Get("In-Reply-To"))
	assert.Equal(t, thread.RootMessageID, first.Get("References"))

	firstID := first.Get("Message-ID")
	assert.Equal(t, firstID, second.Get("In-Reply-To"))
	assert.Equal(t, thread.RootMessageID+" "+firstID, second.Get("References"))

	assert.Equal(t, second.Get("Message-ID"), thread.LastMessageID)
	assert.Equal(t, []string{thread.RootMessageID, firstID, second.Get("Message-ID")}, thread.References)

	assert.Equal(t, "support@example.com", mailer.sent[0].from)
	assert.Equal(t, []string{"team@example.com", "lead@example.com"}, mailer.sent[0].to)
	assert.Contains(t, first.Get("Content-Type"), "multipart/alternative")
}

func TestEmail_NewThreadWhenStoreEmpty(t *testing.T) {
	mailer := &fakeMailer{}
	e := NewEmail(testEmailConfig(), store.NewMockStore(), mailer, nil)

	// Not flagged first, but there is no thread yet.
	require.True(t, e.Notify(t.Context(), testConversation(), testMessage("hello"), false))
	subject := mailer.sent[0].msg.Header.Get("Subject")
	assert.False(t, strings.HasPrefix(subject, "Re: "), subject)
}

func TestEmail_WithoutThreading(t *testing.T) {
	cfg := testEmailConfig()
	cfg.EnableThreading = false
	mailer := &fakeMailer{}
	threads := store.NewMockStore()
	e := NewEmail(cfg, threads, mailer, nil)

	conv := testConversation()
	conv.CustomerEmail = ""
	require.True(t, e.Notify(t.Context(), conv, testMessage("hi"), true))

	h := mailer.sent[0].msg.Header
	assert.Equal(t, "Chat Message - Anonymous Customer", h.Get("Subject"))
	assert.Empty(t, h.Get("References"))

	_, err := threads.GetEmailThread(t.Context(), "conv-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEmail_SendFailureKeepsThread(t *testing.T) {
	threads := store.NewMockStore()
	mailer := &fakeMailer{err: errors.New("connection refused")}
	e := NewEmail(testEmailConfig(), threads, mailer, nil)

	assert.False(t, e.Notify(t.Context(), testConversation(), testMessage("hi"), true))

	thread, err := threads.GetEmailThread(t.Context(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, thread.RootMessageID, thread.LastMessageID)
	assert.Len(t, thread.References, 1)
}

func TestEmail_NoRecipients(t *testing.T) {
	cfg := testEmailConfig()
	cfg.Recipients = nil
	mailer := &fakeMailer{}
	e := NewEmail(cfg, store.NewMockStore(), mailer, nil)

	assert.False(t, e.Notify(t.Context(), testConversation(), testMessage("hi"), true))
	assert.Empty(t, mailer.sent)
}
