// ABOUTME: Matrix room notifier built on mautrix
// ABOUTME: Sends an HTML-formatted summary of each customer message to one room

package notify

import (
	"context"
	"fmt"
	"log/slog"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/switchboard/internal/config"
	"github.com/2389/switchboard/internal/store"
)

// Matrix posts notifications to a single Matrix room.
type Matrix struct {
	client *mautrix.Client
	roomID id.RoomID
	logger *slog.Logger
}

// NewMatrix creates a Matrix notifier logged in with an access token.
func NewMatrix(cfg config.MatrixConfig, logger *slog.Logger) (*Matrix, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	return &Matrix{
		client: client,
		roomID: id.RoomID(cfg.RoomID),
		logger: logger.With("component", "notify.matrix"),
	}, nil
}

// Notify sends msg to the configured room.
func (m *Matrix) Notify(ctx context.Context, conv *store.Conversation, msg *store.Message, isFirstInThread bool) bool {
	sum := newSummary(conv, msg, "")
	content := &event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    sum.Text(),
	}
	if html, err := sum.HTML(); err == nil {
		content.Format = event.FormatHTML
		content.FormattedBody = html
	}

	if _, err := m.client.SendMessageEvent(ctx, m.roomID, event.EventMessage, content); err != nil {
		m.logger.Error("failed to send matrix notification",
			"room", m.roomID.String(),
			"conversation_id", conv.ID,
			"error", err)
		return false
	}
	return true
}
