// ABOUTME: HTTP API for the polling transport and the representative console
// ABOUTME: Maps pipeline, handoff and assistant errors onto JSON status responses

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/2389/switchboard/internal/assistant"
	"github.com/2389/switchboard/internal/auth"
	"github.com/2389/switchboard/internal/conversation"
	"github.com/2389/switchboard/internal/handoff"
	"github.com/2389/switchboard/internal/polling"
	"github.com/2389/switchboard/internal/store"
)

const (
	maxRequestBody        = 1 << 20
	listConversationLimit = 100
)

// ConversationView is the JSON representation of a conversation.
type ConversationView struct {
	ID               string    `json:"id"`
	CustomerName     string    `json:"customerName,omitempty"`
	CustomerEmail    string    `json:"customerEmail,omitempty"`
	WebsiteID        string    `json:"websiteId,omitempty"`
	Status           string    `json:"status"`
	Mode             string    `json:"mode"`
	RepresentativeID string    `json:"representativeId,omitempty"`
	LastActivityAt   time.Time `json:"lastActivityAt"`
	CreatedAt        time.Time `json:"createdAt"`
}

func newConversationView(c *store.Conversation) ConversationView {
	return ConversationView{
		ID:               c.ID,
		CustomerName:     c.CustomerName,
		CustomerEmail:    c.CustomerEmail,
		WebsiteID:        c.WebsiteID,
		Status:           string(c.Status),
		Mode:             string(c.Mode),
		RepresentativeID: c.RepresentativeID,
		LastActivityAt:   c.LastActivityAt,
		CreatedAt:        c.CreatedAt,
	}
}

// CreateConversationRequest is the body of POST /api/conversations.
type CreateConversationRequest struct {
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`
	WebsiteID     string `json:"websiteId"`
}

// PollSendRequest is the body of POST /api/polling/send/{conversationId}.
type PollSendRequest struct {
	Content    *string `json:"content"`
	SenderType string  `json:"senderType"`
	SenderID   string  `json:"senderId"`
}

// PollSendResponse acknowledges a polled message.
type PollSendResponse struct {
	Success bool                     `json:"success"`
	Message conversation.MessageView `json:"message"`
}

// PollStatusResponse reports transport load.
type PollStatusResponse struct {
	Status            string    `json:"status"`
	ActiveConnections int       `json:"activeConnections"`
	WaitingPolls      int       `json:"waitingPolls"`
	LiveConnections   int       `json:"liveConnections"`
	Timestamp         time.Time `json:"timestamp"`
}

// TakeoverResponse reports a completed takeover.
type TakeoverResponse struct {
	Success      bool                     `json:"success"`
	Conversation ConversationView         `json:"conversation"`
	Message      *conversation.MessageView `json:"message,omitempty"`
}

// UpdateConversationRequest is the body of PATCH /api/conversations/{id}.
// Mode may only be reset to automated; takeover has its own route.
type UpdateConversationRequest struct {
	Status *string `json:"status"`
	Mode   *string `json:"mode"`
}

// StatsResponse is the representative dashboard summary.
type StatsResponse struct {
	TotalConversations    int `json:"totalConversations"`
	ActiveConversations   int `json:"activeConversations"`
	WaitingConversations  int `json:"waitingConversations"`
	ClosedConversations   int `json:"closedConversations"`
	OnlineRepresentatives int `json:"onlineRepresentatives"`
	LiveConnections       int `json:"liveConnections"`
}

// RepresentativeView is the JSON representation of a staff account.
type RepresentativeView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

// SuggestionsResponse carries drafted replies for the latest customer message.
type SuggestionsResponse struct {
	Suggestions     []assistant.Suggestion `json:"suggestions"`
	CustomerMessage string                 `json:"customerMessage"`
	ConversationID  string                 `json:"conversationId"`
}

// handlePollMessages handles GET /api/polling/messages/{conversationId}.
func (g *Gateway) handlePollMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var wait time.Duration
	if raw := q.Get("timeout"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "timeout must be a non-negative number of milliseconds")
			return
		}
		wait = time.Duration(ms) * time.Millisecond
	}

	res, err := g.polling.AwaitNewMessages(r.Context(), polling.PollRequest{
		ConversationID: r.PathValue("conversationId"),
		Cursor:         q.Get("lastMessageId"),
		ClientID:       q.Get("clientId"),
		MaxWait:        wait,
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	case r.Context().Err() != nil:
		// Client went away; nobody to answer.
		return
	default:
		g.logger.Error("poll failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	g.writeJSON(w, http.StatusOK, res)
}

// handlePollSend handles POST /api/polling/send/{conversationId}.
// The sender comes from the bearer token when present; a body that claims
// to be a representative without one is refused.
func (g *Gateway) handlePollSend(w http.ResponseWriter, r *http.Request) {
	var req PollSendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		g.sendValidationError(w, conversation.NewValidationError("body", "invalid JSON"))
		return
	}
	if req.Content == nil {
		g.sendValidationError(w, conversation.NewValidationError("content", "required"))
		return
	}

	sender := conversation.Customer
	switch store.SenderType(req.SenderType) {
	case "", store.SenderCustomer:
	case store.SenderRepresentative:
		if auth.FromContext(r.Context()) == nil {
			g.sendJSONError(w, http.StatusForbidden, "representative token required")
			return
		}
	default:
		g.sendValidationError(w, conversation.NewValidationError("senderType", "must be customer or representative"))
		return
	}
	if authCtx := auth.FromContext(r.Context()); authCtx != nil {
		sender = conversation.Sender{Type: store.SenderRepresentative, ID: authCtx.UserID}
	}

	msg, err := g.polling.Submit(r.Context(), polling.SubmitRequest{
		ConversationID: r.PathValue("conversationId"),
		Content:        *req.Content,
		Sender:         sender,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	var vErr *conversation.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &vErr):
		g.sendValidationError(w, vErr)
		return
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	case errors.Is(err, polling.ErrDuplicateSubmission):
		g.sendJSONError(w, http.StatusConflict, "duplicate submission")
		return
	default:
		g.logger.Error("polled send failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	g.writeJSON(w, http.StatusOK, PollSendResponse{Success: true, Message: conversation.NewMessageView(msg)})
}

// handlePollStatus handles GET /api/polling/status.
func (g *Gateway) handlePollStatus(w http.ResponseWriter, r *http.Request) {
	st := g.polling.Status()
	g.writeJSON(w, http.StatusOK, PollStatusResponse{
		Status:            "ok",
		ActiveConnections: st.ActiveSessions,
		WaitingPolls:      st.WaitingPolls,
		LiveConnections:   g.registry.Count(),
		Timestamp:         time.Now().UTC(),
	})
}

// handleCreateConversation handles POST /api/conversations. Every
// conversation starts automated and active.
func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	conv := &store.Conversation{
		ID:            uuid.NewString(),
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		WebsiteID:     req.WebsiteID,
		Status:        store.StatusActive,
		Mode:          store.ModeAutomated,
	}
	if err := g.store.CreateConversation(r.Context(), conv); err != nil {
		g.logger.Error("creating conversation", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}

	g.logger.Info("conversation created", "conversation_id", conv.ID, "website_id", conv.WebsiteID)
	g.writeJSON(w, http.StatusCreated, newConversationView(conv))
}

// handleListConversations handles GET /api/conversations.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := g.store.ListConversations(r.Context(), listConversationLimit)
	if err != nil {
		g.logger.Error("listing conversations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	views := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		views = append(views, newConversationView(c))
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"conversations": views})
}

// handleGetConversation handles GET /api/conversations/{id}.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := g.lookupConversation(w, r)
	if !ok {
		return
	}
	g.writeJSON(w, http.StatusOK, newConversationView(conv))
}

// handleConversationMessages handles GET /api/conversations/{id}/messages.
func (g *Gateway) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	conv, ok := g.lookupConversation(w, r)
	if !ok {
		return
	}
	msgs, err := g.store.GetMessages(r.Context(), conv.ID, 0)
	if err != nil {
		g.logger.Error("loading messages", "error", err, "conversation_id", conv.ID)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"conversationId": conv.ID,
		"messages":       conversation.MessageViews(msgs),
	})
}

// handleTakeover handles POST /api/conversations/{id}/takeover.
func (g *Gateway) handleTakeover(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	conv, notice, err := g.handoff.TakeOver(r.Context(), r.PathValue("id"), handoff.Representative{
		ID:   authCtx.UserID,
		Name: authCtx.Name,
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	case errors.Is(err, handoff.ErrInvalidTransition):
		g.sendJSONError(w, http.StatusConflict, "conversation is already handled by a representative")
		return
	default:
		g.logger.Error("takeover failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to take over conversation")
		return
	}

	resp := TakeoverResponse{Success: true, Conversation: newConversationView(conv)}
	if notice != nil {
		view := conversation.NewMessageView(notice)
		resp.Message = &view
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handleUpdateConversation handles PATCH /api/conversations/{id}. A mode
// reset goes through the handoff controller so mode stays compare-and-set.
func (g *Gateway) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	var req UpdateConversationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Status == nil && req.Mode == nil {
		g.sendJSONError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if req.Status != nil && !store.ConversationStatus(*req.Status).Valid() {
		g.sendJSONError(w, http.StatusBadRequest, "status must be active, waiting or closed")
		return
	}
	if req.Mode != nil && store.Mode(*req.Mode) != store.ModeAutomated {
		g.sendJSONError(w, http.StatusBadRequest, "mode can only be reset to automated")
		return
	}

	conv, ok := g.lookupConversation(w, r)
	if !ok {
		return
	}

	if req.Mode != nil {
		released, err := g.handoff.Release(r.Context(), conv.ID)
		switch {
		case err == nil:
			conv = released
		case errors.Is(err, handoff.ErrInvalidTransition):
			g.sendJSONError(w, http.StatusConflict, "conversation is already automated")
			return
		default:
			g.logger.Error("releasing conversation", "error", err, "conversation_id", conv.ID)
			g.sendJSONError(w, http.StatusInternalServerError, "failed to update conversation")
			return
		}
	}

	if req.Status != nil {
		updated, err := g.store.SetConversationStatus(r.Context(), conv.ID, store.ConversationStatus(*req.Status))
		if err != nil {
			g.logger.Error("updating conversation status", "error", err, "conversation_id", conv.ID)
			g.sendJSONError(w, http.StatusInternalServerError, "failed to update conversation")
			return
		}
		conv = updated
	}

	g.logger.Info("conversation updated", "conversation_id", conv.ID, "status", conv.Status, "mode", conv.Mode)
	g.writeJSON(w, http.StatusOK, newConversationView(conv))
}

// handleStats handles GET /api/stats.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := g.store.ConversationStats(r.Context())
	if err != nil {
		g.logger.Error("loading stats", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to fetch stats")
		return
	}
	g.writeJSON(w, http.StatusOK, StatsResponse{
		TotalConversations:    st.TotalConversations,
		ActiveConversations:   st.ActiveConversations,
		WaitingConversations:  st.WaitingConversations,
		ClosedConversations:   st.ClosedConversations,
		OnlineRepresentatives: st.OnlineRepresentatives,
		LiveConnections:       g.registry.Count(),
	})
}

// handleListRepresentatives handles GET /api/representatives.
func (g *Gateway) handleListRepresentatives(w http.ResponseWriter, r *http.Request) {
	users, err := g.store.ListUsers(r.Context())
	if err != nil {
		g.logger.Error("listing representatives", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to fetch representatives")
		return
	}
	views := make([]RepresentativeView, 0, len(users))
	for _, u := range users {
		views = append(views, RepresentativeView{
			ID:     u.ID,
			Name:   u.Name,
			Email:  u.Email,
			Role:   string(u.Role),
			Status: string(u.Status),
		})
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"representatives": views})
}

// handleRepresentativeStatus handles PATCH /api/representatives/{id}/status.
// Representatives set their own presence; admins may set anyone's.
func (g *Gateway) handleRepresentativeStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	authCtx := auth.FromContext(r.Context())
	if authCtx.UserID != id && !authCtx.IsAdmin() {
		g.sendJSONError(w, http.StatusForbidden, "cannot change another representative's status")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	status := store.UserStatus(req.Status)
	if !status.Valid() {
		g.sendJSONError(w, http.StatusBadRequest, "status must be online, offline, busy or away")
		return
	}

	err := g.store.UpdateUserStatus(r.Context(), id, status)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "representative not found")
		return
	default:
		g.logger.Error("updating representative status", "error", err, "user_id", id)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to update status")
		return
	}

	g.logger.Info("representative status changed", "user_id", id, "status", status)
	g.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleSuggestions handles POST /api/conversations/{id}/suggestions.
func (g *Gateway) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	if g.suggester == nil {
		g.sendJSONError(w, http.StatusServiceUnavailable, "assistant not configured")
		return
	}
	conv, ok := g.lookupConversation(w, r)
	if !ok {
		return
	}

	msgs, err := g.store.GetMessages(r.Context(), conv.ID, g.config.Assistant.HistoryTurns)
	if err != nil {
		g.logger.Error("loading messages", "error", err, "conversation_id", conv.ID)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if len(msgs) == 0 {
		g.sendJSONError(w, http.StatusBadRequest, "no messages in conversation")
		return
	}
	var latest *store.Message
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].SenderType == store.SenderCustomer {
			latest = msgs[i]
			break
		}
	}
	if latest == nil {
		g.sendJSONError(w, http.StatusBadRequest, "no customer message to respond to")
		return
	}

	suggestions, err := g.suggester.Suggest(r.Context(), assistant.HistoryFromMessages(msgs))
	if err != nil {
		g.logger.Error("generating suggestions", "error", err, "conversation_id", conv.ID)
		g.sendJSONError(w, http.StatusBadGateway, "failed to generate suggestions")
		return
	}

	g.writeJSON(w, http.StatusOK, SuggestionsResponse{
		Suggestions:     suggestions,
		CustomerMessage: latest.Content,
		ConversationID:  conv.ID,
	})
}

// lookupConversation loads the {id} path conversation, writing the error
// response itself when it cannot.
func (g *Gateway) lookupConversation(w http.ResponseWriter, r *http.Request) (*store.Conversation, bool) {
	conv, err := g.store.GetConversation(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	if err != nil {
		g.logger.Error("loading conversation", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to load conversation")
		return nil, false
	}
	return conv, true
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("writing response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}

// sendValidationError writes a 400 carrying the field issues.
func (g *Gateway) sendValidationError(w http.ResponseWriter, vErr *conversation.ValidationError) {
	g.writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  vErr.Message,
		"errors": vErr.Issues,
	})
}
