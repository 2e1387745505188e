package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/synctalk/relay/internal/relay"
	"github.com/synctalk/relay/internal/store"
)

// ConversationHandlers provides HTTP handlers for conversations and their
// messages. The send path persists first and then hands the relay the
// durable envelope, so connected participants see the stored message.
type ConversationHandlers struct {
	store store.Store
	relay *relay.Relay
	log   *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(st store.Store, rl *relay.Relay, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{
		store: st,
		relay: rl,
		log:   logger,
	}
}

// CreateGroupRequest represents the create group conversation request body.
type CreateGroupRequest struct {
	Name         string  `json:"name" binding:"required,min=1,max=100"`
	Participants []int64 `json:"participants"`
}

// CreateDirectRequest represents the create direct conversation request body.
type CreateDirectRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Text  string `json:"text"`
	Media string `json:"media"`
}

// AddParticipantRequest represents the add participant request body.
type AddParticipantRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// ConversationResponse represents a conversation in API responses.
type ConversationResponse struct {
	ID          int64            `json:"id"`
	Type        string           `json:"type"`
	Name        string           `json:"name,omitempty"`
	CreatedBy   int64            `json:"created_by"`
	CreatedAt   string           `json:"created_at"`
	LastMessage *MessageResponse `json:"last_message,omitempty"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID       int64  `json:"id"`
	Room     string `json:"room"`
	SenderID int64  `json:"sender_id"`
	Text     string `json:"text"`
	Media    string `json:"media,omitempty"`
	TS       int64  `json:"ts"`
}

func conversationResponse(conv *store.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:        conv.ID,
		Type:      string(conv.Type),
		Name:      conv.Name,
		CreatedBy: conv.CreatedBy,
		CreatedAt: conv.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// CreateGroup handles group conversation creation.
// POST /api/conversations
func (h *ConversationHandlers) CreateGroup(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	conv, err := h.store.CreateGroupConversation(c.Request.Context(), req.Name, userID, req.Participants)
	if err != nil {
		h.log.Error().Err(err).Str("name", req.Name).Msg("failed to create conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("conversation_id", conv.ID).Int64("created_by", userID).Msg("conversation created")
	c.JSON(http.StatusCreated, conversationResponse(conv))
}

// CreateDirect resolves or creates the direct conversation with another user.
// POST /api/conversations/direct
func (h *ConversationHandlers) CreateDirect(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.UserID == userID {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot start a conversation with yourself"})
		return
	}

	if _, err := h.store.GetUserByID(c.Request.Context(), req.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to look up user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	conv, err := h.store.GetOrCreateDirectConversation(c.Request.Context(), userID, req.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to resolve direct conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, conversationResponse(conv))
}

// List returns the caller's conversations.
// GET /api/conversations
func (h *ConversationHandlers) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	summaries, err := h.store.ListConversations(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]ConversationResponse, 0, len(summaries))
	for _, s := range summaries {
		resp := conversationResponse(s.Conversation)
		if m := s.LastMessage; m != nil {
			resp.LastMessage = &MessageResponse{
				ID:       m.ID,
				Room:     strconv.FormatInt(m.ConversationID, 10),
				SenderID: m.SenderID,
				Text:     m.Text,
				Media:    m.Media,
				TS:       m.CreatedAt.Unix(),
			}
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

// ListMessages returns message history, newest page last.
// GET /api/conversations/:id/messages?limit=50&before=<id>
func (h *ConversationHandlers) ListMessages(c *gin.Context) {
	userID, conversationID, ok := h.requireParticipant(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	var beforeID *int64
	if raw := c.Query("before"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before cursor"})
			return
		}
		beforeID = &id
	}

	msgs, err := h.store.ListMessages(c.Request.Context(), conversationID, limit, beforeID)
	if err != nil {
		h.log.Error().Err(err).Int64("conversation_id", conversationID).Int64("user_id", userID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	room := strconv.FormatInt(conversationID, 10)
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResponse{
			ID:       m.ID,
			Room:     room,
			SenderID: m.SenderID,
			Text:     m.Text,
			Media:    m.Media,
			TS:       m.CreatedAt.Unix(),
		})
	}
	c.JSON(http.StatusOK, out)
}

// SendMessage persists a message and fans it out to connected participants.
// POST /api/conversations/:id/messages
func (h *ConversationHandlers) SendMessage(c *gin.Context) {
	userID, conversationID, ok := h.requireParticipant(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Text == "" && req.Media == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message is empty"})
		return
	}

	sender, err := h.store.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to load sender")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	msg := &store.Message{
		ConversationID: conversationID,
		SenderID:       userID,
		Text:           req.Text,
		Media:          req.Media,
	}
	if err := h.store.SaveMessage(c.Request.Context(), msg); err != nil {
		h.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("failed to persist message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	room := strconv.FormatInt(conversationID, 10)
	if err := h.relay.Broadcast(relay.Envelope{
		ID:       msg.ID,
		Room:     room,
		SenderID: userID,
		Sender:   sender.Username,
		Text:     msg.Text,
		Media:    msg.Media,
		SentAt:   msg.CreatedAt,
	}); err != nil {
		// The message is durable either way; fan-out is best-effort.
		h.log.Warn().Err(err).Int64("message_id", msg.ID).Msg("broadcast failed")
	}

	c.JSON(http.StatusCreated, MessageResponse{
		ID:       msg.ID,
		Room:     room,
		SenderID: userID,
		Text:     msg.Text,
		Media:    msg.Media,
		TS:       msg.CreatedAt.Unix(),
	})
}

// DeleteMessage soft-deletes a message owned by the caller.
// DELETE /api/messages/:id
func (h *ConversationHandlers) DeleteMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}

	if err := h.store.DeleteMessage(c.Request.Context(), messageID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		h.log.Error().Err(err).Int64("message_id", messageID).Msg("failed to delete message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}

// AddParticipant adds a user to a group conversation.
// POST /api/conversations/:id/participants
func (h *ConversationHandlers) AddParticipant(c *gin.Context) {
	_, conversationID, ok := h.requireParticipant(c)
	if !ok {
		return
	}

	var req AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	conv, err := h.store.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
		return
	}
	if conv.Type != store.ConversationGroup {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot add participants to a direct conversation"})
		return
	}

	if err := h.store.AddParticipant(c.Request.Context(), conversationID, req.UserID); err != nil {
		h.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("failed to add participant")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveParticipant removes a user from a group conversation.
// DELETE /api/conversations/:id/participants/:userId
func (h *ConversationHandlers) RemoveParticipant(c *gin.Context) {
	_, conversationID, ok := h.requireParticipant(c)
	if !ok {
		return
	}

	targetID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	if err := h.store.RemoveParticipant(c.Request.Context(), conversationID, targetID); err != nil {
		h.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("failed to remove participant")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// requireParticipant resolves the :id path param and checks the caller is a
// participant of that conversation. It writes the error response itself.
func (h *ConversationHandlers) requireParticipant(c *gin.Context) (userID, conversationID int64, ok bool) {
	userID, idOK := currentUserID(c)
	if !idOK {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return 0, 0, false
	}

	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation id"})
		return 0, 0, false
	}

	member, err := h.store.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		h.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("participant check failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return 0, 0, false
	}
	if !member {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant of this conversation"})
		return 0, 0, false
	}
	return userID, conversationID, true
}
