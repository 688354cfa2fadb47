package handlers

import (
	"context"
	"net/http"
	"time"

	"closeus-backend/internal/middleware"
	"closeus-backend/internal/models"
	"closeus-backend/internal/services"
)

// Messenger is the messaging relay as the HTTP and WebSocket layers use it
type Messenger interface {
	Send(ctx context.Context, senderID string, in services.SendMessageInput) (*services.MessageView, error)
	Typing(ctx context.Context, userID string, started bool) error
	List(ctx context.Context, userID string, before *time.Time, limit int) ([]*models.Message, error)
	MarkRead(ctx context.Context, userID string, ids []string) (int64, error)
}

// MediaUploader signs chat media uploads
type MediaUploader interface {
	UploadURL(ctx context.Context, userID, contentType string) (*services.MediaUploadResponse, error)
}

// MessageHandler handles chat history and media requests
type MessageHandler struct {
	messages Messenger
	media    MediaUploader
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messages Messenger, media MediaUploader) *MessageHandler {
	return &MessageHandler{messages: messages, media: media}
}

// MarkReadRequest lists messages to flag as read
type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids"`
}

// List handles GET /api/v1/messages?limit=&before=
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			respondError(w, "before must be an RFC 3339 timestamp", http.StatusBadRequest, "INVALID_INPUT")
			return
		}
		before = &t
	}

	messages, err := h.messages.List(ctx, middleware.GetUserID(ctx), before, limit)
	if err != nil {
		respondServiceError(w, r, err, "Failed to list messages")
		return
	}
	respondJSON(w, http.StatusOK, messages)
}

// Send handles POST /api/v1/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req services.SendMessageInput
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.messages.Send(ctx, middleware.GetUserID(ctx), req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to send message")
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

// MarkRead handles POST /api/v1/messages/read
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req MarkReadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	n, err := h.messages.MarkRead(ctx, middleware.GetUserID(ctx), req.MessageIDs)
	if err != nil {
		respondServiceError(w, r, err, "Failed to mark messages read")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// UploadURL handles POST /api/v1/messages/media/upload-url
func (h *MessageHandler) UploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req services.MediaUploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.media.UploadURL(ctx, middleware.GetUserID(ctx), req.ContentType)
	if err != nil {
		respondServiceError(w, r, err, "Failed to create upload URL")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
