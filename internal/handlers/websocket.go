package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"closeus-backend/internal/middleware"
	"closeus-backend/internal/models"
	"closeus-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const maxFrameSize = 64 << 10

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // native clients send no Origin
	},
}

// CoupleLookup resolves the active couple of a connecting user
type CoupleLookup interface {
	GetPairedCouple(ctx context.Context, userID string) (*models.Couple, error)
}

// PresenceRecorder refreshes a user's last-active timestamp
type PresenceRecorder interface {
	Heartbeat(ctx context.Context, userID string) error
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub      *services.WSHub
	tokens   middleware.TokenValidator
	couples  CoupleLookup
	presence PresenceRecorder
	chat     Messenger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *services.WSHub,
	tokens middleware.TokenValidator,
	couples CoupleLookup,
	presence PresenceRecorder,
	chat Messenger,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		tokens:   tokens,
		couples:  couples,
		presence: presence,
		chat:     chat,
	}
}

// HandleWebSocket handles GET /ws?token=
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized, "UNAUTHORIZED")
		return
	}

	userID, err := h.tokens.ValidateAccess(token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized, "UNAUTHORIZED")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)

	ctx := r.Context()

	// Unpaired users still connect so they receive pair_created.
	coupleID := ""
	couple, err := h.couples.GetPairedCouple(ctx, userID)
	switch {
	case err == nil:
		coupleID = couple.ID
	case !errors.Is(err, services.ErrNotPaired):
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to resolve couple for WebSocket")
	}

	h.hub.Register(userID, coupleID, conn)
	defer h.disconnect(userID, conn)

	if err := h.presence.Heartbeat(ctx, userID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to record presence")
	}

	connected := services.WSMessage{
		Type:      services.EventConnected,
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
		Data: map[string]interface{}{
			"is_paired": coupleID != "",
			"couple_id": coupleID,
		},
	}
	if err := h.hub.SendToUser(userID, connected); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to send connected event")
	}
	h.hub.NotifyPartnerStatus(ctx, coupleID, userID, true)

	log.Info().Str("user_id", userID).Str("couple_id", coupleID).Msg("WebSocket connection established")

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			return
		}

		var msg services.WSMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			h.sendError(userID, "Invalid message format", ReasonBadBody)
			continue
		}

		if err := h.handleMessage(ctx, userID, msg); err != nil {
			status, reason, message := classifyError(err)
			if status == http.StatusInternalServerError {
				log.Error().Err(err).Str("user_id", userID).Str("type", msg.Type).Msg("Failed to handle message")
			}
			h.sendError(userID, message, reason)
		}
	}
}

// handleMessage dispatches one client event
func (h *WebSocketHandler) handleMessage(ctx context.Context, userID string, msg services.WSMessage) error {
	switch msg.Type {
	case services.EventSendMessage:
		_, err := h.chat.Send(ctx, userID, services.SendMessageInput{
			Type:     msg.MessageType,
			Content:  msg.Content,
			Metadata: msg.Metadata,
		})
		return err
	case services.EventTypingStart:
		return h.chat.Typing(ctx, userID, true)
	case services.EventTypingStop:
		return h.chat.Typing(ctx, userID, false)
	case services.EventMarkRead:
		_, err := h.chat.MarkRead(ctx, userID, msg.MessageIDs)
		return err
	case services.EventHeartbeat:
		return h.presence.Heartbeat(ctx, userID)
	default:
		h.sendError(userID, "Unknown message type", "UNKNOWN_TYPE")
		return nil
	}
}

// disconnect drops the connection and tells the partner, using the room the
// user ended up in rather than the one they connected with
func (h *WebSocketHandler) disconnect(userID string, conn *websocket.Conn) {
	coupleID := h.hub.RoomOf(userID)
	h.hub.Unregister(userID, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if h.hub.IsOnline(userID) {
		// A newer connection replaced this one.
		return
	}
	h.hub.NotifyPartnerStatus(ctx, coupleID, userID, false)
	if err := h.presence.Heartbeat(ctx, userID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to record presence")
	}

	log.Info().Str("user_id", userID).Msg("WebSocket connection closed")
}

// sendError sends an error event to a user
func (h *WebSocketHandler) sendError(userID, message, reason string) {
	msg := services.WSMessage{
		Type:    services.EventError,
		Message: message,
		Reason:  reason,
	}
	if err := h.hub.SendToUser(userID, msg); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to send error event")
	}
}
