package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"closeus-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeTimeout = 10 * time.Second

// WebSocket event types
const (
	EventConnected     = "connected"
	EventSendMessage   = "send_message"
	EventNewMessage    = "new_message"
	EventTypingStart   = "typing_start"
	EventTypingStop    = "typing_stop"
	EventMarkRead      = "mark_read"
	EventMessagesRead  = "messages_read"
	EventHeartbeat     = "heartbeat"
	EventPartnerStatus = "partner_status"
	EventPairCreated   = "pair_created"
	EventError         = "error"
)

// WSMessage represents a WebSocket message in either direction
type WSMessage struct {
	Type        string                  `json:"type"`
	Timestamp   int64                   `json:"timestamp,omitempty"`
	UserID      string                  `json:"user_id,omitempty"`
	MessageType string                  `json:"message_type,omitempty"`
	Content     string                  `json:"content,omitempty"`
	Metadata    *models.MessageMetadata `json:"metadata,omitempty"`
	MessageIDs  []string                `json:"message_ids,omitempty"`
	Online      *bool                   `json:"online,omitempty"`
	Message     string                  `json:"message,omitempty"`
	Reason      string                  `json:"reason,omitempty"`
	Data        interface{}             `json:"data,omitempty"`
}

// Conn is the subset of *websocket.Conn the hub writes to
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type wsClient struct {
	conn     Conn
	coupleID string
	mu       sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wc, ok := c.conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
		_ = wc.SetWriteDeadline(time.Now().Add(writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections and per-couple rooms. Room traffic
// goes through a Broadcaster so that several server instances can share
// rooms; delivery to sockets always happens through Deliver.
type WSHub struct {
	mu          sync.RWMutex
	connections map[string]*wsClient
	rooms       map[string]map[string]struct{}
	broadcaster Broadcaster
}

// NewWSHub creates a new WebSocket hub with in-process broadcasting
func NewWSHub() *WSHub {
	h := &WSHub{
		connections: make(map[string]*wsClient),
		rooms:       make(map[string]map[string]struct{}),
	}
	h.broadcaster = NewLocalBroadcaster(h.Deliver)
	return h
}

// SetBroadcaster replaces the room transport
func (h *WSHub) SetBroadcaster(b Broadcaster) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcaster = b
}

// Register registers a new WebSocket connection for a user. coupleID is
// empty for users without a paired couple; they get no room membership.
func (h *WSHub) Register(userID, coupleID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Close existing connection if any
	if existing, exists := h.connections[userID]; exists {
		existing.conn.Close()
		h.leaveLocked(userID, existing.coupleID)
	}

	h.connections[userID] = &wsClient{conn: conn, coupleID: coupleID}
	if coupleID != "" {
		h.joinLocked(userID, coupleID)
	}

	log.Info().Str("user_id", userID).Str("couple_id", coupleID).Msg("WebSocket connection registered")
}

// Unregister removes a user's connection if it is still conn
func (h *WSHub) Unregister(userID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, exists := h.connections[userID]
	if !exists || client.conn != conn {
		return
	}
	client.conn.Close()
	h.leaveLocked(userID, client.coupleID)
	delete(h.connections, userID)
	log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
}

// JoinRoom moves a connected user into a couple's room, e.g. right after pairing
func (h *WSHub) JoinRoom(userID, coupleID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, exists := h.connections[userID]
	if !exists {
		return
	}
	h.leaveLocked(userID, client.coupleID)
	client.coupleID = coupleID
	h.joinLocked(userID, coupleID)
}

// RoomOf returns the couple room a connected user belongs to
func (h *WSHub) RoomOf(userID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, exists := h.connections[userID]; exists {
		return client.coupleID
	}
	return ""
}

func (h *WSHub) joinLocked(userID, coupleID string) {
	members, ok := h.rooms[coupleID]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[coupleID] = members
	}
	members[userID] = struct{}{}
}

func (h *WSHub) leaveLocked(userID, coupleID string) {
	if coupleID == "" {
		return
	}
	if members, ok := h.rooms[coupleID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(h.rooms, coupleID)
		}
	}
}

// SendToUser sends a message to a specific user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	client, exists := h.connections[userID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("user %s is not connected", userID)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := client.write(data); err != nil {
		h.Unregister(userID, client.conn)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// IsOnline checks if a user has a live connection on this instance
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.connections[userID]
	return exists
}

// Broadcast publishes a message to every member of a couple's room except exceptUserID
func (h *WSHub) Broadcast(ctx context.Context, coupleID, exceptUserID string, message WSMessage) error {
	h.mu.RLock()
	b := h.broadcaster
	h.mu.RUnlock()
	return b.Publish(ctx, RoomEvent{CoupleID: coupleID, Except: exceptUserID, Message: message})
}

// Deliver writes a room event to the members connected to this instance
func (h *WSHub) Deliver(event RoomEvent) {
	h.mu.RLock()
	var recipients []string
	for userID := range h.rooms[event.CoupleID] {
		if userID != event.Except {
			recipients = append(recipients, userID)
		}
	}
	h.mu.RUnlock()

	for _, userID := range recipients {
		if err := h.SendToUser(userID, event.Message); err != nil {
			log.Error().Err(err).Str("user_id", userID).Str("type", event.Message.Type).Msg("Failed to deliver room event")
		}
	}
}

// NotifyPartnerStatus notifies partner about online/offline status
func (h *WSHub) NotifyPartnerStatus(ctx context.Context, coupleID, userID string, online bool) {
	if coupleID == "" {
		return
	}
	message := WSMessage{
		Type:      EventPartnerStatus,
		UserID:    userID,
		Online:    &online,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := h.Broadcast(ctx, coupleID, userID, message); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to notify partner status")
	}
}

// NotifyPairCreated tells both members of a new couple, and joins them to its room
func (h *WSHub) NotifyPairCreated(couple *models.Couple) {
	message := WSMessage{Type: EventPairCreated, Data: couple}
	for _, userID := range []string{couple.Partner1ID, couple.PartnerOf(couple.Partner1ID)} {
		if userID == "" || !h.IsOnline(userID) {
			continue
		}
		h.JoinRoom(userID, couple.ID)
		if err := h.SendToUser(userID, message); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to notify user about pair creation")
		}
	}
}

// Close closes every connection and the broadcaster
func (h *WSHub) Close() error {
	h.mu.Lock()
	for userID, client := range h.connections {
		client.conn.Close()
		delete(h.connections, userID)
	}
	h.rooms = make(map[string]map[string]struct{})
	b := h.broadcaster
	h.mu.Unlock()
	return b.Close()
}
