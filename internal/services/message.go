package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"closeus-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 100
	maxTextLength       = 4000
)

// SendMessageInput is a message as submitted by a client
type SendMessageInput struct {
	Type     string                  `json:"message_type" validate:"required,oneof=text image voice gif"`
	Content  string                  `json:"content" validate:"required"`
	Metadata *models.MessageMetadata `json:"metadata,omitempty"`
}

// MessageView is a persisted message enriched with its sender
type MessageView struct {
	*models.Message
	SenderName string `json:"sender_name"`
}

// Responder reacts to messages delivered to a partner
type Responder interface {
	OnMessage(ctx context.Context, couple *models.Couple, recipient *models.User, msg *models.Message)
}

// MessageService persists chat messages and relays them to the couple's room
type MessageService struct {
	messages       MessageStore
	couples        CoupleStore
	users          UserStore
	hub            *WSHub
	notifier       *Notifier
	responder      Responder
	presenceWindow time.Duration
	now            func() time.Time
}

// NewMessageService creates a new message service
func NewMessageService(messages MessageStore, couples CoupleStore, users UserStore, hub *WSHub, notifier *Notifier, presenceWindow time.Duration) *MessageService {
	return &MessageService{
		messages:       messages,
		couples:        couples,
		users:          users,
		hub:            hub,
		notifier:       notifier,
		presenceWindow: presenceWindow,
		now:            time.Now,
	}
}

// SetResponder installs a hook called after each message is relayed
func (s *MessageService) SetResponder(r Responder) {
	s.responder = r
}

// Send validates, persists and broadcasts a message from senderID
func (s *MessageService) Send(ctx context.Context, senderID string, in SendMessageInput) (*MessageView, error) {
	if err := validateMessage(&in); err != nil {
		return nil, err
	}

	couple, err := pairedCoupleOf(ctx, s.couples, senderID)
	if err != nil {
		return nil, err
	}
	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sender: %w", err)
	}

	view, err := s.post(ctx, couple, sender, in)
	if err != nil {
		return nil, err
	}

	partnerID := couple.PartnerOf(senderID)
	partner, err := s.users.GetByID(ctx, partnerID)
	if err != nil {
		log.Error().Err(err).Str("user_id", partnerID).Msg("Failed to load message recipient")
		return view, nil
	}

	if !partner.IsOnline(s.now(), s.presenceWindow) {
		s.notifier.NotifyUser(partnerID, sender.Name, pushPreview(view.Message),
			map[string]string{"type": "new_message", "message_id": view.ID})
	}
	if s.responder != nil {
		s.responder.OnMessage(ctx, couple, partner, view.Message)
	}
	return view, nil
}

// post persists a message and broadcasts it to the whole room
func (s *MessageService) post(ctx context.Context, couple *models.Couple, sender *models.User, in SendMessageInput) (*MessageView, error) {
	msg := &models.Message{
		ID:        uuid.New().String(),
		CoupleID:  couple.ID,
		SenderID:  sender.ID,
		Type:      in.Type,
		Content:   in.Content,
		Metadata:  in.Metadata,
		CreatedAt: s.now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	view := &MessageView{Message: msg, SenderName: sender.Name}
	event := WSMessage{Type: EventNewMessage, Timestamp: msg.CreatedAt.UnixMilli(), Data: view}
	if err := s.hub.Broadcast(ctx, couple.ID, "", event); err != nil {
		log.Error().Err(err).Str("couple_id", couple.ID).Msg("Failed to broadcast message")
	}

	log.Debug().Str("couple_id", couple.ID).Str("sender_id", sender.ID).Str("type", msg.Type).Msg("Message relayed")
	return view, nil
}

// Typing relays a typing indicator to the partner without persisting it
func (s *MessageService) Typing(ctx context.Context, userID string, started bool) error {
	coupleID := s.hub.RoomOf(userID)
	if coupleID == "" {
		return ErrNotPaired
	}
	eventType := EventTypingStop
	if started {
		eventType = EventTypingStart
	}
	return s.hub.Broadcast(ctx, coupleID, userID, WSMessage{Type: eventType, UserID: userID, Timestamp: s.now().UnixMilli()})
}

// List returns the caller's couple messages, newest first
func (s *MessageService) List(ctx context.Context, userID string, before *time.Time, limit int) ([]*models.Message, error) {
	couple, err := pairedCoupleOf(ctx, s.couples, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}
	messages, err := s.messages.ListByCouple(ctx, couple.ID, before, limit)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	return messages, nil
}

// MarkRead flags the partner's messages as read and tells the room
func (s *MessageService) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: message_ids is required", ErrInvalidInput)
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return 0, fmt.Errorf("%w: invalid message id %q", ErrInvalidInput, id)
		}
	}

	couple, err := pairedCoupleOf(ctx, s.couples, userID)
	if err != nil {
		return 0, err
	}

	n, err := s.messages.MarkRead(ctx, couple.ID, userID, ids)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		event := WSMessage{Type: EventMessagesRead, UserID: userID, MessageIDs: ids, Timestamp: s.now().UnixMilli()}
		if err := s.hub.Broadcast(ctx, couple.ID, userID, event); err != nil {
			log.Error().Err(err).Str("couple_id", couple.ID).Msg("Failed to broadcast read receipt")
		}
	}
	return n, nil
}

func validateMessage(in *SendMessageInput) error {
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	if in.Type == "" {
		in.Type = models.MessageTypeText
	}
	in.Content = strings.TrimSpace(in.Content)
	if err := validateStruct(in, ErrInvalidMessage); err != nil {
		return err
	}

	// Media messages carry the uploaded object's URL as content.
	if in.Type == models.MessageTypeText {
		return validateVar("content", in.Content, fmt.Sprintf("max=%d", maxTextLength), ErrInvalidMessage)
	}
	return validateVar("content", in.Content, "http_url", ErrInvalidMessage)
}

func pushPreview(m *models.Message) string {
	switch m.Type {
	case models.MessageTypeImage:
		return "📷 Photo"
	case models.MessageTypeVoice:
		return "🎤 Voice message"
	case models.MessageTypeGIF:
		return "GIF"
	}
	preview := []rune(m.Content)
	if len(preview) > 100 {
		return string(preview[:100]) + "…"
	}
	return m.Content
}
