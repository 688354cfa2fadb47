package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

const pushTimeout = 10 * time.Second

// Pusher delivers one notification to one device
type Pusher interface {
	Push(ctx context.Context, deviceToken, title, body string, data map[string]string) error
}

// APNsPusher sends notifications through Apple Push Notification service
type APNsPusher struct {
	client *apns2.Client
	topic  string
}

// NewAPNsPusher creates a pusher authenticated with a .p8 signing key
func NewAPNsPusher(keyPath, keyID, teamID, topic string, production bool) (*APNsPusher, error) {
	authKey, err := token.AuthKeyFromFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	})
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNsPusher{client: client, topic: topic}, nil
}

// Push sends a single alert notification
func (p *APNsPusher) Push(ctx context.Context, deviceToken, title, body string, data map[string]string) error {
	pl := payload.NewPayload().AlertTitle(title).AlertBody(body).Sound("default")
	for k, v := range data {
		pl = pl.Custom(k, v)
	}

	res, err := p.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       p.topic,
		Payload:     pl,
	})
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("push rejected: %d %s", res.StatusCode, res.Reason)
	}
	return nil
}

// NoopPusher drops notifications; used when APNs is not configured
type NoopPusher struct{}

// Push logs and discards the notification
func (NoopPusher) Push(ctx context.Context, deviceToken, title, body string, data map[string]string) error {
	log.Debug().Str("title", title).Msg("Push disabled, notification dropped")
	return nil
}

// Notifier looks up a user's device and pushes to it in the background.
// Failures are logged and never returned to the caller.
type Notifier struct {
	users  UserStore
	pusher Pusher
}

// NewNotifier creates a new notifier
func NewNotifier(users UserStore, pusher Pusher) *Notifier {
	return &Notifier{users: users, pusher: pusher}
}

// NotifyUser pushes to userID without blocking the caller
func (n *Notifier) NotifyUser(userID, title, body string, data map[string]string) {
	if n == nil || userID == "" {
		return
	}
	go n.notify(userID, title, body, data)
}

func (n *Notifier) notify(userID, title, body string, data map[string]string) {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	user, err := n.users.GetByID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load user for push")
		return
	}
	if user.PushToken == nil || *user.PushToken == "" {
		return
	}

	if err := n.pusher.Push(ctx, *user.PushToken, title, body, data); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to send push notification")
		return
	}
	log.Debug().Str("user_id", userID).Str("title", title).Msg("Push notification sent")
}
