package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const roomChannelPrefix = "couple:"

// RoomEvent is one message addressed to a couple's room
type RoomEvent struct {
	CoupleID string    `json:"couple_id"`
	Except   string    `json:"except,omitempty"`
	Message  WSMessage `json:"message"`
}

// Broadcaster carries room events to every instance holding room members
type Broadcaster interface {
	Publish(ctx context.Context, event RoomEvent) error
	Close() error
}

// LocalBroadcaster delivers room events in-process
type LocalBroadcaster struct {
	deliver func(RoomEvent)
}

// NewLocalBroadcaster creates a broadcaster that calls deliver directly
func NewLocalBroadcaster(deliver func(RoomEvent)) *LocalBroadcaster {
	return &LocalBroadcaster{deliver: deliver}
}

// Publish delivers the event immediately
func (b *LocalBroadcaster) Publish(ctx context.Context, event RoomEvent) error {
	b.deliver(event)
	return nil
}

// Close is a no-op
func (b *LocalBroadcaster) Close() error { return nil }

// RedisBroadcaster fans room events out over Redis Pub/Sub, one channel per couple
type RedisBroadcaster struct {
	rdb     *redis.Client
	pubsub  *redis.PubSub
	deliver func(RoomEvent)
	done    chan struct{}
	once    sync.Once
}

// NewRedisBroadcaster subscribes to every couple channel and starts delivering
func NewRedisBroadcaster(ctx context.Context, rdb *redis.Client, deliver func(RoomEvent)) (*RedisBroadcaster, error) {
	pubsub := rdb.PSubscribe(ctx, roomChannelPrefix+"*")
	// Wait for the subscription to be confirmed so early publishes are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to room channels: %w", err)
	}

	b := &RedisBroadcaster{
		rdb:     rdb,
		pubsub:  pubsub,
		deliver: deliver,
		done:    make(chan struct{}),
	}
	go b.run()
	return b, nil
}

func roomChannel(coupleID string) string {
	return roomChannelPrefix + coupleID
}

// Publish sends the event to the couple's channel
func (b *RedisBroadcaster) Publish(ctx context.Context, event RoomEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %w", err)
	}
	if err := b.rdb.Publish(ctx, roomChannel(event.CoupleID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish room event: %w", err)
	}
	return nil
}

func (b *RedisBroadcaster) run() {
	defer close(b.done)
	for msg := range b.pubsub.Channel() {
		var event RoomEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Error().Err(err).Str("channel", msg.Channel).Msg("Failed to decode room event")
			continue
		}
		if event.CoupleID == "" {
			event.CoupleID = strings.TrimPrefix(msg.Channel, roomChannelPrefix)
		}
		b.deliver(event)
	}
}

// Close stops the subscription
func (b *RedisBroadcaster) Close() error {
	var err error
	b.once.Do(func() {
		err = b.pubsub.Close()
		<-b.done
	})
	return err
}
