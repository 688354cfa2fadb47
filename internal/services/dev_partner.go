package services

import (
	"context"
	"sync"
	"time"

	"closeus-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// DevPartnerName is the exact account name that gets scripted behaviour
const DevPartnerName = "Dev Partner"

const devPartnerWindow = 5 * time.Minute

// DevPartner simulates a responsive partner for development builds. It
// alternates online and offline every five minutes of wall-clock time and,
// while online, answers each message with a fixed reply.
type DevPartner struct {
	ctx        context.Context
	users      UserStore
	messages   *MessageService
	replyDelay time.Duration
	reply      string
	now        func() time.Time
	wg         sync.WaitGroup
}

// NewDevPartner creates the responder. Pending replies are dropped once ctx ends.
func NewDevPartner(ctx context.Context, users UserStore, messages *MessageService, replyDelay time.Duration, reply string) *DevPartner {
	return &DevPartner{
		ctx:        ctx,
		users:      users,
		messages:   messages,
		replyDelay: replyDelay,
		reply:      reply,
		now:        time.Now,
	}
}

// OnlineAt reports the simulated presence at t
func (d *DevPartner) OnlineAt(t time.Time) bool {
	return (t.Unix()/int64(devPartnerWindow.Seconds()))%2 == 0
}

// Tick refreshes the dev partner's heartbeat while it is online
func (d *DevPartner) Tick(ctx context.Context) {
	now := d.now()
	if !d.OnlineAt(now) {
		return
	}
	n, err := d.users.TouchLastActiveByName(ctx, DevPartnerName, now)
	if err != nil {
		log.Error().Err(err).Msg("Failed to refresh dev partner presence")
		return
	}
	log.Debug().Int64("accounts", n).Msg("Dev partner heartbeat")
}

// OnMessage schedules the fixed reply when the recipient is an online dev partner
func (d *DevPartner) OnMessage(ctx context.Context, couple *models.Couple, recipient *models.User, msg *models.Message) {
	if recipient.Name != DevPartnerName || msg.SenderID == recipient.ID || !d.OnlineAt(d.now()) {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case <-d.ctx.Done():
			return
		case <-time.After(d.replyDelay):
		}

		in := SendMessageInput{Type: models.MessageTypeText, Content: d.reply}
		if _, err := d.messages.post(d.ctx, couple, recipient, in); err != nil {
			log.Error().Err(err).Str("couple_id", couple.ID).Msg("Dev partner failed to reply")
		}
	}()
}

// Wait blocks until scheduled replies finish
func (d *DevPartner) Wait() {
	d.wg.Wait()
}
