package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"closeus-backend/internal/models"
	"closeus-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsEnv struct {
	server   *httptest.Server
	hub      *services.WSHub
	chat     *stubMessenger
	presence *stubPresence
	couples  *stubPairing
}

func newWSEnv(t *testing.T, couples *stubPairing) *wsEnv {
	t.Helper()
	env := &wsEnv{
		hub:      services.NewWSHub(),
		chat:     &stubMessenger{},
		presence: &stubPresence{},
		couples:  couples,
	}
	tokens := stubTokens{"tok-alice": "alice", "tok-bob": "bob"}
	h := NewWebSocketHandler(env.hub, tokens, couples, env.presence, env.chat)
	env.server = httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(func() {
		env.server.Close()
		env.hub.Close()
	})
	return env
}

func (e *wsEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) services.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg services.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func pairedCouple() *stubPairing {
	bob := "bob"
	return &stubPairing{couple: &models.Couple{ID: "c1", Partner1ID: "alice", Partner2ID: &bob, IsPaired: true, IsActive: true}}
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	env := newWSEnv(t, pairedCouple())

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketConnectedAndPresence(t *testing.T) {
	env := newWSEnv(t, pairedCouple())

	alice := env.dial(t, "tok-alice")
	connected := readEvent(t, alice)
	assert.Equal(t, services.EventConnected, connected.Type)
	assert.Equal(t, "alice", connected.UserID)

	bob := env.dial(t, "tok-bob")
	assert.Equal(t, services.EventConnected, readEvent(t, bob).Type)

	status := readEvent(t, alice)
	assert.Equal(t, services.EventPartnerStatus, status.Type)
	assert.Equal(t, "bob", status.UserID)
	require.NotNil(t, status.Online)
	assert.True(t, *status.Online)

	require.NoError(t, bob.Close())
	status = readEvent(t, alice)
	assert.Equal(t, services.EventPartnerStatus, status.Type)
	require.NotNil(t, status.Online)
	assert.False(t, *status.Online)

	assert.Eventually(t, func() bool { return env.presence.count() >= 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketDispatchesClientEvents(t *testing.T) {
	env := newWSEnv(t, pairedCouple())
	alice := env.dial(t, "tok-alice")
	readEvent(t, alice)

	require.NoError(t, alice.WriteJSON(services.WSMessage{Type: services.EventSendMessage, MessageType: "text", Content: "hi"}))
	require.NoError(t, alice.WriteJSON(services.WSMessage{Type: services.EventTypingStart}))
	require.NoError(t, alice.WriteJSON(services.WSMessage{Type: services.EventTypingStop}))
	require.NoError(t, alice.WriteJSON(services.WSMessage{Type: services.EventMarkRead, MessageIDs: []string{"m1"}}))

	assert.Eventually(t, func() bool {
		_, typing, read := env.chat.snapshot()
		return len(typing) == 2 && len(read) == 1
	}, 2*time.Second, 10*time.Millisecond)

	sent, typing, read := env.chat.snapshot()
	require.Len(t, sent, 1)
	assert.Equal(t, "hi", sent[0].Content)
	assert.Equal(t, []bool{true, false}, typing)
	assert.Equal(t, [][]string{{"m1"}}, read)
}

func TestWebSocketUnpairedSendGetsError(t *testing.T) {
	env := newWSEnv(t, &stubPairing{err: services.ErrNotPaired})
	env.chat.sendErr = services.ErrNotPaired

	alice := env.dial(t, "tok-alice")
	connected := readEvent(t, alice)
	assert.Equal(t, services.EventConnected, connected.Type)
	assert.Empty(t, env.hub.RoomOf("alice"))

	require.NoError(t, alice.WriteJSON(services.WSMessage{Type: services.EventSendMessage, Content: "hello?"}))
	errEvent := readEvent(t, alice)
	assert.Equal(t, services.EventError, errEvent.Type)
	assert.Equal(t, "NOT_PAIRED", errEvent.Reason)
}

func TestWebSocketUnknownAndMalformedFrames(t *testing.T) {
	env := newWSEnv(t, pairedCouple())
	alice := env.dial(t, "tok-alice")
	readEvent(t, alice)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{oops")))
	assert.Equal(t, ReasonBadBody, readEvent(t, alice).Reason)

	require.NoError(t, alice.WriteJSON(services.WSMessage{Type: "send_hug"}))
	assert.Equal(t, "UNKNOWN_TYPE", readEvent(t, alice).Reason)
}
