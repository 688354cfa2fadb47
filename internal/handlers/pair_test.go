package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"closeus-backend/internal/models"
	"closeus-backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateKeyReturnsKey(t *testing.T) {
	key := "ABCD2345"
	expires := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	pairs := &stubPairing{couple: &models.Couple{ID: "c1", PairingKey: &key, PairingKeyExpires: &expires}}
	h := NewPairHandler(pairs, services.NewWSHub(), nil)

	rec := httptest.NewRecorder()
	h.CreateKey(rec, authed(t, http.MethodPost, "/api/v1/couples/create-key", "alice", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp PairingKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "c1", resp.CoupleID)
	assert.Equal(t, key, resp.PairingKey)
	require.NotNil(t, resp.ExpiresAt)
	assert.True(t, expires.Equal(*resp.ExpiresAt))
}

func TestCreateKeyAlreadyPaired(t *testing.T) {
	h := NewPairHandler(&stubPairing{err: services.ErrAlreadyPaired}, services.NewWSHub(), nil)

	rec := httptest.NewRecorder()
	h.CreateKey(rec, authed(t, http.MethodPost, "/api/v1/couples/create-key", "alice", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ALREADY_PAIRED", decodeError(t, rec).Reason)
}

func TestPairJoinsConnectedMembersToRoom(t *testing.T) {
	bob := "bob"
	pairs := &stubPairing{couple: &models.Couple{ID: "c1", Partner1ID: "alice", Partner2ID: &bob, IsActive: true}}
	hub := services.NewWSHub()
	defer hub.Close()
	hub.Register("alice", "", &nopConn{})
	h := NewPairHandler(pairs, hub, nil)

	rec := httptest.NewRecorder()
	h.Pair(rec, authed(t, http.MethodPost, "/api/v1/couples/pair", "bob", services.PairRequest{PairingKey: "abcd2345"}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abcd2345", pairs.gotKey)
	assert.Equal(t, "c1", hub.RoomOf("alice"))
	assert.Empty(t, hub.RoomOf("bob"), "bob is not connected")
}

func TestPairErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		reason string
	}{
		{services.ErrInvalidKey, http.StatusNotFound, "INVALID_KEY"},
		{services.ErrKeyAlreadyUsed, http.StatusBadRequest, "KEY_ALREADY_USED"},
		{services.ErrSelfPairing, http.StatusBadRequest, "SELF_PAIRING"},
		{services.ErrKeyExpired, http.StatusBadRequest, "KEY_EXPIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			h := NewPairHandler(&stubPairing{err: tt.err}, services.NewWSHub(), nil)
			rec := httptest.NewRecorder()
			h.Pair(rec, authed(t, http.MethodPost, "/api/v1/couples/pair", "bob", services.PairRequest{PairingKey: "abcd2345"}))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.reason, decodeError(t, rec).Reason)
		})
	}
}

func TestCheckStatus(t *testing.T) {
	pairs := &stubPairing{status: &services.PairingStatus{IsPaired: false}}
	h := NewPairHandler(pairs, services.NewWSHub(), nil)

	rec := httptest.NewRecorder()
	h.CheckStatus(rec, authed(t, http.MethodGet, "/api/v1/couples/check-pairing-status", "alice", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"is_paired":false}`, rec.Body.String())
}

type nopConn struct{}

func (nopConn) WriteMessage(int, []byte) error { return nil }
func (nopConn) Close() error                   { return nil }
