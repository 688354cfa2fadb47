package handlers

import (
	"context"
	"net/http"
	"time"

	"closeus-backend/internal/middleware"
	"closeus-backend/internal/models"
	"closeus-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// PairingService is the pairing engine as the HTTP layer uses it
type PairingService interface {
	CreatePairingKey(ctx context.Context, userID string) (*models.Couple, error)
	RefreshPairingKey(ctx context.Context, userID string) (*models.Couple, error)
	PairWithPartner(ctx context.Context, userID, key string) (*models.Couple, error)
	CheckPairingStatus(ctx context.Context, userID string) (*services.PairingStatus, error)
	GetCouple(ctx context.Context, userID string) (*models.Couple, error)
}

// PairHandler handles couple-related HTTP requests
type PairHandler struct {
	pairService PairingService
	wsHub       *services.WSHub
	notifier    *services.Notifier
}

// NewPairHandler creates a new pair handler
func NewPairHandler(pairService PairingService, wsHub *services.WSHub, notifier *services.Notifier) *PairHandler {
	return &PairHandler{
		pairService: pairService,
		wsHub:       wsHub,
		notifier:    notifier,
	}
}

// PairingKeyResponse carries a freshly issued key
type PairingKeyResponse struct {
	CoupleID   string     `json:"couple_id"`
	PairingKey string     `json:"pairing_key"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func keyResponse(c *models.Couple) PairingKeyResponse {
	resp := PairingKeyResponse{CoupleID: c.ID, ExpiresAt: c.PairingKeyExpires}
	if c.PairingKey != nil {
		resp.PairingKey = *c.PairingKey
	}
	return resp
}

// CreateKey handles POST /api/v1/couples/create-key
func (h *PairHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	couple, err := h.pairService.CreatePairingKey(ctx, userID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to create pairing key")
		return
	}
	respondJSON(w, http.StatusOK, keyResponse(couple))
}

// RefreshKey handles POST /api/v1/couples/refresh-key
func (h *PairHandler) RefreshKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	couple, err := h.pairService.RefreshPairingKey(ctx, userID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to refresh pairing key")
		return
	}
	respondJSON(w, http.StatusOK, keyResponse(couple))
}

// Pair handles POST /api/v1/couples/pair
func (h *PairHandler) Pair(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req services.PairRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	couple, err := h.pairService.PairWithPartner(ctx, userID, req.PairingKey)
	if err != nil {
		respondServiceError(w, r, err, "Failed to pair")
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("couple_id", couple.ID).
		Msg("Pair created")

	// Both members may be connected; the key creator also gets a push.
	h.wsHub.NotifyPairCreated(couple)
	h.notifier.NotifyUser(couple.Partner1ID, "You're connected 💞", "Your partner used your code. Say hi!",
		map[string]string{"type": "pair_created", "couple_id": couple.ID})

	respondJSON(w, http.StatusOK, couple)
}

// CheckStatus handles GET /api/v1/couples/check-pairing-status
func (h *PairHandler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.pairService.CheckPairingStatus(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to check pairing status")
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// GetCouple handles GET /api/v1/couples/me
func (h *PairHandler) GetCouple(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	couple, err := h.pairService.GetCouple(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get couple")
		return
	}
	respondJSON(w, http.StatusOK, couple)
}
