package handlers

import (
	"context"
	"net/http"

	"closeus-backend/internal/middleware"
	"closeus-backend/internal/models"
	"closeus-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// UserDirectory is the user service as the HTTP layer uses it
type UserDirectory interface {
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResponse, error)
	RefreshTokens(refreshToken string) (*services.TokenPair, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, req services.UpdateProfileRequest) (*models.User, error)
	CompleteOnboarding(ctx context.Context, userID string, req services.OnboardingRequest) (*models.User, error)
	UpdatePushToken(ctx context.Context, userID, token string) error
	Heartbeat(ctx context.Context, userID string) error
	GetPartner(ctx context.Context, userID string) (*services.PartnerProfile, error)
}

// UserHandler handles login and profile requests
type UserHandler struct {
	userService UserDirectory
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService UserDirectory) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// RefreshRequest carries a refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// PushTokenRequest carries a device token; empty clears it
type PushTokenRequest struct {
	PushToken string `json:"push_token"`
}

// Login handles POST /api/v1/auth/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.userService.Login(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to log in")
		return
	}

	log.Info().
		Str("user_id", resp.User.ID).
		Bool("new_user", resp.IsNewUser).
		Msg("User logged in")

	respondJSON(w, http.StatusOK, resp)
}

// Refresh handles POST /api/v1/auth/refresh
func (h *UserHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tokens, err := h.userService.RefreshTokens(req.RefreshToken)
	if err != nil {
		respondServiceError(w, r, err, "Failed to refresh tokens")
		return
	}
	respondJSON(w, http.StatusOK, tokens)
}

// Me handles GET /api/v1/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.userService.GetUser(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get user")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// UpdateMe handles PUT /api/v1/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req services.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.userService.UpdateProfile(ctx, middleware.GetUserID(ctx), req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to update profile")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Onboarding handles POST /api/v1/users/me/onboarding
func (h *UserHandler) Onboarding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req services.OnboardingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.userService.CompleteOnboarding(ctx, middleware.GetUserID(ctx), req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to complete onboarding")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// PushToken handles PUT /api/v1/users/me/push-token
func (h *UserHandler) PushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req PushTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.userService.UpdatePushToken(ctx, middleware.GetUserID(ctx), req.PushToken); err != nil {
		respondServiceError(w, r, err, "Failed to update push token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Heartbeat handles POST /api/v1/users/me/heartbeat
func (h *UserHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.userService.Heartbeat(ctx, middleware.GetUserID(ctx)); err != nil {
		respondServiceError(w, r, err, "Failed to record heartbeat")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Partner handles GET /api/v1/users/partner
func (h *UserHandler) Partner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partner, err := h.userService.GetPartner(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get partner")
		return
	}
	respondJSON(w, http.StatusOK, partner)
}
