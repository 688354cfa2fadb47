package handlers

import (
	"context"
	"net/http"

	"closeus-backend/internal/middleware"
)

// FeatureEvaluator returns the caller's flag values
type FeatureEvaluator interface {
	ForUser(ctx context.Context, userID string) (map[string]bool, error)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// FeatureHandler serves feature flags
type FeatureHandler struct {
	features FeatureEvaluator
}

// NewFeatureHandler creates a new feature handler
func NewFeatureHandler(features FeatureEvaluator) *FeatureHandler {
	return &FeatureHandler{features: features}
}

// List handles GET /api/v1/features
func (h *FeatureHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flags, err := h.features.ForUser(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to evaluate feature flags")
		return
	}
	respondJSON(w, http.StatusOK, flags)
}

// Healthz handles GET /healthz
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK"))
}

// Readyz returns GET /readyz, failing while db is unreachable
func Readyz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			respondServiceError(w, r, err, "Readiness check failed")
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("OK"))
	}
}
