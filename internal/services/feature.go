package services

import (
	"context"

	"closeus-backend/internal/models"

	"github.com/cespare/xxhash/v2"
)

// FeatureService evaluates rollout flags per user
type FeatureService struct {
	flags FeatureStore
}

// NewFeatureService creates a new feature service
func NewFeatureService(flags FeatureStore) *FeatureService {
	return &FeatureService{flags: flags}
}

// ForUser returns every flag's value for userID
func (s *FeatureService) ForUser(ctx context.Context, userID string) (map[string]bool, error) {
	flags, err := s.flags.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(flags))
	for _, f := range flags {
		out[f.Key] = flagEnabledFor(f, userID)
	}
	return out, nil
}

// flagEnabledFor buckets userID into 0..99 per flag. A user's bucket is
// stable, so raising the percentage only ever adds users.
func flagEnabledFor(f *models.FeatureFlag, userID string) bool {
	if !f.Enabled || f.RolloutPercentage <= 0 {
		return false
	}
	if f.RolloutPercentage >= 100 {
		return true
	}
	bucket := xxhash.Sum64String(f.Key+":"+userID) % 100
	return bucket < uint64(f.RolloutPercentage)
}
