package repository

import (
	"context"
	"fmt"

	"closeus-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FeatureFlagRepository reads feature flags
type FeatureFlagRepository struct {
	db *pgxpool.Pool
}

// NewFeatureFlagRepository creates a new feature flag repository
func NewFeatureFlagRepository(db *pgxpool.Pool) *FeatureFlagRepository {
	return &FeatureFlagRepository{db: db}
}

// List returns every flag
func (r *FeatureFlagRepository) List(ctx context.Context) ([]*models.FeatureFlag, error) {
	rows, err := r.db.Query(ctx, `
		SELECT key, enabled, rollout_percentage, description, updated_at
		FROM feature_flags ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feature flags: %w", err)
	}
	defer rows.Close()

	var flags []*models.FeatureFlag
	for rows.Next() {
		var f models.FeatureFlag
		if err := rows.Scan(&f.Key, &f.Enabled, &f.RolloutPercentage, &f.Description, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feature flag: %w", err)
		}
		flags = append(flags, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feature flags: %w", err)
	}
	return flags, nil
}
