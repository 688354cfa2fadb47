package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"closeus-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, external_id, name, photo_url, gender, date_of_birth,
	relationship_status, living_style, anniversary_date, partner_name,
	onboarding_complete, couple_id, push_token, last_active, created_at, updated_at`

// UserRepository handles database operations for users
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Email, &u.ExternalID, &u.Name, &u.PhotoURL, &u.Gender, &u.DateOfBirth,
		&u.RelationshipStatus, &u.LivingStyle, &u.AnniversaryDate, &u.PartnerName,
		&u.OnboardingComplete, &u.CoupleID, &u.PushToken, &u.LastActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, external_id, name, photo_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`
	_, err := r.db.Exec(ctx, query, user.ID, user.Email, user.ExternalID, user.Name, user.PhotoURL, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, err
}

// GetByExternalID retrieves a user by the external auth provider's ID
func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, externalID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get user by external id: %w", err)
	}
	return user, err
}

// UpdateProfile writes the editable profile and onboarding attributes
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users SET
			name = $2, photo_url = $3, gender = $4, date_of_birth = $5,
			relationship_status = $6, living_style = $7, anniversary_date = $8,
			partner_name = $9, onboarding_complete = $10, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query,
		user.ID, user.Name, user.PhotoURL, user.Gender, user.DateOfBirth,
		user.RelationshipStatus, user.LivingStyle, user.AnniversaryDate,
		user.PartnerName, user.OnboardingComplete,
	)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePushToken updates the push token for a user
func (r *UserRepository) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	query := `UPDATE users SET push_token = $1 WHERE id = $2`
	_, err := r.db.Exec(ctx, query, pushToken, userID)
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	return nil
}

// TouchLastActive records a presence heartbeat
func (r *UserRepository) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	query := `UPDATE users SET last_active = $1 WHERE id = $2`
	_, err := r.db.Exec(ctx, query, at, userID)
	if err != nil {
		return fmt.Errorf("failed to update last active: %w", err)
	}
	return nil
}

// TouchLastActiveByName records a heartbeat for every user with an exact name
func (r *UserRepository) TouchLastActiveByName(ctx context.Context, name string, at time.Time) (int64, error) {
	query := `UPDATE users SET last_active = $1 WHERE name = $2`
	result, err := r.db.Exec(ctx, query, at, name)
	if err != nil {
		return 0, fmt.Errorf("failed to update last active by name: %w", err)
	}
	return result.RowsAffected(), nil
}
