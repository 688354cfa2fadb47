package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"closeus-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const coupleColumns = `id, partner1_id, partner2_id, pairing_key, pairing_key_expires,
	pairing_attempts, is_paired, paired_at, couple_tag, anniversary_date,
	living_style, is_active, created_at, updated_at`

// CoupleRepository handles database operations for couples
type CoupleRepository struct {
	db *pgxpool.Pool
}

// NewCoupleRepository creates a new couple repository
func NewCoupleRepository(db *pgxpool.Pool) *CoupleRepository {
	return &CoupleRepository{db: db}
}

// PairParams describes the write that completes a pairing
type PairParams struct {
	CoupleID        string
	PartnerID       string
	CoupleTag       string
	PairedAt        time.Time
	AnniversaryDate *time.Time
	LivingStyle     *string
}

func scanCouple(row pgx.Row) (*models.Couple, error) {
	var c models.Couple
	err := row.Scan(
		&c.ID, &c.Partner1ID, &c.Partner2ID, &c.PairingKey, &c.PairingKeyExpires,
		&c.PairingAttempts, &c.IsPaired, &c.PairedAt, &c.CoupleTag, &c.AnniversaryDate,
		&c.LivingStyle, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Create creates a new unpaired couple and links its creator to it
func (r *CoupleRepository) Create(ctx context.Context, couple *models.Couple) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO couples (id, partner1_id, pairing_key, pairing_key_expires, is_paired, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, FALSE, TRUE, $5, $5)
		`
		_, err := tx.Exec(ctx, query, couple.ID, couple.Partner1ID, couple.PairingKey, couple.PairingKeyExpires, couple.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("failed to create couple: %w", err)
		}

		_, err = tx.Exec(ctx, `UPDATE users SET couple_id = $1, updated_at = NOW() WHERE id = $2`, couple.ID, couple.Partner1ID)
		if err != nil {
			return fmt.Errorf("failed to link couple creator: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a couple by ID
func (r *CoupleRepository) GetByID(ctx context.Context, id string) (*models.Couple, error) {
	query := `SELECT ` + coupleColumns + ` FROM couples WHERE id = $1`
	couple, err := scanCouple(r.db.QueryRow(ctx, query, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get couple: %w", err)
	}
	return couple, err
}

// GetByPairingKey retrieves the active couple holding a pairing key
func (r *CoupleRepository) GetByPairingKey(ctx context.Context, key string) (*models.Couple, error) {
	query := `SELECT ` + coupleColumns + ` FROM couples WHERE pairing_key = $1 AND is_active`
	couple, err := scanCouple(r.db.QueryRow(ctx, query, key))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get couple by pairing key: %w", err)
	}
	return couple, err
}

// GetActiveByUserID retrieves the active couple a user occupies, preferring a paired one
func (r *CoupleRepository) GetActiveByUserID(ctx context.Context, userID string) (*models.Couple, error) {
	query := `
		SELECT ` + coupleColumns + `
		FROM couples
		WHERE is_active AND (partner1_id = $1 OR partner2_id = $1)
		ORDER BY is_paired DESC, created_at DESC
		LIMIT 1
	`
	couple, err := scanCouple(r.db.QueryRow(ctx, query, userID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get couple by user id: %w", err)
	}
	return couple, err
}

// PairingKeyExists checks whether any couple carries key
func (r *CoupleRepository) PairingKeyExists(ctx context.Context, key string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM couples WHERE pairing_key = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check pairing key existence: %w", err)
	}
	return exists, nil
}

// CoupleTagExists checks whether a couple tag is taken
func (r *CoupleRepository) CoupleTagExists(ctx context.Context, tag string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM couples WHERE couple_tag = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, tag).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check couple tag existence: %w", err)
	}
	return exists, nil
}

// UpdatePairingKey replaces the key of an unpaired couple and resets its attempt counter
func (r *CoupleRepository) UpdatePairingKey(ctx context.Context, coupleID, key string, expires time.Time) error {
	query := `
		UPDATE couples
		SET pairing_key = $2, pairing_key_expires = $3, pairing_attempts = 0, updated_at = NOW()
		WHERE id = $1 AND is_active AND NOT is_paired
	`
	result, err := r.db.Exec(ctx, query, coupleID, key, expires)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to update pairing key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementPairingAttempts counts a failed redemption against a couple's key
func (r *CoupleRepository) IncrementPairingAttempts(ctx context.Context, coupleID string) error {
	query := `UPDATE couples SET pairing_attempts = pairing_attempts + 1 WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, coupleID); err != nil {
		return fmt.Errorf("failed to increment pairing attempts: %w", err)
	}
	return nil
}

// Pair completes a pairing in one transaction. Both partners' user rows
// are locked first, in id order, so a user redeeming two keys at once and
// two users redeeming each other's keys are serialized. The couple row is
// only updated while it is still unpaired, so of two concurrent redemptions
// of the same key exactly one sees a returned row. Any pending couple the
// redeemer created themselves is retired.
func (r *CoupleRepository) Pair(ctx context.Context, p PairParams) (*models.Couple, error) {
	var couple *models.Couple
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockPartners(ctx, tx, p.CoupleID, p.PartnerID); err != nil {
			return err
		}

		var inOther bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM couples
				WHERE is_active AND is_paired AND id <> $2
				AND (partner1_id = $1 OR partner2_id = $1)
			)`, p.PartnerID, p.CoupleID).Scan(&inOther)
		if err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if inOther {
			return ErrMemberConflict
		}

		_, err = tx.Exec(ctx, `
			UPDATE couples SET is_active = FALSE, pairing_key = NULL, updated_at = NOW()
			WHERE is_active AND NOT is_paired AND partner1_id = $1 AND id <> $2
		`, p.PartnerID, p.CoupleID)
		if err != nil {
			return fmt.Errorf("failed to retire pending couple: %w", err)
		}

		couple, err = scanCouple(tx.QueryRow(ctx, `
			UPDATE couples SET
				partner2_id = $2, is_paired = TRUE, paired_at = $3, couple_tag = $4,
				anniversary_date = $5, living_style = $6, updated_at = $3
			WHERE id = $1 AND is_active AND NOT is_paired
			RETURNING `+coupleColumns,
			p.CoupleID, p.PartnerID, p.PairedAt, p.CoupleTag, p.AnniversaryDate, p.LivingStyle,
		))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrCoupleAlreadyPaired
			}
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("failed to pair couple: %w", err)
		}

		_, err = tx.Exec(ctx, `UPDATE users SET couple_id = $1, updated_at = NOW() WHERE id IN ($2, $3)`,
			couple.ID, couple.Partner1ID, p.PartnerID)
		if err != nil {
			return fmt.Errorf("failed to link partners: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return couple, nil
}

// lockPartners takes row locks on the couple creator and the redeemer
func lockPartners(ctx context.Context, tx pgx.Tx, coupleID, partnerID string) error {
	rows, err := tx.Query(ctx, `
		SELECT id FROM users
		WHERE id IN ((SELECT partner1_id FROM couples WHERE id = $1), $2)
		ORDER BY id
		FOR UPDATE
	`, coupleID, partnerID)
	if err != nil {
		return fmt.Errorf("failed to lock partners: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("failed to lock partners: %w", err)
	}
	if !slices.Contains(ids, partnerID) {
		return ErrNotFound
	}
	return nil
}
