package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"closeus-backend/internal/models"
	"closeus-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxTagWriteAttempts = 5

// PairService handles pairing keys and couple creation
type PairService struct {
	coupleRepo CoupleStore
	userRepo   UserStore
	keyTTL     time.Duration
	now        func() time.Time
	newKey     func() string
}

// NewPairService creates a new pair service
func NewPairService(coupleRepo CoupleStore, userRepo UserStore, keyTTL time.Duration) *PairService {
	return &PairService{
		coupleRepo: coupleRepo,
		userRepo:   userRepo,
		keyTTL:     keyTTL,
		now:        time.Now,
		newKey:     generatePairingKey,
	}
}

// PairRequest represents a request to redeem a pairing key
type PairRequest struct {
	PairingKey string `json:"pairing_key"`
}

// PairingStatus is returned to clients polling for a partner
type PairingStatus struct {
	IsPaired bool           `json:"is_paired"`
	Couple   *models.Couple `json:"couple,omitempty"`
}

// CreatePairingKey creates a pending couple for userID and returns it with its key
func (s *PairService) CreatePairingKey(ctx context.Context, userID string) (*models.Couple, error) {
	_, err := s.coupleRepo.GetActiveByUserID(ctx, userID)
	if err == nil {
		return nil, ErrAlreadyPaired
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing couple: %w", err)
	}

	for {
		key, err := s.uniqueKey(ctx)
		if err != nil {
			return nil, err
		}

		now := s.now()
		expires := now.Add(s.keyTTL)
		couple := &models.Couple{
			ID:                uuid.New().String(),
			Partner1ID:        userID,
			PairingKey:        &key,
			PairingKeyExpires: &expires,
			IsActive:          true,
			CreatedAt:         now,
			UpdatedAt:         now,
		}

		err = s.coupleRepo.Create(ctx, couple)
		if errors.Is(err, repository.ErrConflict) {
			// Another request took the key between the check and the insert.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create couple: %w", err)
		}

		log.Info().Str("user_id", userID).Str("couple_id", couple.ID).Msg("Pairing key created")
		return couple, nil
	}
}

// RefreshPairingKey replaces the key of the caller's pending couple
func (s *PairService) RefreshPairingKey(ctx context.Context, userID string) (*models.Couple, error) {
	couple, err := s.coupleRepo.GetActiveByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoCouple
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get couple: %w", err)
	}
	if couple.IsPaired {
		return nil, ErrNoCouple
	}

	for {
		key, err := s.uniqueKey(ctx)
		if err != nil {
			return nil, err
		}

		expires := s.now().Add(s.keyTTL)
		err = s.coupleRepo.UpdatePairingKey(ctx, couple.ID, key, expires)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoCouple
		}
		if err != nil {
			return nil, fmt.Errorf("failed to refresh pairing key: %w", err)
		}

		couple.PairingKey = &key
		couple.PairingKeyExpires = &expires
		couple.PairingAttempts = 0
		return couple, nil
	}
}

// PairWithPartner redeems a pairing key for userID. Precondition failures
// are checked in a fixed order and reported as distinct errors.
//
// A redeemer who still holds a pending couple of their own is not refused:
// that couple is retired in the same transaction. CreatePairingKey is
// stricter and rejects any active couple, pending or paired, with
// ErrAlreadyPaired, so only redeeming can move a user out of a pending couple.
func (s *PairService) PairWithPartner(ctx context.Context, userID, key string) (*models.Couple, error) {
	key = normalizePairingKey(key)
	if !isValidPairingKey(key) {
		return nil, ErrInvalidKey
	}

	couple, err := s.coupleRepo.GetByPairingKey(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get couple by key: %w", err)
	}

	if couple.IsPaired {
		s.recordFailedAttempt(ctx, couple.ID)
		return nil, ErrKeyAlreadyUsed
	}
	if couple.PairingKeyExpires != nil && s.now().After(*couple.PairingKeyExpires) {
		s.recordFailedAttempt(ctx, couple.ID)
		return nil, ErrKeyExpired
	}
	if couple.Partner1ID == userID {
		s.recordFailedAttempt(ctx, couple.ID)
		return nil, ErrSelfPairing
	}

	current, err := s.coupleRepo.GetActiveByUserID(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing couple: %w", err)
	}
	if err == nil && current.IsPaired && current.ID != couple.ID {
		s.recordFailedAttempt(ctx, couple.ID)
		return nil, ErrAlreadyPaired
	}

	creator, err := s.userRepo.GetByID(ctx, couple.Partner1ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get key creator: %w", err)
	}
	redeemer, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	params := repository.PairParams{
		CoupleID:        couple.ID,
		PartnerID:       userID,
		PairedAt:        s.now(),
		AnniversaryDate: firstTime(creator.AnniversaryDate, redeemer.AnniversaryDate),
		LivingStyle:     firstString(creator.LivingStyle, redeemer.LivingStyle),
	}
	base := coupleTag(creator.Name, redeemer.Name)

	suffix := 1
	for attempt := 0; attempt < maxTagWriteAttempts; attempt++ {
		params.CoupleTag, suffix, err = s.uniqueTag(ctx, base, suffix)
		if err != nil {
			return nil, err
		}

		paired, err := s.coupleRepo.Pair(ctx, params)
		switch {
		case err == nil:
			log.Info().
				Str("couple_id", paired.ID).
				Str("partner1_id", paired.Partner1ID).
				Str("partner2_id", userID).
				Str("couple_tag", params.CoupleTag).
				Msg("Couple paired")
			return publicCouple(paired), nil
		case errors.Is(err, repository.ErrConflict):
			// Tag taken by a concurrent pairing; try the next suffix.
			suffix++
		case errors.Is(err, repository.ErrCoupleAlreadyPaired):
			return nil, ErrKeyAlreadyUsed
		case errors.Is(err, repository.ErrMemberConflict):
			return nil, ErrAlreadyPaired
		default:
			return nil, fmt.Errorf("failed to pair couple: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to pair couple: couple tag %s kept colliding", base)
}

// CheckPairingStatus reports whether the caller's couple is paired
func (s *PairService) CheckPairingStatus(ctx context.Context, userID string) (*PairingStatus, error) {
	couple, err := s.coupleRepo.GetActiveByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return &PairingStatus{IsPaired: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get couple: %w", err)
	}
	return &PairingStatus{IsPaired: couple.IsPaired, Couple: publicCouple(couple)}, nil
}

// GetCouple returns the caller's active couple, paired or pending
func (s *PairService) GetCouple(ctx context.Context, userID string) (*models.Couple, error) {
	couple, err := s.coupleRepo.GetActiveByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoCouple
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get couple: %w", err)
	}
	return publicCouple(couple), nil
}

// GetPairedCouple returns the caller's paired couple or ErrNotPaired
func (s *PairService) GetPairedCouple(ctx context.Context, userID string) (*models.Couple, error) {
	return pairedCoupleOf(ctx, s.coupleRepo, userID)
}

func pairedCoupleOf(ctx context.Context, couples CoupleStore, userID string) (*models.Couple, error) {
	couple, err := couples.GetActiveByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotPaired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get couple: %w", err)
	}
	if !couple.IsPaired {
		return nil, ErrNotPaired
	}
	return couple, nil
}

// uniqueKey draws keys until one is not held by any couple
func (s *PairService) uniqueKey(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		key := s.newKey()
		exists, err := s.coupleRepo.PairingKeyExists(ctx, key)
		if err != nil {
			return "", err
		}
		if !exists {
			return key, nil
		}
	}
}

// uniqueTag returns base, or base followed by the first free numeric
// suffix starting at n, along with the suffix used.
func (s *PairService) uniqueTag(ctx context.Context, base string, n int) (string, int, error) {
	for ; ; n++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		tag := base
		if n > 1 {
			tag = base + strconv.Itoa(n)
		}
		exists, err := s.coupleRepo.CoupleTagExists(ctx, tag)
		if err != nil {
			return "", 0, err
		}
		if !exists {
			return tag, n, nil
		}
	}
}

func (s *PairService) recordFailedAttempt(ctx context.Context, coupleID string) {
	if err := s.coupleRepo.IncrementPairingAttempts(ctx, coupleID); err != nil {
		log.Error().Err(err).Str("couple_id", coupleID).Msg("Failed to record pairing attempt")
	}
}

// publicCouple hides the pairing key once it can no longer be redeemed
func publicCouple(c *models.Couple) *models.Couple {
	out := *c
	if out.IsPaired {
		out.PairingKey = nil
		out.PairingKeyExpires = nil
	}
	return &out
}

func firstTime(values ...*time.Time) *time.Time {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstString(values ...*string) *string {
	for _, v := range values {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}
