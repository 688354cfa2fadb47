package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"closeus-backend/internal/models"
	"closeus-backend/internal/repository"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// UserService handles login, profile and presence
type UserService struct {
	userRepo       UserStore
	coupleRepo     CoupleStore
	tokens         *TokenService
	presenceWindow time.Duration
	now            func() time.Time
}

// NewUserService creates a new user service
func NewUserService(userRepo UserStore, coupleRepo CoupleStore, tokens *TokenService, presenceWindow time.Duration) *UserService {
	return &UserService{
		userRepo:       userRepo,
		coupleRepo:     coupleRepo,
		tokens:         tokens,
		presenceWindow: presenceWindow,
		now:            time.Now,
	}
}

// LoginRequest carries an identity already verified by the external provider
type LoginRequest struct {
	Email      string  `json:"email" validate:"required,email,max=254"`
	ExternalID string  `json:"external_id" validate:"required,max=255"`
	Name       string  `json:"name" validate:"max=80"`
	PhotoURL   *string `json:"photo_url" validate:"omitempty,url"`
}

// LoginResponse is returned on login
type LoginResponse struct {
	TokenPair
	User      *models.User `json:"user"`
	IsNewUser bool         `json:"is_new_user"`
}

// Login finds the user by external ID, creating them on first login
func (s *UserService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	req.PhotoURL = optionalURL(req.PhotoURL)
	if err := validateStruct(req, ErrInvalidInput); err != nil {
		return nil, err
	}

	isNew := false
	user, err := s.userRepo.GetByExternalID(ctx, req.ExternalID)
	if errors.Is(err, repository.ErrNotFound) {
		user, err = s.createUser(ctx, req)
		isNew = err == nil
	}
	if err != nil {
		return nil, err
	}

	tokens, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{TokenPair: *tokens, User: user, IsNewUser: isNew}, nil
}

func (s *UserService) createUser(ctx context.Context, req LoginRequest) (*models.User, error) {
	now := s.now()
	user := &models.User{
		ID:         uuid.New().String(),
		Email:      req.Email,
		ExternalID: req.ExternalID,
		Name:       req.Name,
		PhotoURL:   req.PhotoURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.userRepo.Create(ctx, user)
	if errors.Is(err, repository.ErrConflict) {
		// A concurrent first login created the row.
		return s.userRepo.GetByExternalID(ctx, req.ExternalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// RefreshTokens exchanges a refresh token for a new pair
func (s *UserService) RefreshTokens(refreshToken string) (*TokenPair, error) {
	return s.tokens.Refresh(refreshToken)
}

// GetUser returns a user by ID
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// UpdateProfileRequest edits profile fields. Nil fields are left unchanged.
type UpdateProfileRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=80"`
	PhotoURL    *string `json:"photo_url" validate:"omitempty,url"`
	Gender      *string `json:"gender" validate:"omitempty,oneof=male female other"`
	DateOfBirth *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02,pastdate"`
}

// UpdateProfile validates and applies a profile edit. An empty photo_url
// clears the photo.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*models.User, error) {
	clearPhoto := req.PhotoURL != nil && strings.TrimSpace(*req.PhotoURL) == ""
	req = UpdateProfileRequest{
		Name:        trimmed(req.Name, false),
		PhotoURL:    optionalURL(req.PhotoURL),
		Gender:      trimmed(req.Gender, true),
		DateOfBirth: trimmed(req.DateOfBirth, false),
	}
	if err := validateStruct(req, ErrInvalidInput); err != nil {
		return nil, err
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.PhotoURL != nil || clearPhoto {
		user.PhotoURL = req.PhotoURL
	}
	if req.Gender != nil {
		user.Gender = req.Gender
	}
	if req.DateOfBirth != nil {
		user.DateOfBirth = parseDate(*req.DateOfBirth)
	}

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// OnboardingRequest carries the answers collected during onboarding
type OnboardingRequest struct {
	Gender             *string `json:"gender" validate:"omitempty,oneof=male female other"`
	DateOfBirth        *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02,pastdate"`
	RelationshipStatus *string `json:"relationship_status" validate:"omitempty,oneof=dating engaged married other"`
	LivingStyle        *string `json:"living_style" validate:"omitempty,oneof=together apart long_distance"`
	AnniversaryDate    *string `json:"anniversary_date" validate:"omitempty,datetime=2006-01-02,pastdate"`
	PartnerName        *string `json:"partner_name" validate:"omitempty,max=80"`
}

// CompleteOnboarding validates onboarding answers and marks onboarding complete
func (s *UserService) CompleteOnboarding(ctx context.Context, userID string, req OnboardingRequest) (*models.User, error) {
	req = OnboardingRequest{
		Gender:             trimmed(req.Gender, true),
		DateOfBirth:        trimmed(req.DateOfBirth, false),
		RelationshipStatus: trimmed(req.RelationshipStatus, true),
		LivingStyle:        trimmed(req.LivingStyle, true),
		AnniversaryDate:    trimmed(req.AnniversaryDate, false),
		PartnerName:        trimmed(req.PartnerName, false),
	}
	if err := validateStruct(req, ErrInvalidInput); err != nil {
		return nil, err
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Gender != nil {
		user.Gender = req.Gender
	}
	if req.RelationshipStatus != nil {
		user.RelationshipStatus = req.RelationshipStatus
	}
	if req.LivingStyle != nil {
		user.LivingStyle = req.LivingStyle
	}
	if req.DateOfBirth != nil {
		user.DateOfBirth = parseDate(*req.DateOfBirth)
	}
	if req.AnniversaryDate != nil {
		user.AnniversaryDate = parseDate(*req.AnniversaryDate)
	}
	if req.PartnerName != nil {
		user.PartnerName = req.PartnerName
	}
	user.OnboardingComplete = true

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to complete onboarding: %w", err)
	}
	return user, nil
}

// UpdatePushToken stores the device token, or clears it when empty
func (s *UserService) UpdatePushToken(ctx context.Context, userID, token string) error {
	var value *string
	if token = strings.TrimSpace(token); token != "" {
		value = &token
	}
	return s.userRepo.UpdatePushToken(ctx, userID, value)
}

// Heartbeat stamps lastActive
func (s *UserService) Heartbeat(ctx context.Context, userID string) error {
	return s.userRepo.TouchLastActive(ctx, userID, s.now())
}

// PartnerProfile is the partner as seen by the other member
type PartnerProfile struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	PhotoURL   *string    `json:"photo_url,omitempty"`
	IsOnline   bool       `json:"is_online"`
	LastActive *time.Time `json:"last_active,omitempty"`
}

// GetPartner returns the caller's partner with derived presence
func (s *UserService) GetPartner(ctx context.Context, userID string) (*PartnerProfile, error) {
	couple, err := s.coupleRepo.GetActiveByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !couple.IsPaired) {
		return nil, ErrNotPaired
	}
	if err != nil {
		return nil, err
	}

	partner, err := s.GetUser(ctx, couple.PartnerOf(userID))
	if err != nil {
		return nil, err
	}
	return &PartnerProfile{
		ID:         partner.ID,
		Name:       partner.Name,
		PhotoURL:   partner.PhotoURL,
		IsOnline:   partner.IsOnline(s.now(), s.presenceWindow),
		LastActive: partner.LastActive,
	}, nil
}

// optionalURL trims p and drops it when blank
func optionalURL(p *string) *string {
	v := trimmed(p, false)
	if v == nil || *v == "" {
		return nil
	}
	return v
}

// parseDate parses a date that already passed the datetime check
func parseDate(value string) *time.Time {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil
	}
	return &t
}
