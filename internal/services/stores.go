package services

import (
	"context"
	"time"

	"closeus-backend/internal/models"
	"closeus-backend/internal/repository"
)

// UserStore is the persistence the user directory needs
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdatePushToken(ctx context.Context, userID string, pushToken *string) error
	TouchLastActive(ctx context.Context, userID string, at time.Time) error
	TouchLastActiveByName(ctx context.Context, name string, at time.Time) (int64, error)
}

// CoupleStore is the persistence the pairing engine needs
type CoupleStore interface {
	Create(ctx context.Context, couple *models.Couple) error
	GetByID(ctx context.Context, id string) (*models.Couple, error)
	GetByPairingKey(ctx context.Context, key string) (*models.Couple, error)
	GetActiveByUserID(ctx context.Context, userID string) (*models.Couple, error)
	PairingKeyExists(ctx context.Context, key string) (bool, error)
	CoupleTagExists(ctx context.Context, tag string) (bool, error)
	UpdatePairingKey(ctx context.Context, coupleID, key string, expires time.Time) error
	IncrementPairingAttempts(ctx context.Context, coupleID string) error
	Pair(ctx context.Context, p repository.PairParams) (*models.Couple, error)
}

// QuestionStore is the persistence for questions and daily assignments
type QuestionStore interface {
	GetByID(ctx context.Context, id string) (*models.Question, error)
	Create(ctx context.Context, q *models.Question) error
	CountUnusedDaily(ctx context.Context, coupleID string) (int, error)
	GetUnusedDailyAt(ctx context.Context, coupleID string, offset int) (*models.Question, error)
	CountDaily(ctx context.Context) (int, error)
	GetDailyAt(ctx context.Context, offset int) (*models.Question, error)
	DeleteStaleAIGenerated(ctx context.Context, cutoff time.Time) (int64, error)
	ListCategories(ctx context.Context) ([]*models.QuestionCategory, error)
	EnsureCategory(ctx context.Context, id, name, description string) (string, error)
	GetDaily(ctx context.Context, coupleID string, date time.Time) (*models.DailyCoupleQuestion, error)
	CreateDaily(ctx context.Context, d *models.DailyCoupleQuestion) error
	ListDaily(ctx context.Context, coupleID string, limit int) ([]*models.DailyCoupleQuestion, error)
	IsAssigned(ctx context.Context, coupleID, questionID string) (bool, error)
}

// AnswerStore is the persistence for answers
type AnswerStore interface {
	Upsert(ctx context.Context, a *models.Answer) (*models.Answer, error)
	Get(ctx context.Context, userID, questionID string) (*models.Answer, error)
	Delete(ctx context.Context, userID, questionID string) error
}

// MessageStore is the persistence for chat messages
type MessageStore interface {
	Create(ctx context.Context, m *models.Message) error
	ListByCouple(ctx context.Context, coupleID string, before *time.Time, limit int) ([]*models.Message, error)
	MarkRead(ctx context.Context, coupleID, readerID string, ids []string) (int64, error)
}

// FeatureStore reads feature flags
type FeatureStore interface {
	List(ctx context.Context) ([]*models.FeatureFlag, error)
}

var (
	_ UserStore     = (*repository.UserRepository)(nil)
	_ CoupleStore   = (*repository.CoupleRepository)(nil)
	_ QuestionStore = (*repository.QuestionRepository)(nil)
	_ AnswerStore   = (*repository.AnswerRepository)(nil)
	_ MessageStore  = (*repository.MessageRepository)(nil)
	_ FeatureStore  = (*repository.FeatureFlagRepository)(nil)
)
