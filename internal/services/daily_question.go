package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"closeus-backend/internal/models"
	"closeus-backend/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CurrentQuestion refers to today's assigned question in place of an ID
const CurrentQuestion = "current"

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 100
)

// DailyQuestionService assigns one question per couple per day and gates answer visibility
type DailyQuestionService struct {
	couples   CoupleStore
	questions QuestionStore
	answers   AnswerStore
	notifier  *Notifier
	loc       *time.Location
	now       func() time.Time
	intn      func(n int) int
}

// NewDailyQuestionService creates a new daily question service. loc decides
// where a calendar day starts.
func NewDailyQuestionService(couples CoupleStore, questions QuestionStore, answers AnswerStore, notifier *Notifier, loc *time.Location) *DailyQuestionService {
	return &DailyQuestionService{
		couples:   couples,
		questions: questions,
		answers:   answers,
		notifier:  notifier,
		loc:       loc,
		now:       time.Now,
		intn:      rand.IntN,
	}
}

// PartnerAnswer is the partner's answer as the caller may see it. Text is
// only set once the caller has answered the same question.
type PartnerAnswer struct {
	HasAnswered bool       `json:"has_answered"`
	IsLocked    bool       `json:"is_locked"`
	Text        *string    `json:"text,omitempty"`
	AnsweredAt  *time.Time `json:"answered_at,omitempty"`
}

// DailyQuestionView is today's (or a past day's) question for the caller
type DailyQuestionView struct {
	Date          string           `json:"date"`
	Question      *models.Question `json:"question"`
	MyAnswer      *models.Answer   `json:"my_answer"`
	PartnerAnswer *PartnerAnswer   `json:"partner_answer"`
	BothAnswered  bool             `json:"both_answered"`
}

// AnswerRequest carries a submitted answer
type AnswerRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

// validateAnswer reports a blank answer as ErrMissingText and anything else as ErrInvalidInput
func validateAnswer(req AnswerRequest) error {
	err := validate.Struct(req)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && verrs[0].Tag() == "required" {
		return ErrMissingText
	}
	return invalid(err, ErrInvalidInput)
}

// GetDailyQuestion returns today's question for the caller's couple,
// assigning one on the first read of the day.
func (s *DailyQuestionService) GetDailyQuestion(ctx context.Context, userID string) (*DailyQuestionView, error) {
	couple, err := pairedCoupleOf(ctx, s.couples, userID)
	if err != nil {
		return nil, err
	}

	today := s.today()
	daily, err := s.assignment(ctx, couple.ID, today)
	if err != nil {
		return nil, err
	}

	return s.view(ctx, couple, userID, daily)
}

// AnswerDailyQuestion stores or overwrites the caller's answer
func (s *DailyQuestionService) AnswerDailyQuestion(ctx context.Context, userID, questionID, text string) (*models.Answer, error) {
	text = strings.TrimSpace(text)
	if err := validateAnswer(AnswerRequest{Text: text}); err != nil {
		return nil, err
	}

	couple, err := pairedCoupleOf(ctx, s.couples, userID)
	if err != nil {
		return nil, err
	}

	if questionID == CurrentQuestion {
		daily, err := s.assignment(ctx, couple.ID, s.today())
		if err != nil {
			return nil, err
		}
		questionID = daily.QuestionID
	}

	// Only questions the couple was given can be answered.
	assigned, err := s.questions.IsAssigned(ctx, couple.ID, questionID)
	if err != nil {
		return nil, err
	}
	if !assigned {
		return nil, ErrQuestionNotFound
	}

	now := s.now()
	saved, err := s.answers.Upsert(ctx, &models.Answer{
		ID:         uuid.New().String(),
		UserID:     userID,
		CoupleID:   couple.ID,
		QuestionID: questionID,
		Text:       text,
		Date:       startOfDay(now, s.loc),
		CreatedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}

	if saved.CreatedAt.Equal(saved.UpdatedAt) {
		s.notifier.NotifyUser(couple.PartnerOf(userID),
			"New answer 💌", "Your partner answered today's question. Answer to see theirs!",
			map[string]string{"type": "daily_answer", "question_id": questionID})
	}

	log.Info().Str("user_id", userID).Str("question_id", questionID).Msg("Daily answer saved")
	return saved, nil
}

// DeleteDailyAnswer removes the caller's answer. questionID may be CurrentQuestion.
func (s *DailyQuestionService) DeleteDailyAnswer(ctx context.Context, userID, questionID string) error {
	if questionID == CurrentQuestion {
		couple, err := pairedCoupleOf(ctx, s.couples, userID)
		if err != nil {
			return err
		}
		daily, err := s.questions.GetDaily(ctx, couple.ID, s.today())
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAnswerNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get daily question: %w", err)
		}
		questionID = daily.QuestionID
	}

	err := s.answers.Delete(ctx, userID, questionID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrAnswerNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete answer: %w", err)
	}

	log.Warn().Str("user_id", userID).Str("question_id", questionID).Msg("Daily answer deleted")
	return nil
}

// History returns past assignments for the caller's couple, newest first
func (s *DailyQuestionService) History(ctx context.Context, userID string, limit int) ([]*DailyQuestionView, error) {
	couple, err := pairedCoupleOf(ctx, s.couples, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	assignments, err := s.questions.ListDaily(ctx, couple.ID, limit)
	if err != nil {
		return nil, err
	}

	views := make([]*DailyQuestionView, 0, len(assignments))
	for _, daily := range assignments {
		view, err := s.view(ctx, couple, userID, daily)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// Categories lists active question categories
func (s *DailyQuestionService) Categories(ctx context.Context) ([]*models.QuestionCategory, error) {
	return s.questions.ListCategories(ctx)
}

func (s *DailyQuestionService) today() time.Time {
	return startOfDay(s.now(), s.loc)
}

// assignment returns the couple's assignment for date, creating it when
// missing. A lost race on the (couple, date) constraint re-reads the winner.
func (s *DailyQuestionService) assignment(ctx context.Context, coupleID string, date time.Time) (*models.DailyCoupleQuestion, error) {
	daily, err := s.questions.GetDaily(ctx, coupleID, date)
	if err == nil {
		return daily, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to get daily question: %w", err)
	}

	question, err := s.pickQuestion(ctx, coupleID)
	if err != nil {
		return nil, err
	}

	daily = &models.DailyCoupleQuestion{
		ID:         uuid.New().String(),
		CoupleID:   coupleID,
		QuestionID: question.ID,
		Date:       date,
		CreatedAt:  s.now(),
	}
	err = s.questions.CreateDaily(ctx, daily)
	if errors.Is(err, repository.ErrConflict) {
		return s.questions.GetDaily(ctx, coupleID, date)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to assign daily question: %w", err)
	}

	log.Info().Str("couple_id", coupleID).Str("question_id", question.ID).Msg("Daily question assigned")
	return daily, nil
}

// pickQuestion samples uniformly from daily questions the couple has never
// had. Once those run out any active daily question may repeat.
func (s *DailyQuestionService) pickQuestion(ctx context.Context, coupleID string) (*models.Question, error) {
	unused, err := s.questions.CountUnusedDaily(ctx, coupleID)
	if err != nil {
		return nil, err
	}
	if unused > 0 {
		q, err := s.questions.GetUnusedDailyAt(ctx, coupleID, s.intn(unused))
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		// The pool shrank between count and fetch; fall through.
	}

	total, err := s.questions.CountDaily(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, ErrNoQuestionAvailable
	}
	log.Warn().Str("couple_id", coupleID).Msg("Unused daily questions exhausted, repeating")

	q, err := s.questions.GetDailyAt(ctx, s.intn(total))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoQuestionAvailable
	}
	return q, err
}

func (s *DailyQuestionService) view(ctx context.Context, couple *models.Couple, userID string, daily *models.DailyCoupleQuestion) (*DailyQuestionView, error) {
	question, err := s.questions.GetByID(ctx, daily.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	mine, err := s.optionalAnswer(ctx, userID, question.ID)
	if err != nil {
		return nil, err
	}
	theirs, err := s.optionalAnswer(ctx, couple.PartnerOf(userID), question.ID)
	if err != nil {
		return nil, err
	}

	return &DailyQuestionView{
		Date:          daily.Date.Format(dateLayout),
		Question:      question,
		MyAnswer:      mine,
		PartnerAnswer: revealPartnerAnswer(mine, theirs),
		BothAnswered:  mine != nil && theirs != nil,
	}, nil
}

func (s *DailyQuestionService) optionalAnswer(ctx context.Context, userID, questionID string) (*models.Answer, error) {
	if userID == "" {
		return nil, nil
	}
	a, err := s.answers.Get(ctx, userID, questionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}
	return a, nil
}

// revealPartnerAnswer withholds the partner's text until the caller has answered
func revealPartnerAnswer(mine, theirs *models.Answer) *PartnerAnswer {
	if theirs == nil {
		return &PartnerAnswer{HasAnswered: false}
	}
	view := &PartnerAnswer{HasAnswered: true, AnsweredAt: &theirs.UpdatedAt}
	if mine == nil {
		view.IsLocked = true
		return view
	}
	text := theirs.Text
	view.Text = &text
	return view
}
