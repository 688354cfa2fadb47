package handlers

import (
	"context"
	"net/http"
	"strconv"

	"closeus-backend/internal/middleware"
	"closeus-backend/internal/models"
	"closeus-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// DailyQuestions is the daily question assigner as the HTTP layer uses it
type DailyQuestions interface {
	GetDailyQuestion(ctx context.Context, userID string) (*services.DailyQuestionView, error)
	AnswerDailyQuestion(ctx context.Context, userID, questionID, text string) (*models.Answer, error)
	DeleteDailyAnswer(ctx context.Context, userID, questionID string) error
	History(ctx context.Context, userID string, limit int) ([]*services.DailyQuestionView, error)
	Categories(ctx context.Context) ([]*models.QuestionCategory, error)
}

// QuestionHandler handles daily question requests
type QuestionHandler struct {
	questions DailyQuestions
}

// NewQuestionHandler creates a new question handler
func NewQuestionHandler(questions DailyQuestions) *QuestionHandler {
	return &QuestionHandler{questions: questions}
}

// Daily handles GET /api/v1/questions/daily
func (h *QuestionHandler) Daily(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.questions.GetDailyQuestion(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get daily question")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Answer handles POST /api/v1/questions/daily/{question_id}/answer
func (h *QuestionHandler) Answer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req services.AnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	answer, err := h.questions.AnswerDailyQuestion(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "question_id"), req.Text)
	if err != nil {
		respondServiceError(w, r, err, "Failed to answer daily question")
		return
	}
	respondJSON(w, http.StatusOK, answer)
}

// DeleteAnswer handles DELETE /api/v1/questions/daily/{question_id}/answer
func (h *QuestionHandler) DeleteAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.questions.DeleteDailyAnswer(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "question_id")); err != nil {
		respondServiceError(w, r, err, "Failed to delete answer")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History handles GET /api/v1/questions/daily/history
func (h *QuestionHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	views, err := h.questions.History(ctx, middleware.GetUserID(ctx), limit)
	if err != nil {
		respondServiceError(w, r, err, "Failed to get question history")
		return
	}
	respondJSON(w, http.StatusOK, views)
}

// Categories handles GET /api/v1/questions/categories
func (h *QuestionHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.questions.Categories(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "Failed to list categories")
		return
	}
	if categories == nil {
		categories = []*models.QuestionCategory{}
	}
	respondJSON(w, http.StatusOK, categories)
}

// queryInt parses an optional integer query parameter; absent means 0
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		respondError(w, name+" must be a non-negative integer", http.StatusBadRequest, "INVALID_INPUT")
		return 0, false
	}
	return v, true
}
