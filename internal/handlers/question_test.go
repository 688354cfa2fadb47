package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"closeus-backend/internal/models"
	"closeus-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func questionRouter(h *QuestionHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/questions/daily", h.Daily)
	r.Get("/questions/daily/history", h.History)
	r.Post("/questions/daily/{question_id}/answer", h.Answer)
	r.Delete("/questions/daily/{question_id}/answer", h.DeleteAnswer)
	r.Get("/questions/categories", h.Categories)
	return r
}

func TestAnswerRoutesQuestionID(t *testing.T) {
	questions := &stubQuestions{answer: &models.Answer{ID: "a1", Text: "pancakes"}}
	router := questionRouter(NewQuestionHandler(questions))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(t, http.MethodPost, "/questions/daily/current/answer", "alice", services.AnswerRequest{Text: "pancakes"}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, services.CurrentQuestion, questions.gotID)
	assert.Equal(t, "pancakes", questions.gotText)
}

func TestAnswerMissingText(t *testing.T) {
	router := questionRouter(NewQuestionHandler(&stubQuestions{err: services.ErrMissingText}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(t, http.MethodPost, "/questions/daily/q1/answer", "alice", services.AnswerRequest{}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_TEXT", decodeError(t, rec).Reason)
}

func TestDailyNotPaired(t *testing.T) {
	router := questionRouter(NewQuestionHandler(&stubQuestions{err: services.ErrNotPaired}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(t, http.MethodGet, "/questions/daily", "alice", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_PAIRED", decodeError(t, rec).Reason)
}

func TestDeleteAnswer(t *testing.T) {
	questions := &stubQuestions{}
	router := questionRouter(NewQuestionHandler(questions))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(t, http.MethodDelete, "/questions/daily/q7/answer", "alice", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "q7", questions.gotID)
}

func TestHistoryLimit(t *testing.T) {
	questions := &stubQuestions{view: &services.DailyQuestionView{Date: "2026-03-14"}}
	router := questionRouter(NewQuestionHandler(questions))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(t, http.MethodGet, "/questions/daily/history?limit=5", "alice", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, questions.gotLimit)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authed(t, http.MethodGet, "/questions/daily/history?limit=abc", "alice", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCategoriesEmptyList(t *testing.T) {
	router := questionRouter(NewQuestionHandler(&stubQuestions{}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(t, http.MethodGet, "/questions/categories", "alice", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
