package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"closeus-backend/internal/middleware"
	"closeus-backend/internal/models"
	"closeus-backend/internal/services"

	"github.com/stretchr/testify/require"
)

type stubPairing struct {
	couple *models.Couple
	status *services.PairingStatus
	err    error

	gotKey string
}

func (s *stubPairing) CreatePairingKey(ctx context.Context, userID string) (*models.Couple, error) {
	return s.couple, s.err
}

func (s *stubPairing) RefreshPairingKey(ctx context.Context, userID string) (*models.Couple, error) {
	return s.couple, s.err
}

func (s *stubPairing) PairWithPartner(ctx context.Context, userID, key string) (*models.Couple, error) {
	s.gotKey = key
	return s.couple, s.err
}

func (s *stubPairing) CheckPairingStatus(ctx context.Context, userID string) (*services.PairingStatus, error) {
	return s.status, s.err
}

func (s *stubPairing) GetCouple(ctx context.Context, userID string) (*models.Couple, error) {
	return s.couple, s.err
}

func (s *stubPairing) GetPairedCouple(ctx context.Context, userID string) (*models.Couple, error) {
	return s.couple, s.err
}

type stubQuestions struct {
	view       *services.DailyQuestionView
	answer     *models.Answer
	err        error
	gotID      string
	gotText    string
	gotLimit   int
	categories []*models.QuestionCategory
}

func (s *stubQuestions) GetDailyQuestion(ctx context.Context, userID string) (*services.DailyQuestionView, error) {
	return s.view, s.err
}

func (s *stubQuestions) AnswerDailyQuestion(ctx context.Context, userID, questionID, text string) (*models.Answer, error) {
	s.gotID, s.gotText = questionID, text
	return s.answer, s.err
}

func (s *stubQuestions) DeleteDailyAnswer(ctx context.Context, userID, questionID string) error {
	s.gotID = questionID
	return s.err
}

func (s *stubQuestions) History(ctx context.Context, userID string, limit int) ([]*services.DailyQuestionView, error) {
	s.gotLimit = limit
	return []*services.DailyQuestionView{s.view}, s.err
}

func (s *stubQuestions) Categories(ctx context.Context) ([]*models.QuestionCategory, error) {
	return s.categories, s.err
}

type stubMessenger struct {
	mu      sync.Mutex
	sent    []services.SendMessageInput
	typing  []bool
	read    [][]string
	sendErr error

	gotBefore *time.Time
	gotLimit  int
	listed    []*models.Message
}

func (s *stubMessenger) Send(ctx context.Context, senderID string, in services.SendMessageInput) (*services.MessageView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	s.sent = append(s.sent, in)
	return &services.MessageView{Message: &models.Message{ID: "m1", SenderID: senderID, Content: in.Content}}, nil
}

func (s *stubMessenger) Typing(ctx context.Context, userID string, started bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = append(s.typing, started)
	return nil
}

func (s *stubMessenger) List(ctx context.Context, userID string, before *time.Time, limit int) ([]*models.Message, error) {
	s.gotBefore, s.gotLimit = before, limit
	return s.listed, nil
}

func (s *stubMessenger) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.read = append(s.read, ids)
	return int64(len(ids)), nil
}

func (s *stubMessenger) snapshot() ([]services.SendMessageInput, []bool, [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]services.SendMessageInput(nil), s.sent...), append([]bool(nil), s.typing...), append([][]string(nil), s.read...)
}

type stubPresence struct {
	mu    sync.Mutex
	beats int
}

func (s *stubPresence) Heartbeat(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beats++
	return nil
}

func (s *stubPresence) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beats
}

type stubTokens map[string]string

func (s stubTokens) ValidateAccess(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", services.ErrUnauthorized
}

// authed builds a request already carrying userID, as AuthMiddleware would
func authed(t *testing.T, method, target, userID string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}
