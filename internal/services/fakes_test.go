package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"closeus-backend/internal/models"
	"closeus-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// memUsers is an in-memory UserStore
type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*models.User)}
}

func (m *memUsers) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ExternalID == user.ExternalID || u.Email == user.Email {
			return repository.ErrConflict
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ExternalID == externalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) UpdateProfile(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUsers) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.PushToken = pushToken
	}
	return nil
}

func (m *memUsers) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.LastActive = &at
	}
	return nil
}

func (m *memUsers) TouchLastActiveByName(ctx context.Context, name string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.users {
		if u.Name == name {
			u.LastActive = &at
			n++
		}
	}
	return n, nil
}

func (m *memUsers) setCouple(userID, coupleID string) {
	if u, ok := m.users[userID]; ok {
		u.CoupleID = &coupleID
	}
}

// memCouples is an in-memory CoupleStore; Pair runs under one lock to
// mirror the transactional conditional update.
type memCouples struct {
	mu      sync.Mutex
	couples map[string]*models.Couple
	users   *memUsers
}

func newMemCouples(users *memUsers) *memCouples {
	return &memCouples{couples: make(map[string]*models.Couple), users: users}
}

func (m *memCouples) Create(ctx context.Context, couple *models.Couple) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.couples {
		if c.PairingKey != nil && couple.PairingKey != nil && *c.PairingKey == *couple.PairingKey {
			return repository.ErrConflict
		}
	}
	cp := *couple
	m.couples[couple.ID] = &cp

	m.users.mu.Lock()
	m.users.setCouple(couple.Partner1ID, couple.ID)
	m.users.mu.Unlock()
	return nil
}

func (m *memCouples) GetByID(ctx context.Context, id string) (*models.Couple, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.couples[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCouples) GetByPairingKey(ctx context.Context, key string) (*models.Couple, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.couples {
		if c.IsActive && c.PairingKey != nil && *c.PairingKey == key {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memCouples) GetActiveByUserID(ctx context.Context, userID string) (*models.Couple, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matches []*models.Couple
	for _, c := range m.couples {
		if c.IsActive && c.HasMember(userID) {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return nil, repository.ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].IsPaired != matches[j].IsPaired {
			return matches[i].IsPaired
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	cp := *matches[0]
	return &cp, nil
}

func (m *memCouples) PairingKeyExists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.couples {
		if c.PairingKey != nil && *c.PairingKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (m *memCouples) CoupleTagExists(ctx context.Context, tag string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tagTakenLocked(tag), nil
}

func (m *memCouples) tagTakenLocked(tag string) bool {
	for _, c := range m.couples {
		if c.CoupleTag != nil && *c.CoupleTag == tag {
			return true
		}
	}
	return false
}

func (m *memCouples) UpdatePairingKey(ctx context.Context, coupleID, key string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.couples[coupleID]
	if !ok || !c.IsActive || c.IsPaired {
		return repository.ErrNotFound
	}
	for _, other := range m.couples {
		if other.PairingKey != nil && *other.PairingKey == key {
			return repository.ErrConflict
		}
	}
	c.PairingKey = &key
	c.PairingKeyExpires = &expires
	c.PairingAttempts = 0
	return nil
}

func (m *memCouples) IncrementPairingAttempts(ctx context.Context, coupleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.couples[coupleID]; ok {
		c.PairingAttempts++
	}
	return nil
}

func (m *memCouples) Pair(ctx context.Context, p repository.PairParams) (*models.Couple, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.couples {
		if c.ID != p.CoupleID && c.IsActive && c.IsPaired && c.HasMember(p.PartnerID) {
			return nil, repository.ErrMemberConflict
		}
	}

	c, ok := m.couples[p.CoupleID]
	if !ok || !c.IsActive || c.IsPaired {
		return nil, repository.ErrCoupleAlreadyPaired
	}
	if m.tagTakenLocked(p.CoupleTag) {
		return nil, repository.ErrConflict
	}

	for _, other := range m.couples {
		if other.ID != p.CoupleID && other.IsActive && !other.IsPaired && other.Partner1ID == p.PartnerID {
			other.IsActive = false
			other.PairingKey = nil
		}
	}

	partnerID := p.PartnerID
	tag := p.CoupleTag
	pairedAt := p.PairedAt
	c.Partner2ID = &partnerID
	c.IsPaired = true
	c.PairedAt = &pairedAt
	c.CoupleTag = &tag
	c.AnniversaryDate = p.AnniversaryDate
	c.LivingStyle = p.LivingStyle
	c.UpdatedAt = pairedAt

	m.users.mu.Lock()
	m.users.setCouple(c.Partner1ID, c.ID)
	m.users.setCouple(partnerID, c.ID)
	m.users.mu.Unlock()

	cp := *c
	return &cp, nil
}

// memQuestions is an in-memory QuestionStore
type memQuestions struct {
	mu         sync.Mutex
	questions  map[string]*models.Question
	categories map[string]*models.QuestionCategory
	daily      map[string]*models.DailyCoupleQuestion
	answers    *memAnswers
}

func newMemQuestions(answers *memAnswers) *memQuestions {
	return &memQuestions{
		questions:  make(map[string]*models.Question),
		categories: make(map[string]*models.QuestionCategory),
		daily:      make(map[string]*models.DailyCoupleQuestion),
		answers:    answers,
	}
}

func dailyKey(coupleID string, date time.Time) string {
	return coupleID + "|" + date.Format(dateLayout)
}

func (m *memQuestions) GetByID(ctx context.Context, id string) (*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (m *memQuestions) Create(ctx context.Context, q *models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *q
	m.questions[q.ID] = &cp
	return nil
}

func (m *memQuestions) sortedDailyLocked(keep func(*models.Question) bool) []*models.Question {
	var out []*models.Question
	for _, q := range m.questions {
		if q.IsDaily && q.IsActive && keep(q) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memQuestions) unusedLocked(coupleID string) []*models.Question {
	used := make(map[string]bool)
	for _, d := range m.daily {
		if d.CoupleID == coupleID {
			used[d.QuestionID] = true
		}
	}
	return m.sortedDailyLocked(func(q *models.Question) bool { return !used[q.ID] })
}

func (m *memQuestions) CountUnusedDaily(ctx context.Context, coupleID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.unusedLocked(coupleID)), nil
}

func (m *memQuestions) GetUnusedDailyAt(ctx context.Context, coupleID string, offset int) (*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	unused := m.unusedLocked(coupleID)
	if offset >= len(unused) {
		return nil, repository.ErrNotFound
	}
	cp := *unused[offset]
	return &cp, nil
}

func (m *memQuestions) CountDaily(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sortedDailyLocked(func(*models.Question) bool { return true })), nil
}

func (m *memQuestions) GetDailyAt(ctx context.Context, offset int) (*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sortedDailyLocked(func(*models.Question) bool { return true })
	if offset >= len(all) {
		return nil, repository.ErrNotFound
	}
	cp := *all[offset]
	return &cp, nil
}

func (m *memQuestions) DeleteStaleAIGenerated(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	referenced := make(map[string]bool)
	for _, d := range m.daily {
		referenced[d.QuestionID] = true
	}
	if m.answers != nil {
		m.answers.mu.Lock()
		for _, a := range m.answers.answers {
			referenced[a.QuestionID] = true
		}
		m.answers.mu.Unlock()
	}

	var n int64
	for id, q := range m.questions {
		if q.IsAIGenerated && q.CreatedAt.Before(cutoff) && !referenced[id] {
			delete(m.questions, id)
			n++
		}
	}
	return n, nil
}

func (m *memQuestions) ListCategories(ctx context.Context) ([]*models.QuestionCategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.QuestionCategory
	for _, c := range m.categories {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memQuestions) EnsureCategory(ctx context.Context, id, name, description string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.Name == name {
			return c.ID, nil
		}
	}
	m.categories[id] = &models.QuestionCategory{ID: id, Name: name, Description: description, IsActive: true}
	return id, nil
}

func (m *memQuestions) GetDaily(ctx context.Context, coupleID string, date time.Time) (*models.DailyCoupleQuestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.daily[dailyKey(coupleID, date)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memQuestions) CreateDaily(ctx context.Context, d *models.DailyCoupleQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dailyKey(d.CoupleID, d.Date)
	if _, ok := m.daily[key]; ok {
		return repository.ErrConflict
	}
	cp := *d
	m.daily[key] = &cp
	return nil
}

func (m *memQuestions) ListDaily(ctx context.Context, coupleID string, limit int) ([]*models.DailyCoupleQuestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.DailyCoupleQuestion
	for _, d := range m.daily {
		if d.CoupleID == coupleID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memQuestions) IsAssigned(ctx context.Context, coupleID, questionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.daily {
		if d.CoupleID == coupleID && d.QuestionID == questionID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memQuestions) dailyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.daily)
}

// memAnswers is an in-memory AnswerStore keyed by user and question
type memAnswers struct {
	mu      sync.Mutex
	answers map[string]*models.Answer
}

func newMemAnswers() *memAnswers {
	return &memAnswers{answers: make(map[string]*models.Answer)}
}

func (m *memAnswers) Upsert(ctx context.Context, a *models.Answer) (*models.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := a.UserID + "|" + a.QuestionID
	if existing, ok := m.answers[key]; ok {
		existing.Text = a.Text
		existing.CoupleID = a.CoupleID
		existing.Date = a.Date
		existing.UpdatedAt = a.CreatedAt
		cp := *existing
		return &cp, nil
	}
	cp := *a
	cp.UpdatedAt = a.CreatedAt
	m.answers[key] = &cp
	out := cp
	return &out, nil
}

func (m *memAnswers) Get(ctx context.Context, userID, questionID string) (*models.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[userID+"|"+questionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAnswers) Delete(ctx context.Context, userID, questionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID + "|" + questionID
	if _, ok := m.answers[key]; !ok {
		return repository.ErrNotFound
	}
	delete(m.answers, key)
	return nil
}

// memMessages is an in-memory MessageStore
type memMessages struct {
	mu       sync.Mutex
	messages []*models.Message
}

func (m *memMessages) Create(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.messages = append(m.messages, &cp)
	return nil
}

func (m *memMessages) ListByCouple(ctx context.Context, coupleID string, before *time.Time, limit int) ([]*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Message
	for i := len(m.messages) - 1; i >= 0 && len(out) < limit; i-- {
		msg := m.messages[i]
		if msg.CoupleID != coupleID || (before != nil && !msg.CreatedAt.Before(*before)) {
			continue
		}
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memMessages) MarkRead(ctx context.Context, coupleID, readerID string, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var n int64
	for _, msg := range m.messages {
		if msg.CoupleID == coupleID && msg.SenderID != readerID && !msg.IsRead && wanted[msg.ID] {
			msg.IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *memMessages) all() []*models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// memFlags is a fixed FeatureStore
type memFlags []*models.FeatureFlag

func (m memFlags) List(ctx context.Context) ([]*models.FeatureFlag, error) {
	return m, nil
}

// recordingPusher captures pushes
type recordingPusher struct {
	mu    sync.Mutex
	sent  []string
	token []string
}

func (p *recordingPusher) Push(ctx context.Context, deviceToken, title, body string, data map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, title)
	p.token = append(p.token, deviceToken)
	return nil
}

func (p *recordingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

// fakeConn records frames written by the hub
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) events(t *testing.T) []WSMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]WSMessage, 0, len(c.frames))
	for _, f := range c.frames {
		var msg WSMessage
		require.NoError(t, json.Unmarshal(f, &msg))
		out = append(out, msg)
	}
	return out
}

func (c *fakeConn) types(t *testing.T) []string {
	var out []string
	for _, e := range c.events(t) {
		out = append(out, e.Type)
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// testEnv wires services over in-memory stores
type testEnv struct {
	users     *memUsers
	couples   *memCouples
	questions *memQuestions
	answers   *memAnswers
	messages  *memMessages
	pusher    *recordingPusher
	hub       *WSHub
	now       time.Time

	pairs *PairService
	daily *DailyQuestionService
	chat  *MessageService
	user  *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	users := newMemUsers()
	answers := newMemAnswers()
	env := &testEnv{
		users:     users,
		couples:   newMemCouples(users),
		questions: newMemQuestions(answers),
		answers:   answers,
		messages:  &memMessages{},
		pusher:    &recordingPusher{},
		hub:       NewWSHub(),
		now:       time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }
	notifier := NewNotifier(users, env.pusher)

	env.pairs = NewPairService(env.couples, users, 24*time.Hour)
	env.pairs.now = clock

	env.daily = NewDailyQuestionService(env.couples, env.questions, answers, notifier, time.UTC)
	env.daily.now = clock
	env.daily.intn = func(n int) int { return 0 }

	env.chat = NewMessageService(env.messages, env.couples, users, env.hub, notifier, 5*time.Minute)
	env.chat.now = clock

	env.user = NewUserService(users, env.couples, NewTokenService("test-secret", 15*time.Minute, time.Hour), 5*time.Minute)
	env.user.now = clock

	t.Cleanup(func() { env.hub.Close() })
	return env
}

func (e *testEnv) addUser(t *testing.T, name string) *models.User {
	t.Helper()
	id := uuid.New().String()
	token := "device-" + id
	u := &models.User{
		ID:         id,
		Email:      id + "@example.com",
		ExternalID: "ext-" + id,
		Name:       name,
		PushToken:  &token,
		CreatedAt:  e.now,
		UpdatedAt:  e.now,
	}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *testEnv) pair(t *testing.T, a, b *models.User) *models.Couple {
	t.Helper()
	ctx := context.Background()
	pending, err := e.pairs.CreatePairingKey(ctx, a.ID)
	require.NoError(t, err)
	couple, err := e.pairs.PairWithPartner(ctx, b.ID, *pending.PairingKey)
	require.NoError(t, err)
	return couple
}

func (e *testEnv) addDailyQuestion(t *testing.T, id, text string) *models.Question {
	t.Helper()
	q := &models.Question{ID: id, CategoryID: "daily", Text: text, IsDaily: true, IsActive: true, CreatedAt: e.now}
	require.NoError(t, e.questions.Create(context.Background(), q))
	return q
}
