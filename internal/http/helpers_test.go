package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"unkit-api/internal/domain"
	"unkit-api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAccountRepo struct {
	byEmail    map[string]domain.Account
	byUsername map[string]domain.Account
}

func newStubAccountRepo() *stubAccountRepo {
	return &stubAccountRepo{
		byEmail:    make(map[string]domain.Account),
		byUsername: make(map[string]domain.Account),
	}
}

func (m *stubAccountRepo) put(a domain.Account) {
	m.byEmail[a.Email] = a
	m.byUsername[a.Username] = a
}

func (m *stubAccountRepo) Create(_ context.Context, a domain.Account) error {
	m.put(a)
	return nil
}

func (m *stubAccountRepo) GetByID(_ context.Context, id string) (domain.Account, error) {
	for _, a := range m.byEmail {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Account{}, pgx.ErrNoRows
}

func (m *stubAccountRepo) GetByEmail(_ context.Context, email string) (domain.Account, error) {
	a, ok := m.byEmail[email]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return a, nil
}

func (m *stubAccountRepo) GetByUsername(_ context.Context, username string) (domain.Account, error) {
	a, ok := m.byUsername[username]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return a, nil
}

func (m *stubAccountRepo) UpdateProfile(_ context.Context, a domain.Account) error {
	if _, ok := m.byEmail[a.Email]; !ok {
		return pgx.ErrNoRows
	}
	m.put(a)
	return nil
}

func (m *stubAccountRepo) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	for email, a := range m.byEmail {
		if a.ID == id {
			a.PasswordHash = passwordHash
			m.byEmail[email] = a
			m.byUsername[a.Username] = a
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *stubAccountRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return nil
}

type stubTaskRepo struct {
	nextID     int64
	tasks      map[int64]domain.Task
	savedTasks map[int64]domain.SavedTask
}

func newStubTaskRepo() *stubTaskRepo {
	return &stubTaskRepo{
		nextID:     1,
		tasks:      make(map[int64]domain.Task),
		savedTasks: make(map[int64]domain.SavedTask),
	}
}

func (m *stubTaskRepo) ListTasks(_ context.Context, username string) ([]domain.Task, error) {
	var out []domain.Task
	for _, t := range m.tasks {
		if t.Username == username {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *stubTaskRepo) CreateTask(_ context.Context, task domain.Task) (domain.Task, error) {
	task.ID = m.nextID
	m.nextID++
	m.tasks[task.ID] = task
	return task, nil
}

func (m *stubTaskRepo) GetTask(_ context.Context, id int64, username string) (domain.Task, error) {
	t, ok := m.tasks[id]
	if !ok || t.Username != username {
		return domain.Task{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *stubTaskRepo) UpdateTask(_ context.Context, task domain.Task) error {
	existing, ok := m.tasks[task.ID]
	if !ok || existing.Username != task.Username {
		return pgx.ErrNoRows
	}
	m.tasks[task.ID] = task
	return nil
}

func (m *stubTaskRepo) DeleteTask(_ context.Context, id int64, username string) error {
	t, ok := m.tasks[id]
	if !ok || t.Username != username {
		return pgx.ErrNoRows
	}
	delete(m.tasks, id)
	return nil
}

func (m *stubTaskRepo) ListSavedTasks(_ context.Context, username string) ([]domain.SavedTask, error) {
	var out []domain.SavedTask
	for _, t := range m.savedTasks {
		if t.Username == username {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *stubTaskRepo) CreateSavedTask(_ context.Context, task domain.SavedTask) (domain.SavedTask, error) {
	task.ID = m.nextID
	m.nextID++
	m.savedTasks[task.ID] = task
	return task, nil
}

func (m *stubTaskRepo) GetSavedTask(_ context.Context, id int64, username string) (domain.SavedTask, error) {
	t, ok := m.savedTasks[id]
	if !ok || t.Username != username {
		return domain.SavedTask{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *stubTaskRepo) UpdateSavedTask(_ context.Context, task domain.SavedTask) error {
	existing, ok := m.savedTasks[task.ID]
	if !ok || existing.Username != task.Username {
		return pgx.ErrNoRows
	}
	m.savedTasks[task.ID] = task
	return nil
}

func (m *stubTaskRepo) DeleteSavedTask(_ context.Context, id int64, username string) error {
	t, ok := m.savedTasks[id]
	if !ok || t.Username != username {
		return pgx.ErrNoRows
	}
	delete(m.savedTasks, id)
	return nil
}

type stubSender struct {
	registrationCodes []string
	resetCodes        []string
}

func (s *stubSender) SendRegistrationOTP(_ context.Context, _ string, code string) error {
	s.registrationCodes = append(s.registrationCodes, code)
	return nil
}

func (s *stubSender) SendAccountCreated(context.Context, string) error { return nil }

func (s *stubSender) SendPasswordResetOTP(_ context.Context, _ string, code string) error {
	s.resetCodes = append(s.resetCodes, code)
	return nil
}

func (s *stubSender) SendPasswordChanged(context.Context, string) error { return nil }

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(string) bool { return true }

type apiFixture struct {
	router   *gin.Engine
	accounts *stubAccountRepo
	tasks    *stubTaskRepo
	sender   *stubSender
	tokenSvc *service.TokenService
}

func newAPIFixture(t *testing.T) apiFixture {
	t.Helper()
	logger := zap.NewNop()
	accounts := newStubAccountRepo()
	tasks := newStubTaskRepo()
	sender := &stubSender{}

	tokenSvc := service.NewTokenService("access-secret", "refresh-secret", 30*time.Minute, 24*time.Hour)
	pending := service.NewMemoryPendingStore(service.PendingTTL)
	authServ := service.NewAuthService(logger, accounts, pending, tokenSvc, sender, allowAllLimiter{})
	oauthServ := service.NewOAuthService(logger, accounts, nil, nil)
	taskServ := service.NewTaskService(logger, tasks)

	authH := NewAuthHandler(logger, authServ, tokenSvc)
	oauthH := NewOAuthHandler(logger, oauthServ, tokenSvc, "http://localhost:3000")
	userH := NewUserHandler(logger, accounts)
	taskH := NewTaskHandler(logger, taskServ)

	router := NewRouter(logger, tokenSvc, accounts, authH, oauthH, userH, taskH)
	return apiFixture{
		router:   router,
		accounts: accounts,
		tasks:    tasks,
		sender:   sender,
		tokenSvc: tokenSvc,
	}
}

func (f apiFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func registerViaAPI(t *testing.T, f apiFixture, email, username, password string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/auth/start-registration", gin.H{
		"email":    email,
		"username": username,
		"password": password,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start-registration status %d: %s", w.Code, w.Body.String())
	}
	code := f.sender.registrationCodes[len(f.sender.registrationCodes)-1]

	w = f.do(t, http.MethodPost, "/auth/verify-otp", gin.H{
		"email": email,
		"otp":   code,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify-otp status %d: %s", w.Code, w.Body.String())
	}
	resp := decodeJSON(t, w)
	accessToken, _ := resp["access_token"].(string)
	if accessToken == "" {
		t.Fatalf("no access token in response: %v", resp)
	}
	return accessToken
}
