package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"unkit-api/internal/domain"
)

type mockAccountRepo struct {
	byEmail    map[string]domain.Account
	byUsername map[string]domain.Account

	createErr error
	lastLogin map[string]time.Time
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{
		byEmail:    make(map[string]domain.Account),
		byUsername: make(map[string]domain.Account),
		lastLogin:  make(map[string]time.Time),
	}
}

func (m *mockAccountRepo) put(a domain.Account) {
	m.byEmail[a.Email] = a
	m.byUsername[a.Username] = a
}

func (m *mockAccountRepo) Create(_ context.Context, a domain.Account) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.put(a)
	return nil
}

func (m *mockAccountRepo) GetByID(_ context.Context, id string) (domain.Account, error) {
	for _, a := range m.byEmail {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Account{}, pgx.ErrNoRows
}

func (m *mockAccountRepo) GetByEmail(_ context.Context, email string) (domain.Account, error) {
	a, ok := m.byEmail[email]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return a, nil
}

func (m *mockAccountRepo) GetByUsername(_ context.Context, username string) (domain.Account, error) {
	a, ok := m.byUsername[username]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return a, nil
}

func (m *mockAccountRepo) UpdateProfile(_ context.Context, a domain.Account) error {
	if _, ok := m.byEmail[a.Email]; !ok {
		return pgx.ErrNoRows
	}
	m.put(a)
	return nil
}

func (m *mockAccountRepo) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
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

func (m *mockAccountRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	m.lastLogin[id] = at
	return nil
}

type recordingSender struct {
	registrationCodes []string
	resetCodes        []string
	createdNotices    []string
	changedNotices    []string

	sendErr error
}

func (s *recordingSender) SendRegistrationOTP(_ context.Context, _ string, code string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.registrationCodes = append(s.registrationCodes, code)
	return nil
}

func (s *recordingSender) SendAccountCreated(_ context.Context, toEmail string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.createdNotices = append(s.createdNotices, toEmail)
	return nil
}

func (s *recordingSender) SendPasswordResetOTP(_ context.Context, _ string, code string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.resetCodes = append(s.resetCodes, code)
	return nil
}

func (s *recordingSender) SendPasswordChanged(_ context.Context, toEmail string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.changedNotices = append(s.changedNotices, toEmail)
	return nil
}

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(string) bool { return true }

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(string) bool { return false }

type authFixture struct {
	svc     *AuthService
	repo    *mockAccountRepo
	pending PendingStore
	tokens  *TokenService
	sender  *recordingSender
}

func newAuthFixture(t *testing.T, limiter OTPRateLimiter) authFixture {
	t.Helper()
	repo := newMockAccountRepo()
	pending := NewMemoryPendingStore(PendingTTL)
	tokens := NewTokenService("access-secret", "refresh-secret", 30*time.Minute, 24*time.Hour)
	sender := &recordingSender{}
	if limiter == nil {
		limiter = allowAllLimiter{}
	}
	svc := NewAuthService(zap.NewNop(), repo, pending, tokens, sender, limiter)
	return authFixture{svc: svc, repo: repo, pending: pending, tokens: tokens, sender: sender}
}

func TestStartRegistration_SendsOTPAndKeepsPending(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	if err := f.svc.StartRegistration(ctx, " Alice@Example.com ", "Alice", "s3cret-pass"); err != nil {
		t.Fatalf("start registration failed: %v", err)
	}
	if len(f.sender.registrationCodes) != 1 {
		t.Fatalf("expected one OTP mail, got %d", len(f.sender.registrationCodes))
	}
	if !isValidOTPCode(f.sender.registrationCodes[0]) {
		t.Fatalf("mailed code %q is not a 6-digit OTP", f.sender.registrationCodes[0])
	}

	reg, ok, err := f.pending.GetRegistration(ctx, "alice@example.com")
	if err != nil || !ok {
		t.Fatalf("expected pending registration, got ok=%v err=%v", ok, err)
	}
	if reg.Username != "alice" {
		t.Fatalf("expected lowered username, got %q", reg.Username)
	}
	if !VerifyPassword("s3cret-pass", reg.PasswordHash) {
		t.Fatalf("pending hash does not verify the password")
	}
	if reg.OTP != f.sender.registrationCodes[0] {
		t.Fatalf("stored and mailed codes differ")
	}

	if _, err := f.repo.GetByEmail(ctx, "alice@example.com"); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("no account should exist before OTP verification")
	}
}

func TestStartRegistration_Conflicts(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()
	f.repo.put(domain.Account{ID: "id-1", Email: "taken@example.com", Username: "taken"})

	if err := f.svc.StartRegistration(ctx, "taken@example.com", "newuser", "pass"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if err := f.svc.StartRegistration(ctx, "new@example.com", "taken", "pass"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if err := f.svc.StartRegistration(ctx, "not-an-email", "user", "pass"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestStartRegistration_RateLimited(t *testing.T) {
	f := newAuthFixture(t, denyAllLimiter{})
	err := f.svc.StartRegistration(context.Background(), "alice@example.com", "alice", "pass")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if len(f.sender.registrationCodes) != 0 {
		t.Fatalf("no mail should be sent when rate limited")
	}
}

func TestStartRegistration_MailFailureSurfaces(t *testing.T) {
	f := newAuthFixture(t, nil)
	f.sender.sendErr = errors.New("smtp down")
	err := f.svc.StartRegistration(context.Background(), "alice@example.com", "alice", "pass")
	if !errors.Is(err, ErrEmailSendFailure) {
		t.Fatalf("expected ErrEmailSendFailure, got %v", err)
	}
}

func TestVerifyRegistrationOTP_CreatesAccountOnce(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	if err := f.svc.StartRegistration(ctx, "bob@example.com", "bob", "hunter2-long"); err != nil {
		t.Fatalf("start registration failed: %v", err)
	}
	code := f.sender.registrationCodes[0]

	account, pair, err := f.svc.VerifyRegistrationOTP(ctx, "bob@example.com", code, "Europe/Madrid")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if account.Email != "bob@example.com" || account.Username != "bob" {
		t.Fatalf("unexpected account: %+v", account)
	}
	if !account.IsActive || account.IsAdmin {
		t.Fatalf("new account should be active non-admin: %+v", account)
	}
	if account.Timezone != "Europe/Madrid" {
		t.Fatalf("expected requested timezone, got %q", account.Timezone)
	}
	if !VerifyPassword("hunter2-long", account.PasswordHash) {
		t.Fatalf("persisted hash does not verify the password")
	}

	claims, err := f.tokens.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("issued access token invalid: %v", err)
	}
	if claims.Subject != "bob@example.com" || claims.Username != "bob" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(f.sender.createdNotices) != 1 {
		t.Fatalf("expected account-created mail, got %d", len(f.sender.createdNotices))
	}

	// Pending consumed: replay must fail.
	if _, _, err := f.svc.VerifyRegistrationOTP(ctx, "bob@example.com", code, ""); !errors.Is(err, ErrInvalidOrExpiredOTP) {
		t.Fatalf("replay should fail with ErrInvalidOrExpiredOTP, got %v", err)
	}
}

func TestVerifyRegistrationOTP_WrongCodeLeavesPending(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	if err := f.svc.StartRegistration(ctx, "bob@example.com", "bob", "hunter2-long"); err != nil {
		t.Fatalf("start registration failed: %v", err)
	}
	code := f.sender.registrationCodes[0]
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	if _, _, err := f.svc.VerifyRegistrationOTP(ctx, "bob@example.com", wrong, ""); !errors.Is(err, ErrInvalidOrExpiredOTP) {
		t.Fatalf("expected ErrInvalidOrExpiredOTP, got %v", err)
	}
	if _, _, err := f.svc.VerifyRegistrationOTP(ctx, "bob@example.com", "nope", ""); !errors.Is(err, ErrInvalidOrExpiredOTP) {
		t.Fatalf("malformed code should fail, got %v", err)
	}

	// The correct code still works afterwards.
	account, _, err := f.svc.VerifyRegistrationOTP(ctx, "bob@example.com", code, "")
	if err != nil {
		t.Fatalf("correct code after wrong attempts failed: %v", err)
	}
	if account.Timezone != "UTC" {
		t.Fatalf("expected UTC default timezone, got %q", account.Timezone)
	}
}

func TestResendRegistrationOTP_SupersedesOldCode(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	if err := f.svc.StartRegistration(ctx, "bob@example.com", "bob", "hunter2-long"); err != nil {
		t.Fatalf("start registration failed: %v", err)
	}
	oldCode := f.sender.registrationCodes[0]

	if err := f.svc.ResendRegistrationOTP(ctx, "bob@example.com"); err != nil {
		t.Fatalf("resend failed: %v", err)
	}
	if len(f.sender.registrationCodes) != 2 {
		t.Fatalf("expected two OTP mails, got %d", len(f.sender.registrationCodes))
	}
	newCode := f.sender.registrationCodes[1]

	if oldCode != newCode {
		if _, _, err := f.svc.VerifyRegistrationOTP(ctx, "bob@example.com", oldCode, ""); !errors.Is(err, ErrInvalidOrExpiredOTP) {
			t.Fatalf("superseded code should fail, got %v", err)
		}
	}
	account, _, err := f.svc.VerifyRegistrationOTP(ctx, "bob@example.com", newCode, "")
	if err != nil {
		t.Fatalf("new code failed: %v", err)
	}
	if !VerifyPassword("hunter2-long", account.PasswordHash) {
		t.Fatalf("resend must preserve the original password hash")
	}
}

func TestResendRegistrationOTP_NoPending(t *testing.T) {
	f := newAuthFixture(t, nil)
	err := f.svc.ResendRegistrationOTP(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrNoPendingSignup) {
		t.Fatalf("expected ErrNoPendingSignup, got %v", err)
	}
}

func registerAccount(t *testing.T, f authFixture, emailAddr, username, password string) domain.Account {
	t.Helper()
	ctx := context.Background()
	if err := f.svc.StartRegistration(ctx, emailAddr, username, password); err != nil {
		t.Fatalf("start registration failed: %v", err)
	}
	code := f.sender.registrationCodes[len(f.sender.registrationCodes)-1]
	account, _, err := f.svc.VerifyRegistrationOTP(ctx, emailAddr, code, "")
	if err != nil {
		t.Fatalf("verify registration failed: %v", err)
	}
	return account
}

func TestLogin_ByEmailAndUsername(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()
	created := registerAccount(t, f, "carol@example.com", "carol", "correct-horse")

	account, pair, err := f.svc.Login(ctx, "carol@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login by email failed: %v", err)
	}
	if account.ID != created.ID {
		t.Fatalf("unexpected account id %q", account.ID)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.TokenType != "bearer" {
		t.Fatalf("unexpected token pair: %+v", pair)
	}
	if account.LastLoginAt == nil {
		t.Fatalf("login should stamp last_login_at")
	}

	if _, _, err := f.svc.Login(ctx, " CAROL ", "correct-horse"); err != nil {
		t.Fatalf("login by username failed: %v", err)
	}
}

func TestLogin_GenericFailure(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()
	registerAccount(t, f, "carol@example.com", "carol", "correct-horse")

	_, _, wrongPass := f.svc.Login(ctx, "carol@example.com", "wrong-pass")
	_, _, unknown := f.svc.Login(ctx, "ghost@example.com", "whatever")
	if !errors.Is(wrongPass, ErrInvalidCredentials) || !errors.Is(unknown, ErrInvalidCredentials) {
		t.Fatalf("both failures must be ErrInvalidCredentials, got %v / %v", wrongPass, unknown)
	}
	if _, _, err := f.svc.Login(ctx, "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty credentials must be ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_PreservesPasswordWhitespace(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()
	registerAccount(t, f, "eve@example.com", "eve", "  spaced-pass  ")

	if _, _, err := f.svc.Login(ctx, "eve@example.com", "  spaced-pass  "); err != nil {
		t.Fatalf("login with the exact registered password failed: %v", err)
	}
	if _, _, err := f.svc.Login(ctx, "eve@example.com", "spaced-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("trimmed password must not match, got %v", err)
	}
}

func TestOTPBudgets_ScopedPerFlow(t *testing.T) {
	f := newAuthFixture(t, NewOTPRateLimiter(time.Minute, 1))
	ctx := context.Background()

	// El registro gasta el presupuesto "reg:" de alice...
	registerAccount(t, f, "alice@example.com", "alice", "s3cret-pass")

	// ...pero el flujo de reset arranca con presupuesto propio.
	if err := f.svc.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("reset request after registration sends failed: %v", err)
	}
	if len(f.sender.resetCodes) != 1 {
		t.Fatalf("expected one reset mail, got %d", len(f.sender.resetCodes))
	}
	if err := f.svc.RequestPasswordReset(ctx, "alice@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("second reset request within window should be rate limited, got %v", err)
	}
}

func TestRequestPasswordReset_UnknownIsSilent(t *testing.T) {
	f := newAuthFixture(t, nil)
	if err := f.svc.RequestPasswordReset(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("unknown identifier must be silent, got %v", err)
	}
	if len(f.sender.resetCodes) != 0 {
		t.Fatalf("no mail should be sent for unknown identifiers")
	}
}

func TestRequestPasswordReset_MailFailureSwallowed(t *testing.T) {
	f := newAuthFixture(t, nil)
	registerAccount(t, f, "carol@example.com", "carol", "correct-horse")
	f.sender.sendErr = errors.New("smtp down")
	if err := f.svc.RequestPasswordReset(context.Background(), "carol@example.com"); err != nil {
		t.Fatalf("reset-request mail failure must be swallowed, got %v", err)
	}
}

func TestPasswordReset_FullFlow(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()
	registerAccount(t, f, "dave@example.com", "dave", "old-password")

	if err := f.svc.RequestPasswordReset(ctx, "dave"); err != nil {
		t.Fatalf("request reset failed: %v", err)
	}
	if len(f.sender.resetCodes) != 1 {
		t.Fatalf("expected one reset mail, got %d", len(f.sender.resetCodes))
	}
	code := f.sender.resetCodes[0]

	resetToken, err := f.svc.VerifyResetOTP(ctx, "dave@example.com", code)
	if err != nil {
		t.Fatalf("verify reset otp failed: %v", err)
	}
	if resetToken == "" {
		t.Fatalf("expected a reset token")
	}

	// The OTP is consumed with the first verification.
	if _, err := f.svc.VerifyResetOTP(ctx, "dave@example.com", code); !errors.Is(err, ErrInvalidOrExpiredOTP) {
		t.Fatalf("otp replay should fail, got %v", err)
	}

	if err := f.svc.ResetPassword(ctx, resetToken, "new-password"); err != nil {
		t.Fatalf("reset password failed: %v", err)
	}
	if len(f.sender.changedNotices) != 1 {
		t.Fatalf("expected password-changed mail, got %d", len(f.sender.changedNotices))
	}

	if _, _, err := f.svc.Login(ctx, "dave@example.com", "old-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should no longer work, got %v", err)
	}
	if _, _, err := f.svc.Login(ctx, "dave@example.com", "new-password"); err != nil {
		t.Fatalf("new password should work, got %v", err)
	}

	// The reset token is single use.
	if err := f.svc.ResetPassword(ctx, resetToken, "another-password"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reset token replay should fail, got %v", err)
	}
}

func TestResetPassword_BadToken(t *testing.T) {
	f := newAuthFixture(t, nil)
	if err := f.svc.ResetPassword(context.Background(), "not-a-jwt", "new-password"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
