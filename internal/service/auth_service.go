package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"unkit-api/internal/domain"
	"unkit-api/internal/email"
	"unkit-api/internal/repository"
)

// AuthService orquesta registro con OTP, login, password reset y refresh.
type AuthService struct {
	logger      *zap.Logger
	accounts    repository.AccountRepository
	pending     PendingStore
	tokens      *TokenService
	emailSender email.Sender
	otpLimiter  OTPRateLimiter
}

var (
	ErrAlreadyRegistered   = errors.New("email already registered")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrNoPendingSignup     = errors.New("no pending registration for this email")
	ErrInvalidOrExpiredOTP = errors.New("invalid or expired otp")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidEmail        = errors.New("invalid email")
	ErrEmailSendFailure    = errors.New("email send failed")
	ErrRateLimited         = errors.New("rate limited")
	ErrAccountNotFound     = errors.New("account not found")
)

func NewAuthService(
	logger *zap.Logger,
	accounts repository.AccountRepository,
	pending PendingStore,
	tokens *TokenService,
	emailSender email.Sender,
	otpLimiter OTPRateLimiter,
) *AuthService {
	if otpLimiter == nil {
		otpLimiter = NewOTPRateLimiter(PendingTTL, 3)
	}
	return &AuthService{
		logger:      logger,
		accounts:    accounts,
		pending:     pending,
		tokens:      tokens,
		emailSender: emailSender,
		otpLimiter:  otpLimiter,
	}
}

// StartRegistration valida unicidad, deja el bundle pendiente en el store y
// envía el OTP. No crea ninguna cuenta todavía.
func (s *AuthService) StartRegistration(ctx context.Context, emailAddr, username, password string) error {
	emailAddr = normalizeEmail(emailAddr)
	username = strings.ToLower(strings.TrimSpace(username))
	if emailAddr == "" {
		return ErrInvalidEmail
	}

	if _, err := s.accounts.GetByEmail(ctx, emailAddr); err == nil {
		return ErrAlreadyRegistered
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if _, err := s.accounts.GetByUsername(ctx, username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	if !s.otpLimiter.Allow("reg:" + emailAddr) {
		return ErrRateLimited
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return err
	}
	code, err := GenerateOTP()
	if err != nil {
		return err
	}

	if err := s.pending.PutRegistration(ctx, emailAddr, PendingRegistration{
		Username:     username,
		PasswordHash: passwordHash,
		OTP:          code,
	}); err != nil {
		return err
	}

	if err := s.emailSender.SendRegistrationOTP(ctx, emailAddr, code); err != nil {
		s.logger.Warn("send registration otp failed", zap.Error(err), zap.String("email", emailAddr))
		return ErrEmailSendFailure
	}
	return nil
}

// VerifyRegistrationOTP consume el registro pendiente y crea la cuenta. El
// consumo es atómico: de dos verificaciones concurrentes solo una crea la
// cuenta. Un código incorrecto no destruye el estado pendiente.
func (s *AuthService) VerifyRegistrationOTP(ctx context.Context, emailAddr, code, timezone string) (domain.Account, TokenPair, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return domain.Account{}, TokenPair{}, ErrInvalidEmail
	}
	if !isValidOTPCode(code) {
		return domain.Account{}, TokenPair{}, ErrInvalidOrExpiredOTP
	}

	reg, ok, err := s.pending.GetRegistration(ctx, emailAddr)
	if err != nil {
		return domain.Account{}, TokenPair{}, err
	}
	if !ok || reg.OTP != code {
		return domain.Account{}, TokenPair{}, ErrInvalidOrExpiredOTP
	}

	// Solo gana un caller; el perdedor ve el pendiente ya consumido.
	reg, ok, err = s.pending.ConsumeRegistration(ctx, emailAddr)
	if err != nil {
		return domain.Account{}, TokenPair{}, err
	}
	if !ok || reg.OTP != code {
		return domain.Account{}, TokenPair{}, ErrInvalidOrExpiredOTP
	}

	if timezone == "" {
		timezone = "UTC"
	}
	account := domain.Account{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		Username:     reg.Username,
		PasswordHash: reg.PasswordHash,
		IsActive:     true,
		Timezone:     timezone,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return domain.Account{}, TokenPair{}, err
	}

	if err := s.emailSender.SendAccountCreated(ctx, emailAddr); err != nil {
		s.logger.Warn("send account created failed", zap.Error(err), zap.String("email", emailAddr))
	}

	pair, err := s.tokens.GeneratePair(account)
	if err != nil {
		return domain.Account{}, TokenPair{}, err
	}
	return account, pair, nil
}

// ResendRegistrationOTP reemplaza el código del registro pendiente
// conservando username y hash; el código anterior deja de valer.
func (s *AuthService) ResendRegistrationOTP(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return ErrInvalidEmail
	}

	reg, ok, err := s.pending.GetRegistration(ctx, emailAddr)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoPendingSignup
	}

	if !s.otpLimiter.Allow("reg:" + emailAddr) {
		return ErrRateLimited
	}

	code, err := GenerateOTP()
	if err != nil {
		return err
	}
	reg.OTP = code
	if err := s.pending.PutRegistration(ctx, emailAddr, reg); err != nil {
		return err
	}

	if err := s.emailSender.SendRegistrationOTP(ctx, emailAddr, code); err != nil {
		s.logger.Warn("send registration otp failed", zap.Error(err), zap.String("email", emailAddr))
		return ErrEmailSendFailure
	}
	return nil
}

// Login autentica por email o username. Cuenta desconocida y contraseña
// incorrecta devuelven el mismo error para no revelar qué existe. La
// contraseña se compara tal cual llegó: el hash se calculó sobre el valor
// crudo en el registro, espacios incluidos.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (domain.Account, TokenPair, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || password == "" {
		return domain.Account{}, TokenPair{}, ErrInvalidCredentials
	}

	account, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, TokenPair{}, ErrInvalidCredentials
		}
		return domain.Account{}, TokenPair{}, err
	}
	if account.PasswordHash == "" || !VerifyPassword(password, account.PasswordHash) {
		return domain.Account{}, TokenPair{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := s.accounts.TouchLastLogin(ctx, account.ID, now); err != nil {
		s.logger.Warn("touch last login failed", zap.Error(err), zap.String("account_id", account.ID))
	}
	account.LastLoginAt = &now

	pair, err := s.tokens.GeneratePair(account)
	if err != nil {
		return domain.Account{}, TokenPair{}, err
	}
	return account, pair, nil
}

// RequestPasswordReset siempre responde lo mismo exista o no la cuenta; solo
// envía OTP cuando existe. Un fallo de envío aquí se registra y se traga,
// porque distinguirlo revelaría qué cuentas existen.
func (s *AuthService) RequestPasswordReset(ctx context.Context, identifier string) error {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return nil
	}

	account, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}

	// Presupuesto propio del flujo de reset: agotar los envíos de registro
	// no bloquea recuperar la contraseña, ni al revés.
	if !s.otpLimiter.Allow("reset:" + account.Email) {
		return ErrRateLimited
	}

	code, err := GenerateOTP()
	if err != nil {
		return err
	}
	if err := s.pending.PutReset(ctx, account.Email, PendingReset{OTP: code}); err != nil {
		return err
	}

	if err := s.emailSender.SendPasswordResetOTP(ctx, account.Email, code); err != nil {
		s.logger.Warn("send reset otp failed", zap.Error(err), zap.String("email", account.Email))
	}
	return nil
}

// VerifyResetOTP consume el reset pendiente y emite un reset token de un
// solo uso con vigencia de una hora.
func (s *AuthService) VerifyResetOTP(ctx context.Context, emailAddr, code string) (string, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return "", ErrInvalidEmail
	}
	if !isValidOTPCode(code) {
		return "", ErrInvalidOrExpiredOTP
	}

	reset, ok, err := s.pending.GetReset(ctx, emailAddr)
	if err != nil {
		return "", err
	}
	if !ok || reset.OTP != code {
		return "", ErrInvalidOrExpiredOTP
	}

	reset, ok, err = s.pending.ConsumeReset(ctx, emailAddr)
	if err != nil {
		return "", err
	}
	if !ok || reset.OTP != code {
		return "", ErrInvalidOrExpiredOTP
	}

	return s.tokens.IssueResetToken(emailAddr)
}

// ResetPassword consume el reset token, re-hashea y persiste la contraseña.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	emailAddr, err := s.tokens.ConsumeResetToken(resetToken)
	if err != nil {
		return err
	}

	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return err
	}

	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePasswordHash(ctx, account.ID, passwordHash); err != nil {
		return err
	}

	if err := s.emailSender.SendPasswordChanged(ctx, account.Email); err != nil {
		s.logger.Warn("send password changed failed", zap.Error(err), zap.String("email", account.Email))
	}
	return nil
}

func (s *AuthService) findByIdentifier(ctx context.Context, identifier string) (domain.Account, error) {
	account, err := s.accounts.GetByEmail(ctx, identifier)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, err
	}
	return s.accounts.GetByUsername(ctx, identifier)
}

func normalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return ""
	}
	return email
}
