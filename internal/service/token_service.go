package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"unkit-api/internal/domain"
)

// TokenService emite y valida JWT de tres clases: access (minutos), refresh
// (días) y reset (1 hora, con nbf). Access y reset comparten un secreto;
// refresh usa uno propio, de modo que la fuga de uno no permite forjar el otro.
type TokenService struct {
	secret        []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	resetTTL      time.Duration
	issuer        string
	refreshStore  TokenStore
	resetStore    TokenStore
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims lleva email como subject y el username como claim "name".
type Claims struct {
	Username  string `json:"name,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// ErrInvalidToken cubre uniformemente token expirado, malformado, con firma
// incorrecta o sin subject; no se filtra cuál chequeo falló.
var ErrInvalidToken = errors.New("invalid or expired token")

func NewTokenService(secret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &TokenService{
		secret:        []byte(secret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		resetTTL:      time.Hour,
		issuer:        "unkit-api",
		refreshStore:  NewMemoryTokenStore(),
		resetStore:    NewMemoryTokenStore(),
	}
}

func NewTokenServiceWithStores(secret, refreshSecret string, accessTTL, refreshTTL time.Duration, refreshStore, resetStore TokenStore) *TokenService {
	svc := NewTokenService(secret, refreshSecret, accessTTL, refreshTTL)
	if refreshStore != nil {
		svc.refreshStore = refreshStore
	}
	if resetStore != nil {
		svc.resetStore = resetStore
	}
	return svc
}

// RefreshTTL expone la vigencia configurada de los refresh tokens, para que
// la cookie de refresh caduque junto con el token que transporta.
func (s *TokenService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// GeneratePair emite un par access+refresh para la cuenta.
func (s *TokenService) GeneratePair(account domain.Account) (TokenPair, error) {
	if len(s.secret) == 0 || len(s.refreshSecret) == 0 {
		return TokenPair{}, ErrInvalidToken
	}
	now := time.Now().UTC()
	access, _, err := s.signToken(account.Email, account.Username, now, s.accessTTL, "access", s.secret, false)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, jti, err := s.signToken(account.Email, account.Username, now, s.refreshTTL, "refresh", s.refreshSecret, true)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.refreshStore.Store(jti, account.Email, s.refreshTTL); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// RefreshPair valida un refresh token, revoca su jti y emite un par nuevo.
func (s *TokenService) RefreshPair(refreshToken string) (TokenPair, error) {
	claims, err := s.parseToken(refreshToken, s.refreshSecret)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.TokenType != "refresh" || claims.ID == "" {
		return TokenPair{}, ErrInvalidToken
	}
	ok, err := s.refreshStore.Exists(claims.ID)
	if err != nil || !ok {
		return TokenPair{}, ErrInvalidToken
	}
	if err := s.refreshStore.Revoke(claims.ID); err != nil {
		return TokenPair{}, ErrInvalidToken
	}
	return s.GeneratePair(domain.Account{
		Email:    claims.Subject,
		Username: claims.Username,
	})
}

// RevokeRefresh invalida el jti de un refresh token (logout).
func (s *TokenService) RevokeRefresh(refreshToken string) error {
	claims, err := s.parseToken(refreshToken, s.refreshSecret)
	if err != nil {
		return err
	}
	if claims.TokenType != "refresh" || claims.ID == "" {
		return ErrInvalidToken
	}
	return s.refreshStore.Revoke(claims.ID)
}

// ParseAccessToken valida un access token y devuelve sus claims.
func (s *TokenService) ParseAccessToken(accessToken string) (Claims, error) {
	claims, err := s.parseToken(accessToken, s.secret)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != "access" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// IssueResetToken emite un reset token de un solo uso para el email dado.
// El jti queda registrado con el mismo TTL; consumirlo lo invalida.
func (s *TokenService) IssueResetToken(email string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrInvalidToken
	}
	now := time.Now().UTC()
	token, jti, err := s.signToken(email, "", now, s.resetTTL, "reset", s.secret, true)
	if err != nil {
		return "", err
	}
	if err := s.resetStore.Store(jti, email, s.resetTTL); err != nil {
		return "", err
	}
	return token, nil
}

// ConsumeResetToken valida un reset token, lo invalida y devuelve el email.
func (s *TokenService) ConsumeResetToken(resetToken string) (string, error) {
	claims, err := s.parseToken(resetToken, s.secret)
	if err != nil {
		return "", err
	}
	if claims.TokenType != "reset" || claims.ID == "" {
		return "", ErrInvalidToken
	}
	ok, err := s.resetStore.Exists(claims.ID)
	if err != nil || !ok {
		return "", ErrInvalidToken
	}
	if err := s.resetStore.Revoke(claims.ID); err != nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (s *TokenService) signToken(email, username string, now time.Time, ttl time.Duration, kind string, secret []byte, withID bool) (string, string, error) {
	claims := Claims{
		Username:  username,
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if kind == "reset" {
		claims.NotBefore = jwt.NewNumericDate(now)
	}
	var jti string
	if withID {
		jti = uuid.NewString()
		claims.ID = jti
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	return signed, jti, err
}

func (s *TokenService) parseToken(tokenString string, secret []byte) (Claims, error) {
	if len(secret) == 0 || strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.Issuer != s.issuer {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
