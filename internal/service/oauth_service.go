package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"unkit-api/internal/domain"
	"unkit-api/internal/repository"
)

var (
	ErrUnknownProvider     = errors.New("unknown oauth provider")
	ErrUpstreamUnavailable = errors.New("identity provider unavailable")
	ErrEmailUnavailable    = errors.New("no verified email available")
)

// OAuthService intercambia el authorization code con el proveedor, resuelve
// el perfil y lo mapea a una cuenta local. Las llamadas salientes llevan
// timeout acotado; un fallo de red se reporta como ErrUpstreamUnavailable.
type OAuthService struct {
	logger   *zap.Logger
	accounts repository.AccountRepository
	configs  map[string]*oauth2.Config

	// URLs sobreescribibles en tests.
	googleUserInfoURL string
	githubUserURL     string
	githubEmailsURL   string

	httpClient      *http.Client
	upstreamTimeout time.Duration
}

// NewGoogleConfig arma la config OAuth2 de Google con los scopes fijos del flujo.
func NewGoogleConfig(clientID, clientSecret, backendURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  backendURL + "/auth/callback/google",
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
}

// NewGithubConfig arma la config OAuth2 de GitHub.
func NewGithubConfig(clientID, clientSecret, backendURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  backendURL + "/auth/callback/github",
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     github.Endpoint,
	}
}

func NewOAuthService(logger *zap.Logger, accounts repository.AccountRepository, googleCfg, githubCfg *oauth2.Config) *OAuthService {
	configs := make(map[string]*oauth2.Config)
	if googleCfg != nil {
		configs["google"] = googleCfg
	}
	if githubCfg != nil {
		configs["github"] = githubCfg
	}
	return &OAuthService{
		logger:            logger,
		accounts:          accounts,
		configs:           configs,
		googleUserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		githubUserURL:     "https://api.github.com/user",
		githubEmailsURL:   "https://api.github.com/user/emails",
		httpClient:        &http.Client{Timeout: 10 * time.Second},
		upstreamTimeout:   10 * time.Second,
	}
}

// AuthCodeURL devuelve la URL de autorización del proveedor con el state dado.
func (s *OAuthService) AuthCodeURL(provider, state string) (string, error) {
	cfg, ok := s.configs[provider]
	if !ok {
		return "", ErrUnknownProvider
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// HandleCallback intercambia el code, obtiene el perfil y devuelve la cuenta
// local, creándola si no existe (cuenta OAuth-only con hash inutilizable).
func (s *OAuthService) HandleCallback(ctx context.Context, provider, code string) (domain.Account, error) {
	cfg, ok := s.configs[provider]
	if !ok {
		return domain.Account{}, ErrUnknownProvider
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
	defer cancel()
	token, err := cfg.Exchange(exchangeCtx, code)
	if err != nil {
		s.logger.Warn("oauth code exchange failed", zap.String("provider", provider), zap.Error(err))
		return domain.Account{}, ErrUpstreamUnavailable
	}

	var emailAddr, username string
	switch provider {
	case "google":
		emailAddr, username, err = s.fetchGoogleProfile(ctx, token)
	case "github":
		emailAddr, username, err = s.fetchGithubProfile(ctx, token)
	}
	if err != nil {
		return domain.Account{}, err
	}

	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return domain.Account{}, ErrEmailUnavailable
	}

	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, err
	}
	return s.createOAuthAccount(ctx, emailAddr, username)
}

func (s *OAuthService) fetchGoogleProfile(ctx context.Context, token *oauth2.Token) (string, string, error) {
	var profile struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := s.getJSON(ctx, s.googleUserInfoURL, token.AccessToken, &profile); err != nil {
		return "", "", err
	}
	username := profile.Name
	if username == "" && profile.Email != "" {
		username = strings.SplitN(profile.Email, "@", 2)[0]
	}
	return profile.Email, username, nil
}

func (s *OAuthService) fetchGithubProfile(ctx context.Context, token *oauth2.Token) (string, string, error) {
	var profile struct {
		Login string `json:"login"`
		Email string `json:"email"`
	}
	if err := s.getJSON(ctx, s.githubUserURL, token.AccessToken, &profile); err != nil {
		return "", "", err
	}
	if profile.Email != "" {
		return profile.Email, profile.Login, nil
	}

	// Sin email público: buscar en la lista el marcado primary y verified.
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := s.getJSON(ctx, s.githubEmailsURL, token.AccessToken, &emails); err != nil {
		return "", "", err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, profile.Login, nil
		}
	}
	return "", "", ErrEmailUnavailable
}

func (s *OAuthService) getJSON(ctx context.Context, url, accessToken string, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("oauth profile fetch failed", zap.String("url", url), zap.Error(err))
		return ErrUpstreamUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("oauth profile fetch bad status", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return ErrUpstreamUnavailable
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ErrUpstreamUnavailable
	}
	if err := json.Unmarshal(body, out); err != nil {
		return ErrUpstreamUnavailable
	}
	return nil
}

func (s *OAuthService) createOAuthAccount(ctx context.Context, emailAddr, username string) (domain.Account, error) {
	username = sanitizeUsername(username)
	if username == "" {
		username = strings.SplitN(emailAddr, "@", 2)[0]
	}
	if _, err := s.accounts.GetByUsername(ctx, username); err == nil {
		username = fmt.Sprintf("%s-%s", username, uuid.NewString()[:8])
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, err
	}

	// Contraseña aleatoria que nadie conoce: la cuenta solo entra por OAuth.
	passwordHash, err := HashPassword(uuid.NewString())
	if err != nil {
		return domain.Account{}, err
	}

	account := domain.Account{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		Username:     username,
		PasswordHash: passwordHash,
		IsActive:     true,
		Timezone:     "UTC",
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

func sanitizeUsername(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(name, " ", "")
}
