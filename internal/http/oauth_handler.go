package http

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"unkit-api/internal/service"
)

const oauthStateCookie = "oauthstate"

// OAuthHandler expone los redirects y callbacks de los proveedores externos.
type OAuthHandler struct {
	logger      *zap.Logger
	oauthServ   *service.OAuthService
	tokens      *service.TokenService
	frontendURL string
}

func NewOAuthHandler(logger *zap.Logger, oauthServ *service.OAuthService, tokens *service.TokenService, frontendURL string) *OAuthHandler {
	return &OAuthHandler{
		logger:      logger,
		oauthServ:   oauthServ,
		tokens:      tokens,
		frontendURL: frontendURL,
	}
}

// Redirect maneja GET /auth/:provider, redirigiendo al proveedor con un
// state anti-CSRF guardado en cookie.
func (h *OAuthHandler) Redirect(c *gin.Context) {
	provider := c.Param("provider")
	state := uuid.NewString()

	authURL, err := h.oauthServ.AuthCodeURL(provider, state)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}

	c.SetCookie(oauthStateCookie, state, 600, "/", "", false, true)
	c.Redirect(http.StatusTemporaryRedirect, authURL)
}

// Callback maneja GET /auth/callback/:provider: valida el state, intercambia
// el code, emite tokens locales y redirige al frontend con el access token.
func (h *OAuthHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")

	state, err := c.Cookie(oauthStateCookie)
	if err != nil || state == "" || c.Query("state") != state {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid oauth state"})
		return
	}
	c.SetCookie(oauthStateCookie, "", -1, "/", "", false, true)

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	account, err := h.oauthServ.HandleCallback(c.Request.Context(), provider, code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownProvider):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		case errors.Is(err, service.ErrEmailUnavailable):
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not verify email"})
		case errors.Is(err, service.ErrUpstreamUnavailable):
			c.JSON(http.StatusBadGateway, gin.H{"error": "identity provider unavailable"})
		default:
			h.logger.Error("oauth callback failed", zap.String("provider", provider), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not complete oauth"})
		}
		return
	}

	pair, err := h.tokens.GeneratePair(account)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue tokens"})
		return
	}

	// Refresh viaja como cookie HTTP-only; access va como query param en la
	// URL de completado del frontend.
	c.SetCookie(refreshCookieName, pair.RefreshToken, int(h.tokens.RefreshTTL().Seconds()), "/", "", false, true)
	redirect := h.frontendURL + "/user/dashboard?" + url.Values{
		"access_token": {pair.AccessToken},
	}.Encode()
	c.Redirect(http.StatusFound, redirect)
}
