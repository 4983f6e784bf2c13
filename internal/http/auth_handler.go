package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"unkit-api/internal/domain"
	"unkit-api/internal/service"
)

const refreshCookieName = "refresh_token"

// AuthHandler mantiene dependencias para los endpoints de autenticación.
type AuthHandler struct {
	logger   *zap.Logger
	authServ *service.AuthService
	tokens   *service.TokenService
}

func NewAuthHandler(logger *zap.Logger, authServ *service.AuthService, tokens *service.TokenService) *AuthHandler {
	return &AuthHandler{
		logger:   logger,
		authServ: authServ,
		tokens:   tokens,
	}
}

// StartRegistration maneja POST /auth/start-registration.
func (h *AuthHandler) StartRegistration(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Username string `json:"username" binding:"required,min=3"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid start registration request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.authServ.StartRegistration(c.Request.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyRegistered),
			errors.Is(err, service.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		case errors.Is(err, service.ErrEmailSendFailure):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "email delivery unavailable"})
		case errors.Is(err, service.ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		default:
			h.logger.Error("start registration failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start registration"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"msg": "OTP sent to email"})
}

// VerifyOTP maneja POST /auth/verify-otp.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		OTP      string `json:"otp" binding:"required"`
		Timezone string `json:"timezone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid verify otp request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, pair, err := h.authServ.VerifyRegistrationOTP(c.Request.Context(), req.Email, req.OTP, req.Timezone)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidOrExpiredOTP),
			errors.Is(err, service.ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired otp"})
		default:
			h.logger.Error("verify otp failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify otp"})
		}
		return
	}

	h.respondTokens(c, account, pair)
}

// ResendOTP maneja POST /auth/resend-otp.
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid resend otp request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.authServ.ResendRegistrationOTP(c.Request.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoPendingSignup):
			c.JSON(http.StatusBadRequest, gin.H{"error": "no pending registration found for this email"})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		case errors.Is(err, service.ErrEmailSendFailure):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "email delivery unavailable"})
		default:
			h.logger.Error("resend otp failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resend otp"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"msg": "A new OTP has been sent to your email."})
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		UsernameOrEmail string `json:"username_or_email" binding:"required"`
		Password        string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, pair, err := h.authServ.Login(c.Request.Context(), req.UsernameOrEmail, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not login"})
		return
	}

	h.respondTokens(c, account, pair)
}

// RequestPasswordReset maneja POST /auth/request-password-reset. La
// respuesta es la misma exista o no la cuenta.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req struct {
		EmailOrUsername string `json:"email_or_username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid reset request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.authServ.RequestPasswordReset(c.Request.Context(), req.EmailOrUsername)
	if err != nil {
		if errors.Is(err, service.ErrRateLimited) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		h.logger.Error("request password reset failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not request reset"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"msg": "If your account exists, a password reset email has been sent."})
}

// VerifyResetOTP maneja POST /auth/verify-reset-otp.
func (h *AuthHandler) VerifyResetOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		OTP   string `json:"otp" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid verify reset otp request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	resetToken, err := h.authServ.VerifyResetOTP(c.Request.Context(), req.Email, req.OTP)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidOrExpiredOTP),
			errors.Is(err, service.ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired otp"})
		default:
			h.logger.Error("verify reset otp failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify otp"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"reset_token": resetToken})
}

// ResetPassword maneja POST /auth/reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Token       string `json:"token" binding:"required"`
		NewPassword string `json:"new_password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid reset password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.authServ.ResetPassword(c.Request.Context(), req.Token, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidToken):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired token"})
		case errors.Is(err, service.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			h.logger.Error("reset password failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not reset password"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"msg": "Password updated successfully"})
}

// Refresh maneja POST /auth/refresh. El refresh token llega en el body o en
// la cookie refresh_token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken := h.refreshTokenFrom(c)
	if refreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing refresh token"})
		return
	}

	pair, err := h.tokens.RefreshPair(refreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	h.setRefreshCookie(c, pair)
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    pair.TokenType,
		"expires_in":    pair.ExpiresIn,
	})
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	refreshToken := h.refreshTokenFrom(c)
	if refreshToken != "" {
		_ = h.tokens.RevokeRefresh(refreshToken)
	}
	c.SetCookie(refreshCookieName, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) refreshTokenFrom(c *gin.Context) string {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	if cookie, err := c.Cookie(refreshCookieName); err == nil {
		return cookie
	}
	return ""
}

func (h *AuthHandler) respondTokens(c *gin.Context, account domain.Account, pair service.TokenPair) {
	h.setRefreshCookie(c, pair)
	c.JSON(http.StatusOK, gin.H{
		"user":          account,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    pair.TokenType,
		"expires_in":    pair.ExpiresIn,
	})
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, pair service.TokenPair) {
	c.SetCookie(refreshCookieName, pair.RefreshToken, int(h.tokens.RefreshTTL().Seconds()), "/", "", false, true)
}
