package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"unkit-api/internal/domain"
	"unkit-api/internal/repository"
)

// UserHandler expone el perfil de la cuenta autenticada.
type UserHandler struct {
	logger   *zap.Logger
	accounts repository.AccountRepository
}

func NewUserHandler(logger *zap.Logger, accounts repository.AccountRepository) *UserHandler {
	return &UserHandler{
		logger:   logger,
		accounts: accounts,
	}
}

// Me maneja GET /users/me.
func (h *UserHandler) Me(c *gin.Context) {
	account, ok := h.currentAccount(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": account})
}

// UpdateMe maneja PUT /users/me aplicando un patch tipado de perfil.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	account, ok := h.currentAccount(c)
	if !ok {
		return
	}

	var patch domain.AccountPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.logger.Warn("invalid update profile request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	patch.Apply(&account)
	if err := h.accounts.UpdateProfile(c.Request.Context(), account); err != nil {
		h.logger.Error("update profile failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": account})
}

// AdminOverview maneja GET /admin/overview; corre detrás de RequireAdmin.
func (h *UserHandler) AdminOverview(c *gin.Context) {
	claims, _ := GetAuthClaims(c)
	c.JSON(http.StatusOK, gin.H{"msg": "Hello admin " + claims.Subject})
}

func (h *UserHandler) currentAccount(c *gin.Context) (domain.Account, bool) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return domain.Account{}, false
	}
	account, err := h.accounts.GetByEmail(c.Request.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		} else {
			h.logger.Error("load account failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load account"})
		}
		return domain.Account{}, false
	}
	return account, true
}
