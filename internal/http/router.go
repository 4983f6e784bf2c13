package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"unkit-api/internal/repository"
	"unkit-api/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	tokenSvc *service.TokenService,
	accounts repository.AccountRepository,
	authH *AuthHandler,
	oauthH *OAuthHandler,
	userH *UserHandler,
	taskH *TaskHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares básicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	auth := r.Group("/auth")
	auth.POST("/start-registration", authH.StartRegistration)
	auth.POST("/verify-otp", authH.VerifyOTP)
	auth.POST("/resend-otp", authH.ResendOTP)
	auth.POST("/login", authH.Login)
	auth.POST("/request-password-reset", authH.RequestPasswordReset)
	auth.POST("/verify-reset-otp", authH.VerifyResetOTP)
	auth.POST("/reset-password", authH.ResetPassword)
	auth.POST("/refresh", authH.Refresh)
	auth.POST("/logout", authH.Logout)
	auth.GET("/:provider", oauthH.Redirect)
	auth.GET("/callback/:provider", oauthH.Callback)

	authed := r.Group("/", JWTAuthMiddleware(tokenSvc))

	users := authed.Group("/users")
	users.GET("/me", userH.Me)
	users.PUT("/me", userH.UpdateMe)

	tasks := authed.Group("/tasks")
	tasks.GET("", taskH.ListTasks)
	tasks.POST("", taskH.CreateTask)
	tasks.PUT("/:id", taskH.UpdateTask)
	tasks.DELETE("/:id", taskH.DeleteTask)

	saved := authed.Group("/saved-tasks")
	saved.GET("", taskH.ListSavedTasks)
	saved.POST("", taskH.CreateSavedTask)
	saved.PUT("/:id", taskH.UpdateSavedTask)
	saved.DELETE("/:id", taskH.DeleteSavedTask)

	admin := authed.Group("/admin", RequireAdmin(accounts))
	admin.GET("/overview", userH.AdminOverview)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
