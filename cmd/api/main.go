package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"unkit-api/internal/config"
	"unkit-api/internal/db"
	"unkit-api/internal/email"
	apihttp "unkit-api/internal/http"
	"unkit-api/internal/repository"
	"unkit-api/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	accountRepo := repository.NewPgAccountRepository(pool)
	taskRepo := repository.NewPgTaskRepository(pool)

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := redisClient.Ping(ctxPing).Err(); err != nil {
		logger.Fatal("redis ping failed", zap.Error(err))
	}
	cancel()

	pendingStore := service.NewRedisPendingStore(redisClient, service.PendingTTL)
	otpLimiter := service.NewRedisOTPRateLimiter(redisClient, time.Duration(cfg.OTPSendWindowMinutes)*time.Minute, cfg.OTPSendMax)
	refreshStore := service.NewRedisTokenStore(redisClient, "auth:refresh:")
	resetStore := service.NewRedisTokenStore(redisClient, "auth:reset:")

	tokenSvc := service.NewTokenServiceWithStores(
		cfg.JWTSecret,
		cfg.JWTRefreshSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLDays)*24*time.Hour,
		refreshStore,
		resetStore,
	)

	authSvc := service.NewAuthService(logger, accountRepo, pendingStore, tokenSvc, emailSender, otpLimiter)
	taskSvc := service.NewTaskService(logger, taskRepo)
	oauthSvc := service.NewOAuthService(logger, accountRepo,
		service.NewGoogleConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.BackendURL),
		service.NewGithubConfig(cfg.GithubClientID, cfg.GithubClientSecret, cfg.BackendURL),
	)

	authHandler := apihttp.NewAuthHandler(logger, authSvc, tokenSvc)
	oauthHandler := apihttp.NewOAuthHandler(logger, oauthSvc, tokenSvc, cfg.FrontendURL)
	userHandler := apihttp.NewUserHandler(logger, accountRepo)
	taskHandler := apihttp.NewTaskHandler(logger, taskSvc)
	router := apihttp.NewRouter(logger, tokenSvc, accountRepo, authHandler, oauthHandler, userHandler, taskHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
