package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"account_service/internal/config"
	"account_service/internal/gateway"
	"account_service/internal/handler"
	"account_service/internal/mailer"
	"account_service/internal/middleware"
	"account_service/internal/repository"
	"account_service/internal/service"
	"account_service/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found or error loading, relying on environment variables")
	}

	// --- Logging ---
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "account_service").Logger()
	log.Logger = logger

	// --- Configuration ---
	dbCfg, err := config.LoadDBConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load DB config")
	}
	redisCfg, err := config.LoadRedisConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load Redis config")
	}

	sessionTTLHoursStr := os.Getenv("SESSION_TTL_HOURS")
	sessionTTLHours, err := strconv.ParseInt(sessionTTLHoursStr, 10, 64)
	if err != nil || sessionTTLHours <= 0 {
		logger.Info().Msg("Invalid or missing SESSION_TTL_HOURS, defaulting to 24")
		sessionTTLHours = 24
	}

	gatewayURL := os.Getenv("GATEWAY_URL")
	gatewayAPIKey := os.Getenv("GATEWAY_API_KEY")
	gatewayWebhookSecret := os.Getenv("GATEWAY_WEBHOOK_SECRET")
	if gatewayURL == "" || gatewayAPIKey == "" || gatewayWebhookSecret == "" {
		logger.Fatal().Msg("GATEWAY_URL, GATEWAY_API_KEY and GATEWAY_WEBHOOK_SECRET must be set")
	}

	gatewayTimeout := 10 * time.Second
	if timeoutStr := os.Getenv("GATEWAY_TIMEOUT_SECONDS"); timeoutStr != "" {
		if seconds, err := strconv.Atoi(timeoutStr); err == nil && seconds > 0 {
			gatewayTimeout = time.Duration(seconds) * time.Second
		}
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080" // Default port
	}

	// --- Database Connection ---
	dbPool, err := config.ConnectDB(dbCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// --- Auto Migration ---
	if err := config.AutoMigrate(dbPool); err != nil {
		logger.Fatal().Err(err).Msg("Failed to auto-migrate database")
	}

	// --- Session Store ---
	redisClient, err := config.ConnectRedis(redisCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()
	sessionStore := session.NewRedisStore(redisClient)

	// --- External Collaborators ---
	gatewayClient := gateway.NewHTTPClient(gatewayURL, gatewayAPIKey, gatewayTimeout)
	mail := mailer.NewLogMailer(logger)

	// --- Initialize Repositories ---
	userRepo := repository.NewUserRepository(dbPool)
	paymentRepo := repository.NewPaymentRepository(dbPool)
	resetRepo := repository.NewPasswordResetRepository(dbPool)

	// --- Initialize Services ---
	authService, err := service.NewAuthService(userRepo, resetRepo, sessionStore, mail, time.Duration(sessionTTLHours)*time.Hour)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize auth service")
	}
	userService := service.NewUserService(userRepo, sessionStore)
	paymentService := service.NewPaymentService(paymentRepo, userRepo, gatewayClient)

	// --- Initialize Handlers ---
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	paymentHandler := handler.NewPaymentHandler(paymentService, []byte(gatewayWebhookSecret))

	// --- Setup Gin Router ---
	// gin.SetMode(gin.ReleaseMode) // Uncomment for production
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	// --- Initialize Middlewares ---
	sessionAuthMW := middleware.SessionAuthMiddleware(sessionStore)
	adminRoleMW := middleware.AdminMiddleware()

	// --- Register Routes ---
	apiGroup := router.Group("/")
	authHandler.RegisterAuthRoutes(apiGroup, sessionAuthMW)
	userHandler.RegisterUserRoutes(apiGroup, sessionAuthMW, adminRoleMW)
	paymentHandler.RegisterPaymentRoutes(apiGroup, sessionAuthMW, adminRoleMW)

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		if err := dbPool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "db": "unhealthy"})
			return
		}
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "redis": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// --- Start Server ---
	srv := &http.Server{
		Addr:    ":" + serverPort,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", serverPort).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen failed")
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exiting")
}
