package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/google/uuid"

	"github.com/snapsplit/sync-core/internal/authcheck"
	"github.com/snapsplit/sync-core/internal/config"
	"github.com/snapsplit/sync-core/internal/handler"
	"github.com/snapsplit/sync-core/internal/middleware"
	"github.com/snapsplit/sync-core/internal/repository/postgres"
	"github.com/snapsplit/sync-core/internal/service"
	"github.com/snapsplit/sync-core/internal/shareid"
	"github.com/snapsplit/sync-core/internal/util"
	"github.com/snapsplit/sync-core/internal/websocket"
)

func main() {
	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Connect to database
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Connected to database")

	// Initialize repositories
	userRepo := postgres.NewUserRepository(pool)
	billRepo := postgres.NewBillRepository(pool)
	operationRepo := postgres.NewOperationRepository(pool)
	memberLinkRepo := postgres.NewMemberLinkRepository(pool)

	clock := util.SystemClock{}

	// Initialize services
	userService := service.NewUserService(userRepo)
	shareIDs := shareid.New(cfg.ShareCodeAlphabet, 8)
	bulkSyncService := service.NewBulkSyncService(billRepo, clock, shareIDs)
	deltaSyncService := service.NewDeltaSyncService(billRepo, clock)
	operationService := service.NewOperationService(billRepo, operationRepo, clock)
	accessChecker := authcheck.New(memberLinkRepo)

	// Wire the websocket hub as every sync service's event publisher, so a
	// commit's version bump fans out to every other device on the bill.
	hub := websocket.NewHub()
	bulkSyncService.SetEventPublisher(hub)
	deltaSyncService.SetEventPublisher(hub)
	operationService.SetEventPublisher(hub)

	// Initialize auth middleware and the websocket JWT validator, both
	// backed by the same owner-identity resolver.
	authUserProvider := &authMiddlewareUserAdapter{users: userService}
	authMiddleware, err := middleware.NewAuthMiddleware(cfg.Auth0Domain, cfg.Auth0Audience, authUserProvider)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create auth middleware")
	}

	wsUserLookup := &websocketUserAdapter{users: userService}
	wsValidator, err := websocket.NewAuth0JWTValidator(cfg.Auth0Domain, cfg.Auth0Audience, wsUserLookup)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create websocket JWT validator")
	}

	// Initialize handlers
	syncHandler := handler.NewSyncHandler(bulkSyncService, deltaSyncService, operationService)
	settlementHandler := handler.NewSettlementHandler(billRepo, operationService)
	wsHandler := handler.NewWebSocketHandler(hub, wsValidator)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.RequestID())

	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	e.Use(zerologMiddleware())
	e.Use(echomiddleware.Recover())

	rateLimiter := middleware.NewRateLimiter()
	defer rateLimiter.Stop()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	handler.RegisterRoutes(e, authMiddleware, accessChecker, rateLimiter, syncHandler, settlementHandler, wsHandler)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// authMiddlewareUserAdapter adapts UserService to middleware.UserProvider.
type authMiddlewareUserAdapter struct {
	users *service.UserService
}

func (a *authMiddlewareUserAdapter) GetOrCreateUserByAuth0ID(ctx context.Context, auth0ID string, claims middleware.CustomClaims) (uuid.UUID, error) {
	return a.users.GetOrCreateUserByAuth0ID(ctx, auth0ID, claims.Email, claims.Name, claims.Picture)
}

// websocketUserAdapter adapts UserService to websocket.UserLookup.
type websocketUserAdapter struct {
	users *service.UserService
}

func (a *websocketUserAdapter) GetOrCreateUserByAuth0ID(ctx context.Context, auth0ID string, claims websocket.CustomClaims) (uuid.UUID, error) {
	return a.users.GetOrCreateUserByAuth0ID(ctx, auth0ID, claims.Email, claims.Name, claims.Picture)
}

// zerologMiddleware returns a middleware that logs requests using zerolog
func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			log.Info().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Msg("request")

			return nil
		}
	}
}
