// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "slotswap/docs" // swagger docs
	"slotswap/internal/cache"
	"slotswap/internal/config"
	"slotswap/internal/database"
	"slotswap/internal/featureflags"
	"slotswap/internal/middleware"
	"slotswap/internal/models"
	"slotswap/internal/notifications"
	"slotswap/internal/repository"
	"slotswap/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	userRepo       repository.UserRepository
	swapRepo       repository.SwapRequestRepository
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	events         *notifications.Dispatcher
	featureFlags   *featureflags.Manager
	swapService    *service.SwapService
}

// NewServer connects to the database and Redis described by cfg and
// returns a Server wired to them. Schema management is left to the caller.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	return NewServerWithDeps(cfg, db, cache.Connect(cfg.RedisURL))
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; listing cache, rate limits, token revocation and
// cross-instance events are then disabled.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("config and database are required")
	}

	listTTL := time.Duration(cfg.SwapListCacheTTLSeconds) * time.Second

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("slotswap-api"),
		userRepo:       repository.NewUserRepository(db),
		swapRepo:       repository.NewSwapRequestRepository(db, listTTL),
		notifier:       notifications.NewNotifier(redisClient),
		hub:            notifications.NewHub(),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
	}
	server.events = notifications.NewDispatcher(server.hub, server.notifier)
	server.swapService = service.NewSwapService(server.swapRepo, server.userRepo, server.featureFlags)

	return server, nil
}

func (s *Server) swapSvc() *service.SwapService {
	if s.swapService == nil {
		s.swapService = service.NewSwapService(s.swapRepo, s.userRepo, s.featureFlags)
	}
	return s.swapService
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS sits ahead of the limiter so 429s still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Per-IP ceiling across the whole API. Preflights are exempt.
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || !s.config.RateLimitsEnforced()
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
				Code:  models.CodeRateLimited,
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/signup", s.quota("signup", 5, 10*time.Minute), s.Signup)
	auth.Post("/login", s.quota("login", 10, 5*time.Minute), s.Login)
	auth.Post("/logout", s.AuthRequired(), s.Logout)
	auth.Get("/me", s.AuthRequired(), s.GetMe)

	// Swap request routes. Static segments are registered before
	// /:requestId so they are never captured as an id.
	swaps := api.Group("/swap-requests")
	swaps.Get("/", s.ListSwapRequests)
	swaps.Get("/my-requests", s.AuthRequired(), s.GetMySwapRequests)
	swaps.Get("/my-matches", s.AuthRequired(), s.GetMyMatches)
	swaps.Post("/", s.AuthRequired(), s.quota("create_swap", 10, 10*time.Minute), s.CreateSwapRequest)
	swaps.Post("/confirm-swap", s.AuthRequired(), s.quota("confirm_swap", 10, 5*time.Minute), s.ConfirmSwap)
	swaps.Get("/:requestId/matches", s.FindMatches)
	swaps.Get("/:requestId/matched-contact", s.AuthRequired(), s.GetMatchedContact)
	swaps.Put("/:requestId/complete", s.AuthRequired(), s.CompleteSwap)
	swaps.Delete("/:requestId", s.AuthRequired(), s.DeleteSwapRequest)

	// WebSocket ticket issuance
	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)

	// Swap event stream
	ws := api.Group("/ws", s.AuthRequired())
	ws.Get("/", s.WebsocketHandler())
}

// quota limits a route per caller. Limits only apply in production-like
// environments.
func (s *Server) quota(name string, limit int, window time.Duration) fiber.Handler {
	return middleware.RateLimit(s.redis, middleware.Quota{
		Name:     name,
		Max:      limit,
		Window:   window,
		Disabled: !s.config.RateLimitsEnforced(),
	})
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports 503 when the database or Redis does not answer.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Slot Swap API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// App builds the Fiber application with all middleware and routes, once.
func (s *Server) App() *fiber.App {
	if s.app == nil {
		s.app = s.newApp()
	}
	return s.app
}

// Start wires the hub to Redis and serves HTTP until Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.App()

	if s.notifier.Enabled() {
		if err := s.hub.Listen(s.shutdownCtx, s.notifier); err != nil {
			middleware.Logger.Error("failed to subscribe hub to swap events",
				slog.String("error", err.Error()),
			)
		}
	}

	middleware.Logger.Info("Server starting",
		slog.String("port", s.config.Port),
		slog.String("env", s.config.Env),
		slog.Any("feature_flags", s.featureFlags.Names()),
	)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop the Redis subscriber
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down hub", slog.String("error", err.Error()))
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
