package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/rdanvers/pagecheck/internal/browser"
	"github.com/rdanvers/pagecheck/internal/queue"
	"github.com/rdanvers/pagecheck/internal/security"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, browserManager browser.Client, verifier PageVerifier) {
	handler := NewHandler(browserManager, verifier)

	// Health check (simple path)
	app.Get("/health", handler.HealthCheck)

	// Pagecheck routes
	registerRoutes(app.Group("/pagecheck"), handler)
}

// RouteConfig holds configuration for routes
type RouteConfig struct {
	RateLimitRequests int           // requests per window
	RateLimitWindow   time.Duration // time window
	IdempotencyTTL    time.Duration // TTL for idempotency keys
	BaseURL           string        // Base URL for full URLs in responses
}

// DefaultRouteConfig returns default route configuration
func DefaultRouteConfig() RouteConfig {
	return RouteConfig{
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		IdempotencyTTL:    24 * time.Hour,
		BaseURL:           "http://localhost:8080",
	}
}

// SetupJobRoutes configures job queue routes
func SetupJobRoutes(app *fiber.App, queueManager *queue.Manager) {
	SetupJobRoutesWithConfig(app, queueManager, DefaultRouteConfig())
}

// SetupJobRoutesWithConfig configures job queue routes with custom config
func SetupJobRoutesWithConfig(app *fiber.App, queueManager *queue.Manager, config RouteConfig) {
	// Create security stores
	rateLimiter := security.NewRateLimiter(security.RateLimitConfig{
		RequestsPerWindow: config.RateLimitRequests,
		WindowDuration:    config.RateLimitWindow,
		BurstMax:          20,
	})
	idempotencyStore := security.NewIdempotencyStore(config.IdempotencyTTL)

	jobHandler := NewJobHandlerWithSecurity(queueManager, idempotencyStore, config.BaseURL)

	// Create security middleware
	secMiddleware := security.NewMiddleware(rateLimiter)

	pagecheck := app.Group("/pagecheck")

	// Apply security headers to all pagecheck routes
	pagecheck.Use(security.SecurityHeadersMiddleware())

	// Job queue endpoints with rate limiting
	jobsGroup := pagecheck.Group("/jobs")
	jobsGroup.Use(secMiddleware.RateLimitMiddleware())

	jobsGroup.Post("", jobHandler.CreateJob)
	jobsGroup.Get("/:job_id", jobHandler.GetJobStatus)
	jobsGroup.Get("/:job_id/result", jobHandler.GetJobResult)
	jobsGroup.Post("/:job_id/cancel", jobHandler.CancelJob)
	jobsGroup.Get("/:job_id/events", jobHandler.StreamEvents)

	// WebSocket endpoint for job events
	app.Use("/pagecheck/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/pagecheck/ws", websocket.New(jobHandler.HandleWebSocket))
}

// SetupSecureRoutes configures routes with full security middleware
func SetupSecureRoutes(app *fiber.App, browserManager browser.Client, verifier PageVerifier, config RouteConfig) {
	handler := NewHandler(browserManager, verifier)

	// Create rate limiter
	rateLimiter := security.NewRateLimiter(security.RateLimitConfig{
		RequestsPerWindow: config.RateLimitRequests,
		WindowDuration:    config.RateLimitWindow,
		BurstMax:          20,
	})

	// Create security middleware
	secMiddleware := security.NewMiddleware(rateLimiter)

	// Health check (no rate limit)
	app.Get("/health", handler.HealthCheck)

	// Pagecheck routes with security
	pagecheck := app.Group("/pagecheck")
	pagecheck.Use(security.SecurityHeadersMiddleware())
	pagecheck.Use(secMiddleware.RateLimitMiddleware())

	registerRoutes(pagecheck, handler)
}

func registerRoutes(pagecheck fiber.Router, handler *Handler) {
	// Browser status
	pagecheck.Get("/browser/status", handler.BrowserStatus)

	// Synchronous verification
	pagecheck.Post("/verify", handler.Verify)
}
